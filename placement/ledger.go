/*
ledger.go - Agreement/Payment Ledger

PURPOSE:
  Owns Agreement creation and every installment mutation: payment recording,
  proof upload, job loss termination and overdue sweeping.

AGREEMENT FIGURES:
  totalServiceFee      = totalSalary × ServiceFeeRate
  monthlyPaymentAmount = totalServiceFee / 8
  installment i due    = jobStartDate + i months, on emiDay (clamped)

  After every payment:
  totalPaidSoFar   = Σ installments[*].amountReceived
  remainingBalance = totalServiceFee - totalPaidSoFar
  nextDueDate      = earliest due date among unpaid installments
  completionStatus = completed once remainingBalance <= 0

PROOF GATE:
  An installment cannot be marked paid until a proof reference is attached
  to that same installment. Proof blobs go through FileStore; the agreement
  only stores the returned reference.

TERMINATION:
  RecordJobLost sets completionStatus = terminated. A terminated agreement
  accepts no further payments or proofs and is skipped by the overdue sweep.
*/
package placement

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultServiceFeeRate is the share of the total salary charged as service fee.
var DefaultServiceFeeRate = decimal.RequireFromString("0.08")

// proofTypes lists the accepted proof formats by extension and MIME type.
var proofTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store  TxStore
	Gate   Authorizer
	Files  FileStore
	Events Publisher

	ServiceFeeRate decimal.Decimal

	Now   func() time.Time
	NewID func() string
}

func NewLedger(store TxStore, gate Authorizer, files FileStore) *Ledger {
	return &Ledger{
		Store:          store,
		Gate:           gate,
		Files:          files,
		ServiceFeeRate: DefaultServiceFeeRate,
		Now:            func() time.Time { return time.Now().UTC() },
		NewID:          uuid.NewString,
	}
}

type NewAgreement struct {
	TotalSalary decimal.Decimal
	EMIDay      int
	Remarks     string
}

type Payment struct {
	Amount       decimal.Decimal
	ReceivedDate time.Time
	Notes        string
}

type ProofUpload struct {
	Content     io.Reader
	FileName    string
	ContentType string
}

// =============================================================================
// CREATE & READ
// =============================================================================

// CreateAgreement builds the 8-installment plan for a consultant's current
// job. Duplicates are rejected both by consultant identity (name, email) and
// by the job record link.
func (l *Ledger) CreateAgreement(ctx context.Context, actor Actor, id ConsultantID, in NewAgreement) (*Agreement, error) {
	if !in.TotalSalary.IsPositive() {
		return nil, invalidField("totalSalary", "must be greater than zero")
	}
	if in.EMIDay < 1 || in.EMIDay > 31 {
		return nil, invalidField("emiDate", "must be a day of month between 1 and 31")
	}

	var out *Agreement
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionCreateAgreement); err != nil {
			return err
		}
		jd, err := loadJobDetails(ctx, s, id)
		if err != nil {
			return err
		}
		if jd.DateOfOffer.IsZero() {
			return invalidField("dateOfOffer", "job details have no date of offer")
		}

		dup, err := s.FindAgreementByIdentity(ctx, c.Name, c.Email)
		if err != nil {
			return fmt.Errorf("failed to check agreement identity: %w", err)
		}
		if dup == nil {
			if dup, err = s.GetAgreementByJobDetails(ctx, jd.ID); err != nil {
				return fmt.Errorf("failed to check agreement link: %w", err)
			}
		}
		if dup != nil {
			return fmt.Errorf("%w for consultant %s", ErrAgreementExists, id)
		}

		a, err := l.buildAgreement(actor, c, jd, in)
		if err != nil {
			return err
		}
		if err := s.InsertAgreement(ctx, a); err != nil {
			return err
		}
		jd.IsAgreement = true
		jd.UpdatedAt = a.CreatedAt
		if err := s.UpdateJobDetails(ctx, jd); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Ledger", l.event(EventAgreementCreated, out, actor,
		map[string]string{"total_service_fee": out.TotalServiceFee.String()}))
	return out, nil
}

func (l *Ledger) buildAgreement(actor Actor, c *Consultant, jd *JobDetails, in NewAgreement) (*Agreement, error) {
	dates, err := GenerateSchedule(jd.DateOfOffer, in.EMIDay, InstallmentCount)
	if err != nil {
		return nil, err
	}
	fee := in.TotalSalary.Mul(l.ServiceFeeRate)
	now := l.Now()
	a := &Agreement{
		ID:                   AgreementID(l.NewID()),
		JobDetailsID:         jd.ID,
		ConsultantID:         c.ID,
		ConsultantName:       c.Name,
		Email:                c.Email,
		Phone:                c.Phone,
		JobStartDate:         DateOnly(jd.DateOfOffer),
		TotalSalary:          in.TotalSalary,
		TotalServiceFee:      fee,
		MonthlyPaymentAmount: fee.Div(decimal.NewFromInt(InstallmentCount)),
		EMIDay:               in.EMIDay,
		Remarks:              in.Remarks,
		CompletionStatus:     PaymentInProgress,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for i, due := range dates {
		a.Installments[i] = Installment{
			Month:          i + 1,
			DueDate:        due,
			AmountReceived: decimal.Zero,
			Status:         InstallmentPending,
		}
	}
	RecomputeTotals(a)
	return a, nil
}

func (l *Ledger) GetAgreement(ctx context.Context, actor Actor, id ConsultantID) (*Agreement, error) {
	c, err := loadConsultant(ctx, l.Store, id)
	if err != nil {
		return nil, err
	}
	if err := l.Gate.Authorize(ctx, actor, c, ActionViewAgreement); err != nil {
		return nil, err
	}
	return loadAgreementByConsultant(ctx, l.Store, id)
}

// =============================================================================
// PAYMENTS & PROOFS
// =============================================================================

// RecordPayment marks installment n paid. The installment must already carry
// a proof. Re-recording a paid installment overwrites its amount; totals are
// always recomputed from the installments.
func (l *Ledger) RecordPayment(ctx context.Context, actor Actor, id AgreementID, n int, p Payment) (*Agreement, error) {
	if n < 1 || n > InstallmentCount {
		return nil, invalidField("installment", fmt.Sprintf("must be between 1 and %d", InstallmentCount))
	}
	if !p.Amount.IsPositive() {
		return nil, invalidField("amountReceived", "must be greater than zero")
	}
	received := p.ReceivedDate
	if received.IsZero() {
		received = l.Now()
	}
	received = DateOnly(received)

	var (
		out       *Agreement
		completed bool
	)
	err := l.Store.WithTx(ctx, func(s Store) error {
		a, err := loadAgreement(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.authorizeAgreement(ctx, s, actor, a, ActionRecordPayment); err != nil {
			return err
		}
		if a.IsTerminated() {
			return terminatedError()
		}
		inst := a.Installment(n)
		if !inst.HasProof() {
			return fmt.Errorf("installment %d: %w", n, ErrProofRequired)
		}

		wasCompleted := a.CompletionStatus == PaymentCompleted
		inst.AmountReceived = p.Amount
		inst.ReceivedDate = &received
		inst.Status = InstallmentPaid
		if p.Notes != "" {
			inst.Notes = p.Notes
		}
		RecomputeTotals(a)
		a.UpdatedAt = l.Now()
		if err := s.UpdateAgreement(ctx, a); err != nil {
			return err
		}
		completed = !wasCompleted && a.CompletionStatus == PaymentCompleted
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := []Event{l.event(EventPaymentRecorded, out, actor, map[string]string{
		"installment": fmt.Sprintf("%d", n),
		"amount":      p.Amount.String(),
	})}
	if completed {
		events = append(events, l.event(EventAgreementCompleted, out, actor, nil))
	}
	publishAll(ctx, l.Events, "Ledger", events...)
	return out, nil
}

// ValidateProofFile accepts PDF, PNG and JPEG by both extension and MIME type.
// An empty content type is checked by extension alone.
func ValidateProofFile(fileName, contentType string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	want, ok := proofTypes[ext]
	if !ok {
		return invalidField("file", fmt.Sprintf("unsupported file type %q", ext))
	}
	if contentType == "" {
		return nil
	}
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if mime != want {
		return invalidField("file", fmt.Sprintf("content type %q does not match %s", mime, ext))
	}
	return nil
}

// UploadInstallmentProof stores the blob and attaches its reference to
// installment n of the consultant's agreement.
func (l *Ledger) UploadInstallmentProof(ctx context.Context, actor Actor, id ConsultantID, n int, up ProofUpload) (*Agreement, error) {
	if n < 1 || n > InstallmentCount {
		return nil, invalidField("installment", fmt.Sprintf("must be between 1 and %d", InstallmentCount))
	}
	if up.Content == nil {
		return nil, missingFields("file")
	}
	if err := ValidateProofFile(up.FileName, up.ContentType); err != nil {
		return nil, err
	}

	// Check existence and permissions before the blob is written.
	c, err := loadConsultant(ctx, l.Store, id)
	if err != nil {
		return nil, err
	}
	if err := l.Gate.Authorize(ctx, actor, c, ActionUploadProof); err != nil {
		return nil, err
	}
	a, err := loadAgreementByConsultant(ctx, l.Store, id)
	if err != nil {
		return nil, err
	}
	if a.IsTerminated() {
		return nil, terminatedError()
	}

	name := fmt.Sprintf("%s-installment-%d%s", a.ID, n, strings.ToLower(filepath.Ext(up.FileName)))
	ref, err := l.Files.Store(ctx, up.Content, name)
	if err != nil {
		return nil, fmt.Errorf("failed to store proof: %w", err)
	}

	var out *Agreement
	err = l.Store.WithTx(ctx, func(s Store) error {
		a, err := loadAgreement(ctx, s, a.ID)
		if err != nil {
			return err
		}
		if a.IsTerminated() {
			return terminatedError()
		}
		a.Installment(n).ProofRef = ref
		a.UpdatedAt = l.Now()
		if err := s.UpdateAgreement(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		log.Printf("[Ledger] proof %s stored but not attached: %v", ref, err)
		return nil, err
	}
	return out, nil
}

// OpenProof returns the stored proof for installment n. The caller closes it.
func (l *Ledger) OpenProof(ctx context.Context, actor Actor, id ConsultantID, n int) (io.ReadCloser, error) {
	a, err := l.GetAgreement(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	inst := a.Installment(n)
	if inst == nil {
		return nil, invalidField("installment", fmt.Sprintf("must be between 1 and %d", InstallmentCount))
	}
	if !inst.HasProof() {
		return nil, fmt.Errorf("%w: installment %d", ErrProofNotFound, n)
	}
	return l.Files.Retrieve(ctx, inst.ProofRef)
}

// =============================================================================
// TERMINATION & DELETION
// =============================================================================

// RecordJobLost terminates the agreement. It is not repeatable.
func (l *Ledger) RecordJobLost(ctx context.Context, actor Actor, id AgreementID, jobLostDate time.Time) (*Agreement, error) {
	if jobLostDate.IsZero() {
		return nil, missingFields("jobLostDate")
	}
	lost := DateOnly(jobLostDate)

	var out *Agreement
	err := l.Store.WithTx(ctx, func(s Store) error {
		a, err := loadAgreement(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.authorizeAgreement(ctx, s, actor, a, ActionRecordJobLost); err != nil {
			return err
		}
		if a.IsTerminated() {
			return terminatedError()
		}
		a.JobLostDate = &lost
		a.CompletionStatus = PaymentTerminated
		a.UpdatedAt = l.Now()
		if err := s.UpdateAgreement(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Ledger", l.event(EventAgreementTerminated, out, actor,
		map[string]string{"job_lost_date": lost.Format(dateLayout)}))
	return out, nil
}

// DeleteAgreement removes the consultant's agreement and clears the
// job record's IsAgreement flag.
func (l *Ledger) DeleteAgreement(ctx context.Context, actor Actor, id ConsultantID) error {
	var deleted *Agreement
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionDeleteAgreement); err != nil {
			return err
		}
		a, err := loadAgreementByConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if _, err := s.DeleteAgreement(ctx, a.ID); err != nil {
			return fmt.Errorf("failed to delete agreement: %w", err)
		}
		jd, err := s.GetJobDetails(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load job details: %w", err)
		}
		if jd != nil && jd.IsAgreement {
			jd.IsAgreement = false
			jd.UpdatedAt = l.Now()
			if err := s.UpdateJobDetails(ctx, jd); err != nil {
				return err
			}
		}
		deleted = a
		return nil
	})
	if err != nil {
		return err
	}
	publishAll(ctx, l.Events, "Ledger", l.event(EventAgreementDeleted, deleted, actor, nil))
	return nil
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

// SweepOverdue marks pending installments due before asOf as overdue on every
// in-progress agreement. Each agreement is updated in its own transaction;
// a failure is logged and the sweep moves on. Returns how many installments
// changed.
func (l *Ledger) SweepOverdue(ctx context.Context, actor Actor, asOf time.Time) (int, error) {
	if err := l.Gate.Authorize(ctx, actor, nil, ActionSweepOverdue); err != nil {
		return 0, err
	}
	agreements, err := l.Store.ListAgreements(ctx, PaymentInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to list agreements: %w", err)
	}
	cutoff := DateOnly(asOf)

	total := 0
	for _, listed := range agreements {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		var (
			marked  []int
			updated *Agreement
		)
		err := l.Store.WithTx(ctx, func(s Store) error {
			a, err := loadAgreement(ctx, s, listed.ID)
			if err != nil {
				return err
			}
			if a.CompletionStatus != PaymentInProgress {
				return nil
			}
			marked = MarkOverdue(a, cutoff)
			if len(marked) == 0 {
				return nil
			}
			a.UpdatedAt = l.Now()
			updated = a
			return s.UpdateAgreement(ctx, a)
		})
		if err != nil {
			log.Printf("[Ledger] overdue sweep skipped agreement %s: %v", listed.ID, err)
			continue
		}
		total += len(marked)
		for _, n := range marked {
			publishAll(ctx, l.Events, "Ledger", l.event(EventInstallmentOverdue, updated, actor,
				map[string]string{"installment": fmt.Sprintf("%d", n)}))
		}
	}
	return total, nil
}

// =============================================================================
// PURE HELPERS
// =============================================================================

// RecomputeTotals rederives the running totals, next due date and completion
// status from the installments. A paid-off agreement has no next due date,
// even with unpaid installments left. A terminated agreement keeps its status.
func RecomputeTotals(a *Agreement) {
	paid := decimal.Zero
	var next *time.Time
	for i := range a.Installments {
		inst := &a.Installments[i]
		paid = paid.Add(inst.AmountReceived)
		if inst.Status != InstallmentPaid && (next == nil || inst.DueDate.Before(*next)) {
			due := inst.DueDate
			next = &due
		}
	}
	a.TotalPaidSoFar = paid
	a.RemainingBalance = a.TotalServiceFee.Sub(paid)
	if !a.RemainingBalance.IsPositive() {
		next = nil
	}
	a.NextDueDate = next
	if a.IsTerminated() {
		return
	}
	if !a.RemainingBalance.IsPositive() {
		a.CompletionStatus = PaymentCompleted
	} else {
		a.CompletionStatus = PaymentInProgress
	}
}

// MarkOverdue flips pending installments due strictly before cutoff to
// overdue and returns their 1-based numbers.
func MarkOverdue(a *Agreement, cutoff time.Time) []int {
	var marked []int
	for i := range a.Installments {
		inst := &a.Installments[i]
		if inst.Status == InstallmentPending && inst.DueDate.Before(cutoff) {
			inst.Status = InstallmentOverdue
			marked = append(marked, inst.Month)
		}
	}
	return marked
}

// authorizeAgreement runs the gate against the agreement's consultant.
func (l *Ledger) authorizeAgreement(ctx context.Context, s Store, actor Actor, a *Agreement, action Action) error {
	c, err := s.GetConsultant(ctx, a.ConsultantID)
	if err != nil {
		return fmt.Errorf("failed to load consultant: %w", err)
	}
	return l.Gate.Authorize(ctx, actor, c, action)
}

func (l *Ledger) event(t EventType, a *Agreement, actor Actor, data map[string]string) Event {
	if data == nil {
		data = map[string]string{}
	}
	data["agreement_id"] = string(a.ID)
	return Event{Type: t, ConsultantID: a.ConsultantID, ActorID: actor.ID, At: l.Now(), Data: data}
}

func terminatedError() error {
	return &StateError{
		Entity:   "agreement",
		Current:  string(PaymentTerminated),
		Required: "not terminated",
	}
}

func loadAgreement(ctx context.Context, s Store, id AgreementID) (*Agreement, error) {
	a, err := s.GetAgreement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load agreement: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgreementNotFound, id)
	}
	return a, nil
}

func loadAgreementByConsultant(ctx context.Context, s Store, id ConsultantID) (*Agreement, error) {
	a, err := s.GetAgreementByConsultant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load agreement: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w for consultant %s", ErrAgreementNotFound, id)
	}
	return a, nil
}
