/*
lifecycle.go - Placement Lifecycle Manager

PURPOSE:
  Orchestrates every write to Consultant and JobDetails. It is the only
  code that assigns Consultant.Flags, and it does so in the same store
  transaction as the JobDetails.PlacementStatus it projects from.

STATE MACHINE:
  ┌────────┐  CreateJobDetails   ┌────────┐  UpdatePlacementStatus  ┌──────────────┐
  │ NoJob  │ ──────────────────▶ │ Active │ ──────────────────────▶ │ Placed       │
  └────────┘                     └────────┘                         │ Hold         │
      ▲                              ▲                              │ OfferPending │
      │  DeleteJobDetails            │  UpdateAfterJobLost          └──────────────┘
      └──────────────────────────────┴──────────────────────────────────────┘

  The job-lost cycle is bounded by Consultant.JobLostCount <= MaxJobLostCount.

OPERATION SHAPE:
  1. Load the consultant (NotFound)
  2. Authorize through the gate (Unauthorized)
  3. Validate input (ValidationError) and state (Conflict / InvalidState)
  4. Derive fields with the pure functions (fees.go, status.go)
  5. Write every touched row inside one WithTx
  6. Publish events after commit

SEE ALSO:
  - status.go: ProjectFlags / ProjectIsJob
  - fees.go: DeriveFees
  - ledger.go: Agreement side of the cascade
*/
package placement

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

type Lifecycle struct {
	Store  TxStore
	Gate   Authorizer
	Events Publisher

	Now   func() time.Time
	NewID func() string
}

func NewLifecycle(store TxStore, gate Authorizer) *Lifecycle {
	return &Lifecycle{
		Store: store,
		Gate:  gate,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// =============================================================================
// INPUTS & VIEWS
// =============================================================================

type NewConsultant struct {
	Name       string
	Email      string
	Phone      string
	Technology string
	VisaStatus string
}

type NewJobDetails struct {
	CompanyName  string
	JobType      string
	DateOfOffer  time.Time
	TotalFees    *decimal.Decimal
	ReceivedFees *decimal.Decimal
}

// Reoffer describes the new company after a job loss.
type Reoffer struct {
	CompanyName string
	JobType     string
	DateOfOffer time.Time
}

type FeeUpdate struct {
	TotalFees    *decimal.Decimal
	ReceivedFees *decimal.Decimal
}

type WorkStatusUpdate struct {
	OpenForWork *bool
	BGVVerified *bool
}

// PlacementView pairs a job record with its consultant. When FeesVisible is
// false the fee amounts have been stripped and only the status remains.
type PlacementView struct {
	Consultant  Consultant
	JobDetails  JobDetails
	FeesVisible bool
}

// DeletionSummary reports what the DeleteJobDetails cascade removed.
type DeletionSummary struct {
	JobDetails        JobDetails
	InterviewsDeleted int
	AgreementDeleted  bool
}

// =============================================================================
// CONSULTANT OPERATIONS
// =============================================================================

// RegisterConsultant creates a consultant with no job. Its flags are the
// projection of "no status", which is IsActive.
func (l *Lifecycle) RegisterConsultant(ctx context.Context, actor Actor, in NewConsultant) (*Consultant, error) {
	if err := l.Gate.Authorize(ctx, actor, nil, ActionRegisterConsultant); err != nil {
		return nil, err
	}
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(in.Phone) == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return nil, missingFields(missing...)
	}

	now := l.Now()
	c := &Consultant{
		ID:                   ConsultantID(l.NewID()),
		Name:                 strings.TrimSpace(in.Name),
		Email:                strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:                in.Phone,
		Technology:           in.Technology,
		VisaStatus:           in.VisaStatus,
		Flags:                ProjectFlags(""),
		DocumentVerification: DocumentsPending,
		ResumeStatus:         ResumeNotBuilt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := l.Store.InsertConsultant(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to insert consultant: %w", err)
	}
	return c, nil
}

func (l *Lifecycle) GetConsultant(ctx context.Context, actor Actor, id ConsultantID) (*Consultant, error) {
	c, err := loadConsultant(ctx, l.Store, id)
	if err != nil {
		return nil, err
	}
	if err := l.Gate.Authorize(ctx, actor, c, ActionViewConsultant); err != nil {
		return nil, err
	}
	return c, nil
}

// ListConsultants returns the consultants the actor may view. Assignment
// scoped roles only see consultants they are assigned to.
func (l *Lifecycle) ListConsultants(ctx context.Context, actor Actor) ([]Consultant, error) {
	all, err := l.Store.ListConsultants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultants: %w", err)
	}
	visible := make([]Consultant, 0, len(all))
	for i := range all {
		if l.Gate.Authorize(ctx, actor, &all[i], ActionViewConsultant) == nil {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

// AssignStaff replaces the coordinator, secondary coordinator and team lead
// references. The resume builder slot is left alone.
func (l *Lifecycle) AssignStaff(ctx context.Context, actor Actor, id ConsultantID, a StaffAssignment) (*Consultant, error) {
	var out *Consultant
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionAssignStaff); err != nil {
			return err
		}
		now := l.Now()
		c.Assignment.CoordinatorID = a.CoordinatorID
		c.Assignment.Coordinator2ID = a.Coordinator2ID
		c.Assignment.TeamLeadID = a.TeamLeadID
		c.Assignment.AssignedAt = &now
		c.UpdatedAt = now
		if err := s.UpdateConsultant(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventStaffAssigned, id, actor, nil))
	return out, nil
}

func (l *Lifecycle) UpdateWorkStatus(ctx context.Context, actor Actor, id ConsultantID, u WorkStatusUpdate) (*Consultant, error) {
	if u.OpenForWork == nil && u.BGVVerified == nil {
		return nil, &ValidationError{Fields: []string{"openForWork", "bgvVerified"}, Message: "nothing to update"}
	}
	var out *Consultant
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionUpdateWorkStatus); err != nil {
			return err
		}
		if u.OpenForWork != nil {
			c.OpenForWork = *u.OpenForWork
		}
		if u.BGVVerified != nil {
			c.BGVVerified = *u.BGVVerified
		}
		c.UpdatedAt = l.Now()
		if err := s.UpdateConsultant(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// IncrementJobLostCount records one more job loss. The counter never
// decreases here and never passes MaxJobLostCount.
func (l *Lifecycle) IncrementJobLostCount(ctx context.Context, actor Actor, id ConsultantID) (*Consultant, error) {
	var out *Consultant
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionIncrementJobLost); err != nil {
			return err
		}
		if c.JobLostCount >= MaxJobLostCount {
			return &StateError{
				Entity:   "consultant job lost count",
				Current:  fmt.Sprintf("%d", c.JobLostCount),
				Required: fmt.Sprintf("below %d", MaxJobLostCount),
			}
		}
		c.JobLostCount++
		c.UpdatedAt = l.Now()
		if err := s.UpdateConsultant(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventJobLostIncremented, id, actor,
		map[string]string{"job_lost_count": fmt.Sprintf("%d", out.JobLostCount)}))
	return out, nil
}

// DeleteConsultant removes a consultant that has no placement. A consultant
// with job details or an agreement must be undone with DeleteJobDetails
// first. Leftover interview rows go with the consultant.
func (l *Lifecycle) DeleteConsultant(ctx context.Context, actor Actor, id ConsultantID) error {
	var interviews int
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionDeleteConsultant); err != nil {
			return err
		}
		jd, err := s.GetJobDetails(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check job details: %w", err)
		}
		agreement, err := s.GetAgreementByConsultant(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to look up agreement: %w", err)
		}
		if jd != nil || agreement != nil {
			return &StateError{Entity: "consultant", Current: "placed", Required: "no job details or agreement"}
		}

		if interviews, err = s.DeleteInterviewsByConsultant(ctx, id); err != nil {
			return fmt.Errorf("failed to delete interviews: %w", err)
		}
		return s.DeleteConsultant(ctx, id)
	})
	if err != nil {
		return err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventConsultantDeleted, id, actor,
		map[string]string{"interviews_deleted": fmt.Sprintf("%d", interviews)}))
	return nil
}

// =============================================================================
// JOB DETAILS OPERATIONS
// =============================================================================

// CreateJobDetails records a placement. The new record starts Active; fee
// fields are kept only when the actor may write fees.
func (l *Lifecycle) CreateJobDetails(ctx context.Context, actor Actor, id ConsultantID, in NewJobDetails) (*JobDetails, error) {
	var out *JobDetails
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionCreateJobDetails); err != nil {
			return err
		}
		if err := validateOffer(in.CompanyName, in.JobType, in.DateOfOffer); err != nil {
			return err
		}
		existing, err := s.GetJobDetails(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check job details: %w", err)
		}
		if existing != nil {
			return ErrJobDetailsExists
		}

		fees := Fees{Received: decimal.Zero, Status: FeesPending}
		if l.Gate.Authorize(ctx, actor, c, ActionWriteFees) == nil {
			if fees, err = applyFeeUpdate(fees, FeeUpdate{TotalFees: in.TotalFees, ReceivedFees: in.ReceivedFees}); err != nil {
				return err
			}
		}

		now := l.Now()
		jd := &JobDetails{
			ID:              JobDetailsID(l.NewID()),
			ConsultantID:    id,
			CompanyName:     strings.TrimSpace(in.CompanyName),
			JobType:         strings.TrimSpace(in.JobType),
			DateOfOffer:     DateOnly(in.DateOfOffer),
			PlacementStatus: StatusActive,
			Fees:            DeriveFees(fees),
			CreatedBy:       actor.ID,
			CreatedByName:   actor.Name,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		project(c, jd)
		if err := s.InsertJobDetails(ctx, jd); err != nil {
			return err
		}
		c.UpdatedAt = now
		if err := s.UpdateConsultant(ctx, c); err != nil {
			return err
		}
		out = jd
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventJobDetailsCreated, id, actor,
		map[string]string{"company": out.CompanyName, "status": string(out.PlacementStatus)}))
	return out, nil
}

func (l *Lifecycle) GetJobDetails(ctx context.Context, actor Actor, id ConsultantID) (*PlacementView, error) {
	c, err := loadConsultant(ctx, l.Store, id)
	if err != nil {
		return nil, err
	}
	if err := l.Gate.Authorize(ctx, actor, c, ActionViewJobDetails); err != nil {
		return nil, err
	}
	jd, err := loadJobDetails(ctx, l.Store, id)
	if err != nil {
		return nil, err
	}
	return l.view(ctx, actor, c, jd), nil
}

// ListPlacedJobDetails returns every live placement, newest offer first.
func (l *Lifecycle) ListPlacedJobDetails(ctx context.Context, actor Actor) ([]PlacementView, error) {
	if err := l.Gate.Authorize(ctx, actor, nil, ActionListPlacements); err != nil {
		return nil, err
	}
	jobs, err := l.Store.ListJobDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list job details: %w", err)
	}
	views := make([]PlacementView, 0, len(jobs))
	for i := range jobs {
		if !jobs[i].IsJob {
			continue
		}
		c, err := l.Store.GetConsultant(ctx, jobs[i].ConsultantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load consultant %s: %w", jobs[i].ConsultantID, err)
		}
		if c == nil {
			continue
		}
		views = append(views, *l.view(ctx, actor, c, &jobs[i]))
	}
	return views, nil
}

// UpdatePlacementStatus moves a live placement to newStatus and re-projects
// the consultant's flags in the same transaction.
func (l *Lifecycle) UpdatePlacementStatus(ctx context.Context, actor Actor, id ConsultantID, newStatus PlacementStatus) (*JobDetails, error) {
	if !newStatus.Valid() {
		return nil, invalidField("placementStatus", fmt.Sprintf("unknown placement status %q", newStatus))
	}
	var (
		out      *JobDetails
		previous PlacementStatus
	)
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, jd, err := loadPlacement(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionUpdatePlacementStatus); err != nil {
			return err
		}
		if !jd.IsJob {
			return &StateError{Entity: "job details", Current: "closed (isJob=false)", Required: "a live job (isJob=true)"}
		}
		previous = jd.PlacementStatus
		now := l.Now()
		jd.PlacementStatus = newStatus
		jd.UpdatedAt = now
		c.UpdatedAt = now
		if err := writePlacement(ctx, s, c, jd); err != nil {
			return err
		}
		out = jd
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventPlacementChanged, id, actor,
		map[string]string{"from": string(previous), "to": string(newStatus)}))
	return out, nil
}

// DeleteJobDetails fully undoes a placement. Interviews, the agreement and
// the job record are removed and the consultant is reset, all in one
// transaction. A missing agreement is not an error.
func (l *Lifecycle) DeleteJobDetails(ctx context.Context, actor Actor, id ConsultantID) (*DeletionSummary, error) {
	summary := &DeletionSummary{}
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, jd, err := loadPlacement(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionDeleteJobDetails); err != nil {
			return err
		}

		n, err := s.DeleteInterviewsByConsultant(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to delete interviews: %w", err)
		}
		summary.InterviewsDeleted = n

		agreement, err := s.GetAgreementByJobDetails(ctx, jd.ID)
		if err != nil {
			return fmt.Errorf("failed to look up agreement: %w", err)
		}
		if agreement == nil {
			if agreement, err = s.GetAgreementByConsultant(ctx, id); err != nil {
				return fmt.Errorf("failed to look up agreement: %w", err)
			}
		}
		if agreement != nil {
			deleted, err := s.DeleteAgreement(ctx, agreement.ID)
			if err != nil {
				return fmt.Errorf("failed to delete agreement: %w", err)
			}
			summary.AgreementDeleted = deleted
		} else {
			log.Printf("[Lifecycle] no agreement to delete for consultant %s", id)
		}

		if err := s.DeleteJobDetails(ctx, jd.ID); err != nil {
			return fmt.Errorf("failed to delete job details: %w", err)
		}

		c.Flags = ProjectFlags("")
		c.JobLostCount = 0
		c.Assignment.CoordinatorID = nil
		c.Assignment.Coordinator2ID = nil
		c.Assignment.TeamLeadID = nil
		c.Assignment.AssignedAt = nil
		c.UpdatedAt = l.Now()
		if err := s.UpdateConsultant(ctx, c); err != nil {
			return err
		}
		summary.JobDetails = *jd
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventJobDetailsDeleted, id, actor,
		map[string]string{"interviews_deleted": fmt.Sprintf("%d", summary.InterviewsDeleted)}))
	return summary, nil
}

// UpdateAfterJobLost reopens the pipeline on a new company. Fee history is
// kept and JobLostCount is not touched; see IncrementJobLostCount.
func (l *Lifecycle) UpdateAfterJobLost(ctx context.Context, actor Actor, id ConsultantID, in Reoffer) (*JobDetails, error) {
	if err := validateOffer(in.CompanyName, in.JobType, in.DateOfOffer); err != nil {
		return nil, err
	}
	var out *JobDetails
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, jd, err := loadPlacement(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, ActionReopenAfterJobLost); err != nil {
			return err
		}
		now := l.Now()
		jd.CompanyName = strings.TrimSpace(in.CompanyName)
		jd.JobType = strings.TrimSpace(in.JobType)
		jd.DateOfOffer = DateOnly(in.DateOfOffer)
		jd.PlacementStatus = StatusActive
		jd.IsAgreement = false
		jd.UpdatedAt = now
		c.UpdatedAt = now
		if err := writePlacement(ctx, s, c, jd); err != nil {
			return err
		}
		out = jd
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventPipelineReopened, id, actor,
		map[string]string{"company": out.CompanyName}))
	return out, nil
}

// ResetFees zeroes the fee triple. Calling it twice yields the same state.
func (l *Lifecycle) ResetFees(ctx context.Context, actor Actor, id ConsultantID) (*JobDetails, error) {
	return l.writeFees(ctx, actor, id, ActionResetFees, func(Fees) (Fees, error) {
		return ZeroFees(), nil
	})
}

// UpdateFees sets total and/or received fees and rederives the rest.
func (l *Lifecycle) UpdateFees(ctx context.Context, actor Actor, id ConsultantID, u FeeUpdate) (*JobDetails, error) {
	if u.TotalFees == nil && u.ReceivedFees == nil {
		return nil, &ValidationError{Fields: []string{"totalFees", "receivedFees"}, Message: "nothing to update"}
	}
	return l.writeFees(ctx, actor, id, ActionWriteFees, func(f Fees) (Fees, error) {
		return applyFeeUpdate(f, u)
	})
}

func (l *Lifecycle) writeFees(ctx context.Context, actor Actor, id ConsultantID, action Action, change func(Fees) (Fees, error)) (*JobDetails, error) {
	var out *JobDetails
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, jd, err := loadPlacement(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, action); err != nil {
			return err
		}
		fees, err := change(jd.Fees)
		if err != nil {
			return err
		}
		jd.Fees = DeriveFees(fees)
		jd.UpdatedAt = l.Now()
		if err := s.UpdateJobDetails(ctx, jd); err != nil {
			return err
		}
		out = jd
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(EventFeesChanged, id, actor,
		map[string]string{"fees_status": string(out.Fees.Status)}))
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// project derives the job flag and the consultant flags from the job's
// placement status. It is the single write path for Consultant.Flags while
// a job record exists.
func project(c *Consultant, jd *JobDetails) {
	jd.IsJob = ProjectIsJob(jd.PlacementStatus)
	c.Flags = ProjectFlags(jd.PlacementStatus)
}

// writePlacement persists a status change on both rows.
func writePlacement(ctx context.Context, s Store, c *Consultant, jd *JobDetails) error {
	project(c, jd)
	if err := s.UpdateJobDetails(ctx, jd); err != nil {
		return err
	}
	return s.UpdateConsultant(ctx, c)
}

func (l *Lifecycle) view(ctx context.Context, actor Actor, c *Consultant, jd *JobDetails) *PlacementView {
	v := &PlacementView{Consultant: *c, JobDetails: *jd}
	v.FeesVisible = l.Gate.Authorize(ctx, actor, c, ActionViewFees) == nil
	if !v.FeesVisible {
		v.JobDetails.Fees = Fees{Received: decimal.Zero, Status: jd.Fees.Status}
	}
	return v
}

func (l *Lifecycle) event(t EventType, id ConsultantID, actor Actor, data map[string]string) Event {
	return Event{Type: t, ConsultantID: id, ActorID: actor.ID, At: l.Now(), Data: data}
}

func applyFeeUpdate(f Fees, u FeeUpdate) (Fees, error) {
	if u.TotalFees != nil {
		if u.TotalFees.IsNegative() {
			return f, invalidField("totalFees", "must not be negative")
		}
		total := *u.TotalFees
		f.Total = &total
	}
	if u.ReceivedFees != nil {
		if u.ReceivedFees.IsNegative() {
			return f, invalidField("receivedFees", "must not be negative")
		}
		f.Received = *u.ReceivedFees
	}
	return f, nil
}

func validateOffer(company, jobType string, dateOfOffer time.Time) error {
	var missing []string
	if strings.TrimSpace(company) == "" {
		missing = append(missing, "companyName")
	}
	if strings.TrimSpace(jobType) == "" {
		missing = append(missing, "jobType")
	}
	if dateOfOffer.IsZero() {
		missing = append(missing, "dateOfOffer")
	}
	if len(missing) > 0 {
		return missingFields(missing...)
	}
	return nil
}

func loadConsultant(ctx context.Context, s Store, id ConsultantID) (*Consultant, error) {
	c, err := s.GetConsultant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load consultant: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrConsultantNotFound, id)
	}
	return c, nil
}

func loadJobDetails(ctx context.Context, s Store, id ConsultantID) (*JobDetails, error) {
	jd, err := s.GetJobDetails(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job details: %w", err)
	}
	if jd == nil {
		return nil, fmt.Errorf("%w for consultant %s", ErrJobDetailsNotFound, id)
	}
	return jd, nil
}

func loadPlacement(ctx context.Context, s Store, id ConsultantID) (*Consultant, *JobDetails, error) {
	c, err := loadConsultant(ctx, s, id)
	if err != nil {
		return nil, nil, err
	}
	jd, err := loadJobDetails(ctx, s, id)
	if err != nil {
		return nil, nil, err
	}
	return c, jd, nil
}
