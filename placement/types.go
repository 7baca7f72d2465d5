/*
Package placement provides the consultant placement engine.

PURPOSE:
  This package owns the placement/fee/agreement state machine. It keeps three
  linked records consistent while staff mutate them:

    Consultant ──1:1── JobDetails ──1:1── Agreement (8 EMI installments)

  JobDetails.PlacementStatus is the single authoritative placement status.
  Consultant.Flags is a projection of it, written only by the Lifecycle
  manager in the same store transaction as the status itself.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: ConsultantID, JobDetailsID, AgreementID, StaffID
  - Consultant: a person moving through the pipeline
  - JobDetails: the live placement record, including the fee triple
  - Agreement: the 8-installment service-fee repayment plan
  - InterviewSchedule: collaborator-owned rows the core cascades over

DESIGN PRINCIPLES:
  1. Derived fields are computed by pure functions (fees.go, schedule.go,
     status.go) at one call site per operation, never by hooks.
  2. Money uses decimal.Decimal so fee arithmetic is exact.
  3. Every mutable record carries a Version used for optimistic locking.

SEE ALSO:
  - lifecycle.go: Placement Lifecycle Manager
  - ledger.go: Agreement/Payment Ledger
  - store.go: Persistence contract
*/
package placement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ConsultantID string
type JobDetailsID string
type AgreementID string
type InterviewID string
type StaffID string

// =============================================================================
// CONSULTANT
// =============================================================================

type DocumentVerificationStatus string

const (
	DocumentsPending  DocumentVerificationStatus = "pending"
	DocumentsVerified DocumentVerificationStatus = "verified"
	DocumentsRejected DocumentVerificationStatus = "rejected"
)

type ResumeStatus string

const (
	ResumeNotBuilt ResumeStatus = "not_built"
	ResumeAccepted ResumeStatus = "accepted"
	ResumeRejected ResumeStatus = "rejected"
)

// MaxJobLostCount bounds how many times a consultant may cycle through job loss.
const MaxJobLostCount = 2

// StaffAssignment holds weak references to staff identities. Nil means unassigned.
type StaffAssignment struct {
	CoordinatorID   *StaffID
	Coordinator2ID  *StaffID
	TeamLeadID      *StaffID
	ResumeBuilderID *StaffID
	AssignedAt      *time.Time
}

type Consultant struct {
	ID         ConsultantID
	Name       string
	Email      string
	Phone      string
	Technology string
	VisaStatus string

	// Flags is a projection of JobDetails.PlacementStatus. See status.go.
	Flags PlacementFlags

	JobLostCount         int
	OpenForWork          bool
	BGVVerified          bool
	DocumentVerification DocumentVerificationStatus
	Assignment           StaffAssignment
	ResumeStatus         ResumeStatus

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// JOB DETAILS
// =============================================================================

type FeesStatus string

const (
	FeesPending   FeesStatus = "pending"
	FeesPartial   FeesStatus = "partial"
	FeesCompleted FeesStatus = "completed"
)

// Fees is the fee triple on a JobDetails record. Remaining and Status are
// derived by DeriveFees and are never assigned directly.
type Fees struct {
	Total     *decimal.Decimal
	Received  decimal.Decimal
	Remaining *decimal.Decimal
	Status    FeesStatus
}

type JobDetails struct {
	ID           JobDetailsID
	ConsultantID ConsultantID
	CompanyName  string
	JobType      string
	DateOfOffer  time.Time

	IsJob           bool
	PlacementStatus PlacementStatus
	Fees            Fees
	IsAgreement     bool

	CreatedBy     StaffID
	CreatedByName string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// AGREEMENT
// =============================================================================

// InstallmentCount is the fixed length of every EMI plan.
const InstallmentCount = 8

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

type CompletionStatus string

const (
	PaymentInProgress CompletionStatus = "in_progress"
	PaymentCompleted  CompletionStatus = "completed"
	PaymentTerminated CompletionStatus = "terminated"
)

type Installment struct {
	Month          int
	DueDate        time.Time
	AmountReceived decimal.Decimal
	ReceivedDate   *time.Time
	Status         InstallmentStatus
	Notes          string
	ProofRef       string
}

func (i Installment) HasProof() bool { return i.ProofRef != "" }

type Agreement struct {
	ID             AgreementID
	JobDetailsID   JobDetailsID
	ConsultantID   ConsultantID
	ConsultantName string
	Email          string
	Phone          string
	JobStartDate   time.Time

	TotalSalary          decimal.Decimal
	TotalServiceFee      decimal.Decimal
	MonthlyPaymentAmount decimal.Decimal
	EMIDay               int
	Remarks              string

	Installments [InstallmentCount]Installment

	NextDueDate      *time.Time
	TotalPaidSoFar   decimal.Decimal
	RemainingBalance decimal.Decimal
	CompletionStatus CompletionStatus
	JobLostDate      *time.Time

	CreatedBy StaffID
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Installment returns a pointer to the 1-based installment n, or nil when n is
// outside 1..InstallmentCount.
func (a *Agreement) Installment(n int) *Installment {
	if n < 1 || n > InstallmentCount {
		return nil
	}
	return &a.Installments[n-1]
}

func (a *Agreement) IsTerminated() bool { return a.CompletionStatus == PaymentTerminated }

// =============================================================================
// INTERVIEW SCHEDULE (collaborator-owned)
// =============================================================================

type InterviewSchedule struct {
	ID           InterviewID
	ConsultantID ConsultantID
	CompanyName  string
	Date         time.Time
	Round        string
	Status       string
	CreatedAt    time.Time
}
