/*
store.go - Persistence interface for consultants, placements and agreements

PURPOSE:
  Defines the interface between the placement engine and the database.
  Implementations: placement/store/memory.go (tests, dev) and
  store/sqlstore (SQLite / PostgreSQL).

READ CONTRACT:
  Get* methods return (nil, nil) when the row does not exist. The engine
  turns absence into the right NotFound error for the operation.

OPTIMISTIC LOCKING:
  Update* methods write only if the stored version equals the version on the
  value passed in, then bump the value's Version. A mismatch returns
  ErrConcurrentModification and writes nothing.

ATOMIC OPERATIONS:
  TxStore.WithTx runs fn against a transactional view. If fn returns an
  error every write made through the view is rolled back. Every operation
  that touches more than one row goes through WithTx.
*/
package placement

import "context"

// =============================================================================
// STORE - Interfaces per entity, composed into Store
// =============================================================================

type ConsultantStore interface {
	InsertConsultant(ctx context.Context, c *Consultant) error
	GetConsultant(ctx context.Context, id ConsultantID) (*Consultant, error)
	ListConsultants(ctx context.Context) ([]Consultant, error)
	UpdateConsultant(ctx context.Context, c *Consultant) error
	DeleteConsultant(ctx context.Context, id ConsultantID) error
}

type JobDetailsStore interface {
	InsertJobDetails(ctx context.Context, jd *JobDetails) error
	GetJobDetails(ctx context.Context, consultantID ConsultantID) (*JobDetails, error)
	ListJobDetails(ctx context.Context) ([]JobDetails, error)
	UpdateJobDetails(ctx context.Context, jd *JobDetails) error
	DeleteJobDetails(ctx context.Context, id JobDetailsID) error
}

type AgreementStore interface {
	InsertAgreement(ctx context.Context, a *Agreement) error
	GetAgreement(ctx context.Context, id AgreementID) (*Agreement, error)
	GetAgreementByJobDetails(ctx context.Context, id JobDetailsID) (*Agreement, error)
	GetAgreementByConsultant(ctx context.Context, id ConsultantID) (*Agreement, error)
	// FindAgreementByIdentity matches on consultant name and email.
	FindAgreementByIdentity(ctx context.Context, name, email string) (*Agreement, error)
	ListAgreements(ctx context.Context, status CompletionStatus) ([]Agreement, error)
	UpdateAgreement(ctx context.Context, a *Agreement) error
	// DeleteAgreement returns false when there was nothing to delete.
	DeleteAgreement(ctx context.Context, id AgreementID) (bool, error)
}

type InterviewStore interface {
	InsertInterview(ctx context.Context, iv InterviewSchedule) error
	ListInterviews(ctx context.Context, consultantID ConsultantID) ([]InterviewSchedule, error)
	DeleteInterviewsByConsultant(ctx context.Context, consultantID ConsultantID) (int, error)
}

type Store interface {
	ConsultantStore
	JobDetailsStore
	AgreementStore
	InterviewStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
