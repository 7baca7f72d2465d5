/*
Package sqlstore provides a database/sql implementation of placement.TxStore.

PURPOSE:
  Persists consultants, job details, agreements and interview schedules in
  SQLite (mattn/go-sqlite3) or PostgreSQL (lib/pq). Queries are written with
  "?" placeholders and rebound to "$n" for PostgreSQL; the schema is plain
  enough to run unchanged on both.

KEY TABLES:
  consultants:          identity, placement flags, staff assignment
  job_details:          one row per consultant (UNIQUE consultant_id)
  agreements:           one row per job record (UNIQUE job_details_id),
                        installments stored as a JSON array
  interview_schedules:  rows removed by the DeleteJobDetails and
                        DeleteConsultant cascades

STORAGE FORMATS:
  - Money is TEXT holding decimal.Decimal.String(), so no float rounding
  - Timestamps are RFC 3339 TEXT in UTC
  - version INTEGER backs optimistic locking on every Update*

CONCURRENCY:
  No in-process locking. WithTx opens a database transaction and hands fn a
  view bound to it. For SQLite the pool is limited to one connection, which
  serializes writers and keeps ":memory:" databases on a single handle.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./data/placement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - placement/store.go: Interface definitions
  - placement/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/placement-engine/placement"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements placement.TxStore.
type Store struct {
	conn
	db *sql.DB
}

// conn carries the query methods shared by Store and its transaction view.
type conn struct {
	q      queryer
	driver string
}

// Open connects with driver ("sqlite3" or "postgres") and migrates the schema.
// Use ":memory:" as the SQLite DSN for an in-memory database.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Store{conn: conn{q: db, driver: driver}, db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS consultants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			technology TEXT NOT NULL DEFAULT '',
			visa_status TEXT NOT NULL DEFAULT '',
			is_placed BOOLEAN NOT NULL DEFAULT FALSE,
			is_hold BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_offer_pending BOOLEAN NOT NULL DEFAULT FALSE,
			job_lost_count INTEGER NOT NULL DEFAULT 0 CHECK (job_lost_count BETWEEN 0 AND 2),
			open_for_work BOOLEAN NOT NULL DEFAULT FALSE,
			bgv_verified BOOLEAN NOT NULL DEFAULT FALSE,
			document_verification TEXT NOT NULL DEFAULT 'pending',
			coordinator_id TEXT,
			coordinator2_id TEXT,
			team_lead_id TEXT,
			resume_builder_id TEXT,
			assigned_at TEXT,
			resume_status TEXT NOT NULL DEFAULT 'not_built',
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_details (
			id TEXT PRIMARY KEY,
			consultant_id TEXT NOT NULL UNIQUE REFERENCES consultants(id),
			company_name TEXT NOT NULL,
			job_type TEXT NOT NULL,
			date_of_offer TEXT NOT NULL,
			is_job BOOLEAN NOT NULL,
			placement_status TEXT NOT NULL,
			total_fees TEXT,
			received_fees TEXT NOT NULL DEFAULT '0',
			remaining_fees TEXT,
			fees_status TEXT NOT NULL DEFAULT 'pending',
			is_agreement BOOLEAN NOT NULL DEFAULT FALSE,
			created_by TEXT NOT NULL,
			created_by_name TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agreements (
			id TEXT PRIMARY KEY,
			job_details_id TEXT NOT NULL UNIQUE REFERENCES job_details(id),
			consultant_id TEXT NOT NULL,
			consultant_name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			job_start_date TEXT NOT NULL,
			total_salary TEXT NOT NULL,
			total_service_fee TEXT NOT NULL,
			monthly_payment_amount TEXT NOT NULL,
			emi_day INTEGER NOT NULL,
			remarks TEXT NOT NULL DEFAULT '',
			installments_json TEXT NOT NULL,
			next_due_date TEXT,
			total_paid_so_far TEXT NOT NULL,
			remaining_balance TEXT NOT NULL,
			completion_status TEXT NOT NULL,
			job_lost_date TEXT,
			created_by TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agreements_consultant ON agreements(consultant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_agreements_identity ON agreements(consultant_name, email)`,
		`CREATE INDEX IF NOT EXISTS idx_agreements_status ON agreements(completion_status)`,
		`CREATE TABLE IF NOT EXISTS interview_schedules (
			id TEXT PRIMARY KEY,
			consultant_id TEXT NOT NULL REFERENCES consultants(id),
			company_name TEXT NOT NULL,
			interview_date TEXT NOT NULL,
			round TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interviews_consultant ON interview_schedules(consultant_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (placement.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(placement.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, driver: s.driver}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// CONSULTANTS
// =============================================================================

const consultantColumns = `id, name, email, phone, technology, visa_status,
	is_placed, is_hold, is_active, is_offer_pending, job_lost_count,
	open_for_work, bgv_verified, document_verification,
	coordinator_id, coordinator2_id, team_lead_id, resume_builder_id, assigned_at,
	resume_status, version, created_at, updated_at`

func (c *conn) InsertConsultant(ctx context.Context, x *placement.Consultant) error {
	x.Version = 1
	a := x.Assignment
	_, err := c.exec(ctx, `INSERT INTO consultants (`+consultantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		x.ID, x.Name, x.Email, x.Phone, x.Technology, x.VisaStatus,
		x.Flags.IsPlaced, x.Flags.IsHold, x.Flags.IsActive, x.Flags.IsOfferPending, x.JobLostCount,
		x.OpenForWork, x.BGVVerified, x.DocumentVerification,
		staffRef(a.CoordinatorID), staffRef(a.Coordinator2ID), staffRef(a.TeamLeadID), staffRef(a.ResumeBuilderID),
		nullTime(a.AssignedAt), x.ResumeStatus, x.Version, formatTime(x.CreatedAt), formatTime(x.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("consultant %s: %w", x.ID, placement.ErrConflict)
		}
		return fmt.Errorf("failed to insert consultant: %w", err)
	}
	return nil
}

func (c *conn) GetConsultant(ctx context.Context, id placement.ConsultantID) (*placement.Consultant, error) {
	row := c.queryRow(ctx, `SELECT `+consultantColumns+` FROM consultants WHERE id = ?`, id)
	x, err := scanConsultant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return x, err
}

func (c *conn) ListConsultants(ctx context.Context) ([]placement.Consultant, error) {
	rows, err := c.query(ctx, `SELECT `+consultantColumns+` FROM consultants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query consultants: %w", err)
	}
	defer rows.Close()

	var out []placement.Consultant
	for rows.Next() {
		x, err := scanConsultant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *x)
	}
	return out, rows.Err()
}

func (c *conn) UpdateConsultant(ctx context.Context, x *placement.Consultant) error {
	a := x.Assignment
	res, err := c.exec(ctx, `UPDATE consultants SET
			name = ?, email = ?, phone = ?, technology = ?, visa_status = ?,
			is_placed = ?, is_hold = ?, is_active = ?, is_offer_pending = ?, job_lost_count = ?,
			open_for_work = ?, bgv_verified = ?, document_verification = ?,
			coordinator_id = ?, coordinator2_id = ?, team_lead_id = ?, resume_builder_id = ?, assigned_at = ?,
			resume_status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		x.Name, x.Email, x.Phone, x.Technology, x.VisaStatus,
		x.Flags.IsPlaced, x.Flags.IsHold, x.Flags.IsActive, x.Flags.IsOfferPending, x.JobLostCount,
		x.OpenForWork, x.BGVVerified, x.DocumentVerification,
		staffRef(a.CoordinatorID), staffRef(a.Coordinator2ID), staffRef(a.TeamLeadID), staffRef(a.ResumeBuilderID),
		nullTime(a.AssignedAt), x.ResumeStatus, formatTime(x.UpdatedAt),
		x.ID, x.Version,
	)
	if err := c.checkVersioned(ctx, res, err, "consultants", string(x.ID), placement.ErrConsultantNotFound); err != nil {
		return err
	}
	x.Version++
	return nil
}

func (c *conn) DeleteConsultant(ctx context.Context, id placement.ConsultantID) error {
	res, err := c.exec(ctx, `DELETE FROM consultants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete consultant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", placement.ErrConsultantNotFound, id)
	}
	return nil
}

func scanConsultant(r scanner) (*placement.Consultant, error) {
	var (
		x                            placement.Consultant
		coord, coord2, lead, builder sql.NullString
		assignedAt                   sql.NullString
		createdAt, updatedAt         string
	)
	err := r.Scan(
		&x.ID, &x.Name, &x.Email, &x.Phone, &x.Technology, &x.VisaStatus,
		&x.Flags.IsPlaced, &x.Flags.IsHold, &x.Flags.IsActive, &x.Flags.IsOfferPending, &x.JobLostCount,
		&x.OpenForWork, &x.BGVVerified, &x.DocumentVerification,
		&coord, &coord2, &lead, &builder, &assignedAt,
		&x.ResumeStatus, &x.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan consultant: %w", err)
	}

	var d decoder
	x.Assignment = placement.StaffAssignment{
		CoordinatorID:   staffPtr(coord),
		Coordinator2ID:  staffPtr(coord2),
		TeamLeadID:      staffPtr(lead),
		ResumeBuilderID: staffPtr(builder),
		AssignedAt:      d.nullTime(assignedAt),
	}
	x.CreatedAt = d.time(createdAt)
	x.UpdatedAt = d.time(updatedAt)
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode consultant %s: %w", x.ID, d.err)
	}
	return &x, nil
}

// =============================================================================
// JOB DETAILS
// =============================================================================

const jobDetailsColumns = `id, consultant_id, company_name, job_type, date_of_offer,
	is_job, placement_status, total_fees, received_fees, remaining_fees, fees_status,
	is_agreement, created_by, created_by_name, version, created_at, updated_at`

func (c *conn) InsertJobDetails(ctx context.Context, jd *placement.JobDetails) error {
	jd.Version = 1
	_, err := c.exec(ctx, `INSERT INTO job_details (`+jobDetailsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jd.ID, jd.ConsultantID, jd.CompanyName, jd.JobType, formatTime(jd.DateOfOffer),
		jd.IsJob, jd.PlacementStatus, nullDecimal(jd.Fees.Total), jd.Fees.Received.String(),
		nullDecimal(jd.Fees.Remaining), jd.Fees.Status,
		jd.IsAgreement, jd.CreatedBy, jd.CreatedByName, jd.Version,
		formatTime(jd.CreatedAt), formatTime(jd.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return placement.ErrJobDetailsExists
		}
		return fmt.Errorf("failed to insert job details: %w", err)
	}
	return nil
}

func (c *conn) GetJobDetails(ctx context.Context, id placement.ConsultantID) (*placement.JobDetails, error) {
	row := c.queryRow(ctx, `SELECT `+jobDetailsColumns+` FROM job_details WHERE consultant_id = ?`, id)
	jd, err := scanJobDetails(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return jd, err
}

func (c *conn) ListJobDetails(ctx context.Context) ([]placement.JobDetails, error) {
	rows, err := c.query(ctx, `SELECT `+jobDetailsColumns+` FROM job_details ORDER BY date_of_offer DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job details: %w", err)
	}
	defer rows.Close()

	var out []placement.JobDetails
	for rows.Next() {
		jd, err := scanJobDetails(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *jd)
	}
	return out, rows.Err()
}

func (c *conn) UpdateJobDetails(ctx context.Context, jd *placement.JobDetails) error {
	res, err := c.exec(ctx, `UPDATE job_details SET
			company_name = ?, job_type = ?, date_of_offer = ?,
			is_job = ?, placement_status = ?,
			total_fees = ?, received_fees = ?, remaining_fees = ?, fees_status = ?,
			is_agreement = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		jd.CompanyName, jd.JobType, formatTime(jd.DateOfOffer),
		jd.IsJob, jd.PlacementStatus,
		nullDecimal(jd.Fees.Total), jd.Fees.Received.String(), nullDecimal(jd.Fees.Remaining), jd.Fees.Status,
		jd.IsAgreement, formatTime(jd.UpdatedAt),
		jd.ID, jd.Version,
	)
	if err := c.checkVersioned(ctx, res, err, "job_details", string(jd.ID), placement.ErrJobDetailsNotFound); err != nil {
		return err
	}
	jd.Version++
	return nil
}

func (c *conn) DeleteJobDetails(ctx context.Context, id placement.JobDetailsID) error {
	res, err := c.exec(ctx, `DELETE FROM job_details WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job details: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", placement.ErrJobDetailsNotFound, id)
	}
	return nil
}

func scanJobDetails(r scanner) (*placement.JobDetails, error) {
	var (
		jd                   placement.JobDetails
		dateOfOffer          string
		total, remaining     sql.NullString
		received             string
		createdAt, updatedAt string
	)
	err := r.Scan(
		&jd.ID, &jd.ConsultantID, &jd.CompanyName, &jd.JobType, &dateOfOffer,
		&jd.IsJob, &jd.PlacementStatus, &total, &received, &remaining, &jd.Fees.Status,
		&jd.IsAgreement, &jd.CreatedBy, &jd.CreatedByName, &jd.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job details: %w", err)
	}

	var d decoder
	jd.DateOfOffer = d.time(dateOfOffer)
	jd.Fees.Total = d.nullDecimal(total)
	jd.Fees.Received = d.decimal(received)
	jd.Fees.Remaining = d.nullDecimal(remaining)
	jd.CreatedAt = d.time(createdAt)
	jd.UpdatedAt = d.time(updatedAt)
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode job details %s: %w", jd.ID, d.err)
	}
	return &jd, nil
}

// =============================================================================
// AGREEMENTS
// =============================================================================

const agreementColumns = `id, job_details_id, consultant_id, consultant_name, email, phone,
	job_start_date, total_salary, total_service_fee, monthly_payment_amount, emi_day, remarks,
	installments_json, next_due_date, total_paid_so_far, remaining_balance, completion_status,
	job_lost_date, created_by, version, created_at, updated_at`

// installmentRecord is the JSON shape of one installment in installments_json.
type installmentRecord struct {
	Month          int             `json:"month"`
	DueDate        string          `json:"due_date"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	ReceivedDate   *string         `json:"received_date,omitempty"`
	Status         string          `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	ProofRef       string          `json:"proof_ref,omitempty"`
}

func (c *conn) InsertAgreement(ctx context.Context, a *placement.Agreement) error {
	installments, err := encodeInstallments(a.Installments)
	if err != nil {
		return err
	}
	a.Version = 1
	_, err = c.exec(ctx, `INSERT INTO agreements (`+agreementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.JobDetailsID, a.ConsultantID, a.ConsultantName, a.Email, a.Phone,
		formatTime(a.JobStartDate), a.TotalSalary.String(), a.TotalServiceFee.String(),
		a.MonthlyPaymentAmount.String(), a.EMIDay, a.Remarks,
		installments, nullTime(a.NextDueDate), a.TotalPaidSoFar.String(), a.RemainingBalance.String(),
		a.CompletionStatus, nullTime(a.JobLostDate), a.CreatedBy, a.Version,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return placement.ErrAgreementExists
		}
		return fmt.Errorf("failed to insert agreement: %w", err)
	}
	return nil
}

func (c *conn) GetAgreement(ctx context.Context, id placement.AgreementID) (*placement.Agreement, error) {
	return c.getAgreement(ctx, `id = ?`, id)
}

func (c *conn) GetAgreementByJobDetails(ctx context.Context, id placement.JobDetailsID) (*placement.Agreement, error) {
	return c.getAgreement(ctx, `job_details_id = ?`, id)
}

func (c *conn) GetAgreementByConsultant(ctx context.Context, id placement.ConsultantID) (*placement.Agreement, error) {
	return c.getAgreement(ctx, `consultant_id = ?`, id)
}

func (c *conn) FindAgreementByIdentity(ctx context.Context, name, email string) (*placement.Agreement, error) {
	return c.getAgreement(ctx, `consultant_name = ? AND LOWER(email) = LOWER(?)`, name, email)
}

func (c *conn) getAgreement(ctx context.Context, where string, args ...any) (*placement.Agreement, error) {
	row := c.queryRow(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE `+where+` LIMIT 1`, args...)
	a, err := scanAgreement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListAgreements returns agreements with the given status, or all when status is empty.
func (c *conn) ListAgreements(ctx context.Context, status placement.CompletionStatus) ([]placement.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements`
	var args []any
	if status != "" {
		query += ` WHERE completion_status = ?`
		args = append(args, status)
	}
	rows, err := c.query(ctx, query+` ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agreements: %w", err)
	}
	defer rows.Close()

	var out []placement.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (c *conn) UpdateAgreement(ctx context.Context, a *placement.Agreement) error {
	installments, err := encodeInstallments(a.Installments)
	if err != nil {
		return err
	}
	res, err := c.exec(ctx, `UPDATE agreements SET
			remarks = ?, installments_json = ?, next_due_date = ?,
			total_paid_so_far = ?, remaining_balance = ?, completion_status = ?,
			job_lost_date = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		a.Remarks, installments, nullTime(a.NextDueDate),
		a.TotalPaidSoFar.String(), a.RemainingBalance.String(), a.CompletionStatus,
		nullTime(a.JobLostDate), formatTime(a.UpdatedAt),
		a.ID, a.Version,
	)
	if err := c.checkVersioned(ctx, res, err, "agreements", string(a.ID), placement.ErrAgreementNotFound); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (c *conn) DeleteAgreement(ctx context.Context, id placement.AgreementID) (bool, error) {
	res, err := c.exec(ctx, `DELETE FROM agreements WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete agreement: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanAgreement(r scanner) (*placement.Agreement, error) {
	var (
		a                              placement.Agreement
		jobStart, salary, fee, monthly string
		installments                   string
		nextDue, jobLost               sql.NullString
		paid, remaining                string
		createdAt, updatedAt           string
	)
	err := r.Scan(
		&a.ID, &a.JobDetailsID, &a.ConsultantID, &a.ConsultantName, &a.Email, &a.Phone,
		&jobStart, &salary, &fee, &monthly, &a.EMIDay, &a.Remarks,
		&installments, &nextDue, &paid, &remaining, &a.CompletionStatus,
		&jobLost, &a.CreatedBy, &a.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan agreement: %w", err)
	}

	var d decoder
	a.JobStartDate = d.time(jobStart)
	a.TotalSalary = d.decimal(salary)
	a.TotalServiceFee = d.decimal(fee)
	a.MonthlyPaymentAmount = d.decimal(monthly)
	a.NextDueDate = d.nullTime(nextDue)
	a.TotalPaidSoFar = d.decimal(paid)
	a.RemainingBalance = d.decimal(remaining)
	a.JobLostDate = d.nullTime(jobLost)
	a.CreatedAt = d.time(createdAt)
	a.UpdatedAt = d.time(updatedAt)
	d.installments(installments, &a.Installments)
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode agreement %s: %w", a.ID, d.err)
	}
	return &a, nil
}

func encodeInstallments(in [placement.InstallmentCount]placement.Installment) (string, error) {
	records := make([]installmentRecord, len(in))
	for i, inst := range in {
		records[i] = installmentRecord{
			Month:          inst.Month,
			DueDate:        formatTime(inst.DueDate),
			AmountReceived: inst.AmountReceived,
			Status:         string(inst.Status),
			Notes:          inst.Notes,
			ProofRef:       inst.ProofRef,
		}
		if inst.ReceivedDate != nil {
			s := formatTime(*inst.ReceivedDate)
			records[i].ReceivedDate = &s
		}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode installments: %w", err)
	}
	return string(b), nil
}

// =============================================================================
// INTERVIEW SCHEDULES
// =============================================================================

func (c *conn) InsertInterview(ctx context.Context, iv placement.InterviewSchedule) error {
	_, err := c.exec(ctx, `INSERT INTO interview_schedules
		(id, consultant_id, company_name, interview_date, round, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.ConsultantID, iv.CompanyName, formatTime(iv.Date), iv.Round, iv.Status, formatTime(iv.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("interview %s: %w", iv.ID, placement.ErrConflict)
		}
		return fmt.Errorf("failed to insert interview: %w", err)
	}
	return nil
}

func (c *conn) ListInterviews(ctx context.Context, id placement.ConsultantID) ([]placement.InterviewSchedule, error) {
	rows, err := c.query(ctx, `SELECT id, consultant_id, company_name, interview_date, round, status, created_at
		FROM interview_schedules WHERE consultant_id = ? ORDER BY interview_date ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query interviews: %w", err)
	}
	defer rows.Close()

	var out []placement.InterviewSchedule
	for rows.Next() {
		var (
			iv              placement.InterviewSchedule
			date, createdAt string
		)
		if err := rows.Scan(&iv.ID, &iv.ConsultantID, &iv.CompanyName, &date, &iv.Round, &iv.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan interview: %w", err)
		}
		var d decoder
		iv.Date = d.time(date)
		iv.CreatedAt = d.time(createdAt)
		if d.err != nil {
			return nil, fmt.Errorf("failed to decode interview %s: %w", iv.ID, d.err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (c *conn) DeleteInterviewsByConsultant(ctx context.Context, id placement.ConsultantID) (int, error) {
	res, err := c.exec(ctx, `DELETE FROM interview_schedules WHERE consultant_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete interviews: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// rebind rewrites "?" placeholders to "$1", "$2", ... for PostgreSQL.
func (c *conn) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// checkVersioned turns a zero-row optimistic update into NotFound or
// ErrConcurrentModification.
func (c *conn) checkVersioned(ctx context.Context, res sql.Result, err error, table, id string, notFound error) error {
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	} else if n > 0 {
		return nil
	}
	var exists int
	err = c.queryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", table, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return fmt.Errorf("%s %s: %w", table, id, placement.ErrConcurrentModification)
}

// decoder collects the first parse error across a row's columns.
type decoder struct {
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) time(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		d.fail(err)
	}
	return t
}

func (d *decoder) nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := d.time(ns.String)
	return &t
}

func (d *decoder) decimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) nullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	v := d.decimal(ns.String)
	return &v
}

func (d *decoder) installments(s string, out *[placement.InstallmentCount]placement.Installment) {
	var records []installmentRecord
	if err := json.Unmarshal([]byte(s), &records); err != nil {
		d.fail(err)
		return
	}
	if len(records) != placement.InstallmentCount {
		d.fail(fmt.Errorf("expected %d installments, got %d", placement.InstallmentCount, len(records)))
		return
	}
	for i, r := range records {
		var received *time.Time
		if r.ReceivedDate != nil {
			t := d.time(*r.ReceivedDate)
			received = &t
		}
		out[i] = placement.Installment{
			Month:          r.Month,
			DueDate:        d.time(r.DueDate),
			AmountReceived: r.AmountReceived,
			ReceivedDate:   received,
			Status:         placement.InstallmentStatus(r.Status),
			Notes:          r.Notes,
			ProofRef:       r.ProofRef,
		}
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullDecimal(v *decimal.Decimal) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func staffRef(id *placement.StaffID) sql.NullString {
	if id == nil || *id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func staffPtr(ns sql.NullString) *placement.StaffID {
	if !ns.Valid {
		return nil
	}
	id := placement.StaffID(ns.String)
	return &id
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

var _ placement.TxStore = (*Store)(nil)
