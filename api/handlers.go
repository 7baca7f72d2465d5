/*
handlers.go - HTTP API handlers for the placement engine

PURPOSE:
  Exposes the Placement Lifecycle Manager and the Agreement/Payment Ledger
  via REST API. Handles HTTP request/response and JSON serialization and
  delegates every rule to the placement package.

ENDPOINTS:
  Consultants:
    GET    /api/consultants                       List visible consultants
    POST   /api/consultants                       Register consultant
    GET    /api/consultants/{id}                  Get consultant
    PUT    /api/consultants/{id}/assignment       Assign coordinators/team lead
    PUT    /api/consultants/{id}/work-status      openForWork / bgvVerified
    DELETE /api/consultants/{id}                  Delete an unplaced consultant
    POST   /api/consultants/{id}/job-lost-count   Increment job lost counter

  Reviews:
    POST   /api/consultants/{id}/documents/verification-request   Re-queue documents
    POST   /api/consultants/{id}/documents/approve                Mark verified
    POST   /api/consultants/{id}/documents/reject                 Mark rejected
    POST   /api/consultants/{id}/resume-builder                   Claim as resume builder
    DELETE /api/consultants/{id}/resume-builder                   Release the claim
    PUT    /api/consultants/{id}/resume-status                    Accept or reject resume

  Job details:
    GET    /api/consultants/{id}/job-details              Get (fees masked by role)
    POST   /api/consultants/{id}/job-details              Record placement
    DELETE /api/consultants/{id}/job-details              Undo placement (cascade)
    PUT    /api/consultants/{id}/job-details/status       Change placement status
    PUT    /api/consultants/{id}/job-details/fees         Update fee amounts
    POST   /api/consultants/{id}/job-details/fees/reset   Zero the fees
    POST   /api/consultants/{id}/job-details/reoffer      Reopen after job loss
    GET    /api/placements                                List placed job details

  Agreements:
    GET    /api/consultants/{id}/agreement                        Get agreement
    POST   /api/consultants/{id}/agreement                        Create agreement
    DELETE /api/consultants/{id}/agreement                        Delete agreement
    POST   /api/consultants/{id}/agreement/installments/{n}/proof Upload proof
    GET    /api/consultants/{id}/agreement/installments/{n}/proof Download proof
    POST   /api/agreements/{agreementID}/installments/{n}/payment Record payment
    POST   /api/agreements/{agreementID}/job-lost                 Terminate

  Admin:
    POST   /api/admin/overdue-sweep               Mark overdue installments

  Scenarios:
    GET    /api/scenarios                         List demo scenarios
    POST   /api/scenarios/load                    Load a demo scenario

ERROR HANDLING:
  Domain errors map to HTTP status in statusFor:
  - 400: Validation errors, malformed input
  - 403: Authorization gate denied the action
  - 404: Resource not found
  - 409: Conflict (duplicate entity, concurrent modification)
  - 412: Precondition failed (payment before proof, review without staff)
  - 422: Invalid state (closed job, terminated agreement)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo scenario loaders
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/placement-engine/placement"
)

// maxProofSize bounds multipart proof uploads.
const maxProofSize = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Lifecycle *placement.Lifecycle
	Ledger    *placement.Ledger
	DB        Pinger
}

// NewHandler creates a new handler over the placement engine.
func NewHandler(lifecycle *placement.Lifecycle, ledger *placement.Ledger, db Pinger) *Handler {
	return &Handler{Lifecycle: lifecycle, Ledger: ledger, DB: db}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CONSULTANT HANDLERS
// =============================================================================

func (h *Handler) ListConsultants(w http.ResponseWriter, r *http.Request) {
	consultants, err := h.Lifecycle.ListConsultants(r.Context(), actor(r))
	if err != nil {
		writeDomainError(w, "Failed to list consultants", err)
		return
	}
	dtos := make([]ConsultantDTO, len(consultants))
	for i, c := range consultants {
		dtos[i] = toConsultantDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RegisterConsultant(w http.ResponseWriter, r *http.Request) {
	var req RegisterConsultantRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Lifecycle.RegisterConsultant(r.Context(), actor(r), placement.NewConsultant{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Technology: req.Technology,
		VisaStatus: req.VisaStatus,
	})
	if err != nil {
		writeDomainError(w, "Failed to register consultant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsultantDTO(*c))
}

func (h *Handler) GetConsultant(w http.ResponseWriter, r *http.Request) {
	c, err := h.Lifecycle.GetConsultant(r.Context(), actor(r), consultantID(r))
	if err != nil {
		writeDomainError(w, "Failed to get consultant", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultantDTO(*c))
}

func (h *Handler) AssignStaff(w http.ResponseWriter, r *http.Request) {
	var req AssignStaffRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Lifecycle.AssignStaff(r.Context(), actor(r), consultantID(r), placement.StaffAssignment{
		CoordinatorID:  staffRef(req.CoordinatorID),
		Coordinator2ID: staffRef(req.Coordinator2ID),
		TeamLeadID:     staffRef(req.TeamLeadID),
	})
	if err != nil {
		writeDomainError(w, "Failed to assign staff", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultantDTO(*c))
}

func (h *Handler) UpdateWorkStatus(w http.ResponseWriter, r *http.Request) {
	var req WorkStatusRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Lifecycle.UpdateWorkStatus(r.Context(), actor(r), consultantID(r), placement.WorkStatusUpdate{
		OpenForWork: req.OpenForWork,
		BGVVerified: req.BGVVerified,
	})
	if err != nil {
		writeDomainError(w, "Failed to update work status", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultantDTO(*c))
}

func (h *Handler) IncrementJobLostCount(w http.ResponseWriter, r *http.Request) {
	c, err := h.Lifecycle.IncrementJobLostCount(r.Context(), actor(r), consultantID(r))
	if err != nil {
		writeDomainError(w, "Failed to increment job lost count", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultantDTO(*c))
}

func (h *Handler) DeleteConsultant(w http.ResponseWriter, r *http.Request) {
	if err := h.Lifecycle.DeleteConsultant(r.Context(), actor(r), consultantID(r)); err != nil {
		writeDomainError(w, "Failed to delete consultant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REVIEW HANDLERS
// =============================================================================

type consultantOp func(ctx context.Context, actor placement.Actor, id placement.ConsultantID) (*placement.Consultant, error)

// consultantAction adapts a body-less consultant operation to a handler.
func consultantAction(op consultantOp, failure string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := op(r.Context(), actor(r), consultantID(r))
		if err != nil {
			writeDomainError(w, failure, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultantDTO(*c))
	}
}

func (h *Handler) RequestDocumentVerification(w http.ResponseWriter, r *http.Request) {
	consultantAction(h.Lifecycle.RequestDocumentVerification, "Failed to request document verification")(w, r)
}

func (h *Handler) ApproveDocuments(w http.ResponseWriter, r *http.Request) {
	consultantAction(h.Lifecycle.ApproveDocuments, "Failed to approve documents")(w, r)
}

func (h *Handler) RejectDocuments(w http.ResponseWriter, r *http.Request) {
	consultantAction(h.Lifecycle.RejectDocuments, "Failed to reject documents")(w, r)
}

func (h *Handler) ClaimResume(w http.ResponseWriter, r *http.Request) {
	consultantAction(h.Lifecycle.ClaimResume, "Failed to claim resume")(w, r)
}

func (h *Handler) ReleaseResume(w http.ResponseWriter, r *http.Request) {
	consultantAction(h.Lifecycle.ReleaseResume, "Failed to release resume")(w, r)
}

func (h *Handler) UpdateResumeStatus(w http.ResponseWriter, r *http.Request) {
	var req ResumeStatusRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Lifecycle.UpdateResumeStatus(r.Context(), actor(r), consultantID(r), placement.ResumeStatus(req.ResumeStatus))
	if err != nil {
		writeDomainError(w, "Failed to update resume status", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultantDTO(*c))
}

// =============================================================================
// JOB DETAILS HANDLERS
// =============================================================================

func (h *Handler) GetJobDetails(w http.ResponseWriter, r *http.Request) {
	view, err := h.Lifecycle.GetJobDetails(r.Context(), actor(r), consultantID(r))
	if err != nil {
		writeDomainError(w, "Failed to get job details", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlacementDTO(*view))
}

func (h *Handler) CreateJobDetails(w http.ResponseWriter, r *http.Request) {
	var req CreateJobDetailsRequest
	if !decode(w, r, &req) {
		return
	}
	offer, ok := parseOptionalDate(w, "dateOfOffer", req.DateOfOffer)
	if !ok {
		return
	}
	jd, err := h.Lifecycle.CreateJobDetails(r.Context(), actor(r), consultantID(r), placement.NewJobDetails{
		CompanyName:  req.CompanyName,
		JobType:      req.JobType,
		DateOfOffer:  offer,
		TotalFees:    req.TotalFees,
		ReceivedFees: req.ReceivedFees,
	})
	if err != nil {
		writeDomainError(w, "Failed to create job details", err)
		return
	}
	h.writeJobDetails(w, r, http.StatusCreated, jd)
}

func (h *Handler) UpdatePlacementStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := placement.ParsePlacementStatus(req.PlacementStatus)
	if err != nil {
		writeDomainError(w, "Invalid placement status", err)
		return
	}
	jd, err := h.Lifecycle.UpdatePlacementStatus(r.Context(), actor(r), consultantID(r), status)
	if err != nil {
		writeDomainError(w, "Failed to update placement status", err)
		return
	}
	h.writeJobDetails(w, r, http.StatusOK, jd)
}

func (h *Handler) UpdateFees(w http.ResponseWriter, r *http.Request) {
	var req UpdateFeesRequest
	if !decode(w, r, &req) {
		return
	}
	jd, err := h.Lifecycle.UpdateFees(r.Context(), actor(r), consultantID(r), placement.FeeUpdate{
		TotalFees:    req.TotalFees,
		ReceivedFees: req.ReceivedFees,
	})
	if err != nil {
		writeDomainError(w, "Failed to update fees", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDetailsDTO(*jd, true))
}

func (h *Handler) ResetFees(w http.ResponseWriter, r *http.Request) {
	jd, err := h.Lifecycle.ResetFees(r.Context(), actor(r), consultantID(r))
	if err != nil {
		writeDomainError(w, "Failed to reset fees", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDetailsDTO(*jd, true))
}

func (h *Handler) UpdateAfterJobLost(w http.ResponseWriter, r *http.Request) {
	var req ReofferRequest
	if !decode(w, r, &req) {
		return
	}
	offer, ok := parseOptionalDate(w, "newDateOfOffer", req.DateOfOffer)
	if !ok {
		return
	}
	jd, err := h.Lifecycle.UpdateAfterJobLost(r.Context(), actor(r), consultantID(r), placement.Reoffer{
		CompanyName: req.CompanyName,
		JobType:     req.JobType,
		DateOfOffer: offer,
	})
	if err != nil {
		writeDomainError(w, "Failed to reopen placement", err)
		return
	}
	h.writeJobDetails(w, r, http.StatusOK, jd)
}

func (h *Handler) DeleteJobDetails(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Lifecycle.DeleteJobDetails(r.Context(), actor(r), consultantID(r))
	if err != nil {
		writeDomainError(w, "Failed to delete job details", err)
		return
	}
	writeJSON(w, http.StatusOK, DeletionDTO{
		JobDetailsID:      string(summary.JobDetails.ID),
		InterviewsDeleted: summary.InterviewsDeleted,
		AgreementDeleted:  summary.AgreementDeleted,
	})
}

func (h *Handler) ListPlacements(w http.ResponseWriter, r *http.Request) {
	views, err := h.Lifecycle.ListPlacedJobDetails(r.Context(), actor(r))
	if err != nil {
		writeDomainError(w, "Failed to list placements", err)
		return
	}
	dtos := make([]PlacementDTO, len(views))
	for i, v := range views {
		dtos[i] = toPlacementDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// writeJobDetails masks fee amounts unless the actor may view them.
func (h *Handler) writeJobDetails(w http.ResponseWriter, r *http.Request, status int, jd *placement.JobDetails) {
	c, err := h.Lifecycle.GetConsultant(r.Context(), actor(r), jd.ConsultantID)
	visible := err == nil && h.Lifecycle.Gate.Authorize(r.Context(), actor(r), c, placement.ActionViewFees) == nil
	writeJSON(w, status, toJobDetailsDTO(*jd, visible))
}

// =============================================================================
// AGREEMENT HANDLERS
// =============================================================================

func (h *Handler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.GetAgreement(r.Context(), actor(r), consultantID(r))
	if err != nil {
		writeDomainError(w, "Failed to get agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(*a))
}

func (h *Handler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req CreateAgreementRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.Ledger.CreateAgreement(r.Context(), actor(r), consultantID(r), placement.NewAgreement{
		TotalSalary: req.TotalSalary,
		EMIDay:      req.EMIDate,
		Remarks:     req.Remarks,
	})
	if err != nil {
		writeDomainError(w, "Failed to create agreement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgreementDTO(*a))
}

func (h *Handler) DeleteAgreement(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteAgreement(r.Context(), actor(r), consultantID(r)); err != nil {
		writeDomainError(w, "Failed to delete agreement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	n, ok := installmentNumber(w, r)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	received, ok := parseOptionalDate(w, "receivedDate", req.ReceivedDate)
	if !ok {
		return
	}
	id := placement.AgreementID(chi.URLParam(r, "agreementID"))
	a, err := h.Ledger.RecordPayment(r.Context(), actor(r), id, n, placement.Payment{
		Amount:       req.AmountReceived,
		ReceivedDate: received,
		Notes:        req.Notes,
	})
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(*a))
}

func (h *Handler) UploadInstallmentProof(w http.ResponseWriter, r *http.Request) {
	n, ok := installmentNumber(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxProofSize+1<<20)
	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		writeError(w, http.StatusBadRequest, "File too large or invalid (max 10MB)", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded", err)
		return
	}
	defer file.Close()

	a, err := h.Ledger.UploadInstallmentProof(r.Context(), actor(r), consultantID(r), n, placement.ProofUpload{
		Content:     file,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeDomainError(w, "Failed to upload proof", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(*a))
}

func (h *Handler) DownloadInstallmentProof(w http.ResponseWriter, r *http.Request) {
	n, ok := installmentNumber(w, r)
	if !ok {
		return
	}
	a, err := h.Ledger.GetAgreement(r.Context(), actor(r), consultantID(r))
	if err != nil {
		writeDomainError(w, "Failed to get agreement", err)
		return
	}
	body, err := h.Ledger.OpenProof(r.Context(), actor(r), consultantID(r), n)
	if err != nil {
		writeDomainError(w, "Failed to open proof", err)
		return
	}
	defer body.Close()

	ref := a.Installment(n).ProofRef
	if ct := mime.TypeByExtension(filepath.Ext(ref)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", ref))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("[API] proof download for %s interrupted: %v", ref, err)
	}
}

func (h *Handler) RecordJobLost(w http.ResponseWriter, r *http.Request) {
	var req JobLostRequest
	if !decode(w, r, &req) {
		return
	}
	lost, ok := parseOptionalDate(w, "jobLostDate", req.JobLostDate)
	if !ok {
		return
	}
	id := placement.AgreementID(chi.URLParam(r, "agreementID"))
	a, err := h.Ledger.RecordJobLost(r.Context(), actor(r), id, lost)
	if err != nil {
		writeDomainError(w, "Failed to record job loss", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(*a))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SweepOverdue marks overdue installments as of asOf (default today).
func (h *Handler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	asOf, ok := parseOptionalDate(w, "asOf", req.AsOf)
	if !ok {
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	n, err := h.Ledger.SweepOverdue(r.Context(), actor(r), asOf)
	if err != nil {
		writeDomainError(w, "Failed to sweep overdue installments", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepDTO{AsOf: asOf.Format(dateLayout), InstallmentsMarked: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a placement error to its HTTP status and includes
// the offending fields for validation failures.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s: %v", message, err)
	}
	resp := ErrorResponse{Error: message, Details: err.Error()}
	var verr *placement.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, placement.ErrValidation), errors.Is(err, placement.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, placement.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, placement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, placement.ErrConflict), errors.Is(err, placement.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, placement.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, placement.ErrInvalidState):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// parseOptionalDate parses YYYY-MM-DD. An empty value yields the zero time
// and is left for the domain layer to reject when required.
func parseOptionalDate(w http.ResponseWriter, field, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format (use YYYY-MM-DD)", field), err)
		return time.Time{}, false
	}
	return t, true
}

func installmentNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Installment number must be an integer", err)
		return 0, false
	}
	return n, true
}

func consultantID(r *http.Request) placement.ConsultantID {
	return placement.ConsultantID(chi.URLParam(r, "id"))
}

// actor returns the authenticated actor. The auth middleware guarantees one
// on every /api route; the zero Actor has no role and is denied everywhere.
func actor(r *http.Request) placement.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}
