/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  - Money is a decimal string ("800", "12.5"); requests accept numbers too
  - Calendar dates are YYYY-MM-DD; timestamps are RFC 3339
  - Fee amounts are omitted (feesInfo absent) for roles without fee access

VALIDATION:
  Validation is done in the placement package, not in DTOs. Handlers only
  parse formats (dates, installment numbers).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/placement-engine/placement"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUESTS
// =============================================================================

type RegisterConsultantRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Technology string `json:"technology"`
	VisaStatus string `json:"visaStatus"`
}

type AssignStaffRequest struct {
	CoordinatorID  *string `json:"assignedCoordinatorId"`
	Coordinator2ID *string `json:"assignedCoordinator2Id"`
	TeamLeadID     *string `json:"assignedTeamLeadId"`
}

type WorkStatusRequest struct {
	OpenForWork *bool `json:"openForWork"`
	BGVVerified *bool `json:"bgvVerified"`
}

type ResumeStatusRequest struct {
	ResumeStatus string `json:"resumeStatus"`
}

type CreateJobDetailsRequest struct {
	CompanyName  string           `json:"companyName"`
	JobType      string           `json:"jobType"`
	DateOfOffer  string           `json:"dateOfOffer"`
	TotalFees    *decimal.Decimal `json:"totalFees"`
	ReceivedFees *decimal.Decimal `json:"receivedFees"`
}

type UpdateStatusRequest struct {
	PlacementStatus string `json:"placementStatus"`
}

type UpdateFeesRequest struct {
	TotalFees    *decimal.Decimal `json:"totalFees"`
	ReceivedFees *decimal.Decimal `json:"receivedFees"`
}

type ReofferRequest struct {
	CompanyName string `json:"newCompanyName"`
	JobType     string `json:"newJobType"`
	DateOfOffer string `json:"newDateOfOffer"`
}

type CreateAgreementRequest struct {
	TotalSalary decimal.Decimal `json:"totalSalary"`
	EMIDate     int             `json:"emiDate"`
	Remarks     string          `json:"remarks"`
}

type RecordPaymentRequest struct {
	AmountReceived decimal.Decimal `json:"amountReceived"`
	ReceivedDate   string          `json:"receivedDate"`
	Notes          string          `json:"notes"`
}

type JobLostRequest struct {
	JobLostDate string `json:"jobLostDate"`
}

type SweepRequest struct {
	AsOf string `json:"asOf"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ConsultantDTO struct {
	ID                         string  `json:"id"`
	Name                       string  `json:"name"`
	Email                      string  `json:"email"`
	Phone                      string  `json:"phone"`
	Technology                 string  `json:"technology,omitempty"`
	VisaStatus                 string  `json:"visaStatus,omitempty"`
	IsPlaced                   bool    `json:"isPlaced"`
	IsHold                     bool    `json:"isHold"`
	IsActive                   bool    `json:"isActive"`
	IsOfferPending             bool    `json:"isOfferPending"`
	JobLostCount               int     `json:"jobLostCount"`
	OpenForWork                bool    `json:"openForWork"`
	BGVVerified                bool    `json:"bgvVerified"`
	DocumentVerificationStatus string  `json:"documentVerificationStatus"`
	AssignedCoordinatorID      *string `json:"assignedCoordinatorId"`
	AssignedCoordinator2ID     *string `json:"assignedCoordinator2Id"`
	AssignedTeamLeadID         *string `json:"assignedTeamLeadId"`
	AssignedResumeBuilderID    *string `json:"assignedResumeBuilderId"`
	AssignmentDate             *string `json:"assignmentDate"`
	ResumeStatus               string  `json:"resumeStatus"`
	Version                    int64   `json:"version"`
}

type FeesDTO struct {
	TotalFees     *decimal.Decimal `json:"totalFees"`
	ReceivedFees  decimal.Decimal  `json:"receivedFees"`
	RemainingFees *decimal.Decimal `json:"remainingFees"`
}

type JobDetailsDTO struct {
	ID              string   `json:"id"`
	ConsultantID    string   `json:"consultantId"`
	CompanyName     string   `json:"companyName"`
	JobType         string   `json:"jobType"`
	DateOfOffer     string   `json:"dateOfOffer"`
	IsJob           bool     `json:"isJob"`
	PlacementStatus string   `json:"placementStatus"`
	FeesInfo        *FeesDTO `json:"feesInfo,omitempty"`
	FeesStatus      string   `json:"feesStatus"`
	IsAgreement     bool     `json:"isAgreement"`
	CreatedBy       string   `json:"createdBy"`
	CreatedByName   string   `json:"createdByName,omitempty"`
	Version         int64    `json:"version"`
}

// PlacementDTO is one row of the placed job details listing.
type PlacementDTO struct {
	Consultant ConsultantDTO `json:"consultant"`
	JobDetails JobDetailsDTO `json:"jobDetails"`
}

type InstallmentDTO struct {
	Month          int             `json:"month"`
	DueDate        string          `json:"dueDate"`
	AmountReceived decimal.Decimal `json:"amountReceived"`
	ReceivedDate   *string         `json:"receivedDate"`
	Status         string          `json:"status"`
	Notes          string          `json:"notes"`
	ProofFileRef   *string         `json:"proofFileRef"`
}

type AgreementDTO struct {
	ID                      string           `json:"id"`
	ConsultantID            string           `json:"consultantId"`
	JobDetailsID            string           `json:"jobDetailsId"`
	ConsultantName          string           `json:"consultantName"`
	Email                   string           `json:"email"`
	Phone                   string           `json:"phone"`
	JobStartDate            string           `json:"jobStartDate"`
	TotalSalary             decimal.Decimal  `json:"totalSalary"`
	TotalServiceFee         decimal.Decimal  `json:"totalServiceFee"`
	MonthlyPaymentAmount    decimal.Decimal  `json:"monthlyPaymentAmount"`
	EMIDate                 int              `json:"emiDate"`
	Remarks                 string           `json:"remarks,omitempty"`
	Installments            []InstallmentDTO `json:"installments"`
	NextDueDate             *string          `json:"nextDueDate"`
	TotalPaidSoFar          decimal.Decimal  `json:"totalPaidSoFar"`
	RemainingBalance        decimal.Decimal  `json:"remainingBalance"`
	PaymentCompletionStatus string           `json:"paymentCompletionStatus"`
	JobLostDate             *string          `json:"jobLostDate"`
	Version                 int64            `json:"version"`
}

type DeletionDTO struct {
	JobDetailsID      string `json:"jobDetailsId"`
	InterviewsDeleted int    `json:"interviewsDeleted"`
	AgreementDeleted  bool   `json:"agreementDeleted"`
}

type SweepDTO struct {
	AsOf               string `json:"asOf"`
	InstallmentsMarked int    `json:"installmentsMarked"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

type ScenarioResultDTO struct {
	ScenarioID    string   `json:"scenarioId"`
	ConsultantIDs []string `json:"consultantIds"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toConsultantDTO(c placement.Consultant) ConsultantDTO {
	a := c.Assignment
	return ConsultantDTO{
		ID:                         string(c.ID),
		Name:                       c.Name,
		Email:                      c.Email,
		Phone:                      c.Phone,
		Technology:                 c.Technology,
		VisaStatus:                 c.VisaStatus,
		IsPlaced:                   c.Flags.IsPlaced,
		IsHold:                     c.Flags.IsHold,
		IsActive:                   c.Flags.IsActive,
		IsOfferPending:             c.Flags.IsOfferPending,
		JobLostCount:               c.JobLostCount,
		OpenForWork:                c.OpenForWork,
		BGVVerified:                c.BGVVerified,
		DocumentVerificationStatus: string(c.DocumentVerification),
		AssignedCoordinatorID:      staffString(a.CoordinatorID),
		AssignedCoordinator2ID:     staffString(a.Coordinator2ID),
		AssignedTeamLeadID:         staffString(a.TeamLeadID),
		AssignedResumeBuilderID:    staffString(a.ResumeBuilderID),
		AssignmentDate:             datePtr(a.AssignedAt),
		ResumeStatus:               string(c.ResumeStatus),
		Version:                    c.Version,
	}
}

func toJobDetailsDTO(jd placement.JobDetails, feesVisible bool) JobDetailsDTO {
	dto := JobDetailsDTO{
		ID:              string(jd.ID),
		ConsultantID:    string(jd.ConsultantID),
		CompanyName:     jd.CompanyName,
		JobType:         jd.JobType,
		DateOfOffer:     jd.DateOfOffer.Format(dateLayout),
		IsJob:           jd.IsJob,
		PlacementStatus: string(jd.PlacementStatus),
		FeesStatus:      string(jd.Fees.Status),
		IsAgreement:     jd.IsAgreement,
		CreatedBy:       string(jd.CreatedBy),
		CreatedByName:   jd.CreatedByName,
		Version:         jd.Version,
	}
	if feesVisible {
		dto.FeesInfo = &FeesDTO{
			TotalFees:     jd.Fees.Total,
			ReceivedFees:  jd.Fees.Received,
			RemainingFees: jd.Fees.Remaining,
		}
	}
	return dto
}

func toPlacementDTO(v placement.PlacementView) PlacementDTO {
	return PlacementDTO{
		Consultant: toConsultantDTO(v.Consultant),
		JobDetails: toJobDetailsDTO(v.JobDetails, v.FeesVisible),
	}
}

func toAgreementDTO(a placement.Agreement) AgreementDTO {
	installments := make([]InstallmentDTO, len(a.Installments))
	for i, inst := range a.Installments {
		installments[i] = InstallmentDTO{
			Month:          inst.Month,
			DueDate:        inst.DueDate.Format(dateLayout),
			AmountReceived: inst.AmountReceived,
			ReceivedDate:   datePtr(inst.ReceivedDate),
			Status:         string(inst.Status),
			Notes:          inst.Notes,
		}
		if inst.HasProof() {
			ref := inst.ProofRef
			installments[i].ProofFileRef = &ref
		}
	}
	return AgreementDTO{
		ID:                      string(a.ID),
		ConsultantID:            string(a.ConsultantID),
		JobDetailsID:            string(a.JobDetailsID),
		ConsultantName:          a.ConsultantName,
		Email:                   a.Email,
		Phone:                   a.Phone,
		JobStartDate:            a.JobStartDate.Format(dateLayout),
		TotalSalary:             a.TotalSalary,
		TotalServiceFee:         a.TotalServiceFee,
		MonthlyPaymentAmount:    a.MonthlyPaymentAmount,
		EMIDate:                 a.EMIDay,
		Remarks:                 a.Remarks,
		Installments:            installments,
		NextDueDate:             datePtr(a.NextDueDate),
		TotalPaidSoFar:          a.TotalPaidSoFar,
		RemainingBalance:        a.RemainingBalance,
		PaymentCompletionStatus: string(a.CompletionStatus),
		JobLostDate:             datePtr(a.JobLostDate),
		Version:                 a.Version,
	}
}

func staffString(id *placement.StaffID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func staffRef(s *string) *placement.StaffID {
	if s == nil || *s == "" {
		return nil
	}
	id := placement.StaffID(*s)
	return &id
}

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
