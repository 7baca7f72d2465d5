/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the engine with realistic
	placements for demos and manual testing. Each scenario goes through the
	regular Lifecycle and Ledger operations, so every invariant and
	authorization rule applies exactly as it does for real traffic.

AVAILABLE SCENARIOS:

	new-placement:       Consultant placed at a company, fees partly received
	active-agreement:    Placed consultant with an EMI plan, first two installments paid
	overdue-emis:        EMI plan started months ago with nothing paid, then swept
	job-lost:            Agreement terminated by a job loss, pipeline reopened elsewhere
	completed-agreement: All eight installments paid with proofs

HOW SCENARIOS WORK:
 1. Register consultants (emails carry a per-load tag so loads never collide)
 2. Assign a demo coordinator
 3. Record job details and walk the placement status
 4. Create agreements, upload proofs and record payments
 5. Optionally sweep overdue installments or record a job loss

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenarioId": "active-agreement"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, actor, d)
 3. Add it to the 'loaders' map

NOTE:

	Scenarios only add data; nothing is reset. Loading requires an actor
	allowed to perform every step, in practice admin or superAdmin.

SEE ALSO:
  - handlers.go: endpoint list
  - placement/lifecycle.go, placement/ledger.go: operations used here
*/
package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/placement-engine/placement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-placement",
		Name:        "New Placement",
		Description: "Consultant placed last week, 500 of 1500 fees received",
		Category:    "placement",
	},
	{
		ID:          "active-agreement",
		Name:        "Active Agreement",
		Description: "EMI plan started three months ago with the first two installments paid",
		Category:    "agreement",
	},
	{
		ID:          "overdue-emis",
		Name:        "Overdue EMIs",
		Description: "EMI plan started five months ago, nothing paid, overdue sweep applied",
		Category:    "agreement",
	},
	{
		ID:          "job-lost",
		Name:        "Job Lost",
		Description: "Agreement terminated after a job loss, consultant reoffered at a new company",
		Category:    "agreement",
	},
	{
		ID:          "completed-agreement",
		Name:        "Completed Agreement",
		Description: "All eight installments paid with proofs",
		Category:    "agreement",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, actor placement.Actor, d *demo) error

var loaders = map[string]scenarioLoader{
	"new-placement":       (*Handler).loadNewPlacementScenario,
	"active-agreement":    (*Handler).loadActiveAgreementScenario,
	"overdue-emis":        (*Handler).loadOverdueScenario,
	"job-lost":            (*Handler).loadJobLostScenario,
	"completed-agreement": (*Handler).loadCompletedAgreementScenario,
}

// demoCoordinator is assigned to every scenario consultant.
const demoCoordinator = placement.StaffID("coord-demo")

// demoProof is a minimal PDF used as payment proof.
var demoProof = []byte("%PDF-1.4\n% demo payment proof\n")

// demo carries the state of one scenario load.
type demo struct {
	tag         string
	today       time.Time
	consultants []placement.ConsultantID
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario as the calling actor.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	d := &demo{
		tag:   strings.SplitN(uuid.NewString(), "-", 2)[0],
		today: placement.DateOnly(time.Now().UTC()),
	}
	if err := load(h, r.Context(), actor(r), d); err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}

	ids := make([]string, len(d.consultants))
	for i, id := range d.consultants {
		ids[i] = string(id)
	}
	writeJSON(w, http.StatusOK, ScenarioResultDTO{ScenarioID: req.ScenarioID, ConsultantIDs: ids})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewPlacementScenario(ctx context.Context, actor placement.Actor, d *demo) error {
	_, err := h.placeDemoConsultant(ctx, actor, d, "Priya Raman", "Northwind", d.today.AddDate(0, 0, -7), "1500", "500")
	return err
}

func (h *Handler) loadActiveAgreementScenario(ctx context.Context, actor placement.Actor, d *demo) error {
	id, err := h.placeDemoConsultant(ctx, actor, d, "Marcus Lee", "Contoso", d.today.AddDate(0, -3, 0), "2000", "0")
	if err != nil {
		return err
	}
	a, err := h.Ledger.CreateAgreement(ctx, actor, id, placement.NewAgreement{
		TotalSalary: decimal.NewFromInt(96000),
		EMIDay:      10,
		Remarks:     "demo: two installments paid",
	})
	if err != nil {
		return err
	}
	return h.payDemoInstallments(ctx, actor, a, 2)
}

func (h *Handler) loadOverdueScenario(ctx context.Context, actor placement.Actor, d *demo) error {
	id, err := h.placeDemoConsultant(ctx, actor, d, "Sofia Alvarez", "Fabrikam", d.today.AddDate(0, -5, 0), "1800", "0")
	if err != nil {
		return err
	}
	if _, err := h.Ledger.CreateAgreement(ctx, actor, id, placement.NewAgreement{
		TotalSalary: decimal.NewFromInt(72000),
		EMIDay:      1,
	}); err != nil {
		return err
	}
	_, err = h.Ledger.SweepOverdue(ctx, actor, d.today)
	return err
}

func (h *Handler) loadJobLostScenario(ctx context.Context, actor placement.Actor, d *demo) error {
	id, err := h.placeDemoConsultant(ctx, actor, d, "Tomasz Nowak", "Litware", d.today.AddDate(0, -2, 0), "1200", "1200")
	if err != nil {
		return err
	}
	a, err := h.Ledger.CreateAgreement(ctx, actor, id, placement.NewAgreement{
		TotalSalary: decimal.NewFromInt(60000),
		EMIDay:      15,
	})
	if err != nil {
		return err
	}
	if err := h.payDemoInstallments(ctx, actor, a, 1); err != nil {
		return err
	}
	if _, err := h.Ledger.RecordJobLost(ctx, actor, a.ID, d.today.AddDate(0, 0, -3)); err != nil {
		return err
	}
	if _, err := h.Lifecycle.IncrementJobLostCount(ctx, actor, id); err != nil {
		return err
	}
	_, err = h.Lifecycle.UpdateAfterJobLost(ctx, actor, id, placement.Reoffer{
		CompanyName: "Tailspin",
		JobType:     "Contract",
		DateOfOffer: d.today,
	})
	return err
}

func (h *Handler) loadCompletedAgreementScenario(ctx context.Context, actor placement.Actor, d *demo) error {
	id, err := h.placeDemoConsultant(ctx, actor, d, "Amara Okafor", "Adventure Works", d.today.AddDate(0, -10, 0), "2500", "2500")
	if err != nil {
		return err
	}
	a, err := h.Ledger.CreateAgreement(ctx, actor, id, placement.NewAgreement{
		TotalSalary: decimal.NewFromInt(120000),
		EMIDay:      28,
	})
	if err != nil {
		return err
	}
	return h.payDemoInstallments(ctx, actor, a, placement.InstallmentCount)
}

// =============================================================================
// HELPERS
// =============================================================================

// placeDemoConsultant registers a consultant, assigns the demo coordinator,
// records the job and marks it placed.
func (h *Handler) placeDemoConsultant(ctx context.Context, actor placement.Actor, d *demo, name, company string, offer time.Time, total, received string) (placement.ConsultantID, error) {
	local := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	c, err := h.Lifecycle.RegisterConsultant(ctx, actor, placement.NewConsultant{
		Name:       name,
		Email:      fmt.Sprintf("%s+%s@demo.example", local, d.tag),
		Phone:      "555-0100",
		Technology: "Go",
		VisaStatus: "H1B",
	})
	if err != nil {
		return "", err
	}
	coord := demoCoordinator
	if _, err := h.Lifecycle.AssignStaff(ctx, actor, c.ID, placement.StaffAssignment{CoordinatorID: &coord}); err != nil {
		return "", err
	}

	totalFees := decimal.RequireFromString(total)
	receivedFees := decimal.RequireFromString(received)
	if _, err := h.Lifecycle.CreateJobDetails(ctx, actor, c.ID, placement.NewJobDetails{
		CompanyName:  company,
		JobType:      "Full-time",
		DateOfOffer:  offer,
		TotalFees:    &totalFees,
		ReceivedFees: &receivedFees,
	}); err != nil {
		return "", err
	}
	if _, err := h.Lifecycle.UpdatePlacementStatus(ctx, actor, c.ID, placement.StatusPlaced); err != nil {
		return "", err
	}
	d.consultants = append(d.consultants, c.ID)
	return c.ID, nil
}

// payDemoInstallments uploads a proof for and pays installments 1..n in full,
// each received on its due date.
func (h *Handler) payDemoInstallments(ctx context.Context, actor placement.Actor, a *placement.Agreement, n int) error {
	for i := 1; i <= n; i++ {
		if _, err := h.Ledger.UploadInstallmentProof(ctx, actor, a.ConsultantID, i, placement.ProofUpload{
			Content:     bytes.NewReader(demoProof),
			FileName:    fmt.Sprintf("receipt-%d.pdf", i),
			ContentType: "application/pdf",
		}); err != nil {
			return err
		}
		if _, err := h.Ledger.RecordPayment(ctx, actor, a.ID, i, placement.Payment{
			Amount:       a.MonthlyPaymentAmount,
			ReceivedDate: a.Installment(i).DueDate,
			Notes:        "demo payment",
		}); err != nil {
			return err
		}
	}
	return nil
}
