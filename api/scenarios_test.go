/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Consultants are registered, assigned and placed
	- Agreements carry the expected schedule and totals
	- Payments, overdue marks and terminations land where expected

These tests ensure scenarios work correctly and can be used as integration tests.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/placement-engine/blob"
	"github.com/warp/placement-engine/placement"
	"github.com/warp/placement-engine/placement/store"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	files, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	mem := store.NewTxMemory()
	gate := placement.DefaultCapabilities()
	return NewHandler(placement.NewLifecycle(mem, gate), placement.NewLedger(mem, gate, files), nil)
}

// loadAt runs a loader as an admin with a fixed "today".
func loadAt(t *testing.T, h *Handler, id string, today time.Time) placement.ConsultantID {
	t.Helper()
	d := &demo{tag: "test", today: today}
	require.NoError(t, loaders[id](h, context.Background(), testAdmin, d))
	require.Len(t, d.consultants, 1)
	return d.consultants[0]
}

var scenarioToday = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

func TestScenario_NewPlacement(t *testing.T) {
	// GIVEN: New placement scenario
	// WHEN: Loading the scenario
	// THEN: The consultant is placed with fees partly received
	h := setupTestHandler(t)
	ctx := context.Background()

	id := loadAt(t, h, "new-placement", scenarioToday)

	view, err := h.Lifecycle.GetJobDetails(ctx, testAdmin, id)
	require.NoError(t, err)
	assert.True(t, view.Consultant.Flags.IsPlaced)
	assert.Equal(t, demoCoordinator, *view.Consultant.Assignment.CoordinatorID)
	assert.Equal(t, "Northwind", view.JobDetails.CompanyName)
	assert.Equal(t, placement.FeesPartial, view.JobDetails.Fees.Status)
	assert.Equal(t, "1000", view.JobDetails.Fees.Remaining.String())
	assert.Equal(t, "priya.raman+test@demo.example", view.Consultant.Email)
}

func TestScenario_ActiveAgreement(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()

	id := loadAt(t, h, "active-agreement", scenarioToday)

	a, err := h.Ledger.GetAgreement(ctx, testAccounts, id)
	require.NoError(t, err)
	assert.Equal(t, "7680", a.TotalServiceFee.String())
	assert.Equal(t, "960", a.MonthlyPaymentAmount.String())
	assert.Equal(t, "1920", a.TotalPaidSoFar.String())
	assert.Equal(t, "5760", a.RemainingBalance.String())
	assert.Equal(t, placement.InstallmentPaid, a.Installment(2).Status)
	assert.Equal(t, placement.InstallmentPending, a.Installment(3).Status)
	require.NotNil(t, a.NextDueDate)
	assert.Equal(t, time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC), *a.NextDueDate)
}

func TestScenario_OverdueEMIs(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()

	id := loadAt(t, h, "overdue-emis", scenarioToday)

	// Due dates Feb 1 through Jun 1 fall before Jun 15.
	a, err := h.Ledger.GetAgreement(ctx, testAccounts, id)
	require.NoError(t, err)
	overdue := 0
	for _, inst := range a.Installments {
		if inst.Status == placement.InstallmentOverdue {
			overdue++
		}
	}
	assert.Equal(t, 5, overdue)
	assert.True(t, a.TotalPaidSoFar.IsZero())
}

func TestScenario_JobLost(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()

	id := loadAt(t, h, "job-lost", scenarioToday)

	a, err := h.Ledger.GetAgreement(ctx, testAccounts, id)
	require.NoError(t, err)
	assert.True(t, a.IsTerminated())
	require.NotNil(t, a.JobLostDate)
	assert.Equal(t, time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC), *a.JobLostDate)

	view, err := h.Lifecycle.GetJobDetails(ctx, testAdmin, id)
	require.NoError(t, err)
	assert.Equal(t, "Tailspin", view.JobDetails.CompanyName)
	assert.Equal(t, placement.StatusActive, view.JobDetails.PlacementStatus)
	assert.False(t, view.JobDetails.IsAgreement)
	assert.True(t, view.Consultant.Flags.IsActive)
	assert.Equal(t, 1, view.Consultant.JobLostCount)
}

func TestScenario_CompletedAgreement(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()

	id := loadAt(t, h, "completed-agreement", scenarioToday)

	a, err := h.Ledger.GetAgreement(ctx, testAccounts, id)
	require.NoError(t, err)
	assert.Equal(t, placement.PaymentCompleted, a.CompletionStatus)
	assert.Nil(t, a.NextDueDate)
	assert.True(t, a.RemainingBalance.IsZero())
	for _, inst := range a.Installments {
		assert.True(t, inst.HasProof(), "installment %d", inst.Month)
	}
}

func TestScenarios_AllListedHaveLoaders(t *testing.T) {
	require.Len(t, loaders, len(scenarios))
	for _, s := range scenarios {
		assert.Contains(t, loaders, s.ID)
	}
}

func TestLoadScenario_Endpoint(t *testing.T) {
	ts := newTestServer(t)

	var listed []ScenarioDTO
	require.Equal(t, http.StatusOK, ts.do(testAdmin, http.MethodGet, "/api/scenarios", nil, &listed))
	assert.Len(t, listed, len(scenarios))

	// WHEN: Loading the same scenario twice
	// THEN: Each load gets fresh consultants and no duplicate agreement
	for i := 0; i < 2; i++ {
		var out ScenarioResultDTO
		require.Equal(t, http.StatusOK, ts.do(testAdmin, http.MethodPost, "/api/scenarios/load",
			LoadScenarioRequest{ScenarioID: "active-agreement"}, &out))
		assert.Equal(t, "active-agreement", out.ScenarioID)
		assert.Len(t, out.ConsultantIDs, 1)
	}

	assert.Equal(t, http.StatusBadRequest, ts.do(testAdmin, http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "rewards-benefits"}, nil))
	assert.Equal(t, http.StatusForbidden, ts.do(testAccounts, http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "new-placement"}, nil))
}
