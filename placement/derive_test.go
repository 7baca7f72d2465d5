package placement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/placement-engine/placement"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// FEE DERIVATION
// =============================================================================

func TestDeriveFees_StatusRule(t *testing.T) {
	tests := []struct {
		name      string
		total     string
		received  string
		remaining string
		status    placement.FeesStatus
	}{
		{"nothing received", "1000", "0", "1000", placement.FeesPending},
		{"partial payment", "1000", "250", "750", placement.FeesPartial},
		{"paid in full", "1000", "1000", "0", placement.FeesCompleted},
		{"zero total is never completed", "0", "0", "0", placement.FeesPending},
		{"overpayment keeps negative remainder", "1000", "1200", "-200", placement.FeesPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := placement.DeriveFees(placement.Fees{Total: decPtr(tt.total), Received: dec(tt.received)})

			require.NotNil(t, f.Remaining)
			assert.True(t, dec(tt.remaining).Equal(*f.Remaining), "remaining = %s", f.Remaining)
			assert.Equal(t, tt.status, f.Status)
		})
	}
}

func TestDeriveFees_NoTotal_LeavesRemainingUnset(t *testing.T) {
	// GIVEN: Fees with only a received amount
	in := placement.Fees{Received: dec("300"), Status: placement.FeesPending}

	// WHEN: Deriving
	out := placement.DeriveFees(in)

	// THEN: No zero is forced into remaining
	assert.Nil(t, out.Remaining)
	assert.Equal(t, placement.FeesPending, out.Status)
}

func TestZeroFees(t *testing.T) {
	f := placement.ZeroFees()

	require.NotNil(t, f.Total)
	require.NotNil(t, f.Remaining)
	assert.True(t, f.Total.IsZero())
	assert.True(t, f.Received.IsZero())
	assert.True(t, f.Remaining.IsZero())
	assert.Equal(t, placement.FeesPending, f.Status)
}

// =============================================================================
// EMI SCHEDULE
// =============================================================================

func TestGenerateSchedule_MonthAfterStart(t *testing.T) {
	// GIVEN: A job starting 2024-01-15 with EMIs on the 5th
	dates, err := placement.GenerateSchedule(date(2024, time.January, 15), 5, 8)
	require.NoError(t, err)

	// THEN: First installment is Feb 5, last is Sep 5
	require.Len(t, dates, 8)
	assert.Equal(t, date(2024, time.February, 5), dates[0])
	assert.Equal(t, date(2024, time.September, 5), dates[7])
}

func TestGenerateSchedule_ClampsToMonthEnd(t *testing.T) {
	// GIVEN: EMI day 31 starting in a leap-year January
	dates, err := placement.GenerateSchedule(date(2024, time.January, 10), 31, 4)
	require.NoError(t, err)

	// THEN: Short months clamp to their last day instead of spilling over
	assert.Equal(t, []time.Time{
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
		date(2024, time.May, 31),
	}, dates)
}

func TestGenerateSchedule_CrossesYearEnd(t *testing.T) {
	dates, err := placement.GenerateSchedule(date(2024, time.November, 20), 30, 3)
	require.NoError(t, err)

	assert.Equal(t, date(2024, time.December, 30), dates[0])
	assert.Equal(t, date(2025, time.January, 30), dates[1])
	assert.Equal(t, date(2025, time.February, 28), dates[2])
}

func TestGenerateSchedule_InvalidArguments(t *testing.T) {
	for _, day := range []int{0, 32, -1} {
		_, err := placement.GenerateSchedule(date(2024, time.January, 1), day, 8)
		assert.ErrorIs(t, err, placement.ErrInvalidArgument, "emiDay %d", day)
	}
	_, err := placement.GenerateSchedule(date(2024, time.January, 1), 5, 0)
	assert.ErrorIs(t, err, placement.ErrInvalidArgument)
}

// =============================================================================
// STATUS PROJECTION
// =============================================================================

func TestProjectFlags_ExactlyOneFlag(t *testing.T) {
	statuses := []placement.PlacementStatus{
		placement.StatusPlaced, placement.StatusHold, placement.StatusActive,
		placement.StatusOfferPending, "", "bogus",
	}
	for _, s := range statuses {
		flags := placement.ProjectFlags(s)
		assert.Equal(t, 1, flags.Count(), "status %q", s)
	}
}

func TestProjectFlags_RoundTripsThroughStatus(t *testing.T) {
	for _, s := range []placement.PlacementStatus{
		placement.StatusPlaced, placement.StatusHold, placement.StatusActive, placement.StatusOfferPending,
	} {
		assert.Equal(t, s, placement.ProjectFlags(s).Status())
		assert.True(t, placement.ProjectIsJob(s))
	}
	assert.Equal(t, placement.PlacementFlags{IsActive: true}, placement.ProjectFlags(""))
	assert.False(t, placement.ProjectIsJob(""))
}

func TestParsePlacementStatus(t *testing.T) {
	s, err := placement.ParsePlacementStatus("offerPending")
	require.NoError(t, err)
	assert.Equal(t, placement.StatusOfferPending, s)

	_, err = placement.ParsePlacementStatus("Placed")
	assert.ErrorIs(t, err, placement.ErrValidation)
}

// =============================================================================
// AUTHORIZATION GATE
// =============================================================================

func TestCapabilityTable_Authorize(t *testing.T) {
	gate := placement.DefaultCapabilities()
	ctx := context.Background()
	coord := placement.StaffID("coord-1")
	assigned := &placement.Consultant{Assignment: placement.StaffAssignment{CoordinatorID: &coord}}
	unassigned := &placement.Consultant{}

	tests := []struct {
		name    string
		actor   placement.Actor
		c       *placement.Consultant
		action  placement.Action
		allowed bool
	}{
		{"admin creates job details", placement.Actor{ID: "a", Role: placement.RoleAdmin}, unassigned, placement.ActionCreateJobDetails, true},
		{"assigned coordinator updates status", placement.Actor{ID: "coord-1", Role: placement.RoleCoordinator}, assigned, placement.ActionUpdatePlacementStatus, true},
		{"unassigned coordinator denied", placement.Actor{ID: "coord-2", Role: placement.RoleCoordinator}, assigned, placement.ActionUpdatePlacementStatus, false},
		{"coordinator cannot write fees", placement.Actor{ID: "coord-1", Role: placement.RoleCoordinator}, assigned, placement.ActionWriteFees, false},
		{"accounts writes fees", placement.Actor{ID: "acc", Role: placement.RoleAccounts}, unassigned, placement.ActionWriteFees, true},
		{"accounts cannot reset fees", placement.Actor{ID: "acc", Role: placement.RoleAccounts}, unassigned, placement.ActionResetFees, false},
		{"support has no grants", placement.Actor{ID: "s", Role: placement.RoleSupport}, unassigned, placement.ActionViewConsultant, false},
		{"assigned scope with no consultant", placement.Actor{ID: "coord-1", Role: placement.RoleCoordinator}, nil, placement.ActionCreateJobDetails, false},
		{"zero actor denied", placement.Actor{}, unassigned, placement.ActionViewConsultant, false},
		{"coordinator cannot delete consultant", placement.Actor{ID: "coord-1", Role: placement.RoleCoordinator}, assigned, placement.ActionDeleteConsultant, false},
		{"assigned coordinator reviews documents", placement.Actor{ID: "coord-1", Role: placement.RoleCoordinator}, assigned, placement.ActionReviewDocuments, true},
		{"builder claims any resume", placement.Actor{ID: "rb", Role: placement.RoleResumeBuilder}, unassigned, placement.ActionClaimResume, true},
		{"admin cannot claim resume", placement.Actor{ID: "a", Role: placement.RoleAdmin}, unassigned, placement.ActionClaimResume, false},
		{"unattached builder cannot release", placement.Actor{ID: "rb", Role: placement.RoleResumeBuilder}, unassigned, placement.ActionReleaseResume, false},
		{"admin cannot review resume", placement.Actor{ID: "a", Role: placement.RoleAdmin}, unassigned, placement.ActionReviewResume, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Authorize(ctx, tt.actor, tt.c, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, placement.ErrUnauthorized)
			var denied *placement.DeniedError
			assert.True(t, errors.As(err, &denied))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := placement.ParseRole("Accounts")
	require.NoError(t, err)
	assert.Equal(t, placement.RoleAccounts, r)

	_, err = placement.ParseRole("accounts")
	assert.ErrorIs(t, err, placement.ErrUnauthorized)
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, placement.IsNotFound(placement.ErrAgreementNotFound))
	assert.True(t, placement.IsClientError(placement.ErrProofRequired))
	assert.True(t, placement.IsRetryable(placement.ErrConcurrentModification))
	assert.False(t, placement.IsClientError(placement.ErrUnauthorized))
}
