package placement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/placement-engine/placement"
	"github.com/warp/placement-engine/placement/store"
)

// =============================================================================
// CONSULTANT TESTS
// =============================================================================

func TestLifecycle_RegisterConsultant_StartsActive(t *testing.T) {
	e := newTestEngine(t)

	// WHEN: Registering a consultant with a mixed-case email
	c, err := e.lifecycle.RegisterConsultant(context.Background(), admin, placement.NewConsultant{
		Name: " Jane Doe ", Email: "Jane@Example.COM", Phone: "555-0101",
	})
	require.NoError(t, err)

	// THEN: The consultant has no job and reads as active
	assert.Equal(t, "Jane Doe", c.Name)
	assert.Equal(t, "jane@example.com", c.Email)
	assert.Equal(t, placement.PlacementFlags{IsActive: true}, c.Flags)
	assert.Equal(t, placement.DocumentsPending, c.DocumentVerification)
	assert.Equal(t, int64(1), c.Version)
}

func TestLifecycle_RegisterConsultant_MissingFields(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.lifecycle.RegisterConsultant(context.Background(), admin, placement.NewConsultant{Name: "Only Name"})

	var verr *placement.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"email", "phone"}, verr.Fields)
}

func TestLifecycle_ListConsultants_ScopedToAssignment(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// GIVEN: One consultant assigned to coord, one unassigned
	mine := e.registerConsultant(t, "Mine", "mine@example.com")
	_, err := e.lifecycle.RegisterConsultant(ctx, admin, placement.NewConsultant{
		Name: "Other", Email: "other@example.com", Phone: "555-0102",
	})
	require.NoError(t, err)

	// WHEN: Each actor lists consultants
	forCoord, err := e.lifecycle.ListConsultants(ctx, coord)
	require.NoError(t, err)
	forAdmin, err := e.lifecycle.ListConsultants(ctx, admin)
	require.NoError(t, err)

	// THEN: The coordinator only sees the assigned consultant
	require.Len(t, forCoord, 1)
	assert.Equal(t, mine, forCoord[0].ID)
	assert.Len(t, forAdmin, 2)
}

func TestLifecycle_UpdateWorkStatus(t *testing.T) {
	e := newTestEngine(t)
	id := e.registerConsultant(t, "Jane", "jane@example.com")
	yes := true

	c, err := e.lifecycle.UpdateWorkStatus(context.Background(), coord, id, placement.WorkStatusUpdate{BGVVerified: &yes})
	require.NoError(t, err)
	assert.True(t, c.BGVVerified)
	assert.False(t, c.OpenForWork)

	_, err = e.lifecycle.UpdateWorkStatus(context.Background(), coord, id, placement.WorkStatusUpdate{})
	assert.ErrorIs(t, err, placement.ErrValidation)
}

func TestLifecycle_IncrementJobLostCount_CapsAtTwo(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.registerConsultant(t, "Jane", "jane@example.com")

	// WHEN: Incrementing three times
	for want := 1; want <= placement.MaxJobLostCount; want++ {
		c, err := e.lifecycle.IncrementJobLostCount(ctx, admin, id)
		require.NoError(t, err)
		assert.Equal(t, want, c.JobLostCount)
	}
	_, err := e.lifecycle.IncrementJobLostCount(ctx, admin, id)

	// THEN: The third is rejected and the count stays at the cap
	assert.ErrorIs(t, err, placement.ErrInvalidState)
	assert.Equal(t, placement.MaxJobLostCount, e.consultant(t, id).JobLostCount)
}

// =============================================================================
// JOB DETAILS TESTS
// =============================================================================

func TestLifecycle_CreateJobDetails_ProjectsActive(t *testing.T) {
	e := newTestEngine(t)
	id := e.registerConsultant(t, "Jane", "jane@example.com")

	// WHEN: An admin records an offer with fees
	jd, err := e.lifecycle.CreateJobDetails(context.Background(), admin, id, placement.NewJobDetails{
		CompanyName:  "Acme",
		JobType:      "Contract",
		DateOfOffer:  date(2024, time.January, 15),
		TotalFees:    decPtr("1000"),
		ReceivedFees: decPtr("400"),
	})
	require.NoError(t, err)

	// THEN: The job is live, active, and fees are derived
	assert.True(t, jd.IsJob)
	assert.Equal(t, placement.StatusActive, jd.PlacementStatus)
	assert.Equal(t, placement.FeesPartial, jd.Fees.Status)
	assert.True(t, dec("600").Equal(*jd.Fees.Remaining))
	assert.Equal(t, admin.ID, jd.CreatedBy)
	assert.Equal(t, placement.PlacementFlags{IsActive: true}, e.consultant(t, id).Flags)
	assert.Contains(t, e.events.Types(), placement.EventJobDetailsCreated)
}

func TestLifecycle_CreateJobDetails_StripsFeesForCoordinator(t *testing.T) {
	e := newTestEngine(t)
	id := e.registerConsultant(t, "Jane", "jane@example.com")

	// WHEN: The assigned coordinator records an offer including fees
	jd, err := e.lifecycle.CreateJobDetails(context.Background(), coord, id, placement.NewJobDetails{
		CompanyName: "Acme",
		JobType:     "Contract",
		DateOfOffer: date(2024, time.January, 15),
		TotalFees:   decPtr("1000"),
	})
	require.NoError(t, err)

	// THEN: The fee fields were not written
	assert.Nil(t, jd.Fees.Total)
	assert.True(t, jd.Fees.Received.IsZero())
	assert.Equal(t, placement.FeesPending, jd.Fees.Status)
}

func TestLifecycle_CreateJobDetails_Conflict(t *testing.T) {
	e := newTestEngine(t)
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	_, err := e.lifecycle.CreateJobDetails(context.Background(), admin, id, placement.NewJobDetails{
		CompanyName: "Globex", JobType: "Contract", DateOfOffer: date(2024, time.March, 1),
	})

	assert.ErrorIs(t, err, placement.ErrConflict)
	assert.Equal(t, "Acme", e.jobDetails(t, id).CompanyName)
}

func TestLifecycle_CreateJobDetails_Validation(t *testing.T) {
	e := newTestEngine(t)
	id := e.registerConsultant(t, "Jane", "jane@example.com")

	_, err := e.lifecycle.CreateJobDetails(context.Background(), admin, id, placement.NewJobDetails{CompanyName: "Acme"})

	var verr *placement.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"jobType", "dateOfOffer"}, verr.Fields)
	assert.Nil(t, e.jobDetails(t, id))
}

func TestLifecycle_CreateJobDetails_UnknownConsultant(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.lifecycle.CreateJobDetails(context.Background(), admin, "nobody", placement.NewJobDetails{
		CompanyName: "Acme", JobType: "Contract", DateOfOffer: date(2024, time.January, 15),
	})

	assert.ErrorIs(t, err, placement.ErrConsultantNotFound)
}

func TestLifecycle_UpdatePlacementStatus_FlagsFollowStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	// WHEN: Walking through every status
	for _, s := range []placement.PlacementStatus{
		placement.StatusOfferPending, placement.StatusPlaced, placement.StatusHold, placement.StatusActive,
	} {
		jd, err := e.lifecycle.UpdatePlacementStatus(ctx, coord, id, s)
		require.NoError(t, err)

		// THEN: Consultant flags always project the job's status, exactly one set
		c := e.consultant(t, id)
		assert.Equal(t, s, jd.PlacementStatus)
		assert.Equal(t, placement.ProjectFlags(s), c.Flags)
		assert.Equal(t, 1, c.Flags.Count())
		assert.Equal(t, placement.ProjectIsJob(s), e.jobDetails(t, id).IsJob)
	}
}

func TestLifecycle_UpdatePlacementStatus_UnassignedCoordinator(t *testing.T) {
	e := newTestEngine(t)
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	// WHEN: A coordinator not assigned to the consultant changes status
	_, err := e.lifecycle.UpdatePlacementStatus(context.Background(), otherCoord, id, placement.StatusPlaced)

	// THEN: Denied, and nothing changed
	assert.ErrorIs(t, err, placement.ErrUnauthorized)
	assert.Equal(t, placement.StatusActive, e.jobDetails(t, id).PlacementStatus)
	assert.Equal(t, placement.PlacementFlags{IsActive: true}, e.consultant(t, id).Flags)
}

func TestLifecycle_UpdatePlacementStatus_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.registerConsultant(t, "Jane", "jane@example.com")

	_, err := e.lifecycle.UpdatePlacementStatus(ctx, admin, id, placement.StatusPlaced)
	assert.ErrorIs(t, err, placement.ErrJobDetailsNotFound)

	_, err = e.lifecycle.UpdatePlacementStatus(ctx, admin, id, "retired")
	assert.ErrorIs(t, err, placement.ErrValidation)
}

func TestLifecycle_UpdatePlacementStatus_ClosedJob(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	// GIVEN: A job record that is no longer live
	jd := e.jobDetails(t, id)
	jd.IsJob = false
	require.NoError(t, e.store.UpdateJobDetails(ctx, jd))

	// WHEN: Changing its status
	_, err := e.lifecycle.UpdatePlacementStatus(ctx, admin, id, placement.StatusPlaced)

	// THEN: The state forbids it
	var serr *placement.StateError
	require.True(t, errors.As(err, &serr))
	assert.ErrorIs(t, err, placement.ErrInvalidState)
}

func TestLifecycle_GetJobDetails_MasksFees(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	asCoord, err := e.lifecycle.GetJobDetails(ctx, coord, id)
	require.NoError(t, err)
	asAccounts, err := e.lifecycle.GetJobDetails(ctx, accounts, id)
	require.NoError(t, err)

	assert.False(t, asCoord.FeesVisible)
	assert.Nil(t, asCoord.JobDetails.Fees.Total)
	assert.Equal(t, placement.FeesPending, asCoord.JobDetails.Fees.Status)

	assert.True(t, asAccounts.FeesVisible)
	require.NotNil(t, asAccounts.JobDetails.Fees.Total)
	assert.True(t, dec("1000").Equal(*asAccounts.JobDetails.Fees.Total))
}

func TestLifecycle_ListPlacedJobDetails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.placeConsultant(t, "Jane", "jane@example.com")
	e.registerConsultant(t, "Idle", "idle@example.com")

	views, err := e.lifecycle.ListPlacedJobDetails(ctx, accounts)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Jane", views[0].Consultant.Name)

	_, err = e.lifecycle.ListPlacedJobDetails(ctx, coord)
	assert.ErrorIs(t, err, placement.ErrUnauthorized)
}

// =============================================================================
// FEES TESTS
// =============================================================================

func TestLifecycle_ResetFees_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	// WHEN: Resetting fees twice
	first, err := e.lifecycle.ResetFees(ctx, admin, id)
	require.NoError(t, err)
	second, err := e.lifecycle.ResetFees(ctx, admin, id)
	require.NoError(t, err)

	// THEN: Both produce the same zeroed fees
	for _, f := range []placement.Fees{first.Fees, second.Fees} {
		require.NotNil(t, f.Total)
		require.NotNil(t, f.Remaining)
		assert.True(t, f.Total.IsZero())
		assert.True(t, f.Received.IsZero())
		assert.True(t, f.Remaining.IsZero())
		assert.Equal(t, placement.FeesPending, f.Status)
	}
}

func TestLifecycle_ResetFees_AccountsDenied(t *testing.T) {
	e := newTestEngine(t)
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	_, err := e.lifecycle.ResetFees(context.Background(), accounts, id)

	assert.ErrorIs(t, err, placement.ErrUnauthorized)
	assert.True(t, dec("1000").Equal(*e.jobDetails(t, id).Fees.Total))
}

func TestLifecycle_UpdateFees_Rederives(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	jd, err := e.lifecycle.UpdateFees(ctx, accounts, id, placement.FeeUpdate{ReceivedFees: decPtr("1000")})
	require.NoError(t, err)
	assert.Equal(t, placement.FeesCompleted, jd.Fees.Status)
	assert.True(t, jd.Fees.Remaining.IsZero())

	_, err = e.lifecycle.UpdateFees(ctx, accounts, id, placement.FeeUpdate{TotalFees: decPtr("-1")})
	assert.ErrorIs(t, err, placement.ErrValidation)
	assert.Equal(t, placement.FeesCompleted, e.jobDetails(t, id).Fees.Status)
}

// =============================================================================
// JOB LOSS & DELETION TESTS
// =============================================================================

func TestLifecycle_UpdateAfterJobLost_KeepsFees(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id, _ := e.createAgreement(t, "Jane", "jane@example.com")
	_, err := e.lifecycle.UpdatePlacementStatus(ctx, admin, id, placement.StatusPlaced)
	require.NoError(t, err)
	_, err = e.lifecycle.IncrementJobLostCount(ctx, admin, id)
	require.NoError(t, err)

	// WHEN: Reopening on a new company
	jd, err := e.lifecycle.UpdateAfterJobLost(ctx, coord, id, placement.Reoffer{
		CompanyName: "Globex", JobType: "Contract", DateOfOffer: date(2024, time.June, 1),
	})
	require.NoError(t, err)

	// THEN: Job is active again, agreement link cleared, fees and counter untouched
	assert.Equal(t, "Globex", jd.CompanyName)
	assert.Equal(t, placement.StatusActive, jd.PlacementStatus)
	assert.True(t, jd.IsJob)
	assert.False(t, jd.IsAgreement)
	assert.True(t, dec("1000").Equal(*jd.Fees.Total))

	c := e.consultant(t, id)
	assert.Equal(t, placement.PlacementFlags{IsActive: true}, c.Flags)
	assert.Equal(t, 1, c.JobLostCount)
}

func TestLifecycle_UpdateAfterJobLost_MissingJob(t *testing.T) {
	e := newTestEngine(t)
	id := e.registerConsultant(t, "Jane", "jane@example.com")

	_, err := e.lifecycle.UpdateAfterJobLost(context.Background(), admin, id, placement.Reoffer{
		CompanyName: "Globex", JobType: "Contract", DateOfOffer: date(2024, time.June, 1),
	})

	assert.ErrorIs(t, err, placement.ErrJobDetailsNotFound)
}

func TestLifecycle_DeleteJobDetails_CascadeResetsToActive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// GIVEN: A placed consultant with an agreement and two interviews
	id, _ := e.createAgreement(t, "Jane", "jane@example.com")
	_, err := e.lifecycle.UpdatePlacementStatus(ctx, admin, id, placement.StatusPlaced)
	require.NoError(t, err)
	_, err = e.lifecycle.IncrementJobLostCount(ctx, admin, id)
	require.NoError(t, err)
	for i, company := range []string{"Acme", "Globex"} {
		require.NoError(t, e.store.InsertInterview(ctx, placement.InterviewSchedule{
			ID:           placement.InterviewID(company),
			ConsultantID: id,
			CompanyName:  company,
			Date:         date(2024, time.January, 2+i),
			Round:        "1",
		}))
	}

	// WHEN: Undoing the placement
	summary, err := e.lifecycle.DeleteJobDetails(ctx, admin, id)
	require.NoError(t, err)

	// THEN: Everything hanging off the placement is gone
	assert.Equal(t, 2, summary.InterviewsDeleted)
	assert.True(t, summary.AgreementDeleted)
	assert.Nil(t, e.jobDetails(t, id))

	interviews, err := e.store.ListInterviews(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, interviews)
	a, err := e.store.GetAgreementByConsultant(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, a)

	// AND: The consultant is back to a fresh, unassigned, active state.
	// Exactly one flag is always true, so the reset lands on IsActive.
	c := e.consultant(t, id)
	assert.Equal(t, placement.PlacementFlags{IsActive: true}, c.Flags, "reset consultant must be active, not flagless")
	assert.False(t, c.Flags.IsPlaced)
	assert.False(t, c.Flags.IsHold)
	assert.False(t, c.Flags.IsOfferPending)
	assert.Equal(t, 0, c.JobLostCount)
	assert.Nil(t, c.Assignment.CoordinatorID)
	assert.Nil(t, c.Assignment.AssignedAt)
}

// failingJobDelete is a TxStore whose transactional view refuses to delete
// job details, so the cascade fails after interviews and the agreement are
// already gone inside the transaction.
type failingJobDelete struct {
	*store.TxMemory
	err error
}

func (f *failingJobDelete) WithTx(ctx context.Context, fn func(placement.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(s placement.Store) error {
		return fn(jobDeleteErrView{Store: s, err: f.err})
	})
}

type jobDeleteErrView struct {
	placement.Store
	err error
}

func (v jobDeleteErrView) DeleteJobDetails(context.Context, placement.JobDetailsID) error {
	return v.err
}

func TestLifecycle_DeleteJobDetails_FailureRollsBackCascade(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// GIVEN: A placed consultant with an agreement and an interview
	id, a := e.createAgreement(t, "Jane", "jane@example.com")
	_, err := e.lifecycle.UpdatePlacementStatus(ctx, admin, id, placement.StatusPlaced)
	require.NoError(t, err)
	require.NoError(t, e.store.InsertInterview(ctx, placement.InterviewSchedule{
		ID: "iv-1", ConsultantID: id, CompanyName: "Acme", Date: date(2024, time.January, 3), Round: "1",
	}))
	before := e.consultant(t, id)
	jdBefore := e.jobDetails(t, id)

	// AND: A store whose job details delete fails mid-cascade
	diskFull := errors.New("disk full")
	lifecycle := placement.NewLifecycle(&failingJobDelete{TxMemory: e.store, err: diskFull}, placement.DefaultCapabilities())
	lifecycle.Now = e.lifecycle.Now

	// WHEN: Undoing the placement
	summary, err := lifecycle.DeleteJobDetails(ctx, admin, id)

	// THEN: The error surfaces and nothing was removed or reset
	assert.ErrorIs(t, err, diskFull)
	assert.Nil(t, summary)

	interviews, err := e.store.ListInterviews(ctx, id)
	require.NoError(t, err)
	assert.Len(t, interviews, 1)
	stored, err := e.store.GetAgreement(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, jdBefore.ID, stored.JobDetailsID)

	jd := e.jobDetails(t, id)
	require.NotNil(t, jd)
	assert.Equal(t, placement.StatusPlaced, jd.PlacementStatus)
	assert.True(t, jd.IsAgreement)

	after := e.consultant(t, id)
	assert.Equal(t, before.Flags, after.Flags)
	assert.True(t, after.Flags.IsPlaced)
	require.NotNil(t, after.Assignment.CoordinatorID)
	assert.Equal(t, coord.ID, *after.Assignment.CoordinatorID)
	assert.Equal(t, before.JobLostCount, after.JobLostCount)
}

func TestLifecycle_DeleteJobDetails_WithoutAgreement(t *testing.T) {
	e := newTestEngine(t)
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	summary, err := e.lifecycle.DeleteJobDetails(context.Background(), superAdmin, id)

	require.NoError(t, err)
	assert.False(t, summary.AgreementDeleted)
	assert.Equal(t, 0, summary.InterviewsDeleted)
}

func TestLifecycle_DeleteJobDetails_CoordinatorDenied(t *testing.T) {
	e := newTestEngine(t)
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	_, err := e.lifecycle.DeleteJobDetails(context.Background(), coord, id)

	assert.ErrorIs(t, err, placement.ErrUnauthorized)
	assert.NotNil(t, e.jobDetails(t, id))
}

func TestLifecycle_StaleVersion_Rejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := e.placeConsultant(t, "Jane", "jane@example.com")

	// GIVEN: Two readers of the same job record
	first := e.jobDetails(t, id)
	second := e.jobDetails(t, id)

	// WHEN: Both write
	first.CompanyName = "First"
	require.NoError(t, e.store.UpdateJobDetails(ctx, first))
	second.CompanyName = "Second"
	err := e.store.UpdateJobDetails(ctx, second)

	// THEN: The second write loses
	assert.ErrorIs(t, err, placement.ErrConcurrentModification)
	assert.Equal(t, "First", e.jobDetails(t, id).CompanyName)
}
