package placement_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/placement-engine/events"
	"github.com/warp/placement-engine/placement"
	"github.com/warp/placement-engine/placement/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	superAdmin = placement.Actor{ID: "sa-1", Name: "Root", Role: placement.RoleSuperAdmin}
	admin      = placement.Actor{ID: "admin-1", Name: "Ada", Role: placement.RoleAdmin}
	accounts   = placement.Actor{ID: "acc-1", Name: "Abe", Role: placement.RoleAccounts}
	coord      = placement.Actor{ID: "coord-1", Name: "Cora", Role: placement.RoleCoordinator}
	otherCoord = placement.Actor{ID: "coord-2", Name: "Cole", Role: placement.RoleCoordinator}
)

type testEngine struct {
	lifecycle *placement.Lifecycle
	ledger    *placement.Ledger
	store     *store.TxMemory
	events    *events.Recorder
	files     *memFiles
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	mem := store.NewTxMemory()
	rec := &events.Recorder{}
	files := newMemFiles()
	gate := placement.DefaultCapabilities()

	clock := fixedClock(time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC))
	ids := sequence()

	lifecycle := placement.NewLifecycle(mem, gate)
	lifecycle.Events = rec
	lifecycle.Now = clock
	lifecycle.NewID = ids

	ledger := placement.NewLedger(mem, gate, files)
	ledger.Events = rec
	ledger.Now = clock
	ledger.NewID = ids

	return &testEngine{lifecycle: lifecycle, ledger: ledger, store: mem, events: rec, files: files}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequence() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

// registerConsultant creates a consultant assigned to coord.
func (e *testEngine) registerConsultant(t *testing.T, name, email string) placement.ConsultantID {
	t.Helper()
	ctx := context.Background()
	c, err := e.lifecycle.RegisterConsultant(ctx, admin, placement.NewConsultant{
		Name: name, Email: email, Phone: "555-0100", Technology: "Go",
	})
	require.NoError(t, err)
	coordID := coord.ID
	_, err = e.lifecycle.AssignStaff(ctx, admin, c.ID, placement.StaffAssignment{CoordinatorID: &coordID})
	require.NoError(t, err)
	return c.ID
}

// placeConsultant registers a consultant and records an offer dated 2024-01-15.
func (e *testEngine) placeConsultant(t *testing.T, name, email string) placement.ConsultantID {
	t.Helper()
	id := e.registerConsultant(t, name, email)
	_, err := e.lifecycle.CreateJobDetails(context.Background(), admin, id, placement.NewJobDetails{
		CompanyName: "Acme",
		JobType:     "Full-time",
		DateOfOffer: date(2024, time.January, 15),
		TotalFees:   decPtr("1000"),
	})
	require.NoError(t, err)
	return id
}

// createAgreement places a consultant and creates the scenario agreement:
// salary 10000 at the default 0.08 rate, EMIs on the 5th.
func (e *testEngine) createAgreement(t *testing.T, name, email string) (placement.ConsultantID, *placement.Agreement) {
	t.Helper()
	id := e.placeConsultant(t, name, email)
	a, err := e.ledger.CreateAgreement(context.Background(), accounts, id, placement.NewAgreement{
		TotalSalary: dec("10000"),
		EMIDay:      5,
	})
	require.NoError(t, err)
	return id, a
}

func (e *testEngine) uploadProof(t *testing.T, id placement.ConsultantID, n int) {
	t.Helper()
	_, err := e.ledger.UploadInstallmentProof(context.Background(), accounts, id, n, placement.ProofUpload{
		Content:     strings.NewReader("%PDF-1.4 receipt"),
		FileName:    "receipt.pdf",
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
}

func (e *testEngine) consultant(t *testing.T, id placement.ConsultantID) *placement.Consultant {
	t.Helper()
	c, err := e.store.GetConsultant(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (e *testEngine) jobDetails(t *testing.T, id placement.ConsultantID) *placement.JobDetails {
	t.Helper()
	jd, err := e.store.GetJobDetails(context.Background(), id)
	require.NoError(t, err)
	return jd
}

// =============================================================================
// IN-MEMORY FILE STORE
// =============================================================================

type memFiles struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  error
}

func newMemFiles() *memFiles {
	return &memFiles{blobs: make(map[string][]byte)}
}

func (f *memFiles) Store(_ context.Context, r io.Reader, name string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := fmt.Sprintf("blob-%d-%s", len(f.blobs)+1, name)
	f.blobs[ref] = b
	return ref, nil
}

func (f *memFiles) Retrieve(_ context.Context, ref string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[ref]
	if !ok {
		return nil, placement.ErrProofNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *memFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}
