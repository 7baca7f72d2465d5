// Package store provides in-process placement.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warp/placement-engine/placement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	consultants map[placement.ConsultantID]placement.Consultant
	jobs        map[placement.JobDetailsID]placement.JobDetails
	agreements  map[placement.AgreementID]placement.Agreement
	interviews  map[placement.InterviewID]placement.InterviewSchedule
}

func newState() state {
	return state{
		consultants: make(map[placement.ConsultantID]placement.Consultant),
		jobs:        make(map[placement.JobDetailsID]placement.JobDetails),
		agreements:  make(map[placement.AgreementID]placement.Agreement),
		interviews:  make(map[placement.InterviewID]placement.InterviewSchedule),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

// Records are stored by value, so every Get hands out a private copy.

// -----------------------------------------------------------------------------
// Consultants
// -----------------------------------------------------------------------------

func (m *Memory) InsertConsultant(_ context.Context, c *placement.Consultant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertConsultant(c)
}

func (m *Memory) GetConsultant(_ context.Context, id placement.ConsultantID) (*placement.Consultant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getConsultant(id), nil
}

func (m *Memory) ListConsultants(_ context.Context) ([]placement.Consultant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listConsultants(), nil
}

func (m *Memory) UpdateConsultant(_ context.Context, c *placement.Consultant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateConsultant(c)
}

func (m *Memory) DeleteConsultant(_ context.Context, id placement.ConsultantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteConsultant(id)
}

func (s *state) insertConsultant(c *placement.Consultant) error {
	if _, ok := s.consultants[c.ID]; ok {
		return fmt.Errorf("consultant %s: %w", c.ID, placement.ErrConflict)
	}
	c.Version = 1
	s.consultants[c.ID] = *c
	return nil
}

func (s *state) getConsultant(id placement.ConsultantID) *placement.Consultant {
	c, ok := s.consultants[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *state) listConsultants() []placement.Consultant {
	out := make([]placement.Consultant, 0, len(s.consultants))
	for _, c := range s.consultants {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *state) updateConsultant(c *placement.Consultant) error {
	stored, ok := s.consultants[c.ID]
	if !ok {
		return fmt.Errorf("%w: %s", placement.ErrConsultantNotFound, c.ID)
	}
	if stored.Version != c.Version {
		return fmt.Errorf("consultant %s: %w", c.ID, placement.ErrConcurrentModification)
	}
	c.Version++
	s.consultants[c.ID] = *c
	return nil
}

func (s *state) deleteConsultant(id placement.ConsultantID) error {
	if _, ok := s.consultants[id]; !ok {
		return fmt.Errorf("%w: %s", placement.ErrConsultantNotFound, id)
	}
	delete(s.consultants, id)
	return nil
}

// -----------------------------------------------------------------------------
// Job details
// -----------------------------------------------------------------------------

func (m *Memory) InsertJobDetails(_ context.Context, jd *placement.JobDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertJobDetails(jd)
}

func (m *Memory) GetJobDetails(_ context.Context, id placement.ConsultantID) (*placement.JobDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getJobDetails(id), nil
}

func (m *Memory) ListJobDetails(_ context.Context) ([]placement.JobDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listJobDetails(), nil
}

func (m *Memory) UpdateJobDetails(_ context.Context, jd *placement.JobDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateJobDetails(jd)
}

func (m *Memory) DeleteJobDetails(_ context.Context, id placement.JobDetailsID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteJobDetails(id)
}

func (s *state) insertJobDetails(jd *placement.JobDetails) error {
	if s.getJobDetails(jd.ConsultantID) != nil {
		return placement.ErrJobDetailsExists
	}
	jd.Version = 1
	s.jobs[jd.ID] = *jd
	return nil
}

func (s *state) getJobDetails(id placement.ConsultantID) *placement.JobDetails {
	for _, jd := range s.jobs {
		if jd.ConsultantID == id {
			return &jd
		}
	}
	return nil
}

func (s *state) listJobDetails() []placement.JobDetails {
	out := make([]placement.JobDetails, 0, len(s.jobs))
	for _, jd := range s.jobs {
		out = append(out, jd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateOfOffer.After(out[j].DateOfOffer) })
	return out
}

func (s *state) updateJobDetails(jd *placement.JobDetails) error {
	stored, ok := s.jobs[jd.ID]
	if !ok {
		return fmt.Errorf("%w: %s", placement.ErrJobDetailsNotFound, jd.ID)
	}
	if stored.Version != jd.Version {
		return fmt.Errorf("job details %s: %w", jd.ID, placement.ErrConcurrentModification)
	}
	jd.Version++
	s.jobs[jd.ID] = *jd
	return nil
}

func (s *state) deleteJobDetails(id placement.JobDetailsID) error {
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", placement.ErrJobDetailsNotFound, id)
	}
	delete(s.jobs, id)
	return nil
}

// -----------------------------------------------------------------------------
// Agreements
// -----------------------------------------------------------------------------

func (m *Memory) InsertAgreement(_ context.Context, a *placement.Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAgreement(a)
}

func (m *Memory) GetAgreement(_ context.Context, id placement.AgreementID) (*placement.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findAgreement(func(a placement.Agreement) bool { return a.ID == id }), nil
}

func (m *Memory) GetAgreementByJobDetails(_ context.Context, id placement.JobDetailsID) (*placement.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findAgreement(func(a placement.Agreement) bool { return a.JobDetailsID == id }), nil
}

func (m *Memory) GetAgreementByConsultant(_ context.Context, id placement.ConsultantID) (*placement.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findAgreement(func(a placement.Agreement) bool { return a.ConsultantID == id }), nil
}

func (m *Memory) FindAgreementByIdentity(_ context.Context, name, email string) (*placement.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findAgreement(identityMatch(name, email)), nil
}

func (m *Memory) ListAgreements(_ context.Context, status placement.CompletionStatus) ([]placement.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAgreements(status), nil
}

func (m *Memory) UpdateAgreement(_ context.Context, a *placement.Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAgreement(a)
}

func (m *Memory) DeleteAgreement(_ context.Context, id placement.AgreementID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAgreement(id), nil
}

func identityMatch(name, email string) func(placement.Agreement) bool {
	return func(a placement.Agreement) bool {
		return a.ConsultantName == name && strings.EqualFold(a.Email, email)
	}
}

func (s *state) insertAgreement(a *placement.Agreement) error {
	if s.findAgreement(func(x placement.Agreement) bool { return x.JobDetailsID == a.JobDetailsID }) != nil {
		return placement.ErrAgreementExists
	}
	a.Version = 1
	s.agreements[a.ID] = *a
	return nil
}

func (s *state) findAgreement(match func(placement.Agreement) bool) *placement.Agreement {
	for _, a := range s.agreements {
		if match(a) {
			return &a
		}
	}
	return nil
}

func (s *state) listAgreements(status placement.CompletionStatus) []placement.Agreement {
	var out []placement.Agreement
	for _, a := range s.agreements {
		if status == "" || a.CompletionStatus == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *state) updateAgreement(a *placement.Agreement) error {
	stored, ok := s.agreements[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", placement.ErrAgreementNotFound, a.ID)
	}
	if stored.Version != a.Version {
		return fmt.Errorf("agreement %s: %w", a.ID, placement.ErrConcurrentModification)
	}
	a.Version++
	s.agreements[a.ID] = *a
	return nil
}

func (s *state) deleteAgreement(id placement.AgreementID) bool {
	if _, ok := s.agreements[id]; !ok {
		return false
	}
	delete(s.agreements, id)
	return true
}

// -----------------------------------------------------------------------------
// Interviews
// -----------------------------------------------------------------------------

func (m *Memory) InsertInterview(_ context.Context, iv placement.InterviewSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertInterview(iv)
}

func (m *Memory) ListInterviews(_ context.Context, id placement.ConsultantID) ([]placement.InterviewSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listInterviews(id), nil
}

func (m *Memory) DeleteInterviewsByConsultant(_ context.Context, id placement.ConsultantID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteInterviews(id), nil
}

func (s *state) insertInterview(iv placement.InterviewSchedule) error {
	if _, ok := s.interviews[iv.ID]; ok {
		return fmt.Errorf("interview %s: %w", iv.ID, placement.ErrConflict)
	}
	s.interviews[iv.ID] = iv
	return nil
}

func (s *state) listInterviews(id placement.ConsultantID) []placement.InterviewSchedule {
	var out []placement.InterviewSchedule
	for _, iv := range s.interviews {
		if iv.ConsultantID == id {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *state) deleteInterviews(id placement.ConsultantID) int {
	n := 0
	for k, iv := range s.interviews {
		if iv.ConsultantID == id {
			delete(s.interviews, k)
			n++
		}
	}
	return n
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized; fn must only use the Store it is given.
func (tm *TxMemory) WithTx(_ context.Context, fn func(placement.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{s: &tm.state}); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() state {
	cp := newState()
	for k, v := range tm.consultants {
		cp.consultants[k] = v
	}
	for k, v := range tm.jobs {
		cp.jobs[k] = v
	}
	for k, v := range tm.agreements {
		cp.agreements[k] = v
	}
	for k, v := range tm.interviews {
		cp.interviews[k] = v
	}
	return cp
}

// txMemoryView works on the parent's state while WithTx holds the lock.
type txMemoryView struct {
	s *state
}

func (v *txMemoryView) InsertConsultant(_ context.Context, c *placement.Consultant) error {
	return v.s.insertConsultant(c)
}

func (v *txMemoryView) GetConsultant(_ context.Context, id placement.ConsultantID) (*placement.Consultant, error) {
	return v.s.getConsultant(id), nil
}

func (v *txMemoryView) ListConsultants(_ context.Context) ([]placement.Consultant, error) {
	return v.s.listConsultants(), nil
}

func (v *txMemoryView) UpdateConsultant(_ context.Context, c *placement.Consultant) error {
	return v.s.updateConsultant(c)
}

func (v *txMemoryView) DeleteConsultant(_ context.Context, id placement.ConsultantID) error {
	return v.s.deleteConsultant(id)
}

func (v *txMemoryView) InsertJobDetails(_ context.Context, jd *placement.JobDetails) error {
	return v.s.insertJobDetails(jd)
}

func (v *txMemoryView) GetJobDetails(_ context.Context, id placement.ConsultantID) (*placement.JobDetails, error) {
	return v.s.getJobDetails(id), nil
}

func (v *txMemoryView) ListJobDetails(_ context.Context) ([]placement.JobDetails, error) {
	return v.s.listJobDetails(), nil
}

func (v *txMemoryView) UpdateJobDetails(_ context.Context, jd *placement.JobDetails) error {
	return v.s.updateJobDetails(jd)
}

func (v *txMemoryView) DeleteJobDetails(_ context.Context, id placement.JobDetailsID) error {
	return v.s.deleteJobDetails(id)
}

func (v *txMemoryView) InsertAgreement(_ context.Context, a *placement.Agreement) error {
	return v.s.insertAgreement(a)
}

func (v *txMemoryView) GetAgreement(_ context.Context, id placement.AgreementID) (*placement.Agreement, error) {
	return v.s.findAgreement(func(a placement.Agreement) bool { return a.ID == id }), nil
}

func (v *txMemoryView) GetAgreementByJobDetails(_ context.Context, id placement.JobDetailsID) (*placement.Agreement, error) {
	return v.s.findAgreement(func(a placement.Agreement) bool { return a.JobDetailsID == id }), nil
}

func (v *txMemoryView) GetAgreementByConsultant(_ context.Context, id placement.ConsultantID) (*placement.Agreement, error) {
	return v.s.findAgreement(func(a placement.Agreement) bool { return a.ConsultantID == id }), nil
}

func (v *txMemoryView) FindAgreementByIdentity(_ context.Context, name, email string) (*placement.Agreement, error) {
	return v.s.findAgreement(identityMatch(name, email)), nil
}

func (v *txMemoryView) ListAgreements(_ context.Context, status placement.CompletionStatus) ([]placement.Agreement, error) {
	return v.s.listAgreements(status), nil
}

func (v *txMemoryView) UpdateAgreement(_ context.Context, a *placement.Agreement) error {
	return v.s.updateAgreement(a)
}

func (v *txMemoryView) DeleteAgreement(_ context.Context, id placement.AgreementID) (bool, error) {
	return v.s.deleteAgreement(id), nil
}

func (v *txMemoryView) InsertInterview(_ context.Context, iv placement.InterviewSchedule) error {
	return v.s.insertInterview(iv)
}

func (v *txMemoryView) ListInterviews(_ context.Context, id placement.ConsultantID) ([]placement.InterviewSchedule, error) {
	return v.s.listInterviews(id), nil
}

func (v *txMemoryView) DeleteInterviewsByConsultant(_ context.Context, id placement.ConsultantID) (int, error) {
	return v.s.deleteInterviews(id), nil
}

var (
	_ placement.TxStore = (*TxMemory)(nil)
	_ placement.Store   = (*txMemoryView)(nil)
)
