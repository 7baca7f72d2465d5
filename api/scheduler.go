/*
scheduler.go - Automated overdue installment sweep

PURPOSE:
  Periodically marks agreement installments whose due date has passed
  without a payment as overdue.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates to Ledger.SweepOverdue as the system actor
  - Each agreement is swept in its own transaction; one failure does not
    stop the rest of the sweep
  - Paid, already overdue and terminated installments are left alone

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(ledger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SweepOverdue endpoint (manual sweep)
  - placement/ledger.go: SweepOverdue
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/placement-engine/placement"
)

// OverdueScheduler handles the automated overdue sweep.
type OverdueScheduler struct {
	Ledger        *placement.Ledger
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(ledger *placement.Ledger) *OverdueScheduler {
	return &OverdueScheduler{
		Ledger:        ledger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           func() time.Time { return time.Now().UTC() },
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (s *OverdueScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndProcess()

	for {
		select {
		case <-ticker.C:
			s.checkAndProcess()
		case <-stop:
			return
		}
	}
}

func (s *OverdueScheduler) checkAndProcess() int {
	ctx := context.Background()
	now := s.Now()

	marked, err := s.Ledger.SweepOverdue(ctx, placement.SystemActor, now)
	if err != nil {
		log.Printf("[Scheduler] Overdue sweep failed: %v", err)
		return marked
	}
	if marked > 0 {
		log.Printf("[Scheduler] Completed: %d installments marked overdue as of %s", marked, now.Format(dateLayout))
	}
	return marked
}

// RunNow triggers an immediate sweep and reports how many installments
// were marked.
func (s *OverdueScheduler) RunNow() int {
	return s.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *OverdueScheduler) GetNextRunTime() time.Time {
	return s.Now().Add(s.CheckInterval)
}
