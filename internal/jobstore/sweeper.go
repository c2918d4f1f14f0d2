package jobstore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"inbox-deals-api/internal/models"
)

// StatusFunc fetches the current status of a backfill job.
type StatusFunc func(ctx context.Context, jobID string) (models.JobStatus, error)

// Sweeper periodically clears handles whose jobs completed upstream, so a
// user who never returned after their scan finished does not keep a stale
// handle forever. Handles for failed jobs are left alone; the orchestrator
// clears those on the next connect and restarts the scan.
type Sweeper struct {
	cron   *cron.Cron
	store  *Store
	status StatusFunc
	spec   string
}

// NewSweeper creates a Sweeper that fires every interval.
func NewSweeper(store *Store, status StatusFunc, interval time.Duration) *Sweeper {
	return &Sweeper{
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		store:  store,
		status: status,
		spec:   fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[sweeper] Started with schedule %s", s.spec)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	log.Println("[sweeper] Stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	handles, err := s.store.List()
	if err != nil {
		log.Printf("[sweeper] List error: %v", err)
		return
	}

	if len(handles) == 0 {
		return
	}

	cleared := 0
	for _, handle := range handles {
		status, err := s.status(ctx, handle.JobID)
		if err != nil {
			// Transport errors are left for the next sweep.
			log.Printf("[sweeper] Status check failed for job %s: %v", handle.JobID, err)
			continue
		}

		if status.IsComplete && !status.Failed() {
			if err := s.store.Clear(handle.UserID); err != nil {
				log.Printf("[sweeper] Clear failed for user %s: %v", handle.UserID, err)
				continue
			}
			cleared++
		}
	}

	if cleared > 0 {
		log.Printf("[sweeper] Cleared %d completed handle(s)", cleared)
	}
}
