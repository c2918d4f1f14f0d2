package backfill

import (
	"context"
	"fmt"
	"log"
	"time"

	"inbox-deals-api/internal/models"
)

// Policy is the retry policy for completion polling, independent of any
// scheduling primitive so tests can drive it with a fake sleep.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPolicy polls every 3 seconds for up to 120 attempts, several
// minutes in total.
func DefaultPolicy() Policy {
	return Policy{
		Interval:    3 * time.Second,
		MaxAttempts: 120,
	}
}

// Progress is reported to the caller after each non-terminal poll.
type Progress struct {
	State       models.JobState
	Processed   int
	Total       int
	ResultCount int
	Attempt     int
}

// Label renders a short status line for display.
func (p Progress) Label() string {
	if p.Total > 0 {
		return fmt.Sprintf("Processed %d of %d emails...", p.Processed, p.Total)
	}
	if p.ResultCount > 0 {
		return fmt.Sprintf("Found %d promotions...", p.ResultCount)
	}
	if p.State != "" {
		return fmt.Sprintf("Scan %s...", p.State)
	}
	return "Analyzing promotions..."
}

// Poller drives a backfill job to a terminal state within a bounded number
// of attempts.
type Poller struct {
	upstream StatusFetcher
	policy   Policy

	// sleep waits between attempts; replaced in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller with the given policy.
func NewPoller(up StatusFetcher, policy Policy) *Poller {
	return &Poller{
		upstream: up,
		policy:   policy,
		sleep:    sleepContext,
	}
}

// AwaitCompletion polls the job until it completes, fails, or the attempt
// budget runs out. Transport errors and non-2xx responses are soft: they
// are logged and the next attempt proceeds after the interval. A failed
// state or error message aborts immediately with ErrJobFailed. Exhausting
// the budget is not an error; the caller proceeds with whatever the scan
// has found so far.
func (p *Poller) AwaitCompletion(ctx context.Context, jobID string, progress func(Progress)) error {
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		status, err := p.upstream.JobStatus(ctx, jobID)
		if err != nil {
			log.Printf("[backfill] Poll attempt %d/%d failed for job %s: %v", attempt, p.policy.MaxAttempts, jobID, err)
		} else {
			if status.Failed() {
				msg := status.ErrorMessage
				if msg == "" {
					msg = string(status.State)
				}
				return fmt.Errorf("%w: %s", ErrJobFailed, msg)
			}

			if status.IsComplete {
				return nil
			}

			if progress != nil {
				progress(progressFrom(status, attempt))
			}
		}

		if attempt == p.policy.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, p.policy.Interval); err != nil {
			return err
		}
	}

	log.Printf("[backfill] Poll budget exhausted for job %s after %d attempts, proceeding", jobID, p.policy.MaxAttempts)
	return nil
}

func progressFrom(status models.JobStatus, attempt int) Progress {
	pr := Progress{State: status.State, Attempt: attempt}
	if status.ProcessedCount != nil {
		pr.Processed = *status.ProcessedCount
	}
	if status.TotalCount != nil {
		pr.Total = *status.TotalCount
	}
	if status.ResultCount != nil {
		pr.ResultCount = *status.ResultCount
	}
	return pr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
