// Package backfill drives a server-side mailbox scan to completion: the
// Orchestrator establishes a job (reusing a persisted handle from a
// previous page load when one is still usable) and the Poller waits for it
// to finish.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"inbox-deals-api/internal/models"
)

// ErrStartFailed means no backfill job could be established. It is fatal:
// the connect flow aborts and returns the user to the entry point.
var ErrStartFailed = errors.New("backfill: could not start scan job")

// ErrJobFailed means the backfill job itself reported failure.
var ErrJobFailed = errors.New("backfill: scan job failed")

// HandleStore persists job handles across restarts.
type HandleStore interface {
	Get(userID string) (*models.JobHandle, error)
	Set(userID, jobID string) error
	Clear(userID string) error
}

// StatusFetcher fetches the current status of a backfill job.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (models.JobStatus, error)
}

// Starter issues the upstream start-scan request.
type Starter interface {
	StartBackfill(ctx context.Context, req models.BackfillRequest) (string, error)
}

// Upstream is the slice of the upstream client the orchestrator needs.
type Upstream interface {
	Starter
	StatusFetcher
}

const dateLayout = "2006-01-02"

// Orchestrator ensures exactly one backfill job exists per user.
type Orchestrator struct {
	store      HandleStore
	upstream   Upstream
	tenantID   string
	windowDays int
	batchSize  int
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. windowDays is the scan lookback
// window; batchSize the upstream batch size per request.
func NewOrchestrator(store HandleStore, up Upstream, tenantID string, windowDays, batchSize int) *Orchestrator {
	return &Orchestrator{
		store:      store,
		upstream:   up,
		tenantID:   tenantID,
		windowDays: windowDays,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// EnsureStarted returns the id of a usable backfill job for the user,
// reusing a persisted handle when the job it points to is still complete or
// running, and starting a new scan otherwise. A handle whose job failed or
// can no longer be found is cleared before the new scan is started.
func (o *Orchestrator) EnsureStarted(ctx context.Context, userID string) (string, error) {
	handle, err := o.store.Get(userID)
	if err != nil {
		// A broken store read is treated like a missing handle; a duplicate
		// scan is preferable to aborting the flow.
		log.Printf("[backfill] Handle lookup failed for user %s: %v", userID, err)
		handle = nil
	}

	if handle != nil {
		status, err := o.upstream.JobStatus(ctx, handle.JobID)
		switch {
		case err != nil:
			log.Printf("[backfill] Persisted job %s not reachable, clearing handle: %v", handle.JobID, err)
			if err := o.store.Clear(userID); err != nil {
				log.Printf("[backfill] Clear failed for user %s: %v", userID, err)
			}
		case status.Failed():
			log.Printf("[backfill] Persisted job %s is failed, clearing handle", handle.JobID)
			if err := o.store.Clear(userID); err != nil {
				log.Printf("[backfill] Clear failed for user %s: %v", userID, err)
			}
		default:
			// Complete or still running: reuse it.
			return handle.JobID, nil
		}
	}

	end := o.now()
	start := end.AddDate(0, 0, -o.windowDays)

	jobID, err := o.upstream.StartBackfill(ctx, models.BackfillRequest{
		UserID:    userID,
		TenantID:  o.tenantID,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		BatchSize: o.batchSize,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	if jobID == "" {
		return "", fmt.Errorf("%w: empty request id", ErrStartFailed)
	}

	if err := o.store.Set(userID, jobID); err != nil {
		// The job is running either way; losing the handle only costs a
		// duplicate scan after the next reload.
		log.Printf("[backfill] Failed to persist handle for user %s: %v", userID, err)
	}

	return jobID, nil
}
