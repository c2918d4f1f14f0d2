package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"inbox-deals-api/internal/models"
)

// scriptedStatus returns one response per call, repeating the last.
type scriptedStatus struct {
	calls     int
	responses []models.JobStatus
	errs      []error
}

func (s *scriptedStatus) JobStatus(ctx context.Context, jobID string) (models.JobStatus, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

func newTestPoller(up StatusFetcher, maxAttempts int) *Poller {
	p := NewPoller(up, Policy{Interval: time.Second, MaxAttempts: maxAttempts})
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func intPtr(i int) *int { return &i }

func TestAwaitCompletion_ReturnsOnComplete(t *testing.T) {
	up := &scriptedStatus{responses: []models.JobStatus{
		{State: models.JobStatePending},
		{State: models.JobStateRunning},
		{State: models.JobStateComplete, IsComplete: true},
	}}
	p := newTestPoller(up, 120)

	if err := p.AwaitCompletion(context.Background(), "job-1", nil); err != nil {
		t.Fatalf("AwaitCompletion failed: %v", err)
	}

	if up.calls != 3 {
		t.Errorf("Expected exactly 3 requests with budget 120, got %d", up.calls)
	}
}

func TestAwaitCompletion_FailedState_AbortsImmediately(t *testing.T) {
	up := &scriptedStatus{responses: []models.JobStatus{
		{State: models.JobStateRunning},
		{State: models.JobStateFailed},
		{State: models.JobStateRunning},
	}}
	p := newTestPoller(up, 120)

	err := p.AwaitCompletion(context.Background(), "job-1", nil)
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("Expected ErrJobFailed, got %v", err)
	}

	if up.calls != 2 {
		t.Errorf("Expected no requests after the failed response, got %d total", up.calls)
	}
}

func TestAwaitCompletion_ErrorMessage_Aborts(t *testing.T) {
	up := &scriptedStatus{responses: []models.JobStatus{
		{State: models.JobStateRunning, ErrorMessage: "mailbox revoked"},
	}}
	p := newTestPoller(up, 120)

	err := p.AwaitCompletion(context.Background(), "job-1", nil)
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("Expected ErrJobFailed, got %v", err)
	}
	if up.calls != 1 {
		t.Errorf("Expected exactly 1 request, got %d", up.calls)
	}
}

func TestAwaitCompletion_TransportError_Soft(t *testing.T) {
	up := &scriptedStatus{
		responses: []models.JobStatus{
			{},
			{},
			{State: models.JobStateComplete, IsComplete: true},
		},
		errs: []error{
			errors.New("connection refused"),
			errors.New("502 bad gateway"),
			nil,
		},
	}
	p := newTestPoller(up, 120)

	if err := p.AwaitCompletion(context.Background(), "job-1", nil); err != nil {
		t.Fatalf("Expected soft failures to be retried, got %v", err)
	}

	if up.calls != 3 {
		t.Errorf("Expected 3 requests, got %d", up.calls)
	}
}

func TestAwaitCompletion_BudgetExhausted_ProceedsWithoutError(t *testing.T) {
	up := &scriptedStatus{responses: []models.JobStatus{
		{State: models.JobStateRunning},
	}}
	p := newTestPoller(up, 5)

	if err := p.AwaitCompletion(context.Background(), "job-1", nil); err != nil {
		t.Fatalf("Exhausted budget must not be an error, got %v", err)
	}

	if up.calls != 5 {
		t.Errorf("Expected exactly 5 attempts, got %d", up.calls)
	}
}

func TestAwaitCompletion_ReportsProgress(t *testing.T) {
	up := &scriptedStatus{responses: []models.JobStatus{
		{State: models.JobStateRunning, ProcessedCount: intPtr(40), TotalCount: intPtr(100)},
		{State: models.JobStateComplete, IsComplete: true},
	}}
	p := newTestPoller(up, 120)

	var got []Progress
	err := p.AwaitCompletion(context.Background(), "job-1", func(pr Progress) {
		got = append(got, pr)
	})
	if err != nil {
		t.Fatalf("AwaitCompletion failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("Expected 1 progress update, got %d", len(got))
	}
	if got[0].Processed != 40 || got[0].Total != 100 {
		t.Errorf("Expected 40/100 progress, got %d/%d", got[0].Processed, got[0].Total)
	}
	if got[0].Label() != "Processed 40 of 100 emails..." {
		t.Errorf("Unexpected progress label: %q", got[0].Label())
	}
}

func TestAwaitCompletion_ContextCancelled(t *testing.T) {
	up := &scriptedStatus{responses: []models.JobStatus{
		{State: models.JobStateRunning},
	}}
	p := NewPoller(up, Policy{Interval: time.Second, MaxAttempts: 120})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.AwaitCompletion(ctx, "job-1", nil); err == nil {
		t.Fatal("Expected context error, got nil")
	}
}
