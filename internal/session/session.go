// Package session models one connected mailbox as an explicit object with
// a defined lifecycle: created on connect, torn down on logout. All flow
// state (current user, established job, displayed deals, pending
// notifications) lives here.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inbox-deals-api/internal/models"
	"inbox-deals-api/internal/refresh"
)

// Phase is the coarse state of the connect flow.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseScanning   Phase = "scanning"
	PhaseLoading    Phase = "loading"
	PhaseReady      Phase = "ready"
	PhaseFailed     Phase = "failed"
)

// Session owns the state of one connected mailbox.
type Session struct {
	ID        string
	Email     string
	UserID    string
	CreatedAt time.Time

	mu            sync.RWMutex
	jobID         string
	phase         Phase
	progress      string
	errMsg        string
	deals         []models.Deal
	notifications []models.Notification
	tornDown      bool

	loop       *refresh.Loop
	cancel     context.CancelFunc
	flowCancel context.CancelFunc
}

// Phase returns the current flow phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase moves the flow to a new phase with a progress line.
func (s *Session) SetPhase(phase Phase, progress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.progress = progress
}

// SetProgress updates the progress line without changing phase.
func (s *Session) SetProgress(progress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = progress
}

// Progress returns the latest progress line.
func (s *Session) Progress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Fail marks the flow as failed with a user-visible message.
func (s *Session) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFailed
	s.errMsg = msg
}

// Err returns the failure message, if any.
func (s *Session) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// SetJobID records the established backfill job.
func (s *Session) SetJobID(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobID = jobID
}

// JobID returns the established backfill job id.
func (s *Session) JobID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobID
}

// SetInitialDeals installs the first loaded deal collection without
// emitting a notification.
func (s *Session) SetInitialDeals(deals []models.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = deals
}

// Deals returns a copy of the displayed collection.
func (s *Session) Deals() []models.Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Deal, len(s.deals))
	copy(out, s.deals)
	return out
}

// CurrentDeals implements refresh.Sink.
func (s *Session) CurrentDeals() []models.Deal {
	return s.Deals()
}

// ReplaceDeals implements refresh.Sink: the displayed collection is
// replaced wholesale and a transient "N new deals found" notification is
// queued.
func (s *Session) ReplaceDeals(deals []models.Deal, added int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deals = deals
	s.notifications = append(s.notifications, models.Notification{
		Message:  fmt.Sprintf("%d new deals found", added),
		NewCount: added,
		At:       time.Now(),
	})
}

// DrainNotifications returns and clears the pending notifications.
func (s *Session) DrainNotifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.notifications
	s.notifications = nil
	return out
}

// SetFlowCancel records the cancel func for the running connect flow so
// teardown can abort in-flight polling.
func (s *Session) SetFlowCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		cancel()
		return
	}
	s.flowCancel = cancel
	s.mu.Unlock()
}

// AttachLoop records the running refresh loop and its cancel func so
// teardown can stop both. If the session was already torn down, the loop
// is stopped on the spot instead of attached.
func (s *Session) AttachLoop(loop *refresh.Loop, cancel context.CancelFunc) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		loop.Stop()
		cancel()
		return
	}
	s.loop = loop
	s.cancel = cancel
	s.mu.Unlock()
}

// Loop returns the attached refresh loop, or nil before the flow is ready.
func (s *Session) Loop() *refresh.Loop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loop
}

// Teardown stops the refresh loop, aborts a still-running connect flow and
// releases the session's resources. A loop attached after this point is
// stopped by AttachLoop.
func (s *Session) Teardown() {
	s.mu.Lock()
	s.tornDown = true
	loop, cancel, flowCancel := s.loop, s.cancel, s.flowCancel
	s.loop, s.cancel, s.flowCancel = nil, nil, nil
	s.deals = nil
	s.notifications = nil
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if flowCancel != nil {
		flowCancel()
	}
}

// Snapshot renders the session for the status endpoint.
func (s *Session) Snapshot() models.SessionResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.SessionResponse{
		SessionID: s.ID,
		Phase:     string(s.phase),
		Progress:  s.progress,
		Error:     s.errMsg,
		DealCount: len(s.deals),
	}
}
