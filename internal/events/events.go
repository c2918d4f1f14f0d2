package events

import (
	"context"
	"sync"
	"time"

	"inbox-deals-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventBackfillStarted is emitted when a scan job is established for a
	// session, whether freshly started or resumed from a persisted handle.
	EventBackfillStarted EventType = "backfill.started"
	// EventBackfillCompleted is emitted when the connect flow finishes its
	// initial deal load.
	EventBackfillCompleted EventType = "backfill.completed"
	// EventDealsRefreshed is emitted when the refresh loop merges newly
	// arrived deals into a session.
	EventDealsRefreshed EventType = "deals.refreshed"
	// EventSessionEnded is emitted on logout/teardown.
	EventSessionEnded EventType = "session.ended"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// BackfillStartedData carries data for backfill started events.
type BackfillStartedData struct {
	UserID string
	JobID  string
}

// BackfillCompletedData carries data for backfill completed events.
type BackfillCompletedData struct {
	UserID    string
	JobID     string
	DealCount int
}

// DealsRefreshedData carries data for deals refreshed events.
type DealsRefreshedData struct {
	UserID   string
	NewCount int
	Total    int
	Deals    []models.Deal
}

// SessionEndedData carries data for session ended events.
type SessionEndedData struct {
	SessionID string
	UserID    string
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously so publishing never blocks the flow.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				_ = err
			}
		}(handler)
	}
}

// PublishBackfillStarted publishes a backfill started event.
func (m *Manager) PublishBackfillStarted(ctx context.Context, userID, jobID string) {
	m.Publish(ctx, EventBackfillStarted, BackfillStartedData{UserID: userID, JobID: jobID})
}

// PublishBackfillCompleted publishes a backfill completed event.
func (m *Manager) PublishBackfillCompleted(ctx context.Context, userID, jobID string, dealCount int) {
	m.Publish(ctx, EventBackfillCompleted, BackfillCompletedData{
		UserID:    userID,
		JobID:     jobID,
		DealCount: dealCount,
	})
}

// PublishDealsRefreshed publishes a deals refreshed event.
func (m *Manager) PublishDealsRefreshed(ctx context.Context, userID string, newCount, total int, deals []models.Deal) {
	m.Publish(ctx, EventDealsRefreshed, DealsRefreshedData{
		UserID:   userID,
		NewCount: newCount,
		Total:    total,
		Deals:    deals,
	})
}

// PublishSessionEnded publishes a session ended event.
func (m *Manager) PublishSessionEnded(ctx context.Context, sessionID, userID string) {
	m.Publish(ctx, EventSessionEnded, SessionEndedData{SessionID: sessionID, UserID: userID})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
