// Package refresh keeps a session's deal list current after the initial
// load by periodically re-fetching and merging newly arrived promotions.
package refresh

import (
	"context"
	"log"
	"sync"
	"time"

	"inbox-deals-api/internal/features"
	"inbox-deals-api/internal/models"
)

// FetchFunc loads the current normalized deal list.
type FetchFunc func(ctx context.Context) ([]models.Deal, error)

// Sink owns the displayed deal collection. ReplaceDeals installs the new
// collection wholesale and surfaces a notification for added new deals.
type Sink interface {
	CurrentDeals() []models.Deal
	ReplaceDeals(deals []models.Deal, added int)
}

// Loop re-fetches deals on a fixed interval while the client view is
// visible. Fetch failures during a tick are soft: the tick is skipped and
// the next interval tries again. The default merge is a size-based diff for
// compatibility: a fetch that is not strictly larger than the displayed set
// is discarded entirely, even if its contents differ. The identity_diff
// flag switches to id-keyed merging that preserves the display order of
// already-seen deals.
type Loop struct {
	interval time.Duration
	fetch    FetchFunc
	sink     Sink
	flags    *features.Manager

	mu       sync.Mutex
	inFlight bool
	paused   bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLoop creates a loop. flags may be nil, which keeps size-based diffing.
func NewLoop(interval time.Duration, fetch FetchFunc, sink Sink, flags *features.Manager) *Loop {
	return &Loop{
		interval: interval,
		fetch:    fetch,
		sink:     sink,
		flags:    flags,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run ticks until Stop is called or ctx is cancelled. It blocks; callers
// run it on its own goroutine.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Tick(ctx)
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Pause suspends ticking while the client view is hidden. Ticks that fire
// while paused are ignored.
func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = true
}

// Resume restarts ticking after the view becomes visible again.
func (l *Loop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = false
}

// Stop ends the loop permanently. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Tick runs one refresh cycle. An overlapping tick is skipped outright via
// the in-flight guard.
func (l *Loop) Tick(ctx context.Context) {
	l.mu.Lock()
	if l.inFlight || l.paused {
		l.mu.Unlock()
		return
	}
	l.inFlight = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.inFlight = false
		l.mu.Unlock()
	}()

	fetched, err := l.fetch(ctx)
	if err != nil {
		// Soft failure: skip this tick, try again next interval.
		log.Printf("[refresh] Tick fetch failed: %v", err)
		return
	}

	current := l.sink.CurrentDeals()

	if l.flags != nil && l.flags.IsEnabled(features.FeatureIdentityDiff) {
		merged, added := mergeByID(current, fetched)
		if added == 0 {
			return
		}
		l.sink.ReplaceDeals(merged, added)
		return
	}

	// Size-based diff: only a strictly larger fetch replaces the displayed
	// set.
	if len(fetched) <= len(current) {
		return
	}

	l.sink.ReplaceDeals(fetched, len(fetched)-len(current))
}

// mergeByID keeps the existing display order for deals whose ids are
// already shown and appends unseen ones, returning the merged list and the
// number of additions.
func mergeByID(current, fetched []models.Deal) ([]models.Deal, int) {
	merged := make([]models.Deal, 0, len(fetched))
	seen := make(map[string]bool, len(current))
	for _, d := range current {
		seen[d.ID] = true
		merged = append(merged, d)
	}

	added := 0
	for _, d := range fetched {
		if !seen[d.ID] {
			merged = append(merged, d)
			added++
		}
	}

	return merged, added
}
