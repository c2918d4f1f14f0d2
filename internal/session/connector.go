package session

import (
	"context"
	"errors"
	"log"
	"time"

	"inbox-deals-api/internal/backfill"
	"inbox-deals-api/internal/deals"
	"inbox-deals-api/internal/events"
	"inbox-deals-api/internal/features"
	"inbox-deals-api/internal/models"
	"inbox-deals-api/internal/refresh"
)

// Connector runs the connect flow for a session: establish the backfill
// job, drive it to completion, load the initial deals, then hand off to the
// live refresh loop. Exactly one flow runs per session.
type Connector struct {
	orchestrator    *backfill.Orchestrator
	poller          *backfill.Poller
	fetcher         *deals.Fetcher
	events          *events.Manager
	flags           *features.Manager
	refreshInterval time.Duration
}

// NewConnector wires the flow's collaborators together.
func NewConnector(
	orch *backfill.Orchestrator,
	poller *backfill.Poller,
	fetcher *deals.Fetcher,
	ev *events.Manager,
	flags *features.Manager,
	refreshInterval time.Duration,
) *Connector {
	return &Connector{
		orchestrator:    orch,
		poller:          poller,
		fetcher:         fetcher,
		events:          ev,
		flags:           flags,
		refreshInterval: refreshInterval,
	}
}

// Run executes the flow. It blocks until the session is ready or failed;
// callers run it on its own goroutine. Any fatal error leaves the session
// in the failed phase with a user-visible message.
func (c *Connector) Run(ctx context.Context, s *Session) {
	s.SetPhase(PhaseScanning, "Scanning your inbox for deals...")

	jobID, err := c.orchestrator.EnsureStarted(ctx, s.UserID)
	if err != nil {
		log.Printf("[connect] Backfill start failed for user %s: %v", s.UserID, err)
		s.Fail("Failed to load your deals. Please try again.")
		return
	}

	s.SetJobID(jobID)
	c.events.PublishBackfillStarted(ctx, s.UserID, jobID)

	s.SetProgress("Analyzing promotions...")
	err = c.poller.AwaitCompletion(ctx, jobID, func(p backfill.Progress) {
		s.SetProgress(p.Label())
	})
	if err != nil {
		if errors.Is(err, backfill.ErrJobFailed) {
			log.Printf("[connect] Backfill job %s failed for user %s: %v", jobID, s.UserID, err)
			s.Fail("Failed to load your deals. Please try again.")
		} else {
			// Context cancellation during shutdown or logout.
			log.Printf("[connect] Polling aborted for user %s: %v", s.UserID, err)
			s.Fail("Connection interrupted. Please try again.")
		}
		return
	}

	s.SetPhase(PhaseLoading, "Loading your deals...")

	initial, err := c.fetcher.FetchDeals(ctx, s.UserID)
	if err != nil {
		// Fatal at initial load; soft failures only apply to refresh ticks.
		log.Printf("[connect] Initial deal load failed for user %s: %v", s.UserID, err)
		s.Fail("Failed to load your deals. Please try again.")
		return
	}

	s.SetInitialDeals(initial)
	s.SetPhase(PhaseReady, "")
	c.events.PublishBackfillCompleted(ctx, s.UserID, jobID, len(initial))

	c.startRefresh(s)
}

func (c *Connector) startRefresh(s *Session) {
	loopCtx, cancel := context.WithCancel(context.Background())

	loop := refresh.NewLoop(c.refreshInterval, func(ctx context.Context) ([]models.Deal, error) {
		return c.fetcher.FetchDeals(ctx, s.UserID)
	}, &notifyingSink{session: s, events: c.events}, c.flags)

	s.AttachLoop(loop, cancel)
	go loop.Run(loopCtx)
}

// notifyingSink forwards merges to the session and mirrors them onto the
// event bus.
type notifyingSink struct {
	session *Session
	events  *events.Manager
}

func (n *notifyingSink) CurrentDeals() []models.Deal {
	return n.session.CurrentDeals()
}

func (n *notifyingSink) ReplaceDeals(deals []models.Deal, added int) {
	n.session.ReplaceDeals(deals, added)
	n.events.PublishDealsRefreshed(context.Background(), n.session.UserID, added, len(deals), deals)
}
