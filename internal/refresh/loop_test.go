package refresh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"inbox-deals-api/internal/features"
	"inbox-deals-api/internal/models"
)

// recordingSink captures merges.
type recordingSink struct {
	deals    []models.Deal
	replaces int
	added    int
}

func (r *recordingSink) CurrentDeals() []models.Deal { return r.deals }

func (r *recordingSink) ReplaceDeals(deals []models.Deal, added int) {
	r.deals = deals
	r.replaces++
	r.added = added
}

func makeDeals(n int) []models.Deal {
	out := make([]models.Deal, n)
	for i := range out {
		out[i] = models.Deal{ID: fmt.Sprintf("d-%d", i), Merchant: "Merchant"}
	}
	return out
}

func staticFetch(deals []models.Deal) FetchFunc {
	return func(ctx context.Context) ([]models.Deal, error) { return deals, nil }
}

func TestTick_EqualSize_Discarded(t *testing.T) {
	sink := &recordingSink{deals: makeDeals(5)}
	// Same size, entirely different contents: still discarded.
	fetched := makeDeals(5)
	for i := range fetched {
		fetched[i].ID = fmt.Sprintf("other-%d", i)
	}

	loop := NewLoop(time.Second, staticFetch(fetched), sink, nil)
	loop.Tick(context.Background())

	if sink.replaces != 0 {
		t.Errorf("Equal-size fetch must not replace, got %d replaces", sink.replaces)
	}
	if sink.deals[0].ID != "d-0" {
		t.Errorf("Displayed set changed: %q", sink.deals[0].ID)
	}
}

func TestTick_SmallerFetch_Discarded(t *testing.T) {
	sink := &recordingSink{deals: makeDeals(5)}
	loop := NewLoop(time.Second, staticFetch(makeDeals(3)), sink, nil)

	loop.Tick(context.Background())

	if sink.replaces != 0 {
		t.Errorf("Smaller fetch must not replace, got %d replaces", sink.replaces)
	}
}

func TestTick_LargerFetch_ReplacesAndNotifies(t *testing.T) {
	sink := &recordingSink{deals: makeDeals(5)}
	loop := NewLoop(time.Second, staticFetch(makeDeals(8)), sink, nil)

	loop.Tick(context.Background())

	if sink.replaces != 1 {
		t.Fatalf("Expected 1 replace, got %d", sink.replaces)
	}
	if sink.added != 3 {
		t.Errorf("Expected 3 new deals reported, got %d", sink.added)
	}
	if len(sink.deals) != 8 {
		t.Errorf("Expected wholesale replacement with 8 deals, got %d", len(sink.deals))
	}
}

func TestTick_FetchError_Soft(t *testing.T) {
	sink := &recordingSink{deals: makeDeals(5)}
	loop := NewLoop(time.Second, func(ctx context.Context) ([]models.Deal, error) {
		return nil, errors.New("upstream down")
	}, sink, nil)

	loop.Tick(context.Background())

	if sink.replaces != 0 {
		t.Errorf("Failed tick must be skipped, got %d replaces", sink.replaces)
	}
}

func TestTick_Paused_Skipped(t *testing.T) {
	sink := &recordingSink{}
	loop := NewLoop(time.Second, staticFetch(makeDeals(4)), sink, nil)

	loop.Pause()
	loop.Tick(context.Background())

	if sink.replaces != 0 {
		t.Errorf("Paused loop must not tick, got %d replaces", sink.replaces)
	}

	loop.Resume()
	loop.Tick(context.Background())

	if sink.replaces != 1 {
		t.Errorf("Resumed loop should tick, got %d replaces", sink.replaces)
	}
}

func TestTick_IdentityDiff_PreservesOrderAndAppends(t *testing.T) {
	flags := features.NewManager()
	flags.Register(features.FeatureIdentityDiff, true, "")

	current := []models.Deal{{ID: "b"}, {ID: "a"}}
	fetched := []models.Deal{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	sink := &recordingSink{deals: current}
	loop := NewLoop(time.Second, staticFetch(fetched), sink, flags)

	loop.Tick(context.Background())

	if sink.replaces != 1 {
		t.Fatalf("Expected 1 replace, got %d", sink.replaces)
	}
	if sink.added != 2 {
		t.Errorf("Expected 2 additions, got %d", sink.added)
	}

	wantOrder := []string{"b", "a", "c", "d"}
	for i, id := range wantOrder {
		if sink.deals[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, sink.deals[i].ID)
		}
	}
}

func TestTick_IdentityDiff_NoNewIDs_Discarded(t *testing.T) {
	flags := features.NewManager()
	flags.Register(features.FeatureIdentityDiff, true, "")

	sink := &recordingSink{deals: []models.Deal{{ID: "a"}, {ID: "b"}}}
	loop := NewLoop(time.Second, staticFetch([]models.Deal{{ID: "b"}, {ID: "a"}}), sink, flags)

	loop.Tick(context.Background())

	if sink.replaces != 0 {
		t.Errorf("No new ids must not replace, got %d replaces", sink.replaces)
	}
}

func TestRun_StopEndsLoop(t *testing.T) {
	sink := &recordingSink{}
	loop := NewLoop(10*time.Millisecond, staticFetch(nil), sink, nil)

	go loop.Run(context.Background())
	loop.Stop()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("Loop did not stop")
	}
}
