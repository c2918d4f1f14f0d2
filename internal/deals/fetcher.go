package deals

import (
	"context"
	"fmt"
	"log"
	"time"

	"inbox-deals-api/internal/cache"
	"inbox-deals-api/internal/features"
	"inbox-deals-api/internal/models"
)

// PromotionSource is the slice of the upstream client the fetcher needs.
type PromotionSource interface {
	Promotions(ctx context.Context, userID string) ([]models.RawPromotion, error)
	EmailLink(userID, emailID string) string
}

// Fetcher loads the current promotion list for a user and normalizes it
// into deals. When the cache flag is on, the raw payload is cached briefly
// so an initial load and the first refresh tick do not hit upstream twice.
type Fetcher struct {
	upstream PromotionSource
	cache    cache.Cache
	flags    *features.Manager
	cacheTTL time.Duration
	now      func() time.Time
}

// NewFetcher creates a fetcher. cache and flags may be nil, which disables
// caching.
func NewFetcher(up PromotionSource, c cache.Cache, flags *features.Manager, cacheTTL time.Duration) *Fetcher {
	return &Fetcher{
		upstream: up,
		cache:    c,
		flags:    flags,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// FetchDeals returns the user's deals in upstream order.
func (f *Fetcher) FetchDeals(ctx context.Context, userID string) ([]models.Deal, error) {
	raws, err := f.promotions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch promotions for user %s: %w", userID, err)
	}

	linkFor := func(emailID string) string {
		return f.upstream.EmailLink(userID, emailID)
	}

	now := f.now()
	dealsOut := make([]models.Deal, 0, len(raws))
	for i, raw := range raws {
		dealsOut = append(dealsOut, Normalize(raw, i, linkFor, now))
	}

	return dealsOut, nil
}

func (f *Fetcher) promotions(ctx context.Context, userID string) ([]models.RawPromotion, error) {
	cacheOn := f.cache != nil && f.flags != nil && f.flags.IsEnabled(features.FeatureCacheEnabled)
	key := cache.PromotionsKey(userID)

	if cacheOn {
		var cached []models.RawPromotion
		if err := cache.GetJSON(ctx, f.cache, key, &cached); err == nil {
			return cached, nil
		} else if err != cache.ErrNotFound {
			log.Printf("[deals] Cache read failed for user %s: %v", userID, err)
		}
	}

	raws, err := f.upstream.Promotions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cacheOn {
		if err := cache.SetJSON(ctx, f.cache, key, raws, f.cacheTTL); err != nil {
			log.Printf("[deals] Cache write failed for user %s: %v", userID, err)
		}
	}

	return raws, nil
}
