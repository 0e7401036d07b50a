// Package cache is the in-process read-through cache fronting the store's
// active-recipient-emails lookup, which the worker makes each time it
// notifies subscribers of a new edition. Payload hashes are not cached.
// Grounded on the teacher's own ristretto + singleflight read-through
// pattern (internal/service/subscription_service.go's GetActiveSubscription:
// L1 ristretto hit returns a shallow copy; a miss collapses concurrent
// callers onto one repo load via singleflight, then populates L1).
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"
)

// RecipientSource is the store read path this cache fronts.
type RecipientSource interface {
	ActiveRecipientEmails(ctx context.Context, reportID string) ([]string, error)
}

// RecipientCache wraps RecipientSource with an L1 ristretto cache and a
// singleflight group so a burst of near-simultaneous worker runs for the
// same report_id collapse onto a single store query.
type RecipientCache struct {
	source RecipientSource
	l1     *ristretto.Cache
	group  singleflight.Group
	ttl    time.Duration
}

// Config mirrors config.CacheConfig's knobs, kept separate so this package
// doesn't import config directly.
type Config struct {
	NumCounters int64
	MaxCostMB   int64
	BufferItems int64
	TTL         time.Duration
}

func New(source RecipientSource, cfg Config) (*RecipientCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCostMB * 1 << 20,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RecipientCache{source: source, l1: l1, ttl: cfg.TTL}, nil
}

// ActiveRecipientEmails returns a shallow copy of the cached slice on an L1
// hit; on a miss, singleflight collapses concurrent callers for the same
// reportID onto one store query before populating L1.
func (c *RecipientCache) ActiveRecipientEmails(ctx context.Context, reportID string) ([]string, error) {
	if v, ok := c.l1.Get(reportID); ok {
		if emails, ok := v.([]string); ok {
			return append([]string(nil), emails...), nil
		}
	}

	value, err, _ := c.group.Do(reportID, func() (any, error) {
		emails, err := c.source.ActiveRecipientEmails(ctx, reportID)
		if err != nil {
			return nil, err
		}
		c.l1.SetWithTTL(reportID, emails, int64(len(emails))+1, c.ttl)
		return emails, nil
	})
	if err != nil {
		return nil, err
	}
	emails, _ := value.([]string)
	return append([]string(nil), emails...), nil
}

// Invalidate drops reportID's cached entry, called after a recipient
// override write (out of this system's scope today, but the seam matches
// the teacher's own cache-invalidation-callback convention).
func (c *RecipientCache) Invalidate(reportID string) {
	c.l1.Del(reportID)
}
