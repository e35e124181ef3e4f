package middleware

import (
	"context"
	"time"

	"github.com/campuskit/qrattend/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type storeRateStore struct {
	store cache.Store
}

// NewRateStore wraps a cache store in a RateStore implementation. The memory
// store suits a single instance; the database store coordinates replicas.
func NewRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
