package cache

import (
	"context"
	"time"

	"tokopos/backend/internal/metrics"
)

type SummaryCache interface {
	Get(ctx context.Context, key string) (*metrics.Summary, bool, error)
	Set(ctx context.Context, key string, value *metrics.Summary, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*metrics.Summary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *metrics.Summary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
