package cache

import (
	"context"
	"time"

	"warungku/backend/internal/domain"
)

type AnalyticsCache interface {
	Get(ctx context.Context, key string) (*domain.ShopAnalytics, bool, error)
	Set(ctx context.Context, key string, value *domain.ShopAnalytics, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type NoopAnalyticsCache struct{}

func (NoopAnalyticsCache) Get(_ context.Context, _ string) (*domain.ShopAnalytics, bool, error) {
	return nil, false, nil
}

func (NoopAnalyticsCache) Set(_ context.Context, _ string, _ *domain.ShopAnalytics, _ time.Duration) error {
	return nil
}

func (NoopAnalyticsCache) Del(_ context.Context, _ string) error {
	return nil
}
