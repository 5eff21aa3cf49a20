package cache

import (
	"context"
	"time"

	"koperasi/backend/internal/domain"
)

const AdminDashboardKey = "dashboard:admin"

type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.AdminDashboard, bool, error)
	Set(ctx context.Context, key string, value *domain.AdminDashboard, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.AdminDashboard, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.AdminDashboard, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
