package cache

import (
	"context"
	"testing"
	"time"

	"koperasi/backend/internal/domain"
)

func TestNoopDashboardCacheAlwaysMisses(t *testing.T) {
	var c DashboardCache = NoopDashboardCache{}
	ctx := context.Background()

	if err := c.Set(ctx, AdminDashboardKey, &domain.AdminDashboard{JumlahAnggota: 3}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, AdminDashboardKey)
	if err != nil || ok || got != nil {
		t.Fatalf("expected miss, got %+v ok=%v err=%v", got, ok, err)
	}
	if err := c.Invalidate(ctx, AdminDashboardKey); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
}

func TestRedisDashboardCacheSatisfiesInterface(t *testing.T) {
	c := NewRedisDashboardCache("127.0.0.1:0", "", 0)
	defer c.Close()

	var _ DashboardCache = c
	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate without keys should be a no-op: %v", err)
	}
}
