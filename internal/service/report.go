package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"koperasi/backend/internal/cache"
	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
)

const dateLayout = "2006-01-02"

// AdminDashboard serves the cached snapshot when one is fresh and rebuilds it
// otherwise. Cache failures only cost a rebuild.
func (s *Service) AdminDashboard(ctx context.Context) (domain.AdminDashboard, error) {
	if _, err := requireActor(ctx, domain.RoleAdmin); err != nil {
		return domain.AdminDashboard{}, err
	}

	generation := s.writes.Load()
	cached, ok, err := s.dashboards.Get(ctx, cache.AdminDashboardKey)
	if err != nil {
		s.log.Warn("dashboard cache read failed", zap.Error(err))
	}
	if ok && cached != nil {
		s.metrics.dashboardCache.WithLabelValues("hit").Inc()
		return *cached, nil
	}
	s.metrics.dashboardCache.WithLabelValues("miss").Inc()

	dash, err := s.buildAdminDashboard(ctx)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	// Skip caching when a write committed during the rebuild; the snapshot may
	// predate it. Writes from other processes are only bounded by the TTL.
	if s.writes.Load() != generation {
		return dash, nil
	}
	if err := s.dashboards.Set(ctx, cache.AdminDashboardKey, &dash, s.dashboardTTL); err != nil {
		s.log.Warn("dashboard cache write failed", zap.Error(err))
	}
	if s.writes.Load() != generation {
		if err := s.dashboards.Invalidate(ctx, cache.AdminDashboardKey); err != nil {
			s.log.Warn("dashboard cache invalidate failed", zap.Error(err))
		}
	}
	return dash, nil
}

func (s *Service) buildAdminDashboard(ctx context.Context) (domain.AdminDashboard, error) {
	now := s.now()
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	totals, err := s.repo.MemberTotals(ctx)
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	today, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		Status: domain.TxStatusSelesai,
		From:   startOfDay(now),
		To:     startOfDay(now).AddDate(0, 0, 1),
	})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	pending, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{Status: domain.TxStatusPending})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	requests, err := s.repo.ListRequests(ctx, domain.BalanceRequestFilter{Status: domain.RequestPending})
	if err != nil {
		return domain.AdminDashboard{}, err
	}
	kas, err := s.repo.CashBalance(ctx)
	if err != nil {
		return domain.AdminDashboard{}, err
	}

	dash := domain.AdminDashboard{
		JumlahAnggota:    totals.Count,
		JumlahBarang:     len(items),
		StokMenipis:      lowStock(items),
		TransaksiHariIni: len(today),
		TotalSaldo:       totals.Saldo,
		TotalHutang:      totals.Hutang,
		TotalSHU:         totals.SHU,
		TransaksiPending: len(pending),
		PengajuanPending: len(requests),
		KasKoperasi:      kas,
		GeneratedAt:      now.UTC(),
	}
	for _, trx := range today {
		dash.OmzetHariIni += trx.Total
		dash.KeuntunganHariIni += trx.TotalProfit
	}
	return dash, nil
}

// CashierDashboard shows the calling cashier's sales today plus the work queue.
func (s *Service) CashierDashboard(ctx context.Context) (domain.CashierDashboard, error) {
	actor, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.CashierDashboard{}, err
	}

	now := s.now()
	today, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		CashierID: actor.UserID,
		Status:    domain.TxStatusSelesai,
		From:      startOfDay(now),
		To:        startOfDay(now).AddDate(0, 0, 1),
	})
	if err != nil {
		return domain.CashierDashboard{}, err
	}
	pending, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{Status: domain.TxStatusPending})
	if err != nil {
		return domain.CashierDashboard{}, err
	}
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.CashierDashboard{}, err
	}

	dash := domain.CashierDashboard{
		TransaksiHariIni: len(today),
		Pending:          pending,
		StokMenipis:      lowStock(items),
	}
	for _, trx := range today {
		dash.OmzetHariIni += trx.Total
	}
	return dash, nil
}

// SalesReport covers completed transactions created between the from and to
// dates, both inclusive. Empty dates default to today.
func (s *Service) SalesReport(ctx context.Context, from string, to string) (domain.SalesReport, error) {
	if _, err := requireActor(ctx, domain.RoleAdmin); err != nil {
		return domain.SalesReport{}, err
	}

	start, end, err := parseDateRange(from, to, s.now())
	if err != nil {
		return domain.SalesReport{}, err
	}
	trxs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		Status: domain.TxStatusSelesai,
		From:   start,
		To:     end,
	})
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		From:         start.Format(dateLayout),
		To:           end.AddDate(0, 0, -1).Format(dateLayout),
		Transaksi:    len(trxs),
		PerMetode:    []domain.SalesByMethod{},
		Transactions: trxs,
	}
	byMethod := make(map[string]*domain.SalesByMethod)
	for _, trx := range trxs {
		report.Omzet += trx.Total
		report.Keuntungan += trx.TotalProfit

		row, ok := byMethod[trx.PaymentMethod]
		if !ok {
			row = &domain.SalesByMethod{Metode: trx.PaymentMethod}
			byMethod[trx.PaymentMethod] = row
		}
		row.Transaksi++
		row.Omzet += trx.Total
		row.Keuntungan += trx.TotalProfit
	}
	for _, row := range byMethod {
		report.PerMetode = append(report.PerMetode, *row)
	}
	slices.SortFunc(report.PerMetode, func(a, b domain.SalesByMethod) int {
		return strings.Compare(a.Metode, b.Metode)
	})
	return report, nil
}

func parseDateRange(from string, to string, now time.Time) (time.Time, time.Time, error) {
	loc := now.Location()
	start := startOfDay(now)
	end := start
	if strings.TrimSpace(from) != "" {
		parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(from), loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be YYYY-MM-DD", store.ErrValidation)
		}
		start = parsed
		end = parsed
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(to), loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be YYYY-MM-DD", store.ErrValidation)
		}
		end = parsed
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", store.ErrValidation)
	}
	if end.Sub(start) > 366*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range is limited to one year", store.ErrValidation)
	}
	return start, end.AddDate(0, 0, 1), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func lowStock(items []domain.Item) []domain.Item {
	low := make([]domain.Item, 0, 8)
	for _, item := range items {
		if item.Stok <= LowStockThreshold {
			low = append(low, item)
		}
	}
	slices.SortStableFunc(low, func(a, b domain.Item) int {
		return a.Stok - b.Stok
	})
	return low
}
