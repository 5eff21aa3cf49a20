package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("KOPERASI_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KOPERASI_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestFailedUnitOfWorkLeavesStockUntouched(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	itemID := fmt.Sprintf("brg-it-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM barang WHERE id = $1`, itemID)
	})

	now := time.Now().UTC()
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertItem(ctx, domain.Item{
			ID: itemID, Kode: fmt.Sprintf("IT-%d", stamp), Nama: "Barang IT",
			Stok: 3, HargaBeli: 1000, HargaJual: 1500, CreatedAt: now, UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.AdjustStock(ctx, itemID, -2); err != nil {
			return err
		}
		return tx.AdjustStock(ctx, itemID, -2)
	})
	if !errors.Is(err, store.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Stok != 3 {
		t.Fatalf("expected stock 3 after rollback, got %d", item.Stok)
	}
}

func TestTransactionRoundTripWithLines(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	itemID := fmt.Sprintf("brg-rt-%d", stamp)
	trxID := fmt.Sprintf("trx-rt-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaksi WHERE id = $1`, trxID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM barang WHERE id = $1`, itemID)
	})

	now := time.Now().UTC().Truncate(time.Microsecond)
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertItem(ctx, domain.Item{
			ID: itemID, Kode: fmt.Sprintf("RT-%d", stamp), Nama: "Barang RT",
			Stok: 10, HargaBeli: 2000, HargaJual: 2500, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, itemID, -4); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, domain.Transaction{
			ID:            trxID,
			Total:         10000,
			TotalProfit:   2000,
			PaymentMethod: domain.PaymentCash,
			Status:        domain.TxStatusSelesai,
			Source:        domain.SourceKasir,
			CreatedAt:     now,
			CompletedAt:   &now,
			Lines: []domain.TransactionLine{{
				ItemID: itemID, ItemName: "Barang RT", Qty: 4,
				UnitPrice: 2500, UnitCost: 2000, Subtotal: 10000, Profit: 2000,
			}},
		})
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	trx, err := s.GetTransaction(ctx, trxID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if len(trx.Lines) != 1 || trx.Lines[0].Subtotal != trx.Total {
		t.Fatalf("unexpected lines: %+v", trx.Lines)
	}
	if trx.MemberID != "" || trx.CashierID != "" {
		t.Fatalf("expected empty member and cashier, got %q %q", trx.MemberID, trx.CashierID)
	}

	item, _ := s.GetItem(ctx, itemID)
	if item.Stok != 6 {
		t.Fatalf("expected stock 6, got %d", item.Stok)
	}
}
