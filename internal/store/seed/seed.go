// Package seed loads the demo data set used by the in-memory store and by
// "koperasictl seed".
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
)

// Credentials are the plaintext passwords of the demo accounts.
type Credentials struct {
	Admin   string
	Kasir   string
	Anggota string
}

// CredentialsFromEnv reads SEED_ADMIN_PASSWORD, SEED_KASIR_PASSWORD and
// SEED_ANGGOTA_PASSWORD. The second return value reports whether any dev
// default had to be used.
func CredentialsFromEnv() (Credentials, bool) {
	creds := Credentials{
		Admin:   envOr("SEED_ADMIN_PASSWORD", "admin123"),
		Kasir:   envOr("SEED_KASIR_PASSWORD", "kasir123"),
		Anggota: envOr("SEED_ANGGOTA_PASSWORD", "anggota123"),
	}
	usedDefaults := os.Getenv("SEED_ADMIN_PASSWORD") == "" ||
		os.Getenv("SEED_KASIR_PASSWORD") == "" ||
		os.Getenv("SEED_ANGGOTA_PASSWORD") == ""
	return creds, usedDefaults
}

var Items = []domain.Item{
	{ID: "brg-beras", Kode: "BRS-5KG", Nama: "Beras 5kg", Stok: 40, HargaBeli: 60000, HargaJual: 68000},
	{ID: "brg-minyak", Kode: "MNY-1L", Nama: "Minyak Goreng 1L", Stok: 50, HargaBeli: 14000, HargaJual: 16000},
	{ID: "brg-gula", Kode: "GUL-1KG", Nama: "Gula Pasir 1kg", Stok: 60, HargaBeli: 13500, HargaJual: 15000},
	{ID: "brg-telur", Kode: "TLR-1KG", Nama: "Telur Ayam 1kg", Stok: 30, HargaBeli: 24000, HargaJual: 27000},
	{ID: "brg-mie", Kode: "MIE-GRG", Nama: "Mie Goreng Instan", Stok: 200, HargaBeli: 2500, HargaJual: 3000},
	{ID: "brg-kopi", Kode: "KPI-SCH", Nama: "Kopi Sachet", Stok: 150, HargaBeli: 1200, HargaJual: 1500},
	{ID: "brg-teh", Kode: "TEH-CLP", Nama: "Teh Celup", Stok: 80, HargaBeli: 5000, HargaJual: 6500},
	{ID: "brg-sabun", Kode: "SBN-MND", Nama: "Sabun Mandi", Stok: 4, HargaBeli: 3000, HargaJual: 4000},
}

type account struct {
	userID   string
	username string
	role     string
	memberID string
	nama     string
	saldo    int64
}

var accounts = []account{
	{userID: "usr-admin", username: "admin", role: domain.RoleAdmin},
	{userID: "usr-kasir", username: "kasir", role: domain.RoleKasir},
	{userID: "usr-siti", username: "siti", role: domain.RoleAnggota, memberID: "agt-siti", nama: "Siti Aminah", saldo: 50000},
	{userID: "usr-budi", username: "budi", role: domain.RoleAnggota, memberID: "agt-budi", nama: "Budi Santoso"},
}

// Apply inserts every demo record that does not exist yet. A member created by
// this call also receives one completed purchase from 45 days ago so that the
// credit limit has a spending history to work from.
func Apply(ctx context.Context, repo store.Repository, creds Credentials) error {
	now := time.Now().UTC()

	missingItems := make([]domain.Item, 0, len(Items))
	for _, item := range Items {
		_, err := repo.GetItem(ctx, item.ID)
		if errors.Is(err, store.ErrNotFound) {
			item.CreatedAt = now
			item.UpdatedAt = now
			missingItems = append(missingItems, item)
			continue
		}
		if err != nil {
			return err
		}
	}

	missingAccounts := make([]account, 0, len(accounts))
	for _, acc := range accounts {
		_, err := repo.GetUserByUsername(ctx, acc.username)
		if errors.Is(err, store.ErrNotFound) {
			missingAccounts = append(missingAccounts, acc)
			continue
		}
		if err != nil {
			return err
		}
	}

	if len(missingItems) == 0 && len(missingAccounts) == 0 {
		return nil
	}

	hashes := make(map[string]string, len(missingAccounts))
	for _, acc := range missingAccounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(passwordFor(acc.role, creds)), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash seed password for %s: %w", acc.username, err)
		}
		hashes[acc.username] = string(hash)
	}

	return repo.WithinTx(ctx, func(tx store.Tx) error {
		for _, item := range missingItems {
			if err := tx.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("seed barang %s: %w", item.Kode, err)
			}
		}
		for _, acc := range missingAccounts {
			user := domain.UserAccount{
				ID:        acc.userID,
				Username:  acc.username,
				Password:  hashes[acc.username],
				Role:      acc.role,
				Active:    true,
				CreatedAt: now,
			}
			if err := tx.InsertUser(ctx, user); err != nil {
				return fmt.Errorf("seed user %s: %w", acc.username, err)
			}
			if acc.memberID == "" {
				continue
			}
			member := domain.Member{
				ID:        acc.memberID,
				UserID:    acc.userID,
				Nama:      acc.nama,
				Saldo:     acc.saldo,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertMember(ctx, member); err != nil {
				return fmt.Errorf("seed anggota %s: %w", acc.nama, err)
			}
			if err := tx.InsertTransaction(ctx, historyFor(member.ID, now.AddDate(0, 0, -45))); err != nil {
				return fmt.Errorf("seed history %s: %w", acc.nama, err)
			}
		}
		return nil
	})
}

// historyFor builds a completed 600.000 purchase, which yields a monthly
// average of 100.000 and a credit limit of 150.000.
func historyFor(memberID string, at time.Time) domain.Transaction {
	lines := []domain.TransactionLine{
		line(Items[0], 5),
		line(Items[2], 10),
		line(Items[1], 5),
		line(Items[4], 10),
	}
	trx := domain.Transaction{
		ID:            "trx-seed-" + memberID,
		MemberID:      memberID,
		PaymentMethod: domain.PaymentCash,
		Status:        domain.TxStatusSelesai,
		Source:        domain.SourceKasir,
		CreatedAt:     at,
		CompletedAt:   &at,
		Lines:         lines,
	}
	for _, l := range lines {
		trx.Total += l.Subtotal
		trx.TotalProfit += l.Profit
	}
	return trx
}

func line(item domain.Item, qty int) domain.TransactionLine {
	return domain.TransactionLine{
		ItemID:    item.ID,
		ItemName:  item.Nama,
		Qty:       qty,
		UnitPrice: item.HargaJual,
		UnitCost:  item.HargaBeli,
		Subtotal:  int64(qty) * item.HargaJual,
		Profit:    int64(qty) * (item.HargaJual - item.HargaBeli),
	}
}

func passwordFor(role string, creds Credentials) string {
	switch role {
	case domain.RoleAdmin:
		return creds.Admin
	case domain.RoleKasir:
		return creds.Kasir
	default:
		return creds.Anggota
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
