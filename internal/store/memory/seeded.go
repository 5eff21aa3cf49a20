package memory

import (
	"context"

	"go.uber.org/zap"

	"koperasi/backend/internal/store/seed"
)

// NewSeeded returns a store preloaded with the demo catalogue and accounts.
// Passwords come from the SEED_* environment variables when set.
func NewSeeded() *Store {
	creds, usedDefaults := seed.CredentialsFromEnv()
	if usedDefaults {
		zap.L().Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD, SEED_KASIR_PASSWORD and SEED_ANGGOTA_PASSWORD to override")
	}

	s := New()
	if err := seed.Apply(context.Background(), s, creds); err != nil {
		zap.L().Fatal("seed memory store", zap.Error(err))
	}
	return s
}
