package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"koperasi/backend/internal/config"
	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/logger"
	"koperasi/backend/internal/service"
	"koperasi/backend/internal/store"
	pgstore "koperasi/backend/internal/store/postgres"
	"koperasi/backend/internal/store/seed"
)

// database is what the operator commands need from a store.
type database interface {
	store.Repository
	Migrate(ctx context.Context) error
	Close() error
}

type opener func(ctx context.Context, url string) (database, error)

func openPostgres(ctx context.Context, url string) (database, error) {
	db, err := pgstore.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := newRootCmd(cfg, log, openPostgres).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config, log *zap.Logger, open opener) *cobra.Command {
	var databaseURL string

	root := &cobra.Command{
		Use:           "koperasictl",
		Short:         "Operator tasks for the koperasi backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "postgres connection string (defaults to DATABASE_URL)")

	connect := func(ctx context.Context) (database, error) {
		if databaseURL == "" {
			return nil, errors.New("no database: set DATABASE_URL or --database-url")
		}
		return open(ctx, databaseURL)
	}

	root.AddCommand(
		newMigrateCmd(connect, log),
		newSeedCmd(connect, log),
		newCreateUserCmd(connect, log),
	)
	return root
}

func newMigrateCmd(connect func(context.Context) (database, error), log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema migrated")
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedCmd(connect func(context.Context) (database, error), log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo barang and admin/kasir/anggota accounts, skipping existing ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			creds, defaults := seed.CredentialsFromEnv()
			if defaults {
				log.Warn("seeding with default demo passwords; set SEED_*_PASSWORD to override")
			}
			if err := seed.Apply(ctx, db, creds); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seed applied")
			return nil
		},
	}
}

func newCreateUserCmd(connect func(context.Context) (database, error), log *zap.Logger) *cobra.Command {
	var req domain.UserCreateRequest

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an admin, kasir or anggota account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.New(db, nil, log, service.Options{})
			ctx = service.WithActor(ctx, domain.Actor{Username: "koperasictl", Role: domain.RoleAdmin})
			created, err := svc.CreateUser(ctx, req)
			if err != nil {
				return err
			}
			printCreated(cmd.OutOrStdout(), created)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "login name (at least 4 characters, no spaces)")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (at least 6 characters)")
	cmd.Flags().StringVar(&req.Role, "role", domain.RoleKasir, "admin, kasir or anggota")
	cmd.Flags().StringVar(&req.Nama, "nama", "", "member name (anggota only)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func printCreated(w io.Writer, created domain.UserCreateResponse) {
	fmt.Fprintf(w, "user %s (%s) id=%s\n", created.User.Username, created.User.Role, created.User.ID)
	if created.Member != nil {
		fmt.Fprintf(w, "anggota %s id=%s\n", created.Member.Nama, created.Member.ID)
	}
}
