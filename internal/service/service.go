package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"koperasi/backend/internal/cache"
	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
	"koperasi/backend/internal/xid"
)

// LowStockThreshold marks an item as running low on dashboards.
const LowStockThreshold = 5

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DashboardTTL time.Duration
	// Registerer receives the posting counters. Nil keeps them unregistered.
	Registerer prometheus.Registerer
	Now        func() time.Time
}

type Service struct {
	repo         store.Repository
	dashboards   cache.DashboardCache
	dashboardTTL time.Duration
	log          *zap.Logger
	metrics      *metrics
	now          func() time.Time
	// writes counts committed write units; dashboard rebuilds compare it to
	// detect a write that raced them.
	writes atomic.Uint64
}

func New(repo store.Repository, dashboards cache.DashboardCache, log *zap.Logger, opts Options) *Service {
	if dashboards == nil {
		dashboards = cache.NoopDashboardCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DashboardTTL <= 0 {
		opts.DashboardTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:         repo,
		dashboards:   dashboards,
		dashboardTTL: opts.DashboardTTL,
		log:          log,
		metrics:      newMetrics(opts.Registerer),
		now:          opts.Now,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, err := requireActor(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Item{}, err
	}

	req.Kode = strings.ToUpper(strings.TrimSpace(req.Kode))
	req.Nama = strings.TrimSpace(req.Nama)
	if req.Kode == "" || req.Nama == "" {
		return domain.Item{}, fmt.Errorf("%w: kode and nama are required", store.ErrValidation)
	}
	if req.HargaBeli < 0 || req.HargaJual < 0 || req.Stok < 0 {
		return domain.Item{}, fmt.Errorf("%w: harga and stok must not be negative", store.ErrValidation)
	}

	now := s.now().UTC()
	item := domain.Item{
		ID:        xid.New("brg"),
		Kode:      req.Kode,
		Nama:      req.Nama,
		Stok:      req.Stok,
		HargaBeli: req.HargaBeli,
		HargaJual: req.HargaJual,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.withinTx(ctx, func(tx store.Tx) error {
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return domain.Item{}, err
	}

	s.log.Info("barang created", zap.String("barang_id", item.ID), zap.String("kode", item.Kode), zap.String("by", actor.Username))
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, err := requireActor(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Item{}, err
	}

	id = strings.TrimSpace(id)
	var updated domain.Item
	err = s.withinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockItems(ctx, []string{id})
		if err != nil {
			return err
		}
		item, ok := locked[id]
		if !ok {
			return fmt.Errorf("%w: barang %s", store.ErrNotFound, id)
		}

		if req.Nama != nil {
			nama := strings.TrimSpace(*req.Nama)
			if nama == "" {
				return fmt.Errorf("%w: nama must not be empty", store.ErrValidation)
			}
			item.Nama = nama
		}
		if req.HargaBeli != nil {
			if *req.HargaBeli < 0 {
				return fmt.Errorf("%w: harga_beli must not be negative", store.ErrValidation)
			}
			item.HargaBeli = *req.HargaBeli
		}
		if req.HargaJual != nil {
			if *req.HargaJual < 0 {
				return fmt.Errorf("%w: harga_jual must not be negative", store.ErrValidation)
			}
			item.HargaJual = *req.HargaJual
		}
		if req.TambahStok != nil {
			if *req.TambahStok < 0 {
				return fmt.Errorf("%w: tambah_stok must not be negative", store.ErrValidation)
			}
			item.Stok += *req.TambahStok
		}
		item.UpdatedAt = s.now().UTC()

		updated = item
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return domain.Item{}, err
	}

	s.log.Info("barang updated", zap.String("barang_id", updated.ID), zap.Int("stok", updated.Stok), zap.String("by", actor.Username))
	return updated, nil
}

func (s *Service) ListMembers(ctx context.Context) ([]domain.Member, error) {
	if _, err := requireActor(ctx, domain.RoleAdmin, domain.RoleKasir); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx)
}

func (s *Service) GetMember(ctx context.Context, id string) (domain.Member, error) {
	if _, err := requireActor(ctx, domain.RoleAdmin, domain.RoleKasir); err != nil {
		return domain.Member{}, err
	}
	member, err := s.repo.GetMember(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Member{}, err
	}
	return *member, nil
}

// MyMember returns the member record of the calling anggota.
func (s *Service) MyMember(ctx context.Context) (domain.Member, error) {
	actor, err := requireActor(ctx, domain.RoleAnggota)
	if err != nil {
		return domain.Member{}, err
	}
	member, err := s.repo.GetMemberByUserID(ctx, actor.UserID)
	if err != nil {
		return domain.Member{}, fmt.Errorf("anggota record for %s: %w", actor.Username, err)
	}
	return *member, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserCreateResponse, error) {
	actor, err := requireActor(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.UserCreateResponse{}, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.UserCreateResponse{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrValidation)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserCreateResponse{}, fmt.Errorf("%w: username must not contain spaces", store.ErrValidation)
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 6 {
		return domain.UserCreateResponse{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !slices.Contains([]string{domain.RoleAdmin, domain.RoleKasir, domain.RoleAnggota}, role) {
		return domain.UserCreateResponse{}, fmt.Errorf("%w: unknown role %q", store.ErrValidation, req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserCreateResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	resp := domain.UserCreateResponse{
		User: domain.UserAccount{
			ID:        xid.New("usr"),
			Username:  username,
			Password:  string(hash),
			Role:      role,
			Active:    true,
			CreatedAt: now,
		},
	}
	if role == domain.RoleAnggota {
		nama := strings.TrimSpace(req.Nama)
		if nama == "" {
			nama = username
		}
		resp.Member = &domain.Member{
			ID:        xid.New("agt"),
			UserID:    resp.User.ID,
			Nama:      nama,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	err = s.withinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertUser(ctx, resp.User); err != nil {
			return err
		}
		if resp.Member != nil {
			return tx.InsertMember(ctx, *resp.Member)
		}
		return nil
	})
	if err != nil {
		return domain.UserCreateResponse{}, err
	}

	s.log.Info("user created", zap.String("username", username), zap.String("role", role), zap.String("by", actor.Username))
	return resp, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if _, err := requireActor(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// withinTx runs one write unit and drops cached dashboards once it commits.
func (s *Service) withinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.repo.WithinTx(ctx, fn); err != nil {
		return err
	}
	s.writes.Add(1)
	if err := s.dashboards.Invalidate(ctx, cache.AdminDashboardKey); err != nil {
		s.log.Warn("dashboard cache invalidate failed", zap.Error(err))
	}
	return nil
}

func requireActor(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no authenticated actor", store.ErrForbidden)
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, fmt.Errorf("%w: role %s not allowed", store.ErrForbidden, actor.Role)
	}
	return actor, nil
}

// ownMember loads the calling anggota's member record inside a unit of work.
func ownMember(ctx context.Context, tx store.Tx, actor domain.Actor) (*domain.Member, error) {
	member, err := tx.LockMemberByUserID(ctx, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no anggota record for %s", store.ErrNotFound, actor.Username)
	}
	return member, err
}
