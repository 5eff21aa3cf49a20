package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/service"
	"koperasi/backend/internal/store"
)

type Options struct {
	AllowedOrigin string
	// LoginRateLimit is the number of login attempts allowed per client IP per minute.
	LoginRateLimit int
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type API struct {
	service *service.Service
	auth    *AuthManager
	log     *zap.Logger
	opts    Options
}

func New(svc *service.Service, auth *AuthManager, log *zap.Logger, opts Options) *API {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.LoginRateLimit <= 0 {
		opts.LoginRateLimit = 5
	}
	if strings.TrimSpace(opts.AllowedOrigin) == "" {
		opts.AllowedOrigin = "http://127.0.0.1:3000"
	}
	return &API{service: svc, auth: auth, log: log, opts: opts}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.opts.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.With(httprate.LimitByIP(a.opts.LoginRateLimit, time.Minute)).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Get("/auth/me", a.handleMe)
			r.Get("/barang", a.handleListItems)
			r.Get("/barang/{id}", a.handleGetItem)

			r.Route("/admin", func(r chi.Router) {
				r.Use(a.requireRoles(domain.RoleAdmin))
				r.Post("/barang", a.handleCreateItem)
				r.Patch("/barang/{id}", a.handleUpdateItem)
				r.Get("/anggota", a.handleListMembers)
				r.Get("/anggota/{id}", a.handleGetMember)
				r.Get("/users", a.handleListUsers)
				r.Post("/users", a.handleCreateUser)
				r.Get("/transaksi", a.handleAdminTransactions)
				r.Get("/dashboard", a.handleAdminDashboard)
				r.Get("/laporan/penjualan", a.handleSalesReport)
				r.Get("/laporan/shu", a.handleSHUReport)
				r.Get("/opname", a.handleListOpnames)
				r.Get("/pengajuan", a.handleListRequests)
				r.Post("/pengajuan/{id}/approve", a.handleApproveRequest)
				r.Post("/pengajuan/{id}/reject", a.handleRejectRequest)
			})

			r.Route("/kasir", func(r chi.Router) {
				r.Use(a.requireRoles(domain.RoleKasir, domain.RoleAdmin))
				r.Get("/dashboard", a.handleCashierDashboard)
				r.Post("/transaksi", a.handleCashierPost)
				r.Get("/transaksi", a.handleCashierTransactions)
				r.Get("/transaksi/{id}", a.handleGetTransaction)
				r.Post("/transaksi/{id}/selesai", a.handleCompleteTransaction)
				r.Post("/transaksi/{id}/batal", a.handleCancelTransaction)
				r.Get("/anggota", a.handleListMembers)
				r.Get("/anggota/{id}/limit-hutang", a.handleMemberCreditLimit)
				r.Post("/opname", a.handleStockOpname)
				r.Get("/opname", a.handleListOpnames)
				r.Post("/setoran", a.handleSetoran)
				r.Get("/pengajuan", a.handleListRequests)
				r.Post("/pengajuan/{id}/approve", a.handleApproveRequest)
				r.Post("/pengajuan/{id}/reject", a.handleRejectRequest)
			})

			r.Route("/anggota", func(r chi.Router) {
				r.Use(a.requireRoles(domain.RoleAnggota))
				r.Get("/profil", a.handleMyMember)
				r.Post("/transaksi", a.handleMemberPost)
				r.Get("/transaksi", a.handleMyTransactions)
				r.Get("/transaksi/{id}", a.handleGetTransaction)
				r.Get("/shu", a.handleMySHU)
				r.Get("/limit-hutang", a.handleMyCreditLimit)
				r.Post("/topup", a.handleTopup)
				r.Post("/bayar-hutang", a.handleDebtPayment)
				r.Get("/pengajuan", a.handleMyRequests)
			})
		})
	})

	return r
}

func (a *API) metricsHandler() http.Handler {
	if a.opts.Gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(a.opts.Gatherer, promhttp.HandlerOpts{})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) || errors.Is(err, errInactiveAccount) {
			a.log.Info("login rejected", zap.String("username", req.Username), zap.Error(err))
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.respondError(w, err)
		return
	}
	a.log.Info("login", zap.String("username", req.Username), zap.String("role", resp.Role))
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeData(w, http.StatusOK, actor)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps the store error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrOutOfStock), errors.Is(err, store.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientFunds), errors.Is(err, store.ErrCreditLimitExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; the client gets a generic message.
	msg := err.Error()
	if status >= 500 {
		a.log.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
