package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"koperasi/backend/internal/store"
)

type metrics struct {
	posted         *prometheus.CounterVec
	failed         *prometheus.CounterVec
	dashboardCache *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		posted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "koperasi_transactions_posted_total",
			Help: "Transactions posted, by source and payment method.",
		}, []string{"source", "method"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "koperasi_transactions_failed_total",
			Help: "Transaction postings rejected or rolled back, by reason.",
		}, []string{"reason"}),
		dashboardCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "koperasi_dashboard_cache_total",
			Help: "Admin dashboard cache lookups, by result.",
		}, []string{"result"}),
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrCreditLimitExceeded):
		return "credit_limit_exceeded"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrValidation):
		return "validation"
	case errors.Is(err, store.ErrForbidden):
		return "forbidden"
	case errors.Is(err, store.ErrAlreadyProcessed):
		return "already_processed"
	default:
		return "internal"
	}
}
