package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
)

func (a *API) handleCashierPost(w http.ResponseWriter, r *http.Request) {
	a.postTransaction(w, r, domain.SourceKasir)
}

func (a *API) handleMemberPost(w http.ResponseWriter, r *http.Request) {
	a.postTransaction(w, r, domain.SourceAnggota)
}

func (a *API) postTransaction(w http.ResponseWriter, r *http.Request, source string) {
	var req domain.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.PostTransaction(r.Context(), req, source)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleCompleteTransaction(w http.ResponseWriter, r *http.Request) {
	trx, err := a.service.CompleteTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, trx)
}

func (a *API) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	trx, err := a.service.CancelTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, trx)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	trx, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, trx)
}

func (a *API) handleCashierTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	trxs, err := a.service.ListTransactions(r.Context(), domain.TransactionFilter{
		Status: strings.TrimSpace(query.Get("status")),
		Limit:  parsePositiveLimit(query.Get("limit"), 50, 200),
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, trxs)
}

func (a *API) handleAdminTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.TransactionFilter{
		Status:   strings.TrimSpace(query.Get("status")),
		MemberID: strings.TrimSpace(query.Get("anggota_id")),
		Limit:    parsePositiveLimit(query.Get("limit"), 100, 1000),
	}

	var err error
	if filter.From, err = parseDay(query.Get("from")); err != nil {
		a.respondError(w, err)
		return
	}
	if filter.To, err = parseDay(query.Get("to")); err != nil {
		a.respondError(w, err)
		return
	}
	if !filter.To.IsZero() {
		// Inclusive end date.
		filter.To = filter.To.AddDate(0, 0, 1)
	}

	trxs, err := a.service.ListTransactions(r.Context(), filter)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, trxs)
}

func (a *API) handleMyTransactions(w http.ResponseWriter, r *http.Request) {
	trxs, err := a.service.MyTransactions(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, trxs)
}

func (a *API) handleStockOpname(w http.ResponseWriter, r *http.Request) {
	var req domain.StockOpnameRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	opname, err := a.service.StockOpname(r.Context(), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, opname)
}

func (a *API) handleListOpnames(w http.ResponseWriter, r *http.Request) {
	opnames, err := a.service.ListOpnames(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, opnames)
}

// parseDay reads an optional YYYY-MM-DD query value in server-local time.
func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: tanggal %q must be YYYY-MM-DD", store.ErrValidation, raw)
	}
	return day, nil
}
