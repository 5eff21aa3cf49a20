package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"koperasi/backend/internal/domain"
)

func (a *API) handleTopup(w http.ResponseWriter, r *http.Request) {
	var req domain.BalanceRequestCreate
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := a.service.RequestTopup(r.Context(), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (a *API) handleDebtPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.BalanceRequestCreate
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := a.service.RequestDebtPayment(r.Context(), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (a *API) handleSetoran(w http.ResponseWriter, r *http.Request) {
	var req domain.BalanceRequestCreate
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := a.service.RequestSetoran(r.Context(), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reqs, err := a.service.ListRequests(r.Context(), domain.BalanceRequestFilter{
		Kind:   strings.TrimSpace(query.Get("jenis")),
		Status: strings.TrimSpace(query.Get("status")),
		Limit:  parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, reqs)
}

func (a *API) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.service.MyRequests(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, reqs)
}

func (a *API) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	decided, err := a.service.ApproveRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, decided)
}

func (a *API) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	decided, err := a.service.RejectRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, decided)
}
