package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"koperasi/backend/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.service.AdminDashboard(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, dash)
}

func (a *API) handleCashierDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.service.CashierDashboard(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, dash)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	report, err := a.service.SalesReport(r.Context(), query.Get("from"), query.Get("to"))
	if err != nil {
		a.respondError(w, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	filename := fmt.Sprintf("laporan-penjualan-%s-%s", report.From, report.To)
	switch format {
	case "", "json":
		writeData(w, http.StatusOK, report)
	case "csv":
		body, err := salesReportCSV(report)
		if err != nil {
			a.respondError(w, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", filename+".csv", body)
	case "xlsx":
		body, err := salesReportXLSX(report)
		if err != nil {
			a.respondError(w, err)
			return
		}
		writeAttachment(w, xlsxContentType, filename+".xlsx", body)
	default:
		a.respondError(w, fmt.Errorf("%w: format must be json, csv or xlsx", store.ErrValidation))
	}
}

func (a *API) handleSHUReport(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("tahun")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			a.respondError(w, fmt.Errorf("%w: tahun must be a number", store.ErrValidation))
			return
		}
		year = parsed
	}

	rows, err := a.service.SHUReport(r.Context(), year)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}

func (a *API) handleMySHU(w http.ResponseWriter, r *http.Request) {
	shu, err := a.service.MySHU(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, shu)
}

func (a *API) handleMyCreditLimit(w http.ResponseWriter, r *http.Request) {
	limit, err := a.service.MyCreditLimit(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, limit)
}

func (a *API) handleMemberCreditLimit(w http.ResponseWriter, r *http.Request) {
	limit, err := a.service.MemberCreditLimit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, limit)
}

func writeAttachment(w http.ResponseWriter, contentType string, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
