package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"koperasi/backend/internal/domain"
)

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.CreateItem(r.Context(), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, item)
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.service.ListMembers(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, members)
}

func (a *API) handleGetMember(w http.ResponseWriter, r *http.Request) {
	member, err := a.service.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, member)
}

func (a *API) handleMyMember(w http.ResponseWriter, r *http.Request) {
	member, err := a.service.MyMember(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, member)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}
