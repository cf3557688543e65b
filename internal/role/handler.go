package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, req CreateRequest) (*Role, error)
	Get(ctx context.Context, id int64) (*Role, error)
	Update(ctx context.Context, id int64, req UpdateRequest) (*Role, error)
	Delete(ctx context.Context, id int64) (*Role, error)
	Search(ctx context.Context, d query.Descriptor) (repository.Page[Role], error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	created, err := h.Service.Create(r.Context(), req)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusCreated, created)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := transport.URLParamID(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	found, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusOK, found)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := transport.URLParamID(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	var req UpdateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	updated, err := h.Service.Update(r.Context(), id, req)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := transport.URLParamID(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	deleted, err := h.Service.Delete(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusOK, deleted)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var d query.Descriptor
	if err := h.DecodeJSON(r, &d); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	page, err := h.Service.Search(r.Context(), d)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteList(w, page.Rows, page.RecordsTotal, page.RecordsFiltered)
}
