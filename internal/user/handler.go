package user

import (
	"context"
	"net/http"

	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/query"
	"github.com/frahmantamala/document-management/internal/task"
	"github.com/frahmantamala/document-management/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, req CreateRequest) (*User, error)
	Get(ctx context.Context, id int64) (*User, error)
	Update(ctx context.Context, id int64, req UpdateRequest) (*User, error)
	Delete(ctx context.Context, id int64) (*User, error)
	Search(ctx context.Context, d query.Descriptor) (repository.Page[User], error)
	Export(ctx context.Context, req ExportRequest) (string, error)
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

// Export returns a handler enqueuing the given export. The optional body is
// a search descriptor restricting the exported users.
func (h *Handler) Export(kind ExportKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d query.Descriptor
		if err := h.DecodeJSON(r, &d); err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		req := ExportRequest{Kind: kind, ToPDF: r.URL.Query().Get("to_pdf") == "1"}
		if len(d.Search) > 0 || len(d.Order) > 0 {
			req.Search = &d
		}

		id, err := h.Service.Export(r.Context(), req)
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		h.WriteJSON(w, http.StatusAccepted, transport.TaskResponse{Task: id, URL: task.StatusURL(r, id)})
	}
}
