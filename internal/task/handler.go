package task

import (
	"context"
	"net/http"

	"github.com/frahmantamala/document-management/internal/transport"
	"github.com/go-chi/chi"
)

type StatusAPI interface {
	Status(ctx context.Context, id string) (Progress, error)
}

type StatusHandler struct {
	*transport.BaseHandler
	Service StatusAPI
}

func NewStatusHandler(baseHandler *transport.BaseHandler, service StatusAPI) *StatusHandler {
	return &StatusHandler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// GetStatus returns {"data": progress} for the task in the URL.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	progress, err := h.Service.Status(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteData(w, http.StatusOK, progress)
}

// StatusURL is where clients poll the task.
func StatusURL(r *http.Request, id string) string {
	return transport.BaseURL(r) + "/api/tasks/status/" + id
}
