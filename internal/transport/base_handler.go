package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/pkg/logger"
	"github.com/go-chi/chi"
)

const maxJSONBody = 1 << 20

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// DataResponse wraps a single item.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// ListResponse wraps one page of a search.
type ListResponse struct {
	Data            interface{} `json:"data"`
	RecordsTotal    int64       `json:"records_total"`
	RecordsFiltered int64       `json:"records_filtered"`
}

// TaskResponse acknowledges enqueued work.
type TaskResponse struct {
	Task string `json:"task"`
	URL  string `json:"url"`
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *BaseHandler) WriteData(w http.ResponseWriter, status int, data interface{}) {
	h.WriteJSON(w, status, DataResponse{Data: data})
}

func (h *BaseHandler) WriteList(w http.ResponseWriter, rows interface{}, total, filtered int64) {
	h.WriteJSON(w, http.StatusOK, ListResponse{Data: rows, RecordsTotal: total, RecordsFiltered: filtered})
}

// WriteError writes an error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		h.Logger.Error("http error", "status", status, "message", message)
	} else {
		h.Logger.Debug("http error", "status", status, "message", message)
	}
	h.WriteJSON(w, status, internal.Response{Message: message})
}

// WriteAppError renders err as {"message": ...}. Errors that are not
// AppErrors become a generic 500 and are logged with their cause.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		appErr = internal.ErrInternal.WithCause(err)
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.From(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"type", appErr.Type,
			"error", appErr.Error())
	}
	status, body := appErr.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// DecodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return internal.ErrInvalidBody.WithCause(err)
	}
	return nil
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	return BearerToken(r)
}

func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}

// BaseURL is the scheme and host the request was addressed to.
func BaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

// URLParamID parses a positive integer path parameter.
func URLParamID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.NewBadRequestError("Invalid "+name, internal.ErrCodeInvalidValue)
	}
	return id, nil
}

// Principal returns the authenticated caller or ErrUnauthorized.
func Principal(r *http.Request) (*internal.Principal, error) {
	p, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		return nil, internal.ErrUnauthorized
	}
	return p, nil
}
