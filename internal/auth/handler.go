package auth

import (
	"context"
	"net/http"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/transport"
	"github.com/frahmantamala/document-management/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Login(ctx context.Context, req LoginRequest) (AuthTokens, error)
	Refresh(ctx context.Context, req RefreshRequest) (AuthTokens, error)
	Logout(ctx context.Context) error
	Authenticate(ctx context.Context, bearer string) (*internal.Principal, error)
	RequestReset(ctx context.Context, req ResetRequest) error
	CheckReset(ctx context.Context, signed string) error
	ConfirmReset(ctx context.Context, signed string, req ConfirmResetRequest) (AuthTokens, error)
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

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	tokens, err := h.Service.Login(r.Context(), req)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken = h.ExtractTokenFromHeader(r)
	}
	tokens, err := h.Service.Refresh(r.Context(), req)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context()); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, internal.Response{Message: "Logged out"})
}

func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if err := h.Service.RequestReset(r.Context(), req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, internal.Response{Message: "If the email is registered a reset link has been sent"})
}

func (h *Handler) CheckReset(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.CheckReset(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, internal.Response{Message: "Token is valid"})
}

func (h *Handler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req ConfirmResetRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	tokens, err := h.Service.ConfirmReset(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tokens)
}

// AuthMiddleware puts the principal of the bearer token into the request
// context or answers 401.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := h.Service.Authenticate(r.Context(), h.ExtractTokenFromHeader(r))
		if err != nil {
			h.Logger.DebugContext(r.Context(), "authentication failed", "path", r.URL.Path, "error", err)
			h.WriteAppError(w, r, err)
			return
		}
		ctx := internal.ContextWithPrincipal(r.Context(), principal)
		ctx = logger.With(ctx, "user_id", principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
