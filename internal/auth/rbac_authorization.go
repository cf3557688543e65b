package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/transport"
)

type RBACAuthorization struct {
	*transport.BaseHandler
	logger *slog.Logger
}

func NewRBACAuthorization(baseHandler *transport.BaseHandler, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: baseHandler,
		logger:      logger,
	}
}

// RequireRoles lets the request through when the principal holds at least
// one of roles.
func (ra *RBACAuthorization) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				ra.logger.WarnContext(r.Context(), "authorization check failed: principal not found in context")
				ra.WriteAppError(w, r, internal.ErrUnauthorized)
				return
			}
			if !p.HasAnyRole(roles...) {
				ra.logger.WarnContext(r.Context(), "access denied: missing role",
					"user_id", p.UserID,
					"required_roles", roles,
					"user_roles", p.Roles)
				ra.WriteAppError(w, r, internal.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.RequireRoles(internal.RoleAdmin)
}
