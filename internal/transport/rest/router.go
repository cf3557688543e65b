package rest

import (
	"log/slog"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/auth"
	"github.com/frahmantamala/document-management/internal/document"
	"github.com/frahmantamala/document-management/internal/role"
	"github.com/frahmantamala/document-management/internal/task"
	"github.com/frahmantamala/document-management/internal/transport/middleware"
	"github.com/frahmantamala/document-management/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers is everything the route table binds.
type Handlers struct {
	Auth     *auth.Handler
	RBAC     *auth.RBACAuthorization
	User     *user.Handler
	Role     *role.Handler
	Document *document.Handler
	Task     *task.StatusHandler
	Health   *HealthHandler
}

var (
	staff    = []string{internal.RoleAdmin, internal.RoleTeamLeader}
	everyone = []string{internal.RoleAdmin, internal.RoleTeamLeader, internal.RoleWorker}
)

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	rbac := h.RBAC

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggingMiddleware(logger))

	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.Health)
		r.Get("/ping", h.Health.Ping)

		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", h.Auth.Login)
			ar.Post("/refresh", h.Auth.Refresh)
			ar.Post("/reset_password", h.Auth.RequestReset)
			ar.Get("/reset_password/{token}", h.Auth.CheckReset)
			ar.Post("/reset_password/{token}", h.Auth.ConfirmReset)
			ar.With(h.Auth.AuthMiddleware).Post("/logout", h.Auth.Logout)
		})

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Route("/users", func(ur chi.Router) {
				ur.With(rbac.RequireRoles(staff...)).Post("/", h.User.Create)
				ur.With(rbac.RequireRoles(staff...)).Post("/search", h.User.Search)
				ur.Group(func(er chi.Router) {
					er.Use(rbac.RequireRoles(everyone...))
					er.Post("/xlsx", h.User.Export(user.ExportXLSX))
					er.Post("/word", h.User.Export(user.ExportWord))
					er.Post("/word_and_xlsx", h.User.Export(user.ExportWordAndXLSX))
				})
				ur.With(rbac.RequireAdmin()).Get("/{id}", h.User.Get)
				ur.With(rbac.RequireRoles(staff...)).Put("/{id}", h.User.Update)
				ur.With(rbac.RequireRoles(staff...)).Delete("/{id}", h.User.Delete)
			})

			pr.Route("/roles", func(rr chi.Router) {
				rr.Use(rbac.RequireAdmin())
				rr.Post("/", h.Role.Create)
				rr.Post("/search", h.Role.Search)
				rr.Get("/{id}", h.Role.Get)
				rr.Put("/{id}", h.Role.Update)
				rr.Delete("/{id}", h.Role.Delete)
			})

			pr.Route("/documents", func(dr chi.Router) {
				dr.Use(rbac.RequireRoles(everyone...))
				dr.Post("/", h.Document.Create)
				dr.Post("/search", h.Document.Search)
				dr.Get("/{id}", h.Document.Get)
				dr.Put("/{id}", h.Document.Update)
				dr.Delete("/{id}", h.Document.Delete)
			})

			pr.With(rbac.RequireRoles(everyone...)).Get("/tasks/status/{taskID}", h.Task.GetStatus)
		})
	})
}
