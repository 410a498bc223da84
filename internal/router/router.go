package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-admin-portal/internal/config"
	"go-admin-portal/internal/handler"
	"go-admin-portal/internal/metrics"
	"go-admin-portal/internal/middleware"
	"go-admin-portal/internal/model"
	"go-admin-portal/internal/ratelimit"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	User  *handler.UserHandler
	Audit *handler.AuditHandler
	Page  *handler.PageHandler
}

// Guards bundles the middleware that needs application services.
type Guards struct {
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
}

// businessPages are served at /api/v1/{page}; user management has its own
// routes under /users.
var businessPages = []model.Page{
	model.PageDashboard,
	model.PageInterviews,
	model.PageCandidates,
	model.PageCalls,
	model.PageSettings,
}

func New(cfg *config.Config, guards Guards, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(cfg.TrustProxy))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders(cfg.CookieSecure))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	authed := guards.Auth.Guard(middleware.Route{})
	userAdmin := guards.Auth.Guard(middleware.Route{Page: pagePtr(model.PageUserManagement), AdminOnly: true})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.With(guards.RateLimit.Limit(ratelimit.ClassAuth)).Post("/login", h.Auth.Login)
			auth.With(guards.RateLimit.Limit(ratelimit.ClassAuth)).Post("/refresh", h.Auth.Refresh)
			auth.With(authed).Post("/logout", h.Auth.Logout)
			auth.With(authed).Post("/logout-all", h.Auth.LogoutAll)
			auth.With(authed).Get("/csrf-token", h.Auth.CSRFToken)
			auth.With(authed).Get("/me", h.Auth.Me)
		})

		api.Route("/users", func(users chi.Router) {
			users.With(authed).Get("/me/permissions", h.User.MyPermissions)

			users.Group(func(admin chi.Router) {
				admin.Use(userAdmin)
				admin.Get("/", h.User.List)
				admin.Post("/", h.User.Create)
				admin.Get("/{id}", h.User.Get)
				admin.Put("/{id}", h.User.Update)
				admin.Delete("/{id}", h.User.Deactivate)
				admin.Put("/{id}/page-access/{page}", h.User.SetPageAccess)
				admin.Delete("/{id}/page-access/{page}", h.User.ClearPageAccess)
			})
		})

		api.With(authed).Get("/audit-logs", h.Audit.List)

		for _, page := range businessPages {
			api.With(guards.Auth.Guard(middleware.PageRoute(page))).Get("/"+page.String(), h.Page.Show(page))
		}
	})

	return r
}

func pagePtr(page model.Page) *model.Page {
	return &page
}
