package middleware

import (
	"context"
	"net/http"

	"go-admin-portal/internal/model"
	"go-admin-portal/internal/ratelimit"
	"go-admin-portal/internal/service"
	"go-admin-portal/pkg/apierror"
)

type requestLimiter interface {
	Allow(ctx context.Context, identity string, class ratelimit.Class) (ratelimit.Decision, error)
}

// RateLimitMiddleware guards endpoints that run before authentication, keyed
// by client address.
type RateLimitMiddleware struct {
	limiter requestLimiter
	audit   service.AuditRecorder
}

func NewRateLimitMiddleware(limiter requestLimiter, audit service.AuditRecorder) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, audit: audit}
}

func (m *RateLimitMiddleware) Limit(class ratelimit.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, false)
			if info, ok := service.RequestInfoFromContext(r.Context()); ok && info.IP != "" {
				ip = info.IP
			}

			if _, err := m.limiter.Allow(r.Context(), "ip:"+ip, class); err != nil {
				recordRateLimited(r, m.audit, model.User{}, class, err)
				apierror.Write(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func recordRateLimited(r *http.Request, audit service.AuditRecorder, user model.User, class ratelimit.Class, err error) {
	entry := model.AuditEntry{
		ActorID:    user.ID,
		Action:     model.AuditRateLimited,
		Severity:   model.SeverityWarning,
		TargetType: model.TargetRequest,
		TargetID:   r.Method + " " + r.URL.Path,
		Metadata:   map[string]any{"class": string(class), "error": err.Error()},
	}
	if user.ID != "" {
		entry.ActorRole = user.Role.String()
	}
	audit.Record(r.Context(), entry)
}
