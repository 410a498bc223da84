package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-admin-portal/internal/model"
	"go-admin-portal/internal/ratelimit"
	"go-admin-portal/internal/service"
	"go-admin-portal/pkg/apierror"
)

type tokenVerifier interface {
	VerifyAccess(tokenString string) (*model.AccessClaims, error)
	SessionActive(ctx context.Context, familyID string) (bool, error)
}

type sessionRefresher interface {
	Refresh(ctx context.Context, refreshValue string) (model.TokenPair, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

type csrfValidator interface {
	Validate(token string, sessionID string) error
}

type pageEvaluator interface {
	Evaluate(ctx context.Context, user model.User, page model.Page) (bool, error)
}

type contextKey string

const (
	authClaimsContextKey contextKey = "auth_claims"
	authUserContextKey   contextKey = "auth_user"
)

// Route describes what a guarded endpoint requires beyond authentication.
type Route struct {
	Page      *model.Page
	AdminOnly bool
}

func PageRoute(page model.Page) Route {
	return Route{Page: &page}
}

type AuthDeps struct {
	Tokens       tokenVerifier
	Sessions     sessionRefresher
	Users        userLoader
	CSRF         csrfValidator
	Limiter      requestLimiter
	Permissions  pageEvaluator
	Audit        service.AuditRecorder
	Cookie       CookieConfig
	SessionCheck bool
}

type AuthMiddleware struct {
	deps AuthDeps
}

func NewAuthMiddleware(deps AuthDeps) *AuthMiddleware {
	return &AuthMiddleware{deps: deps}
}

// Guard authenticates the caller and then applies, in order, the CSRF check
// for mutating methods, the per-user rate limit and the route's page or
// admin requirement. Mutating requests whose handler wrote no audit entry get
// a request.completed entry; entries from authentication itself, including a
// silent rotation, do not count.
func (m *AuthMiddleware) Guard(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := m.authenticate(w, r)
			if !ok {
				return
			}

			user, ok := m.loadUser(w, r, claims)
			if !ok {
				return
			}

			mutating := isMutating(r.Method)
			if mutating && m.deps.CSRF != nil {
				if err := m.deps.CSRF.Validate(strings.TrimSpace(r.Header.Get(CSRFHeader)), claims.SessionID); err != nil {
					m.deny(r, user, model.AuditCSRFRejected, map[string]any{"reason": err.Error()})
					apierror.Write(w, err)
					return
				}
			}

			if m.deps.Limiter != nil {
				if _, err := m.deps.Limiter.Allow(r.Context(), "user:"+user.ID, ratelimit.ClassAPI); err != nil {
					if errors.Is(err, model.ErrRateLimited) {
						recordRateLimited(r, m.deps.Audit, user, ratelimit.ClassAPI, err)
					}
					apierror.Write(w, err)
					return
				}
			}

			if route.Page != nil {
				allowed, err := m.deps.Permissions.Evaluate(r.Context(), user, *route.Page)
				if err != nil {
					apierror.Write(w, err)
					return
				}
				if !allowed {
					m.deny(r, user, model.AuditAccessDenied, map[string]any{"page": route.Page.String(), "reason": "page_denied"})
					apierror.Write(w, model.ErrPermissionDenied)
					return
				}
			}

			if route.AdminOnly && !user.Role.IsAdmin() {
				m.deny(r, user, model.AuditAccessDenied, map[string]any{"reason": "not_admin"})
				apierror.Write(w, model.ErrNotAdmin)
				return
			}

			ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
			ctx = context.WithValue(ctx, authUserContextKey, user)

			if !mutating {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			info, hasInfo := service.RequestInfoFromContext(ctx)
			if hasInfo {
				info.BeginHandling()
			}

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if hasInfo && info.Recorded() {
				return
			}
			m.deps.Audit.Record(ctx, model.AuditEntry{
				ActorID:    user.ID,
				ActorRole:  user.Role.String(),
				Action:     model.AuditRequestCompleted,
				Severity:   model.SeverityInfo,
				TargetType: model.TargetRequest,
				TargetID:   r.Method + " " + r.URL.Path,
				Metadata:   map[string]any{"status": wrapped.status},
			})
		})
	}
}

// authenticate verifies the bearer token. An expired token is replaced once
// from the refresh cookie; the new access token is returned in the
// X-Access-Token header and the rotated cookie is set.
func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*model.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		m.reject(r, "missing_token")
		apierror.Write(w, model.ErrTokenInvalid)
		return nil, false
	}

	claims, err := m.deps.Tokens.VerifyAccess(token)
	if err == nil {
		return claims, true
	}

	cookie := RefreshCookieValue(r)
	if !errors.Is(err, model.ErrTokenExpired) || cookie == "" || m.deps.Sessions == nil {
		m.reject(r, err.Error())
		apierror.Write(w, err)
		return nil, false
	}

	pair, refreshErr := m.deps.Sessions.Refresh(r.Context(), cookie)
	if refreshErr != nil {
		ClearRefreshCookie(w, m.deps.Cookie)
		apierror.Write(w, refreshErr)
		return nil, false
	}

	SetRefreshCookie(w, m.deps.Cookie, pair.RefreshToken, pair.RefreshExpiresAt)
	w.Header().Set(AccessTokenHeader, pair.AccessToken)

	claims, err = m.deps.Tokens.VerifyAccess(pair.AccessToken)
	if err != nil {
		apierror.Write(w, err)
		return nil, false
	}

	return claims, true
}

// loadUser reads the caller from the store so role changes and deactivation
// apply to tokens that are still valid.
func (m *AuthMiddleware) loadUser(w http.ResponseWriter, r *http.Request, claims *model.AccessClaims) (model.User, bool) {
	user, err := m.deps.Users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			m.reject(r, "unknown_user")
			apierror.Write(w, model.ErrTokenInvalid)
		} else {
			apierror.Write(w, err)
		}
		return model.User{}, false
	}

	if !user.Active {
		m.deny(r, user, model.AuditTokenRejected, map[string]any{"reason": "inactive"})
		apierror.Write(w, model.ErrInactiveUser)
		return model.User{}, false
	}

	if m.deps.SessionCheck {
		active, err := m.deps.Tokens.SessionActive(r.Context(), claims.SessionID)
		if err != nil {
			apierror.Write(w, err)
			return model.User{}, false
		}
		if !active {
			m.deny(r, user, model.AuditTokenRejected, map[string]any{"reason": "session_revoked"})
			apierror.Write(w, model.ErrTokenInvalid)
			return model.User{}, false
		}
	}

	return user, true
}

func (m *AuthMiddleware) reject(r *http.Request, reason string) {
	m.deps.Audit.Record(r.Context(), model.AuditEntry{
		Action:     model.AuditTokenRejected,
		Severity:   model.SeverityWarning,
		TargetType: model.TargetRequest,
		TargetID:   r.Method + " " + r.URL.Path,
		Metadata:   map[string]any{"reason": reason},
	})
}

func (m *AuthMiddleware) deny(r *http.Request, user model.User, action model.AuditAction, metadata map[string]any) {
	m.deps.Audit.Record(r.Context(), model.AuditEntry{
		ActorID:    user.ID,
		ActorRole:  user.Role.String(),
		Action:     action,
		Severity:   model.SeverityWarning,
		TargetType: model.TargetRequest,
		TargetID:   r.Method + " " + r.URL.Path,
		Metadata:   metadata,
	})
}

func ClaimsFromContext(ctx context.Context) (*model.AccessClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AccessClaims)
	return claims, ok
}

func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(authUserContextKey).(model.User)
	return user, ok
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
