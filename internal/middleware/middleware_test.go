package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-portal/internal/model"
	"go-admin-portal/internal/ratelimit"
	"go-admin-portal/internal/service"
)

type recordedAudit struct {
	entries []model.AuditEntry
}

func (a *recordedAudit) Record(_ context.Context, entry model.AuditEntry) {
	a.entries = append(a.entries, entry)
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(context.Context, string, ratelimit.Class) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, &model.RateLimitError{RetryAfter: 1500 * time.Millisecond}
}

func TestClientIPIgnoresForwardingHeadersUnlessTrusted(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.2")

	assert.Equal(t, "10.0.0.7", ClientIP(req, false))
	assert.Equal(t, "203.0.113.5", ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.2", ClientIP(req, true))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(req, false))
}

func TestLoggingAttachesRequestInfo(t *testing.T) {
	t.Parallel()

	var info *service.RequestInfo
	handler := Logging(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = service.RequestInfoFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotNil(t, info)
	assert.Equal(t, "trace-123", info.RequestID)
	assert.Equal(t, "192.0.2.1", info.IP)
	assert.Equal(t, "trace-123", rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id\r\n")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id\r\n", rec.Header().Get(requestIDHeader))
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestRateLimitMiddlewareRejectsWithRetryAfter(t *testing.T) {
	t.Parallel()

	audit := &recordedAudit{}
	called := false
	handler := NewRateLimitMiddleware(denyAllLimiter{}, audit).Limit(ratelimit.ClassAuth)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, model.AuditRateLimited, audit.entries[0].Action)
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	t.Parallel()

	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	rec := httptest.NewRecorder()
	SecurityHeaders(true)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	SecurityHeaders(false)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRefreshCookieHelpers(t *testing.T) {
	t.Parallel()

	cfg := CookieConfig{Secure: true, Domain: "admin.example"}

	rec := httptest.NewRecorder()
	SetRefreshCookie(rec, cfg, "id.secret", time.Now().Add(time.Hour))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "id.secret", cookies[0].Value)
	assert.Equal(t, "/api/v1", cookies[0].Path)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)

	rec = httptest.NewRecorder()
	ClearRefreshCookie(rec, cfg)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, RefreshCookieValue(req))
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "abc"})
	assert.Equal(t, "abc", RefreshCookieValue(req))
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "bearer abc.def")
	assert.Equal(t, "abc.def", bearerToken(req))

	req.Header.Set("Authorization", "Basic Zm9v")
	assert.Empty(t, bearerToken(req))
}
