package middleware

import (
	"net/http"
	"time"
)

const (
	RefreshCookieName = "refresh_token"
	AccessTokenHeader = "X-Access-Token"
	CSRFHeader        = "X-CSRF-Token"
)

// CookieConfig describes the refresh cookie. Path covers the whole API so the
// auth middleware can rotate silently on any route.
type CookieConfig struct {
	Secure bool
	Domain string
	Path   string
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/api/v1"
	}
	return c.Path
}

func SetRefreshCookie(w http.ResponseWriter, cfg CookieConfig, value string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     cfg.path(),
		Domain:   cfg.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func ClearRefreshCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     cfg.path(),
		Domain:   cfg.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func RefreshCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
