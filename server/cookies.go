package server

import (
	"net/http"
	"strings"
	"time"
)

// cookie builds a gateway cookie. Every gateway cookie is HttpOnly and
// SameSite=Strict on the whole site.
func (s *Server) cookie(r *http.Request, name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies() || getScheme(r) == "https",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge / time.Second),
	}
	if maxAge > 0 {
		c.Expires = s.nowFunc().Add(maxAge)
	} else {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

func (s *Server) SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = s.config.GetSessionCookieMaxAge()
	}
	http.SetCookie(w, s.cookie(r, s.config.GetSessionCookieName(), token, maxAge))
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.cookie(r, s.config.GetSessionCookieName(), "", 0))
}

func (s *Server) SetMFACookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, s.cookie(r, s.config.GetMFACookieName(), token, s.config.GetMFACookieMaxAge()))
}

func (s *Server) ClearMFACookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.cookie(r, s.config.GetMFACookieName(), "", 0))
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// sessionCredential reads the session cookie, falling back to a bearer
// token for API clients that hold their own access token.
func (s *Server) sessionCredential(r *http.Request) (credential string, fromCookie bool) {
	if v := cookieValue(r, s.config.GetSessionCookieName()); v != "" {
		return v, true
	}
	return bearerToken(r.Header.Get("Authorization")), false
}

func bearerToken(value string) string {
	const bearer = "Bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(value[len(bearer):])
}

// maxAgeUntil converts an upstream expiry timestamp into a cookie max age,
// falling back when it is missing, unparseable or already past.
func maxAgeUntil(expiresAt string, now time.Time, fallback time.Duration) time.Duration {
	if expiresAt == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return fallback
	}
	d := t.Sub(now).Truncate(time.Second)
	if d <= 0 {
		return fallback
	}
	return d
}
