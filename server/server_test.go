package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/server"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var sessionUsers = map[string]map[string]any{
	"admin-token":   {"id": "u-admin", "email": "admin@example.com", "role": "admin", "mfaEnabled": true},
	"user-token":    {"id": "u-user", "email": "user@example.com", "role": "user", "mfaEnabled": true},
	"pending-token": {"id": "u-pending", "email": "pending@example.com", "role": "user", "mfaPending": true},
}

// accountService fakes the upstream identity service.
type accountService struct {
	mu       sync.Mutex
	revoked  []string
	logins   []map[string]string
	mfaQuery string
	mfaAuth  string
}

func (a *accountService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		user, ok := sessionUsers[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_session"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user": user})
	})
	mux.HandleFunc("DELETE /session", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.revoked = append(a.revoked, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		a.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.mu.Lock()
		a.logins = append(a.logins, body)
		a.mu.Unlock()

		switch body["email"] {
		case "ok@example.com":
			expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
			_, _ = w.Write([]byte(`{"token":"fresh-session","expiresAt":"` + expires + `"}`))
		case "mfa@example.com":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"mfa_required","mfaToken":"challenge-1"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_credentials"}`))
		}
	})
	mux.HandleFunc("GET /mfa/status", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.mfaQuery = r.URL.RawQuery
		a.mfaAuth = r.Header.Get("Authorization")
		a.mu.Unlock()
		_, _ = w.Write([]byte(`{"mfa":{"totpEnabled":true}}`))
	})
	mux.HandleFunc("POST /mfa/totp/verify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["token"] == "challenge-1" && body["code"] == "123456" {
			_, _ = w.Write([]byte(`{"token":"verified-session"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_code"}`))
	})
	mux.HandleFunc("POST /mfa/totp/provision", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["token"] != "challenge-1" && r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"secret":"JBSWY3DP","issuer":"` + body["issuer"] + `","mfaToken":"challenge-2"}`))
	})
	mux.HandleFunc("POST /mfa/disable", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_session"}`))
			return
		}
		_, _ = w.Write([]byte(`{"mfa":{"totpEnabled":false}}`))
	})
	mux.HandleFunc("POST /refresh", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"next-access"}`))
	})
	return mux
}

// downstream stands in for the dashboard app and reports who the edge
// admitted.
func downstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := "anonymous"
		if user, ok := server.UserFromContext(r.Context()); ok {
			who = user.ID
		}
		_, _ = w.Write([]byte("downstream " + who))
	})
}

func newGateway(t *testing.T, opts ...server.Option) (*server.Server, *accountService) {
	t.Helper()
	t.Setenv("ENV", "test")

	account := &accountService{}
	upstreamServer := httptest.NewServer(account.handler())
	t.Cleanup(upstreamServer.Close)

	client, err := upstream.New([]string{upstreamServer.URL})
	require.NoError(t, err)

	opts = append([]server.Option{server.WithDownstream(downstream())}, opts...)
	s, err := server.New(config.New(), client, opts...)
	require.NoError(t, err)
	return s, account
}

func request(method, path, session, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "xc_session", Value: session})
	}
	return req
}

func serve(s http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestNewValidates(t *testing.T) {
	_, err := server.New(nil, &upstream.Client{})
	require.Error(t, err)
	_, err = server.New(config.New(), nil)
	require.Error(t, err)
}

func TestEdgePages(t *testing.T) {
	s, _ := newGateway(t)

	tests := []struct {
		name         string
		path         string
		session      string
		wantStatus   int
		wantLocation string
		wantBody     string
	}{
		{"no session", "/panel", "", http.StatusFound, "/login?redirect=/panel", ""},
		{"unknown session", "/panel/tasks", "stale-token", http.StatusFound, "/login?redirect=/panel/tasks", ""},
		{"mfa pending", "/panel/api", "pending-token", http.StatusFound, "/panel/account?setupMfa=1", ""},
		{"mfa setup page", "/panel/account", "pending-token", http.StatusOK, "", "downstream u-pending"},
		{"admin management", "/panel/management", "admin-token", http.StatusOK, "", "downstream u-admin"},
		{"user management", "/panel/management", "user-token", http.StatusFound, "/panel?reason=forbidden", ""},
		{"user panel", "/panel", "user-token", http.StatusOK, "", "downstream u-user"},
		{"public page", "/docs/intro", "", http.StatusOK, "", "downstream anonymous"},
		{"root", "/", "", http.StatusOK, "", "downstream anonymous"},
		{"dot segments out of a public prefix", "/docs/../panel/management", "", http.StatusFound, "/login?redirect=/panel/management", ""},
		{"dot segments out of login", "/login/../panel", "", http.StatusFound, "/login?redirect=/panel", ""},
		{"encoded dot segments", "/docs/%2e%2e/panel", "", http.StatusFound, "/login?redirect=/panel", ""},
		{"doubled slash", "//panel", "", http.StatusFound, "/login?redirect=/panel", ""},
		{"dot segments still gate roles", "/docs/../panel/management", "user-token", http.StatusFound, "/panel?reason=forbidden", ""},
		{"dot segments with a session", "/docs/../panel", "user-token", http.StatusOK, "", "downstream u-user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, request(http.MethodGet, tt.path, tt.session, ""))
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestEdgeClearsRejectedCookie(t *testing.T) {
	s, _ := newGateway(t)

	rec := serve(s, request(http.MethodGet, "/panel", "stale-token", ""))
	require.Equal(t, http.StatusFound, rec.Code)
	cleared := findCookie(rec, "xc_session")
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)
}

func TestEdgeKeepsCookieWhenUpstreamIsDown(t *testing.T) {
	t.Setenv("ENV", "test")
	client, err := upstream.New([]string{"http://127.0.0.1:1"}, upstream.WithTimeout(time.Second))
	require.NoError(t, err)
	s, err := server.New(config.New(), client, server.WithDownstream(downstream()))
	require.NoError(t, err)

	rec := serve(s, request(http.MethodGet, "/panel", "user-token", ""))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login?redirect=/panel", rec.Header().Get("Location"))
	require.Nil(t, findCookie(rec, "xc_session"))
}

func TestEdgeAPI(t *testing.T) {
	s, _ := newGateway(t)

	tests := []struct {
		name       string
		path       string
		session    string
		bearer     string
		wantStatus int
		wantError  string
	}{
		{"no session", "/api/tasks", "", "", http.StatusUnauthorized, "unauthorized"},
		{"mfa pending", "/api/tasks", "pending-token", "", http.StatusForbidden, "mfa_setup_required"},
		{"user on admin api", "/api/admin/users", "user-token", "", http.StatusForbidden, "forbidden"},
		{"admin on admin api", "/api/admin/users", "admin-token", "", http.StatusOK, ""},
		{"bearer credential", "/api/tasks", "", "user-token", http.StatusOK, ""},
		{"public api", "/api/ping", "", "", http.StatusOK, ""},
		{"dot segments out of a public api", "/api/ping/../users", "", "", http.StatusUnauthorized, "unauthorized"},
		{"dot segments into admin api", "/api/auth/login/../../admin/users", "user-token", "", http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(http.MethodGet, tt.path, tt.session, "")
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := serve(s, req)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError == "" {
				return
			}
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.wantError, body["error"])
		})
	}

	rec := serve(s, request(http.MethodGet, "/api/tasks", "", ""))
	require.JSONEq(t, `{"error":"unauthorized","message":"Authentication required"}`, rec.Body.String())
}

func TestSessionEndpoints(t *testing.T) {
	s, account := newGateway(t)

	t.Run("get", func(t *testing.T) {
		rec := serve(s, request(http.MethodGet, "/api/auth/session", "admin-token", ""))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var body struct {
			User map[string]any `json:"user"`
			MFA  struct {
				Locked bool `json:"locked"`
			} `json:"mfa"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "u-admin", body.User["id"])
		require.Equal(t, "admin", body.User["role"])
		require.False(t, body.MFA.Locked)
	})

	t.Run("get while mfa pending", func(t *testing.T) {
		rec := serve(s, request(http.MethodGet, "/api/auth/session", "pending-token", ""))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"mfa":{"locked":true,"redirect":"/panel/account?setupMfa=1"}`)
	})

	t.Run("delete", func(t *testing.T) {
		rec := serve(s, request(http.MethodDelete, "/api/auth/session", "user-token", ""))
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"success":true}`, rec.Body.String())
		require.Empty(t, findCookie(rec, "xc_session").Value)

		account.mu.Lock()
		defer account.mu.Unlock()
		require.Equal(t, []string{"user-token"}, account.revoked)
	})

	t.Run("logout", func(t *testing.T) {
		rec := serve(s, request(http.MethodGet, "/logout", "admin-token", ""))
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "/login", rec.Header().Get("Location"))
		require.NotNil(t, findCookie(rec, "xc_mfa_challenge"))
	})
}

func TestLogin(t *testing.T) {
	s, account := newGateway(t)

	t.Run("success", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/login", "", `{"email":"  OK@Example.com ","password":"pw","totp":"12-34 56 78"}`))
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"success":true,"error":null,"needMfa":false}`, rec.Body.String())

		c := findCookie(rec, "xc_session")
		require.NotNil(t, c)
		require.Equal(t, "fresh-session", c.Value)
		require.True(t, c.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, c.SameSite)
		require.Equal(t, "/", c.Path)
		require.InDelta(t, 3600, c.MaxAge, 5)

		account.mu.Lock()
		last := account.logins[len(account.logins)-1]
		account.mu.Unlock()
		require.Equal(t, "ok@example.com", last["email"])
		require.Equal(t, "123456", last["totpCode"])
	})

	t.Run("remember me", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/login", "", `{"email":"ok@example.com","password":"pw","remember":true}`))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, int((30 * 24 * time.Hour).Seconds()), findCookie(rec, "xc_session").MaxAge)
	})

	t.Run("mfa required", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/login", "", `{"email":"mfa@example.com","password":"pw"}`))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"success":false,"error":"mfa_required","needMfa":true}`, rec.Body.String())
		require.Equal(t, "challenge-1", findCookie(rec, "xc_mfa_challenge").Value)
		require.Empty(t, findCookie(rec, "xc_session").Value)
	})

	t.Run("bad credentials", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/login", "", `{"email":"who@example.com","password":"pw"}`))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"success":false,"error":"invalid_credentials","needMfa":false}`, rec.Body.String())
	})

	t.Run("missing credentials", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/login", "", `{"email":"ok@example.com"}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "missing_credentials")
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/login", "", `{`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "invalid_request")
	})

	t.Run("get is not allowed", func(t *testing.T) {
		rec := serve(s, request(http.MethodGet, "/api/auth/login", "", ""))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	})

	t.Run("delete clears cookies", func(t *testing.T) {
		req := request(http.MethodDelete, "/api/auth/login", "user-token", "")
		req.AddCookie(&http.Cookie{Name: "xc_mfa_challenge", Value: "challenge-1"})
		rec := serve(s, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, findCookie(rec, "xc_session").Value)
		require.Empty(t, findCookie(rec, "xc_mfa_challenge").Value)
	})
}

func TestLoginUpstreamUnreachable(t *testing.T) {
	t.Setenv("ENV", "test")
	client, err := upstream.New([]string{"http://127.0.0.1:1"}, upstream.WithTimeout(time.Second))
	require.NoError(t, err)
	s, err := server.New(config.New(), client)
	require.NoError(t, err)

	rec := serve(s, request(http.MethodPost, "/api/auth/login", "", `{"email":"ok@example.com","password":"pw"}`))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.JSONEq(t, `{"success":false,"error":"account_service_unreachable","needMfa":false}`, rec.Body.String())
}

func TestMFAStatusProxy(t *testing.T) {
	s, account := newGateway(t)

	req := request(http.MethodGet, "/api/auth/mfa/status?email=%20Alice@Example.COM%20", "user-token", "")
	req.AddCookie(&http.Cookie{Name: "xc_mfa_challenge", Value: "challenge-1"})
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"mfa":{"totpEnabled":true}}`, rec.Body.String())

	account.mu.Lock()
	defer account.mu.Unlock()
	require.Equal(t, "identifier=alice%40example.com&token=challenge-1", account.mfaQuery)
	require.Equal(t, "Bearer user-token", account.mfaAuth)
}

func TestMFAVerify(t *testing.T) {
	s, _ := newGateway(t)

	t.Run("success trades the challenge for a session", func(t *testing.T) {
		req := request(http.MethodPost, "/api/auth/mfa/verify", "", `{"code":"123 456"}`)
		req.AddCookie(&http.Cookie{Name: "xc_mfa_challenge", Value: "challenge-1"})
		rec := serve(s, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "verified-session", findCookie(rec, "xc_session").Value)
		require.Empty(t, findCookie(rec, "xc_mfa_challenge").Value)
	})

	t.Run("wrong code keeps the challenge", func(t *testing.T) {
		req := request(http.MethodPost, "/api/auth/mfa/verify", "", `{"code":"000000","token":"challenge-1"}`)
		rec := serve(s, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), `"error":"invalid_code"`)
		require.Equal(t, "challenge-1", findCookie(rec, "xc_mfa_challenge").Value)
	})

	t.Run("missing code", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/mfa/verify", "", `{"token":"challenge-1"}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "mfa_code_required")
	})
}

func TestMFASetup(t *testing.T) {
	s, _ := newGateway(t)

	t.Run("challenge token from cookie", func(t *testing.T) {
		req := request(http.MethodPost, "/api/auth/mfa/setup", "", `{"issuer":"Dashboard"}`)
		req.AddCookie(&http.Cookie{Name: "xc_mfa_challenge", Value: "challenge-1"})
		rec := serve(s, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"secret":"JBSWY3DP"`)
		require.Contains(t, rec.Body.String(), `"issuer":"Dashboard"`)
		require.Equal(t, "challenge-2", findCookie(rec, "xc_mfa_challenge").Value)
	})

	t.Run("rejected token", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/mfa/setup", "", `{"token":"bogus"}`))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), `"error":"invalid_token"`)
	})

	t.Run("nothing to provision for", func(t *testing.T) {
		rec := serve(s, request(http.MethodPost, "/api/auth/mfa/setup", "", `{}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "mfa_token_required")
	})

	t.Run("get is not allowed", func(t *testing.T) {
		rec := serve(s, request(http.MethodGet, "/api/auth/mfa/setup", "", ""))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	})
}

func TestMFADisable(t *testing.T) {
	s, _ := newGateway(t)

	rec := serve(s, request(http.MethodPost, "/api/auth/mfa/disable", "user-token", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)

	rec = serve(s, request(http.MethodPost, "/api/auth/mfa/disable", "", ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
}

func TestRefreshProxy(t *testing.T) {
	s, _ := newGateway(t)

	rec := serve(s, request(http.MethodPost, "/api/auth/refresh", "", `{"refresh_token":"r-1"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"access_token":"next-access"}`, rec.Body.String())

	rec = serve(s, request(http.MethodPost, "/api/auth/refresh", "", `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	s, _ := newGateway(t, server.WithMetrics(metrics.New(metrics.WithRegistry(registry)), registry))

	serve(s, request(http.MethodGet, "/panel", "", ""))
	rec := serve(s, request(http.MethodGet, "/metrics", "", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `gateway_access_decisions_total{class="protected_page",outcome="unauthenticated"} 1`)
}

func TestNotFoundWithoutDownstream(t *testing.T) {
	t.Setenv("ENV", "test")
	client, err := upstream.New([]string{"http://127.0.0.1:1"})
	require.NoError(t, err)
	s, err := server.New(config.New(), client)
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, serve(s, request(http.MethodGet, "/docs", "", "")).Code)
}

func TestDownstreamProxyForwardsIdentity(t *testing.T) {
	var (
		got     http.Header
		gotPath string
	)
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("app"))
	}))
	t.Cleanup(app.Close)

	proxy, err := server.NewDownstreamProxy(app.URL)
	require.NoError(t, err)
	s, _ := newGateway(t, server.WithDownstream(proxy))

	req := request(http.MethodGet, "/panel/management", "admin-token", "")
	req.Header.Set(server.HeaderUserRole, "spoofed")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "app", rec.Body.String())
	require.Equal(t, "u-admin", got.Get(server.HeaderUserID))
	require.Equal(t, "admin", got.Get(server.HeaderUserRole))

	req = request(http.MethodGet, "/docs", "", "")
	req.Header.Set(server.HeaderUserRole, "admin")
	serve(s, req)
	require.Empty(t, got.Get(server.HeaderUserRole))

	req = request(http.MethodGet, "/docs/../panel/management", "admin-token", "")
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/panel/management", gotPath)
	require.Equal(t, "u-admin", got.Get(server.HeaderUserID))

	_, err = server.NewDownstreamProxy("not a url")
	require.Error(t, err)
}

func TestCors(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	s, _ := newGateway(t)

	req := request(http.MethodOptions, "/api/auth/session", "", "")
	req.Header.Set("Origin", "https://app.example.com")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = request(http.MethodOptions, "/api/auth/session", "", "")
	req.Header.Set("Origin", "https://evil.example.com")
	rec = serve(s, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
