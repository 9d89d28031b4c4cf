package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/logging"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshPath = "/refresh"
	refreshTimeout     = 10 * time.Second
)

// Refresher sends the refresh call to the account service.
type Refresher interface {
	Do(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// HTTPDoer sends the caller's own API requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager owns one client's token set. It is safe for concurrent use and
// collapses concurrent refreshes of the same refresh token into one call.
type Manager struct {
	mu          sync.RWMutex
	set         Set
	store       Store
	refresher   Refresher
	refreshPath string
	httpClient  HTTPDoer
	group       singleflight.Group
	metrics     *metrics.Metrics
	nowFunc     func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithHTTPClient(client HTTPDoer) ManagerOption {
	return func(m *Manager) {
		m.httpClient = client
	}
}

func WithRefreshPath(path string) ManagerOption {
	return func(m *Manager) {
		m.refreshPath = path
	}
}

// WithPublicToken seeds the public token used until a full set is stored.
func WithPublicToken(publicToken string) ManagerOption {
	return func(m *Manager) {
		m.set.PublicToken = publicToken
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func NewManager(store Store, refresher Refresher, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("[token.NewManager] store is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("[token.NewManager] refresher is required")
	}
	m := &Manager{
		store:       store,
		refresher:   refresher,
		refreshPath: DefaultRefreshPath,
		httpClient:  http.DefaultClient,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Tokens returns a copy of the current set.
func (m *Manager) Tokens() Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set
}

// SetTokens replaces the set in memory and in the store. If the store
// rejects it the previous set stays in place.
func (m *Manager) SetTokens(ctx context.Context, set Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, set); err != nil {
		return gwerrors.Wrapf(err, "[Manager.SetTokens] save")
	}
	m.set = set
	return nil
}

// LoadTokens hydrates the set from the store.
func (m *Manager) LoadTokens(ctx context.Context) error {
	set, err := m.store.Load(ctx)
	if err != nil {
		return gwerrors.Wrapf(err, "[Manager.LoadTokens] load")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if set.PublicToken == "" {
		set.PublicToken = m.set.PublicToken
	}
	m.set = set
	return nil
}

// ClearTokens forgets every credential.
func (m *Manager) ClearTokens(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = Set{}
	if err := m.store.Clear(ctx); err != nil {
		return gwerrors.Wrapf(err, "[Manager.ClearTokens] clear")
	}
	return nil
}

// IsExpired reports whether raw, or the current access token when raw is
// empty, is unusable. Undecodable tokens and tokens without exp count as
// expired. A token is still valid during the second it expires.
func (m *Manager) IsExpired(raw string) bool {
	if raw == "" {
		raw = m.Tokens().AccessToken
	}
	if raw == "" {
		return true
	}
	claims, err := DecodeClaims(raw)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Unix() < m.nowFunc().Unix()
}

// EnsureValid reports whether a usable access token is held, refreshing
// an expired one first.
func (m *Manager) EnsureValid(ctx context.Context) bool {
	valid, _ := m.ensureValid(ctx)
	return valid
}

// ensureValid is EnsureValid that also reports whether a refresh was
// attempted.
func (m *Manager) ensureValid(ctx context.Context) (valid, refreshed bool) {
	if m.Tokens().AccessToken == "" {
		return false, false
	}
	if m.IsExpired("") {
		_, err := m.Refresh(ctx)
		return err == nil, true
	}
	return true, false
}

// refreshResponse is the account service's answer to a refresh. A rotated
// refresh_token, if sent, is not adopted.
type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// Refresh exchanges the refresh token for a new access token. Any failure
// clears the whole set. Concurrent callers holding the same refresh token
// share a single upstream call.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	refreshToken := m.Tokens().RefreshToken
	if refreshToken == "" {
		m.clearIfHolding(ctx, refreshToken)
		m.metrics.RecordRefresh("no_refresh_token")
		return "", gwerrors.AtTrustBoundary(gwerrors.ErrNoRefreshToken)
	}

	fingerprint := logging.Fingerprint(refreshToken)
	v, err, shared := m.group.Do(fingerprint, func() (any, error) {
		// The round trip outlives any single caller's cancellation.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(rctx, refreshToken)
	})
	if shared {
		m.metrics.RecordRefresh("shared")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (string, error) {
	fingerprint := logging.Fingerprint(refreshToken)
	reply, err := m.exchange(ctx, refreshToken)
	if err != nil {
		log.Warn().Err(err).Str("refresh_token", fingerprint).Msg("token refresh failed, clearing tokens")
		m.clearIfHolding(ctx, refreshToken)
		m.metrics.RecordRefresh("failure")
		return "", gwerrors.AtTrustBoundary(fmt.Errorf("%w: refresh: %w", gwerrors.ErrUnauthenticated, err))
	}

	accessToken := reply.AccessToken
	m.mu.Lock()
	if m.set.RefreshToken == refreshToken {
		m.set.AccessToken = accessToken
		if reply.TokenType != "" {
			m.set.TokenType = reply.TokenType
		}
		if reply.ExpiresIn > 0 {
			m.set.ExpiresIn = reply.ExpiresIn
		}
		if err := m.store.Save(ctx, m.set); err != nil {
			log.Err(err).Str("refresh_token", fingerprint).Msg("failed to persist refreshed access token")
		}
	}
	m.mu.Unlock()

	m.metrics.RecordRefresh("success")
	log.Debug().Str("refresh_token", fingerprint).Str("access_token", logging.Fingerprint(accessToken)).Msg("access token refreshed")
	return accessToken, nil
}

func (m *Manager) exchange(ctx context.Context, refreshToken string) (refreshResponse, error) {
	var payload refreshResponse
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return payload, err
	}
	resp, err := m.refresher.Do(ctx, upstream.Request{
		Endpoint: "refresh",
		Method:   http.MethodPost,
		Path:     m.refreshPath,
		Body:     body,
	})
	if err != nil {
		return payload, err
	}
	if !resp.OK() {
		return payload, fmt.Errorf("refresh status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return payload, fmt.Errorf("%w: %w", gwerrors.ErrMalformedToken, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return payload, fmt.Errorf("%w: refresh response has no access_token", gwerrors.ErrMalformedToken)
	}
	return payload, nil
}

// clearIfHolding clears the set unless it was replaced since refreshToken
// was read.
func (m *Manager) clearIfHolding(ctx context.Context, refreshToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set.RefreshToken != refreshToken {
		return
	}
	m.set = Set{}
	if err := m.store.Clear(ctx); err != nil {
		log.Err(err).Msg("failed to clear token store")
	}
}

// AuthHeader returns the Authorization value for token, or for the current
// access token when token is empty.
func (m *Manager) AuthHeader(token string) string {
	if token == "" {
		token = m.Tokens().AccessToken
	}
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// AuthFetch sends req with the current bearer token. With autoRefresh it
// first makes sure the token is fresh, and on a 401 refreshes and retries
// once. At most one refresh is attempted per call, so a 401 after an
// up-front refresh is returned as is.
func (m *Manager) AuthFetch(ctx context.Context, req *http.Request, autoRefresh bool) (*http.Response, error) {
	body, err := replayableBody(req)
	if err != nil {
		return nil, gwerrors.Wrapf(err, "[Manager.AuthFetch] read body")
	}

	refreshed := false
	if autoRefresh {
		_, refreshed = m.ensureValid(ctx)
	}

	resp, err := m.httpClient.Do(withBearer(ctx, req, body, m.AuthHeader("")))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !autoRefresh || refreshed {
		return resp, nil
	}

	newToken, err := m.Refresh(ctx)
	if err != nil {
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return m.httpClient.Do(withBearer(ctx, req, body, m.AuthHeader(newToken)))
}

func replayableBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

func withBearer(ctx context.Context, req *http.Request, body []byte, authorization string) *http.Request {
	out := req.Clone(ctx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
	}
	if authorization != "" {
		out.Header.Set("Authorization", authorization)
	}
	return out
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	if !m.EnsureValid(context.Background()) {
		return nil, fmt.Errorf("[Manager.Token] %w: no active session", gwerrors.ErrUnauthenticated)
	}
	set := m.Tokens()
	tok := &oauth2.Token{
		AccessToken:  set.AccessToken,
		TokenType:    set.TokenType,
		RefreshToken: set.RefreshToken,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if claims, err := DecodeClaims(set.AccessToken); err == nil {
		tok.Expiry = claims.Expiry()
	}
	return tok, nil
}

// Client returns an HTTP client that authorizes requests through m.
func (m *Manager) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, m)
}

var _ oauth2.TokenSource = (*Manager)(nil)
