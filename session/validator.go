// Package session validates session credentials against the account service.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/logging"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/rs/zerolog/log"
)

const (
	SessionPath     = "/session"
	ValidateTimeout = 5 * time.Second
)

// Doer sends requests to the account service.
type Doer interface {
	Do(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// Validator resolves a session credential into a normalized user. Every
// failure is reported as unauthenticated.
type Validator struct {
	upstream    Doer
	timeout     time.Duration
	strictRoles bool
}

type Option func(*Validator)

// WithStrictRoles rejects sessions whose role is not recognized instead of
// downgrading them to guest.
func WithStrictRoles(strict bool) Option {
	return func(v *Validator) {
		v.strictRoles = strict
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(v *Validator) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

func NewValidator(client Doer, opts ...Option) (*Validator, error) {
	if client == nil {
		return nil, fmt.Errorf("[session.NewValidator] upstream client is required")
	}
	v := &Validator{
		upstream: client,
		timeout:  ValidateTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate asks the account service who owns credential. It returns a user
// with a non-empty ID or an error wrapping ErrUnauthenticated.
func (v *Validator) Validate(ctx context.Context, credential string) (*users.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, gwerrors.AtTrustBoundary(gwerrors.ErrNoAccessToken)
	}

	user, err := v.validate(ctx, credential)
	if err != nil {
		log.Debug().Err(err).Str("credential", logging.Fingerprint(credential)).Msg("session rejected")
		return nil, gwerrors.AtTrustBoundary(err)
	}
	return user, nil
}

func (v *Validator) validate(ctx context.Context, credential string) (*users.User, error) {
	resp, err := v.upstream.Do(ctx, upstream.Request{
		Endpoint: "session",
		Method:   http.MethodGet,
		Path:     SessionPath,
		Header:   bearer(credential),
		Timeout:  v.timeout,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: session status %d", gwerrors.ErrUnauthenticated, resp.StatusCode)
	}

	var payload struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", gwerrors.ErrMalformedToken, err)
	}
	if payload.User == nil {
		return nil, fmt.Errorf("%w: no user in session payload", gwerrors.ErrUnauthenticated)
	}

	if v.strictRoles {
		if _, ok := users.ParseRole(payload.User["role"]); !ok {
			return nil, fmt.Errorf("%w: %v", gwerrors.ErrUnknownRole, payload.User["role"])
		}
	}

	user := users.Normalize(payload.User)
	if user.IsAnonymous() {
		return nil, fmt.Errorf("%w: session user has no identifier", gwerrors.ErrUnauthenticated)
	}
	return &user, nil
}

// Revoke ends the upstream session. It is best effort; callers clear their
// own cookies regardless of the result.
func (v *Validator) Revoke(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil
	}
	resp, err := v.upstream.Do(ctx, upstream.Request{
		Endpoint: "session_delete",
		Method:   http.MethodDelete,
		Path:     SessionPath,
		Header:   bearer(credential),
		Timeout:  v.timeout,
	})
	if err != nil {
		return gwerrors.Wrapf(err, "[Validator.Revoke] delete session")
	}
	if !resp.OK() && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("[Validator.Revoke] delete session: status %d", resp.StatusCode)
	}
	return nil
}

func bearer(credential string) http.Header {
	return http.Header{"Authorization": {"Bearer " + credential}}
}
