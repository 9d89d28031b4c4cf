// Package token keeps a client's bearer credentials usable: it stores the
// token set, refreshes the access token when it expires and attaches it to
// outgoing requests.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/utils"
)

// Durable storage keys, one value each per client context.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyPublicToken  = "public_token"
)

// Keys lists the storage keys in a fixed order.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyPublicToken}

// Set is the credentials a client holds at one time. Only the three
// token fields are stored; TokenType and ExpiresIn describe the last
// refresh reply and are empty again after a load. Expiry is always read
// from the access token's exp claim.
type Set struct {
	PublicToken  string `json:"public_token"`  // Non-secret legacy identifier
	AccessToken  string `json:"access_token"`  // Short-lived bearer JWT
	RefreshToken string `json:"refresh_token"` // Opaque, exchanged for new access tokens
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// IsEmpty reports whether the set holds no credential at all.
func (s Set) IsEmpty() bool {
	return s.PublicToken == "" && s.AccessToken == "" && s.RefreshToken == ""
}

// Values maps the set onto its storage keys.
func (s Set) Values() map[string]string {
	return map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyPublicToken:  s.PublicToken,
	}
}

// SetFromValues is the inverse of Values. Missing keys are empty.
func SetFromValues(values map[string]string) Set {
	return Set{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		PublicToken:  values[KeyPublicToken],
	}
}

// Store persists a Set for one client context. Save replaces every key at
// once; an empty value removes its key. Load of an absent set returns an
// empty Set and no error.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Save(ctx context.Context, set Set) error
	Clear(ctx context.Context) error
}

// Claims is the access token payload. Nothing here is verified; only the
// expiry is used, and only to decide when to refresh.
type Claims struct {
	UserID  string   `json:"user_id"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	Service *string  `json:"service,omitempty"`
	jwt.RegisteredClaims
}

// ServiceName returns the service claim or "".
func (c *Claims) ServiceName() string {
	return utils.Value(c.Service)
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// DecodeClaims reads the payload of a JWT without checking its signature.
func DecodeClaims(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", gwerrors.ErrMalformedToken, err)
	}
	return claims, nil
}
