// Package mfa looks up whether an account requires a second factor at
// login.
package mfa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/upstream"
)

const StatusPath = "/mfa/status"

// Doer sends requests to the account service.
type Doer interface {
	Do(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// Status is the account service's view of an account's TOTP enrollment.
type Status struct {
	TOTPEnabled        bool   `json:"totpEnabled"`
	TOTPPending        bool   `json:"totpPending"`
	TOTPSecretIssuedAt string `json:"totpSecretIssuedAt,omitempty"`
	TOTPConfirmedAt    string `json:"totpConfirmedAt,omitempty"`
	TOTPLockedUntil    string `json:"totpLockedUntil,omitempty"`
}

// Query selects whose status to read. Identifier is an email or username;
// Token is an MFA challenge token; Credential is a session token.
type Query struct {
	Identifier string
	Token      string
	Credential string
}

type Client struct {
	upstream Doer
}

func NewClient(d Doer) (*Client, error) {
	if d == nil {
		return nil, fmt.Errorf("[mfa.NewClient] upstream client is required")
	}
	return &Client{upstream: d}, nil
}

// Fetch calls the status endpoint and returns the raw response. The
// identifier is sent lower-cased.
func (c *Client) Fetch(ctx context.Context, q Query) (*upstream.Response, error) {
	params := url.Values{}
	if token := strings.TrimSpace(q.Token); token != "" {
		params.Set("token", token)
	}
	if identifier := strings.TrimSpace(q.Identifier); identifier != "" {
		params.Set("identifier", strings.ToLower(identifier))
	}
	header := http.Header{}
	if q.Credential != "" {
		header.Set("Authorization", "Bearer "+q.Credential)
	}
	return c.upstream.Do(ctx, upstream.Request{
		Endpoint: "mfa_status",
		Method:   http.MethodGet,
		Path:     StatusPath,
		Query:    params,
		Header:   header,
	})
}

// Status reads the decoded status for identifier.
func (c *Client) Status(ctx context.Context, identifier string) (Status, error) {
	resp, err := c.Fetch(ctx, Query{Identifier: identifier})
	if err != nil {
		return Status{}, err
	}
	if !resp.OK() {
		return Status{}, fmt.Errorf("[mfa.Status] status %d", resp.StatusCode)
	}
	var payload struct {
		MFA Status `json:"mfa"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return Status{}, fmt.Errorf("[mfa.Status] %w: %w", gwerrors.ErrMalformedToken, err)
	}
	return payload.MFA, nil
}
