// Package access decides whether a user may reach a path. It is the only
// place the MFA enrollment lock is computed.
package access

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/routes"
	"github.com/jrsteele09/go-auth-gateway/users"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
)

// Decision is the outcome for one (user, path) pair. Redirect is the page a
// browser should be sent to when the decision is a denial.
type Decision struct {
	Allowed   bool
	Reason    Reason
	MFALocked bool // Denied only because MFA enrollment is incomplete
	Redirect  string
}

type Gate struct {
	mu      sync.RWMutex
	policy  Policy
	metrics *metrics.Metrics
}

type Option func(*Gate)

func WithPolicy(p Policy) Option {
	return func(g *Gate) {
		g.policy = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func NewGate(opts ...Option) *Gate {
	g := &Gate{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the active policy.
func (g *Gate) Policy() Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy
}

// SetPolicy swaps the active policy.
func (g *Gate) SetPolicy(p Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = p
}

// MFALocked reports whether user holds a session that is barred from path
// until MFA enrollment completes.
func (g *Gate) MFALocked(user *users.User, path string) bool {
	return StateOf(user).Locked() && !g.Policy().mfaExempt(routes.Canonical(path))
}

// Evaluate applies rule to user at path and reports the bare outcome.
func (g *Gate) Evaluate(user *users.User, rule Rule, path string) Decision {
	if !rule.RequireLogin {
		return Decision{Allowed: true}
	}
	if StateOf(user) == NoSession {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if g.MFALocked(user, path) {
		return Decision{Reason: ReasonForbidden, MFALocked: true}
	}
	if len(rule.Roles) > 0 && !user.HasRole(rule.Roles...) {
		return Decision{Reason: ReasonForbidden}
	}
	return Decision{Allowed: true}
}

// Decide finds the guard for the canonical form of path, evaluates it and
// resolves the redirect.
func (g *Gate) Decide(user *users.User, path string) Decision {
	path = routes.Canonical(path)
	policy := g.Policy()
	guard, _ := policy.guardFor(path)

	d := g.Evaluate(user, guard.Rule(), path)
	switch {
	case d.Allowed:
	case d.Reason == ReasonUnauthenticated:
		d.Redirect = loginRedirect(policy, guard, path)
	case d.MFALocked:
		d.Redirect = withQuery(policy.MFASetupPath, "setupMfa", "1")
	default:
		target := guard.ForbiddenRedirect
		if target == "" {
			target = routes.RoutePanel
		}
		d.Redirect = withQuery(target, "reason", string(ReasonForbidden))
	}

	g.metrics.RecordDecision(routes.Classify(path).String(), d.outcome())
	return d
}

// DenyUnauthenticated is the decision for a caller at path whose session
// could not be proven, whether or not a guard covers path.
func (g *Gate) DenyUnauthenticated(path string) Decision {
	path = routes.Canonical(path)
	policy := g.Policy()
	guard, _ := policy.guardFor(path)
	d := Decision{Reason: ReasonUnauthenticated, Redirect: loginRedirect(policy, guard, path)}
	g.metrics.RecordDecision(routes.Classify(path).String(), d.outcome())
	return d
}

func loginRedirect(policy Policy, guard Guard, path string) string {
	target := guard.UnauthenticatedRedirect
	if target == "" {
		target = policy.LoginPath
	}
	return withQuery(target, "redirect", path)
}

// Err is the decision as an error from the gateway taxonomy, nil when
// allowed.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonUnauthenticated:
		return gwerrors.ErrUnauthenticated
	case d.MFALocked:
		return fmt.Errorf("%w: %w", gwerrors.ErrForbidden, gwerrors.ErrMFASetupRequired)
	default:
		return gwerrors.ErrForbidden
	}
}

func (d Decision) outcome() string {
	switch {
	case d.Allowed:
		return "allowed"
	case d.MFALocked:
		return "mfa_locked"
	default:
		return string(d.Reason)
	}
}

// withQuery appends key=value to target, leaving slashes readable.
func withQuery(target, key, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + key + "=" + strings.ReplaceAll(url.QueryEscape(value), "%2F", "/")
}
