package access

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jrsteele09/go-auth-gateway/routes"
	"github.com/jrsteele09/go-auth-gateway/users"
)

// Rule is the requirement a guarded route declares.
type Rule struct {
	RequireLogin bool
	Roles        []users.Role // Empty means any role
}

// Guard binds a Rule to a path prefix along with where to send callers it
// turns away.
type Guard struct {
	Prefix                  string       `toml:"prefix"`
	RequireLogin            bool         `toml:"require_login"`
	Roles                   []users.Role `toml:"roles"`
	UnauthenticatedRedirect string       `toml:"unauthenticated_redirect"`
	ForbiddenRedirect       string       `toml:"forbidden_redirect"`
}

func (g Guard) Rule() Rule {
	return Rule{RequireLogin: g.RequireLogin, Roles: g.Roles}
}

// Policy is the full route guard configuration. Guards are matched in
// order and the first prefix match wins.
type Policy struct {
	LoginPath    string   `toml:"login_path"`
	MFASetupPath string   `toml:"mfa_setup_path"`
	MFAExempt    []string `toml:"mfa_exempt"`
	Guards       []Guard  `toml:"guards"`
}

// DefaultPolicy mirrors the dashboard layout guards.
func DefaultPolicy() Policy {
	return Policy{
		LoginPath:    routes.RouteLogin,
		MFASetupPath: routes.RoutePanelAccount,
		MFAExempt: []string{
			routes.RoutePanelAccount,
			routes.RouteLogout,
			routes.RouteAuthSession,
			routes.RouteAuthLogin,
		},
		Guards: []Guard{
			{
				Prefix:                  routes.RoutePanelManagement,
				RequireLogin:            true,
				Roles:                   []users.Role{users.RoleAdmin, users.RoleOperator},
				UnauthenticatedRedirect: routes.RouteLogin,
				ForbiddenRedirect:       routes.RoutePanel,
			},
			{
				Prefix:                  routes.RoutePanel,
				RequireLogin:            true,
				UnauthenticatedRedirect: routes.RouteLogin,
			},
			{
				Prefix:       routes.RouteAPIAdmin,
				RequireLogin: true,
				Roles:        []users.Role{users.RoleAdmin, users.RoleOperator},
			},
			{
				Prefix:       "/api",
				RequireLogin: true,
			},
		},
	}
}

// LoadPolicy reads a TOML policy file. Unset top level fields fall back to
// the defaults; an empty guard list keeps the default guards.
func LoadPolicy(path string) (Policy, error) {
	var p Policy
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Policy{}, fmt.Errorf("[access.LoadPolicy] decode %s: %w", path, err)
	}
	return p.withDefaults().validate()
}

// ParsePolicy is LoadPolicy for in-memory TOML.
func ParsePolicy(data string) (Policy, error) {
	var p Policy
	if _, err := toml.Decode(data, &p); err != nil {
		return Policy{}, fmt.Errorf("[access.ParsePolicy] decode: %w", err)
	}
	return p.withDefaults().validate()
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.LoginPath == "" {
		p.LoginPath = def.LoginPath
	}
	if p.MFASetupPath == "" {
		p.MFASetupPath = def.MFASetupPath
	}
	if p.MFAExempt == nil {
		p.MFAExempt = def.MFAExempt
	}
	if len(p.Guards) == 0 {
		p.Guards = def.Guards
	}
	return p
}

func (p Policy) validate() (Policy, error) {
	for _, path := range []string{p.LoginPath, p.MFASetupPath} {
		if !strings.HasPrefix(path, "/") {
			return Policy{}, fmt.Errorf("[access.Policy] path %q must be absolute", path)
		}
	}
	for i, g := range p.Guards {
		if !strings.HasPrefix(g.Prefix, "/") {
			return Policy{}, fmt.Errorf("[access.Policy] guard %d: prefix %q must be absolute", i, g.Prefix)
		}
		for j, r := range g.Roles {
			role, ok := users.ParseRole(string(r))
			if !ok {
				return Policy{}, fmt.Errorf("[access.Policy] guard %s: unknown role %q", g.Prefix, r)
			}
			p.Guards[i].Roles[j] = role
		}
	}
	return p, nil
}

func (p Policy) guardFor(path string) (Guard, bool) {
	for _, g := range p.Guards {
		if routes.HasPrefix(path, g.Prefix) {
			return g, true
		}
	}
	return Guard{}, false
}

func (p Policy) mfaExempt(path string) bool {
	return routes.HasPrefix(path, p.MFAExempt...)
}
