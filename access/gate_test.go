package access_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/access"
	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/stretchr/testify/require"
)

func user(role users.Role, mfaEnabled, mfaPending bool) *users.User {
	return &users.User{ID: "u-1", Role: role, MFAEnabled: mfaEnabled, MFAPending: mfaPending}
}

func TestStateOf(t *testing.T) {
	require.Equal(t, access.NoSession, access.StateOf(nil))
	require.Equal(t, access.NoSession, access.StateOf(&users.User{}))
	require.Equal(t, access.SessionNoMFA, access.StateOf(user(users.RoleUser, false, false)))
	require.Equal(t, access.MFAPending, access.StateOf(user(users.RoleUser, false, true)))
	require.Equal(t, access.MFAEnabled, access.StateOf(user(users.RoleUser, true, false)))

	require.True(t, access.SessionNoMFA.Locked())
	require.True(t, access.MFAPending.Locked())
	require.False(t, access.MFAEnabled.Locked())
	require.False(t, access.NoSession.Locked())
}

func TestDecide(t *testing.T) {
	gate := access.NewGate()

	tests := []struct {
		name string
		user *users.User
		path string
		want access.Decision
	}{
		{
			name: "no session on panel",
			path: "/panel",
			want: access.Decision{Reason: access.ReasonUnauthenticated, Redirect: "/login?redirect=/panel"},
		},
		{
			name: "no session on api",
			path: "/api/users",
			want: access.Decision{Reason: access.ReasonUnauthenticated, Redirect: "/login?redirect=/api/users"},
		},
		{
			name: "mfa pending is sent to setup",
			user: user(users.RoleAdmin, false, true),
			path: "/panel/api",
			want: access.Decision{Reason: access.ReasonForbidden, MFALocked: true, Redirect: "/panel/account?setupMfa=1"},
		},
		{
			name: "no mfa is sent to setup",
			user: user(users.RoleUser, false, false),
			path: "/panel",
			want: access.Decision{Reason: access.ReasonForbidden, MFALocked: true, Redirect: "/panel/account?setupMfa=1"},
		},
		{
			name: "mfa lock beats role",
			user: user(users.RoleUser, false, true),
			path: "/panel/management",
			want: access.Decision{Reason: access.ReasonForbidden, MFALocked: true, Redirect: "/panel/account?setupMfa=1"},
		},
		{
			name: "setup page is reachable while locked",
			user: user(users.RoleUser, false, true),
			path: "/panel/account",
			want: access.Decision{Allowed: true},
		},
		{
			name: "logout is reachable while locked",
			user: user(users.RoleUser, false, false),
			path: "/api/auth/session",
			want: access.Decision{Allowed: true},
		},
		{
			name: "admin on management",
			user: user(users.RoleAdmin, true, false),
			path: "/panel/management",
			want: access.Decision{Allowed: true},
		},
		{
			name: "operator on management",
			user: user(users.RoleOperator, true, false),
			path: "/panel/management/users",
			want: access.Decision{Allowed: true},
		},
		{
			name: "user on management",
			user: user(users.RoleUser, true, false),
			path: "/panel/management",
			want: access.Decision{Reason: access.ReasonForbidden, Redirect: "/panel?reason=forbidden"},
		},
		{
			name: "user on admin api",
			user: user(users.RoleUser, true, false),
			path: "/api/admin/stats",
			want: access.Decision{Reason: access.ReasonForbidden, Redirect: "/panel?reason=forbidden"},
		},
		{
			name: "guest on panel",
			user: user(users.RoleGuest, true, false),
			path: "/panel",
			want: access.Decision{Allowed: true},
		},
		{
			name: "unguarded path",
			path: "/docs",
			want: access.Decision{Allowed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, gate.Decide(tt.user, tt.path))
		})
	}
}

func TestEvaluate(t *testing.T) {
	gate := access.NewGate()
	rule := access.Rule{RequireLogin: true, Roles: []users.Role{users.RoleAdmin}}

	require.Equal(t, access.ReasonUnauthenticated, gate.Evaluate(nil, rule, "/x").Reason)
	require.Equal(t, access.ReasonForbidden, gate.Evaluate(user(users.RoleUser, true, false), rule, "/x").Reason)
	require.True(t, gate.Evaluate(user(users.RoleAdmin, true, false), rule, "/x").Allowed)
	require.True(t, gate.Evaluate(nil, access.Rule{}, "/x").Allowed)
}

func TestDenyUnauthenticated(t *testing.T) {
	p, err := access.ParsePolicy(`
[[guards]]
prefix = "/panel"
require_login = true
unauthenticated_redirect = "/signin"
`)
	require.NoError(t, err)
	gate := access.NewGate(access.WithPolicy(p))

	d := gate.DenyUnauthenticated("/panel/x")
	require.False(t, d.Allowed)
	require.Equal(t, access.ReasonUnauthenticated, d.Reason)
	require.Equal(t, "/signin?redirect=/panel/x", d.Redirect)

	// No guard covers /api here, the login path still applies.
	require.Equal(t, "/login?redirect=/api/tasks", gate.DenyUnauthenticated("/api/tasks").Redirect)
}

func TestDecisionErr(t *testing.T) {
	gate := access.NewGate()

	require.NoError(t, gate.Decide(user(users.RoleUser, true, false), "/panel").Err())
	require.Equal(t, gwerrors.CodeUnauthorized, gwerrors.Code(gate.DenyUnauthenticated("/panel").Err()))
	require.Equal(t, gwerrors.CodeMFASetupRequired, gwerrors.Code(gate.Decide(user(users.RoleUser, false, true), "/api/tasks").Err()))
	require.Equal(t, gwerrors.CodeForbidden, gwerrors.Code(gate.Decide(user(users.RoleUser, true, false), "/api/admin/x").Err()))
}

func TestDecideCanonicalizesPath(t *testing.T) {
	gate := access.NewGate()

	d := gate.Decide(user(users.RoleUser, true, false), "/docs/../panel/management")
	require.False(t, d.Allowed)
	require.Equal(t, "/panel?reason=forbidden", d.Redirect)

	require.Equal(t, "/login?redirect=/panel", gate.DenyUnauthenticated("/login/../panel").Redirect)
	require.True(t, gate.MFALocked(user(users.RoleUser, false, true), "/panel/account/../tasks"))
	require.False(t, gate.MFALocked(user(users.RoleUser, false, true), "/panel/x/../account"))
}

func TestParsePolicy(t *testing.T) {
	p, err := access.ParsePolicy(`
mfa_setup_path = "/panel/security"

[[guards]]
prefix = "/panel/billing"
require_login = true
roles = ["Administrator"]
forbidden_redirect = "/panel/home"
`)
	require.NoError(t, err)
	require.Equal(t, "/login", p.LoginPath)
	require.Equal(t, "/panel/security", p.MFASetupPath)
	require.Len(t, p.Guards, 1)
	require.Equal(t, []users.Role{users.RoleAdmin}, p.Guards[0].Roles)

	gate := access.NewGate(access.WithPolicy(p))
	d := gate.Decide(user(users.RoleUser, true, false), "/panel/billing")
	require.Equal(t, "/panel/home?reason=forbidden", d.Redirect)
	require.True(t, gate.Decide(user(users.RoleUser, true, false), "/panel").Allowed)

	d = gate.Decide(user(users.RoleUser, false, false), "/panel/billing")
	require.Equal(t, "/panel/security?setupMfa=1", d.Redirect)
}

func TestParsePolicyRejectsBadInput(t *testing.T) {
	_, err := access.ParsePolicy(`[[guards]]
prefix = "panel"`)
	require.Error(t, err)

	_, err = access.ParsePolicy(`[[guards]]
prefix = "/panel"
roles = ["root"]`)
	require.Error(t, err)

	_, err = access.ParsePolicy(`guards = `)
	require.Error(t, err)
}

func TestWatchPolicyReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[guards]]
prefix = "/panel"
require_login = true
`), 0o600))

	gate := access.NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gate.WatchPolicy(ctx, path) }()

	require.Eventually(t, func() bool { return len(gate.Policy().Guards) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond) // let the watcher register the directory

	writeAtomic(t, path, `
[[guards]]
prefix = "/panel"
require_login = true

[[guards]]
prefix = "/reports"
require_login = true
roles = ["admin"]
`)

	require.Eventually(t, func() bool { return len(gate.Policy().Guards) == 2 }, 2*time.Second, 10*time.Millisecond)

	writeAtomic(t, path, `not = [valid`)
	time.Sleep(100 * time.Millisecond)
	require.Len(t, gate.Policy().Guards, 2)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchPolicyMissingFile(t *testing.T) {
	gate := access.NewGate()
	err := gate.WatchPolicy(context.Background(), filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestWatchPolicyChangesSkipsInitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[guards]]
prefix = "/panel"
require_login = true
`), 0o600))

	gate := access.NewGate(access.WithPolicy(access.Policy{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gate.WatchPolicyChanges(ctx, path) }()

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, gate.Policy().Guards)

	writeAtomic(t, path, `
[[guards]]
prefix = "/reports"
require_login = true
`)
	require.Eventually(t, func() bool {
		guards := gate.Policy().Guards
		return len(guards) == 1 && guards[0].Prefix == "/reports"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// writeAtomic replaces path by rename so the watcher never sees a partial file.
func writeAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}
