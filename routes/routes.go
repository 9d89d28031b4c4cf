// Package routes classifies request paths into the access class the edge
// enforces for them.
package routes

import (
	pathpkg "path"
	"strings"
)

// Class is the access class of a request path.
type Class int

const (
	Public Class = iota
	ProtectedAPI
	ProtectedPage
)

func (c Class) String() string {
	switch c {
	case ProtectedAPI:
		return "protected_api"
	case ProtectedPage:
		return "protected_page"
	default:
		return "public"
	}
}

// Route path constants
const (
	RouteRoot  = "/"
	RouteLogin = "/login"
	RoutePanel = "/panel"

	RoutePanelManagement = "/panel/management"
	RoutePanelAccount    = "/panel/account"
	RouteLogout          = "/logout"

	RouteAPIPing         = "/api/ping"
	RouteHealthz         = "/healthz"
	RouteMetrics         = "/metrics"
	RouteAuthLogin       = "/api/auth/login"
	RouteAuthRegister    = "/api/auth/register"
	RouteAuthVerifyEmail = "/api/auth/verify-email"
	RouteAuthRefresh     = "/api/auth/refresh"
	RouteAuthSession     = "/api/auth/session"
	RouteAuthMFA         = "/api/auth/mfa"
	RouteAuthMFAStatus   = "/api/auth/mfa/status"
	RouteAuthMFASetup    = "/api/auth/mfa/setup"
	RouteAuthMFAVerify   = "/api/auth/mfa/verify"
	RouteAuthMFADisable  = "/api/auth/mfa/disable"
	RouteAPIAdmin        = "/api/admin"
)

const apiPrefix = "/api"

// publicPaths never require a session. RouteRoot is matched exactly.
// RouteMetrics is scraped without a session and should only be reachable
// from the monitoring network. The
// MFA status, setup and verify endpoints are reached before a session exists
// and are authorized upstream by the challenge token.
var publicPaths = []string{
	"/download",
	"/docs",
	RouteAPIPing,
	RouteHealthz,
	RouteMetrics,
	RouteAuthLogin,
	RouteAuthRegister,
	RouteAuthVerifyEmail,
	RouteAuthRefresh,
	RouteAuthMFAStatus,
	RouteAuthMFASetup,
	RouteAuthMFAVerify,
	"/api/render-markdown",
	"/api/content-meta",
	RouteLogin,
	"/register",
	"/_fresh",
	"/static",
	"/styles",
}

var protectedAPIPaths = []string{
	RouteAuthSession,
	RouteAuthMFA,
	"/api/users",
	"/api/task",
	"/api/agent",
	"/api/rag",
	"/api/askai",
	RouteAPIAdmin,
	"/api/mail",
}

// Canonical resolves dot segments and repeated slashes in path so that
// "/docs/../panel" is judged as "/panel". A trailing slash is kept.
func Canonical(path string) string {
	if path == "" {
		return RouteRoot
	}
	if path[0] != '/' {
		path = "/" + path
	}
	clean := pathpkg.Clean(path)
	if strings.HasSuffix(path, "/") && clean != RouteRoot {
		clean += "/"
	}
	return clean
}

// Classify returns the access class for the canonical form of path. The
// public allow-list is checked first, then the protected API list, then
// the /api and /panel namespaces. Anything else is public.
func Classify(path string) Class {
	path = Canonical(path)
	if path == RouteRoot || HasPrefix(path, publicPaths...) {
		return Public
	}
	if HasPrefix(path, protectedAPIPaths...) || HasPrefix(path, apiPrefix) {
		return ProtectedAPI
	}
	if HasPrefix(path, RoutePanel) {
		return ProtectedPage
	}
	return Public
}

// IsPublic reports whether path needs no session.
func IsPublic(path string) bool {
	return Classify(path) == Public
}

// HasPrefix reports whether path equals one of prefixes or continues it
// at a segment boundary, so "/docs" matches "/docs/x" but not "/docsx".
func HasPrefix(path string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if path == prefix {
			return true
		}
		p := strings.TrimSuffix(prefix, "/")
		if strings.HasPrefix(path, p) && len(path) > len(p) && path[len(p)] == '/' {
			return true
		}
	}
	return false
}
