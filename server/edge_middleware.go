package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-auth-gateway/access"
	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/logging"
	"github.com/jrsteele09/go-auth-gateway/routes"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the validated *users.User
	ContextKeyUser ContextKey = "user"
	// ContextKeyMFAChallenge stores the MFA challenge token, if any
	ContextKeyMFAChallenge ContextKey = "mfa_challenge"
	// ContextKeyRouteClass stores the routes.Class of the request path
	ContextKeyRouteClass ContextKey = "route_class"
)

// UserFromContext returns the user the edge admitted the request as.
func UserFromContext(ctx context.Context) (*users.User, bool) {
	u, ok := ctx.Value(ContextKeyUser).(*users.User)
	return u, ok && u != nil
}

// MFAChallengeFromContext returns the MFA challenge token carried by the
// request. It identifies an unfinished login and never grants access.
func MFAChallengeFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyMFAChallenge).(string)
	return v
}

// EdgeAuth classifies the path and, for protected routes, proves the
// session with the account service and applies the access gate.
func (s *Server) EdgeAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := routes.Canonical(r.URL.Path)
		if path != r.URL.Path {
			// Route and forward the same path the gate judged.
			r = withPath(r, path)
		}
		class := routes.Classify(path)

		ctx := context.WithValue(r.Context(), ContextKeyRouteClass, class)
		if challenge := cookieValue(r, s.config.GetMFACookieName()); challenge != "" {
			ctx = context.WithValue(ctx, ContextKeyMFAChallenge, challenge)
		}

		if class == routes.Public {
			next(w, r.WithContext(ctx))
			return
		}

		user := s.authenticate(w, r)
		if user == nil {
			s.deny(w, r, class, s.gate.DenyUnauthenticated(path))
			return
		}

		decision := s.gate.Decide(user, path)
		if !decision.Allowed {
			s.deny(w, r, class, decision)
			return
		}

		next(w, r.WithContext(context.WithValue(ctx, ContextKeyUser, user)))
	}
}

func withPath(r *http.Request, path string) *http.Request {
	out := r.Clone(r.Context())
	out.URL.Path = path
	out.URL.RawPath = ""
	return out
}

// authenticate validates the request credential. A cookie the account
// service rejects is cleared; one it could not check is kept.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) *users.User {
	credential, fromCookie := s.sessionCredential(r)
	if credential == "" {
		return nil
	}
	user, err := s.validator.Validate(r.Context(), credential)
	if err != nil {
		log.Debug().Err(err).
			Str("credential", logging.Fingerprint(credential)).
			Str("path", r.URL.Path).
			Msg("edge rejected session")
		if fromCookie && !gwerrors.Is(err, gwerrors.ErrUpstreamUnreachable) {
			s.ClearSessionCookie(w, r)
		}
		return nil
	}
	return user
}

var denyMessages = map[string]string{
	gwerrors.CodeUnauthorized:     "Authentication required",
	gwerrors.CodeMFASetupRequired: "MFA enrollment must be completed",
	gwerrors.CodeForbidden:        "Insufficient role",
}

func (s *Server) deny(w http.ResponseWriter, r *http.Request, class routes.Class, d access.Decision) {
	if class != routes.ProtectedAPI {
		http.Redirect(w, r, d.Redirect, http.StatusFound)
		return
	}
	code := gwerrors.Code(d.Err())
	switch code {
	case gwerrors.CodeUnauthorized:
		writeJSONError(w, http.StatusUnauthorized, code, denyMessages[code], "")
	case gwerrors.CodeMFASetupRequired:
		writeJSONError(w, http.StatusForbidden, code, denyMessages[code], d.Redirect)
	default:
		writeJSONError(w, http.StatusForbidden, code, denyMessages[code], "")
	}
}
