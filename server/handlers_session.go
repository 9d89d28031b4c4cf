package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-gateway/internal/logging"
	"github.com/jrsteele09/go-auth-gateway/routes"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/rs/zerolog/log"
)

// mfaHint tells UI layers whether the session is held at MFA enrollment
// and where to send it.
type mfaHint struct {
	Locked   bool   `json:"locked"`
	Redirect string `json:"redirect,omitempty"`
}

type sessionResponse struct {
	User *users.User `json:"user"`
	MFA  mfaHint     `json:"mfa"`
}

// SessionGetHandler returns the user the edge admitted the request as.
func (s *Server) SessionGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			s.ClearSessionCookie(w, r)
			writeJSON(w, http.StatusOK, sessionResponse{})
			return
		}

		resp := sessionResponse{User: user}
		if s.gate.MFALocked(user, routes.RoutePanel) {
			resp.MFA = mfaHint{Locked: true, Redirect: s.gate.Decide(user, routes.RoutePanel).Redirect}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SessionDeleteHandler ends the upstream session and clears the cookie.
func (s *Server) SessionDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.revoke(r)
		s.ClearSessionCookie(w, r)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// LogoutHandler is the browser form of SessionDeleteHandler.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.revoke(r)
		s.ClearSessionCookie(w, r)
		s.ClearMFACookie(w, r)
		http.Redirect(w, r, s.gate.Policy().LoginPath, http.StatusFound)
	}
}

func (s *Server) revoke(r *http.Request) {
	credential, _ := s.sessionCredential(r)
	if credential == "" {
		return
	}
	if err := s.validator.Revoke(r.Context(), credential); err != nil {
		log.Warn().Err(err).Str("credential", logging.Fingerprint(credential)).Msg("upstream logout failed")
	}
}
