package server

import (
	"encoding/json"
	"net/http"
	"strings"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/utils"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/rs/zerolog/log"
)

const (
	LoginPath   = "/login"
	RefreshPath = "/refresh"

	codeAuthenticationFailed = "authentication_failed"
	codeMissingCredentials   = "missing_credentials"
	codeMethodNotAllowed     = "method_not_allowed"
	codeMFARequired          = "mfa_required"
)

// loginReply is the account service answer to POST /login.
type loginReply struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	Error     string `json:"error"`
	MFAToken  string `json:"mfaToken"`
	NeedMFA   bool   `json:"needMfa"`
}

// LoginHandler exchanges credentials for a session cookie. When the account
// service asks for a second factor the MFA challenge is kept in its own
// cookie and the session cookie is cleared.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeObject(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failure(gwerrors.CodeInvalidRequest).withNeedMFA(false))
			return
		}

		email := strings.ToLower(utils.TrimmedString(payload["email"]))
		password, _ := payload["password"].(string)
		remember := utils.Truthy(payload["remember"])
		code, _ := payload["totp"].(string)
		if code == "" {
			code, _ = payload["code"].(string)
		}
		code = normalizeCode(code)

		if email == "" || password == "" {
			writeJSON(w, http.StatusBadRequest, failure(codeMissingCredentials).withNeedMFA(false))
			return
		}

		body := map[string]string{"email": email, "password": password}
		if code != "" {
			body["totpCode"] = code
		}
		data, _ := json.Marshal(body)

		resp, err := s.upstream.Do(r.Context(), upstream.Request{
			Endpoint: "login",
			Method:   http.MethodPost,
			Path:     LoginPath,
			Body:     data,
			Timeout:  s.config.GetLoginTimeout(),
		})
		if err != nil {
			log.Err(err).Msg("account service login failed")
			s.ClearSessionCookie(w, r)
			s.ClearMFACookie(w, r)
			writeJSON(w, http.StatusBadGateway, failure(gwerrors.CodeUpstreamUnreachable).withNeedMFA(false))
			return
		}

		var reply loginReply
		_ = json.Unmarshal(resp.Body, &reply)

		if resp.OK() && reply.Token != "" {
			maxAge := maxAgeUntil(reply.ExpiresAt, s.nowFunc(), s.config.GetSessionCookieMaxAge())
			if remember && maxAge < s.config.GetRememberMeMaxAge() {
				maxAge = s.config.GetRememberMeMaxAge()
			}
			s.SetSessionCookie(w, r, reply.Token, maxAge)
			s.ClearMFACookie(w, r)
			writeJSON(w, http.StatusOK, authResult{Success: true}.withNeedMFA(false))
			return
		}

		errorCode := reply.Error
		if errorCode == "" {
			errorCode = codeAuthenticationFailed
		}
		needsMFA := reply.NeedMFA || errorCode == codeMFARequired || errorCode == gwerrors.CodeMFASetupRequired
		challenged := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || needsMFA

		if challenged && reply.MFAToken != "" {
			s.SetMFACookie(w, r, reply.MFAToken)
			s.ClearSessionCookie(w, r)
			writeJSON(w, http.StatusUnauthorized, failure(errorCode).withNeedMFA(true))
			return
		}

		status := resp.StatusCode
		if resp.OK() {
			// A success without a token is unusable.
			status = http.StatusBadGateway
		}
		s.ClearSessionCookie(w, r)
		s.ClearMFACookie(w, r)
		writeJSON(w, status, failure(errorCode).withNeedMFA(false))
	}
}

func (s *Server) LoginMethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methodNotAllowed(w, failure(codeMethodNotAllowed).withNeedMFA(false))
	}
}

// LoginClearHandler abandons a login in progress.
func (s *Server) LoginClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookieValue(r, s.config.GetMFACookieName()) != "" {
			s.ClearMFACookie(w, r)
		}
		s.ClearSessionCookie(w, r)
		writeJSON(w, http.StatusOK, authResult{Success: true}.withNeedMFA(false))
	}
}

// RefreshHandler relays a refresh token exchange to the account service.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeObject(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failure(gwerrors.CodeInvalidRequest))
			return
		}
		refreshToken := utils.TrimmedString(payload["refresh_token"])
		if refreshToken == "" {
			writeJSON(w, http.StatusBadRequest, failure(codeMissingCredentials))
			return
		}
		data, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})

		resp, err := s.upstream.Do(r.Context(), upstream.Request{
			Endpoint: "refresh",
			Method:   http.MethodPost,
			Path:     RefreshPath,
			Body:     data,
		})
		if err != nil {
			log.Err(err).Msg("account service refresh failed")
			writeJSON(w, http.StatusBadGateway, failure(gwerrors.CodeUpstreamUnreachable))
			return
		}
		writeUpstream(w, resp)
	}
}
