package server

import (
	"encoding/json"
	"net/http"
	"strings"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/utils"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/rs/zerolog/log"
)

const (
	MFAProvisionPath = "/mfa/totp/provision"
	MFAVerifyPath    = "/mfa/totp/verify"
	MFADisablePath   = "/mfa/disable"

	codeMFATokenRequired = "mfa_token_required"
	codeMFACodeRequired  = "mfa_code_required"
	codeSessionRequired  = "session_required"
)

// MFAStatusHandler relays the enrollment status for an identifier or a
// challenge token. The login form calls it before a session exists.
func (s *Server) MFAStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		token := strings.TrimSpace(q.Get("token"))
		if token == "" {
			token = MFAChallengeFromContext(r.Context())
		}
		identifier := q.Get("identifier")
		if identifier == "" {
			identifier = q.Get("email")
		}
		credential, _ := s.sessionCredential(r)

		resp, err := s.mfa.Fetch(r.Context(), mfa.Query{
			Identifier: identifier,
			Token:      token,
			Credential: credential,
		})
		if err != nil {
			log.Err(err).Msg("account service mfa status failed")
			writeJSON(w, http.StatusBadGateway, failure(gwerrors.CodeUpstreamUnreachable))
			return
		}
		writeUpstream(w, resp)
	}
}

// MFASetupHandler provisions a TOTP secret for the challenge token or the
// current session.
func (s *Server) MFASetupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeObject(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failure(gwerrors.CodeInvalidRequest).withNeedMFA(true))
			return
		}
		credential, _ := s.sessionCredential(r)
		token := utils.TrimmedString(payload["token"])
		if token == "" {
			token = MFAChallengeFromContext(r.Context())
		}
		if token == "" && credential == "" {
			writeJSON(w, http.StatusBadRequest, failure(codeMFATokenRequired).withNeedMFA(true))
			return
		}

		body := map[string]string{}
		for _, key := range []string{"issuer", "account"} {
			if v := utils.TrimmedString(payload[key]); v != "" {
				body[key] = v
			}
		}
		if token != "" {
			body["token"] = token
		}
		header := http.Header{}
		if credential != "" {
			header.Set("Authorization", "Bearer "+credential)
		}

		resp, data, err := s.mfaCall(r, "mfa_provision", MFAProvisionPath, header, body)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, failure(gwerrors.CodeUpstreamUnreachable).withNeedMFA(true))
			return
		}
		if !resp.OK() {
			writeJSON(w, resp.StatusCode, failure(errorCodeOr(data, "mfa_setup_failed")).withNeedMFA(true))
			return
		}
		if next := utils.TrimmedString(data["mfaToken"]); next != "" {
			token = next
		}
		if token != "" {
			s.SetMFACookie(w, r, token)
		}
		writeJSON(w, http.StatusOK, authResult{Success: true, Data: data}.withNeedMFA(true))
	}
}

// MFAVerifyHandler confirms a TOTP code. On success the challenge is traded
// for a session cookie.
func (s *Server) MFAVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeObject(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, failure(gwerrors.CodeInvalidRequest).withNeedMFA(true))
			return
		}
		token := utils.TrimmedString(payload["token"])
		if token == "" {
			token = MFAChallengeFromContext(r.Context())
		}
		code, _ := payload["code"].(string)
		if code == "" {
			code, _ = payload["totp"].(string)
		}
		code = normalizeCode(code)

		if token == "" {
			writeJSON(w, http.StatusBadRequest, failure(codeMFATokenRequired).withNeedMFA(true))
			return
		}
		if code == "" {
			writeJSON(w, http.StatusBadRequest, failure(codeMFACodeRequired).withNeedMFA(true))
			return
		}

		resp, data, err := s.mfaCall(r, "mfa_verify", MFAVerifyPath, nil, map[string]string{"token": token, "code": code})
		if err != nil {
			s.SetMFACookie(w, r, token)
			s.ClearSessionCookie(w, r)
			writeJSON(w, http.StatusBadGateway, failure(gwerrors.CodeUpstreamUnreachable).withNeedMFA(true))
			return
		}

		if session := utils.TrimmedString(data["token"]); resp.OK() && session != "" {
			maxAge := maxAgeUntil(utils.TrimmedString(data["expiresAt"]), s.nowFunc(), s.config.GetSessionCookieMaxAge())
			s.SetSessionCookie(w, r, session, maxAge)
			s.ClearMFACookie(w, r)
			writeJSON(w, http.StatusOK, authResult{Success: true, Data: data}.withNeedMFA(false))
			return
		}

		if next := utils.TrimmedString(data["mfaToken"]); next != "" {
			token = next
		}
		s.SetMFACookie(w, r, token)
		s.ClearSessionCookie(w, r)
		status := resp.StatusCode
		if resp.OK() {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, authResult{Error: utils.Ptr(errorCodeOr(data, "mfa_verification_failed")), Data: data}.withNeedMFA(true))
	}
}

// MFADisableHandler turns TOTP off for the current session.
func (s *Server) MFADisableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential, _ := s.sessionCredential(r)
		if credential == "" {
			writeJSON(w, http.StatusUnauthorized, failure(codeSessionRequired))
			return
		}
		header := http.Header{"Authorization": {"Bearer " + credential}}

		resp, data, err := s.mfaCall(r, "mfa_disable", MFADisablePath, header, nil)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, failure(gwerrors.CodeUpstreamUnreachable))
			return
		}
		if !resp.OK() {
			if resp.StatusCode == http.StatusUnauthorized {
				s.ClearSessionCookie(w, r)
			}
			writeJSON(w, resp.StatusCode, failure(errorCodeOr(data, "mfa_disable_failed")))
			return
		}
		writeJSON(w, http.StatusOK, authResult{Success: true, Data: data})
	}
}

func (s *Server) MFAMethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methodNotAllowed(w, failure(codeMethodNotAllowed).withNeedMFA(true))
	}
}

// mfaCall posts body to the account service and decodes the JSON reply.
// A reply that is not an object decodes as empty.
func (s *Server) mfaCall(r *http.Request, endpoint, path string, header http.Header, body map[string]string) (*upstream.Response, map[string]any, error) {
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}
	resp, err := s.upstream.Do(r.Context(), upstream.Request{
		Endpoint: endpoint,
		Method:   http.MethodPost,
		Path:     path,
		Header:   header,
		Body:     data,
	})
	if err != nil {
		log.Err(err).Str("endpoint", endpoint).Msg("account service mfa call failed")
		return nil, nil, err
	}
	reply := map[string]any{}
	_ = json.Unmarshal(resp.Body, &reply)
	if reply == nil {
		reply = map[string]any{}
	}
	return resp, reply, nil
}

func errorCodeOr(data map[string]any, fallback string) string {
	if code := utils.TrimmedString(data["error"]); code != "" {
		return code
	}
	return fallback
}

