package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const maxRequestBytes = 64 << 10

// authResult is the body every auth endpoint answers with. Error is null on
// success.
type authResult struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	NeedMFA *bool   `json:"needMfa,omitempty"`
	Data    any     `json:"data,omitempty"`
}

func failure(code string) authResult {
	return authResult{Error: &code}
}

func (a authResult) withNeedMFA(need bool) authResult {
	a.NeedMFA = &need
	return a
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

// writeJSONError writes an edge error response
func writeJSONError(w http.ResponseWriter, status int, code, message, redirect string) {
	body := map[string]string{
		"error":   code,
		"message": message,
	}
	if redirect != "" {
		body["redirect"] = redirect
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter, result authResult) {
	w.Header().Set("Allow", http.MethodPost)
	writeJSON(w, http.StatusMethodNotAllowed, result)
}

// writeUpstream relays an account service response. A body that is not JSON
// is replaced by an empty object.
func writeUpstream(w http.ResponseWriter, resp *upstream.Response) {
	body := resp.Body
	if !json.Valid(body) {
		body = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// decodeObject reads a JSON object body. Anything else is an invalid request.
func decodeObject(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "read body: %v", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return nil, gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "decode body")
	}
	return payload, nil
}

// normalizeCode keeps the digits of a TOTP code, at most six.
func normalizeCode(v string) string {
	var b strings.Builder
	for _, c := range v {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
			if b.Len() == 6 {
				break
			}
		}
	}
	return b.String()
}

// PingHandler answers liveness probes.
func (s *Server) PingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	h := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	return h.ServeHTTP
}

// NotFoundHandler forwards unknown paths to the downstream app when one is
// configured.
func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.downstream != nil {
			s.downstream.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSONError(w, http.StatusNotFound, "not_found", "No such endpoint", "")
			return
		}
		http.Error(w, "404 - Page Not Found", http.StatusNotFound)
	}
}
