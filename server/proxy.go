package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Identity headers the gateway sets on requests it forwards downstream.
// Values sent by the client are always removed first.
const (
	HeaderUserID    = "X-Gateway-User-Id"
	HeaderUserEmail = "X-Gateway-User-Email"
	HeaderUserRole  = "X-Gateway-User-Role"
)

var identityHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserRole}

// NewDownstreamProxy forwards requests to the dashboard app at rawURL,
// carrying the identity the edge admitted them as.
func NewDownstreamProxy(rawURL string) (http.Handler, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("[server.NewDownstreamProxy] invalid url %q: %w", rawURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("[server.NewDownstreamProxy] url %q must be absolute", rawURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			for _, h := range identityHeaders {
				pr.Out.Header.Del(h)
			}
			if user, ok := UserFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderUserID, user.ID)
				pr.Out.Header.Set(HeaderUserEmail, user.Email)
				pr.Out.Header.Set(HeaderUserRole, string(user.Role))
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Err(err).Str("path", r.URL.Path).Msg("downstream unavailable")
			http.Error(w, "502 - Bad Gateway", http.StatusBadGateway)
		},
	}
	return proxy, nil
}
