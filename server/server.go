package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-auth-gateway/access"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/jrsteele09/go-auth-gateway/session"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Upstream sends requests to the account service.
type Upstream interface {
	Do(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// SessionValidator resolves and ends account service sessions.
type SessionValidator interface {
	Validate(ctx context.Context, credential string) (*users.User, error)
	Revoke(ctx context.Context, credential string) error
}

type Server struct {
	env        string // Environment (e.g., "DEV", "production")
	router     chi.Router
	routes     []string
	config     config.Config
	upstream   Upstream
	validator  SessionValidator
	gate       *access.Gate
	mfa        *mfa.Client
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	downstream http.Handler
	nowFunc    func() time.Time
}

type Option func(*Server)

func WithValidator(v SessionValidator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

func WithGate(g *access.Gate) Option {
	return func(s *Server) {
		s.gate = g
	}
}

// WithMetrics records edge decisions into m and serves gatherer on /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		if gatherer != nil {
			s.gatherer = gatherer
		}
	}
}

// WithDownstream handles every path the gateway does not serve itself.
func WithDownstream(h http.Handler) Option {
	return func(s *Server) {
		s.downstream = h
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func New(cfg config.Config, up Upstream, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[server.New] config is required")
	}
	if up == nil {
		return nil, fmt.Errorf("[server.New] upstream client is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		router:   chi.NewRouter(),
		config:   cfg,
		upstream: up,
		gatherer: prometheus.DefaultGatherer,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.validator == nil {
		s.validator, err = session.NewValidator(up,
			session.WithStrictRoles(cfg.GetStrictRoles()),
			session.WithTimeout(cfg.GetUpstreamTimeout()),
		)
		if err != nil {
			return nil, fmt.Errorf("[server.New] session validator: %w", err)
		}
	}
	if s.gate == nil {
		policy := access.DefaultPolicy()
		if setup := cfg.GetMFASetupPath(); setup != "" {
			policy.MFASetupPath = setup
		}
		s.gate = access.NewGate(access.WithPolicy(policy), access.WithMetrics(s.metrics))
	}
	if s.mfa, err = mfa.NewClient(up); err != nil {
		return nil, fmt.Errorf("[server.New] mfa client: %w", err)
	}
	if s.downstream == nil && cfg.GetDownstreamURL() != "" {
		if s.downstream, err = NewDownstreamProxy(cfg.GetDownstreamURL()); err != nil {
			return nil, fmt.Errorf("[server.New] downstream: %w", err)
		}
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// Gate exposes the access gate so callers can reload its policy.
func (s *Server) Gate() *access.Gate {
	return s.gate
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(method, pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+pattern)
	s.router.Method(method, pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDev {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
