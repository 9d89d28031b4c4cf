// Package upstream is the HTTP client for the account service. It tries an
// ordered list of candidate base URLs and returns the first response it gets.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
	tracerName     = "github.com/jrsteele09/go-auth-gateway/upstream"
)

// Request describes one call to the account service. Path is relative to
// the base URL, e.g. "/session".
type Request struct {
	Endpoint string // Label for metrics and traces, defaults to Path
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     []byte
	Timeout  time.Duration // Overrides the client timeout when set
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	BaseURL    string // Candidate that answered
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	baseURLs   []string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRateLimit admits at most rps calls per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// New creates a client over baseURLs, tried in order.
func New(baseURLs []string, opts ...Option) (*Client, error) {
	cleaned := make([]string, 0, len(baseURLs))
	for _, u := range baseURLs {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" {
			continue
		}
		if _, err := url.Parse(u); err != nil {
			return nil, fmt.Errorf("[upstream.New] invalid base URL %q: %w", u, err)
		}
		cleaned = append(cleaned, u)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("[upstream.New] at least one base URL is required")
	}

	c := &Client{
		baseURLs:   cleaned,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURLs returns the candidate base URLs in order.
func (c *Client) BaseURLs() []string {
	return append([]string(nil), c.baseURLs...)
}

// Do sends req to each candidate in turn. Only transport failures move on to
// the next candidate; any HTTP response, whatever its status, is returned.
// When no candidate answers the error wraps ErrUpstreamUnreachable.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = req.Path
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "upstream "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("upstream.endpoint", endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.do(ctx, method, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordUpstream(endpoint, "unreachable", time.Since(start))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("upstream.base_url", resp.BaseURL),
	)
	result := "ok"
	if !resp.OK() {
		result = fmt.Sprintf("%dxx", resp.StatusCode/100)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	c.metrics.RecordUpstream(endpoint, result, time.Since(start))
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, req Request) (*Response, error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limited: %w", gwerrors.ErrUpstreamUnreachable, err)
		}
	}

	var lastErr error
	for _, base := range c.baseURLs {
		if ctx.Err() != nil {
			break
		}
		resp, err := c.send(ctx, base, method, req)
		if err == nil {
			return resp, nil
		}
		log.Debug().Err(err).Str("base_url", base).Str("path", req.Path).Msg("upstream candidate failed")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, fmt.Errorf("%w: %w", gwerrors.ErrUpstreamUnreachable, lastErr)
}

func (c *Client) send(ctx context.Context, base, method string, req Request) (*Response, error) {
	target := base + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		BaseURL:    base,
	}, nil
}
