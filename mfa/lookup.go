package mfa

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/rs/zerolog/log"
)

const DefaultDebounce = 300 * time.Millisecond

// Mode tells a login form whether to ask for a TOTP code.
type Mode string

const (
	ModeOptional Mode = "optional"
	ModeRequired Mode = "required"
)

// StatusFetcher reads an account's MFA status.
type StatusFetcher interface {
	Status(ctx context.Context, identifier string) (Status, error)
}

// Lookup resolves the MFA mode for an identifier that is still being
// typed. Each Submit restarts the debounce window and cancels the lookup
// for the previous value; results for superseded values are dropped.
type Lookup struct {
	fetcher  StatusFetcher
	debounce time.Duration
	onChange func(identifier string, mode Mode)
	metrics  *metrics.Metrics

	mu         sync.Mutex
	generation uint64
	identifier string
	mode       Mode
	timer      *time.Timer
	cancel     context.CancelFunc
	closed     bool
}

type LookupOption func(*Lookup)

func WithDebounce(d time.Duration) LookupOption {
	return func(l *Lookup) {
		l.debounce = d
	}
}

// WithOnChange is called after every settled lookup, from the lookup's
// goroutine.
func WithOnChange(fn func(identifier string, mode Mode)) LookupOption {
	return func(l *Lookup) {
		l.onChange = fn
	}
}

func WithMetrics(m *metrics.Metrics) LookupOption {
	return func(l *Lookup) {
		l.metrics = m
	}
}

func NewLookup(fetcher StatusFetcher, opts ...LookupOption) (*Lookup, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("[mfa.NewLookup] status fetcher is required")
	}
	l := &Lookup{
		fetcher:  fetcher,
		debounce: DefaultDebounce,
		mode:     ModeOptional,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Mode returns the mode for the latest settled identifier.
func (l *Lookup) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Submit records the current identifier. A blank identifier resets the
// mode to optional at once.
func (l *Lookup) Submit(identifier string) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.generation++
	generation := l.generation
	l.identifier = identifier
	l.stopLocked()

	if identifier == "" {
		l.mode = ModeOptional
		l.mu.Unlock()
		l.notify(identifier, ModeOptional)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.timer = time.AfterFunc(l.debounce, func() {
		l.run(ctx, generation, identifier)
	})
	l.mu.Unlock()
}

// Close cancels any pending or in-flight lookup.
func (l *Lookup) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.generation++
	l.stopLocked()
}

func (l *Lookup) stopLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Lookup) run(ctx context.Context, generation uint64, identifier string) {
	status, err := l.fetcher.Status(ctx, identifier)
	if ctx.Err() != nil {
		l.metrics.RecordMFALookup("cancelled")
		return
	}

	mode := ModeOptional
	switch {
	case err != nil:
		log.Debug().Err(err).Msg("mfa status lookup failed")
		l.metrics.RecordMFALookup("error")
	case status.TOTPEnabled:
		mode = ModeRequired
		l.metrics.RecordMFALookup("ok")
	default:
		l.metrics.RecordMFALookup("ok")
	}

	l.mu.Lock()
	if generation != l.generation {
		l.mu.Unlock()
		l.metrics.RecordMFALookup("stale")
		return
	}
	l.mode = mode
	l.mu.Unlock()
	l.notify(identifier, mode)
}

func (l *Lookup) notify(identifier string, mode Mode) {
	if l.onChange != nil {
		l.onChange(identifier, mode)
	}
}
