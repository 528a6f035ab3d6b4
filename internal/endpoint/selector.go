// Package endpoint chooses which explorer backend serves the session.
//
// At startup every configured endpoint is probed concurrently and the
// first healthy answer wins. The choice is committed atomically and stays
// fixed until the user asks for another endpoint by name; nothing re-probes
// behind the caller's back.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/hwclaim/internal/explorer"
	"github.com/mrz1836/hwclaim/internal/metrics"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// DefaultProbeTimeout bounds a single health probe.
const DefaultProbeTimeout = 5 * time.Second

// errUnhealthy is returned when /info answers without a version.
var errUnhealthy = errors.New("explorer reported no version")

// Endpoint is one named explorer backend.
type Endpoint struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// Factory builds the explorer client for an endpoint.
type Factory func(Endpoint) explorer.API

// Logger is the logging surface the selector needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Selector.
type Options struct {
	ProbeTimeout time.Duration
	Logger       Logger
	Metrics      *metrics.Metrics
}

type binding struct {
	endpoint Endpoint
	client   explorer.API
}

// Selector holds the fixed endpoint set and the active binding.
type Selector struct {
	endpoints    []Endpoint
	clients      map[string]explorer.API
	active       atomic.Pointer[binding]
	probeTimeout time.Duration
	logger       Logger
	metrics      *metrics.Metrics

	// commitMu orders commits from Probe and Use; readers never take it.
	commitMu sync.Mutex
}

// NewSelector creates a selector. No endpoint is active until Probe or Use
// succeeds.
func NewSelector(endpoints []Endpoint, factory Factory, opts Options) (*Selector, error) {
	if len(endpoints) == 0 {
		return nil, hwerr.Wrap(hwerr.ErrConfigInvalid, "no explorer endpoints configured")
	}

	s := &Selector{
		endpoints:    append([]Endpoint(nil), endpoints...),
		clients:      make(map[string]explorer.API, len(endpoints)),
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if s.probeTimeout <= 0 {
		s.probeTimeout = DefaultProbeTimeout
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Global
	}

	for _, ep := range endpoints {
		if ep.Name == "" {
			return nil, hwerr.Wrap(hwerr.ErrConfigInvalid, "explorer endpoint without a name")
		}
		if _, dup := s.clients[ep.Name]; dup {
			return nil, hwerr.Wrap(hwerr.ErrConfigInvalid, "duplicate explorer endpoint %q", ep.Name)
		}
		s.clients[ep.Name] = factory(ep)
	}
	return s, nil
}

// Endpoints returns the configured endpoints in configuration order.
func (s *Selector) Endpoints() []Endpoint {
	return append([]Endpoint(nil), s.endpoints...)
}

// Probe checks every endpoint concurrently and commits to the first one
// that answers healthy. When all fail, no endpoint is left active and
// ErrNoExplorerReachable lists each failure.
func (s *Selector) Probe(ctx context.Context) (Endpoint, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		endpoint Endpoint
		err      error
	}
	results := make(chan result, len(s.endpoints))

	var g errgroup.Group
	for _, ep := range s.endpoints {
		g.Go(func() error {
			results <- result{endpoint: ep, err: s.probe(ctx, ep)}
			return nil
		})
	}

	var (
		winner   *Endpoint
		failures = make(map[string]string, len(s.endpoints))
	)
	for range s.endpoints {
		r := <-results
		if r.err == nil {
			winner = &r.endpoint
			break
		}
		failures[r.endpoint.Name] = r.err.Error()
	}

	// Stop the losers and wait for them so no probe outlives the call.
	cancel()
	_ = g.Wait()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if winner == nil {
		s.active.Store(nil)
		s.logger.Error("no explorer endpoint reachable: %v", failures)
		return Endpoint{}, hwerr.WithDetails(hwerr.ErrNoExplorerReachable, failures)
	}

	s.commit(*winner)
	return *winner, nil
}

// Use switches to the named endpoint after probing it. Unknown names are
// rejected with a suggestion; a failed probe leaves the current binding
// untouched.
func (s *Selector) Use(ctx context.Context, name string) (Endpoint, error) {
	ep, ok := s.lookup(name)
	if !ok {
		err := hwerr.WithDetails(hwerr.ErrUnknownEndpoint, map[string]string{"endpoint": name})
		if suggestion := s.suggest(name); suggestion != "" {
			err = hwerr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", suggestion))
		}
		return Endpoint{}, err
	}

	if err := s.probe(ctx, ep); err != nil {
		return Endpoint{}, fmt.Errorf("%w: endpoint %s is not healthy: %w", hwerr.ErrNetworkError, ep.Name, err)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.commit(ep)
	return ep, nil
}

// Active returns the active endpoint, or ErrNoExplorerReachable when
// none has been committed.
func (s *Selector) Active() (Endpoint, error) {
	b := s.active.Load()
	if b == nil {
		return Endpoint{}, hwerr.ErrNoExplorerReachable
	}
	return b.endpoint, nil
}

// Client returns the explorer client bound to the active endpoint.
func (s *Selector) Client() (explorer.API, error) {
	b := s.active.Load()
	if b == nil {
		return nil, hwerr.ErrNoExplorerReachable
	}
	return b.client, nil
}

func (s *Selector) commit(ep Endpoint) {
	prev := s.active.Swap(&binding{endpoint: ep, client: s.clients[ep.Name]})
	if prev == nil || prev.endpoint.Name != ep.Name {
		s.metrics.RecordEndpointSwitch()
		s.logger.Debug("explorer endpoint set to %s (%s)", ep.Name, ep.BaseURL)
	}
}

func (s *Selector) probe(ctx context.Context, ep Endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	info, err := s.clients[ep.Name].GetInfo(ctx)
	if err == nil && !info.Healthy() {
		err = errUnhealthy
	}
	s.metrics.RecordProbe(ep.Name, err)
	if err != nil {
		s.logger.Debug("probe %s failed: %v", ep.Name, err)
	}
	return err
}

func (s *Selector) lookup(name string) (Endpoint, bool) {
	for _, ep := range s.endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}

func (s *Selector) suggest(name string) string {
	names := make([]string, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		names = append(names, ep.Name)
	}
	sort.Strings(names)

	best, bestDist := "", 3
	for _, n := range names {
		if d := levenshtein.ComputeDistance(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}
