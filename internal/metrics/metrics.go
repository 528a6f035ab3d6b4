// Package metrics collects Prometheus metrics for explorer traffic,
// endpoint probing, discovery and claims.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors. Each instance owns its registry so tests
// can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	explorerRequests *prometheus.CounterVec
	explorerLatency  *prometheus.HistogramVec
	probes           *prometheus.CounterVec
	endpointSwitches prometheus.Counter
	accountsScanned  *prometheus.CounterVec
	addressQueries   *prometheus.CounterVec
	discoveryRuns    *prometheus.CounterVec
	claims           *prometheus.CounterVec
	deviceCalls      *prometheus.CounterVec
}

// Global is the process-wide instance used by the CLI.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		explorerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "explorer",
			Name:      "requests_total",
			Help:      "Explorer HTTP requests by endpoint, operation and outcome.",
		}, []string{"endpoint", "op", "outcome"}),
		explorerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hwclaim",
			Subsystem: "explorer",
			Name:      "request_duration_seconds",
			Help:      "Explorer request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "endpoint",
			Name:      "probes_total",
			Help:      "Endpoint health probes by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		endpointSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "endpoint",
			Name:      "switches_total",
			Help:      "Times the active explorer endpoint changed.",
		}),
		accountsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "discovery",
			Name:      "accounts_scanned_total",
			Help:      "Accounts scanned by result (used, empty, incomplete).",
		}, []string{"result"}),
		addressQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "discovery",
			Name:      "address_queries_total",
			Help:      "Per-address explorer queries by outcome.",
		}, []string{"outcome"}),
		discoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Discovery runs by terminal state.",
		}, []string{"state"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "claim",
			Name:      "attempts_total",
			Help:      "Claim attempts by outcome.",
		}, []string{"outcome"}),
		deviceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwclaim",
			Subsystem: "device",
			Name:      "calls_total",
			Help:      "Hardware wallet calls by vendor, method and outcome.",
		}, []string{"vendor", "method", "outcome"}),
	}

	m.registry.MustRegister(
		m.explorerRequests,
		m.explorerLatency,
		m.probes,
		m.endpointSwitches,
		m.accountsScanned,
		m.addressQueries,
		m.discoveryRuns,
		m.claims,
		m.deviceCalls,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// RecordExplorerCall records one explorer request.
func (m *Metrics) RecordExplorerCall(endpoint, op string, d time.Duration, err error) {
	m.explorerRequests.WithLabelValues(endpoint, op, outcome(err)).Inc()
	m.explorerLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordProbe records one endpoint health probe.
func (m *Metrics) RecordProbe(endpoint string, err error) {
	m.probes.WithLabelValues(endpoint, outcome(err)).Inc()
}

// RecordEndpointSwitch records a change of the active endpoint.
func (m *Metrics) RecordEndpointSwitch() {
	m.endpointSwitches.Inc()
}

// RecordAccount records a scanned account; result is used, empty or incomplete.
func (m *Metrics) RecordAccount(result string) {
	m.accountsScanned.WithLabelValues(result).Inc()
}

// RecordAddressQuery records one per-address UTXO+history query.
func (m *Metrics) RecordAddressQuery(err error) {
	m.addressQueries.WithLabelValues(outcome(err)).Inc()
}

// RecordDiscovery records the terminal state of a discovery run.
func (m *Metrics) RecordDiscovery(state string) {
	m.discoveryRuns.WithLabelValues(state).Inc()
}

// RecordClaim records a claim attempt outcome such as "broadcast",
// "rejected", "dry_run" or "failed".
func (m *Metrics) RecordClaim(result string) {
	m.claims.WithLabelValues(result).Inc()
}

// RecordDeviceCall records a hardware wallet call.
func (m *Metrics) RecordDeviceCall(vendor, method string, err error) {
	m.deviceCalls.WithLabelValues(vendor, method, outcome(err)).Inc()
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the promhttp handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already done
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
