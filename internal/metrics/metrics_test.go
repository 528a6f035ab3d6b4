package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/metrics"
)

var errBoom = errors.New("boom")

func TestRecordExplorerCall(t *testing.T) {
	t.Parallel()
	m := metrics.New()

	m.RecordExplorerCall("default", "utxo", 20*time.Millisecond, nil)
	m.RecordExplorerCall("default", "utxo", 30*time.Millisecond, errBoom)
	m.RecordExplorerCall("alt1", "info", time.Millisecond, nil)

	expected := `
# HELP hwclaim_explorer_requests_total Explorer HTTP requests by endpoint, operation and outcome.
# TYPE hwclaim_explorer_requests_total counter
hwclaim_explorer_requests_total{endpoint="alt1",op="info",outcome="ok"} 1
hwclaim_explorer_requests_total{endpoint="default",op="utxo",outcome="error"} 1
hwclaim_explorer_requests_total{endpoint="default",op="utxo",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "hwclaim_explorer_requests_total"))
}

func TestCountersByLabel(t *testing.T) {
	t.Parallel()
	m := metrics.New()

	m.RecordProbe("alt2", errBoom)
	m.RecordProbe("alt2", nil)
	m.RecordEndpointSwitch()
	m.RecordAccount("used")
	m.RecordAccount("used")
	m.RecordAccount("empty")
	m.RecordAddressQuery(nil)
	m.RecordDiscovery("complete")
	m.RecordClaim("broadcast")
	m.RecordDeviceCall("ledger", "sign", errBoom)

	count, err := testutil.GatherAndCount(m.Registry(), "hwclaim_discovery_accounts_scanned_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(m.Registry(), "hwclaim_endpoint_probes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandler(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.RecordClaim("dry_run")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hwclaim_claim_attempts_total{outcome="dry_run"} 1`)
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestGlobalIsUsable(t *testing.T) {
	t.Parallel()
	require.NotNil(t, metrics.Global)
	metrics.Global.RecordAddressQuery(nil)
}
