package bridge_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/device/bridge"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

type call struct {
	Path    string
	Session string
	Params  json.RawMessage
}

type fakeBridge struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]any
	fails   map[string][2]string
}

func newFakeBridge(t *testing.T) (*fakeBridge, *bridge.Client) {
	t.Helper()
	fb := &fakeBridge{replies: map[string]any{}, fails: map[string][2]string{}}
	srv := httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(srv.Close)
	return fb, bridge.New(bridge.Options{URL: srv.URL + "/"})
}

func (fb *fakeBridge) serve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Session string          `json:"session"`
		Params  json.RawMessage `json:"params"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	fb.mu.Lock()
	fb.calls = append(fb.calls, call{Path: r.URL.Path, Session: body.Session, Params: body.Params})
	fail, failed := fb.fails[r.URL.Path]
	reply, ok := fb.replies[r.URL.Path]
	fb.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case failed:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"payload": map[string]string{"error": fail[1], "code": fail[0]},
		})
	case ok:
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "payload": reply})
	case r.URL.Path == "/ledger/open" || r.URL.Path == "/trezor/open":
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "payload": map[string]string{"session": "s-1"}})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "payload": map[string]any{}})
	}
}

func (fb *fakeBridge) reply(path string, payload any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.replies[path] = payload
}

func (fb *fakeBridge) fail(path, code, msg string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.fails[path] = [2]string{code, msg}
}

func (fb *fakeBridge) recorded() []call {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]call(nil), fb.calls...)
}

func TestLedgerSession(t *testing.T) {
	t.Parallel()
	fb, c := newFakeBridge(t)
	ctx := context.Background()

	fb.reply("/ledger/app-version", map[string]string{"name": "Komodo", "version": "2.1.0"})
	fb.reply("/ledger/wallet-public-key", map[string]string{
		"publicKey": "04aabb", "chainCode": "ccdd", "bitcoinAddress": "RAddr",
	})
	fb.reply("/ledger/create-payment-transaction", map[string]string{"transaction": "0400008085"})

	tr, err := c.OpenLedger(ctx)
	require.NoError(t, err)

	app, err := tr.AppVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, device.LedgerApp{Name: "Komodo", Version: "2.1.0"}, *app)

	key, err := tr.GetWalletPublicKey(ctx, "m/44'/141'/0'")
	require.NoError(t, err)
	assert.Equal(t, "04aabb", hex.EncodeToString(key.PublicKey))
	assert.Equal(t, "ccdd", hex.EncodeToString(key.ChainCode))
	assert.Equal(t, "RAddr", key.Address)

	out, err := tr.CreatePaymentTransaction(ctx, &device.LedgerPaymentRequest{
		AssociatedKeysets: []string{"44'/141'/0'/0/0"},
		Additionals:       []string{"sapling"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0400008085", out)

	require.NoError(t, tr.Close())

	calls := fb.recorded()
	require.Len(t, calls, 5)
	assert.Equal(t, "/ledger/open", calls[0].Path)
	for _, cl := range calls[1:] {
		assert.Equal(t, "s-1", cl.Session, cl.Path)
	}
	assert.JSONEq(t, `{"path":"m/44'/141'/0'"}`, string(calls[2].Params))
	assert.Contains(t, string(calls[3].Params), `"additionals":["sapling"]`)
	assert.Equal(t, "/ledger/close", calls[4].Path)
}

func TestTrezorSession(t *testing.T) {
	t.Parallel()
	fb, c := newFakeBridge(t)
	ctx := context.Background()

	fb.reply("/trezor/features", map[string]any{
		"model": "1", "major_version": 1, "minor_version": 12, "patch_version": 1, "initialized": true,
	})
	fb.reply("/trezor/get-public-key", map[string]string{"xpub": "xpubABC"})
	fb.reply("/trezor/sign-transaction", map[string]string{"serializedTx": "beef"})

	tr, err := c.OpenTrezor(ctx)
	require.NoError(t, err)

	f, err := tr.Features(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.12.1", f.Firmware())
	assert.True(t, f.Initialized)

	xpub, err := tr.GetPublicKey(ctx, "m/44'/141'/0'", "Komodo")
	require.NoError(t, err)
	assert.Equal(t, "xpubABC", xpub)

	out, err := tr.SignTransaction(ctx, &device.TrezorSignRequest{Coin: "Komodo", Version: 4})
	require.NoError(t, err)
	assert.Equal(t, "beef", out)

	calls := fb.recorded()
	require.Len(t, calls, 4)
	assert.JSONEq(t, `{"path":"m/44'/141'/0'","coin":"Komodo"}`, string(calls[2].Params))
	assert.Contains(t, string(calls[3].Params), `"coin":"Komodo"`)
}

func TestFailureMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code string
		want *hwerr.HWError
	}{
		{"Failure_ActionCancelled", hwerr.ErrDeviceRejected},
		{"0x6985", hwerr.ErrDeviceRejected},
		{"Device_NotFound", hwerr.ErrDeviceNotConnected},
		{"0x6e00", hwerr.ErrDeviceNotConnected},
		{"Device_CallInProgress", hwerr.ErrDeviceBusy},
		{"Something_Else", hwerr.ErrDevice},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			fb, c := newFakeBridge(t)
			fb.fail("/trezor/get-public-key", tt.code, "boom")

			tr, err := c.OpenTrezor(context.Background())
			require.NoError(t, err)
			_, err = tr.GetPublicKey(context.Background(), "m/44'/141'/0'", "Komodo")
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestOpen_NoSession(t *testing.T) {
	t.Parallel()
	fb, c := newFakeBridge(t)
	fb.reply("/ledger/open", map[string]string{})

	_, err := c.OpenLedger(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDevice)
}

func TestBridgeNotRunning(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := bridge.New(bridge.Options{URL: url})
	_, err := c.OpenTrezor(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDeviceNotConnected)

	var he *hwerr.HWError
	require.ErrorAs(t, err, &he)
	assert.Contains(t, he.Suggestion, "bridge")
}

func TestDefaultURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, bridge.DefaultURL, bridge.New(bridge.Options{}).URL())
}
