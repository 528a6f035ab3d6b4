// Package bridge talks to a local hardware wallet bridge over HTTP. The
// bridge owns USB access; every call is
//
//	POST {url}/{vendor}/{method}  {"session": "...", "params": {...}}
//
// answered with {"success": bool, "payload": {...}}. A failed call carries
// {"error": "...", "code": "..."} as its payload.
package bridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/version"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// DefaultURL is where the bridge listens unless configured otherwise.
const DefaultURL = "http://127.0.0.1:21325"

const maxBodySize = 4 << 20

// Bridge methods.
const (
	methodOpen             = "open"
	methodClose            = "close"
	methodAppVersion       = "app-version"
	methodWalletPublicKey  = "wallet-public-key"
	methodCreatePaymentTx  = "create-payment-transaction"
	methodFeatures         = "features"
	methodGetPublicKey     = "get-public-key"
	methodSignTransaction  = "sign-transaction"
	bridgeNotRunningAdvice = "start the hardware wallet bridge or set device.bridge_url"
)

// Options configures a Client.
type Options struct {
	URL        string
	HTTPClient *http.Client
}

// Client opens vendor sessions on the bridge. It implements
// device.Connector.
type Client struct {
	url        string
	httpClient *http.Client
}

var _ device.Connector = (*Client)(nil)

// New creates a bridge client.
func New(opts Options) *Client {
	c := &Client{
		url:        strings.TrimRight(opts.URL, "/"),
		httpClient: opts.HTTPClient,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.httpClient == nil {
		// No client timeout: signing waits on the user. Callers bound
		// calls through the context.
		c.httpClient = &http.Client{}
	}
	return c
}

// URL returns the bridge address.
func (c *Client) URL() string {
	return c.url
}

type envelope struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
}

type failure struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type request struct {
	Session string `json:"session,omitempty"`
	Params  any    `json:"params,omitempty"`
}

type openPayload struct {
	Session string `json:"session"`
}

// OpenLedger implements device.Connector.
func (c *Client) OpenLedger(ctx context.Context) (device.LedgerTransport, error) {
	id, err := c.open(ctx, device.Ledger)
	if err != nil {
		return nil, err
	}
	return &ledgerSession{session{client: c, vendor: device.Ledger, id: id}}, nil
}

// OpenTrezor implements device.Connector.
func (c *Client) OpenTrezor(ctx context.Context) (device.TrezorTransport, error) {
	id, err := c.open(ctx, device.Trezor)
	if err != nil {
		return nil, err
	}
	return &trezorSession{session{client: c, vendor: device.Trezor, id: id}}, nil
}

func (c *Client) open(ctx context.Context, vendor device.Vendor) (string, error) {
	var out openPayload
	if err := c.call(ctx, vendor, methodOpen, request{}, &out); err != nil {
		return "", err
	}
	if out.Session == "" {
		return "", fmt.Errorf("%w: bridge returned no session", hwerr.ErrDevice)
	}
	return out.Session, nil
}

func (c *Client) call(ctx context.Context, vendor device.Vendor, method string, in request, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encoding %s request: %w", hwerr.ErrInvalidInput, method, err)
	}

	endpoint := c.url + "/" + vendor.String() + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", hwerr.ErrDevice, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return hwerr.WithSuggestion(
				hwerr.WithDetails(hwerr.ErrDeviceNotConnected, map[string]string{"bridge": c.url}),
				bridgeNotRunningAdvice)
		}
		return fmt.Errorf("%w: bridge %s: %w", hwerr.ErrDevice, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading bridge response: %w", hwerr.ErrDevice, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: bridge %s: status %d", hwerr.ErrDevice, method, resp.StatusCode)
	}
	if !env.Success {
		var f failure
		_ = json.Unmarshal(env.Payload, &f)
		return mapFailure(method, f)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("%w: decoding %s payload: %w", hwerr.ErrDevice, method, err)
	}
	return nil
}

// mapFailure turns a bridge failure into a device error. Codes follow
// Trezor Connect and the Ledger transport status words.
func mapFailure(method string, f failure) error {
	msg := f.Error
	if msg == "" {
		msg = "unknown bridge error"
	}

	var sentinel *hwerr.HWError
	switch f.Code {
	case "Failure_ActionCancelled", "Method_Cancel", "Method_PermissionsNotGranted", "0x6985":
		sentinel = hwerr.ErrDeviceRejected
	case "Device_NotFound", "Transport_Missing", "Device_Disconnected", "Session_NotFound",
		"0x6d00", "0x6e00", "0x6e01": // app closed or wrong app open
		sentinel = hwerr.ErrDeviceNotConnected
	case "Device_CallInProgress", "Device_UsedElsewhere":
		sentinel = hwerr.ErrDeviceBusy
	default:
		sentinel = hwerr.ErrDevice
	}
	return fmt.Errorf("%w: %s: %s", sentinel, method, msg)
}

type session struct {
	client *Client
	vendor device.Vendor
	id     string
}

func (s *session) call(ctx context.Context, method string, params, out any) error {
	return s.client.call(ctx, s.vendor, method, request{Session: s.id, Params: params}, out)
}

func (s *session) Close() error {
	return s.call(context.Background(), methodClose, nil, nil)
}

type ledgerSession struct{ session }

type ledgerKeyPayload struct {
	PublicKey      string `json:"publicKey"`
	ChainCode      string `json:"chainCode"`
	BitcoinAddress string `json:"bitcoinAddress"`
}

func (l *ledgerSession) AppVersion(ctx context.Context) (*device.LedgerApp, error) {
	var app device.LedgerApp
	if err := l.call(ctx, methodAppVersion, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (l *ledgerSession) GetWalletPublicKey(ctx context.Context, path string) (*device.LedgerPublicKey, error) {
	var out ledgerKeyPayload
	params := map[string]string{"path": path}
	if err := l.call(ctx, methodWalletPublicKey, params, &out); err != nil {
		return nil, err
	}
	pub, err := hex.DecodeString(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed public key: %w", hwerr.ErrDevice, err)
	}
	cc, err := hex.DecodeString(out.ChainCode)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed chain code: %w", hwerr.ErrDevice, err)
	}
	return &device.LedgerPublicKey{PublicKey: pub, ChainCode: cc, Address: out.BitcoinAddress}, nil
}

func (l *ledgerSession) CreatePaymentTransaction(ctx context.Context, req *device.LedgerPaymentRequest) (string, error) {
	var out struct {
		Transaction string `json:"transaction"`
	}
	if err := l.call(ctx, methodCreatePaymentTx, req, &out); err != nil {
		return "", err
	}
	return out.Transaction, nil
}

type trezorSession struct{ session }

func (t *trezorSession) Features(ctx context.Context) (*device.TrezorFeatures, error) {
	var f device.TrezorFeatures
	if err := t.call(ctx, methodFeatures, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (t *trezorSession) GetPublicKey(ctx context.Context, path, coin string) (string, error) {
	var out struct {
		Xpub string `json:"xpub"`
	}
	params := map[string]string{"path": path, "coin": coin}
	if err := t.call(ctx, methodGetPublicKey, params, &out); err != nil {
		return "", err
	}
	return out.Xpub, nil
}

func (t *trezorSession) SignTransaction(ctx context.Context, req *device.TrezorSignRequest) (string, error) {
	var out struct {
		SerializedTx string `json:"serializedTx"`
	}
	if err := t.call(ctx, methodSignTransaction, req, &out); err != nil {
		return "", err
	}
	return out.SerializedTx, nil
}
