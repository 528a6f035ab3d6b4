// Package explorer is a client for the Insight explorer API served by
// Komodo block explorers. One Client talks to one base URL; failover
// between backends is the endpoint selector's job.
package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/version"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

const (
	defaultTimeout = 10 * time.Second

	// maxBodySize bounds a single response body.
	maxBodySize = 8 << 20

	// maxHistoryPages bounds GET /txs pagination for one address.
	maxHistoryPages = 50

	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// ErrEmptyChain is returned when /blocks lists no block.
var ErrEmptyChain = errors.New("explorer returned no blocks")

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// API is the full set of explorer operations. *Client and the endpoint
// selector both implement it.
type API interface {
	GetInfo(ctx context.Context) (*Info, error)
	GetTipTime(ctx context.Context) (int64, error)
	GetUTXOs(ctx context.Context, address string) ([]UTXO, error)
	GetHistory(ctx context.Context, address string) ([]Transaction, error)
	GetTransaction(ctx context.Context, txid string) (*Transaction, error)
	GetRawTransaction(ctx context.Context, txid string) (string, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// Options configures a Client.
type Options struct {
	// Name labels the endpoint in logs, metrics and rate limiting.
	Name string

	// BaseURL is the Insight API root, e.g. https://kmdexplorer.io/insight-api-komodo.
	BaseURL string

	// Timeout bounds every call. Zero means 10s.
	Timeout time.Duration

	// Limiter is shared between clients; keyed by Name.
	Limiter *chain.RateLimiter

	// HTTPClient overrides the default http.Client.
	HTTPClient *http.Client

	Metrics *metrics.Metrics
	Logger  Logger

	// BreakerFailures is the number of consecutive failures that opens the
	// circuit. BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client talks to one Insight explorer.
type Client struct {
	name       string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *chain.RateLimiter
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     Logger
}

// NewClient creates a client for one explorer endpoint.
func NewClient(opts Options) *Client {
	c := &Client{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if c.name == "" {
		c.name = c.baseURL
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.metrics == nil {
		c.metrics = metrics.Global
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        c.name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Error("explorer %s circuit breaker %s -> %s", name, from, to)
		},
	})
	return c
}

// Name returns the endpoint name.
func (c *Client) Name() string {
	return c.name
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetInfo calls GET /info.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var resp infoResponse
	if err := c.do(ctx, "info", http.MethodGet, "/info", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Info == nil {
		return nil, fmt.Errorf("%w: %s: /info has no info object", hwerr.ErrNetworkError, c.name)
	}
	return resp.Info, nil
}

// GetTipTime returns the timestamp of the most recent block.
func (c *Client) GetTipTime(ctx context.Context) (int64, error) {
	var resp blocksResponse
	if err := c.do(ctx, "blocks", http.MethodGet, "/blocks?limit=1", nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Blocks) == 0 {
		return 0, fmt.Errorf("%w: %s: %w", hwerr.ErrNetworkError, c.name, ErrEmptyChain)
	}
	return resp.Blocks[0].Time, nil
}

// GetUTXOs lists the unspent outputs of an address.
func (c *Client) GetUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var utxos []UTXO
	path := "/addr/" + url.PathEscape(address) + "/utxo"
	if err := c.do(ctx, "utxo", http.MethodGet, path, nil, &utxos); err != nil {
		return nil, err
	}
	if utxos == nil {
		utxos = []UTXO{}
	}
	return utxos, nil
}

// GetHistory returns every transaction touching an address, following
// the explorer's pagination.
func (c *Client) GetHistory(ctx context.Context, address string) ([]Transaction, error) {
	var txs []Transaction
	for page := 0; page < maxHistoryPages; page++ {
		q := url.Values{}
		q.Set("address", address)
		q.Set("pageNum", strconv.Itoa(page))

		var resp txsPage
		if err := c.do(ctx, "txs", http.MethodGet, "/txs?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		txs = append(txs, resp.Txs...)

		if page+1 >= resp.PagesTotal {
			break
		}
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

// GetTransaction fetches one decoded transaction.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, "tx", http.MethodGet, "/tx/"+url.PathEscape(txid), nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetRawTransaction fetches the serialized hex of a transaction.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	var resp rawTxResponse
	if err := c.do(ctx, "rawtx", http.MethodGet, "/rawtx/"+url.PathEscape(txid), nil, &resp); err != nil {
		return "", err
	}
	if resp.RawTx == "" {
		return "", fmt.Errorf("%w: %s: empty rawtx for %s", hwerr.ErrNetworkError, c.name, txid)
	}
	return resp.RawTx, nil
}

// response is what survives the circuit breaker: any answer that is not a
// transport failure or a server error.
type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.name); err != nil {
			return c.wrapErr(op, err)
		}
	}

	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, in)
	})
	c.metrics.RecordExplorerCall(c.name, op, time.Since(start), err)
	if err != nil {
		c.logger.Debug("explorer %s %s %s failed: %v", c.name, method, path, err)
		return c.wrapErr(op, err)
	}

	resp, _ := res.(*response)
	switch {
	case resp.status == http.StatusOK:
	case resp.status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", hwerr.ErrNotFound, c.name, path)
	case op == "broadcast":
		return hwerr.WithDetails(hwerr.ErrTxRejected, map[string]string{
			"endpoint": c.name,
			"reason":   truncate(strings.TrimSpace(string(resp.body)), 200),
		})
	default:
		return fmt.Errorf("%w: %s %s: status %d", hwerr.ErrNetworkError, c.name, op, resp.status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %s %s: decoding response: %w", hwerr.ErrNetworkError, c.name, op, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in any) (*response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", chain.ErrTimeout, err)
		}
		return nil, chain.WrapRetryable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, chain.WrapRetryable(fmt.Errorf("reading body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &chain.RateLimitError{
			Endpoint:   c.name,
			RetryAfter: chain.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, chain.WrapRetryable(fmt.Errorf("status %d", resp.StatusCode))
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

func (c *Client) wrapErr(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s: circuit open: %w", hwerr.ErrNetworkError, c.name, op, err)
	}
	return fmt.Errorf("%w: %s %s: %w", hwerr.ErrNetworkError, c.name, op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func itoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}
