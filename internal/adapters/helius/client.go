package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shieldfi/walletmon/internal/solana"
)

// ---------------------------------------------------------------------------
// Helius client: DAS (JSON-RPC), enhanced transactions and webhooks (REST).
// Every request is metered through the shared rate limiter.
// ---------------------------------------------------------------------------

// ErrNoAPIKey is returned by every call when no API key is configured.
var ErrNoAPIKey = errors.New("helius: api key not configured")

// Config configures the Helius client.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	RPCURL  string        `yaml:"rpc_url"`
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		RPCURL:  "https://mainnet.helius-rpc.com",
		APIURL:  "https://api.helius.xyz",
		Timeout: 15 * time.Second,
	}
}

// Client talks to Helius. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    solana.Acquirer

	requests atomic.Int64
	failures atomic.Int64
}

// NewClient creates a client. limiter may be nil.
func NewClient(cfg Config, limiter solana.Acquirer) *Client {
	def := DefaultConfig()
	if cfg.RPCURL == "" {
		cfg.RPCURL = def.RPCURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = def.APIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// RPCEndpoint is the keyed JSON-RPC URL, usable as a chain RPC endpoint.
func (c *Client) RPCEndpoint() string {
	return c.endpoint(c.cfg.RPCURL, "/", nil)
}

func (c *Client) endpoint(base, path string, query url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = singleJoin(u.Path, path)
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("api-key", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func singleJoin(a, b string) string {
	switch {
	case a == "" || a == "/":
		return b
	case a[len(a)-1] == '/' && len(b) > 0 && b[0] == '/':
		return a + b[1:]
	default:
		return a + b
	}
}

// do performs one metered request. A nil body sends no payload; a nil out discards the response.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	if !c.Configured() {
		return ErrNoAPIKey
	}
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("helius: rate limit: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("helius: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("helius: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.requests.Add(1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failures.Add(1)
		return fmt.Errorf("helius: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.failures.Add(1)
		return fmt.Errorf("helius: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.failures.Add(1)
		return fmt.Errorf("helius: %s HTTP %d: %s", method, resp.StatusCode, truncate(string(data), 200))
	}

	log.Debug().Str("method", method).Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).Msg("helius: request")

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("helius: decode response: %w", err)
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// rpc issues a DAS JSON-RPC call and decodes result into out.
func (c *Client) rpc(ctx context.Context, method string, params, out any) error {
	var resp rpcResponse
	req := rpcRequest{JSONRPC: "2.0", ID: "walletmon", Method: method, Params: params}
	if err := c.do(ctx, http.MethodPost, c.RPCEndpoint(), req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("helius: %s: RPC error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("helius: %s: decode result: %w", method, err)
	}
	return nil
}

// Stats returns request counters.
type Stats struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

func (c *Client) Stats() Stats {
	return Stats{Requests: c.requests.Load(), Failures: c.failures.Load()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
