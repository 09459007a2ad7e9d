package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shieldfi/walletmon/internal/solana"
)

// ---------------------------------------------------------------------------
// Jupiter price API: last-resort USD price for a mint.
// ---------------------------------------------------------------------------

const (
	defaultPriceURL = "https://lite-api.jup.ag/price/v2"

	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// PriceClient fetches mint prices quoted in USDC.
type PriceClient struct {
	priceURL   string
	httpClient *http.Client

	requests   atomic.Int64
	errorCount atomic.Int64

	consecutiveErrors atomic.Int64
	circuitOpen       atomic.Bool
}

// NewPriceClient creates a client. An empty priceURL uses the public endpoint.
func NewPriceClient(priceURL string, timeout time.Duration) *PriceClient {
	if priceURL == "" {
		priceURL = defaultPriceURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PriceClient{
		priceURL:   priceURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// priceResponse is the price v2 body. Prices are decimal strings and
// unknown mints map to null.
type priceResponse struct {
	Data map[string]*struct {
		ID    string          `json:"id"`
		Type  string          `json:"type"`
		Price decimal.Decimal `json:"price"`
	} `json:"data"`
}

// Price returns the USD price of one mint.
func (c *PriceClient) Price(ctx context.Context, mint string) (decimal.Decimal, error) {
	prices, err := c.Prices(ctx, []string{mint})
	if err != nil {
		return decimal.Zero, err
	}
	p, ok := prices[mint]
	if !ok {
		return decimal.Zero, fmt.Errorf("jupiter: price not found for %s", mint)
	}
	return p, nil
}

// Prices looks up several mints in one request. Mints without a positive
// price are absent from the result.
func (c *PriceClient) Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error) {
	if c.circuitOpen.Load() {
		return nil, fmt.Errorf("jupiter: circuit breaker open")
	}
	if len(mints) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	queryURL, err := url.Parse(c.priceURL)
	if err != nil {
		return nil, fmt.Errorf("jupiter: parse URL: %w", err)
	}
	q := queryURL.Query()
	q.Set("ids", strings.Join(mints, ","))
	q.Set("vsToken", string(solana.USDCMint))
	queryURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("jupiter: create price request: %w", err)
	}

	c.requests.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("jupiter: price HTTP error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError()
		return nil, fmt.Errorf("jupiter: read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.recordError()
		return nil, fmt.Errorf("jupiter: price HTTP %d", resp.StatusCode)
	}

	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.recordError()
		return nil, fmt.Errorf("jupiter: parse price: %w", err)
	}
	c.consecutiveErrors.Store(0)

	out := make(map[string]decimal.Decimal, len(parsed.Data))
	for mint, d := range parsed.Data {
		if d != nil && d.Price.IsPositive() {
			out[mint] = d.Price
		}
	}
	return out, nil
}

// recordError opens the breaker after breakerThreshold consecutive failures.
func (c *PriceClient) recordError() {
	c.errorCount.Add(1)
	count := c.consecutiveErrors.Add(1)
	if count < breakerThreshold {
		return
	}
	if c.circuitOpen.CompareAndSwap(false, true) {
		log.Error().Int64("errors", count).Msg("jupiter: CIRCUIT BREAKER OPEN")
		time.AfterFunc(breakerCooldown, func() {
			c.circuitOpen.Store(false)
			c.consecutiveErrors.Store(0)
			log.Info().Msg("jupiter: circuit breaker reset")
		})
	}
}

type PriceStats struct {
	Requests    int64 `json:"requests"`
	ErrorCount  int64 `json:"error_count"`
	CircuitOpen bool  `json:"circuit_open"`
}

func (c *PriceClient) Stats() PriceStats {
	return PriceStats{
		Requests:    c.requests.Load(),
		ErrorCount:  c.errorCount.Load(),
		CircuitOpen: c.circuitOpen.Load(),
	}
}
