package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.dexscreener.com"

// ErrNoPairs is returned when the token has no priced pair.
var ErrNoPairs = errors.New("dexscreener: no priced pairs")

// TokenInfo is the best-effort view of a token taken from its deepest pair.
type TokenInfo struct {
	Mint         string
	Symbol       string
	Icon         string
	PriceUSD     decimal.Decimal
	LiquidityUSD decimal.Decimal
}

// Client queries the public DexScreener token endpoint. No API key.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL uses the public API.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pairsResponse struct {
	Pairs []struct {
		PriceUSD  string `json:"priceUsd"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		BaseToken struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		Info *struct {
			ImageURL string `json:"imageUrl"`
		} `json:"info"`
	} `json:"pairs"`
}

// Token returns the highest-liquidity priced pair with mint as its base token.
// Pairs quoting mint carry the other side's symbol and price, so they are skipped.
func (c *Client) Token(ctx context.Context, mint string) (*TokenInfo, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: HTTP error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener: HTTP %d", resp.StatusCode)
	}

	var result pairsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("dexscreener: parse response: %w", err)
	}

	var best *TokenInfo
	for _, p := range result.Pairs {
		if p.BaseToken.Address != mint {
			continue
		}
		price, err := decimal.NewFromString(p.PriceUSD)
		if err != nil || !price.IsPositive() {
			continue
		}
		liq := decimal.NewFromFloat(p.Liquidity.USD)
		if best != nil && !liq.GreaterThan(best.LiquidityUSD) {
			continue
		}
		info := &TokenInfo{
			Mint:         mint,
			Symbol:       p.BaseToken.Symbol,
			PriceUSD:     price,
			LiquidityUSD: liq,
		}
		if p.Info != nil {
			info.Icon = p.Info.ImageURL
		}
		best = info
	}
	if best == nil {
		return nil, ErrNoPairs
	}
	return best, nil
}
