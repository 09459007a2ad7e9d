package helius

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// EnhancedTransaction is a parsed transaction as returned by the enhanced
// transactions API and pushed by enhanced webhooks.
type EnhancedTransaction struct {
	Signature       string           `json:"signature"`
	Type            string           `json:"type"`
	Source          string           `json:"source"`
	Description     string           `json:"description"`
	Timestamp       int64            `json:"timestamp"`
	Fee             int64            `json:"fee"`
	FeePayer        string           `json:"feePayer"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	AccountData     []AccountData    `json:"accountData"`
}

type TokenTransfer struct {
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	Mint            string          `json:"mint"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
}

// NativeTransfer amounts are in lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}

// InvolvesTransfer reports whether addr sends or receives in any transfer.
func (tx *EnhancedTransaction) InvolvesTransfer(addr string) bool {
	for _, t := range tx.NativeTransfers {
		if t.FromUserAccount == addr || t.ToUserAccount == addr {
			return true
		}
	}
	for _, t := range tx.TokenTransfers {
		if t.FromUserAccount == addr || t.ToUserAccount == addr {
			return true
		}
	}
	return false
}

// Accounts lists every address the transaction touches, deduplicated in first-seen order.
func (tx *EnhancedTransaction) Accounts() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(a string) {
		if a == "" {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	add(tx.FeePayer)
	for _, d := range tx.AccountData {
		add(d.Account)
	}
	for _, t := range tx.NativeTransfers {
		add(t.FromUserAccount)
		add(t.ToUserAccount)
	}
	for _, t := range tx.TokenTransfers {
		add(t.FromUserAccount)
		add(t.ToUserAccount)
	}
	return out
}

// Mints lists the distinct token mints transferred.
func (tx *EnhancedTransaction) Mints() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, t := range tx.TokenTransfers {
		if _, ok := seen[t.Mint]; ok || t.Mint == "" {
			continue
		}
		seen[t.Mint] = struct{}{}
		out = append(out, t.Mint)
	}
	return out
}

// RecentTransactions returns up to limit transactions for address, newest first.
func (c *Client) RecentTransactions(ctx context.Context, address string, limit int) ([]EnhancedTransaction, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.endpoint(c.cfg.APIURL, "/v0/addresses/"+url.PathEscape(address)+"/transactions", q)

	var txs []EnhancedTransaction
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
