package helius

import (
	"context"

	"github.com/shopspring/decimal"
)

// maxBatchIDs is the DAS getAssetBatch limit per request.
const maxBatchIDs = 1000

// Asset is a partial DAS asset record. Every field may be absent;
// use the accessor methods, which apply the field fallbacks.
type Asset struct {
	ID              string        `json:"id"`
	Interface       string        `json:"interface"`
	Content         *AssetContent `json:"content"`
	TokenInfo       *TokenInfo    `json:"token_info"`
	Authorities     []Authority   `json:"authorities"`
	Mutable         *bool         `json:"mutable"`
	MintAuthority   string        `json:"mint_authority"`
	FreezeAuthority string        `json:"freeze_authority"`
}

type AssetContent struct {
	Metadata *ContentMetadata `json:"metadata"`
	Links    *ContentLinks    `json:"links"`
	Files    []ContentFile    `json:"files"`
	Mutable  *bool            `json:"mutable"`
}

type ContentMetadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

type ContentLinks struct {
	Image string `json:"image"`
}

type ContentFile struct {
	URI  string `json:"uri"`
	Mime string `json:"mime"`
}

type TokenInfo struct {
	Symbol          string           `json:"symbol"`
	Decimals        *int             `json:"decimals"`
	Supply          *decimal.Decimal `json:"supply"`
	MintAuthority   string           `json:"mint_authority"`
	FreezeAuthority string           `json:"freeze_authority"`
	TokenProgram    string           `json:"token_program"`
	PriceInfo       *PriceInfo       `json:"price_info"`
}

type PriceInfo struct {
	PricePerToken *decimal.Decimal `json:"price_per_token"`
	Currency      string           `json:"currency"`
}

type Authority struct {
	Address string   `json:"address"`
	Scopes  []string `json:"scopes"`
}

func (a *Asset) Name() string {
	if a.Content != nil && a.Content.Metadata != nil {
		return a.Content.Metadata.Name
	}
	return ""
}

// Symbol prefers content.metadata.symbol, then token_info.symbol.
func (a *Asset) Symbol() string {
	if a.Content != nil && a.Content.Metadata != nil && a.Content.Metadata.Symbol != "" {
		return a.Content.Metadata.Symbol
	}
	if a.TokenInfo != nil {
		return a.TokenInfo.Symbol
	}
	return ""
}

func (a *Asset) Description() string {
	if a.Content != nil && a.Content.Metadata != nil {
		return a.Content.Metadata.Description
	}
	return ""
}

// Icon prefers content.links.image, then the first file URI.
func (a *Asset) Icon() string {
	if a.Content == nil {
		return ""
	}
	if a.Content.Links != nil && a.Content.Links.Image != "" {
		return a.Content.Links.Image
	}
	if len(a.Content.Files) > 0 {
		return a.Content.Files[0].URI
	}
	return ""
}

func (a *Asset) Decimals() (int, bool) {
	if a.TokenInfo == nil || a.TokenInfo.Decimals == nil {
		return 0, false
	}
	return *a.TokenInfo.Decimals, true
}

// Supply is the raw (base unit) supply.
func (a *Asset) Supply() (decimal.Decimal, bool) {
	if a.TokenInfo == nil || a.TokenInfo.Supply == nil {
		return decimal.Zero, false
	}
	return *a.TokenInfo.Supply, true
}

// PriceUSD reports only positive prices.
func (a *Asset) PriceUSD() (decimal.Decimal, bool) {
	if a.TokenInfo == nil || a.TokenInfo.PriceInfo == nil || a.TokenInfo.PriceInfo.PricePerToken == nil {
		return decimal.Zero, false
	}
	p := *a.TokenInfo.PriceInfo.PricePerToken
	if !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

func (a *Asset) MintAuthorityAddress() string {
	if a.MintAuthority != "" {
		return a.MintAuthority
	}
	if a.TokenInfo != nil {
		return a.TokenInfo.MintAuthority
	}
	return ""
}

func (a *Asset) FreezeAuthorityAddress() string {
	if a.FreezeAuthority != "" {
		return a.FreezeAuthority
	}
	if a.TokenInfo != nil {
		return a.TokenInfo.FreezeAuthority
	}
	return ""
}

// IsMutable defaults to true when neither flag is present.
func (a *Asset) IsMutable() bool {
	if a.Mutable != nil {
		return *a.Mutable
	}
	if a.Content != nil && a.Content.Mutable != nil {
		return *a.Content.Mutable
	}
	return true
}

var displayOptions = map[string]bool{"showFungible": true}

// GetAsset fetches one asset. A nil asset with a nil error means not found.
func (c *Client) GetAsset(ctx context.Context, id string) (*Asset, error) {
	var asset *Asset
	params := map[string]any{"id": id, "displayOptions": displayOptions}
	if err := c.rpc(ctx, "getAsset", params, &asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// GetAssetBatch fetches assets in chunks of 1000. Unknown ids are omitted.
// On a chunk failure the assets gathered so far are returned with the error.
func (c *Client) GetAssetBatch(ctx context.Context, ids []string) ([]Asset, error) {
	out := make([]Asset, 0, len(ids))
	for start := 0; start < len(ids); start += maxBatchIDs {
		end := min(start+maxBatchIDs, len(ids))

		var chunk []*Asset
		params := map[string]any{"ids": ids[start:end], "displayOptions": displayOptions}
		if err := c.rpc(ctx, "getAssetBatch", params, &chunk); err != nil {
			return out, err
		}
		for _, a := range chunk {
			if a != nil && a.ID != "" {
				out = append(out, *a)
			}
		}
	}
	return out, nil
}
