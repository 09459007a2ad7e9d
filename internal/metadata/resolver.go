package metadata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shieldfi/walletmon/internal/adapters/dexscreener"
	"github.com/shieldfi/walletmon/internal/adapters/helius"
	"github.com/shieldfi/walletmon/internal/observability"
)

// TokenMeta is what the resolver knows about a mint. Only Mint and
// Decimals are always set; Decimals is 0 when unknown.
type TokenMeta struct {
	Mint     string           `json:"mint"`
	Symbol   string           `json:"symbol,omitempty"`
	Icon     string           `json:"icon,omitempty"`
	Decimals int              `json:"decimals"`
	PriceUSD *decimal.Decimal `json:"price_usd,omitempty"`
}

// AssetBatcher is the primary provider (DAS).
type AssetBatcher interface {
	GetAssetBatch(ctx context.Context, ids []string) ([]helius.Asset, error)
}

// TokenLookup is the secondary per-mint provider.
type TokenLookup interface {
	Token(ctx context.Context, mint string) (*dexscreener.TokenInfo, error)
}

// PriceLookup is the price-only tertiary provider.
type PriceLookup interface {
	Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error)
}

// Config tunes the fallback providers.
type Config struct {
	SecondaryDelay  time.Duration `yaml:"secondary_delay"`
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
}

func DefaultConfig() Config {
	return Config{
		SecondaryDelay:  250 * time.Millisecond,
		FallbackTimeout: 5 * time.Second,
	}
}

// Resolver resolves mint metadata through primary -> secondary -> tertiary
// providers and remembers every answer for the life of the process.
type Resolver struct {
	primary   AssetBatcher
	secondary TokenLookup
	tertiary  PriceLookup
	cfg       Config

	mu    sync.RWMutex
	cache map[string]TokenMeta
}

// NewResolver creates a resolver. Any provider may be nil.
func NewResolver(primary AssetBatcher, secondary TokenLookup, tertiary PriceLookup, cfg Config) *Resolver {
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = DefaultConfig().FallbackTimeout
	}
	return &Resolver{
		primary:   primary,
		secondary: secondary,
		tertiary:  tertiary,
		cfg:       cfg,
		cache:     make(map[string]TokenMeta),
	}
}

// Resolve returns metadata for every requested mint. It never fails; mints
// no provider knows come back as empty entries.
func (r *Resolver) Resolve(ctx context.Context, mints []string) map[string]TokenMeta {
	out := make(map[string]TokenMeta, len(mints))
	var pending []string

	r.mu.RLock()
	for _, m := range dedupe(mints) {
		if meta, ok := r.cache[m]; ok {
			out[m] = meta
			continue
		}
		pending = append(pending, m)
	}
	r.mu.RUnlock()

	if hits := len(out); hits > 0 {
		observability.MetadataResolutions.WithLabelValues("cache", "hit").Add(float64(hits))
	}
	if len(pending) == 0 {
		return out
	}

	found := r.fromPrimary(ctx, pending)
	r.fromSecondary(ctx, pending, found)
	r.fromTertiary(ctx, pending, found)

	r.mu.Lock()
	for _, m := range pending {
		meta, ok := found[m]
		if !ok {
			meta = TokenMeta{Mint: m}
			observability.MetadataResolutions.WithLabelValues("none", "unresolved").Inc()
		}
		r.cache[m] = meta
		out[m] = meta
	}
	r.mu.Unlock()

	return out
}

// Names maps each mint to its symbol, or a shortened mint when unknown.
func (r *Resolver) Names(ctx context.Context, mints []string) map[string]string {
	metas := r.Resolve(ctx, mints)
	names := make(map[string]string, len(metas))
	for m, meta := range metas {
		names[m] = DisplayName(meta)
	}
	return names
}

// DisplayName is the symbol, else the first 4 and last 4 characters of the mint.
func DisplayName(meta TokenMeta) string {
	if meta.Symbol != "" {
		return meta.Symbol
	}
	if len(meta.Mint) <= 8 {
		return meta.Mint
	}
	return meta.Mint[:4] + "..." + meta.Mint[len(meta.Mint)-4:]
}

// Cached returns a cached entry without any provider call.
func (r *Resolver) Cached(mint string) (TokenMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.cache[mint]
	return meta, ok
}

func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// -----------------------------------------------------------------------
// Providers
// -----------------------------------------------------------------------

func (r *Resolver) fromPrimary(ctx context.Context, mints []string) map[string]TokenMeta {
	found := make(map[string]TokenMeta, len(mints))
	if r.primary == nil {
		return found
	}

	assets, err := r.primary.GetAssetBatch(ctx, mints)
	if err != nil {
		observability.MetadataResolutions.WithLabelValues("das", "error").Inc()
		log.Warn().Err(err).Int("mints", len(mints)).Int("partial", len(assets)).
			Msg("metadata: DAS batch failed, falling back")
	}
	for i := range assets {
		a := &assets[i]
		meta := TokenMeta{Mint: a.ID, Symbol: a.Symbol(), Icon: a.Icon()}
		if d, ok := a.Decimals(); ok {
			meta.Decimals = d
		}
		if p, ok := a.PriceUSD(); ok {
			meta.PriceUSD = &p
		}
		found[a.ID] = meta
	}
	if len(assets) > 0 {
		observability.MetadataResolutions.WithLabelValues("das", "ok").Add(float64(len(assets)))
	}
	return found
}

// fromSecondary queries one mint at a time for mints the primary missed entirely.
func (r *Resolver) fromSecondary(ctx context.Context, mints []string, found map[string]TokenMeta) {
	if r.secondary == nil {
		return
	}
	first := true
	for _, m := range mints {
		if _, ok := found[m]; ok {
			continue
		}
		if !first && r.cfg.SecondaryDelay > 0 {
			select {
			case <-time.After(r.cfg.SecondaryDelay):
			case <-ctx.Done():
				return
			}
		}
		first = false

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.FallbackTimeout)
		info, err := r.secondary.Token(callCtx, m)
		cancel()
		if err != nil {
			observability.MetadataResolutions.WithLabelValues("dexscreener", "error").Inc()
			log.Debug().Err(err).Str("mint", m).Msg("metadata: secondary lookup failed")
			continue
		}
		price := info.PriceUSD
		found[m] = TokenMeta{Mint: m, Symbol: info.Symbol, Icon: info.Icon, PriceUSD: &price}
		observability.MetadataResolutions.WithLabelValues("dexscreener", "ok").Inc()
	}
}

// fromTertiary fills prices for anything still unpriced in one batched call.
func (r *Resolver) fromTertiary(ctx context.Context, mints []string, found map[string]TokenMeta) {
	if r.tertiary == nil {
		return
	}
	var unpriced []string
	for _, m := range mints {
		if meta, ok := found[m]; !ok || meta.PriceUSD == nil {
			unpriced = append(unpriced, m)
		}
	}
	if len(unpriced) == 0 {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.FallbackTimeout)
	defer cancel()
	prices, err := r.tertiary.Prices(callCtx, unpriced)
	if err != nil {
		observability.MetadataResolutions.WithLabelValues("jupiter", "error").Inc()
		log.Debug().Err(err).Int("mints", len(unpriced)).Msg("metadata: price fallback failed")
		return
	}
	for _, m := range unpriced {
		p, ok := prices[m]
		if !ok {
			continue
		}
		meta, exists := found[m]
		if !exists {
			meta = TokenMeta{Mint: m}
		}
		meta.PriceUSD = &p
		found[m] = meta
		observability.MetadataResolutions.WithLabelValues("jupiter", "ok").Inc()
	}
}

func dedupe(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
