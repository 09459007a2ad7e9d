package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/shieldfi/walletmon/internal/cache"
	"github.com/shieldfi/walletmon/internal/metadata"
	"github.com/shieldfi/walletmon/internal/observability"
	"github.com/shieldfi/walletmon/internal/risk"
	"github.com/shieldfi/walletmon/internal/solana"
	"github.com/shieldfi/walletmon/internal/storage"
)

// ---------------------------------------------------------------------------
// Wallet Scanner: enumerates token accounts and turns delegations into
// scored approvals.
// ---------------------------------------------------------------------------

// ErrInvalidAddress is returned before any outbound call when the address
// is not a base58 32-byte public key.
var ErrInvalidAddress = errors.New("scanner: invalid wallet address")

// NativeMint is the sentinel mint of the synthetic SOL balance line.
const NativeMint = "native"

const smallBalanceThreshold = 1_000_000

// MetadataResolver resolves token metadata for a set of mints.
type MetadataResolver interface {
	Resolve(ctx context.Context, mints []string) map[string]metadata.TokenMeta
}

// Deps wires the scanner's collaborators. Secondary, Cache, Store and
// Analyzer are optional.
type Deps struct {
	Primary   solana.RPCClient
	Secondary solana.RPCClient
	Metadata  MetadataResolver
	Cache     *cache.ResultCache[*Snapshot]
	Store     storage.Store
	Analyzer  *risk.Analyzer
}

// Scanner looks up and scores wallet approvals and balances.
type Scanner struct {
	primary   solana.RPCClient
	secondary solana.RPCClient
	metadata  MetadataResolver
	results   *cache.ResultCache[*Snapshot]
	store     storage.Store
	analyzer  *risk.Analyzer
	now       func() time.Time

	// Stats.
	lookups   atomic.Int64
	scans     atomic.Int64
	failovers atomic.Int64
	failures  atomic.Int64
}

// New creates a scanner.
func New(deps Deps) *Scanner {
	return &Scanner{
		primary:   deps.Primary,
		secondary: deps.Secondary,
		metadata:  deps.Metadata,
		results:   deps.Cache,
		store:     deps.Store,
		analyzer:  deps.Analyzer,
		now:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Snapshot types
// ---------------------------------------------------------------------------

// Approval is one active delegation, scored.
type Approval struct {
	TokenAccount    string      `json:"token_account"`
	Mint            string      `json:"mint"`
	Spender         string      `json:"spender"`
	DelegatedAmount string      `json:"delegated_amount"`
	OwnerBalance    string      `json:"owner_balance"`
	IsUnlimited     bool        `json:"is_unlimited"`
	Symbol          string      `json:"symbol,omitempty"`
	Icon            string      `json:"icon,omitempty"`
	Risk            risk.Result `json:"risk"`
}

// Classification buckets a balance line.
type Classification string

const (
	ClassVerified   Classification = "verified"
	ClassUnknown    Classification = "unknown"
	ClassSuspicious Classification = "suspicious"
)

// BalanceLine is one non-zero holding. The native SOL line uses NativeMint.
type BalanceLine struct {
	Mint           string           `json:"mint"`
	Symbol         string           `json:"symbol,omitempty"`
	Icon           string           `json:"icon,omitempty"`
	RawBalance     string           `json:"raw_balance"`
	HumanBalance   decimal.Decimal  `json:"human_balance"`
	Decimals       int              `json:"decimals"`
	USDValue       *decimal.Decimal `json:"usd_value,omitempty"`
	Classification Classification   `json:"classification"`
	Flags          []string         `json:"flags,omitempty"`
}

// Snapshot is the result of one wallet lookup.
type Snapshot struct {
	Address     string        `json:"address"`
	Approvals   []Approval    `json:"approvals"`
	Balances    []BalanceLine `json:"balances"`
	WalletScore risk.Result   `json:"wallet_score"`
	ScannedAt   time.Time     `json:"scanned_at"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// LookupWalletApprovals returns a cached or freshly built snapshot.
func (s *Scanner) LookupWalletApprovals(ctx context.Context, address string) (*Snapshot, error) {
	owner, err := solana.ParsePubkey(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	s.lookups.Add(1)

	if s.results != nil {
		if snap, ok := s.results.Get(address); ok {
			observability.ScansTotal.WithLabelValues("lookup", "cached").Inc()
			return snap, nil
		}
	}

	start := time.Now()
	snap, err := s.buildSnapshot(ctx, owner)
	observability.ScanLatency.WithLabelValues("lookup").Observe(time.Since(start).Seconds())
	if err != nil {
		s.failures.Add(1)
		observability.ScansTotal.WithLabelValues("lookup", "error").Inc()
		return nil, err
	}
	observability.ScansTotal.WithLabelValues("lookup", "ok").Inc()

	if s.results != nil {
		s.results.Set(address, snap)
	}

	log.Info().
		Str("wallet", owner.Short()).
		Int("approvals", len(snap.Approvals)).
		Int("balances", len(snap.Balances)).
		Int("score", snap.WalletScore.Score).
		Dur("took", time.Since(start)).
		Msg("scanner: lookup complete")
	return snap, nil
}

// ScanWalletApprovals collects without the cache, upserts every approval and
// appends a risk record, also when the wallet has no approvals.
func (s *Scanner) ScanWalletApprovals(ctx context.Context, address string) ([]storage.Delegation, error) {
	owner, err := solana.ParsePubkey(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if s.store == nil {
		return nil, fmt.Errorf("scanner: no store configured")
	}
	s.scans.Add(1)

	start := time.Now()
	snap, err := s.buildSnapshot(ctx, owner)
	observability.ScanLatency.WithLabelValues("scan").Observe(time.Since(start).Seconds())
	if err != nil {
		s.failures.Add(1)
		observability.ScansTotal.WithLabelValues("scan", "error").Inc()
		return nil, err
	}

	scannedAt := s.now()
	out := make([]storage.Delegation, 0, len(snap.Approvals))
	for _, a := range snap.Approvals {
		d := storage.Delegation{
			WalletAddress:   address,
			TokenMint:       a.Mint,
			SpenderAddress:  a.Spender,
			DelegatedAmount: a.DelegatedAmount,
			OwnerBalance:    a.OwnerBalance,
			IsUnlimited:     a.IsUnlimited,
			RiskLevel:       string(a.Risk.Level),
			RiskScore:       a.Risk.Score,
			RiskFlags:       a.Risk.Flags,
			TokenSymbol:     a.Symbol,
			TokenIcon:       a.Icon,
			LastScanned:     scannedAt,
		}
		if err := s.store.UpsertDelegation(ctx, &d); err != nil {
			observability.ScansTotal.WithLabelValues("scan", "error").Inc()
			return nil, fmt.Errorf("scanner: persist delegation: %w", err)
		}
		out = append(out, d)
	}

	record := &storage.RiskRecord{
		WalletAddress: address,
		Score:         snap.WalletScore.Score,
		Level:         string(snap.WalletScore.Level),
		Flags:         snap.WalletScore.Flags,
		ApprovalCount: len(snap.Approvals),
		CreatedAt:     scannedAt,
	}
	if err := s.store.AppendRiskRecord(ctx, record); err != nil {
		observability.ScansTotal.WithLabelValues("scan", "error").Inc()
		return nil, fmt.Errorf("scanner: append risk record: %w", err)
	}

	observability.ScansTotal.WithLabelValues("scan", "ok").Inc()
	log.Info().
		Str("wallet", owner.Short()).
		Int("approvals", len(out)).
		Int("score", record.Score).
		Msg("scanner: scan persisted")
	return out, nil
}

// RiskAnalysis is a snapshot plus the token/spender risk report.
type RiskAnalysis struct {
	Snapshot *Snapshot         `json:"snapshot"`
	Report   risk.WalletReport `json:"report"`
}

// AnalyzeWalletRisk runs a lookup and feeds its non-verified holdings and
// spenders to the analyzer.
func (s *Scanner) AnalyzeWalletRisk(ctx context.Context, address string) (*RiskAnalysis, error) {
	if s.analyzer == nil {
		return nil, fmt.Errorf("scanner: no risk analyzer configured")
	}
	snap, err := s.LookupWalletApprovals(ctx, address)
	if err != nil {
		return nil, err
	}

	var tokens []risk.WalletToken
	for _, b := range snap.Balances {
		if b.Mint == NativeMint || b.Classification == ClassVerified {
			continue
		}
		tokens = append(tokens, risk.WalletToken{
			Mint:       b.Mint,
			Symbol:     b.Symbol,
			Suspicious: b.Classification == ClassSuspicious,
		})
	}
	spenders := make([]string, 0, len(snap.Approvals))
	for _, a := range snap.Approvals {
		spenders = append(spenders, a.Spender)
	}

	report := s.analyzer.AnalyzeWallet(ctx, tokens, spenders, len(snap.Approvals))
	return &RiskAnalysis{Snapshot: snap, Report: report}, nil
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

type collection struct {
	accounts []solana.TokenAccount
	lamports uint64
}

// collectWithFailover runs the collection on the primary endpoint, then
// once more on the secondary endpoint if any primary step failed.
func (s *Scanner) collectWithFailover(ctx context.Context, owner solana.Pubkey) (*collection, error) {
	col, err := collect(ctx, s.primary, owner)
	if err == nil {
		return col, nil
	}
	if s.secondary == nil {
		return nil, fmt.Errorf("scanner: primary endpoint: %w", err)
	}

	s.failovers.Add(1)
	log.Warn().Err(err).Str("wallet", owner.Short()).Msg("scanner: primary endpoint failed, retrying on fallback")

	col, fbErr := collect(ctx, s.secondary, owner)
	if fbErr != nil {
		return nil, fmt.Errorf("scanner: primary and fallback endpoints failed: %w", errors.Join(err, fbErr))
	}
	return col, nil
}

func collect(ctx context.Context, rpc solana.RPCClient, owner solana.Pubkey) (*collection, error) {
	if _, err := rpc.GetSlot(ctx); err != nil {
		return nil, fmt.Errorf("liveness probe: %w", err)
	}

	perProgram := make([][]solana.TokenAccount, len(solana.TokenPrograms))
	g, gctx := errgroup.WithContext(ctx)
	for i, program := range solana.TokenPrograms {
		g.Go(func() error {
			accts, err := rpc.GetTokenAccountsByOwner(gctx, owner, program)
			if err != nil {
				return fmt.Errorf("token accounts (%s): %w", program.Short(), err)
			}
			perProgram[i] = accts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lamports, err := rpc.GetBalance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}

	col := &collection{lamports: lamports}
	for _, accts := range perProgram {
		col.accounts = append(col.accounts, accts...)
	}
	return col, nil
}

// ---------------------------------------------------------------------------
// Snapshot assembly
// ---------------------------------------------------------------------------

func (s *Scanner) buildSnapshot(ctx context.Context, owner solana.Pubkey) (*Snapshot, error) {
	col, err := s.collectWithFailover(ctx, owner)
	if err != nil {
		return nil, err
	}

	var delegated, held []solana.TokenAccount
	mints := []string{string(solana.SOLMint)}
	for _, a := range col.accounts {
		if a.HasDelegate() {
			delegated = append(delegated, a)
			mints = append(mints, string(a.Mint))
		}
		if a.Amount > 0 {
			held = append(held, a)
			mints = append(mints, string(a.Mint))
		}
	}

	metas := map[string]metadata.TokenMeta{}
	if s.metadata != nil {
		metas = s.metadata.Resolve(ctx, mints)
	}

	approvals := buildApprovals(delegated, metas)
	results := make([]risk.Result, len(approvals))
	for i, a := range approvals {
		results[i] = a.Risk
	}

	return &Snapshot{
		Address:     string(owner),
		Approvals:   approvals,
		Balances:    buildBalances(col.lamports, held, metas),
		WalletScore: risk.ScoreWallet(results),
		ScannedAt:   s.now(),
	}, nil
}

func buildApprovals(delegated []solana.TokenAccount, metas map[string]metadata.TokenMeta) []Approval {
	approvals := make([]Approval, 0, len(delegated))
	for _, a := range delegated {
		amount := strconv.FormatUint(a.DelegatedAmount, 10)
		balance := strconv.FormatUint(a.Amount, 10)
		unlimited := risk.IsUnlimited(amount)
		meta := metas[string(a.Mint)]

		approvals = append(approvals, Approval{
			TokenAccount:    string(a.Address),
			Mint:            string(a.Mint),
			Spender:         string(a.Delegate),
			DelegatedAmount: amount,
			OwnerBalance:    balance,
			IsUnlimited:     unlimited,
			Symbol:          meta.Symbol,
			Icon:            meta.Icon,
			Risk:            risk.ScoreApproval(amount, balance, unlimited, nil),
		})
	}
	sort.SliceStable(approvals, func(i, j int) bool {
		return approvals[i].Risk.Score > approvals[j].Risk.Score
	})
	return approvals
}

func buildBalances(lamports uint64, held []solana.TokenAccount, metas map[string]metadata.TokenMeta) []BalanceLine {
	lines := make([]BalanceLine, 0, len(held)+1)
	lines = append(lines, nativeLine(lamports, metas[string(solana.SOLMint)]))

	tokens := make([]BalanceLine, 0, len(held))
	for _, a := range held {
		tokens = append(tokens, tokenLine(a, metas[string(a.Mint)]))
	}
	sort.SliceStable(tokens, func(i, j int) bool {
		ri, rj := classRank(tokens[i].Classification), classRank(tokens[j].Classification)
		if ri != rj {
			return ri < rj
		}
		return usdOrZero(tokens[i].USDValue).GreaterThan(usdOrZero(tokens[j].USDValue))
	})
	return append(lines, tokens...)
}

func nativeLine(lamports uint64, wsol metadata.TokenMeta) BalanceLine {
	human := solana.LamportsToSOL(lamports)
	line := BalanceLine{
		Mint:           NativeMint,
		Symbol:         "SOL",
		Icon:           wsol.Icon,
		RawBalance:     strconv.FormatUint(lamports, 10),
		HumanBalance:   human,
		Decimals:       9,
		Classification: ClassUnknown,
	}
	if wsol.PriceUSD != nil {
		usd := human.Mul(*wsol.PriceUSD)
		line.USDValue = &usd
		if usd.IsPositive() {
			line.Classification = ClassVerified
		}
	}
	return line
}

// tokenLine prefers the decimals reported with the account over metadata,
// which only the primary provider fills in.
func tokenLine(a solana.TokenAccount, meta metadata.TokenMeta) BalanceLine {
	if a.HasDecimals {
		meta.Decimals = int(a.Decimals)
	}
	human := decimal.NewFromUint64(a.Amount).Shift(int32(-meta.Decimals))
	line := BalanceLine{
		Mint:         string(a.Mint),
		Symbol:       meta.Symbol,
		Icon:         meta.Icon,
		RawBalance:   strconv.FormatUint(a.Amount, 10),
		HumanBalance: human,
		Decimals:     meta.Decimals,
	}
	if meta.PriceUSD != nil {
		usd := human.Mul(*meta.PriceUSD)
		line.USDValue = &usd
	}
	line.Flags = signals(a, meta)
	line.Classification = classify(line.USDValue, len(line.Flags))
	return line
}

// signals lists the negative indicators of a holding.
func signals(a solana.TokenAccount, meta metadata.TokenMeta) []string {
	var flags []string
	if meta.Decimals == 0 && a.Amount < smallBalanceThreshold {
		flags = append(flags, "Zero decimals with small balance")
	}
	if meta.Symbol != "" && risk.Impersonates(meta.Symbol, string(a.Mint)) {
		flags = append(flags, fmt.Sprintf("Symbol impersonates %s", meta.Symbol))
	}
	if risk.HasNonASCII(meta.Symbol) {
		flags = append(flags, "Non-ASCII characters in symbol")
	}
	return flags
}

// classify: two or more signals is suspicious; otherwise a positive USD
// value is verified and anything else unknown.
func classify(usd *decimal.Decimal, signalCount int) Classification {
	switch {
	case signalCount >= 2:
		return ClassSuspicious
	case usd != nil && usd.IsPositive():
		return ClassVerified
	default:
		return ClassUnknown
	}
}

func classRank(c Classification) int {
	switch c {
	case ClassVerified:
		return 0
	case ClassUnknown:
		return 1
	default:
		return 2
	}
}

func usdOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}

// ScannerStats returns scanner statistics.
type ScannerStats struct {
	Lookups   int64 `json:"lookups"`
	Scans     int64 `json:"scans"`
	Failovers int64 `json:"failovers"`
	Failures  int64 `json:"failures"`
}

func (s *Scanner) Stats() ScannerStats {
	return ScannerStats{
		Lookups:   s.lookups.Load(),
		Scans:     s.scans.Load(),
		Failovers: s.failovers.Load(),
		Failures:  s.failures.Load(),
	}
}
