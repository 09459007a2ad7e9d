package risk

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shieldfi/walletmon/internal/adapters/helius"
	"github.com/shieldfi/walletmon/internal/solana"
)

// ---------------------------------------------------------------------------
// Token / spender / wallet analysis: additive flag model capped at 100.
// ---------------------------------------------------------------------------

const (
	maxTokensAnalyzed   = 20
	maxSpendersAnalyzed = 10
)

var absurdSupply = decimal.New(1, 15)

// AssetSource looks up DAS asset metadata. A nil asset with nil error means not found.
type AssetSource interface {
	GetAsset(ctx context.Context, id string) (*helius.Asset, error)
}

// AccountSource looks up raw account info.
type AccountSource interface {
	GetAccountInfo(ctx context.Context, account solana.Pubkey) (*solana.AccountInfo, error)
}

// Flag is one contributing signal.
type Flag struct {
	Category string `json:"category"`
	Signal   string `json:"signal"`
	Severity string `json:"severity"` // info|warning|danger
	Score    int    `json:"score"`
}

// TokenReport is the risk analysis for one mint.
type TokenReport struct {
	Mint            string `json:"mint"`
	Symbol          string `json:"symbol,omitempty"`
	Score           int    `json:"score"`
	Level           Level  `json:"level"`
	Flags           []Flag `json:"flags"`
	MintAuthority   string `json:"mint_authority,omitempty"`
	FreezeAuthority string `json:"freeze_authority,omitempty"`
}

// SpenderReport is the risk analysis for one delegate address.
type SpenderReport struct {
	Spender string `json:"spender"`
	Known   bool   `json:"known"`
	Label   string `json:"label,omitempty"`
	Score   int    `json:"score"`
	Flags   []Flag `json:"flags"`
}

// WalletToken is a non-verified, non-native balance line to analyze.
type WalletToken struct {
	Mint       string
	Symbol     string
	Suspicious bool
}

// WalletReport is the combined token + spender analysis of a wallet.
type WalletReport struct {
	Score    int             `json:"score"`
	Level    Level           `json:"level"`
	Tokens   []TokenReport   `json:"tokens"`
	Spenders []SpenderReport `json:"spenders"`
	Summary  []string        `json:"summary"`
}

// Analyzer runs the provider-backed token and spender checks.
type Analyzer struct {
	assets   AssetSource
	accounts AccountSource
}

func NewAnalyzer(assets AssetSource, accounts AccountSource) *Analyzer {
	return &Analyzer{assets: assets, accounts: accounts}
}

// AnalyzeToken scores a mint from its DAS metadata. Verified mints return SAFE without a lookup.
func (a *Analyzer) AnalyzeToken(ctx context.Context, mint string) TokenReport {
	if IsVerifiedMint(mint) {
		return TokenReport{
			Mint:  mint,
			Level: LevelSafe,
			Flags: []Flag{{Category: "verification", Signal: "Known verified token", Severity: "info"}},
		}
	}

	var flags []Flag
	asset, err := a.assets.GetAsset(ctx, mint)
	if err != nil {
		log.Debug().Err(err).Str("mint", short(mint)).Msg("risk: asset lookup failed")
		flags = append(flags, Flag{"analysis", "Failed to fetch token metadata", "warning", 15})
	} else if asset != nil {
		return scoreAsset(mint, asset)
	}

	flags = append(flags, Flag{"analysis", "Token not found in DAS index, may be very new or invalid", "warning", 20})
	score := sumFlags(flags)
	return TokenReport{Mint: mint, Score: score, Level: TokenLevel(score), Flags: flags}
}

func scoreAsset(mint string, asset *helius.Asset) TokenReport {
	var flags []Flag
	report := TokenReport{
		Mint:            mint,
		MintAuthority:   asset.MintAuthorityAddress(),
		FreezeAuthority: asset.FreezeAuthorityAddress(),
	}

	if report.MintAuthority != "" {
		flags = append(flags, Flag{"authority", "Mint authority active, creator can mint unlimited tokens", "warning", 20})
	}
	if report.FreezeAuthority != "" {
		flags = append(flags, Flag{"authority", "Freeze authority active, tokens can be frozen in your wallet", "warning", 15})
	}
	if asset.IsMutable() {
		flags = append(flags, Flag{"authority", "Metadata is mutable, token info can be changed", "info", 5})
	}

	rawSymbol := asset.Symbol()
	symbol := strings.ToUpper(rawSymbol)
	name := asset.Name()
	fake := Impersonates(symbol, mint)

	if fake {
		flags = append(flags, Flag{"identity", fmt.Sprintf("Impersonates known token %q", symbol), "danger", 35})
	}
	if HasNonASCII(name) || HasNonASCII(symbol) {
		flags = append(flags, Flag{"identity", "Contains non-ASCII characters (potential visual spoofing)", "danger", 25})
	}
	if name == "" && symbol == "" {
		flags = append(flags, Flag{"identity", "No name or symbol in metadata", "warning", 15})
	}
	if asset.Description() == "" {
		flags = append(flags, Flag{"identity", "No description in metadata", "info", 5})
	}

	supply, hasSupply := asset.Supply()
	decimals, hasDecimals := asset.Decimals()
	if hasSupply && hasDecimals {
		if supply.Shift(int32(-decimals)).GreaterThan(absurdSupply) {
			flags = append(flags, Flag{"supply", "Extremely large token supply (>1 quadrillion)", "warning", 10})
		}
		if decimals == 0 {
			flags = append(flags, Flag{"supply", "Zero decimal places (common in spam tokens)", "warning", 10})
		}
	}

	if _, ok := asset.PriceUSD(); !ok {
		flags = append(flags, Flag{"market", "No market price found, likely illiquid or worthless", "warning", 10})
	}

	report.Symbol = rawSymbol
	if fake {
		report.Symbol = "⚠ FAKE " + rawSymbol
	}
	report.Flags = flags
	report.Score = sumFlags(flags)
	report.Level = TokenLevel(report.Score)
	return report
}

// AnalyzeSpender classifies a delegate. Known programs return 0 without a lookup.
func (a *Analyzer) AnalyzeSpender(ctx context.Context, spender string) SpenderReport {
	if IsKnownProgram(spender) {
		return SpenderReport{Spender: spender, Known: true, Label: "Known DeFi program"}
	}

	var flag Flag
	info, err := a.accounts.GetAccountInfo(ctx, solana.Pubkey(spender))
	switch {
	case err != nil:
		log.Debug().Err(err).Str("spender", short(spender)).Msg("risk: account lookup failed")
		flag = Flag{"spender", "Could not verify spender account", "warning", 10}
	case info == nil || !info.Exists:
		flag = Flag{"spender", "Spender account does not exist on-chain", "danger", 30}
	case info.Executable:
		flag = Flag{"spender", "Spender is an executable program (unverified)", "warning", 10}
	default:
		flag = Flag{"spender", "Spender is a regular wallet (not a program)", "warning", 15}
	}

	flags := []Flag{flag}
	return SpenderReport{Spender: spender, Score: sumFlags(flags), Flags: flags}
}

// AnalyzeWallet combines token and spender analysis:
// 0.4*avg(token) + 0.4*avg(spender) + 5 per HIGH/CRITICAL token + 3 per suspicious balance.
// Tokens are capped at 20 (suspicious first) and unique spenders at 10.
func (a *Analyzer) AnalyzeWallet(ctx context.Context, tokens []WalletToken, spenders []string, approvalCount int) WalletReport {
	ordered := make([]WalletToken, 0, len(tokens))
	suspicious := 0
	for _, t := range tokens {
		if t.Suspicious {
			ordered = append(ordered, t)
			suspicious++
		}
	}
	for _, t := range tokens {
		if !t.Suspicious {
			ordered = append(ordered, t)
		}
	}
	if len(ordered) > maxTokensAnalyzed {
		ordered = ordered[:maxTokensAnalyzed]
	}

	report := WalletReport{}
	for _, t := range ordered {
		tr := a.AnalyzeToken(ctx, t.Mint)
		if tr.Symbol == "" {
			tr.Symbol = t.Symbol
		}
		report.Tokens = append(report.Tokens, tr)
	}

	for _, s := range uniqueFirst(spenders, maxSpendersAnalyzed) {
		report.Spenders = append(report.Spenders, a.AnalyzeSpender(ctx, s))
	}

	var tokenSum, spenderSum float64
	var dangerous []TokenReport
	for _, tr := range report.Tokens {
		tokenSum += float64(tr.Score)
		if tr.Level == LevelHigh || tr.Level == LevelCritical {
			dangerous = append(dangerous, tr)
		}
	}
	for _, sr := range report.Spenders {
		spenderSum += float64(sr.Score)
	}

	score := 0.4*avg(tokenSum, len(report.Tokens)) +
		0.4*avg(spenderSum, len(report.Spenders)) +
		float64(5*len(dangerous)) +
		float64(3*suspicious)
	report.Score = clamp(int(math.Round(score)))
	report.Level = TokenLevel(report.Score)
	report.Summary = summarize(report.Tokens, dangerous, suspicious, approvalCount)
	return report
}

func summarize(tokens, dangerous []TokenReport, suspicious, approvals int) []string {
	var lines []string
	if len(dangerous) > 0 {
		lines = append(lines, fmt.Sprintf("%s: %s", plural(len(dangerous), "high-risk token"), symbols(dangerous)))
	}
	if suspicious > 0 {
		lines = append(lines, plural(suspicious, "suspicious token")+" (likely spam)")
	}
	if approvals > 0 {
		lines = append(lines, plural(approvals, "active approval"))
	}

	var minters, freezers []TokenReport
	for _, t := range tokens {
		if t.MintAuthority != "" {
			minters = append(minters, t)
		}
		if t.FreezeAuthority != "" {
			freezers = append(freezers, t)
		}
	}
	if len(minters) > 0 {
		lines = append(lines, fmt.Sprintf("%s with active mint authority: %s", plural(len(minters), "token"), symbols(minters)))
	}
	if len(freezers) > 0 {
		lines = append(lines, fmt.Sprintf("%s with freeze authority: %s", plural(len(freezers), "token"), symbols(freezers)))
	}

	if len(lines) == 0 {
		return []string{"No significant risks detected."}
	}
	return lines
}

func symbols(reports []TokenReport) string {
	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.Symbol
		if names[i] == "" {
			names[i] = short(r.Mint) + "..."
		}
	}
	return strings.Join(names, ", ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func uniqueFirst(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

func sumFlags(flags []Flag) int {
	total := 0
	for _, f := range flags {
		total += f.Score
	}
	return clamp(total)
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func short(addr string) string {
	if len(addr) > 8 {
		return addr[:8]
	}
	return addr
}
