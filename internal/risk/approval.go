package risk

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Level is a risk bucket. Approval and wallet scores use LOW..CRITICAL;
// token and spender analysis additionally uses SAFE.
type Level string

const (
	LevelSafe     Level = "SAFE"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// MaxU64 is the delegated amount of an unlimited approval.
const MaxU64 = "18446744073709551615"

const (
	baselineScore     = 25
	unlimitedScore    = 75
	highRatioScore    = 50
	oldUnlimitedScore = 90
	oldApprovalAge    = 90 * 24 * time.Hour
)

var highRatio = decimal.NewFromFloat(0.8)

// Result is the outcome of scoring one approval or a whole wallet.
type Result struct {
	Level Level    `json:"level"`
	Score int      `json:"score"`
	Flags []string `json:"flags"`
}

// IsUnlimited compares the canonical decimal string against 2^64-1.
// No numeric conversion is involved.
func IsUnlimited(amount string) bool {
	canonical := strings.TrimLeft(strings.TrimSpace(amount), "0")
	return canonical == MaxU64
}

// ScoreApproval scores a single active delegation. amount and balance are
// base-unit integer strings; grantedAt may be nil when unknown.
func ScoreApproval(amount, balance string, isUnlimited bool, grantedAt *time.Time) Result {
	score := baselineScore
	var flags []string

	if isUnlimited {
		score = unlimitedScore
		flags = append(flags, "Unlimited approval")
	} else if ratioAbove(amount, balance, highRatio) {
		score = max(score, highRatioScore)
		flags = append(flags, "Approved >80% of balance")
	}

	if grantedAt != nil && isUnlimited && time.Since(*grantedAt) > oldApprovalAge {
		score = oldUnlimitedScore
		flags = append(flags, "Old unlimited approval (>90 days)")
	}

	if len(flags) == 0 {
		flags = append(flags, "Active delegation")
	}
	score = clamp(score)
	return Result{Level: ApprovalLevel(score), Score: score, Flags: flags}
}

// ratioAbove reports amount/balance > threshold, false when balance is zero or unparsable.
func ratioAbove(amount, balance string, threshold decimal.Decimal) bool {
	bal, err := decimal.NewFromString(balance)
	if err != nil || !bal.IsPositive() {
		return false
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return false
	}
	return amt.GreaterThan(bal.Mul(threshold))
}

// ScoreWallet aggregates per-approval results. The count penalty saturates at 20.
func ScoreWallet(results []Result) Result {
	if len(results) == 0 {
		return Result{Level: LevelLow, Score: 0, Flags: []string{"No approvals"}}
	}

	var sum float64
	for _, r := range results {
		sum += float64(r.Score)
	}
	n := len(results)
	mean := sum / float64(n)
	penalty := math.Min(float64(3*n), 20)
	score := clamp(int(math.Round(mean + penalty)))

	return Result{
		Level: ApprovalLevel(score),
		Score: score,
		Flags: []string{fmt.Sprintf("%d active approval(s)", n)},
	}
}

// ApprovalLevel maps a score to LOW..CRITICAL.
func ApprovalLevel(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// TokenLevel maps a token/spender/wallet-aggregate score to SAFE..CRITICAL.
func TokenLevel(score int) Level {
	switch {
	case score <= 5:
		return LevelSafe
	case score <= 25:
		return LevelLow
	case score <= 50:
		return LevelMedium
	case score <= 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}

func clamp(score int) int {
	return min(max(score, 0), 100)
}
