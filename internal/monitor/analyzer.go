package monitor

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/shieldfi/walletmon/internal/adapters/helius"
)

// AlertType names the condition an alert reports.
type AlertType string

const (
	AlertLargeOutflow      AlertType = "large_outflow"
	AlertNewApproval       AlertType = "new_approval"
	AlertRapidTransactions AlertType = "rapid_transactions"
	AlertNewTokenReceived  AlertType = "new_token_received"
	AlertApprovalRevoked   AlertType = "approval_revoked"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one detected condition on one transaction.
type Alert struct {
	Type          AlertType `json:"type"`
	Severity      Severity  `json:"severity"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	TxSignature   string    `json:"tx_signature"`
	WalletAddress string    `json:"wallet_address"`
}

var (
	lamportsPerSOL       = decimal.New(1, 9)
	largeOutflowSOL      = decimal.NewFromInt(1)
	criticalOutflowSOL   = decimal.NewFromInt(10)
	tokenOutflowMinimum  = decimal.NewFromInt(100)
	rapidWindowSeconds   = int64(60)
	rapidMinTransactions = 3
)

// AnalyzeTransaction inspects one transaction from the point of view of wallet.
// names maps mint to display name; missing mints fall back to a short mint.
func AnalyzeTransaction(tx helius.EnhancedTransaction, wallet string, names map[string]string) []Alert {
	var alerts []Alert
	emit := func(t AlertType, sev Severity, title, msg string) {
		alerts = append(alerts, Alert{
			Type:          t,
			Severity:      sev,
			Title:         title,
			Message:       msg,
			TxSignature:   tx.Signature,
			WalletAddress: wallet,
		})
	}

	for _, nt := range tx.NativeTransfers {
		if nt.FromUserAccount != wallet || nt.Amount <= 0 {
			continue
		}
		sol := decimal.NewFromInt(nt.Amount).Div(lamportsPerSOL)
		if !sol.GreaterThan(largeOutflowSOL) {
			continue
		}
		sev := SeverityWarning
		if sol.GreaterThan(criticalOutflowSOL) {
			sev = SeverityCritical
		}
		emit(AlertLargeOutflow, sev, "Large SOL Outflow",
			fmt.Sprintf("%s SOL sent to %s", sol.StringFixed(4), shortAddr(nt.ToUserAccount)))
	}

	for _, tt := range tx.TokenTransfers {
		if tt.FromUserAccount == wallet && tt.TokenAmount.GreaterThan(tokenOutflowMinimum) {
			emit(AlertLargeOutflow, SeverityWarning, "Token Outflow Detected",
				fmt.Sprintf("%s %s sent to %s", tt.TokenAmount.String(), tokenName(tt.Mint, names), shortAddr(tt.ToUserAccount)))
		}
		// Swap legs come back to the wallet; only unsolicited inflows count.
		if tt.ToUserAccount == wallet && tt.FromUserAccount != wallet && tx.Type != "SWAP" {
			emit(AlertNewTokenReceived, SeverityInfo, "New Token Received",
				fmt.Sprintf("Received %s %s", tt.TokenAmount.String(), tokenName(tt.Mint, names)))
		}
	}

	switch tx.Type {
	case "APPROVE", "APPROVE_CHECKED":
		emit(AlertNewApproval, SeverityWarning, "New Token Approval",
			orDefault(tx.Description, "A new token approval was granted"))
	case "REVOKE":
		emit(AlertApprovalRevoked, SeverityInfo, "Approval Revoked",
			orDefault(tx.Description, "A token approval was revoked"))
	}

	return alerts
}

// DetectRapidTransactions flags a burst: the three newest transactions that
// move value to or from wallet all fall within 60 seconds.
func DetectRapidTransactions(txs []helius.EnhancedTransaction, wallet string) *Alert {
	if len(txs) < rapidMinTransactions {
		return nil
	}

	var timestamps []int64
	for i := range txs {
		if txs[i].InvolvesTransfer(wallet) {
			timestamps = append(timestamps, txs[i].Timestamp)
		}
	}
	if len(timestamps) < rapidMinTransactions {
		return nil
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] > timestamps[j] })

	span := timestamps[0] - timestamps[rapidMinTransactions-1]
	if span > rapidWindowSeconds {
		return nil
	}
	return &Alert{
		Type:          AlertRapidTransactions,
		Severity:      SeverityCritical,
		Title:         "Rapid Transaction Activity",
		Message:       fmt.Sprintf("%d transactions in %d seconds, possible wallet drain", len(timestamps), span),
		TxSignature:   txs[0].Signature,
		WalletAddress: wallet,
	}
}

// NewTransactions returns the transactions newer than cursor. txs is newest
// first. When the cursor is empty or has fallen out of the window, every
// transaction is treated as new.
func NewTransactions(txs []helius.EnhancedTransaction, cursor string) []helius.EnhancedTransaction {
	if cursor == "" {
		return txs
	}
	for i := range txs {
		if txs[i].Signature == cursor {
			return txs[:i]
		}
	}
	return txs
}

func tokenName(mint string, names map[string]string) string {
	if n, ok := names[mint]; ok && n != "" {
		return n
	}
	if len(mint) > 8 {
		return mint[:8] + "..."
	}
	return mint
}

func shortAddr(a string) string {
	if a == "" {
		a = "unknown"
	}
	if len(a) <= 8 {
		return a
	}
	return a[:4] + "..." + a[len(a)-4:]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
