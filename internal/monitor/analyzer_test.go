package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfi/walletmon/internal/adapters/helius"
)

const (
	walletA   = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB   = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	walletC   = "So11111111111111111111111111111111111111112"
	recipient = "DestinationWa11et9999"
	bonkMint  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func nativeTx(sig string, ts int64, from, to string, lamports int64) helius.EnhancedTransaction {
	return helius.EnhancedTransaction{
		Signature: sig,
		Timestamp: ts,
		FeePayer:  from,
		NativeTransfers: []helius.NativeTransfer{
			{FromUserAccount: from, ToUserAccount: to, Amount: lamports},
		},
	}
}

func tokenTx(sig, typ, from, to, mint string, amount int64) helius.EnhancedTransaction {
	return helius.EnhancedTransaction{
		Signature: sig,
		Type:      typ,
		TokenTransfers: []helius.TokenTransfer{
			{FromUserAccount: from, ToUserAccount: to, Mint: mint, TokenAmount: decimal.NewFromInt(amount)},
		},
	}
}

func TestAnalyzeTransaction_NativeOutflowThresholds(t *testing.T) {
	tests := []struct {
		name     string
		lamports int64
		want     Severity
		msg      string
	}{
		{"exactly one SOL", 1_000_000_000, "", ""},
		{"just over one SOL", 1_500_000_000, SeverityWarning, "1.5000 SOL sent to Dest...9999"},
		{"exactly ten SOL", 10_000_000_000, SeverityWarning, "10.0000 SOL sent to Dest...9999"},
		{"over ten SOL", 12_345_600_000, SeverityCritical, "12.3456 SOL sent to Dest...9999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := AnalyzeTransaction(nativeTx("sig", 1, walletA, recipient, tt.lamports), walletA, nil)
			if tt.want == "" {
				assert.Empty(t, alerts)
				return
			}
			require.Len(t, alerts, 1)
			a := alerts[0]
			assert.Equal(t, AlertLargeOutflow, a.Type)
			assert.Equal(t, tt.want, a.Severity)
			assert.Equal(t, "Large SOL Outflow", a.Title)
			assert.Equal(t, tt.msg, a.Message)
			assert.Equal(t, "sig", a.TxSignature)
			assert.Equal(t, walletA, a.WalletAddress)
		})
	}
}

func TestAnalyzeTransaction_InboundNativeIgnored(t *testing.T) {
	alerts := AnalyzeTransaction(nativeTx("sig", 1, recipient, walletA, 50_000_000_000), walletA, nil)
	assert.Empty(t, alerts)
}

func TestAnalyzeTransaction_TokenOutflow(t *testing.T) {
	alerts := AnalyzeTransaction(tokenTx("sig", "TRANSFER", walletA, recipient, bonkMint, 250), walletA,
		map[string]string{bonkMint: "BONK"})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLargeOutflow, alerts[0].Type)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "Token Outflow Detected", alerts[0].Title)
	assert.Equal(t, "250 BONK sent to Dest...9999", alerts[0].Message)

	// Unresolved mints fall back to a short mint.
	alerts = AnalyzeTransaction(tokenTx("sig", "TRANSFER", walletA, recipient, bonkMint, 250), walletA, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, "250 DezXAZ8z... sent to Dest...9999", alerts[0].Message)

	assert.Empty(t, AnalyzeTransaction(tokenTx("sig", "TRANSFER", walletA, recipient, bonkMint, 100), walletA, nil))
}

func TestAnalyzeTransaction_IncomingToken(t *testing.T) {
	alerts := AnalyzeTransaction(tokenTx("sig", "TRANSFER", recipient, walletA, bonkMint, 5), walletA,
		map[string]string{bonkMint: "BONK"})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNewTokenReceived, alerts[0].Type)
	assert.Equal(t, SeverityInfo, alerts[0].Severity)
	assert.Equal(t, "Received 5 BONK", alerts[0].Message)

	// Swap proceeds are not unsolicited.
	assert.Empty(t, AnalyzeTransaction(tokenTx("sig", "SWAP", recipient, walletA, bonkMint, 5), walletA, nil))
	// Self transfers are neither inflow nor outflow of interest below the threshold.
	assert.Empty(t, AnalyzeTransaction(tokenTx("sig", "TRANSFER", walletA, walletA, bonkMint, 5), walletA, nil))
}

func TestAnalyzeTransaction_Approvals(t *testing.T) {
	alerts := AnalyzeTransaction(helius.EnhancedTransaction{Signature: "a", Type: "APPROVE_CHECKED"}, walletA, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNewApproval, alerts[0].Type)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "A new token approval was granted", alerts[0].Message)

	alerts = AnalyzeTransaction(helius.EnhancedTransaction{
		Signature:   "r",
		Type:        "REVOKE",
		Description: "wallet revoked delegate",
	}, walletA, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertApprovalRevoked, alerts[0].Type)
	assert.Equal(t, SeverityInfo, alerts[0].Severity)
	assert.Equal(t, "Approval Revoked", alerts[0].Title)
	assert.Equal(t, "wallet revoked delegate", alerts[0].Message)
}

func TestDetectRapidTransactions(t *testing.T) {
	burst := []helius.EnhancedTransaction{
		nativeTx("s1", 100, walletA, recipient, 1),
		nativeTx("s2", 140, walletA, recipient, 1),
		nativeTx("s3", 155, recipient, walletA, 1),
	}
	a := DetectRapidTransactions(burst, walletA)
	require.NotNil(t, a)
	assert.Equal(t, AlertRapidTransactions, a.Type)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Equal(t, "s1", a.TxSignature)
	assert.Equal(t, "3 transactions in 55 seconds, possible wallet drain", a.Message)

	spread := []helius.EnhancedTransaction{
		nativeTx("s1", 100, walletA, recipient, 1),
		nativeTx("s2", 90, walletA, recipient, 1),
		nativeTx("s3", 30, walletA, recipient, 1),
	}
	assert.Nil(t, DetectRapidTransactions(spread, walletA))
}

func TestDetectRapidTransactions_OnlyWalletTransfersCount(t *testing.T) {
	txs := []helius.EnhancedTransaction{
		nativeTx("s1", 100, walletA, recipient, 1),
		nativeTx("s2", 101, walletB, recipient, 1),
		nativeTx("s3", 102, walletA, recipient, 1),
	}
	assert.Nil(t, DetectRapidTransactions(txs, walletA))
	assert.Nil(t, DetectRapidTransactions(txs[:2], walletA))
}

func TestNewTransactions(t *testing.T) {
	txs := []helius.EnhancedTransaction{{Signature: "s5"}, {Signature: "s4"}, {Signature: "s3"}}

	assert.Len(t, NewTransactions(txs, ""), 3)
	assert.Len(t, NewTransactions(txs, "gone"), 3)
	assert.Empty(t, NewTransactions(txs, "s5"))

	fresh := NewTransactions(txs, "s3")
	require.Len(t, fresh, 2)
	assert.Equal(t, "s5", fresh[0].Signature)
	assert.Equal(t, "s4", fresh[1].Signature)
}
