package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfi/walletmon/internal/storage"
)

func TestStore_UpsertDelegation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	d := &storage.Delegation{
		WalletAddress:   "wallet-1",
		TokenMint:       "mint-1",
		SpenderAddress:  "spender-1",
		DelegatedAmount: "100",
		RiskScore:       25,
		RiskFlags:       []string{"Active delegation"},
	}
	require.NoError(t, s.UpsertDelegation(ctx, d))
	firstID := d.ID
	require.NotEmpty(t, firstID)

	// Same composite key replaces the row and keeps the ID.
	d2 := &storage.Delegation{
		WalletAddress:   "wallet-1",
		TokenMint:       "mint-1",
		SpenderAddress:  "spender-1",
		DelegatedAmount: "18446744073709551615",
		IsUnlimited:     true,
		RiskScore:       75,
		RiskFlags:       []string{"Unlimited approval"},
	}
	require.NoError(t, s.UpsertDelegation(ctx, d2))
	assert.Equal(t, firstID, d2.ID)

	require.NoError(t, s.UpsertDelegation(ctx, &storage.Delegation{
		WalletAddress: "wallet-1", TokenMint: "mint-2", SpenderAddress: "spender-1", RiskScore: 40,
	}))

	list, err := s.ListDelegations(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 75, list[0].RiskScore)
	assert.True(t, list[0].IsUnlimited)
	assert.Equal(t, []string{"Unlimited approval"}, list[0].RiskFlags)

	// Returned records are copies.
	list[0].RiskFlags[0] = "mutated"
	again, _ := s.ListDelegations(ctx, "wallet-1")
	assert.Equal(t, "Unlimited approval", again[0].RiskFlags[0])
}

func TestStore_UpsertDelegation_InvalidInput(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.UpsertDelegation(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.UpsertDelegation(context.Background(), &storage.Delegation{WalletAddress: "w"}), storage.ErrInvalidInput)
}

func TestStore_WalletLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	w, err := s.UpsertWallet(ctx, &storage.MonitoredWallet{Address: "addr-1", NotifyTarget: "chat-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.True(t, w.IsActive)
	assert.NotZero(t, w.CreatedAt)

	now := time.Now()
	require.NoError(t, s.UpdateCursor(ctx, "addr-1", "sig-1", now))

	require.NoError(t, s.DeactivateWallet(ctx, "addr-1"))
	active, err := s.ListActiveWallets(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Reactivation keeps the ID, cursor and existing notify target.
	again, err := s.UpsertWallet(ctx, &storage.MonitoredWallet{Address: "addr-1"})
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.True(t, again.IsActive)
	assert.Equal(t, "sig-1", again.LastSignature)
	assert.Equal(t, "chat-1", again.NotifyTarget)
	require.NotNil(t, again.LastCheckedAt)
	assert.True(t, again.LastCheckedAt.Equal(now))

	assert.ErrorIs(t, s.DeactivateWallet(ctx, "missing"), storage.ErrNotFound)
	_, err = s.GetWallet(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_UpdateCursor_EmptySignatureKeepsCursor(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.UpsertWallet(ctx, &storage.MonitoredWallet{Address: "addr"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateCursor(ctx, "addr", "sig-a", time.Now()))
	later := time.Now().Add(time.Minute)
	require.NoError(t, s.UpdateCursor(ctx, "addr", "", later))

	w, err := s.GetWallet(ctx, "addr")
	require.NoError(t, err)
	assert.Equal(t, "sig-a", w.LastSignature)
	assert.True(t, w.LastCheckedAt.Equal(later))
}

func TestStore_ListActiveWallets_Order(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, addr := range []string{"c", "a", "b"} {
		_, err := s.UpsertWallet(ctx, &storage.MonitoredWallet{Address: addr, CreatedAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}

	active, err := s.ListActiveWallets(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "c", active[0].Address)
	assert.Equal(t, "b", active[2].Address)
}

func TestStore_Alerts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, typ := range []string{"large_outflow", "new_approval", "rapid_transactions"} {
		require.NoError(t, s.AppendAlert(ctx, &storage.MonitorAlert{MonitoredWalletID: "w1", Type: typ, Severity: "WARNING"}))
	}
	require.NoError(t, s.AppendAlert(ctx, &storage.MonitorAlert{MonitoredWalletID: "w2", Type: "new_approval"}))

	alerts, err := s.ListAlerts(ctx, "w1", 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "rapid_transactions", alerts[0].Type)
	assert.Equal(t, "new_approval", alerts[1].Type)
	assert.NotEmpty(t, alerts[0].ID)

	assert.ErrorIs(t, s.AppendAlert(ctx, &storage.MonitorAlert{Type: "x"}), storage.ErrInvalidInput)
}

func TestStore_RiskRecords(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.AppendRiskRecord(ctx, &storage.RiskRecord{WalletAddress: "w", Score: 0, Level: "LOW", Flags: []string{"No approvals"}}))
	require.NoError(t, s.AppendRiskRecord(ctx, &storage.RiskRecord{WalletAddress: "w", Score: 78, Level: "HIGH", ApprovalCount: 1}))

	recs, err := s.ListRiskRecords(ctx, "w", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 78, recs[0].Score)
	assert.Equal(t, []string{"No approvals"}, recs[1].Flags)
}
