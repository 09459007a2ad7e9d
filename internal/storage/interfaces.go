package storage

import (
	"context"
	"time"
)

// DelegationStore provides access to delegations storage.
type DelegationStore interface {
	// UpsertDelegation inserts or replaces the row keyed by (wallet, mint, spender).
	// An empty ID is assigned by the store.
	UpsertDelegation(ctx context.Context, d *Delegation) error

	// ListDelegations returns a wallet's delegations ordered by risk score DESC.
	ListDelegations(ctx context.Context, walletAddress string) ([]*Delegation, error)
}

// WalletStore provides access to monitored_wallets storage.
type WalletStore interface {
	// UpsertWallet inserts a wallet, or reactivates an existing one with the same
	// address. A non-empty NotifyTarget replaces the stored one. The stored row is
	// returned, keeping its original ID and cursor.
	UpsertWallet(ctx context.Context, w *MonitoredWallet) (*MonitoredWallet, error)

	// GetWallet retrieves a wallet by address. Returns ErrNotFound if not exists.
	GetWallet(ctx context.Context, address string) (*MonitoredWallet, error)

	// DeactivateWallet marks a wallet inactive. Returns ErrNotFound if not exists.
	DeactivateWallet(ctx context.Context, address string) error

	// ListActiveWallets returns all active wallets ordered by creation time.
	ListActiveWallets(ctx context.Context) ([]*MonitoredWallet, error)

	// UpdateCursor sets LastCheckedAt and, when lastSignature is non-empty, the cursor.
	UpdateCursor(ctx context.Context, address, lastSignature string, checkedAt time.Time) error
}

// AlertStore provides access to monitor_alerts storage.
type AlertStore interface {
	// AppendAlert inserts an alert. An empty ID is assigned by the store.
	AppendAlert(ctx context.Context, a *MonitorAlert) error

	// ListAlerts returns up to limit alerts of a wallet, newest first.
	ListAlerts(ctx context.Context, walletID string, limit int) ([]*MonitorAlert, error)
}

// RiskStore provides access to wallet_risk_history storage.
type RiskStore interface {
	// AppendRiskRecord inserts a record. An empty ID is assigned by the store.
	AppendRiskRecord(ctx context.Context, r *RiskRecord) error

	// ListRiskRecords returns up to limit records of a wallet, newest first.
	ListRiskRecords(ctx context.Context, walletAddress string, limit int) ([]*RiskRecord, error)
}

// Store bundles every store the service persists through.
type Store interface {
	DelegationStore
	WalletStore
	AlertStore
	RiskStore

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close()
}
