package storage

import "time"

// Delegation is a persisted token approval, unique on (WalletAddress, TokenMint, SpenderAddress).
type Delegation struct {
	ID              string    `json:"id"`
	WalletAddress   string    `json:"wallet_address"`
	TokenMint       string    `json:"token_mint"`
	SpenderAddress  string    `json:"spender_address"`
	DelegatedAmount string    `json:"delegated_amount"` // u64 base units
	OwnerBalance    string    `json:"owner_balance"`
	IsUnlimited     bool      `json:"is_unlimited"`
	RiskLevel       string    `json:"risk_level"`
	RiskScore       int       `json:"risk_score"`
	RiskFlags       []string  `json:"risk_flags"`
	TokenSymbol     string    `json:"token_symbol,omitempty"`
	TokenIcon       string    `json:"token_icon,omitempty"`
	LastScanned     time.Time `json:"last_scanned"`
}

// MonitoredWallet is a wallet under watch. Rows are deactivated, never deleted.
type MonitoredWallet struct {
	ID            string     `json:"id"`
	Address       string     `json:"address"`
	IsActive      bool       `json:"is_active"`
	LastSignature string     `json:"last_signature,omitempty"` // empty = no cursor yet
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	NotifyTarget  string     `json:"notify_target,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MonitorAlert is one alert raised for a monitored wallet. Append-only.
type MonitorAlert struct {
	ID                string    `json:"id"`
	MonitoredWalletID string    `json:"monitored_wallet_id"`
	Type              string    `json:"type"`
	Severity          string    `json:"severity"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	TxSignature       string    `json:"tx_signature,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// RiskRecord is one entry of a wallet's risk history.
type RiskRecord struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Score         int       `json:"score"`
	Level         string    `json:"level"`
	Flags         []string  `json:"flags"`
	ApprovalCount int       `json:"approval_count"`
	CreatedAt     time.Time `json:"created_at"`
}
