package solana

import (
	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a Solana transaction signature.
type Signature string

// Short returns the first 8 characters of the key, for logs.
func (p Pubkey) Short() string {
	if len(p) > 8 {
		return string(p[:8])
	}
	return string(p)
}

// ---------------------------------------------------------------------------
// Account types
// ---------------------------------------------------------------------------

// TokenAccount is a decoded SPL token account (legacy or Token-2022 base layout).
type TokenAccount struct {
	Address         Pubkey `json:"address"`
	Program         Pubkey `json:"program"`
	Mint            Pubkey `json:"mint"`
	Owner           Pubkey `json:"owner"`
	Amount          uint64 `json:"amount"`
	Delegate        Pubkey `json:"delegate,omitempty"` // empty = no delegation
	DelegatedAmount uint64 `json:"delegated_amount"`
	State           uint8  `json:"state"`
	IsNative        bool   `json:"is_native"`
	Decimals        uint8  `json:"decimals"`
	HasDecimals     bool   `json:"-"` // set when the node reported the mint's decimals
}

// HasDelegate returns true if the account has an active delegation.
func (a TokenAccount) HasDelegate() bool {
	return a.Delegate != ""
}

// AccountInfo is the subset of getAccountInfo the risk analyzer needs.
type AccountInfo struct {
	Address    Pubkey `json:"address"`
	Exists     bool   `json:"exists"`
	Executable bool   `json:"executable"`
	Owner      Pubkey `json:"owner"`
	Lamports   uint64 `json:"lamports"`
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}

// Well-known mints and programs.
const (
	SOLMint  Pubkey = "So11111111111111111111111111111111111111112"
	USDCMint Pubkey = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	TokenProgramID     Pubkey = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID Pubkey = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// TokenPrograms lists the token-program variants a wallet scan covers.
var TokenPrograms = []Pubkey{TokenProgramID, Token2022ProgramID}
