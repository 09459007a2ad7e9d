package solana

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"
)

// ErrInvalidPubkey is returned when a string is not a base58 32-byte key.
var ErrInvalidPubkey = errors.New("invalid public key")

// ParsePubkey validates a base58 address and returns it as a Pubkey.
func ParsePubkey(s string) (Pubkey, error) {
	if s == "" || len(s) > 44 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPubkey, s)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: decoded %d bytes", ErrInvalidPubkey, len(raw))
	}
	return Pubkey(s), nil
}

// SPL token account layout (first 165 bytes; Token-2022 extensions follow).
const (
	tokenAccountSize = 165

	offMint           = 0
	offOwner          = 32
	offAmount         = 64
	offDelegateOption = 72
	offDelegate       = 76
	offState          = 108
	offIsNativeOption = 109
	offDelegatedAmt   = 121
)

// DecodeTokenAccount decodes the base layout of an SPL token account.
func DecodeTokenAccount(data []byte) (TokenAccount, error) {
	if len(data) < tokenAccountSize {
		return TokenAccount{}, fmt.Errorf("token account: short data (%d bytes)", len(data))
	}

	acct := TokenAccount{
		Mint:   encodeKey(data[offMint : offMint+32]),
		Owner:  encodeKey(data[offOwner : offOwner+32]),
		Amount: binary.LittleEndian.Uint64(data[offAmount : offAmount+8]),
		State:  data[offState],
	}

	if binary.LittleEndian.Uint32(data[offDelegateOption:offDelegateOption+4]) == 1 {
		acct.Delegate = encodeKey(data[offDelegate : offDelegate+32])
		acct.DelegatedAmount = binary.LittleEndian.Uint64(data[offDelegatedAmt : offDelegatedAmt+8])
	}
	acct.IsNative = binary.LittleEndian.Uint32(data[offIsNativeOption:offIsNativeOption+4]) == 1

	return acct, nil
}

func encodeKey(b []byte) Pubkey {
	return Pubkey(base58.Encode(b))
}

// jsonParsed view of a token account, as returned by getTokenAccountsByOwner.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			State       string `json:"state"`
			IsNative    bool   `json:"isNative"`
			Delegate    string `json:"delegate"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals uint8  `json:"decimals"`
			} `json:"tokenAmount"`
			DelegatedAmount *struct {
				Amount string `json:"amount"`
			} `json:"delegatedAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// decodeAccountData decodes the data field of a token account fetched with
// jsonParsed encoding. Accounts the node could not parse arrive as
// [base64, "base64"] and go through DecodeTokenAccount, without decimals.
func decodeAccountData(data json.RawMessage) (TokenAccount, error) {
	var encoded []string
	if err := json.Unmarshal(data, &encoded); err == nil {
		if len(encoded) == 0 {
			return TokenAccount{}, errors.New("token account: empty data")
		}
		raw, err := base64.StdEncoding.DecodeString(encoded[0])
		if err != nil {
			return TokenAccount{}, fmt.Errorf("token account: %w", err)
		}
		return DecodeTokenAccount(raw)
	}

	var p parsedTokenAccount
	if err := json.Unmarshal(data, &p); err != nil {
		return TokenAccount{}, fmt.Errorf("token account: %w", err)
	}
	info := p.Parsed.Info
	if info.Mint == "" || info.Owner == "" {
		return TokenAccount{}, errors.New("token account: missing parsed info")
	}
	amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return TokenAccount{}, fmt.Errorf("token account: amount: %w", err)
	}

	acct := TokenAccount{
		Mint:        Pubkey(info.Mint),
		Owner:       Pubkey(info.Owner),
		Amount:      amount,
		State:       accountState(info.State),
		IsNative:    info.IsNative,
		Decimals:    info.TokenAmount.Decimals,
		HasDecimals: true,
	}
	if info.Delegate != "" {
		acct.Delegate = Pubkey(info.Delegate)
		if info.DelegatedAmount != nil {
			acct.DelegatedAmount, err = strconv.ParseUint(info.DelegatedAmount.Amount, 10, 64)
			if err != nil {
				return TokenAccount{}, fmt.Errorf("token account: delegated amount: %w", err)
			}
		}
	}
	return acct, nil
}

// accountState maps the parsed state name to the raw layout byte.
func accountState(s string) uint8 {
	switch s {
	case "initialized":
		return 1
	case "frozen":
		return 2
	default:
		return 0
	}
}
