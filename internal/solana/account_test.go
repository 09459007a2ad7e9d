package solana

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner Pubkey = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func keyBytes(t *testing.T, k Pubkey) []byte {
	t.Helper()
	b, err := base58.Decode(string(k))
	require.NoError(t, err)
	require.Len(t, b, 32)
	return b
}

// buildTokenAccount lays out a 165-byte SPL token account.
func buildTokenAccount(t *testing.T, mint, owner Pubkey, amount uint64, delegate Pubkey, delegated uint64) []byte {
	t.Helper()
	data := make([]byte, tokenAccountSize)
	copy(data[offMint:], keyBytes(t, mint))
	copy(data[offOwner:], keyBytes(t, owner))
	binary.LittleEndian.PutUint64(data[offAmount:], amount)
	if delegate != "" {
		binary.LittleEndian.PutUint32(data[offDelegateOption:], 1)
		copy(data[offDelegate:], keyBytes(t, delegate))
		binary.LittleEndian.PutUint64(data[offDelegatedAmt:], delegated)
	}
	data[offState] = 1
	return data
}

func TestParsePubkey(t *testing.T) {
	pk, err := ParsePubkey(string(USDCMint))
	require.NoError(t, err)
	assert.Equal(t, USDCMint, pk)

	for _, bad := range []string{"", "not-base58-0OIl", "abc", "0x1234567890abcdef"} {
		_, err := ParsePubkey(bad)
		assert.ErrorIs(t, err, ErrInvalidPubkey, "input %q", bad)
	}
}

func TestDecodeTokenAccount_NoDelegate(t *testing.T) {
	raw := buildTokenAccount(t, USDCMint, testOwner, 42, "", 0)

	acct, err := DecodeTokenAccount(raw)
	require.NoError(t, err)
	assert.Equal(t, USDCMint, acct.Mint)
	assert.Equal(t, testOwner, acct.Owner)
	assert.Equal(t, uint64(42), acct.Amount)
	assert.False(t, acct.HasDelegate())
	assert.Zero(t, acct.DelegatedAmount)
}

func TestDecodeTokenAccount_UnlimitedDelegate(t *testing.T) {
	raw := buildTokenAccount(t, SOLMint, testOwner, 10, TokenProgramID, ^uint64(0))

	acct, err := DecodeTokenAccount(raw)
	require.NoError(t, err)
	assert.Equal(t, TokenProgramID, acct.Delegate)
	assert.Equal(t, uint64(18446744073709551615), acct.DelegatedAmount)
}

func TestDecodeTokenAccount_Token2022Extensions(t *testing.T) {
	raw := buildTokenAccount(t, USDCMint, testOwner, 7, "", 0)
	raw = append(raw, make([]byte, 40)...) // extension TLV tail

	acct, err := DecodeTokenAccount(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), acct.Amount)
}

func TestDecodeTokenAccount_Short(t *testing.T) {
	_, err := DecodeTokenAccount(make([]byte, 100))
	assert.Error(t, err)
}

func TestDecodeAccountData(t *testing.T) {
	acct, err := decodeAccountData(json.RawMessage(`{"program":"spl-token","parsed":{"type":"account","info":{
		"mint":"` + string(USDCMint) + `","owner":"` + string(testOwner) + `","state":"frozen",
		"tokenAmount":{"amount":"42","decimals":6}}}}`))
	require.NoError(t, err)
	assert.Equal(t, USDCMint, acct.Mint)
	assert.Equal(t, uint64(42), acct.Amount)
	assert.True(t, acct.HasDecimals)
	assert.Equal(t, uint8(6), acct.Decimals)
	assert.Equal(t, uint8(2), acct.State)
	assert.False(t, acct.HasDelegate())

	for name, bad := range map[string]string{
		"empty array":   `[]`,
		"bad base64":    `["!!", "base64"]`,
		"no info":       `{"parsed":{}}`,
		"bad amount":    `{"parsed":{"info":{"mint":"m","owner":"o","tokenAmount":{"amount":"x"}}}}`,
		"not an object": `42`,
	} {
		_, err := decodeAccountData(json.RawMessage(bad))
		assert.Error(t, err, name)
	}
}

func TestPubkeyShort(t *testing.T) {
	assert.Equal(t, "EPjFWdd5", USDCMint.Short())
	assert.Equal(t, "abc", Pubkey("abc").Short())
}
