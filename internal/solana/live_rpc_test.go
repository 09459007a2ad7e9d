package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRPCServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *LiveRPCClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	config := RPCConfig{
		Endpoint:   server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}
	client := NewLiveRPCClient(config, nil)
	t.Cleanup(func() { server.Close() })
	return server, client
}

type countingAcquirer struct {
	n atomic.Int64
}

func (a *countingAcquirer) Acquire(context.Context) error {
	a.n.Add(1)
	return nil
}

func TestLiveRPC_Health(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  "ok",
		})
	})

	err := client.Health(context.Background())
	assert.NoError(t, err)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.RequestCount)
}

func TestLiveRPC_GetTokenAccountsByOwner(t *testing.T) {
	delegate := Pubkey("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	raw := buildTokenAccount(t, USDCMint, testOwner, 2_000_000, delegate, 1_500_000)

	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "getTokenAccountsByOwner", req.Method)
		if assert.Len(t, req.Params, 3) {
			opts, _ := req.Params[2].(map[string]any)
			assert.Equal(t, "jsonParsed", opts["encoding"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]any{
				"value": []map[string]any{
					{
						"pubkey": "acct-1",
						"account": map[string]any{
							"data": []string{base64.StdEncoding.EncodeToString(raw), "base64"},
						},
					},
					{
						"pubkey": "acct-parsed",
						"account": map[string]any{
							"data": map[string]any{
								"program": "spl-token",
								"parsed": map[string]any{
									"type": "account",
									"info": map[string]any{
										"mint":            string(USDCMint),
										"owner":           string(testOwner),
										"state":           "initialized",
										"isNative":        false,
										"delegate":        string(delegate),
										"delegatedAmount": map[string]any{"amount": "18446744073709551615", "decimals": 6},
										"tokenAmount":     map[string]any{"amount": "500000", "decimals": 6, "uiAmountString": "0.5"},
									},
								},
							},
						},
					},
					{
						"pubkey":  "acct-broken",
						"account": map[string]any{"data": []string{"AAAA", "base64"}},
					},
				},
			},
		})
	})

	accounts, err := client.GetTokenAccountsByOwner(context.Background(), testOwner, TokenProgramID)
	require.NoError(t, err)
	require.Len(t, accounts, 2, "malformed account should be skipped")

	acct := accounts[0]
	assert.Equal(t, Pubkey("acct-1"), acct.Address)
	assert.Equal(t, TokenProgramID, acct.Program)
	assert.Equal(t, USDCMint, acct.Mint)
	assert.Equal(t, testOwner, acct.Owner)
	assert.Equal(t, uint64(2_000_000), acct.Amount)
	assert.True(t, acct.HasDelegate())
	assert.Equal(t, delegate, acct.Delegate)
	assert.Equal(t, uint64(1_500_000), acct.DelegatedAmount)
	assert.False(t, acct.HasDecimals, "raw layout has no decimals")

	parsed := accounts[1]
	assert.Equal(t, Pubkey("acct-parsed"), parsed.Address)
	assert.Equal(t, TokenProgramID, parsed.Program)
	assert.Equal(t, USDCMint, parsed.Mint)
	assert.Equal(t, testOwner, parsed.Owner)
	assert.Equal(t, uint64(500_000), parsed.Amount)
	assert.True(t, parsed.HasDecimals)
	assert.Equal(t, uint8(6), parsed.Decimals)
	assert.Equal(t, uint8(1), parsed.State)
	assert.Equal(t, delegate, parsed.Delegate)
	assert.Equal(t, ^uint64(0), parsed.DelegatedAmount)
}

func TestLiveRPC_GetBalance(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]any{"value": 5000000000}, // 5 SOL
		})
	})

	lamports, err := client.GetBalance(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), lamports)
	assert.Equal(t, "5", LamportsToSOL(lamports).String())
}

func TestLiveRPC_GetSlot(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": 287654321})
	})

	slot, err := client.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(287654321), slot)
}

func TestLiveRPC_GetAccountInfo(t *testing.T) {
	t.Run("executable program", func(t *testing.T) {
		_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"result": map[string]any{
					"value": map[string]any{
						"executable": true,
						"owner":      "BPFLoaderUpgradeab1e11111111111111111111111",
						"lamports":   1141440,
					},
				},
			})
		})

		info, err := client.GetAccountInfo(context.Background(), Pubkey("prog"))
		require.NoError(t, err)
		assert.True(t, info.Exists)
		assert.True(t, info.Executable)
	})

	t.Run("missing account", func(t *testing.T) {
		_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"result":  map[string]any{"value": nil},
			})
		})

		info, err := client.GetAccountInfo(context.Background(), Pubkey("ghost"))
		require.NoError(t, err)
		assert.False(t, info.Exists)
	})
}

func TestLiveRPC_UsesLimiterPerAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": 1})
	}))
	t.Cleanup(server.Close)

	acq := &countingAcquirer{}
	client := NewLiveRPCClient(RPCConfig{Endpoint: server.URL, MaxRetries: 1}, acq)

	_, err := client.GetSlot(context.Background())
	require.NoError(t, err)
	_, err = client.GetSlot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), acq.n.Load())
}

func TestLiveRPC_RetryOnError(t *testing.T) {
	var callCount atomic.Int64
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		if callCount.Add(1) == 1 {
			w.WriteHeader(500)
			w.Write([]byte("internal error"))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  "ok",
		})
	})

	err := client.Health(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(2), callCount.Load(), "Should retry once after failure")
}

func TestLiveRPC_RPCError(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error": map[string]any{
				"code":    -32600,
				"message": "Invalid request",
			},
		})
	})

	err := client.Health(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid request")
}

func TestLiveRPC_ContextCancellation(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second): // simulate slow response
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Health(ctx)
	assert.Error(t, err)
}
