package jupiter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfi/walletmon/internal/solana"
)

func newTestPriceClient(t *testing.T, handler http.HandlerFunc) *PriceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewPriceClient(server.URL, 2*time.Second)
}

func TestPriceClient_Prices(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	client := newTestPriceClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.URL.Query().Get("ids"))
		mu.Unlock()
		assert.Equal(t, string(solana.USDCMint), r.URL.Query().Get("vsToken"))
		io.WriteString(w, `{"data":{"mintA":{"id":"mintA","type":"derivedPrice","price":"0.5"},"mintB":{"id":"mintB","price":"0"},"mintC":null}}`)
	})

	prices, err := client.Prices(context.Background(), []string{"mintA", "mintB", "mintC"})
	require.NoError(t, err)
	assert.Len(t, prices, 1)
	assert.Equal(t, "0.5", prices["mintA"].String())

	_, err = client.Price(context.Background(), "mintB")
	assert.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"mintA,mintB,mintC", "mintB"}, ids)
}

func TestNewPriceClient_DefaultsToPriceV2(t *testing.T) {
	client := NewPriceClient("", 0)
	assert.Equal(t, "https://lite-api.jup.ag/price/v2", client.priceURL)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
}

func TestPriceClient_CircuitBreaker(t *testing.T) {
	client := newTestPriceClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < breakerThreshold; i++ {
		_, err := client.Price(context.Background(), "mintA")
		require.Error(t, err)
	}
	assert.True(t, client.Stats().CircuitOpen)

	_, err := client.Price(context.Background(), "mintA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int64(breakerThreshold), client.Stats().Requests)
}

func TestPriceClient_EmptyInput(t *testing.T) {
	client := NewPriceClient("http://127.0.0.1:0", time.Second)
	prices, err := client.Prices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}
