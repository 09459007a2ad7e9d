package solana

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogsWatcher_HandleMessage_ConfirmThenNotify(t *testing.T) {
	w := NewLogsWatcher(DefaultLogsWatcherConfig())
	w.watched[testOwner] = struct{}{}
	w.pending[7] = testOwner

	w.handleMessage([]byte(`{"jsonrpc":"2.0","id":7,"result":4242}`))
	assert.Equal(t, testOwner, w.subs[4242])
	assert.Empty(t, w.pending)

	w.handleMessage([]byte(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":4242,"result":{"context":{"slot":99},"value":{"signature":"sig-1","err":null,"logs":[]}}}}`))

	select {
	case ev := <-w.Events():
		assert.Equal(t, testOwner, ev.Address)
		assert.Equal(t, Signature("sig-1"), ev.Signature)
		assert.Equal(t, uint64(99), ev.Slot)
		assert.False(t, ev.Failed)
	default:
		t.Fatal("expected an event")
	}
}

func TestLogsWatcher_HandleMessage_UnknownSubscription(t *testing.T) {
	w := NewLogsWatcher(DefaultLogsWatcherConfig())
	w.handleMessage([]byte(`{"method":"logsNotification","params":{"subscription":1,"result":{"value":{"signature":"x"}}}}`))
	w.handleMessage([]byte(`not json`))

	assert.Len(t, w.events, 0)
}

func TestLogsWatcher_EndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		if err := conn.ReadJSON(&req); err != nil || req.Method != "logsSubscribe" {
			return
		}
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 11})
		conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "logsNotification",
			"params": map[string]any{
				"subscription": 11,
				"result": map[string]any{
					"context": map[string]any{"slot": 5},
					"value":   map[string]any{"signature": "sig-e2e", "err": nil, "logs": []string{}},
				},
			},
		})
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultLogsWatcherConfig()
	cfg.WSEndpoint = "ws" + strings.TrimPrefix(server.URL, "http")
	w := NewLogsWatcher(cfg)
	w.Watch(testOwner)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	select {
	case ev := <-w.Events():
		assert.Equal(t, testOwner, ev.Address)
		assert.Equal(t, Signature("sig-e2e"), ev.Signature)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for logs notification")
	}

	cancel()
	// Channel closes once the loop exits.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-w.Events():
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}
