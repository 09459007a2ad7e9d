package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Logs Watcher: logsSubscribe "mentions" feed for a dynamic address set.
// Used to nudge polled wallets between poll ticks.
// ---------------------------------------------------------------------------

// LogsWatcherConfig configures the WebSocket logs watcher.
type LogsWatcherConfig struct {
	WSEndpoint       string `yaml:"ws_endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
}

// DefaultLogsWatcherConfig returns defaults for mainnet.
func DefaultLogsWatcherConfig() LogsWatcherConfig {
	return LogsWatcherConfig{
		WSEndpoint:       "wss://api.mainnet-beta.solana.com",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
	}
}

// LogsEvent is emitted when a watched address appears in a confirmed transaction.
type LogsEvent struct {
	Address   Pubkey    `json:"address"`
	Signature Signature `json:"signature"`
	Slot      uint64    `json:"slot"`
	Failed    bool      `json:"failed"`
	SeenAt    time.Time `json:"seen_at"`
}

// LogsWatcher keeps one logsSubscribe subscription per watched address.
type LogsWatcher struct {
	config LogsWatcherConfig

	mu      sync.Mutex // guards conn writes and the maps below
	conn    *websocket.Conn
	watched map[Pubkey]struct{}
	pending map[int64]Pubkey // request ID -> address awaiting confirmation
	subs    map[int]Pubkey   // subscription ID -> address
	bySub   map[Pubkey]int   // address -> subscription ID

	events chan LogsEvent
	nextID atomic.Int64

	// Stats.
	messagesRecv atomic.Int64
	eventsSent   atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewLogsWatcher creates a watcher. Call Start to connect.
func NewLogsWatcher(config LogsWatcherConfig) *LogsWatcher {
	if config.ReconnectDelayMs <= 0 {
		config.ReconnectDelayMs = 1000
	}
	return &LogsWatcher{
		config:  config,
		watched: make(map[Pubkey]struct{}),
		pending: make(map[int64]Pubkey),
		subs:    make(map[int]Pubkey),
		bySub:   make(map[Pubkey]int),
		events:  make(chan LogsEvent, 256),
	}
}

// Events returns the notification channel. It is closed when Start returns.
func (w *LogsWatcher) Events() <-chan LogsEvent {
	return w.events
}

// Watch adds an address. It is subscribed immediately if connected,
// otherwise on the next (re)connect.
func (w *LogsWatcher) Watch(addr Pubkey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[addr]; ok {
		return
	}
	w.watched[addr] = struct{}{}
	if w.conn != nil {
		if err := w.subscribeLocked(addr); err != nil {
			log.Warn().Err(err).Str("address", addr.Short()).Msg("ws: subscribe failed")
		}
	}
}

// Unwatch removes an address and drops its subscription.
func (w *LogsWatcher) Unwatch(addr Pubkey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, addr)
	subID, ok := w.bySub[addr]
	if !ok {
		return
	}
	delete(w.bySub, addr)
	delete(w.subs, subID)
	if w.conn != nil {
		req := map[string]any{
			"jsonrpc": "2.0",
			"id":      w.nextID.Add(1),
			"method":  "logsUnsubscribe",
			"params":  []any{subID},
		}
		if err := w.conn.WriteJSON(req); err != nil {
			log.Debug().Err(err).Msg("ws: unsubscribe write failed")
		}
	}
}

// Start runs the connect/read loop until ctx is cancelled.
func (w *LogsWatcher) Start(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("ws: logs watcher panic recovered")
		}
		w.disconnect()
		close(w.events)
	}()

	baseDelay := time.Duration(w.config.ReconnectDelayMs) * time.Millisecond
	reconnectDelay := baseDelay
	const maxDelay = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.connect(ctx); err != nil {
			w.reconnects.Add(1)
			log.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("ws: connection failed")
			select {
			case <-time.After(reconnectDelay):
			case <-ctx.Done():
				return
			}
			reconnectDelay *= 2
			if reconnectDelay > maxDelay {
				reconnectDelay = maxDelay
			}
			continue
		}
		reconnectDelay = baseDelay

		w.readLoop(ctx)
		w.disconnect()
	}
}

func (w *LogsWatcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("ws: dial: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn = conn
	w.pending = make(map[int64]Pubkey)
	w.subs = make(map[int]Pubkey)
	w.bySub = make(map[Pubkey]int)
	w.connected.Store(true)

	for addr := range w.watched {
		if err := w.subscribeLocked(addr); err != nil {
			log.Warn().Err(err).Str("address", addr.Short()).Msg("ws: subscribe failed")
		}
	}
	log.Info().Str("endpoint", w.config.WSEndpoint).Int("addresses", len(w.watched)).Msg("ws: connected")
	return nil
}

func (w *LogsWatcher) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected.Store(false)
}

// subscribeLocked sends logsSubscribe for one address. Caller holds w.mu.
func (w *LogsWatcher) subscribeLocked(addr Pubkey) error {
	id := w.nextID.Add(1)
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{"mentions": []string{string(addr)}},
			map[string]any{"commitment": "confirmed"},
		},
	}
	if err := w.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("ws: write subscribe: %w", err)
	}
	w.pending[id] = addr
	return nil
}

func (w *LogsWatcher) readLoop(ctx context.Context) {
	pingInterval := time.Duration(w.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	// Ping from a side goroutine so a blocked read does not starve keepalives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				w.mu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, nil)
				w.mu.Unlock()
				if err != nil {
					log.Debug().Err(err).Msg("ws: ping failed")
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("ws: read error, reconnecting")
			}
			w.connected.Store(false)
			return
		}
		w.messagesRecv.Add(1)
		w.handleMessage(message)
	}
}

func (w *LogsWatcher) handleMessage(data []byte) {
	var msg struct {
		ID     int64           `json:"id"`
		Result json.RawMessage `json:"result"`
		Method string          `json:"method"`
		Params struct {
			Result struct {
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
				Value struct {
					Signature string `json:"signature"`
					Err       any    `json:"err"`
				} `json:"value"`
			} `json:"result"`
			Subscription int `json:"subscription"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.Method != "logsNotification" {
		// Subscription confirmation: {"id": <req>, "result": <subID>}.
		var subID int
		if msg.ID == 0 || json.Unmarshal(msg.Result, &subID) != nil {
			return
		}
		w.mu.Lock()
		addr, ok := w.pending[msg.ID]
		delete(w.pending, msg.ID)
		if ok {
			if _, still := w.watched[addr]; still {
				w.subs[subID] = addr
				w.bySub[addr] = subID
			}
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	addr, ok := w.subs[msg.Params.Subscription]
	w.mu.Unlock()
	if !ok {
		return
	}

	event := LogsEvent{
		Address:   addr,
		Signature: Signature(msg.Params.Result.Value.Signature),
		Slot:      msg.Params.Result.Context.Slot,
		Failed:    msg.Params.Result.Value.Err != nil,
		SeenAt:    time.Now(),
	}

	select {
	case w.events <- event:
		w.eventsSent.Add(1)
	default:
		log.Warn().Str("address", addr.Short()).Msg("ws: event channel full, dropping notification")
	}
}

// LogsWatcherStats returns watcher statistics.
type LogsWatcherStats struct {
	Connected    bool  `json:"connected"`
	Watched      int   `json:"watched"`
	MessagesRecv int64 `json:"messages_recv"`
	EventsSent   int64 `json:"events_sent"`
	Reconnects   int64 `json:"reconnects"`
}

func (w *LogsWatcher) Stats() LogsWatcherStats {
	w.mu.Lock()
	watched := len(w.watched)
	w.mu.Unlock()
	return LogsWatcherStats{
		Connected:    w.connected.Load(),
		Watched:      watched,
		MessagesRecv: w.messagesRecv.Load(),
		EventsSent:   w.eventsSent.Load(),
		Reconnects:   w.reconnects.Load(),
	}
}
