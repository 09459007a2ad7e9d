package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shieldfi/walletmon/internal/adapters/helius"
	"github.com/shieldfi/walletmon/internal/notify"
	"github.com/shieldfi/walletmon/internal/observability"
	"github.com/shieldfi/walletmon/internal/solana"
	"github.com/shieldfi/walletmon/internal/storage"
	"github.com/shieldfi/walletmon/internal/syncutil"
)

// ---------------------------------------------------------------------------
// Monitor Manager: keeps every active wallet on exactly one delivery path
// (webhook push or periodic poll) and turns new transactions into alerts.
// ---------------------------------------------------------------------------

// ErrInvalidAddress is returned for wallet addresses that are not base58 pubkeys.
var ErrInvalidAddress = errors.New("monitor: invalid wallet address")

// Mode is how new transactions for a wallet reach the manager.
type Mode int

const (
	ModePolled Mode = iota
	ModePushed
)

func (m Mode) String() string {
	if m == ModePushed {
		return "pushed"
	}
	return "polled"
}

// TxSource fetches enhanced transactions, newest first.
type TxSource interface {
	RecentTransactions(ctx context.Context, address string, limit int) ([]helius.EnhancedTransaction, error)
}

// WebhookAPI manages the single enhanced webhook covering all pushed wallets.
type WebhookAPI interface {
	FindWebhook(ctx context.Context, callbackURL string) (*helius.Webhook, error)
	CreateWebhook(ctx context.Context, hook helius.Webhook) (*helius.Webhook, error)
	UpdateWebhook(ctx context.Context, id string, hook helius.Webhook) error
}

// NameResolver maps token mints to display names.
type NameResolver interface {
	Names(ctx context.Context, mints []string) map[string]string
}

// AddressWatcher pushes a nudge when a watched address shows up on chain.
type AddressWatcher interface {
	Watch(addr solana.Pubkey)
	Unwatch(addr solana.Pubkey)
	Events() <-chan solana.LogsEvent
	Start(ctx context.Context)
}

// Config configures the manager.
type Config struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	WebhookInitDelay time.Duration `yaml:"webhook_init_delay"`
	TxFetchLimit     int           `yaml:"tx_fetch_limit"`
	WebhookURL       string        `yaml:"webhook_url"`
	WebhookSecret    string        `yaml:"webhook_secret"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:     120 * time.Second,
		WebhookInitDelay: 5 * time.Second,
		TxFetchLimit:     10,
	}
}

// Deps are the manager's collaborators. Webhooks, Names, Notifier and
// Watcher are optional.
type Deps struct {
	Store    storage.Store
	Txs      TxSource
	Webhooks WebhookAPI
	Names    NameResolver
	Notifier notify.Notifier
	Watcher  AddressWatcher
}

// Manager runs the poll loop, the webhook registration and per-wallet checks.
type Manager struct {
	cfg      Config
	store    storage.Store
	txs      TxSource
	webhooks WebhookAPI
	names    NameResolver
	notifier notify.Notifier
	watcher  AddressWatcher
	locks    *syncutil.KeyLock
	now      func() time.Time

	mu      sync.Mutex
	modes   map[string]Mode
	pending map[string]struct{}
	started bool
	stopped bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	hookMu    sync.Mutex // serializes webhook reads and writes
	webhookID string

	ticking atomic.Bool

	// Stats.
	ticks        atomic.Int64
	skippedTicks atomic.Int64
	checks       atomic.Int64
	checkErrors  atomic.Int64
	alerts       atomic.Int64
	webhookSyncs atomic.Int64
	webhookFails atomic.Int64
}

// New creates a manager. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, deps Deps) *Manager {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.WebhookInitDelay <= 0 {
		cfg.WebhookInitDelay = def.WebhookInitDelay
	}
	if cfg.TxFetchLimit <= 0 {
		cfg.TxFetchLimit = def.TxFetchLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		store:    deps.Store,
		txs:      deps.Txs,
		webhooks: deps.Webhooks,
		names:    deps.Names,
		notifier: deps.Notifier,
		watcher:  deps.Watcher,
		locks:    syncutil.NewKeyLock(),
		now:      time.Now,
		modes:    make(map[string]Mode),
		pending:  make(map[string]struct{}),
		runCtx:   ctx,
		cancel:   cancel,
	}
}

// pushEnabled reports whether webhook delivery can be attempted at all.
func (m *Manager) pushEnabled() bool {
	return m.webhooks != nil && m.cfg.WebhookURL != ""
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start loads active wallets as polled, starts the poll loop and schedules
// webhook registration. It returns once the background loops are running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("monitor: already started")
	}
	m.started = true
	m.cancel()
	m.runCtx, m.cancel = context.WithCancel(ctx)
	runCtx := m.runCtx
	m.mu.Unlock()

	wallets, err := m.store.ListActiveWallets(ctx)
	if err != nil {
		return fmt.Errorf("monitor: load wallets: %w", err)
	}
	for _, w := range wallets {
		m.setMode(w.Address, ModePolled)
	}

	m.wg.Add(2)
	go m.pollLoop(runCtx)
	go m.delayedWebhookInit(runCtx)

	if m.watcher != nil {
		m.wg.Add(2)
		go func() {
			defer m.wg.Done()
			m.watcher.Start(runCtx)
		}()
		go m.watchLoop()
	}

	log.Info().
		Int("wallets", len(wallets)).
		Dur("poll_interval", m.cfg.PollInterval).
		Bool("push", m.pushEnabled()).
		Bool("logs_watch", m.watcher != nil).
		Msg("monitor: started")
	return nil
}

// Stop cancels background work and waits for in-flight tasks.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.cancel()
	m.mu.Unlock()
	m.wg.Wait()
	log.Info().Msg("monitor: stopped")
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

func (m *Manager) delayedWebhookInit(ctx context.Context) {
	defer m.wg.Done()
	timer := time.NewTimer(m.cfg.WebhookInitDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		m.initWebhook(ctx)
	}
}

// watchLoop turns logs notifications into early checks for polled wallets.
// Pushed wallets are never watched, so their events only arrive after a
// mode change races the unsubscribe; those are ignored.
func (m *Manager) watchLoop() {
	defer m.wg.Done()
	for ev := range m.watcher.Events() {
		if ev.Failed {
			continue
		}
		addr := string(ev.Address)
		if mode, ok := m.Mode(addr); !ok || mode != ModePolled {
			continue
		}
		m.scheduleCheck(addr, "logs")
	}
}

// ---------------------------------------------------------------------------
// Webhook registration
// ---------------------------------------------------------------------------

// initWebhook registers (or refreshes) the webhook for every active wallet.
// Success moves them all to pushed; any failure leaves them all polled.
func (m *Manager) initWebhook(ctx context.Context) {
	if !m.pushEnabled() {
		log.Info().Msg("monitor: webhook not configured, polling all wallets")
		return
	}

	wallets, err := m.store.ListActiveWallets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("monitor: webhook init could not list wallets, polling all")
		return
	}
	addrs := addresses(wallets)

	m.hookMu.Lock()
	defer m.hookMu.Unlock()

	if len(addrs) == 0 {
		// Nothing to register yet; remember an existing hook so the first
		// AddWallet updates it instead of creating a duplicate.
		if _, err := m.lookupWebhookLocked(ctx); err != nil {
			m.webhookFails.Add(1)
			log.Warn().Err(err).Msg("monitor: webhook lookup failed")
		}
		return
	}

	if err := m.syncWebhookLocked(ctx, addrs); err != nil {
		log.Warn().Err(err).Int("wallets", len(addrs)).Msg("monitor: webhook init failed, polling all wallets")
		return
	}
	m.markPushed(addrs)
	log.Info().Str("webhook_id", m.webhookID).Int("wallets", len(addrs)).Msg("monitor: webhook registered")
}

// lookupWebhookLocked finds the webhook for the callback URL and caches its ID.
// Caller holds hookMu.
func (m *Manager) lookupWebhookLocked(ctx context.Context) (string, error) {
	if m.webhookID != "" {
		return m.webhookID, nil
	}
	hook, err := m.webhooks.FindWebhook(ctx, m.cfg.WebhookURL)
	if err != nil {
		return "", fmt.Errorf("monitor: find webhook: %w", err)
	}
	if hook != nil {
		m.webhookID = hook.WebhookID
	}
	return m.webhookID, nil
}

// syncWebhookLocked replaces the webhook's address list, creating the webhook
// if none exists. Caller holds hookMu.
func (m *Manager) syncWebhookLocked(ctx context.Context, addrs []string) error {
	m.webhookSyncs.Add(1)
	id, err := m.lookupWebhookLocked(ctx)
	if err != nil {
		m.webhookFails.Add(1)
		return err
	}
	hook := helius.NewEnhancedWebhook(m.cfg.WebhookURL, addrs, m.cfg.WebhookSecret)
	if id != "" {
		if err := m.webhooks.UpdateWebhook(ctx, id, hook); err != nil {
			m.webhookFails.Add(1)
			return fmt.Errorf("monitor: update webhook: %w", err)
		}
		return nil
	}
	created, err := m.webhooks.CreateWebhook(ctx, hook)
	if err != nil {
		m.webhookFails.Add(1)
		return fmt.Errorf("monitor: create webhook: %w", err)
	}
	m.webhookID = created.WebhookID
	return nil
}

// ---------------------------------------------------------------------------
// Wallet set
// ---------------------------------------------------------------------------

// AddWallet persists (or reactivates) a wallet and puts it on a delivery path.
// An empty notifyTarget keeps the stored target, or the default chat.
func (m *Manager) AddWallet(ctx context.Context, address, notifyTarget string) (*storage.MonitoredWallet, error) {
	if _, err := solana.ParsePubkey(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	w, err := m.store.UpsertWallet(ctx, &storage.MonitoredWallet{
		Address:      address,
		IsActive:     true,
		NotifyTarget: notifyTarget,
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: save wallet: %w", err)
	}

	mode := ModePolled
	if m.pushEnabled() {
		if err := m.pushWallet(ctx, address); err != nil {
			log.Warn().Err(err).Str("wallet", shortLog(address)).Msg("monitor: webhook update failed, polling wallet")
		} else {
			mode = ModePushed
		}
	}
	m.setMode(address, mode)

	log.Info().Str("wallet", shortLog(address)).Str("mode", mode.String()).Msg("monitor: wallet added")
	m.submit("initial-check", func(ctx context.Context) error {
		return m.initialCheck(ctx, address)
	})
	return w, nil
}

// pushWallet adds address to the webhook's address list.
func (m *Manager) pushWallet(ctx context.Context, address string) error {
	wallets, err := m.store.ListActiveWallets(ctx)
	if err != nil {
		return fmt.Errorf("monitor: list wallets: %w", err)
	}
	addrs := addresses(wallets)
	if !contains(addrs, address) {
		addrs = append(addrs, address)
	}

	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	if err := m.syncWebhookLocked(ctx, addrs); err != nil {
		return err
	}
	m.markPushed(addrs)
	return nil
}

// RemoveWallet deactivates a wallet and drops it from its delivery path.
func (m *Manager) RemoveWallet(ctx context.Context, address string) error {
	if err := m.store.DeactivateWallet(ctx, address); err != nil {
		return fmt.Errorf("monitor: deactivate wallet: %w", err)
	}
	m.clearMode(address)

	if m.pushEnabled() {
		m.hookMu.Lock()
		hasHook := m.webhookID != ""
		m.hookMu.Unlock()
		if hasHook {
			m.unpushWallet(ctx, address)
		}
	}
	log.Info().Str("wallet", shortLog(address)).Msg("monitor: wallet removed")
	return nil
}

// unpushWallet rewrites the webhook without address. An empty remainder is
// left alone; the stale entry only produces pushes for an inactive wallet.
func (m *Manager) unpushWallet(ctx context.Context, address string) {
	wallets, err := m.store.ListActiveWallets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("monitor: list wallets for webhook update failed")
		return
	}
	var addrs []string
	for _, a := range addresses(wallets) {
		if a != address {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return
	}
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	if err := m.syncWebhookLocked(ctx, addrs); err != nil {
		log.Warn().Err(err).Str("wallet", shortLog(address)).Msg("monitor: webhook update after removal failed")
		return
	}
	m.markPushed(addrs)
}

// markPushed moves every address the webhook now carries off the poll path.
// A wallet must never be registered and polled at once.
func (m *Manager) markPushed(addrs []string) {
	for _, a := range addrs {
		m.setMode(a, ModePushed)
	}
}

// ---------------------------------------------------------------------------
// Modes
// ---------------------------------------------------------------------------

// Mode returns the delivery mode of an active wallet.
func (m *Manager) Mode(address string) (Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.modes[address]
	return mode, ok
}

func (m *Manager) setMode(address string, mode Mode) {
	m.mu.Lock()
	prev, had := m.modes[address]
	m.modes[address] = mode
	m.publishModesLocked()
	m.mu.Unlock()

	if m.watcher == nil || (had && prev == mode) {
		return
	}
	if mode == ModePolled {
		m.watcher.Watch(solana.Pubkey(address))
	} else {
		m.watcher.Unwatch(solana.Pubkey(address))
	}
}

func (m *Manager) clearMode(address string) {
	m.mu.Lock()
	_, had := m.modes[address]
	delete(m.modes, address)
	m.publishModesLocked()
	m.mu.Unlock()

	if had && m.watcher != nil {
		m.watcher.Unwatch(solana.Pubkey(address))
	}
}

// publishModesLocked updates the per-mode gauge. Caller holds mu.
func (m *Manager) publishModesLocked() {
	var pushed, polled int
	for _, mode := range m.modes {
		if mode == ModePushed {
			pushed++
		} else {
			polled++
		}
	}
	observability.WalletsByMode.WithLabelValues(ModePushed.String()).Set(float64(pushed))
	observability.WalletsByMode.WithLabelValues(ModePolled.String()).Set(float64(polled))
}

// ---------------------------------------------------------------------------
// Polling and push ingestion
// ---------------------------------------------------------------------------

// Tick checks every polled wallet once. A tick that starts while the previous
// one is still running is skipped.
func (m *Manager) Tick(ctx context.Context) {
	if !m.ticking.CompareAndSwap(false, true) {
		m.skippedTicks.Add(1)
		observability.MonitorTicks.WithLabelValues("skipped").Inc()
		log.Debug().Msg("monitor: previous tick still running, skipping")
		return
	}
	defer m.ticking.Store(false)
	m.ticks.Add(1)
	observability.MonitorTicks.WithLabelValues("run").Inc()

	wallets, err := m.store.ListActiveWallets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("monitor: tick could not list wallets")
		return
	}
	polled := 0
	for _, w := range wallets {
		if ctx.Err() != nil {
			return
		}
		mode, ok := m.Mode(w.Address)
		if !ok {
			// Activated outside this process; adopt it on the poll path.
			m.setMode(w.Address, ModePolled)
			mode = ModePolled
		}
		if mode != ModePolled {
			continue
		}
		polled++
		if _, err := m.checkWallet(ctx, w.Address, "poll"); err != nil {
			log.Warn().Err(err).Str("wallet", shortLog(w.Address)).Msg("monitor: poll check failed")
		}
	}
	log.Debug().Int("polled", polled).Int("active", len(wallets)).Msg("monitor: tick done")
}

// HandleWebhook schedules a check for every active wallet the pushed
// transactions touch, and returns how many were scheduled.
func (m *Manager) HandleWebhook(ctx context.Context, txs []helius.EnhancedTransaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	wallets, err := m.store.ListActiveWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("monitor: list wallets: %w", err)
	}
	active := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		active[w.Address] = struct{}{}
	}

	matched := make(map[string]struct{})
	var order []string
	for i := range txs {
		for _, acct := range txs[i].Accounts() {
			if _, ok := active[acct]; !ok {
				continue
			}
			if _, dup := matched[acct]; dup {
				continue
			}
			matched[acct] = struct{}{}
			order = append(order, acct)
		}
	}
	for _, addr := range order {
		m.scheduleCheck(addr, "push")
	}
	log.Debug().Int("transactions", len(txs)).Int("wallets", len(order)).Msg("monitor: webhook received")
	return len(order), nil
}

// scheduleCheck runs a background check unless one is already queued for address.
func (m *Manager) scheduleCheck(address, trigger string) {
	m.mu.Lock()
	if _, queued := m.pending[address]; queued {
		m.mu.Unlock()
		return
	}
	m.pending[address] = struct{}{}
	m.mu.Unlock()

	ok := m.submit(trigger+"-check", func(ctx context.Context) error {
		m.mu.Lock()
		delete(m.pending, address)
		m.mu.Unlock()
		_, err := m.checkWallet(ctx, address, trigger)
		return err
	})
	if !ok {
		m.mu.Lock()
		delete(m.pending, address)
		m.mu.Unlock()
	}
}

// submit runs fn in a tracked goroutine on the manager's context. Panics are
// recovered and errors logged. It returns false once the manager is stopped.
func (m *Manager) submit(name string, fn func(ctx context.Context) error) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	ctx := m.runCtx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("task", name).Msg("monitor: background task panic recovered")
			}
		}()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("task", name).Msg("monitor: background task failed")
		}
	}()
	return true
}

// ---------------------------------------------------------------------------
// Wallet check
// ---------------------------------------------------------------------------

// CheckWallet fetches the wallet's recent transactions, alerts on those newer
// than its cursor and advances the cursor.
func (m *Manager) CheckWallet(ctx context.Context, address string) ([]Alert, error) {
	return m.checkWallet(ctx, address, "manual")
}

func (m *Manager) checkWallet(ctx context.Context, address, trigger string) ([]Alert, error) {
	unlock, err := m.locks.Lock(ctx, address)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m.checks.Add(1)
	alerts, err := m.checkLocked(ctx, address)
	outcome := "ok"
	if err != nil {
		m.checkErrors.Add(1)
		outcome = "error"
	}
	observability.WalletChecks.WithLabelValues(trigger, outcome).Inc()
	return alerts, err
}

// checkLocked runs one check. Caller holds the wallet's key lock.
func (m *Manager) checkLocked(ctx context.Context, address string) ([]Alert, error) {
	w, err := m.store.GetWallet(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("monitor: load wallet: %w", err)
	}
	if !w.IsActive {
		return nil, nil
	}

	txs, err := m.txs.RecentTransactions(ctx, address, m.cfg.TxFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("monitor: fetch transactions: %w", err)
	}

	// Past the fetch the check runs to completion: an alert that was sent
	// must be followed by its cursor write, even during shutdown.
	ctx = context.WithoutCancel(ctx)

	fresh := NewTransactions(txs, w.LastSignature)
	if len(fresh) == 0 {
		if err := m.store.UpdateCursor(ctx, address, "", m.now()); err != nil {
			return nil, fmt.Errorf("monitor: touch wallet: %w", err)
		}
		return nil, nil
	}

	names := m.resolveNames(ctx, fresh)
	var alerts []Alert
	for i := range fresh {
		alerts = append(alerts, AnalyzeTransaction(fresh[i], address, names)...)
	}
	if rapid := DetectRapidTransactions(fresh, address); rapid != nil {
		alerts = append(alerts, *rapid)
	}
	for _, a := range alerts {
		m.deliver(ctx, w, a)
	}

	if err := m.store.UpdateCursor(ctx, address, txs[0].Signature, m.now()); err != nil {
		return alerts, fmt.Errorf("monitor: advance cursor: %w", err)
	}
	if len(alerts) > 0 {
		log.Info().
			Str("wallet", shortLog(address)).
			Int("new_txs", len(fresh)).
			Int("alerts", len(alerts)).
			Msg("monitor: alerts raised")
	}
	return alerts, nil
}

// initialCheck runs after AddWallet. A wallet without a cursor gets one set
// to its newest transaction so pre-existing history does not alert; a
// reactivated wallet catches up from its old cursor.
func (m *Manager) initialCheck(ctx context.Context, address string) error {
	unlock, err := m.locks.Lock(ctx, address)
	if err != nil {
		return err
	}
	defer unlock()

	w, err := m.store.GetWallet(ctx, address)
	if err != nil {
		return fmt.Errorf("monitor: load wallet: %w", err)
	}
	if w.LastSignature != "" {
		m.checks.Add(1)
		_, err := m.checkLocked(ctx, address)
		outcome := "ok"
		if err != nil {
			m.checkErrors.Add(1)
			outcome = "error"
		}
		observability.WalletChecks.WithLabelValues("initial", outcome).Inc()
		return err
	}

	txs, err := m.txs.RecentTransactions(ctx, address, 1)
	if err != nil {
		observability.WalletChecks.WithLabelValues("baseline", "error").Inc()
		return fmt.Errorf("monitor: fetch baseline: %w", err)
	}
	var newest string
	if len(txs) > 0 {
		newest = txs[0].Signature
	}
	if err := m.store.UpdateCursor(context.WithoutCancel(ctx), address, newest, m.now()); err != nil {
		observability.WalletChecks.WithLabelValues("baseline", "error").Inc()
		return fmt.Errorf("monitor: set baseline: %w", err)
	}
	observability.WalletChecks.WithLabelValues("baseline", "ok").Inc()
	return nil
}

func (m *Manager) resolveNames(ctx context.Context, txs []helius.EnhancedTransaction) map[string]string {
	if m.names == nil {
		return nil
	}
	var mints []string
	seen := make(map[string]struct{})
	for i := range txs {
		for _, mint := range txs[i].Mints() {
			if _, ok := seen[mint]; ok {
				continue
			}
			seen[mint] = struct{}{}
			mints = append(mints, mint)
		}
	}
	if len(mints) == 0 {
		return nil
	}
	return m.names.Names(ctx, mints)
}

// deliver persists and dispatches one alert. Failures are logged only.
func (m *Manager) deliver(ctx context.Context, w *storage.MonitoredWallet, a Alert) {
	m.alerts.Add(1)
	observability.AlertsTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()

	rec := &storage.MonitorAlert{
		MonitoredWalletID: w.ID,
		Type:              string(a.Type),
		Severity:          string(a.Severity),
		Title:             a.Title,
		Message:           a.Message,
		TxSignature:       a.TxSignature,
	}
	if err := m.store.AppendAlert(ctx, rec); err != nil {
		log.Error().Err(err).Str("wallet", shortLog(w.Address)).Str("type", rec.Type).Msg("monitor: persist alert failed")
	}

	if m.notifier == nil {
		return
	}
	err := m.notifier.Send(ctx, notify.Payload{
		Type:          string(a.Type),
		Severity:      string(a.Severity),
		Title:         a.Title,
		Message:       a.Message,
		WalletAddress: w.Address,
		TxSignature:   a.TxSignature,
	}, w.NotifyTarget)
	switch {
	case errors.Is(err, notify.ErrNotConfigured):
		log.Debug().Str("type", rec.Type).Msg("monitor: notifier not configured, alert stored only")
	case err != nil:
		log.Warn().Err(err).Str("wallet", shortLog(w.Address)).Str("type", rec.Type).Msg("monitor: alert dispatch failed")
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats is a point-in-time view of the manager.
type Stats struct {
	Pushed       int    `json:"pushed"`
	Polled       int    `json:"polled"`
	WebhookID    string `json:"webhook_id,omitempty"`
	Ticks        int64  `json:"ticks"`
	SkippedTicks int64  `json:"skipped_ticks"`
	Checks       int64  `json:"checks"`
	CheckErrors  int64  `json:"check_errors"`
	Alerts       int64  `json:"alerts"`
	WebhookSyncs int64  `json:"webhook_syncs"`
	WebhookFails int64  `json:"webhook_failures"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	var pushed, polled int
	for _, mode := range m.modes {
		if mode == ModePushed {
			pushed++
		} else {
			polled++
		}
	}
	m.mu.Unlock()

	m.hookMu.Lock()
	id := m.webhookID
	m.hookMu.Unlock()

	return Stats{
		Pushed:       pushed,
		Polled:       polled,
		WebhookID:    id,
		Ticks:        m.ticks.Load(),
		SkippedTicks: m.skippedTicks.Load(),
		Checks:       m.checks.Load(),
		CheckErrors:  m.checkErrors.Load(),
		Alerts:       m.alerts.Load(),
		WebhookSyncs: m.webhookSyncs.Load(),
		WebhookFails: m.webhookFails.Load(),
	}
}

func addresses(wallets []*storage.MonitoredWallet) []string {
	out := make([]string, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, w.Address)
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func shortLog(addr string) string {
	if len(addr) > 8 {
		return addr[:8]
	}
	return addr
}
