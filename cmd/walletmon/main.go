package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shieldfi/walletmon/internal/adapters/dexscreener"
	"github.com/shieldfi/walletmon/internal/adapters/helius"
	"github.com/shieldfi/walletmon/internal/adapters/jupiter"
	"github.com/shieldfi/walletmon/internal/cache"
	"github.com/shieldfi/walletmon/internal/config"
	"github.com/shieldfi/walletmon/internal/metadata"
	"github.com/shieldfi/walletmon/internal/monitor"
	"github.com/shieldfi/walletmon/internal/notify"
	"github.com/shieldfi/walletmon/internal/observability"
	"github.com/shieldfi/walletmon/internal/ratelimit"
	"github.com/shieldfi/walletmon/internal/risk"
	"github.com/shieldfi/walletmon/internal/scanner"
	"github.com/shieldfi/walletmon/internal/solana"
	"github.com/shieldfi/walletmon/internal/storage"
	"github.com/shieldfi/walletmon/internal/storage/memory"
	"github.com/shieldfi/walletmon/internal/storage/migrations"
	"github.com/shieldfi/walletmon/internal/storage/postgres"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/walletmon.yaml", "Path to configuration file")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Str("storage", cfg.Storage.Driver).
		Bool("push", cfg.PushAvailable()).
		Bool("logs_watch", cfg.Monitor.LogsWatch).
		Msg("walletmon - starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 4. Outbound budget and providers.
	limiter := ratelimit.New(ratelimit.Config{
		RPS:         cfg.RateLimit.RPS,
		Burst:       cfg.RateLimit.Burst,
		DailyBudget: cfg.RateLimit.DailyBudget,
		CostPerCall: cfg.RateLimit.CostPerCall,
		WarnRatio:   cfg.RateLimit.WarnRatio,
	})

	heliusClient := helius.NewClient(helius.Config{
		APIKey: cfg.Helius.APIKey,
		RPCURL: cfg.Helius.RPCURL,
		APIURL: cfg.Helius.APIURL,
	}, limiter)
	if !heliusClient.Configured() {
		log.Warn().Msg("Helius API key not set: metadata falls back to public providers and transaction checks will fail")
	}

	primaryRPC, secondaryRPC, closeRPC := newChainClients(cfg, heliusClient, limiter)
	defer closeRPC()

	healthCtx, healthCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := primaryRPC.Health(healthCtx); err != nil {
		log.Warn().Err(err).Msg("Primary chain RPC health check failed (continuing, fallback available)")
	} else {
		log.Info().Msg("Primary chain RPC connected")
	}
	healthCancel()

	resolver := metadata.NewResolver(
		heliusClient,
		dexscreener.NewClient("", 5*time.Second),
		jupiter.NewPriceClient("", 5*time.Second),
		metadata.DefaultConfig(),
	)

	// 5. Storage.
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Storage initialization failed")
	}
	defer store.Close()

	// 6. Notification.
	telegram, err := notify.NewTelegram(notify.TelegramConfig{
		BotToken:      cfg.Telegram.BotToken,
		DefaultChatID: cfg.Telegram.DefaultChatID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Telegram notifier initialization failed")
	}
	if !telegram.Configured() {
		log.Warn().Msg("Telegram not configured: alerts are stored but not sent")
	}

	// 7. Scanner.
	approvalsCache := cache.New[*scanner.Snapshot]("approvals", cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
	})
	walletScanner := scanner.New(scanner.Deps{
		Primary:   primaryRPC,
		Secondary: secondaryRPC,
		Metadata:  resolver,
		Cache:     approvalsCache,
		Store:     store,
		Analyzer:  risk.NewAnalyzer(heliusClient, primaryRPC),
	})

	// 8. Monitor.
	monitorDeps := monitor.Deps{
		Store:    store,
		Txs:      heliusClient,
		Names:    resolver,
		Notifier: telegram,
	}
	if cfg.PushAvailable() {
		monitorDeps.Webhooks = heliusClient
	}
	var logsWatcher *solana.LogsWatcher
	if cfg.Monitor.LogsWatch {
		wsCfg := solana.DefaultLogsWatcherConfig()
		if cfg.Solana.WSEndpoint != "" {
			wsCfg.WSEndpoint = cfg.Solana.WSEndpoint
		}
		logsWatcher = solana.NewLogsWatcher(wsCfg)
		monitorDeps.Watcher = logsWatcher
	}
	manager := monitor.New(monitor.Config{
		PollInterval:     cfg.Monitor.PollInterval,
		WebhookInitDelay: cfg.Monitor.WebhookInitDelay,
		TxFetchLimit:     cfg.Monitor.TxFetchLimit,
		WebhookURL:       cfg.Helius.WebhookURL,
		WebhookSecret:    cfg.Helius.WebhookSecret,
	}, monitorDeps)

	// 9. Health.
	health := observability.NewHealthMonitor(30 * time.Second)
	health.Register("chain_rpc", func(ctx context.Context) observability.ComponentHealth {
		return probe("chain_rpc", func() error { return primaryRPC.Health(ctx) })
	})
	health.Register("storage", func(ctx context.Context) observability.ComponentHealth {
		return probe("storage", func() error { return store.Ping(ctx) })
	})
	health.Register("monitor", func(context.Context) observability.ComponentHealth {
		st := manager.Stats()
		h := observability.ComponentHealth{
			Name:    "monitor",
			Status:  observability.StatusHealthy,
			Details: map[string]any{"pushed": st.Pushed, "polled": st.Polled, "webhook_id": st.WebhookID},
		}
		if cfg.PushAvailable() && st.Polled > 0 && st.Pushed == 0 {
			h.Status = observability.StatusDegraded
			h.Message = "webhook unavailable, all wallets polled"
		}
		return h
	})

	// 10. HTTP.
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebhookPath, manager.WebhookHandler())
	(&api{scans: walletScanner, wallets: manager, store: store}).register(mux)
	mux.Handle("GET /health", health.Handler(func() map[string]any {
		stats := map[string]any{
			"ratelimit": limiter.Stats(),
			"cache":     approvalsCache.Stats(),
			"metadata":  map[string]int{"cached_mints": resolver.Size()},
			"helius":    heliusClient.Stats(),
			"scanner":   walletScanner.Stats(),
			"monitor":   manager.Stats(),
			"telegram":  telegram.Stats(),
		}
		if logsWatcher != nil {
			stats["logs_watcher"] = logsWatcher.Stats()
		}
		return stats
	}))
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 11. Start services.
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case tr := <-health.Transitions():
				log.Warn().
					Str("component", tr.Component).
					Str("from", string(tr.From)).
					Str("to", string(tr.To)).
					Str("message", tr.Message).
					Msg("Health transition")
			}
		}
	}()

	if err := manager.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Monitor start failed")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", server.Addr).Str("webhook_path", cfg.Server.WebhookPath).Msg("HTTP server started")
		if srvErr := server.ListenAndServe(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			log.Error().Err(srvErr).Msg("HTTP server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("walletmon - shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	shutdownCancel()

	manager.Stop()
	health.Stop()
	wg.Wait()

	st := manager.Stats()
	log.Info().
		Int64("checks", st.Checks).
		Int64("alerts", st.Alerts).
		Int64("ticks", st.Ticks).
		Int64("daily_cost", limiter.Stats().DailyCostUsed).
		Msg("walletmon - shutdown complete")
}

// newChainClients picks the keyed provider endpoint as primary when available,
// with the configured public endpoint behind it. Only the primary spends the
// rate-limited budget.
func newChainClients(cfg *config.Config, h *helius.Client, limiter *ratelimit.Limiter) (solana.RPCClient, solana.RPCClient, func()) {
	base := solana.RPCConfig{
		WSEndpoint: cfg.Solana.WSEndpoint,
		Timeout:    cfg.Solana.Timeout,
		MaxRetries: cfg.Solana.MaxRetries,
	}

	primaryCfg := base
	secondaryCfg := base
	if h.Configured() {
		primaryCfg.Endpoint = h.RPCEndpoint()
		secondaryCfg.Endpoint = cfg.Solana.RPCEndpoint
	} else {
		primaryCfg.Endpoint = cfg.Solana.RPCEndpoint
		secondaryCfg.Endpoint = cfg.Solana.FallbackRPCEndpoint
	}

	primary := solana.NewLiveRPCClient(primaryCfg, limiter)
	if secondaryCfg.Endpoint == "" || secondaryCfg.Endpoint == primaryCfg.Endpoint {
		log.Info().Msg("Chain RPC: no distinct fallback endpoint, failover disabled")
		return primary, nil, primary.Close
	}
	secondary := solana.NewLiveRPCClient(secondaryCfg, nil)
	return primary, secondary, func() {
		primary.Close()
		secondary.Close()
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info().Msg("Storage: postgres, migrations applied")
		return postgres.NewStore(pool), nil
	default:
		log.Warn().Msg("Storage: in-memory, state is lost on restart")
		return memory.NewStore(), nil
	}
}

func probe(name string, fn func() error) observability.ComponentHealth {
	h := observability.ComponentHealth{Name: name, Status: observability.StatusHealthy}
	if err := fn(); err != nil {
		h.Status = observability.StatusUnhealthy
		h.Message = err.Error()
	}
	return h
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "walletmon").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "walletmon").
			Str("instance", general.InstanceID).Logger()
	}
}
