package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for walletmon.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Server    ServerConfig    `yaml:"server"`
	Solana    SolanaConfig    `yaml:"solana"`
	Helius    HeliusConfig    `yaml:"helius"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Cache     CacheConfig     `yaml:"cache"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	WebhookPath string `yaml:"webhook_path"`
}

type SolanaConfig struct {
	RPCEndpoint         string        `yaml:"rpc_endpoint"`
	FallbackRPCEndpoint string        `yaml:"fallback_rpc_endpoint"`
	WSEndpoint          string        `yaml:"ws_endpoint"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxRetries          int           `yaml:"max_retries"`
}

type HeliusConfig struct {
	APIKey        string `yaml:"api_key"`
	RPCURL        string `yaml:"rpc_url"` // DAS endpoint, api-key appended
	APIURL        string `yaml:"api_url"` // REST base for transactions + webhooks
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type RateLimitConfig struct {
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	DailyBudget int64   `yaml:"daily_budget"`
	CostPerCall int64   `yaml:"cost_per_call"`
	WarnRatio   float64 `yaml:"warn_ratio"`
}

type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

type MonitorConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	WebhookInitDelay time.Duration `yaml:"webhook_init_delay"`
	TxFetchLimit     int           `yaml:"tx_fetch_limit"`
	LogsWatch        bool          `yaml:"logs_watch"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	DefaultChatID string `yaml:"default_chat_id"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory|postgres
	PostgresDSN string `yaml:"postgres_dsn"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses a YAML configuration file. A .env file next to the
// working directory is loaded first so ${VAR} references can resolve from it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "walletmon-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Server.ListenAddr == "" || cfg.Server.ListenAddr == ":" {
		cfg.Server.ListenAddr = ":3001"
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = "/api/webhooks/helius"
	}
	if cfg.Solana.RPCEndpoint == "" {
		cfg.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.FallbackRPCEndpoint == "" {
		cfg.Solana.FallbackRPCEndpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.Timeout == 0 {
		cfg.Solana.Timeout = 10 * time.Second
	}
	if cfg.Solana.MaxRetries == 0 {
		cfg.Solana.MaxRetries = 2
	}
	if cfg.Helius.RPCURL == "" {
		cfg.Helius.RPCURL = "https://mainnet.helius-rpc.com"
	}
	if cfg.Helius.APIURL == "" {
		cfg.Helius.APIURL = "https://api.helius.xyz"
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 8
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 8
	}
	if cfg.RateLimit.DailyBudget == 0 {
		cfg.RateLimit.DailyBudget = 33000
	}
	if cfg.RateLimit.CostPerCall == 0 {
		cfg.RateLimit.CostPerCall = 5
	}
	if cfg.RateLimit.WarnRatio == 0 {
		cfg.RateLimit.WarnRatio = 0.8
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 200
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 60 * time.Second
	}
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = 120 * time.Second
	}
	if cfg.Monitor.WebhookInitDelay == 0 {
		cfg.Monitor.WebhookInitDelay = 5 * time.Second
	}
	if cfg.Monitor.TxFetchLimit == 0 {
		cfg.Monitor.TxFetchLimit = 10
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
}

// Validate checks the loaded configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.General.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("general.log_format must be json or text, got %q", c.General.LogFormat))
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver must be memory or postgres, got %q", c.Storage.Driver))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 1 {
		problems = append(problems, "ratelimit.rps must be >= 0 and ratelimit.burst >= 1")
	}
	if c.RateLimit.WarnRatio <= 0 || c.RateLimit.WarnRatio > 1 {
		problems = append(problems, "ratelimit.warn_ratio must be in (0, 1]")
	}
	if c.Monitor.TxFetchLimit < 1 || c.Monitor.TxFetchLimit > 100 {
		problems = append(problems, "monitor.tx_fetch_limit must be in [1, 100]")
	}
	if c.Helius.WebhookURL != "" && c.Helius.APIKey == "" {
		problems = append(problems, "helius.webhook_url requires helius.api_key")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PushAvailable reports whether webhook registration can be attempted.
func (c *Config) PushAvailable() bool {
	return c.Helius.APIKey != "" && c.Helius.WebhookURL != ""
}
