package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shieldfi/walletmon/internal/observability"
)

// Config configures the outbound call budget for the primary chain-data provider.
type Config struct {
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	DailyBudget int64   `yaml:"daily_budget"`  // provider credits per calendar day
	CostPerCall int64   `yaml:"cost_per_call"` // credits charged per call
	WarnRatio   float64 `yaml:"warn_ratio"`
}

// DefaultConfig stays under the provider's 10 req/s free-tier cap.
func DefaultConfig() Config {
	return Config{
		RPS:         8,
		Burst:       8,
		DailyBudget: 33000,
		CostPerCall: 5,
		WarnRatio:   0.8,
	}
}

// Limiter is a token bucket with an advisory daily cost counter.
type Limiter struct {
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time

	mu        sync.Mutex
	day       string
	dailyCost int64
	warned    bool
}

// New creates a limiter. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.DailyBudget <= 0 {
		cfg.DailyBudget = def.DailyBudget
	}
	if cfg.CostPerCall <= 0 {
		cfg.CostPerCall = def.CostPerCall
	}
	if cfg.WarnRatio <= 0 {
		cfg.WarnRatio = def.WarnRatio
	}
	return &Limiter{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		now:     time.Now,
	}
}

// Acquire blocks until a token is available, or ctx is done.
// Reservations are served in arrival order, so concurrent callers queue fairly.
func (l *Limiter) Acquire(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("ratelimit: cannot reserve token")
	}
	if delay := r.Delay(); delay > 0 {
		observability.RateLimitWaits.Inc()
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.Cancel()
			return ctx.Err()
		}
	}
	l.charge()
	return nil
}

// charge adds one call's cost to today's counter, resetting on day rollover.
func (l *Limiter) charge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.now().Format("2006-01-02")
	if today != l.day {
		l.day = today
		l.dailyCost = 0
		l.warned = false
	}

	l.dailyCost += l.cfg.CostPerCall
	observability.RateLimitDailyCost.Set(float64(l.dailyCost))

	threshold := int64(float64(l.cfg.DailyBudget) * l.cfg.WarnRatio)
	if !l.warned && l.dailyCost >= threshold {
		l.warned = true
		log.Warn().
			Int64("used", l.dailyCost).
			Int64("budget", l.cfg.DailyBudget).
			Int64("pct", l.dailyCost*100/l.cfg.DailyBudget).
			Msg("ratelimit: daily credit usage above warning threshold")
	}
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	AvailableTokens int   `json:"available_tokens"`
	DailyCostUsed   int64 `json:"daily_cost_used"`
	DailyBudget     int64 `json:"daily_budget"`
	Warned          bool  `json:"warned"`
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	tokens := int(l.limiter.Tokens())
	if tokens < 0 {
		tokens = 0
	}
	return Stats{
		AvailableTokens: tokens,
		DailyCostUsed:   l.dailyCost,
		DailyBudget:     l.cfg.DailyBudget,
		Warned:          l.warned,
	}
}
