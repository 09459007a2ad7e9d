package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ComponentStatus is the health of one dependency.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is the report for a single dependency.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Latency     time.Duration   `json:"latency_ms"`
	Details     map[string]any  `json:"details,omitempty"`
}

// SystemHealth aggregates every registered check. Status is the worst component status.
type SystemHealth struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	Uptime     time.Duration              `json:"uptime"`
}

// Transition is emitted when a component's status changes.
type Transition struct {
	Component string          `json:"component"`
	From      ComponentStatus `json:"from,omitempty"`
	To        ComponentStatus `json:"to"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"ts"`
}

// HealthMonitor runs registered checks on an interval and on demand.
type HealthMonitor struct {
	mu           sync.RWMutex
	checks       map[string]HealthCheck
	results      map[string]ComponentHealth
	startTime    time.Time
	interval     time.Duration
	checkTimeout time.Duration
	transitions  chan Transition
	stopCh       chan struct{}
	stopped      sync.Once
}

func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		checks:       make(map[string]HealthCheck),
		results:      make(map[string]ComponentHealth),
		startTime:    time.Now(),
		interval:     interval,
		checkTimeout: 5 * time.Second,
		transitions:  make(chan Transition, 64),
		stopCh:       make(chan struct{}),
	}
}

// Register adds a named check. Registering the same name twice replaces it.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start runs checks immediately and then every interval until ctx is done or Stop is called.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runChecks(ctx)
		}
	}
}

func (m *HealthMonitor) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// Check runs every check synchronously and returns the aggregate.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.runChecks(ctx)
	return m.snapshot()
}

// Transitions returns status-change notifications. Sends never block; a full channel drops.
func (m *HealthMonitor) Transitions() <-chan Transition {
	return m.transitions
}

// Component returns the last result for name.
func (m *HealthMonitor) Component(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.results[name]
	return h, ok
}

// Handler serves the aggregate as JSON. Extra, if non-nil, is merged under "stats".
// Unhealthy maps to 503; degraded still returns 200.
func (m *HealthMonitor) Handler(extra func() map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := m.Check(r.Context())
		body := map[string]any{
			"status":     health.Status,
			"components": health.Components,
			"ts":         health.Timestamp,
			"uptime_s":   int64(health.Uptime.Seconds()),
		}
		if extra != nil {
			body["stats"] = extra()
		}

		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Debug().Err(err).Msg("health: write response failed")
		}
	})
}

// -----------------------------------------------------------------------
// Internal
// -----------------------------------------------------------------------

func (m *HealthMonitor) runChecks(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	fresh := make(map[string]ComponentHealth, len(checks))
	for name, fn := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
		start := time.Now()
		result := fn(checkCtx)
		cancel()
		result.Name = name
		result.LastChecked = time.Now()
		result.Latency = time.Since(start)
		fresh[name] = result
	}

	m.mu.Lock()
	prev := m.results
	m.results = fresh
	m.mu.Unlock()

	for name, cur := range fresh {
		old, seen := prev[name]
		if seen && old.Status == cur.Status {
			continue
		}
		m.emit(name, old.Status, cur)
	}
}

func (m *HealthMonitor) emit(name string, from ComponentStatus, h ComponentHealth) {
	msg := h.Message
	if msg == "" {
		msg = "status changed to " + string(h.Status)
	}

	ev := log.Info()
	switch h.Status {
	case StatusUnhealthy:
		ev = log.Error()
	case StatusDegraded:
		ev = log.Warn()
	}
	ev.Str("component", name).Str("from", string(from)).Str("to", string(h.Status)).Msg("health: " + msg)

	select {
	case m.transitions <- Transition{Component: name, From: from, To: h.Status, Message: msg, Timestamp: time.Now()}:
	default:
	}
}

func (m *HealthMonitor) snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.results))
	worst := StatusHealthy
	for name, h := range m.results {
		components[name] = h
		if severity(h.Status) > severity(worst) {
			worst = h.Status
		}
	}

	return SystemHealth{
		Status:     worst,
		Components: components,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime),
	}
}

func severity(s ComponentStatus) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return -1
	}
}
