package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitor_RegisterAndCheck(t *testing.T) {
	mon := NewHealthMonitor(time.Second)
	mon.Register("rpc", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy, Message: "ok"}
	})
	mon.Register("storage", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	})

	health := mon.Check(context.Background())
	assert.Equal(t, StatusHealthy, health.Status)
	require.Len(t, health.Components, 2)

	rpc := health.Components["rpc"]
	assert.Equal(t, "rpc", rpc.Name)
	assert.Equal(t, "ok", rpc.Message)
	assert.False(t, rpc.LastChecked.IsZero())

	_, ok := mon.Component("storage")
	assert.True(t, ok)
	_, ok = mon.Component("nope")
	assert.False(t, ok)
}

func TestHealthMonitor_AggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ComponentStatus
		expected ComponentStatus
	}{
		{"all healthy", []ComponentStatus{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []ComponentStatus{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []ComponentStatus{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := NewHealthMonitor(time.Minute)
			for i, s := range tt.statuses {
				status := s
				mon.Register(string(rune('a'+i)), func(ctx context.Context) ComponentHealth {
					return ComponentHealth{Status: status}
				})
			}
			assert.Equal(t, tt.expected, mon.Check(context.Background()).Status)
		})
	}
}

func TestHealthMonitor_Transitions(t *testing.T) {
	mon := NewHealthMonitor(time.Minute)
	var calls atomic.Int32
	mon.Register("rpc", func(ctx context.Context) ComponentHealth {
		if calls.Add(1) == 1 {
			return ComponentHealth{Status: StatusHealthy}
		}
		return ComponentHealth{Status: StatusUnhealthy, Message: "connection refused"}
	})

	mon.Check(context.Background())
	tr := <-mon.Transitions()
	assert.Equal(t, StatusHealthy, tr.To)
	assert.Empty(t, tr.From)

	mon.Check(context.Background())
	tr = <-mon.Transitions()
	assert.Equal(t, StatusHealthy, tr.From)
	assert.Equal(t, StatusUnhealthy, tr.To)
	assert.Equal(t, "connection refused", tr.Message)

	// Same status again: no transition.
	mon.Check(context.Background())
	assert.Len(t, mon.transitions, 0)
}

func TestHealthMonitor_StartStop(t *testing.T) {
	mon := NewHealthMonitor(20 * time.Millisecond)
	var calls atomic.Int32
	mon.Register("tick", func(ctx context.Context) ComponentHealth {
		calls.Add(1)
		return ComponentHealth{Status: StatusHealthy}
	})

	done := make(chan struct{})
	go func() {
		mon.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	mon.Stop()
	mon.Stop()
	<-done
}

func TestHealthMonitor_Handler(t *testing.T) {
	mon := NewHealthMonitor(time.Minute)
	mon.Register("rpc", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUnhealthy, Message: "down"}
	})

	rec := httptest.NewRecorder()
	mon.Handler(func() map[string]any {
		return map[string]any{"cache_size": 3}
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, float64(3), body["stats"].(map[string]any)["cache_size"])
}
