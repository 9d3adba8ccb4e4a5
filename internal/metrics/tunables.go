package metrics

import (
	"sync"
	"time"

	"classpulse/internal/config"
)

// Tunables holds the runtime-adjustable knobs shared by the metrics engine
// and the push service. update_config messages mutate these process-wide;
// loops and collection cycles pick changes up on their next tick.
type Tunables struct {
	mu           sync.RWMutex
	metrics      config.MetricsConfig
	pushInterval time.Duration
}

// NewTunables seeds the runtime knobs from static configuration.
func NewTunables(m *config.MetricsConfig, pushInterval time.Duration) *Tunables {
	return &Tunables{
		metrics:      *m,
		pushInterval: pushInterval,
	}
}

// Metrics returns a copy of the current metrics thresholds.
func (t *Tunables) Metrics() config.MetricsConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// PushInterval returns the current push-loop interval.
func (t *Tunables) PushInterval() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pushInterval
}

// Apply updates recognized tunables from a client config payload and returns
// the values actually applied. Unknown keys and out-of-range values are
// ignored; JSON numbers arrive as float64.
func (t *Tunables) Apply(changes map[string]interface{}) map[string]interface{} {
	applied := make(map[string]interface{})

	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := changes["push_interval_seconds"].(float64); ok && v > 0 {
		t.pushInterval = time.Duration(v * float64(time.Second))
		applied["push_interval_seconds"] = v
	}
	if v, ok := changes["consecutive_error_threshold"].(float64); ok && v >= 1 {
		t.metrics.ConsecutiveMissMax = int(v)
		applied["consecutive_error_threshold"] = float64(t.metrics.ConsecutiveMissMax)
	}
	if v, ok := changes["accuracy_drop_delta"].(float64); ok && v > 0 && v < 1 {
		t.metrics.AccuracyDropDelta = v
		applied["accuracy_drop_delta"] = v
	}
	if v, ok := changes["trend_delta"].(float64); ok && v > 0 && v < 1 {
		t.metrics.TrendDelta = v
		applied["trend_delta"] = v
	}

	return applied
}
