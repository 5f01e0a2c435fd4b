// Package metrics defines the runtime observability contract for the
// Listener/Queue/Server stack, independent of any particular metrics backend.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	enabled  atomic.Bool
	registry *prometheus.Registry
	initOnce sync.Once
)

// InitRegistry creates the process-wide Prometheus registry and marks
// metrics collection enabled. Safe to call once at startup; subsequent
// calls are no-ops.
func InitRegistry() *prometheus.Registry {
	initOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
		enabled.Store(true)
	})
	return registry
}

// IsEnabled reports whether InitRegistry has been called. Constructors for
// concrete metrics implementations use this to return nil (zero overhead)
// when metrics collection was never turned on.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the process-wide registry, or nil if metrics were
// never initialized.
func GetRegistry() *prometheus.Registry {
	return registry
}
