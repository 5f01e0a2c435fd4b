package metrics

import "time"

// RuntimeMetrics provides observability for the Listener/Queue/Server stack.
//
// Implementations can collect metrics about connection lifecycle, queue
// depth, worker utilization, and back-pressure events. This interface is
// optional - pass nil to disable metrics collection with zero overhead.
//
// Example usage:
//
//	srv, err := multiport.NewServer(handler, perListenerLimit, globalLimit, workerLimit, ports...)
//
//	// With metrics enabled (NewRuntimeMetrics returns nil until InitRegistry is called)
//	metrics.InitRegistry()
//	srv.SetMetrics(prometheus.NewRuntimeMetrics())
//
//	// Without metrics (pass nil for zero overhead)
//	srv.SetMetrics(nil)
type RuntimeMetrics interface {
	// RecordAccepted increments the total accepted-connections counter for a port.
	RecordAccepted(port uint16)

	// RecordRejected increments the total rejected-connections counter for a
	// port, tagged by the reason for rejection ("listener_full" or "queue_full").
	RecordRejected(port uint16, reason string)

	// RecordHandled records a completed handler invocation with its duration
	// and whether it panicked.
	RecordHandled(port uint16, duration time.Duration, panicked bool)

	// SetListenerBufferDepth updates the current local buffer depth for a port.
	SetListenerBufferDepth(port uint16, depth int)

	// SetQueueDepth updates the current global buffer depth.
	SetQueueDepth(depth int)

	// SetWorkerCount updates the current in-flight worker count.
	SetWorkerCount(count int)

	// SetListenerState records a listener's current pause/resume state.
	// state is one of: running, pausing, paused, resuming, stopping.
	SetListenerState(port uint16, state string)
}
