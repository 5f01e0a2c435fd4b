package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for runtime operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Listener/Queue/Server attributes
	// ========================================================================
	AttrPort          = "multiport.port"
	AttrListenerState = "multiport.listener_state"
	AttrQueueDepth    = "multiport.queue_depth"
	AttrWorkerCount   = "multiport.worker_count"
	AttrConnectionID  = "multiport.connection_id"
	AttrRejected      = "multiport.rejected"
)

// Span names for operations.
const (
	SpanListenerAccept  = "listener.accept"
	SpanListenerHandoff = "listener.handoff"
	SpanQueueDrain      = "queue.drain"
	SpanServerDispatch  = "server.dispatch"
	SpanHandlerExecute  = "handler.execute"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Port returns an attribute for a listener port.
func Port(port uint16) attribute.KeyValue {
	return attribute.Int(AttrPort, int(port))
}

// ListenerState returns an attribute for a listener's pause/resume state.
func ListenerState(state string) attribute.KeyValue {
	return attribute.String(AttrListenerState, state)
}

// QueueDepth returns an attribute for the current global buffer depth.
func QueueDepth(depth int) attribute.KeyValue {
	return attribute.Int(AttrQueueDepth, depth)
}

// WorkerCount returns an attribute for the current in-flight worker count.
func WorkerCount(count int) attribute.KeyValue {
	return attribute.Int(AttrWorkerCount, count)
}

// ConnectionID returns an attribute for a per-connection correlation ID.
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// Rejected returns an attribute for whether a connection was rejected for
// back-pressure.
func Rejected(rejected bool) attribute.KeyValue {
	return attribute.Bool(AttrRejected, rejected)
}

// StartHandlerSpan starts a span around one handler execution.
func StartHandlerSpan(ctx context.Context, port uint16, connectionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Port(port),
		ConnectionID(connectionID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanHandlerExecute, trace.WithAttributes(allAttrs...))
}
