package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Listener / Queue / Server
	// ========================================================================
	KeyPort          = "port"           // Listener port
	KeyListenerState = "listener_state" // running, pausing, paused, resuming, stopping
	KeyQueueDepth    = "queue_depth"    // Current global buffer depth
	KeyWorkerCount   = "worker_count"   // Current in-flight worker count
	KeyRejected      = "rejected"       // Whether a connection was rejected for back-pressure

	// ========================================================================
	// Client & Connection
	// ========================================================================
	KeyClientIP     = "client_ip"     // Client IP address
	KeyClientPort   = "client_port"   // Client source port
	KeyConnectionID = "connection_id" // Per-connection correlation ID

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeyOperation  = "operation"   // Sub-operation type
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Port returns a slog.Attr for a listener port
func Port(port uint16) slog.Attr {
	return slog.Any(KeyPort, port)
}

// ListenerState returns a slog.Attr for a listener's pause/resume state
func ListenerState(state string) slog.Attr {
	return slog.String(KeyListenerState, state)
}

// QueueDepth returns a slog.Attr for the current global buffer depth
func QueueDepth(depth int) slog.Attr {
	return slog.Int(KeyQueueDepth, depth)
}

// WorkerCount returns a slog.Attr for the current in-flight worker count
func WorkerCount(count int) slog.Attr {
	return slog.Int(KeyWorkerCount, count)
}

// Rejected returns a slog.Attr for whether a connection was rejected
func Rejected(rejected bool) slog.Attr {
	return slog.Bool(KeyRejected, rejected)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for client source port
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// ConnectionID returns a slog.Attr for a per-connection correlation ID
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
