package multiport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/multiport/internal/logger"
	"github.com/marmos91/multiport/internal/telemetry"
	"github.com/marmos91/multiport/pkg/metrics"
	"go.opentelemetry.io/otel/trace"
)

// Queue multiplexes a set of Listeners, keyed by port, into a single bounded
// global FIFO. A background drain task round-robins across the Listeners in
// insertion order, pulling at most one connection per Listener per pass, and
// appends each to the global buffer or rejects it if the global buffer is
// full.
//
// Lock order across the whole package is membership before per-listener
// buffer before the queue's own buffer. The drain task only ever acquires
// membershipMu (to snapshot the listener set) and then, one at a time, a
// Listener's own buffer lock (via PullOne) followed by the queue's bufMu —
// it never holds two of these locks from different listeners at once.
type Queue struct {
	membershipMu sync.RWMutex
	listeners    []uint16            // insertion order, for round-robin fairness
	byPort       map[uint16]*Listener

	bufMu sync.Mutex
	buf   []Connection
	limit atomic.Uint64 // 0 = unbounded

	drainDone chan struct{}
	stopCh    chan struct{}

	closed atomic.Bool

	m atomic.Pointer[metrics.RuntimeMetrics]
}

// SetMetrics installs (or clears, with nil) the RuntimeMetrics sink the
// Queue and every current and future member Listener report to.
func (q *Queue) SetMetrics(m metrics.RuntimeMetrics) {
	if m == nil {
		q.m.Store(nil)
	} else {
		q.m.Store(&m)
	}
	for _, l := range q.snapshot() {
		l.SetMetrics(m)
	}
}

func (q *Queue) metrics() metrics.RuntimeMetrics {
	p := q.m.Load()
	if p == nil {
		return nil
	}
	return *p
}

// NewQueue constructs a Queue with a Listener already bound on each given
// port, and starts the background drain task. perListenerLimit bounds each
// child Listener's local buffer (0 = unbounded); globalLimit bounds the
// Queue's own buffer (0 = unbounded).
func NewQueue(perListenerLimit, globalLimit uint64, ports ...uint16) (*Queue, error) {
	q := &Queue{
		byPort:    make(map[uint16]*Listener, len(ports)),
		drainDone: make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
	q.limit.Store(globalLimit)

	for _, p := range ports {
		if err := q.add(p, perListenerLimit); err != nil {
			q.closeAll()
			return nil, err
		}
	}

	go q.drain()
	return q, nil
}

func (q *Queue) closeAll() {
	q.membershipMu.Lock()
	defer q.membershipMu.Unlock()
	for _, l := range q.byPort {
		_ = l.Close()
	}
}

// Add binds a new Listener on port and enrolls it in the round-robin set.
// It is a no-op if the port is already a member.
func (q *Queue) Add(port uint16, perListenerLimit uint64) error {
	return q.add(port, perListenerLimit)
}

func (q *Queue) add(port uint16, perListenerLimit uint64) error {
	q.membershipMu.Lock()
	defer q.membershipMu.Unlock()

	if _, ok := q.byPort[port]; ok {
		return nil
	}
	l, err := NewListener(port, perListenerLimit)
	if err != nil {
		return err
	}
	l.SetMetrics(q.metrics())
	q.byPort[port] = l
	q.listeners = append(q.listeners, port)
	return nil
}

// Remove disables and joins the Listener on port, then drops it from the
// round-robin set. It is a no-op if the port is not a member.
func (q *Queue) Remove(port uint16) error {
	q.membershipMu.Lock()
	l, ok := q.byPort[port]
	if !ok {
		q.membershipMu.Unlock()
		return nil
	}
	delete(q.byPort, port)
	for i, p := range q.listeners {
		if p == port {
			q.listeners = append(q.listeners[:i], q.listeners[i+1:]...)
			break
		}
	}
	q.membershipMu.Unlock()

	return l.Close()
}

// Has reports whether port is currently a member of the Queue.
func (q *Queue) Has(port uint16) bool {
	q.membershipMu.RLock()
	defer q.membershipMu.RUnlock()
	_, ok := q.byPort[port]
	return ok
}

// Ports returns the member ports in round-robin (insertion) order.
func (q *Queue) Ports() []uint16 {
	q.membershipMu.RLock()
	defer q.membershipMu.RUnlock()
	out := make([]uint16, len(q.listeners))
	copy(out, q.listeners)
	return out
}

// drain is the background task that multiplexes every member Listener's
// local buffer into the Queue's own global buffer, one connection per
// Listener per pass, in round-robin order. If an entire pass yields nothing,
// it yields briefly rather than spinning.
func (q *Queue) drain() {
	defer close(q.drainDone)

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		members := q.snapshot()

		drained := 0
		for _, l := range members {
			c, ok := l.PullOne()
			if !ok {
				continue
			}
			drained++
			q.handoff(c)
		}

		if drained == 0 {
			select {
			case <-q.stopCh:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}

func (q *Queue) handoff(c Connection) {
	q.bufMu.Lock()
	limit := q.limit.Load()
	if limit == 0 || uint64(len(q.buf)) < limit {
		q.buf = append(q.buf, c)
		depth := len(q.buf)
		q.bufMu.Unlock()
		if m := q.metrics(); m != nil {
			m.SetQueueDepth(depth)
		}
		_, span := telemetry.StartSpan(context.Background(), telemetry.SpanQueueDrain,
			trace.WithAttributes(telemetry.Port(c.Port), telemetry.QueueDepth(depth)))
		span.End()
		return
	}
	q.bufMu.Unlock()
	logger.Debug("queue buffer full, rejecting connection", logger.Port(c.Port), logger.Rejected(true))
	if m := q.metrics(); m != nil {
		m.RecordRejected(c.Port, "queue_full")
	}
	_, span := telemetry.StartSpan(context.Background(), telemetry.SpanQueueDrain,
		trace.WithAttributes(telemetry.Port(c.Port), telemetry.Rejected(true)))
	span.End()
	reject(c)
}

// PullOne removes and returns the oldest globally buffered connection. It
// never blocks: it returns ok=false if the buffer is currently empty.
func (q *Queue) PullOne() (Connection, bool) {
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	if len(q.buf) == 0 {
		return Connection{}, false
	}
	c := q.buf[0]
	q.buf = q.buf[1:]
	depth := len(q.buf)
	if m := q.metrics(); m != nil {
		m.SetQueueDepth(depth)
	}
	return c, true
}

// Size returns the current global buffer depth.
func (q *Queue) Size() int {
	q.bufMu.Lock()
	defer q.bufMu.Unlock()
	return len(q.buf)
}

// GetLimit returns the global buffer cap. 0 means unbounded.
func (q *Queue) GetLimit() uint64 {
	return q.limit.Load()
}

// SetLimit live-reconfigures the global buffer cap.
func (q *Queue) SetLimit(n uint64) {
	q.limit.Store(n)
}

// SetListenerLimit live-reconfigures the per-listener buffer cap for one
// member port. It is a no-op if the port is not a member.
func (q *Queue) SetListenerLimit(port uint16, n uint64) error {
	q.membershipMu.RLock()
	l, ok := q.byPort[port]
	q.membershipMu.RUnlock()
	if !ok {
		return nil
	}
	return l.SetLimit(n)
}

// GetListenerLimit returns the per-listener buffer cap for one member port.
func (q *Queue) GetListenerLimit(port uint16) (uint64, bool) {
	q.membershipMu.RLock()
	l, ok := q.byPort[port]
	q.membershipMu.RUnlock()
	if !ok {
		return 0, false
	}
	return l.GetLimit(), true
}

// Enable resumes every member Listener.
func (q *Queue) Enable() {
	for _, l := range q.snapshot() {
		l.Enable()
	}
}

// Disable pauses every member Listener.
func (q *Queue) Disable() {
	for _, l := range q.snapshot() {
		l.Disable()
	}
}

// EnablePort resumes a single member Listener. It is a no-op if the port is
// not a member.
func (q *Queue) EnablePort(port uint16) {
	q.membershipMu.RLock()
	l, ok := q.byPort[port]
	q.membershipMu.RUnlock()
	if ok {
		l.Enable()
	}
}

// DisablePort pauses a single member Listener. It is a no-op if the port is
// not a member.
func (q *Queue) DisablePort(port uint16) {
	q.membershipMu.RLock()
	l, ok := q.byPort[port]
	q.membershipMu.RUnlock()
	if ok {
		l.Disable()
	}
}

// IsEnabled reports whether at least one member Listener is running.
func (q *Queue) IsEnabled() bool {
	for _, l := range q.snapshot() {
		if l.IsEnabled() {
			return true
		}
	}
	return false
}

func (q *Queue) snapshot() []*Listener {
	q.membershipMu.RLock()
	defer q.membershipMu.RUnlock()
	out := make([]*Listener, 0, len(q.listeners))
	for _, p := range q.listeners {
		out = append(out, q.byPort[p])
	}
	return out
}

// Close stops the drain task and closes every member Listener. Close must
// be called exactly once; a second call is an ErrInvariantViolation (see
// Listener.Close).
func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return newInvariantError("queue closed more than once")
	}

	close(q.stopCh)
	<-q.drainDone

	q.membershipMu.Lock()
	defer q.membershipMu.Unlock()
	for _, l := range q.byPort {
		_ = l.Close()
	}
	return nil
}
