package multiport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/multiport/internal/logger"
	"github.com/marmos91/multiport/internal/telemetry"
	"github.com/marmos91/multiport/pkg/metrics"
	"go.opentelemetry.io/otel/trace"
)

// runState is the Listener's pause/resume state machine, per the design's
// accept-loop contract: Running, Pausing, Paused, Resuming, Stopping.
type runState int32

const (
	stateRunning runState = iota
	statePausing
	statePaused
	stateResuming
	stateStopping
)

func (s runState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case statePausing:
		return "pausing"
	case statePaused:
		return "paused"
	case stateResuming:
		return "resuming"
	case stateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Listener owns one TCP accept loop for one port. It hands off accepted
// sockets through a bounded local FIFO, and supports live pause/resume and
// live reconfiguration of its port and buffer limit.
//
// The pause/resume rendezvous is implemented with a state machine guarded
// by a sync.Cond rather than a busy-wait on a flag: the accept task blocks
// on the condition variable while paused, and Disable/Enable block on the
// same condition variable until the target state is observed. The single
// suspension point inside a cycle is the blocking Accept call itself, and
// pause only takes effect once the task returns to the top of the loop. A
// connection that Accept has already returned is handed off before the
// pause; an Accept still waiting with no pending connection is woken by an
// immediate deadline on the listening socket, without taking anything from
// the kernel backlog.
type Listener struct {
	stateMu sync.Mutex
	cond    *sync.Cond
	state   runState
	netLn   net.Listener

	closed atomic.Bool

	port  atomic.Uint32
	limit atomic.Uint64 // 0 = unbounded

	bufMu sync.Mutex
	buf   []Connection

	acceptDone chan struct{}

	m atomic.Pointer[metrics.RuntimeMetrics]
}

// SetMetrics installs (or clears, with nil) the RuntimeMetrics sink the
// Listener reports accept/reject/depth/state events to. Safe to call
// concurrently with the running accept loop.
func (l *Listener) SetMetrics(m metrics.RuntimeMetrics) {
	if m == nil {
		l.m.Store(nil)
		return
	}
	l.m.Store(&m)
}

func (l *Listener) metrics() metrics.RuntimeMetrics {
	p := l.m.Load()
	if p == nil {
		return nil
	}
	return *p
}

// NewListener binds the given port and starts the background accept task.
// It returns only once the accept task is observably ready to accept, or
// with a *RuntimeError (ErrBindFailed) if the bind itself fails.
//
// limit of 0 means the local buffer is unbounded.
func NewListener(port uint16, limit uint64) (*Listener, error) {
	l := &Listener{
		state:      stateRunning,
		acceptDone: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.stateMu)
	l.port.Store(uint32(port))
	l.limit.Store(limit)

	ln, err := net.Listen("tcp", addrFor(port))
	if err != nil {
		return nil, newBindError(port, err)
	}
	l.netLn = ln

	ready := make(chan struct{})
	go l.run(ready)
	<-ready

	return l, nil
}

func addrFor(port uint16) string {
	return fmt.Sprintf(":%d", port)
}

// run is the accept task. It loops: wait-for-resume, accept one socket,
// hand off or reject.
func (l *Listener) run(ready chan struct{}) {
	defer close(l.acceptDone)

	var closeReady sync.Once
	signalReady := func() { closeReady.Do(func() { close(ready) }) }

	for {
		l.stateMu.Lock()
		for l.state != stateRunning {
			switch l.state {
			case statePausing:
				l.state = statePaused
				l.cond.Broadcast()
				l.reportState(statePaused)
			case stateResuming:
				l.state = stateRunning
				l.cond.Broadcast()
				l.reportState(stateRunning)
			case stateStopping:
				l.stateMu.Unlock()
				l.reportState(stateStopping)
				signalReady()
				return
			}
			if l.state != stateRunning {
				l.cond.Wait()
			}
		}
		ln := l.netLn
		port := uint16(l.port.Load())
		l.stateMu.Unlock()
		signalReady()

		conn, err := ln.Accept()

		l.stateMu.Lock()
		stopping := l.state == stateStopping
		l.cond.Broadcast()
		l.stateMu.Unlock()

		if err != nil {
			if stopping {
				return
			}
			logger.Debug("listener accept failed, retrying", logger.Port(port), logger.Err(err))
			continue
		}

		if m := l.metrics(); m != nil {
			m.RecordAccepted(port)
		}
		c := Connection{Conn: conn, Port: port, ID: uuid.NewString()}
		logger.Debug("accepted connection", logger.Port(port), logger.ConnectionID(c.ID))
		_, acceptSpan := telemetry.StartSpan(context.Background(), telemetry.SpanListenerAccept,
			trace.WithAttributes(telemetry.Port(port), telemetry.ConnectionID(c.ID)))
		acceptSpan.End()
		l.handoff(c)
	}
}

// reportState forwards a state transition to the metrics sink, if any, and
// records it as a standalone span carrying the new state, since state
// transitions aren't tied to any single connection's handler span.
func (l *Listener) reportState(s runState) {
	port := uint16(l.port.Load())
	if m := l.metrics(); m != nil {
		m.SetListenerState(port, s.String())
	}
	_, span := telemetry.StartSpan(context.Background(), telemetry.SpanListenerAccept,
		trace.WithAttributes(telemetry.Port(port), telemetry.ListenerState(s.String())))
	span.End()
}

// handoff appends the connection to the local buffer, or rejects it with
// the apology banner if the buffer is at its limit.
func (l *Listener) handoff(c Connection) {
	l.bufMu.Lock()
	limit := l.limit.Load()
	if limit == 0 || uint64(len(l.buf)) < limit {
		l.buf = append(l.buf, c)
		depth := len(l.buf)
		l.bufMu.Unlock()
		if m := l.metrics(); m != nil {
			m.SetListenerBufferDepth(c.Port, depth)
		}
		return
	}
	l.bufMu.Unlock()
	if m := l.metrics(); m != nil {
		m.RecordRejected(c.Port, "listener_full")
	}
	_, span := telemetry.StartSpan(context.Background(), telemetry.SpanListenerHandoff,
		trace.WithAttributes(telemetry.Port(c.Port), telemetry.Rejected(true)))
	span.End()
	reject(c)
}

// PullOne removes and returns the oldest buffered connection. It never
// blocks: it returns ok=false if the buffer is currently empty.
func (l *Listener) PullOne() (Connection, bool) {
	l.bufMu.Lock()
	defer l.bufMu.Unlock()
	if len(l.buf) == 0 {
		return Connection{}, false
	}
	c := l.buf[0]
	l.buf = l.buf[1:]
	depth := len(l.buf)
	if m := l.metrics(); m != nil {
		m.SetListenerBufferDepth(c.Port, depth)
	}
	return c, true
}

// Size returns the current buffer depth.
func (l *Listener) Size() int {
	l.bufMu.Lock()
	defer l.bufMu.Unlock()
	return len(l.buf)
}

// GetPort returns the port this Listener is currently bound to.
func (l *Listener) GetPort() uint16 {
	return uint16(l.port.Load())
}

// SetPort live-reconfigures the listening port. It pauses the accept loop,
// rebinds the socket, then resumes (only if the Listener was running
// beforehand — an explicitly disabled Listener stays disabled). Connections
// already buffered under the old port keep that port value; they are never
// retroactively relabelled.
func (l *Listener) SetPort(port uint16) error {
	return l.withPauseForReconfig(func() error {
		newLn, err := net.Listen("tcp", addrFor(port))
		if err != nil {
			return newBindError(port, err)
		}
		l.stateMu.Lock()
		old := l.netLn
		l.netLn = newLn
		l.stateMu.Unlock()
		l.port.Store(uint32(port))
		if old != nil {
			_ = old.Close()
		}
		return nil
	})
}

// GetLimit returns the current local buffer cap. 0 means unbounded.
func (l *Listener) GetLimit() uint64 {
	return l.limit.Load()
}

// SetLimit live-reconfigures the local buffer cap, pausing and resuming
// around the update for the same reason SetPort does: so that no accept
// cycle observes a configuration in the middle of changing.
func (l *Listener) SetLimit(n uint64) error {
	return l.withPauseForReconfig(func() error {
		l.limit.Store(n)
		return nil
	})
}

// withPauseForReconfig pauses the accept loop (if running), runs fn, then
// resumes only if the Listener was running before the call and fn
// succeeded. A Listener that was already disabled by the caller stays
// disabled afterward; one left paused by a failed fn (e.g. a SetPort
// rebind whose new port is already taken) stays paused and surfaces the
// error here rather than resuming onto a broken configuration.
func (l *Listener) withPauseForReconfig(fn func() error) error {
	l.stateMu.Lock()
	wasRunning := l.state == stateRunning || l.state == stateResuming
	l.stateMu.Unlock()

	if wasRunning {
		l.Disable()
	}
	err := fn()
	if wasRunning && err == nil {
		l.Enable()
	}
	return err
}

// Disable is idempotent. It blocks until the accept task has completed its
// current in-flight accept cycle and entered the paused state. An Accept
// waiting with no pending connection is woken by an immediate deadline, so
// Disable does not wait for a new connection to arrive; connections left in
// the kernel backlog are accepted after Enable.
func (l *Listener) Disable() {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.state == stateStopping || l.state == statePaused {
		return
	}
	if l.state != statePausing {
		l.state = statePausing
		l.cond.Broadcast()
	}
	dl, canWake := l.netLn.(interface{ SetDeadline(time.Time) error })
	if canWake {
		_ = dl.SetDeadline(time.Now())
	}
	for l.state != statePaused && l.state != stateStopping {
		l.cond.Wait()
	}
	if canWake {
		_ = dl.SetDeadline(time.Time{})
	}
}

// Enable is idempotent. It blocks until the accept task has resumed.
func (l *Listener) Enable() {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.state == stateStopping || l.state == stateRunning {
		return
	}
	if l.state != stateResuming {
		l.state = stateResuming
		l.cond.Broadcast()
	}
	for l.state != stateRunning && l.state != stateStopping {
		l.cond.Wait()
	}
}

// IsEnabled reports whether the accept loop is currently running.
func (l *Listener) IsEnabled() bool {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state == stateRunning
}

// Close signals the accept task to exit, resuming it first if paused so it
// can observe the exit, and joins it before returning. Concurrent with
// Disable, destruct always wins.
//
// Close must be called exactly once: a Listener has a single owner, and a
// second call indicates two owners raced to tear it down. Close reports
// that as an ErrInvariantViolation rather than joining an already-joined
// task a second time.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return newInvariantError("listener closed more than once")
	}

	l.stateMu.Lock()
	l.state = stateStopping
	l.cond.Broadcast()
	ln := l.netLn
	l.stateMu.Unlock()

	// Closing the listener socket unblocks a currently-blocked Accept call,
	// the loop's only suspension point, so the task can observe Stopping
	// even with no pending connection.
	if ln != nil {
		_ = ln.Close()
	}

	<-l.acceptDone
	return nil
}
