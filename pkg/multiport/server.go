package multiport

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/marmos91/multiport/internal/logger"
	"github.com/marmos91/multiport/internal/telemetry"
	"github.com/marmos91/multiport/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one accepted connection. The handler owns the
// Connection for its entire lifetime and is responsible for closing it; the
// Server closes it on the handler's behalf only when the handler panics.
type Handler func(Connection)

// Server owns a Queue and a bounded pool of workers that each execute the
// Handler once per dequeued connection. The in-flight worker set is owned
// exclusively by the dispatch task, so it needs no lock of its own: nothing
// else ever touches it, per the package's lock-ordering discipline.
type Server struct {
	queue   *Queue
	handler Handler

	limitExecutor atomic.Uint64 // worker cap; 0 falls back to GOMAXPROCS

	dispatchDone chan struct{}
	stopCh       chan struct{}

	closed atomic.Bool

	m atomic.Pointer[metrics.RuntimeMetrics]
}

// SetMetrics installs (or clears, with nil) the RuntimeMetrics sink the
// Server, its Queue, and every member Listener report to.
func (s *Server) SetMetrics(m metrics.RuntimeMetrics) {
	if m == nil {
		s.m.Store(nil)
	} else {
		s.m.Store(&m)
	}
	s.queue.SetMetrics(m)
}

func (s *Server) metrics() metrics.RuntimeMetrics {
	p := s.m.Load()
	if p == nil {
		return nil
	}
	return *p
}

// NewServer constructs a Server backed by a Listener on each given port,
// draining through a Queue into a bounded worker pool that executes
// handler. perListenerLimit and globalLimit bound the Listener and Queue
// buffers respectively (0 = unbounded); limitExecutor bounds the number of
// concurrently running workers (0 = runtime.GOMAXPROCS(0)).
func NewServer(handler Handler, perListenerLimit, globalLimit, limitExecutor uint64, ports ...uint16) (*Server, error) {
	q, err := NewQueue(perListenerLimit, globalLimit, ports...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		queue:        q,
		handler:      handler,
		dispatchDone: make(chan struct{}),
		stopCh:       make(chan struct{}),
	}
	s.limitExecutor.Store(limitExecutor)

	go s.dispatch()
	return s, nil
}

func (s *Server) workerCap() int {
	n := s.limitExecutor.Load()
	if n == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return int(n)
}

// dispatch is the single task that owns the in-flight worker set. Each
// pass it reaps workers that have finished, then — while under the worker
// cap — pulls one connection from the Queue and spawns a worker for it. An
// empty pull yields briefly rather than spinning.
func (s *Server) dispatch() {
	defer close(s.dispatchDone)

	inFlight := make(map[int]chan struct{})
	nextID := 0

	reap := func() {
		for id, done := range inFlight {
			select {
			case <-done:
				delete(inFlight, id)
			default:
			}
		}
	}

	for {
		select {
		case <-s.stopCh:
			for _, done := range inFlight {
				<-done
			}
			return
		default:
		}

		reap()

		if m := s.metrics(); m != nil {
			m.SetWorkerCount(len(inFlight))
		}

		if len(inFlight) >= s.workerCap() {
			time.Sleep(time.Millisecond)
			continue
		}

		c, ok := s.queue.PullOne()
		if !ok {
			select {
			case <-s.stopCh:
				for _, done := range inFlight {
					<-done
				}
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}

		_, dispatchSpan := telemetry.StartSpan(context.Background(), telemetry.SpanServerDispatch,
			trace.WithAttributes(telemetry.Port(c.Port), telemetry.WorkerCount(len(inFlight)+1)))
		dispatchSpan.End()

		done := make(chan struct{})
		id := nextID
		nextID++
		inFlight[id] = done
		go s.runWorker(c, done)
	}
}

// runWorker executes the handler for one connection, containing any panic
// so that a single misbehaving handler invocation never takes down the
// dispatch task or any other worker.
func (s *Server) runWorker(c Connection, done chan struct{}) {
	attrs := []attribute.KeyValue{}
	if c.Conn != nil {
		if addr := c.Conn.RemoteAddr(); addr != nil {
			attrs = append(attrs, telemetry.ClientAddr(addr.String()))
		}
	}
	_, span := telemetry.StartHandlerSpan(context.Background(), c.Port, c.ID, attrs...)

	start := time.Now()
	panicked := false
	defer close(done)
	defer span.End()
	defer func() {
		if m := s.metrics(); m != nil {
			m.RecordHandled(c.Port, time.Since(start), panicked)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			span.RecordError(fmt.Errorf("connection handler panicked: %v", r))
			logger.Error("connection handler panicked", logger.Port(c.Port), "panic", r)
			_ = c.Close()
		}
	}()
	s.handler(c)
}

// GetLimitExecutor returns the worker cap. 0 means it tracks GOMAXPROCS.
func (s *Server) GetLimitExecutor() uint64 {
	return s.limitExecutor.Load()
}

// SetLimitExecutor live-reconfigures the worker cap. It takes effect on the
// dispatch task's next pass; it never preempts workers already running.
func (s *Server) SetLimitExecutor(n uint64) {
	s.limitExecutor.Store(n)
}

// Queue exposes the underlying Queue for membership and pause/resume
// control (Add, Remove, Enable, Disable, and so on).
func (s *Server) Queue() *Queue {
	return s.queue
}

// Close stops the dispatch task, waits for in-flight workers to finish,
// and closes the underlying Queue (and transitively every member
// Listener). Close must be called exactly once; a second call is an
// ErrInvariantViolation (see Listener.Close).
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return newInvariantError("server closed more than once")
	}

	close(s.stopCh)
	<-s.dispatchDone
	return s.queue.Close()
}
