package multiport

import (
	"sync"
	"time"
)

// fakeMetrics records every call made to it, guarded by a mutex since the
// accept, drain, and dispatch tasks all call into it concurrently.
type fakeMetrics struct {
	mu sync.Mutex

	accepted   []uint16
	rejected   []string // "port:reason"
	handled    int
	panicked   int
	listenerBD map[uint16]int
	queueDepth int
	workers    int
	states     map[uint16]string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		listenerBD: make(map[uint16]int),
		states:     make(map[uint16]string),
	}
}

func (f *fakeMetrics) RecordAccepted(port uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, port)
}

func (f *fakeMetrics) RecordRejected(port uint16, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, reason)
}

func (f *fakeMetrics) RecordHandled(port uint16, duration time.Duration, panicked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled++
	if panicked {
		f.panicked++
	}
}

func (f *fakeMetrics) SetListenerBufferDepth(port uint16, depth int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenerBD[port] = depth
}

func (f *fakeMetrics) SetQueueDepth(depth int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueDepth = depth
}

func (f *fakeMetrics) SetWorkerCount(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers = count
}

func (f *fakeMetrics) SetListenerState(port uint16, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[port] = state
}

func (f *fakeMetrics) acceptedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepted)
}

func (f *fakeMetrics) rejectedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rejected)
}

func (f *fakeMetrics) handledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handled
}

func (f *fakeMetrics) stateOf(port uint16) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[port]
}

func (f *fakeMetrics) listenerDepth(port uint16) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listenerBD[port]
}
