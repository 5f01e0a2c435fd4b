// Package multiport implements an embeddable multi-port TCP accept and
// dispatch runtime.
//
// Three layered components compose the runtime. A Listener owns one TCP
// accept loop bound to a single port and a small bounded local buffer. A
// Queue multiplexes a set of Listeners into one bounded global FIFO by
// round-robin draining them. A Server owns a Queue and a bounded pool of
// workers that each run a caller-supplied Handler once per dequeued
// connection.
//
// All three support live pause and resume without losing buffered state,
// and live reconfiguration of their ports and buffer limits. When a buffer
// is full, the rejected connection receives a fixed five-byte apology
// banner and is closed; this back-pressure signal is never retried.
//
// Lock order is fixed across the package: membership before a Listener's
// own buffer before a Queue's buffer. Components never interpret the bytes
// flowing over a Connection; that is entirely the Handler's concern.
package multiport
