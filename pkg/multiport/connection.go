package multiport

import "net"

// Connection wraps one accepted TCP socket together with the port it was
// accepted on. It has exactly one owner at any instant: a Connection is
// created by a Listener at accept time, handed off to a Queue, then to a
// Server worker, then finally to the user handler. It is moved, never
// shared, through that pipeline.
//
// The Port field reflects the port the Listener was bound to at the moment
// of accept. If the Listener is later reconfigured with SetPort, buffered
// Connections keep the port value they were accepted with; they are never
// retroactively relabelled.
type Connection struct {
	// Conn is the accepted TCP socket. The current owner is responsible for
	// reading, writing, and ultimately closing it.
	Conn net.Conn

	// Port is the listener port this connection was accepted on.
	Port uint16

	// ID is a correlation identifier assigned at accept time. It follows the
	// Connection across the Listener, Queue, and Server handoffs so that
	// logs and spans for a single connection can be tied together.
	ID string
}

// Close closes the underlying socket. It is safe to call on a zero-value
// Connection's Conn being nil only if the caller checked beforehand;
// Close itself does not nil-check, matching net.Conn.Close semantics.
func (c Connection) Close() error {
	return c.Conn.Close()
}

// apologyBanner is the literal rejection message written to a connection
// that arrives when the destination buffer is full. It carries no
// terminator or newline: exactly 5 ASCII bytes.
var apologyBanner = []byte("Sorry")

// reject writes the apology banner and closes the connection. Write
// failures are not retried; the connection is closed regardless.
func reject(c Connection) {
	_, _ = c.Conn.Write(apologyBanner)
	_ = c.Conn.Close()
}
