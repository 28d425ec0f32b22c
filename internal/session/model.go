// Package session implements the per-connection state described in spec
// §4.G: one stream, one read buffer, one write buffer, an address, and a
// small handshake state machine for streams that need to complete TLS
// negotiation before they can be treated as ordinary byte streams.
package session

import (
	"net"

	"github.com/iamNilotpal/ignite/pkg/buffer"
)

// State is the session's lifecycle stage.
type State int

const (
	// Handshaking: a TLS-wrapped stream that has not yet completed
	// negotiation. Plain streams skip this state entirely.
	Handshaking State = iota
	// Established: ordinary byte-stream reads/writes are valid.
	Established
	// Closed: the session is done; no further I/O should be attempted.
	Closed
)

// writeCapacity bounds per-session write buffer growth before back-pressure
// kicks in and parsing pauses for that session (spec §4.J).
const writeCapacity = 1 << 20 // 1 MiB

// Handshaker is satisfied by a net.Conn wrapped for TLS (e.g. *tls.Conn);
// its Handshake method progresses negotiation one non-blocking step at a
// time in the way *tls.Conn.HandshakeContext does with a context, or
// returns an error wrapping a would-block signal from the reactor's poller.
type Handshaker interface {
	net.Conn
	Handshake() error
}

// Session owns a stream, paired read/write buffers, and its network
// address, plus the lifecycle state machine of spec §4.G.
type Session struct {
	Token uint64 // reactor-assigned identity, stable for the session's lifetime

	fd    int
	hs    Handshaker // non-nil only while State == Handshaking
	conn  net.Conn   // non-nil for TLS sessions; outlives hs, used by Fill/Flush
	addr  net.Addr
	state State

	Read  *buffer.Buffer
	Write *buffer.Buffer
}
