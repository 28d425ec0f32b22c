package session

import (
	"crypto/tls"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// rawConn adapts a raw, non-blocking file descriptor to net.Conn so
// crypto/tls can drive the record layer directly over the same fd the
// reactor polls, instead of handing the connection off to Go's runtime
// netpoller (which would mean a second, competing epoll registration and a
// goroutine-per-TLS-connection departure from spec §4.J's one-worker-loop
// model).
type rawConn struct {
	fd   int
	addr net.Addr
}

// wouldBlockError wraps EAGAIN/EWOULDBLOCK as a temporary net.Error.
// crypto/tls never retries a transport error internally — it returns
// whatever its underlying conn returned straight to the caller — so
// surfacing EAGAIN this way is what lets DoHandshake/Fill/Flush ask the
// reactor for another readiness event and try again, rather than the
// handshake either blocking the worker or failing outright.
type wouldBlockError struct{ err error }

func (e *wouldBlockError) Error() string   { return e.err.Error() }
func (e *wouldBlockError) Timeout() bool   { return true }
func (e *wouldBlockError) Temporary() bool { return true }
func (e *wouldBlockError) Unwrap() error   { return e.err }

func (c *rawConn) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, b)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, &wouldBlockError{err}
		}
		return n, err
	}
}

func (c *rawConn) Write(b []byte) (int, error) {
	for {
		n, err := unix.Write(c.fd, b)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return n, &wouldBlockError{err}
		}
		return n, err
	}
}

// Close is a no-op: the owning Session controls the fd's lifetime, closing
// it once via unix.Close rather than letting the tls.Conn close it first.
func (c *rawConn) Close() error                       { return nil }
func (c *rawConn) LocalAddr() net.Addr                { return nil }
func (c *rawConn) RemoteAddr() net.Addr               { return c.addr }
func (c *rawConn) SetDeadline(t time.Time) error      { return nil }
func (c *rawConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *rawConn) SetWriteDeadline(t time.Time) error { return nil }

// NewTLSHandshaker wraps fd in a server-side crypto/tls connection backed
// by rawConn, satisfying Handshaker. The returned value is also a plain
// net.Conn usable for the session's post-handshake Fill/Flush, so the
// record layer keeps participating in encryption/decryption for the life
// of the session, not just during negotiation.
func NewTLSHandshaker(fd int, addr net.Addr, config *tls.Config) Handshaker {
	return tls.Server(&rawConn{fd: fd, addr: addr}, config)
}
