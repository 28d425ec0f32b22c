package session

import (
	stdErrors "errors"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/iamNilotpal/ignite/pkg/buffer"
)

// ErrWouldBlock is returned by Fill/Flush/DoHandshake to signal the
// operation must be retried after the reactor sees another readable or
// writable event; it is not a failure.
var ErrWouldBlock = stdErrors.New("session: operation would block")

// ErrHangup is returned by Fill when the remote end has closed its side of
// the stream (a zero-byte read).
var ErrHangup = stdErrors.New("session: remote hung up")

// New wraps an already-accepted, already-set-nonblocking file descriptor.
// If hs is non-nil the session starts Handshaking; otherwise it starts
// Established, matching spec §4.G ("plain streams start in Established").
func New(token uint64, fd int, addr net.Addr, hs Handshaker) *Session {
	s := &Session{
		Token: token,
		fd:    fd,
		addr:  addr,
		hs:    hs,
		Read:  buffer.New(4096),
		Write: buffer.New(4096),
	}
	if hs != nil {
		s.state = Handshaking
		s.conn = hs // kept past handshake completion; Fill/Flush route through it
	} else {
		s.state = Established
	}
	return s
}

// Fd returns the underlying file descriptor, used by the reactor to
// register/re-arm epoll interest.
func (s *Session) Fd() int { return s.fd }

// Addr returns the session's remote address.
func (s *Session) Addr() net.Addr { return s.addr }

// State returns the session's current lifecycle stage.
func (s *Session) State() State { return s.state }

// Close marks the session Closed and closes its file descriptor. Safe to
// call more than once.
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}
	s.state = Closed
	return unix.Close(s.fd)
}

// Fill reads from the stream into the read buffer until the kernel
// returns EAGAIN/EWOULDBLOCK, returning the total bytes read. A zero-byte
// read with no error (or ErrHangup on the final iteration) signals remote
// hangup, per spec §4.G. EINTR is retried transparently.
func (s *Session) Fill() (int, error) {
	if s.conn != nil {
		return s.fillTLS()
	}

	total := 0
	for {
		s.Read.Reserve(4096)
		buf := s.Read.Writable()
		n, err := unix.Read(s.fd, buf)
		if n > 0 {
			s.Read.AdvanceWrite(n)
			total += n
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			if total == 0 {
				return 0, ErrHangup
			}
			return total, nil
		}
		if n < len(buf) {
			// Short read: the socket is drained for now.
			return total, nil
		}
	}
}

// fillTLS is Fill's counterpart for TLS sessions: reads decrypted
// application bytes through s.conn instead of the raw fd. crypto/tls never
// retries a blocked transport read internally, so a wrapped EAGAIN here
// means exactly what it means on the plain path: stop for now, no error.
func (s *Session) fillTLS() (int, error) {
	total := 0
	for {
		s.Read.Reserve(4096)
		buf := s.Read.Writable()
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.Read.AdvanceWrite(n)
			total += n
		}
		if err != nil {
			if stdErrors.Is(err, unix.EAGAIN) {
				return total, nil
			}
			if stdErrors.Is(err, io.EOF) {
				if total == 0 {
					return 0, ErrHangup
				}
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			if total == 0 {
				return 0, ErrHangup
			}
			return total, nil
		}
		if n < len(buf) {
			return total, nil
		}
	}
}

// Flush writes the readable portion of the write buffer to the stream
// until WouldBlock or empty. Partial writes advance the buffer's read
// pointer and are not themselves an error, per spec §4.G.
func (s *Session) Flush() error {
	if s.conn != nil {
		return s.flushTLS()
	}

	for s.Write.Len() > 0 {
		buf := s.Write.Readable()
		n, err := unix.Write(s.fd, buf)
		if n > 0 {
			s.Write.Advance(n)
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return ErrWouldBlock
			}
			return err
		}
	}
	return nil
}

// flushTLS is Flush's counterpart for TLS sessions, encrypting through
// s.conn instead of writing the raw fd directly.
func (s *Session) flushTLS() error {
	for s.Write.Len() > 0 {
		buf := s.Write.Readable()
		n, err := s.conn.Write(buf)
		if n > 0 {
			s.Write.Advance(n)
		}
		if err != nil {
			if stdErrors.Is(err, unix.EAGAIN) {
				return ErrWouldBlock
			}
			return err
		}
	}
	return nil
}

// DoHandshake progresses a Handshaking session's TLS negotiation by one
// step. It returns ErrWouldBlock while incomplete and transitions to
// Established on success.
func (s *Session) DoHandshake() error {
	if s.state != Handshaking {
		return nil
	}
	if err := s.hs.Handshake(); err != nil {
		if stdErrors.Is(err, unix.EAGAIN) {
			return ErrWouldBlock
		}
		return err
	}
	s.state = Established
	s.hs = nil
	return nil
}

// Interest reports the epoll event mask this session currently wants:
// READABLE is always of interest; WRITABLE is added whenever the write
// buffer is non-empty, per spec §4.G.
func (s *Session) Interest() uint32 {
	ev := uint32(unix.EPOLLIN)
	if s.Write.Len() > 0 {
		ev |= uint32(unix.EPOLLOUT)
	}
	return ev
}

// NeedsBackpressure reports whether the write buffer has grown past the
// configured write capacity, signalling the worker to pause parsing for
// this session until Flush drains it (spec §4.J).
func (s *Session) NeedsBackpressure() bool {
	return s.Write.Len() > writeCapacity
}
