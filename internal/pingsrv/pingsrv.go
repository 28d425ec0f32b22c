// Package pingsrv implements a minimal, protocol-free liveness responder:
// accept a connection, read a line, reply PONG\r\n, repeat. It shares the
// reactor/session/listener plumbing internal/server and internal/admin
// already build, costing little beyond this file, and is grounded in
// original_source's pingserver-rs (the "most over-engineered ping server",
// trimmed here to the one behavior that actually matters for a liveness
// check).
package pingsrv

import (
	"bytes"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/iamNilotpal/ignite/internal/reactor"
	"github.com/iamNilotpal/ignite/internal/session"
)

var pong = []byte("PONG\r\n")

// Config configures a Server.
type Config struct {
	Addr   string
	Logger *zap.SugaredLogger
}

// Server owns the ping listener's socket, a reactor, and a slab of
// sessions, collapsed into a single loop like internal/admin since ping
// traffic is low-volume by nature.
type Server struct {
	log      *zap.SugaredLogger
	ln       net.Listener
	lnFd     int
	reactor  *reactor.Reactor
	sessions map[uint64]*session.Session
	shutdown chan struct{}
}

// New binds cfg.Addr and builds a Server.
func New(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, unix.EINVAL
	}

	fd, err := listenerFd(tcpLn)
	if err != nil {
		ln.Close()
		return nil, err
	}

	r, err := reactor.New(reactor.Config{})
	if err != nil {
		unix.Close(fd)
		ln.Close()
		return nil, err
	}
	if err := r.RegisterListener(fd); err != nil {
		r.Close()
		unix.Close(fd)
		ln.Close()
		return nil, err
	}

	return &Server{
		log:      cfg.Logger,
		ln:       ln,
		lnFd:     fd,
		reactor:  r,
		sessions: make(map[uint64]*session.Session),
		shutdown: make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Shutdown stops Run and releases resources.
func (s *Server) Shutdown() {
	close(s.shutdown)
	_ = s.reactor.Wake()
}

// Close releases the listener's fds.
func (s *Server) Close() error {
	s.reactor.Close()
	unix.Close(s.lnFd)
	return s.ln.Close()
}

// Run drives the accept+session loop until Shutdown is called.
func (s *Server) Run() error {
	for {
		select {
		case <-s.shutdown:
			s.closeAll()
			return nil
		default:
		}

		err := s.reactor.Poll(func(fd int, ev reactor.Event) {
			if ev.Token == reactor.TokenWaker {
				return
			}
			if ev.Token == reactor.TokenListener {
				s.acceptReady()
				return
			}
			sess, ok := s.sessions[ev.Token]
			if !ok {
				return
			}
			s.handleEvent(sess, ev)
		})
		if err != nil {
			return err
		}
	}
}

func (s *Server) acceptReady() {
	for {
		connFd, addr, err := acceptOne(s.lnFd)
		if err != nil {
			return
		}
		token := uint64(connFd)
		sess := session.New(token, connFd, addr, nil)
		if err := s.reactor.RegisterSession(connFd, token, sess.Interest()); err != nil {
			sess.Close()
			continue
		}
		s.sessions[token] = sess
	}
}

func (s *Server) handleEvent(sess *session.Session, ev reactor.Event) {
	if ev.Error {
		s.closeSession(sess)
		return
	}
	if ev.Writable {
		if err := sess.Flush(); err != nil && err != session.ErrWouldBlock {
			s.closeSession(sess)
			return
		}
	}
	if !ev.Readable {
		s.rearm(sess)
		return
	}

	n, err := sess.Fill()
	if n > 0 {
		s.drainLines(sess)
	}
	if err != nil {
		_ = sess.Flush()
		s.closeSession(sess)
		return
	}
	s.rearm(sess)
}

func (s *Server) drainLines(sess *session.Session) {
	for {
		readable := sess.Read.Readable()
		nl := bytes.IndexByte(readable, '\n')
		if nl < 0 {
			return
		}
		sess.Read.Advance(nl + 1)
		sess.Write.Write(pong)
	}
}

func (s *Server) rearm(sess *session.Session) {
	_ = s.reactor.ModifySession(sess.Fd(), sess.Token, sess.Interest())
}

func (s *Server) closeSession(sess *session.Session) {
	_ = s.reactor.Unregister(sess.Fd())
	delete(s.sessions, sess.Token)
	_ = sess.Close()
}

func (s *Server) closeAll() {
	for _, sess := range s.sessions {
		s.closeSession(sess)
	}
}
