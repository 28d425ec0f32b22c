package admin

import (
	"bytes"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/iamNilotpal/ignite/internal/reactor"
	"github.com/iamNilotpal/ignite/internal/server"
	"github.com/iamNilotpal/ignite/internal/session"
)

// New binds cfg.Addr and builds an admin Server.
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

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		log:      cfg.Logger,
		ln:       ln,
		lnFd:     fd,
		reactor:  r,
		engine:   cfg.Engine,
		workers:  cfg.Workers,
		version:  version,
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

// Close releases the admin listener's fds.
func (s *Server) Close() error {
	s.reactor.Close()
	unix.Close(s.lnFd)
	return s.ln.Close()
}

// Run drives the admin accept+session loop until Shutdown is called.
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
			if err == unix.EAGAIN {
				return
			}
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
		if s.drainLines(sess) {
			return
		}
	}
	if err != nil {
		_ = sess.Flush()
		s.closeSession(sess)
		return
	}
	s.rearm(sess)
}

// drainLines processes every complete CRLF- or LF-terminated line
// buffered for sess. It returns true if the session was closed (a quit
// command or an unrecoverable flush error), in which case the caller must
// not touch sess again.
func (s *Server) drainLines(sess *session.Session) bool {
	for {
		readable := sess.Read.Readable()
		nl := bytes.IndexByte(readable, '\n')
		if nl < 0 {
			return false
		}
		line := readable[:nl]
		line = bytes.TrimSuffix(line, []byte("\r"))
		consumed := nl + 1
		sess.Read.Advance(consumed)

		quit := s.handleLine(sess, line)
		if quit {
			_ = sess.Flush()
			s.closeSession(sess)
			return true
		}
	}
}

func (s *Server) handleLine(sess *session.Session, line []byte) (quit bool) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		sess.Write.Write([]byte("ERROR\r\n"))
		return false
	}

	switch {
	case bytes.EqualFold(fields[0], []byte("version")):
		sess.Write.Write([]byte("VERSION " + s.version + "\r\n"))

	case bytes.EqualFold(fields[0], []byte("stats")):
		s.writeStats(sess)

	case bytes.EqualFold(fields[0], []byte("flush_all")):
		if s.workers != nil {
			_ = s.workers.TrySendAll(server.FlushAllSignal{})
			s.workers.FlushWakeAll()
		} else if s.engine != nil {
			s.engine.Clear()
		}
		sess.Write.Write([]byte("OK\r\n"))

	case bytes.EqualFold(fields[0], []byte("quit")):
		return true

	default:
		sess.Write.Write([]byte("ERROR\r\n"))
	}
	return false
}

func (s *Server) writeStats(sess *session.Session) {
	if s.engine == nil {
		sess.Write.Write([]byte("END\r\n"))
		return
	}
	st := s.engine.Stats()
	var buf bytes.Buffer
	buf.WriteString("STAT segments_total " + strconv.FormatUint(st.SegmentsTotal, 10) + "\r\n")
	buf.WriteString("STAT segments_free " + strconv.FormatUint(st.SegmentsFree, 10) + "\r\n")
	buf.WriteString("STAT segment_size " + strconv.FormatUint(uint64(st.SegmentSize), 10) + "\r\n")
	buf.WriteString("STAT heap_bytes " + strconv.FormatUint(st.HeapBytes, 10) + "\r\n")
	buf.WriteString("END\r\n")
	sess.Write.Write(buf.Bytes())
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
