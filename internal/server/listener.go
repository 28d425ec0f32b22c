package server

import (
	"crypto/tls"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/iamNilotpal/ignite/internal/queue"
	"github.com/iamNilotpal/ignite/internal/reactor"
	"github.com/iamNilotpal/ignite/internal/session"
)

// NewListener binds addr and builds a Listener that dispatches established
// sessions to workers via registry. If tlsConfig is non-nil, every accepted
// connection starts in the Handshaking state wrapped in a TLS handshaker
// instead of being handed to a worker already Established.
func NewListener(addr string, workers *queue.Registry, tlsConfig *tls.Config, log *zap.SugaredLogger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
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

	return &Listener{
		log:       log,
		ln:        ln,
		lnFd:      fd,
		reactor:   r,
		workers:   workers,
		tlsConfig: tlsConfig,
		shutdown:  make(chan struct{}),
	}, nil
}

// Addr returns the bound address (useful when addr was "host:0").
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Shutdown broadcasts a shutdown signal to every worker queue and stops
// the listener's Run loop.
func (l *Listener) Shutdown() {
	close(l.shutdown)
	_ = l.workers.TrySendAll(shutdownSignal{})
	l.workers.FlushWakeAll()
	_ = l.reactor.Wake()
}

// Close releases the listener's resources.
func (l *Listener) Close() error {
	l.reactor.Close()
	unix.Close(l.lnFd)
	return l.ln.Close()
}

// Run drives the listener's accept loop until Shutdown is called. On each
// readable event on the listener token, it keeps accepting until accept
// reports EAGAIN, so one event can admit several connections; it does not
// stop after the first. Each connection goes to a worker chosen uniformly
// at random.
func (l *Listener) Run() error {
	for {
		select {
		case <-l.shutdown:
			return nil
		default:
		}

		err := l.reactor.Poll(func(fd int, ev reactor.Event) {
			if ev.Token != reactor.TokenListener {
				return
			}
			l.acceptReady()
		})
		if err != nil {
			return err
		}
	}
}

func (l *Listener) acceptReady() {
	for {
		connFd, addr, err := acceptOne(l.lnFd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if l.log != nil {
				l.log.Warnw("accept failed", "error", err)
			}
			return
		}

		token := uint64(connFd) // unique for the connection's lifetime; workers key their session maps by it
		var hs session.Handshaker
		if l.tlsConfig != nil {
			hs = session.NewTLSHandshaker(connFd, addr, l.tlsConfig)
		}
		sess := session.New(token, connFd, addr, hs)

		if sendErr := l.workers.TrySendAny(incomingSession{sess: sess}); sendErr != nil {
			if l.log != nil {
				l.log.Warnw("dropping connection: all worker queues full", "error", sendErr)
			}
			sess.Close()
			continue
		}
		l.workers.FlushWakeAll()
	}
}
