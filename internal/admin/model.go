// Package admin implements the external collaborator surface of spec §6:
// a second ASCII-framed TCP listener, independent of the memcache
// listener, answering stats/version/flush_all/quit. flush_all is fanned
// out to every worker queue via the same broadcast registry the memcache
// listener's queues already use.
package admin

import (
	"net"

	"go.uber.org/zap"

	"github.com/iamNilotpal/ignite/internal/queue"
	"github.com/iamNilotpal/ignite/internal/reactor"
	"github.com/iamNilotpal/ignite/internal/seg"
	"github.com/iamNilotpal/ignite/internal/session"
)

// Config configures a Server.
type Config struct {
	Addr    string
	Engine  *seg.Engine
	Workers *queue.Registry // broadcast target for flush_all
	Logger  *zap.SugaredLogger
	Version string
}

// Server owns the admin listener's socket, its own small reactor, and a
// slab of line-oriented sessions. It is a scaled-down cousin of
// internal/server's Listener+Worker split, collapsed into one
// single-threaded loop since admin traffic never needs more than one.
type Server struct {
	log      *zap.SugaredLogger
	ln       net.Listener
	lnFd     int
	reactor  *reactor.Reactor
	engine   *seg.Engine
	workers  *queue.Registry
	version  string
	sessions map[uint64]*session.Session
	shutdown chan struct{}
}
