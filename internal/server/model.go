// Package server implements the listener-thread / worker-thread split of
// spec §4.I/§4.J: an accept thread that owns the bound socket and dispatches
// established sessions to workers over bounded queues, and worker threads
// that own a reactor, a slab of sessions, and — in the single-worker
// topology — a Seg engine directly (multi-worker dispatches parsed
// requests to a dedicated storage thread instead).
package server

import (
	"crypto/tls"
	"net"

	"go.uber.org/zap"

	"github.com/iamNilotpal/ignite/internal/protocol/memcache"
	"github.com/iamNilotpal/ignite/internal/queue"
	"github.com/iamNilotpal/ignite/internal/reactor"
	"github.com/iamNilotpal/ignite/internal/seg"
	"github.com/iamNilotpal/ignite/internal/session"
)

// Topology selects how workers relate to the Seg engine, per spec §2's
// "two worker topologies are supported."
type Topology int

const (
	// SingleWorker: exactly one worker owns storage directly. Config's
	// WorkerCount is forced to 1 for this topology (see New).
	SingleWorker Topology = iota
	// MultiWorker: every worker dispatches parsed requests to a single
	// dedicated StorageThread over request/response queues (internal/
	// server/storage.go) instead of touching the engine itself.
	MultiWorker
)

// Config configures a Server, named after spec §6's server.*/worker.*
// fields.
type Config struct {
	Addr            string
	Topology        Topology
	WorkerCount     int
	WorkerNevent    int
	WorkerTimeoutMS int

	Engine *seg.Engine
	Logger *zap.SugaredLogger

	KlogSampleRate int

	// StorageQueueCapacity bounds the MultiWorker topology's shared
	// request queue into the storage thread. Ignored in SingleWorker mode.
	// Defaults to 1024 when unset.
	StorageQueueCapacity int

	// TLSConfig, when non-nil, wraps every accepted connection in a
	// server-side TLS handshaker (spec §6's tls.* fields). The listener does
	// not run the handshake: it dispatches the session while still
	// Handshaking, and the adopting worker completes it. Certificate loading
	// into this config is the caller's responsibility.
	TLSConfig *tls.Config
}

// incomingSession is what the listener thread hands to a worker over its
// inbound queue: a newly accepted session. A plain session arrives
// Established; a TLS session arrives still Handshaking and the worker
// finishes its handshake before normal event handling.
type incomingSession struct {
	sess *session.Session
}

// shutdownSignal is broadcast to every worker's inbox when the listener
// shuts down, telling the worker to stop its poll loop after draining
// in-flight work.
type shutdownSignal struct{}

// FlushAllSignal is broadcast to every worker's inbox by the admin
// surface's flush_all command, so the clear runs on each worker's own
// goroutine rather than racing the engine's single-threaded-per-owner
// structures from the admin goroutine directly.
type FlushAllSignal struct{}

// Listener owns the bound socket and fans accepted sessions out to
// workers.
type Listener struct {
	log       *zap.SugaredLogger
	ln        net.Listener
	lnFd      int
	reactor   *reactor.Reactor
	workers   *queue.Registry
	tlsConfig *tls.Config
	shutdown  chan struct{}
}

// Worker owns a slab of established sessions, its own reactor, and either
// (SingleWorker topology) a direct reference to the shared Seg engine, or
// (MultiWorker topology) a handle to the storage thread plus the response
// queue it was registered under.
type Worker struct {
	id      int
	log     *zap.SugaredLogger
	reactor *reactor.Reactor
	inbox   *queue.Queue
	engine  *seg.Engine

	// storage/responses/pending are non-nil only in the MultiWorker
	// topology. storage is the shared dispatch target every worker submits
	// requests to; responses is this worker's own inbound queue of
	// storageResponse values; pending counts in-flight requests per session
	// token for the maxPendingPerSession back-pressure check.
	storage   *StorageThread
	responses *queue.Queue
	pending   map[uint64]int

	sessions map[uint64]*session.Session
	fdToken  map[int]uint64

	klog     *memcache.Klog
	composer memcache.Composer
}
