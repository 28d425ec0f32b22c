package server

import (
	"github.com/iamNilotpal/ignite/internal/protocol/memcache"
	"github.com/iamNilotpal/ignite/internal/queue"
	"github.com/iamNilotpal/ignite/internal/reactor"
	"github.com/iamNilotpal/ignite/internal/session"
)

// maxPendingPerSession bounds how many requests a MultiWorker-topology
// worker will have outstanding at the storage thread for one session before
// it pauses parsing further requests off that session's read buffer. This
// is the MultiWorker analogue of the write-capacity back-pressure SingleWorker
// gets for free from the write buffer: without it, a session pipelining
// many requests ahead of slow storage-thread replies would let its parsed-
// but-uncomposed request count grow unbounded.
const maxPendingPerSession = 64

// NewWorker builds a Worker of the given id, with its own reactor and
// inbox queue registered on registry so the listener thread can address it.
//
// In the SingleWorker topology (storage == nil), this worker is the sole
// owner of cfg.Engine and calls it directly: none of the arena, hash table,
// or ttl buckets need their own locking because nothing else touches them.
//
// In the MultiWorker topology (storage != nil), this worker never touches
// cfg.Engine itself. It parses requests as before, but instead of calling
// the engine inline it ships each parsed request to the shared storage
// thread over storage's request queue and composes the reply later, when
// the corresponding response arrives on this worker's own response queue
// (registered under id in storage's response registry). See storage.go.
func NewWorker(id int, cfg Config, registry *queue.Registry, storage *StorageThread) (*Worker, error) {
	r, err := reactor.New(reactor.Config{MaxEvents: 1024, TimeoutMS: cfg.WorkerTimeoutMS})
	if err != nil {
		return nil, err
	}
	inbox := queue.New(256, r)
	registry.Add(id, inbox)

	klogLogger := cfg.Logger
	if cfg.KlogSampleRate == 0 {
		klogLogger = nil // a sample rate of 0 disables the command log
	}

	w := &Worker{
		id:       id,
		log:      cfg.Logger,
		reactor:  r,
		inbox:    inbox,
		engine:   cfg.Engine,
		sessions: make(map[uint64]*session.Session),
		fdToken:  make(map[int]uint64),
		klog:     memcache.NewKlog(klogLogger, cfg.KlogSampleRate),
	}

	if storage != nil {
		w.storage = storage
		w.responses = queue.New(256, r)
		w.pending = make(map[uint64]int)
		storage.registerWorker(id, w.responses)
	}

	return w, nil
}

// Close releases the worker's reactor.
func (w *Worker) Close() error {
	if w.storage != nil {
		w.storage.unregisterWorker(w.id)
	}
	return w.reactor.Close()
}

// Run drives the worker's event loop until a shutdownSignal is drained
// from the inbox, per spec §4.J: adopt newly dispatched sessions, then
// for every ready fd handle errors, then writable (flush), then readable
// (fill + parse/execute/compose), skipping the readable phase for any
// session under write back-pressure. In the MultiWorker topology it also
// drains storage-thread responses once per iteration.
func (w *Worker) Run() error {
	for {
		stop := false
		err := w.reactor.Poll(func(fd int, ev reactor.Event) {
			if ev.Token == reactor.TokenWaker {
				return
			}
			sess, ok := w.sessions[ev.Token]
			if !ok {
				return
			}
			w.handleEvent(sess, ev)
		})
		if err != nil {
			return err
		}

		// The poll timeout wakes this loop even when idle, which is what
		// lets a delayed flush_all (spec §4.F) fire and expired segments be
		// reclaimed without a dedicated timer goroutine racing the engine's
		// single owner. In the MultiWorker topology the storage thread does
		// both instead.
		if w.engine != nil && w.storage == nil {
			w.engine.CheckScheduledFlush()
			w.engine.Expire()
		}

		if w.responses != nil {
			w.drainResponses()
		}

		for {
			v, ok := w.inbox.TryRecv()
			if !ok {
				break
			}
			switch msg := v.(type) {
			case incomingSession:
				w.adopt(msg.sess)
			case shutdownSignal:
				stop = true
			case FlushAllSignal:
				if w.storage != nil {
					_ = w.storage.submit(storageRequest{WorkerID: w.id, Req: memcache.Request{Verb: memcache.VerbFlushAll}})
				} else if w.engine != nil {
					w.engine.Clear()
				}
			}
		}
		if stop {
			w.closeAll()
			return nil
		}
	}
}

// drainResponses applies every storage-thread response currently queued for
// this worker, composing each into its session's write buffer, then tries
// to resume parsing any session that was paused by maxPendingPerSession.
func (w *Worker) drainResponses() {
	resumed := make(map[uint64]bool)
	for {
		v, ok := w.responses.TryRecv()
		if !ok {
			break
		}
		resp := v.(storageResponse)
		w.pending[resp.Token]--

		sess, ok := w.sessions[resp.Token]
		if !ok {
			continue // session closed (e.g. hangup) while its request was in flight
		}
		w.composeAndRecord(sess, resp.Req, resp.Outcome)
		resumed[resp.Token] = true
	}

	for token := range resumed {
		sess, ok := w.sessions[token]
		if !ok {
			continue
		}
		w.drainRequests(sess)
		w.rearm(sess)
	}
}

func (w *Worker) adopt(sess *session.Session) {
	token := sess.Token
	if err := w.reactor.RegisterSession(sess.Fd(), token, sess.Interest()); err != nil {
		if w.log != nil {
			w.log.Warnw("failed to register session", "error", err)
		}
		sess.Close()
		return
	}
	w.sessions[token] = sess
	w.fdToken[sess.Fd()] = token
	if w.pending != nil {
		w.pending[token] = 0
	}
}

func (w *Worker) handleEvent(sess *session.Session, ev reactor.Event) {
	if ev.Error {
		w.closeSession(sess)
		return
	}

	if sess.State() == session.Handshaking {
		if err := sess.DoHandshake(); err != nil {
			if err != session.ErrWouldBlock {
				w.closeSession(sess)
			}
			return
		}
	}

	if ev.Writable {
		if err := sess.Flush(); err != nil && err != session.ErrWouldBlock {
			w.closeSession(sess)
			return
		}
		w.rearm(sess)
	}

	if !ev.Readable || sess.NeedsBackpressure() {
		return
	}

	n, fillErr := sess.Fill()
	if n > 0 {
		if w.drainRequests(sess) {
			return // session already closed by drainRequests
		}
	}
	if fillErr != nil {
		_ = sess.Flush()
		w.closeSession(sess)
		return
	}
	w.rearm(sess)
}

// drainRequests parses and executes every complete request currently
// buffered for sess, stopping on Incomplete (wait for more bytes). It
// closes sess itself on an Invalid parse or the quit verb, returning true
// in either case so the caller does not touch sess again. In the
// MultiWorker topology it also stops (without closing) once
// maxPendingPerSession requests for this session are outstanding at the
// storage thread, resuming from drainResponses once replies free up room.
func (w *Worker) drainRequests(sess *session.Session) bool {
	for {
		if w.pending != nil && w.pending[sess.Token] >= maxPendingPerSession {
			return false
		}

		readable := sess.Read.Readable()
		if len(readable) == 0 {
			return false
		}
		res := memcache.Parse(readable)
		switch res.Outcome {
		case memcache.OutcomeIncomplete:
			return false
		case memcache.OutcomeInvalid:
			sess.Read.Advance(len(readable))
			_ = sess.Flush()
			w.closeSession(sess)
			return true
		}

		sess.Read.Advance(res.Consumed)
		if res.Request.Verb == memcache.VerbQuit {
			_ = sess.Flush()
			w.closeSession(sess)
			return true
		}
		w.execute(sess, res.Request)

		if sess.NeedsBackpressure() {
			if err := sess.Flush(); err != nil && err != session.ErrWouldBlock {
				w.closeSession(sess)
				return true
			}
		}
	}
}

// execute runs one parsed request, either directly against the engine
// (SingleWorker) or by dispatching it to the storage thread and returning
// immediately (MultiWorker; the reply is composed later in drainResponses).
func (w *Worker) execute(sess *session.Session, req memcache.Request) {
	if w.storage != nil {
		w.executeRemote(sess, req)
		return
	}
	out := computeOutcome(w.engine, req)
	w.composeAndRecord(sess, req, out)
}

// executeRemote ships req to the storage thread over its request queue,
// cloning every byte slice first since the session's read buffer may be
// overwritten before the storage thread gets to it. If the request queue
// is full, this composes a SERVER_ERROR reply immediately rather than
// blocking or retrying — the worker's event loop must never stall on a
// full queue.
func (w *Worker) executeRemote(sess *session.Session, req memcache.Request) {
	owned := cloneRequest(req)
	err := w.storage.submit(storageRequest{WorkerID: w.id, Token: sess.Token, Req: owned})
	if err != nil {
		reply := w.composer.WriteServerError(nil, err.Error())
		_, _ = sess.Write.Write(reply)
		w.klog.Record(memcache.LogRecord{
			Verb: req.Verb, Key: string(req.Key), Flags: req.Flags, TTL: req.TTL,
			Size: len(req.Value), Result: memcache.ResultUnknown, ResponseSize: len(reply),
		})
		w.rearm(sess)
		return
	}
	w.pending[sess.Token]++
}

// composeAndRecord renders out into sess's write buffer via the shared
// composer and emits exactly one klog record for req, regardless of which
// topology produced out.
func (w *Worker) composeAndRecord(sess *session.Session, req memcache.Request, out outcome) {
	bytes, result := composeOutcome(&w.composer, req, out)
	if len(bytes) > 0 {
		_, _ = sess.Write.Write(bytes)
	}
	w.klog.Record(memcache.LogRecord{
		Verb: req.Verb, Key: string(req.Key), Flags: req.Flags, TTL: req.TTL,
		Size: len(req.Value), Result: result, ResponseSize: len(bytes),
	})
	w.rearm(sess)
}

func (w *Worker) rearm(sess *session.Session) {
	_ = w.reactor.ModifySession(sess.Fd(), sess.Token, sess.Interest())
}

func (w *Worker) closeSession(sess *session.Session) {
	_ = w.reactor.Unregister(sess.Fd())
	delete(w.fdToken, sess.Fd())
	delete(w.sessions, sess.Token)
	if w.pending != nil {
		delete(w.pending, sess.Token)
	}
	_ = sess.Close()
}

func (w *Worker) closeAll() {
	for _, sess := range w.sessions {
		w.closeSession(sess)
	}
}
