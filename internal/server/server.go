package server

import (
	"sync"

	"github.com/iamNilotpal/ignite/internal/queue"
)

// Server wires a Listener and its pool of Workers into a single runnable
// unit, matching spec §4.I/§4.J's accept-thread/worker-thread split. In the
// SingleWorker topology (the default, cfg.WorkerCount forced to 1) its one
// worker talks to Config.Engine directly. In the MultiWorker topology it
// also owns a StorageThread that every worker dispatches parsed requests
// to, per spec §4.J's "dedicated storage thread" reading.
type Server struct {
	cfg      Config
	listener *Listener
	workers  []*Worker
	storage  *StorageThread
	registry *queue.Registry
	wg       sync.WaitGroup
}

// New builds a Server bound to cfg.Addr with cfg.WorkerCount workers (at
// least 1; forced to exactly 1 for SingleWorker, since that topology's
// single worker is defined as the sole owner of the engine), none of which
// are started yet.
func New(cfg Config) (*Server, error) {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Topology == SingleWorker {
		cfg.WorkerCount = 1
	}

	var storage *StorageThread
	if cfg.Topology == MultiWorker {
		s, err := NewStorageThread(cfg.StorageQueueCapacity, cfg.Engine, cfg.Logger)
		if err != nil {
			return nil, err
		}
		storage = s
	}

	registry := queue.NewRegistry()
	workers := make([]*Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		w, err := NewWorker(i, cfg, registry, storage)
		if err != nil {
			for _, done := range workers {
				done.Close()
			}
			if storage != nil {
				storage.Close()
			}
			return nil, err
		}
		workers = append(workers, w)
	}

	ln, err := NewListener(cfg.Addr, registry, cfg.TLSConfig, cfg.Logger)
	if err != nil {
		for _, w := range workers {
			w.Close()
		}
		if storage != nil {
			storage.Close()
		}
		return nil, err
	}

	return &Server{cfg: cfg, listener: ln, workers: workers, storage: storage, registry: registry}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Registry returns the worker broadcast registry, shared with
// internal/admin so its flush_all command fans out over the same queues
// the memcache listener dispatches sessions through.
func (s *Server) Registry() *queue.Registry { return s.registry }

// Run starts every worker goroutine, the storage thread's goroutine (if
// MultiWorker), and the listener's accept loop, blocking until Shutdown is
// called (or the listener's accept loop errors out).
func (s *Server) Run() error {
	if s.storage != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.storage.Run(); err != nil && s.cfg.Logger != nil {
				s.cfg.Logger.Errorw("storage thread stopped", "error", err)
			}
		}()
	}
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			if err := w.Run(); err != nil && s.cfg.Logger != nil {
				s.cfg.Logger.Errorw("worker stopped", "error", err)
			}
		}(w)
	}
	return s.listener.Run()
}

// Shutdown signals every worker to stop after draining in-flight work,
// signals the storage thread the same way, and waits for all of them to
// exit before releasing the listener's resources.
func (s *Server) Shutdown() {
	s.listener.Shutdown()
	if s.storage != nil {
		s.storage.Shutdown()
	}
	s.wg.Wait()
	s.listener.Close()
	for _, w := range s.workers {
		w.Close()
	}
	if s.storage != nil {
		s.storage.Close()
	}
}
