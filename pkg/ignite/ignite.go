// Package ignite provides the top-level embeddable API for the segment
// cache: an in-process Get/Set/Delete surface over a *seg.Engine, plus
// Serve/Close to run the memcache-protocol and admin listeners described
// in §4.I/§4.J/§6. It is the same entry point the teacher exposed over a
// Bitcask engine, re-pointed here at the segment-structured one.
package ignite

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/iamNilotpal/ignite/internal/admin"
	"github.com/iamNilotpal/ignite/internal/persist"
	"github.com/iamNilotpal/ignite/internal/seg"
	"github.com/iamNilotpal/ignite/internal/server"
	segerrors "github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/logger"
	"github.com/iamNilotpal/ignite/pkg/options"

	"go.uber.org/zap"
)

// Instance is a running (or ready-to-run) Ignite segment cache: the Seg
// engine that owns all cache state, plus the network surfaces layered
// over it.
//
// Instance is the primary entry point for interacting with the Ignite
// store, providing both direct Get/Set/Delete calls for embedders that
// never go over the wire, and Serve for running the memcache/admin
// listeners.
type Instance struct {
	engine  *seg.Engine
	options *options.Options
	log     *zap.SugaredLogger

	server *server.Server
	admin  *admin.Server
}

// NewInstance builds a new Ignite segment cache from opts, restoring from
// options.Seg.DatapoolPath if it exists and its layout matches, otherwise
// starting from a fresh empty arena.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	o := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := options.Validate(o); err != nil {
		return nil, err
	}

	policy, err := options.EvictionPolicy(o.Seg.Eviction)
	if err != nil {
		return nil, err
	}

	cfg := seg.Config{
		HeapSize:       o.Seg.HeapSize,
		SegmentSize:    o.Seg.SegmentSize,
		HashPower:      o.Seg.HashPower,
		OverflowFactor: o.Seg.OverflowFactor,
		Policy:         policy,
		MergeParams: seg.MergeParams{
			Max:     o.Seg.MergeMax,
			Merge:   o.Seg.MergeTarget,
			Compact: o.Seg.CompactTarget,
		},
		Logger: log,
	}

	engine, err := loadOrNew(cfg, o, log)
	if err != nil {
		return nil, err
	}

	return &Instance{engine: engine, options: &o, log: log}, nil
}

// loadOrNew restores a persisted snapshot when graceful shutdown
// persistence is configured and a file exists at the datapool path,
// falling back to a fresh engine on any load or layout mismatch, per
// spec §6's restore contract.
func loadOrNew(cfg seg.Config, o options.Options, log *zap.SugaredLogger) (*seg.Engine, error) {
	if o.Seg.DatapoolPath == "" {
		return seg.New(cfg), nil
	}

	snap, err := persist.Load(persist.Config{Path: o.Seg.DatapoolPath, Logger: log})
	if err != nil {
		log.Infow("no usable data pool snapshot, starting fresh", "path", o.Seg.DatapoolPath, "error", err)
		return seg.New(cfg), nil
	}

	engine, err := seg.Restore(cfg, snap)
	if err != nil {
		log.Warnw("data pool snapshot layout mismatch, starting fresh", "path", o.Seg.DatapoolPath, "error", err)
		return seg.New(cfg), nil
	}
	return engine, nil
}

// Set stores a key-value pair in the cache with no expiry.
func (i *Instance) Set(ctx context.Context, key string, value []byte) error {
	return i.engine.Insert([]byte(key), value, 0, 0)
}

// SetX stores a key-value pair that expires after ttl.
func (i *Instance) SetX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return i.engine.Insert([]byte(key), value, 0, int32(ttl/time.Second))
}

// Get retrieves the value associated with key, returning an
// errors.ErrNotFound-compatible error (via errors.Is) on a miss.
func (i *Instance) Get(ctx context.Context, key string) ([]byte, error) {
	res, found := i.engine.Get([]byte(key))
	if !found {
		return nil, segerrors.ErrNotFound
	}
	return res.Value, nil
}

// Delete removes a key-value pair from the cache. It returns nil whether or
// not the key was present.
func (i *Instance) Delete(ctx context.Context, key string) error {
	i.engine.Delete([]byte(key))
	return nil
}

// Serve starts the memcache-protocol listener (and, if
// options.AdminSocketAddr is non-empty, the admin listener) and blocks
// until the memcache listener stops or ctx is canceled.
func (i *Instance) Serve(ctx context.Context) error {
	var tlsConfig *tls.Config
	if i.options.TLS.Enabled() {
		cfg, err := i.options.TLS.Config()
		if err != nil {
			return err
		}
		tlsConfig = cfg
	}

	// spec §6: worker.threads == 1 selects the SingleWorker topology (the
	// one worker owns the engine directly); > 1 selects MultiWorker (every
	// worker dispatches to a dedicated storage thread instead).
	topology := server.SingleWorker
	if i.options.Worker.Threads > 1 {
		topology = server.MultiWorker
	}

	srv, err := server.New(server.Config{
		Addr:                 i.options.Server.SocketAddr,
		Topology:             topology,
		WorkerCount:          i.options.Worker.Threads,
		WorkerNevent:         i.options.Worker.Nevent,
		WorkerTimeoutMS:      i.options.Worker.TimeoutMS,
		Engine:               i.engine,
		Logger:               i.log,
		KlogSampleRate:       i.options.Server.KlogSampleRate,
		StorageQueueCapacity: 1024,
		TLSConfig:            tlsConfig,
	})
	if err != nil {
		return err
	}
	i.server = srv

	if i.options.AdminSocketAddr != "" {
		adm, err := admin.New(admin.Config{
			Addr:    i.options.AdminSocketAddr,
			Engine:  i.engine,
			Workers: srv.Registry(),
			Logger:  i.log,
			Version: "dev",
		})
		if err != nil {
			srv.Shutdown()
			return err
		}
		i.admin = adm
		go func() {
			if err := adm.Run(); err != nil {
				i.log.Warnw("admin server stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		i.Close(context.Background())
	}()

	return i.server.Run()
}

// Close gracefully shuts down the Ignite instance: stops the listeners,
// and, if options.Seg.GracefulShutdown is set, persists a snapshot to
// options.Seg.DatapoolPath.
func (i *Instance) Close(ctx context.Context) error {
	if i.admin != nil {
		i.admin.Shutdown()
		i.admin.Close()
	}
	if i.server != nil {
		i.server.Shutdown()
	}

	if i.options.Seg.GracefulShutdown && i.options.Seg.DatapoolPath != "" {
		return persist.Save(persist.Config{Path: i.options.Seg.DatapoolPath, Logger: i.log}, i.engine.Snapshot())
	}
	return nil
}
