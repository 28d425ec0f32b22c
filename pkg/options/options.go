// Package options provides the configuration model for an Ignite server:
// the cache listener, worker topology, segment-arena sizing, eviction
// tuning, time representation, and TLS contract of spec §6. Values are
// loaded from a JWCC (JSON-with-comments) file via github.com/tailscale/hujson
// and may be overridden programmatically through OptionFunc, matching the
// teacher's functional-options shape.
package options

import (
	"crypto/tls"
	"encoding/pem"
	"os"
)

// ServerOptions configures the cache-protocol listener (§4.I).
type ServerOptions struct {
	// SocketAddr is the bind address of the cache listener, e.g. ":11211".
	SocketAddr string `json:"socket_addr"`

	// Nevent bounds how many ready events the listener's reactor drains
	// per Poll call.
	Nevent int `json:"nevent"`

	// TimeoutMS is the listener reactor's poll timeout in milliseconds.
	TimeoutMS int `json:"timeout"`

	// KlogSampleRate samples the command log 1-in-N (spec §4.F); 1 logs
	// every request, 0 disables klog entirely.
	KlogSampleRate int `json:"klog_sample_rate"`
}

// WorkerOptions configures the worker pool (§4.J).
type WorkerOptions struct {
	// Threads is the worker count: 1 selects the single-worker topology,
	// >1 selects multi-worker.
	Threads int `json:"threads"`

	// Nevent bounds events drained per worker Poll call.
	Nevent int `json:"nevent"`

	// TimeoutMS is each worker reactor's poll timeout in milliseconds.
	TimeoutMS int `json:"timeout"`
}

// SegOptions configures the segment arena, hash table, and eviction policy
// (§4.B/§4.C).
type SegOptions struct {
	// HeapSize is the total arena size in bytes.
	HeapSize uint64 `json:"heap_size"`

	// SegmentSize is the fixed size of every segment in bytes.
	SegmentSize uint32 `json:"segment_size"`

	// HashPower is log2 of the primary hash-table bucket count.
	HashPower uint `json:"hash_power"`

	// OverflowFactor scales the overflow-bucket pool relative to the
	// primary bucket count.
	OverflowFactor float64 `json:"overflow_factor"`

	// Eviction selects the reclamation policy: one of none, random,
	// fifo, cte, util, merge.
	Eviction string `json:"eviction"`

	// MergeMax is the window size (segments scanned) per merge attempt.
	MergeMax int `json:"merge_max"`

	// MergeTarget is how many least-utilized segments, of those scanned,
	// a merge attempt packs into one destination segment.
	MergeTarget int `json:"merge_target"`

	// CompactTarget is the fallback-to-FIFO threshold: a merge only
	// commits if the packed occupancy is <= CompactTarget*segment_size.
	CompactTarget float64 `json:"compact_target"`

	// DatapoolPath, if non-empty, is the file a graceful shutdown
	// persists the arena/hash-table/ttl-bucket snapshot to, and a
	// startup restores it from.
	DatapoolPath string `json:"datapool_path"`

	// GracefulShutdown, if true, persists the snapshot to DatapoolPath
	// on a clean exit.
	GracefulShutdown bool `json:"graceful_shutdown"`
}

// TimeOptions selects how TTLs/timestamps on the wire are interpreted
// (§4.F).
type TimeOptions struct {
	// TimeType is one of "unix", "delta", or "memcache".
	TimeType string `json:"time_type"`
}

// TLSOptions is the all-or-none certificate contract of §6. Config loads
// the named certificate, chain, and key files into a server-side
// *tls.Config.
type TLSOptions struct {
	CertPath  string `json:"cert_path,omitempty"`
	ChainPath string `json:"chain_path,omitempty"`
	KeyPath   string `json:"key_path,omitempty"`
}

// Enabled reports whether any TLS field was set, which callers use to
// decide whether to validate the all-or-none requirement.
func (t TLSOptions) Enabled() bool {
	return t.CertPath != "" || t.ChainPath != "" || t.KeyPath != ""
}

// Config builds a server-side *tls.Config from the certificate, chain, and
// key paths. ChainPath, if set, is appended after the leaf certificate so
// clients that don't already trust an intermediate can still build a valid
// chain.
func (t TLSOptions) Config() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
	if err != nil {
		return nil, err
	}
	if t.ChainPath != "" {
		chainPEM, err := os.ReadFile(t.ChainPath)
		if err != nil {
			return nil, err
		}
		for {
			var block *pem.Block
			block, chainPEM = pem.Decode(chainPEM)
			if block == nil {
				break
			}
			cert.Certificate = append(cert.Certificate, block.Bytes)
		}
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// Options is the full configuration for an Ignite server process.
type Options struct {
	Server ServerOptions `json:"server"`
	Worker WorkerOptions `json:"worker"`
	Seg    SegOptions    `json:"seg"`
	Time   TimeOptions   `json:"time"`
	TLS    TLSOptions    `json:"tls"`

	// AdminSocketAddr binds the second, independent admin listener. Empty
	// disables the admin surface.
	AdminSocketAddr string `json:"admin_socket_addr"`
}

// OptionFunc mutates an Options value, matching the teacher's functional
// option pattern.
type OptionFunc func(*Options)

// WithDefaultOptions resets every field to its built-in default.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) { *o = NewDefaultOptions() }
}

// WithSocketAddr overrides the cache listener's bind address.
func WithSocketAddr(addr string) OptionFunc {
	return func(o *Options) {
		if addr != "" {
			o.Server.SocketAddr = addr
		}
	}
}

// WithAdminSocketAddr overrides the admin listener's bind address.
func WithAdminSocketAddr(addr string) OptionFunc {
	return func(o *Options) { o.AdminSocketAddr = addr }
}

// WithWorkerThreads overrides the worker count.
func WithWorkerThreads(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.Worker.Threads = n
		}
	}
}

// WithHeapSize overrides the arena's total heap size in bytes.
func WithHeapSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.Seg.HeapSize = size
		}
	}
}

// WithEviction overrides the eviction policy name.
func WithEviction(policy string) OptionFunc {
	return func(o *Options) {
		if policy != "" {
			o.Seg.Eviction = policy
		}
	}
}

// WithDatapoolPath overrides the snapshot file path and enables graceful
// shutdown persistence.
func WithDatapoolPath(path string) OptionFunc {
	return func(o *Options) {
		if path != "" {
			o.Seg.DatapoolPath = path
			o.Seg.GracefulShutdown = true
		}
	}
}
