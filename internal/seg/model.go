// Package seg implements the engine's public contract (spec §4.E): get,
// insert, cas, add, replace, delete, the numeric wrapping_add/saturating_sub
// pair, expire, and clear, layered over the hashtable, segment, and
// ttlbucket packages. It is the one package allowed to import all three,
// since only here do their combined semantics (eviction policies, insert
// retry-with-eviction) actually live; keeping that orchestration out of the
// lower packages is what keeps them free of import cycles.
package seg

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/ignite/internal/hashtable"
	"github.com/iamNilotpal/ignite/internal/segment"
	"github.com/iamNilotpal/ignite/internal/ttlbucket"
)

// EvictionPolicy selects how Engine reclaims segments when the arena has no
// free segments left for an insert, per spec §4.C.
type EvictionPolicy int

const (
	// EvictNone never evicts; inserts fail with NoFreeSegments.
	EvictNone EvictionPolicy = iota
	// EvictRandom uniformly samples an evictable segment.
	EvictRandom
	// EvictFIFO reclaims the oldest segment (by create time) across all
	// TTL buckets.
	EvictFIFO
	// EvictCTE reclaims the segment with the smallest create_time+ttl
	// (closest to expiry).
	EvictCTE
	// EvictUtil reclaims the segment with the lowest occupied_size /
	// segment_size ratio.
	EvictUtil
	// EvictMerge scans a bounded window of a single TTL bucket's chain,
	// starting at a round-robin cursor, and tries to pack the least
	// utilized segments in that window into one destination segment.
	EvictMerge
)

// MergeParams configures EvictMerge, named after spec §4.C's
// Merge{max, merge, compact}.
type MergeParams struct {
	Max     int     // segments scanned per attempt
	Merge   int     // least-utilized segments, among those scanned, to pack
	Compact float64 // fallback-to-FIFO threshold: commit only if packed occupancy <= Compact*segment_size
}

// Config configures a new Engine.
type Config struct {
	HeapSize    uint64
	SegmentSize uint32

	HashPower      uint
	OverflowFactor float64

	Policy      EvictionPolicy
	MergeParams MergeParams

	Logger *zap.SugaredLogger
}

// Engine owns the segment arena, hash table, and ttl buckets: the "cache
// state" of spec §3. There are no other owners of these structures.
type Engine struct {
	log     *zap.SugaredLogger
	arena   *segment.Arena
	table   *hashtable.Table
	buckets *ttlbucket.Manager

	policy      EvictionPolicy
	mergeParams MergeParams

	flushedAt int64
	mergeRR   int // round-robin cursor across buckets for EvictMerge bucket selection

	// flushAt is the unix time a pending delayed `flush_all <delay>` fires
	// at, or 0 if none is pending. It is only ever read and cleared by
	// CheckScheduledFlush, called from the single loop (worker or storage
	// thread) that already owns this engine, so it needs no lock of its own.
	flushAt int64
}

// Result is the outcome of a command-log-visible operation, named after the
// klog result codes in the original implementation's response module.
type Result int

const (
	ResultUnknown Result = iota
	ResultHit
	ResultStored
	ResultExists
	ResultDeleted
	ResultNotFound
	ResultNotStored
)

// GetResult is returned by Get on a hit; value is either Bytes or, for a
// numeric item, Numeric with Bytes nil.
type GetResult struct {
	Value   []byte
	Numeric uint64
	IsNum   bool
	Flags   uint32
	CAS     uint32
}

// Stats is a snapshot of process/engine counters, used by the admin
// surface's "stats" command.
type Stats struct {
	SegmentsTotal uint64
	SegmentsFree  uint64
	SegmentSize   uint32
	HeapBytes     uint64
}
