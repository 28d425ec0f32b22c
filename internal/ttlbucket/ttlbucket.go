package ttlbucket

import (
	stdErrors "errors"
	"time"

	"github.com/iamNilotpal/ignite/internal/segment"
)

// ErrNoFreeSegments mirrors segment.ErrNoFreeSegments for callers that only
// import this package.
var ErrNoFreeSegments = segment.ErrNoFreeSegments

// ErrItemOversized is returned by Reserve when size exceeds a full empty
// segment's capacity.
var ErrItemOversized = stdErrors.New("ttlbucket: item exceeds segment capacity")

// New builds the 1024-bucket manager over arena.
func New(cfg Config) *Manager {
	m := &Manager{log: cfg.Logger, arena: cfg.Arena}
	for i := range m.buckets {
		m.buckets[i] = Bucket{TTL: ttlForIndex(i), Head: -1, Tail: -1, nextMerge: -1}
	}
	return m
}

// BucketSnapshot is the persisted, fully-exported form of a Bucket, used by
// internal/persist to write the ttl-bucket region of a data pool file.
type BucketSnapshot struct {
	TTL       uint32
	Head      int32
	Tail      int32
	NumSegs   int
	NextMerge int32
}

// Snapshot is the persisted form of a whole Manager (its own view on the
// arena it links into is rebuilt by the caller, since the arena is
// persisted and restored separately).
type Snapshot struct {
	Buckets     [numBuckets]BucketSnapshot
	LastExpired int64
	FlushedAt   int64
}

// Export captures the manager's bucket state for persistence.
func (m *Manager) Export() Snapshot {
	var snap Snapshot
	for i, b := range m.buckets {
		snap.Buckets[i] = BucketSnapshot{TTL: b.TTL, Head: b.Head, Tail: b.Tail, NumSegs: b.NumSegs, NextMerge: b.nextMerge}
	}
	snap.LastExpired = m.lastExpired
	snap.FlushedAt = m.flushedAt
	return snap
}

// Restore rebuilds a Manager from a Snapshot produced by Export, linked
// into the already-restored arena.
func Restore(cfg Config, snap Snapshot) *Manager {
	m := &Manager{log: cfg.Logger, arena: cfg.Arena, lastExpired: snap.LastExpired, flushedAt: snap.FlushedAt}
	for i, b := range snap.Buckets {
		m.buckets[i] = Bucket{TTL: b.TTL, Head: b.Head, Tail: b.Tail, NumSegs: b.NumSegs, nextMerge: b.NextMerge}
	}
	return m
}

// ttlForIndex returns the representative TTL (seconds) new segments placed
// in bucket i are stamped with: the upper edge of the bucket's band.
func ttlForIndex(i int) uint32 {
	switch {
	case i < bucketsPerRange:
		return uint32((i + 1) * range0Width)
	case i < 2*bucketsPerRange:
		return uint32(range0Max + (i-bucketsPerRange+1)*range1Width)
	case i < 3*bucketsPerRange:
		return uint32(range1Max + (i-2*bucketsPerRange+1)*range2Width)
	default:
		return uint32(range2Max + (i-3*bucketsPerRange+1)*range3Width)
	}
}

// IndexFor maps a TTL in seconds to its bucket index via the piecewise
// shift/add mapping of spec §4.D, clamping TTL 0 and oversized TTLs to the
// last bucket.
func IndexFor(ttl uint32) int {
	switch {
	case ttl == 0:
		return numBuckets - 1
	case ttl <= range0Max:
		return int((ttl - 1) / range0Width)
	case ttl <= range1Max:
		return bucketsPerRange + int((ttl-range0Max-1)/range1Width)
	case ttl <= range2Max:
		return 2*bucketsPerRange + int((ttl-range1Max-1)/range2Width)
	default:
		idx := 3*bucketsPerRange + int((ttl-range2Max-1)/range3Width)
		if idx >= numBuckets {
			return numBuckets - 1
		}
		return idx
	}
}

// Bucket returns a read-only copy of bucket idx's header for inspection by
// eviction policies in the engine layer.
func (m *Manager) Bucket(idx int) Bucket {
	return m.buckets[idx]
}

// NumBuckets returns the fixed bucket count (1024).
func (m *Manager) NumBuckets() int { return numBuckets }

// linkTail appends segID to the tail of bucket idx's chain, marking it the
// new active segment.
func (m *Manager) linkTail(idx int, segID uint32) {
	b := &m.buckets[idx]
	s := m.arena.Get(segID)
	s.TTLBucketID = int32(idx)
	s.TTL = b.TTL
	s.Prev = b.Tail
	s.Next = -1
	if b.Tail >= 0 {
		m.arena.Get(uint32(b.Tail)).Next = int32(segID)
	} else {
		b.Head = int32(segID)
	}
	b.Tail = int32(segID)
	b.NumSegs++
}

// LinkAsHead splices segID onto the head of bucket idx's chain, used by
// merge eviction to reinsert a freshly packed destination segment as the
// oldest entry in its bucket.
func (m *Manager) LinkAsHead(idx int, segID uint32) {
	b := &m.buckets[idx]
	s := m.arena.Get(segID)
	s.TTLBucketID = int32(idx)
	s.TTL = b.TTL
	s.Prev = -1
	s.Next = b.Head
	if b.Head >= 0 {
		m.arena.Get(uint32(b.Head)).Prev = int32(segID)
	} else {
		b.Tail = int32(segID)
	}
	b.Head = int32(segID)
	b.NumSegs++
}

// UnlinkSegment removes segID from bucket idx's chain, patching
// neighbouring links. It does not push the segment to the arena free list;
// callers decide that after reclaiming the segment's hash table entries.
func (m *Manager) UnlinkSegment(idx int, segID uint32) {
	b := &m.buckets[idx]
	s := m.arena.Get(segID)

	if s.Prev >= 0 {
		m.arena.Get(uint32(s.Prev)).Next = s.Next
	} else {
		b.Head = s.Next
	}
	if s.Next >= 0 {
		m.arena.Get(uint32(s.Next)).Prev = s.Prev
	} else {
		b.Tail = s.Prev
	}
	if b.NumSegs > 0 {
		b.NumSegs--
	}
	s.Prev, s.Next = -1, -1
}

// Reserve ensures bucket IndexFor(ttl) has an active segment with size
// writable bytes and returns a cursor (segment id, offset) to write at,
// advancing the segment's write offset. If the active segment lacks room it
// requests a new one from the arena's free list; it returns
// segment.ErrNoFreeSegments if the arena is exhausted (the engine layer is
// expected to evict and retry) and ErrItemOversized if size can never fit
// even an empty segment.
func (m *Manager) Reserve(ttl uint32, size int) (segID uint32, offset uint32, err error) {
	if uint32(size) > m.arena.SegmentSize() {
		return 0, 0, ErrItemOversized
	}

	idx := IndexFor(ttl)
	b := &m.buckets[idx]

	if b.Tail >= 0 {
		active := m.arena.Get(uint32(b.Tail))
		if active.WriteOffset+uint32(size) <= m.arena.SegmentSize() {
			off := active.WriteOffset
			active.WriteOffset += uint32(size)
			return uint32(b.Tail), off, nil
		}
		// Active segment is full but still accessible for reads; it
		// simply stops being the target of new writes.
	}

	newID, err := m.arena.PopFree()
	if err != nil {
		return 0, 0, err
	}
	m.linkTail(idx, newID)
	active := m.arena.Get(newID)
	active.WriteOffset = uint32(size)
	return newID, 0, nil
}

// ExpireSegments walks every bucket head-to-tail and unlinks any segment
// whose create_time + ttl is strictly less than now, returning their ids
// for reclamation by the caller (which must still remove their hash table
// entries before returning them to the arena free list). It is a no-op if
// called again within the same second.
func (m *Manager) ExpireSegments(now int64) []uint32 {
	if now == m.lastExpired {
		return nil
	}
	m.lastExpired = now

	var expired []uint32
	for idx := range m.buckets {
		b := &m.buckets[idx]
		id := b.Head
		for id >= 0 {
			s := m.arena.Get(uint32(id))
			next := s.Next
			if s.CreateTime+int64(s.TTL) < now {
				m.UnlinkSegment(idx, uint32(id))
				expired = append(expired, uint32(id))
			}
			id = next
		}
	}
	return expired
}

// Clear unlinks every segment from every bucket, returning their ids for
// reclamation, and records the flush timestamp used to invalidate items
// created strictly before it.
func (m *Manager) Clear(now int64) []uint32 {
	m.flushedAt = now

	var all []uint32
	for idx := range m.buckets {
		b := &m.buckets[idx]
		id := b.Head
		for id >= 0 {
			s := m.arena.Get(uint32(id))
			next := s.Next
			m.UnlinkSegment(idx, uint32(id))
			all = append(all, uint32(id))
			id = next
		}
	}
	return all
}

// FlushedAt returns the timestamp of the most recent Clear, or 0 if none
// has occurred.
func (m *Manager) FlushedAt() int64 { return m.flushedAt }

// NextMergeCandidate advances and returns bucket idx's round-robin cursor
// for Merge eviction, wrapping to the bucket's head when the cursor runs
// off the tail or was never set.
func (m *Manager) NextMergeCandidate(idx int) (segID uint32, ok bool) {
	b := &m.buckets[idx]
	cur := b.nextMerge
	if cur < 0 {
		cur = b.Head
	}
	if cur < 0 {
		return 0, false
	}
	s := m.arena.Get(uint32(cur))
	if s.Next >= 0 {
		b.nextMerge = s.Next
	} else {
		b.nextMerge = b.Head
	}
	return uint32(cur), true
}

// Now is a small seam so tests can avoid depending on wall-clock time
// indirectly through the engine layer; production callers just pass
// time.Now().Unix().
func Now() int64 { return time.Now().Unix() }
