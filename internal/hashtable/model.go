// Package hashtable implements the bucket-chained fingerprint index that
// maps a Memcache key to the (segment id, offset) where its item lives.
//
// Keys are never stored in the table itself; a slot holds only a 32-bit
// fingerprint of the key plus its location. A hit therefore always requires
// dereferencing the candidate item through a SegmentView and comparing the
// full key, because the fingerprint space is far smaller than the key
// space and collisions, while rare, are expected. This mirrors the
// "weak reference" ownership model in spec §3: a slot may point at bytes
// that have since been reclaimed by eviction, so every lookup re-verifies.
package hashtable

import "go.uber.org/zap"

// slotsPerBucket is fixed at 8, matching the original segcache bucket
// layout of 8 slots of 8 bytes each.
const slotsPerBucket = 8

// slot holds one hash table entry: a candidate location plus enough
// information to validate and, for cas, compare without dereferencing the
// segment.
type slot struct {
	used        bool
	fingerprint uint32
	segmentID   uint32
	offset      uint32
	cas         uint32
}

// bucket is one row of the table: 8 slots and a link to an overflow bucket
// when all 8 are occupied by distinct keys that hash to this bucket.
type bucket struct {
	slots    [slotsPerBucket]slot
	overflow int32 // index into the overflow pool, or -1 if none
}

// SegmentView is the narrow surface the hash table needs from the segment
// arena: resolving a candidate slot to its key bytes for verification, and
// marking a superseded item's bytes dead when a slot is reclaimed or
// overwritten. It keeps hashtable free of any dependency on the segment
// package's concrete types, matching the "no cyclic owner graphs" design
// note — the table only ever holds integer (segment id, offset) pairs.
type SegmentView interface {
	// ItemKeyAt returns the key stored at (segmentID, offset), or ok=false
	// if the segment/offset no longer refers to a live item.
	ItemKeyAt(segmentID uint32, offset uint32) (key []byte, ok bool)

	// MarkDeleted flags the item at (segmentID, offset) dead and decrements
	// the live item count and occupied size of that segment for an item of
	// the given total padded size, without moving any bytes. The offset
	// must point at the superseded item's own header, not just identify
	// its segment, so a later reclamation walk over that segment sees it
	// as dead rather than mistaking it for a still-live copy of the key.
	MarkDeleted(segmentID uint32, offset uint32, size int)
}

// Table is the power-of-two array of buckets plus its overflow pool.
type Table struct {
	log          *zap.SugaredLogger
	buckets      []bucket
	overflow     []bucket
	overflowFree []int32 // free list of overflow bucket indices
	mask         uint64
}

// Config configures a new Table.
type Config struct {
	// HashPower: the table has 2^HashPower primary buckets.
	HashPower uint

	// OverflowFactor sizes the overflow pool as OverflowFactor * 2^HashPower
	// additional buckets.
	OverflowFactor float64

	Logger *zap.SugaredLogger
}
