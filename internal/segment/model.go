// Package segment implements the pre-allocated, fixed-size slab arena that
// backs the Ignite cache: §4.C of the specification. A Segment is a
// contiguous byte slab holding a linear sequence of items; the unit of
// eviction is always one whole segment, never an individual item.
//
// Segments never own each other. All linkage — the global free list, and
// (via the ttlbucket package) the per-bucket chains of active/aging
// segments — is expressed as integer segment IDs indexing into one flat
// Arena, following the "arena + integer indices, never owning pointers"
// design note: a cyclic graph of segments is unrepresentable by construction
// because there are no pointers, only IDs that may or may not currently
// resolve to a live segment.
package segment

import "go.uber.org/zap"

// itemHeaderSize is the fixed header every item carries before its key,
// value, and optional bytes. Layout (all little-endian):
//
//	byte 0:     key length (0-250)
//	byte 1:     optional length (0-4)
//	byte 2:     flag bits — bit0 numeric, bit1 dead
//	byte 3:     reserved/padding
//	bytes 4-7:  value length (uint32; 8 when numeric)
//	bytes 8-11: cas (uint32)
//	bytes 12-15: reserved
const itemHeaderSize = 16

const (
	flagNumeric = 1 << 0
	flagDead    = 1 << 1
)

// MaxKeyLen is the maximum key length accepted, per spec §3.
const MaxKeyLen = 250

// MaxOptionalLen bounds the optional metadata attached to an item (spec §3:
// "optional metadata (≤ 4 bytes, currently holds flags in big-endian)").
const MaxOptionalLen = 4

// Segment is one fixed-size slab. Fields mirror spec §3 exactly; Prev/Next
// serve double duty as either free-list links (when the segment is free) or
// ttl-bucket chain links (when it belongs to a bucket) — a segment is never
// in both states at once, so no separate link fields are needed.
type Segment struct {
	ID            uint32
	Prev          int32 // -1 if none
	Next          int32 // -1 if none
	Data          []byte
	WriteOffset   uint32
	OccupiedSize  uint32
	ItemCount     uint32
	LiveItemCount uint32
	CreateTime    int64
	TTL           uint32 // representative TTL (seconds) of the owning bucket
	MergeAt       int64
	Accessible    bool
	Evictable     bool
	TTLBucketID   int32 // weak back-pointer, not ownership
	casCounter    uint32
}

// Arena is the pre-allocated pool of N segments plus the free list.
type Arena struct {
	log         *zap.SugaredLogger
	segments    []Segment
	segmentSize uint32
	freeHead    int32
	numFree     int
}

// Config configures a new Arena.
type Config struct {
	HeapSize    uint64
	SegmentSize uint32
	Logger      *zap.SugaredLogger
}

// Item is a decoded view of one stored entry, returned by Arena.ItemAt. Key,
// Value, and Optional alias the segment's backing array and are only valid
// until the owning segment is evicted or overwritten.
type Item struct {
	Key          []byte
	Value        []byte
	Optional     []byte
	IsNumeric    bool
	NumericValue uint64
	CAS          uint32
	Size         int
	Dead         bool
	SegmentID    uint32
	Offset       uint32
}
