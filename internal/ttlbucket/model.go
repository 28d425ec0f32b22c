// Package ttlbucket implements the logarithmic time-banding of segments by
// expiry described in spec §4.D. A Bucket owns a doubly-linked chain of
// segment ids (head = oldest, tail = active) in a companion segment.Arena;
// the package never allocates segment memory itself, only orders and links
// segment ids obtained from the arena's free list.
package ttlbucket

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/ignite/internal/segment"
)

// numBuckets matches the spec's "exactly 1024 buckets" requirement.
const numBuckets = 1024

// The four logarithmic ranges, by bucket-width in seconds. Each range
// contributes bucketsPerRange buckets; index_for selects a range by
// magnitude and a bucket within it by a right-shift.
const bucketsPerRange = numBuckets / 4

const (
	range0Width = 8     // buckets 0..255:     8s  wide, covers up to 2048s
	range1Width = 128   // buckets 256..511: 128s  wide, covers up to 34816s
	range2Width = 2048  // buckets 512..767: 2048s wide, covers up to 559104s
	range3Width = 32768 // buckets 768..1023: 32768s wide, covers the rest
)

const (
	range0Max = bucketsPerRange * range0Width
	range1Max = range0Max + bucketsPerRange*range1Width
	range2Max = range1Max + bucketsPerRange*range2Width
)

// Bucket is one TTL band: a chain of segments ordered oldest-to-newest, plus
// the representative TTL (seconds) new segments in this bucket are stamped
// with.
type Bucket struct {
	TTL       uint32
	Head      int32 // oldest segment, -1 if empty
	Tail      int32 // active segment (being appended to), -1 if empty
	NumSegs   int
	nextMerge int32 // round-robin cursor for merge eviction, -1 if unset
}

// Manager owns all 1024 buckets and the arena they link into.
type Manager struct {
	log         *zap.SugaredLogger
	arena       *segment.Arena
	buckets     [numBuckets]Bucket
	lastExpired int64
	flushedAt   int64
}

// Config configures a new Manager.
type Config struct {
	Arena  *segment.Arena
	Logger *zap.SugaredLogger
}
