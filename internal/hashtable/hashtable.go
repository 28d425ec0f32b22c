package hashtable

import (
	stdErrors "errors"
	"hash/maphash"

	"github.com/iamNilotpal/ignite/pkg/errors"
)

var (
	// ErrNoCapacity is returned by Insert when the primary bucket and its
	// entire overflow chain are occupied by distinct keys.
	ErrNoCapacity = stdErrors.New("hashtable: bucket and overflow chain are full")

	// ErrNotFound is returned by TryUpdateCAS when the key has no entry.
	ErrNotFound = stdErrors.New("hashtable: key not found")

	// ErrCASMismatch is returned by TryUpdateCAS when the supplied CAS
	// value does not match the item's current CAS value.
	ErrCASMismatch = stdErrors.New("hashtable: cas value does not match")

	// ErrSnapshotMismatch is returned by Restore when a persisted
	// snapshot's layout disagrees with the table configuration it is
	// being restored into.
	ErrSnapshotMismatch = stdErrors.New("hashtable: snapshot layout mismatch")
)

var seed = maphash.MakeSeed()

// hashKey returns a 64-bit hash of key. The low bits select the primary
// bucket; the high 32 bits serve as the fingerprint stored in the slot.
func hashKey(key []byte) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	_, _ = h.Write(key)
	return h.Sum64()
}

// New builds a Table with 2^cfg.HashPower primary buckets and an overflow
// pool sized at cfg.OverflowFactor * 2^cfg.HashPower buckets.
func New(cfg Config) *Table {
	if cfg.OverflowFactor <= 0 {
		cfg.OverflowFactor = 0.1
	}

	numBuckets := uint64(1) << cfg.HashPower
	numOverflow := int(float64(numBuckets) * cfg.OverflowFactor)
	if numOverflow < 1 {
		numOverflow = 1
	}

	t := &Table{
		log:          cfg.Logger,
		buckets:      make([]bucket, numBuckets),
		overflow:     make([]bucket, numOverflow),
		overflowFree: make([]int32, numOverflow),
		mask:         numBuckets - 1,
	}
	for i := range t.buckets {
		t.buckets[i].overflow = -1
	}
	for i := range t.overflow {
		t.overflow[i].overflow = -1
		t.overflowFree[i] = int32(numOverflow - 1 - i)
	}
	return t
}

// SlotSnapshot is the persisted, fully-exported form of a slot, used by
// internal/persist to write the hash-table region of a data pool file.
type SlotSnapshot struct {
	Used        bool
	Fingerprint uint32
	SegmentID   uint32
	Offset      uint32
	CAS         uint32
}

// BucketSnapshot is the persisted form of one bucket row.
type BucketSnapshot struct {
	Slots    [slotsPerBucket]SlotSnapshot
	Overflow int32
}

// Snapshot is the persisted form of a whole Table.
type Snapshot struct {
	Mask         uint64
	Buckets      []BucketSnapshot
	Overflow     []BucketSnapshot
	OverflowFree []int32
}

func exportBucket(b bucket) BucketSnapshot {
	bs := BucketSnapshot{Overflow: b.overflow}
	for i, s := range b.slots {
		bs.Slots[i] = SlotSnapshot{Used: s.used, Fingerprint: s.fingerprint, SegmentID: s.segmentID, Offset: s.offset, CAS: s.cas}
	}
	return bs
}

func importBucket(bs BucketSnapshot) bucket {
	b := bucket{overflow: bs.Overflow}
	for i, s := range bs.Slots {
		b.slots[i] = slot{used: s.Used, fingerprint: s.Fingerprint, segmentID: s.SegmentID, offset: s.Offset, cas: s.CAS}
	}
	return b
}

// Export captures the table's full state for persistence.
func (t *Table) Export() Snapshot {
	snap := Snapshot{
		Mask:         t.mask,
		Buckets:      make([]BucketSnapshot, len(t.buckets)),
		Overflow:     make([]BucketSnapshot, len(t.overflow)),
		OverflowFree: append([]int32(nil), t.overflowFree...),
	}
	for i, b := range t.buckets {
		snap.Buckets[i] = exportBucket(b)
	}
	for i, b := range t.overflow {
		snap.Overflow[i] = exportBucket(b)
	}
	return snap
}

// Restore rebuilds a Table from a Snapshot produced by Export. It returns
// ErrSnapshotMismatch if the snapshot's bucket count disagrees with cfg's
// configured hash power, per the data pool's "tag and size must match"
// restore contract.
func Restore(cfg Config, snap Snapshot) (*Table, error) {
	if cfg.HashPower != 0 {
		expected := uint64(1) << cfg.HashPower
		if uint64(len(snap.Buckets)) != expected {
			return nil, ErrSnapshotMismatch
		}
	}
	t := &Table{
		log:          cfg.Logger,
		buckets:      make([]bucket, len(snap.Buckets)),
		overflow:     make([]bucket, len(snap.Overflow)),
		overflowFree: append([]int32(nil), snap.OverflowFree...),
		mask:         snap.Mask,
	}
	for i, b := range snap.Buckets {
		t.buckets[i] = importBucket(b)
	}
	for i, b := range snap.Overflow {
		t.overflow[i] = importBucket(b)
	}
	return t, nil
}

func (t *Table) primaryIndex(h uint64) uint64 {
	return h & t.mask
}

func fingerprintOf(h uint64) uint32 {
	return uint32(h >> 32)
}

// chain walks the primary bucket and its overflow buckets, calling visit for
// each occupied slot. visit returns (stop) to halt the walk early.
func (t *Table) chain(primary uint64, visit func(b *bucket, i int) bool) {
	b := &t.buckets[primary]
	for {
		for i := range b.slots {
			if !b.slots[i].used {
				continue
			}
			if visit(b, i) {
				return
			}
		}
		if b.overflow < 0 {
			return
		}
		b = &t.overflow[b.overflow]
	}
}

// lookup resolves key to its slot, verifying against segments via view. It
// returns the owning bucket/slot index and true on a verified hit.
func (t *Table) lookup(key []byte, view SegmentView) (segmentID, offset uint32, cas uint32, found bool) {
	h := hashKey(key)
	fp := fingerprintOf(h)
	primary := t.primaryIndex(h)

	t.chain(primary, func(b *bucket, i int) bool {
		s := &b.slots[i]
		if s.fingerprint != fp {
			return false
		}
		candidate, ok := view.ItemKeyAt(s.segmentID, s.offset)
		if !ok || string(candidate) != string(key) {
			return false
		}
		segmentID, offset, cas, found = s.segmentID, s.offset, s.cas, true
		return true
	})
	return
}

// Get locates key and returns its (segment id, offset, cas) on a verified
// hit. The caller is responsible for bumping the item's frequency counter;
// Get itself is side-effect free on the table (frequency lives on the
// item, inside the segment, not in the hash table).
func (t *Table) Get(key []byte, view SegmentView) (segmentID, offset uint32, cas uint32, found bool) {
	return t.lookup(key, view)
}

// GetNoFreqIncr is identical to Get; frequency accounting happens at the
// item level in the seg engine, so the hash table has nothing extra to skip.
// It exists as a distinct method to mirror the spec's §4.B contract and to
// give callers (add/replace/cas) a name that documents intent.
func (t *Table) GetNoFreqIncr(key []byte, view SegmentView) (segmentID, offset uint32, cas uint32, found bool) {
	return t.lookup(key, view)
}

// Insert claims or updates a slot for key, pointing it at (segmentID,
// offset) with the given cas value. If key already has a live entry, that
// entry is updated in place and the previous (segmentID, offset) is marked
// dead via view.MarkDeleted with prevSize, so a reclamation walk over the
// old segment won't mistake the stale copy for the relocated key and evict
// the live slot out from under it. Otherwise a free slot is claimed,
// allocating an overflow bucket if the primary chain is full.
func (t *Table) Insert(key []byte, segmentID, offset, cas uint32, prevSize int, view SegmentView) error {
	h := hashKey(key)
	fp := fingerprintOf(h)
	primary := t.primaryIndex(h)

	var updated bool
	t.chain(primary, func(b *bucket, i int) bool {
		s := &b.slots[i]
		if s.fingerprint != fp {
			return false
		}
		candidate, ok := view.ItemKeyAt(s.segmentID, s.offset)
		if !ok || string(candidate) != string(key) {
			return false
		}
		if prevSize > 0 {
			view.MarkDeleted(s.segmentID, s.offset, prevSize)
		}
		s.segmentID, s.offset, s.cas = segmentID, offset, cas
		updated = true
		return true
	})
	if updated {
		return nil
	}

	// Claim the first free slot in the primary bucket or its existing
	// overflow chain.
	b := &t.buckets[primary]
	for {
		for i := range b.slots {
			if !b.slots[i].used {
				b.slots[i] = slot{used: true, fingerprint: fp, segmentID: segmentID, offset: offset, cas: cas}
				return nil
			}
		}
		if b.overflow < 0 {
			break
		}
		b = &t.overflow[b.overflow]
	}

	// Chain is full; allocate a fresh overflow bucket and link it.
	idx, err := t.allocOverflow()
	if err != nil {
		return ErrNoCapacity
	}
	ob := &t.overflow[idx]
	ob.slots[0] = slot{used: true, fingerprint: fp, segmentID: segmentID, offset: offset, cas: cas}
	b.overflow = idx
	return nil
}

func (t *Table) allocOverflow() (int32, error) {
	n := len(t.overflowFree)
	if n == 0 {
		return 0, ErrNoCapacity
	}
	idx := t.overflowFree[n-1]
	t.overflowFree = t.overflowFree[:n-1]
	t.overflow[idx] = bucket{overflow: -1}
	return idx, nil
}

// Delete locates key, zeroes its slot, and marks the owning segment's bytes
// dead via view.MarkDeleted with itemSize. It returns false if key had no
// entry.
func (t *Table) Delete(key []byte, itemSize int, view SegmentView) bool {
	h := hashKey(key)
	fp := fingerprintOf(h)
	primary := t.primaryIndex(h)

	var deleted bool
	t.chain(primary, func(b *bucket, i int) bool {
		s := &b.slots[i]
		if s.fingerprint != fp {
			return false
		}
		candidate, ok := view.ItemKeyAt(s.segmentID, s.offset)
		if !ok || string(candidate) != string(key) {
			return false
		}
		view.MarkDeleted(s.segmentID, s.offset, itemSize)
		b.slots[i] = slot{}
		deleted = true
		return true
	})
	return deleted
}

// TryUpdateCAS verifies that key exists and that its current cas value
// equals the supplied cas, without mutating anything. It returns
// ErrNotFound or ErrCASMismatch on failure, nil on a verified match.
func (t *Table) TryUpdateCAS(key []byte, cas uint32, view SegmentView) error {
	_, _, current, found := t.lookup(key, view)
	if !found {
		return ErrNotFound
	}
	if current != cas {
		return ErrCASMismatch
	}
	return nil
}

// AsSegError maps a hashtable error to the spec's seg-engine taxonomy.
func AsSegError(err error) error {
	switch {
	case stdErrors.Is(err, ErrNoCapacity):
		return errors.ErrHashTableFull
	case stdErrors.Is(err, ErrNotFound):
		return errors.ErrNotFound
	case stdErrors.Is(err, ErrCASMismatch):
		return errors.ErrExists
	default:
		return err
	}
}
