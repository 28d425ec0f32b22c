package segment

import (
	stdErrors "errors"
	"time"

	"github.com/iamNilotpal/ignite/pkg/errors"
)

// ErrNoFreeSegments is returned by PopFree when the free list is exhausted.
var ErrNoFreeSegments = stdErrors.New("segment: no free segments")

// ErrItemOversized is returned by ItemSize when an item cannot possibly fit
// in a single segment, regardless of eviction.
var ErrItemOversized = stdErrors.New("segment: item exceeds segment capacity")

// ErrSnapshotMismatch is returned by Restore when a persisted snapshot's
// layout disagrees with the arena configuration it is being restored into.
var ErrSnapshotMismatch = stdErrors.New("segment: snapshot layout mismatch")

// New allocates the segment arena. Every segment starts on the free list.
func New(cfg Config) *Arena {
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = 1 << 20 // 1 MiB, matching the spec's typical default
	}
	n := int(cfg.HeapSize / uint64(cfg.SegmentSize))
	if n < 1 {
		n = 1
	}

	a := &Arena{
		log:         cfg.Logger,
		segments:    make([]Segment, n),
		segmentSize: cfg.SegmentSize,
		freeHead:    -1,
	}
	for i := n - 1; i >= 0; i-- {
		a.segments[i].ID = uint32(i)
		a.resetHeader(uint32(i))
		a.segments[i].Next = a.freeHead
		a.freeHead = int32(i)
		a.numFree++
	}
	return a
}

// Count returns the total number of segments in the arena.
func (a *Arena) Count() int { return len(a.segments) }

// NumFree returns how many segments currently sit on the free list.
func (a *Arena) NumFree() int { return a.numFree }

// SegmentSize returns the configured per-segment byte capacity.
func (a *Arena) SegmentSize() uint32 { return a.segmentSize }

// Get returns a pointer to the segment with the given ID for direct field
// access by the ttlbucket package and the engine. Segment IDs are always
// valid array indices by construction (the arena never resizes).
func (a *Arena) Get(id uint32) *Segment {
	return &a.segments[id]
}

func (a *Arena) resetHeader(id uint32) {
	s := &a.segments[id]
	if s.Data == nil {
		s.Data = make([]byte, a.segmentSize)
	}
	s.Prev = -1
	s.Next = -1
	s.WriteOffset = 0
	s.OccupiedSize = 0
	s.ItemCount = 0
	s.LiveItemCount = 0
	s.CreateTime = 0
	s.TTL = 0
	s.MergeAt = 0
	s.Accessible = false
	s.Evictable = false
	s.TTLBucketID = -1
	s.casCounter = 0
}

// Snapshot is the gob-serializable form of an Arena's full state, used by
// internal/persist to write the segment byte region of a data pool file.
type Snapshot struct {
	SegmentSize uint32
	FreeHead    int32
	NumFree     int
	Segments    []Segment
}

// Export captures the arena's full state for persistence. Data slices
// inside each Segment are included verbatim.
func (a *Arena) Export() Snapshot {
	return Snapshot{
		SegmentSize: a.segmentSize,
		FreeHead:    a.freeHead,
		NumFree:     a.numFree,
		Segments:    a.segments,
	}
}

// Restore rebuilds an Arena from a Snapshot produced by Export. It returns
// ErrSnapshotMismatch if the snapshot's segment size disagrees with cfg,
// per the data pool's "tag and size must match" restore contract.
func Restore(cfg Config, snap Snapshot) (*Arena, error) {
	if cfg.SegmentSize != 0 && snap.SegmentSize != cfg.SegmentSize {
		return nil, ErrSnapshotMismatch
	}
	return &Arena{
		log:         cfg.Logger,
		segments:    snap.Segments,
		segmentSize: snap.SegmentSize,
		freeHead:    snap.FreeHead,
		numFree:     snap.NumFree,
	}, nil
}

// PopFree detaches and returns the head of the free list, marking it
// accessible and stamping its create time. It returns ErrNoFreeSegments if
// the list is empty.
func (a *Arena) PopFree() (uint32, error) {
	if a.freeHead < 0 {
		return 0, ErrNoFreeSegments
	}
	id := uint32(a.freeHead)
	s := &a.segments[id]
	a.freeHead = s.Next
	a.numFree--

	s.Prev = -1
	s.Next = -1
	s.WriteOffset = 0
	s.OccupiedSize = 0
	s.ItemCount = 0
	s.LiveItemCount = 0
	s.CreateTime = time.Now().Unix()
	s.MergeAt = 0
	s.Accessible = true
	s.Evictable = true
	return id, nil
}

// PushFree resets the segment's header and returns it to the free list.
func (a *Arena) PushFree(id uint32) {
	a.resetHeader(id)
	s := &a.segments[id]
	s.Next = a.freeHead
	a.freeHead = int32(id)
	a.numFree++
}

// BumpCAS returns the next monotonic cas value for the segment, taking only
// the low 32 bits per spec §3/§4.E ("the cas counter is the low 32 bits of a
// per-segment monotonic counter").
func (a *Arena) BumpCAS(id uint32) uint32 {
	s := &a.segments[id]
	s.casCounter++
	return s.casCounter
}

// ItemSize computes the padded, 8-byte-aligned total size of an item with
// the given key/value/optional lengths, matching spec §4.E's formula. It
// returns ErrItemOversized if the item could never fit even in an empty
// segment.
func (a *Arena) ItemSize(keyLen, valueLen, optionalLen int) (int, error) {
	raw := itemHeaderSize + keyLen + valueLen + optionalLen
	padded := ((raw + 7) >> 3) << 3
	if uint32(padded) > a.segmentSize {
		return 0, ErrItemOversized
	}
	return padded, nil
}

// WriteItem encodes an item into segment id at the given offset and
// advances no cursors itself (the caller — ttlbucket's Reserve — owns
// WriteOffset). It returns the padded size written.
func (a *Arena) WriteItem(id, offset uint32, key []byte, value []byte, isNumeric bool, numericValue uint64, optional []byte, cas uint32) int {
	s := &a.segments[id]

	valueLen := len(value)
	if isNumeric {
		valueLen = 8
	}
	size, _ := a.ItemSize(len(key), valueLen, len(optional))

	buf := s.Data[offset:]
	buf[0] = byte(len(key))
	buf[1] = byte(len(optional))
	flags := byte(0)
	if isNumeric {
		flags |= flagNumeric
	}
	buf[2] = flags
	buf[3] = 0
	putU32(buf[4:8], uint32(valueLen))
	putU32(buf[8:12], cas)
	putU32(buf[12:16], 0)

	pos := itemHeaderSize
	pos += copy(buf[pos:], key)
	if isNumeric {
		putU64(buf[pos:pos+8], numericValue)
		pos += 8
	} else {
		pos += copy(buf[pos:], value)
	}
	copy(buf[pos:pos+len(optional)], optional)

	s.ItemCount++
	s.LiveItemCount++
	s.OccupiedSize += uint32(size)
	return size
}

// MarkDeleted marks itemSize bytes starting at offset within segment id as
// dead without moving any bytes, decrementing live count and occupied size.
// This implements the "deletes decrement live count and occupied size
// without moving bytes" invariant of spec §3.
func (a *Arena) MarkDeleted(id uint32, offset uint32, itemSize int) {
	s := &a.segments[id]
	if int(offset) < len(s.Data) {
		s.Data[offset+2] |= flagDead
	}
	if s.LiveItemCount > 0 {
		s.LiveItemCount--
	}
	if uint32(itemSize) <= s.OccupiedSize {
		s.OccupiedSize -= uint32(itemSize)
	} else {
		s.OccupiedSize = 0
	}
}

// itemHeader is a decoded view of the fixed header at a given offset.
type itemHeader struct {
	KeyLen      int
	OptionalLen int
	ValueLen    int
	IsNumeric   bool
	Dead        bool
	CAS         uint32
}

func readHeader(buf []byte) itemHeader {
	return itemHeader{
		KeyLen:      int(buf[0]),
		OptionalLen: int(buf[1]),
		IsNumeric:   buf[2]&flagNumeric != 0,
		Dead:        buf[2]&flagDead != 0,
		ValueLen:    int(getU32(buf[4:8])),
		CAS:         getU32(buf[8:12]),
	}
}

// ItemKeyAt returns the key bytes stored at (segmentID, offset). It
// implements hashtable.SegmentView, giving the hash table a way to verify a
// candidate slot without any import of the segment package's concrete
// types. It returns ok=false if the segment is inaccessible, the offset is
// out of range, or the item there has been marked dead.
func (a *Arena) ItemKeyAt(segmentID uint32, offset uint32) ([]byte, bool) {
	if int(segmentID) >= len(a.segments) {
		return nil, false
	}
	s := &a.segments[segmentID]
	if !s.Accessible || int(offset)+itemHeaderSize > len(s.Data) {
		return nil, false
	}
	hdr := readHeader(s.Data[offset:])
	if hdr.Dead {
		return nil, false
	}
	start := int(offset) + itemHeaderSize
	end := start + hdr.KeyLen
	if end > len(s.Data) {
		return nil, false
	}
	return s.Data[start:end], true
}

// ItemAt decodes the full item at (segmentID, offset): key, value bytes (or
// numeric value), optional metadata, and cas. ok is false under the same
// conditions as ItemKeyAt.
func (a *Arena) ItemAt(segmentID uint32, offset uint32) (item Item, ok bool) {
	if int(segmentID) >= len(a.segments) {
		return Item{}, false
	}
	s := &a.segments[segmentID]
	if !s.Accessible || int(offset)+itemHeaderSize > len(s.Data) {
		return Item{}, false
	}
	return a.decodeItemAt(s, segmentID, offset)
}

// RawItemAt decodes the item at (segmentID, offset) without checking the
// segment's Accessible flag. It exists for the reclamation walk, which must
// run after a segment has already been marked non-accessible (so concurrent
// external lookups fail safe) but still needs to read its own bytes to
// remove hash-table entries for the items that were live there.
func (a *Arena) RawItemAt(segmentID uint32, offset uint32) (item Item, ok bool) {
	if int(segmentID) >= len(a.segments) {
		return Item{}, false
	}
	s := &a.segments[segmentID]
	if int(offset)+itemHeaderSize > len(s.Data) {
		return Item{}, false
	}
	return a.decodeItemAt(s, segmentID, offset)
}

func (a *Arena) decodeItemAt(s *Segment, segmentID uint32, offset uint32) (item Item, ok bool) {
	hdr := readHeader(s.Data[offset:])
	size := ((itemHeaderSize + hdr.KeyLen + hdr.ValueLen + hdr.OptionalLen + 7) >> 3) << 3

	if hdr.Dead {
		// The header (and therefore Size) stays valid after a delete;
		// only the payload is considered gone. Callers that need to
		// keep walking a segment linearly past dead items (reclamation)
		// use RawItemAt and check Item.Dead instead of ok.
		return Item{Size: size, Dead: true, SegmentID: segmentID, Offset: offset}, false
	}

	buf := s.Data[offset:]
	pos := itemHeaderSize
	key := buf[pos : pos+hdr.KeyLen]
	pos += hdr.KeyLen

	it := Item{Key: key, CAS: hdr.CAS, IsNumeric: hdr.IsNumeric, SegmentID: segmentID, Offset: offset}
	if hdr.IsNumeric {
		it.NumericValue = getU64(buf[pos : pos+8])
		pos += 8
	} else {
		it.Value = buf[pos : pos+hdr.ValueLen]
		pos += hdr.ValueLen
	}
	if hdr.OptionalLen > 0 {
		it.Optional = buf[pos : pos+hdr.OptionalLen]
		pos += hdr.OptionalLen
	}
	it.Size = size
	return it, true
}

// SetNumericValue overwrites the numeric value stored at (segmentID,
// offset) in place and bumps its cas, used by incr/decr which never change
// an item's size. It returns errors.ErrNotNumeric if the item isn't numeric.
func (a *Arena) SetNumericValue(segmentID, offset uint32, value uint64, cas uint32) error {
	s := &a.segments[segmentID]
	buf := s.Data[offset:]
	hdr := readHeader(buf)
	if !hdr.IsNumeric {
		return errors.ErrNotNumeric
	}
	putU64(buf[itemHeaderSize+hdr.KeyLen:itemHeaderSize+hdr.KeyLen+8], value)
	putU32(buf[8:12], cas)
	return nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
