package seg

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/iamNilotpal/ignite/internal/hashtable"
	"github.com/iamNilotpal/ignite/internal/segment"
	"github.com/iamNilotpal/ignite/internal/ttlbucket"
	"github.com/iamNilotpal/ignite/pkg/errors"
)

const maxInsertRetries = 3

// New builds an Engine: a fresh arena, hash table, and ttl bucket manager,
// matching spec §3's "created once at startup" cache state.
func New(cfg Config) *Engine {
	arena := segment.New(segment.Config{HeapSize: cfg.HeapSize, SegmentSize: cfg.SegmentSize, Logger: cfg.Logger})
	table := hashtable.New(hashtable.Config{HashPower: cfg.HashPower, OverflowFactor: cfg.OverflowFactor, Logger: cfg.Logger})
	buckets := ttlbucket.New(ttlbucket.Config{Arena: arena, Logger: cfg.Logger})

	if cfg.MergeParams.Max == 0 {
		cfg.MergeParams = MergeParams{Max: 8, Merge: 4, Compact: 0.8}
	}

	return &Engine{
		log:         cfg.Logger,
		arena:       arena,
		table:       table,
		buckets:     buckets,
		policy:      cfg.Policy,
		mergeParams: cfg.MergeParams,
	}
}

// Snapshot is the full persisted state of an Engine: the three regions
// named by spec §6's persisted-state layout (segment bytes, hash table,
// ttl buckets), each independently (de)serializable by its owning
// package.
type Snapshot struct {
	Segments segment.Snapshot
	Table    hashtable.Snapshot
	Buckets  ttlbucket.Snapshot
}

// Snapshot captures the engine's full state for persistence by
// internal/persist.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Segments: e.arena.Export(),
		Table:    e.table.Export(),
		Buckets:  e.buckets.Export(),
	}
}

// Restore rebuilds an Engine from a Snapshot produced by Snapshot(),
// reusing cfg for policy/merge parameters that are not themselves
// persisted. It returns an error if any region's layout disagrees with
// cfg, in which case the caller should fall back to a freshly constructed
// Engine per spec §6's restore contract.
func Restore(cfg Config, snap Snapshot) (*Engine, error) {
	arena, err := segment.Restore(segment.Config{SegmentSize: cfg.SegmentSize, Logger: cfg.Logger}, snap.Segments)
	if err != nil {
		return nil, err
	}
	table, err := hashtable.Restore(hashtable.Config{HashPower: cfg.HashPower, OverflowFactor: cfg.OverflowFactor, Logger: cfg.Logger}, snap.Table)
	if err != nil {
		return nil, err
	}
	buckets := ttlbucket.Restore(ttlbucket.Config{Arena: arena, Logger: cfg.Logger}, snap.Buckets)

	if cfg.MergeParams.Max == 0 {
		cfg.MergeParams = MergeParams{Max: 8, Merge: 4, Compact: 0.8}
	}

	return &Engine{
		log:         cfg.Logger,
		arena:       arena,
		table:       table,
		buckets:     buckets,
		policy:      cfg.Policy,
		mergeParams: cfg.MergeParams,
		flushedAt:   buckets.FlushedAt(),
	}, nil
}

// itemAlive reports whether an item resolved from the hash table is still
// valid: its segment must be accessible, not created before the last flush,
// and not expired.
func (e *Engine) itemAlive(item segment.Item, now int64) bool {
	seg := e.arena.Get(item.SegmentID)
	if !seg.Accessible {
		return false
	}
	if seg.CreateTime < e.buckets.FlushedAt() {
		return false
	}
	if seg.CreateTime+int64(seg.TTL) < now {
		return false
	}
	return true
}

// Get looks up key, verifying accessibility, flush, and expiry before
// returning a hit. A verified hit is the only place frequency would be
// incremented; this engine does not yet track per-item frequency counters
// beyond what the hash table and segment headers record.
func (e *Engine) Get(key []byte) (GetResult, bool) {
	segID, offset, cas, found := e.table.Get(key, e.arena)
	if !found {
		return GetResult{}, false
	}
	item, ok := e.arena.ItemAt(segID, offset)
	if !ok || !e.itemAlive(item, time.Now().Unix()) {
		return GetResult{}, false
	}

	flags := uint32(0)
	if len(item.Optional) == 4 {
		flags = uint32(item.Optional[0])<<24 | uint32(item.Optional[1])<<16 | uint32(item.Optional[2])<<8 | uint32(item.Optional[3])
	}

	res := GetResult{Flags: flags, CAS: cas, IsNum: item.IsNumeric}
	if item.IsNumeric {
		res.Numeric = item.NumericValue
	} else {
		res.Value = append([]byte(nil), item.Value...)
	}
	return res, true
}

// insertArgs bundles the parameters common to insert/add/replace/cas, named
// to avoid a long positional parameter list across those call sites.
type insertArgs struct {
	Key   []byte
	Value []byte
	Flags uint32
	TTL   int32
}

func flagsToOptional(flags uint32) []byte {
	return []byte{byte(flags >> 24), byte(flags >> 16), byte(flags >> 8), byte(flags)}
}

// detectNumeric attempts a decimal parse of value, per spec §3/§4.E: "the
// latter is set when the value parses as a decimal integer on insert,
// enabling incr/decr". This is the one place that decision is made — every
// insert path runs a value through it, not just ones destined for incr/decr,
// so a plain `set` of e.g. "42" is just as incr-able as a counter created by
// a previous incr.
func detectNumeric(value []byte) (uint64, bool) {
	if len(value) == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// insert performs the reserve+write+hash-table-insert sequence, retrying
// with eviction up to maxInsertRetries times per spec §4.E. Negative TTL is
// handled per the engine's delete-on-insert resolution: the item is written
// and indexed normally, then immediately deleted, so callers still observe
// a successful store before the key vanishes.
func (e *Engine) insert(args insertArgs) error {
	numeric, isNum := detectNumeric(args.Value)
	optional := flagsToOptional(args.Flags)
	valueLen := len(args.Value)
	if isNum {
		valueLen = 8
	}
	size, err := e.arena.ItemSize(len(args.Key), valueLen, len(optional))
	if err != nil {
		return errors.ErrItemOversized.WithKey(string(args.Key)).WithSize(size)
	}

	// Every insert path supersedes any existing entry for this key, so the
	// previous item's size is always looked up here rather than by each
	// caller, keeping add/replace/cas/set in sync on live-count bookkeeping.
	prevSize := 0
	if segID, offset, _, found := e.table.GetNoFreqIncr(args.Key, e.arena); found {
		if item, ok := e.arena.ItemAt(segID, offset); ok {
			prevSize = item.Size
		}
	}

	ttl := args.TTL
	storeTTL := ttl
	if storeTTL < 0 {
		storeTTL = 0
	}

	var lastErr error
	for attempt := 0; attempt < maxInsertRetries; attempt++ {
		segID, offset, rerr := e.buckets.Reserve(uint32(storeTTL), size)
		if rerr != nil {
			lastErr = rerr
			if !e.evictOnce() {
				break
			}
			continue
		}

		cas := e.arena.BumpCAS(segID)
		e.arena.WriteItem(segID, offset, args.Key, args.Value, isNum, numeric, optional, cas)

		if ierr := e.table.Insert(args.Key, segID, offset, cas, prevSize, e.arena); ierr != nil {
			e.arena.MarkDeleted(segID, offset, size)
			return hashtable.AsSegError(ierr)
		}

		if ttl < 0 {
			e.table.Delete(args.Key, size, e.arena)
		}
		return nil
	}
	if lastErr != nil {
		return errors.ErrNoFreeSegments
	}
	return errors.ErrNoFreeSegments
}

// Insert is the unconditional store used by the memcache "set" verb.
// Whether value is stored as bytes or as a parsed integer is decided
// internally by detectNumeric, not by the caller.
func (e *Engine) Insert(key, value []byte, flags uint32, ttl int32) error {
	return e.insert(insertArgs{Key: key, Value: value, Flags: flags, TTL: ttl})
}

// CAS performs try_update_cas then delegates to insert on success, per spec
// §4.E.
func (e *Engine) CAS(key, value []byte, flags uint32, ttl int32, cas uint32) error {
	if err := e.table.TryUpdateCAS(key, cas, e.arena); err != nil {
		return hashtable.AsSegError(err)
	}
	return e.insert(insertArgs{Key: key, Value: value, Flags: flags, TTL: ttl})
}

// Add stores key only if it does not currently exist, using
// GetNoFreqIncr (presence, not access semantics) per spec §4.B.
func (e *Engine) Add(key, value []byte, flags uint32, ttl int32) error {
	if _, _, _, found := e.table.GetNoFreqIncr(key, e.arena); found {
		return errors.ErrNotStored
	}
	return e.insert(insertArgs{Key: key, Value: value, Flags: flags, TTL: ttl})
}

// Replace stores key only if it currently exists.
func (e *Engine) Replace(key, value []byte, flags uint32, ttl int32) error {
	if _, _, _, found := e.table.GetNoFreqIncr(key, e.arena); !found {
		return errors.ErrNotStored
	}
	return e.insert(insertArgs{Key: key, Value: value, Flags: flags, TTL: ttl})
}

// Delete removes key, reporting whether it was present.
func (e *Engine) Delete(key []byte) bool {
	size := 0
	if segID, offset, _, found := e.table.GetNoFreqIncr(key, e.arena); found {
		if item, ok := e.arena.ItemAt(segID, offset); ok {
			size = item.Size
		}
	}
	return e.table.Delete(key, size, e.arena)
}

// WrappingAdd increments a numeric item by n, wrapping modulo 2^64, per
// spec §4.E.
func (e *Engine) WrappingAdd(key []byte, n uint64) (uint64, error) {
	return e.mutateNumeric(key, func(v uint64) uint64 { return v + n })
}

// SaturatingSub decrements a numeric item by n, saturating at 0.
func (e *Engine) SaturatingSub(key []byte, n uint64) (uint64, error) {
	return e.mutateNumeric(key, func(v uint64) uint64 {
		if n > v {
			return 0
		}
		return v - n
	})
}

func (e *Engine) mutateNumeric(key []byte, f func(uint64) uint64) (uint64, error) {
	segID, offset, _, found := e.table.GetNoFreqIncr(key, e.arena)
	if !found {
		return 0, errors.ErrNotFound
	}
	item, ok := e.arena.ItemAt(segID, offset)
	if !ok || !e.itemAlive(item, time.Now().Unix()) {
		return 0, errors.ErrNotFound
	}
	if !item.IsNumeric {
		return 0, errors.ErrNotNumeric
	}

	newVal := f(item.NumericValue)
	newCAS := e.arena.BumpCAS(segID)
	if err := e.arena.SetNumericValue(segID, offset, newVal, newCAS); err != nil {
		return 0, err
	}
	return newVal, nil
}

// Stats returns a snapshot of arena occupancy for the admin surface's
// "stats" command.
func (e *Engine) Stats() Stats {
	total := uint64(e.arena.Count())
	free := uint64(e.arena.NumFree())
	segSize := e.arena.SegmentSize()
	return Stats{
		SegmentsTotal: total,
		SegmentsFree:  free,
		SegmentSize:   segSize,
		HeapBytes:     total * uint64(segSize),
	}
}

// Expire reclaims every segment across all ttl buckets whose items have
// passed their TTL, delegating to ttlbucket.Manager.ExpireSegments and then
// removing each reclaimed segment's live hash-table entries before
// returning it to the free list.
func (e *Engine) Expire() int {
	expired := e.buckets.ExpireSegments(time.Now().Unix())
	for _, segID := range expired {
		e.reclaimHashEntries(segID)
		e.arena.PushFree(segID)
	}
	return len(expired)
}

// Clear reclaims every segment in every bucket, recording a flush
// timestamp that invalidates items created strictly before it.
func (e *Engine) Clear() int {
	all := e.buckets.Clear(time.Now().Unix())
	for _, segID := range all {
		e.reclaimHashEntries(segID)
		e.arena.PushFree(segID)
	}
	return len(all)
}

// ScheduleFlush implements flush_all's optional delay argument (spec §4.F):
// delaySeconds == 0 flushes immediately, matching bare flush_all; otherwise
// the flush is deferred until CheckScheduledFlush observes the deadline has
// passed. A later ScheduleFlush call (including delaySeconds == 0)
// overrides any still-pending one, matching flush_all's last-write-wins
// semantics.
func (e *Engine) ScheduleFlush(delaySeconds uint32) {
	if delaySeconds == 0 {
		e.Clear()
		e.flushAt = 0
		return
	}
	e.flushAt = time.Now().Unix() + int64(delaySeconds)
}

// CheckScheduledFlush runs a pending delayed flush once its deadline has
// passed. It must be polled periodically by the single thread that owns
// this engine (the worker's or storage thread's event loop already wakes on
// its poll timeout regardless of I/O, which is what drives this check).
func (e *Engine) CheckScheduledFlush() {
	if e.flushAt == 0 || time.Now().Unix() < e.flushAt {
		return
	}
	e.flushAt = 0
	e.Clear()
}

// reclaimHashEntries walks segID linearly, removing the hash-table slot for
// every live item found, per the fixed reclamation order of spec §4.C:
// mark non-accessible, walk linearly, drop hash-table slots, unlink (the
// caller already did that), push to free list (the caller does that next).
func (e *Engine) reclaimHashEntries(segID uint32) {
	s := e.arena.Get(segID)
	s.Accessible = false

	offset := uint32(0)
	for offset < s.WriteOffset {
		item, ok := e.arena.RawItemAt(segID, offset)
		if item.Size == 0 {
			break
		}
		if ok {
			e.table.Delete(item.Key, 0, e.arena)
		}
		offset += uint32(item.Size)
	}
}

func (e *Engine) evictOnce() bool {
	switch e.policy {
	case EvictNone:
		return false
	case EvictRandom:
		return e.evictRandom()
	case EvictFIFO:
		return e.evictFIFO()
	case EvictCTE:
		return e.evictCTE()
	case EvictUtil:
		return e.evictUtil()
	case EvictMerge:
		if e.evictMerge() {
			return true
		}
		return e.evictFIFO()
	default:
		return false
	}
}

func (e *Engine) reclaimAndFree(bucketIdx int, segID uint32) {
	e.buckets.UnlinkSegment(bucketIdx, segID)
	e.reclaimHashEntries(segID)
	e.arena.PushFree(segID)
}

// evictRandom samples a random non-empty bucket, then a random segment from
// its chain.
func (e *Engine) evictRandom() bool {
	n := e.buckets.NumBuckets()
	start := rand.Intn(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		b := e.buckets.Bucket(idx)
		if b.Head < 0 {
			continue
		}
		ids := e.collectChain(idx)
		pick := ids[rand.Intn(len(ids))]
		e.reclaimAndFree(idx, pick)
		return true
	}
	return false
}

// evictFIFO finds the oldest segment by create time across all buckets.
func (e *Engine) evictFIFO() bool {
	var bestIdx int = -1
	var bestID uint32
	var bestTime int64 = 1<<63 - 1

	for idx := 0; idx < e.buckets.NumBuckets(); idx++ {
		b := e.buckets.Bucket(idx)
		id := b.Head
		for id >= 0 {
			s := e.arena.Get(uint32(id))
			if s.CreateTime < bestTime {
				bestTime, bestIdx, bestID = s.CreateTime, idx, uint32(id)
			}
			id = s.Next
		}
	}
	if bestIdx < 0 {
		return false
	}
	e.reclaimAndFree(bestIdx, bestID)
	return true
}

// evictCTE finds the segment with the smallest create_time+ttl.
func (e *Engine) evictCTE() bool {
	var bestIdx int = -1
	var bestID uint32
	var bestExpiry int64 = 1<<63 - 1

	for idx := 0; idx < e.buckets.NumBuckets(); idx++ {
		b := e.buckets.Bucket(idx)
		id := b.Head
		for id >= 0 {
			s := e.arena.Get(uint32(id))
			expiry := s.CreateTime + int64(s.TTL)
			if expiry < bestExpiry {
				bestExpiry, bestIdx, bestID = expiry, idx, uint32(id)
			}
			id = s.Next
		}
	}
	if bestIdx < 0 {
		return false
	}
	e.reclaimAndFree(bestIdx, bestID)
	return true
}

// evictUtil finds the segment with the lowest occupied_size/segment_size
// ratio.
func (e *Engine) evictUtil() bool {
	var bestIdx int = -1
	var bestID uint32
	bestRatio := 2.0

	for idx := 0; idx < e.buckets.NumBuckets(); idx++ {
		b := e.buckets.Bucket(idx)
		id := b.Head
		for id >= 0 {
			s := e.arena.Get(uint32(id))
			ratio := float64(s.OccupiedSize) / float64(e.arena.SegmentSize())
			if ratio < bestRatio {
				bestRatio, bestIdx, bestID = ratio, idx, uint32(id)
			}
			id = s.Next
		}
	}
	if bestIdx < 0 {
		return false
	}
	e.reclaimAndFree(bestIdx, bestID)
	return true
}

// collectChain returns every segment id currently linked in bucket idx.
func (e *Engine) collectChain(idx int) []uint32 {
	b := e.buckets.Bucket(idx)
	var ids []uint32
	id := b.Head
	for id >= 0 {
		ids = append(ids, uint32(id))
		id = e.arena.Get(uint32(id)).Next
	}
	return ids
}

// evictMerge scans a bounded window of one TTL bucket's chain, starting at
// a round-robin cursor on that bucket (never crossing bucket boundaries,
// per the engine's merge-eviction resolution), picks the least-utilized
// segments in the window, and tries to pack their live items into one
// destination segment. Returns false (falling back to FIFO within the
// caller) if no bucket has enough segments to attempt a merge, or if the
// packed result doesn't fit within Compact*segment_size.
func (e *Engine) evictMerge() bool {
	n := e.buckets.NumBuckets()
	for i := 0; i < n; i++ {
		idx := (e.mergeRR + i) % n
		if e.tryMergeInBucket(idx) {
			e.mergeRR = (idx + 1) % n
			return true
		}
	}
	return false
}

func (e *Engine) tryMergeInBucket(idx int) bool {
	b := e.buckets.Bucket(idx)
	if b.NumSegs < 2 {
		return false
	}

	window := make([]uint32, 0, e.mergeParams.Max)
	for i := 0; i < e.mergeParams.Max && i < b.NumSegs; i++ {
		id, ok := e.buckets.NextMergeCandidate(idx)
		if !ok {
			break
		}
		window = append(window, id)
	}
	if len(window) < 2 {
		return false
	}

	mergeCount := e.mergeParams.Merge
	if mergeCount > len(window) {
		mergeCount = len(window)
	}
	sources := leastUtilized(e.arena, window, mergeCount)

	var totalOccupied uint32
	for _, id := range sources {
		totalOccupied += e.arena.Get(id).OccupiedSize
	}
	if float64(totalOccupied) > e.mergeParams.Compact*float64(e.arena.SegmentSize()) {
		return false
	}

	dest, err := e.arena.PopFree()
	if err != nil {
		return false
	}
	destSeg := e.arena.Get(dest)

	for _, srcID := range sources {
		src := e.arena.Get(srcID)
		offset := uint32(0)
		for offset < src.WriteOffset {
			item, ok := e.arena.ItemAt(srcID, offset)
			if !ok {
				if item.Size == 0 {
					break
				}
				offset += uint32(item.Size) // dead item: skip it
				continue
			}
			size, _ := e.arena.ItemSize(len(item.Key), valueLenOf(item), len(item.Optional))
			if destSeg.WriteOffset+uint32(size) > e.arena.SegmentSize() {
				offset += uint32(item.Size)
				continue
			}
			newOffset := destSeg.WriteOffset
			cas := e.arena.BumpCAS(dest)
			e.arena.WriteItem(dest, newOffset, item.Key, item.Value, item.IsNumeric, item.NumericValue, item.Optional, cas)
			destSeg.WriteOffset += uint32(size)
			e.table.Insert(item.Key, dest, newOffset, cas, 0, e.arena)
			offset += uint32(item.Size)
		}
	}

	e.linkMergedSegment(idx, dest)
	for _, srcID := range sources {
		e.buckets.UnlinkSegment(idx, srcID)
		e.arena.Get(srcID).Accessible = false
		e.arena.PushFree(srcID)
	}
	return true
}

func valueLenOf(item segment.Item) int {
	if item.IsNumeric {
		return 8
	}
	return len(item.Value)
}

// linkMergedSegment splices a freshly written destination segment onto the
// head of bucket idx's chain, since it holds the oldest surviving items
// from the merge window.
func (e *Engine) linkMergedSegment(idx int, dest uint32) {
	e.buckets.LinkAsHead(idx, dest)
}

func leastUtilized(arena *segment.Arena, ids []uint32, n int) []uint32 {
	sorted := append([]uint32(nil), ids...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if arena.Get(sorted[j]).OccupiedSize < arena.Get(sorted[i]).OccupiedSize {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
