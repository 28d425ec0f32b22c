package errors

// SegError is a specialized error type for the segment-structured storage
// engine: item sizing, segment reservation, eviction, and the CAS/presence
// outcomes of get/insert/cas/add/replace. It embeds baseError to inherit
// chaining, codes, and structured details.
type SegError struct {
	*baseError
	key       string // Key being operated on when the error occurred, if any.
	segmentID uint32 // Segment involved, if applicable.
	size      int    // Item or request size involved, if applicable.
}

// NewSegError creates a new seg-engine error.
func NewSegError(err error, code ErrorCode, msg string) *SegError {
	return &SegError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while preserving the SegError type.
func (se *SegError) WithMessage(msg string) *SegError {
	se.baseError.WithMessage(msg)
	return se
}

// WithDetail adds contextual information while preserving the SegError type.
func (se *SegError) WithDetail(key string, value any) *SegError {
	se.baseError.WithDetail(key, value)
	return se
}

// WithKey records which key was being processed.
func (se *SegError) WithKey(key string) *SegError {
	se.key = key
	return se
}

// WithSegmentID records which segment was involved.
func (se *SegError) WithSegmentID(id uint32) *SegError {
	se.segmentID = id
	return se
}

// WithSize records the item or request size involved.
func (se *SegError) WithSize(size int) *SegError {
	se.size = size
	return se
}

// Key returns the key that was being processed.
func (se *SegError) Key() string { return se.key }

// SegmentID returns the segment identifier associated with the error.
func (se *SegError) SegmentID() uint32 { return se.segmentID }

// Size returns the item or request size associated with the error.
func (se *SegError) Size() int { return se.size }

// Sentinel seg-engine errors. Handlers compare against these with errors.Is
// rather than inspecting the error code, since the taxonomy in spec §7
// names these outcomes directly.
var (
	ErrItemOversized   = NewSegError(nil, ErrorCodeItemOversized, "item exceeds maximum segment capacity")
	ErrNoFreeSegments  = NewSegError(nil, ErrorCodeNoFreeSegments, "no free segments available after eviction retries")
	ErrNotFound        = NewSegError(nil, ErrorCodeNotFound, "key not found")
	ErrExists          = NewSegError(nil, ErrorCodeExists, "cas value does not match current item")
	ErrNotStored       = NewSegError(nil, ErrorCodeNotStored, "add/replace precondition failed")
	ErrNotNumeric      = NewSegError(nil, ErrorCodeNotNumeric, "item value is not numeric")
	ErrHashTableFull   = NewSegError(nil, ErrorCodeIndexFull, "hash table bucket and overflow chain are full")
	ErrEvictionFailed  = NewSegError(nil, ErrorCodeEvictionFailed, "eviction policy could not reclaim a segment")
)
