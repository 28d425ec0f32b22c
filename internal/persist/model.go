// Package persist implements the data pool file format of spec §6: a
// single file holding the concatenation of the segment byte region, the
// hash-table region, and the ttl-bucket region, each prefixed by a
// version tag and its recorded size. Writes are atomic (rename-on-write
// via github.com/natefinch/atomic) so a crash mid-save never corrupts the
// previous snapshot; restores validate tag and size for every region and
// fall back to building a fresh cache on any mismatch, per the original
// implementation's Seg::demolisher()/Builder restore path.
package persist

import "go.uber.org/zap"

// formatVersion is bumped whenever the on-disk region layout changes
// incompatibly.
const formatVersion uint32 = 1

// regionTag identifies one of the three regions within a data pool file.
type regionTag uint32

const (
	tagSegments regionTag = iota + 1
	tagTable
	tagBuckets
)

// Config configures Save/Load.
type Config struct {
	Path string

	// BackupDir, if non-empty, receives a copy of the previous snapshot
	// file (named via pkg/seginfo's prefix_NNNNN_timestamp.seg scheme)
	// immediately before Save overwrites Path, so a bad shutdown snapshot
	// never destroys the last known-good one.
	BackupDir string

	Logger *zap.SugaredLogger
}
