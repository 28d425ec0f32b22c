package persist

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	stdErrors "errors"
	"io"
	"os"

	"github.com/natefinch/atomic"

	"github.com/iamNilotpal/ignite/internal/seg"
	"github.com/iamNilotpal/ignite/pkg/filesys"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
)

// ErrMismatch is returned by Load when any region's tag or recorded size
// disagrees with what was actually read, per the restore contract's
// "any mismatch ⇒ fallback to fresh construction".
var ErrMismatch = stdErrors.New("persist: region tag or size mismatch")

// Save writes snap to cfg.Path as a single file: three regions, each a
// [tag uint32][version uint32][size uint64][payload] tuple, written to a
// temporary file and renamed into place atomically.
func Save(cfg Config, snap seg.Snapshot) error {
	if cfg.BackupDir != "" {
		backupPrevious(cfg)
	}

	var buf bytes.Buffer
	if err := writeRegion(&buf, tagSegments, snap.Segments); err != nil {
		return err
	}
	if err := writeRegion(&buf, tagTable, snap.Table); err != nil {
		return err
	}
	if err := writeRegion(&buf, tagBuckets, snap.Buckets); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Infow("writing data pool snapshot", "path", cfg.Path, "bytes", buf.Len())
	}
	return atomic.WriteFile(cfg.Path, &buf)
}

// Load reads and validates a data pool file written by Save. On any
// structural problem it returns ErrMismatch (or the underlying I/O
// error), signaling the caller should fall back to a fresh Engine rather
// than trust a partially-decoded snapshot.
func Load(cfg Config) (seg.Snapshot, error) {
	var snap seg.Snapshot

	f, err := os.Open(cfg.Path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	if err := readRegion(f, tagSegments, &snap.Segments); err != nil {
		return seg.Snapshot{}, err
	}
	if err := readRegion(f, tagTable, &snap.Table); err != nil {
		return seg.Snapshot{}, err
	}
	if err := readRegion(f, tagBuckets, &snap.Buckets); err != nil {
		return seg.Snapshot{}, err
	}

	if cfg.Logger != nil {
		cfg.Logger.Infow("restored data pool snapshot", "path", cfg.Path)
	}
	return snap, nil
}

// backupPrevious copies the current snapshot at cfg.Path into cfg.BackupDir
// under a seginfo-formatted name before it gets overwritten, so a crash
// mid-write (or a corrupt new snapshot) still leaves a recoverable prior
// copy on disk. Any error here is logged, not returned: a missing backup
// must never block a graceful shutdown from saving the current state.
func backupPrevious(cfg Config) {
	exists, err := filesys.Exists(cfg.Path)
	if err != nil || !exists {
		return
	}
	if mkErr := filesys.CreateDir(cfg.BackupDir, 0o755, true); mkErr != nil {
		if cfg.Logger != nil {
			cfg.Logger.Warnw("could not create data pool backup directory", "dir", cfg.BackupDir, "error", mkErr)
		}
		return
	}

	name := seginfo.GenerateName(0, "datapool")
	dest := cfg.BackupDir + string(os.PathSeparator) + name
	if err := filesys.CopyFile(cfg.Path, dest); err != nil && cfg.Logger != nil {
		cfg.Logger.Warnw("failed to back up previous data pool snapshot", "path", cfg.Path, "dest", dest, "error", err)
	}
}

func writeRegion(w io.Writer, tag regionTag, v any) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return err
	}

	var header [16]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(tag))
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(payload.Len()))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}

func readRegion(r io.Reader, want regionTag, v any) error {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	tag := binary.LittleEndian.Uint32(header[0:4])
	version := binary.LittleEndian.Uint32(header[4:8])
	size := binary.LittleEndian.Uint64(header[8:16])

	if tag != uint32(want) || version != formatVersion {
		return ErrMismatch
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return ErrMismatch
	}
	return nil
}
