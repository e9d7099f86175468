package filedb

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

// chunkSize is the read buffer size used to compute CRC-32 over a local
// file.
const chunkSize = 64 * 1024

// IndexResult is the outcome of reconciling the files table against the
// local filesystem.
type IndexResult struct {
	All      []TrackedFile
	Modified []TrackedFile
	Removed  []string
}

// IndexFiles reconciles every tracked file against installRoot: a path
// whose file no longer exists is reported in Removed. A path whose
// current mtime matches the stored Updated value is left untouched. A
// path whose mtime has changed is re-hashed (CRC-32 over 64 KiB
// chunks); if the recomputed CRC differs from the stored one, the row
// is both updated in the database and reported in Modified.
//
// All is every row whose file still exists on disk, after
// reconciliation (i.e. with Modified rows' crc/updated reflecting the
// new values); rows reported in Removed stay in the files table but are
// not part of All. The engine only consumes All; Modified and Removed
// are informational.
func (d *DB) IndexFiles(ctx context.Context, installRoot string) (IndexResult, error) {
	rows, err := d.GetAllFiles(ctx)
	if err != nil {
		return IndexResult{}, err
	}

	result := IndexResult{All: make([]TrackedFile, 0, len(rows))}

	var toUpdate []TrackedFile

	for _, f := range rows {
		abs := filepath.Join(installRoot, f.Path)

		info, err := os.Stat(abs)
		if errors.Is(err, os.ErrNotExist) {
			result.Removed = append(result.Removed, f.Path)
			continue
		}
		if err != nil {
			return IndexResult{}, fmt.Errorf("filedb: stat %q: %w", abs, err)
		}

		mtime := float64(info.ModTime().UnixNano()) / 1e9
		if mtime == f.Updated {
			result.All = append(result.All, f)
			continue
		}

		crc, err := hashFile(abs)
		if err != nil {
			return IndexResult{}, err
		}

		if crc == f.CRC {
			result.All = append(result.All, f)
			continue
		}

		updated := f
		updated.CRC = crc
		updated.Updated = mtime

		result.All = append(result.All, updated)
		result.Modified = append(result.Modified, updated)
		toUpdate = append(toUpdate, updated)
	}

	if err := d.UpdateTrackedFiles(ctx, toUpdate); err != nil {
		return IndexResult{}, err
	}

	// Removed rows are reported but never deleted here: a path missing
	// from disk is informational only (spec §4.1) until a later layer
	// reconciliation actually reclaims it.
	return result, nil
}

// hashFile computes the CRC-32 (IEEE polynomial, matching zip's
// central-directory checksum) of path, reading in 64 KiB chunks.
func hashFile(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("filedb: opening %q for hashing: %w", path, err)
	}
	defer f.Close()

	h := crc32.NewIEEE()
	buf := make([]byte, chunkSize)

	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, fmt.Errorf("filedb: hashing %q: %w", path, err)
	}

	return h.Sum32(), nil
}
