package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/HappyDOGE/cupdater/internal/filedb"
)

// ErrUnsafePath is returned when an archive entry's name would resolve
// outside installRoot once joined and cleaned.
var ErrUnsafePath = errors.New("archive: entry path escapes install root")

// methodZstd is the zip compression method id for zstd (spec §6); the
// stdlib archive/zip package only registers decompressors for stored
// and deflate, so a zstd-compressed entry needs its own.
const methodZstd = 93

// Filter reports whether entry name should be extracted. A nil Filter
// extracts every non-directory entry.
type Filter func(name string) bool

// Options controls Extract.
type Options struct {
	// Filter, if non-nil, is consulted for every non-directory entry;
	// entries it rejects are left untouched on disk.
	Filter Filter

	// SkipExistingSymlink, when true, leaves an existing symlink at an
	// entry's destination path alone instead of extracting over it —
	// the selective_update rule (spec §4.5.2) that a re-downloaded
	// archive must never follow or overwrite a symlink a prior layer
	// (or the user) left in place.
	SkipExistingSymlink bool

	// OnEntry, if non-nil, is called once an entry has been written to
	// disk (or skipped as an existing symlink), with the 1-based count
	// of entries processed so far and the archive's total entry count.
	OnEntry func(done, total int)
}

// Extract opens the zip archive at archivePath and writes every entry
// Options selects into installRoot, returning a TrackedFile row per
// extracted entry (an entry skipped for an existing symlink gets no
// row), CRC taken
// from the archive's own central-directory checksum, Layer set to
// layer, and Updated set to the destination file's mtime immediately
// after writing.
func Extract(archivePath, installRoot, layer string, opts Options) ([]filedb.TrackedFile, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("archive: opening %q: %w", archivePath, err)
	}
	defer zr.Close()

	zr.RegisterDecompressor(methodZstd, zstd.ZipDecompressor())

	var out []filedb.TrackedFile

	total := len(zr.File)
	done := 0

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}

		if opts.Filter != nil && !opts.Filter(zf.Name) {
			continue
		}

		destPath, err := safeJoin(installRoot, zf.Name)
		if err != nil {
			return nil, err
		}

		if opts.SkipExistingSymlink {
			if info, statErr := os.Lstat(destPath); statErr == nil && info.Mode()&os.ModeSymlink != 0 {
				done++
				if opts.OnEntry != nil {
					opts.OnEntry(done, total)
				}
				continue
			}
		}

		tf, err := extractEntry(zf, destPath, layer)
		if err != nil {
			return nil, err
		}

		out = append(out, tf)

		done++
		if opts.OnEntry != nil {
			opts.OnEntry(done, total)
		}
	}

	return out, nil
}

// extractEntry writes a single zip entry to destPath via a .partial
// temp file and atomic rename, mirroring the download-then-rename
// pattern used for network transfers elsewhere in this module.
func extractEntry(zf *zip.File, destPath, layer string) (filedb.TrackedFile, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return filedb.TrackedFile{}, fmt.Errorf("archive: creating parent dir for %q: %w", destPath, err)
	}

	rc, err := zf.Open()
	if err != nil {
		return filedb.TrackedFile{}, fmt.Errorf("archive: opening entry %q: %w", zf.Name, err)
	}
	defer rc.Close()

	partialPath := destPath + ".partial"

	f, err := os.Create(partialPath)
	if err != nil {
		return filedb.TrackedFile{}, fmt.Errorf("archive: creating %q: %w", partialPath, err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(partialPath)

		return filedb.TrackedFile{}, fmt.Errorf("archive: writing %q: %w", destPath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(partialPath)
		return filedb.TrackedFile{}, fmt.Errorf("archive: closing %q: %w", partialPath, err)
	}

	if err := os.Rename(partialPath, destPath); err != nil {
		os.Remove(partialPath)
		return filedb.TrackedFile{}, fmt.Errorf("archive: renaming %q to %q: %w", partialPath, destPath, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return filedb.TrackedFile{}, fmt.Errorf("archive: stat %q: %w", destPath, err)
	}

	return filedb.TrackedFile{
		Path:    filepath.ToSlash(zf.Name),
		CRC:     zf.CRC32,
		Updated: float64(info.ModTime().UnixNano()) / 1e9,
		Layer:   layer,
	}, nil
}

// safeJoin joins name onto root and rejects the result if it would
// resolve outside root — a zip entry with a ".." segment or an
// absolute path must never be allowed to write outside the install
// directory.
func safeJoin(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(root, name))

	rootWithSep := filepath.Clean(root) + string(filepath.Separator)
	if !strings.HasPrefix(cleaned+string(filepath.Separator), rootWithSep) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	return cleaned, nil
}
