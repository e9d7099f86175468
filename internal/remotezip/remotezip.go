// Package remotezip implements random-access reading of a zip archive
// hosted over HTTP(S), without downloading the archive in full. It
// parses the end-of-central-directory record and central directory via
// absolute-range GETs, then extracts individual entries with further
// ranged GETs, per spec §4.2.
//
// zip64 archives are not supported — a central directory record
// carrying the zip64 sentinel sizes (0xFFFFFFFF) is reported as
// ErrUnsupportedMethod, since the content archives this updater
// installs are not expected to approach the 4 GiB zip32 ceiling.
package remotezip

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/HappyDOGE/cupdater/internal/httpx"
)

// Compression methods this reader supports, per spec §6.
const (
	MethodStored  = 0
	MethodDeflate = 8
	MethodZstd    = 93
)

// Sentinel errors.
var (
	// ErrUnsupportedMethod means an entry uses a compression method
	// other than stored, deflate, or zstd.
	ErrUnsupportedMethod = errors.New("remotezip: unsupported compression method")

	// ErrTruncated means the archive's structure could not be parsed
	// from the bytes fetched (corrupt or truncated response).
	ErrTruncated = errors.New("remotezip: truncated or malformed archive")
)

// Entry describes one member of the archive's central directory.
type Entry struct {
	Name             string
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	Method           uint16

	// localHeaderOffset is the byte offset of this entry's local file
	// header within the archive.
	localHeaderOffset uint64
}

// IsDir reports whether this entry is a directory placeholder (a
// trailing-slash name with no content), per spec §6.
func (e Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// localHeaderBound is a generous upper bound on a local file header's
// total size (its fixed 30 bytes plus filename and extra field), added
// to an entry's compressed size to size the ranged fetch — it also
// covers extra-field padding some zip writers add to local headers
// that isn't present in the central directory's extra field.
const localHeaderBound = 4096

// Reader provides random access to one zip archive hosted at a URL.
type Reader struct {
	client  *httpx.Client
	url     string
	entries []Entry
}

// Open performs the ranged GETs needed to locate and parse the
// end-of-central-directory record and the central directory, retrying
// each request up to maxRetries times.
func Open(ctx context.Context, client *httpx.Client, url string, maxRetries int) (*Reader, error) {
	size, err := probeSize(ctx, client, url, maxRetries)
	if err != nil {
		return nil, err
	}

	eocd, err := fetchEOCD(ctx, client, url, size, maxRetries)
	if err != nil {
		return nil, err
	}

	cd, err := fetchRange(ctx, client, url, eocd.cdOffset, eocd.cdOffset+uint64(eocd.cdSize)-1, maxRetries)
	if err != nil {
		return nil, err
	}

	entries, err := parseCentralDirectory(cd, eocd.totalEntries)
	if err != nil {
		return nil, err
	}

	return &Reader{client: client, url: url, entries: entries}, nil
}

// FileList returns the archive's entries in central-directory order.
func (r *Reader) FileList() []Entry {
	return r.entries
}

// Extract decodes entry's contents (ranged-fetching its local header
// and compressed data) and writes it to destDir/entry.Name, creating
// parent directories as needed. Directory entries must not be passed
// here — callers should skip them using Entry.IsDir.
func (r *Reader) Extract(ctx context.Context, entry Entry, destDir string, maxRetries int) error {
	if entry.IsDir() {
		return fmt.Errorf("remotezip: %q is a directory entry, cannot extract", entry.Name)
	}

	switch entry.Method {
	case MethodStored, MethodDeflate, MethodZstd:
	default:
		return fmt.Errorf("%w: method %d for %q", ErrUnsupportedMethod, entry.Method, entry.Name)
	}

	fetchLen := entry.CompressedSize + localHeaderBound

	data, err := fetchRange(ctx, r.client, r.url, entry.localHeaderOffset,
		entry.localHeaderOffset+fetchLen-1, maxRetries)
	if err != nil {
		return err
	}

	compressed, err := sliceLocalFileData(data, entry)
	if err != nil {
		return err
	}

	dest := filepath.Join(destDir, filepath.FromSlash(entry.Name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("remotezip: creating parent dir for %q: %w", dest, err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("remotezip: creating %q: %w", dest, err)
	}
	defer out.Close()

	if err := decodeInto(out, entry, compressed); err != nil {
		return fmt.Errorf("remotezip: decoding %q: %w", entry.Name, err)
	}

	return nil
}

// decodeInto writes entry's decoded content to w given its raw
// compressed bytes.
func decodeInto(w io.Writer, entry Entry, compressed []byte) error {
	switch entry.Method {
	case MethodStored:
		_, err := w.Write(compressed)
		return err
	case MethodDeflate:
		fr := flate.NewReader(strings.NewReader(string(compressed)))
		defer fr.Close()

		_, err := io.Copy(w, fr)
		return err
	case MethodZstd:
		zr, err := zstd.NewReader(strings.NewReader(string(compressed)))
		if err != nil {
			return err
		}
		defer zr.Close()

		_, err = io.Copy(w, zr)
		return err
	default:
		return fmt.Errorf("%w: method %d", ErrUnsupportedMethod, entry.Method)
	}
}

// fetchRange issues an absolute-range GET for [start, end] inclusive.
func fetchRange(ctx context.Context, client *httpx.Client, url string, start, end uint64, maxRetries int) ([]byte, error) {
	rangeHeader := "bytes=" + strconv.FormatUint(start, 10) + "-" + strconv.FormatUint(end, 10)

	resp, err := client.GetRange(ctx, url, rangeHeader, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("remotezip: ranged GET %s: %w", rangeHeader, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remotezip: reading ranged response body: %w", err)
	}

	return data, nil
}

// probeSize obtains the archive's total byte length via HEAD, falling
// back to a one-byte absolute Range probe (bytes=0-0) if HEAD fails or
// the server omits Content-Length.
// Per spec §4.2, a suffix range (bytes=-N) MUST NOT be relied upon.
func probeSize(ctx context.Context, client *httpx.Client, url string, maxRetries int) (uint64, error) {
	resp, err := client.Head(ctx, url, maxRetries)
	if err == nil {
		defer resp.Body.Close()

		if resp.ContentLength > 0 {
			return uint64(resp.ContentLength), nil
		}
	}

	// Fall back to an absolute range covering the first byte only; the
	// server's Content-Range response header carries the true size.
	probeResp, probeErr := client.GetRange(ctx, url, "bytes=0-0", maxRetries)
	if probeErr != nil {
		return 0, fmt.Errorf("remotezip: probing size of %s: %w", url, probeErr)
	}
	defer probeResp.Body.Close()

	_, total, ok := parseContentRange(probeResp.Header.Get("Content-Range"))
	if !ok {
		return 0, fmt.Errorf("%w: could not determine archive size for %s", ErrTruncated, url)
	}

	return total, nil
}

// parseContentRange parses a "Content-Range: bytes start-end/total"
// header value.
func parseContentRange(header string) (end, total uint64, ok bool) {
	const prefix = "bytes "
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}

	rest := strings.TrimPrefix(header, prefix)

	slashIdx := strings.IndexByte(rest, '/')
	if slashIdx < 0 {
		return 0, 0, false
	}

	rangePart := rest[:slashIdx]

	dashIdx := strings.IndexByte(rangePart, '-')
	if dashIdx < 0 {
		return 0, 0, false
	}

	end, err := strconv.ParseUint(rangePart[dashIdx+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}

	totalStr := rest[slashIdx+1:]
	if totalStr == "*" {
		return 0, 0, false
	}

	total, err = strconv.ParseUint(totalStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}

	return end, total, true
}
