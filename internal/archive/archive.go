// Package archive downloads whole content archives to a local temp file
// and extracts them, for both the clean-install path (every entry) and
// the selective-update path (a filtered subset, with symlink
// destinations left untouched).
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/HappyDOGE/cupdater/internal/httpx"
)

// DefaultDownloadAttempts is the retry budget for a full-archive
// download, per spec: up to 5 attempts, with the partially-downloaded
// file unlinked between attempts.
const DefaultDownloadAttempts = 5

// ErrDownloadFailed wraps the last error after every download attempt
// is exhausted.
var ErrDownloadFailed = errors.New("archive: download failed")

// TempName returns the destination file name for downloading rawURL: the
// last path segment, falling back to a generic name if the URL has none.
func TempName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "archive.download"
	}

	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "archive.download"
	}

	return name
}

// Download fetches url to destPath, retrying the whole download up to
// maxAttempts times. destPath is removed and re-created on every retry,
// since a partial write from a failed attempt must not be mistaken for
// a complete archive. Each attempt issues its own HTTP request with no
// inner retry budget — httpx's own retry classification runs once per
// attempt here, so a single flaky connection does not consume more than
// one of the archive-level attempts.
//
// onChunk, if non-nil, is called with the number of bytes written after
// every successful write to destPath, so a caller can drive a progress
// reporter without buffering the whole response in memory first.
func Download(ctx context.Context, client *httpx.Client, rawURL, destPath string, maxAttempts int, onChunk func(n int64)) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultDownloadAttempts
	}

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			os.Remove(destPath)
		}

		if err := downloadOnce(ctx, client, rawURL, destPath, onChunk); err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	os.Remove(destPath)

	return fmt.Errorf("%w: %s after %d attempts: %w", ErrDownloadFailed, rawURL, maxAttempts, lastErr)
}

func downloadOnce(ctx context.Context, client *httpx.Client, rawURL, destPath string, onChunk func(n int64)) error {
	resp, err := client.Get(ctx, rawURL, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("archive: creating %q: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(wrapProgress(f, onChunk), resp.Body); err != nil {
		return fmt.Errorf("archive: writing %q: %w", destPath, err)
	}

	return f.Close()
}

// wrapProgress is a package-level nil-safe helper so call sites never
// need to branch on whether onChunk was supplied.
func wrapProgress(w io.Writer, onChunk func(n int64)) io.Writer {
	if onChunk == nil {
		return w
	}

	return &progressWriter{w: w, onChunk: onChunk}
}

// progressWriter wraps an io.Writer, calling onChunk with the number of
// bytes passed through after every successful write.
type progressWriter struct {
	w       io.Writer
	onChunk func(n int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.onChunk(int64(n))
	}

	return n, err
}
