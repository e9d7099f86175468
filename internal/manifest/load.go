package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/HappyDOGE/cupdater/internal/filedb"
	"github.com/HappyDOGE/cupdater/internal/httpx"
)

// loadRetries is the retry budget for fetching the manifest itself —
// treated the same as a whole-archive download per spec §7.
const loadRetries = 5

// Session describes the outcome of one Load call: whether the fetched
// manifest is the same document the engine last saw.
type Session struct {
	Manifest  *Manifest
	Unchanged bool
}

// Load fetches url, using FileDB's cached ETag for a conditional GET
// unless force is set. On HTTP 304 the cached JSON is parsed and the
// session is marked Unchanged. On 2xx the body is validated and both
// the raw JSON and ETag are persisted to FileDB.
func Load(ctx context.Context, client *httpx.Client, db *filedb.DB, url string, force bool) (Session, error) {
	cachedJSON, err := db.GetMeta(ctx, filedb.MetaManifestCached, "")
	if err != nil {
		return Session{}, err
	}

	cachedETag, err := db.GetMeta(ctx, filedb.MetaManifestCachedETag, "")
	if err != nil {
		return Session{}, err
	}

	etag := cachedETag
	if force {
		etag = ""
	}

	resp, err := client.GetConditional(ctx, url, etag, loadRetries)
	if err != nil {
		return Session{}, fmt.Errorf("manifest: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		if cachedJSON == "" {
			return Session{}, fmt.Errorf("%w: server returned 304 with no cached manifest", ErrInvalid)
		}

		m, err := Parse([]byte(cachedJSON))
		if err != nil {
			return Session{}, err
		}

		return Session{Manifest: m, Unchanged: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Session{}, fmt.Errorf("manifest: reading body from %s: %w", url, err)
	}

	m, err := Parse(body)
	if err != nil {
		return Session{}, err
	}

	if err := db.SetMeta(ctx, filedb.MetaManifestCached, string(body)); err != nil {
		return Session{}, err
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		if err := db.SetMeta(ctx, filedb.MetaManifestCachedETag, etag); err != nil {
			return Session{}, err
		}
	}

	return Session{Manifest: m, Unchanged: false}, nil
}
