package manifest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HappyDOGE/cupdater/internal/filedb"
	"github.com/HappyDOGE/cupdater/internal/httpx"
)

func newTestDB(t *testing.T) *filedb.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := filedb.Open(context.Background(), dbPath, slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func TestLoad_FirstFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(validManifestJSON()))
	}))
	defer srv.Close()

	db := newTestDB(t)
	client := httpx.New(5*time.Second, 4, nil)

	session, err := Load(context.Background(), client, db, srv.URL, false)
	require.NoError(t, err)
	assert.False(t, session.Unchanged)
	assert.Equal(t, "Example Game", session.Manifest.Brand.Name)

	cached, err := db.GetMeta(context.Background(), filedb.MetaManifestCached, "")
	require.NoError(t, err)
	assert.Equal(t, validManifestJSON(), cached)

	etag, err := db.GetMeta(context.Background(), filedb.MetaManifestCachedETag, "")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)
}

func TestLoad_ConditionalGet304(t *testing.T) {
	var gotIfNoneMatch string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetMeta(ctx, filedb.MetaManifestCached, validManifestJSON()))
	require.NoError(t, db.SetMeta(ctx, filedb.MetaManifestCachedETag, `"v1"`))

	client := httpx.New(5*time.Second, 4, nil)

	session, err := Load(ctx, client, db, srv.URL, false)
	require.NoError(t, err)
	assert.True(t, session.Unchanged)
	assert.Equal(t, `"v1"`, gotIfNoneMatch)
}

func TestLoad_ForceIgnoresETag(t *testing.T) {
	var gotIfNoneMatch string
	var sawHeader bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		sawHeader = gotIfNoneMatch != ""
		w.Header().Set("ETag", `"v2"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(validManifestJSON()))
	}))
	defer srv.Close()

	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SetMeta(ctx, filedb.MetaManifestCachedETag, `"v1"`))

	client := httpx.New(5*time.Second, 4, nil)

	session, err := Load(ctx, client, db, srv.URL, true)
	require.NoError(t, err)
	assert.False(t, session.Unchanged)
	assert.False(t, sawHeader, "force=true must not send If-None-Match")
}

func TestLoad_InvalidBodyReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	db := newTestDB(t)
	client := httpx.New(5*time.Second, 4, nil)

	_, err := Load(context.Background(), client, db, srv.URL, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}
