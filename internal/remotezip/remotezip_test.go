package remotezip

import (
	"archive/zip"
	"bytes"
	"context"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HappyDOGE/cupdater/internal/httpx"
)

// buildTestZip returns a zip archive (as bytes) with a stored entry, a
// deflated entry, a directory entry, and a zstd entry written via
// CreateRaw since archive/zip itself cannot write method 93.
func buildTestZip(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	storedWriter, err := zw.CreateHeader(&zip.FileHeader{Name: "stored.txt", Method: zip.Store})
	require.NoError(t, err)
	_, err = storedWriter.Write([]byte("hello stored"))
	require.NoError(t, err)

	deflateWriter, err := zw.CreateHeader(&zip.FileHeader{Name: "deflated.txt", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = deflateWriter.Write([]byte("hello deflated, compressible compressible compressible"))
	require.NoError(t, err)

	_, err = zw.CreateHeader(&zip.FileHeader{Name: "subdir/"})
	require.NoError(t, err)

	zstdContent := []byte("hello zstd, compressible compressible compressible")

	var zstdBuf bytes.Buffer
	zEnc, err := zstd.NewWriter(&zstdBuf)
	require.NoError(t, err)
	_, err = zEnc.Write(zstdContent)
	require.NoError(t, err)
	require.NoError(t, zEnc.Close())

	fh := &zip.FileHeader{
		Name:               "archive.dat",
		Method:             93,
		CRC32:              crc32.ChecksumIEEE(zstdContent),
		CompressedSize64:   uint64(zstdBuf.Len()),
		UncompressedSize64: uint64(len(zstdContent)),
	}
	fh.SetModTime(time.Now())

	rawWriter, err := zw.CreateRaw(fh)
	require.NoError(t, err)
	_, err = rawWriter.Write(zstdBuf.Bytes())
	require.NoError(t, err)

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func newTestServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "archive.zip", time.Now(), bytes.NewReader(content))
	}))
}

func newTestClient() *httpx.Client {
	c := httpx.New(5*time.Second, 4, nil)
	return c
}

func TestOpen_ParsesEntries(t *testing.T) {
	data := buildTestZip(t)
	srv := newTestServer(t, data)
	defer srv.Close()

	r, err := Open(context.Background(), newTestClient(), srv.URL, 5)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, e := range r.FileList() {
		names = append(names, e.Name)
	}

	assert.Contains(t, names, "stored.txt")
	assert.Contains(t, names, "deflated.txt")
	assert.Contains(t, names, "subdir/")
	assert.Contains(t, names, "archive.dat")
}

func findEntry(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}

	return Entry{}, false
}

func TestExtract_Stored(t *testing.T) {
	data := buildTestZip(t)
	srv := newTestServer(t, data)
	defer srv.Close()

	r, err := Open(context.Background(), newTestClient(), srv.URL, 5)
	require.NoError(t, err)

	entry, ok := findEntry(r.FileList(), "stored.txt")
	require.True(t, ok)

	destDir := t.TempDir()
	require.NoError(t, r.Extract(context.Background(), entry, destDir, 5))

	content, err := os.ReadFile(filepath.Join(destDir, "stored.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello stored", string(content))
}

func TestExtract_Deflate(t *testing.T) {
	data := buildTestZip(t)
	srv := newTestServer(t, data)
	defer srv.Close()

	r, err := Open(context.Background(), newTestClient(), srv.URL, 5)
	require.NoError(t, err)

	entry, ok := findEntry(r.FileList(), "deflated.txt")
	require.True(t, ok)

	destDir := t.TempDir()
	require.NoError(t, r.Extract(context.Background(), entry, destDir, 5))

	content, err := os.ReadFile(filepath.Join(destDir, "deflated.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello deflated, compressible compressible compressible", string(content))
}

func TestExtract_Zstd(t *testing.T) {
	data := buildTestZip(t)
	srv := newTestServer(t, data)
	defer srv.Close()

	r, err := Open(context.Background(), newTestClient(), srv.URL, 5)
	require.NoError(t, err)

	entry, ok := findEntry(r.FileList(), "archive.dat")
	require.True(t, ok)
	assert.Equal(t, uint16(93), entry.Method)

	destDir := t.TempDir()
	require.NoError(t, r.Extract(context.Background(), entry, destDir, 5))

	content, err := os.ReadFile(filepath.Join(destDir, "archive.dat"))
	require.NoError(t, err)
	assert.Equal(t, "hello zstd, compressible compressible compressible", string(content))
}

func TestExtract_DirectoryEntryRejected(t *testing.T) {
	data := buildTestZip(t)
	srv := newTestServer(t, data)
	defer srv.Close()

	r, err := Open(context.Background(), newTestClient(), srv.URL, 5)
	require.NoError(t, err)

	entry, ok := findEntry(r.FileList(), "subdir/")
	require.True(t, ok)

	err = r.Extract(context.Background(), entry, t.TempDir(), 5)
	require.Error(t, err)
}

func TestExtract_UnsupportedMethod(t *testing.T) {
	data := buildTestZip(t)
	srv := newTestServer(t, data)
	defer srv.Close()

	r, err := Open(context.Background(), newTestClient(), srv.URL, 5)
	require.NoError(t, err)

	entry, ok := findEntry(r.FileList(), "stored.txt")
	require.True(t, ok)
	entry.Method = 99

	err = r.Extract(context.Background(), entry, t.TempDir(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestOpen_Empty404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), newTestClient(), srv.URL, 1)
	require.Error(t, err)
}
