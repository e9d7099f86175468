package filedb

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// testLogger returns a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// newTestDB opens a DB backed by a temp directory, registering cleanup.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := testLogger(t)

	db, err := Open(context.Background(), dbPath, logger)
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close(): %v", err)
		}
	})

	return db
}

func TestOpen_CreatesDB(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := testLogger(t)

	db, err := Open(context.Background(), dbPath, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	conn, err := sql.Open("sqlite", "file:"+dbPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer conn.Close()

	if err := conn.PingContext(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpen_WALMode(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	var journalMode string

	err := db.conn.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}
}

func TestOpen_RunsMigrations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	var count int

	err := db.conn.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM goose_db_version WHERE version_id > 0").Scan(&count)
	if err != nil {
		t.Fatalf("querying goose_db_version: %v", err)
	}

	if count == 0 {
		t.Error("expected at least one applied migration")
	}
}

func TestMeta_GetSetRoundTrip(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.GetMeta(ctx, "missing", "default")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if got != "default" {
		t.Errorf("GetMeta(missing) = %q, want default", got)
	}

	if err := db.SetMeta(ctx, MetaManifestCached, `{"brand":{}}`); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}

	got, err = db.GetMeta(ctx, MetaManifestCached, "")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if got != `{"brand":{}}` {
		t.Errorf("GetMeta(%s) = %q", MetaManifestCached, got)
	}

	// Upsert overwrites.
	if err := db.SetMeta(ctx, MetaManifestCached, `{"brand":{"name":"x"}}`); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}

	got, err = db.GetMeta(ctx, MetaManifestCached, "")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if got != `{"brand":{"name":"x"}}` {
		t.Errorf("GetMeta after overwrite = %q", got)
	}
}

func TestFiles_TrackGetByLayer(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	rows := []TrackedFile{
		{Path: "a.txt", CRC: 111, Updated: 1.0, Layer: "base"},
		{Path: "b.txt", CRC: 222, Updated: 2.0, Layer: "base"},
		{Path: "c.txt", CRC: 333, Updated: 3.0, Layer: "dlc-1"},
	}

	if err := db.TrackFiles(ctx, rows); err != nil {
		t.Fatalf("TrackFiles: %v", err)
	}

	f, err := db.GetFile(ctx, "a.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if f == nil || f.CRC != 111 {
		t.Fatalf("GetFile(a.txt) = %+v", f)
	}

	missing, err := db.GetFile(ctx, "missing.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if missing != nil {
		t.Errorf("GetFile(missing.txt) = %+v, want nil", missing)
	}

	base, err := db.GetFilesByLayer(ctx, "base")
	if err != nil {
		t.Fatalf("GetFilesByLayer: %v", err)
	}
	if len(base) != 2 {
		t.Fatalf("GetFilesByLayer(base) = %d rows, want 2", len(base))
	}
}

func TestFiles_TrackFiles_UpsertsOnConflict(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	if err := db.TrackFiles(ctx, []TrackedFile{{Path: "a.txt", CRC: 1, Updated: 1, Layer: "base"}}); err != nil {
		t.Fatalf("TrackFiles: %v", err)
	}

	if err := db.TrackFiles(ctx, []TrackedFile{{Path: "a.txt", CRC: 2, Updated: 2, Layer: "base"}}); err != nil {
		t.Fatalf("TrackFiles (conflict): %v", err)
	}

	f, err := db.GetFile(ctx, "a.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if f.CRC != 2 {
		t.Errorf("CRC after upsert = %d, want 2", f.CRC)
	}
}

func TestFiles_DeleteAndClear(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	rows := []TrackedFile{
		{Path: "a.txt", CRC: 1, Updated: 1, Layer: "base"},
		{Path: "b.txt", CRC: 2, Updated: 2, Layer: "base"},
	}
	if err := db.TrackFiles(ctx, rows); err != nil {
		t.Fatalf("TrackFiles: %v", err)
	}

	if err := db.DeleteTrackedFiles(ctx, []string{"a.txt"}); err != nil {
		t.Fatalf("DeleteTrackedFiles: %v", err)
	}

	f, err := db.GetFile(ctx, "a.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if f != nil {
		t.Errorf("GetFile(a.txt) after delete = %+v, want nil", f)
	}

	if err := db.ClearTrackedFiles(ctx); err != nil {
		t.Fatalf("ClearTrackedFiles: %v", err)
	}

	all, err := db.GetAllFiles(ctx)
	if err != nil {
		t.Fatalf("GetAllFiles: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("GetAllFiles after clear = %d rows, want 0", len(all))
	}
}

func TestIndexFiles(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	root := t.TempDir()

	content := []byte("hello world")
	if err := os.WriteFile(filepath.Join(root, "kept.txt"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "changed.txt"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(root, "kept.txt"))
	if err != nil {
		t.Fatal(err)
	}
	mtime := float64(info.ModTime().UnixNano()) / 1e9

	crc, err := hashFile(filepath.Join(root, "kept.txt"))
	if err != nil {
		t.Fatal(err)
	}

	rows := []TrackedFile{
		{Path: "kept.txt", CRC: crc, Updated: mtime, Layer: "base"},
		{Path: "changed.txt", CRC: 999999, Updated: 0, Layer: "base"},
		{Path: "gone.txt", CRC: 1, Updated: 1, Layer: "base"},
	}
	if err := db.TrackFiles(ctx, rows); err != nil {
		t.Fatal(err)
	}

	result, err := db.IndexFiles(ctx, root)
	if err != nil {
		t.Fatalf("IndexFiles: %v", err)
	}

	if len(result.Removed) != 1 || result.Removed[0] != "gone.txt" {
		t.Errorf("Removed = %v, want [gone.txt]", result.Removed)
	}

	if len(result.Modified) != 1 || result.Modified[0].Path != "changed.txt" {
		t.Errorf("Modified = %v, want [changed.txt]", result.Modified)
	}

	if len(result.All) != 2 {
		t.Errorf("All = %d rows, want 2", len(result.All))
	}

	// gone.txt is reported as removed but left in the DB — it is
	// informational only until a layer reconciliation reclaims it.
	gone, err := db.GetFile(ctx, "gone.txt")
	if err != nil {
		t.Fatal(err)
	}
	if gone == nil {
		t.Errorf("GetFile(gone.txt) = nil, want row to remain after IndexFiles")
	}
}
