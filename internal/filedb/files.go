package filedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	sqlGetFile = `SELECT path, crc, updated, layer FROM files WHERE path = ?`

	sqlGetFilesByLayer = `SELECT path, crc, updated, layer FROM files
		WHERE layer = ? ORDER BY path`

	sqlGetAllFiles = `SELECT path, crc, updated, layer FROM files ORDER BY path`

	sqlInsertFile = `INSERT INTO files (path, crc, updated, layer)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
		 crc = excluded.crc,
		 updated = excluded.updated,
		 layer = excluded.layer`

	sqlUpdateFile = `UPDATE files SET crc = ?, updated = ?, layer = ? WHERE path = ?`

	sqlDeleteFile = `DELETE FROM files WHERE path = ?`

	sqlClearFiles = `DELETE FROM files`
)

// GetFile returns the tracked file at path, or (nil, nil) if no such row
// exists.
func (d *DB) GetFile(ctx context.Context, path string) (*TrackedFile, error) {
	var f TrackedFile

	err := d.conn.QueryRowContext(ctx, sqlGetFile, path).Scan(&f.Path, &f.CRC, &f.Updated, &f.Layer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("filedb: getting file %q: %w", path, err)
	}

	return &f, nil
}

// GetFilesByLayer returns every tracked file placed by layer, ordered by
// path.
func (d *DB) GetFilesByLayer(ctx context.Context, layer string) ([]TrackedFile, error) {
	rows, err := d.conn.QueryContext(ctx, sqlGetFilesByLayer, layer)
	if err != nil {
		return nil, fmt.Errorf("filedb: getting files for layer %q: %w", layer, err)
	}
	defer rows.Close()

	return scanTrackedFiles(rows)
}

// GetAllFiles returns every tracked file, ordered by path.
func (d *DB) GetAllFiles(ctx context.Context) ([]TrackedFile, error) {
	rows, err := d.conn.QueryContext(ctx, sqlGetAllFiles)
	if err != nil {
		return nil, fmt.Errorf("filedb: getting all files: %w", err)
	}
	defer rows.Close()

	return scanTrackedFiles(rows)
}

func scanTrackedFiles(rows *sql.Rows) ([]TrackedFile, error) {
	var out []TrackedFile

	for rows.Next() {
		var f TrackedFile
		if err := rows.Scan(&f.Path, &f.CRC, &f.Updated, &f.Layer); err != nil {
			return nil, fmt.Errorf("filedb: scanning file row: %w", err)
		}

		out = append(out, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filedb: iterating file rows: %w", err)
	}

	return out, nil
}

// TrackFiles batch-inserts rows, upserting on path conflict. Used when
// placing newly-extracted entries.
func (d *DB) TrackFiles(ctx context.Context, rows []TrackedFile) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("filedb: beginning track_files transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlInsertFile)
	if err != nil {
		return fmt.Errorf("filedb: preparing track_files statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range rows {
		if _, err := stmt.ExecContext(ctx, f.Path, f.CRC, f.Updated, f.Layer); err != nil {
			return fmt.Errorf("filedb: tracking file %q: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("filedb: committing track_files transaction: %w", err)
	}

	return nil
}

// UpdateTrackedFiles batch-updates (crc, updated, layer) keyed by path.
// Used by index_files to record externally-modified local files.
func (d *DB) UpdateTrackedFiles(ctx context.Context, rows []TrackedFile) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("filedb: beginning update_tracked_files transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlUpdateFile)
	if err != nil {
		return fmt.Errorf("filedb: preparing update_tracked_files statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range rows {
		if _, err := stmt.ExecContext(ctx, f.CRC, f.Updated, f.Layer, f.Path); err != nil {
			return fmt.Errorf("filedb: updating file %q: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("filedb: committing update_tracked_files transaction: %w", err)
	}

	return nil
}

// DeleteTrackedFiles batch-deletes rows by path. Used by the
// reconciliation pass to reclaim files unclaimed by any visited layer.
func (d *DB) DeleteTrackedFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("filedb: beginning delete_tracked_files transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlDeleteFile)
	if err != nil {
		return fmt.Errorf("filedb: preparing delete_tracked_files statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("filedb: deleting file %q: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("filedb: committing delete_tracked_files transaction: %w", err)
	}

	return nil
}

// ClearTrackedFiles truncates the files table. Used when starting a
// clean install over a previously-tracked but now-discarded state.
func (d *DB) ClearTrackedFiles(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, sqlClearFiles); err != nil {
		return fmt.Errorf("filedb: clearing tracked files: %w", err)
	}

	return nil
}
