// CLAUDE:SUMMARY Screenshot CRUD: dedup insert with paired FTS5 row, lookups, recency, delete, retention sweep.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// Insert adds a screenshot and its paired FTS5 shadow row in one
// transaction. The IndexEntry fields are folded into the persisted
// metadata under the description/extracted_text keys, so search results
// can surface them without consulting the shadow row. If a record with
// the same file_hash already exists the insert is an idempotent no-op:
// the existing ID is returned with existed=true and nothing is written.
func (s *Store) Insert(ctx context.Context, sc *Screenshot, idx IndexEntry) (id int64, existed bool, err error) {
	if sc.Metadata == "" {
		sc.Metadata = "{}"
	}
	if err := foldIndexEntry(sc, idx); err != nil {
		return 0, false, err
	}
	if sc.Timestamp == 0 {
		sc.Timestamp = epochSeconds(time.Now())
	}

	err = s.runTx(ctx, func(tx *sql.Tx) error {
		// Dedup check inside the transaction so a concurrent ingest of the
		// same content cannot slip between check and insert.
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM screenshots WHERE file_hash = ?`, sc.FileHash)
		switch err := row.Scan(&id); {
		case err == nil:
			existed = true
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("dedup lookup: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO screenshots (filename, original_path, storage_path, file_hash,
			url, region, timestamp, width, height, size_bytes, perceptual_hash, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sc.Filename, sc.OriginalPath, sc.StoragePath, sc.FileHash,
			nullable(sc.URL), nullable(sc.Region), sc.Timestamp,
			sc.Width, sc.Height, sc.SizeBytes, nullable(sc.PerceptualHash), sc.Metadata,
		)
		if err != nil {
			return fmt.Errorf("insert screenshot: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		// Exactly one paired index row per record, same transaction.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO screenshots_fts (rowid, filename, description, extracted_text, url, region, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, sc.Filename, idx.Description, idx.ExtractedText,
			sc.URL, sc.Region, sc.Metadata,
		); err != nil {
			return fmt.Errorf("insert index entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	sc.ID = id
	return id, existed, nil
}

// GetByID retrieves a screenshot. Returns (nil, nil) when the ID is unknown.
func (s *Store) GetByID(ctx context.Context, id int64) (*Screenshot, error) {
	row := s.DB.QueryRowContext(ctx, selectScreenshot+` WHERE id = ?`, id)
	return scanScreenshot(row)
}

// GetByFileHash retrieves a screenshot by its content digest.
// Returns (nil, nil) when no record carries that hash.
func (s *Store) GetByFileHash(ctx context.Context, fileHash string) (*Screenshot, error) {
	row := s.DB.QueryRowContext(ctx, selectScreenshot+` WHERE file_hash = ?`, fileHash)
	return scanScreenshot(row)
}

// Recent returns screenshots by descending capture time, no ranking.
func (s *Store) Recent(ctx context.Context, limit int, region string) ([]*Screenshot, error) {
	if limit <= 0 {
		limit = 10
	}
	q := selectScreenshot
	var args []any
	if region != "" {
		q += ` WHERE region = ?`
		args = append(args, region)
	}
	q += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Screenshot
	for rows.Next() {
		sc, err := scanScreenshotRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

// Fingerprints returns all stored perceptual hashes, ordered by record ID
// so downstream scoring and grouping are deterministic. Records without a
// fingerprint are excluded. Empty region means no filter.
func (s *Store) Fingerprints(ctx context.Context, region string) ([]Fingerprint, error) {
	q := `SELECT id, perceptual_hash FROM screenshots WHERE perceptual_hash IS NOT NULL`
	var args []any
	if region != "" {
		q += ` AND region = ?`
		args = append(args, region)
	}
	q += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fps []Fingerprint
	for rows.Next() {
		var fp Fingerprint
		if err := rows.Scan(&fp.ID, &fp.Hash); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// Delete removes a screenshot, its index shadow, and its stored file.
// Returns false when the ID is unknown. A backing file that is already
// gone is treated as deleted, not an error.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	var storagePath string
	err := s.DB.QueryRowContext(ctx,
		`SELECT storage_path FROM screenshots WHERE id = ?`, id).Scan(&storagePath)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete lookup: %w", err)
	}

	if err := removeFile(storagePath); err != nil {
		return false, err
	}

	err = s.runTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM screenshots_fts WHERE rowid = ?`, id); err != nil {
			return fmt.Errorf("delete index entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM screenshots WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete screenshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// CleanupOlderThan deletes every record whose timestamp is at or before
// now − days·86400, removing backing files as it goes. Returns the number
// of records removed. Safe to call with zero matching rows.
func (s *Store) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := epochSeconds(time.Now()) - float64(days)*86400

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, storage_path FROM screenshots WHERE timestamp <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	type victim struct {
		id   int64
		path string
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.path); err != nil {
			rows.Close()
			return 0, err
		}
		victims = append(victims, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}

	for _, v := range victims {
		if err := removeFile(v.path); err != nil {
			return 0, err
		}
	}

	// Delete exactly the scanned set. Re-evaluating the cutoff here
	// could catch a record inserted since the scan, deleting it
	// uncounted with its backing file left behind.
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",")
	ids := make([]any, len(victims))
	for i, v := range victims {
		ids[i] = v.id
	}

	err = s.runTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM screenshots_fts WHERE rowid IN (`+placeholders+`)`,
			ids...); err != nil {
			return fmt.Errorf("cleanup index entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM screenshots WHERE id IN (`+placeholders+`)`,
			ids...); err != nil {
			return fmt.Errorf("cleanup screenshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(victims), nil
}

// foldIndexEntry merges the index entry's textual fields into the
// record's metadata JSON. Existing keys win so callers that already
// carry description/extracted_text in metadata are left untouched.
func foldIndexEntry(sc *Screenshot, idx IndexEntry) error {
	if idx.Description == "" && idx.ExtractedText == "" {
		return nil
	}
	meta := sc.Meta()
	if idx.Description != "" {
		if _, ok := meta["description"]; !ok {
			meta["description"] = idx.Description
		}
	}
	if idx.ExtractedText != "" {
		if _, ok := meta["extracted_text"]; !ok {
			meta["extracted_text"] = idx.ExtractedText
		}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	sc.Metadata = string(b)
	return nil
}

const selectScreenshot = `SELECT id, filename, original_path, storage_path, file_hash,
	url, region, timestamp, width, height, size_bytes, perceptual_hash, metadata
	FROM screenshots`

type scanner interface {
	Scan(dest ...any) error
}

func scanScreenshot(row scanner) (*Screenshot, error) {
	var sc Screenshot
	var url, region, phash sql.NullString
	err := row.Scan(&sc.ID, &sc.Filename, &sc.OriginalPath, &sc.StoragePath, &sc.FileHash,
		&url, &region, &sc.Timestamp, &sc.Width, &sc.Height, &sc.SizeBytes, &phash, &sc.Metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan screenshot: %w", err)
	}
	sc.URL = url.String
	sc.Region = region.String
	sc.PerceptualHash = phash.String
	return &sc, nil
}

func scanScreenshotRows(rows *sql.Rows) (*Screenshot, error) {
	sc, err := scanScreenshot(rows)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("scan screenshot: unexpected empty row")
	}
	return sc, nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stored file %s: %w", path, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
