// CLAUDE:SUMMARY FTS5 ranked search over the shadow index, with filter predicates and search audit logging.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/shotkeeper/idgen"
)

var newSearchID = idgen.Prefixed("srch_", idgen.Default)

// Search performs a bm25-ranked full-text query over the shadow index.
// Date and region predicates narrow the match set before limit/offset
// apply. Every call appends a search_log row, zero-result queries
// included. Rank follows the SQLite convention: lower is better.
func (s *Store) Search(ctx context.Context, opts SearchOptions) ([]*SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	where := []string{"screenshots_fts MATCH ?"}
	args := []any{opts.Query}

	if !opts.DateFrom.IsZero() {
		where = append(where, "s.timestamp >= ?")
		args = append(args, epochSeconds(opts.DateFrom))
	}
	if !opts.DateTo.IsZero() {
		where = append(where, "s.timestamp <= ?")
		args = append(args, epochSeconds(opts.DateTo))
	}
	if opts.Region != "" {
		where = append(where, "s.region = ?")
		args = append(args, opts.Region)
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.filename, s.original_path, s.storage_path, s.file_hash,
		       s.url, s.region, s.timestamp, s.width, s.height, s.size_bytes,
		       s.perceptual_hash, s.metadata, rank
		FROM screenshots_fts
		JOIN screenshots s ON s.id = screenshots_fts.rowid
		WHERE %s
		ORDER BY rank
		LIMIT ? OFFSET ?`,
		strings.Join(where, " AND "),
	)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		r := &SearchResult{}
		var url, region, phash sql.NullString
		if err := rows.Scan(&r.ID, &r.Filename, &r.OriginalPath, &r.StoragePath, &r.FileHash,
			&url, &region, &r.Timestamp, &r.Width, &r.Height, &r.SizeBytes,
			&phash, &r.Metadata, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.URL = url.String
		r.Region = region.String
		r.PerceptualHash = phash.String
		r.Description = r.Screenshot.Description()
		r.ExtractedText = r.Screenshot.ExtractedText()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Log the search (fire-and-forget).
	s.DB.ExecContext(ctx,
		`INSERT INTO search_log (id, query, result_count, searched_at) VALUES (?, ?, ?, ?)`,
		newSearchID(), opts.Query, len(results), epochSeconds(time.Now()))

	return results, nil
}

// RecentSearches returns the latest search log entries, newest first.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]SearchLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, query, result_count, searched_at FROM search_log ORDER BY searched_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SearchLogEntry
	for rows.Next() {
		var e SearchLogEntry
		if err := rows.Scan(&e.ID, &e.Query, &e.ResultCount, &e.SearchedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
