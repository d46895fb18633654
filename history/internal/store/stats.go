// CLAUDE:SUMMARY Aggregate catalogue statistics: totals, per-region counts, recent searches.
package store

import (
	"context"
	"database/sql"
	"math"
)

const recentSearchLimit = 10

// GetStats computes the on-demand statistics snapshot. Records captured
// without a region are grouped under the empty key.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByRegion: map[string]int{}}

	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM screenshots`).
		Scan(&stats.TotalScreenshots, &stats.TotalSizeBytes)
	if err != nil {
		return nil, err
	}
	stats.TotalSizeMB = math.Round(float64(stats.TotalSizeBytes)/(1024*1024)*100) / 100

	rows, err := s.DB.QueryContext(ctx,
		`SELECT COALESCE(region, ''), COUNT(*) FROM screenshots GROUP BY region`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var region sql.NullString
		var n int
		if err := rows.Scan(&region, &n); err != nil {
			return nil, err
		}
		stats.ByRegion[region.String] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.RecentSearches, err = s.RecentSearches(ctx, recentSearchLimit)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
