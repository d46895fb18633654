// CLAUDE:SUMMARY Store data types: Screenshot, IndexEntry, SearchOptions/Result, SearchLogEntry, Stats.
package store

import (
	"encoding/json"
	"time"
)

// Screenshot is one catalogued capture. Timestamp is epoch seconds with
// float precision. URL, Region, and PerceptualHash are empty strings when
// absent (stored as NULL).
type Screenshot struct {
	ID             int64   `json:"id"`
	Filename       string  `json:"filename"`
	OriginalPath   string  `json:"original_path,omitempty"`
	StoragePath    string  `json:"storage_path"`
	FileHash       string  `json:"file_hash"`
	URL            string  `json:"url,omitempty"`
	Region         string  `json:"region,omitempty"`
	Timestamp      float64 `json:"timestamp"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	SizeBytes      int64   `json:"size_bytes"`
	PerceptualHash string  `json:"perceptual_hash,omitempty"`
	Metadata       string  `json:"metadata"` // JSON object
}

// Meta decodes the metadata JSON. Returns an empty map on malformed input.
func (s *Screenshot) Meta() map[string]any {
	m := map[string]any{}
	if s.Metadata != "" {
		json.Unmarshal([]byte(s.Metadata), &m)
	}
	return m
}

// Description returns the AI-generated description carried in metadata.
func (s *Screenshot) Description() string {
	return metaString(s.Meta(), "description")
}

// ExtractedText returns the OCR text carried in metadata.
func (s *Screenshot) ExtractedText() string {
	return metaString(s.Meta(), "extracted_text")
}

// Time converts the float epoch timestamp to a time.Time.
func (s *Screenshot) Time() time.Time {
	sec := int64(s.Timestamp)
	nsec := int64((s.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// IndexEntry carries the description and extracted text destined for the
// FTS5 shadow row. The remaining shadow columns (filename, url, region,
// metadata) come from the record itself.
type IndexEntry struct {
	Description   string
	ExtractedText string
}

// SearchOptions controls ranked full-text search.
type SearchOptions struct {
	Query    string    // FTS5 query string
	Limit    int       // max results (default: 10)
	Offset   int       // pagination offset
	DateFrom time.Time // optional: results at/after this instant
	DateTo   time.Time // optional: results at/before this instant
	Region   string    // optional: exact region match
}

// SearchResult is a ranked full-text hit. Rank is the raw SQLite bm25()
// value: lower (more negative) is a better match.
type SearchResult struct {
	Screenshot
	Rank          float64 `json:"rank"`
	Description   string  `json:"description,omitempty"`
	ExtractedText string  `json:"extracted_text,omitempty"`
}

// Fingerprint is a stored perceptual hash keyed by record ID.
type Fingerprint struct {
	ID   int64
	Hash string
}

// SearchLogEntry records one past query.
type SearchLogEntry struct {
	ID          string  `json:"id"`
	Query       string  `json:"query"`
	ResultCount int     `json:"result_count"`
	SearchedAt  float64 `json:"searched_at"`
}

// Stats holds aggregate counters for the catalogue.
type Stats struct {
	TotalScreenshots int              `json:"total_screenshots"`
	TotalSizeBytes   int64            `json:"total_size_bytes"`
	TotalSizeMB      float64          `json:"total_size_mb"`
	ByRegion         map[string]int   `json:"by_region"`
	RecentSearches   []SearchLogEntry `json:"recent_searches"`
}
