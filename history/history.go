// CLAUDE:SUMMARY Main history engine — wires the catalogue store and hash engine, exposes ingest/search/retention API.
// Package history is the screenshot history and hybrid search engine.
//
// It sits between capture/description producers (which hand it a file
// path plus optional description, OCR text, url, region, and metadata)
// and query consumers (CLI, agents). The pipeline:
//
//	capture → history.Add → copy + fingerprint → store → search/similar/combined
//
// Key features:
//   - Content deduplication: SHA-256 file hash makes re-ingestion a no-op
//   - FTS5 full-text search with bm25 ranking over descriptions and OCR text
//   - Perceptual similarity search over 64-bit average-hash fingerprints
//   - Weighted fusion of both signals with normalized scores
//   - Retention sweep and per-region statistics
//
// Usage:
//
//	h, err := history.New(cfg, logger)
//	defer h.Close()
//	id, err := h.Add(ctx, history.AddOptions{FilePath: shot, Description: desc})
//	results, err := h.CombinedSearch(ctx, history.CombinedOptions{TextQuery: "error dialog", ImagePath: ref})
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hazyhaar/shotkeeper/history/internal/store"
)

// ErrInvalidQuery reports a request-validation failure: no search modality
// given, or a requested modality carrying a non-positive weight. Raised
// before any store access.
var ErrInvalidQuery = errors.New("history: invalid query")

// History is the long-lived engine handle. One per process; constructed
// explicitly and passed by reference rather than held as ambient state so
// the transactional boundary and test isolation stay visible.
type History struct {
	store  *store.Store
	config *Config
	logger *slog.Logger
}

// New opens (or creates) the history database and storage directory.
func New(cfg *Config, logger *slog.Logger) (*History, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create storage dir: %w", err)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("history: open store: %w", err)
	}

	return &History{store: s, config: cfg, logger: logger}, nil
}

// Close closes the backing database.
func (h *History) Close() error {
	return h.store.Close()
}

// Store returns the underlying store for direct access (testing, admin).
func (h *History) Store() *store.Store {
	return h.store
}

// Search performs ranked full-text search over the catalogue.
func (h *History) Search(ctx context.Context, opts SearchOptions) ([]*SearchResult, error) {
	return h.store.Search(ctx, opts)
}

// Recent lists screenshots by descending capture time.
func (h *History) Recent(ctx context.Context, limit int, region string) ([]*Screenshot, error) {
	return h.store.Recent(ctx, limit, region)
}

// Get retrieves a screenshot by ID. Returns (nil, nil) when unknown.
func (h *History) Get(ctx context.Context, id int64) (*Screenshot, error) {
	return h.store.GetByID(ctx, id)
}

// Delete removes a screenshot, its index entry, and its stored file.
// Returns false when the ID is unknown.
func (h *History) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := h.store.Delete(ctx, id)
	if err == nil && deleted {
		h.logger.Info("history: deleted screenshot", "id", id)
	}
	return deleted, err
}

// Cleanup deletes every record older than the given number of days,
// removing stored files as it goes. days == 0 sweeps everything captured
// up to now; negative days falls back to the configured retention.
func (h *History) Cleanup(ctx context.Context, days int) (int, error) {
	if days < 0 {
		days = h.config.RetentionDays
	}
	n, err := h.store.CleanupOlderThan(ctx, days)
	if err != nil {
		return 0, err
	}
	h.logger.Info("history: retention sweep", "days", days, "removed", n)
	return n, nil
}

// GetStats computes the statistics snapshot.
func (h *History) GetStats(ctx context.Context) (*Stats, error) {
	return h.store.GetStats(ctx)
}
