// CLAUDE:SUMMARY Screenshot catalogue schema: records table, FTS5 shadow index, search audit log.
package store

// Schema is the complete shotkeeper history schema.
//
// The FTS5 shadow is a standalone virtual table maintained manually:
// every record insert writes exactly one paired index row in the same
// transaction, and a record delete removes its shadow row in the same
// transaction. There is no update path — re-ingesting identical content
// is a dedup no-op, so the shadow is write-once. No triggers.
const Schema = `
-- One row per distinct captured image (dedup key: file_hash)
CREATE TABLE IF NOT EXISTS screenshots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    filename        TEXT NOT NULL UNIQUE,
    original_path   TEXT NOT NULL DEFAULT '',
    storage_path    TEXT NOT NULL,
    file_hash       TEXT NOT NULL UNIQUE,
    url             TEXT,
    region          TEXT,
    timestamp       REAL NOT NULL,
    width           INTEGER NOT NULL DEFAULT 0,
    height          INTEGER NOT NULL DEFAULT 0,
    size_bytes      INTEGER NOT NULL DEFAULT 0,
    perceptual_hash TEXT,
    metadata        TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_screenshots_time ON screenshots(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_screenshots_region ON screenshots(region);

-- FTS5 shadow of the textual fields, rowid-aligned with screenshots.id
CREATE VIRTUAL TABLE IF NOT EXISTS screenshots_fts USING fts5(
    filename, description, extracted_text, url, region, metadata,
    tokenize='porter unicode61'
);

-- Search audit log (append-only, read back only for stats)
CREATE TABLE IF NOT EXISTS search_log (
    id           TEXT PRIMARY KEY,
    query        TEXT NOT NULL,
    result_count INTEGER NOT NULL DEFAULT 0,
    searched_at  REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_log_time ON search_log(searched_at DESC);
`
