package history

import "github.com/hazyhaar/shotkeeper/history/internal/store"

// Re-exported types from internal/store for use by cmd/ and external callers.
type (
	Screenshot     = store.Screenshot
	SearchOptions  = store.SearchOptions
	SearchResult   = store.SearchResult
	SearchLogEntry = store.SearchLogEntry
	Stats          = store.Stats
)
