package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/shotkeeper/dbopen"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db)
}

// testShot builds a minimal valid record. The suffix keeps the UNIQUE
// columns (filename, file_hash) distinct across inserts.
func testShot(suffix string) *Screenshot {
	return &Screenshot{
		Filename:    "shot_" + suffix + ".png",
		StoragePath: "/tmp/shots/shot_" + suffix + ".png",
		FileHash:    "hash_" + suffix,
		Width:       800,
		Height:      600,
		SizeBytes:   2048,
	}
}

func ftsCount(t *testing.T, s *Store, id int64) int {
	t.Helper()
	var n int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM screenshots_fts WHERE rowid = ?`, id).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestInsertAndGetByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := testShot("a")
	sc.OriginalPath = "/home/u/capture.png"
	sc.URL = "https://example.com"
	sc.Region = "right_half"
	sc.PerceptualHash = "00000000000000ff"
	sc.Metadata = `{"description":"login form"}`

	id, existed, err := s.Insert(ctx, sc, IndexEntry{Description: "login form"})
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Fatal("fresh insert reported as existing")
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("GetByID returned nil for inserted record")
	}
	if got.Filename != sc.Filename || got.FileHash != sc.FileHash {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.URL != "https://example.com" || got.Region != "right_half" {
		t.Fatalf("nullable columns mismatch: url=%q region=%q", got.URL, got.Region)
	}
	if got.PerceptualHash != "00000000000000ff" {
		t.Fatalf("perceptual_hash = %q", got.PerceptualHash)
	}
	if got.Description() != "login form" {
		t.Fatalf("Description() = %q", got.Description())
	}
	if got.Timestamp == 0 {
		t.Fatal("timestamp not defaulted on insert")
	}

	// The index shadow row must be written in the same transaction.
	if n := ftsCount(t, s, id); n != 1 {
		t.Fatalf("fts rows for id %d = %d, want 1", id, n)
	}
}

func TestInsertNullableColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty URL/region/fingerprint are stored as NULL and come back as "".
	id, _, err := s.Insert(ctx, testShot("plain"), IndexEntry{})
	if err != nil {
		t.Fatal(err)
	}

	var urlIsNull, regionIsNull, phashIsNull bool
	err = s.DB.QueryRow(
		`SELECT url IS NULL, region IS NULL, perceptual_hash IS NULL FROM screenshots WHERE id = ?`, id).
		Scan(&urlIsNull, &regionIsNull, &phashIsNull)
	if err != nil {
		t.Fatal(err)
	}
	if !urlIsNull || !regionIsNull || !phashIsNull {
		t.Fatalf("expected NULLs, got url=%v region=%v phash=%v", urlIsNull, regionIsNull, phashIsNull)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "" || got.Region != "" || got.PerceptualHash != "" {
		t.Fatalf("NULLs not mapped to empty strings: %+v", got)
	}
}

func TestInsertDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testShot("dup")
	id1, existed, err := s.Insert(ctx, first, IndexEntry{})
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Fatal("first insert reported as existing")
	}

	// Same content digest under a different filename: idempotent no-op.
	second := testShot("dup2")
	second.FileHash = first.FileHash
	id2, existed, err := s.Insert(ctx, second, IndexEntry{})
	if err != nil {
		t.Fatal(err)
	}
	if !existed {
		t.Fatal("duplicate insert not detected")
	}
	if id2 != id1 {
		t.Fatalf("duplicate insert returned id %d, want existing %d", id2, id1)
	}

	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM screenshots`).Scan(&count)
	if count != 1 {
		t.Fatalf("screenshot count = %d, want 1", count)
	}
	var ftsTotal int
	s.DB.QueryRow(`SELECT COUNT(*) FROM screenshots_fts`).Scan(&ftsTotal)
	if ftsTotal != 1 {
		t.Fatalf("fts row count = %d, want 1", ftsTotal)
	}
}

func TestInsertFoldsIndexEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A caller who supplies text only through the IndexEntry must get it
	// back on the record itself, not just see it matched by search.
	id, _, err := s.Insert(ctx, testShot("fold"), IndexEntry{
		Description:   "login form",
		ExtractedText: "Invalid credentials",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description() != "login form" {
		t.Fatalf("Description() = %q, want folded index entry", got.Description())
	}
	if got.ExtractedText() != "Invalid credentials" {
		t.Fatalf("ExtractedText() = %q, want folded index entry", got.ExtractedText())
	}

	// Keys already present in metadata win over the index entry.
	pre := testShot("fold2")
	pre.Metadata = `{"description":"from metadata"}`
	id, _, err = s.Insert(ctx, pre, IndexEntry{Description: "from index"})
	if err != nil {
		t.Fatal(err)
	}
	got, err = s.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description() != "from metadata" {
		t.Fatalf("Description() = %q, want existing metadata preserved", got.Description())
	}
}

func TestGetUnknown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetByID(ctx, 9999)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("GetByID(9999) = %+v, want nil", got)
	}

	got, err = s.GetByFileHash(ctx, "no-such-hash")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("GetByFileHash = %+v, want nil", got)
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	shots := []struct {
		suffix, description, region string
	}{
		{"1", "login form with error dialog", "right_half"},
		{"2", "login page", ""},
		{"3", "dashboard with traffic graphs", "left_half"},
	}
	for _, sh := range shots {
		sc := testShot(sh.suffix)
		sc.Region = sh.region
		if _, _, err := s.Insert(ctx, sc, IndexEntry{Description: sh.description}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.Search(ctx, SearchOptions{Query: "login"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results for 'login', want 2", len(results))
	}
	// bm25 rank: lower is better, so results come back in ascending rank.
	if results[0].Rank > results[1].Rank {
		t.Fatalf("results not rank-ordered: %v, %v", results[0].Rank, results[1].Rank)
	}
	for _, r := range results {
		if r.Rank >= 0 {
			t.Fatalf("bm25 rank %v for a match, want negative", r.Rank)
		}
		if r.Description != "login form with error dialog" && r.Description != "login page" {
			t.Fatalf("search result description = %q", r.Description)
		}
	}

	// Region predicate narrows the match set.
	results, err = s.Search(ctx, SearchOptions{Query: "login", Region: "right_half"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Region != "right_half" {
		t.Fatalf("region-filtered search = %d results", len(results))
	}

	// No match at all is a valid empty result, not an error.
	results, err = s.Search(ctx, SearchOptions{Query: "nonexistentterm"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results for miss, want 0", len(results))
	}
}

func TestSearchDateRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := testShot("old")
	old.Timestamp = epochSeconds(now.Add(-48 * time.Hour))
	if _, _, err := s.Insert(ctx, old, IndexEntry{Description: "settings panel"}); err != nil {
		t.Fatal(err)
	}
	fresh := testShot("fresh")
	fresh.Timestamp = epochSeconds(now)
	if _, _, err := s.Insert(ctx, fresh, IndexEntry{Description: "settings panel"}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, SearchOptions{
		Query:    "settings",
		DateFrom: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Filename != fresh.Filename {
		t.Fatalf("DateFrom filter returned %d results", len(results))
	}

	results, err = s.Search(ctx, SearchOptions{
		Query:  "settings",
		DateTo: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Filename != old.Filename {
		t.Fatalf("DateTo filter returned %d results", len(results))
	}
}

func TestSearchLogsEveryQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Insert(ctx, testShot("a"), IndexEntry{Description: "error dialog"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Search(ctx, SearchOptions{Query: "error"}); err != nil {
		t.Fatal(err)
	}
	// Zero-result queries are logged too.
	if _, err := s.Search(ctx, SearchOptions{Query: "nothinghere"}); err != nil {
		t.Fatal(err)
	}

	entries, err := s.RecentSearches(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	byQuery := map[string]int{}
	for _, e := range entries {
		byQuery[e.Query] = e.ResultCount
		if e.ID == "" {
			t.Fatal("search log entry missing id")
		}
	}
	if byQuery["error"] != 1 {
		t.Fatalf("result_count for 'error' = %d, want 1", byQuery["error"])
	}
	if n, ok := byQuery["nothinghere"]; !ok || n != 0 {
		t.Fatalf("zero-result query not logged correctly: %v", byQuery)
	}
}

func TestRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, suffix := range []string{"a", "b", "c"} {
		sc := testShot(suffix)
		sc.Timestamp = epochSeconds(now.Add(time.Duration(i) * time.Minute))
		if i == 2 {
			sc.Region = "right_half"
		}
		if _, _, err := s.Insert(ctx, sc, IndexEntry{}); err != nil {
			t.Fatal(err)
		}
	}

	recents, err := s.Recent(ctx, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(recents) != 2 {
		t.Fatalf("got %d recents, want 2", len(recents))
	}
	// Newest first.
	if recents[0].Filename != "shot_c.png" || recents[1].Filename != "shot_b.png" {
		t.Fatalf("wrong order: %s, %s", recents[0].Filename, recents[1].Filename)
	}

	recents, err = s.Recent(ctx, 10, "right_half")
	if err != nil {
		t.Fatal(err)
	}
	if len(recents) != 1 || recents[0].Filename != "shot_c.png" {
		t.Fatalf("region-filtered recents = %d", len(recents))
	}
}

func TestFingerprints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hashed := testShot("hashed")
	hashed.PerceptualHash = "00000000000000ff"
	id1, _, err := s.Insert(ctx, hashed, IndexEntry{})
	if err != nil {
		t.Fatal(err)
	}
	// Record without a fingerprint is excluded from similarity scoring.
	if _, _, err := s.Insert(ctx, testShot("plain"), IndexEntry{}); err != nil {
		t.Fatal(err)
	}
	hashed2 := testShot("hashed2")
	hashed2.PerceptualHash = "ffffffffffffffff"
	id2, _, err := s.Insert(ctx, hashed2, IndexEntry{})
	if err != nil {
		t.Fatal(err)
	}

	fps, err := s.Fingerprints(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 2 {
		t.Fatalf("got %d fingerprints, want 2", len(fps))
	}
	// Ordered by record ID for deterministic downstream grouping.
	if fps[0].ID != id1 || fps[1].ID != id2 {
		t.Fatalf("fingerprint order = %d, %d; want %d, %d", fps[0].ID, fps[1].ID, id1, id2)
	}
	if fps[0].Hash != "00000000000000ff" {
		t.Fatalf("fps[0].Hash = %q", fps[0].Hash)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	backing := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(backing, []byte("png bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	sc := testShot("del")
	sc.StoragePath = backing
	id, _, err := s.Insert(ctx, sc, IndexEntry{Description: "to be deleted"})
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := s.Delete(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("Delete returned false for existing record")
	}

	if _, err := os.Stat(backing); !os.IsNotExist(err) {
		t.Fatal("backing file still present after delete")
	}
	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("record still present after delete")
	}
	// No orphaned index rows.
	if n := ftsCount(t, s, id); n != 0 {
		t.Fatalf("fts rows after delete = %d, want 0", n)
	}

	// Deleting the same ID again, or an unknown ID, reports false.
	deleted, err = s.Delete(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Fatal("second delete reported true")
	}
}

func TestDeleteMissingBackingFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := testShot("ghost")
	sc.StoragePath = filepath.Join(t.TempDir(), "never-written.png")
	id, _, err := s.Insert(ctx, sc, IndexEntry{})
	if err != nil {
		t.Fatal(err)
	}

	// A backing file that is already gone must not block the delete.
	deleted, err := s.Delete(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("delete with missing backing file returned false")
	}
}

func TestCleanupOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	now := time.Now()

	mk := func(suffix string, age time.Duration) int64 {
		t.Helper()
		path := filepath.Join(dir, "shot_"+suffix+".png")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		sc := testShot(suffix)
		sc.StoragePath = path
		sc.Timestamp = epochSeconds(now.Add(-age))
		id, _, err := s.Insert(ctx, sc, IndexEntry{})
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	oldID := mk("old", 40*24*time.Hour)
	freshID := mk("fresh", time.Hour)

	removed, err := s.CleanupOlderThan(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if got, _ := s.GetByID(ctx, oldID); got != nil {
		t.Fatal("old record survived cleanup")
	}
	if got, _ := s.GetByID(ctx, freshID); got == nil {
		t.Fatal("fresh record removed by cleanup")
	}
	if _, err := os.Stat(filepath.Join(dir, "shot_old.png")); !os.IsNotExist(err) {
		t.Fatal("old backing file survived cleanup")
	}
	if n := ftsCount(t, s, oldID); n != 0 {
		t.Fatalf("fts rows for cleaned record = %d, want 0", n)
	}

	// Zero days means everything at or before this instant goes.
	removed, err = s.CleanupOlderThan(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("cleanup(0) removed = %d, want 1", removed)
	}
	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM screenshots`).Scan(&count)
	if count != 0 {
		t.Fatalf("records remaining after cleanup(0) = %d, want 0", count)
	}

	// Nothing left to remove: still not an error.
	removed, err = s.CleanupOlderThan(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Fatalf("cleanup on empty store removed %d", removed)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testShot("a")
	a.Region = "right_half"
	a.SizeBytes = 1024 * 1024
	if _, _, err := s.Insert(ctx, a, IndexEntry{Description: "form"}); err != nil {
		t.Fatal(err)
	}
	b := testShot("b")
	b.SizeBytes = 512 * 1024
	if _, _, err := s.Insert(ctx, b, IndexEntry{}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Search(ctx, SearchOptions{Query: "form"}); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalScreenshots != 2 {
		t.Fatalf("TotalScreenshots = %d, want 2", stats.TotalScreenshots)
	}
	if stats.TotalSizeBytes != 1024*1024+512*1024 {
		t.Fatalf("TotalSizeBytes = %d", stats.TotalSizeBytes)
	}
	if stats.TotalSizeMB != 1.5 {
		t.Fatalf("TotalSizeMB = %v, want 1.5", stats.TotalSizeMB)
	}
	if stats.ByRegion["right_half"] != 1 {
		t.Fatalf("ByRegion[right_half] = %d", stats.ByRegion["right_half"])
	}
	// Full-screen captures (NULL region) are grouped under the empty key.
	if stats.ByRegion[""] != 1 {
		t.Fatalf("ByRegion[\"\"] = %d", stats.ByRegion[""])
	}
	if len(stats.RecentSearches) != 1 || stats.RecentSearches[0].Query != "form" {
		t.Fatalf("RecentSearches = %+v", stats.RecentSearches)
	}
}
