// CLAUDE:SUMMARY CLI entry point for shotkeeper — screenshot history with full-text, similarity, and combined search.
// Command shotkeeper is the screenshot history and hybrid search engine.
//
// Usage:
//
//	shotkeeper -config shotkeeper.yaml -stats
//	shotkeeper -add shot.png -description "login form" -region right_half
//	shotkeeper -search "error dialog"                  # ranked full-text search
//	shotkeeper -similar ref.png -threshold 0.85        # perceptual similarity
//	shotkeeper -search "error" -similar ref.png \
//	           -text-weight 7 -image-weight 3          # fused search
//	shotkeeper -recent -limit 20
//	shotkeeper -cleanup 30                             # retention sweep
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/shotkeeper/history"
)

func main() {
	configPath := flag.String("config", "", "path to shotkeeper.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database")
	storageDir := flag.String("storage", "", "directory for stored screenshots")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")

	addPath := flag.String("add", "", "ingest an image file (exit after)")
	description := flag.String("description", "", "description for -add")
	ocrText := flag.String("ocr", "", "extracted text for -add")
	captureURL := flag.String("url", "", "source URL for -add")
	noFingerprint := flag.Bool("no-fingerprint", false, "skip perceptual hashing for -add")

	searchQuery := flag.String("search", "", "full-text query (with -similar: fused search)")
	similarPath := flag.String("similar", "", "image for similarity search (with -search: fused search)")
	textWeight := flag.Float64("text-weight", 1, "text signal weight for fused search")
	imageWeight := flag.Float64("image-weight", 1, "image signal weight for fused search")
	threshold := flag.Float64("threshold", 0, "score floor (default 0.8 for -similar, 0 for fused)")

	showRecent := flag.Bool("recent", false, "list recent screenshots and exit")
	showStats := flag.Bool("stats", false, "show stats and exit")
	showDuplicates := flag.Bool("duplicates", false, "group near-duplicate screenshots and exit")
	getID := flag.Int64("get", 0, "fetch one screenshot by id")
	deleteID := flag.Int64("delete", 0, "delete one screenshot by id")
	cleanupDays := flag.Int("cleanup", -1, "delete screenshots older than N days (0 = everything)")

	region := flag.String("region", "", "region label (filter, or label for -add)")
	dateFrom := flag.String("from", "", "search filter: results at/after this date (2006-01-02 or RFC3339)")
	dateTo := flag.String("to", "", "search filter: results at/before this date")
	limit := flag.Int("limit", 10, "max results")
	offset := flag.Int("offset", 0, "search pagination offset")
	jsonOut := flag.Bool("json", false, "force JSON output")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(*configPath, *dbPath, *storageDir)
	if err != nil {
		logger.Error("shotkeeper: config", "error", err)
		os.Exit(1)
	}

	opts := runOptions{
		add: addOptions{
			path:        *addPath,
			description: *description,
			ocrText:     *ocrText,
			url:         *captureURL,
			noHash:      *noFingerprint,
		},
		searchQuery: *searchQuery,
		similarPath: *similarPath,
		textWeight:  *textWeight,
		imageWeight: *imageWeight,
		threshold:   *threshold,
		recent:      *showRecent,
		stats:       *showStats,
		duplicates:  *showDuplicates,
		getID:       *getID,
		deleteID:    *deleteID,
		cleanupDays: *cleanupDays,
		region:      *region,
		dateFrom:    *dateFrom,
		dateTo:      *dateTo,
		limit:       *limit,
		offset:      *offset,
		jsonOut:     *jsonOut,
	}
	if err := run(ctx, logger, cfg, opts); err != nil {
		logger.Error("shotkeeper: fatal", "error", err)
		os.Exit(1)
	}
}

type addOptions struct {
	path, description, ocrText, url string
	noHash                          bool
}

type runOptions struct {
	add                      addOptions
	searchQuery, similarPath string
	textWeight, imageWeight  float64
	threshold                float64
	recent, stats            bool
	duplicates               bool
	getID, deleteID          int64
	cleanupDays              int
	region                   string
	dateFrom, dateTo         string
	limit, offset            int
	jsonOut                  bool
}

func run(ctx context.Context, logger *slog.Logger, cfg *history.Config, opts runOptions) error {
	h, err := history.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer h.Close()

	switch {
	case opts.add.path != "":
		id, err := h.Add(ctx, history.AddOptions{
			FilePath:        opts.add.path,
			Description:     opts.add.description,
			ExtractedText:   opts.add.ocrText,
			URL:             opts.add.url,
			Region:          opts.region,
			SkipFingerprint: opts.add.noHash,
		})
		if err != nil {
			return err
		}
		return emitJSON(map[string]any{"id": id})

	case opts.searchQuery != "" && opts.similarPath != "":
		results, err := h.CombinedSearch(ctx, history.CombinedOptions{
			TextQuery:   opts.searchQuery,
			ImagePath:   opts.similarPath,
			TextWeight:  opts.textWeight,
			ImageWeight: opts.imageWeight,
			Threshold:   opts.threshold,
			Limit:       opts.limit,
			Region:      opts.region,
		})
		if err != nil {
			return err
		}
		return emitJSON(results)

	case opts.searchQuery != "":
		from, to, err := parseDateRange(opts.dateFrom, opts.dateTo)
		if err != nil {
			return err
		}
		results, err := h.Search(ctx, history.SearchOptions{
			Query:    opts.searchQuery,
			Limit:    opts.limit,
			Offset:   opts.offset,
			DateFrom: from,
			DateTo:   to,
			Region:   opts.region,
		})
		if err != nil {
			return err
		}
		return emitJSON(results)

	case opts.similarPath != "":
		results, err := h.FindSimilar(ctx, history.SimilarOptions{
			ImagePath: opts.similarPath,
			Threshold: opts.threshold,
			Limit:     opts.limit,
			Region:    opts.region,
		})
		if err != nil {
			return err
		}
		return emitJSON(results)

	case opts.duplicates:
		groups, err := h.DuplicateGroups(ctx, opts.threshold, opts.region)
		if err != nil {
			return err
		}
		return emitJSON(groups)

	case opts.getID != 0:
		sc, err := h.Get(ctx, opts.getID)
		if err != nil {
			return err
		}
		if sc == nil {
			return fmt.Errorf("screenshot %d not found", opts.getID)
		}
		return emitJSON(sc)

	case opts.deleteID != 0:
		deleted, err := h.Delete(ctx, opts.deleteID)
		if err != nil {
			return err
		}
		return emitJSON(map[string]any{"id": opts.deleteID, "deleted": deleted})

	case opts.cleanupDays >= 0:
		n, err := h.Cleanup(ctx, opts.cleanupDays)
		if err != nil {
			return err
		}
		return emitJSON(map[string]any{"removed": n})

	case opts.stats:
		stats, err := h.GetStats(ctx)
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return emitJSON(stats)
		}
		renderStats(stats)
		return nil

	case opts.recent:
		recents, err := h.Recent(ctx, opts.limit, opts.region)
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return emitJSON(recents)
		}
		renderRecent(recents)
		return nil
	}

	flag.Usage()
	return fmt.Errorf("no operation requested")
}

func resolveConfig(configPath, dbPath, storageDir string) (*history.Config, error) {
	cfg := &history.Config{}
	if configPath != "" {
		loaded, err := history.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if storageDir != "" {
		cfg.StorageDir = storageDir
	}
	return cfg, nil
}

func parseDateRange(from, to string) (time.Time, time.Time, error) {
	f, err := parseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad -from date: %w", err)
	}
	t, err := parseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad -to date: %w", err)
	}
	return f, t, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderRecent(recents []*history.Screenshot) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Filename", "Region", "URL", "Captured", "Size", "Description"})
	for _, sc := range recents {
		t.AppendRow(table.Row{
			sc.ID, sc.Filename, sc.Region, sc.URL,
			sc.Time().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1f KB", float64(sc.SizeBytes)/1024),
			truncate(sc.Description(), 60),
		})
	}
	t.Render()
}

func renderStats(stats *history.Stats) {
	fmt.Printf("screenshots: %d (%.2f MB)\n", stats.TotalScreenshots, stats.TotalSizeMB)

	if len(stats.ByRegion) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Region", "Count"})
		for region, n := range stats.ByRegion {
			if region == "" {
				region = "(full screen)"
			}
			t.AppendRow(table.Row{region, n})
		}
		t.Render()
	}

	if len(stats.RecentSearches) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Query", "Results", "When"})
		for _, e := range stats.RecentSearches {
			sec := int64(e.SearchedAt)
			t.AppendRow(table.Row{
				truncate(e.Query, 40),
				strconv.Itoa(e.ResultCount),
				time.Unix(sec, 0).Format("2006-01-02 15:04:05"),
			})
		}
		t.Render()
	}
}

// truncate shortens s to at most n characters for table cells, counting
// runes so multibyte text is never cut mid-character.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
