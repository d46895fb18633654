// CLAUDE:SUMMARY Ingestion adapter — hashes, dedups, copies into storage, fingerprints, commits record + index atomically.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/shotkeeper/history/internal/store"
	"github.com/hazyhaar/shotkeeper/idgen"
	"github.com/hazyhaar/shotkeeper/imghash"
)

// AddOptions is the ingestion boundary: a captured file plus whatever the
// capture/description producers know about it.
type AddOptions struct {
	FilePath        string         // source image (copied, never moved)
	Description     string         // AI-generated description
	ExtractedText   string         // OCR text
	URL             string         // set for web captures
	Region          string         // named screen region, "" for full screen
	Metadata        map[string]any // free-form source info
	SkipFingerprint bool           // override: skip perceptual hashing for this file
}

// Add ingests a captured image into the history.
//
// Byte-identical content (same SHA-256) is an idempotent no-op returning
// the existing record's ID. Otherwise the file is copied into the storage
// directory under a timestamp-prefixed collision-free name, measured, and
// best-effort fingerprinted, and the record plus its search-index shadow
// are committed as one transaction. The caller keeps ownership of the
// source path and may delete it afterwards.
func (h *History) Add(ctx context.Context, opts AddOptions) (int64, error) {
	fileHash, err := hashFile(opts.FilePath)
	if err != nil {
		return 0, fmt.Errorf("history: hash source file: %w", err)
	}

	// Dedup before copying so re-ingestion never touches the storage dir.
	if existing, err := h.store.GetByFileHash(ctx, fileHash); err != nil {
		return 0, err
	} else if existing != nil {
		h.logger.Info("history: screenshot already in history",
			"path", opts.FilePath, "id", existing.ID)
		return existing.ID, nil
	}

	now := time.Now()
	width, height, err := imageDimensions(opts.FilePath)
	if err != nil {
		return 0, fmt.Errorf("history: read image: %w", err)
	}
	info, err := os.Stat(opts.FilePath)
	if err != nil {
		return 0, fmt.Errorf("history: stat source file: %w", err)
	}

	var fingerprint string
	if !opts.SkipFingerprint && !h.config.SkipFingerprints {
		fingerprint, err = imghash.ComputeFile(opts.FilePath)
		if err != nil {
			// No fingerprint is not fatal: the record is simply excluded
			// from similarity search.
			h.logger.Warn("history: fingerprint failed", "path", opts.FilePath, "error", err)
			fingerprint = ""
		}
	}

	storageName, storagePath, err := h.copyToStorage(opts.FilePath, now)
	if err != nil {
		return 0, err
	}

	meta := map[string]any{}
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	meta["description"] = opts.Description
	meta["extracted_text"] = opts.ExtractedText
	meta["original_filename"] = filepath.Base(opts.FilePath)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		os.Remove(storagePath)
		return 0, fmt.Errorf("history: encode metadata: %w", err)
	}

	sc := &store.Screenshot{
		Filename:       storageName,
		OriginalPath:   opts.FilePath,
		StoragePath:    storagePath,
		FileHash:       fileHash,
		URL:            opts.URL,
		Region:         opts.Region,
		Timestamp:      epochSeconds(now),
		Width:          width,
		Height:         height,
		SizeBytes:      info.Size(),
		PerceptualHash: fingerprint,
		Metadata:       string(metaJSON),
	}
	id, existed, err := h.store.Insert(ctx, sc, store.IndexEntry{
		Description:   opts.Description,
		ExtractedText: opts.ExtractedText,
	})
	if err != nil {
		// Failed transaction must not leave an orphaned copy behind.
		os.Remove(storagePath)
		return 0, fmt.Errorf("history: insert: %w", err)
	}
	if existed {
		// Lost a race with a concurrent ingest of the same content.
		os.Remove(storagePath)
		h.logger.Info("history: screenshot already in history", "path", opts.FilePath, "id", id)
		return id, nil
	}

	h.logger.Info("history: added screenshot", "filename", storageName, "id", id)
	return id, nil
}

// copyToStorage copies src into the storage directory under a
// timestamp-prefixed name. On a name collision (same second, same base
// name) a counter is appended until the create succeeds.
func (h *History) copyToStorage(src string, now time.Time) (name, path string, err error) {
	base := filepath.Base(src)
	prefix := idgen.TimestampPrefix(now)

	for i := 0; ; i++ {
		name = prefix + "_" + base
		if i > 0 {
			name = fmt.Sprintf("%s_%d_%s", prefix, i+1, base)
		}
		path = filepath.Join(h.config.StorageDir, name)

		dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("history: create storage file: %w", err)
		}

		if err := copyInto(dst, src); err != nil {
			dst.Close()
			os.Remove(path)
			return "", "", fmt.Errorf("history: copy to storage: %w", err)
		}
		if err := dst.Close(); err != nil {
			os.Remove(path)
			return "", "", fmt.Errorf("history: close storage file: %w", err)
		}
		return name, path, nil
	}
}

func copyInto(dst io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// imageDimensions reads just the image header. Decoder registration comes
// with the imghash import.
func imageDimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
