// CLAUDE:SUMMARY Search orchestrator — image similarity search, weighted text+image fusion, duplicate grouping.
package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/hazyhaar/shotkeeper/history/internal/store"
	"github.com/hazyhaar/shotkeeper/imghash"
)

// imageCandidateFloor is the low inclusion threshold used to collect
// image candidates for fusion; the caller's threshold applies to the
// final combined score.
const imageCandidateFloor = 0.1

// textCandidatePool caps how many ranked text hits feed the fusion.
const textCandidatePool = 1000

// SimilarOptions controls perceptual similarity search. Exactly one of
// ImagePath or ImageHash must be set.
type SimilarOptions struct {
	ImagePath string  // query image to fingerprint
	ImageHash string  // pre-computed fingerprint (alternative to ImagePath)
	Threshold float64 // similarity floor in [0,1] (default: 0.8)
	Limit     int     // max results (default: 10)
	Region    string  // optional region filter
}

// SimilarResult is a similarity hit, scored in [0,1].
type SimilarResult struct {
	store.Screenshot
	Similarity  float64 `json:"similarity"`
	Description string  `json:"description,omitempty"`
}

// FindSimilar scores a query image against every stored fingerprint and
// returns matches at or above the threshold, best first. A record whose
// fingerprint equals the query's scores exactly 1.0 and is included.
// An unhashable query image yields zero candidates rather than an error.
func (h *History) FindSimilar(ctx context.Context, opts SimilarOptions) ([]*SimilarResult, error) {
	if opts.ImagePath == "" && opts.ImageHash == "" {
		return nil, fmt.Errorf("%w: either image path or image hash must be provided", ErrInvalidQuery)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.8
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	target := opts.ImageHash
	if opts.ImagePath != "" {
		var err error
		target, err = imghash.ComputeFile(opts.ImagePath)
		if err != nil {
			h.logger.Warn("history: query image unhashable", "path", opts.ImagePath, "error", err)
			return nil, nil
		}
	}

	matches, err := h.matchFingerprints(ctx, target, opts.Threshold, opts.Region)
	if err != nil {
		return nil, err
	}
	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	results := make([]*SimilarResult, 0, len(matches))
	for _, m := range matches {
		sc, err := h.store.GetByID(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			continue
		}
		results = append(results, &SimilarResult{
			Screenshot:  *sc,
			Similarity:  m.Score,
			Description: sc.Description(),
		})
	}
	return results, nil
}

// CombinedOptions controls fused text+image search. At least one modality
// must be present, and each present modality needs a positive weight.
type CombinedOptions struct {
	TextQuery   string  // FTS5 query
	ImagePath   string  // query image
	TextWeight  float64 // relative weight of the text signal
	ImageWeight float64 // relative weight of the image signal
	Threshold   float64 // combined-score floor in [0,1]
	Limit       int     // max results (default: 10)
	Region      string  // optional region filter
}

// CombinedResult carries the fused score and both per-modality
// contributions; a record found by one modality only has the other score
// at exactly 0.
type CombinedResult struct {
	store.Screenshot
	CombinedScore float64 `json:"combined_score"`
	TextScore     float64 `json:"text_score"`
	ImageScore    float64 `json:"image_score"`
	Description   string  `json:"description,omitempty"`
}

// CombinedSearch fuses ranked text search and perceptual similarity into
// one list. Weights are normalized to sum to 1, so (2,2) and (5,5) rank
// identically. Text scores are normalized within the candidate batch so
// the best text hit contributes 1.0 before weighting; image scores are
// already in [0,1]. The fused list is filtered by Threshold, sorted
// descending, and truncated to Limit.
func (h *History) CombinedSearch(ctx context.Context, opts CombinedOptions) ([]*CombinedResult, error) {
	if opts.TextQuery == "" && opts.ImagePath == "" {
		return nil, fmt.Errorf("%w: at least one of text query or image path must be provided", ErrInvalidQuery)
	}
	if opts.TextQuery != "" && opts.TextWeight <= 0 {
		return nil, fmt.Errorf("%w: text weight must be positive when using text search", ErrInvalidQuery)
	}
	if opts.ImagePath != "" && opts.ImageWeight <= 0 {
		return nil, fmt.Errorf("%w: image weight must be positive when using image search", ErrInvalidQuery)
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	textWeight, imageWeight := opts.TextWeight, opts.ImageWeight
	if opts.TextQuery == "" {
		textWeight, imageWeight = 0, 1
	}
	if opts.ImagePath == "" {
		textWeight, imageWeight = 1, 0
	}
	total := textWeight + imageWeight
	textWeight /= total
	imageWeight /= total

	combined := map[int64]*CombinedResult{}

	if opts.TextQuery != "" {
		textResults, err := h.store.Search(ctx, store.SearchOptions{
			Query:  opts.TextQuery,
			Limit:  textCandidatePool,
			Region: opts.Region,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range textResults {
			score := normalizeRank(r.Rank, bestRank(textResults))
			combined[r.ID] = &CombinedResult{
				Screenshot:    r.Screenshot,
				TextScore:     score,
				CombinedScore: score * textWeight,
				Description:   r.Description,
			}
		}
	}

	if opts.ImagePath != "" {
		target, err := imghash.ComputeFile(opts.ImagePath)
		if err != nil {
			// Degrade to the text contribution only.
			h.logger.Warn("history: query image unhashable", "path", opts.ImagePath, "error", err)
		} else {
			matches, err := h.matchFingerprints(ctx, target, imageCandidateFloor, opts.Region)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				if cr, ok := combined[m.ID]; ok {
					cr.ImageScore = m.Score
					cr.CombinedScore += m.Score * imageWeight
					continue
				}
				sc, err := h.store.GetByID(ctx, m.ID)
				if err != nil {
					return nil, err
				}
				if sc == nil {
					continue
				}
				combined[m.ID] = &CombinedResult{
					Screenshot:    *sc,
					ImageScore:    m.Score,
					CombinedScore: m.Score * imageWeight,
					Description:   sc.Description(),
				}
			}
		}
	}

	results := make([]*CombinedResult, 0, len(combined))
	for _, cr := range combined {
		if cr.CombinedScore >= opts.Threshold {
			results = append(results, cr)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// DuplicateGroups clusters stored fingerprints into near-duplicate groups
// (greedy single-linkage, intentionally non-transitive — see imghash).
// Only groups with at least two members are returned.
func (h *History) DuplicateGroups(ctx context.Context, threshold float64, region string) ([][]int64, error) {
	if threshold <= 0 {
		threshold = 0.9
	}
	candidates, err := h.fingerprintCandidates(ctx, region)
	if err != nil {
		return nil, err
	}
	return imghash.GroupNearDuplicates(candidates, threshold), nil
}

func (h *History) matchFingerprints(ctx context.Context, target string, threshold float64, region string) ([]imghash.Match, error) {
	candidates, err := h.fingerprintCandidates(ctx, region)
	if err != nil {
		return nil, err
	}
	return imghash.FindSimilar(target, candidates, threshold), nil
}

func (h *History) fingerprintCandidates(ctx context.Context, region string) ([]imghash.Candidate, error) {
	fps, err := h.store.Fingerprints(ctx, region)
	if err != nil {
		return nil, err
	}
	candidates := make([]imghash.Candidate, len(fps))
	for i, fp := range fps {
		candidates[i] = imghash.Candidate{ID: fp.ID, Hash: fp.Hash}
	}
	return candidates, nil
}

// bestRank returns the batch's best (most negative) bm25 rank.
func bestRank(results []*store.SearchResult) float64 {
	best := 0.0
	for _, r := range results {
		if r.Rank < best {
			best = r.Rank
		}
	}
	return best
}

// normalizeRank maps a raw bm25 rank (lower is better, typically
// negative) onto [0,1] with the batch's best match at 1.0. When the whole
// batch ranks at zero the matches are indistinguishable and all score 1.0.
func normalizeRank(rank, best float64) float64 {
	if best == 0 {
		return 1.0
	}
	return rank / best
}
