// Package imghash computes perceptual fingerprints for screenshot images
// and scores fingerprint similarity.
//
// The fingerprint is a 64-bit average hash (8×8 mean-intensity grid)
// rendered as a 16-character lowercase hex string. It is a function of
// pixel content only, so a recompressed or lightly recolored copy of an
// image hashes close to the original while byte-level metadata changes
// don't move it at all. Distance is Hamming distance over the 64 bits;
// similarity maps that to [0,1].
package imghash

import (
	"fmt"
	"image"
	"math/bits"
	"os"
	"sort"
	"strconv"

	"github.com/corona10/goimagehash"

	// Decoders for everything a capture backend might hand us.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Bits is the fingerprint width; Hamming distance is bounded by it.
const Bits = 64

// Compute returns the fingerprint of a decoded image.
func Compute(img image.Image) (string, error) {
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", fmt.Errorf("imghash: average hash: %w", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// ComputeFile decodes the image at path and returns its fingerprint.
// An unreadable or undecodable file is an error; callers on the ingestion
// path treat that as "no fingerprint available" rather than fatal.
func ComputeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("imghash: open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("imghash: decode %s: %w", path, err)
	}
	return Compute(img)
}

// Distance returns the Hamming distance between two fingerprints,
// in [0, Bits]. Symmetric; zero iff the fingerprints are equal.
func Distance(a, b string) (int, error) {
	x, err := parse(a)
	if err != nil {
		return 0, err
	}
	y, err := parse(b)
	if err != nil {
		return 0, err
	}
	return bits.OnesCount64(x ^ y), nil
}

// Similarity returns 1 - distance/Bits, in [0,1]. Identical fingerprints
// score exactly 1.0. Unparseable fingerprints score as maximally distant.
func Similarity(a, b string) float64 {
	d, err := Distance(a, b)
	if err != nil {
		d = Bits
	}
	return 1.0 - float64(d)/float64(Bits)
}

// Candidate is a stored fingerprint to score against a target.
// Callers pass candidates in a stable order (the store returns them
// ordered by record ID) so grouping and tie-breaks are deterministic.
type Candidate struct {
	ID   int64
	Hash string
}

// Match is a candidate that met the similarity threshold.
type Match struct {
	ID    int64
	Score float64
}

// FindSimilar scores target against every candidate and returns those
// with Score >= threshold, sorted by descending score. Candidates whose
// fingerprint equals the target's score 1.0 and are included.
func FindSimilar(target string, candidates []Candidate, threshold float64) []Match {
	var matches []Match
	for _, c := range candidates {
		score := Similarity(target, c.Hash)
		if score >= threshold {
			matches = append(matches, Match{ID: c.ID, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// GroupNearDuplicates clusters candidates whose similarity to a group's
// first member meets the threshold. Greedy single pass in candidate
// order: each unassigned candidate either joins the group seeded by an
// earlier candidate or seeds its own. Only groups with at least two
// members are returned.
//
// This is intentionally not transitive-closure clustering: A~B and B~C
// does not pull C into A's group unless C is also within threshold of A.
// Callers depend on the looser grouping.
func GroupNearDuplicates(candidates []Candidate, threshold float64) [][]int64 {
	assigned := make(map[int64]bool, len(candidates))
	var groups [][]int64

	for i, seed := range candidates {
		if assigned[seed.ID] {
			continue
		}
		group := []int64{seed.ID}
		assigned[seed.ID] = true

		for _, other := range candidates[i+1:] {
			if assigned[other.ID] {
				continue
			}
			if Similarity(seed.Hash, other.Hash) >= threshold {
				group = append(group, other.ID)
				assigned[other.ID] = true
			}
		}

		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

func parse(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("imghash: bad fingerprint %q: %w", s, err)
	}
	return v, nil
}
