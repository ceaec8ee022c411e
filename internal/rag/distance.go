package rag

import (
	"cmp"
	"math"
	"slices"
)

// CosineDistance returns 1 - cos(a, b). Vectors of different length or with
// zero magnitude are maximally distant (2).
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// SortHits orders hits by ascending distance. Ties fall back to chunk
// sequence and then ID so results are stable across calls.
func SortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Chunk.Sequence, b.Chunk.Sequence); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})
}

// Limit truncates hits to at most k. k <= 0 yields an empty slice.
func Limit(hits []Hit, k int) []Hit {
	if k <= 0 {
		return nil
	}
	if len(hits) > k {
		return hits[:k]
	}
	return hits
}
