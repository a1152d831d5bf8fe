package store

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine similarity of a and b.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankMatches scores every embedded candidate against query, keeps those
// strictly above threshold and returns the best limit, most similar first.
// Ties keep insertion order.
func RankMatches(query []float32, candidates []Message, threshold float64, limit int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(query, c.Embedding)
		if sim <= threshold {
			continue
		}
		matches = append(matches, Match{
			ID:         c.ID,
			Content:    c.Content,
			IsUser:     c.IsUser,
			Similarity: sim,
			CreatedAt:  c.CreatedAt,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
