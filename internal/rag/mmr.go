package rag

import (
	"math"

	"document-qa/internal/models"
)

// MaxMarginalRelevance picks up to k candidates, each maximizing
// lambda*sim(query, c) - (1-lambda)*max(sim(c, picked)). The first pick is the
// candidate most similar to the query. Similarity on the returned chunks is
// the cosine similarity to query.
func MaxMarginalRelevance(query []float32, candidates []models.ScoredChunk, k int, lambda float64) []models.ScoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = cosine(query, c.Embedding)
	}

	picked := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// redundancy[i] is the highest similarity of candidate i to any pick so far
	redundancy := make([]float64, len(candidates))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}

	for len(picked) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := relevance[i]
			if len(picked) > 0 {
				score = lambda*relevance[i] - (1-lambda)*redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			// every remaining score is NaN
			break
		}
		used[best] = true
		picked = append(picked, best)

		for i := range candidates {
			if used[i] {
				continue
			}
			if s := cosine(candidates[i].Embedding, candidates[best].Embedding); s > redundancy[i] {
				redundancy[i] = s
			}
		}
	}

	out := make([]models.ScoredChunk, len(picked))
	for n, i := range picked {
		out[n] = candidates[i]
		out[n].Similarity = float32(relevance[i])
	}
	return out
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
