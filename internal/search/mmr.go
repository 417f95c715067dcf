package search

import "github.com/agentfusion/contextd/internal/embed"

// mmrRerank orders the candidate pool by Maximal Marginal Relevance:
// each step selects the chunk maximizing
//
//	λ·relevance − (1−λ)·max(similarity to already selected)
//
// where relevance is the normalized RRF score and similarity is cosine
// over chunk embeddings. Selection stops at k picks or when the best
// remaining relevance drops below minScore. Chunks without an embedding
// count as maximally dissimilar.
func mmrRerank(pool []fused, embeddings map[int64][]float32, lambda float64, k int, minScore float64) []fused {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	remaining := append([]fused(nil), pool...)
	selected := make([]fused, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, c := range remaining {
			if c.Relevance < minScore {
				continue
			}
			score := lambda*c.Relevance - (1-lambda)*maxSimilarity(c.ChunkID, selected, embeddings)
			// Ties break on lower chunk ID via strict improvement over
			// the relevance-ordered pool.
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func maxSimilarity(id int64, selected []fused, embeddings map[int64][]float32) float64 {
	vec, ok := embeddings[id]
	if !ok || len(selected) == 0 {
		return 0
	}
	max := 0.0
	for _, s := range selected {
		other, ok := embeddings[s.ChunkID]
		if !ok {
			continue
		}
		if sim := float64(embed.CosineSimilarity(vec, other)); sim > max {
			max = sim
		}
	}
	return max
}
