package search

import "sort"

// rrfK is the RRF smoothing constant. k=60 is the standard choice,
// validated across retrieval benchmarks.
const rrfK = 60

// fused is one chunk's combined ranking state.
type fused struct {
	ChunkID int64
	// Score is Σ_p w_p / (rrfK + rank_p) over providers that ranked the
	// chunk; absent providers contribute nothing.
	Score float64
	// Relevance is Score normalized to [0,1] against the best candidate.
	Relevance float64
	// Contributions records each provider's term for observability.
	Contributions map[string]float64
}

// rankedList is one provider's output with its configured weight.
type rankedList struct {
	Provider   string
	Weight     float64
	Candidates []Candidate
}

// fuse merges provider rankings with weighted Reciprocal Rank Fusion.
// Ranks are 1-based. Ties break on lower chunk ID for determinism.
func fuse(lists []rankedList) []fused {
	scores := make(map[int64]*fused)
	for _, list := range lists {
		for rank, c := range list.Candidates {
			f, ok := scores[c.ChunkID]
			if !ok {
				f = &fused{ChunkID: c.ChunkID, Contributions: make(map[string]float64)}
				scores[c.ChunkID] = f
			}
			term := list.Weight / float64(rrfK+rank+1)
			f.Score += term
			f.Contributions[list.Provider] = term
		}
	}

	results := make([]fused, 0, len(scores))
	for _, f := range scores {
		results = append(results, *f)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > 0 && results[0].Score > 0 {
		max := results[0].Score
		for i := range results {
			results[i].Relevance = results[i].Score / max
		}
	}
	return results
}

func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
}
