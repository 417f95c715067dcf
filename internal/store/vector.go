package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/agentfusion/contextd/internal/errors"
)

// VectorResult is one nearest neighbor.
type VectorResult struct {
	ChunkID int64
	Score   float32 // cosine similarity mapped to [0,1]
}

// VectorIndexConfig tunes the HNSW graph.
type VectorIndexConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// VectorIndex is an in-memory HNSW approximate nearest neighbor index
// keyed by chunk ID. It is rebuilt from persisted embeddings on startup;
// nothing here touches disk.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[int64]
	config VectorIndexConfig
	// live tracks members because deletion is lazy: removed IDs stay in
	// the graph but are filtered out of results.
	live   map[int64]struct{}
	closed bool
}

// NewVectorIndex creates an empty index.
func NewVectorIndex(cfg VectorIndexConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.ValidationError("vector index dimensions must be positive", nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:  graph,
		config: cfg,
		live:   make(map[int64]struct{}),
	}, nil
}

// Add inserts or updates vectors. Updates are lazy: the old node stays
// in the graph but the new node shadows it in results.
func (v *VectorIndex) Add(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return errors.ValidationError(
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errors.StoreError("vector index is closed", nil)
	}

	for i, id := range ids {
		if len(vectors[i]) != v.config.Dimensions {
			return errors.New(errors.ErrCodeEmbedDimension,
				fmt.Sprintf("vector for chunk %d has dimension %d, index expects %d",
					id, len(vectors[i]), v.config.Dimensions), nil)
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)
		v.graph.Add(hnsw.MakeNode(id, vec))
		v.live[id] = struct{}{}
	}
	return nil
}

// Search returns up to k nearest live chunks to the query vector, best
// first.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, errors.StoreError("vector index is closed", nil)
	}
	if len(query) != v.config.Dimensions {
		return nil, errors.New(errors.ErrCodeEmbedDimension,
			fmt.Sprintf("query has dimension %d, index expects %d", len(query), v.config.Dimensions), nil)
	}
	if len(v.live) == 0 || k <= 0 {
		return []VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for lazily deleted nodes still in the graph.
	nodes := v.graph.Search(normalized, k*2)
	results := make([]VectorResult, 0, k)
	for _, node := range nodes {
		if _, ok := v.live[node.Key]; !ok {
			continue
		}
		distance := v.graph.Distance(normalized, node.Value)
		// Cosine distance ranges 0..2; map to similarity in [0,1].
		results = append(results, VectorResult{
			ChunkID: node.Key,
			Score:   1.0 - distance/2.0,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete removes chunks from results. Lazy: graph nodes stay behind.
func (v *VectorIndex) Delete(ids []int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.live, id)
	}
}

// Reset drops every vector, including lazily deleted graph nodes. Used
// by full rebuilds.
func (v *VectorIndex) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = v.config.M
	graph.EfSearch = v.config.EfSearch
	graph.Ml = 0.25
	v.graph = graph
	v.live = make(map[int64]struct{})
}

// Contains reports whether a chunk is live in the index.
func (v *VectorIndex) Contains(id int64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.live[id]
	return ok
}

// Count returns the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.live)
}

// Close marks the index unusable.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.live = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
