// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"math"
	"sort"
	"sync"
)

// InMemoryStore is a VectorStore backed by a map with brute-force cosine
// search. Intended for tests and single-node development.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewInMemoryStore creates an empty in-process vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]map[string]Point)}
}

// EnsureCollection implements VectorStore.
func (s *InMemoryStore) EnsureCollection(_ context.Context, name string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = make(map[string]Point)
	}
	return nil
}

// Upsert implements VectorStore.
func (s *InMemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.collections[collection]
	if !ok {
		bucket = make(map[string]Point)
		s.collections[collection] = bucket
	}
	for _, point := range points {
		bucket[point.ID] = point
	}
	return nil
}

// Search implements VectorStore with exact cosine similarity.
func (s *InMemoryStore) Search(_ context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, point := range s.collections[collection] {
		score := cosine(vector, point.Vector)
		if score < scoreThreshold {
			continue
		}
		results = append(results, SearchResult{
			ID:      point.ID,
			Score:   score,
			Payload: point.Payload,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
