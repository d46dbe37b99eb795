// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the tenant-scoped retrieval layer: vector search
// over embedded documents and ordered conversation history.
package memory

import "context"

// VectorStore is a vector database holding one collection per tenant.
type VectorStore interface {
	// Upsert adds or updates points in a collection.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the nearest points to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point is one stored document fragment with its embedding.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// SearchResult is one ranked hit from a vector search.
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
