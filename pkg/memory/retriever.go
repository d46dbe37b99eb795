// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/praxis/pkg/core"
	praxiserrors "github.com/jllopis/praxis/pkg/errors"
)

const (
	// DefaultScoreThreshold filters out weak matches.
	DefaultScoreThreshold = 0.35
	// payloadTextKey and payloadSourceKey are the payload fields the
	// retriever reads back from stored points.
	payloadTextKey   = "text"
	payloadSourceKey = "source"
)

// Retriever is a tenant-scoped core.Memory over an embedder and a vector
// store. Each tenant reads its own collection; cross-tenant reads are
// impossible by construction.
type Retriever struct {
	store     VectorStore
	embedder  Embedder
	tenant    string
	prefix    string
	threshold float32
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithScoreThreshold overrides the minimum similarity score.
func WithScoreThreshold(threshold float32) RetrieverOption {
	return func(r *Retriever) { r.threshold = threshold }
}

// WithCollectionPrefix overrides the collection name prefix.
func WithCollectionPrefix(prefix string) RetrieverOption {
	return func(r *Retriever) { r.prefix = prefix }
}

// NewRetriever builds the retrieval accessor for one tenant.
func NewRetriever(store VectorStore, embedder Embedder, tenant string, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:     store,
		embedder:  embedder,
		tenant:    tenant,
		prefix:    "praxis",
		threshold: DefaultScoreThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Collection returns the tenant's collection name.
func (r *Retriever) Collection() string {
	return r.prefix + "_" + sanitizeCollection(r.tenant)
}

// Search implements core.Memory.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]core.Snippet, error) {
	if limit <= 0 {
		limit = 5
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeMemoryError, "embedding query failed", err).
			WithContext("tenant", r.tenant)
	}

	results, err := r.store.Search(ctx, r.Collection(), vector, limit, r.threshold)
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeMemoryError, "vector search failed", err).
			WithContext("tenant", r.tenant)
	}

	snippets := make([]core.Snippet, 0, len(results))
	for _, result := range results {
		text, _ := result.Payload[payloadTextKey].(string)
		if text == "" {
			continue
		}
		source, _ := result.Payload[payloadSourceKey].(string)
		snippets = append(snippets, core.Snippet{
			Text:   text,
			Source: source,
			Score:  result.Score,
		})
	}

	slog.Default().Debug("memory.search",
		slog.String("tenant", r.tenant),
		slog.Int("limit", limit),
		slog.Int("hits", len(snippets)),
	)
	return snippets, nil
}

// Index embeds and stores one document fragment for the tenant.
func (r *Retriever) Index(ctx context.Context, id, text, source string) error {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return praxiserrors.New(praxiserrors.CodeMemoryError, "embedding document failed", err).
			WithContext("tenant", r.tenant)
	}
	point := Point{
		ID:     id,
		Vector: vector,
		Payload: map[string]any{
			payloadTextKey:   text,
			payloadSourceKey: source,
		},
	}
	if err := r.store.Upsert(ctx, r.Collection(), []Point{point}); err != nil {
		return praxiserrors.New(praxiserrors.CodeMemoryError, "storing document failed", err).
			WithContext("tenant", r.tenant)
	}
	return nil
}

// sanitizeCollection maps a tenant id to a safe collection name.
func sanitizeCollection(tenant string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tenant) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

var _ core.Memory = (*Retriever)(nil)

// Ensure is a startup helper creating the tenant collection with the
// embedder's vector size, probed with a short sample embedding.
func Ensure(ctx context.Context, store VectorStore, embedder Embedder, retriever *Retriever) error {
	sample, err := embedder.Embed(ctx, "praxis")
	if err != nil {
		return fmt.Errorf("probe embedding size: %w", err)
	}
	return store.EnsureCollection(ctx, retriever.Collection(), uint64(len(sample)))
}
