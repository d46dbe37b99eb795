// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package core

import "context"

// Tool is a callable capability. Implementations are typically local
// builtins or adapters over remote capability providers.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON-schema parameter description shown to the model.
	Schema() map[string]any
	// Call runs the tool. The returned string is the tool output; errors are
	// converted into step results by the executor, never propagated raw.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Memory is the read side of the tenant memory store used by memory steps.
type Memory interface {
	// Search returns ranked snippets for a query within the tenant scope.
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Snippet is one retrieved memory fragment with source attribution.
type Snippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float32 `json:"score,omitempty"`
}
