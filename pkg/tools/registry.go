// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools provides the tool registry, per-tenant permission
// filtering, and the builtin local tools.
package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jllopis/praxis/pkg/core"
	"github.com/jllopis/praxis/pkg/llm"
)

// Registry holds callable tools by name. The shared template registry is
// cloned per tenant; clones are independently mutable.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]core.Tool
	denied map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]core.Tool)}
}

// Register adds a tool. Registering an existing name replaces it.
func (r *Registry) Register(tool core.Tool) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("tool must have a name")
	}
	r.mu.Lock()
	r.tools[tool.Name()] = tool
	r.mu.Unlock()
	return nil
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the tools sorted by name.
func (r *Registry) List() []core.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Clone returns an independent copy safe for per-tenant mutation. Tool
// values themselves are shared; only the map is copied.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := make(map[string]core.Tool, len(r.tools))
	for name, tool := range r.tools {
		clone[name] = tool
	}
	var denied map[string]bool
	if len(r.denied) > 0 {
		denied = make(map[string]bool, len(r.denied))
		for name := range r.denied {
			denied[name] = true
		}
	}
	return &Registry{tools: clone, denied: denied}
}

// Remove deletes a tool by name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.tools, name)
	r.mu.Unlock()
}

// FilterByPermissions applies tenant permission rows to the registry.
// Semantics are deny-by-explicit-presence: an empty map leaves the registry
// untouched (allow all); a name mapped to false is removed; a name mapped
// to true, or simply absent from the map, is kept.
func (r *Registry) FilterByPermissions(perms map[string]bool) {
	if len(perms) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, allowed := range perms {
		if !allowed {
			delete(r.tools, name)
			if r.denied == nil {
				r.denied = make(map[string]bool)
			}
			r.denied[name] = true
		}
	}
}

// Denied reports whether the name was removed by a permission rule, as
// opposed to never having been registered.
func (r *Registry) Denied(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.denied[name]
}

// Definitions returns LLM tool definitions for every registered tool.
func (r *Registry) Definitions() []llm.Tool {
	listed := r.List()
	defs := make([]llm.Tool, 0, len(listed))
	for _, tool := range listed {
		defs = append(defs, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Schema(),
			},
		})
	}
	return defs
}

// Catalog renders a one-line-per-tool listing for prompt injection.
func (r *Registry) Catalog() string {
	listed := r.List()
	out := ""
	for _, tool := range listed {
		out += fmt.Sprintf("- %s: %s\n", tool.Name(), tool.Description())
	}
	return out
}
