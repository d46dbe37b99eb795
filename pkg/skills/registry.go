// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"sort"
	"strings"
)

// Lookup is the read interface shared by the global and composite skill
// registries.
type Lookup interface {
	Get(name string) (Spec, bool)
	Index() []Spec
}

// Registry is the shared global skill catalog.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds a registry from specs. Later entries win on collision.
func NewRegistry(specs ...Spec) *Registry {
	out := make(map[string]Spec, len(specs))
	for _, spec := range specs {
		out[spec.Name] = spec
	}
	return &Registry{specs: out}
}

// Get returns the named spec.
func (r *Registry) Get(name string) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Index returns all specs sorted by name.
func (r *Registry) Index() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CompositeRegistry layers a tenant overlay over the shared global catalog.
// The overlay wins on name collision. Neither source is ever mutated.
type CompositeRegistry struct {
	global  Lookup
	overlay map[string]Spec
}

// NewComposite builds a composite view of global plus a tenant overlay.
func NewComposite(global Lookup, overlay []Spec) *CompositeRegistry {
	over := make(map[string]Spec, len(overlay))
	for _, spec := range overlay {
		over[spec.Name] = spec
	}
	return &CompositeRegistry{global: global, overlay: over}
}

// Get returns the tenant version when present, else the global version.
func (c *CompositeRegistry) Get(name string) (Spec, bool) {
	if spec, ok := c.overlay[name]; ok {
		return spec, true
	}
	if c.global == nil {
		return Spec{}, false
	}
	return c.global.Get(name)
}

// Index returns the merged, overlay-overridden listing sorted by name.
func (c *CompositeRegistry) Index() []Spec {
	merged := make(map[string]Spec)
	if c.global != nil {
		for _, spec := range c.global.Index() {
			merged[spec.Name] = spec
		}
	}
	for name, spec := range c.overlay {
		merged[name] = spec
	}
	out := make([]Spec, 0, len(merged))
	for _, spec := range merged {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Catalog renders an index as one line per skill for prompt injection.
func Catalog(lookup Lookup) string {
	var b strings.Builder
	for _, spec := range lookup.Index() {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
	}
	return b.String()
}

var (
	_ Lookup = (*Registry)(nil)
	_ Lookup = (*CompositeRegistry)(nil)
)
