// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package tenant assembles the per-tenant view of the engine: a cloned
// tool registry filtered by stored permissions, capability-provider tools
// from the shared pool, skill overlays layered over the global catalog,
// and a tenant-scoped memory retriever, all wired into one executor.
package tenant

import (
	"context"
	"log/slog"

	"github.com/jllopis/praxis/pkg/core"
	"github.com/jllopis/praxis/pkg/executor"
	"github.com/jllopis/praxis/pkg/llm"
	"github.com/jllopis/praxis/pkg/mcp"
	"github.com/jllopis/praxis/pkg/mcp/pool"
	"github.com/jllopis/praxis/pkg/memory"
	"github.com/jllopis/praxis/pkg/planner"
	"github.com/jllopis/praxis/pkg/skills"
	"github.com/jllopis/praxis/pkg/supervisor"
	"github.com/jllopis/praxis/pkg/tools"
)

// PermissionSource loads tenant tool-permission rows.
type PermissionSource interface {
	ToolPermissions(ctx context.Context, tenant string) (map[string]bool, error)
}

// OverlaySource loads tenant skill overlays.
type OverlaySource interface {
	SkillOverlays(ctx context.Context, tenant string) ([]skills.Spec, error)
}

// Builder composes tenant services from shared components.
type Builder struct {
	registry      *tools.Registry
	skills        skills.Lookup
	provider      llm.Provider
	model         string
	pool          *pool.Pool
	permissions   PermissionSource
	overlays      OverlaySource
	conversations executor.ConversationStore
	vector        memory.VectorStore
	embedder      memory.Embedder
	emitter       core.EventEmitter
	planner       executor.Planner
	maxReplans    int
}

// Option configures a Builder.
type Option func(*Builder)

// WithPool attaches the shared capability-provider pool.
func WithPool(p *pool.Pool) Option {
	return func(b *Builder) { b.pool = p }
}

// WithPermissions attaches the tool-permission source.
func WithPermissions(src PermissionSource) Option {
	return func(b *Builder) { b.permissions = src }
}

// WithSkillOverlays attaches the tenant skill overlay source.
func WithSkillOverlays(src OverlaySource) Option {
	return func(b *Builder) { b.overlays = src }
}

// WithConversations attaches the conversation store.
func WithConversations(store executor.ConversationStore) Option {
	return func(b *Builder) { b.conversations = store }
}

// WithMemory attaches the vector store and embedder backing tenant
// retrieval.
func WithMemory(vector memory.VectorStore, embedder memory.Embedder) Option {
	return func(b *Builder) {
		b.vector = vector
		b.embedder = embedder
	}
}

// WithEmitter attaches the semantic event sink.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(b *Builder) { b.emitter = emitter }
}

// WithPlanner overrides the model-backed plan generator, e.g. with a
// fixed plan loaded from a file.
func WithPlanner(p executor.Planner) Option {
	return func(b *Builder) { b.planner = p }
}

// WithMaxReplans bounds how many fresh plans a run may request.
func WithMaxReplans(n int) Option {
	return func(b *Builder) { b.maxReplans = n }
}

// NewBuilder creates a Builder over the shared tool registry and global
// skill catalog.
func NewBuilder(registry *tools.Registry, skillCatalog skills.Lookup, provider llm.Provider, model string, opts ...Option) *Builder {
	b := &Builder{
		registry: registry,
		skills:   skillCatalog,
		provider: provider,
		model:    model,
		emitter:  core.NoopEventEmitter{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Service is one tenant's assembled engine view.
type Service struct {
	Tenant   string
	Registry *tools.Registry
	Skills   skills.Lookup
	Memory   core.Memory

	builder *Builder
}

// Build assembles the tenant view. Provider tools come from whatever the
// pool has connected right now; a tenant mid-connect simply runs without
// those tools until the next request.
func (b *Builder) Build(ctx context.Context, tenantID string) (*Service, error) {
	log := slog.Default()
	registry := b.registry.Clone()

	if b.permissions != nil {
		perms, err := b.permissions.ToolPermissions(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		registry.FilterByPermissions(perms)
	}

	if b.pool != nil {
		for _, client := range b.pool.Clients(ctx, tenantID) {
			discovered, err := mcp.DiscoverTools(ctx, client)
			if err != nil {
				log.Warn("tenant.provider.discovery_failed",
					slog.String("tenant", tenantID),
					slog.String("error", err.Error()),
				)
				continue
			}
			for _, tool := range discovered {
				if err := registry.Register(tool); err != nil {
					log.Warn("tenant.provider.tool_conflict",
						slog.String("tenant", tenantID),
						slog.String("tool", tool.Name()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}

	skillCatalog := b.skills
	if b.overlays != nil {
		specs, err := b.overlays.SkillOverlays(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if len(specs) > 0 {
			skillCatalog = skills.NewComposite(b.skills, specs)
		}
	}

	var mem core.Memory
	if b.vector != nil && b.embedder != nil {
		mem = memory.NewRetriever(b.vector, b.embedder, tenantID)
	}

	log.Info("tenant.service.built",
		slog.String("tenant", tenantID),
		slog.Int("tools", len(registry.Names())),
	)
	return &Service{
		Tenant:   tenantID,
		Registry: registry,
		Skills:   skillCatalog,
		Memory:   mem,
		builder:  b,
	}, nil
}

// Run executes one request under this tenant's view. A request allowlist
// narrows the registry further for just this run.
func (s *Service) Run(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error) {
	req.Tenant = s.Tenant

	registry := s.Registry
	if len(req.ToolAllowlist) > 0 {
		registry = narrow(s.Registry, req.ToolAllowlist)
	}
	return s.executor(registry).Run(ctx, req)
}

// executor wires the per-run executor over the given registry.
func (s *Service) executor(registry *tools.Registry) *executor.Executor {
	b := s.builder
	var gen executor.Planner = planner.New(b.provider, b.model, planner.WithEmitter(b.emitter))
	if b.planner != nil {
		gen = b.planner
	}
	sup := supervisor.New(b.provider, b.model)
	runner := skills.NewRunner(b.provider, registry, s.Skills, b.model)

	opts := []executor.Option{
		executor.WithSkills(runner, s.Skills),
		executor.WithEmitter(b.emitter),
	}
	if s.Memory != nil {
		opts = append(opts, executor.WithMemory(s.Memory))
	}
	if b.conversations != nil {
		opts = append(opts, executor.WithConversations(b.conversations))
	}
	if b.maxReplans > 0 {
		opts = append(opts, executor.WithMaxReplans(b.maxReplans))
	}
	return executor.New(gen, sup, b.provider, b.model, registry, opts...)
}

// narrow keeps only the allowlisted tools that are present.
func narrow(registry *tools.Registry, allowlist []string) *tools.Registry {
	allowed := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		allowed[name] = true
	}
	out := registry.Clone()
	for _, name := range out.Names() {
		if !allowed[name] {
			out.Remove(name)
		}
	}
	return out
}
