// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package planner turns one user request into an ordered Plan via a single
// model call. Malformed model output never produces an error: it degrades
// to a structurally valid Plan with no steps, and the executor substitutes
// the default plan.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/praxis/pkg/core"
	praxiserrors "github.com/jllopis/praxis/pkg/errors"
	"github.com/jllopis/praxis/pkg/llm"
)

const (
	// maxPromptRunes caps the sanitized user prompt embedded in the
	// planning call.
	maxPromptRunes = 4000
)

// Catalog is the capability listing injected into the planning prompt.
type Catalog struct {
	Tools  string
	Skills string
}

// Generator builds Plans from requests.
type Generator struct {
	provider llm.Provider
	model    string
	emitter  core.EventEmitter
	tracer   trace.Tracer
}

// Option configures a Generator.
type Option func(*Generator)

// WithEmitter attaches a semantic event emitter.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(g *Generator) {
		if emitter != nil {
			g.emitter = emitter
		}
	}
}

// New creates a plan generator backed by the given model gateway.
func New(provider llm.Provider, model string, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		model:    model,
		emitter:  core.NoopEventEmitter{},
		tracer:   otel.Tracer("praxis/planner"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a Plan for the request. The only error it returns is a
// failed gateway call; malformed model output yields a valid Plan with
// empty steps and an explanatory description instead.
func (g *Generator) Generate(ctx context.Context, req core.AgentRequest, history []llm.Message, catalog Catalog) (*core.Plan, error) {
	ctx, span := g.tracer.Start(ctx, "Planner.Generate", trace.WithAttributes(
		attribute.String("tenant", req.Tenant),
	))
	defer span.End()
	log := slog.Default()

	messages := g.buildMessages(req, history, catalog)
	resp, err := g.provider.Chat(ctx, llm.ChatRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeModelGateway, "planning call failed", err)
	}

	plan := ParseResponse(resp.Content)
	span.SetAttributes(attribute.Int("plan.steps", len(plan.Steps)))

	runID, _ := core.RunID(ctx)
	log.Info("planner.plan.generated",
		slog.String("tenant", req.Tenant),
		slog.String("run_id", runID),
		slog.String("plan_id", plan.ID),
		slog.Int("steps", len(plan.Steps)),
		slog.String("description", plan.Description),
	)
	g.emitter.Emit(ctx, core.NewEvent(core.EventPlanGenerated, req.Tenant, runID, map[string]any{
		"plan_id":     plan.ID,
		"steps":       len(plan.Steps),
		"description": plan.Description,
	}))

	return plan, nil
}

// planDoc is the JSON schema expected from the model.
type planDoc struct {
	Description string `json:"description"`
	Steps       []struct {
		ID       string         `json:"id"`
		Label    string         `json:"label"`
		Executor string         `json:"executor"`
		Action   string         `json:"action"`
		Tool     string         `json:"tool"`
		Skill    string         `json:"skill"`
		Args     map[string]any `json:"args"`
	} `json:"steps"`
}

// ParseResponse parses a planner reply: direct JSON first, then the first
// balanced {...} fragment, then the empty-plan sentinel. Never fails.
func ParseResponse(content string) *core.Plan {
	var doc planDoc
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		fragment, ok := extractBalanced(content)
		if !ok {
			return emptyPlan(praxiserrors.New(praxiserrors.CodePlanParse,
				"planner reply was not JSON and contained no JSON object", nil).Error())
		}
		if err := json.Unmarshal([]byte(fragment), &doc); err != nil {
			return emptyPlan(praxiserrors.New(praxiserrors.CodePlanParse,
				"could not parse planner reply", err).Error())
		}
	}

	steps := make([]core.PlanStep, 0, len(doc.Steps))
	for i, s := range doc.Steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		steps = append(steps, core.PlanStep{
			ID:       id,
			Label:    s.Label,
			Executor: normalizeExecutor(s.Executor),
			Action:   core.ActionKind(strings.ToLower(strings.TrimSpace(s.Action))),
			Tool:     strings.TrimSpace(s.Tool),
			Skill:    strings.TrimSpace(s.Skill),
			Args:     s.Args,
		})
	}

	plan := core.NewPlan(doc.Description, steps)
	if err := plan.Validate(); err != nil {
		return emptyPlan(praxiserrors.New(praxiserrors.CodePlanParse,
			"planner reply failed validation", err).Error())
	}
	return plan
}

// DefaultPlan is applied by the executor when a generated plan has no
// steps: recall context, then answer.
func DefaultPlan() *core.Plan {
	return core.NewPlan("recall relevant context and answer directly", []core.PlanStep{
		{ID: "memory-1", Label: "Recall relevant context", Executor: core.ExecutorAgent, Action: core.ActionMemory},
		{ID: "complete-1", Label: "Answer the request", Executor: core.ExecutorModel, Action: core.ActionCompletion},
	})
}

func emptyPlan(reason string) *core.Plan {
	return core.NewPlan(reason, nil)
}

func normalizeExecutor(raw string) core.ExecutorKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "model", "llm":
		return core.ExecutorModel
	default:
		return core.ExecutorAgent
	}
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\n?|```")

// SanitizePrompt strips code fences and caps length before the prompt is
// embedded in a planning or supervision call.
func SanitizePrompt(prompt string) string {
	out := fencePattern.ReplaceAllString(prompt, "")
	out = strings.TrimSpace(out)
	runes := []rune(out)
	if len(runes) > maxPromptRunes {
		out = string(runes[:maxPromptRunes])
	}
	return out
}

// extractBalanced returns the first balanced top-level JSON object in s,
// skipping braces inside string literals.
func extractBalanced(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func (g *Generator) buildMessages(req core.AgentRequest, history []llm.Message, catalog Catalog) []llm.Message {
	var b strings.Builder
	b.WriteString("You are a planning assistant. Produce a JSON execution plan for the user request.\n")
	b.WriteString("Reply with one JSON object only: {\"description\": string, \"steps\": [...]}.\n")
	b.WriteString("Each step: {\"id\": string (unique), \"label\": string, \"executor\": \"agent\"|\"model\", ")
	b.WriteString("\"action\": \"memory\"|\"tool\"|\"skill\"|\"completion\", \"tool\": string?, \"skill\": string?, \"args\": object?}.\n")
	b.WriteString("The final step must have action \"completion\".\n")
	if catalog.Tools != "" {
		b.WriteString("\nAvailable tools:\n")
		b.WriteString(catalog.Tools)
	}
	if catalog.Skills != "" {
		b.WriteString("\nAvailable skills:\n")
		b.WriteString(catalog.Skills)
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: b.String()}}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: SanitizePrompt(req.Prompt)})
	return messages
}
