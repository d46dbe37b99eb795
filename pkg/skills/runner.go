// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/praxis/pkg/core"
	praxiserrors "github.com/jllopis/praxis/pkg/errors"
	"github.com/jllopis/praxis/pkg/llm"
	"github.com/jllopis/praxis/pkg/tools"
)

// EventKind identifies one event in a skill run stream.
type EventKind string

const (
	EventThinking   EventKind = "thinking"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventContent    EventKind = "content"
	EventResult     EventKind = "result"
)

// Event is one element of the finite event stream produced by a skill run.
// The stream always ends with exactly one EventResult.
type Event struct {
	Kind    EventKind
	Tool    string
	Content string
	Err     error
}

// Runner executes skill-delegation steps: a bounded tool-calling loop
// against the model, restricted to the skill's declared tools.
type Runner struct {
	provider llm.Provider
	registry *tools.Registry
	skills   Lookup
	model    string
	tracer   trace.Tracer
	now      func() time.Time
}

// NewRunner builds a skill runner over the tenant's filtered tool registry.
func NewRunner(provider llm.Provider, registry *tools.Registry, lookup Lookup, model string) *Runner {
	return &Runner{
		provider: provider,
		registry: registry,
		skills:   lookup,
		model:    model,
		tracer:   otel.Tracer("praxis/skills"),
		now:      time.Now,
	}
}

// Run produces the event stream for one skill step. The returned channel is
// finite and closed after the terminal result event; it cannot be
// restarted. Unknown skill names yield a single terminal error event.
func (r *Runner) Run(ctx context.Context, step core.PlanStep, goal string, retryFeedback string) <-chan Event {
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		r.run(ctx, step, goal, retryFeedback, events)
	}()
	return events
}

func (r *Runner) run(ctx context.Context, step core.PlanStep, goal, retryFeedback string, events chan<- Event) {
	log := slog.Default()
	spec, ok := r.skills.Get(step.Skill)
	if !ok {
		events <- Event{Kind: EventResult, Err: praxiserrors.New(praxiserrors.CodeSkillNotFound,
			fmt.Sprintf("skill %q not found", step.Skill), nil)}
		return
	}

	body, err := spec.Render(step.Args)
	if err != nil {
		events <- Event{Kind: EventResult, Err: err}
		return
	}

	// Only tools the skill declares exist for this run. This is the
	// security boundary: undeclared tools are not advertised, not merely
	// rejected when called.
	toolset := r.allowedTools(spec)
	defs := toolset.Definitions()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: r.systemPrompt(spec, body)},
		{Role: llm.RoleUser, Content: goal},
	}
	if strings.TrimSpace(retryFeedback) != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "A previous attempt at this step failed. Feedback:\n" + retryFeedback,
		})
	}

	model := spec.Model
	if model == "" {
		model = r.model
	}
	maxTurns := spec.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	log.Info("skill.run.start",
		slog.String("skill", spec.Name),
		slog.String("step_id", step.ID),
		slog.Int("max_turns", maxTurns),
		slog.Int("tools", len(defs)),
	)

	for turn := 0; turn < maxTurns; turn++ {
		turnCtx, span := r.tracer.Start(ctx, "Skill.Turn", trace.WithAttributes(
			attribute.String("skill.name", spec.Name),
			attribute.Int("skill.turn", turn),
		))

		events <- Event{Kind: EventThinking, Content: fmt.Sprintf("turn %d", turn+1)}
		resp, err := r.provider.Chat(turnCtx, llm.ChatRequest{
			Model:    model,
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			span.End()
			log.Error("skill.turn.error",
				slog.String("skill", spec.Name),
				slog.Int("turn", turn),
				slog.String("error", err.Error()),
			)
			events <- Event{Kind: EventResult, Err: fmt.Errorf("skill %q turn %d: %w", spec.Name, turn, err)}
			return
		}

		// No tool calls means the model answered; that answer is terminal.
		if len(resp.ToolCalls) == 0 {
			span.End()
			events <- Event{Kind: EventContent, Content: resp.Content}
			events <- Event{Kind: EventResult, Content: resp.Content}
			log.Info("skill.run.complete",
				slog.String("skill", spec.Name),
				slog.Int("turns", turn+1),
			)
			return
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			output := r.invokeTool(turnCtx, toolset, spec, call, events)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
		span.End()
	}

	log.Warn("skill.run.timeout",
		slog.String("skill", spec.Name),
		slog.Int("max_turns", maxTurns),
	)
	events <- Event{Kind: EventResult, Err: fmt.Errorf("skill %q timed out after %d turns", spec.Name, maxTurns)}
}

func (r *Runner) invokeTool(ctx context.Context, toolset *tools.Registry, spec Spec, call llm.ToolCall, events chan<- Event) string {
	name := call.Function.Name
	events <- Event{Kind: EventToolCall, Tool: name, Content: call.Function.Arguments}

	ctx, span := r.tracer.Start(ctx, "Skill.ToolCall", trace.WithAttributes(
		attribute.String("skill.name", spec.Name),
		attribute.String("tool.name", name),
	))
	defer span.End()

	tool, ok := toolset.Get(name)
	if !ok {
		// The model referenced a tool outside the declared set; report it
		// back as a turn output so the loop can self-correct.
		msg := fmt.Sprintf("tool %q is not available to this skill", name)
		events <- Event{Kind: EventToolResult, Tool: name, Content: msg}
		return msg
	}

	args := map[string]any{}
	if trimmed := strings.TrimSpace(call.Function.Arguments); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			msg := fmt.Sprintf("invalid tool arguments: %v", err)
			events <- Event{Kind: EventToolResult, Tool: name, Content: msg}
			return msg
		}
	}

	output, err := tool.Call(ctx, args)
	if err != nil {
		msg := fmt.Sprintf("tool %q failed: %v", name, err)
		events <- Event{Kind: EventToolResult, Tool: name, Content: msg}
		return msg
	}
	events <- Event{Kind: EventToolResult, Tool: name, Content: output}
	return output
}

// allowedTools narrows the tenant registry to the skill's closed tool set.
// An empty declaration means the skill runs with no tools at all.
func (r *Runner) allowedTools(spec Spec) *tools.Registry {
	out := tools.NewRegistry()
	if r.registry == nil {
		return out
	}
	for _, name := range spec.AllowedTools {
		if tool, ok := r.registry.Get(name); ok {
			out.Register(tool)
		}
	}
	return out
}

// systemPrompt seeds the sub-conversation. The live date note makes the
// model treat retrieved documents as historical facts rather than
// predictions.
func (r *Runner) systemPrompt(spec Spec, body string) string {
	now := r.now().UTC()
	return fmt.Sprintf("%s\n\nThe current date and time is %s. Documents and tool outputs describe facts as of their own dates, which may be in the past.",
		body, now.Format("Monday, 2 January 2006 15:04 MST"))
}
