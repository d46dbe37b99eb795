// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor walks generated plans step by step: memory lookups, tool
// calls, skill delegations, and the final completion. Supervisor verdicts
// after every step decide whether execution continues, retries once,
// re-plans, or aborts.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/praxis/pkg/core"
	praxiserrors "github.com/jllopis/praxis/pkg/errors"
	"github.com/jllopis/praxis/pkg/llm"
	"github.com/jllopis/praxis/pkg/memory"
	"github.com/jllopis/praxis/pkg/planner"
	"github.com/jllopis/praxis/pkg/skills"
	"github.com/jllopis/praxis/pkg/supervisor"
	"github.com/jllopis/praxis/pkg/tools"
)

const (
	// DefaultMaxReplans bounds how many times a failed plan may be rebuilt
	// within a single run.
	DefaultMaxReplans = 2
	// DefaultMemoryLimit is the snippet count requested from memory steps
	// that do not specify their own limit.
	DefaultMemoryLimit = 5
	// DefaultHistoryWindow bounds how many stored conversation messages
	// are carried into planner and completion calls. Leading system
	// messages always survive the cut.
	DefaultHistoryWindow = 20
	// maxOutputRunes caps step output stored in the trace and shown to the
	// supervisor and completion calls.
	maxOutputRunes = 4000

	truncationMarker = "…(truncated)"
)

// Planner produces plans for incoming requests.
type Planner interface {
	Generate(ctx context.Context, req core.AgentRequest, history []llm.Message, catalog planner.Catalog) (*core.Plan, error)
}

// Reviewer judges each step attempt.
type Reviewer interface {
	Review(ctx context.Context, step core.PlanStep, result core.StepResult, retryCount int) supervisor.Verdict
}

// SkillRunner executes skill-delegation steps as finite event streams.
type SkillRunner interface {
	Run(ctx context.Context, step core.PlanStep, goal string, retryFeedback string) <-chan skills.Event
}

// ConversationStore persists conversation turns across requests.
type ConversationStore interface {
	History(ctx context.Context, tenant, conversationID string) ([]llm.Message, error)
	Append(ctx context.Context, tenant, conversationID string, messages []llm.Message) error
}

// Executor runs one request end to end.
type Executor struct {
	planner       Planner
	reviewer      Reviewer
	provider      llm.Provider
	model         string
	registry      *tools.Registry
	skillRunner   SkillRunner
	skillCatalog  skills.Lookup
	memory        core.Memory
	conversations ConversationStore
	emitter       core.EventEmitter
	tracer        trace.Tracer
	maxReplans    int
	historyWindow int
}

// Option configures an Executor.
type Option func(*Executor)

// WithMemory sets the tenant memory used by memory steps.
func WithMemory(memory core.Memory) Option {
	return func(e *Executor) { e.memory = memory }
}

// WithSkills sets the skill runner and the skill catalog advertised to the
// planner.
func WithSkills(runner SkillRunner, catalog skills.Lookup) Option {
	return func(e *Executor) {
		e.skillRunner = runner
		e.skillCatalog = catalog
	}
}

// WithConversations sets the conversation store used to load shared history
// and persist completed turns.
func WithConversations(store ConversationStore) Option {
	return func(e *Executor) { e.conversations = store }
}

// WithEmitter sets the semantic event sink.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(e *Executor) { e.emitter = emitter }
}

// WithHistoryWindow overrides how many stored messages are carried into
// model calls.
func WithHistoryWindow(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.historyWindow = n
		}
	}
}

// WithMaxReplans overrides the replan budget.
func WithMaxReplans(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxReplans = n
		}
	}
}

// New builds an Executor over a tenant's planner, supervisor, registry, and
// model gateway.
func New(p Planner, r Reviewer, provider llm.Provider, model string, registry *tools.Registry, opts ...Option) *Executor {
	e := &Executor{
		planner:       p,
		reviewer:      r,
		provider:      provider,
		model:         model,
		registry:      registry,
		emitter:       core.NoopEventEmitter{},
		tracer:        otel.Tracer("praxis/executor"),
		maxReplans:    DefaultMaxReplans,
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one request to completion, replan exhaustion, or abort. The
// response always carries the full step trace and the last plan, even on
// failure paths.
func (e *Executor) Run(ctx context.Context, req core.AgentRequest) (*core.AgentResponse, error) {
	ctx, runID := core.EnsureRunID(ctx)
	ctx = core.WithTenant(ctx, req.Tenant)
	ctx, span := e.tracer.Start(ctx, "Executor.Run", trace.WithAttributes(
		attribute.String("tenant", req.Tenant),
		attribute.String("run_id", runID),
	))
	defer span.End()
	log := slog.Default()

	history, err := e.loadHistory(ctx, req)
	if err != nil {
		log.Warn("executor.history.load_failed",
			slog.String("tenant", req.Tenant),
			slog.String("conversation_id", req.ConversationID),
			slog.String("error", err.Error()),
		)
		// A broken conversation store degrades to a fresh conversation.
		history = req.History
	}

	catalog := e.catalog()
	plan, err := e.planner.Generate(ctx, req, history, catalog)
	if err != nil {
		return nil, err
	}

	run := &runState{
		req:     req,
		runID:   runID,
		history: history,
		plan:    plan,
	}

	for {
		if len(run.plan.Steps) == 0 {
			// A planner that produced nothing actionable still gets one
			// memory-then-complete pass instead of an empty response.
			run.plan = planner.DefaultPlan()
		}
		span.SetAttributes(attribute.Int("plan.steps", len(run.plan.Steps)))

		outcome := e.executePlan(ctx, run)
		switch outcome {
		case supervisor.Success:
			return e.finish(ctx, run), nil
		case supervisor.Abort:
			return e.abort(ctx, run), nil
		case supervisor.Replan:
			if run.replans >= e.maxReplans {
				log.Warn("executor.replan.budget_exhausted",
					slog.String("tenant", req.Tenant),
					slog.String("run_id", runID),
					slog.Int("replans", run.replans),
				)
				run.abortReason = "replan budget exhausted: " + strings.Join(run.failures, "; ")
				return e.abort(ctx, run), nil
			}
			if err := e.replan(ctx, run, catalog); err != nil {
				return nil, err
			}
		}
	}
}

// runState accumulates per-run progress across retries and replans.
type runState struct {
	req         core.AgentRequest
	runID       string
	history     []llm.Message
	plan        *core.Plan
	trace       []core.StepResult
	failures    []string
	finalText   string
	replans     int
	abortReason string
}

// executePlan walks the current plan. It returns Success when every step
// passed review, or the escalating verdict that stopped the walk.
func (e *Executor) executePlan(ctx context.Context, run *runState) supervisor.Outcome {
	log := slog.Default()
	for _, step := range run.plan.Steps {
		verdict, result := e.executeStep(ctx, run, step)
		switch verdict.Outcome {
		case supervisor.Success:
			continue
		case supervisor.Abort:
			run.abortReason = verdict.Reason
			log.Warn("executor.run.aborted",
				slog.String("tenant", run.req.Tenant),
				slog.String("run_id", run.runID),
				slog.String("step_id", step.ID),
				slog.String("reason", verdict.Reason),
			)
			e.emitter.Emit(ctx, core.NewEvent(core.EventRunAborted, run.req.Tenant, run.runID, map[string]any{
				"step_id": step.ID,
				"reason":  verdict.Reason,
			}))
			return supervisor.Abort
		case supervisor.Replan:
			run.failures = append(run.failures, fmt.Sprintf(
				"step %s (%s) failed: %s; supervisor: %s",
				step.ID, describeStep(step), firstNonEmpty(result.Reason, result.Output), verdict.Reason,
			))
			return supervisor.Replan
		}
	}
	return supervisor.Success
}

// executeStep attempts one step, consulting the reviewer and honoring at
// most one retry. It returns the final verdict alongside the last result.
func (e *Executor) executeStep(ctx context.Context, run *runState, step core.PlanStep) (supervisor.Verdict, core.StepResult) {
	log := slog.Default()
	feedback := ""
	for attempt := 0; ; attempt++ {
		stepCtx, span := e.tracer.Start(ctx, "Executor.Step", trace.WithAttributes(
			attribute.String("step.id", step.ID),
			attribute.String("step.action", string(step.Action)),
			attribute.Int("step.attempt", attempt),
		))

		log.Info("executor.step.started",
			slog.String("tenant", run.req.Tenant),
			slog.String("run_id", run.runID),
			slog.String("step_id", step.ID),
			slog.String("action", string(step.Action)),
			slog.Int("attempt", attempt),
		)
		e.emitter.Emit(stepCtx, core.NewEvent(core.EventStepStarted, run.req.Tenant, run.runID, map[string]any{
			"step_id": step.ID,
			"action":  string(step.Action),
			"attempt": attempt,
		}))

		result := e.dispatch(stepCtx, run, step, feedback)
		result.Output = Truncate(result.Output)
		run.trace = append(run.trace, result)

		// Completion steps are terminal and not supervised: a failed
		// completion is an infrastructure failure, not a plan problem.
		if step.Action == core.ActionCompletion {
			span.SetAttributes(attribute.String("step.status", string(result.Status)))
			span.End()
			if result.Status == core.StepError {
				return supervisor.Verdict{Outcome: supervisor.Abort, Reason: result.Reason}, result
			}
			return supervisor.Verdict{Outcome: supervisor.Success}, result
		}

		verdict := e.reviewer.Review(stepCtx, step, result, attempt)
		span.SetAttributes(
			attribute.String("step.status", string(result.Status)),
			attribute.String("step.verdict", string(verdict.Outcome)),
		)
		span.End()

		log.Info("executor.step.finished",
			slog.String("tenant", run.req.Tenant),
			slog.String("run_id", run.runID),
			slog.String("step_id", step.ID),
			slog.String("status", string(result.Status)),
			slog.String("verdict", string(verdict.Outcome)),
		)
		e.emitter.Emit(ctx, core.NewEvent(core.EventStepFinished, run.req.Tenant, run.runID, map[string]any{
			"step_id": step.ID,
			"status":  string(result.Status),
			"verdict": string(verdict.Outcome),
		}))

		if verdict.Outcome != supervisor.Retry {
			return verdict, result
		}
		if attempt >= 1 {
			// One retry per step, whatever the reviewer says.
			verdict.Outcome = supervisor.Replan
			return verdict, result
		}

		feedback = firstNonEmpty(verdict.SuggestedFix, verdict.Reason)
		e.emitter.Emit(ctx, core.NewEvent(core.EventStepRetried, run.req.Tenant, run.runID, map[string]any{
			"step_id":  step.ID,
			"feedback": feedback,
		}))
	}
}

// dispatch routes a step to its action handler.
func (e *Executor) dispatch(ctx context.Context, run *runState, step core.PlanStep, feedback string) core.StepResult {
	switch step.Action {
	case core.ActionMemory:
		return e.runMemory(ctx, run, step)
	case core.ActionTool:
		return e.runTool(ctx, step)
	case core.ActionSkill:
		return e.runSkill(ctx, run, step, feedback)
	case core.ActionCompletion:
		return e.runCompletion(ctx, run, step)
	default:
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepError,
			Reason: fmt.Sprintf("unknown action %q", step.Action),
		}
	}
}

func (e *Executor) runMemory(ctx context.Context, run *runState, step core.PlanStep) core.StepResult {
	if e.memory == nil {
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepSkipped,
			Reason: "no memory configured",
		}
	}

	query := run.req.Prompt
	if q, ok := step.Args["query"].(string); ok && strings.TrimSpace(q) != "" {
		query = q
	}
	limit := DefaultMemoryLimit
	if l, ok := step.Args["limit"].(float64); ok && int(l) > 0 {
		limit = int(l)
	}

	snippets, err := e.memory.Search(ctx, query, limit)
	if err != nil {
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepError,
			Reason: praxiserrors.New(praxiserrors.CodeMemoryError, "memory search failed", err).Error(),
		}
	}
	if len(snippets) == 0 {
		return core.StepResult{StepID: step.ID, Status: core.StepOK, Output: "no relevant memory found"}
	}

	var b strings.Builder
	for i, snippet := range snippets {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(snippet.Text)
		if snippet.Source != "" {
			fmt.Fprintf(&b, "\n(source: %s)", snippet.Source)
		}
	}
	return core.StepResult{StepID: step.ID, Status: core.StepOK, Output: b.String()}
}

func (e *Executor) runTool(ctx context.Context, step core.PlanStep) core.StepResult {
	if e.registry == nil {
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepMissing,
			Reason: fmt.Sprintf("tool %q not registered", step.Tool),
		}
	}
	tool, ok := e.registry.Get(step.Tool)
	if !ok {
		if e.registry.Denied(step.Tool) {
			// The tool exists but tenant policy removed it. Skipped,
			// not missing: the name was real, the tenant may not use it.
			return core.StepResult{
				StepID: step.ID,
				Status: core.StepSkipped,
				Reason: praxiserrors.New(praxiserrors.CodePermissionDenied,
					fmt.Sprintf("tool %q denied by tenant permissions", step.Tool), nil).Error(),
			}
		}
		// Planners hallucinate tool names; record it and let the
		// supervisor decide whether the plan survives without it.
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepMissing,
			Reason: praxiserrors.New(praxiserrors.CodeToolNotFound,
				fmt.Sprintf("tool %q not registered", step.Tool), nil).Error(),
		}
	}

	output, err := tool.Call(ctx, step.Args)
	if err != nil {
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepError,
			Output: err.Error(),
			Reason: praxiserrors.New(praxiserrors.CodeToolFailure, "tool call failed", err).
				WithContext("tool", step.Tool).Error(),
		}
	}
	return core.StepResult{StepID: step.ID, Status: core.StepOK, Output: output}
}

func (e *Executor) runSkill(ctx context.Context, run *runState, step core.PlanStep, feedback string) core.StepResult {
	if e.skillRunner == nil {
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepMissing,
			Reason: fmt.Sprintf("skill %q not available", step.Skill),
		}
	}

	e.emitter.Emit(ctx, core.NewEvent(core.EventSkillStarted, run.req.Tenant, run.runID, map[string]any{
		"step_id": step.ID,
		"skill":   step.Skill,
	}))

	var (
		output   string
		runErr   error
		toolUses int
	)
	for event := range e.skillRunner.Run(ctx, step, run.req.Prompt, feedback) {
		switch event.Kind {
		case skills.EventToolCall:
			toolUses++
		case skills.EventResult:
			output = event.Content
			runErr = event.Err
		}
	}

	e.emitter.Emit(ctx, core.NewEvent(core.EventSkillFinished, run.req.Tenant, run.runID, map[string]any{
		"step_id":   step.ID,
		"skill":     step.Skill,
		"tool_uses": toolUses,
		"failed":    runErr != nil,
	}))

	if runErr != nil {
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepError,
			Output: output,
			Reason: runErr.Error(),
		}
	}
	return core.StepResult{StepID: step.ID, Status: core.StepOK, Output: output}
}

func (e *Executor) runCompletion(ctx context.Context, run *runState, step core.PlanStep) core.StepResult {
	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model:    e.model,
		Messages: e.completionMessages(run),
	})
	if err != nil {
		return core.StepResult{
			StepID: step.ID,
			Status: core.StepError,
			Reason: praxiserrors.New(praxiserrors.CodeModelGateway, "completion call failed", err).Error(),
		}
	}
	run.finalText = resp.Content
	return core.StepResult{StepID: step.ID, Status: core.StepOK, Output: resp.Content}
}

// completionMessages assembles the final synthesis call: shared history,
// the user prompt, and the collected step outputs.
func (e *Executor) completionMessages(run *runState) []llm.Message {
	var b strings.Builder
	b.WriteString("You are finishing a multi-step task. Use the step results below to write the final answer for the user.\n")
	b.WriteString("Answer directly; do not mention the steps themselves.\n\n")
	for _, result := range run.trace {
		if result.Status != core.StepOK || result.Output == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", result.StepID, result.Output)
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: b.String()}}
	messages = append(messages, run.history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: run.req.Prompt})
	return messages
}

// replan asks the planner for a fresh plan carrying the accumulated
// failure context as extra conversation history.
func (e *Executor) replan(ctx context.Context, run *runState, catalog planner.Catalog) error {
	run.replans++

	history := append([]llm.Message{}, run.history...)
	history = append(history, llm.Message{
		Role: llm.RoleUser,
		Content: "The previous plan failed. Build a different plan that avoids these failures:\n- " +
			strings.Join(run.failures, "\n- "),
	})

	plan, err := e.planner.Generate(ctx, run.req, history, catalog)
	if err != nil {
		return err
	}
	run.plan = plan

	slog.Default().Info("planner.plan.replanned",
		slog.String("tenant", run.req.Tenant),
		slog.String("run_id", run.runID),
		slog.String("plan_id", plan.ID),
		slog.Int("replans", run.replans),
		slog.Int("steps", len(plan.Steps)),
	)
	e.emitter.Emit(ctx, core.NewEvent(core.EventPlanReplanned, run.req.Tenant, run.runID, map[string]any{
		"plan_id": plan.ID,
		"replans": run.replans,
		"steps":   len(plan.Steps),
	}))
	return nil
}

func (e *Executor) finish(ctx context.Context, run *runState) *core.AgentResponse {
	text := run.finalText
	if text == "" {
		// Plans without a completion step fall back to the last useful
		// step output.
		for i := len(run.trace) - 1; i >= 0; i-- {
			if run.trace[i].Status == core.StepOK && run.trace[i].Output != "" {
				text = run.trace[i].Output
				break
			}
		}
	}

	turn := []llm.Message{
		{Role: llm.RoleUser, Content: run.req.Prompt},
		{Role: llm.RoleAssistant, Content: text},
	}
	e.persist(ctx, run, turn)

	return &core.AgentResponse{
		Text:           text,
		ConversationID: run.req.ConversationID,
		Messages:       append(append([]llm.Message{}, run.history...), turn...),
		Trace:          run.trace,
		Plan:           run.plan,
	}
}

func (e *Executor) abort(ctx context.Context, run *runState) *core.AgentResponse {
	reason := run.abortReason
	if reason == "" {
		reason = "the request could not be completed"
	}
	text := "I could not complete this request: " + reason

	e.persist(ctx, run, []llm.Message{
		{Role: llm.RoleUser, Content: run.req.Prompt},
		{Role: llm.RoleAssistant, Content: text},
	})

	return &core.AgentResponse{
		Text:           text,
		ConversationID: run.req.ConversationID,
		Trace:          run.trace,
		Plan:           run.plan,
		Metadata: map[string]any{
			"aborted":    true,
			"reason":     reason,
			"error_code": string(praxiserrors.CodePlanAbort),
		},
	}
}

func (e *Executor) persist(ctx context.Context, run *runState, turn []llm.Message) {
	if e.conversations == nil || run.req.ConversationID == "" {
		return
	}
	if err := e.conversations.Append(ctx, run.req.Tenant, run.req.ConversationID, turn); err != nil {
		slog.Default().Warn("executor.conversation.persist_failed",
			slog.String("tenant", run.req.Tenant),
			slog.String("conversation_id", run.req.ConversationID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) loadHistory(ctx context.Context, req core.AgentRequest) ([]llm.Message, error) {
	if e.conversations == nil || req.ConversationID == "" {
		return req.History, nil
	}
	stored, err := e.conversations.History(ctx, req.Tenant, req.ConversationID)
	if err != nil {
		return nil, err
	}
	return memory.Window(append(stored, req.History...), e.historyWindow), nil
}

func (e *Executor) catalog() planner.Catalog {
	c := planner.Catalog{}
	if e.registry != nil {
		c.Tools = e.registry.Catalog()
	}
	if e.skillCatalog != nil {
		c.Skills = skills.Catalog(e.skillCatalog)
	}
	return c
}

// Truncate caps step output at maxOutputRunes, appending a marker when
// content was dropped.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxOutputRunes {
		return s
	}
	return string(runes[:maxOutputRunes]) + truncationMarker
}

func describeStep(step core.PlanStep) string {
	switch step.Action {
	case core.ActionTool:
		return "tool " + step.Tool
	case core.ActionSkill:
		return "skill " + step.Skill
	default:
		return string(step.Action)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
