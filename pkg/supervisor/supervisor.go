// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor judges step outcomes and drives the executor's
// control flow: continue, retry once, re-plan, or abort. It fails open: a
// verdict that cannot be parsed becomes SUCCESS so a supervisor hiccup
// never stalls a whole plan.
package supervisor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/praxis/pkg/core"
	praxiserrors "github.com/jllopis/praxis/pkg/errors"
	"github.com/jllopis/praxis/pkg/llm"
)

// Outcome is the supervisor's judgment of one step attempt.
type Outcome string

const (
	Success Outcome = "SUCCESS"
	Retry   Outcome = "RETRY"
	Replan  Outcome = "REPLAN"
	Abort   Outcome = "ABORT"
)

// Verdict carries the outcome with its rationale and an optional fix hint
// fed back into retried or re-planned work.
type Verdict struct {
	Outcome      Outcome
	Reason       string
	SuggestedFix string
}

// Supervisor reviews step results with a secondary model call.
type Supervisor struct {
	provider llm.Provider
	model    string
	tracer   trace.Tracer
}

// New creates a step supervisor.
func New(provider llm.Provider, model string) *Supervisor {
	return &Supervisor{
		provider: provider,
		model:    model,
		tracer:   otel.Tracer("praxis/supervisor"),
	}
}

// Review judges one step attempt. It never returns an error: gateway or
// parse failures degrade to a SUCCESS verdict with an explanatory reason.
// A RETRY verdict is only honored on the first attempt; from retryCount 1
// onward it is force-escalated to REPLAN.
func (s *Supervisor) Review(ctx context.Context, step core.PlanStep, result core.StepResult, retryCount int) Verdict {
	ctx, span := s.tracer.Start(ctx, "Supervisor.Review", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.Int("step.retry_count", retryCount),
	))
	defer span.End()
	log := slog.Default()

	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Model:    s.model,
		Messages: s.buildMessages(step, result),
	})
	var verdict Verdict
	if err != nil {
		log.Warn("supervisor.review.gateway_error",
			slog.String("step_id", step.ID),
			slog.String("error", err.Error()),
		)
		verdict = Verdict{Outcome: Success, Reason: "could not reach supervisor: " + err.Error()}
	} else {
		verdict = ParseVerdict(resp.Content)
		if verdict.Reason == failOpenReason {
			log.Warn("supervisor.review.parse_failed",
				slog.String("step_id", step.ID),
				slog.Any("error", praxiserrors.New(praxiserrors.CodeSupervisorParse,
					"supervisor reply was not a verdict", nil)),
			)
		}
	}

	if verdict.Outcome == Retry && retryCount >= 1 {
		// One retry per step. A second RETRY verdict escalates.
		verdict.Outcome = Replan
		verdict.Reason = strings.TrimSpace("retry budget exhausted; " + verdict.Reason)
	}
	span.SetAttributes(attribute.String("supervisor.outcome", string(verdict.Outcome)))

	log.Info("supervisor.review.verdict",
		slog.String("step_id", step.ID),
		slog.String("outcome", string(verdict.Outcome)),
		slog.String("reason", verdict.Reason),
	)
	return verdict
}

// verdictDoc is the strict outcome schema requested from the model.
type verdictDoc struct {
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason"`
	SuggestedFix string `json:"suggested_fix"`
}

// ParseVerdict parses a supervisor reply: direct JSON, then first balanced
// {...} fragment, then fail-open SUCCESS. The legacy two-value vocabulary
// {ok, adjust} is still recognized.
func ParseVerdict(content string) Verdict {
	var doc verdictDoc
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		fragment, ok := extractBalanced(content)
		if !ok {
			return failOpen()
		}
		if err := json.Unmarshal([]byte(fragment), &doc); err != nil {
			return failOpen()
		}
	}

	outcome, ok := normalizeOutcome(doc.Outcome)
	if !ok {
		return failOpen()
	}
	return Verdict{Outcome: outcome, Reason: doc.Reason, SuggestedFix: doc.SuggestedFix}
}

// failOpenReason marks verdicts produced by unparseable supervisor output.
const failOpenReason = "could not parse supervisor response"

func failOpen() Verdict {
	return Verdict{Outcome: Success, Reason: failOpenReason}
}

func normalizeOutcome(raw string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return Success, true
	case "retry":
		return Retry, true
	case "replan":
		return Replan, true
	case "abort":
		return Abort, true
	// Legacy vocabulary kept for older supervisor prompts.
	case "ok":
		return Success, true
	case "adjust":
		return Replan, true
	default:
		return "", false
	}
}

func (s *Supervisor) buildMessages(step core.PlanStep, result core.StepResult) []llm.Message {
	var b strings.Builder
	b.WriteString("You supervise plan execution. Judge whether this step attempt achieved its goal.\n")
	b.WriteString("Reply with one JSON object only: {\"outcome\": \"success\"|\"retry\"|\"replan\"|\"abort\", ")
	b.WriteString("\"reason\": string, \"suggested_fix\": string}.\n")
	b.WriteString("Use retry for transient failures, replan when the approach is wrong, abort when the request cannot be fulfilled.\n")

	payload := map[string]any{
		"step": map[string]any{
			"id":     step.ID,
			"label":  step.Label,
			"action": step.Action,
			"tool":   step.Tool,
			"skill":  step.Skill,
		},
		"result": map[string]any{
			"status": result.Status,
			"output": result.Output,
			"reason": result.Reason,
		},
	}
	encoded, _ := json.Marshal(payload)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: b.String()},
		{Role: llm.RoleUser, Content: string(encoded)},
	}
}

// extractBalanced returns the first balanced top-level JSON object in s.
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
