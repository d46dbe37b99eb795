// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jllopis/praxis/pkg/core"
	"github.com/jllopis/praxis/pkg/llm"
)

func step() core.PlanStep {
	return core.PlanStep{ID: "step-1", Label: "fetch data", Action: core.ActionTool, Tool: "read_file"}
}

func result(status core.StepStatus, output string) core.StepResult {
	return core.StepResult{StepID: "step-1", Status: status, Output: output}
}

func TestReviewRetryOnFirstAttempt(t *testing.T) {
	sup := New(&llm.MockProvider{
		Response: `{"outcome":"retry","reason":"timeout"}`,
	}, "test-model")

	v := sup.Review(context.Background(), step(), result(core.StepError, "context deadline exceeded"), 0)
	if v.Outcome != Retry {
		t.Fatalf("outcome = %s, want RETRY", v.Outcome)
	}
	if v.Reason != "timeout" {
		t.Fatalf("reason = %q, want %q", v.Reason, "timeout")
	}
}

func TestReviewRetryEscalatesToReplan(t *testing.T) {
	sup := New(&llm.MockProvider{
		Response: `{"outcome":"retry","reason":"timeout"}`,
	}, "test-model")

	v := sup.Review(context.Background(), step(), result(core.StepError, "context deadline exceeded"), 1)
	if v.Outcome != Replan {
		t.Fatalf("outcome = %s, want REPLAN after retry budget is spent", v.Outcome)
	}
	if !strings.Contains(v.Reason, "retry budget exhausted") {
		t.Fatalf("reason = %q, want an exhaustion note", v.Reason)
	}
}

func TestReviewGatewayErrorFailsOpen(t *testing.T) {
	sup := New(&llm.MockProvider{Err: errors.New("connection refused")}, "test-model")

	v := sup.Review(context.Background(), step(), result(core.StepOK, "done"), 0)
	if v.Outcome != Success {
		t.Fatalf("outcome = %s, want SUCCESS on gateway failure", v.Outcome)
	}
	if !strings.Contains(v.Reason, "connection refused") {
		t.Fatalf("reason = %q, want the gateway error", v.Reason)
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		outcome Outcome
		reason  string
	}{
		{
			name:    "strict json abort",
			content: `{"outcome":"abort","reason":"request is impossible"}`,
			outcome: Abort,
			reason:  "request is impossible",
		},
		{
			name:    "uppercase outcome",
			content: `{"outcome":"REPLAN","reason":"wrong tool"}`,
			outcome: Replan,
			reason:  "wrong tool",
		},
		{
			name:    "json wrapped in prose",
			content: "After reviewing the step I conclude:\n{\"outcome\":\"success\",\"reason\":\"looks good\"}\nHope that helps.",
			outcome: Success,
			reason:  "looks good",
		},
		{
			name:    "legacy ok maps to success",
			content: `{"outcome":"ok","reason":"fine"}`,
			outcome: Success,
			reason:  "fine",
		},
		{
			name:    "legacy adjust maps to replan",
			content: `{"outcome":"adjust","reason":"try another approach"}`,
			outcome: Replan,
			reason:  "try another approach",
		},
		{
			name:    "prose only fails open",
			content: "The step seems fine to me.",
			outcome: Success,
			reason:  "could not parse supervisor response",
		},
		{
			name:    "unknown outcome fails open",
			content: `{"outcome":"panic","reason":"?"}`,
			outcome: Success,
			reason:  "could not parse supervisor response",
		},
		{
			name:    "truncated json fails open",
			content: `{"outcome":"retry","reason":"time`,
			outcome: Success,
			reason:  "could not parse supervisor response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerdict(tt.content)
			if v.Outcome != tt.outcome {
				t.Fatalf("outcome = %s, want %s", v.Outcome, tt.outcome)
			}
			if v.Reason != tt.reason {
				t.Fatalf("reason = %q, want %q", v.Reason, tt.reason)
			}
		})
	}
}

func TestReviewSendsStepAndResult(t *testing.T) {
	provider := &llm.ScriptedProvider{}
	provider.Add(llm.TextResponse(`{"outcome":"success","reason":"done"}`))
	sup := New(provider, "test-model")

	sup.Review(context.Background(), step(), result(core.StepOK, "Hello World!"), 0)

	if len(provider.Requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(provider.Requests))
	}
	req := provider.Requests[0]
	if req.Model != "test-model" {
		t.Fatalf("model = %q", req.Model)
	}
	user := req.Messages[len(req.Messages)-1].Content
	for _, want := range []string{"step-1", "read_file", "Hello World!"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user message missing %q:\n%s", want, user)
		}
	}
}
