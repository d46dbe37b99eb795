// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the shared data model of the orchestration engine:
// plans, steps, step results, tools, and semantic events.
package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ExecutorKind identifies which runtime executes a step.
type ExecutorKind string

const (
	ExecutorAgent ExecutorKind = "agent"
	ExecutorModel ExecutorKind = "model"
)

// ActionKind identifies what a step does.
type ActionKind string

const (
	ActionMemory     ActionKind = "memory"
	ActionTool       ActionKind = "tool"
	ActionSkill      ActionKind = "skill"
	ActionCompletion ActionKind = "completion"
)

// PlanStep is one unit of work inside a Plan.
type PlanStep struct {
	ID       string         `json:"id" yaml:"id"`
	Label    string         `json:"label" yaml:"label"`
	Executor ExecutorKind   `json:"executor,omitempty" yaml:"executor,omitempty"`
	Action   ActionKind     `json:"action" yaml:"action"`
	Tool     string         `json:"tool,omitempty" yaml:"tool,omitempty"`
	Skill    string         `json:"skill,omitempty" yaml:"skill,omitempty"`
	Args     map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Plan is the ordered sequence of steps produced for one request.
// A Plan is immutable once generated; re-planning produces a new Plan.
type Plan struct {
	ID          string     `json:"id" yaml:"id"`
	Description string     `json:"description" yaml:"description"`
	Steps       []PlanStep `json:"steps" yaml:"steps"`
}

// NewPlan builds a plan with a generated id.
func NewPlan(description string, steps []PlanStep) *Plan {
	return &Plan{
		ID:          uuid.NewString(),
		Description: description,
		Steps:       steps,
	}
}

// Validate checks structural invariants: non-empty step ids, unique within
// the plan, and a known action kind on every step.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d missing id", i)
		}
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		switch step.Action {
		case ActionMemory, ActionTool, ActionSkill, ActionCompletion:
		default:
			return fmt.Errorf("step %q has unknown action %q", step.ID, step.Action)
		}
	}
	return nil
}

// StepStatus describes the outcome of one attempted step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepError   StepStatus = "error"
	StepSkipped StepStatus = "skipped"
	StepMissing StepStatus = "missing"
)

// StepResult records what happened when a step was attempted. Output is
// truncated by the executor before being stored.
type StepResult struct {
	StepID string     `json:"step_id"`
	Status StepStatus `json:"status"`
	Output string     `json:"output,omitempty"`
	Reason string     `json:"reason,omitempty"`
}
