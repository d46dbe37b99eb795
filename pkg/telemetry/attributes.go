// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration for the
// orchestration engine: exporter setup, trace-aware logging, and metrics
// fed from semantic engine events.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute names used on engine spans and metrics. LLM attributes follow
// the gen_ai conventions; everything else is praxis-namespaced.
const (
	AttrTenant = "praxis.tenant"
	AttrRunID  = "praxis.run_id"

	AttrPlanID    = "praxis.plan.id"
	AttrPlanSteps = "praxis.plan.steps"
	AttrReplans   = "praxis.plan.replans"

	AttrStepID      = "praxis.step.id"
	AttrStepAction  = "praxis.step.action"
	AttrStepStatus  = "praxis.step.status"
	AttrStepAttempt = "praxis.step.attempt"
	AttrStepVerdict = "praxis.step.verdict"

	AttrToolName    = "praxis.tool.name"
	AttrToolSource  = "praxis.tool.source" // "local", "provider", "skill"
	AttrToolSuccess = "praxis.tool.success"

	AttrSkillName  = "praxis.skill.name"
	AttrSkillTurn  = "praxis.skill.turn"
	AttrSkillTools = "praxis.skill.tools"

	AttrProviderName  = "praxis.provider.name"
	AttrPoolInFlight  = "praxis.pool.in_flight"
	AttrPoolCached    = "praxis.pool.cached"
	AttrPoolNegatives = "praxis.pool.negative_cached"

	AttrMemoryHits  = "praxis.memory.hits"
	AttrMemoryLimit = "praxis.memory.limit"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"

	AttrErrorCode = "praxis.error.code"
)

// Tenant returns the tenant attribute.
func Tenant(tenant string) attribute.KeyValue {
	return attribute.String(AttrTenant, tenant)
}

// RunID returns the run id attribute.
func RunID(id string) attribute.KeyValue {
	return attribute.String(AttrRunID, id)
}

// Step returns the common step attributes.
func Step(id, action, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStepID, id),
		attribute.String(AttrStepAction, action),
		attribute.String(AttrStepStatus, status),
	}
}

// Tool returns the common tool attributes.
func Tool(name, source string, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolSource, source),
		attribute.Bool(AttrToolSuccess, success),
	}
}
