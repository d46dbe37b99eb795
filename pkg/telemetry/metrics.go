// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/praxis/pkg/core"
)

// EngineMetrics records engine activity. It implements core.EventEmitter
// so it can be plugged straight into the executor and planner as their
// event sink.
type EngineMetrics struct {
	plansGenerated metric.Int64Counter
	replans        metric.Int64Counter
	stepsFinished  metric.Int64Counter
	stepsRetried   metric.Int64Counter
	runsAborted    metric.Int64Counter
	skillRuns      metric.Int64Counter
}

// NewEngineMetrics registers the engine instruments on the global meter.
func NewEngineMetrics() (*EngineMetrics, error) {
	meter := otel.Meter("praxis/engine")

	m := &EngineMetrics{}
	var err error

	if m.plansGenerated, err = meter.Int64Counter(
		"praxis.plans.generated",
		metric.WithDescription("Plans produced by the planner"),
	); err != nil {
		return nil, err
	}
	if m.replans, err = meter.Int64Counter(
		"praxis.plans.replanned",
		metric.WithDescription("Replan cycles triggered by supervisor verdicts"),
	); err != nil {
		return nil, err
	}
	if m.stepsFinished, err = meter.Int64Counter(
		"praxis.steps.finished",
		metric.WithDescription("Plan steps attempted, by status and verdict"),
	); err != nil {
		return nil, err
	}
	if m.stepsRetried, err = meter.Int64Counter(
		"praxis.steps.retried",
		metric.WithDescription("Step retries granted by the supervisor"),
	); err != nil {
		return nil, err
	}
	if m.runsAborted, err = meter.Int64Counter(
		"praxis.runs.aborted",
		metric.WithDescription("Runs stopped by an abort verdict or replan exhaustion"),
	); err != nil {
		return nil, err
	}
	if m.skillRuns, err = meter.Int64Counter(
		"praxis.skills.runs",
		metric.WithDescription("Skill sub-loops executed"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Emit implements core.EventEmitter.
func (m *EngineMetrics) Emit(ctx context.Context, event core.Event) {
	tenant := attribute.String(AttrTenant, event.Tenant)

	switch event.Type {
	case core.EventPlanGenerated:
		m.plansGenerated.Add(ctx, 1, metric.WithAttributes(tenant))
	case core.EventPlanReplanned:
		m.replans.Add(ctx, 1, metric.WithAttributes(tenant))
	case core.EventStepFinished:
		attrs := []attribute.KeyValue{tenant}
		if status, ok := event.Payload["status"].(string); ok {
			attrs = append(attrs, attribute.String(AttrStepStatus, status))
		}
		if verdict, ok := event.Payload["verdict"].(string); ok {
			attrs = append(attrs, attribute.String(AttrStepVerdict, verdict))
		}
		m.stepsFinished.Add(ctx, 1, metric.WithAttributes(attrs...))
	case core.EventStepRetried:
		m.stepsRetried.Add(ctx, 1, metric.WithAttributes(tenant))
	case core.EventRunAborted:
		m.runsAborted.Add(ctx, 1, metric.WithAttributes(tenant))
	case core.EventSkillFinished:
		attrs := []attribute.KeyValue{tenant}
		if skill, ok := event.Payload["skill"].(string); ok {
			attrs = append(attrs, attribute.String(AttrSkillName, skill))
		}
		if failed, ok := event.Payload["failed"].(bool); ok {
			attrs = append(attrs, attribute.Bool(AttrToolSuccess, !failed))
		}
		m.skillRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

var _ core.EventEmitter = (*EngineMetrics)(nil)
