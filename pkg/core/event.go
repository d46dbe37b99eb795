package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the engine.
type EventType string

const (
	EventPlanGenerated EventType = "planner.plan.generated"
	EventPlanReplanned EventType = "planner.plan.replanned"
	EventStepStarted   EventType = "executor.step.started"
	EventStepFinished  EventType = "executor.step.finished"
	EventStepRetried   EventType = "executor.step.retried"
	EventRunAborted    EventType = "executor.run.aborted"
	EventSkillStarted  EventType = "skill.run.started"
	EventSkillFinished EventType = "skill.run.finished"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	Tenant    string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, tenant, runID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Tenant:    tenant,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
