// Package events defines the lifecycle event types published on the engine's
// in-process event bus: run and step transitions. Engine and StepDispatcher
// publish them; no component in this repository subscribes to the bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic used by the in-process event bus.
const Topic = "operion.engine.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"

	StepDispatchedEvent EventType = "step.dispatched"
	StepCompletedEvent  EventType = "step.completed"
	StepFailedEvent     EventType = "step.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
}

func NewBaseEvent(eventType EventType, workflowID, runID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		RunID:      runID,
	}
}

type RunStarted struct {
	BaseEvent

	TriggerType string `json:"trigger_type"`
}

func (e RunStarted) GetType() EventType { return RunStartedEvent }

type RunCompleted struct {
	BaseEvent

	DurationMs int64 `json:"duration_ms"`
}

func (e RunCompleted) GetType() EventType { return RunCompletedEvent }

type RunFailed struct {
	BaseEvent

	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

type StepDispatched struct {
	BaseEvent

	StepID string `json:"step_id"`
	Kind   string `json:"kind"`
}

func (e StepDispatched) GetType() EventType { return StepDispatchedEvent }

type StepCompleted struct {
	BaseEvent

	StepID     string `json:"step_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

type StepFailed struct {
	BaseEvent

	StepID string `json:"step_id"`
	Error  string `json:"error"`
}

func (e StepFailed) GetType() EventType { return StepFailedEvent }
