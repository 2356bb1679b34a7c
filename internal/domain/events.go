package domain

import (
	"time"
)

type EventType string

const (
	RunStarted         EventType = "RunStarted"
	RunCompleted       EventType = "RunCompleted"
	ContainerFailed    EventType = "ContainerFailed"
	CandidateFound     EventType = "CandidateFound"
	ItemClassified     EventType = "ItemClassified"
	RemediationStep    EventType = "RemediationStep"
	MigrationStepDone  EventType = "MigrationStepDone"
	MigrationCompleted EventType = "MigrationCompleted"
	MigrationFailed    EventType = "MigrationFailed"
)

// Aggregate types used on run events.
const (
	AggregateRun       = "run"
	AggregateContainer = "container"
	AggregateAsset     = "asset"
)

type Event struct {
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	CreatedAt     time.Time              `json:"created_at"`
	RunID         string                 `json:"run_id,omitempty"`
}

// =============================================================================
// Type-safe event data accessors
// =============================================================================

// GetString safely extracts a string field from EventData.
// Returns the value and true if found and is a string, otherwise empty string and false.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles int, int64 and float64.
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// GetBool safely extracts a bool field from EventData.
func (e *Event) GetBool(key string) (bool, bool) {
	if e.EventData == nil {
		return false, false
	}
	v, ok := e.EventData[key].(bool)
	return v, ok
}

// GetBoolOr extracts a bool field or returns the default value.
func (e *Event) GetBoolOr(key string, defaultVal bool) bool {
	if v, ok := e.GetBool(key); ok {
		return v
	}
	return defaultVal
}

// =============================================================================
// Typed event data structures
// =============================================================================

// ClassifiedEventData contains data for ItemClassified events.
type ClassifiedEventData struct {
	Action  Action `json:"action"`
	Partial bool   `json:"partial"`
}

// ParseClassifiedEventData extracts typed classification data from an event.
func (e *Event) ParseClassifiedEventData() (ClassifiedEventData, bool) {
	action, ok := e.GetString("action")
	if !ok {
		return ClassifiedEventData{}, false
	}
	return ClassifiedEventData{
		Action:  Action(action),
		Partial: e.GetBoolOr("partial", false),
	}, true
}

// StepEventData contains data for RemediationStep and MigrationStepDone events.
type StepEventData struct {
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
	Bytes   int64  `json:"bytes,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ParseStepEventData extracts typed step data from an event.
func (e *Event) ParseStepEventData() (StepEventData, bool) {
	step, ok := e.GetString("step")
	if !ok {
		return StepEventData{}, false
	}
	return StepEventData{
		Step:    step,
		Outcome: e.GetStringOr("outcome", ""),
		Bytes:   e.GetInt64Or("bytes", 0),
		Error:   e.GetStringOr("error", ""),
	}, true
}
