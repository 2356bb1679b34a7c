package domain

import (
	"testing"
)

// TestEvent_GetString tests the GetString accessor method.
func TestEvent_GetString(t *testing.T) {
	tests := []struct {
		name      string
		eventData map[string]interface{}
		key       string
		wantValue string
		wantOk    bool
	}{
		{
			name:      "existing string key",
			eventData: map[string]interface{}{"action": "fix_metadata"},
			key:       "action",
			wantValue: "fix_metadata",
			wantOk:    true,
		},
		{
			name:      "missing key",
			eventData: map[string]interface{}{"other": "value"},
			key:       "action",
			wantValue: "",
			wantOk:    false,
		},
		{
			name:      "nil event data",
			eventData: nil,
			key:       "action",
			wantValue: "",
			wantOk:    false,
		},
		{
			name:      "wrong type",
			eventData: map[string]interface{}{"count": 123},
			key:       "count",
			wantValue: "",
			wantOk:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{EventData: tt.eventData}
			got, ok := e.GetString(tt.key)
			if got != tt.wantValue || ok != tt.wantOk {
				t.Errorf("GetString(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.wantValue, tt.wantOk)
			}
		})
	}
}

func TestEvent_GetInt64(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		wantValue int64
		wantOk    bool
	}{
		{"int64", int64(42), 42, true},
		{"int", 7, 7, true},
		{"float64 from json", float64(1024), 1024, true},
		{"string", "12", 0, false},
		{"missing", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := map[string]interface{}{}
			if tt.value != nil {
				data["bytes"] = tt.value
			}
			e := &Event{EventData: data}
			got, ok := e.GetInt64("bytes")
			if got != tt.wantValue || ok != tt.wantOk {
				t.Errorf("GetInt64() = (%d, %v), want (%d, %v)", got, ok, tt.wantValue, tt.wantOk)
			}
			if tt.wantOk && e.GetInt64Or("bytes", -1) != tt.wantValue {
				t.Errorf("GetInt64Or() did not return stored value")
			}
			if !tt.wantOk && e.GetInt64Or("bytes", -1) != -1 {
				t.Errorf("GetInt64Or() should fall back to default")
			}
		})
	}
}

func TestEvent_GetBool(t *testing.T) {
	e := &Event{EventData: map[string]interface{}{"partial": true, "bad": "yes"}}

	if v, ok := e.GetBool("partial"); !v || !ok {
		t.Errorf("GetBool(partial) = (%v, %v), want (true, true)", v, ok)
	}
	if _, ok := e.GetBool("bad"); ok {
		t.Errorf("GetBool(bad) should fail for non-bool value")
	}
	if !e.GetBoolOr("missing", true) {
		t.Errorf("GetBoolOr(missing, true) should return default")
	}
}

func TestEvent_ParseClassifiedEventData(t *testing.T) {
	e := &Event{EventData: map[string]interface{}{"action": "reset_failed", "partial": true}}
	data, ok := e.ParseClassifiedEventData()
	if !ok {
		t.Fatal("expected classified data to parse")
	}
	if data.Action != ActionResetFailed || !data.Partial {
		t.Errorf("unexpected data: %+v", data)
	}

	empty := &Event{}
	if _, ok := empty.ParseClassifiedEventData(); ok {
		t.Error("event without action should not parse")
	}
}

func TestEvent_ParseStepEventData(t *testing.T) {
	e := &Event{EventData: map[string]interface{}{
		"step":    string(StepEnsureCopy),
		"outcome": string(OutcomeDone),
		"bytes":   float64(2048),
	}}
	data, ok := e.ParseStepEventData()
	if !ok {
		t.Fatal("expected step data to parse")
	}
	if data.Step != string(StepEnsureCopy) || data.Outcome != string(OutcomeDone) || data.Bytes != 2048 {
		t.Errorf("unexpected data: %+v", data)
	}
}

func TestEventType_Constants(t *testing.T) {
	eventTypes := map[EventType]string{
		RunStarted:         "RunStarted",
		RunCompleted:       "RunCompleted",
		ContainerFailed:    "ContainerFailed",
		CandidateFound:     "CandidateFound",
		ItemClassified:     "ItemClassified",
		RemediationStep:    "RemediationStep",
		MigrationStepDone:  "MigrationStepDone",
		MigrationCompleted: "MigrationCompleted",
		MigrationFailed:    "MigrationFailed",
	}

	for eventType, expectedString := range eventTypes {
		if string(eventType) != expectedString {
			t.Errorf("EventType %v = %q, want %q", eventType, string(eventType), expectedString)
		}
	}
}
