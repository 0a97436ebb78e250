package domain

import (
	"encoding/json"
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
			eventData: map[string]interface{}{"host_id": "lobby"},
			key:       "host_id",
			wantValue: "lobby",
			wantOk:    true,
		},
		{
			name:      "missing key",
			eventData: map[string]interface{}{"other": "value"},
			key:       "host_id",
			wantValue: "",
			wantOk:    false,
		},
		{
			name:      "nil event data",
			eventData: nil,
			key:       "host_id",
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

// TestEvent_GetInt64 tests the GetInt64 accessor method.
func TestEvent_GetInt64(t *testing.T) {
	tests := []struct {
		name      string
		eventData map[string]interface{}
		wantValue int64
		wantOk    bool
	}{
		{"int64 value", map[string]interface{}{"anchor_ms": int64(123)}, 123, true},
		{"float64 value (JSON unmarshaling)", map[string]interface{}{"anchor_ms": float64(456)}, 456, true},
		{"int value", map[string]interface{}{"anchor_ms": 789}, 789, true},
		{"string value", map[string]interface{}{"anchor_ms": "1"}, 0, false},
		{"nil event data", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{EventData: tt.eventData}
			got, ok := e.GetInt64("anchor_ms")
			if got != tt.wantValue || ok != tt.wantOk {
				t.Errorf("GetInt64() = (%d, %v), want (%d, %v)", got, ok, tt.wantValue, tt.wantOk)
			}
		})
	}
}

func TestEvent_GetBoolOr(t *testing.T) {
	e := &Event{EventData: map[string]interface{}{"running": true, "bad": "yes"}}

	if !e.GetBoolOr("running", false) {
		t.Error("GetBoolOr(running) should be true")
	}
	if e.GetBoolOr("bad", false) {
		t.Error("GetBoolOr(bad) should fall back to default")
	}
	if !e.GetBoolOr("missing", true) {
		t.Error("GetBoolOr(missing) should fall back to default")
	}
}

func TestWidgetEventData_RoundTripThroughJSON(t *testing.T) {
	data := WidgetEventData{
		HostID:   "lobby",
		Mode:     "count-down",
		Mask:     "mm:ss",
		Running:  true,
		AnchorMs: 1700000000000,
		Text:     "05:00",
	}

	// Events are persisted as JSON, so numbers come back as float64.
	raw, err := json.Marshal(data.Map())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	e := &Event{EventType: WidgetStarted, EventData: decoded}
	got, ok := e.ParseWidgetEventData()
	if !ok {
		t.Fatal("ParseWidgetEventData() should succeed")
	}
	if got != data {
		t.Errorf("ParseWidgetEventData() = %+v, want %+v", got, data)
	}
}

func TestWidgetEventData_MapOmitsEmptyText(t *testing.T) {
	m := WidgetEventData{HostID: "h"}.Map()
	if _, ok := m["text"]; ok {
		t.Error("text should be omitted when empty")
	}
}

func TestEvent_ParseWidgetEventData_MissingHost(t *testing.T) {
	e := &Event{EventData: map[string]interface{}{"mode": "count-up"}}
	if _, ok := e.ParseWidgetEventData(); ok {
		t.Error("ParseWidgetEventData() should fail without host_id")
	}
}

func TestEventType_WidgetEventTypes(t *testing.T) {
	seen := make(map[EventType]bool)
	for _, et := range WidgetEventTypes {
		if et == "" {
			t.Error("event type should not be empty")
		}
		if seen[et] {
			t.Errorf("duplicate event type %s", et)
		}
		seen[et] = true
	}
	if !seen[CountdownFinished] {
		t.Error("CountdownFinished should be a widget event type")
	}
}
