package domain

import (
	"time"
)

type EventType string

const (
	WidgetCreated     EventType = "WidgetCreated"
	WidgetStarted     EventType = "WidgetStarted"
	WidgetStopped     EventType = "WidgetStopped"
	WidgetReset       EventType = "WidgetReset"
	WidgetEvicted     EventType = "WidgetEvicted" // another widget claimed the same host
	WidgetRemoved     EventType = "WidgetRemoved"
	CountdownFinished EventType = "CountdownFinished"

	ElementAdded   EventType = "ElementAdded"
	ElementRemoved EventType = "ElementRemoved"
)

// WidgetEventTypes lists every lifecycle event a widget can emit.
var WidgetEventTypes = []EventType{
	WidgetCreated,
	WidgetStarted,
	WidgetStopped,
	WidgetReset,
	WidgetEvicted,
	WidgetRemoved,
	CountdownFinished,
}

// AggregateWidget and AggregateElement are the aggregate types stored with events.
const (
	AggregateWidget  = "widget"
	AggregateElement = "element"
)

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	EventVersion  int                    `json:"event_version"`
	CreatedAt     time.Time              `json:"created_at"`
	UserID        string                 `json:"user_id,omitempty"`
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
// Handles both int64 and float64 (JSON unmarshaling produces float64).
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
// Typed event data
// =============================================================================

// WidgetEventData is the payload carried by every widget lifecycle event.
type WidgetEventData struct {
	HostID   string `json:"host_id"`
	Mode     string `json:"mode"`
	Mask     string `json:"mask"`
	Running  bool   `json:"running"`
	AnchorMs int64  `json:"anchor_ms"` // unix milliseconds
	Text     string `json:"text,omitempty"`
}

// Map converts the payload into the generic EventData form.
func (d WidgetEventData) Map() map[string]interface{} {
	m := map[string]interface{}{
		"host_id":   d.HostID,
		"mode":      d.Mode,
		"mask":      d.Mask,
		"running":   d.Running,
		"anchor_ms": d.AnchorMs,
	}
	if d.Text != "" {
		m["text"] = d.Text
	}
	return m
}

// ParseWidgetEventData extracts typed widget data from an event.
func (e *Event) ParseWidgetEventData() (WidgetEventData, bool) {
	hostID, ok := e.GetString("host_id")
	if !ok {
		return WidgetEventData{}, false
	}
	return WidgetEventData{
		HostID:   hostID,
		Mode:     e.GetStringOr("mode", ""),
		Mask:     e.GetStringOr("mask", ""),
		Running:  e.GetBoolOr("running", false),
		AnchorMs: e.GetInt64Or("anchor_ms", 0),
		Text:     e.GetStringOr("text", ""),
	}, true
}
