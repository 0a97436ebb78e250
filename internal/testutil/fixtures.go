package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/mescon/Tickarr/internal/domain"
)

// EventOption is a functional option for configuring test events.
type EventOption func(*domain.Event)

// WithAggregateID sets a specific aggregate ID.
func WithAggregateID(id string) EventOption {
	return func(e *domain.Event) {
		e.AggregateID = id
	}
}

// WithCreatedAt sets the event creation time.
func WithCreatedAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		e.CreatedAt = t
	}
}

// WithEventData merges additional data into EventData.
func WithEventData(data map[string]interface{}) EventOption {
	return func(e *domain.Event) {
		if e.EventData == nil {
			e.EventData = make(map[string]interface{})
		}
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}

// WithRunning sets the running flag in event data.
func WithRunning(running bool) EventOption {
	return WithEventData(map[string]interface{}{"running": running})
}

// NewWidgetEvent builds a widget lifecycle event on host "lobby" with a random widget id.
func NewWidgetEvent(eventType domain.EventType, opts ...EventOption) domain.Event {
	e := domain.Event{
		AggregateType: domain.AggregateWidget,
		AggregateID:   uuid.NewString(),
		EventType:     eventType,
		EventData: domain.WidgetEventData{
			HostID:   "lobby",
			Mode:     "count-down",
			Mask:     "mm:ss",
			AnchorMs: time.Now().UnixMilli(),
		}.Map(),
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
