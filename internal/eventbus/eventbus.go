package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/logger"
)

// Publisher defines the interface for publishing events.
// This interface enables testing with mock implementations.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)

// EventBus persists events to SQLite and fans them out to in-memory subscribers.
// Each subscriber runs on its own goroutine with a buffered channel; a full
// buffer drops the event for that subscriber rather than blocking the publisher.
type EventBus struct {
	db          *sql.DB
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	dropped     func(domain.EventType)
}

func NewEventBus(db *sql.DB) *EventBus {
	return &EventBus{
		db:          db,
		subscribers: make(map[domain.EventType][]chan domain.Event),
		stopChan:    make(chan struct{}),
	}
}

// OnDrop registers a callback invoked whenever a subscriber's buffer is full.
func (eb *EventBus) OnDrop(f func(domain.EventType)) {
	eb.mu.Lock()
	eb.dropped = f
	eb.mu.Unlock()
}

func (eb *EventBus) Publish(event domain.Event) error {
	logger.Debugf("EventBus: Publishing event %s (AggregateID: %s)", event.EventType, event.AggregateID)

	// 1. Store event in database (source of truth)
	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC() // UTC keeps SQLite date comparisons consistent
	}
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}

	res, err := db.ExecWithRetry(eb.db, `
        INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at, user_id)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.EventVersion, event.CreatedAt, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	// 2. Publish to in-memory subscribers
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[event.EventType] {
		select {
		case ch <- event:
		default:
			if eb.dropped != nil {
				eb.dropped(event.EventType)
			}
		}
	}

	return nil
}

func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	ch := make(chan domain.Event, 100)

	eb.mu.Lock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	eb.mu.Unlock()

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event := <-ch:
				handler(event)
			case <-eb.stopChan:
				return
			}
		}
	}()
}

// SubscribeAll registers handler for every listed event type.
func (eb *EventBus) SubscribeAll(eventTypes []domain.EventType, handler func(domain.Event)) {
	for _, et := range eventTypes {
		eb.Subscribe(et, handler)
	}
}

// History returns the most recent events for one aggregate, newest first.
func (eb *EventBus) History(aggregateType, aggregateID string, limit int) ([]domain.Event, error) {
	return eb.HistoryPage(aggregateType, aggregateID, limit, 0)
}

// HistoryPage is History skipping the newest offset events.
func (eb *EventBus) HistoryPage(aggregateType, aggregateID string, limit, offset int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryWithRetry(eb.db, `
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at, COALESCE(user_id, '')
		FROM events
		WHERE aggregate_type = ? AND aggregate_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, aggregateType, aggregateID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var data string
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &data, &e.EventVersion, &e.CreatedAt, &e.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.EventData); err != nil {
			logger.Warnf("EventBus: skipping event %d with unreadable data: %v", e.ID, err)
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountHistory returns how many events are stored for one aggregate.
func (eb *EventBus) CountHistory(aggregateType, aggregateID string) (int, error) {
	var n int
	err := eb.db.QueryRow("SELECT COUNT(*) FROM events WHERE aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Shutdown stops all subscriber goroutines and waits for them to finish.
// Calling it more than once is safe.
func (eb *EventBus) Shutdown() {
	eb.stopOnce.Do(func() {
		close(eb.stopChan)
	})
	eb.wg.Wait()
	logger.Infof("EventBus shutdown complete")
}
