// Package testutil provides test utilities including mocks, fixtures, and test database helpers.
package testutil

import (
	"sync"
	"time"

	"github.com/mescon/Tickarr/internal/clock"
	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/eventbus"
)

// =============================================================================
// MockClock - Testable time abstraction
// =============================================================================

// MockClock implements clock.Clock with manually advanced time. It also acts as a
// spy scheduler: every registration is recorded and counts its cancellations.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	entries []*MockTimer
}

// MockTimer is a registration made through AfterFunc or Every.
type MockTimer struct {
	clock     *MockClock
	seq       int
	next      time.Time
	period    time.Duration // zero for one-shot timers
	fn        func()
	done      bool // fired (one-shot) or stopped
	stopCalls int
	cancels   int
	fires     int
}

// Compile-time assertion that MockClock implements clock.Clock
var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a new MockClock with the current time as initial value.
func NewMockClock() *MockClock {
	return &MockClock{now: time.Now()}
}

// NewMockClockAt creates a new MockClock with a specific initial time.
func NewMockClockAt(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow sets the mock's current time without triggering pending functions.
func (m *MockClock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// AfterFunc schedules f to be called once after duration d.
func (m *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return m.register(d, 0, f)
}

// Every schedules f at every multiple of d from now. It panics on a non-positive
// interval, like time.NewTicker.
func (m *MockClock) Every(d time.Duration, f func()) clock.Timer {
	if d <= 0 {
		panic("testutil: non-positive interval for MockClock.Every")
	}
	return m.register(d, d, f)
}

func (m *MockClock) register(d, period time.Duration, f func()) *MockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &MockTimer{
		clock:  m,
		seq:    len(m.entries),
		next:   m.now.Add(d),
		period: period,
		fn:     f,
	}
	m.entries = append(m.entries, t)
	return t
}

// nextDueLocked returns the earliest live timer due at or before limit.
func (m *MockClock) nextDueLocked(limit time.Time) *MockTimer {
	var best *MockTimer
	for _, t := range m.entries {
		if t.done || t.next.After(limit) {
			continue
		}
		if best == nil || t.next.Before(best.next) {
			best = t
		}
	}
	return best
}

// Advance moves time forward by d, firing due callbacks in time order. The
// clock reads each callback's scheduled instant while it runs, and a periodic
// timer fires once per elapsed interval. Returns the number of callbacks run.
func (m *MockClock) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		t := m.nextDueLocked(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return fired
		}
		m.now = t.next
		if t.period > 0 {
			t.next = t.next.Add(t.period)
		} else {
			t.done = true
		}
		t.fires++
		fn := t.fn
		m.mu.Unlock()

		// Execute outside the lock so callbacks may use the clock.
		fn()
		fired++
	}
}

// FireAll runs every live callback once regardless of its due time.
// One-shot timers are consumed; periodic timers move to their next interval.
func (m *MockClock) FireAll() int {
	m.mu.Lock()
	var toExecute []func()
	for _, t := range m.entries {
		if t.done {
			continue
		}
		if t.period > 0 {
			t.next = t.next.Add(t.period)
		} else {
			t.done = true
		}
		t.fires++
		toExecute = append(toExecute, t.fn)
	}
	m.mu.Unlock()

	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// PendingCount returns the number of registrations that are still live.
func (m *MockClock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.entries {
		if !t.done {
			count++
		}
	}
	return count
}

// Timers returns every registration in creation order.
func (m *MockClock) Timers() []*MockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockTimer, len(m.entries))
	copy(out, m.entries)
	return out
}

// Reset clears all registrations and resets time to now.
func (m *MockClock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.now = time.Now()
}

// Stop cancels the timer. Returns true if it was live.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopCalls++
	if t.done {
		return false
	}
	t.done = true
	t.cancels++
	return true
}

// Periodic reports whether the timer was created by Every.
func (t *MockTimer) Periodic() bool {
	return t.period > 0
}

// Interval returns the period of an Every timer.
func (t *MockTimer) Interval() time.Duration {
	return t.period
}

// Live reports whether the timer can still fire.
func (t *MockTimer) Live() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return !t.done
}

// StopCalls counts every call to Stop, including no-op ones.
func (t *MockTimer) StopCalls() int {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopCalls
}

// CancelCount counts calls to Stop that cancelled a live timer.
func (t *MockTimer) CancelCount() int {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.cancels
}

// Fires counts how many times the callback ran.
func (t *MockTimer) Fires() int {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.fires
}

// =============================================================================
// MockHost - display target
// =============================================================================

// MockHost records every text written to it.
type MockHost struct {
	ID      string
	Invalid bool

	mu    sync.Mutex
	texts []string
}

// NewMockHost creates a valid host with the given id.
func NewMockHost(id string) *MockHost {
	return &MockHost{ID: id}
}

func (h *MockHost) HostID() string { return h.ID }

// Valid reports false when Invalid is set.
func (h *MockHost) Valid() bool { return !h.Invalid }

func (h *MockHost) SetText(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, text)
}

// Text returns the most recent text, or "" if nothing was rendered.
func (h *MockHost) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.texts) == 0 {
		return ""
	}
	return h.texts[len(h.texts)-1]
}

// Renders returns every text written so far.
func (h *MockHost) Renders() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.texts))
	copy(out, h.texts)
	return out
}

// RenderCount returns the number of writes.
func (h *MockHost) RenderCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.texts)
}

// =============================================================================
// MockEventBus
// =============================================================================

// MockEventBus captures published events and delivers them synchronously.
// Implements eventbus.Publisher interface.
type MockEventBus struct {
	mu              sync.Mutex
	PublishedEvents []domain.Event
	Subscribers     map[domain.EventType][]func(domain.Event)
	PublishErr      error
}

// Compile-time assertion that MockEventBus implements eventbus.Publisher
var _ eventbus.Publisher = (*MockEventBus)(nil)

// NewMockEventBus creates a new mock event bus.
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		Subscribers: make(map[domain.EventType][]func(domain.Event)),
	}
}

// Publish stores the event and notifies subscribers synchronously.
// When PublishErr is set the event is recorded and the error returned.
func (m *MockEventBus) Publish(event domain.Event) error {
	m.mu.Lock()
	m.PublishedEvents = append(m.PublishedEvents, event)
	subscribers := m.Subscribers[event.EventType]
	err := m.PublishErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	for _, handler := range subscribers {
		handler(event)
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (m *MockEventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribers[eventType] = append(m.Subscribers[eventType], handler)
}

// GetEvents returns all published events of a given type.
func (m *MockEventBus) GetEvents(eventType domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.PublishedEvents {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// GetAllEvents returns all published events.
func (m *MockEventBus) GetAllEvents() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Event, len(m.PublishedEvents))
	copy(result, m.PublishedEvents)
	return result
}

// EventTypes returns the types of all published events in order.
func (m *MockEventBus) EventTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, len(m.PublishedEvents))
	for i, e := range m.PublishedEvents {
		out[i] = e.EventType
	}
	return out
}

// Reset clears all published events and subscribers.
func (m *MockEventBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = nil
	m.Subscribers = make(map[domain.EventType][]func(domain.Event))
}

// EventCount returns the number of events of a given type.
func (m *MockEventBus) EventCount(eventType domain.EventType) int {
	return len(m.GetEvents(eventType))
}

// LastEvent returns the most recently published event, or nil if none.
func (m *MockEventBus) LastEvent() *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PublishedEvents) == 0 {
		return nil
	}
	e := m.PublishedEvents[len(m.PublishedEvents)-1]
	return &e
}
