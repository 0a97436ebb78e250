package eventbus

import (
	"database/sql"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/domain"
)

// newTestDB opens an in-memory database with the full schema.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	repo, err := db.NewRepository(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo.DB
}

func countEventsByType(t *testing.T, sqlDB *sql.DB, eventType domain.EventType) int {
	t.Helper()
	var count int
	require.NoError(t, sqlDB.QueryRow("SELECT COUNT(*) FROM events WHERE event_type = ?", eventType).Scan(&count))
	return count
}

func widgetEvent(id string, eventType domain.EventType) domain.Event {
	return domain.Event{
		AggregateType: domain.AggregateWidget,
		AggregateID:   id,
		EventType:     eventType,
		EventData: domain.WidgetEventData{
			HostID: "lobby",
			Mode:   "count-up",
			Mask:   "hh:mm:ss",
		}.Map(),
	}
}

func TestEventBus_PublishAndSubscribe(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	defer eb.Shutdown()

	var mu sync.Mutex
	var received []domain.Event
	eb.Subscribe(domain.WidgetStarted, func(event domain.Event) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	})

	require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetStarted)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	host, _ := received[0].GetString("host_id")
	assert.Equal(t, "lobby", host)
	assert.NotZero(t, received[0].ID, "subscribers see the persisted id")
}

func TestEventBus_PublishPersistsToDatabase(t *testing.T) {
	sqlDB := newTestDB(t)
	eb := NewEventBus(sqlDB)
	defer eb.Shutdown()

	require.NoError(t, eb.Publish(widgetEvent("w1", domain.CountdownFinished)))
	assert.Equal(t, 1, countEventsByType(t, sqlDB, domain.CountdownFinished))
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	defer eb.Shutdown()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		eb.Subscribe(domain.WidgetReset, func(domain.Event) { count.Add(1) })
	}

	require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetReset)))

	assert.Eventually(t, func() bool { return count.Load() == 3 }, time.Second, 10*time.Millisecond)
}

func TestEventBus_UnsubscribedEventType(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	defer eb.Shutdown()

	var stopped atomic.Int32
	eb.Subscribe(domain.WidgetStopped, func(domain.Event) { stopped.Add(1) })

	require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetStarted)))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, stopped.Load())
}

func TestEventBus_SubscribeAll(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	defer eb.Shutdown()

	var count atomic.Int32
	eb.SubscribeAll(domain.WidgetEventTypes, func(domain.Event) { count.Add(1) })

	for _, et := range []domain.EventType{domain.WidgetCreated, domain.WidgetStarted, domain.WidgetEvicted} {
		require.NoError(t, eb.Publish(widgetEvent("w1", et)))
	}

	assert.Eventually(t, func() bool { return count.Load() == 3 }, time.Second, 10*time.Millisecond)
}

func TestEventBus_DefaultValues(t *testing.T) {
	sqlDB := newTestDB(t)
	eb := NewEventBus(sqlDB)
	defer eb.Shutdown()

	require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetCreated)))

	events, err := eb.History(domain.AggregateWidget, "w1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].EventVersion)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestEventBus_History(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	defer eb.Shutdown()

	require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetCreated)))
	require.NoError(t, eb.Publish(widgetEvent("w2", domain.WidgetCreated)))
	require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetStarted)))
	require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetStopped)))

	events, err := eb.History(domain.AggregateWidget, "w1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.WidgetStopped, events[0].EventType, "newest first")
	assert.Equal(t, domain.WidgetStarted, events[1].EventType)

	data, ok := events[0].ParseWidgetEventData()
	require.True(t, ok)
	assert.Equal(t, "lobby", data.HostID)

	page, err := eb.HistoryPage(domain.AggregateWidget, "w1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, domain.WidgetCreated, page[0].EventType)

	total, err := eb.CountHistory(domain.AggregateWidget, "w1")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	sqlDB := newTestDB(t)
	eb := NewEventBus(sqlDB)
	defer eb.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetReset)))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, countEventsByType(t, sqlDB, domain.WidgetReset))
}

func TestEventBus_Shutdown(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	eb.Subscribe(domain.WidgetStarted, func(domain.Event) {})

	done := make(chan struct{})
	go func() {
		eb.Shutdown()
		eb.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return")
	}
}

func TestEventBus_Publish_MarshalError(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	defer eb.Shutdown()

	event := widgetEvent("w1", domain.WidgetStarted)
	event.EventData["bad"] = math.Inf(1)

	assert.Error(t, eb.Publish(event))
}

func TestEventBus_Publish_DatabaseError(t *testing.T) {
	sqlDB := newTestDB(t)
	eb := NewEventBus(sqlDB)
	defer eb.Shutdown()
	sqlDB.Close()

	assert.Error(t, eb.Publish(widgetEvent("w1", domain.WidgetStarted)))
}

func TestEventBus_BufferFull_DropsEvent(t *testing.T) {
	eb := NewEventBus(newTestDB(t))
	defer eb.Shutdown()

	var drops atomic.Int32
	eb.OnDrop(func(domain.EventType) { drops.Add(1) })

	block := make(chan struct{})
	eb.Subscribe(domain.WidgetStarted, func(domain.Event) { <-block })
	defer close(block)

	// One event is held by the blocked handler, 100 fill the buffer, the rest drop.
	for i := 0; i < 105; i++ {
		require.NoError(t, eb.Publish(widgetEvent("w1", domain.WidgetStarted)))
	}

	assert.Eventually(t, func() bool { return drops.Load() >= 4 }, time.Second, 10*time.Millisecond)
}

func TestPublisher_Interface(t *testing.T) {
	var _ Publisher = NewEventBus(nil)
}
