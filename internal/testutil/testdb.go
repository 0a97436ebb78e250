package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/domain"
)

// NewTestRepository opens an in-memory database with the production schema and
// closes it when the test ends.
func NewTestRepository(t testing.TB) *db.Repository {
	t.Helper()
	repo, err := db.NewRepository(db.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// NewTestDB is NewTestRepository returning the raw handle.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()
	return NewTestRepository(t).DB
}

// SeedWidget inserts an element and a widget row referencing it.
func SeedWidget(t testing.TB, repo *db.Repository, elementID, widgetID string) {
	t.Helper()
	if err := repo.SaveElement(db.ElementRecord{ID: elementID, Label: elementID}); err != nil {
		t.Fatalf("failed to seed element: %v", err)
	}
	if err := repo.SaveWidget(db.WidgetRecord{ID: widgetID, ElementID: elementID, Config: "{}", Owned: true}); err != nil {
		t.Fatalf("failed to seed widget: %v", err)
	}
}

// InsertEvent writes an event directly, bypassing the bus.
func InsertEvent(sqlDB *sql.DB, event domain.Event) (int64, error) {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event data: %w", err)
	}
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}
	res, err := sqlDB.Exec(`
		INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.AggregateType, event.AggregateID, event.EventType, data, event.EventVersion, event.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return res.LastInsertId()
}

// CountEvents returns the number of stored events of the given type.
func CountEvents(sqlDB *sql.DB, eventType domain.EventType) (int, error) {
	var count int
	err := sqlDB.QueryRow("SELECT COUNT(*) FROM events WHERE event_type = ?", eventType).Scan(&count)
	return count, err
}
