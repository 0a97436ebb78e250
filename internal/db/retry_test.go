package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql
)

// testDBCounter ensures unique database names across parallel test runs
var testDBCounter atomic.Int64

// newTestDBForRetry creates a minimal in-memory database with a single table.
func newTestDBForRetry(t *testing.T) *sql.DB {
	t.Helper()
	dbName := fmt.Sprintf("file:retry_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := sql.Open("sqlite", dbName)
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE elements (id TEXT PRIMARY KEY, label TEXT NOT NULL DEFAULT '')`); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	return db
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("no such table: widgets"), false},
	}
	for _, tt := range tests {
		if got := isBusy(tt.err); got != tt.want {
			t.Errorf("isBusy(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExecWithRetry_SuccessFirstAttempt(t *testing.T) {
	db := newTestDBForRetry(t)

	result, err := ExecWithRetry(db, "INSERT INTO elements (id, label) VALUES (?, ?)", "lobby", "Lobby")
	if err != nil {
		t.Fatalf("ExecWithRetry failed: %v", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		t.Errorf("Expected 1 row affected, got %d", n)
	}
}

func TestExecWithRetry_NonRetryableError(t *testing.T) {
	db := newTestDBForRetry(t)

	_, err := ExecWithRetry(db, "INSERT INTO nonexistent_table (col) VALUES (?)", "value")
	if err == nil {
		t.Fatal("Expected error for non-existent table")
	}
	if strings.Contains(err.Error(), "database busy after") {
		t.Error("Non-retryable error should not go through retry logic")
	}
}

func TestQueryWithRetry_Success(t *testing.T) {
	db := newTestDBForRetry(t)
	if _, err := db.Exec("INSERT INTO elements (id) VALUES ('a'), ('b')"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rows, err := QueryWithRetry(db, "SELECT id FROM elements ORDER BY id")
	if err != nil {
		t.Fatalf("QueryWithRetry failed: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if strings.Join(ids, ",") != "a,b" {
		t.Errorf("ids = %v, want [a b]", ids)
	}
}

func TestQueryWithRetry_NonRetryableError(t *testing.T) {
	db := newTestDBForRetry(t)

	if _, err := QueryWithRetry(db, "SELECT nope FROM elements"); err == nil {
		t.Fatal("Expected error for unknown column")
	}
}

func TestWithRetry_BusyExhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("retry backoff takes ~1.5s")
	}

	calls := 0
	start := time.Now()
	_, err := withRetry("test", func() (int, error) {
		calls++
		return 0, errors.New("database is locked")
	})

	if err == nil || !strings.Contains(err.Error(), "database busy after") {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if calls != MaxRetries {
		t.Errorf("calls = %d, want %d", calls, MaxRetries)
	}
	if elapsed := time.Since(start); elapsed < RetryDelay {
		t.Errorf("expected backoff between attempts, took %v", elapsed)
	}
}

func TestWithRetry_RecoversAfterBusy(t *testing.T) {
	calls := 0
	v, err := withRetry("test", func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("SQLITE_BUSY")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" || calls != 2 {
		t.Errorf("got (%q, %d calls), want (\"ok\", 2 calls)", v, calls)
	}
}
