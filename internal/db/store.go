package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ElementRecord is a persisted display element.
type ElementRecord struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// WidgetRecord is a persisted widget definition. Config is the JSON encoding of
// the widget's options; AnchorMs is the absolute anchor in unix milliseconds.
// Owned records whether the widget held its element when saved.
type WidgetRecord struct {
	ID        string    `json:"id"`
	ElementID string    `json:"element_id"`
	Preset    string    `json:"preset"`
	Config    string    `json:"config"`
	Running   bool      `json:"running"`
	Owned     bool      `json:"owned"`
	AnchorMs  int64     `json:"anchor_ms"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveElement inserts or relabels an element.
func (r *Repository) SaveElement(e ElementRecord) error {
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO elements (id, label) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label
	`, e.ID, e.Label)
	if err != nil {
		return fmt.Errorf("failed to save element %s: %w", e.ID, err)
	}
	return nil
}

// DeleteElement removes an element and, by cascade, its widgets and their schedules.
func (r *Repository) DeleteElement(id string) error {
	res, err := ExecWithRetry(r.DB, "DELETE FROM elements WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete element %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListElements returns every element ordered by creation.
func (r *Repository) ListElements() ([]ElementRecord, error) {
	rows, err := QueryWithRetry(r.DB, "SELECT id, label, created_at FROM elements ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list elements: %w", err)
	}
	defer rows.Close()

	var out []ElementRecord
	for rows.Next() {
		var e ElementRecord
		if err := rows.Scan(&e.ID, &e.Label, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan element: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveWidget inserts or updates a widget definition.
func (r *Repository) SaveWidget(w WidgetRecord) error {
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO widgets (id, element_id, preset, config, running, owned, anchor_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			element_id = excluded.element_id,
			preset = excluded.preset,
			config = excluded.config,
			running = excluded.running,
			owned = excluded.owned,
			anchor_ms = excluded.anchor_ms,
			updated_at = CURRENT_TIMESTAMP
	`, w.ID, w.ElementID, w.Preset, w.Config, w.Running, w.Owned, w.AnchorMs)
	if err != nil {
		return fmt.Errorf("failed to save widget %s: %w", w.ID, err)
	}
	return nil
}

// DeleteWidget removes a widget definition and its reset schedules.
func (r *Repository) DeleteWidget(id string) error {
	res, err := ExecWithRetry(r.DB, "DELETE FROM widgets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete widget %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWidgets returns every widget definition ordered by creation.
func (r *Repository) ListWidgets() ([]WidgetRecord, error) {
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, element_id, preset, config, running, owned, anchor_ms, created_at, updated_at
		FROM widgets ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	defer rows.Close()

	var out []WidgetRecord
	for rows.Next() {
		var w WidgetRecord
		if err := rows.Scan(&w.ID, &w.ElementID, &w.Preset, &w.Config, &w.Running, &w.Owned, &w.AnchorMs, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan widget: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetSetting returns the value stored under key, or ErrNotFound.
func (r *Repository) GetSetting(key string) (string, error) {
	var value string
	err := r.DB.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key.
func (r *Repository) SetSetting(key, value string) error {
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
