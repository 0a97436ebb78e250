// Package display is the host environment for timer widgets: named elements
// that carry rendered text, and the Board that owns them together with the
// widgets attached to them.
package display

import (
	"sync"
	"sync/atomic"
)

// RenderFunc observes every text written to an element.
type RenderFunc func(elementID, text string)

// Element is a display target. It implements widget.Host.
type Element struct {
	id       string
	label    string
	onRender RenderFunc
	removed  atomic.Bool

	mu   sync.RWMutex
	text string
}

// NewElement creates a standalone element. onRender may be nil.
func NewElement(id, label string, onRender RenderFunc) *Element {
	return &Element{id: id, label: label, onRender: onRender}
}

func (e *Element) HostID() string { return e.id }

func (e *Element) Label() string { return e.label }

// Valid reports false once the element has been removed from its board.
func (e *Element) Valid() bool { return !e.removed.Load() }

// SetText replaces the element's text.
func (e *Element) SetText(text string) {
	e.mu.Lock()
	e.text = text
	e.mu.Unlock()

	if e.onRender != nil {
		e.onRender(e.id, text)
	}
}

// Text returns the current text.
func (e *Element) Text() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.text
}

// ElementInfo is the JSON view of an element.
type ElementInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Info returns a snapshot of the element.
func (e *Element) Info() ElementInfo {
	return ElementInfo{ID: e.id, Label: e.label, Text: e.Text()}
}
