package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/logger"
	"github.com/mescon/Tickarr/internal/widget"
)

var log = logger.Named("board")

var (
	ErrElementExists   = errors.New("element already exists")
	ErrElementNotFound = errors.New("element not found")
	ErrWidgetNotFound  = errors.New("widget not found")
	ErrUnknownPreset   = errors.New("unknown preset")
)

// Store persists elements and widget definitions. *db.Repository implements it.
type Store interface {
	SaveElement(e db.ElementRecord) error
	DeleteElement(id string) error
	ListElements() ([]db.ElementRecord, error)
	SaveWidget(w db.WidgetRecord) error
	DeleteWidget(id string) error
	ListWidgets() ([]db.WidgetRecord, error)
}

var _ Store = (*db.Repository)(nil)

// BoardConfig configures a Board. Store may be nil to keep everything in memory.
type BoardConfig struct {
	Env      widget.Environment
	Store    Store
	Defaults widget.Options
	Presets  map[string]widget.Options
}

type entry struct {
	w         *widget.Widget
	elementID string
	preset    string
}

// WidgetInfo is a widget snapshot together with the preset it was created from.
type WidgetInfo struct {
	widget.State
	Preset string `json:"preset,omitempty"`
}

// Board owns the display elements and the widgets attached to them.
//
// The board lock is never held while a widget method runs: widget events may be
// delivered synchronously to the board's own subscribers.
type Board struct {
	env      widget.Environment
	store    Store
	defaults widget.Options
	presets  map[string]widget.Options

	mu       sync.RWMutex
	elements map[string]*Element
	widgets  map[string]*entry

	hooksMu sync.RWMutex
	hooks   []RenderFunc
}

// NewBoard creates a board. When the environment's publisher supports
// subscriptions, the board re-persists widgets whose countdown finished or
// that lost their element to another widget.
func NewBoard(cfg BoardConfig) *Board {
	env := cfg.Env
	if env.Registry == nil {
		env.Registry = widget.NewRegistry()
	}
	presets := make(map[string]widget.Options, len(cfg.Presets))
	for name, o := range cfg.Presets {
		presets[name] = o
	}

	b := &Board{
		env:      env,
		store:    cfg.Store,
		defaults: cfg.Defaults,
		presets:  presets,
		elements: make(map[string]*Element),
		widgets:  make(map[string]*entry),
	}

	if env.Events != nil {
		persist := func(e domain.Event) { b.persistWidget(e.AggregateID) }
		env.Events.Subscribe(domain.CountdownFinished, persist)
		env.Events.Subscribe(domain.WidgetEvicted, persist)
	}
	return b
}

// Registry returns the ownership table shared by the board's widgets.
func (b *Board) Registry() *widget.Registry { return b.env.Registry }

// OnRender registers fn to observe every text rendered into any element.
// fn must not call back into the board or its widgets.
func (b *Board) OnRender(fn RenderFunc) {
	b.hooksMu.Lock()
	b.hooks = append(b.hooks, fn)
	b.hooksMu.Unlock()
}

func (b *Board) render(elementID, text string) {
	b.hooksMu.RLock()
	defer b.hooksMu.RUnlock()
	for _, fn := range b.hooks {
		fn(elementID, text)
	}
}

// ---------------------------------------------------------------------------
// Elements
// ---------------------------------------------------------------------------

// AddElement creates an element. An empty id gets a generated one.
func (b *Board) AddElement(id, label string) (*Element, error) {
	if id == "" {
		id = uuid.NewString()
	}
	el := b.newElement(id, label)

	b.mu.Lock()
	if _, ok := b.elements[id]; ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrElementExists, id)
	}
	b.elements[id] = el
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.SaveElement(db.ElementRecord{ID: id, Label: label}); err != nil {
			b.mu.Lock()
			delete(b.elements, id)
			b.mu.Unlock()
			return nil, err
		}
	}

	b.publishElement(domain.ElementAdded, el)
	log.Infof("added element %s (%s)", id, label)
	return el, nil
}

func (b *Board) newElement(id, label string) *Element {
	return NewElement(id, label, b.render)
}

// RemoveElement removes an element together with its widgets. The owning
// widget is stopped before the element disappears.
func (b *Board) RemoveElement(id string) error {
	b.mu.Lock()
	el, ok := b.elements[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	delete(b.elements, id)
	var removed []*widget.Widget
	for wid, e := range b.widgets {
		if e.elementID == id {
			removed = append(removed, e.w)
			delete(b.widgets, wid)
		}
	}
	b.mu.Unlock()

	el.removed.Store(true)
	for _, w := range removed {
		b.env.Registry.Release(w)
		w.Stop()
	}

	if b.store != nil {
		if err := b.store.DeleteElement(id); err != nil && !errors.Is(err, db.ErrNotFound) {
			log.Errorf("failed to delete element %s: %v", id, err)
		}
	}

	for _, w := range removed {
		b.publishWidgetRemoved(w)
	}
	b.publishElement(domain.ElementRemoved, el)
	log.Infof("removed element %s (%d widgets)", id, len(removed))
	return nil
}

// Element returns the element with the given id.
func (b *Board) Element(id string) (*Element, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	el, ok := b.elements[id]
	return el, ok
}

// Elements returns every element sorted by id.
func (b *Board) Elements() []*Element {
	b.mu.RLock()
	out := make([]*Element, 0, len(b.elements))
	for _, el := range b.elements {
		out = append(out, el)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ElementCount returns the number of elements.
func (b *Board) ElementCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.elements)
}

// ---------------------------------------------------------------------------
// Widgets
// ---------------------------------------------------------------------------

// Presets returns a copy of the configured presets.
func (b *Board) Presets() map[string]widget.Options {
	out := make(map[string]widget.Options, len(b.presets))
	for name, o := range b.presets {
		out[name] = o
	}
	return out
}

// PresetNames returns the preset names in sorted order.
func (b *Board) PresetNames() []string {
	names := make([]string, 0, len(b.presets))
	for name := range b.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns the server-wide widget defaults.
func (b *Board) Defaults() widget.Options { return b.defaults }

// resolve layers the board defaults, the named preset and opts, in that order.
func (b *Board) resolve(preset string, opts widget.Options) (widget.Options, error) {
	layered := b.defaults
	if preset != "" {
		p, ok := b.presets[preset]
		if !ok {
			return widget.Options{}, fmt.Errorf("%w: %s", ErrUnknownPreset, preset)
		}
		layered = layered.Overlay(p)
	}
	return layered.Overlay(opts), nil
}

// Attach creates a widget on the element, taking the element over from any
// widget currently attached to it.
func (b *Board) Attach(elementID, preset string, opts widget.Options) (*widget.Widget, error) {
	el, ok := b.Element(elementID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, elementID)
	}
	resolved, err := b.resolve(preset, opts)
	if err != nil {
		return nil, err
	}

	w, err := widget.New(b.env, el, resolved)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.widgets[w.ID()] = &entry{w: w, elementID: elementID, preset: preset}
	b.mu.Unlock()

	b.persistElement(elementID)
	log.Infof("attached widget %s to %s (%s)", w.ID(), elementID, w.Config().Mode)
	return w, nil
}

func (b *Board) lookup(id string) (*entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.widgets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	return e, nil
}

// Widget returns the widget with the given id.
func (b *Board) Widget(id string) (*widget.Widget, bool) {
	e, err := b.lookup(id)
	if err != nil {
		return nil, false
	}
	return e.w, true
}

// WidgetInfo returns a snapshot of one widget.
func (b *Board) WidgetInfo(id string) (WidgetInfo, error) {
	e, err := b.lookup(id)
	if err != nil {
		return WidgetInfo{}, err
	}
	return WidgetInfo{State: e.w.State(), Preset: e.preset}, nil
}

// Widgets returns snapshots of every widget ordered by element, then id.
func (b *Board) Widgets() []WidgetInfo {
	entries := b.entries()
	out := make([]WidgetInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, WidgetInfo{State: e.w.State(), Preset: e.preset})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HostID != out[j].HostID {
			return out[i].HostID < out[j].HostID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RunningCount returns the number of widgets with an active schedule.
func (b *Board) RunningCount() int {
	n := 0
	for _, e := range b.entries() {
		if e.w.Running() {
			n++
		}
	}
	return n
}

func (b *Board) entries() []*entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*entry, 0, len(b.widgets))
	for _, e := range b.widgets {
		out = append(out, e)
	}
	return out
}

// Start starts a widget, evicting the element's current owner.
func (b *Board) Start(id string) (WidgetInfo, error) {
	return b.apply(id, func(w *widget.Widget) { w.Start() })
}

// Stop stops a widget.
func (b *Board) Stop(id string) (WidgetInfo, error) {
	return b.apply(id, func(w *widget.Widget) { w.Stop() })
}

// Update re-renders a widget.
func (b *Board) Update(id string) (WidgetInfo, error) {
	return b.apply(id, func(w *widget.Widget) { w.Update() })
}

// Reset merges opts into a widget's configuration and re-anchors it.
func (b *Board) Reset(id string, opts widget.Options) (WidgetInfo, error) {
	return b.apply(id, func(w *widget.Widget) { w.Reset(opts) })
}

func (b *Board) apply(id string, op func(w *widget.Widget)) (WidgetInfo, error) {
	e, err := b.lookup(id)
	if err != nil {
		return WidgetInfo{}, err
	}
	op(e.w)
	b.persistElement(e.elementID)
	return WidgetInfo{State: e.w.State(), Preset: e.preset}, nil
}

// RemoveWidget stops a widget and forgets it. The element keeps its last text.
func (b *Board) RemoveWidget(id string) error {
	b.mu.Lock()
	e, ok := b.widgets[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	delete(b.widgets, id)
	b.mu.Unlock()

	b.env.Registry.Release(e.w)
	e.w.Stop()

	if b.store != nil {
		if err := b.store.DeleteWidget(id); err != nil && !errors.Is(err, db.ErrNotFound) {
			log.Errorf("failed to delete widget %s: %v", id, err)
		}
	}
	b.publishWidgetRemoved(e.w)
	return nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Restore re-creates persisted elements and widgets. Widgets keep their
// absolute anchor, so a count-up started yesterday still shows the time since
// yesterday. It returns the number of widgets restored.
func (b *Board) Restore(ctx context.Context) (int, error) {
	if b.store == nil {
		return 0, nil
	}

	elements, err := b.store.ListElements()
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	for _, rec := range elements {
		if _, ok := b.elements[rec.ID]; !ok {
			b.elements[rec.ID] = b.newElement(rec.ID, rec.Label)
		}
	}
	b.mu.Unlock()

	records, err := b.store.ListWidgets()
	if err != nil {
		return 0, err
	}
	// Widgets that had lost their element come back detached. Owners follow,
	// running ones last, so a stale owner never evicts a running one.
	sort.SliceStable(records, func(i, j int) bool { return restoreRank(records[i]) < restoreRank(records[j]) })

	restored := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		el, ok := b.Element(rec.ElementID)
		if !ok {
			log.Warnf("skipping widget %s: element %s is gone", rec.ID, rec.ElementID)
			continue
		}
		var opts widget.Options
		if rec.Config != "" {
			if err := json.Unmarshal([]byte(rec.Config), &opts); err != nil {
				log.Warnf("skipping widget %s: bad config: %v", rec.ID, err)
				continue
			}
		}

		anchor := time.UnixMilli(rec.AnchorMs)
		var w *widget.Widget
		if rec.Owned {
			w, err = widget.Resume(b.env, rec.ID, el, opts, anchor, rec.Running)
		} else {
			w, err = widget.ResumeDetached(b.env, rec.ID, el, opts, anchor)
		}
		if err != nil {
			log.Warnf("skipping widget %s: %v", rec.ID, err)
			continue
		}
		b.mu.Lock()
		b.widgets[rec.ID] = &entry{w: w, elementID: rec.ElementID, preset: rec.Preset}
		b.mu.Unlock()
		restored++
	}

	log.Infof("restored %d elements and %d widgets", len(elements), restored)
	return restored, nil
}

func restoreRank(rec db.WidgetRecord) int {
	switch {
	case !rec.Owned:
		return 0
	case !rec.Running:
		return 1
	default:
		return 2
	}
}

// Seed creates the layout's elements and widgets. Elements that already exist
// are left untouched along with their widgets.
func (b *Board) Seed(l *Layout) error {
	if l == nil {
		return nil
	}
	for _, seed := range l.Elements {
		if _, ok := b.Element(seed.ID); ok {
			continue
		}
		if _, err := b.AddElement(seed.ID, seed.Label); err != nil {
			return err
		}
		for _, ws := range seed.Widgets {
			if _, err := b.Attach(seed.ID, ws.Preset, ws.Options); err != nil {
				return fmt.Errorf("failed to seed widget on %s: %w", seed.ID, err)
			}
		}
	}
	return nil
}

// StopAll persists every widget as it is and then stops it. Running widgets
// are saved as running, so Restore resumes them after a restart.
func (b *Board) StopAll() {
	entries := b.entries()
	for _, e := range entries {
		b.saveEntry(e)
	}
	for _, e := range entries {
		b.env.Registry.Release(e.w)
	}
	log.Infof("stopped %d widgets", len(entries))
}

// ---------------------------------------------------------------------------
// Persistence and events
// ---------------------------------------------------------------------------

func (b *Board) persistWidget(id string) {
	if b.store == nil {
		return
	}
	e, err := b.lookup(id)
	if err != nil {
		return
	}
	b.saveEntry(e)
}

// persistElement saves every widget on elementID. A hand-off changes the
// ownership of two widgets at once.
func (b *Board) persistElement(elementID string) {
	if b.store == nil {
		return
	}
	for _, e := range b.entries() {
		if e.elementID == elementID {
			b.saveEntry(e)
		}
	}
}

func (b *Board) saveEntry(e *entry) {
	if b.store == nil {
		return
	}
	rec, err := record(e)
	if err != nil {
		log.Errorf("failed to encode widget %s: %v", e.w.ID(), err)
		return
	}
	if err := b.store.SaveWidget(rec); err != nil {
		log.Errorf("failed to persist widget %s: %v", e.w.ID(), err)
	}
}

func record(e *entry) (db.WidgetRecord, error) {
	st := e.w.State()
	cfg, err := json.Marshal(st.Config.Options())
	if err != nil {
		return db.WidgetRecord{}, err
	}
	return db.WidgetRecord{
		ID:        st.ID,
		ElementID: e.elementID,
		Preset:    e.preset,
		Config:    string(cfg),
		Running:   st.Running,
		Owned:     st.Owned,
		AnchorMs:  st.Anchor.UnixMilli(),
	}, nil
}

func (b *Board) now() time.Time {
	if b.env.Clock == nil {
		return time.Now().UTC()
	}
	return b.env.Clock.Now().UTC()
}

func (b *Board) publish(e domain.Event) {
	if b.env.Events == nil {
		return
	}
	if err := b.env.Events.Publish(e); err != nil {
		log.Warnf("failed to publish %s for %s: %v", e.EventType, e.AggregateID, err)
	}
}

func (b *Board) publishElement(t domain.EventType, el *Element) {
	b.publish(domain.Event{
		AggregateType: domain.AggregateElement,
		AggregateID:   el.id,
		EventType:     t,
		EventData:     map[string]interface{}{"label": el.label},
		CreatedAt:     b.now(),
	})
}

func (b *Board) publishWidgetRemoved(w *widget.Widget) {
	st := w.State()
	b.publish(domain.Event{
		AggregateType: domain.AggregateWidget,
		AggregateID:   st.ID,
		EventType:     domain.WidgetRemoved,
		EventData: domain.WidgetEventData{
			HostID:   st.HostID,
			Mode:     string(st.Config.Mode),
			Mask:     st.Config.Mask,
			Running:  st.Running,
			AnchorMs: st.Anchor.UnixMilli(),
			Text:     st.Text,
		}.Map(),
		CreatedAt: b.now(),
	})
}
