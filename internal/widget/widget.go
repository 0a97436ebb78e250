// Package widget implements the timer widget: a count-up or count-down clock that
// periodically renders its duration into a host element through a mask.
//
// A widget is a scoped resource. Its periodic callback keeps running until Stop is
// called (or a count-down reaches zero), so whoever attaches a widget must stop it
// when the host goes away.
package widget

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/Tickarr/internal/clock"
	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/eventbus"
	"github.com/mescon/Tickarr/internal/logger"
	"github.com/mescon/Tickarr/internal/mask"
)

var log = logger.Named("widget")

// Host is a display target with a single text slot.
type Host interface {
	HostID() string
	SetText(text string)
}

// validator is implemented by hosts that can tell whether they are a genuine display target.
type validator interface {
	Valid() bool
}

// ErrInvalidHost is matched by every *InvalidHostError.
var ErrInvalidHost = errors.New("invalid host")

// InvalidHostError is returned by New when the host cannot carry a widget.
type InvalidHostError struct {
	HostID string
	Reason string
}

func (e *InvalidHostError) Error() string {
	if e.HostID == "" {
		return fmt.Sprintf("invalid host: %s", e.Reason)
	}
	return fmt.Sprintf("invalid host %q: %s", e.HostID, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidHost) match.
func (e *InvalidHostError) Is(target error) bool {
	return target == ErrInvalidHost
}

// Environment holds the collaborators a widget needs from its host environment.
type Environment struct {
	Clock    clock.Clock
	Registry *Registry
	Events   eventbus.Publisher // optional
}

// Widget is a timer bound to one host. All methods are safe for concurrent use
// and return the widget to allow chaining.
type Widget struct {
	id   string
	host Host
	env  Environment

	mu      sync.Mutex
	cfg     Config
	mask    *mask.Mask
	anchor  time.Time
	running bool
	owned   bool
	timer   clock.Timer
	gen     uint64 // bumped on every stop; stale ticks compare against it
	text    string
}

// State is a point-in-time view of a widget.
type State struct {
	ID      string    `json:"id"`
	HostID  string    `json:"host_id"`
	Config  Config    `json:"config"`
	Running bool      `json:"running"`
	Owned   bool      `json:"owned"`
	Anchor  time.Time `json:"anchor"`
	Text    string    `json:"text"`
}

// New validates host, takes it over from any widget currently attached to it,
// and resets the new widget with opts merged over DefaultConfig.
func New(env Environment, host Host, opts Options) (*Widget, error) {
	return NewWithID(env, uuid.NewString(), host, opts)
}

// NewWithID is New with a caller-chosen widget id.
func NewWithID(env Environment, id string, host Host, opts Options) (*Widget, error) {
	w, err := attach(env, id, host, opts)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	created := w.eventLocked(domain.WidgetCreated)
	w.mu.Unlock()
	w.publish(created)

	return w.Reset(Options{}), nil
}

// Resume re-creates a persisted widget. Unlike New it keeps anchor as given
// instead of re-anchoring at now, renders once, and starts only when running is set.
func Resume(env Environment, id string, host Host, opts Options, anchor time.Time, running bool) (*Widget, error) {
	w, err := attach(env, id, host, opts)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.anchor = anchor
	events := w.updateLocked()
	w.mu.Unlock()
	w.publish(events...)

	if running {
		w.Start()
	}
	return w, nil
}

// ResumeDetached re-creates a persisted widget that had lost its host to another
// widget. It does not take the host: its text is computed but not written, and it
// stays stopped until Start claims the host back.
func ResumeDetached(env Environment, id string, host Host, opts Options, anchor time.Time) (*Widget, error) {
	w, err := build(env, id, host, opts)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.anchor = anchor
	w.updateLocked()
	w.mu.Unlock()
	return w, nil
}

// attach validates host, builds the widget and hands the host over to it.
func attach(env Environment, id string, host Host, opts Options) (*Widget, error) {
	w, err := build(env, id, host, opts)
	if err != nil {
		return nil, err
	}

	ev := w.env.Registry.claim(w, func() {
		w.mu.Lock()
		w.owned = true
		w.mu.Unlock()
	})
	ev.publish()
	return w, nil
}

// build validates host and creates an unowned, stopped widget anchored at now.
func build(env Environment, id string, host Host, opts Options) (*Widget, error) {
	if err := validateHost(host); err != nil {
		return nil, err
	}
	if env.Clock == nil {
		env.Clock = clock.NewRealClock()
	}
	if env.Registry == nil {
		env.Registry = NewRegistry()
	}

	cfg := DefaultConfig().Merge(opts)
	return &Widget{
		id:     id,
		host:   host,
		env:    env,
		cfg:    cfg,
		mask:   mask.Compile(cfg.Mask),
		anchor: env.Clock.Now(),
	}, nil
}

func validateHost(host Host) error {
	if host == nil {
		return &InvalidHostError{Reason: "host is nil"}
	}
	id := host.HostID()
	if id == "" {
		return &InvalidHostError{Reason: "host has no id"}
	}
	if v, ok := host.(validator); ok && !v.Valid() {
		return &InvalidHostError{HostID: id, Reason: "not a display target"}
	}
	return nil
}

// Start takes the host (evicting any other owner), schedules the periodic
// callback and renders once. Starting a running widget re-arms it.
func (w *Widget) Start() *Widget {
	var events []domain.Event
	ev := w.env.Registry.claim(w, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.stopLocked()
		w.owned = true
		w.scheduleLocked()
		events = append(events, w.eventLocked(domain.WidgetStarted))
		events = append(events, w.updateLocked()...)
	})
	ev.publish()
	w.publish(events...)
	return w
}

// Stop cancels the periodic callback. State is kept so the widget can be restarted.
// Stopping a stopped widget does nothing.
func (w *Widget) Stop() *Widget {
	w.mu.Lock()
	var events []domain.Event
	if w.stopLocked() {
		events = append(events, w.eventLocked(domain.WidgetStopped))
	}
	w.mu.Unlock()
	w.publish(events...)
	return w
}

// Reset merges opts over the current configuration, re-anchors the widget at
// now + InitialTime, stops it, renders once, and starts it again when AutoStart is set.
func (w *Widget) Reset(opts Options) *Widget {
	w.mu.Lock()
	w.cfg = w.cfg.Merge(opts)
	w.mask = mask.Compile(w.cfg.Mask)
	w.anchor = w.env.Clock.Now().Add(w.cfg.InitialTime)
	w.stopLocked()
	events := w.updateLocked()
	events = append(events, w.eventLocked(domain.WidgetReset))
	autoStart := w.cfg.AutoStart
	w.mu.Unlock()

	w.publish(events...)
	if autoStart {
		w.Start()
	}
	return w
}

// Update recomputes the duration and renders it into the host.
// A count-down that has reached zero stops itself.
func (w *Widget) Update() *Widget {
	w.mu.Lock()
	events := w.updateLocked()
	w.mu.Unlock()
	w.publish(events...)
	return w
}

func (w *Widget) tick(gen uint64) {
	w.mu.Lock()
	if !w.running || gen != w.gen {
		w.mu.Unlock()
		return
	}
	events := w.updateLocked()
	w.mu.Unlock()
	w.publish(events...)
}

func (w *Widget) scheduleLocked() {
	gen := w.gen
	w.timer = w.env.Clock.Every(w.cfg.UpdateInterval, func() { w.tick(gen) })
	w.running = true
}

// stopLocked cancels the schedule and reports whether the widget was running.
func (w *Widget) stopLocked() bool {
	if !w.running {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.running = false
	w.gen++
	return true
}

func (w *Widget) updateLocked() []domain.Event {
	now := w.env.Clock.Now()

	var d time.Duration
	if w.cfg.Mode == CountDown {
		d = w.anchor.Sub(now)
	} else {
		d = now.Sub(w.anchor)
	}
	if d < 0 {
		d = 0
	}

	w.text = w.mask.Format(d)
	if w.owned {
		w.host.SetText(w.text)
	}

	if w.cfg.Mode == CountDown && d == 0 && w.stopLocked() {
		return []domain.Event{w.eventLocked(domain.CountdownFinished)}
	}
	return nil
}

// evict is called by the registry when another widget takes the host.
func (w *Widget) evict() domain.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.owned = false
	return w.eventLocked(domain.WidgetEvicted)
}

func (w *Widget) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.owned = false
}

func (w *Widget) eventLocked(eventType domain.EventType) domain.Event {
	return domain.Event{
		AggregateType: domain.AggregateWidget,
		AggregateID:   w.id,
		EventType:     eventType,
		EventData: domain.WidgetEventData{
			HostID:   w.host.HostID(),
			Mode:     string(w.cfg.Mode),
			Mask:     w.cfg.Mask,
			Running:  w.running,
			AnchorMs: w.anchor.UnixMilli(),
			Text:     w.text,
		}.Map(),
		CreatedAt: w.env.Clock.Now().UTC(),
	}
}

func (w *Widget) publish(events ...domain.Event) {
	if w.env.Events == nil {
		return
	}
	for _, e := range events {
		if err := w.env.Events.Publish(e); err != nil {
			log.Warnf("failed to publish %s for %s: %v", e.EventType, w.id, err)
		}
	}
}

func (ev *eviction) publish() {
	if ev == nil {
		return
	}
	ev.widget.publish(ev.event)
}

// ID returns the widget's unique id.
func (w *Widget) ID() string { return w.id }

// Host returns the host the widget renders into.
func (w *Widget) Host() Host { return w.host }

// HostID returns the id of the widget's host.
func (w *Widget) HostID() string { return w.host.HostID() }

// Running reports whether a periodic callback is scheduled.
func (w *Widget) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Owned reports whether the widget still owns its host.
func (w *Widget) Owned() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owned
}

// Config returns the effective configuration.
func (w *Widget) Config() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// Anchor returns the instant the duration is measured from (count-up) or to (count-down).
func (w *Widget) Anchor() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.anchor
}

// Text returns the last rendered text.
func (w *Widget) Text() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.text
}

// State returns a consistent snapshot of the widget.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		ID:      w.id,
		HostID:  w.host.HostID(),
		Config:  w.cfg,
		Running: w.running,
		Owned:   w.owned,
		Anchor:  w.anchor,
		Text:    w.text,
	}
}
