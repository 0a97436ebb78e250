// Package notifier sends push notifications for widget lifecycle events
// through shoutrrr.
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/eventbus"
	"github.com/mescon/Tickarr/internal/logger"
)

// DefaultEvents are the events notified when Config.Events is empty.
var DefaultEvents = []domain.EventType{domain.CountdownFinished}

// Config selects where and what to notify.
type Config struct {
	URLs     []string
	Events   []domain.EventType
	Throttle time.Duration // minimum gap between notifications for the same widget
}

// LabelFunc returns the display label for an element id.
type LabelFunc func(elementID string) string

type sendFunc func(url, message string) error

func shoutrrrSend(url, message string) error {
	return shoutrrr.Send(url, message)
}

// Notifier sends one message per configured URL for each subscribed event.
type Notifier struct {
	urls     []string
	events   []domain.EventType
	throttle time.Duration
	labels   LabelFunc
	send     sendFunc
	now      func() time.Time

	mu       sync.Mutex // guards lastSent, stopped and wg.Add
	lastSent map[string]time.Time
	stopped  bool
	wg       sync.WaitGroup
}

// NewNotifier validates cfg. A nil labels func uses the element id as label.
func NewNotifier(cfg Config, labels LabelFunc) (*Notifier, error) {
	urls := make([]string, 0, len(cfg.URLs))
	for _, raw := range cfg.URLs {
		u, err := NormalizeURL(raw)
		if err != nil {
			return nil, err
		}
		if u == "" {
			continue
		}
		if err := ValidateURL(u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}

	events := cfg.Events
	if len(events) == 0 {
		events = DefaultEvents
	}
	if labels == nil {
		labels = func(id string) string { return id }
	}

	return &Notifier{
		urls:     urls,
		events:   events,
		throttle: cfg.Throttle,
		labels:   labels,
		send:     shoutrrrSend,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}, nil
}

// Enabled reports whether any URL is configured.
func (n *Notifier) Enabled() bool { return len(n.urls) > 0 }

// Start subscribes to the configured events.
func (n *Notifier) Start(eb eventbus.Publisher) {
	if !n.Enabled() {
		logger.Infof("Notifier disabled: no notification URLs configured")
		return
	}
	for _, eventType := range n.events {
		eb.Subscribe(eventType, n.handleEvent)
	}
	logger.Infof("Notifier started with %d targets", len(n.urls))
}

// Stop ignores further events and waits for in-flight sends.
func (n *Notifier) Stop() {
	n.mu.Lock()
	n.stopped = true
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) handleEvent(ev domain.Event) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	if !n.canSendLocked(ev.AggregateID) {
		n.mu.Unlock()
		logger.Debugf("Throttled notification for %s %s", ev.EventType, ev.AggregateID)
		return
	}
	n.wg.Add(len(n.urls))
	n.mu.Unlock()

	message := n.formatMessage(ev)
	for _, url := range n.urls {
		go func(url string) {
			defer n.wg.Done()
			if err := n.send(url, message); err != nil {
				logger.Errorf("Failed to send notification for %s: %v", ev.AggregateID, err)
				return
			}
			logger.Debugf("Sent notification: %s", message)
		}(url)
	}
}

// canSendLocked records the attempt and reports whether the throttle window
// has passed. n.mu must be held.
func (n *Notifier) canSendLocked(key string) bool {
	now := n.now()
	if last, ok := n.lastSent[key]; ok && n.throttle > 0 && now.Sub(last) < n.throttle {
		return false
	}
	n.lastSent[key] = now
	return true
}

func (n *Notifier) formatMessage(ev domain.Event) string {
	label := n.labels(ev.GetStringOr("host_id", ev.AggregateID))

	switch ev.EventType {
	case domain.CountdownFinished:
		return fmt.Sprintf("%s: countdown finished", label)
	case domain.WidgetEvicted:
		return fmt.Sprintf("%s: timer replaced by another widget", label)
	case domain.WidgetStarted:
		return fmt.Sprintf("%s: timer started", label)
	case domain.WidgetStopped:
		return fmt.Sprintf("%s: timer stopped at %s", label, ev.GetStringOr("text", ""))
	case domain.WidgetReset:
		return fmt.Sprintf("%s: timer reset", label)
	default:
		return fmt.Sprintf("%s: %s", label, ev.EventType)
	}
}
