package widget

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/mescon/Tickarr/internal/mask"
)

// Mode selects whether a widget measures elapsed or remaining time.
type Mode string

const (
	CountUp   Mode = "count-up"
	CountDown Mode = "count-down"
)

// DefaultUpdateInterval is the tick interval used when none (or a non-positive one) is configured.
const DefaultUpdateInterval = time.Second

// ParseMode maps a configured type to a Mode. Unrecognized values fall back to CountUp.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count-down", "countdown":
		return CountDown
	default:
		return CountUp
	}
}

// Config is the effective configuration of a widget. Values are immutable;
// Merge returns a new Config.
type Config struct {
	Mask           string
	UpdateInterval time.Duration
	Mode           Mode
	InitialTime    time.Duration
	AutoStart      bool
}

type configJSON struct {
	Mask           string `json:"mask"`
	UpdateInterval int64  `json:"updateInterval"`
	Type           Mode   `json:"type"`
	InitialTime    int64  `json:"initialTime"`
	AutoStart      bool   `json:"autoStart"`
}

// MarshalJSON encodes c using the public configuration names, durations in milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		Mask:           c.Mask,
		UpdateInterval: c.UpdateInterval.Milliseconds(),
		Type:           c.Mode,
		InitialTime:    c.InitialTime.Milliseconds(),
		AutoStart:      c.AutoStart,
	})
}

// DefaultConfig returns the configuration a widget starts from.
func DefaultConfig() Config {
	return Config{
		Mask:           mask.Default,
		UpdateInterval: DefaultUpdateInterval,
		Mode:           CountUp,
		AutoStart:      true,
	}
}

// Options is a partial configuration. Nil fields keep the current value.
// Durations are expressed in milliseconds, matching the public configuration surface.
type Options struct {
	Mask           *string `json:"mask,omitempty" yaml:"mask,omitempty"`
	UpdateInterval *int64  `json:"updateInterval,omitempty" yaml:"update_interval,omitempty"`
	Type           *string `json:"type,omitempty" yaml:"type,omitempty"`
	InitialTime    *int64  `json:"initialTime,omitempty" yaml:"initial_time,omitempty"`
	AutoStart      *bool   `json:"autoStart,omitempty" yaml:"auto_start,omitempty"`
}

// Ptr returns a pointer to v. Handy for building Options literals.
func Ptr[T any](v T) *T {
	return &v
}

// IsZero reports whether o sets no fields.
func (o Options) IsZero() bool {
	return o.Mask == nil && o.UpdateInterval == nil && o.Type == nil && o.InitialTime == nil && o.AutoStart == nil
}

// Overlay returns o with every field set in top replacing its counterpart.
func (o Options) Overlay(top Options) Options {
	if top.Mask != nil {
		o.Mask = top.Mask
	}
	if top.UpdateInterval != nil {
		o.UpdateInterval = top.UpdateInterval
	}
	if top.Type != nil {
		o.Type = top.Type
	}
	if top.InitialTime != nil {
		o.InitialTime = top.InitialTime
	}
	if top.AutoStart != nil {
		o.AutoStart = top.AutoStart
	}
	return o
}

// Merge applies o over c and normalizes the result.
func (c Config) Merge(o Options) Config {
	if o.Mask != nil {
		c.Mask = *o.Mask
	}
	if o.UpdateInterval != nil {
		c.UpdateInterval = millis(*o.UpdateInterval)
	}
	if o.Type != nil {
		c.Mode = ParseMode(*o.Type)
	}
	if o.InitialTime != nil {
		c.InitialTime = millis(*o.InitialTime)
	}
	if o.AutoStart != nil {
		c.AutoStart = *o.AutoStart
	}
	return c.normalize()
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// millis converts ms to a duration, saturating instead of wrapping around.
func millis(ms int64) time.Duration {
	switch {
	case ms > maxMillis:
		ms = maxMillis
	case ms < -maxMillis:
		ms = -maxMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// Options returns c as a fully populated Options value.
func (c Config) Options() Options {
	return Options{
		Mask:           Ptr(c.Mask),
		UpdateInterval: Ptr(c.UpdateInterval.Milliseconds()),
		Type:           Ptr(string(c.Mode)),
		InitialTime:    Ptr(c.InitialTime.Milliseconds()),
		AutoStart:      Ptr(c.AutoStart),
	}
}

func (c Config) normalize() Config {
	if c.Mask == "" {
		c.Mask = mask.Default
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.Mode != CountDown {
		c.Mode = CountUp
	}
	return c
}
