// Package terminal hosts a timer widget in an interactive console. The
// rendered time is shown as the console prompt.
package terminal

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mescon/Tickarr/internal/widget"
)

// Prompt is a widget host whose text slot is the console prompt.
type Prompt struct {
	id       string
	onChange func(prompt string)

	mu   sync.Mutex
	text string
}

// NewPrompt creates a prompt host. onChange receives the formatted prompt
// after every render and may be nil.
func NewPrompt(id string, onChange func(prompt string)) *Prompt {
	return &Prompt{id: id, onChange: onChange}
}

func (p *Prompt) HostID() string { return p.id }

func (p *Prompt) SetText(text string) {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
	if p.onChange != nil {
		p.onChange(FormatPrompt(text))
	}
}

func (p *Prompt) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

// FormatPrompt renders the widget text as a prompt.
func FormatPrompt(text string) string {
	if text == "" {
		return "tickarr> "
	}
	return "[" + text + "] tickarr> "
}

// Console executes commands against a single widget.
type Console struct {
	w   *widget.Widget
	out io.Writer
}

func NewConsole(w *widget.Widget, out io.Writer) *Console {
	return &Console{w: w, out: out}
}

// Execute runs one input line. It returns false when the console should exit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		c.PrintHelp()
	case "start":
		c.w.Start()
		c.printState()
	case "stop":
		c.w.Stop()
		c.printState()
	case "update", "u":
		c.w.Update()
		c.printState()
	case "reset":
		opts, err := ParseOptions(args)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return true
		}
		c.w.Reset(opts)
		c.printState()
	case "status", "s":
		c.printStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) PrintHelp() {
	fmt.Fprintln(c.out, `
Tickarr Terminal Commands:
  start                 - Start (or re-arm) the timer
  stop                  - Stop the timer, keeping its value
  update                - Render the current value once
  reset [key=value ...] - Re-anchor the timer, optionally changing options:
                            mask=mm:ss  interval=500ms  type=count-down
                            initial=5m  autostart=false
  status                - Show the timer configuration
  quit                  - Exit`)
}

func (c *Console) printState() {
	st := c.w.State()
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(c.out, "%s (%s)\n", st.Text, state)
}

func (c *Console) printStatus() {
	st := c.w.State()
	fmt.Fprintf(c.out, "Widget:    %s\n", st.ID)
	fmt.Fprintf(c.out, "Text:      %s\n", st.Text)
	fmt.Fprintf(c.out, "Running:   %t\n", st.Running)
	fmt.Fprintf(c.out, "Type:      %s\n", st.Config.Mode)
	fmt.Fprintf(c.out, "Mask:      %s\n", st.Config.Mask)
	fmt.Fprintf(c.out, "Interval:  %s\n", st.Config.UpdateInterval)
	fmt.Fprintf(c.out, "Initial:   %s\n", st.Config.InitialTime)
	fmt.Fprintf(c.out, "AutoStart: %t\n", st.Config.AutoStart)
	fmt.Fprintf(c.out, "Anchor:    %s\n", st.Anchor.Format(time.RFC3339))
}

// ParseOptions parses key=value pairs into widget options. Durations accept
// Go syntax ("1m30s") or plain milliseconds.
func ParseOptions(args []string) (widget.Options, error) {
	var opts widget.Options
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return widget.Options{}, fmt.Errorf("expected key=value, got %q", arg)
		}

		switch strings.ToLower(key) {
		case "mask":
			opts.Mask = widget.Ptr(value)
		case "interval", "update_interval", "updateinterval":
			ms, err := parseMillis(value)
			if err != nil {
				return widget.Options{}, fmt.Errorf("interval: %w", err)
			}
			opts.UpdateInterval = widget.Ptr(ms)
		case "type", "mode":
			opts.Type = widget.Ptr(value)
		case "initial", "initial_time", "initialtime":
			ms, err := parseMillis(value)
			if err != nil {
				return widget.Options{}, fmt.Errorf("initial: %w", err)
			}
			opts.InitialTime = widget.Ptr(ms)
		case "autostart", "auto_start":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return widget.Options{}, fmt.Errorf("autostart: %w", err)
			}
			opts.AutoStart = widget.Ptr(b)
		default:
			return widget.Options{}, fmt.Errorf("unknown option %q", key)
		}
	}
	return opts, nil
}

func parseMillis(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d.Milliseconds(), nil
}
