package terminal

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Tickarr/internal/testutil"
	"github.com/mescon/Tickarr/internal/widget"
)

func newConsole(t *testing.T, opts widget.Options) (*Console, *Prompt, *testutil.MockClock, *bytes.Buffer) {
	t.Helper()
	clk := testutil.NewMockClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	var prompts []string
	prompt := NewPrompt("terminal", func(p string) { prompts = append(prompts, p) })
	w, err := widget.New(widget.Environment{Clock: clk}, prompt, opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	out := &bytes.Buffer{}
	return NewConsole(w, out), prompt, clk, out
}

func TestFormatPrompt(t *testing.T) {
	assert.Equal(t, "tickarr> ", FormatPrompt(""))
	assert.Equal(t, "[01:30] tickarr> ", FormatPrompt("01:30"))
}

func TestPrompt_SetTextNotifies(t *testing.T) {
	var got string
	p := NewPrompt("terminal", func(s string) { got = s })

	p.SetText("00:05")

	assert.Equal(t, "terminal", p.HostID())
	assert.Equal(t, "00:05", p.Text())
	assert.Equal(t, "[00:05] tickarr> ", got)
}

func TestConsole_StartStopUpdate(t *testing.T) {
	c, prompt, clk, out := newConsole(t, widget.Options{Mask: widget.Ptr("mm:ss"), AutoStart: widget.Ptr(false)})
	assert.Equal(t, "00:00", prompt.Text())

	assert.True(t, c.Execute("start"))
	assert.Contains(t, out.String(), "running")

	clk.Advance(3 * time.Second)
	assert.Equal(t, "00:03", prompt.Text())

	out.Reset()
	assert.True(t, c.Execute("stop"))
	assert.Contains(t, out.String(), "00:03 (stopped)")

	clk.Advance(5 * time.Second)
	assert.Equal(t, "00:03", prompt.Text(), "stopped widget should not tick")

	assert.True(t, c.Execute("update"))
	assert.Equal(t, "00:08", prompt.Text())
}

func TestConsole_ResetWithOptions(t *testing.T) {
	c, prompt, _, out := newConsole(t, widget.Options{AutoStart: widget.Ptr(false)})

	assert.True(t, c.Execute("reset mask=mm:ss type=count-down initial=1m30s autostart=false"))
	assert.Equal(t, "01:30", prompt.Text())
	assert.Contains(t, out.String(), "01:30 (stopped)")

	out.Reset()
	assert.True(t, c.Execute("reset bogus"))
	assert.Contains(t, out.String(), "Error:")
	assert.Equal(t, "01:30", prompt.Text(), "failed reset should leave the widget alone")
}

func TestConsole_StatusHelpUnknownQuit(t *testing.T) {
	c, _, _, out := newConsole(t, widget.Options{Mask: widget.Ptr("ss")})

	assert.True(t, c.Execute("status"))
	assert.Contains(t, out.String(), "Mask:      ss")
	assert.Contains(t, out.String(), "Running:   true")

	out.Reset()
	assert.True(t, c.Execute("help"))
	assert.Contains(t, out.String(), "reset [key=value ...]")

	out.Reset()
	assert.True(t, c.Execute("dance"))
	assert.Contains(t, out.String(), "Unknown command: dance")

	assert.True(t, c.Execute("   "))
	assert.False(t, c.Execute("quit"))
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]string{"mask=h:mm", "interval=250", "type=countdown", "initial=2m", "autostart=true"})
	require.NoError(t, err)

	require.NotNil(t, opts.Mask)
	assert.Equal(t, "h:mm", *opts.Mask)
	assert.Equal(t, int64(250), *opts.UpdateInterval)
	assert.Equal(t, "countdown", *opts.Type)
	assert.Equal(t, int64(120000), *opts.InitialTime)
	assert.True(t, *opts.AutoStart)

	empty, err := ParseOptions(nil)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestParseOptions_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"mask"},
		{"colour=red"},
		{"interval=soon"},
		{"initial=later"},
		{"autostart=maybe"},
	} {
		_, err := ParseOptions(args)
		assert.Error(t, err, "%v", args)
	}
}
