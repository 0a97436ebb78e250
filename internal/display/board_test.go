package display

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/testutil"
	"github.com/mescon/Tickarr/internal/widget"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type boardFixture struct {
	clock *testutil.MockClock
	bus   *testutil.MockEventBus
	repo  *db.Repository
	board *Board
}

func newBoardFixture(t *testing.T) *boardFixture {
	t.Helper()
	f := &boardFixture{
		clock: testutil.NewMockClockAt(t0),
		bus:   testutil.NewMockEventBus(),
		repo:  testutil.NewTestRepository(t),
	}
	f.board = f.newBoard()
	return f
}

func (f *boardFixture) newBoard() *Board {
	return NewBoard(BoardConfig{
		Env:      widget.Environment{Clock: f.clock, Events: f.bus},
		Store:    f.repo,
		Defaults: widget.Options{Mask: widget.Ptr("hh:mm:ss")},
		Presets: map[string]widget.Options{
			"standup": {
				Type:        widget.Ptr("count-down"),
				InitialTime: widget.Ptr(int64(90000)),
				Mask:        widget.Ptr("mm:ss"),
			},
		},
	})
}

func (f *boardFixture) storedWidget(t *testing.T, id string) db.WidgetRecord {
	t.Helper()
	recs, err := f.repo.ListWidgets()
	require.NoError(t, err)
	for _, r := range recs {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("widget %s not persisted", id)
	return db.WidgetRecord{}
}

func TestBoard_AddElement(t *testing.T) {
	f := newBoardFixture(t)

	el, err := f.board.AddElement("lobby", "Lobby screen")
	require.NoError(t, err)
	assert.Equal(t, "lobby", el.HostID())
	assert.True(t, el.Valid())

	_, err = f.board.AddElement("lobby", "again")
	assert.ErrorIs(t, err, ErrElementExists)

	generated, err := f.board.AddElement("", "Side")
	require.NoError(t, err)
	assert.Len(t, generated.HostID(), 36)

	recs, err := f.repo.ListElements()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 2, f.bus.EventCount(domain.ElementAdded))
	assert.Len(t, f.board.Elements(), 2)
}

func TestBoard_AttachErrors(t *testing.T) {
	f := newBoardFixture(t)

	_, err := f.board.Attach("missing", "", widget.Options{})
	assert.ErrorIs(t, err, ErrElementNotFound)

	_, err = f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	_, err = f.board.Attach("lobby", "retro", widget.Options{})
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestBoard_AttachLayersDefaultsPresetAndOptions(t *testing.T) {
	f := newBoardFixture(t)
	el, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)

	w, err := f.board.Attach("lobby", "standup", widget.Options{AutoStart: widget.Ptr(false)})
	require.NoError(t, err)

	cfg := w.Config()
	assert.Equal(t, widget.CountDown, cfg.Mode)
	assert.Equal(t, "mm:ss", cfg.Mask)
	assert.False(t, w.Running())
	assert.Equal(t, "01:30", el.Text())

	rec := f.storedWidget(t, w.ID())
	assert.Equal(t, "lobby", rec.ElementID)
	assert.Equal(t, "standup", rec.Preset)
	assert.False(t, rec.Running)
	assert.Equal(t, t0.Add(90*time.Second).UnixMilli(), rec.AnchorMs)

	info, err := f.board.WidgetInfo(w.ID())
	require.NoError(t, err)
	assert.Equal(t, "standup", info.Preset)
	assert.Equal(t, "lobby", info.HostID)
}

func TestBoard_SecondWidgetEvictsAndPersistsFirst(t *testing.T) {
	f := newBoardFixture(t)
	el, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)

	first, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)
	assert.True(t, f.storedWidget(t, first.ID()).Running)

	second, err := f.board.Attach("lobby", "standup", widget.Options{})
	require.NoError(t, err)

	assert.False(t, first.Running())
	assert.False(t, first.Owned())
	assert.False(t, f.storedWidget(t, first.ID()).Running)
	assert.True(t, f.storedWidget(t, second.ID()).Running)

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, "01:20", el.Text())
}

func TestBoard_Operations(t *testing.T) {
	f := newBoardFixture(t)
	el, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	w, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	info, err := f.board.Stop(w.ID())
	require.NoError(t, err)
	assert.False(t, info.Running)
	assert.False(t, f.storedWidget(t, w.ID()).Running)

	f.clock.Advance(5 * time.Second)
	info, err = f.board.Update(w.ID())
	require.NoError(t, err)
	assert.Equal(t, "00:00:10", info.Text)
	assert.Equal(t, "00:00:10", el.Text())

	info, err = f.board.Reset(w.ID(), widget.Options{Mask: widget.Ptr("mm:ss")})
	require.NoError(t, err)
	assert.Equal(t, "00:00", info.Text)
	assert.True(t, info.Running)
	assert.Equal(t, t0.Add(10*time.Second).UnixMilli(), f.storedWidget(t, w.ID()).AnchorMs)

	info, err = f.board.Start(w.ID())
	require.NoError(t, err)
	assert.True(t, info.Running)

	for _, op := range []func(string) (WidgetInfo, error){f.board.Start, f.board.Stop, f.board.Update} {
		_, err := op("nope")
		assert.ErrorIs(t, err, ErrWidgetNotFound)
	}
	_, err = f.board.Reset("nope", widget.Options{})
	assert.ErrorIs(t, err, ErrWidgetNotFound)
}

func TestBoard_StartTakesElementBack(t *testing.T) {
	f := newBoardFixture(t)
	_, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	first, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)
	second, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)

	_, err = f.board.Start(first.ID())
	require.NoError(t, err)

	owner, ok := f.board.Registry().Owner("lobby")
	require.True(t, ok)
	assert.Equal(t, first.ID(), owner.ID())
	assert.False(t, f.storedWidget(t, second.ID()).Running)
}

func TestBoard_FinishedCountdownIsPersisted(t *testing.T) {
	f := newBoardFixture(t)
	el, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	w, err := f.board.Attach("lobby", "", widget.Options{
		Type:        widget.Ptr("count-down"),
		InitialTime: widget.Ptr(int64(2000)),
	})
	require.NoError(t, err)
	assert.True(t, f.storedWidget(t, w.ID()).Running)

	f.clock.Advance(2 * time.Second)

	assert.Equal(t, "00:00:00", el.Text())
	assert.False(t, f.storedWidget(t, w.ID()).Running)
	assert.Equal(t, 1, f.bus.EventCount(domain.CountdownFinished))
}

func TestBoard_RemoveElementStopsOwner(t *testing.T) {
	f := newBoardFixture(t)
	el, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	w, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)

	require.NoError(t, f.board.RemoveElement("lobby"))

	assert.False(t, w.Running())
	assert.False(t, el.Valid())
	assert.Equal(t, 0, f.clock.PendingCount())
	_, ok := f.board.Widget(w.ID())
	assert.False(t, ok)
	_, ok = f.board.Registry().Owner("lobby")
	assert.False(t, ok)

	recs, err := f.repo.ListWidgets()
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 1, f.bus.EventCount(domain.WidgetRemoved))
	assert.Equal(t, 1, f.bus.EventCount(domain.ElementRemoved))

	assert.ErrorIs(t, f.board.RemoveElement("lobby"), ErrElementNotFound)
}

func TestBoard_RemoveWidgetKeepsText(t *testing.T) {
	f := newBoardFixture(t)
	el, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	w, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)
	f.clock.Advance(3 * time.Second)

	require.NoError(t, f.board.RemoveWidget(w.ID()))
	f.clock.Advance(3 * time.Second)

	assert.Equal(t, "00:00:03", el.Text())
	assert.False(t, w.Running())
	assert.Empty(t, f.board.Widgets())
	assert.ErrorIs(t, f.board.RemoveWidget(w.ID()), ErrWidgetNotFound)
}

func TestBoard_RestoreKeepsAbsoluteAnchor(t *testing.T) {
	f := newBoardFixture(t)
	_, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	w, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)
	f.clock.Advance(90 * time.Second)
	f.board.StopAll()
	assert.False(t, w.Running())

	f.clock.SetNow(t0.Add(2 * time.Minute))
	restored := f.newBoard()
	n, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	el, ok := restored.Element("lobby")
	require.True(t, ok)
	assert.Equal(t, "00:02:00", el.Text())

	rw, ok := restored.Widget(w.ID())
	require.True(t, ok)
	assert.True(t, rw.Running())
	assert.Equal(t, w.Config(), rw.Config())
}

func TestBoard_RestoreKeepsRunningOwner(t *testing.T) {
	f := newBoardFixture(t)
	_, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	running, err := f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)
	stopped, err := f.board.Attach("lobby", "", widget.Options{AutoStart: widget.Ptr(false)})
	require.NoError(t, err)
	_, err = f.board.Start(running.ID())
	require.NoError(t, err)
	f.board.StopAll()

	restored := f.newBoard()
	n, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rr, _ := restored.Widget(running.ID())
	rs, _ := restored.Widget(stopped.ID())
	assert.True(t, rr.Running())
	assert.True(t, rr.Owned())
	assert.False(t, rs.Owned())
}

func TestBoard_RestoreKeepsStoppedOwner(t *testing.T) {
	f := newBoardFixture(t)
	_, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	a, err := f.board.Attach("lobby", "", widget.Options{AutoStart: widget.Ptr(false)})
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	b, err := f.board.Attach("lobby", "", widget.Options{AutoStart: widget.Ptr(false)})
	require.NoError(t, err)
	assert.False(t, f.storedWidget(t, a.ID()).Owned, "the evicted widget is saved as detached")

	_, err = f.board.Start(a.ID())
	require.NoError(t, err)
	_, err = f.board.Stop(a.ID())
	require.NoError(t, err)
	assert.True(t, f.storedWidget(t, a.ID()).Owned)
	assert.False(t, f.storedWidget(t, b.ID()).Owned)
	f.board.StopAll()

	f.clock.Advance(50 * time.Second)
	restored := f.newBoard()
	n, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ra, _ := restored.Widget(a.ID())
	rb, _ := restored.Widget(b.ID())
	assert.True(t, ra.Owned())
	assert.False(t, rb.Owned())
	assert.False(t, ra.Running())
	assert.False(t, rb.Running())
	el, _ := restored.Element("lobby")
	assert.Equal(t, "00:01:00", el.Text())
	owner, ok := restored.Registry().Owner("lobby")
	require.True(t, ok)
	assert.Same(t, ra, owner)
}

func TestBoard_RestoreDetachedSavedAfterOwner(t *testing.T) {
	f := newBoardFixture(t)
	require.NoError(t, f.repo.SaveElement(db.ElementRecord{ID: "lobby"}))
	// The owner is listed first, so the detached widget is restored after it.
	require.NoError(t, f.repo.SaveWidget(db.WidgetRecord{
		ID: "a-owner", ElementID: "lobby", Config: `{"mask":"mm:ss"}`,
		Owned: true, AnchorMs: t0.Add(-time.Minute).UnixMilli(),
	}))
	require.NoError(t, f.repo.SaveWidget(db.WidgetRecord{
		ID: "z-detached", ElementID: "lobby", Config: `{"mask":"mm:ss"}`,
		Owned: false, AnchorMs: t0.Add(-2 * time.Minute).UnixMilli(),
	}))

	_, err := f.board.Restore(context.Background())
	require.NoError(t, err)

	owner, ok := f.board.Registry().Owner("lobby")
	require.True(t, ok)
	assert.Equal(t, "a-owner", owner.ID())
	el, _ := f.board.Element("lobby")
	assert.Equal(t, "01:00", el.Text())

	detached, _ := f.board.Widget("z-detached")
	assert.Equal(t, "02:00", detached.Text())
	assert.Zero(t, f.bus.EventCount(domain.WidgetEvicted))
}

func TestBoard_RestoreHonoursContext(t *testing.T) {
	f := newBoardFixture(t)
	_, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	_, err = f.board.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.newBoard().Restore(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoard_Seed(t *testing.T) {
	f := newBoardFixture(t)
	layout, err := ParseLayout([]byte(`
presets:
  standup:
    type: count-down
    initial_time: 900000
    mask: "mm:ss"
elements:
  - id: lobby
    label: Lobby
    widgets:
      - preset: standup
  - id: desk
    label: Desk
    widgets:
      - mask: "hh:mm"
        auto_start: false
`))
	require.NoError(t, err)
	f.board.presets = layout.Presets

	require.NoError(t, f.board.Seed(layout))
	require.NoError(t, f.board.Seed(layout))

	assert.Len(t, f.board.Elements(), 2)
	assert.Len(t, f.board.Widgets(), 2)

	lobby, _ := f.board.Element("lobby")
	desk, _ := f.board.Element("desk")
	assert.Equal(t, "15:00", lobby.Text())
	assert.Equal(t, "00:00", desk.Text())
}

func TestBoard_OnRender(t *testing.T) {
	f := newBoardFixture(t)
	var renders []string
	f.board.OnRender(func(elementID, text string) {
		renders = append(renders, elementID+"="+text)
	})

	_, err := f.board.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	_, err = f.board.Attach("lobby", "", widget.Options{Mask: widget.Ptr("ss")})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)

	assert.Contains(t, renders, "lobby=00")
	assert.Equal(t, "lobby=02", renders[len(renders)-1])
}

func TestBoard_WithoutStore(t *testing.T) {
	b := NewBoard(BoardConfig{Env: widget.Environment{Clock: testutil.NewMockClockAt(t0)}})

	_, err := b.AddElement("lobby", "Lobby")
	require.NoError(t, err)
	w, err := b.Attach("lobby", "", widget.Options{})
	require.NoError(t, err)
	_, err = b.Stop(w.ID())
	require.NoError(t, err)

	n, err := b.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, b.RemoveElement("lobby"))
	assert.Empty(t, b.PresetNames())
}

func TestBoard_Presets(t *testing.T) {
	f := newBoardFixture(t)
	assert.Equal(t, []string{"standup"}, f.board.PresetNames())

	p := f.board.Presets()
	delete(p, "standup")
	assert.Len(t, f.board.Presets(), 1)
	assert.Equal(t, "hh:mm:ss", *f.board.Defaults().Mask)
}
