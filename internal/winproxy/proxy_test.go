package winproxy

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/wintile/internal/commands"
	"github.com/1broseidon/wintile/internal/platform"
	"github.com/1broseidon/wintile/internal/platform/platformtest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t     *testing.T
	clock *fakeClock
	fake  *platformtest.Fake
	queue *commands.Queue
	reg   *Registry
}

func newHarness(t *testing.T, native func(*platformtest.Fake) platform.NativeAPI) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	fake := platformtest.New()
	queue := commands.NewQueue("proxy", commands.Config{Logger: logger, Now: clock.Now})

	var api platform.NativeAPI = fake
	if native != nil {
		api = native(fake)
	}
	reg := NewRegistry(Config{
		Logger: logger,
		Native: api,
		Queue:  queue,
		Layout: LayoutConfig{InnerMargin: 10, OuterMargin: 4, MaxAttempts: DefaultMaxAttempts},
		Now:    clock.Now,
	})
	return &harness{t: t, clock: clock, fake: fake, queue: queue, reg: reg}
}

func tiledWindow() platformtest.Window {
	return platformtest.Window{
		Title:   "editor",
		Class:   "Code",
		Visible: true,
		Rect:    platform.RectXYWH(50, 50, 640, 480),
		Style:   platform.StyleSizeBox | platform.StyleCaption | platform.StyleSysMenu,
		ExStyle: platform.ExStyleAppWindow,
	}
}

// track adds a window, registers it and runs its initializing update.
func (h *harness) track(handle platform.Handle, w platformtest.Window) *Proxy {
	h.t.Helper()
	h.fake.Add(handle, w)
	if _, err := h.reg.Refresh(); err != nil {
		h.t.Fatalf("Refresh() error: %v", err)
	}
	h.reg.UpdateAll()
	p, ok := h.reg.Get(handle)
	if !ok {
		h.t.Fatalf("proxy for %s not registered", handle)
	}
	if !p.Valid() {
		h.t.Fatalf("proxy for %s invalid after init", handle)
	}
	return p
}

func opsNamed(calls []platformtest.Call, op string) []platformtest.Call {
	var out []platformtest.Call
	for _, c := range calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func TestProxy_TwoSetLayoutsApplyOnlyTheSecond(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(1, tiledWindow())
	h.fake.ResetCalls()

	first := LayoutIntent{Rect: platform.RectXYWH(0, 0, 500, 500), Margin: UniformMargin(0), SkipInsets: true}
	second := LayoutIntent{Rect: platform.RectXYWH(960, 0, 960, 1080), Margin: UniformMargin(0), SkipInsets: true}
	if err := p.SetLayout(first); err != nil {
		t.Fatalf("SetLayout() error: %v", err)
	}
	if err := p.SetLayout(second); err != nil {
		t.Fatalf("SetLayout() error: %v", err)
	}

	h.reg.UpdateAll()
	h.reg.UpdateAll()

	sets := opsNamed(h.fake.Calls(), "SetPos")
	if len(sets) != 1 {
		t.Fatalf("SetPos calls = %d, want 1: %v", len(sets), sets)
	}
	if sets[0].Rect != second.Rect {
		t.Fatalf("applied %v, want %v", sets[0].Rect, second.Rect)
	}
	if sets[0].Z != platform.ZBottom || sets[0].Flags != platform.PosNoActivate {
		t.Fatalf("SetPos z=%v flags=%v, want bottom and no-activate", sets[0].Z, sets[0].Flags)
	}
	if got := p.Info().Rect; got != second.Rect {
		t.Fatalf("published rect %v, want %v", got, second.Rect)
	}
	if res := p.LastApply(); !res.Converged || res.Attempts != 1 {
		t.Fatalf("LastApply() = %+v, want converged on first attempt", res)
	}
}

func TestProxy_InvalidHandleMakesNoNativeCalls(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(7, tiledWindow())

	// Queued before the window disappears.
	if err := p.Hide(); err != nil {
		t.Fatalf("Hide() error: %v", err)
	}
	h.fake.Destroy(7)
	h.fake.ResetCalls()

	h.reg.UpdateAll()
	if p.Valid() {
		t.Fatal("proxy still valid after window was destroyed")
	}

	h.queue.Drain()
	for _, call := range []func() error{
		p.Show,
		p.Close,
		p.Poke,
		p.Minimize,
		func() error { return p.SetAlwaysOnTop(true) },
		func() error { return p.SetLayout(LayoutIntent{Rect: platform.RectXYWH(0, 0, 10, 10)}) },
		func() error { return p.MoveFloatingTo(platform.RectXYWH(0, 0, 10, 10)) },
	} {
		if err := call(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("mutator on invalid proxy = %v, want ErrInvalid", err)
		}
	}
	h.queue.Drain()
	h.reg.UpdateAll()

	ch, err := h.reg.Refresh()
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if len(ch.Removed) != 1 || ch.Removed[0] != p {
		t.Fatalf("Refresh removed %v, want the invalid proxy", ch.Removed)
	}
	if calls := h.fake.Calls(); len(calls) != 0 {
		t.Fatalf("native mutations after invalidation: %v", calls)
	}
}

func TestProxy_LayoutRetriesUntilExhausted(t *testing.T) {
	h := newHarness(t, nil)
	w := tiledWindow()
	w.Clamp = func(r platform.Rect) platform.Rect {
		return platform.RectXYWH(r.Left, r.Top, min(r.Width(), 300), r.Height())
	}
	p := h.track(2, w)
	h.fake.ResetCalls()

	_ = p.SetLayout(LayoutIntent{Rect: platform.RectXYWH(0, 0, 800, 600), Margin: UniformMargin(0), SkipInsets: true})
	h.reg.UpdateAll()

	res := p.LastApply()
	if !res.Exhausted() {
		t.Fatalf("LastApply() = %+v, want exhausted", res)
	}
	if res.Attempts != DefaultMaxAttempts {
		t.Fatalf("attempts = %d, want %d", res.Attempts, DefaultMaxAttempts)
	}
	if n := len(opsNamed(h.fake.Calls(), "SetPos")); n != DefaultMaxAttempts {
		t.Fatalf("SetPos calls = %d, want %d", n, DefaultMaxAttempts)
	}
}

func TestProxy_LayoutConvergesOnRetry(t *testing.T) {
	h := newHarness(t, nil)
	refusals := 2
	w := tiledWindow()
	w.Clamp = func(r platform.Rect) platform.Rect {
		if refusals > 0 {
			refusals--
			return platform.RectXYWH(r.Left+1, r.Top, r.Width(), r.Height())
		}
		return r
	}
	p := h.track(3, w)

	_ = p.SetLayout(LayoutIntent{Rect: platform.RectXYWH(0, 0, 800, 600), Margin: UniformMargin(0), SkipInsets: true})
	h.reg.UpdateAll()

	if res := p.LastApply(); !res.Converged || res.Attempts != 3 {
		t.Fatalf("LastApply() = %+v, want converged after 3 attempts", res)
	}
}

func TestProxy_RejectedSetPosStopsRetrying(t *testing.T) {
	h := newHarness(t, nil)
	w := tiledWindow()
	w.RejectPos = true
	p := h.track(4, w)

	_ = p.SetLayout(LayoutIntent{Rect: platform.RectXYWH(0, 0, 800, 600)})
	h.reg.UpdateAll()

	res := p.LastApply()
	if res.Err == nil || res.Attempts != 1 {
		t.Fatalf("LastApply() = %+v, want one failed attempt", res)
	}
	if !p.Valid() {
		t.Fatal("native failure invalidated the proxy")
	}
}

// asyncNative defers position requests until the window is waited on, the
// way an EWMH window manager handles moves after the request returns.
type asyncNative struct {
	*platformtest.Fake
	pending map[platform.Handle]platform.Rect
	waits   int
}

func (a *asyncNative) SetPos(h platform.Handle, z platform.ZOrder, r platform.Rect, flags platform.PosFlags) error {
	a.pending[h] = r
	return nil
}

func (a *asyncNative) WaitRect(h platform.Handle, want platform.Rect, timeout time.Duration) (platform.Rect, bool) {
	a.waits++
	if r, ok := a.pending[h]; ok {
		delete(a.pending, h)
		if err := a.Fake.SetPos(h, platform.ZTop, r, platform.PosNoActivate); err != nil {
			return platform.Rect{}, false
		}
	}
	return a.Fake.Rect(h)
}

func TestProxy_LayoutWaitsForAsyncMoves(t *testing.T) {
	var async *asyncNative
	h := newHarness(t, func(f *platformtest.Fake) platform.NativeAPI {
		async = &asyncNative{Fake: f, pending: map[platform.Handle]platform.Rect{}}
		return async
	})
	p := h.track(5, tiledWindow())
	async.waits = 0

	want := platform.RectXYWH(0, 0, 800, 600)
	_ = p.SetLayout(LayoutIntent{Rect: want, Margin: UniformMargin(0), SkipInsets: true})
	h.reg.UpdateAll()

	res := p.LastApply()
	if !res.Converged || res.Attempts != 1 {
		t.Fatalf("LastApply() = %+v, want converged after 1 attempt", res)
	}
	if res.Actual != want {
		t.Fatalf("actual = %v, want %v", res.Actual, want)
	}
	if async.waits != 1 {
		t.Fatalf("WaitRect calls = %d, want 1", async.waits)
	}
}

func TestProxy_LayoutUsesFrameInsetsAndGaps(t *testing.T) {
	h := newHarness(t, nil)
	w := tiledWindow()
	w.Insets = platform.Insets{Left: 7, Top: 0, Right: 7, Bottom: 7}
	p := h.track(5, w)
	h.fake.ResetCalls()

	_ = p.SetLayout(LayoutIntent{Rect: platform.RectXYWH(0, 0, 1000, 800), Flush: EdgeLeft | EdgeTop})
	h.reg.UpdateAll()

	sets := opsNamed(h.fake.Calls(), "SetPos")
	if len(sets) == 0 {
		t.Fatal("no SetPos call")
	}
	// Gaps: left/top outer 4, right/bottom half of 10. Then grown by insets.
	want := platform.Rect{Left: 4 - 7, Top: 4, Right: 1000 - 5 + 7, Bottom: 800 - 5 + 7}
	if sets[0].Rect != want {
		t.Fatalf("requested %v, want %v", sets[0].Rect, want)
	}
}

func TestProxy_HungWindowIsNotRepositioned(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(6, tiledWindow())
	h.fake.Update(6, func(w *platformtest.Window) { w.Hung = true })
	h.fake.ResetCalls()

	_ = p.SetLayout(LayoutIntent{Rect: platform.RectXYWH(0, 0, 300, 300)})
	h.reg.UpdateAll()

	if calls := h.fake.Calls(); len(calls) != 0 {
		t.Fatalf("native mutations on hung window: %v", calls)
	}
	if !p.Info().Hung {
		t.Fatal("hung flag not published")
	}

	// The intent survives until the window responds again.
	h.fake.Update(6, func(w *platformtest.Window) { w.Hung = false })
	h.reg.UpdateAll()
	if n := len(opsNamed(h.fake.Calls(), "SetPos")); n == 0 {
		t.Fatal("pending layout not applied after window recovered")
	}
}

func TestProxy_FloatingIntentSingleCall(t *testing.T) {
	h := newHarness(t, nil)
	w := tiledWindow()
	w.Clamp = func(r platform.Rect) platform.Rect { return platform.RectXYWH(r.Left, r.Top, 10, 10) }
	p := h.track(8, w)
	h.fake.ResetCalls()

	target := platform.RectXYWH(100, 100, 400, 300)
	_ = p.MoveFloatingTo(target)
	h.reg.UpdateAll()

	sets := opsNamed(h.fake.Calls(), "SetPos")
	if len(sets) != 1 || sets[0].Rect != target {
		t.Fatalf("SetPos calls = %v, want one call to %v", sets, target)
	}
}

func TestProxy_PublishesOnlyWhenChanged(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(9, tiledWindow())

	gen := p.Generation()
	if gen == 0 {
		t.Fatal("initial snapshot not published")
	}
	h.reg.UpdateAll()
	h.reg.UpdateAll()
	if got := p.Generation(); got != gen {
		t.Fatalf("generation moved from %d to %d without changes", gen, got)
	}

	h.fake.Update(9, func(w *platformtest.Window) { w.Title = "renamed" })
	h.reg.UpdateAll()
	if got := p.Generation(); got != gen+1 {
		t.Fatalf("generation = %d, want %d", got, gen+1)
	}
	if got := p.Info().Title; got != "renamed" {
		t.Fatalf("published title = %q, want renamed", got)
	}
}

func TestProxy_DelayedHideIsDebounced(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(10, tiledWindow())
	h.fake.ResetCalls()

	_ = p.DelayedHide(100 * time.Millisecond)
	_ = p.Show()
	h.queue.Drain()

	h.clock.Advance(150 * time.Millisecond)
	h.queue.Drain()

	for _, c := range opsNamed(h.fake.Calls(), "ShowWindow") {
		if c.Show == platform.ShowHide {
			t.Fatalf("superseded delayed hide still ran: %v", h.fake.Calls())
		}
	}
	if w, _ := h.fake.Window(10); !w.Visible {
		t.Fatal("window hidden")
	}
}

func TestProxy_DelayedShowWaitsForDelay(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(11, tiledWindow())
	_ = p.Hide()
	h.queue.Drain()
	h.fake.ResetCalls()

	_ = p.DelayedShow(200 * time.Millisecond)
	h.queue.Drain()
	if calls := h.fake.Calls(); len(calls) != 0 {
		t.Fatalf("delayed show ran early: %v", calls)
	}

	h.clock.Advance(200 * time.Millisecond)
	h.queue.Drain()
	shows := opsNamed(h.fake.Calls(), "ShowWindow")
	if len(shows) != 1 || shows[0].Show != platform.ShowNoActivate {
		t.Fatalf("ShowWindow calls = %v, want one no-activate show", shows)
	}
}

func TestProxy_SetAlwaysOnTopIsNoOpWhenUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(12, tiledWindow())

	if err := p.SetAlwaysOnTop(false); err != nil {
		t.Fatalf("SetAlwaysOnTop() error: %v", err)
	}
	if immediate, _ := h.queue.Len(); immediate != 0 {
		t.Fatalf("queued %d ops for unchanged always-on-top", immediate)
	}

	_ = p.SetAlwaysOnTop(true)
	h.queue.Drain()
	if w, _ := h.fake.Window(12); !w.TopMost {
		t.Fatal("window not topmost")
	}

	// Later layouts keep the window topmost.
	h.fake.ResetCalls()
	_ = p.SetLayout(LayoutIntent{Rect: platform.RectXYWH(0, 0, 300, 300), SkipInsets: true})
	h.reg.UpdateAll()
	sets := opsNamed(h.fake.Calls(), "SetPos")
	if len(sets) == 0 || sets[0].Z != platform.ZTopmost {
		t.Fatalf("layout SetPos = %v, want topmost z-order", sets)
	}
}

func TestProxy_PokeNudgesAndRestores(t *testing.T) {
	h := newHarness(t, nil)
	w := tiledWindow()
	p := h.track(13, w)
	h.fake.ResetCalls()

	_ = p.Poke()
	h.queue.Drain()

	sets := opsNamed(h.fake.Calls(), "SetPos")
	if len(sets) != 2 {
		t.Fatalf("SetPos calls = %d, want 2", len(sets))
	}
	r := w.Rect
	grown := platform.Rect{Left: r.Left - 2, Top: r.Top - 2, Right: r.Right + 2, Bottom: r.Bottom + 2}
	if sets[0].Rect != grown || sets[1].Rect != r {
		t.Fatalf("poke rects = %v then %v, want %v then %v", sets[0].Rect, sets[1].Rect, grown, r)
	}
}

func TestProxy_TitlebarRemovalWaitsForGraceWindow(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(14, tiledWindow())
	p.SetWantRemovedTitlebar(true)
	h.fake.ResetCalls()

	h.reg.UpdateAll()
	if n := len(opsNamed(h.fake.Calls(), "SetStyle")); n != 0 {
		t.Fatalf("titlebar removed inside grace window (%d calls)", n)
	}

	h.clock.Advance(time.Second)
	h.reg.UpdateAll()
	h.reg.UpdateAll()
	styles := opsNamed(h.fake.Calls(), "SetStyle")
	if len(styles) != 1 {
		t.Fatalf("SetStyle calls = %d, want 1", len(styles))
	}
	if styles[0].Style&platform.StyleCaption != 0 {
		t.Fatalf("caption still set in %#x", uint32(styles[0].Style))
	}
}

func TestProxy_ForceVisibleGraceWindow(t *testing.T) {
	h := newHarness(t, nil)
	h.clock.Advance(2 * time.Second)

	w := tiledWindow()
	w.Visible = false
	w.Class = "kitty"
	p := h.track(15, w)

	info := p.Info()
	if !info.Visible || !info.ForceVisible {
		t.Fatalf("new interactable window not force-visible: %+v", info)
	}

	h.clock.Advance(600 * time.Millisecond)
	h.reg.UpdateAll()
	if info := p.Info(); info.Visible || info.ForceVisible {
		t.Fatalf("window still force-visible after grace window: %+v", info)
	}
}

func TestProxy_NoForceVisibleDuringWarmupOrForUnknownClass(t *testing.T) {
	h := newHarness(t, nil)

	w := tiledWindow()
	w.Visible = false
	w.Class = "kitty"
	early := h.track(16, w)
	if early.Info().Visible {
		t.Fatal("window force-visible during manager warmup")
	}

	h.clock.Advance(2 * time.Second)
	w.Class = "SomeDialog"
	other := h.track(17, w)
	if other.Info().Visible {
		t.Fatal("non-allow-listed class force-visible")
	}
}

func TestProxy_TeardownRestoresForcedState(t *testing.T) {
	h := newHarness(t, nil)
	p := h.track(18, tiledWindow())

	_ = p.SetAlwaysOnTop(true)
	_ = p.Hide()
	_ = p.SetResizable(false)
	_ = p.RemoveTitlebar()
	h.queue.Drain()

	w, _ := h.fake.Window(18)
	if w.Visible || !w.TopMost || w.Style&platform.StyleSizeBox != 0 || w.Style&platform.StyleCaption != 0 {
		t.Fatalf("ops not applied: %+v", w)
	}

	h.reg.Close()

	w, _ = h.fake.Window(18)
	if !w.Visible {
		t.Fatal("window left hidden after teardown")
	}
	if w.TopMost {
		t.Fatal("window left topmost after teardown")
	}
	if w.Style&platform.StyleSizeBox == 0 {
		t.Fatal("resizability not restored")
	}
	if w.Style&platform.StyleCaption == 0 {
		t.Fatal("caption not restored")
	}
	if p.Valid() {
		t.Fatal("proxy valid after teardown")
	}
}

func TestRegistry_RefreshTracksEnumeration(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.Add(1, tiledWindow())
	h.fake.Add(2, tiledWindow())

	ch, err := h.reg.Refresh()
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if len(ch.Added) != 2 || len(ch.Removed) != 0 {
		t.Fatalf("changes = %+v, want 2 added", ch)
	}
	if ch.Added[0].Seq() == ch.Added[1].Seq() {
		t.Fatal("proxies share a sequence index")
	}

	h.fake.Destroy(1)
	ch, _ = h.reg.Refresh()
	if len(ch.Removed) != 1 || ch.Removed[0].Handle() != 1 {
		t.Fatalf("changes = %+v, want handle 1 removed", ch)
	}
	if _, ok := h.reg.Get(1); ok {
		t.Fatal("removed proxy still registered")
	}
	if snap := h.reg.Snapshot(); len(snap) != 1 || snap[0].Handle != 2 {
		t.Fatalf("Snapshot() = %+v, want only handle 2", snap)
	}
}

// pollCounter records, per handle, the registry tick of every liveness poll.
type pollCounter struct {
	*platformtest.Fake
	reg   *Registry
	mu    sync.Mutex
	polls map[platform.Handle][]uint64
}

func (c *pollCounter) IsWindow(h platform.Handle) bool {
	c.mu.Lock()
	c.polls[h] = append(c.polls[h], c.reg.Tick())
	c.mu.Unlock()
	return c.Fake.IsWindow(h)
}

func TestProxy_ThrottlesIdleWindowsAndSpreadsPhases(t *testing.T) {
	counter := &pollCounter{polls: make(map[platform.Handle][]uint64)}
	h := newHarness(t, func(f *platformtest.Fake) platform.NativeAPI {
		counter.Fake = f
		return counter
	})
	counter.reg = h.reg

	a := h.track(1, tiledWindow())
	b := h.track(2, tiledWindow())
	a.SetTemporaryIgnore(true)
	b.SetTemporaryIgnore(true)
	h.clock.Advance(2 * time.Second)

	for i := 0; i < 200; i++ {
		h.reg.UpdateAll()
	}

	late := func(ticks []uint64) []uint64 {
		var out []uint64
		for _, tk := range ticks {
			if tk > 100 && tk <= 200 {
				out = append(out, tk)
			}
		}
		return out
	}
	pa, pb := late(counter.polls[1]), late(counter.polls[2])
	if len(pa) != 100/maxUpdateInterval || len(pb) != 100/maxUpdateInterval {
		t.Fatalf("late polls = %d and %d, want %d each", len(pa), len(pb), 100/maxUpdateInterval)
	}
	seen := make(map[uint64]bool)
	for _, tk := range pa {
		seen[tk] = true
	}
	for _, tk := range pb {
		if seen[tk] {
			t.Fatalf("both proxies polled on tick %d", tk)
		}
	}

	// Managed again: polled every tick.
	a.SetTemporaryIgnore(false)
	before := len(counter.polls[1])
	h.reg.UpdateAll()
	h.reg.UpdateAll()
	if got := len(counter.polls[1]) - before; got != 2 {
		t.Fatalf("polls after unignore = %d, want 2", got)
	}
}
