// Package winproxy mediates every read and write of native window state.
//
// Each tracked window has a Proxy. Any goroutine may call a Proxy's
// mutators; they only record intent or queue an Op. The scheduling
// goroutine applies intents and runs Ops during Registry.UpdateAll and the
// proxy queue drain, so native calls for a window never race each other.
package winproxy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/1broseidon/wintile/internal/commands"
	"github.com/1broseidon/wintile/internal/platform"
)

const (
	// maxUpdateInterval caps the throttle on idle proxies, in ticks.
	maxUpdateInterval = 20
	// throttleAfter is the minimum proxy age before throttling applies.
	throttleAfter = time.Second
	// forceVisibleFor is the grace window after creation during which an
	// interactable window is reported visible.
	forceVisibleFor = 500 * time.Millisecond
	// managerWarmup is how long the registry must have been running before
	// new windows get the grace window.
	managerWarmup = time.Second
	pokeNudge     = 2
)

// ErrInvalid is returned by mutators on a proxy whose window is gone.
var ErrInvalid = errors.New("window proxy is no longer valid")

var errNoGeometry = errors.New("window reported no geometry")

// layoutSettle is how long one attempt waits for a window system that
// applies moves asynchronously to report the requested geometry.
const layoutSettle = 25 * time.Millisecond

// ApplyResult is the outcome of one layout application.
type ApplyResult struct {
	Requested platform.Rect
	Actual    platform.Rect
	Attempts  int
	Converged bool
	Err       error
}

// Exhausted reports whether every attempt ran without the window system
// honouring the requested rectangle.
func (r ApplyResult) Exhausted() bool {
	return !r.Converged && r.Err == nil && r.Attempts > 0
}

// Proxy tracks one native window.
type Proxy struct {
	reg     *Registry
	handle  platform.Handle
	seq     uint64
	created time.Time

	valid           atomic.Bool
	permanentIgnore atomic.Bool
	temporaryIgnore atomic.Bool
	wantNoTitlebar  atomic.Bool

	// Guarded by reg.mu.
	published     platform.Attributes
	generation    uint64
	layout        LayoutIntent
	layoutDirty   bool
	floating      FloatingIntent
	floatingDirty bool
	alwaysTop     bool
	visibleGen    uint64
	inTabGroup    bool

	// Owned by the scheduling goroutine.
	initialized         time.Time
	info                platform.Attributes
	dirty               bool
	interval            uint64
	hidden              bool
	topmost             bool
	resizableBaseline   bool
	resizableOverridden bool
	captionStripped     bool
	titlebarDone        bool
	lastApply           ApplyResult
}

func newProxy(reg *Registry, h platform.Handle, seq uint64, now time.Time) *Proxy {
	p := &Proxy{
		reg:      reg,
		handle:   h,
		seq:      seq,
		created:  now,
		interval: 1,
	}
	p.valid.Store(true)
	return p
}

func (p *Proxy) Handle() platform.Handle { return p.handle }

// Seq is the proxy's registration index, used to phase throttled polling.
func (p *Proxy) Seq() uint64 { return p.seq }

func (p *Proxy) Created() time.Time { return p.created }

// Valid reports whether the window still exists. Once false it stays false.
func (p *Proxy) Valid() bool { return p.valid.Load() }

func (p *Proxy) PermanentIgnore() bool { return p.permanentIgnore.Load() }
func (p *Proxy) TemporaryIgnore() bool { return p.temporaryIgnore.Load() }

// SetPermanentIgnore stops all per-tick updates for the window.
func (p *Proxy) SetPermanentIgnore(v bool) { p.permanentIgnore.Store(v) }

// SetTemporaryIgnore marks the window as not currently managed; its
// updates are throttled.
func (p *Proxy) SetTemporaryIgnore(v bool) { p.temporaryIgnore.Store(v) }

// SetWantRemovedTitlebar asks the proxy to strip the caption once the
// window is past its grace window.
func (p *Proxy) SetWantRemovedTitlebar(v bool) { p.wantNoTitlebar.Store(v) }

// Info returns the published attribute snapshot.
func (p *Proxy) Info() platform.Attributes {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	return p.published
}

// Generation increases every time a new snapshot is published.
func (p *Proxy) Generation() uint64 {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	return p.generation
}

// AlwaysOnTop reports the requested always-on-top state.
func (p *Proxy) AlwaysOnTop() bool {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	return p.alwaysTop
}

// LastApply returns the result of the most recent layout application.
// Only meaningful on the scheduling goroutine.
func (p *Proxy) LastApply() ApplyResult { return p.lastApply }

func (p *Proxy) String() string {
	info := p.Info()
	return fmt.Sprintf("{%s | %s @%s}", info.Title, info.Class, p.handle)
}

// SetLayout records a tiling target. Only the latest intent set before the
// next update is applied.
func (p *Proxy) SetLayout(intent LayoutIntent) error {
	if !p.valid.Load() {
		return ErrInvalid
	}
	p.reg.mu.Lock()
	p.layout = intent
	p.layoutDirty = true
	p.reg.mu.Unlock()
	return nil
}

// MoveFloatingTo records a one-shot placement that bypasses margins and
// retries.
func (p *Proxy) MoveFloatingTo(r platform.Rect) error {
	if !p.valid.Load() {
		return ErrInvalid
	}
	p.reg.mu.Lock()
	p.floating = FloatingIntent{Rect: r}
	p.floatingDirty = true
	p.reg.mu.Unlock()
	return nil
}

// SetTabGroup marks the window as part of a tab group, reserving the tab
// bar inset above it on the next layout.
func (p *Proxy) SetTabGroup(v bool) {
	p.reg.mu.Lock()
	p.inTabGroup = v
	p.reg.mu.Unlock()
}

func (p *Proxy) Show() error { return p.queueVisibility(Op{Kind: OpShow}, 0) }
func (p *Proxy) Hide() error { return p.queueVisibility(Op{Kind: OpHide}, 0) }

// ShowWithRect shows the window and places it in one step.
func (p *Proxy) ShowWithRect(r platform.Rect) error {
	return p.queueVisibility(Op{Kind: OpShowWithRect, Rect: r}, 0)
}

// DelayedShow shows the window after d unless another visibility change is
// requested first.
func (p *Proxy) DelayedShow(d time.Duration) error {
	return p.queueVisibility(Op{Kind: OpDelayedShow}, d)
}

// DelayedHide hides the window after d unless another visibility change is
// requested first.
func (p *Proxy) DelayedHide(d time.Duration) error {
	return p.queueVisibility(Op{Kind: OpDelayedHide}, d)
}

func (p *Proxy) Close() error           { return p.queue(Op{Kind: OpClose}) }
func (p *Proxy) Poke() error            { return p.queue(Op{Kind: OpPoke}) }
func (p *Proxy) Minimize() error        { return p.queue(Op{Kind: OpMinimize}) }
func (p *Proxy) Restore() error         { return p.queue(Op{Kind: OpRestore}) }
func (p *Proxy) RemoveMaximized() error { return p.queue(Op{Kind: OpRemoveMaximized}) }
func (p *Proxy) RemoveTitlebar() error  { return p.queue(Op{Kind: OpRemoveTitlebar}) }

// SetResizable toggles the size grip. The original setting is restored
// when the proxy is torn down.
func (p *Proxy) SetResizable(v bool) error {
	return p.queue(Op{Kind: OpSetResizable, Flag: v})
}

// SetAlwaysOnTop changes the z-order policy used by every later z-order
// operation. It does nothing if v is already the requested state.
func (p *Proxy) SetAlwaysOnTop(v bool) error {
	if !p.valid.Load() {
		return ErrInvalid
	}
	p.reg.mu.Lock()
	if p.alwaysTop == v {
		p.reg.mu.Unlock()
		return nil
	}
	p.alwaysTop = v
	p.reg.mu.Unlock()
	return p.queue(Op{Kind: OpSetAlwaysOnTop, Flag: v})
}

func (p *Proxy) queue(op Op) error {
	if !p.valid.Load() {
		return ErrInvalid
	}
	p.reg.queue.Queue(p.command(op))
	return nil
}

// queueVisibility bumps the visibility generation so that any delayed
// show or hide still pending becomes stale.
func (p *Proxy) queueVisibility(op Op, delay time.Duration) error {
	if !p.valid.Load() {
		return ErrInvalid
	}
	p.reg.mu.Lock()
	p.visibleGen++
	op.Gen = p.visibleGen
	p.reg.mu.Unlock()

	if op.Kind == OpDelayedShow || op.Kind == OpDelayedHide {
		p.reg.queue.Delay(delay, p.command(op))
		return nil
	}
	p.reg.queue.Queue(p.command(op))
	return nil
}

func (p *Proxy) command(op Op) commands.Command {
	return commands.Func(fmt.Sprintf("%s %s", op, p.handle), func() {
		p.execute(op)
	})
}

func (p *Proxy) logAttrs(args ...any) []any {
	return append([]any{"window", p.handle, "title", p.info.Title, "class", p.info.Class}, args...)
}

// logFailure logs a native failure, rate limited per window and kind.
func (p *Proxy) logFailure(kind, msg string, args ...any) {
	if !p.reg.allowLog(p.handle, kind) {
		return
	}
	p.reg.logger.Warn(msg, p.logAttrs(args...)...)
}

// execute runs op on the scheduling goroutine.
func (p *Proxy) execute(op Op) {
	if !p.valid.Load() {
		return
	}
	native := p.reg.native

	var err error
	switch op.Kind {
	case OpShow:
		err = p.show()
	case OpHide:
		err = p.hide()
	case OpShowWithRect:
		p.hidden = false
		err = native.SetPos(p.handle, p.zTop(), op.Rect, platform.PosNoActivate)
		if err == nil {
			err = native.ShowWindow(p.handle, platform.ShowNoActivate)
		}
	case OpDelayedShow, OpDelayedHide:
		p.reg.mu.Lock()
		stale := op.Gen != p.visibleGen
		p.reg.mu.Unlock()
		if stale {
			return
		}
		if op.Kind == OpDelayedShow {
			err = p.show()
		} else {
			err = p.hide()
		}
	case OpClose:
		err = native.PostClose(p.handle)
	case OpPoke:
		err = p.poke()
	case OpSetAlwaysOnTop:
		err = p.applyAlwaysTop(op.Flag)
	case OpMinimize:
		err = native.ShowWindow(p.handle, platform.ShowMinimize)
	case OpRestore, OpRemoveMaximized:
		err = native.ShowWindow(p.handle, platform.ShowRestore)
	case OpSetResizable:
		err = p.applyResizable(op.Flag)
	case OpRemoveTitlebar:
		err = p.stripCaption()
	default:
		err = fmt.Errorf("unknown op %s", op.Kind)
	}

	if err != nil {
		p.logFailure(op.Kind.String(), "window operation failed", "op", op.String(), "error", err)
	}
}

func (p *Proxy) zTop() platform.ZOrder {
	if p.topmost {
		return platform.ZTopmost
	}
	return platform.ZTop
}

func (p *Proxy) zBottom() platform.ZOrder {
	if p.topmost {
		return platform.ZTopmost
	}
	return platform.ZBottom
}

const zOnly = platform.PosNoActivate | platform.PosNoMove | platform.PosNoSize

func (p *Proxy) show() error {
	p.hidden = false
	if err := p.reg.native.ShowWindow(p.handle, platform.ShowNoActivate); err != nil {
		return err
	}
	return p.reg.native.SetPos(p.handle, p.zTop(), platform.Rect{}, zOnly)
}

func (p *Proxy) hide() error {
	p.hidden = true
	return p.reg.native.ShowWindow(p.handle, platform.ShowHide)
}

func (p *Proxy) poke() error {
	r := p.info.Rect
	if r.Width() <= 0 || r.Height() <= 0 {
		return nil
	}
	grown := platform.Rect{
		Left:   r.Left - pokeNudge,
		Top:    r.Top - pokeNudge,
		Right:  r.Right + pokeNudge,
		Bottom: r.Bottom + pokeNudge,
	}
	z := p.zBottom()
	if err := p.reg.native.SetPos(p.handle, z, grown, platform.PosNoActivate); err != nil {
		return err
	}
	return p.reg.native.SetPos(p.handle, z, r, platform.PosNoActivate)
}

func (p *Proxy) applyAlwaysTop(on bool) error {
	p.topmost = on
	z := platform.ZNoTopmost
	if on {
		z = platform.ZTopmost
	}
	return p.reg.native.SetPos(p.handle, z, platform.Rect{}, zOnly)
}

func (p *Proxy) applyResizable(on bool) error {
	style := p.reg.native.Style(p.handle)
	want := style &^ platform.StyleSizeBox
	if on {
		want |= platform.StyleSizeBox
	}
	if want != style {
		if err := p.reg.native.SetStyle(p.handle, want); err != nil {
			return err
		}
	}
	p.resizableOverridden = on != p.resizableBaseline
	return nil
}

func (p *Proxy) stripCaption() error {
	p.titlebarDone = true
	style := p.reg.native.Style(p.handle)
	if style&platform.StyleCaption == 0 {
		return nil
	}
	if err := p.reg.native.SetStyle(p.handle, style&^platform.StyleCaption); err != nil {
		return err
	}
	p.captionStripped = true
	return nil
}

// update is the per-tick work for one proxy.
func (p *Proxy) update(tick uint64, now time.Time) {
	if !p.valid.Load() || p.permanentIgnore.Load() {
		return
	}
	if p.initialized.IsZero() {
		p.initialize(now)
		return
	}
	if p.throttled(tick, now) {
		return
	}

	native := p.reg.native
	if !native.IsWindow(p.handle) {
		p.valid.Store(false)
		p.reg.logger.Debug("window gone", p.logAttrs()...)
		return
	}

	p.updateHung()
	if p.info.Hung {
		p.publish()
		return
	}

	if intent, inTabGroup, ok := p.takeLayout(); ok {
		p.lastApply = p.applyLayout(intent, inTabGroup)
	}
	if intent, ok := p.takeFloating(); ok {
		p.applyFloating(intent)
	}
	if p.wantNoTitlebar.Load() && !p.titlebarDone && !p.inGrace(now) {
		if err := p.stripCaption(); err != nil {
			p.logFailure("titlebar", "failed to remove titlebar", "error", err)
		}
	}

	p.refresh(now)
	p.publish()
}

func (p *Proxy) initialize(now time.Time) {
	native := p.reg.native
	if !native.IsWindow(p.handle) {
		p.valid.Store(false)
		return
	}
	p.initialized = now
	p.info.Child = native.IsChild(p.handle)
	p.refresh(now)
	p.resizableBaseline = p.info.CanResize()
	p.dirty = true
	p.publish()
}

// throttled reports whether this tick's poll should be skipped. Idle
// proxies back off by one tick per poll up to maxUpdateInterval, and their
// seq spreads the polls of many idle proxies across ticks.
func (p *Proxy) throttled(tick uint64, now time.Time) bool {
	if (p.temporaryIgnore.Load() || p.hidden) && now.Sub(p.created) >= throttleAfter {
		if tick%p.interval != p.seq%p.interval {
			return true
		}
		if p.interval < maxUpdateInterval {
			p.interval++
		}
		return false
	}
	p.interval = 1
	return false
}

func (p *Proxy) updateHung() {
	hung := p.reg.native.IsHung(p.handle)
	if hung != p.info.Hung {
		p.info.Hung = hung
		p.dirty = true
	}
}

func (p *Proxy) inGrace(now time.Time) bool {
	return now.Sub(p.created) < forceVisibleFor
}

// forceVisible reports whether a freshly created window should be treated
// as visible before the window system says so.
func (p *Proxy) forceVisible(a platform.Attributes, now time.Time) bool {
	if a.Visible || !p.inGrace(now) {
		return false
	}
	if p.created.Sub(p.reg.started) < managerWarmup {
		return false
	}
	if a.Child || a.ExStyle&platform.ExStyleLayered != 0 {
		return false
	}
	if a.Style&(platform.StyleDisabled|platform.StylePopup) != 0 {
		return false
	}
	return p.reg.isInteractable(a.Class)
}

// refresh re-reads native attributes into the internal snapshot.
func (p *Proxy) refresh(now time.Time) {
	native := p.reg.native
	next := p.info

	next.Title = native.Title(p.handle)
	next.Class = native.Class(p.handle)
	next.Visible = native.IsVisible(p.handle)
	next.Cloaked = native.IsCloaked(p.handle)
	next.Style = native.Style(p.handle)
	next.ExStyle = native.ExStyle(p.handle)
	if r, ok := native.Rect(p.handle); ok {
		next.Rect = r
	}

	next.ForceVisible = p.forceVisible(next, now)
	if next.ForceVisible {
		next.Visible = true
	}

	if next != p.info {
		p.info = next
		p.dirty = true
	}
}

// publish copies the internal snapshot to the published one if it changed.
func (p *Proxy) publish() {
	if !p.dirty {
		return
	}
	p.reg.mu.Lock()
	p.published = p.info
	p.generation++
	p.reg.mu.Unlock()
	p.dirty = false
}

func (p *Proxy) takeLayout() (LayoutIntent, bool, bool) {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	if !p.layoutDirty {
		return LayoutIntent{}, false, false
	}
	p.layoutDirty = false
	return p.layout, p.inTabGroup, true
}

func (p *Proxy) takeFloating() (FloatingIntent, bool) {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	if !p.floatingDirty {
		return FloatingIntent{}, false
	}
	p.floatingDirty = false
	return p.floating, true
}

// applyLayout requests the computed rectangle until the window system
// reports exactly that geometry or the attempts run out.
func (p *Proxy) applyLayout(intent LayoutIntent, inTabGroup bool) ApplyResult {
	native := p.reg.native
	cfg := p.reg.layoutConfig()

	frame := FrameInfo{Style: p.info.Style, InTabGroup: inTabGroup}
	if !intent.SkipInsets {
		insets, err := native.FrameInsets(p.handle, p.info.Style, p.info.ExStyle)
		if err != nil {
			p.reg.logger.Debug("frame insets unavailable", p.logAttrs("error", err)...)
		} else {
			frame.Insets = insets
		}
	}

	target := ComputeLayoutRect(intent, cfg, frame)
	res := ApplyResult{Requested: target}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	z := p.zBottom()
	for res.Attempts < attempts {
		res.Attempts++
		if err := native.SetPos(p.handle, z, target, platform.PosNoActivate); err != nil {
			res.Err = err
			break
		}
		var (
			actual platform.Rect
			ok     bool
		)
		if w, async := native.(platform.GeometryWaiter); async {
			actual, ok = w.WaitRect(p.handle, target, layoutSettle)
		} else {
			actual, ok = native.Rect(p.handle)
		}
		if !ok {
			res.Err = errNoGeometry
			break
		}
		res.Actual = actual
		if actual == target {
			res.Converged = true
			break
		}
	}

	switch {
	case res.Err != nil:
		p.logFailure("layout", "failed to set window position",
			"rect", target.String(), "attempts", res.Attempts, "error", res.Err)
	case !res.Converged:
		p.logFailure("layout", "window did not accept layout",
			"rect", target.String(), "actual", res.Actual.String(), "attempts", res.Attempts)
	}
	return res
}

func (p *Proxy) applyFloating(intent FloatingIntent) {
	z := platform.ZTop
	if p.topmost {
		z = platform.ZTopmost
	}
	if err := p.reg.native.SetPos(p.handle, z, intent.Rect, platform.PosNoActivate); err != nil {
		p.logFailure("floating", "failed to move floating window",
			"rect", intent.Rect.String(), "error", err)
	}
}

// teardown restores the native state the proxy forced and retires the
// proxy. An invalid proxy makes no native calls.
func (p *Proxy) teardown() {
	if !p.valid.Load() {
		return
	}
	native := p.reg.native
	logErr := func(what string, err error) {
		if err != nil {
			p.reg.logger.Debug("restore on teardown failed", p.logAttrs("what", what, "error", err)...)
		}
	}

	if p.hidden {
		p.hidden = false
		logErr("visibility", native.ShowWindow(p.handle, platform.ShowNoActivate))
	}
	if p.topmost {
		logErr("always on top", p.applyAlwaysTop(false))
	}
	if p.resizableOverridden {
		logErr("resizable", p.applyResizable(p.resizableBaseline))
	}
	if p.captionStripped {
		style := native.Style(p.handle)
		logErr("titlebar", native.SetStyle(p.handle, style|platform.StyleCaption))
		p.captionStripped = false
	}
	p.valid.Store(false)
}

var _ slog.LogValuer = (*Proxy)(nil)

// LogValue renders the proxy in structured logs.
func (p *Proxy) LogValue() slog.Value {
	return slog.StringValue(p.handle.String())
}
