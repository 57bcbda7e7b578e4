// Package hotkeys grabs global key sequences on the X11 root window and
// dispatches them to configured actions.
package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"

	"github.com/1broseidon/wintile/internal/config"
)

// ErrNoDisplay is returned when the handler has no X connection.
var ErrNoDisplay = errors.New("hotkeys require an X11 connection")

// x11Accessor is implemented by backends that expose X11 internals.
type x11Accessor interface {
	XUtil() *xgbutil.XUtil
	RootWindow() xproto.Window
}

// Handler manages global keyboard shortcuts.
type Handler struct {
	xu     *xgbutil.XUtil
	root   xproto.Window
	logger *slog.Logger

	mu    sync.Mutex
	bound []config.Hotkey
}

var ignoreModsOnce sync.Once

// New creates a hotkey handler over backend. Backends without X11 internals
// produce a handler whose Bind fails with ErrNoDisplay.
func New(backend any, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger}
	if accessor, ok := backend.(x11Accessor); ok {
		h.xu = accessor.XUtil()
		h.root = accessor.RootWindow()
	}
	if h.xu != nil {
		ignoreModsOnce.Do(func() {
			configureIgnoreMods(h.xu)
		})
	}
	return h
}

// Bind drops every earlier grab and grabs bindings. A sequence that fails
// to grab is logged and skipped; the first such error is returned after
// the rest are bound.
func (h *Handler) Bind(bindings []config.Hotkey, dispatch func(config.Hotkey)) error {
	if h.xu == nil {
		return ErrNoDisplay
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	keybind.Detach(h.xu, h.root)
	h.bound = h.bound[:0]

	var firstErr error
	for _, hk := range bindings {
		hk := hk
		err := keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
			h.logger.Debug("hotkey pressed", "keys", hk.Keys, "action", hk.Action)
			dispatch(hk)
		}).Connect(h.xu, h.root, hk.Keys, true)
		if err != nil {
			h.logger.Warn("failed to grab hotkey", "keys", hk.Keys, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to grab %q: %w", hk.Keys, err)
			}
			continue
		}
		h.bound = append(h.bound, hk)
	}
	h.logger.Info("hotkeys bound", "count", len(h.bound))
	return firstErr
}

// Bound returns the bindings currently grabbed.
func (h *Handler) Bound() []config.Hotkey {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]config.Hotkey(nil), h.bound...)
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}
	xevent.IgnoreMods = ignoreMasks(base)
}

// ignoreMasks returns every combination of the lock masks, including none.
func ignoreMasks(base []uint16) []uint16 {
	out := make([]uint16, 0, 1<<len(base))
	for subset := 0; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		out = append(out, mask)
	}
	return out
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
