package hotkeys

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/1broseidon/wintile/internal/config"
	"github.com/1broseidon/wintile/internal/platform/platformtest"
)

func TestIgnoreMasks(t *testing.T) {
	got := ignoreMasks([]uint16{2, 16})
	want := []uint16{0, 2, 16, 18}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBind_WithoutDisplay(t *testing.T) {
	h := New(platformtest.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := h.Bind([]config.Hotkey{{Keys: "Mod4-q", Action: config.HotkeyClose}}, func(config.Hotkey) {})
	if !errors.Is(err, ErrNoDisplay) {
		t.Fatalf("expected ErrNoDisplay, got %v", err)
	}
	if len(h.Bound()) != 0 {
		t.Fatalf("nothing should be bound")
	}
}
