package x11

import "testing"

func TestMergeMirroredAndOrder(t *testing.T) {
	in := []Monitor{
		{ID: 0, Name: "DP-2", Area: Area{X: 1920, Width: 2560, Height: 1440}},
		{ID: 1, Name: "eDP-1", Area: Area{Width: 1920, Height: 1080}},
		{ID: 2, Name: "HDMI-1", Primary: true, Area: Area{Width: 1920, Height: 1080}},
		{ID: 3, Name: "DP-3", Area: Area{X: 1920, Y: 1440, Width: 1920, Height: 1080}},
	}

	got := orderMonitors(mergeMirrored(in))
	if len(got) != 3 {
		t.Fatalf("expected 3 monitors, got %+v", got)
	}
	if got[0].Name != "eDP-1+HDMI-1" || !got[0].Primary {
		t.Fatalf("mirrored pair should merge and sort first: %+v", got[0])
	}
	if got[1].Name != "DP-2" || got[2].Name != "DP-3" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestClipArea(t *testing.T) {
	mon := Area{X: 1920, Width: 1920, Height: 1080}

	got := clipArea(mon, Area{Y: 32, Width: 3840, Height: 1048})
	if got != (Area{X: 1920, Y: 32, Width: 1920, Height: 1048}) {
		t.Fatalf("clip = %+v", got)
	}
	if got := clipArea(mon, Area{Width: 1920, Height: 1080}); got != mon {
		t.Fatalf("disjoint work area should leave the monitor alone, got %+v", got)
	}
}

func TestDesktopsWorkarea(t *testing.T) {
	d := Desktops{Current: 1, Workareas: []Area{{Width: 10, Height: 10}, {Width: 20, Height: 20}}}
	if wa, ok := d.Workarea(); !ok || wa.Width != 20 {
		t.Fatalf("expected current desktop area, got %+v %v", wa, ok)
	}
	d.Current = 5
	if wa, ok := d.Workarea(); !ok || wa.Width != 10 {
		t.Fatalf("expected fallback to first area, got %+v %v", wa, ok)
	}
	if _, ok := (Desktops{}).Workarea(); ok {
		t.Fatalf("expected no work area")
	}
}
