package x11

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/xgb/randr"
)

// Monitor is one physical output, or a group of outputs mirroring the
// same region.
type Monitor struct {
	ID      int
	Name    string
	Primary bool
	Area
}

// GetMonitors lists active monitors via RandR, primary first, then left to
// right and top to bottom. Without RandR the whole screen is one monitor.
func (c *Connection) GetMonitors() ([]Monitor, error) {
	xc := c.XUtil.Conn()
	if err := randr.Init(xc); err != nil {
		return []Monitor{c.screenMonitor()}, nil
	}

	res, err := randr.GetScreenResources(xc, c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}
	var primary randr.Output
	if p, err := randr.GetOutputPrimary(xc, c.Root).Reply(); err == nil {
		primary = p.Output
	}

	var monitors []Monitor
	for i, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(xc, crtc, res.ConfigTimestamp).Reply()
		if err != nil || info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		m := Monitor{
			ID:   i,
			Area: Area{X: int(info.X), Y: int(info.Y), Width: int(info.Width), Height: int(info.Height)},
		}
		var names []string
		for _, out := range info.Outputs {
			if out == primary && primary != 0 {
				m.Primary = true
			}
			if oi, err := randr.GetOutputInfo(xc, out, res.ConfigTimestamp).Reply(); err == nil {
				names = append(names, string(oi.Name))
			}
		}
		m.Name = strings.Join(names, "+")
		if m.Name == "" {
			m.Name = fmt.Sprintf("crtc%d", i)
		}
		monitors = append(monitors, m)
	}

	if len(monitors) == 0 {
		return []Monitor{c.screenMonitor()}, nil
	}
	return orderMonitors(mergeMirrored(monitors)), nil
}

func (c *Connection) screenMonitor() Monitor {
	s := c.XUtil.Screen()
	return Monitor{
		Name:    "screen",
		Primary: true,
		Area:    Area{Width: int(s.WidthInPixels), Height: int(s.HeightInPixels)},
	}
}

// mergeMirrored folds CRTCs scanning out the same region into one monitor.
func mergeMirrored(in []Monitor) []Monitor {
	var out []Monitor
	byArea := map[Area]int{}
	for _, m := range in {
		if i, ok := byArea[m.Area]; ok {
			out[i].Name += "+" + m.Name
			out[i].Primary = out[i].Primary || m.Primary
			continue
		}
		byArea[m.Area] = len(out)
		out = append(out, m)
	}
	return out
}

func orderMonitors(ms []Monitor) []Monitor {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Primary != b.Primary {
			return a.Primary
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return ms
}

// UsableArea clips a monitor to the current desktop's work area, which
// leaves out panels and docks.
func (c *Connection) UsableArea(m Monitor) Area {
	wa, ok := c.Desktops().Workarea()
	if !ok {
		return m.Area
	}
	return clipArea(m.Area, wa)
}

// clipArea intersects a with clip, keeping a when they do not overlap.
func clipArea(a, clip Area) Area {
	x1, y1 := max(a.X, clip.X), max(a.Y, clip.Y)
	x2 := min(a.X+a.Width, clip.X+clip.Width)
	y2 := min(a.Y+a.Height, clip.Y+clip.Height)
	if x2 <= x1 || y2 <= y1 {
		return a
	}
	return Area{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}
