package x11

import (
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
)

const (
	// A window that leaves a _NET_WM_PING unanswered this long is hung.
	pingHungAfter = 5 * time.Second
	// Minimum spacing between pings to the same window.
	pingEvery = 2 * time.Second
)

type pingState struct {
	supported   bool
	checked     bool
	outstanding bool
	sentAt      time.Time
}

type pingTracker struct {
	mu    sync.Mutex
	state map[xproto.Window]*pingState
	now   func() time.Time
}

func newPingTracker() *pingTracker {
	return &pingTracker{
		state: make(map[xproto.Window]*pingState),
		now:   time.Now,
	}
}

// retain drops tracking for windows that are no longer in live.
func (p *pingTracker) retain(live []xproto.Window) {
	keep := make(map[xproto.Window]struct{}, len(live))
	for _, w := range live {
		keep[w] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for w := range p.state {
		if _, ok := keep[w]; !ok {
			delete(p.state, w)
		}
	}
}

func (p *pingTracker) pong(win xproto.Window) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.state[win]; ok {
		st.outstanding = false
	}
}

// IsHung reports whether windowID has an unanswered _NET_WM_PING older than
// pingHungAfter. Windows that do not advertise _NET_WM_PING are never hung.
// Calling it also sends a fresh ping when one is due.
func (c *Connection) IsHung(windowID xproto.Window) bool {
	p := c.pings
	now := p.now()

	p.mu.Lock()
	st, ok := p.state[windowID]
	if !ok {
		st = &pingState{}
		p.state[windowID] = st
	}
	checked := st.checked
	p.mu.Unlock()

	if !checked {
		supported := supportsPing(c.XUtil, windowID)
		p.mu.Lock()
		st.checked = true
		st.supported = supported
		p.mu.Unlock()
	}

	p.mu.Lock()
	if !st.supported {
		p.mu.Unlock()
		return false
	}
	if st.outstanding {
		hung := now.Sub(st.sentAt) >= pingHungAfter
		p.mu.Unlock()
		return hung
	}
	due := st.sentAt.IsZero() || now.Sub(st.sentAt) >= pingEvery
	if due {
		st.outstanding = true
		st.sentAt = now
	}
	p.mu.Unlock()

	if due {
		if err := c.sendPing(windowID, now); err != nil {
			p.mu.Lock()
			st.outstanding = false
			p.mu.Unlock()
		}
	}
	return false
}

func supportsPing(xu *xgbutil.XUtil, windowID xproto.Window) bool {
	protocols, err := icccm.WmProtocolsGet(xu, windowID)
	if err != nil {
		return false
	}
	for _, proto := range protocols {
		if proto == "_NET_WM_PING" {
			return true
		}
	}
	return false
}

func (c *Connection) sendPing(windowID xproto.Window, now time.Time) error {
	pingAtom, err := c.atom("_NET_WM_PING")
	if err != nil {
		return err
	}
	timestamp := uint32(now.UnixMilli())
	return c.sendClientMessage(
		windowID,
		windowID,
		"WM_PROTOCOLS",
		[]uint32{uint32(pingAtom), timestamp, uint32(windowID)},
		xproto.EventMaskNoEvent,
	)
}

// handleClientMessage picks ping replies off the root window.
func (c *Connection) handleClientMessage(xu *xgbutil.XUtil, ev xevent.ClientMessageEvent) {
	if ev.Format != 32 {
		return
	}
	protocols, err := c.atom("WM_PROTOCOLS")
	if err != nil || ev.Type != protocols {
		return
	}
	pingAtom, err := c.atom("_NET_WM_PING")
	if err != nil {
		return
	}
	data := ev.Data.Data32
	if len(data) < 3 || xproto.Atom(data[0]) != pingAtom {
		return
	}
	c.pings.pong(xproto.Window(data[2]))
}
