package daemon

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/1broseidon/wintile/internal/classify"
	"github.com/1broseidon/wintile/internal/platform"
	"github.com/1broseidon/wintile/internal/winproxy"
)

// ManagerConfig holds configuration for the manager.
type ManagerConfig struct {
	Logger          *slog.Logger
	Registry        *winproxy.Registry
	Classifier      *classify.Classifier
	RemoveTitlebars bool
}

// WindowState pairs a proxy snapshot with its classification.
type WindowState struct {
	winproxy.Snapshot
	State  classify.State
	Reason classify.Reason
}

type tracked struct {
	gen    uint64
	state  classify.State
	reason classify.Reason
}

// Manager is the per-tick driver: it refreshes the registry, advances every
// proxy and classifies windows whose snapshot changed. Tick and Reset run
// on the scheduling goroutine; Windows and Counts are safe from anywhere.
type Manager struct {
	logger          *slog.Logger
	registry        *winproxy.Registry
	classifier      *classify.Classifier
	removeTitlebars atomic.Bool
	ticks           atomic.Uint64

	// Owned by the scheduling goroutine.
	seen map[platform.Handle]tracked

	mu     sync.Mutex
	states map[platform.Handle]tracked
}

// NewManager creates a manager over an existing registry and classifier.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Manager{
		logger:     cfg.Logger,
		registry:   cfg.Registry,
		classifier: cfg.Classifier,
		seen:       make(map[platform.Handle]tracked),
		states:     make(map[platform.Handle]tracked),
	}
	m.removeTitlebars.Store(cfg.RemoveTitlebars)
	return m
}

// Registry returns the proxy registry.
func (m *Manager) Registry() *winproxy.Registry { return m.registry }

// Classifier returns the classifier. Mutate it only from the scheduling
// goroutine.
func (m *Manager) Classifier() *classify.Classifier { return m.classifier }

// SetRemoveTitlebars toggles titlebar removal for tiled windows.
func (m *Manager) SetRemoveTitlebars(v bool) { m.removeTitlebars.Store(v) }

// Ticks returns the number of Tick calls so far.
func (m *Manager) Ticks() uint64 { return m.ticks.Load() }

// Tick performs one pass. Enumeration failures are returned to the
// scheduler, which logs them; the next tick tries again.
func (m *Manager) Tick() error {
	m.ticks.Add(1)
	changes, err := m.registry.Refresh()
	if err != nil {
		return err
	}
	for _, p := range changes.Removed {
		delete(m.seen, p.Handle())
		m.logger.Debug("window removed", "window", p)
	}

	m.registry.UpdateAll()

	for _, p := range m.registry.Proxies() {
		if !p.Valid() || p.PermanentIgnore() {
			continue
		}
		m.classify(p)
	}

	m.publish()
	return nil
}

// classify re-evaluates a proxy when it published a new snapshot. Windows
// that are temporarily ignored are re-evaluated every tick, since the
// off-screen rule depends on the desktop as well as the window.
func (m *Manager) classify(p *winproxy.Proxy) {
	gen := p.Generation()
	if gen == 0 {
		return
	}
	prev, known := m.seen[p.Handle()]
	if known && prev.gen == gen && prev.state != classify.IgnoreTemporary {
		return
	}

	info := p.Info()
	state, reason := m.classifier.Classify(info)

	p.SetPermanentIgnore(state == classify.IgnorePermanent)
	p.SetTemporaryIgnore(state == classify.IgnoreTemporary)
	if state == classify.Tiled && m.removeTitlebars.Load() {
		p.SetWantRemovedTitlebar(true)
	}

	if !known || prev.state != state || prev.reason != reason {
		m.logger.Info("window classified",
			"window", p,
			"state", state,
			"reason", string(reason))
	}
	m.seen[p.Handle()] = tracked{gen: gen, state: state, reason: reason}
}

func (m *Manager) publish() {
	next := make(map[platform.Handle]tracked, len(m.seen))
	for h, t := range m.seen {
		next[h] = t
	}
	m.mu.Lock()
	m.states = next
	m.mu.Unlock()
}

// Reset forgets every classification and lifts permanent ignores so the
// next tick re-evaluates all windows, e.g. after the rules changed.
func (m *Manager) Reset() {
	for _, p := range m.registry.Proxies() {
		p.SetPermanentIgnore(false)
		p.SetTemporaryIgnore(false)
		p.SetWantRemovedTitlebar(false)
	}
	m.seen = make(map[platform.Handle]tracked)
}

// Windows returns every tracked window, ordered by registration.
func (m *Manager) Windows() []WindowState {
	snaps := m.registry.Snapshot()

	m.mu.Lock()
	states := m.states
	m.mu.Unlock()

	out := make([]WindowState, 0, len(snaps))
	for _, s := range snaps {
		ws := WindowState{Snapshot: s, State: classify.Unknown}
		if t, ok := states[s.Handle]; ok {
			ws.State = t.state
			ws.Reason = t.reason
		}
		out = append(out, ws)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Counts tallies windows by state.
func (m *Manager) Counts() map[classify.State]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[classify.State]int)
	for _, t := range m.states {
		out[t.state]++
	}
	return out
}
