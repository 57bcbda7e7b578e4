package winproxy

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"github.com/1broseidon/wintile/internal/commands"
	"github.com/1broseidon/wintile/internal/platform"
)

// DefaultLogRates limits repeated failure logs for the same window and
// failure kind.
var DefaultLogRates = map[time.Duration]int{
	time.Minute: 3,
	time.Hour:   20,
}

// DefaultInteractableClasses lists window classes that may be reported
// visible during their grace window.
func DefaultInteractableClasses() []string {
	return []string{
		"firefox",
		"chromium",
		"google-chrome",
		"code",
		"alacritty",
		"kitty",
		"org.wezfurlong.wezterm",
		"gnome-terminal-server",
		"xterm",
		"emacs",
		"thunar",
		"nautilus",
	}
}

// Config configures a Registry.
type Config struct {
	Logger *slog.Logger
	Native platform.NativeAPI
	// Queue receives every proxy Op. It must be drained by the goroutine
	// that calls Refresh and UpdateAll.
	Queue               *commands.Queue
	Layout              LayoutConfig
	InteractableClasses []string
	LogRates            map[time.Duration]int
	Now                 func() time.Time
}

// Registry owns the proxies of all enumerated windows.
type Registry struct {
	logger  *slog.Logger
	native  platform.NativeAPI
	queue   *commands.Queue
	now     func() time.Time
	limiter *catrate.Limiter
	started time.Time

	// mu guards the proxy set, the settings below, and every proxy's
	// published snapshot and pending intents. It is never held across a
	// native call.
	mu           sync.Mutex
	proxies      map[platform.Handle]*Proxy
	order        []*Proxy
	layout       LayoutConfig
	interactable map[string]struct{}

	// Owned by the scheduling goroutine.
	nextSeq uint64
	tick    uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Queue == nil {
		cfg.Queue = commands.NewQueue("proxy", commands.Config{Logger: cfg.Logger, Now: cfg.Now})
	}
	if cfg.LogRates == nil {
		cfg.LogRates = DefaultLogRates
	}
	if cfg.InteractableClasses == nil {
		cfg.InteractableClasses = DefaultInteractableClasses()
	}

	r := &Registry{
		logger:  cfg.Logger,
		native:  cfg.Native,
		queue:   cfg.Queue,
		now:     cfg.Now,
		limiter: catrate.NewLimiter(cfg.LogRates),
		started: cfg.Now(),
		proxies: make(map[platform.Handle]*Proxy),
		layout:  cfg.Layout,
	}
	r.SetInteractableClasses(cfg.InteractableClasses)
	return r
}

// Queue returns the queue proxy Ops are sent to.
func (r *Registry) Queue() *commands.Queue { return r.queue }

// SetLayoutConfig replaces the gap settings used by later layouts.
func (r *Registry) SetLayoutConfig(cfg LayoutConfig) {
	r.mu.Lock()
	r.layout = cfg
	r.mu.Unlock()
}

func (r *Registry) layoutConfig() LayoutConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layout
}

// SetInteractableClasses replaces the force-visible allow-list.
func (r *Registry) SetInteractableClasses(classes []string) {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		set[strings.ToLower(c)] = struct{}{}
	}
	r.mu.Lock()
	r.interactable = set
	r.mu.Unlock()
}

func (r *Registry) isInteractable(class string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.interactable[strings.ToLower(class)]
	return ok
}

type logKey struct {
	handle platform.Handle
	kind   string
}

func (r *Registry) allowLog(h platform.Handle, kind string) bool {
	_, ok := r.limiter.Allow(logKey{handle: h, kind: kind})
	return ok
}

// Changes lists the proxies added and removed by one Refresh.
type Changes struct {
	Added   []*Proxy
	Removed []*Proxy
}

// Refresh enumerates native windows, creating proxies for new handles and
// tearing down proxies that are invalid or no longer enumerated.
func (r *Registry) Refresh() (Changes, error) {
	var ch Changes

	handles, err := r.native.Windows()
	if err != nil {
		return ch, fmt.Errorf("failed to enumerate windows: %w", err)
	}
	now := r.now()

	seen := make(map[platform.Handle]struct{}, len(handles))
	for _, h := range handles {
		seen[h] = struct{}{}
	}

	r.mu.Lock()
	kept := make([]*Proxy, 0, len(r.order)+len(handles))
	for _, p := range r.order {
		if _, ok := seen[p.handle]; !ok || !p.valid.Load() {
			delete(r.proxies, p.handle)
			ch.Removed = append(ch.Removed, p)
			continue
		}
		kept = append(kept, p)
	}
	for _, h := range handles {
		if _, ok := r.proxies[h]; ok {
			continue
		}
		p := newProxy(r, h, r.nextSeq, now)
		r.nextSeq++
		r.proxies[h] = p
		kept = append(kept, p)
		ch.Added = append(ch.Added, p)
	}
	r.order = kept
	r.mu.Unlock()

	for _, p := range ch.Removed {
		p.teardown()
	}
	return ch, nil
}

// UpdateAll advances the global tick and runs every proxy's per-tick update.
func (r *Registry) UpdateAll() {
	r.tick++
	now := r.now()
	for _, p := range r.Proxies() {
		p.update(r.tick, now)
	}
}

// Tick returns the number of UpdateAll calls so far.
func (r *Registry) Tick() uint64 { return r.tick }

// Started returns when the registry was created.
func (r *Registry) Started() time.Time { return r.started }

// Get returns the proxy for h.
func (r *Registry) Get(h platform.Handle) (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proxies[h]
	return p, ok
}

// Proxies returns the tracked proxies in registration order.
func (r *Registry) Proxies() []*Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Proxy, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot is the published view of one proxy.
type Snapshot struct {
	Handle          platform.Handle
	Seq             uint64
	Valid           bool
	PermanentIgnore bool
	TemporaryIgnore bool
	AlwaysOnTop     bool
	Generation      uint64
	Attributes      platform.Attributes
}

// Snapshot returns the published state of every proxy. Safe from any
// goroutine.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, Snapshot{
			Handle:          p.handle,
			Seq:             p.seq,
			Valid:           p.valid.Load(),
			PermanentIgnore: p.permanentIgnore.Load(),
			TemporaryIgnore: p.temporaryIgnore.Load(),
			AlwaysOnTop:     p.alwaysTop,
			Generation:      p.generation,
			Attributes:      p.published,
		})
	}
	return out
}

// Close tears down every proxy, restoring the native state they forced.
// Call it from the scheduling goroutine, or after it has stopped.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.order
	r.order = nil
	r.proxies = make(map[platform.Handle]*Proxy)
	r.mu.Unlock()

	for _, p := range all {
		p.teardown()
	}
}
