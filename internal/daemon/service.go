package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/wintile/internal/classify"
	"github.com/1broseidon/wintile/internal/commands"
	"github.com/1broseidon/wintile/internal/config"
	"github.com/1broseidon/wintile/internal/filters"
	"github.com/1broseidon/wintile/internal/ipc"
	"github.com/1broseidon/wintile/internal/platform"
	"github.com/1broseidon/wintile/internal/winproxy"
)

// shutdownTimeout bounds how long Run waits for threaded commands on exit.
const shutdownTimeout = 5 * time.Second

// EventLoop is a blocking window-system event pump.
type EventLoop interface {
	EventLoop()
	StopEventLoop()
}

// HotkeyBinder grabs key sequences. Bind replaces any earlier bindings.
type HotkeyBinder interface {
	Bind(bindings []config.Hotkey, dispatch func(config.Hotkey)) error
}

// Options configures a Service.
type Options struct {
	Logger *slog.Logger
	// LevelVar, when set, follows logging.level across reloads.
	LevelVar   *slog.LevelVar
	ConfigPath string
	// Config is the initial config. Nil loads ConfigPath.
	Config *config.Config
	// ConfigFiles lists the files Config was merged from, for status.
	ConfigFiles []string
	Backend     platform.Backend
	// SocketPath enables the IPC server when non-empty.
	SocketPath string
	// Watch reloads on changes to ConfigPath.
	Watch     bool
	EventLoop EventLoop
	Hotkeys   HotkeyBinder
	Now       func() time.Time
}

// Service wires the scheduler, the proxy registry, the classifier and the
// outer surfaces (IPC, hotkeys, config reload) into one daemon.
type Service struct {
	logger   *slog.Logger
	opts     Options
	backend  platform.Backend
	sched    *commands.Scheduler
	main     *commands.Queue
	registry *winproxy.Registry
	policy   *filters.Policy
	manager  *Manager
	started  time.Time

	mu      sync.Mutex
	cfg     *config.Config
	files   []string
	watcher *config.Watcher
}

// New builds a Service. Nothing runs until Run.
func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cfg := opts.Config
	files := opts.ConfigFiles
	if cfg == nil {
		res, err := loadConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = res.Config
		files = res.Files
	}

	policy, err := cfg.FilterPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to compile filters: %w", err)
	}

	sched := commands.NewScheduler(commands.SchedulerConfig{
		Logger:   opts.Logger,
		PoolSize: cfg.Scheduler.PoolSize,
		MaxWait:  cfg.Scheduler.MaxWait,
		Now:      opts.Now,
	})
	main := sched.NewQueue("main")
	proxyQueue := sched.NewQueue("proxy")

	registry := winproxy.NewRegistry(winproxy.Config{
		Logger:              opts.Logger,
		Native:              opts.Backend,
		Queue:               proxyQueue,
		Layout:              cfg.WinproxyLayout(),
		InteractableClasses: cfg.Classification.InteractableClasses,
		Now:                 opts.Now,
	})
	classifier := classify.New(cfg.ClassifyRules(), policy, opts.Backend)

	s := &Service{
		logger:   opts.Logger,
		opts:     opts,
		backend:  opts.Backend,
		sched:    sched,
		main:     main,
		registry: registry,
		policy:   policy,
		manager: NewManager(ManagerConfig{
			Logger:          opts.Logger,
			Registry:        registry,
			Classifier:      classifier,
			RemoveTitlebars: cfg.RemoveTitlebars,
		}),
		started: opts.Now(),
		cfg:     cfg,
		files:   files,
	}
	if opts.LevelVar != nil {
		opts.LevelVar.Set(cfg.Logging.SlogLevel())
	}
	return s, nil
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

// Manager returns the per-tick driver.
func (s *Service) Manager() *Manager { return s.manager }

// Queue returns the general command queue drained by the scheduler.
func (s *Service) Queue() *commands.Queue { return s.main }

// Config returns the active config.
func (s *Service) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run drives the scheduler and every configured surface until ctx is done,
// then restores the windows it changed.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.opts.SocketPath != "" {
		srv := ipc.NewServer(s.opts.SocketPath, s, s.logger)
		if err := srv.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			srv.Stop()
			return nil
		})
	}

	if s.opts.Watch && s.opts.ConfigPath != "" {
		w, err := config.NewWatcher(s.opts.ConfigPath, s.logger)
		if err != nil {
			s.logger.Warn("config watch disabled", "error", err)
		} else {
			s.mu.Lock()
			s.watcher = w
			w.Watch(s.files)
			s.mu.Unlock()
			g.Go(func() error {
				return ignoreCanceled(w.Run(ctx, func() { s.reloadAndLog(ctx, "file change") }))
			})
		}
	}

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGHUP)
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigCh:
				s.reloadAndLog(ctx, "SIGHUP")
			}
		}
	})

	if s.opts.EventLoop != nil {
		loop := s.opts.EventLoop
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					loop.StopEventLoop()
				case <-done:
				}
			}()
			loop.EventLoop()
			close(done)
			if ctx.Err() == nil {
				return errors.New("window system event loop exited")
			}
			return nil
		})
	}

	if err := s.bindHotkeys(s.Config()); err != nil {
		s.logger.Warn("failed to bind hotkeys", "error", err)
	}

	g.Go(func() error {
		s.logger.Info("scheduler started")
		return ignoreCanceled(s.sched.Run(ctx, s.manager.Tick))
	})

	err := g.Wait()

	s.registry.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if perr := s.sched.Pool().Shutdown(shutdownCtx); perr != nil {
		s.logger.Warn("threaded commands still running at exit", "error", perr)
	}
	s.logger.Info("daemon stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Reload re-reads the config file and applies it on the scheduling
// goroutine. On error the running config is kept.
func (s *Service) Reload(ctx context.Context) error {
	res, err := loadConfig(s.opts.ConfigPath)
	if err != nil {
		return err
	}
	if err := s.onScheduler(ctx, "reload", func() error { return s.apply(res.Config) }); err != nil {
		return err
	}
	s.mu.Lock()
	s.files = res.Files
	if s.watcher != nil {
		s.watcher.Watch(res.Files)
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) reloadAndLog(ctx context.Context, trigger string) {
	if err := s.Reload(ctx); err != nil {
		s.logger.Error("config reload failed", "trigger", trigger, "error", err)
		return
	}
	s.logger.Info("config reloaded", "trigger", trigger)
}

// onScheduler queues fn on the general queue and waits for it to run.
func (s *Service) onScheduler(ctx context.Context, name string, fn func() error) error {
	done := make(chan error, 1)
	s.main.Queue(commands.Func(name, func() { done <- fn() }))
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply swaps every reloadable setting. Scheduler sizing is fixed at start.
func (s *Service) apply(cfg *config.Config) error {
	if err := s.policy.Replace(cfg.Filters); err != nil {
		return fmt.Errorf("failed to compile filters: %w", err)
	}
	s.manager.Classifier().SetRules(cfg.ClassifyRules())
	s.registry.SetLayoutConfig(cfg.WinproxyLayout())
	s.registry.SetInteractableClasses(cfg.Classification.InteractableClasses)
	s.manager.SetRemoveTitlebars(cfg.RemoveTitlebars)
	s.manager.Reset()
	if s.opts.LevelVar != nil {
		s.opts.LevelVar.Set(cfg.Logging.SlogLevel())
	}
	if err := s.bindHotkeys(cfg); err != nil {
		s.logger.Warn("failed to bind hotkeys", "error", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Service) bindHotkeys(cfg *config.Config) error {
	if s.opts.Hotkeys == nil {
		return nil
	}
	return s.opts.Hotkeys.Bind(cfg.Hotkeys, s.HandleHotkey)
}
