package commands

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger
	// PoolSize bounds concurrently running threaded commands.
	PoolSize int
	// MaxWait caps the sleep between ticks. Defaults to MaxWait.
	MaxWait time.Duration
	Now     func() time.Time
}

// Scheduler owns one or more queues that share a wake channel and drains
// them all from the goroutine calling Run.
type Scheduler struct {
	logger  *slog.Logger
	pool    *Pool
	now     func() time.Time
	wake    chan struct{}
	maxWait time.Duration
	queues  []*Queue
}

// NewScheduler creates a scheduler with its own worker pool.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = MaxWait
	}
	return &Scheduler{
		logger:  cfg.Logger,
		pool:    NewPool(cfg.PoolSize, cfg.Logger),
		now:     cfg.Now,
		wake:    make(chan struct{}, 1),
		maxWait: cfg.MaxWait,
	}
}

// NewQueue creates a queue drained by this scheduler. Queues are drained in
// creation order.
func (s *Scheduler) NewQueue(name string) *Queue {
	q := NewQueue(name, Config{
		Logger: s.logger,
		Pool:   s.pool,
		Now:    s.now,
		Wake:   s.wake,
	})
	s.queues = append(s.queues, q)
	return q
}

// Pool returns the worker pool used for threaded commands.
func (s *Scheduler) Pool() *Pool { return s.pool }

// Run calls tick, waits for work or the next due timer, and drains every
// queue, until ctx is done. Errors and panics from tick are logged and
// never stop the loop. Run returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, tick func() error) error {
	timer := time.NewTimer(s.maxWait)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.runTick(tick)

		if !s.wait(ctx, timer) {
			return ctx.Err()
		}
		for _, q := range s.queues {
			q.Drain()
		}
	}
}

// Drain drains every queue once.
func (s *Scheduler) Drain() int {
	n := 0
	for _, q := range s.queues {
		n += q.Drain()
	}
	return n
}

func (s *Scheduler) runTick(tick func() error) {
	if tick == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := tick(); err != nil {
		s.logger.Error("tick failed", "error", err)
	}
}

// wait blocks until a queue is signalled or the suggested timeout elapses.
// It returns false if ctx is done first.
func (s *Scheduler) wait(ctx context.Context, timer *time.Timer) bool {
	timeout := s.maxWait
	for _, q := range s.queues {
		timeout = min(timeout, q.suggestedTimeout(s.maxWait))
	}

	if timeout <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-s.wake:
		default:
		}
		return true
	}

	timer.Reset(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.wake:
	case <-timer.C:
	}
	return true
}
