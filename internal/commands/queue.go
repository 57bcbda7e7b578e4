package commands

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MaxWait bounds how long the scheduler sleeps between ticks when no
// delayed command is due sooner.
const MaxWait = time.Second / 60

// Config configures a Queue.
type Config struct {
	Logger *slog.Logger
	// Pool runs threaded commands. A nil Pool gets a private DefaultPoolSize pool.
	Pool *Pool
	// Now is the clock used for delayed fire times. Defaults to time.Now.
	Now func() time.Time
	// Wake is signalled whenever a command is added. Queues drained by the
	// same Scheduler share one channel. Defaults to a fresh channel.
	Wake chan struct{}
}

type delayedCommand struct {
	fireAt time.Time
	cmd    Command
}

// Queue holds immediate commands in insertion order and delayed commands
// keyed by fire time. Any goroutine may add commands; only the scheduler
// drains them.
type Queue struct {
	name   string
	logger *slog.Logger
	pool   *Pool
	now    func() time.Time
	wake   chan struct{}

	mu        sync.Mutex
	immediate []Command
	delayed   []delayedCommand
}

// NewQueue creates a named queue.
func NewQueue(name string, cfg Config) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Wake == nil {
		cfg.Wake = make(chan struct{}, 1)
	}
	if cfg.Pool == nil {
		cfg.Pool = NewPool(DefaultPoolSize, cfg.Logger)
	}
	return &Queue{
		name:   name,
		logger: cfg.Logger.With("queue", name),
		pool:   cfg.Pool,
		now:    cfg.Now,
		wake:   cfg.Wake,
	}
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Queue appends an immediate command and wakes the scheduler.
func (q *Queue) Queue(cmd Command) {
	q.mu.Lock()
	q.immediate = append(q.immediate, cmd)
	q.mu.Unlock()
	q.signal()
}

// Delay appends a command that becomes due d from now.
func (q *Queue) Delay(d time.Duration, cmd Command) {
	q.mu.Lock()
	q.delayed = append(q.delayed, delayedCommand{fireAt: q.now().Add(d), cmd: cmd})
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of immediate and delayed commands pending.
func (q *Queue) Len() (immediate, delayed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.immediate), len(q.delayed)
}

// SuggestedTimeout returns how long the scheduler may wait before the next
// drain: MaxWait, or less if a delayed command is due sooner. Never negative.
func (q *Queue) SuggestedTimeout() time.Duration {
	return q.suggestedTimeout(MaxWait)
}

func (q *Queue) suggestedTimeout(ceiling time.Duration) time.Duration {
	now := q.now()
	wait := ceiling

	q.mu.Lock()
	for _, d := range q.delayed {
		wait = min(wait, d.fireAt.Sub(now))
	}
	q.mu.Unlock()

	return max(wait, 0)
}

// Drain runs every immediate command followed by every delayed command
// that is due, in insertion order. Commands added while draining run on the
// next drain. A failing or panicking command is logged and the rest still
// run. Drain returns the number of commands dispatched.
func (q *Queue) Drain() int {
	now := q.now()

	q.mu.Lock()
	batch := q.immediate
	q.immediate = nil
	pending := q.delayed[:0:0]
	for _, d := range q.delayed {
		if !d.fireAt.After(now) {
			batch = append(batch, d.cmd)
		} else {
			pending = append(pending, d)
		}
	}
	q.delayed = pending
	q.mu.Unlock()

	for _, cmd := range batch {
		q.dispatch(cmd)
	}
	return len(batch)
}

func (q *Queue) dispatch(cmd Command) {
	if cmd.Threaded {
		if err := q.pool.Submit(cmd); err != nil {
			q.logger.Warn("threaded command dropped", "command", cmd.label(), "error", err)
		}
		return
	}
	if err := cmd.execute(); err != nil {
		logFailure(q.logger, "command failed", cmd.label(), err)
	}
}

// RunWithUpdate runs tick and drains the queue in a loop until ctx is done.
func (q *Queue) RunWithUpdate(ctx context.Context, tick func() error) error {
	s := &Scheduler{
		logger:  q.logger,
		wake:    q.wake,
		maxWait: MaxWait,
		queues:  []*Queue{q},
	}
	return s.Run(ctx, tick)
}
