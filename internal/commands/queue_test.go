package commands

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(clock *fakeClock) *Queue {
	return NewQueue("test", Config{Logger: quietLogger(), Now: clock.Now})
}

type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) cmd(name string) Command {
	return Func(name, func() {
		r.mu.Lock()
		r.ran = append(r.ran, name)
		r.mu.Unlock()
	})
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func TestQueue_RunsOnceAfterDrain(t *testing.T) {
	q := newTestQueue(newFakeClock())
	var rec recorder

	q.Queue(rec.cmd("a"))
	if n := q.Drain(); n != 1 {
		t.Fatalf("Drain() = %d, want 1", n)
	}
	if n := q.Drain(); n != 0 {
		t.Fatalf("second Drain() = %d, want 0", n)
	}
	if got := rec.got(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("ran %v, want [a]", got)
	}
}

func TestQueue_SameJobTwiceRunsTwiceInOrder(t *testing.T) {
	q := newTestQueue(newFakeClock())
	var rec recorder

	a := rec.cmd("a")
	q.Queue(a)
	q.Queue(rec.cmd("b"))
	q.Queue(a)
	q.Drain()

	if got := rec.got(); !reflect.DeepEqual(got, []string{"a", "b", "a"}) {
		t.Fatalf("ran %v, want [a b a]", got)
	}
}

func TestQueue_DelayZeroRunsOnNextDrain(t *testing.T) {
	q := newTestQueue(newFakeClock())
	var rec recorder

	q.Delay(0, rec.cmd("now"))
	q.Drain()

	if got := rec.got(); !reflect.DeepEqual(got, []string{"now"}) {
		t.Fatalf("ran %v, want [now]", got)
	}
}

func TestQueue_LongDelayDoesNotRunEarly(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)
	var rec recorder

	q.Delay(1000*time.Second, rec.cmd("later"))
	q.Drain()
	if got := rec.got(); len(got) != 0 {
		t.Fatalf("ran %v before fire time", got)
	}
	if _, delayed := q.Len(); delayed != 1 {
		t.Fatalf("delayed = %d, want 1", delayed)
	}

	clock.Advance(999 * time.Second)
	q.Drain()
	if got := rec.got(); len(got) != 0 {
		t.Fatalf("ran %v one second early", got)
	}

	clock.Advance(time.Second)
	q.Drain()
	if got := rec.got(); !reflect.DeepEqual(got, []string{"later"}) {
		t.Fatalf("ran %v, want [later]", got)
	}
}

func TestQueue_ImmediateAndDelayedScenario(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)
	var rec recorder

	q.Queue(rec.cmd("A"))
	q.Queue(rec.cmd("B"))
	q.Delay(100*time.Millisecond, rec.cmd("C"))

	q.Drain()
	if got := rec.got(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("first drain ran %v, want [A B]", got)
	}

	clock.Advance(150 * time.Millisecond)
	q.Drain()
	if got := rec.got(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("second drain ran %v, want [A B C]", got)
	}
}

func TestQueue_DueDelayedRunAfterImmediateInInsertionOrder(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)
	var rec recorder

	q.Delay(20*time.Millisecond, rec.cmd("d1"))
	q.Delay(10*time.Millisecond, rec.cmd("d2"))
	q.Queue(rec.cmd("i1"))

	clock.Advance(50 * time.Millisecond)
	q.Drain()

	want := []string{"i1", "d1", "d2"}
	if got := rec.got(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ran %v, want %v", got, want)
	}
}

func TestQueue_JobQueuedDuringDrainRunsOnNextDrain(t *testing.T) {
	q := newTestQueue(newFakeClock())
	var rec recorder

	q.Queue(Func("outer", func() {
		rec.cmd("outer").Run()
		q.Queue(rec.cmd("inner"))
	}))

	q.Drain()
	if got := rec.got(); !reflect.DeepEqual(got, []string{"outer"}) {
		t.Fatalf("first drain ran %v, want [outer]", got)
	}
	q.Drain()
	if got := rec.got(); !reflect.DeepEqual(got, []string{"outer", "inner"}) {
		t.Fatalf("second drain ran %v, want [outer inner]", got)
	}
}

func TestQueue_FailingAndPanickingJobsDoNotStopBatch(t *testing.T) {
	q := newTestQueue(newFakeClock())
	var rec recorder

	q.Queue(Command{Name: "fails", Run: func() error { return errors.New("boom") }})
	q.Queue(Func("panics", func() { panic("kaboom") }))
	q.Queue(rec.cmd("after"))

	if n := q.Drain(); n != 3 {
		t.Fatalf("Drain() = %d, want 3", n)
	}
	if got := rec.got(); !reflect.DeepEqual(got, []string{"after"}) {
		t.Fatalf("ran %v, want [after]", got)
	}
}

func TestQueue_SuggestedTimeout(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	if got := q.SuggestedTimeout(); got != MaxWait {
		t.Fatalf("idle SuggestedTimeout() = %v, want %v", got, MaxWait)
	}

	q.Delay(5*time.Millisecond, Func("soon", func() {}))
	if got := q.SuggestedTimeout(); got != 5*time.Millisecond {
		t.Fatalf("SuggestedTimeout() = %v, want 5ms", got)
	}

	clock.Advance(time.Second)
	if got := q.SuggestedTimeout(); got != 0 {
		t.Fatalf("overdue SuggestedTimeout() = %v, want 0", got)
	}
}

func TestQueue_ThreadedRunsOnPool(t *testing.T) {
	q := newTestQueue(newFakeClock())

	done := make(chan struct{})
	release := make(chan struct{})
	q.Queue(Threaded("blocking", func() error {
		<-release
		close(done)
		return nil
	}))

	// Drain must return while the threaded job is still blocked.
	q.Drain()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("threaded command never ran")
	}
}
