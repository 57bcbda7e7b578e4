package commands

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int64
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, func() error {
			if ticks.Add(1) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := ticks.Load(); got != 3 {
		t.Fatalf("ticks = %d, want 3", got)
	}
}

func TestScheduler_TickPanicsAndErrorsDoNotStopLoop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, func() error {
			switch ticks.Add(1) {
			case 1:
				panic("tick exploded")
			case 2:
				return errors.New("tick failed")
			case 4:
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if got := ticks.Load(); got != 4 {
		t.Fatalf("ticks = %d, want 4", got)
	}
}

func TestScheduler_DrainsAllQueuesFromOneLoop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: quietLogger()})
	general := s.NewQueue("general")
	proxy := s.NewQueue("proxy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	general.Queue(Func("g", wg.Done))
	proxy.Queue(Func("p", wg.Done))

	go s.Run(ctx, nil)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued commands were not drained")
	}
}

func TestScheduler_DelayedCommandFiresAfterDelay(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: quietLogger()})
	q := s.NewQueue("general")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	fired := make(chan time.Duration, 1)
	q.Delay(50*time.Millisecond, Func("late", func() {
		fired <- time.Since(start)
	}))

	go s.Run(ctx, nil)

	select {
	case elapsed := <-fired:
		if elapsed < 50*time.Millisecond {
			t.Fatalf("delayed command fired after %v, before its 50ms delay", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed command never fired")
	}
}

func TestQueue_RunWithUpdateTicksAndDrains(t *testing.T) {
	q := NewQueue("solo", Config{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{})
	var once sync.Once
	var ticks atomic.Int64

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.RunWithUpdate(ctx, func() error {
			if ticks.Add(1) == 1 {
				q.Queue(Func("from-tick", func() { once.Do(func() { close(ran) }) }))
			}
			return nil
		})
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("command queued from tick never ran")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunWithUpdate() = %v, want context.Canceled", err)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2, quietLogger())

	var running, peak atomic.Int64
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		err := p.Submit(Threaded("job", func() error {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		}))
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestPool_PanicIsContained(t *testing.T) {
	p := NewPool(1, quietLogger())

	if err := p.Submit(Threaded("panics", func() error { panic("worker exploded") })); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	done := make(chan struct{})
	if err := p.Submit(Threaded("after", func() error { close(done); return nil })); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped running jobs after a panic")
	}
}

func TestPool_ShutdownWaitsAndRejects(t *testing.T) {
	p := NewPool(4, quietLogger())

	var finished atomic.Bool
	if err := p.Submit(Threaded("slow", func() error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if !finished.Load() {
		t.Fatal("Shutdown returned before in-flight job finished")
	}
	if err := p.Submit(Threaded("late", func() error { return nil })); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Submit() after Shutdown = %v, want ErrPoolClosed", err)
	}
}
