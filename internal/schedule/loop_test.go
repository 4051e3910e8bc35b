package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})
	go func() {
		Loop(ctx, 0, time.Millisecond, func(context.Context) {
			if n.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	if got := n.Load(); got != 3 {
		t.Errorf("ran %d times, want 3", got)
	}
}

func TestLoopHonoursDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	first := make(chan time.Duration, 1)
	go Loop(ctx, 50*time.Millisecond, time.Hour, func(context.Context) {
		first <- time.Since(start)
	})

	select {
	case d := <-first:
		if d < 50*time.Millisecond {
			t.Errorf("first run after %v, want >= 50ms", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop never ran")
	}
}

func TestLoopCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	Loop(ctx, time.Hour, time.Hour, func(context.Context) { ran = true })
	if ran {
		t.Error("fn ran after cancellation")
	}
}

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Error("Sleep reported early wake-up")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Error("Sleep ignored cancellation")
	}
}
