// Package schedule runs the device's periodic units.
package schedule

import (
	"context"
	"time"
)

// Loop waits delay, then runs fn and sleeps period, forever. The sleep at
// the end of each iteration is the only suspension point. Loop returns
// when ctx is cancelled.
func Loop(ctx context.Context, delay, period time.Duration, fn func(context.Context)) {
	if delay > 0 && !Sleep(ctx, delay) {
		return
	}
	for ctx.Err() == nil {
		fn(ctx)
		if !Sleep(ctx, period) {
			return
		}
	}
}

// Sleep blocks for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
