package reminder

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// WaitUntil polls cond every interval until it reports true, the timeout
// elapses or ctx is cancelled. The first poll happens immediately. Errors and
// panics from cond count as "not yet" and polling continues.
func WaitUntil(ctx context.Context, interval, timeout time.Duration, cond func(context.Context) (bool, error)) bool {
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		// Wait fails once the next tick would land past the deadline.
		if err := limiter.Wait(ctx); err != nil {
			return false
		}
		if poll(ctx, cond) {
			return true
		}
	}
}

func poll(ctx context.Context, cond func(context.Context) (bool, error)) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	done, err := cond(ctx)
	return err == nil && done
}
