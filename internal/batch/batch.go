// Package batch runs uniform work over a slice in fixed-size waves.
package batch

import (
	"context"
	"sync"
	"time"
)

// Run processes items in waves of at most concurrency goroutines.
// A wave fully settles before the next one starts, and delay is waited
// between waves but not after the last. Results keep the input order.
//
// When ctx is cancelled the current wave still settles, the remaining
// items are skipped and the settled results are returned with ctx.Err().
func Run[T, R any](
	ctx context.Context,
	items []T,
	concurrency int,
	delay time.Duration,
	worker func(context.Context, T) R,
) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]R, len(items))

	for i := 0; i < len(items); i += concurrency {
		end := i + concurrency
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for j := i; j < end; j++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = worker(ctx, items[idx])
			}(j)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return results[:end], err
		}
		if end < len(items) && delay > 0 {
			if err := wait(ctx, delay); err != nil {
				return results[:end], err
			}
		}
	}

	return results, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
