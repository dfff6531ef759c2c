package kernel

import (
	"context"
	"fmt"
	"time"
)

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Every calls fn at a fixed rate until ctx is done or fn fails.
func Every(ctx context.Context, period time.Duration, fn func(context.Context) error) error {
	if period <= 0 {
		return fmt.Errorf("kernel: invalid period %s", period)
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}
