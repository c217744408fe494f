package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
)

// Config bounds a retried operation. Total latency is capped at
// (Attempts+1) operation timeouts plus Attempts * Delay: the delay is
// constant, not exponential, so callers can reason about the worst case.
type Config struct {
	Attempts int           // retries after the first invocation
	Delay    time.Duration // constant wait between invocations
	Name     string        // operation name, tags the final error
}

// Do invokes op up to cfg.Attempts+1 times, waiting cfg.Delay between
// invocations. The wrapped operation must be safe to re-invoke; Do does
// not deduplicate partial effects of earlier attempts.
//
// Rate-limit and validation errors abort immediately: retrying into a
// rate limit worsens it, and a malformed request never heals.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	var last error
	for attempt := 0; attempt <= cfg.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, cfg.Delay); err != nil {
				return fmt.Errorf("%s: %w", cfg.Name, err)
			}
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
		if errors.Is(last, domain.ErrRateExceeded) || errors.Is(last, domain.ErrBadRequest) {
			return fmt.Errorf("%s: %w", cfg.Name, last)
		}
	}
	return fmt.Errorf("%s: %w", cfg.Name, last)
}

func sleep(ctx context.Context, d time.Duration) error {
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
