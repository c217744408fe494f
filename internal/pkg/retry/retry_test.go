package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 2, Name: "op"}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 2, Name: "op"}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), Config{Attempts: 2, Name: "send email"}, func(context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "two retries means three invocations")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "send email")
}

func TestDo_RateExceededAbortsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 5, Name: "op"}, func(context.Context) error {
		calls++
		return domain.ErrRateExceeded
	})
	assert.ErrorIs(t, err, domain.ErrRateExceeded)
	assert.Equal(t, 1, calls)
}

func TestDo_BadRequestAbortsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 5, Name: "op"}, func(context.Context) error {
		calls++
		return domain.ErrBadRequest
	})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, Config{Attempts: 3, Delay: time.Minute, Name: "op"}, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 0, Name: "op"}, func(context.Context) error {
		calls++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
