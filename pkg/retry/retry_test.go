package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	wantErr := errors.New("always fails")
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 4, calls) // initial attempt + 3 retries
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, &Config{MaxRetries: 5, InitialDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 2.0}, func() error {
		return errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	got, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestIsRetryable_SerializationFailure(t *testing.T) {
	err := fmt.Errorf("exec failed: %w", &pgconn.PgError{Code: "40001"})
	assert.True(t, IsRetryable(err))
}

func TestIsRetryable_Deadlock(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
}

func TestIsRetryable_ConnectionClass(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "08006"}))
}

func TestIsRetryable_PermanentSQLError(t *testing.T) {
	// unique_violation is a logic problem, not a transient condition
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
}

func TestIsRetryable_ContextErrorsNotRetryable(t *testing.T) {
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
}

func TestIsRetryable_Nil(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_RetriesTransientError(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
