package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradementor/llmcore/llm"
)

func fastPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestDoWithResult_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastPolicy(), zap.NewNop(), func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_RetriesTransient(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastPolicy(), zap.NewNop(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", llm.NewTransientError("test", errors.New("flaky"))
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, calls)
}

func TestDoWithResult_ExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastPolicy(), zap.NewNop(), func() (string, error) {
		calls++
		return "", llm.NewTransientError("test", errors.New("still down"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	e, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrTransient, e.Code)
}

func TestDoWithResult_PermanentNotRetried(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastPolicy(), zap.NewNop(), func() (string, error) {
		calls++
		return "", &llm.Error{Code: llm.ErrPermanent, HTTPStatus: 400, Message: "bad request"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a 4xx must never be retried")
}

func TestDoWithResult_ConfigurationNotRetried(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), fastPolicy(), zap.NewNop(), func() (string, error) {
		calls++
		return "", llm.NewConfigurationError("missing credential")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoWithResult(ctx, &Policy{MaxAttempts: 5, BaseDelay: time.Hour, Multiplier: 2}, zap.NewNop(), func() (string, error) {
		calls++
		cancel()
		return "", llm.NewTransientError("test", errors.New("down"))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), zap.NewNop(), func() error {
		calls++
		if calls < 2 {
			return llm.NewTransientError("test", errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicy_DelayCapped(t *testing.T) {
	p := &Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}
	for n := 1; n <= 9; n++ {
		assert.LessOrEqual(t, p.delay(n), 10*time.Second)
	}
}

func TestPolicy_JitterStaysInBounds(t *testing.T) {
	p := &Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0, Jitter: true}
	for i := 0; i < 100; i++ {
		d := p.delay(1)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}
