package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineError(t *testing.T) {
	t.Run("Matches its kind with errors.Is", func(t *testing.T) {
		err := NewPipelineError(ErrNoContext, "abc", false, nil)

		assert.True(t, errors.Is(err, ErrNoContext))
		assert.False(t, errors.Is(err, ErrQA))
	})

	t.Run("Matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("answer: %w", NewPipelineError(ErrQA, "abc", true, errors.New("boom")))

		assert.True(t, errors.Is(err, ErrQA))
		assert.True(t, IsRetryable(err))
	})

	t.Run("Unwraps the cause", func(t *testing.T) {
		cause := errors.New("not a pdf")
		err := NewPipelineError(ErrExtraction, "abc", false, cause)

		assert.True(t, errors.Is(err, cause))
		assert.False(t, IsRetryable(err))
	})

	t.Run("Message includes shortened fingerprint and cause", func(t *testing.T) {
		err := NewPipelineError(ErrEmbedding, "0123456789abcdef", false, errors.New("dimension 3, want 4"))

		assert.Equal(t, "embedding error [0123456789ab]: dimension 3, want 4", err.Error())
	})

	t.Run("Plain errors are not retryable", func(t *testing.T) {
		assert.False(t, IsRetryable(errors.New("plain")))
	})
}

func TestAsTimeout(t *testing.T) {
	t.Run("Deadline becomes timeout", func(t *testing.T) {
		err := AsTimeout("abc", fmt.Errorf("call: %w", context.DeadlineExceeded))

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTimeout))
		assert.True(t, IsRetryable(err))
	})

	t.Run("Cancellation becomes timeout", func(t *testing.T) {
		assert.True(t, errors.Is(AsTimeout("abc", context.Canceled), ErrTimeout))
	})

	t.Run("Typed errors are preserved", func(t *testing.T) {
		typed := NewPipelineError(ErrQA, "abc", true, context.Canceled)

		assert.Same(t, typed, AsTimeout("abc", typed))
	})

	t.Run("Other errors pass through", func(t *testing.T) {
		plain := errors.New("plain")
		assert.Equal(t, plain, AsTimeout("abc", plain))
		assert.NoError(t, AsTimeout("abc", nil))
	})
}
