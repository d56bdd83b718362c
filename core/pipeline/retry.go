package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
)

// ErrPermanent marks capability failures that retrying cannot fix
var ErrPermanent = errors.New("permanent capability failure")

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Policy configures how capability calls are retried and bounded
type Policy struct {
	SummarizeRetry model.RetryConfig
	EmbedRetry     model.RetryConfig
	AnswerRetry    model.RetryConfig
	Limiter        *Limiter
	Metrics        *helper.Metrics
	Logger         *slog.Logger
}

// PolicyFromConfig creates the policy described by config with a limiter
// of config.Concurrency slots.
func PolicyFromConfig(config model.Config, metrics *helper.Metrics, logger *slog.Logger) Policy {
	return Policy{
		SummarizeRetry: config.SummarizeRetry,
		EmbedRetry:     config.EmbedRetry,
		AnswerRetry:    config.AnswerRetry,
		Limiter:        NewLimiter(config.Concurrency),
		Metrics:        metrics,
		Logger:         logger,
	}
}

// WithPolicy wraps every capability with bounded retries around a
// concurrency slot. The slot is released while waiting for the next attempt.
func (c Capabilities) WithPolicy(policy Policy) Capabilities {
	if policy.Logger == nil {
		policy.Logger = slog.Default()
	}

	wrapped := Capabilities{}
	if c.Summarize != nil {
		summarize := c.Summarize
		wrapped.Summarize = func(ctx context.Context, text string, maxLength int) (string, error) {
			return retryCall(ctx, "summarize", policy, policy.SummarizeRetry, func() (string, error) {
				return limitCall(ctx, policy.Limiter, func() (string, error) {
					return summarize(ctx, text, maxLength)
				})
			})
		}
	}
	if c.Embed != nil {
		embed := c.Embed
		wrapped.Embed = func(ctx context.Context, text string) ([]float32, error) {
			return retryCall(ctx, "embed", policy, policy.EmbedRetry, func() ([]float32, error) {
				return limitCall(ctx, policy.Limiter, func() ([]float32, error) {
					return embed(ctx, text)
				})
			})
		}
	}
	if c.Answer != nil {
		answer := c.Answer
		wrapped.Answer = func(ctx context.Context, question string, contextText string) (Answer, error) {
			return retryCall(ctx, "answer", policy, policy.AnswerRetry, func() (Answer, error) {
				return limitCall(ctx, policy.Limiter, func() (Answer, error) {
					return answer(ctx, question, contextText)
				})
			})
		}
	}
	return wrapped
}

func retryCall[T any](ctx context.Context, name string, policy Policy, retry model.RetryConfig, call func() (T, error)) (T, error) {
	operation := func() (T, error) {
		result, err := call()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || IsPermanent(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	notify := func(err error, wait time.Duration) {
		policy.Metrics.CapabilityRetried(name)
		policy.Logger.Warn("Capability call failed, retrying", slog.String("capability", name), slog.Duration("wait", wait), slog.String("error", err.Error()))
	}

	result, err := backoff.RetryNotifyWithData(operation, helper.NewBackOff(ctx, retry.MaxRetries, retry.InitialInterval, retry.MaxInterval), notify)
	policy.Metrics.CapabilityCall(name, err)
	return result, err
}
