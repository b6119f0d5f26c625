package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	"github.com/kira-labs/kira/internal/metrics"
)

// RetryConfig bounds one provider's attempts.
type RetryConfig struct {
	Timeout    time.Duration // per attempt
	MaxRetries int           // additional attempts after the first failure
	Backoff    time.Duration // multiplied by the attempt number
}

// Attempts returns the total attempt budget.
func (c RetryConfig) Attempts() int { return max(0, c.MaxRetries) + 1 }

// runWithRetry executes fn under a per-attempt deadline with linear backoff between attempts.
// It returns the number of attempts made. On exhaustion the error is a RetryExhausted
// LLMError wrapping the last attempt's error. Non-retryable kinds and parent
// cancellation end the loop early and are returned as-is.
func runWithRetry[T any](
	ctx context.Context,
	cfg RetryConfig,
	op domain.Operation,
	provider string,
	logger *zap.Logger,
	fn func(ctx context.Context) (T, error),
) (T, int, error) {
	var zero T
	var lastErr error
	total := cfg.Attempts()

	for attempt := 1; attempt <= total; attempt++ {
		start := time.Now()
		result, err := runAttempt(ctx, cfg.Timeout, op, provider, fn)
		metrics.OperationDuration.WithLabelValues(string(op), provider).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.OperationAttemptsTotal.WithLabelValues(string(op), provider, "success").Inc()
			return result, attempt, nil
		}
		metrics.OperationAttemptsTotal.WithLabelValues(string(op), provider, "error").Inc()

		if ctx.Err() != nil {
			countFailure(op, provider, domain.KindTimeout)
			return zero, attempt, domain.NewLLMError(domain.KindTimeout, provider, op, ctx.Err())
		}

		lastErr = err
		kind := domain.KindOf(err)
		logger.Debug("llm_attempt_failed",
			zap.String("operation", string(op)),
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", total),
			zap.String("kind", kind.String()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		if !kind.Retryable() {
			countFailure(op, provider, kind)
			return zero, attempt, err
		}

		if attempt < total && cfg.Backoff > 0 {
			select {
			case <-ctx.Done():
				countFailure(op, provider, domain.KindTimeout)
				return zero, attempt, domain.NewLLMError(domain.KindTimeout, provider, op, ctx.Err())
			case <-time.After(cfg.Backoff * time.Duration(attempt)):
			}
		}
	}

	countFailure(op, provider, domain.KindOf(lastErr))
	return zero, total, &domain.LLMError{
		Kind:      domain.KindRetryExhausted,
		Provider:  provider,
		Operation: op,
		Attempts:  total,
		Err:       lastErr,
	}
}

func countFailure(op domain.Operation, provider string, kind domain.ErrorKind) {
	metrics.OperationFailuresTotal.WithLabelValues(string(op), provider, kind.String()).Inc()
}

type outcome[T any] struct {
	value T
	err   error
}

// runAttempt runs fn once under its own deadline. The attempt is abandoned when the
// deadline passes even if fn ignores its context.
func runAttempt[T any](
	ctx context.Context, timeout time.Duration, op domain.Operation, provider string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(actx)
		done <- outcome[T]{v, err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return zero, domain.NewLLMError(domain.KindTimeout, provider, op, out.err)
		}
		return out.value, out.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, domain.NewLLMError(domain.KindTimeout, provider, op, actx.Err())
	}
}
