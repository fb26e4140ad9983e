package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"igarchiver/pkg/config"
	errs "igarchiver/pkg/errors"
	"igarchiver/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// Policy holds retry configuration
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// Backoff is used for every retryable error except rate limiting
	Backoff BackoffStrategy
	// RateLimitBackoff, when set, is used after rate limit errors
	RateLimitBackoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultPolicy returns a retry policy with sensible defaults
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNopLogger(),
	}
}

// FromConfig builds a policy from the retry section of the config.
// A disabled retry config yields a single-attempt policy.
func FromConfig(cfg *config.RetryConfig, log logger.Logger) *Policy {
	p := &Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.Multiplier,
			JitterFactor: 0.1,
		},
		RateLimitBackoff: &ExponentialBackoff{
			BaseDelay:    cfg.InitialDelay * 5,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.Multiplier,
			JitterFactor: 0.3,
		},
		RetryIf: DefaultRetryIf,
		Logger:  log,
	}
	if !cfg.Enabled {
		p.MaxAttempts = 1
	}
	return p
}

// DefaultRetryIf retries typed errors whose type is retryable.
// Context errors are never retried; untyped errors are.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}
	return true
}

func (p *Policy) backoffFor(err error) BackoffStrategy {
	if p.RateLimitBackoff != nil && errs.TypeOf(err) == errs.ErrorTypeRateLimit {
		return p.RateLimitBackoff
	}
	return p.Backoff
}

// Do executes op until it succeeds, returns a non-retryable error,
// exhausts the policy, or ctx is done. The returned error wraps the last
// failure so callers can still classify it.
func Do(ctx context.Context, p *Policy, op Operation) error {
	if p == nil {
		p = DefaultPolicy()
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			log.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": lastErr.Error(),
			})
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", p.MaxAttempts, lastErr)
		}

		delay := p.backoffFor(err).NextDelay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay":        delay.String(),
			"max_attempts": p.MaxAttempts,
		})

		if werr := Wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
