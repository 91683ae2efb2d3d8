package services

import (
	"context"
	"fmt"
	"time"

	logger "github.com/Bparsons0904/goLogger"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type RetryPolicy struct {
	MaxAttempts int
	Wait        time.Duration
}

// TotalWait is the longest time the policy can spend sleeping.
func (p RetryPolicy) TotalWait() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Wait
}

// RetryScheduler retries transient failures with a fixed wait between
// attempts. Permanent failures return immediately.
type RetryScheduler struct {
	policy RetryPolicy
	sleep  Sleeper
	log    logger.Logger
}

func NewRetryScheduler(policy RetryPolicy, sleep Sleeper) *RetryScheduler {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = ContextSleep
	}
	return &RetryScheduler{
		policy: policy,
		sleep:  sleep,
		log:    logger.New("retryScheduler"),
	}
}

func (r *RetryScheduler) Policy() RetryPolicy {
	return r.policy
}

// Do calls fn until it succeeds, fails permanently or the attempt cap is
// reached, and returns the number of attempts made.
func (r *RetryScheduler) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	log := r.log.TraceFromContext(ctx).Function("Do")

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}

		if !IsRetryable(lastErr) {
			return attempt, lastErr
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		log.Warn("transient failure, waiting before retry",
			"attempt", attempt,
			"maxAttempts", r.policy.MaxAttempts,
			"wait", r.policy.Wait,
			"error", lastErr)

		if err := r.sleep(ctx, r.policy.Wait); err != nil {
			return attempt, Transient(err)
		}
	}

	return r.policy.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.policy.MaxAttempts, lastErr)
}
