package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// RetryConfig bounds the automatic retry of transient failures.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// Backoff is the base delay unit. The wait is linear in the
	// attempt index (attempt 1 waits one unit, attempt 2 two units);
	// the caller is a polling user, so worst-case latency must stay
	// bounded and predictable.
	Backoff time.Duration
}

// DefaultRetryConfig is two extra attempts with a one-second base delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, Backoff: time.Second}
}

// WithRetry executes fn with up to cfg.MaxRetries additional attempts
// on transient failure. Non-transient failures propagate immediately;
// after exhaustion the last observed error propagates unchanged.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(context.Context) (*models.AnalysisResult, error)) (*models.AnalysisResult, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * cfg.Backoff
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Retrying analysis after transient failure")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !Transient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}
