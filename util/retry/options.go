package retry

import (
	"context"
	"time"

	"github.com/mr-pandabear/pandanode/ulogger"
)

type Options func(s *SetOptions)

// SetOptions is a struct that contains the options that can be set for the WithLogger function
// Message: The message that will be logged when retrying
// BackoffDurationType: The time to wait between each retry
// BackoffMultiplier: The multiplier that will be used to calculate the backoff time
// RetryCount: The maximum number of times the function will be called
// InfiniteRetry: If true, retry indefinitely until context cancellation
// ExponentialBackoff: If true, use exponential backoff instead of linear
// BackoffFactor: The factor for exponential backoff (e.g., 2.0 for doubling)
// MaxBackoff: The maximum backoff duration for exponential backoff
// By default:
// Message: "In RetryWithLogger, "
// BackoffDurationType: time.Second
// BackoffMultiplier: 2
// RetryCount: 3
// InfiniteRetry: false
// ExponentialBackoff: false
// BackoffFactor: 2.0
// MaxBackoff: 30 * time.Second
type SetOptions struct {
	Message             string
	BackoffDurationType time.Duration
	BackoffMultiplier   int
	RetryCount          int
	InfiniteRetry       bool
	ExponentialBackoff  bool
	BackoffFactor       float64
	MaxBackoff          time.Duration
}

func NewSetOptions(opts ...Options) *SetOptions {
	options := &SetOptions{}
	options.setDefaults()

	for _, opt := range opts {
		opt(options)
	}

	return options
}

func (o *SetOptions) setDefaults() {
	o.Message = "In RetryWithLogger, "
	o.BackoffDurationType = time.Second
	o.BackoffMultiplier = 2
	o.RetryCount = 3
	o.InfiniteRetry = false
	o.ExponentialBackoff = false
	o.BackoffFactor = 2.0
	o.MaxBackoff = 30 * time.Second
}

func WithMessage(message string) Options {
	return func(s *SetOptions) {
		s.Message = message
	}
}

func WithBackoffDurationType(retryTime time.Duration) Options {
	return func(s *SetOptions) {
		s.BackoffDurationType = retryTime
	}
}

func WithBackoffMultiplier(backoffMultiplier int) Options {
	return func(s *SetOptions) {
		s.BackoffMultiplier = backoffMultiplier
	}
}

func WithRetryCount(retryCount int) Options {
	return func(s *SetOptions) {
		s.RetryCount = retryCount
	}
}

func WithInfiniteRetry() Options {
	return func(s *SetOptions) {
		s.InfiniteRetry = true
	}
}

func WithExponentialBackoff() Options {
	return func(s *SetOptions) {
		s.ExponentialBackoff = true
	}
}

func WithBackoffFactor(factor float64) Options {
	return func(s *SetOptions) {
		s.BackoffFactor = factor
	}
}

func WithMaxBackoff(maxBackoff time.Duration) Options {
	return func(s *SetOptions) {
		s.MaxBackoff = maxBackoff
	}
}

// WithLogger runs fn up to o.RetryCount times (or indefinitely if
// o.InfiniteRetry), waiting between attempts according to o.BackoffDurationType
// and o.BackoffMultiplier (or exponential backoff bounded by o.MaxBackoff, if
// o.ExponentialBackoff is set). It stops early and returns nil on the first
// successful call, or returns ctx.Err() if ctx is cancelled while waiting.
func WithLogger(ctx context.Context, logger ulogger.Logger, fn func() error, opts ...Options) error {
	o := NewSetOptions(opts...)

	wait := o.BackoffDurationType
	var lastErr error
	for attempt := 1; o.InfiniteRetry || attempt <= o.RetryCount; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		logger.Warnf("%sattempt %d failed: %v", o.Message, attempt, lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if o.ExponentialBackoff {
			wait = time.Duration(float64(wait) * o.BackoffFactor)
			if wait > o.MaxBackoff {
				wait = o.MaxBackoff
			}
		} else {
			wait += o.BackoffDurationType * time.Duration(o.BackoffMultiplier)
		}
	}

	return lastErr
}
