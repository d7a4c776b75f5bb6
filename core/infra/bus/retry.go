package bus

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxRedeliveries bounds how often a retryable request is handed back to
	// JetStream before it is acked and dropped.
	MaxRedeliveries = 10
	maxRetryDelay   = 30 * time.Second
)

// RetryableError asks the bus to redeliver the message later instead of
// acking it. Only JetStream subscriptions redeliver; when the bus cannot or
// will no longer redeliver, it runs Fallback instead.
type RetryableError struct {
	Err      error
	Delay    time.Duration
	Fallback func() error
}

func (e *RetryableError) Error() string {
	if e == nil {
		return ""
	}
	if e.Delay > 0 {
		return fmt.Sprintf("retry after %s: %v", e.Delay, e.Err)
	}
	return fmt.Sprintf("retry: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RetryAfter wraps err so the message is redelivered after delay.
func RetryAfter(err error, delay time.Duration) error {
	if err == nil {
		err = errors.New("retry requested")
	}
	return &RetryableError{Err: err, Delay: clampDelay(delay)}
}

// RetryAfterOr is RetryAfter with a fallback run when the message will not
// be redelivered.
func RetryAfterOr(err error, delay time.Duration, fallback func() error) error {
	re := RetryAfter(err, delay).(*RetryableError)
	re.Fallback = fallback
	return re
}

// GiveUp runs the fallback attached to a retryable err, if any.
func GiveUp(err error) error {
	var re *RetryableError
	if !errors.As(err, &re) || re == nil || re.Fallback == nil {
		return nil
	}
	return re.Fallback()
}

// RetryDelay reports the requested base delay when err is retryable.
func RetryDelay(err error) (time.Duration, bool) {
	var re *RetryableError
	if !errors.As(err, &re) || re == nil {
		return 0, false
	}
	return clampDelay(re.Delay), true
}

// redeliveryDelay doubles base for every earlier delivery, capped at
// maxRetryDelay. delivered is the JetStream delivery count (1 on first try).
func redeliveryDelay(base time.Duration, delivered uint64) time.Duration {
	delay := clampDelay(base)
	if delay == 0 {
		return 0
	}
	for i := uint64(1); i < delivered && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return clampDelay(delay)
}

func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
