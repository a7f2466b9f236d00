// Package retry provides the exponential backoff strategy used to schedule
// redelivery of failed messages.
package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy defines the backoff behavior for failed message deliveries.
//
// The schedule follows: delay = min(BaseDelay * ExponentialBase^retryCount, MaxDelay)
// where retryCount is the post-increment attempt counter of the record.
//
// Example with defaults (10s base, 2.0 exponential, 5m max):
//
//	Retry 1: 20s
//	Retry 2: 40s
//	Retry 3: 1m20s
//	Retry 4: 2m40s
//	Retry 5: 5m (capped)
type Strategy struct {
	BaseDelay       time.Duration // Initial backoff unit
	MaxDelay        time.Duration // Backoff cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default backoff strategy:
// 10 second base, doubling per retry, capped at 5 minutes.
func DefaultStrategy() Strategy {
	return Strategy{
		BaseDelay:       10 * time.Second,
		MaxDelay:        300 * time.Second,
		ExponentialBase: 2.0,
	}
}

// Delay calculates the backoff delay for a given retry count.
// Formula: delay = min(BaseDelay * ExponentialBase^retryCount, MaxDelay).
//
// The retryCount passed in must be the post-increment value: the first
// failure of a record schedules Delay(1).
func (s Strategy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(retryCount))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// Schedule returns a human-readable description of the backoff schedule for
// a given retry budget. The budget's final failure dead-letters the record,
// so a budget of N schedules N-1 delayed retries. Useful for logs and
// operator documentation.
//
// Example output for maxRetries=3:
//
//	Backoff schedule:
//	  Retry 1: after 20s
//	  Retry 2: after 40s
//	  → Dead letter
func (s Strategy) Schedule(maxRetries int) string {
	schedule := "Backoff schedule:\n"
	for i := 1; i < maxRetries; i++ {
		schedule += fmt.Sprintf("  Retry %d: after %v\n", i, s.Delay(i))
	}
	schedule += "  → Dead letter\n"
	return schedule
}
