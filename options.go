package replay

import (
	"fmt"
	"time"
)

// Option is a function that configures a ReplayManager.
// Used with the Options Pattern for flexible service construction.
//
// Example:
//
//	manager, err := replay.NewReplayManager(
//	    replay.WithStore(store),
//	    replay.WithLogger(logger),
//	    replay.WithInterval(10*time.Second), // optional
//	)
type Option func(*ReplayManager) error

// WithStore sets the required message store dependency for the manager.
// The store must not be nil.
//
// This is a required option for NewReplayManager.
func WithStore(store MessageStore) Option {
	return func(m *ReplayManager) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		m.store = store
		return nil
	}
}

// WithLogger sets the logger instance for the manager.
// Logger is required and must not be nil.
//
// This is a required option for NewReplayManager.
//
// Use NoopLogger for silent operation or implement Logger interface
// to integrate with your logging system (zap, logrus, etc.).
func WithLogger(logger Logger) Option {
	return func(m *ReplayManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithTransport installs an external publish path at construction time.
// When set, the transport is preferred over pattern handlers for every
// dispatch. Can also be swapped at runtime via SetTransport.
func WithTransport(t Transport) Option {
	return func(m *ReplayManager) error {
		if t == nil {
			return fmt.Errorf("transport cannot be nil")
		}
		m.transport = t
		return nil
	}
}

// WithNotifications sets an optional notification service for the manager.
// If not provided, NoOpNotificationService is used (no notifications).
//
// The notification service receives callbacks for:
//   - Delivery failures (every failed attempt)
//   - Dead-lettered records (when a message exhausts its retries)
//
// Use this to integrate with alerting systems (email, Slack, PagerDuty, etc.).
func WithNotifications(service NotificationService) Option {
	return func(m *ReplayManager) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		m.notifier = service
		return nil
	}
}

// WithBatchSize sets the number of records fetched per drain pass.
// Optional - default is 50.
//
// Must be > 0. Larger batches improve throughput but use more memory.
func WithBatchSize(size int) Option {
	return func(m *ReplayManager) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be > 0, got %d", size)
		}
		m.batchSize = size
		return nil
	}
}

// WithMaxConcurrent bounds the number of simultaneous dispatch workers used
// by ReplayFailed. Optional - default is 10.
func WithMaxConcurrent(n int) Option {
	return func(m *ReplayManager) error {
		if n <= 0 {
			return fmt.Errorf("max concurrent must be > 0, got %d", n)
		}
		m.maxConcurrent = n
		return nil
	}
}

// WithInterval sets the background loop period. Optional - default is 30s.
func WithInterval(d time.Duration) Option {
	return func(m *ReplayManager) error {
		if d <= 0 {
			return fmt.Errorf("interval must be > 0, got %v", d)
		}
		m.interval = d
		return nil
	}
}

// WithRetention sets how long terminal records (completed, dead_letter) are
// kept before cleanup. Optional - default is 7 days.
func WithRetention(d time.Duration) Option {
	return func(m *ReplayManager) error {
		if d <= 0 {
			return fmt.Errorf("retention must be > 0, got %v", d)
		}
		m.retention = d
		return nil
	}
}

// WithDispatchTimeout bounds each individual delivery attempt.
// Optional - default is 30s.
func WithDispatchTimeout(d time.Duration) Option {
	return func(m *ReplayManager) error {
		if d <= 0 {
			return fmt.Errorf("dispatch timeout must be > 0, got %v", d)
		}
		m.dispatchTimeout = d
		return nil
	}
}

// WithStopTimeout bounds how long Stop waits for the background loop to
// exit gracefully. Optional - default is 5s.
func WithStopTimeout(d time.Duration) Option {
	return func(m *ReplayManager) error {
		if d <= 0 {
			return fmt.Errorf("stop timeout must be > 0, got %v", d)
		}
		m.stopTimeout = d
		return nil
	}
}

// WithDefaultMaxRetries sets the retry budget assigned to newly persisted
// messages. Optional - default is 3. Zero means dead-letter on the first
// failure.
func WithDefaultMaxRetries(n int) Option {
	return func(m *ReplayManager) error {
		if n < 0 {
			return fmt.Errorf("default max retries must be >= 0, got %d", n)
		}
		m.defaultMaxRetries = n
		return nil
	}
}
