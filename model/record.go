package model

import (
	"database/sql"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Status represents the lifecycle state of a message record.
type Status string

const (
	// StatusPending indicates the message is awaiting its first dispatch attempt.
	StatusPending Status = "pending"

	// StatusProcessing indicates a worker has claimed the message and a
	// dispatch attempt is in flight.
	StatusProcessing Status = "processing"

	// StatusCompleted indicates successful delivery. Terminal.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the last dispatch attempt failed and no retry
	// has been scheduled yet.
	StatusFailed Status = "failed"

	// StatusRetrying indicates a retry has been scheduled for NextRetryAt.
	StatusRetrying Status = "retrying"

	// StatusDeadLetter indicates the retry budget is exhausted. Terminal.
	StatusDeadLetter Status = "dead_letter"
)

// Statuses lists every valid status. Useful for iteration (statistics, metrics).
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusRetrying,
	StatusDeadLetter,
}

// IsTerminal reports whether the status permits no further mutation
// except deletion by retention cleanup.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDeadLetter
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRetrying, StatusDeadLetter:
		return true
	}
	return false
}

// transitions is the directed status graph. A dispatch attempt claims a
// pending/retrying/failed record into processing; the attempt outcome moves
// it to completed, failed, retrying, or dead_letter.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusRetrying, StatusDeadLetter},
	StatusFailed:     {StatusProcessing, StatusRetrying, StatusDeadLetter},
	StatusRetrying:   {StatusProcessing},
}

// CanTransition reports whether moving from s to next follows the status graph.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority orders messages within a drain: higher values drain first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 8
	PriorityCritical Priority = 10
)

// Valid reports whether p is one of the defined priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// DefaultMaxRetries is the retry budget assigned when the caller does not
// configure one.
const DefaultMaxRetries = 3

// MessageRecord is the durable unit of work: a message persisted before any
// delivery attempt, carrying its full retry state.
//
// Records follow this lifecycle:
//  1. Created with status=PENDING by the replay manager.
//  2. A worker claims the record (→ PROCESSING) and attempts delivery.
//  3. Success → COMPLETED (terminal). Failure → RETRYING with exponential
//     backoff, or DEAD_LETTER (terminal) once RetryCount reaches MaxRetries.
//  4. Terminal records are removed by retention cleanup.
//
// ID, Subject, Payload, Headers, Priority, MaxRetries, and CorrelationID are
// immutable after creation; everything else is mutated exclusively through
// the store's atomic status updates.
type MessageRecord struct {
	ID            string            `json:"id"`
	Subject       string            `json:"subject"`
	Payload       []byte            `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	Priority      Priority          `json:"priority"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	RetryCount    int               `json:"retryCount"`
	MaxRetries    int               `json:"maxRetries"`
	NextRetryAt   sql.NullTime      `json:"nextRetryAt"`
	ErrorMessage  sql.NullString    `json:"errorMessage"`
	CorrelationID sql.NullString    `json:"correlationID"`
}

// NewMessageRecord creates a pending record ready for its first dispatch.
//
// Parameters:
//   - id: unique opaque identifier (typically a UUID)
//   - subject: routing key used for transport publish / handler matching
//   - payload: opaque byte sequence, stored as-is
//   - headers: optional string map delivered alongside the payload
//   - priority: drain ordering, higher first
//   - maxRetries: retry budget, fixed for the record's lifetime
func NewMessageRecord(id, subject string, payload []byte, headers map[string]string, priority Priority, maxRetries int) MessageRecord {
	now := time.Now().UTC()
	return MessageRecord{
		ID:         id,
		Subject:    subject,
		Payload:    payload,
		Headers:    headers,
		Priority:   priority,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: 0,
		MaxRetries: maxRetries,
	}
}

// Validate checks the record's immutable fields.
func (m MessageRecord) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Subject, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.Priority, validation.By(validatePriority)),
		validation.Field(&m.MaxRetries, validation.Min(0)),
	)
}

func validatePriority(value interface{}) error {
	p, _ := value.(Priority)
	if !p.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// MarkProcessing records that a worker has claimed the record.
func (m *MessageRecord) MarkProcessing() {
	m.Status = StatusProcessing
	m.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records successful delivery. Clears any stale retry schedule.
func (m *MessageRecord) MarkCompleted() {
	m.Status = StatusCompleted
	m.NextRetryAt = sql.NullTime{}
	m.UpdatedAt = time.Now().UTC()
}

// MarkFailed records a failed delivery attempt and resolves the next state.
// The retry count is incremented first; if budget remains the record moves to
// RETRYING with the given backoff delay, otherwise it is dead-lettered.
//
// The delay must be computed from the post-increment retry count
// (retry.Strategy.Delay(m.RetryCount+1) before calling).
func (m *MessageRecord) MarkFailed(errorMessage string, retryAfter time.Duration) {
	now := time.Now().UTC()
	m.RetryCount++
	m.UpdatedAt = now
	if errorMessage != "" {
		m.ErrorMessage = sql.NullString{String: errorMessage, Valid: true}
	}

	if m.RetryCount < m.MaxRetries {
		m.Status = StatusRetrying
		m.NextRetryAt = sql.NullTime{Time: now.Add(retryAfter), Valid: true}
		return
	}

	m.Status = StatusDeadLetter
	m.NextRetryAt = sql.NullTime{}
}

// ResetForRequeue returns a dead-lettered record to PENDING with a fresh
// retry budget. This is the explicit operator path back from DEAD_LETTER;
// it is never applied implicitly.
func (m *MessageRecord) ResetForRequeue() {
	m.Status = StatusPending
	m.RetryCount = 0
	m.NextRetryAt = sql.NullTime{}
	m.ErrorMessage = sql.NullString{}
	m.UpdatedAt = time.Now().UTC()
}

// RetriesExhausted reports whether the retry budget is spent.
func (m *MessageRecord) RetriesExhausted() bool {
	return m.RetryCount >= m.MaxRetries
}

// RetryDue reports whether the record is eligible for a retry attempt now:
// failed or retrying, budget remaining, and the scheduled time (if any) passed.
func (m *MessageRecord) RetryDue(now time.Time) bool {
	if m.Status != StatusFailed && m.Status != StatusRetrying {
		return false
	}
	if m.RetriesExhausted() {
		return false
	}
	if !m.NextRetryAt.Valid {
		return true
	}
	return !m.NextRetryAt.Time.After(now)
}

// Age returns how long the record has existed since creation.
func (m *MessageRecord) Age() time.Duration {
	return time.Since(m.CreatedAt)
}

// Domain errors returned by MessageRecord business logic.
var (
	// ErrInvalidPriority indicates a priority outside the defined levels.
	ErrInvalidPriority = DomainError{Code: "INVALID_PRIORITY", Message: "Priority must be low, normal, high, or critical"}

	// ErrRecordTerminal indicates an attempted mutation of a completed or
	// dead-lettered record.
	ErrRecordTerminal = DomainError{Code: "RECORD_TERMINAL", Message: "Record is in a terminal state"}

	// ErrInvalidTransition indicates a status change outside the lifecycle graph.
	ErrInvalidTransition = DomainError{Code: "INVALID_TRANSITION", Message: "Status transition not allowed"}
)

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}
