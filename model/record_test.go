package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageRecord(t *testing.T) {
	beforeCreate := time.Now().UTC()
	record := NewMessageRecord("msg-1", "orders.eu.created", []byte(`{"orderId":1}`),
		map[string]string{"source": "api"}, PriorityHigh, 3)
	afterCreate := time.Now().UTC()

	assert.Equal(t, "msg-1", record.ID)
	assert.Equal(t, "orders.eu.created", record.Subject)
	assert.Equal(t, []byte(`{"orderId":1}`), record.Payload)
	assert.Equal(t, map[string]string{"source": "api"}, record.Headers)
	assert.Equal(t, PriorityHigh, record.Priority)

	// Fresh records start pending with a clean retry state
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, 0, record.RetryCount)
	assert.Equal(t, 3, record.MaxRetries)
	assert.False(t, record.NextRetryAt.Valid)
	assert.False(t, record.ErrorMessage.Valid)
	assert.False(t, record.CorrelationID.Valid)

	assert.WithinDuration(t, beforeCreate, record.CreatedAt, 1*time.Second)
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)
	assert.True(t, record.CreatedAt.Before(afterCreate.Add(1 * time.Second)))
}

func TestMessageRecord_Validate(t *testing.T) {
	valid := NewMessageRecord("msg-1", "orders.created", nil, nil, PriorityNormal, 3)
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*MessageRecord)
	}{
		{
			name:   "Missing ID",
			mutate: func(m *MessageRecord) { m.ID = "" },
		},
		{
			name:   "Missing subject",
			mutate: func(m *MessageRecord) { m.Subject = "" },
		},
		{
			name:   "Priority outside defined levels",
			mutate: func(m *MessageRecord) { m.Priority = Priority(42) },
		},
		{
			name:   "Negative retry budget",
			mutate: func(m *MessageRecord) { m.MaxRetries = -1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := NewMessageRecord("msg-1", "orders.created", nil, nil, PriorityNormal, 3)
			tt.mutate(&record)
			assert.Error(t, record.Validate())
		})
	}
}

func TestMessageRecord_MarkFailed(t *testing.T) {
	tests := []struct {
		name           string
		initialRetries int
		maxRetries     int
		retryAfter     time.Duration
		expectedStatus Status
		expectSchedule bool
	}{
		{
			name:           "First failure schedules retry",
			initialRetries: 0,
			maxRetries:     3,
			retryAfter:     20 * time.Second,
			expectedStatus: StatusRetrying,
			expectSchedule: true,
		},
		{
			name:           "Second failure schedules retry",
			initialRetries: 1,
			maxRetries:     3,
			retryAfter:     40 * time.Second,
			expectedStatus: StatusRetrying,
			expectSchedule: true,
		},
		{
			name:           "Final failure dead-letters",
			initialRetries: 2,
			maxRetries:     3,
			retryAfter:     80 * time.Second,
			expectedStatus: StatusDeadLetter,
			expectSchedule: false,
		},
		{
			name:           "Zero budget dead-letters immediately",
			initialRetries: 0,
			maxRetries:     0,
			retryAfter:     20 * time.Second,
			expectedStatus: StatusDeadLetter,
			expectSchedule: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := NewMessageRecord("msg-1", "orders.created", nil, nil, PriorityNormal, tt.maxRetries)
			record.RetryCount = tt.initialRetries
			record.Status = StatusProcessing

			before := time.Now().UTC()
			record.MarkFailed("connection refused", tt.retryAfter)

			assert.Equal(t, tt.initialRetries+1, record.RetryCount)
			assert.Equal(t, tt.expectedStatus, record.Status)
			assert.Equal(t, "connection refused", record.ErrorMessage.String)

			if tt.expectSchedule {
				assert.True(t, record.NextRetryAt.Valid)
				assert.WithinDuration(t, before.Add(tt.retryAfter), record.NextRetryAt.Time, 1*time.Second)
			} else {
				assert.False(t, record.NextRetryAt.Valid)
			}
		})
	}
}

func TestMessageRecord_MarkFailed_KeepsPreviousError(t *testing.T) {
	record := NewMessageRecord("msg-1", "orders.created", nil, nil, PriorityNormal, 3)
	record.MarkFailed("first error", time.Second)
	record.MarkFailed("", time.Second)

	// An empty error message never clears the last recorded one
	assert.Equal(t, "first error", record.ErrorMessage.String)
}

func TestMessageRecord_MarkCompleted(t *testing.T) {
	record := NewMessageRecord("msg-1", "orders.created", nil, nil, PriorityNormal, 3)
	record.MarkFailed("transient", time.Minute)
	record.Status = StatusProcessing

	record.MarkCompleted()

	assert.Equal(t, StatusCompleted, record.Status)
	assert.False(t, record.NextRetryAt.Valid)
	assert.True(t, record.Status.IsTerminal())
}

func TestMessageRecord_ResetForRequeue(t *testing.T) {
	record := NewMessageRecord("msg-1", "orders.created", nil, nil, PriorityNormal, 1)
	record.MarkFailed("boom", time.Minute)
	assert.Equal(t, StatusDeadLetter, record.Status)

	record.ResetForRequeue()

	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, 0, record.RetryCount)
	assert.Equal(t, sql.NullTime{}, record.NextRetryAt)
	assert.Equal(t, sql.NullString{}, record.ErrorMessage)
}

func TestMessageRecord_RetryDue(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		status   Status
		retries  int
		max      int
		nextAt   sql.NullTime
		expected bool
	}{
		{
			name:     "Retrying and due",
			status:   StatusRetrying,
			retries:  1,
			max:      3,
			nextAt:   sql.NullTime{Time: now.Add(-time.Minute), Valid: true},
			expected: true,
		},
		{
			name:     "Retrying but scheduled in the future",
			status:   StatusRetrying,
			retries:  1,
			max:      3,
			nextAt:   sql.NullTime{Time: now.Add(time.Hour), Valid: true},
			expected: false,
		},
		{
			name:     "Failed with no schedule is immediately due",
			status:   StatusFailed,
			retries:  1,
			max:      3,
			expected: true,
		},
		{
			name:     "Budget exhausted",
			status:   StatusRetrying,
			retries:  3,
			max:      3,
			nextAt:   sql.NullTime{Time: now.Add(-time.Minute), Valid: true},
			expected: false,
		},
		{
			name:     "Pending records are not retry candidates",
			status:   StatusPending,
			retries:  0,
			max:      3,
			expected: false,
		},
		{
			name:     "Terminal records are never due",
			status:   StatusDeadLetter,
			retries:  3,
			max:      3,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := NewMessageRecord("msg-1", "orders.created", nil, nil, PriorityNormal, tt.max)
			record.Status = tt.status
			record.RetryCount = tt.retries
			record.NextRetryAt = tt.nextAt

			assert.Equal(t, tt.expected, record.RetryDue(now))
		})
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusRetrying, true},
		{StatusProcessing, StatusDeadLetter, true},
		{StatusProcessing, StatusFailed, true},
		{StatusRetrying, StatusProcessing, true},
		{StatusFailed, StatusProcessing, true},

		// Terminal states permit nothing
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusPending, false},
		{StatusDeadLetter, StatusProcessing, false},
		{StatusDeadLetter, StatusPending, false},

		// Skipping the claim step is not allowed
		{StatusPending, StatusCompleted, false},
		{StatusRetrying, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusDeadLetter.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
	assert.False(t, StatusRetrying.IsTerminal())
}

func TestPriority(t *testing.T) {
	assert.True(t, PriorityLow.Valid())
	assert.True(t, PriorityCritical.Valid())
	assert.False(t, Priority(0).Valid())
	assert.False(t, Priority(11).Valid())

	assert.Equal(t, "critical", PriorityCritical.String())
	assert.Equal(t, "normal", PriorityNormal.String())
	assert.Equal(t, "unknown", Priority(7).String())

	// Priority values order drains: higher drains first
	assert.Greater(t, int(PriorityCritical), int(PriorityHigh))
	assert.Greater(t, int(PriorityHigh), int(PriorityNormal))
	assert.Greater(t, int(PriorityNormal), int(PriorityLow))
}
