package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/replay"
	"github.com/coregx/replay/model"
	"github.com/coregx/replay/retry"
)

// cleanupBatchSize bounds how many terminal records one cleanup pass loads.
const cleanupBatchSize = 500

// MessageStore implements replay.MessageStore using Relica.
//
// Claim, UpdateStatus, and Requeue use conditional UPDATEs guarded by the
// previously observed status and check the affected row count, so concurrent
// workers racing on the same record resolve through the database rather than
// in-process locks.
type MessageStore struct {
	db            *relica.DB
	tablePrefix   string
	retryStrategy retry.Strategy
}

// NewMessageStore creates a new MessageStore with default table prefix.
func NewMessageStore(sqlDB *sql.DB, driverName string) *MessageStore {
	return &MessageStore{
		db:            relica.WrapDB(sqlDB, driverName),
		tablePrefix:   "replay_",
		retryStrategy: retry.DefaultStrategy(),
	}
}

// NewMessageStoreWithPrefix creates a new MessageStore with custom table prefix.
func NewMessageStoreWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageStore {
	return &MessageStore{
		db:            relica.WrapDB(sqlDB, driverName),
		tablePrefix:   prefix,
		retryStrategy: retry.DefaultStrategy(),
	}
}

// SetRetryStrategy replaces the backoff strategy used when resolving failed
// attempts. Call before the store is in use; not synchronized.
func (s *MessageStore) SetRetryStrategy(strategy retry.Strategy) {
	s.retryStrategy = strategy
}

func (s *MessageStore) tableName() string {
	return s.tablePrefix + "message"
}

// messageRow is the flat database shape of a MessageRecord. Headers are
// stored as a versioned JSON envelope in a TEXT column.
type messageRow struct {
	ID            string         `db:"id"`
	Subject       string         `db:"subject"`
	Payload       []byte         `db:"payload"`
	Headers       sql.NullString `db:"headers"`
	Priority      int            `db:"priority"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	RetryCount    int            `db:"retry_count"`
	MaxRetries    int            `db:"max_retries"`
	NextRetryAt   sql.NullTime   `db:"next_retry_at"`
	ErrorMessage  sql.NullString `db:"error_message"`
	CorrelationID sql.NullString `db:"correlation_id"`
}

func toRow(m *model.MessageRecord) (messageRow, error) {
	headers, err := model.EncodeHeaders(m.Headers)
	if err != nil {
		return messageRow{}, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to encode headers", err)
	}

	row := messageRow{
		ID:            m.ID,
		Subject:       m.Subject,
		Payload:       m.Payload,
		Priority:      int(m.Priority),
		Status:        string(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		NextRetryAt:   m.NextRetryAt,
		ErrorMessage:  m.ErrorMessage,
		CorrelationID: m.CorrelationID,
	}
	if headers != "" {
		row.Headers = sql.NullString{String: headers, Valid: true}
	}
	return row, nil
}

func toRecord(row messageRow) (model.MessageRecord, error) {
	headers, err := model.DecodeHeaders(row.Headers.String)
	if err != nil {
		return model.MessageRecord{}, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to decode headers", err)
	}

	return model.MessageRecord{
		ID:            row.ID,
		Subject:       row.Subject,
		Payload:       row.Payload,
		Headers:       headers,
		Priority:      model.Priority(row.Priority),
		Status:        model.Status(row.Status),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		RetryCount:    row.RetryCount,
		MaxRetries:    row.MaxRetries,
		NextRetryAt:   row.NextRetryAt,
		ErrorMessage:  row.ErrorMessage,
		CorrelationID: row.CorrelationID,
	}, nil
}

// Save creates or updates a message record, keyed by ID.
func (s *MessageStore) Save(ctx context.Context, m *model.MessageRecord) error {
	row, err := toRow(m)
	if err != nil {
		return err
	}

	var existing messageRow
	err = s.db.WithContext(ctx).Select("id").
		From(s.tableName()).
		Where("id = ?", m.ID).
		WithContext(ctx).
		One(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Insert(); err != nil {
			return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to insert message", err)
		}
		return nil
	}
	if err != nil {
		return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to check message existence", err)
	}

	if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Update(); err != nil {
		return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to update message", err)
	}
	return nil
}

// Load retrieves a message record by ID.
func (s *MessageStore) Load(ctx context.Context, id string) (model.MessageRecord, error) {
	var row messageRow

	err := s.db.WithContext(ctx).Select("*").
		From(s.tableName()).
		Where("id = ?", id).
		WithContext(ctx).
		One(&row)

	if errors.Is(err, sql.ErrNoRows) {
		return model.MessageRecord{}, replay.ErrNoData
	}
	if err != nil {
		return model.MessageRecord{}, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to load message", err)
	}

	return toRecord(row)
}

// FindByStatus retrieves up to limit records in the given status, in drain
// order (priority DESC, created_at ASC).
func (s *MessageStore) FindByStatus(ctx context.Context, status model.Status, limit int) ([]model.MessageRecord, error) {
	var rows []messageRow

	err := s.db.WithContext(ctx).Select("*").
		From(s.tableName()).
		Where("status = ?", string(status)).
		OrderBy("priority DESC, created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&rows)

	if err != nil {
		return nil, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to find messages by status", err)
	}

	return s.collect(rows)
}

// FindRetryable retrieves up to limit records eligible for a retry attempt:
// failed or retrying, budget remaining, schedule unset or due.
func (s *MessageStore) FindRetryable(ctx context.Context, limit int) ([]model.MessageRecord, error) {
	var rows []messageRow

	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Select("*").
		From(s.tableName()).
		Where("status IN (?, ?) AND retry_count < max_retries AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			string(model.StatusFailed), string(model.StatusRetrying), now).
		OrderBy("priority DESC, next_retry_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&rows)

	if err != nil {
		return nil, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to find retryable messages", err)
	}

	return s.collect(rows)
}

func (s *MessageStore) collect(rows []messageRow) ([]model.MessageRecord, error) {
	if len(rows) == 0 {
		return nil, replay.ErrNoData
	}

	records := make([]model.MessageRecord, 0, len(rows))
	for _, row := range rows {
		record, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Claim atomically transitions a claimable record to processing. The status
// guard in the WHERE clause is the arbitration point: of two workers racing
// on the same record, exactly one sees an affected row.
func (s *MessageStore) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.db.WithContext(ctx).Update(s.tableName()).
		Set(map[string]interface{}{
			"status":     string(model.StatusProcessing),
			"updated_at": time.Now().UTC(),
		}).
		Where("id = ? AND status IN (?, ?, ?)", id,
			string(model.StatusPending), string(model.StatusRetrying), string(model.StatusFailed)).
		WithContext(ctx).
		Execute()

	if err != nil {
		return false, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to claim message", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to read claim result", err)
	}
	return affected == 1, nil
}

// UpdateStatus performs a conditional, atomic status update.
//
// With incrementRetry set the status argument is ignored and the failed
// attempt is resolved through the retry strategy: retrying with a scheduled
// next_retry_at while budget remains, dead_letter once exhausted.
func (s *MessageStore) UpdateStatus(ctx context.Context, id string, status model.Status, errorMessage string, incrementRetry bool) error {
	record, err := s.Load(ctx, id)
	if err != nil {
		return err
	}

	if record.Status.IsTerminal() {
		return model.ErrRecordTerminal
	}
	previous := record.Status

	if incrementRetry {
		// Delay is computed from the post-increment attempt count.
		delay := s.retryStrategy.Delay(record.RetryCount + 1)
		record.MarkFailed(errorMessage, delay)
	} else {
		if !record.Status.CanTransition(status) {
			return model.ErrInvalidTransition
		}
		switch status {
		case model.StatusCompleted:
			record.MarkCompleted()
		case model.StatusProcessing:
			record.MarkProcessing()
		default:
			record.Status = status
			record.UpdatedAt = time.Now().UTC()
			if errorMessage != "" {
				record.ErrorMessage = sql.NullString{String: errorMessage, Valid: true}
			}
		}
	}

	res, err := s.db.WithContext(ctx).Update(s.tableName()).
		Set(map[string]interface{}{
			"status":        string(record.Status),
			"retry_count":   record.RetryCount,
			"next_retry_at": record.NextRetryAt,
			"error_message": record.ErrorMessage,
			"updated_at":    record.UpdatedAt,
		}).
		Where("id = ? AND status = ?", id, string(previous)).
		WithContext(ctx).
		Execute()

	if err != nil {
		return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to update message status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to read status update result", err)
	}
	if affected == 0 {
		return replay.NewError(replay.ErrCodeStorage, "message "+id+" was modified concurrently")
	}
	return nil
}

// Delete permanently removes a message record.
func (s *MessageStore) Delete(ctx context.Context, id string) error {
	row := messageRow{ID: id}

	// Delete using Model() API - auto WHERE id = ?
	if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Delete(); err != nil {
		return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to delete message", err)
	}
	return nil
}

// Requeue resets a dead-lettered record to pending with a fresh retry
// budget. Returns an error when the record is not dead-lettered.
func (s *MessageStore) Requeue(ctx context.Context, id string) error {
	record, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != model.StatusDeadLetter {
		return replay.NewError(replay.ErrCodeValidation, "only dead-lettered messages can be requeued")
	}

	res, err := s.db.WithContext(ctx).Update(s.tableName()).
		Set(map[string]interface{}{
			"status":        string(model.StatusPending),
			"retry_count":   0,
			"next_retry_at": sql.NullTime{},
			"error_message": sql.NullString{},
			"updated_at":    time.Now().UTC(),
		}).
		Where("id = ? AND status = ?", id, string(model.StatusDeadLetter)).
		WithContext(ctx).
		Execute()

	if err != nil {
		return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to requeue message", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to read requeue result", err)
	}
	if affected == 0 {
		return replay.NewError(replay.ErrCodeStorage, "message "+id+" was modified concurrently")
	}
	return nil
}

// ReclaimStale moves processing records older than the given age back to
// failed. Their retry budget is untouched; the next drain resolves them
// through the normal retry path.
func (s *MessageStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	res, err := s.db.WithContext(ctx).Update(s.tableName()).
		Set(map[string]interface{}{
			"status":     string(model.StatusFailed),
			"updated_at": time.Now().UTC(),
		}).
		Where("status = ? AND updated_at <= ?", string(model.StatusProcessing), cutoff).
		WithContext(ctx).
		Execute()

	if err != nil {
		return 0, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to reclaim stale messages", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to read reclaim result", err)
	}
	return int(affected), nil
}

// CleanupOld deletes terminal records (completed, dead_letter) whose
// updated_at is older than the retention window, in batches, and returns the
// deleted count. Non-terminal records are never touched regardless of age.
func (s *MessageStore) CleanupOld(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	deleted := 0

	for {
		var rows []messageRow

		err := s.db.WithContext(ctx).Select("id").
			From(s.tableName()).
			Where("status IN (?, ?) AND updated_at <= ?",
				string(model.StatusCompleted), string(model.StatusDeadLetter), cutoff).
			OrderBy("updated_at ASC").
			Limit(int64(cleanupBatchSize)).
			WithContext(ctx).
			All(&rows)

		if err != nil {
			return deleted, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to find old messages", err)
		}
		if len(rows) == 0 {
			return deleted, nil
		}

		for i := range rows {
			if err := s.db.WithContext(ctx).Model(&rows[i]).Table(s.tableName()).Delete(); err != nil {
				return deleted, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to delete old message", err)
			}
			deleted++
		}

		if len(rows) < cleanupBatchSize {
			return deleted, nil
		}
	}
}

// Stats returns aggregate counts and the oldest pending timestamp. Counting
// stays in the database; the table may hold a full retention window of rows.
func (s *MessageStore) Stats(ctx context.Context) (replay.Statistics, error) {
	stats := replay.Statistics{
		ByStatus: make(map[model.Status]int, len(model.Statuses)),
	}

	for _, status := range model.Statuses {
		var count int64
		err := s.db.WithContext(ctx).Select("COUNT(*)").
			From(s.tableName()).
			Where("status = ?", string(status)).
			One(&count)
		if err != nil {
			return stats, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to count messages by status", err)
		}
		stats.ByStatus[status] = int(count)
		stats.Total += int(count)
	}

	var oldestPending sql.NullTime
	err := s.db.WithContext(ctx).Select("MIN(created_at)").
		From(s.tableName()).
		Where("status = ?", string(model.StatusPending)).
		One(&oldestPending)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, replay.NewErrorWithCause(replay.ErrCodeStorage, "failed to read oldest pending message", err)
	}
	stats.OldestPendingAt = oldestPending

	return stats, nil
}
