package replay

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/replay/model"
)

// MessageStore defines the durable persistence interface for message records.
//
// Implementations must be safe for concurrent use. Claim and UpdateStatus
// must be atomic conditional operations: the store is the only coordination
// point between concurrent replay workers, so two workers racing on the same
// record must never both observe it as dispatchable.
type MessageStore interface {
	// Save persists a record as an idempotent upsert keyed by ID.
	// The first persist of a brand-new message must surface failures to the
	// caller: a message that was never durably recorded must not be silently
	// treated as sent.
	Save(ctx context.Context, m *model.MessageRecord) error

	// Load retrieves a record by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id string) (model.MessageRecord, error)

	// FindByStatus retrieves up to limit records in the given status,
	// ordered by priority DESC then created_at ASC (drain order).
	// Returns ErrNoData if none found.
	FindByStatus(ctx context.Context, status model.Status, limit int) ([]model.MessageRecord, error)

	// FindRetryable retrieves up to limit records eligible for a retry
	// attempt: status failed or retrying, retry budget remaining, and
	// next_retry_at unset or due. Ordered by priority DESC then
	// next_retry_at ASC. Returns ErrNoData if none found.
	FindRetryable(ctx context.Context, limit int) ([]model.MessageRecord, error)

	// Claim atomically transitions a pending, retrying, or failed record to
	// processing. Returns false (without error) when the record is not in a
	// claimable state — typically because another worker already claimed it.
	Claim(ctx context.Context, id string) (bool, error)

	// UpdateStatus performs a conditional, atomic status update.
	//
	// When incrementRetry is set the new status argument is ignored in favor
	// of the retry resolution: the retry count is incremented and the record
	// moves to retrying with a scheduled next_retry_at while budget remains,
	// or to dead_letter once exhausted.
	//
	// Terminal records (completed, dead_letter) are never mutated.
	UpdateStatus(ctx context.Context, id string, status model.Status, errorMessage string, incrementRetry bool) error

	// Delete permanently removes a record.
	Delete(ctx context.Context, id string) error

	// Requeue explicitly resets a dead-lettered record to pending with a
	// fresh retry budget. The only path back from DEAD_LETTER.
	Requeue(ctx context.Context, id string) error

	// ReclaimStale moves processing records whose updated_at is older than
	// the given age back to failed, so a worker that died (or a store blip
	// that lost the outcome write) after claiming does not strand them
	// outside every drain. Returns the reclaimed count.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)

	// CleanupOld deletes terminal records (completed, dead_letter) whose
	// updated_at is older than the retention window. Records in any other
	// status are never touched regardless of age. Returns the deleted count.
	CleanupOld(ctx context.Context, retention time.Duration) (int, error)

	// Stats returns aggregate counts for operator visibility.
	Stats(ctx context.Context) (Statistics, error)
}

// Statistics summarizes the store contents for backlog and dead-letter
// monitoring.
type Statistics struct {
	// Total is the overall record count.
	Total int `json:"total"`

	// ByStatus maps each status to its record count.
	ByStatus map[model.Status]int `json:"byStatus"`

	// OldestPendingAt is the creation time of the oldest pending record,
	// invalid when no records are pending. A growing age signals a stalled
	// dispatch loop.
	OldestPendingAt sql.NullTime `json:"oldestPendingAt"`
}
