package replay

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coregx/replay/model"
)

// ReplayManager turns persisted message records into delivery attempts.
// It persists new messages before any delivery, drains pending and
// retry-ready records with bounded concurrency, schedules exponential
// backoff retries through the store, and purges old terminal records.
//
// Delivery goes through an installed Transport when present, otherwise
// through the first matching pattern handler in the registry.
//
// Thread safety: safe for concurrent use. The manager holds no mutable
// per-message state; claim arbitration between concurrent workers is
// enforced entirely by the store's atomic conditional transitions.
type ReplayManager struct {
	store    MessageStore
	registry *HandlerRegistry
	logger   Logger
	notifier NotificationService

	batchSize         int
	maxConcurrent     int
	interval          time.Duration
	retention         time.Duration
	dispatchTimeout   time.Duration
	stopTimeout       time.Duration
	defaultMaxRetries int

	transportMu sync.RWMutex
	transport   Transport

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReplayManager creates a new manager with the provided options.
//
// Required options:
//   - WithStore: message record persistence
//   - WithLogger: logger instance
//
// Optional options:
//   - WithTransport: external publish path (preferred over handlers)
//   - WithNotifications: failure/dead-letter notification hook
//   - WithBatchSize, WithMaxConcurrent, WithInterval, WithRetention,
//     WithDispatchTimeout, WithStopTimeout, WithDefaultMaxRetries
//
// Example:
//
//	manager, err := replay.NewReplayManager(
//	    replay.WithStore(store),
//	    replay.WithLogger(logger),
//	    replay.WithBatchSize(100), // optional
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewReplayManager(opts ...Option) (*ReplayManager, error) {
	// Default configuration
	m := &ReplayManager{
		registry:          NewHandlerRegistry(),
		notifier:          &NoOpNotificationService{},
		batchSize:         50,
		maxConcurrent:     10,
		interval:          30 * time.Second,
		retention:         7 * 24 * time.Hour,
		dispatchTimeout:   30 * time.Second,
		stopTimeout:       5 * time.Second,
		defaultMaxRetries: model.DefaultMaxRetries,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	// Validate required dependencies
	if m.store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageStore is required (use WithStore)")
	}
	if m.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return m, nil
}

// PersistRequest represents a request to durably record a message before
// delivery is attempted.
type PersistRequest struct {
	Subject       string            // Routing key, required
	Payload       []byte            // Opaque message body
	Headers       map[string]string // Optional delivery headers
	Priority      model.Priority    // Drain priority; zero value means normal
	CorrelationID string            // Optional cross-reference identifier
}

// Validate checks the request fields.
func (r PersistRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Subject, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Priority, validation.By(validatePersistPriority)),
	)
}

func validatePersistPriority(value interface{}) error {
	p, _ := value.(model.Priority)
	if p == 0 || p.Valid() {
		return nil
	}
	return model.ErrInvalidPriority
}

// Persist constructs a pending message record and durably stores it.
//
// A store failure here is a hard error surfaced to the producer: a message
// that was never durably recorded must not be assumed deliverable.
func (m *ReplayManager) Persist(ctx context.Context, req PersistRequest) (*model.MessageRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid persist request", err)
	}

	priority := req.Priority
	if priority == 0 {
		priority = model.PriorityNormal
	}

	record := model.NewMessageRecord(uuid.NewString(), req.Subject, req.Payload, req.Headers, priority, m.defaultMaxRetries)
	if req.CorrelationID != "" {
		record.CorrelationID = sql.NullString{String: req.CorrelationID, Valid: true}
	}

	if err := m.store.Save(ctx, &record); err != nil {
		return nil, NewErrorWithCause(ErrCodeStorage, "message was not durably recorded", err)
	}

	m.logger.Infof("Message persisted: id=%s, subject=%s, priority=%s", record.ID, record.Subject, record.Priority)
	return &record, nil
}

// RegisterHandler adds a (pattern, handler) pair to the registry. When no
// transport is installed, dispatch goes to the first registered pattern that
// matches the record's subject.
func (m *ReplayManager) RegisterHandler(pattern string, handler Handler) {
	m.registry.Register(pattern, handler)
}

// SetTransport installs an external publish path, used preferentially over
// pattern handlers for every subsequent dispatch.
func (m *ReplayManager) SetTransport(t Transport) {
	m.transportMu.Lock()
	defer m.transportMu.Unlock()
	m.transport = t
}

func (m *ReplayManager) currentTransport() Transport {
	m.transportMu.RLock()
	defer m.transportMu.RUnlock()
	return m.transport
}

// Load retrieves a single record by ID. Returns ErrNoData when absent.
func (m *ReplayManager) Load(ctx context.Context, id string) (model.MessageRecord, error) {
	return m.store.Load(ctx, id)
}

// Replay loads one record and runs it through dispatch regardless of its
// retry schedule. Used for manual/administrative retry. Returns true when
// the record reached COMPLETED.
//
// A dead-lettered record is not claimable; re-attempt it via
// RequeueDeadLetter first.
func (m *ReplayManager) Replay(ctx context.Context, id string) (bool, error) {
	record, err := m.store.Load(ctx, id)
	if err != nil {
		return false, err
	}
	return m.dispatch(ctx, record), nil
}

// ProcessPending dispatches up to limit pending records awaiting their first
// delivery attempt, in priority order. Returns the number that reached
// COMPLETED. Individual failures are isolated and never stop the batch.
func (m *ReplayManager) ProcessPending(ctx context.Context, limit int) (int, error) {
	records, err := m.store.FindByStatus(ctx, model.StatusPending, limit)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, NewErrorWithCause(ErrCodeStorage, "failed to find pending messages", err)
	}

	completed := 0
	for i := range records {
		if m.dispatch(ctx, records[i]) {
			completed++
		}
	}
	return completed, nil
}

// ReplayFailed fetches up to limit retry-ready records and dispatches them
// concurrently, bounded by the configured worker limit. Returns the number
// that reached COMPLETED.
//
// Overlapping calls (e.g. a manual trigger racing the background loop) are
// safe: the store's atomic claim guarantees each record is processed at most
// once per eligibility.
func (m *ReplayManager) ReplayFailed(ctx context.Context, limit int) (int, error) {
	records, err := m.store.FindRetryable(ctx, limit)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, NewErrorWithCause(ErrCodeStorage, "failed to find retryable messages", err)
	}

	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrent)
	for i := range records {
		record := records[i]
		g.Go(func() error {
			if m.dispatch(gctx, record) {
				completed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(completed.Load()), nil
}

// RequeueDeadLetter explicitly resets a dead-lettered record to PENDING with
// a fresh retry budget. Never applied implicitly.
func (m *ReplayManager) RequeueDeadLetter(ctx context.Context, id string) error {
	if err := m.store.Requeue(ctx, id); err != nil {
		return err
	}
	m.logger.Infof("Dead-lettered message %s requeued", id)
	return nil
}

// Cleanup purges terminal records older than the configured retention window
// and returns the deleted count.
func (m *ReplayManager) Cleanup(ctx context.Context) (int, error) {
	return m.store.CleanupOld(ctx, m.retention)
}

// Stats returns store statistics for operator visibility: total count,
// per-status counts, and the oldest pending timestamp.
func (m *ReplayManager) Stats(ctx context.Context) (Statistics, error) {
	return m.store.Stats(ctx)
}

// Start launches the background loop that periodically drains pending and
// retry-ready records and purges old terminal ones. Safe to call once;
// subsequent calls while running are no-ops.
func (m *ReplayManager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the background loop and waits for its graceful exit, bounded
// by the configured stop timeout. In-flight dispatches are allowed to finish;
// no new batches are started.
func (m *ReplayManager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil

	select {
	case <-m.done:
	case <-time.After(m.stopTimeout):
		m.logger.Warnf("Replay loop did not stop within %v", m.stopTimeout)
	}
}

// run drives the periodic batch until the context is canceled.
func (m *ReplayManager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Replay manager started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Replay manager stopped")
			return
		case <-ticker.C:
			m.processBatch(ctx)
		}
	}
}

// processBatch runs one iteration of the background loop. Errors are logged
// and never terminate the loop.
func (m *ReplayManager) processBatch(ctx context.Context) {
	// A record stuck in processing past twice the dispatch timeout lost its
	// worker (crash, or a failed outcome write); put it back into the drain.
	reclaimed, err := m.store.ReclaimStale(ctx, 2*m.dispatchTimeout)
	if err != nil {
		m.logger.Errorf("Error reclaiming stale messages: %v", err)
	}
	if reclaimed > 0 {
		m.logger.Warnf("Reclaimed %d stale processing messages", reclaimed)
	}

	pendingCount, err := m.ProcessPending(ctx, m.batchSize)
	if err != nil {
		m.logger.Errorf("Error processing pending messages: %v", err)
	}

	retryCount, err := m.ReplayFailed(ctx, m.batchSize)
	if err != nil {
		m.logger.Errorf("Error replaying failed messages: %v", err)
	}

	cleaned, err := m.Cleanup(ctx)
	if err != nil {
		m.logger.Errorf("Error cleaning up old messages: %v", err)
	}

	if pendingCount > 0 || retryCount > 0 || cleaned > 0 {
		m.logger.Infof("Batch processed: pending=%d, retries=%d, cleaned=%d",
			pendingCount, retryCount, cleaned)
	}
}

// dispatch runs one record through a single delivery attempt. Returns true
// when the record reached COMPLETED.
func (m *ReplayManager) dispatch(ctx context.Context, record model.MessageRecord) bool {
	claimed, err := m.store.Claim(ctx, record.ID)
	if err != nil {
		m.logger.Errorf("Failed to claim message %s: %v", record.ID, err)
		return false
	}
	if !claimed {
		// Another worker owns it, or the record is terminal.
		m.logger.Debugf("Message %s not claimable, skipping", record.ID)
		return false
	}
	record.MarkProcessing()

	outcome, deliveryErr := m.deliver(ctx, record)
	switch outcome {
	case OutcomeDelivered:
		if err := m.store.UpdateStatus(ctx, record.ID, model.StatusCompleted, "", false); err != nil {
			m.logger.Errorf("Failed to mark message %s completed: %v", record.ID, err)
			return false
		}
		m.logger.Infof("Delivered message %s (subject=%s, retry_count=%d)",
			record.ID, record.Subject, record.RetryCount)
		return true

	case OutcomeNoHandler:
		m.logger.Warnf("No handler matched subject %s for message %s", record.Subject, record.ID)
		m.handleDeliveryFailure(ctx, record, deliveryErr)
		return false

	default:
		m.handleDeliveryFailure(ctx, record, deliveryErr)
		return false
	}
}

// deliver attempts delivery of one claimed record, bounded by the dispatch
// timeout. A transport, when installed, takes precedence over the registry.
func (m *ReplayManager) deliver(ctx context.Context, record model.MessageRecord) (DispatchOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, m.dispatchTimeout)
	defer cancel()

	if t := m.currentTransport(); t != nil {
		if err := t.Publish(ctx, record.Subject, record.Payload, record.Headers); err != nil {
			return OutcomeFailed, NewErrorWithCause(ErrCodeDelivery, "transport publish failed", err)
		}
		return OutcomeDelivered, nil
	}

	return m.registry.Dispatch(ctx, record)
}

// handleDeliveryFailure routes a failed attempt into the retry path and
// fires the corresponding notifications.
func (m *ReplayManager) handleDeliveryFailure(ctx context.Context, record model.MessageRecord, deliveryErr error) {
	errorMessage := ""
	if deliveryErr != nil {
		errorMessage = deliveryErr.Error()
	}

	if err := m.store.UpdateStatus(ctx, record.ID, model.StatusFailed, errorMessage, true); err != nil {
		m.logger.Errorf("Failed to record failure for message %s: %v", record.ID, err)
		return
	}

	if err := m.notifier.NotifyDeliveryFailure(ctx, record, deliveryErr); err != nil {
		m.logger.Warnf("Failed to send delivery failure notification: %v", err)
	}

	updated, err := m.store.Load(ctx, record.ID)
	if err != nil {
		m.logger.Errorf("Failed to reload message %s after failure: %v", record.ID, err)
		return
	}

	if updated.Status == model.StatusDeadLetter {
		m.logger.Warnf("Message %s dead-lettered after %d attempts (subject=%s): %v",
			updated.ID, updated.RetryCount, updated.Subject, deliveryErr)
		if err := m.notifier.NotifyDeadLettered(ctx, updated); err != nil {
			m.logger.Warnf("Failed to send dead-letter notification: %v", err)
		}
		return
	}

	m.logger.Warnf("Delivery failed for message %s (retry %d/%d, next attempt %v): %v",
		updated.ID, updated.RetryCount, updated.MaxRetries, updated.NextRetryAt.Time, deliveryErr)
}
