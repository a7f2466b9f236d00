package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/coregx/replay"
	"github.com/coregx/replay/cmd/replay-server/internal/metrics"
	"github.com/coregx/replay/model"
)

// stubStore is the minimal in-memory MessageStore the handler tests need.
type stubStore struct {
	mu      sync.Mutex
	records map[string]model.MessageRecord
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]model.MessageRecord)}
}

func (s *stubStore) Save(_ context.Context, m *model.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.ID] = *m
	return nil
}

func (s *stubStore) Load(_ context.Context, id string) (model.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return model.MessageRecord{}, replay.ErrNoData
	}
	return record, nil
}

func (s *stubStore) FindByStatus(_ context.Context, _ model.Status, _ int) ([]model.MessageRecord, error) {
	return nil, replay.ErrNoData
}

func (s *stubStore) FindRetryable(_ context.Context, _ int) ([]model.MessageRecord, error) {
	return nil, replay.ErrNoData
}

func (s *stubStore) Claim(_ context.Context, _ string) (bool, error) { return false, nil }

func (s *stubStore) UpdateStatus(_ context.Context, _ string, _ model.Status, _ string, _ bool) error {
	return nil
}

func (s *stubStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *stubStore) Requeue(_ context.Context, _ string) error { return replay.ErrNoData }

func (s *stubStore) ReclaimStale(_ context.Context, _ time.Duration) (int, error) { return 0, nil }

func (s *stubStore) CleanupOld(_ context.Context, _ time.Duration) (int, error) { return 0, nil }

func (s *stubStore) Stats(_ context.Context) (replay.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := replay.Statistics{ByStatus: make(map[model.Status]int)}
	for _, record := range s.records {
		stats.ByStatus[record.Status]++
		stats.Total++
	}
	return stats, nil
}

func newTestHandler(t *testing.T) (*Handler, *metrics.Metrics) {
	t.Helper()

	manager, err := replay.NewReplayManager(
		replay.WithStore(newStubStore()),
		replay.WithLogger(&replay.NoopLogger{}),
	)
	assert.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	return NewHandler(manager, &replay.NoopLogger{}, m), m
}

func TestHandlePersist_CountsPersistedMessages(t *testing.T) {
	handler, m := newTestHandler(t)

	body := `{"subject":"orders.eu.created","payload":"eyJvcmRlcklkIjoxfQ=="}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandlePersist(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Persisted))
}

func TestHandlePersist_RejectedRequestsAreNotCounted(t *testing.T) {
	handler, m := newTestHandler(t)

	tests := []struct {
		name         string
		method       string
		body         string
		expectedCode int
	}{
		{"Missing subject", http.MethodPost, `{"payload":"aGk="}`, http.StatusBadRequest},
		{"Invalid JSON", http.MethodPost, `{not json`, http.StatusBadRequest},
		{"Wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/messages", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.HandlePersist(rec, req)

			assert.Equal(t, tt.expectedCode, rec.Code)
		})
	}

	assert.Equal(t, float64(0), testutil.ToFloat64(m.Persisted))
}
