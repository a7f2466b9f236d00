package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coregx/replay/model"
)

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		matches bool
	}{
		// Exact matching
		{"Exact match", "orders.created", "orders.created", true},
		{"Exact mismatch", "orders.created", "orders.cancelled", false},

		// Bare wildcards match everything
		{"Bare star", "*", "anything.at.all", true},
		{"Bare tail wildcard", ">", "anything.at.all", true},

		// Tail wildcard: prefix match across any depth
		{"Tail wildcard matches deep subject", "a.b.>", "a.b.c.d", true},
		{"Tail wildcard matches single segment", "orders.>", "orders.created", true},
		{"Tail wildcard rejects different branch", "a.b.>", "a.c", false},
		{"Tail wildcard rejects bare prefix owner", "orders.>", "order.created", false},

		// Single star: exactly one token in its place
		{"Star matches one token", "a.*.c", "a.x.c", true},
		{"Star rejects two tokens", "a.*.c", "a.x.y.c", false},
		{"Star at end matches one token", "orders.*", "orders.created", true},
		{"Star at end rejects two tokens", "orders.*", "orders.eu.created", false},
		{"Star requires head", "a.*.c", "b.x.c", false},
		{"Star requires tail", "a.*.c", "a.x.d", false},

		// No wildcard, no match
		{"Plain pattern never spans", "orders", "orders.created", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, MatchSubject(tt.pattern, tt.subject))
		})
	}
}

func TestHandlerRegistry_FirstRegisteredWins(t *testing.T) {
	registry := NewHandlerRegistry()

	var hits []string
	registry.Register("orders.>", func(_ context.Context, _ model.MessageRecord) error {
		hits = append(hits, "broad")
		return nil
	})
	registry.Register("orders.created", func(_ context.Context, _ model.MessageRecord) error {
		hits = append(hits, "narrow")
		return nil
	})

	record := model.NewMessageRecord("msg-1", "orders.created", nil, nil, model.PriorityNormal, 3)
	outcome, err := registry.Dispatch(context.Background(), record)

	assert.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
	// Both patterns match; registration order decides, not specificity
	assert.Equal(t, []string{"broad"}, hits)
}

func TestHandlerRegistry_Dispatch(t *testing.T) {
	handlerErr := errors.New("downstream unavailable")

	tests := []struct {
		name            string
		pattern         string
		handler         Handler
		subject         string
		expectedOutcome DispatchOutcome
		expectErr       bool
	}{
		{
			name:            "Delivered",
			pattern:         "orders.*",
			handler:         func(_ context.Context, _ model.MessageRecord) error { return nil },
			subject:         "orders.created",
			expectedOutcome: OutcomeDelivered,
		},
		{
			name:            "Handler failure",
			pattern:         "orders.*",
			handler:         func(_ context.Context, _ model.MessageRecord) error { return handlerErr },
			subject:         "orders.created",
			expectedOutcome: OutcomeFailed,
			expectErr:       true,
		},
		{
			name:            "No matching pattern",
			pattern:         "orders.*",
			handler:         func(_ context.Context, _ model.MessageRecord) error { return nil },
			subject:         "billing.invoiced",
			expectedOutcome: OutcomeNoHandler,
			expectErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewHandlerRegistry()
			registry.Register(tt.pattern, tt.handler)

			record := model.NewMessageRecord("msg-1", tt.subject, nil, nil, model.PriorityNormal, 3)
			outcome, err := registry.Dispatch(context.Background(), record)

			assert.Equal(t, tt.expectedOutcome, outcome)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			if tt.expectedOutcome == OutcomeFailed {
				assert.ErrorIs(t, err, handlerErr)
			}
			if tt.expectedOutcome == OutcomeNoHandler {
				assert.True(t, IsNoHandler(err))
			}
		})
	}
}

func TestHandlerRegistry_EmptyRegistry(t *testing.T) {
	registry := NewHandlerRegistry()

	record := model.NewMessageRecord("msg-1", "orders.created", nil, nil, model.PriorityNormal, 3)
	outcome, err := registry.Dispatch(context.Background(), record)

	assert.Equal(t, OutcomeNoHandler, outcome)
	assert.True(t, IsNoHandler(err))
	assert.Equal(t, 0, registry.Len())
}

func TestDispatchOutcome_String(t *testing.T) {
	assert.Equal(t, "delivered", OutcomeDelivered.String())
	assert.Equal(t, "no_handler", OutcomeNoHandler.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "unknown", DispatchOutcome(99).String())
}
