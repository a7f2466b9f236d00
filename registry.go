package replay

import (
	"context"
	"strings"
	"sync"

	"github.com/coregx/replay/model"
)

// Handler delivers a single message record. A nil return acknowledges
// delivery; an error routes the record into the retry path.
type Handler func(ctx context.Context, record model.MessageRecord) error

// Transport defines the interface for publishing messages to an external
// pub/sub system. When a transport is installed on the manager it is
// preferred over pattern handlers for every dispatch.
//
// Implementations should return an error for failed publishes (connection
// loss, negative broker ack, timeout) to trigger the retry mechanism.
type Transport interface {
	// Publish delivers a message to the transport.
	Publish(ctx context.Context, subject string, payload []byte, headers map[string]string) error
}

// DispatchOutcome is the explicit result of one delivery attempt, so callers
// never need to distinguish cases by error type inspection.
type DispatchOutcome int

const (
	// OutcomeDelivered indicates the handler or transport accepted the message.
	OutcomeDelivered DispatchOutcome = iota

	// OutcomeNoHandler indicates no registered pattern matched the subject.
	OutcomeNoHandler

	// OutcomeFailed indicates the matched handler returned an error.
	OutcomeFailed
)

// String returns a human-readable outcome name.
func (o DispatchOutcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeNoHandler:
		return "no_handler"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HandlerRegistry maps subject patterns to delivery handlers as an ordered
// list of (pattern, handler) pairs. When several patterns match a subject the
// first registered one wins; resolution never depends on map iteration order.
//
// Registrations typically happen once at startup, but the registry is safe
// for concurrent registration and dispatch.
type HandlerRegistry struct {
	mu      sync.RWMutex
	entries []registration
}

type registration struct {
	pattern string
	handler Handler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{}
}

// Register appends a (pattern, handler) pair. Later registrations of an
// already-registered pattern are kept but shadowed by the earlier one.
func (r *HandlerRegistry) Register(pattern string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registration{pattern: pattern, handler: handler})
}

// Len returns the number of registered handlers.
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Match returns the first registered handler whose pattern matches the
// subject, along with the matching pattern.
func (r *HandlerRegistry) Match(subject string) (Handler, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if MatchSubject(e.pattern, subject) {
			return e.handler, e.pattern, true
		}
	}
	return nil, "", false
}

// Dispatch delivers a record to the first matching handler and reports the
// explicit outcome. Handler errors are returned alongside OutcomeFailed.
func (r *HandlerRegistry) Dispatch(ctx context.Context, record model.MessageRecord) (DispatchOutcome, error) {
	handler, pattern, ok := r.Match(record.Subject)
	if !ok {
		return OutcomeNoHandler, NewError(ErrCodeNoHandler, "no handler registered for subject "+record.Subject)
	}
	if err := handler(ctx, record); err != nil {
		return OutcomeFailed, NewErrorWithCause(ErrCodeDelivery, "handler "+pattern+" failed", err)
	}
	return OutcomeDelivered, nil
}

// MatchSubject reports whether a subject pattern matches a subject.
//
// Matching rules, in order:
//   - Exact string equality matches.
//   - A bare "*" or bare ">" matches any subject.
//   - A pattern ending in ">" matches any subject starting with the prefix
//     before the ">" (e.g. "orders.>" matches "orders.eu.created").
//   - A pattern containing exactly one "*" matches a single token in its
//     place: the subject must start with the head, end with the tail, and
//     the spanned middle must not cross a "." boundary (e.g. "a.*.c"
//     matches "a.x.c" but not "a.x.y.c").
//   - Anything else does not match.
func MatchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if pattern == "*" || pattern == ">" {
		return true
	}
	if strings.HasSuffix(pattern, ">") {
		return strings.HasPrefix(subject, strings.TrimSuffix(pattern, ">"))
	}
	if strings.Count(pattern, "*") == 1 {
		head, tail, _ := strings.Cut(pattern, "*")
		if len(subject) < len(head)+len(tail) {
			return false
		}
		if !strings.HasPrefix(subject, head) || !strings.HasSuffix(subject, tail) {
			return false
		}
		middle := subject[len(head) : len(subject)-len(tail)]
		return !strings.Contains(middle, ".")
	}
	return false
}
