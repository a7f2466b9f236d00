// Package replay provides a durable store-and-forward persistence and replay
// layer for Go messaging systems: messages are written to a database before
// any delivery attempt, then drained by a background loop with retry logic
// and dead-letter handling.
//
// Works both as a library for embedding in your application AND as a
// standalone microservice with REST API.
//
// # Features
//
//   - Persist-before-delivery: a message survives process crashes and broker
//     outages from the moment Persist returns
//   - Explicit status lifecycle: pending → processing → completed | retrying | dead_letter
//   - Exponential Backoff: 10s → 20s → 40s → ... → 5m (max)
//   - Dead-letter handling after the retry budget is exhausted (default 3)
//   - Explicit operator requeue as the only path back from dead_letter
//   - Wildcard subject dispatch ("orders.*", "orders.>") with deterministic
//     first-registered-wins resolution
//   - Bounded-concurrency replay workers with atomic claim arbitration
//   - Retention cleanup of old completed and dead-lettered records
//   - Options Pattern for modern Go API design
//   - Pluggable architecture: bring your own Logger, Transport, Notification system
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapter
//   - Embedded Migrations for easy database setup
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
// First, apply the database migrations:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/replay"
//	    adapter "github.com/coregx/replay/adapters/relica"
//	    _ "github.com/mattn/go-sqlite3"
//	)
//
//	db, _ := sql.Open("sqlite3", "replay.db")
//
//	// Apply embedded migrations
//	if err := replay.ApplyMigrations(db); err != nil {
//	    log.Fatal(err)
//	}
//
// Create the store and manager:
//
//	store := adapter.NewMessageStore(db, "sqlite3")
//
//	manager, _ := replay.NewReplayManager(
//	    replay.WithStore(store),
//	    replay.WithLogger(logger),
//	)
//
//	// Route delivery: handlers by subject pattern, or a Transport
//	manager.RegisterHandler("orders.>", func(ctx context.Context, rec model.MessageRecord) error {
//	    return process(rec.Payload)
//	})
//
//	// Run background drain (pending + retries + cleanup every 30 seconds)
//	ctx := context.Background()
//	manager.Start(ctx)
//	defer manager.Stop()
//
// Persist a message:
//
//	record, err := manager.Persist(ctx, replay.PersistRequest{
//	    Subject: "orders.eu.created",
//	    Payload: []byte(`{"orderId": 123}`),
//	    Priority: model.PriorityHigh,
//	})
//
// # Option 2: As Standalone Service
//
// Run the standalone replay server:
//
//	cd cmd/replay-server
//	go run .
//
// Access REST API at http://localhost:8080:
//
//	# Persist message
//	curl -X POST http://localhost:8080/api/v1/messages \
//	  -H "Content-Type: application/json" \
//	  -d '{"subject":"orders.eu.created","payload":"eyJvcmRlcklkIjoxMjN9"}'
//
//	# Health check
//	curl http://localhost:8080/api/v1/health
//
// # Message Flow
//
//  1. PERSIST
//     Producer → Persist → durable PENDING record
//     (a storage failure here is surfaced to the producer; a message that
//     was never recorded is never assumed deliverable)
//
//  2. DRAIN (Background)
//     Manager → claim pending/retry-ready records (batch, priority order)
//     → Deliver via Transport or matching handler
//     → On Success: COMPLETED
//     → On Failure: RETRYING with exponential backoff
//     → After 3 failures: DEAD_LETTER
//
//  3. DEAD LETTER
//     Dead-lettered records → manual review
//     → Requeue (fresh retry budget) or wait for retention cleanup
//
// # Retry Strategy
//
// Failed deliveries are retried with exponential backoff:
//
//	Failure 1: +20 seconds
//	Failure 2: +40 seconds
//	Failure 3: dead_letter
//
// Delays are capped at 5 minutes. Budget and backoff are configurable per
// manager (WithDefaultMaxRetries) and per store (SetRetryStrategy).
//
// # Database Schema
//
// The library requires a single table (created via embedded migrations):
//
//	replay_message - persisted messages with full retry state
//
// Supports MySQL, PostgreSQL, and SQLite via the Relica adapter.
// Table prefix can be customized (default: "replay_").
//
// # Examples
//
// See the examples/ directory for a complete working example with SQLite.
//
// For detailed documentation, see README.md and pkg.go.dev.
package replay
