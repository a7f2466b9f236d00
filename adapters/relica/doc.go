// Package relica provides the message store implementation using the Relica
// query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database
// query builder for Go with zero production dependencies.
//
// This package provides the production-ready implementation of the
// replay.MessageStore interface.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/replay"
//	    adapter "github.com/coregx/replay/adapters/relica"
//	    _ "github.com/mattn/go-sqlite3"
//	)
//
//	// Open database connection
//	db, err := sql.Open("sqlite3", "replay.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create store (driverName should be "mysql", "postgres", or "sqlite3")
//	store := adapter.NewMessageStore(db, "sqlite3")
//
//	// Create manager
//	manager, err := replay.NewReplayManager(
//	    replay.WithStore(store),
//	    replay.WithLogger(logger),
//	)
package relica
