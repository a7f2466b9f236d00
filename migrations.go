package replay

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// defaultTablePrefix is the prefix the embedded migration scripts are
// written against; ApplyMigrationsWithPrefix rewrites it for custom prefixes.
const defaultTablePrefix = "replay_"

// MigrationFiles contains all SQL migration files embedded in the binary.
// Users can access these files programmatically to apply migrations using
// their preferred migration tool (goose, golang-migrate, atlas, etc.),
// or call ApplyMigrations for the simple built-in path.
//
// Example with goose:
//
//	import (
//	    "github.com/pressly/goose/v3"
//	    "github.com/coregx/replay"
//	)
//
//	goose.SetBaseFS(replay.MigrationFiles)
//	if err := goose.Up(db, "migrations"); err != nil {
//	    log.Fatal(err)
//	}
//
//go:embed migrations/*.sql
var MigrationFiles embed.FS

// ApplyMigrations executes every embedded migration file against db using
// the default "replay_" table prefix, in lexical filename order. Statements
// are idempotent (CREATE TABLE IF NOT EXISTS), so calling this on every
// startup is safe.
func ApplyMigrations(db *sql.DB) error {
	return ApplyMigrationsWithPrefix(db, defaultTablePrefix)
}

// ApplyMigrationsWithPrefix is ApplyMigrations for a custom table prefix:
// every occurrence of the default prefix in the scripts is rewritten, so the
// created tables match a store built with NewMessageStoreWithPrefix.
//
// Statements are executed one at a time; the MySQL driver rejects
// multi-statement Exec calls unless the DSN opts in, and splitting keeps
// the runner working on all three supported drivers.
func ApplyMigrationsWithPrefix(db *sql.DB, prefix string) error {
	entries, err := fs.ReadDir(MigrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := fs.ReadFile(MigrationFiles, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		for _, statement := range splitStatements(rewritePrefix(string(script), prefix)) {
			if _, err := db.Exec(statement); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", name, err)
			}
		}
	}

	return nil
}

// rewritePrefix retargets a migration script at a custom table prefix.
func rewritePrefix(script, prefix string) string {
	if prefix == defaultTablePrefix {
		return script
	}
	return strings.ReplaceAll(script, defaultTablePrefix, prefix)
}

// splitStatements breaks a migration script into individual statements,
// dropping fragments that contain only whitespace and comments.
func splitStatements(script string) []string {
	var statements []string
	for _, fragment := range strings.Split(script, ";") {
		if statementIsEmpty(fragment) {
			continue
		}
		statements = append(statements, strings.TrimSpace(fragment))
	}
	return statements
}

func statementIsEmpty(fragment string) bool {
	for _, line := range strings.Split(fragment, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
