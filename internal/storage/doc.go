// Package storage keeps an append-only audit trail of schedule operations.
//
// Drivers:
//   - "file": JSON Lines next to the configured path
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
//
// Schedules themselves are never persisted here.
package storage
