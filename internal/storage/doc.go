// Package storage persists reminders and per-user / per-chat settings.
//
// The store is SQLite (modernc.org/sqlite, pure Go) accessed through
// database/sql with an embedded schema. Callers treat it as the source of
// truth; scheduler state is derived from it and can be rebuilt at any time.
package storage
