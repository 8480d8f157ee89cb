// Package jobstore persists scheduler job definitions and triggers with GORM
// on SQLite, so armed reminders survive restarts.
package jobstore
