// Package scheduler is the durable job scheduler behind reminders.
//
// Job definitions and triggers live in the jobstore; the scheduler keeps the
// runtime side (timers for one-shot triggers, a cron runner for recurring
// ones) in sync with it. Execution is delegated to the task engine:
// the scheduler is responsible only for:
//   - persisting and arming triggers
//   - misfire handling on start
//   - enqueueing the registered job handler with the trigger's data
package scheduler
