// Package scheduling keeps the job scheduler's triggers in step with the
// reminder store.
//
// Every change to a reminder is applied as unschedule-all, plan, schedule
// under a lock keyed by the reminder id, so concurrent edits of one reminder
// never interleave while different reminders proceed in parallel.
package scheduling
