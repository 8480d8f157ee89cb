package scheduling

import "fmt"

// SchedulerStoreError wraps a failure of the job scheduler's store.
type SchedulerStoreError struct {
	Op         string
	ReminderID string
	Err        error
}

func (e *SchedulerStoreError) Error() string {
	return fmt.Sprintf("scheduler %s for reminder %s: %v", e.Op, e.ReminderID, e.Err)
}

func (e *SchedulerStoreError) Unwrap() error { return e.Err }

func storeErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &SchedulerStoreError{Op: op, ReminderID: id, Err: err}
}
