package migrate

import (
	"fmt"
	"time"
)

// ExecutionError reports the statement that failed while applying a run. The
// transaction has already been rolled back by the time callers see it.
type ExecutionError struct {
	Index   int
	Summary string
	SQL     string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("statement %d (%s): %v", e.Index+1, e.Summary, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// LockTimeoutError reports that another process held the migration lock for
// the whole timeout window.
type LockTimeoutError struct {
	Key     int64
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("migration lock %d still held after %s", e.Key, e.Timeout)
}
