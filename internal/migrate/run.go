package migrate

import (
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/diff"
	"github.com/stratadb/strata/internal/history"
)

// State tracks a run through the pipeline.
type State string

const (
	StateIdle       State = "idle"
	StateDiffing    State = "diffing"
	StateGenerating State = "generating"
	StateExecuting  State = "executing"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Run is one migration or rollback attempt. FromVersion and ToVersion carry
// the schema versions the run moves between; for rollbacks ToVersion is the
// version being restored, not the new history row it lands in.
type Run struct {
	ID          uuid.UUID
	Operation   string
	State       State
	FromVersion int64
	ToVersion   int64
	Checksum    string
	Reason      string
	Operations  []diff.Operation
	Statements  []dialect.Statement
	StartedAt   time.Time
}

func newRun(operation, reason string) *Run {
	return &Run{
		ID:        uuid.New(),
		Operation: operation,
		State:     StateIdle,
		Reason:    reason,
		StartedAt: time.Now().UTC(),
	}
}

// successStatus is the log status a committed run records.
func (r *Run) successStatus() string {
	if r.Operation == history.OperationRollback {
		return history.StatusRolledBack
	}
	return history.StatusApplied
}

func (r *Run) logEntry(status string) *history.LogEntry {
	return &history.LogEntry{
		RunID:       r.ID,
		Operation:   r.Operation,
		FromVersion: r.FromVersion,
		ToVersion:   r.ToVersion,
		Reason:      r.Reason,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
}
