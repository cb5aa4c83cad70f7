package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/history"
)

// failureLogTimeout bounds the out-of-band write that records a failed run.
const failureLogTimeout = 5 * time.Second

// Executor applies one run's statements and its audit records atomically.
type Executor struct {
	db     *sqlx.DB
	d      dialect.Dialect
	store  *history.Store
	logger *slog.Logger
}

// NewExecutor returns an executor writing through store on db.
func NewExecutor(db *sqlx.DB, d dialect.Dialect, store *history.Store, logger *slog.Logger) *Executor {
	return &Executor{db: db, d: d, store: store, logger: logger}
}

// Apply executes every statement of the run in a single transaction together
// with the snapshot insert, the checksum replacement, and the success log
// entry, so the trail can never disagree with the schema it describes. On
// any failure the transaction rolls back and exactly one failed log entry is
// written outside it.
//
// Engines without transactional DDL commit each DDL statement implicitly;
// the runner warns before handing such plans here.
func (e *Executor) Apply(ctx context.Context, run *Run, snap *history.Snapshot) error {
	run.State = StateExecuting
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	for i, st := range run.Statements {
		e.logger.Debug("executing statement",
			"run_id", run.ID, "index", i+1, "total", len(run.Statements), "summary", st.Summary)
		if _, err := tx.ExecContext(ctx, st.SQL, st.Args...); err != nil {
			execErr := &ExecutionError{Index: i, Summary: st.Summary, SQL: st.SQL, Err: err}
			e.abort(tx, run, execErr)
			return execErr
		}
	}
	if err := e.store.SaveSnapshot(ctx, tx, snap); err != nil {
		e.abort(tx, run, err)
		return err
	}
	if err := e.store.AppendLogTx(ctx, tx, run.logEntry(run.successStatus())); err != nil {
		e.abort(tx, run, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		err = fmt.Errorf("commit migration: %w", err)
		run.State = StateRolledBack
		e.recordFailure(run, err)
		return err
	}
	run.State = StateCommitted
	return nil
}

func (e *Executor) abort(tx *sqlx.Tx, run *Run, cause error) {
	if err := tx.Rollback(); err != nil {
		e.logger.Warn("transaction rollback failed", "run_id", run.ID, "error", err)
	}
	run.State = StateRolledBack
	e.recordFailure(run, cause)
}

// recordFailure appends the failed log entry on a fresh context: the run's
// context may already be canceled, and the trail must still say what
// happened.
func (e *Executor) recordFailure(run *Run, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureLogTimeout)
	defer cancel()
	entry := run.logEntry(history.StatusFailed)
	entry.Reason = failReason(run.Reason, cause)
	if err := e.store.AppendLog(ctx, entry); err != nil {
		e.logger.Error("could not record failed run", "run_id", run.ID, "error", err)
	}
}

func failReason(reason string, cause error) string {
	if reason == "" {
		return cause.Error()
	}
	return reason + ": " + cause.Error()
}
