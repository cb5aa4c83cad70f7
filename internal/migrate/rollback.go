package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stratadb/strata/internal/ddl"
	"github.com/stratadb/strata/internal/diff"
	"github.com/stratadb/strata/internal/history"
)

// Rollback restores the schema of an earlier version by diffing the current
// snapshot against the target's tables and applying the reverse plan as a
// new version: history only ever moves forward. Rolling back an additive
// migration means dropping what it added, so anything destructive in the
// reverse plan requires force. Every rollback attempt that reached the
// database leaves a log entry, blocked ones included.
func (r *Runner) Rollback(ctx context.Context, toVersion int64, force bool, opts Options) (*Result, error) {
	start := time.Now()
	if err := r.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	release, err := acquireLock(ctx, r.db, r.d, opts.lockKey(), opts.lockTimeout(), r.logger)
	if err != nil {
		return nil, err
	}
	defer release()

	latest, err := r.store.LatestSnapshot(ctx)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return nil, fmt.Errorf("nothing to roll back: no migrations have been applied")
		}
		return nil, err
	}

	run := newRun(history.OperationRollback, opts.Reason)
	run.FromVersion = latest.Version
	run.ToVersion = toVersion

	if toVersion >= latest.Version {
		err := fmt.Errorf("cannot roll back to version %d: current version is %d", toVersion, latest.Version)
		r.recordBlocked(run, err)
		return nil, err
	}
	target, err := r.store.SnapshotAt(ctx, toVersion)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			err = fmt.Errorf("no snapshot recorded for version %d", toVersion)
		}
		r.recordBlocked(run, err)
		return nil, err
	}
	run.Checksum = target.Checksum

	run.State = StateDiffing
	ops, err := diff.Compute(latest.Tables, target.Tables)
	if err != nil {
		r.recordBlocked(run, err)
		return nil, err
	}
	run.Operations = ops

	run.State = StateGenerating
	stmts, err := r.gen.Generate(ops, ddl.Options{AllowDestructive: force})
	if err != nil {
		r.recordBlocked(run, err)
		if !force && len(diff.Destructives(ops)) > 0 {
			return nil, fmt.Errorf("rollback to version %d requires force: %w", toVersion, err)
		}
		return nil, err
	}
	run.Statements = stmts

	r.warnNonTransactional(stmts)

	snap := &history.Snapshot{
		Version:   latest.Version + 1,
		Checksum:  target.Checksum,
		Tables:    target.Tables,
		AppliedAt: time.Now().UTC(),
	}
	if err := r.exec.Apply(ctx, run, snap); err != nil {
		return nil, err
	}
	r.logger.Info("rollback applied",
		"run_id", run.ID, "restored_version", toVersion, "new_version", snap.Version,
		"statements", len(stmts), "duration", time.Since(start))
	return &Result{
		Run:            run,
		FromVersion:    latest.Version,
		ToVersion:      toVersion,
		Checksum:       target.Checksum,
		StatementCount: len(stmts),
		Duration:       time.Since(start),
	}, nil
}
