// Package migrate drives the reconciliation pipeline: fingerprint the
// declared schema, fast-path out when the database already matches, then
// lock, diff, generate, and execute under a single advisory lock. Every
// state transition is observable on the Run, and every attempt that touched
// the database leaves a log entry.
package migrate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stratadb/strata/internal/checksum"
	"github.com/stratadb/strata/internal/ddl"
	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/diff"
	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/schema"
)

// DefaultLockKey is the advisory lock key migrations take when the
// configuration does not override it.
const DefaultLockKey int64 = 1398034001

const defaultLockTimeout = 30 * time.Second

// Options tune one runner invocation.
type Options struct {
	// AllowDestructive permits plans that drop columns or tables.
	AllowDestructive bool
	// LockKey overrides the advisory lock key. Zero uses DefaultLockKey.
	LockKey int64
	// LockTimeout bounds how long to wait for the lock. Zero uses 30s.
	LockTimeout time.Duration
	// Reason is recorded verbatim on the run's log entry.
	Reason string
}

func (o Options) lockKey() int64 {
	if o.LockKey != 0 {
		return o.LockKey
	}
	return DefaultLockKey
}

func (o Options) lockTimeout() time.Duration {
	if o.LockTimeout > 0 {
		return o.LockTimeout
	}
	return defaultLockTimeout
}

// Result summarizes a finished run.
type Result struct {
	Run            *Run
	UpToDate       bool
	FromVersion    int64
	ToVersion      int64
	Checksum       string
	StatementCount int
	Duration       time.Duration
}

// Plan is a dry-run: what Migrate would do, without the lock and without
// executing anything. Destructive operations are listed rather than
// rejected; presentation is the caller's concern.
type Plan struct {
	FromVersion   int64
	ToVersion     int64
	Checksum      string
	UpToDate      bool
	Operations    []diff.Operation
	Destructive   []diff.Operation
	Statements    []dialect.Statement
	Transactional bool
}

// Runner drives the migration pipeline for one database.
type Runner struct {
	db     *sqlx.DB
	d      dialect.Dialect
	store  *history.Store
	gen    *ddl.Generator
	exec   *Executor
	logger *slog.Logger
}

// NewRunner wires a runner over an open connection pool.
func NewRunner(db *sqlx.DB, d dialect.Dialect, store *history.Store, logger *slog.Logger) *Runner {
	return &Runner{
		db:     db,
		d:      d,
		store:  store,
		gen:    ddl.NewGenerator(d),
		exec:   NewExecutor(db, d, store, logger),
		logger: logger,
	}
}

// Migrate reconciles the database with the desired tables. When the stored
// checksum already matches, nothing happens and the result reports
// UpToDate; the checksum is re-read after taking the lock so a process that
// lost the startup race sees the winner's work and skips as well.
func (r *Runner) Migrate(ctx context.Context, desired []schema.TableDefinition, opts Options) (*Result, error) {
	start := time.Now()
	if err := schema.ValidateTables(desired); err != nil {
		return nil, err
	}
	if err := r.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	sum, err := checksum.Sum(desired)
	if err != nil {
		return nil, err
	}

	stored, err := r.currentChecksum(ctx)
	if err != nil {
		return nil, err
	}
	if stored == sum {
		r.logger.Info("schema unchanged", "checksum", sum)
		return r.upToDate(ctx, sum, start)
	}

	release, err := acquireLock(ctx, r.db, r.d, opts.lockKey(), opts.lockTimeout(), r.logger)
	if err != nil {
		return nil, err
	}
	defer release()

	stored, err = r.currentChecksum(ctx)
	if err != nil {
		return nil, err
	}
	if stored == sum {
		r.logger.Info("schema already migrated by another process", "checksum", sum)
		return r.upToDate(ctx, sum, start)
	}

	run := newRun(history.OperationMigrate, opts.Reason)
	run.Checksum = sum

	var prevTables []schema.TableDefinition
	if latest, err := r.store.LatestSnapshot(ctx); err == nil {
		prevTables = latest.Tables
		run.FromVersion = latest.Version
	} else if !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}
	run.ToVersion = run.FromVersion + 1

	run.State = StateDiffing
	ops, err := diff.Compute(prevTables, desired)
	if err != nil {
		return nil, err
	}
	run.Operations = ops
	r.logger.Info("schema drift detected",
		"run_id", run.ID, "from_version", run.FromVersion, "operations", len(ops))

	run.State = StateGenerating
	stmts, err := r.gen.Generate(ops, ddl.Options{AllowDestructive: opts.AllowDestructive})
	if err != nil {
		r.recordBlocked(run, err)
		return nil, err
	}
	run.Statements = stmts

	r.warnNonTransactional(stmts)

	snap := &history.Snapshot{
		Version:   run.ToVersion,
		Checksum:  sum,
		Tables:    desired,
		AppliedAt: time.Now().UTC(),
	}
	if err := r.exec.Apply(ctx, run, snap); err != nil {
		return nil, err
	}
	r.logger.Info("migration applied",
		"run_id", run.ID, "version", run.ToVersion, "statements", len(stmts), "duration", time.Since(start))
	return &Result{
		Run:            run,
		FromVersion:    run.FromVersion,
		ToVersion:      run.ToVersion,
		Checksum:       sum,
		StatementCount: len(stmts),
		Duration:       time.Since(start),
	}, nil
}

// Plan computes what Migrate would do. It takes no lock: the answer is
// advisory and may be stale by the time a real migration runs.
func (r *Runner) Plan(ctx context.Context, desired []schema.TableDefinition) (*Plan, error) {
	if err := schema.ValidateTables(desired); err != nil {
		return nil, err
	}
	if err := r.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	sum, err := checksum.Sum(desired)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Checksum: sum, Transactional: r.d.SupportsTransactionalDDL()}

	stored, err := r.currentChecksum(ctx)
	if err != nil {
		return nil, err
	}
	var prevTables []schema.TableDefinition
	if latest, err := r.store.LatestSnapshot(ctx); err == nil {
		prevTables = latest.Tables
		plan.FromVersion = latest.Version
	} else if !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}
	if stored == sum {
		plan.UpToDate = true
		plan.ToVersion = plan.FromVersion
		return plan, nil
	}
	plan.ToVersion = plan.FromVersion + 1

	ops, err := diff.Compute(prevTables, desired)
	if err != nil {
		return nil, err
	}
	plan.Operations = ops
	plan.Destructive = diff.Destructives(ops)

	stmts, err := r.gen.Generate(ops, ddl.Options{AllowDestructive: true})
	if err != nil {
		return nil, err
	}
	plan.Statements = stmts
	return plan, nil
}

func (r *Runner) upToDate(ctx context.Context, sum string, start time.Time) (*Result, error) {
	version, err := r.store.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{
		UpToDate:    true,
		FromVersion: version,
		ToVersion:   version,
		Checksum:    sum,
		Duration:    time.Since(start),
	}, nil
}

func (r *Runner) currentChecksum(ctx context.Context) (string, error) {
	sum, err := r.store.CurrentChecksum(ctx)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return sum, nil
}

func (r *Runner) warnNonTransactional(stmts []dialect.Statement) {
	if !r.d.SupportsTransactionalDDL() && len(stmts) > 0 {
		r.logger.Warn("engine cannot roll back DDL; a failed run may leave partial schema",
			"dialect", r.d.Name())
	}
}

// recordBlocked writes the failed log entry for a run that was rejected
// before execution started.
func (r *Runner) recordBlocked(run *Run, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureLogTimeout)
	defer cancel()
	entry := run.logEntry(history.StatusFailed)
	entry.Reason = failReason(run.Reason, cause)
	if err := r.store.AppendLog(ctx, entry); err != nil {
		r.logger.Error("could not record blocked run", "run_id", run.ID, "error", err)
	}
}
