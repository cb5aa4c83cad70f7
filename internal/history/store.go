// Package history persists the migration audit trail: the current schema
// checksum, one immutable snapshot per applied version, and a log entry per
// run. The bookkeeping tables live in the migrated database itself, so the
// trail moves with the data and a fresh process can always reconstruct where
// a previous one left off.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stratadb/strata/internal/checksum"
	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/schema"
)

// ErrNotFound is returned when a requested snapshot or checksum row does not
// exist yet.
var ErrNotFound = errors.New("not found")

// Operations recorded in the migration log.
const (
	OperationMigrate  = "migrate"
	OperationRollback = "rollback"
)

// Log entry outcomes. A successful migrate records applied, a successful
// rollback records rolled_back, and any run that aborted records failed.
const (
	StatusApplied    = "applied"
	StatusRolledBack = "rolled_back"
	StatusFailed     = "failed"
)

// Snapshot is one applied schema version. Tables carry the full definitions
// in effect at that version, so any older version can be diffed against and
// restored.
type Snapshot struct {
	Version   int64
	Checksum  string
	Tables    []schema.TableDefinition
	AppliedAt time.Time
}

// LogEntry records one migration or rollback run.
type LogEntry struct {
	RunID       uuid.UUID
	Operation   string
	FromVersion int64
	ToVersion   int64
	Reason      string
	Status      string
	CreatedAt   time.Time
}

// Store reads and writes the bookkeeping tables. Queries are written with ?
// placeholders and rebound for the active driver.
type Store struct {
	db *sqlx.DB
	d  dialect.Dialect
}

// NewStore returns a store over db using d's bookkeeping DDL.
func NewStore(db *sqlx.DB, d dialect.Dialect) *Store {
	return &Store{db: db, d: d}
}

// EnsureSchema creates the bookkeeping tables when missing. It is idempotent
// and runs on every startup before anything else touches the trail.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range s.d.HistoryDDL() {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure bookkeeping schema: %w", err)
		}
	}
	return nil
}

// snapshotRow maps 1:1 to migration_history columns. The schema document is
// stored as the same canonical JSON the checksum hashes, so equal checksums
// imply byte-equal documents.
type snapshotRow struct {
	Version    int64     `db:"version"`
	Checksum   string    `db:"checksum"`
	SchemaJSON string    `db:"schema_json"`
	AppliedAt  time.Time `db:"applied_at"`
}

func (r snapshotRow) toSnapshot() (Snapshot, error) {
	tables, err := decodeTables(r.SchemaJSON)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot version %d: %w", r.Version, err)
	}
	return Snapshot{Version: r.Version, Checksum: r.Checksum, Tables: tables, AppliedAt: r.AppliedAt}, nil
}

type logRow struct {
	RunID       string    `db:"run_id"`
	Operation   string    `db:"operation"`
	FromVersion int64     `db:"from_version"`
	ToVersion   int64     `db:"to_version"`
	Reason      string    `db:"reason"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r logRow) toEntry() (LogEntry, error) {
	id, err := uuid.Parse(r.RunID)
	if err != nil {
		return LogEntry{}, fmt.Errorf("log entry %q: %w", r.RunID, err)
	}
	return LogEntry{
		RunID:       id,
		Operation:   r.Operation,
		FromVersion: r.FromVersion,
		ToVersion:   r.ToVersion,
		Reason:      r.Reason,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func encodeTables(tables []schema.TableDefinition) (string, error) {
	raw, err := checksum.Canonical(tables)
	if err != nil {
		return "", fmt.Errorf("encode schema document: %w", err)
	}
	return string(raw), nil
}

func decodeTables(doc string) ([]schema.TableDefinition, error) {
	var decoded struct {
		Tables []schema.TableDefinition `json:"tables"`
	}
	if err := json.Unmarshal([]byte(doc), &decoded); err != nil {
		return nil, fmt.Errorf("decode schema document: %w", err)
	}
	return decoded.Tables, nil
}

// CurrentChecksum returns the checksum of the last applied schema, or
// ErrNotFound when no migration has ever run.
func (s *Store) CurrentChecksum(ctx context.Context) (string, error) {
	var sum string
	if err := s.db.GetContext(ctx, &sum, "SELECT checksum FROM schema_checksum WHERE id = 1"); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read schema checksum: %w", err)
	}
	return sum, nil
}

// LatestVersion returns the highest applied version, or 0 when the history
// is empty.
func (s *Store) LatestVersion(ctx context.Context) (int64, error) {
	var version sql.NullInt64
	if err := s.db.GetContext(ctx, &version, "SELECT MAX(version) FROM migration_history"); err != nil {
		return 0, fmt.Errorf("read latest version: %w", err)
	}
	return version.Int64, nil
}

// LatestSnapshot returns the most recent snapshot, or ErrNotFound when the
// history is empty.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var row snapshotRow
	q := "SELECT version, checksum, schema_json, applied_at FROM migration_history ORDER BY version DESC LIMIT 1"
	if err := s.db.GetContext(ctx, &row, q); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read latest snapshot: %w", err)
	}
	snap, err := row.toSnapshot()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SnapshotAt returns the snapshot applied as the given version.
func (s *Store) SnapshotAt(ctx context.Context, version int64) (*Snapshot, error) {
	var row snapshotRow
	q := s.db.Rebind("SELECT version, checksum, schema_json, applied_at FROM migration_history WHERE version = ?")
	if err := s.db.GetContext(ctx, &row, q, version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot %d: %w", version, err)
	}
	snap, err := row.toSnapshot()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// History returns snapshots newest first. A non-positive limit returns all.
func (s *Store) History(ctx context.Context, limit int) ([]Snapshot, error) {
	q := "SELECT version, checksum, schema_json, applied_at FROM migration_history ORDER BY version DESC"
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.toSnapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Log returns log entries newest first. A non-positive limit returns all.
func (s *Store) Log(ctx context.Context, limit int) ([]LogEntry, error) {
	q := "SELECT run_id, operation, from_version, to_version, reason, status, created_at FROM migration_log ORDER BY created_at DESC, run_id DESC"
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("read migration log: %w", err)
	}
	out := make([]LogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// SaveSnapshot inserts the snapshot and replaces the checksum row inside the
// caller's transaction, so the trail commits or rolls back with the DDL it
// describes. The delete-and-insert keeps the single-row upsert portable
// across engines.
func (s *Store) SaveSnapshot(ctx context.Context, tx *sqlx.Tx, snap *Snapshot) error {
	doc, err := encodeTables(snap.Tables)
	if err != nil {
		return err
	}
	row := snapshotRow{
		Version:    snap.Version,
		Checksum:   snap.Checksum,
		SchemaJSON: doc,
		AppliedAt:  snap.AppliedAt,
	}
	const insertQ = `INSERT INTO migration_history (version, checksum, schema_json, applied_at)
		VALUES (:version, :checksum, :schema_json, :applied_at)`
	if _, err := tx.NamedExecContext(ctx, insertQ, row); err != nil {
		return fmt.Errorf("insert snapshot %d: %w", snap.Version, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_checksum"); err != nil {
		return fmt.Errorf("replace schema checksum: %w", err)
	}
	q := tx.Rebind("INSERT INTO schema_checksum (id, checksum, schema_json, updated_at) VALUES (1, ?, ?, ?)")
	if _, err := tx.ExecContext(ctx, q, snap.Checksum, doc, snap.AppliedAt); err != nil {
		return fmt.Errorf("replace schema checksum: %w", err)
	}
	return nil
}

// AppendLogTx writes a log entry inside the caller's transaction.
func (s *Store) AppendLogTx(ctx context.Context, tx *sqlx.Tx, entry *LogEntry) error {
	return appendLog(ctx, tx, entry)
}

// AppendLog writes a log entry on its own connection. Used to record failed
// runs after their transaction has already rolled back.
func (s *Store) AppendLog(ctx context.Context, entry *LogEntry) error {
	return appendLog(ctx, s.db, entry)
}

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

func appendLog(ctx context.Context, db namedExecer, entry *LogEntry) error {
	row := logRow{
		RunID:       entry.RunID.String(),
		Operation:   entry.Operation,
		FromVersion: entry.FromVersion,
		ToVersion:   entry.ToVersion,
		Reason:      entry.Reason,
		Status:      entry.Status,
		CreatedAt:   entry.CreatedAt,
	}
	const q = `INSERT INTO migration_log (run_id, operation, from_version, to_version, reason, status, created_at)
		VALUES (:run_id, :operation, :from_version, :to_version, :reason, :status, :created_at)`
	if _, err := db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}
