// Package sqlite implements the SQLite dialect. SQLite cannot alter a
// column's type, add a foreign key after table creation, or attach table
// constraints by name, so links render inline in CREATE TABLE and uniqueness
// renders as unique indexes. Row security policies are not supported and
// advisory locking is a no-op: the pool is capped at one connection, which
// serializes writers within the process, and the database file has a single
// owner by construction.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the sqlite database/sql driver

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/schema"
)

// Dialect renders SQL for SQLite 3.35 or newer (DROP COLUMN is assumed).
type Dialect struct{}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns the SQLite dialect.
func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() string       { return "sqlite" }
func (d *Dialect) DriverName() string { return "sqlite" }

// Open connects to the database file (or ":memory:") and switches foreign
// key enforcement on, which SQLite leaves off for compatibility.
func (d *Dialect) Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	return db, nil
}

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) ColumnType(col schema.Column) (string, error) {
	switch col.Field.Type {
	case schema.FieldText, schema.FieldLongText, schema.FieldRichText, schema.FieldMarkdown,
		schema.FieldEmail, schema.FieldURL, schema.FieldPhone, schema.FieldSingleSelect,
		schema.FieldColor, schema.FieldIcon, schema.FieldBarcode, schema.FieldCountry,
		schema.FieldPassword, schema.FieldUUID, schema.FieldTime:
		return "TEXT", nil
	case schema.FieldInteger, schema.FieldAutoNumber, schema.FieldDuration, schema.FieldRating:
		return "INTEGER", nil
	case schema.FieldDecimal, schema.FieldCurrency:
		return "NUMERIC", nil
	case schema.FieldFloat, schema.FieldPercent:
		return "REAL", nil
	case schema.FieldBoolean, schema.FieldCheckbox:
		return "INTEGER", nil
	case schema.FieldDate:
		return "DATE", nil
	case schema.FieldDateTime:
		return "DATETIME", nil
	case schema.FieldMultiSelect, schema.FieldAttachment, schema.FieldJSON, schema.FieldGeoPoint:
		return "TEXT", nil
	case schema.FieldUser, schema.FieldCreatedBy, schema.FieldUpdatedBy:
		return "INTEGER", nil
	case schema.FieldLink:
		if col.LinkPK == schema.PrimaryKeyUUID {
			return "TEXT", nil
		}
		return "INTEGER", nil
	}
	return "", fmt.Errorf("sqlite: no column type for field kind %q", col.Field.Type)
}

func (d *Dialect) columnDef(col schema.Column) (string, error) {
	typ, err := d.ColumnType(col)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(d.QuoteIdentifier(col.Field.Name))
	b.WriteString(" ")
	b.WriteString(typ)
	if col.Field.Required {
		b.WriteString(" NOT NULL")
	}
	if col.Field.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(dialect.QuoteLiteral(*col.Field.Default, col.Field.Type))
	}
	return b.String(), nil
}

func (d *Dialect) foreignKeyDef(fk dialect.ForeignKey) string {
	def := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.QuoteIdentifier(fk.Column), d.QuoteIdentifier(fk.RefTable), d.QuoteIdentifier(fk.RefColumn))
	if fk.OnDelete != "" {
		def += " ON DELETE " + dialect.ReferentialAction(fk.OnDelete)
	}
	return def
}

func (d *Dialect) CreateTable(t *schema.TableDefinition, cols []schema.Column, fks []dialect.ForeignKey) ([]dialect.Statement, error) {
	defs := make([]string, 0, len(cols)+len(fks)+4)
	switch t.PrimaryKey.KindOrDefault() {
	case schema.PrimaryKeyUUID:
		// SQLite has no uuid(); the id is supplied by the writer.
		defs = append(defs, d.QuoteIdentifier(schema.SystemColumnID)+" TEXT NOT NULL PRIMARY KEY")
	default:
		defs = append(defs, d.QuoteIdentifier(schema.SystemColumnID)+" INTEGER PRIMARY KEY AUTOINCREMENT")
	}
	for _, col := range cols {
		def, err := d.columnDef(col)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		d.QuoteIdentifier(schema.SystemColumnCreatedAt)+" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP",
		d.QuoteIdentifier(schema.SystemColumnUpdatedAt)+" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP",
		d.QuoteIdentifier(schema.SystemColumnDeletedAt)+" DATETIME",
	)
	for _, fk := range fks {
		defs = append(defs, d.foreignKeyDef(fk))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n\t", d.QuoteIdentifier(t.Name))
	b.WriteString(strings.Join(defs, ",\n\t"))
	b.WriteString("\n)")

	idx := fmt.Sprintf("idx_t%d_deleted_at", t.ID)
	return []dialect.Statement{
		{SQL: b.String()},
		{
			SQL: fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
				d.QuoteIdentifier(idx), d.QuoteIdentifier(t.Name), d.QuoteIdentifier(schema.SystemColumnDeletedAt)),
			Summary: fmt.Sprintf("index %s on %s", idx, t.Name),
		},
	}, nil
}

func (d *Dialect) RenameTable(from, to string) dialect.Statement {
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		d.QuoteIdentifier(from), d.QuoteIdentifier(to))}
}

func (d *Dialect) DropTable(table string) dialect.Statement {
	return dialect.Statement{SQL: "DROP TABLE " + d.QuoteIdentifier(table)}
}

func (d *Dialect) AddColumn(table string, col schema.Column) (dialect.Statement, error) {
	def, err := d.columnDef(col)
	if err != nil {
		return dialect.Statement{}, fmt.Errorf("table %q: %w", table, err)
	}
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
		d.QuoteIdentifier(table), def)}, nil
}

func (d *Dialect) RenameColumn(table, from, to string) dialect.Statement {
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(from), d.QuoteIdentifier(to))}
}

// AlterColumn always fails: SQLite cannot change a stored column's type or
// constraints in place, and a copy-and-swap rebuild is out of scope for a
// runtime migrator.
func (d *Dialect) AlterColumn(table string, col schema.Column, changes dialect.AlterChanges) ([]dialect.Statement, error) {
	return nil, fmt.Errorf("sqlite cannot alter column %q on table %q", col.Field.Name, table)
}

func (d *Dialect) DropColumn(table, column string) dialect.Statement {
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(column))}
}

func (d *Dialect) CreateIndex(table, name string, columns []string) dialect.Statement {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return dialect.Statement{SQL: fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		d.QuoteIdentifier(name), d.QuoteIdentifier(table), strings.Join(quoted, ", "))}
}

func (d *Dialect) DropIndex(table, name string) dialect.Statement {
	return dialect.Statement{SQL: "DROP INDEX " + d.QuoteIdentifier(name)}
}

// AddUnique renders a unique index; SQLite cannot add a named table
// constraint after creation.
func (d *Dialect) AddUnique(table, name string, columns []string) dialect.Statement {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return dialect.Statement{SQL: fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
		d.QuoteIdentifier(name), d.QuoteIdentifier(table), strings.Join(quoted, ", "))}
}

// AddForeignKey is never called: InlineForeignKeys routes link constraints
// into CREATE TABLE and SupportsAlterForeignKeys rejects the rest.
func (d *Dialect) AddForeignKey(table string, fk dialect.ForeignKey) dialect.Statement {
	return dialect.Statement{}
}

func (d *Dialect) DropConstraint(table, name, kind string) dialect.Statement {
	// Unique constraints exist as unique indexes here; foreign keys are
	// capability-gated before rendering.
	return dialect.Statement{SQL: "DROP INDEX " + d.QuoteIdentifier(name)}
}

func (d *Dialect) SupportsRowPolicies() bool { return false }

func (d *Dialect) EnableRowSecurity(string) []dialect.Statement { return nil }

func (d *Dialect) DisableRowSecurity(string) []dialect.Statement { return nil }

func (d *Dialect) CreatePolicy(table, name, command, predicate string) dialect.Statement {
	return dialect.Statement{}
}

func (d *Dialect) DropPolicy(table, name string) dialect.Statement {
	return dialect.Statement{}
}

func (d *Dialect) Bootstrap() []dialect.Statement { return nil }

func (d *Dialect) SessionBindings(userID, organizationID, teamID, role string) []dialect.Statement {
	return nil
}

func (d *Dialect) SupportsTransactionalDDL() bool { return true }
func (d *Dialect) InlineForeignKeys() bool        { return true }
func (d *Dialect) SupportsAlterForeignKeys() bool { return false }

func (d *Dialect) HistoryDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS schema_checksum (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			checksum TEXT NOT NULL,
			schema_json TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS migration_history (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			schema_json TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS migration_log (
			run_id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			from_version INTEGER NOT NULL,
			to_version INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_migration_log_created_at ON migration_log (created_at)`,
	}
}

// AcquireLock always succeeds: the single-connection pool serializes writers
// in-process, and the database file is not shared between processes.
func (d *Dialect) AcquireLock(ctx context.Context, conn *sqlx.Conn, key int64) (bool, error) {
	return true, nil
}

func (d *Dialect) ReleaseLock(ctx context.Context, conn *sqlx.Conn, key int64) error {
	return nil
}
