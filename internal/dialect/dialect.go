// Package dialect abstracts the SQL engines strata can migrate. Each
// implementation renders identifier quoting, column types, DDL, row security
// and advisory locking for one engine; everything above this package works in
// terms of schema definitions and never concatenates SQL itself.
package dialect

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/stratadb/strata/internal/schema"
)

// Statement is a single executable SQL statement with its bound arguments.
// Summary carries a short human description for logs and dry-run output.
type Statement struct {
	SQL     string
	Args    []any
	Summary string
}

// AlterChanges flags which column attributes an alter must rewrite.
type AlterChanges struct {
	Type     bool
	Required bool
	Default  bool
}

// ForeignKey is a link constraint resolved to physical names, ready to
// render either inline in CREATE TABLE or as a standalone ALTER.
type ForeignKey struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
}

// Dialect renders engine-specific SQL for one database. Methods that cannot
// fail on any engine return Statement directly; the rest return an error so
// engines can reject shapes they cannot express (sqlite has no ALTER COLUMN
// TYPE, for example).
//
// EnableRowSecurity, CreatePolicy and the other policy methods are only
// called when SupportsRowPolicies reports true; AddForeignKey only when the
// plan passed the InlineForeignKeys / SupportsAlterForeignKeys capability
// checks.
type Dialect interface {
	Name() string
	DriverName() string

	// Open connects with the engine's registered driver, normalizing the
	// DSN where the driver needs it (mysql requires parseTime).
	Open(dsn string) (*sqlx.DB, error)

	QuoteIdentifier(name string) string
	ColumnType(col schema.Column) (string, error)

	CreateTable(t *schema.TableDefinition, cols []schema.Column, fks []ForeignKey) ([]Statement, error)
	RenameTable(from, to string) Statement
	DropTable(table string) Statement

	AddColumn(table string, col schema.Column) (Statement, error)
	RenameColumn(table, from, to string) Statement
	AlterColumn(table string, col schema.Column, changes AlterChanges) ([]Statement, error)
	DropColumn(table, column string) Statement

	CreateIndex(table, name string, columns []string) Statement
	DropIndex(table, name string) Statement
	AddUnique(table, name string, columns []string) Statement
	AddForeignKey(table string, fk ForeignKey) Statement
	DropConstraint(table, name, kind string) Statement

	SupportsRowPolicies() bool
	EnableRowSecurity(table string) []Statement
	DisableRowSecurity(table string) []Statement
	// CreatePolicy renders one policy for a single SQL command: SELECT,
	// INSERT, UPDATE or DELETE.
	CreatePolicy(table, name, command, predicate string) Statement
	DropPolicy(table, name string) Statement

	// Bootstrap returns the idempotent session accessor definitions that
	// policy predicates call. Empty on engines without row policies.
	Bootstrap() []Statement
	// SessionBindings binds a caller identity to the current session so
	// the accessors can read it. Empty identity values bind as NULL.
	SessionBindings(userID, organizationID, teamID, role string) []Statement

	SupportsTransactionalDDL() bool
	InlineForeignKeys() bool
	SupportsAlterForeignKeys() bool

	// HistoryDDL returns the idempotent bookkeeping table definitions, in
	// execution order.
	HistoryDDL() []string

	// AcquireLock makes one non-blocking attempt to take the migration
	// lock on conn. The caller polls and must release on the same
	// connection.
	AcquireLock(ctx context.Context, conn *sqlx.Conn, key int64) (bool, error)
	ReleaseLock(ctx context.Context, conn *sqlx.Conn, key int64) error
}

// ReferentialAction maps a link's on_delete behavior to its SQL clause.
func ReferentialAction(onDelete string) string {
	switch onDelete {
	case schema.OnDeleteCascade:
		return "CASCADE"
	case schema.OnDeleteSetNull:
		return "SET NULL"
	default:
		return "RESTRICT"
	}
}

// QuoteLiteral renders a declared default value as a SQL literal for the
// given field kind. Defaults arrive as strings from the schema document;
// numeric and boolean kinds render bare, everything else single-quoted with
// embedded quotes doubled. A value that does not parse for its kind is
// quoted rather than emitted raw, so a malformed default can never smuggle
// SQL into a statement.
func QuoteLiteral(value string, ft schema.FieldType) string {
	switch ft {
	case schema.FieldInteger, schema.FieldAutoNumber, schema.FieldDuration, schema.FieldRating:
		if _, err := strconv.ParseInt(value, 10, 64); err == nil {
			return value
		}
	case schema.FieldDecimal, schema.FieldFloat, schema.FieldCurrency, schema.FieldPercent:
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return value
		}
	case schema.FieldBoolean, schema.FieldCheckbox:
		if b, err := strconv.ParseBool(value); err == nil {
			if b {
				return "TRUE"
			}
			return "FALSE"
		}
	}
	return quoteString(value)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
