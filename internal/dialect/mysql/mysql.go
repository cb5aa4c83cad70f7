// Package mysql implements the MySQL dialect. MySQL has no row security
// policies and commits DDL implicitly, so permissioned schemas are rejected
// at generation time and failed migrations can leave partial schema behind;
// the runner surfaces the latter as a warning before executing.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/schema"
)

// Dialect renders SQL for MySQL 8.0 or newer (RENAME COLUMN and expression
// defaults are assumed).
type Dialect struct{}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns the MySQL dialect.
func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() string       { return "mysql" }
func (d *Dialect) DriverName() string { return "mysql" }

// bareHostPort matches "user:pass@host:port/db" (no tcp() wrapper).
var bareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// NormalizeDSN rewrites common DSN mistakes into the driver's canonical
// user:pass@tcp(host:port)/db form and forces parseTime, which the history
// store needs to scan timestamp columns.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		// user:pass@(host:port)/db — missing the "tcp" keyword.
		if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
			cfg, _ = mysqldriver.ParseDSN(dsn[:idx] + "@tcp" + dsn[idx+1:])
		}
		// user:pass@host:port/db — no parens at all.
		if cfg == nil {
			if m := bareHostPort.FindStringSubmatch(dsn); m != nil {
				cfg, _ = mysqldriver.ParseDSN(m[1] + "@tcp(" + m[2] + ")" + m[3])
			}
		}
		if cfg == nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (d *Dialect) Open(dsn string) (*sqlx.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Connect("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return db, nil
}

func (d *Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *Dialect) ColumnType(col schema.Column) (string, error) {
	switch col.Field.Type {
	case schema.FieldText, schema.FieldEmail, schema.FieldSingleSelect,
		schema.FieldBarcode, schema.FieldPassword:
		return "VARCHAR(255)", nil
	case schema.FieldURL:
		return "VARCHAR(2048)", nil
	case schema.FieldPhone:
		return "VARCHAR(64)", nil
	case schema.FieldColor:
		return "VARCHAR(32)", nil
	case schema.FieldIcon:
		return "VARCHAR(128)", nil
	case schema.FieldCountry:
		return "VARCHAR(2)", nil
	case schema.FieldLongText, schema.FieldRichText, schema.FieldMarkdown:
		return "TEXT", nil
	case schema.FieldInteger, schema.FieldAutoNumber, schema.FieldDuration:
		return "BIGINT", nil
	case schema.FieldRating:
		return "INT", nil
	case schema.FieldDecimal:
		return "DECIMAL(38, 10)", nil
	case schema.FieldCurrency:
		return "DECIMAL(19, 4)", nil
	case schema.FieldFloat, schema.FieldPercent:
		return "DOUBLE", nil
	case schema.FieldBoolean, schema.FieldCheckbox:
		return "TINYINT(1)", nil
	case schema.FieldDate:
		return "DATE", nil
	case schema.FieldDateTime:
		return "DATETIME(6)", nil
	case schema.FieldTime:
		return "TIME", nil
	case schema.FieldMultiSelect, schema.FieldAttachment, schema.FieldJSON, schema.FieldGeoPoint:
		return "JSON", nil
	case schema.FieldUUID:
		return "CHAR(36)", nil
	case schema.FieldUser, schema.FieldCreatedBy, schema.FieldUpdatedBy:
		return "BIGINT", nil
	case schema.FieldLink:
		if col.LinkPK == schema.PrimaryKeyUUID {
			return "CHAR(36)", nil
		}
		return "BIGINT", nil
	}
	return "", fmt.Errorf("mysql: no column type for field kind %q", col.Field.Type)
}

// needsExpressionDefault reports whether the rendered type only accepts
// parenthesized expression defaults (TEXT and JSON families).
func needsExpressionDefault(typ string) bool {
	return typ == "TEXT" || typ == "JSON"
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
		lit := dialect.QuoteLiteral(*col.Field.Default, col.Field.Type)
		if needsExpressionDefault(typ) {
			lit = "(" + lit + ")"
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

func (d *Dialect) foreignKeyDef(fk dialect.ForeignKey) string {
	def := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.QuoteIdentifier(fk.Name), d.QuoteIdentifier(fk.Column),
		d.QuoteIdentifier(fk.RefTable), d.QuoteIdentifier(fk.RefColumn))
	if fk.OnDelete != "" {
		def += " ON DELETE " + dialect.ReferentialAction(fk.OnDelete)
	}
	return def
}

func (d *Dialect) CreateTable(t *schema.TableDefinition, cols []schema.Column, fks []dialect.ForeignKey) ([]dialect.Statement, error) {
	defs := make([]string, 0, len(cols)+len(fks)+4)
	switch t.PrimaryKey.KindOrDefault() {
	case schema.PrimaryKeyUUID:
		defs = append(defs, fmt.Sprintf("%s CHAR(36) NOT NULL DEFAULT (uuid()) PRIMARY KEY",
			d.QuoteIdentifier(schema.SystemColumnID)))
	default:
		defs = append(defs, fmt.Sprintf("%s BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
			d.QuoteIdentifier(schema.SystemColumnID)))
	}
	for _, col := range cols {
		def, err := d.columnDef(col)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		d.QuoteIdentifier(schema.SystemColumnCreatedAt)+" DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)",
		d.QuoteIdentifier(schema.SystemColumnUpdatedAt)+" DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)",
		d.QuoteIdentifier(schema.SystemColumnDeletedAt)+" DATETIME(6) NULL",
	)
	for _, fk := range fks {
		defs = append(defs, d.foreignKeyDef(fk))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n\t", d.QuoteIdentifier(t.Name))
	b.WriteString(strings.Join(defs, ",\n\t"))
	b.WriteString("\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")

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
	return dialect.Statement{SQL: fmt.Sprintf("RENAME TABLE %s TO %s",
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

// AlterColumn re-states the whole column with MODIFY COLUMN, which covers
// type, nullability and default in one statement.
func (d *Dialect) AlterColumn(table string, col schema.Column, changes dialect.AlterChanges) ([]dialect.Statement, error) {
	def, err := d.columnDef(col)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", table, err)
	}
	return []dialect.Statement{{SQL: fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s",
		d.QuoteIdentifier(table), def)}}, nil
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
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s DROP INDEX %s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(name))}
}

func (d *Dialect) AddUnique(table, name string, columns []string) dialect.Statement {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
		d.QuoteIdentifier(table), d.QuoteIdentifier(name), strings.Join(quoted, ", "))}
}

func (d *Dialect) AddForeignKey(table string, fk dialect.ForeignKey) dialect.Statement {
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s ADD %s",
		d.QuoteIdentifier(table), d.foreignKeyDef(fk))}
}

func (d *Dialect) DropConstraint(table, name, kind string) dialect.Statement {
	if kind == "foreign_key" {
		return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s",
			d.QuoteIdentifier(table), d.QuoteIdentifier(name))}
	}
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s DROP INDEX %s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(name))}
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

func (d *Dialect) SupportsTransactionalDDL() bool { return false }
func (d *Dialect) InlineForeignKeys() bool        { return false }
func (d *Dialect) SupportsAlterForeignKeys() bool { return true }

func (d *Dialect) HistoryDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS schema_checksum (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			checksum VARCHAR(64) NOT NULL,
			schema_json LONGTEXT NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS migration_history (
			version BIGINT PRIMARY KEY,
			checksum VARCHAR(64) NOT NULL,
			schema_json LONGTEXT NOT NULL,
			applied_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS migration_log (
			run_id VARCHAR(36) PRIMARY KEY,
			operation VARCHAR(16) NOT NULL,
			from_version BIGINT NOT NULL,
			to_version BIGINT NOT NULL,
			reason TEXT NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_migration_log_created_at (created_at)
		) ENGINE=InnoDB`,
	}
}

func lockName(key int64) string {
	return fmt.Sprintf("strata_migration_%d", key)
}

// AcquireLock uses GET_LOCK with a zero timeout so the caller controls the
// polling cadence. GET_LOCK returns 1 on success, 0 when held elsewhere and
// NULL on error.
func (d *Dialect) AcquireLock(ctx context.Context, conn *sqlx.Conn, key int64) (bool, error) {
	var got sql.NullInt64
	if err := conn.GetContext(ctx, &got, "SELECT GET_LOCK(?, 0)", lockName(key)); err != nil {
		return false, fmt.Errorf("acquire migration lock: %w", err)
	}
	return got.Valid && got.Int64 == 1, nil
}

func (d *Dialect) ReleaseLock(ctx context.Context, conn *sqlx.Conn, key int64) error {
	var released sql.NullInt64
	if err := conn.GetContext(ctx, &released, "SELECT RELEASE_LOCK(?)", lockName(key)); err != nil {
		return fmt.Errorf("release migration lock: %w", err)
	}
	if !released.Valid || released.Int64 != 1 {
		return fmt.Errorf("migration lock %q was not held", lockName(key))
	}
	return nil
}
