// Package postgres implements the PostgreSQL dialect. It is the only engine
// with row security support: policies, the accessor functions they call, and
// advisory locking all render here.
package postgres

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/schema"
)

// Dialect renders SQL for PostgreSQL 13 or newer (gen_random_uuid and
// GENERATED AS IDENTITY are assumed).
type Dialect struct{}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns the PostgreSQL dialect.
func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() string       { return "postgres" }
func (d *Dialect) DriverName() string { return "pgx" }

func (d *Dialect) Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
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
		schema.FieldPassword:
		return "TEXT", nil
	case schema.FieldInteger, schema.FieldAutoNumber, schema.FieldDuration:
		return "BIGINT", nil
	case schema.FieldRating:
		return "INTEGER", nil
	case schema.FieldDecimal:
		return "NUMERIC(38, 10)", nil
	case schema.FieldCurrency:
		return "NUMERIC(19, 4)", nil
	case schema.FieldFloat, schema.FieldPercent:
		return "DOUBLE PRECISION", nil
	case schema.FieldBoolean, schema.FieldCheckbox:
		return "BOOLEAN", nil
	case schema.FieldDate:
		return "DATE", nil
	case schema.FieldDateTime:
		return "TIMESTAMPTZ", nil
	case schema.FieldTime:
		return "TIME", nil
	case schema.FieldMultiSelect, schema.FieldAttachment, schema.FieldJSON, schema.FieldGeoPoint:
		return "JSONB", nil
	case schema.FieldUUID:
		return "UUID", nil
	case schema.FieldUser, schema.FieldCreatedBy, schema.FieldUpdatedBy:
		return "BIGINT", nil
	case schema.FieldLink:
		if col.LinkPK == schema.PrimaryKeyUUID {
			return "UUID", nil
		}
		return "BIGINT", nil
	}
	return "", fmt.Errorf("postgres: no column type for field kind %q", col.Field.Type)
}

// columnDef renders one column clause: name, type, nullability, default.
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
		defs = append(defs, fmt.Sprintf("%s UUID PRIMARY KEY DEFAULT gen_random_uuid()",
			d.QuoteIdentifier(schema.SystemColumnID)))
	default:
		defs = append(defs, fmt.Sprintf("%s BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
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
		d.QuoteIdentifier(schema.SystemColumnCreatedAt)+" TIMESTAMPTZ NOT NULL DEFAULT now()",
		d.QuoteIdentifier(schema.SystemColumnUpdatedAt)+" TIMESTAMPTZ NOT NULL DEFAULT now()",
		d.QuoteIdentifier(schema.SystemColumnDeletedAt)+" TIMESTAMPTZ",
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

func (d *Dialect) AlterColumn(table string, col schema.Column, changes dialect.AlterChanges) ([]dialect.Statement, error) {
	qt := d.QuoteIdentifier(table)
	qc := d.QuoteIdentifier(col.Field.Name)
	var stmts []dialect.Statement
	if changes.Type {
		typ, err := d.ColumnType(col)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", table, err)
		}
		stmts = append(stmts, dialect.Statement{
			SQL: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", qt, qc, typ, qc, typ),
		})
	}
	if changes.Required {
		action := "DROP NOT NULL"
		if col.Field.Required {
			action = "SET NOT NULL"
		}
		stmts = append(stmts, dialect.Statement{
			SQL: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", qt, qc, action),
		})
	}
	if changes.Default {
		action := "DROP DEFAULT"
		if col.Field.Default != nil {
			action = "SET DEFAULT " + dialect.QuoteLiteral(*col.Field.Default, col.Field.Type)
		}
		stmts = append(stmts, dialect.Statement{
			SQL: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", qt, qc, action),
		})
	}
	return stmts, nil
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
	return dialect.Statement{SQL: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(name))}
}

func (d *Dialect) SupportsRowPolicies() bool { return true }

func (d *Dialect) EnableRowSecurity(table string) []dialect.Statement {
	qt := d.QuoteIdentifier(table)
	return []dialect.Statement{
		{SQL: "ALTER TABLE " + qt + " ENABLE ROW LEVEL SECURITY", Summary: "enable row security on " + table},
		{SQL: "ALTER TABLE " + qt + " FORCE ROW LEVEL SECURITY", Summary: "force row security on " + table},
	}
}

func (d *Dialect) DisableRowSecurity(table string) []dialect.Statement {
	qt := d.QuoteIdentifier(table)
	return []dialect.Statement{
		{SQL: "ALTER TABLE " + qt + " NO FORCE ROW LEVEL SECURITY", Summary: "unforce row security on " + table},
		{SQL: "ALTER TABLE " + qt + " DISABLE ROW LEVEL SECURITY", Summary: "disable row security on " + table},
	}
}

func (d *Dialect) CreatePolicy(table, name, command, predicate string) dialect.Statement {
	var clause string
	switch command {
	case "INSERT":
		clause = fmt.Sprintf("WITH CHECK (%s)", predicate)
	case "UPDATE":
		clause = fmt.Sprintf("USING (%s) WITH CHECK (%s)", predicate, predicate)
	default: // SELECT, DELETE
		clause = fmt.Sprintf("USING (%s)", predicate)
	}
	return dialect.Statement{
		SQL: fmt.Sprintf("CREATE POLICY %s ON %s FOR %s %s",
			d.QuoteIdentifier(name), d.QuoteIdentifier(table), command, clause),
		Summary: fmt.Sprintf("policy %s on %s", name, table),
	}
}

func (d *Dialect) DropPolicy(table, name string) dialect.Statement {
	return dialect.Statement{
		SQL: fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s",
			d.QuoteIdentifier(name), d.QuoteIdentifier(table)),
		Summary: fmt.Sprintf("drop policy %s on %s", name, table),
	}
}

// Session settings read by the accessor functions. Values are bound with
// set_config(..., true), so they live for the enclosing transaction only and
// never leak across pooled connections.
const (
	settingUserID         = "strata.user_id"
	settingOrganizationID = "strata.organization_id"
	settingTeamID         = "strata.team_id"
	settingRole           = "strata.role"
)

func (d *Dialect) Bootstrap() []dialect.Statement {
	accessor := func(name, returns, setting string) dialect.Statement {
		return dialect.Statement{
			SQL: fmt.Sprintf(
				"CREATE OR REPLACE FUNCTION %s() RETURNS %s AS $$\n"+
					"\tSELECT NULLIF(current_setting('%s', true), '')%s\n"+
					"$$ LANGUAGE SQL STABLE",
				name, returns, setting, castSuffix(returns)),
			Summary: fmt.Sprintf("accessor %s()", name),
		}
	}
	return []dialect.Statement{
		accessor("current_user_id", "BIGINT", settingUserID),
		accessor("current_organization_id", "BIGINT", settingOrganizationID),
		accessor("current_team_id", "BIGINT", settingTeamID),
		accessor("current_user_role", "TEXT", settingRole),
	}
}

func castSuffix(returns string) string {
	if returns == "TEXT" {
		return ""
	}
	return "::" + returns
}

func (d *Dialect) SessionBindings(userID, organizationID, teamID, role string) []dialect.Statement {
	bind := func(setting, value string) dialect.Statement {
		return dialect.Statement{
			SQL:     "SELECT set_config($1, $2, true)",
			Args:    []any{setting, value},
			Summary: "bind " + setting,
		}
	}
	return []dialect.Statement{
		bind(settingUserID, userID),
		bind(settingOrganizationID, organizationID),
		bind(settingTeamID, teamID),
		bind(settingRole, role),
	}
}

func (d *Dialect) SupportsTransactionalDDL() bool { return true }
func (d *Dialect) InlineForeignKeys() bool        { return false }
func (d *Dialect) SupportsAlterForeignKeys() bool { return true }

func (d *Dialect) HistoryDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS schema_checksum (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			checksum VARCHAR(64) NOT NULL,
			schema_json TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS migration_history (
			version BIGINT PRIMARY KEY,
			checksum VARCHAR(64) NOT NULL,
			schema_json TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS migration_log (
			run_id VARCHAR(36) PRIMARY KEY,
			operation VARCHAR(16) NOT NULL,
			from_version BIGINT NOT NULL,
			to_version BIGINT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_migration_log_created_at ON migration_log (created_at)`,
	}
}

func (d *Dialect) AcquireLock(ctx context.Context, conn *sqlx.Conn, key int64) (bool, error) {
	var ok bool
	if err := conn.GetContext(ctx, &ok, "SELECT pg_try_advisory_lock($1)", key); err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return ok, nil
}

func (d *Dialect) ReleaseLock(ctx context.Context, conn *sqlx.Conn, key int64) error {
	var ok bool
	if err := conn.GetContext(ctx, &ok, "SELECT pg_advisory_unlock($1)", key); err != nil {
		return fmt.Errorf("release advisory lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("advisory lock %d was not held", key)
	}
	return nil
}
