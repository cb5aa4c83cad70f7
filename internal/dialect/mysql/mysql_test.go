package mysql

import (
	"strings"
	"testing"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/schema"
)

func TestNormalizeDSN(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"canonical", "app:secret@tcp(db.internal:3306)/app", "app:secret@tcp(db.internal:3306)/app?parseTime=true"},
		{"missing tcp keyword", "app:secret@(db.internal:3306)/app", "app:secret@tcp(db.internal:3306)/app?parseTime=true"},
		{"bare host port", "app:secret@db.internal:3306/app", "app:secret@tcp(db.internal:3306)/app?parseTime=true"},
	}
	for _, tc := range cases {
		got, err := NormalizeDSN(tc.in)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s:\n got %s\nwant %s", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeDSN_KeepsParams(t *testing.T) {
	got, err := NormalizeDSN("app@tcp(localhost:3306)/app?charset=utf8mb4")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "charset=utf8mb4") || !strings.Contains(got, "parseTime=true") {
		t.Errorf("normalized dsn = %s", got)
	}
}

func TestNormalizeDSN_Invalid(t *testing.T) {
	if _, err := NormalizeDSN("not a dsn at all ((("); err == nil {
		t.Fatal("expected unparseable dsn to fail")
	}
}

func TestColumnType(t *testing.T) {
	d := New()
	cases := []struct {
		ft   schema.FieldType
		want string
	}{
		{schema.FieldText, "VARCHAR(255)"},
		{schema.FieldURL, "VARCHAR(2048)"},
		{schema.FieldCountry, "VARCHAR(2)"},
		{schema.FieldLongText, "TEXT"},
		{schema.FieldInteger, "BIGINT"},
		{schema.FieldRating, "INT"},
		{schema.FieldDecimal, "DECIMAL(38, 10)"},
		{schema.FieldCheckbox, "TINYINT(1)"},
		{schema.FieldDateTime, "DATETIME(6)"},
		{schema.FieldJSON, "JSON"},
		{schema.FieldUUID, "CHAR(36)"},
	}
	for _, tc := range cases {
		got, err := d.ColumnType(schema.Column{Field: schema.FieldDefinition{Name: "x", Type: tc.ft}})
		if err != nil {
			t.Errorf("%s: %v", tc.ft, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.ft, got, tc.want)
		}
	}
}

func TestCreateTable(t *testing.T) {
	tbl := &schema.TableDefinition{ID: 7, Name: "orders"}
	cols := []schema.Column{
		{Field: schema.FieldDefinition{ID: 1, Name: "title", Type: schema.FieldText, Required: true}},
	}

	stmts, err := New().CreateTable(tbl, cols, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected create + deleted_at index, got %d", len(stmts))
	}
	sql := stmts[0].SQL
	for _, want := range []string{
		"CREATE TABLE `orders` (",
		"`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
		"`title` VARCHAR(255) NOT NULL",
		"`created_at` DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)",
		"`deleted_at` DATETIME(6) NULL",
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("create table missing %q:\n%s", want, sql)
		}
	}
	if stmts[1].SQL != "CREATE INDEX `idx_t7_deleted_at` ON `orders` (`deleted_at`)" {
		t.Errorf("deleted_at index = %s", stmts[1].SQL)
	}
}

func TestCreateTable_UUIDKey(t *testing.T) {
	tbl := &schema.TableDefinition{ID: 2, Name: "events", PrimaryKey: schema.PrimaryKeySpec{Kind: schema.PrimaryKeyUUID}}
	stmts, err := New().CreateTable(tbl, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stmts[0].SQL, "`id` CHAR(36) NOT NULL DEFAULT (uuid()) PRIMARY KEY") {
		t.Errorf("uuid key missing: %s", stmts[0].SQL)
	}
}

func TestColumnDefault_TextNeedsExpression(t *testing.T) {
	d := New()
	def := "none"
	col := schema.Column{Field: schema.FieldDefinition{Name: "body", Type: schema.FieldLongText, Default: &def}}

	st, err := d.AddColumn("posts", col)
	if err != nil {
		t.Fatal(err)
	}
	// TEXT columns only accept parenthesized expression defaults.
	if !strings.Contains(st.SQL, "DEFAULT ('none')") {
		t.Errorf("text default = %s", st.SQL)
	}

	col = schema.Column{Field: schema.FieldDefinition{Name: "status", Type: schema.FieldText, Default: &def}}
	st, err = d.AddColumn("posts", col)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(st.SQL, "DEFAULT 'none'") || strings.Contains(st.SQL, "('none')") {
		t.Errorf("varchar default = %s", st.SQL)
	}
}

func TestAlterColumn_SingleModify(t *testing.T) {
	col := schema.Column{Field: schema.FieldDefinition{Name: "amount", Type: schema.FieldDecimal, Required: true}}
	stmts, err := New().AlterColumn("invoices", col, dialect.AlterChanges{Type: true, Required: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected one MODIFY COLUMN statement, got %d", len(stmts))
	}
	if stmts[0].SQL != "ALTER TABLE `invoices` MODIFY COLUMN `amount` DECIMAL(38, 10) NOT NULL" {
		t.Errorf("alter = %s", stmts[0].SQL)
	}
}

func TestRenameAndDrop(t *testing.T) {
	d := New()
	if got := d.RenameTable("customers", "clients").SQL; got != "RENAME TABLE `customers` TO `clients`" {
		t.Errorf("rename table = %s", got)
	}
	if got := d.DropIndex("orders", "idx_t7_f2").SQL; got != "ALTER TABLE `orders` DROP INDEX `idx_t7_f2`" {
		t.Errorf("drop index = %s", got)
	}
	if got := d.DropConstraint("orders", "fk_t7_f3", "foreign_key").SQL; got != "ALTER TABLE `orders` DROP FOREIGN KEY `fk_t7_f3`" {
		t.Errorf("drop fk = %s", got)
	}
	if got := d.DropConstraint("orders", "uq_t7_f4", "unique").SQL; got != "ALTER TABLE `orders` DROP INDEX `uq_t7_f4`" {
		t.Errorf("drop unique = %s", got)
	}
}

func TestCapabilities(t *testing.T) {
	d := New()
	if d.SupportsRowPolicies() {
		t.Error("mysql has no row security policies")
	}
	if d.SupportsTransactionalDDL() {
		t.Error("mysql commits DDL implicitly")
	}
	if !d.SupportsAlterForeignKeys() || d.InlineForeignKeys() {
		t.Error("mysql alters foreign keys on existing tables")
	}
	if d.Bootstrap() != nil || d.SessionBindings("1", "", "", "") != nil {
		t.Error("mysql renders no policy plumbing")
	}
}

func TestHistoryDDL_InlineLogIndex(t *testing.T) {
	ddl := New().HistoryDDL()
	joined := strings.Join(ddl, "\n")
	// MySQL has no CREATE INDEX IF NOT EXISTS, so the log index is inline.
	if !strings.Contains(joined, "INDEX idx_migration_log_created_at (created_at)") {
		t.Error("migration_log should declare its index inline")
	}
	if strings.Contains(joined, "CREATE INDEX IF NOT EXISTS") {
		t.Error("mysql cannot use CREATE INDEX IF NOT EXISTS")
	}
}
