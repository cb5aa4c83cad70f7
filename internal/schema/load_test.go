package schema

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDocument = `
tables:
  - id: 1
    name: projects
    primary_key:
      kind: uuid
    fields:
      - id: 1
        name: title
        type: text
        required: true
      - id: 2
        name: budget
        type: currency
        default: "0"
      - id: 3
        name: progress
        type: formula
    indexes:
      - fields: [2]
    permissions:
      read:
        context: authenticated
      write:
        context: role
        roles: [admin, editor]
  - id: 2
    name: tasks
    fields:
      - id: 1
        name: headline
        type: text
      - id: 2
        name: project
        type: link
        link:
          table: 1
          on_delete: cascade
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(s.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(s.Tables))
	}

	projects := TableByName(s.Tables, "projects")
	if projects == nil {
		t.Fatal("projects table missing")
	}
	if projects.ID != 1 {
		t.Errorf("expected table id 1, got %d", projects.ID)
	}
	if projects.PrimaryKey.KindOrDefault() != PrimaryKeyUUID {
		t.Errorf("expected uuid primary key, got %s", projects.PrimaryKey.KindOrDefault())
	}
	if projects.Permissions.Write == nil || len(projects.Permissions.Write.Roles) != 2 {
		t.Error("write rule roles not decoded")
	}

	tasks := TableByName(s.Tables, "tasks")
	if tasks == nil {
		t.Fatal("tasks table missing")
	}
	link := tasks.Field(2)
	if link == nil || link.Link == nil {
		t.Fatal("link field not decoded")
	}
	if link.Link.Table != 1 || link.Link.OnDelete != OnDeleteCascade {
		t.Errorf("unexpected link spec: %+v", link.Link)
	}

	if err := Validate(s); err != nil {
		t.Fatalf("sample document should validate, got %v", err)
	}
}

func TestParse_DefaultPrimaryKey(t *testing.T) {
	s, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tasks := TableByName(s.Tables, "tasks")
	if tasks.PrimaryKey.KindOrDefault() != PrimaryKeyAuto {
		t.Errorf("expected auto primary key by default, got %s", tasks.PrimaryKey.KindOrDefault())
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(path, []byte(sampleDocument), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(s.Tables) != 2 {
		t.Errorf("expected 2 tables, got %d", len(s.Tables))
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}

func TestResolveColumn_Link(t *testing.T) {
	s, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tasks := TableByName(s.Tables, "tasks")
	col, err := ResolveColumn(s.Tables, *tasks.Field(2))
	if err != nil {
		t.Fatalf("ResolveColumn: %v", err)
	}
	if col.LinkPK != PrimaryKeyUUID {
		t.Errorf("expected link column to inherit uuid key kind, got %s", col.LinkPK)
	}
}

func TestPhysicalColumns_SkipsVirtual(t *testing.T) {
	s, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	projects := TableByName(s.Tables, "projects")
	cols, err := PhysicalColumns(s.Tables, projects)
	if err != nil {
		t.Fatalf("PhysicalColumns: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 physical columns, got %d", len(cols))
	}
	for _, c := range cols {
		if c.Field.Virtual() {
			t.Errorf("virtual field %q resolved to a column", c.Field.Name)
		}
	}
}
