package access

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/stratadb/strata/internal/dialect"
)

// execer is the slice of *sqlx.DB, *sqlx.Tx and *sqlx.Conn that session
// binding needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BindSession installs the identity into the database session so compiled
// policy predicates can read it through the accessor functions. Bindings
// are transaction-scoped: run this on the same transaction as the guarded
// queries, and pooled connections come back clean after commit. A nil
// identity binds empty values, which the accessors surface as NULL, so the
// session reads as anonymous.
func BindSession(ctx context.Context, db execer, d dialect.Dialect, id *Identity) error {
	var userID, orgID, teamID int64
	var role string
	if id != nil {
		userID, orgID, teamID = id.UserID, id.OrganizationID, id.TeamID
		role = id.PrimaryRole()
	}
	stmts := d.SessionBindings(formatID(userID), formatID(orgID), formatID(teamID), role)
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st.SQL, st.Args...); err != nil {
			return fmt.Errorf("%s: %w", st.Summary, err)
		}
	}
	return nil
}

// formatID renders a zero id as the empty string so the accessor functions
// NULLIF it away.
func formatID(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
