package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratadb/strata/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List applied schema versions",
		Long:  "List the schema snapshots recorded by migrations and rollbacks, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of versions to show (0 for all)")

	return cmd
}

func runHistory(limit int) error {
	store, cleanup, err := openStore()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snaps, err := store.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No migrations applied yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tCHECKSUM\tTABLES\tAPPLIED")
	for _, snap := range snaps {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
			snap.Version, shortSum(snap.Checksum), len(snap.Tables),
			snap.AppliedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

func newLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the migration audit log",
		Long: `Show every recorded migration and rollback attempt, newest first.
Failed and blocked attempts appear alongside successful ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show (0 for all)")

	return cmd
}

func runLog(limit int) error {
	store, cleanup, err := openStore()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := store.Log(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Audit log is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tOPERATION\tVERSIONS\tSTATUS\tREASON")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d -> %d\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.RFC3339), e.Operation,
			e.FromVersion, e.ToVersion, e.Status, e.Reason)
	}
	return w.Flush()
}

// openStore opens the configured database and wraps it in a history store
// whose tables are guaranteed to exist.
func openStore() (*history.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, d, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := history.NewStore(db, d)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}
