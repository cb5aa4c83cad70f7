package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/migrate"
)

func newRollbackCmd() *cobra.Command {
	var (
		toVersion int64
		force     bool
		yes       bool
		reason    string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore a previously applied schema version",
		Long: `Diff the latest snapshot against an earlier one and apply the reverse
changes. Rolling back drops whatever the newer versions added, so plans with
destructive operations require --force. The restore is recorded as a new
version; history only moves forward.`,
		Example: `  strata rollback --to 4
  strata rollback --to 4 --force --yes --reason "revert bad release"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(toVersion, force, yes, reason, timeout)
		},
	}

	cmd.Flags().Int64Var(&toVersion, "to", 0, "Version to restore (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Permit the destructive operations a rollback usually needs")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&reason, "reason", "", "Note recorded on the audit log entry")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline for the run")
	cmd.MarkFlagRequired("to")

	return cmd
}

func runRollback(toVersion int64, force, yes bool, reason string, timeout time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, d, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if force {
		prompt := fmt.Sprintf("Roll back to version %d, dropping whatever newer versions added?", toVersion)
		if err := confirm(prompt, yes); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store := history.NewStore(db, d)
	runner := migrate.NewRunner(db, d, store, logger)

	res, err := runner.Rollback(ctx, toVersion, force, migrate.Options{
		LockKey:     cfg.Migration.LockKey,
		LockTimeout: cfg.Migration.Timeout(),
		Reason:      reason,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Rolled back to version %d (%d statements in %s)\n",
		res.ToVersion, res.StatementCount, res.Duration.Round(time.Millisecond))
	fmt.Printf("  recorded as version %d, checksum %s\n", res.FromVersion+1, shortSum(res.Checksum))
	return nil
}
