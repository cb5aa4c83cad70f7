package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	var (
		allowDestructive bool
		dryRun           bool
		yes              bool
		reason           string
		timeout          time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the declared schema to the database",
		Long: `Diff the declared schema against the last applied snapshot and apply the
changes in dependency order. When the database already matches, nothing is
executed. Operations that would lose data are refused unless
--allow-destructive is set.`,
		Example: `  strata migrate
  strata migrate --reason "add invoices table"
  strata migrate --allow-destructive --yes --reason "drop legacy columns"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return runPlan(false)
			}
			return runMigrate(allowDestructive, yes, reason, timeout)
		},
	}

	cmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "Permit operations that drop tables or columns")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without executing anything")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the destructive-operation confirmation prompt")
	cmd.Flags().StringVar(&reason, "reason", "", "Note recorded on the audit log entry")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline for the run")

	return cmd
}

func runMigrate(allowDestructive, yes bool, reason string, timeout time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	db, d, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store := history.NewStore(db, d)
	runner := migrate.NewRunner(db, d, store, logger)

	if !allowDestructive {
		allowDestructive = cfg.Migration.AllowDestructive
	}
	if allowDestructive {
		plan, err := runner.Plan(ctx, s.Tables)
		if err != nil {
			return err
		}
		if len(plan.Destructive) > 0 {
			fmt.Println("Destructive operations:")
			for _, op := range plan.Destructive {
				fmt.Printf("  - %s\n", op.String())
			}
			if err := confirm("Apply these operations?", yes); err != nil {
				return err
			}
		}
	}

	res, err := runner.Migrate(ctx, s.Tables, migrate.Options{
		AllowDestructive: allowDestructive,
		LockKey:          cfg.Migration.LockKey,
		LockTimeout:      cfg.Migration.Timeout(),
		Reason:           reason,
	})
	if err != nil {
		return err
	}

	if res.UpToDate {
		fmt.Printf("Schema up to date (version %d, checksum %s)\n", res.ToVersion, shortSum(res.Checksum))
		return nil
	}
	fmt.Printf("Migrated version %d -> %d (%d statements in %s)\n",
		res.FromVersion, res.ToVersion, res.StatementCount, res.Duration.Round(time.Millisecond))
	fmt.Printf("  checksum: %s\n", shortSum(res.Checksum))
	return nil
}
