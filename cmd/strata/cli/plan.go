package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/migrate"
)

func newPlanCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the operations migrate would apply",
		Long: `Compute the operations and SQL statements a migration would run, without
taking the migration lock or executing anything. Destructive operations are
listed rather than refused so the plan shows the full picture.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the plan as JSON")

	return cmd
}

func runPlan(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	db, d, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	runner := migrate.NewRunner(db, d, history.NewStore(db, d), newLogger(cfg))
	plan, err := runner.Plan(ctx, s.Tables)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	if plan.UpToDate {
		fmt.Printf("Schema up to date (version %d, checksum %s)\n", plan.ToVersion, shortSum(plan.Checksum))
		return nil
	}

	fmt.Printf("Plan: version %d -> %d (checksum %s)\n", plan.FromVersion, plan.ToVersion, shortSum(plan.Checksum))

	fmt.Printf("\nOperations (%d):\n", len(plan.Operations))
	for _, op := range plan.Operations {
		fmt.Printf("  - %s\n", op.String())
	}

	if len(plan.Destructive) > 0 {
		fmt.Printf("\nDestructive (%d, migrate refuses these without --allow-destructive):\n", len(plan.Destructive))
		for _, op := range plan.Destructive {
			fmt.Printf("  ! %s\n", op.String())
		}
	}

	fmt.Printf("\nStatements (%d):\n", len(plan.Statements))
	for i, st := range plan.Statements {
		fmt.Printf("%4d. %s\n", i+1, st.SQL)
	}

	if !plan.Transactional {
		fmt.Println("\nNote: this database cannot roll DDL back; a mid-plan failure leaves it partially migrated.")
	}
	return nil
}
