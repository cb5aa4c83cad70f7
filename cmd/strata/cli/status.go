package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratadb/strata/internal/checksum"
	"github.com/stratadb/strata/internal/history"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the database's migration state",
		Long: `Show the last applied schema version and whether the declared schema
document matches it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, d, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := history.NewStore(db, d)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	latest, err := store.LatestSnapshot(ctx)
	if errors.Is(err, history.ErrNotFound) {
		fmt.Println("No migrations applied yet.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Database:  %s (%s)\n", d.Name(), redactDSN(cfg.Database.DSN))
	fmt.Printf("Version:   %d\n", latest.Version)
	fmt.Printf("Checksum:  %s\n", shortSum(latest.Checksum))
	fmt.Printf("Applied:   %s\n", latest.AppliedAt.Local().Format(time.RFC3339))
	fmt.Printf("Tables:    %d\n", len(latest.Tables))

	// Compare against the declared schema when the document is readable.
	if _, statErr := os.Stat(cfg.Schema.Path); statErr != nil {
		return nil
	}
	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	sum, err := checksum.Sum(s.Tables)
	if err != nil {
		return err
	}
	if sum == latest.Checksum {
		fmt.Println("\nDeclared schema matches the database.")
	} else {
		fmt.Println("\nDeclared schema differs; run 'strata plan' to preview the changes.")
	}
	return nil
}
