package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratadb/strata/internal/checksum"
	"github.com/stratadb/strata/internal/schema"
)

func newValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a schema document without touching the database",
		Long: `Parse and validate a schema document: identifier rules, id and name
uniqueness, link targets, index and unique fields, permission rules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(path)
		},
	}

	cmd.Flags().StringVar(&path, "schema", "", "Schema document to validate (default from config)")

	return cmd
}

func runValidate(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if path == "" {
		path = cfg.Schema.Path
	}

	s, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	if err := schema.Validate(s); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	sum, err := checksum.Sum(s.Tables)
	if err != nil {
		return err
	}

	fields := 0
	policies := 0
	for _, t := range s.Tables {
		fields += len(t.Fields)
		policies += len(t.Permissions.RuleOperations())
	}
	fmt.Printf("%s is valid\n", path)
	fmt.Printf("  tables:   %d\n", len(s.Tables))
	fmt.Printf("  fields:   %d\n", fields)
	fmt.Printf("  rules:    %d\n", policies)
	fmt.Printf("  checksum: %s\n", shortSum(sum))
	return nil
}
