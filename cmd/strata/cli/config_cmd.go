package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage strata configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default strata.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

const defaultConfig = `# Strata configuration
# https://github.com/stratadb/strata

database:
  driver: postgres          # postgres, mysql, sqlite
  dsn: ""                   # or set STRATA_DATABASE_DSN
  max_open_conns: 10
  max_idle_conns: 5
  conn_max_lifetime: 30m

# Declared schema document
schema:
  path: schema.yaml

migration:
  lock_timeout: 30s         # how long to wait for the migration lock
  allow_destructive: false  # refuse plans that drop tables or columns
  # lock_key: 1398034001    # override the advisory lock key

# Session tokens for row security testing
auth:
  jwt_secret: ""            # set via STRATA_AUTH_JWT_SECRET env var
  jwt_expiry: 24h

logging:
  level: info               # debug, info, warn, error
  format: text              # text or json
`

func runConfigInit(force bool) error {
	path := "strata.yaml"
	if cfgFile != "" {
		path = cfgFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Never print secrets.
	shown := *cfg
	if shown.Auth.JWTSecret != "" {
		shown.Auth.JWTSecret = "****"
	}
	shown.Database.DSN = redactDSN(shown.Database.DSN)

	out, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
