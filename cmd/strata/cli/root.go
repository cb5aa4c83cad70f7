package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strata",
		Short: "Schema migrations with stable identity and row security",
		Long: `Strata keeps a live database aligned with a declared schema document.

Tables and fields carry stable numeric ids, so renames are detected as
renames instead of drop-and-recreate and data survives them. Changes are
diffed against the last applied snapshot, ordered by dependency, executed
in a single transaction where the database allows it, and recorded in an
audit log. Declared permissions compile into row security policies on
databases that support them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./strata.yaml)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newRollbackCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("strata")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.strata")
	}

	viper.SetEnvPrefix("STRATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
