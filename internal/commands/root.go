package commands

import (
	"strings"

	bowerbird "github.com/simonhull/bowerbird"
	"github.com/simonhull/bowerbird/internal/logging"
	"github.com/simonhull/bowerbird/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCmd creates and returns the root command for the bowerbird CLI
func RootCmd() *cobra.Command {
	var verbosity int

	cmd := &cobra.Command{
		Use:   "bowerbird",
		Short: "Add features to an existing Go project",
		Long: `Bowerbird composes features into generated Go projects.

Each feature declares the files it renders, the config it mutates, and
the features it requires or conflicts with. Bowerbird plans the full
set, stages every change, and commits all of it or none of it:
• Add auth, databases, caches, middleware, jobs, deployment
• Preview exactly what would change before touching anything
• Re-run safely: applied features are tracked and skipped

Learn more: https://github.com/simonhull/bowerbird`,
		Version: bowerbird.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			output.SetVerbose(verbosity > 0)
			logging.Setup(verbosity)
		},
	}

	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log detail (repeatable)")

	viper.SetEnvPrefix("BOWERBIRD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Optional per-project settings file; absence is fine.
	viper.SetConfigName("bowerbird")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	return cmd
}
