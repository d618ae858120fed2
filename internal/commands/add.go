package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/simonhull/bowerbird/internal/diff"
	"github.com/simonhull/bowerbird/internal/engine"
	"github.com/simonhull/bowerbird/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddCmd creates and returns the 'add' command for applying features
func AddCmd() *cobra.Command {
	var force, dryRun bool
	var params []string
	var catalogDir string
	var lockWait time.Duration

	cmd := &cobra.Command{
		Use:   "add [feature]...",
		Short: "Add features to the current project",
		Long: `Add one or more features to the current project.

Required features are pulled in automatically and applied in dependency
order. The whole set is staged and validated before anything is written;
a failure anywhere leaves the project untouched.

Features already applied at the catalog version are skipped. Requesting
an applied feature whose catalog version is newer re-applies it as an
upgrade, regenerating its files.

Examples:
  bowerbird add auth-jwt
  bowerbird add db-postgres --param pool_size=20
  bowerbird add auth-jwt jobs-worker --param jobs-worker.concurrency=8
  bowerbird add deploy-docker --dry-run
  bowerbird add db-postgres --force   # reclaim files you edited by hand`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reg, err := loadCatalog(catalogDir)
			if err != nil {
				output.Error(err.Error())
				os.Exit(1)
			}
			proj, err := detectProject()
			if err != nil {
				output.Error(err.Error())
				os.Exit(1)
			}
			requests, err := buildRequests(args, params)
			if err != nil {
				output.Error(err.Error())
				os.Exit(1)
			}

			if lockWait == 0 {
				lockWait = viper.GetDuration("lock_wait")
			}

			result, err := engine.New(reg).Apply(context.Background(), proj, requests, engine.Options{
				Force:    force,
				DryRun:   dryRun,
				LockWait: lockWait,
			})
			if err != nil {
				output.Error(err.Error())
				os.Exit(1)
			}

			if dryRun {
				if len(result.Written) == 0 {
					output.Info("Nothing to do: requested features are already applied")
					return
				}
				output.Info(fmt.Sprintf("Dry run: %d file(s) would change", len(result.Written)))
				for _, rel := range result.Written {
					fmt.Fprintln(output.Writer)
					fmt.Fprint(output.Writer, diff.FileHeader(rel))
					fmt.Fprint(output.Writer, diff.Render(result.Diffs[rel]))
				}
				return
			}

			if len(result.Installed) == 0 && len(result.Upgraded) == 0 {
				output.Info("Nothing to do: requested features are already applied")
				return
			}
			for _, id := range result.Installed {
				output.Success(fmt.Sprintf("Added %s", id))
			}
			for _, id := range result.Upgraded {
				output.Success(fmt.Sprintf("Upgraded %s", id))
			}
			output.Step(fmt.Sprintf("%d file(s) written", len(result.Written)))
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite files you edited by hand")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Feature parameter (key=value or feature.key=value)")
	cmd.Flags().StringVar(&catalogDir, "catalog", "", "Load features from a directory instead of the built-in catalog")
	cmd.Flags().DurationVar(&lockWait, "lock-wait", 0, "How long to wait for the project lock")

	return cmd
}
