package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/simonhull/bowerbird/internal/diff"
	"github.com/simonhull/bowerbird/internal/engine"
	"github.com/simonhull/bowerbird/internal/output"
	"github.com/spf13/cobra"
)

// PlanCmd creates and returns the 'plan' command for previewing applies
func PlanCmd() *cobra.Command {
	var showDiff bool
	var params []string
	var catalogDir string

	cmd := &cobra.Command{
		Use:   "plan [feature]...",
		Short: "Show what adding features would do, without doing it",
		Long: `Resolve the requested features against the current project and print
the ordered plan: which features would be installed or upgraded, and in
what order. Nothing is written.

With --diff, every file change is staged in a scratch area and shown as
a unified diff against the live tree.

Examples:
  bowerbird plan auth-jwt
  bowerbird plan jobs-worker --diff`,
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

			coord := engine.New(reg)

			if showDiff {
				result, err := coord.Apply(context.Background(), proj, requests, engine.Options{DryRun: true})
				if err != nil {
					output.Error(err.Error())
					os.Exit(1)
				}
				if len(result.Written) == 0 {
					output.Info("Nothing to do: requested features are already applied")
					return
				}
				for _, rel := range result.Written {
					fmt.Fprintln(output.Writer)
					fmt.Fprint(output.Writer, diff.FileHeader(rel))
					fmt.Fprint(output.Writer, diff.Render(result.Diffs[rel]))
				}
				return
			}

			plan, err := coord.Plan(proj, requests)
			if err != nil {
				output.Error(err.Error())
				os.Exit(1)
			}
			if len(plan.Steps) == 0 {
				output.Info("Nothing to do: requested features are already applied")
				return
			}
			output.Info(fmt.Sprintf("Plan: %d step(s)", len(plan.Steps)))
			for i, step := range plan.Steps {
				action := "install"
				if step.Upgrade {
					action = "upgrade"
				}
				output.Step(fmt.Sprintf("%d. %s %s v%s", i+1, action, step.Feature.ID, step.Feature.Version))
			}
		},
	}

	cmd.Flags().BoolVar(&showDiff, "diff", false, "Show unified diffs of every file change")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Feature parameter (key=value or feature.key=value)")
	cmd.Flags().StringVar(&catalogDir, "catalog", "", "Load features from a directory instead of the built-in catalog")

	return cmd
}
