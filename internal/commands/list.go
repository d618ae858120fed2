package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/simonhull/bowerbird/internal/manifest"
	"github.com/simonhull/bowerbird/internal/output"
	"github.com/spf13/cobra"
)

// ListCmd creates and returns the 'list' command for browsing features
func ListCmd() *cobra.Command {
	var installedOnly bool
	var catalogDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available features",
		Long: `List the features in the catalog, grouped by category.

Features already applied to the current project are marked with the
installed version. With --installed, only those are shown.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			reg, err := loadCatalog(catalogDir)
			if err != nil {
				output.Error(err.Error())
				os.Exit(1)
			}

			// The manifest is optional here: listing works outside a
			// project too, it just can't mark anything installed.
			installed := map[string]string{}
			if proj, err := detectProject(); err == nil {
				if man, err := manifest.Load(proj.Root); err == nil {
					installed = man.InstalledVersions()
				}
			}

			var category string
			for _, f := range reg.All() {
				version, isInstalled := installed[f.ID]
				if installedOnly && !isInstalled {
					continue
				}

				if string(f.Category) != category {
					category = string(f.Category)
					fmt.Fprintln(output.Writer)
					output.Info(category)
				}

				line := fmt.Sprintf("%-20s v%-8s %s", f.ID, f.Version, f.Description)
				if isInstalled {
					line += fmt.Sprintf(" (installed v%s)", version)
				}
				output.Step(line)
				if len(f.Requires) > 0 {
					output.Verbose(fmt.Sprintf("%-20s requires: %s", "", strings.Join(f.Requires, ", ")))
				}
				if len(f.ConflictsWith) > 0 {
					output.Verbose(fmt.Sprintf("%-20s conflicts: %s", "", strings.Join(f.ConflictsWith, ", ")))
				}
			}
		},
	}

	cmd.Flags().BoolVar(&installedOnly, "installed", false, "Only show features applied to the current project")
	cmd.Flags().StringVar(&catalogDir, "catalog", "", "Load features from a directory instead of the built-in catalog")

	return cmd
}
