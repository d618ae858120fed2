package main

import (
	"os"

	"github.com/simonhull/bowerbird/internal/commands"
)

func main() {
	rootCmd := commands.RootCmd()

	rootCmd.AddCommand(commands.AddCmd())
	rootCmd.AddCommand(commands.PlanCmd())
	rootCmd.AddCommand(commands.ListCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
