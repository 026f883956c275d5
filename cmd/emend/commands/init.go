package commands

import (
	"github.com/emendhq/emend/internal/printer"
	"github.com/emendhq/emend/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Emend project",
	Long: `Initialize a new Emend project with default configuration and an example standard.

Creates:
  • emend.yml - Project configuration file
  • standards/example-standard.txt - Example standard exercising the section scanner

Use --force to reinitialize an existing project (WARNING: destroys existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing emend.yml and standards/)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return printer.Error("cannot initialize", err.Error(), nil)
		}
	}

	// Initialize the project
	if err := scaffold.Initialize(forceInit); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	// Print success message
	scaffold.PrintSuccess()

	return nil
}
