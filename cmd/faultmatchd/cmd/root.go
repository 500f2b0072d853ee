// Package cmd provides the CLI commands for faultmatchd.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/faultmatch/core/internal/logging"
	"github.com/faultmatch/core/pkg/version"
)

var (
	configPath string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the faultmatchd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faultmatchd",
		Short: "Fault-case retrieval core CLI",
		Long: `faultmatchd matches a free-text fault description against a
knowledge base of known fault cases using hybrid keyword + semantic
retrieval, optional reranking, and a gray-zone LLM adjudication step.

The HTTP surface described alongside this core is reference only; this
CLI drives the same pipeline directly for local matching and index
building.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("faultmatchd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a settings YAML file (optional)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newMatchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// startLogging wires up debug logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	cleanup, err := logging.SetupDefault()
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
