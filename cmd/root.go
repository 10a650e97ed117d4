// Package cmd is the alterego command tree.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command and its subcommands.
func NewRootCmd(version string) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "alterego",
		Short: "Restyle a portrait across eras and genres with image models",
		Long: `AlterEgo turns one uploaded portrait into a set of restyled images, one per
selected style, charging one credit per image.

serve runs the service; the other commands inspect and manage its storage.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a missing file is fine; variables already set win
			_ = godotenv.Load(envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")

	cmd.AddCommand(
		newServeCmd(version),
		newStylesCmd(),
		newHistoryCmd(),
		newCreditsCmd(),
		newActivityCmd(),
		newDoctorCmd(),
		newTokenCmd(),
	)
	return cmd
}
