package cmd

import (
	"errors"

	"alterego/core"
	"alterego/core/validation"

	"github.com/spf13/cobra"
)

// errChecksFailed is returned when a check failed without an error value.
var errChecksFailed = errors.New("startup checks failed")

func newDoctorCmd() *cobra.Command {
	var (
		memory   bool
		endpoint bool
		failFast bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run the startup checks without starting the service",
		Long: `Checks the configuration, the data directory, the style catalog and the
database schema. With --check-endpoint it also sends a HEAD request to TRANSFORM_URL
when the http provider is selected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.ReadConfig()
			res := validation.StartupChecks(cfg, nil, validation.Options{Memory: memory, Endpoint: endpoint}).
				WithOutput(cmd.OutOrStdout()).
				WithFailFast(failFast).
				Run(cmd.Context())
			if res.Success {
				return nil
			}
			if errs := res.Errors(); len(errs) > 0 {
				return errors.Join(errs...)
			}
			return errChecksFailed
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "Skip the database check")
	cmd.Flags().BoolVar(&endpoint, "check-endpoint", false, "Send a HEAD request to the transform endpoint")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failure")
	return cmd
}
