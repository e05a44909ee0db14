// File: cmd/provision.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mediflow-e2e/internal/environment"
	"github.com/xkilldash9x/mediflow-e2e/internal/observability"
)

// newProvisionCmd creates the `provision` command. It brings up a seeded
// environment without running the journey and keeps it alive until
// interrupted, which is handy when writing or debugging steps.
func newProvisionCmd(provider RunnerProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Creates and seeds a test database and serves the application until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			runner := provider(cfg, observability.GetLogger())
			return runner.Provision(cmd.Context(), func(env *environment.Environment) {
				printf(cmd, "Database: %s\n", env.ID)
				printf(cmd, "Application: %s\n", env.BaseURL)
				printf(cmd, "Press Ctrl+C to stop the server.\n")
			})
		},
	}
}
