package topology

import (
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/runtime"
)

// Command prints the registered topologies and the one the current environment resolves to.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Cluster topology helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the topology for APP_ENV",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime.Load(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			current, err := rt.Registry.ResolveCurrent()
			if err != nil {
				return err
			}
			return runtime.PrintJSON(cmd.OutOrStdout(), map[string]any{
				"appEnv":     rt.Registry.Environment().AppEnv,
				"registered": rt.Registry.Names(),
				"current":    current,
			})
		},
	})
	return cmd
}
