package bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/runtime"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
)

// Command creates the management database and applies the document schema.
// It is safe to run repeatedly.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the management database and verify connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := runtime.Load(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			topology, err := rt.Registry.ResolveCurrent()
			if err != nil {
				return err
			}

			name := rt.Config.Database.Database
			res, err := rt.Backend.Provisioner.Ensure(ctx, service.DatabaseRequest{
				Name:              name,
				ReplicationFactor: topology.ReplicationFactor,
				Topology:          topology,
			})
			if err != nil {
				return fmt.Errorf("ensure management database: %w", err)
			}
			rt.Logger.Info("management database ensured", zap.String("database", name), zap.Bool("ready", res.Ready))

			// Opening the service dials the database, which applies the document schema.
			svc, err := rt.Service(ctx)
			if err != nil {
				return err
			}
			if err := svc.Ping(ctx); err != nil {
				return fmt.Errorf("ping management database: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Management database %s ready (%d nodes)\n", name, len(topology.Nodes))
			return nil
		},
	}
}
