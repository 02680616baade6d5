package root

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the Palmyra tenancy CLI. Subcommands are attached in wire.go.
var rootCmd = &cobra.Command{
	Use:           "palmyra",
	Short:         "Palmyra tenancy CLI",
	Long:          "Administrative utilities for Palmyra tenancy (management bootstrap, tenant provisioning, cluster topology).\nConfiguration is read from the same environment variables as the api server.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI. An interrupt cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
