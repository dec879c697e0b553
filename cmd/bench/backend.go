package main

import (
	"context"

	"github.com/spf13/cobra"

	"benchml/internal/engine"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Descriptor backend server",
}

var backendServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local descriptor backend over gRPC for the remote backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
			return e.ServeBackend(ctx)
		})
	},
}

func init() {
	backendCmd.AddCommand(backendServeCmd)
	rootCmd.AddCommand(backendCmd)
}
