package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"benchml/internal/descriptor"
	"benchml/internal/transform"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the available transform kinds",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bench version %s\n", version)
		fmt.Fprintf(out, "kinds: %s\n", strings.Join(transform.Kinds(), ", "))
		fmt.Fprintf(out, "descriptor backends: %s\n", strings.Join(descriptor.Backends(), ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
