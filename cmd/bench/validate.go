package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"benchml/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline.yml>",
	Short: "Build every module of a pipeline file and report problems",
	Long: `Parses the pipeline file, constructs every transform (which fails for
unavailable kinds) and resolves every port reference without running anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mods, _, err := pipeline.CompileFile(args[0])
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, m := range mods {
			tags := make([]string, 0, len(m.Transforms()))
			for _, t := range m.Transforms() {
				tags = append(tags, t.Tag()+"("+t.Kind()+")")
			}
			fmt.Fprintf(out, "%s: %s, %d grid point(s)\n", m.Tag(), strings.Join(tags, " -> "), m.Hyper().Size())
		}
		fmt.Fprintln(out, "pipeline is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
