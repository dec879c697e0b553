package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"benchml/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yml>",
	Short: "Benchmark every module of a pipeline file on every dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
			recs, err := e.Run(ctx, args[0], filter)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range recs {
				if r.Err != "" {
					failed++
				}
			}
			e.Logger().Info("benchmark finished", "records", len(recs), "failed", failed)
			if failed > 0 && failed == len(recs) {
				return fmt.Errorf("all %d points failed", failed)
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().String("filter", "", `CEL expression over dataset meta, e.g. 'meta.task == "regression"'`)
	rootCmd.AddCommand(runCmd)
}
