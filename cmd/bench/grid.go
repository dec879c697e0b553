package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"benchml/internal/pipeline"
)

var gridCmd = &cobra.Command{
	Use:   "grid <pipeline.yml>",
	Short: "Print the hyperparameter points of every module in sweep order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mods, _, err := pipeline.CompileFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range mods {
			for i, p := range m.Hyper().Points() {
				fmt.Fprintf(out, "%s\t%d\t%s\n", m.Tag(), i, p)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gridCmd)
}
