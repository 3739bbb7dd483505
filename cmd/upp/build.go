package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build <file>",
	Short: "Compile a source file and report any diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, ok := compileFile(args[0], true)
		if !ok {
			os.Exit(1)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d function(s))\n", args[0], len(u.Program.Functions))
		return nil
	},
}
