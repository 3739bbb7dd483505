package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upplang/upp/vm"
)

var traceOnHalt bool

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Compile and execute a source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, ok := compileFile(args[0], true)
		if !ok {
			os.Exit(1)
		}

		cfg := vm.Config{Stdout: cmd.OutOrStdout(), Stdin: cmd.InOrStdin(), Logger: newLogger()}
		in := vm.New(u.Program, u.Interner, cfg)
		code, err := in.Run()
		if traceOnHalt {
			fmt.Fprintln(cmd.ErrOrStderr(), in.DumpStack())
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: trapped: %s: %v\n", args[0], code, err)
		}
		os.Exit(int(code))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&traceOnHalt, "trace", false, "dump the interpreter's call stack once execution halts")
}
