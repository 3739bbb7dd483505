// Command upp is the compiler's command-line entry point: it drives the
// same compiler package an interactive editor would embed, one file at a
// time, through four subcommands (build, run, tokens, ast).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
