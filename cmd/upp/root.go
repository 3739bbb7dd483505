package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "upp",
	Short: "upp is the compiler and toolchain for the Upp language",
	Long: `upp compiles and runs Upp source files.

It wraps the same compile/execute pipeline an interactive editor embeds
(lexer, parser, analyzer, bytecode generator, stack interpreter), exposed
here as four subcommands: build, run, tokens and ast.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(astCmd)
}

// newLogger builds the zap.Logger passed to the compiler/vm packages'
// Config.Logger, matching the verbosity the user asked for on the command
// line rather than each package's own silent zero-value default.
func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
