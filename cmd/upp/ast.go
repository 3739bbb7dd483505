package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/compiler"
)

var dumpBlockIDs bool

var astCmd = &cobra.Command{
	Use:   "ast <file>",
	Short: "Parse a source file and print its syntax tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		u := compiler.Compile(args[0], text, false, compiler.Config{Logger: newLogger()})
		for _, d := range u.Diagnostics {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", d.Unit, d.Severity, d.Message)
		}
		printNode(cmd, u.Arena, u.Root, 0)
		return nil
	},
}

func init() {
	astCmd.Flags().BoolVar(&dumpBlockIDs, "dump", false, "include the block/line/token coordinates of every node's range")
}

func printNode(cmd *cobra.Command, arena *ast.Arena, id ast.NodeID, depth int) {
	if id == ast.NoNode {
		return
	}
	n := arena.Node(id)
	indent := indentString(depth)
	if dumpBlockIDs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s [%d:%d.%d - %d:%d.%d]\n", indent, n.Kind,
			n.Range.Start.Line.Block, n.Range.Start.Line.Line, n.Range.Start.Token,
			n.Range.End.Line.Block, n.Range.End.Line.Line, n.Range.End.Token)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", indent, n.Kind)
	}
	for _, child := range ast.Children(arena, id) {
		printNode(cmd, arena, child, depth+1)
	}
}
