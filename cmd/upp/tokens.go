package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upplang/upp/compiler"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>",
	Short: "Lex a source file and print its token stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		code := compiler.BuildSource(text, token.NewPool())
		printBlockTokens(cmd, code, sourcecode.RootBlock, 0)
		return nil
	},
}

func printBlockTokens(cmd *cobra.Command, code *sourcecode.Code, block sourcecode.BlockIndex, depth int) {
	indent := indentString(depth)
	for i := 0; i < code.LineCount(block); i++ {
		idx := sourcecode.LineIndex{Block: block, Line: i}
		line := code.LineAt(idx)
		if line.IsBlockRef {
			printBlockTokens(cmd, code, line.ChildBlock, depth+1)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%sline %d:\n", indent, i)
		for _, tok := range line.Tokens {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-16q [%d,%d)\n", indent, tok.Kind, tok.Text, tok.StartChar, tok.EndChar)
		}
	}
}

func indentString(depth int) string {
	out := ""
	for i := 0; i < depth; i++ {
		out += "  "
	}
	return out
}
