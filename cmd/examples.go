// File: cmd/examples.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// exampleQuery is a sample request shown by the examples command.
type exampleQuery struct {
	Category string
	Query    string
}

var exampleQueries = []exampleQuery{
	{"token", "Create a fungible token with mint, burn, and transfer functions"},
	{"nft", "Build an NFT collection with minting, transfers, and metadata"},
	{"defi", "Implement a simple AMM DEX with liquidity pools and swaps"},
	{"game", "Create a dice game with betting and random number generation"},
	{"oracle", "Build a price oracle that stores ETH/USD price data"},
	{"voting", "Implement a DAO voting system with proposals and weighted votes"},
	{"escrow", "Create an escrow service for secure peer-to-peer transactions"},
	{"lottery", "Build a decentralized lottery with ticket purchases and payouts"},
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show example generation requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printExamples(cmd.OutOrStdout())
		},
	}
}

func printExamples(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tREQUEST")
	for _, e := range exampleQueries {
		fmt.Fprintf(w, "%s\t%s\n", e.Category, e.Query)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nUsage:")
	fmt.Fprintln(out, `  leoforge generate "Your project description here"`)
	fmt.Fprintln(out, `  leoforge generate --type token "Create a governance token"`)
	return nil
}
