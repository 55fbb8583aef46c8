// Command leadctl previews scoring, routing and follow-up sequences offline.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	json bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "leadctl",
		Short: "Lead engine operator tools",
		Long: `leadctl runs the scoring, routing and sequencing rules locally.
Nothing is stored and no message is sent.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output JSON")

	root.AddCommand(
		newScoreCmd(opts),
		newRouteCmd(opts),
		newRulesCmd(opts),
		newSequenceCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
