package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List the signals described in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runSignals,
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}

func runSignals(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	signals, err := e.catalog.Signals(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNAL\tASSET\tLABEL\tTYPE\tUNIT\tHISTORY")
	for _, s := range signals {
		protocols := make([]string, 0, len(s.Historical))
		for _, a := range s.Historical {
			protocols = append(protocols, a.Protocol)
		}
		history := "none"
		if len(protocols) > 0 {
			history = strings.Join(protocols, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, dash(s.Asset), dash(s.Label), dash(s.Type), dash(s.Unit), history)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
