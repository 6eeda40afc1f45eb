package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/julianshen/larashield/internal/security/analyzer"
)

func analyzersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyzers",
		Short: "List the available analyzers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			descriptors := analyzer.Descriptors()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(descriptors)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tDESCRIPTION")
			for _, d := range descriptors {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Category, d.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "print the analyzer descriptors as JSON")
	return cmd
}
