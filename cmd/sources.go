package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List supported venues and the spellings that resolve to them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VENUE\tALIASES")
		for _, venue := range env.Registry.ListSupported() {
			fmt.Fprintf(w, "%s\t%s\n", venue, strings.Join(env.Registry.Aliases(venue), ", "))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
