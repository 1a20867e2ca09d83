package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the MCU catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known microcontrollers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(a.catalogDir)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCORE\tMHZ\tPINS\tPERIPHERALS")
			for _, m := range cat.List() {
				kinds := make([]string, 0, len(m.Peripherals))
				for _, p := range m.Peripherals {
					kinds = append(kinds, fmt.Sprintf("%s:%d", p.Type, len(p.Instances)))
				}
				sort.Strings(kinds)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					m.ID, m.Name, m.Core, m.ClockMHz, len(m.Inventory()), strings.Join(kinds, " "))
			}
			return tw.Flush()
		},
	})
	return cmd
}
