package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPinsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pins <mcu>",
		Short: "Show an MCU's pins and which instances map to them by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(a.catalogDir)
			if err != nil {
				return err
			}
			m, err := cat.Lookup(args[0])
			if err != nil {
				return err
			}

			users := map[string][]string{}
			for _, p := range m.Peripherals {
				for _, in := range p.Instances {
					for fn, pin := range in.Pins {
						users[pin] = append(users[pin], fmt.Sprintf("%s.%s", in.Name, fn))
					}
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", m.Name, m.ID)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PIN\tDEFAULT FUNCTIONS")
			for _, pin := range m.Inventory() {
				u := users[pin]
				sort.Strings(u)
				fmt.Fprintf(tw, "%s\t%s\n", pin, strings.Join(u, ", "))
			}
			return tw.Flush()
		},
	}
}
