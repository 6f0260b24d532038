package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var refreshNetworks bool

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the supported networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		load := a.catalog.Networks
		if refreshNetworks {
			load = a.catalog.Refresh
		}
		networks, err := load(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTOKEN\tDRIP\tBALANCE")
		for _, n := range networks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.NetworkID, n.NetworkName, n.TokenName, n.DripAmount, n.Balance)
		}
		return w.Flush()
	},
}

func init() {
	networksCmd.Flags().BoolVar(&refreshNetworks, "refresh", false, "Fetch from the faucet API and update the cache")
}
