package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"netcrawler/internal/repository/sqlite"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices discovered by previous crawls",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(func(repo *sqlite.Repository) error {
			devices, err := repo.ListDevices(context.Background())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOSTNAME\tADDRESS\tOS\tSTATE\tDISCOVERED")
			for _, d := range devices {
				discovered := "-"
				if d.DiscoveredAt != nil {
					discovered = d.DiscoveredAt.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Hostname, d.Address, d.OSFamily, d.State, discovered)
			}
			return tw.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
