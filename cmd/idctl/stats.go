package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show identity counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		st, err := svc.maintainer.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Identities:       %d\n", st.TotalIdentities)
		fmt.Fprintf(cmd.OutOrStdout(), "Registered today: %d\n", st.RegisteredToday)
		fmt.Fprintf(cmd.OutOrStdout(), "Retired ids:      %d\n", st.RetiredCount)
		if st.LastRegisteredAt != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Last registered:  %s\n", st.LastRegisteredAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
