package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/models"
)

var (
	listSearch   string
	listPage     int
	listPageSize int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered identities",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "filter by identifier or name substring")
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 50, "identities per page")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if listPage < 1 || listPageSize < 1 {
		return fmt.Errorf("--page and --page-size must be positive")
	}

	ctx := cmd.Context()
	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	items, total, err := svc.maintainer.List(ctx, models.ListQuery{Search: listSearch, Page: listPage, PageSize: listPageSize})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"identities": items, "total": total, "page": listPage})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTIFIER\tNAME\tCREATED")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", it.Identifier, it.DisplayName, it.CreatedAt.Local().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d identities (page %d)\n", len(items), total, listPage)
	return nil
}
