package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/identity"
)

var deleteDryRun bool

var deleteCmd = &cobra.Command{
	Use:   "delete <identifier-or-name>...",
	Short: "Delete identities and their stored assets",
	Long: `Deletes each identity named by an identifier or, when no identifier matches,
by display name (the most recently registered one wins). Deleted identifiers
are retired and never issued again. Use --dry-run to see what would be removed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteDryRun, "dry-run", false, "report what would be deleted without deleting")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	opts := identity.DeleteOptions{DryRun: deleteDryRun}

	if len(args) == 1 {
		res, err := svc.maintainer.DeleteOne(ctx, args[0], opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, res)
		}
		verb := "Deleted"
		if res.DryRun {
			verb = "Would delete"
		}
		fmt.Fprintf(out, "%s %s (%s)\n", verb, res.Identifier, res.DisplayName)
		for _, ref := range res.FailedAssets {
			fmt.Fprintf(out, "  asset left behind: %s\n", ref)
		}
		return nil
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(args),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Deleting identities"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts.Progress = func(identity.BatchItem) { _ = bar.Add(1) }
	}

	res, err := svc.maintainer.DeleteMany(ctx, args, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else {
		ok, done := "ok", fmt.Sprintf("%d deleted", res.Deleted)
		if res.DryRun {
			ok, done = "would", fmt.Sprintf("%d would be deleted", res.WouldDelete)
		}
		for _, item := range res.Items {
			if item.Success {
				fmt.Fprintf(out, "%-7s %-16s %s\n", ok, item.Identifier, item.DisplayName)
			} else {
				fmt.Fprintf(out, "failed  %-16s %s\n", item.Key, item.Error)
			}
		}
		fmt.Fprintf(out, "\n%s, %d failed of %d requested\n", done, res.Failed, res.Requested)
	}

	if !res.Success {
		return fmt.Errorf("%d of %d deletions failed", res.Failed, res.Requested)
	}
	return nil
}
