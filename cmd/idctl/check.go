package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify stored assets and embeddings",
	Long: `Checks that every identity's image and embedding assets exist, that stored
embeddings are usable and that no asset is left without an identity.
Exits non-zero when issues are found.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.maintainer.Check(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Status:     %s\n", report.Status)
		fmt.Fprintf(out, "Identities: %d\n", report.CheckedIdentities)
		fmt.Fprintf(out, "Assets:     %d\n", report.CheckedAssets)
		for _, issue := range report.Issues {
			fmt.Fprintf(out, "  %-20s %-16s %s %s\n", issue.Type, issue.Identifier, issue.Ref, issue.Detail)
		}
	}

	if len(report.Issues) > 0 {
		return fmt.Errorf("%d integrity issues found", len(report.Issues))
	}
	return nil
}
