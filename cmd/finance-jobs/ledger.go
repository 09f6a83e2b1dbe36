package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var syncLedgerCmd = &cobra.Command{
	Use:   "sync-ledger",
	Short: "Publish pending ledger entries and mark them posted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		dryRun, _ := cmd.Flags().GetBool("no-publish")

		svc, err := services(ctx, !dryRun)
		if err != nil {
			return err
		}
		n, err := svc.Poster.SyncToExternalSystem(ctx)
		if err != nil {
			return err
		}
		svc.Logger.WithFields(logrus.Fields{"field": "SyncLedger", "posted": n}).Info("ledger sync finished")
		return printJSON(cmd, map[string]int{"posted": n})
	},
}

func init() {
	syncLedgerCmd.Flags().Bool("no-publish", false, "only flip entry status, do not publish to pubsub")
	rootCmd.AddCommand(syncLedgerCmd)
}
