package main

import (
	"github.com/mmdatafocus/shipment_finance/models"
	"github.com/spf13/cobra"
)

var codSummaryCmd = &cobra.Command{
	Use:   "cod-summary",
	Short: "Print COD collection totals for a period, or one driver's performance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		start, end, err := period(cmd)
		if err != nil {
			return err
		}
		driver, _ := cmd.Flags().GetString("driver")

		svc, err := services(ctx, false)
		if err != nil {
			return err
		}
		if driver != "" {
			perf, err := svc.Cod.DriverPerformance(ctx, driver, start, end)
			if err != nil {
				return err
			}
			return printJSON(cmd, perf)
		}
		sum, err := svc.Cod.CodSummary(ctx, start, end)
		if err != nil {
			return err
		}
		return printJSON(cmd, sum)
	},
}

var codDiscrepanciesCmd = &cobra.Command{
	Use:   "cod-discrepancies",
	Short: "List collections whose collected amount differs from expected",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		start, end, err := period(cmd)
		if err != nil {
			return err
		}
		driver, _ := cmd.Flags().GetString("driver")

		svc, err := services(ctx, false)
		if err != nil {
			return err
		}
		found, err := svc.Cod.Discrepancies(ctx, models.CodFilter{DriverId: driver, From: &start, To: &end})
		if err != nil {
			return err
		}
		return printJSON(cmd, found)
	},
}

func init() {
	for _, c := range []*cobra.Command{codSummaryCmd, codDiscrepanciesCmd} {
		addPeriodFlags(c)
		c.Flags().String("driver", "", "driver id")
		rootCmd.AddCommand(c)
	}
}
