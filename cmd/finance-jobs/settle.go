package main

import (
	"github.com/mmdatafocus/shipment_finance/settlement"
	"github.com/spf13/cobra"
)

var settleBranchCmd = &cobra.Command{
	Use:   "settle-branch",
	Short: "Generate a draft branch settlement for a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		start, end, err := period(cmd)
		if err != nil {
			return err
		}
		branch, _ := cmd.Flags().GetInt("branch")
		cur, _ := cmd.Flags().GetString("currency")

		svc, err := services(ctx, false)
		if err != nil {
			return err
		}
		bs, err := svc.Calculator.GenerateBranchSettlement(ctx, settlement.BranchRequest{
			BranchId:    branch,
			PeriodStart: start,
			PeriodEnd:   end,
			Currency:    cur,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, bs)
	},
}

var settleMerchantCmd = &cobra.Command{
	Use:   "settle-merchant",
	Short: "Generate a draft merchant settlement of unsettled COD shipments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		start, end, err := period(cmd)
		if err != nil {
			return err
		}
		merchant, _ := cmd.Flags().GetInt("merchant")
		cur, _ := cmd.Flags().GetString("currency")
		req := settlement.MerchantRequest{
			MerchantId:  merchant,
			PeriodStart: start,
			PeriodEnd:   end,
			Currency:    cur,
		}
		if cmd.Flags().Changed("branch") {
			branch, _ := cmd.Flags().GetInt("branch")
			req.BranchId = &branch
		}

		svc, err := services(ctx, false)
		if err != nil {
			return err
		}
		ms, err := svc.Calculator.GenerateMerchantSettlement(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(cmd, ms)
	},
}

func init() {
	addPeriodFlags(settleBranchCmd)
	settleBranchCmd.Flags().Int("branch", 0, "branch id")
	settleBranchCmd.Flags().String("currency", "", "settlement currency (default base currency)")
	_ = settleBranchCmd.MarkFlagRequired("branch")

	addPeriodFlags(settleMerchantCmd)
	settleMerchantCmd.Flags().Int("merchant", 0, "merchant (customer) id")
	settleMerchantCmd.Flags().Int("branch", 0, "only shipments of this origin branch")
	settleMerchantCmd.Flags().String("currency", "", "settlement currency (default base currency)")
	_ = settleMerchantCmd.MarkFlagRequired("merchant")

	rootCmd.AddCommand(settleBranchCmd, settleMerchantCmd)
}
