package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/shipment_finance/reports"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/spf13/cobra"
)

var exportSettlementCmd = &cobra.Command{
	Use:   "export-settlement",
	Short: "Export a branch/merchant settlement or a merchant statement to XLSX",
	Long: `Writes the workbook to --out, or uploads it to GCS_BUCKET with --upload.
--kind statement takes --id as the merchant id and needs --from/--to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		kind, _ := cmd.Flags().GetString("kind")
		id, _ := cmd.Flags().GetInt("id")
		out, _ := cmd.Flags().GetString("out")
		upload, _ := cmd.Flags().GetBool("upload")
		if out == "" && !upload {
			return fmt.Errorf("one of --out or --upload is required")
		}

		svc, err := services(ctx, false)
		if err != nil {
			return err
		}

		var data []byte
		switch kind {
		case "branch":
			bs, err := svc.Calculator.GetBranchSettlement(ctx, id)
			if err != nil {
				return err
			}
			data, err = reports.BranchSettlementWorkbook(*bs)
			if err != nil {
				return err
			}
		case "merchant":
			ms, err := svc.Calculator.GetMerchantSettlement(ctx, id)
			if err != nil {
				return err
			}
			data, err = reports.MerchantSettlementWorkbook(*ms)
			if err != nil {
				return err
			}
		case "statement":
			start, end, err := period(cmd)
			if err != nil {
				return err
			}
			st, err := svc.Calculator.MerchantStatement(ctx, id, start, end)
			if err != nil {
				return err
			}
			data, err = reports.MerchantStatementWorkbook(st)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown --kind %q (branch, merchant, statement)", kind)
		}

		result := map[string]string{}
		if out != "" {
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			result["file"] = out
		}
		if upload {
			uri, err := utils.UploadBytesToGCS(ctx, reports.ObjectName(kind, id, time.Now()), data, reports.XLSXContentType)
			if err != nil {
				return err
			}
			result["object"] = uri
		}
		return printJSON(cmd, result)
	},
}

func init() {
	exportSettlementCmd.Flags().String("kind", "branch", "branch, merchant or statement")
	exportSettlementCmd.Flags().Int("id", 0, "settlement id, or merchant id for statements")
	exportSettlementCmd.Flags().String("out", "", "write the workbook to this file")
	exportSettlementCmd.Flags().Bool("upload", false, "upload the workbook to GCS_BUCKET")
	exportSettlementCmd.Flags().String("from", "", "statement period start (YYYY-MM-DD)")
	exportSettlementCmd.Flags().String("to", "", "statement period end, inclusive (YYYY-MM-DD)")
	_ = exportSettlementCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(exportSettlementCmd)
}
