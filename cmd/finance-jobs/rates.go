package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var refreshRatesCmd = &cobra.Command{
	Use:   "refresh-rates",
	Short: "Pull exchange rates from RATE_FEED_URL into the rate table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		watch, _ := cmd.Flags().GetBool("watch")

		svc, err := services(ctx, false)
		if err != nil {
			return err
		}
		r, err := svc.Refresher()
		if err != nil {
			return err
		}
		if watch {
			r.Run(ctx)
			return nil
		}
		n, err := r.Refresh(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int{"saved": n})
	},
}

var setRateCmd = &cobra.Command{
	Use:   "set-rate FROM TO RATE",
	Short: "Record a manual exchange rate override",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := jobContext()
		defer cancel()
		rate, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		date := time.Now().UTC()
		if on, _ := cmd.Flags().GetString("date"); on != "" {
			if date, err = time.Parse(dateLayout, on); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
		}
		notes, _ := cmd.Flags().GetString("notes")

		svc, err := services(ctx, false)
		if err != nil {
			return err
		}
		row, err := svc.Converter.SetManualRate(ctx, args[0], args[1], date, rate, notes)
		if err != nil {
			return err
		}
		return printJSON(cmd, row)
	},
}

func init() {
	refreshRatesCmd.Flags().Bool("watch", false, "keep refreshing on the configured interval")
	setRateCmd.Flags().String("date", "", "effective date (YYYY-MM-DD, default today)")
	setRateCmd.Flags().String("notes", "", "reason for the override")
	rootCmd.AddCommand(refreshRatesCmd, setRateCmd)
}
