// finance-jobs runs the batch side of the finance core: settlement
// generation, ledger sync, exchange rate refresh and exports.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/finance-jobs settle-branch --branch 3 --from 2024-01-01 --to 2024-01-31
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmdatafocus/shipment_finance/bootstrap"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const dateLayout = "2006-01-02"

var rootCmd = &cobra.Command{
	Use:           "finance-jobs",
	Short:         "Batch jobs of the shipment finance core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("policy", "", "finance policy file (yaml/json/toml)")
	rootCmd.PersistentFlags().Bool("migrate", false, "run schema migration first")
	rootCmd.PersistentFlags().String("actor", "", "actor recorded on changes (default system)")
	_ = viper.BindPFlag("policy", rootCmd.PersistentFlags().Lookup("policy"))
	_ = viper.BindPFlag("migrate", rootCmd.PersistentFlags().Lookup("migrate"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

// initConfig lets every flag come from FINANCE_JOBS_<FLAG> as well.
func initConfig() {
	viper.SetEnvPrefix("FINANCE_JOBS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// jobContext is cancelled on SIGINT/SIGTERM and carries the actor.
func jobContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = utils.SetCorrelationIdInContext(ctx, "finance-jobs-"+time.Now().UTC().Format("20060102T150405"))
	if actor := viper.GetString("actor"); actor != "" {
		ctx = utils.SetActorIdInContext(ctx, actor)
	}
	return ctx, cancel
}

func services(ctx context.Context, publish bool) (*bootstrap.Services, error) {
	return bootstrap.New(ctx, bootstrap.Options{
		PolicyFile: viper.GetString("policy"),
		Migrate:    viper.GetBool("migrate"),
		Publish:    publish,
	})
}

// period parses the --from/--to flags as a closed interval of whole UTC days.
func period(cmd *cobra.Command) (time.Time, time.Time, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
	}
	endDay, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	return start, endDay.Add(24*time.Hour - time.Second), nil
}

func addPeriodFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "period start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "period end date, inclusive (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
