package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"waybill/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "waybill",
	Short: "Waybill allocation and trip-ticket tooling",
	Long: `waybill hands out pre-printed waybill numbers from the WAYBILL RECORD
ledger, records which ones have been used, and writes trip details back into
the ledger.

The ledger workbook stays the source of truth. A local index (waybills.json and
waybills.csv) remembers claims so the next free waybill can be found without
rescanning the workbook, and so claims survive while the workbook is open in a
spreadsheet application. Run "waybill flush" once the workbook is closed to
write any claims it missed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("waybill executed without a subcommand")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Int("timeout", 120, "Timeout in seconds for ledger and API operations")
}
