package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"waybill/internal/ledger"
	"waybill/internal/logger"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the waybill index from the ledger",
	Long: `Rescan the WAYBILL RECORD ledger and replace the local index with its
unclaimed waybills.

Claims recorded in the index but not yet written to the ledger are flushed
first. If the ledger cannot take them (for example because it is open in a
spreadsheet application) the refresh stops, since rebuilding would make those
waybills available again. Use --force to rebuild anyway.`,
	Example: `  # Pick up newly printed waybills
  waybill refresh

  # Rebuild even if pending claims cannot be flushed
  waybill refresh --force`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next unclaimed waybill number",
	Long: `Print the next unclaimed waybill number in ledger order without claiming it.
Calling next repeatedly returns the same number until it is claimed.`,
	Args: cobra.NoArgs,
	RunE: runNext,
}

var claimCmd = &cobra.Command{
	Use:   "claim [waybill-no]",
	Short: "Mark a waybill as used",
	Long: `Record a waybill as used in the index and write the TRANSFER marker into its
ledger row. Without an argument the next unclaimed waybill is claimed.

The claim stands even when the ledger cannot be written; run "waybill flush"
later to bring the ledger up to date.`,
	Example: `  # Claim the next free waybill
  waybill claim

  # Claim a specific waybill
  waybill claim 100100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClaim,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show claimed and available waybills",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Write pending claims into the ledger",
	Long: `Write the TRANSFER marker into the ledger row of every claimed waybill whose
marker is still empty. Use this after claims were made while the ledger was
open in another program.`,
	Args: cobra.NoArgs,
	RunE: runFlush,
}

func init() {
	rootCmd.AddCommand(refreshCmd, nextCmd, claimCmd, statusCmd, flushCmd)

	refreshCmd.Flags().Bool("force", false, "Rebuild even if pending claims cannot be flushed")

	statusCmd.Flags().Int("limit", 20, "Maximum number of waybills to list (0 for all)")
	statusCmd.Flags().Bool("available", false, "List only unclaimed waybills")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("refresh")
	force, _ := cmd.Flags().GetBool("force")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	written, err := a.coordinator.Flush(ctx)
	if err != nil {
		if !force && ledger.Retryable(err) {
			return handleLedgerError(err, log)
		}
		log.Warn().Err(err).Bool("force", force).Msg("Pending claims not flushed, rebuilding anyway")
	} else if written > 0 {
		fmt.Printf("Flushed %d pending claim(s) to the ledger\n", written)
	}

	n, err := a.coordinator.Refresh(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	fmt.Printf("Index rebuilt: %d unclaimed waybill(s)\n", n)
	return nil
}

func runNext(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("next")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	number, ok, err := a.coordinator.GetNext(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	if !ok {
		fmt.Println("All waybills claimed.")
		return nil
	}

	fmt.Println(number)
	return nil
}

func runClaim(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("claim")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	var number string
	if len(args) == 1 {
		number = args[0]
	} else {
		var ok bool
		number, ok, err = a.coordinator.GetNext(ctx)
		if err != nil {
			return handleLedgerError(err, log)
		}
		if !ok {
			return errors.New("all waybills claimed. Run \"waybill refresh\" after adding new ones to the ledger")
		}
	}

	out, err := a.coordinator.Claim(ctx, number)
	if err != nil {
		return handleLedgerError(err, log)
	}

	if out.AlreadyClaimed {
		fmt.Printf("Waybill %s was already claimed at %s (ledger row %d)\n",
			out.Number, out.Record.ClaimedAt.Local().Format(time.DateTime), out.Record.Row)
	} else {
		fmt.Printf("Claimed waybill %s (ledger row %d)\n", out.Number, out.Record.Row)
	}
	if hint := ledgerHint(out); hint != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", hint)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("status")
	limit, _ := cmd.Flags().GetInt("limit")
	availableOnly, _ := cmd.Flags().GetBool("available")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	summary, err := a.coordinator.Summary(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	records, err := a.index.Records(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	var rows [][]string
	for _, rec := range records {
		if availableOnly && rec.Claimed() {
			continue
		}
		if limit > 0 && len(rows) >= limit {
			break
		}
		state, claimedAt := stateAvailable, ""
		if rec.Claimed() {
			state = stateClaimed
			claimedAt = rec.ClaimedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{rec.Number, strconv.Itoa(rec.Row), state, claimedAt})
	}

	next := summary.Next
	if !summary.Available {
		next = "none"
	}
	fmt.Printf("Index: %s\n", a.index.JSONPath())
	fmt.Printf("Waybills: %d, claimed: %d, available: %d, next: %s\n\n",
		summary.Total, summary.Claimed, summary.Total-summary.Claimed, next)

	if len(rows) > 0 {
		fmt.Println(renderTable(tableSpec{
			columns: []column{
				{header: "Waybill"},
				{header: "Row", align: text.AlignRight},
				{header: "Status", state: true},
				{header: "Claimed at"},
			},
			rows:   rows,
			footer: []string{fmt.Sprintf("%d shown", len(rows)), "", fmt.Sprintf("%d claimed", summary.Claimed)},
			color:  stdoutColor(),
		}))
	}
	return nil
}

func runFlush(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("flush")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	written, err := a.coordinator.Flush(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	if written == 0 {
		fmt.Println("Ledger is up to date.")
		return nil
	}
	fmt.Printf("Wrote %d claim marker(s) to the ledger\n", written)
	return nil
}
