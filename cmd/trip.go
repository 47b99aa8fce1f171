package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"waybill/internal/claim"
	"waybill/internal/logger"
	"waybill/internal/trip"
	"waybill/pkg/models"
)

var tripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Record trips against waybills",
}

var tripRecordCmd = &cobra.Command{
	Use:   "record [session.yaml]",
	Short: "Claim waybills for up to two trips and write their details to the ledger",
	Long: `Read a YAML session of one or two trips, claim a waybill for each and write
the trip details (blocks, trip ticket, date, crew, origin) into the waybills'
ledger rows.

Trip 1 uses the next unclaimed waybill unless waybill_no is given. Trip 2 uses
the number after trip 1's unless waybill_no is given.

Session file format:

  trips:
    - trip_ticket: "123456"
      date: "11-19-2025"
      plate_no: "ABC-1234"
      origin: "JSI LILOAN"
      driver_name: "Juan Dela Cruz"
      helper1: "Pedro Santos"
      total_blocks: "150"
      reference_nos: ["VA123", "VB456"]
      seal_nos: ["654321"]`,
	Example: `  # Validate and show the planned waybills without claiming
  waybill trip record trips.yaml --dry-run

  # Record the session
  waybill trip record trips.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runTripRecord,
}

func init() {
	rootCmd.AddCommand(tripCmd)
	tripCmd.AddCommand(tripRecordCmd)

	tripRecordCmd.Flags().Bool("dry-run", false, "Validate and plan without claiming")
}

func runTripRecord(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("trip")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	session, err := trip.LoadFile(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	next := ""
	if len(session.Trips) > 0 && session.Trips[0].WaybillNo == "" {
		number, ok, err := a.coordinator.GetNext(ctx)
		if err != nil {
			return handleLedgerError(err, log)
		}
		if ok {
			next = number
		}
	}

	planned, err := trip.PlanSession(session.Trips, next)
	if err != nil {
		return err
	}
	trips, err := trip.ValidateAll(planned)
	if err != nil {
		return err
	}

	numbers := make([]string, len(trips))
	for i := range trips {
		numbers[i] = trips[i].WaybillNo
	}
	if err := a.coordinator.CheckAvailable(ctx, numbers...); err != nil {
		return handleLedgerError(err, log)
	}

	for i, t := range trips {
		fmt.Printf("Trip %d: waybill %s, ticket %s, %s, %s, blocks %d",
			i+1, t.WaybillNo, t.TripTicket, t.Date.Format(models.TripDateLayout), t.Origin, t.TotalBlocks)
		if refs := t.FormattedReferences(); refs != "" {
			fmt.Printf(", ref %s", refs)
		}
		if seals := t.FormattedSeals(); seals != "" {
			fmt.Printf(", seal %s", seals)
		}
		fmt.Println()
	}

	if dryRun {
		log.Info().Int("trips", len(trips)).Msg("Dry run, nothing claimed")
		return nil
	}

	reqs := make([]claim.Request, len(trips))
	for i := range trips {
		reqs[i] = claim.Request{Number: trips[i].WaybillNo, Trip: &trips[i]}
	}

	var failed int
	for out := range a.coordinator.ClaimAsync(ctx, reqs...) {
		if out.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Waybill %s not claimed: %v\n", out.Number, handleLedgerError(out.Err, log))
			continue
		}
		fmt.Printf("Claimed waybill %s (ledger row %d)\n", out.Number, out.Record.Row)
		if hint := ledgerHint(&out); hint != "" {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", hint)
		}
	}
	a.coordinator.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d trip(s) could not be claimed", failed, len(trips))
	}
	return nil
}
