package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"waybill/internal/config"
	"waybill/internal/logger"
	"waybill/pkg/models"
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Query the reference workbook",
}

var referenceLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Find truck crews by plate or shipper origin",
	Example: `  # Crew of a truck
  waybill reference lookup --plate "ABC 1234"

  # Entry serving an origin keyword
  waybill reference lookup --origin BB5`,
	Args: cobra.NoArgs,
	RunE: runReferenceLookup,
}

func init() {
	rootCmd.AddCommand(referenceCmd)
	referenceCmd.AddCommand(referenceLookupCmd)

	referenceLookupCmd.Flags().String("plate", "", "Plate number to look up")
	referenceLookupCmd.Flags().String("origin", "", "Origin keyword to look up")
}

func runReferenceLookup(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("reference")

	plate, _ := cmd.Flags().GetString("plate")
	origin, _ := cmd.Flags().GetString("origin")
	if (plate == "") == (origin == "") {
		return errors.New("give exactly one of --plate or --origin")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	dir := newDirectory(cfg)

	var matches []models.FleetEntry
	if plate != "" {
		matches, err = dir.LookupPlate(plate)
	} else {
		var entry *models.FleetEntry
		var ok bool
		entry, ok, err = dir.LookupOrigin(origin)
		if ok {
			matches = append(matches, *entry)
		}
	}
	if err != nil {
		return fmt.Errorf("reference lookup failed: %w", err)
	}

	log.Debug().
		Str("plate", plate).
		Str("origin", origin).
		Int("matches", len(matches)).
		Msg("Reference lookup finished")

	if len(matches) == 0 {
		fmt.Println("No match.")
		return nil
	}

	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{m.Truck, m.Driver, m.Helper1, m.Helper2, m.Shipper, m.From, m.To})
	}
	fmt.Println(renderTable(tableSpec{
		columns: []column{
			{header: "Truck"}, {header: "Driver"}, {header: "Helper 1"}, {header: "Helper 2"},
			{header: "Shipper"}, {header: "From"}, {header: "To"},
		},
		rows:   rows,
		footer: []string{fmt.Sprintf("%d match(es)", len(rows))},
	}))
	return nil
}
