// Package ledger reads and updates the authoritative WAYBILL RECORD workbook.
//
// The workbook lists every pre-printed waybill number from a fixed start row
// onward. Column A holds the number (often a merged A:B label) and column C
// the claim marker: an empty marker means the waybill is still available,
// anything else (canonically "TRANSFER") means it has been used. Trip details
// for a claimed waybill go into columns D through L of the same row.
//
// This package is the only code allowed to write the workbook. Writes check
// for a lock held by another process (a desktop spreadsheet application, a
// second copy of this tool) and are skipped rather than waited on when the
// workbook is busy. Save failures are retried a fixed number of times with a
// fixed delay.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"waybill/pkg/models"
)

// Ledger columns, 1-based.
const (
	ColNumber      = 1  // A
	ColMarker      = 3  // C
	ColTotalBlocks = 4  // D
	ColTripTicket  = 5  // E
	ColDate        = 7  // G
	ColDriver      = 9  // I
	ColHelper1     = 10 // J
	ColHelper2     = 11 // K
	ColOrigin      = 12 // L
)

// Source is the ledger contract the index and claim coordinator depend on.
type Source interface {
	// Scan returns every eligible waybill in ledger row order, unclaimed.
	Scan(ctx context.Context) ([]models.WaybillRecord, error)

	// ApplyClaim writes the claim marker for a single claimed record.
	ApplyClaim(ctx context.Context, rec models.WaybillRecord) error

	// ApplyClaims writes the claim marker into every listed row whose marker
	// is still empty and returns how many rows were written.
	ApplyClaims(ctx context.Context, recs []models.WaybillRecord) (int, error)

	// ApplyTrip writes the claim marker plus the trip's details.
	ApplyTrip(ctx context.Context, rec models.WaybillRecord, trip models.Trip) error
}

// Options configure a ledger backend.
type Options struct {
	// StartRow is the first data row; rows above it are headers.
	StartRow int

	// Worksheet selects the sheet to read. Empty means the active sheet.
	Worksheet string

	// WriteAttempts bounds save attempts per write.
	WriteAttempts int

	// WriteDelay is the fixed pause between save attempts.
	WriteDelay time.Duration
}

// DefaultOptions returns the layout of the printed WAYBILL RECORD workbook.
func DefaultOptions() Options {
	return Options{
		StartRow:      7,
		WriteAttempts: 5,
		WriteDelay:    time.Second,
	}
}

func (o Options) normalized() Options {
	if o.StartRow < 1 {
		o.StartRow = 1
	}
	if o.WriteAttempts < 1 {
		o.WriteAttempts = 1
	}
	if o.WriteDelay < 0 {
		o.WriteDelay = 0
	}
	return o
}

// validNumber reports whether s is a non-empty run of ASCII digits.
func validNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// eligible reports whether a claim marker cell leaves the row available.
func eligible(marker string) bool {
	return strings.TrimSpace(marker) == ""
}

// collect turns raw (number, marker) rows into records, skipping claimed
// rows, invalid numbers and repeated numbers.
func collect(rows []rawRow, log zerolog.Logger) []models.WaybillRecord {
	seen := make(map[string]struct{}, len(rows))
	records := make([]models.WaybillRecord, 0, len(rows))
	for _, row := range rows {
		if !eligible(row.marker) {
			continue
		}
		number := strings.TrimSpace(row.number)
		if !validNumber(number) {
			if number != "" {
				log.Debug().
					Int("row", row.index).
					Str("value", number).
					Msg("Skipping non-numeric waybill number")
			}
			continue
		}
		if _, dup := seen[number]; dup {
			log.Warn().
				Int("row", row.index).
				Str("waybill_no", number).
				Msg("Skipping repeated waybill number")
			continue
		}
		seen[number] = struct{}{}
		records = append(records, models.WaybillRecord{Number: number, Row: row.index})
	}
	return records
}

type rawRow struct {
	index  int
	number string
	marker string
}

// tripCells returns the column values ApplyTrip writes, keyed by column.
func tripCells(trip models.Trip) map[int]interface{} {
	date := ""
	if !trip.Date.IsZero() {
		date = trip.Date.Format(models.TripDateLayout)
	}
	return map[int]interface{}{
		ColMarker:      models.ClaimMarker,
		ColTotalBlocks: trip.TotalBlocks,
		ColTripTicket:  trip.TripTicket,
		ColDate:        date,
		ColDriver:      trip.DriverName,
		ColHelper1:     trip.Helper1,
		ColHelper2:     trip.Helper2,
		ColOrigin:      trip.Origin,
	}
}

// retry runs attempt up to opts.WriteAttempts times with a fixed delay.
// fatal errors returned by attempt stop the loop immediately.
func retry(ctx context.Context, op string, opts Options, log zerolog.Logger, attempt func() error) error {
	var lastErr error
	for i := 1; i <= opts.WriteAttempts; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if f, ok := err.(fatalError); ok {
			return f.err
		}
		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", i).
			Int("max_attempts", opts.WriteAttempts).
			Msg("Ledger save failed")
		if i == opts.WriteAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return newError(op, ErrTransientWriteFailure, fmt.Sprintf("canceled after %d attempts: %v", i, ctx.Err()))
		case <-time.After(opts.WriteDelay):
		}
	}
	return newError(op, ErrTransientWriteFailure, fmt.Sprintf("%d attempts, last error: %v", opts.WriteAttempts, lastErr))
}

// fatalError marks attempt failures that retrying cannot fix.
type fatalError struct{ err error }

func (f fatalError) Error() string { return f.err.Error() }
