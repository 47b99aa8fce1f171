package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"waybill/internal/logger"
	"waybill/internal/sheets"
	"waybill/pkg/models"
)

// SheetClient is the subset of the Google Sheets service the ledger needs.
type SheetClient interface {
	ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error)
	UpdateCells(ctx context.Context, updates []sheets.CellUpdate) error
}

// Sheets is a Source backed by a Google Sheets copy of the waybill ledger.
// Google serialises concurrent edits, so there is no lock check; API failures
// are retried like save failures.
type Sheets struct {
	client SheetClient
	sheet  string
	opts   Options
	log    zerolog.Logger
}

// NewSheets connects to the spreadsheet at sheetURL.
func NewSheets(ctx context.Context, sheetURL string, opts Options) (*Sheets, error) {
	const op = "NewSheets"

	svc, err := sheets.NewSheetsService(ctx, sheetURL)
	if err != nil {
		if errors.Is(err, sheets.ErrMissingCredentials) {
			return nil, newError(op, ErrDependencyMissing, err.Error())
		}
		return nil, newError(op, err, "failed to create sheets client")
	}

	worksheet := opts.Worksheet
	if worksheet == "" {
		worksheet, err = svc.FirstSheetTitle(ctx)
		if err != nil {
			return nil, newError(op, err, "failed to resolve worksheet")
		}
	}

	return NewSheetsWithClient(svc, worksheet, opts), nil
}

// NewSheetsWithClient creates a Sheets ledger with an explicit client (for testing).
func NewSheetsWithClient(client SheetClient, worksheet string, opts Options) *Sheets {
	return &Sheets{
		client: client,
		sheet:  worksheet,
		opts:   opts.normalized(),
		log:    logger.WithComponent("ledger-sheets"),
	}
}

// Scan reads the eligible waybills from columns A to C.
func (s *Sheets) Scan(ctx context.Context) ([]models.WaybillRecord, error) {
	const op = "Scan"

	values, err := s.client.ReadRange(ctx, s.rangeFrom("A", "C"))
	if err != nil {
		return nil, newError(op, err, "failed to read ledger range")
	}

	raw := make([]rawRow, 0, len(values))
	for i, row := range values {
		raw = append(raw, rawRow{
			index:  s.opts.StartRow + i,
			number: cellString(row, ColNumber-1),
			marker: cellString(row, ColMarker-1),
		})
	}

	records := collect(raw, s.log)
	s.log.Info().
		Str("sheet", s.sheet).
		Int("rows_scanned", len(raw)).
		Int("eligible", len(records)).
		Msg("Scanned waybill ledger")

	return records, nil
}

// ApplyClaim marks rec's row as used.
func (s *Sheets) ApplyClaim(ctx context.Context, rec models.WaybillRecord) error {
	_, err := s.applyClaims(ctx, "ApplyClaim", []models.WaybillRecord{rec})
	return err
}

// ApplyClaims marks every listed row whose marker is still empty.
func (s *Sheets) ApplyClaims(ctx context.Context, recs []models.WaybillRecord) (int, error) {
	return s.applyClaims(ctx, "ApplyClaims", recs)
}

func (s *Sheets) applyClaims(ctx context.Context, op string, recs []models.WaybillRecord) (int, error) {
	for _, rec := range recs {
		if rec.Row < s.opts.StartRow {
			return 0, newError(op, ErrInvalidRow, fmt.Sprintf("waybill %s", rec.Number))
		}
	}

	markers, err := s.client.ReadRange(ctx, s.rangeFrom("C", "C"))
	if err != nil {
		return 0, newError(op, err, "failed to read claim markers")
	}

	var updates []sheets.CellUpdate
	for _, rec := range recs {
		idx := rec.Row - s.opts.StartRow
		if idx < len(markers) && !eligible(cellString(markers[idx], 0)) {
			continue
		}
		updates = append(updates, sheets.CellUpdate{
			Range: s.cellRange(ColMarker, rec.Row),
			Value: models.ClaimMarker,
		})
	}
	if len(updates) == 0 {
		return 0, nil
	}

	if err := s.update(ctx, op, updates); err != nil {
		return 0, err
	}
	return len(updates), nil
}

// ApplyTrip marks rec's row as used and fills in the trip details.
func (s *Sheets) ApplyTrip(ctx context.Context, rec models.WaybillRecord, trip models.Trip) error {
	const op = "ApplyTrip"

	if rec.Row < s.opts.StartRow {
		return newError(op, ErrInvalidRow, fmt.Sprintf("waybill %s", rec.Number))
	}

	cells := tripCells(trip)
	updates := make([]sheets.CellUpdate, 0, len(cells))
	for col, value := range cells {
		updates = append(updates, sheets.CellUpdate{Range: s.cellRange(col, rec.Row), Value: value})
	}
	return s.update(ctx, op, updates)
}

func (s *Sheets) update(ctx context.Context, op string, updates []sheets.CellUpdate) error {
	return retry(ctx, op, s.opts, s.log, func() error {
		return s.client.UpdateCells(ctx, updates)
	})
}

func (s *Sheets) rangeFrom(fromCol, toCol string) string {
	return fmt.Sprintf("%s!%s%d:%s", quoteSheet(s.sheet), fromCol, s.opts.StartRow, toCol)
}

func (s *Sheets) cellRange(col, row int) string {
	// col and row are always positive here, so the conversion cannot fail
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return quoteSheet(s.sheet) + "!" + cell
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// cellString safely extracts a string value from a row slice
func cellString(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[index]))
}
