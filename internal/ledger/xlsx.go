package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"waybill/internal/logger"
	"waybill/pkg/models"
)

// XLSX is a Source backed by a local or shared .xlsx workbook.
type XLSX struct {
	path string
	opts Options
	log  zerolog.Logger

	// save persists the workbook; replaced in tests to simulate failures.
	save func(f *excelize.File) error
}

// NewXLSX creates a ledger over the workbook at path.
func NewXLSX(path string, opts Options) *XLSX {
	return &XLSX{
		path: path,
		opts: opts.normalized(),
		log:  logger.WithComponent("ledger-xlsx"),
		save: func(f *excelize.File) error { return f.Save() },
	}
}

// Path returns the workbook location.
func (x *XLSX) Path() string {
	return x.path
}

// Scan reads the eligible waybills from the workbook.
func (x *XLSX) Scan(ctx context.Context) ([]models.WaybillRecord, error) {
	const op = "Scan"

	if err := x.checkExists(op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(op, err, "scan canceled")
	}

	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, newError(op, err, "failed to open workbook")
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			x.log.Warn().Err(closeErr).Msg("Failed to close workbook")
		}
	}()

	sheet, err := x.sheet(f)
	if err != nil {
		return nil, newError(op, err, "failed to select worksheet")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, newError(op, err, fmt.Sprintf("failed to read worksheet %q", sheet))
	}

	var raw []rawRow
	for i := x.opts.StartRow - 1; i < len(rows); i++ {
		raw = append(raw, rawRow{
			index:  i + 1,
			number: column(rows[i], ColNumber),
			marker: column(rows[i], ColMarker),
		})
	}

	records := collect(raw, x.log)
	x.log.Info().
		Str("path", x.path).
		Str("sheet", sheet).
		Int("rows_scanned", len(raw)).
		Int("eligible", len(records)).
		Msg("Scanned waybill ledger")

	return records, nil
}

// ApplyClaim marks rec's row as used.
func (x *XLSX) ApplyClaim(ctx context.Context, rec models.WaybillRecord) error {
	_, err := x.applyClaims(ctx, "ApplyClaim", []models.WaybillRecord{rec})
	return err
}

// ApplyClaims marks every listed row whose marker is still empty.
func (x *XLSX) ApplyClaims(ctx context.Context, recs []models.WaybillRecord) (int, error) {
	return x.applyClaims(ctx, "ApplyClaims", recs)
}

func (x *XLSX) applyClaims(ctx context.Context, op string, recs []models.WaybillRecord) (int, error) {
	for _, rec := range recs {
		if rec.Row < 1 {
			return 0, newError(op, ErrInvalidRow, fmt.Sprintf("waybill %s", rec.Number))
		}
	}

	return x.write(ctx, op, func(f *excelize.File, sheet string) (int, error) {
		written := 0
		for _, rec := range recs {
			cell, err := excelize.CoordinatesToCellName(ColMarker, rec.Row)
			if err != nil {
				return 0, err
			}
			current, err := f.GetCellValue(sheet, cell)
			if err != nil {
				return 0, err
			}
			if !eligible(current) {
				continue
			}
			if err := f.SetCellValue(sheet, cell, models.ClaimMarker); err != nil {
				return 0, err
			}
			written++
		}
		return written, nil
	})
}

// ApplyTrip marks rec's row as used and fills in the trip details.
func (x *XLSX) ApplyTrip(ctx context.Context, rec models.WaybillRecord, trip models.Trip) error {
	const op = "ApplyTrip"

	if rec.Row < 1 {
		return newError(op, ErrInvalidRow, fmt.Sprintf("waybill %s", rec.Number))
	}

	_, err := x.write(ctx, op, func(f *excelize.File, sheet string) (int, error) {
		for col, value := range tripCells(trip) {
			cell, err := excelize.CoordinatesToCellName(col, rec.Row)
			if err != nil {
				return 0, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return 0, err
			}
		}
		return 1, nil
	})
	return err
}

// write runs the lock check, open, mutate, save protocol shared by all writes.
// mutate returns how many rows it changed; zero skips the save.
func (x *XLSX) write(ctx context.Context, op string, mutate func(f *excelize.File, sheet string) (int, error)) (int, error) {
	if err := x.checkExists(op); err != nil {
		return 0, err
	}

	if locked, reason := x.heldElsewhere(); locked {
		x.log.Warn().
			Str("path", x.path).
			Str("reason", reason).
			Msg("Ledger workbook appears locked, skipping write")
		return 0, newError(op, ErrLockedResource, reason)
	}

	written := 0
	err := retry(ctx, op, x.opts, x.log, func() error {
		f, err := excelize.OpenFile(x.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fatalError{newError(op, ErrSourceNotFound, x.path)}
			}
			return err
		}
		defer f.Close()

		sheet, err := x.sheet(f)
		if err != nil {
			return fatalError{newError(op, err, "failed to select worksheet")}
		}

		n, err := mutate(f, sheet)
		if err != nil {
			return fatalError{newError(op, err, "failed to update cells")}
		}
		if n == 0 {
			written = 0
			return nil
		}
		if err := x.save(f); err != nil {
			return err
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	x.log.Info().
		Str("op", op).
		Int("rows_written", written).
		Msg("Updated waybill ledger")

	return written, nil
}

// heldElsewhere reports whether another process holds the workbook. It never blocks:
// a non-blocking advisory lock is taken and released, then the file is
// opened for append, which fails on platforms with mandatory share locks.
func (x *XLSX) heldElsewhere() (bool, string) {
	lock := flock.New(x.path)
	ok, err := lock.TryLock()
	if err != nil {
		return true, fmt.Sprintf("lock check failed: %v", err)
	}
	if !ok {
		return true, "workbook is held by another process"
	}
	if err := lock.Unlock(); err != nil {
		x.log.Debug().Err(err).Msg("Failed to release lock check")
	}

	fh, err := os.OpenFile(x.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return true, fmt.Sprintf("workbook not writable: %v", err)
	}
	_ = fh.Close()
	return false, ""
}

func (x *XLSX) checkExists(op string) error {
	info, err := os.Stat(x.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newError(op, ErrSourceNotFound, x.path)
		}
		return newError(op, err, "failed to stat workbook")
	}
	if info.IsDir() {
		return newError(op, ErrSourceNotFound, fmt.Sprintf("%s is a directory", x.path))
	}
	return nil
}

func (x *XLSX) sheet(f *excelize.File) (string, error) {
	if x.opts.Worksheet != "" {
		idx, err := f.GetSheetIndex(x.opts.Worksheet)
		if err != nil {
			return "", err
		}
		if idx < 0 {
			return "", fmt.Errorf("worksheet %q not found", x.opts.Worksheet)
		}
		return x.opts.Worksheet, nil
	}
	name := f.GetSheetName(f.GetActiveSheetIndex())
	if name == "" {
		return "", fmt.Errorf("workbook has no active worksheet")
	}
	return name, nil
}

// column returns the 1-based column value of a row, or "" when absent.
func column(row []string, col int) string {
	if col-1 < len(row) {
		return row[col-1]
	}
	return ""
}
