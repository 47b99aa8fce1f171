// Package index keeps a file-backed mirror of waybill claim state so the
// "next unclaimed waybill" question never needs a full ledger scan.
//
// The index is persisted twice, side by side: waybills.json is the form the
// index reloads from, waybills.csv is the same record sequence for people who
// want to open it in a spreadsheet. Every write replaces both files.
//
// Membership comes only from Rebuild, which replaces the index wholesale with
// the ledger's current eligible rows. MarkClaimed only ever sets a timestamp
// on an existing record. Read-modify-write cycles hold an in-process mutex
// and a cross-process lock file for their whole duration.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"waybill/internal/logger"
	"waybill/pkg/models"
)

var (
	// ErrIndexCorrupt is returned when the persisted index cannot be parsed.
	// Rebuild recovers from it.
	ErrIndexCorrupt = errors.New("waybill index is corrupt")

	// ErrNotFound is returned when a claim names a number the index does not hold.
	ErrNotFound = errors.New("waybill not found in index")

	// ErrBusy is returned when the index lock could not be taken before the
	// context ended.
	ErrBusy = errors.New("waybill index is locked")

	errNoIndex = errors.New("index not built")
)

const lockRetryDelay = 25 * time.Millisecond

// Scanner produces the ledger's eligible waybills.
type Scanner interface {
	Scan(ctx context.Context) ([]models.WaybillRecord, error)
}

// Index is the persisted waybill claim index.
type Index struct {
	source   Scanner
	jsonPath string
	csvPath  string

	mu   sync.Mutex
	lock *flock.Flock
	log  zerolog.Logger
}

// New creates an index persisted at jsonPath and csvPath.
func New(source Scanner, jsonPath, csvPath string) *Index {
	return &Index{
		source:   source,
		jsonPath: jsonPath,
		csvPath:  csvPath,
		lock:     flock.New(jsonPath + ".lock"),
		log:      logger.WithComponent("index"),
	}
}

// JSONPath returns the location of the reloadable index form.
func (ix *Index) JSONPath() string { return ix.jsonPath }

// CSVPath returns the location of the flat index form.
func (ix *Index) CSVPath() string { return ix.csvPath }

// Rebuild rescans the ledger and overwrites the index. It returns the number
// of records written.
func (ix *Index) Rebuild(ctx context.Context) (int, error) {
	var n int
	err := ix.withLock(ctx, func() error {
		var err error
		n, err = ix.rebuildLocked(ctx)
		return err
	})
	return n, err
}

// NextUnclaimed returns the first unclaimed number in ledger order. ok is
// false when every record is claimed or the index is empty. A missing index
// is built first.
func (ix *Index) NextUnclaimed(ctx context.Context) (number string, ok bool, err error) {
	err = ix.withLock(ctx, func() error {
		records, err := ix.loadOrBuild(ctx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if !rec.Claimed() {
				number, ok = rec.Number, true
				return nil
			}
		}
		return nil
	})
	return number, ok, err
}

// MarkClaimed sets the claim timestamp on number. fresh is true when this
// call made the claim. Claiming an already claimed record is a no-op that
// returns the record with its original timestamp and fresh false. An unknown
// number returns ErrNotFound and leaves the index files untouched.
func (ix *Index) MarkClaimed(ctx context.Context, number string, at time.Time) (claimed models.WaybillRecord, fresh bool, err error) {
	const op = "MarkClaimed"

	number = strings.TrimSpace(number)

	err = ix.withLock(ctx, func() error {
		records, err := ix.loadOrBuild(ctx)
		if err != nil {
			return err
		}

		pos := -1
		for i := range records {
			if records[i].Number == number {
				pos = i
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("%s: %w: %s", op, ErrNotFound, number)
		}

		if records[pos].Claimed() {
			ix.log.Debug().
				Str("waybill_no", number).
				Time("claimed_at", *records[pos].ClaimedAt).
				Msg("Waybill already claimed, keeping original timestamp")
			claimed = records[pos]
			return nil
		}

		ts := at
		records[pos].ClaimedAt = &ts
		if err := ix.persist(records); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		claimed, fresh = records[pos], true

		ix.log.Info().
			Str("waybill_no", number).
			Int("row", claimed.Row).
			Msg("Marked waybill as claimed")
		return nil
	})
	return claimed, fresh, err
}

// Records returns a snapshot of the persisted index, building it if needed.
func (ix *Index) Records(ctx context.Context) ([]models.WaybillRecord, error) {
	var records []models.WaybillRecord
	err := ix.withLock(ctx, func() error {
		var err error
		records, err = ix.loadOrBuild(ctx)
		return err
	})
	return records, err
}

func (ix *Index) rebuildLocked(ctx context.Context) (int, error) {
	const op = "Rebuild"

	records, err := ix.source.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: ledger scan failed: %w", op, err)
	}
	for i := range records {
		records[i].ClaimedAt = nil
	}
	if err := ix.persist(records); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	ix.log.Info().
		Int("records", len(records)).
		Str("json", ix.jsonPath).
		Str("csv", ix.csvPath).
		Msg("Rebuilt waybill index")

	return len(records), nil
}

func (ix *Index) loadOrBuild(ctx context.Context) ([]models.WaybillRecord, error) {
	records, err := ix.load()
	if errors.Is(err, errNoIndex) {
		ix.log.Info().Str("json", ix.jsonPath).Msg("No waybill index yet, building from ledger")
		if _, err := ix.rebuildLocked(ctx); err != nil {
			return nil, err
		}
		return ix.load()
	}
	return records, err
}

func (ix *Index) withLock(ctx context.Context, fn func() error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(ix.jsonPath), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	ok, err := ix.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	if !ok {
		return ErrBusy
	}
	defer func() {
		if err := ix.lock.Unlock(); err != nil {
			ix.log.Warn().Err(err).Msg("Failed to release index lock")
		}
	}()

	return fn()
}
