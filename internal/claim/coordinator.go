// Package claim hands out waybill numbers and records their use.
//
// The coordinator composes the waybill index and the ledger workbook. The
// index is authoritative for whether a number may be handed out again, so a
// claim succeeds as soon as the index records it; writing the claim marker
// into the ledger is a best-effort projection whose failure is reported as a
// warning on the Outcome. Flush replays claims the ledger missed.
//
// A waybill carries at most one trip. Re-claiming a number is reported on the
// Outcome; attaching a trip to a number that is already claimed is refused.
package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"waybill/internal/index"
	"waybill/internal/ledger"
	"waybill/internal/logger"
	"waybill/pkg/models"
)

// ErrAlreadyClaimed is returned when trip details are offered for a waybill
// that has already been handed out.
var ErrAlreadyClaimed = errors.New("waybill already claimed")

// Index is the claim-state store the coordinator reads and mutates.
type Index interface {
	Rebuild(ctx context.Context) (int, error)
	NextUnclaimed(ctx context.Context) (string, bool, error)
	MarkClaimed(ctx context.Context, number string, at time.Time) (models.WaybillRecord, bool, error)
	Records(ctx context.Context) ([]models.WaybillRecord, error)
}

// Ledger is the write side of the authoritative workbook.
type Ledger interface {
	ApplyClaim(ctx context.Context, rec models.WaybillRecord) error
	ApplyClaims(ctx context.Context, recs []models.WaybillRecord) (int, error)
	ApplyTrip(ctx context.Context, rec models.WaybillRecord, trip models.Trip) error
}

// Request asks for one waybill to be claimed, optionally with trip details
// to record in its ledger row.
type Request struct {
	Number string
	Trip   *models.Trip
}

// Outcome reports a finished claim.
type Outcome struct {
	RequestID string
	Number    string
	Record    models.WaybillRecord

	// AlreadyClaimed is true when the number had been claimed before this
	// request; Record keeps the original claim time.
	AlreadyClaimed bool

	// LedgerWritten is true when the ledger row was updated.
	LedgerWritten bool

	// Warning holds the ledger failure when LedgerWritten is false. The
	// claim itself still stands.
	Warning error

	// Err is set only on outcomes delivered by ClaimAsync when the claim
	// itself failed.
	Err error
}

// Summary describes the index at a glance.
type Summary struct {
	Total     int
	Claimed   int
	Next      string
	Available bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the claim timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator is the entry point for handing out and finalising waybills.
type Coordinator struct {
	index  Index
	ledger Ledger
	now    func() time.Time
	log    zerolog.Logger

	wg sync.WaitGroup
}

// New creates a coordinator over idx and led.
func New(idx Index, led Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		index:  idx,
		ledger: led,
		now:    time.Now,
		log:    logger.WithComponent("claim"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetNext returns the next unclaimed waybill number. ok is false when none is
// available. A corrupt index is rebuilt once before giving up.
func (c *Coordinator) GetNext(ctx context.Context) (string, bool, error) {
	number, ok, err := c.index.NextUnclaimed(ctx)
	if errors.Is(err, index.ErrIndexCorrupt) {
		c.log.Warn().Err(err).Msg("Waybill index corrupt, rebuilding from ledger")
		if _, rerr := c.index.Rebuild(ctx); rerr != nil {
			return "", false, fmt.Errorf("rebuild corrupt index: %w", rerr)
		}
		return c.index.NextUnclaimed(ctx)
	}
	return number, ok, err
}

// Claim records number as used in the index, then in the ledger.
func (c *Coordinator) Claim(ctx context.Context, number string) (*Outcome, error) {
	return c.claim(ctx, Request{Number: number})
}

// ClaimTrip claims trip's waybill and writes the trip details to its row.
func (c *Coordinator) ClaimTrip(ctx context.Context, trip models.Trip) (*Outcome, error) {
	return c.claim(ctx, Request{Number: trip.WaybillNo, Trip: &trip})
}

// ClaimAsync processes reqs in order on a background goroutine. The returned
// channel delivers one Outcome per request and is closed when all are done.
func (c *Coordinator) ClaimAsync(ctx context.Context, reqs ...Request) <-chan Outcome {
	results := make(chan Outcome, len(reqs))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(results)

		for _, req := range reqs {
			out, err := c.claim(ctx, req)
			if err != nil {
				results <- Outcome{Number: req.Number, Err: err}
				continue
			}
			results <- *out
		}
	}()

	return results
}

// CheckAvailable reports whether every number is in the index and unclaimed.
// It returns an error wrapping index.ErrNotFound or ErrAlreadyClaimed for the
// first number that is not.
func (c *Coordinator) CheckAvailable(ctx context.Context, numbers ...string) error {
	records, err := c.index.Records(ctx)
	if err != nil {
		return err
	}

	byNumber := make(map[string]models.WaybillRecord, len(records))
	for _, rec := range records {
		byNumber[rec.Number] = rec
	}

	for _, n := range numbers {
		n = strings.TrimSpace(n)
		rec, ok := byNumber[n]
		if !ok {
			return fmt.Errorf("%w: %s", index.ErrNotFound, n)
		}
		if rec.Claimed() {
			return fmt.Errorf("%w: %s at %s", ErrAlreadyClaimed, n, rec.ClaimedAt.Format(time.RFC3339))
		}
	}
	return nil
}

// Wait blocks until every ClaimAsync batch has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Refresh rebuilds the index from the ledger. Claims the ledger never
// received are dropped; run Flush first to keep them.
func (c *Coordinator) Refresh(ctx context.Context) (int, error) {
	return c.index.Rebuild(ctx)
}

// Flush writes the claim marker for every claimed index record whose ledger
// row is still unmarked, and returns how many rows it wrote.
func (c *Coordinator) Flush(ctx context.Context) (int, error) {
	records, err := c.index.Records(ctx)
	if err != nil {
		return 0, fmt.Errorf("load index: %w", err)
	}

	var claimed []models.WaybillRecord
	for _, rec := range records {
		if rec.Claimed() {
			claimed = append(claimed, rec)
		}
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	written, err := c.ledger.ApplyClaims(ctx, claimed)
	if err != nil {
		c.log.Warn().
			Err(err).
			Int("claimed", len(claimed)).
			Msg("Could not flush claims to ledger")
		return 0, err
	}

	c.log.Info().
		Int("claimed", len(claimed)).
		Int("written", written).
		Msg("Flushed claims to ledger")
	return written, nil
}

// Summary reports index totals and the next available number.
func (c *Coordinator) Summary(ctx context.Context) (Summary, error) {
	records, err := c.index.Records(ctx)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Total: len(records)}
	for _, rec := range records {
		if rec.Claimed() {
			s.Claimed++
			continue
		}
		if !s.Available {
			s.Next, s.Available = rec.Number, true
		}
	}
	return s, nil
}

func (c *Coordinator) claim(ctx context.Context, req Request) (*Outcome, error) {
	requestID := uuid.NewString()
	log := logger.WithWaybill(logger.WithRequestID(c.log, requestID), req.Number)

	rec, fresh, err := c.index.MarkClaimed(ctx, req.Number, c.now())
	if err != nil {
		log.Error().Err(err).Msg("Claim rejected by index")
		return nil, err
	}

	if !fresh && req.Trip != nil {
		err := fmt.Errorf("%w: %s at %s", ErrAlreadyClaimed, rec.Number, rec.ClaimedAt.Format(time.RFC3339))
		log.Error().Err(err).Msg("Trip claim rejected")
		return nil, err
	}

	out := &Outcome{
		RequestID:      requestID,
		Number:         rec.Number,
		Record:         rec,
		AlreadyClaimed: !fresh,
	}
	if !fresh {
		log.Info().Time("claimed_at", *rec.ClaimedAt).Msg("Waybill was already claimed")
	}

	var ledgerErr error
	if req.Trip != nil {
		ledgerErr = c.ledger.ApplyTrip(ctx, rec, *req.Trip)
	} else {
		ledgerErr = c.ledger.ApplyClaim(ctx, rec)
	}

	if ledgerErr != nil {
		out.Warning = ledgerErr
		log.Warn().
			Err(ledgerErr).
			Bool("flushable", ledger.Retryable(ledgerErr)).
			Msg("Claim recorded in index but ledger not updated")
		return out, nil
	}

	out.LedgerWritten = true
	log.Info().Int("row", rec.Row).Msg("Claimed waybill")
	return out, nil
}
