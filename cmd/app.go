package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"waybill/internal/claim"
	"waybill/internal/config"
	"waybill/internal/index"
	"waybill/internal/ledger"
	"waybill/internal/reference"
)

// app bundles the components a command works with.
type app struct {
	cfg         *config.Config
	ledger      ledger.Source
	index       *index.Index
	coordinator *claim.Coordinator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	src, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	idx := index.New(src, cfg.IndexJSONPath(), cfg.IndexCSVPath())
	return &app{
		cfg:         cfg,
		ledger:      src,
		index:       idx,
		coordinator: claim.New(idx, src),
	}, nil
}

func openLedger(ctx context.Context, cfg *config.Config) (ledger.Source, error) {
	opts := ledger.Options{
		StartRow:      cfg.LedgerStartRow,
		Worksheet:     cfg.LedgerWorksheet,
		WriteAttempts: cfg.LedgerWriteAttempts,
		WriteDelay:    cfg.LedgerWriteDelay,
	}

	switch cfg.LedgerBackend {
	case config.BackendSheets:
		src, err := ledger.NewSheets(ctx, cfg.LedgerSheetURL, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return ledger.NewXLSX(cfg.LedgerPath, opts), nil
	}
}

func newDirectory(cfg *config.Config) *reference.Directory {
	return reference.NewDirectory(cfg.ReferencePath, cfg.ReferenceCacheTTL)
}

// commandContext returns a context bounded by the --timeout flag and
// canceled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command, log zerolog.Logger) (context.Context, context.CancelFunc) {
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	if timeoutSecs <= 0 {
		timeoutSecs = 120
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleLedgerError turns ledger and index failures into operator guidance.
func handleLedgerError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Waybill operation failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("operation timed out. Try again or raise --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("operation was canceled")
	case errors.Is(err, ledger.ErrSourceNotFound):
		return fmt.Errorf("waybill ledger not found. Check LEDGER_PATH points at the WAYBILL RECORD workbook: %w", err)
	case errors.Is(err, ledger.ErrDependencyMissing):
		return fmt.Errorf("ledger backend unavailable. For the sheets backend set one of:\n\n" +
			"1. GOOGLE_APPLICATION_CREDENTIALS with the path to a service account JSON file\n" +
			"2. GOOGLE_CREDENTIALS with the inline JSON\n\n" +
			"Or set LEDGER_BACKEND=xlsx to use a local workbook.\n\n" +
			"Original error: %v", err)
	case errors.Is(err, ledger.ErrLockedResource):
		return fmt.Errorf("the ledger workbook is open in another program. Close it and run \"waybill flush\"")
	case errors.Is(err, ledger.ErrTransientWriteFailure):
		return fmt.Errorf("could not save the ledger workbook. Run \"waybill flush\" to retry: %w", err)
	case errors.Is(err, claim.ErrAlreadyClaimed):
		return fmt.Errorf("%w. Each waybill carries one trip; leave waybill_no empty to use the next free one", err)
	case errors.Is(err, index.ErrNotFound):
		return fmt.Errorf("%w. Run \"waybill refresh\" if the ledger has new waybills", err)
	case errors.Is(err, index.ErrIndexCorrupt):
		return fmt.Errorf("waybill index is damaged. Run \"waybill refresh\" to rebuild it from the ledger: %w", err)
	case errors.Is(err, index.ErrBusy):
		return fmt.Errorf("another waybill command is using the index. Try again in a moment")
	default:
		return err
	}
}

// ledgerHint describes a claim whose ledger write was skipped.
func ledgerHint(out *claim.Outcome) string {
	switch {
	case out.Warning == nil:
		return ""
	case errors.Is(out.Warning, ledger.ErrLockedResource):
		return "ledger is open in another program; close it and run \"waybill flush\""
	case errors.Is(out.Warning, ledger.ErrTransientWriteFailure):
		return "ledger could not be saved; run \"waybill flush\" to retry"
	default:
		return fmt.Sprintf("ledger not updated: %v", out.Warning)
	}
}
