package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/ledger"
	"tally/internal/metrics"
	"tally/internal/sheets"
)

// EventConsumer is implemented by *amqp.Client.
type EventConsumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
}

var _ EventConsumer = (*amqp.Client)(nil)

// ExportWorker mirrors ledger events into a spreadsheet.
type ExportWorker struct {
	ledger   ledger.Getter
	exporter sheets.LedgerExporter
	metrics  *metrics.Metrics
}

func NewExportWorker(store ledger.Getter, exporter sheets.LedgerExporter, m *metrics.Metrics) *ExportWorker {
	return &ExportWorker{
		ledger:   store,
		exporter: exporter,
		metrics:  m,
	}
}

// Run consumes events until ctx is cancelled.
func (w *ExportWorker) Run(ctx context.Context, consumer EventConsumer) error {
	return consumer.Consume(ctx, w.HandleEvent)
}

// HandleEvent applies one ledger event to the spreadsheet. A returned error
// requeues the event.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	var err error
	switch ev.Type {
	case amqp.EventTransactionRecorded:
		err = w.exportTransaction(ctx, ev)
	case amqp.EventLedgerCleared:
		err = w.deleteOwnerRows(ctx, ev)
	default:
		slog.WarnContext(ctx, "Ignoring unknown ledger event", "type", ev.Type)
		return nil
	}
	w.metrics.EventExported(ev.Type, err)
	return err
}

func (w *ExportWorker) exportTransaction(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"id", ev.TransactionID,
		"owner_id", ev.OwnerID)

	tx, err := w.ledger.Get(ctx, ev.OwnerID, ev.TransactionID)
	if errors.Is(err, ledger.ErrNotFound) {
		// Cleared before we got to it; nothing left to mirror.
		slog.WarnContext(ctx, "Transaction no longer in ledger, skipping export",
			"id", ev.TransactionID,
			"owner_id", ev.OwnerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from ledger: %w", err)
	}

	if err := w.exporter.AppendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Successfully exported transaction",
		"id", tx.ID,
		"entity", tx.Entity,
		"kind", tx.Kind,
		"amount", tx.Amount.String())
	return nil
}

func (w *ExportWorker) deleteOwnerRows(ctx context.Context, ev *amqp.LedgerEvent) error {
	n, err := w.exporter.DeleteOwnerRows(ctx, ev.OwnerID)
	if err != nil {
		return fmt.Errorf("delete owner rows: %w", err)
	}
	slog.InfoContext(ctx, "Removed cleared ledger from sheet",
		"owner_id", ev.OwnerID,
		"ledger_count", ev.Count,
		"rows_deleted", n)
	return nil
}

// StartupCheck prepares the sheet and verifies the ledger before consuming.
// The checks are independent and run concurrently.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if p, ok := w.ledger.(interface{ Ping(context.Context) error }); ok {
		g.Go(func() error {
			if err := p.Ping(gctx); err != nil {
				return fmt.Errorf("ledger ping: %w", err)
			}
			return nil
		})
	}
	if h, ok := w.exporter.(interface{ EnsureHeader(context.Context) error }); ok {
		g.Go(func() error {
			return h.EnsureHeader(gctx)
		})
	}
	if c, ok := w.exporter.(interface{ WarmCache(context.Context) error }); ok {
		g.Go(func() error {
			return c.WarmCache(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	slog.InfoContext(ctx, "Export worker startup check completed")
	return nil
}
