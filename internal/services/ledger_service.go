package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/metrics"
)

// EventPublisher is implemented by *amqp.Client.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, tx core.Transaction) error
	PublishLedgerCleared(ctx context.Context, ownerID string, count int) error
}

var _ EventPublisher = (*amqp.Client)(nil)

// LedgerService wraps a ledger.Store: writes go to the store first, and a
// ledger event is published afterwards. A failed publish is logged and never
// fails the write.
type LedgerService struct {
	store     ledger.Store
	publisher EventPublisher
	metrics   *metrics.Metrics
}

var _ ledger.Store = (*LedgerService)(nil)

// NewLedgerService builds the service. publisher and m may be nil.
func NewLedgerService(store ledger.Store, publisher EventPublisher, m *metrics.Metrics) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		metrics:   m,
	}
}

func (s *LedgerService) Append(ctx context.Context, ownerID, entity string, kind core.Kind, amount core.Amount, description string) (core.Transaction, error) {
	tx, err := s.store.Append(ctx, ownerID, entity, kind, amount, description)
	if err != nil {
		return core.Transaction{}, err
	}
	s.metrics.TransactionRecorded(tx.Entity, tx.Kind.String())

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping transaction event")
		return tx, nil
	}
	err = s.publisher.PublishTransactionRecorded(ctx, tx)
	s.metrics.EventPublished(amqp.EventTransactionRecorded, err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"id", tx.ID,
			"owner_id", tx.OwnerID,
			"error", err)
	}
	return tx, nil
}

func (s *LedgerService) Scan(ctx context.Context, ownerID string, f core.Filter) ([]core.Transaction, error) {
	return s.store.Scan(ctx, ownerID, f)
}

func (s *LedgerService) Get(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	return s.store.Get(ctx, ownerID, id)
}

func (s *LedgerService) Clear(ctx context.Context, ownerID string) (int, error) {
	n, err := s.store.Clear(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	s.metrics.LedgerCleared()

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping clear event")
		return n, nil
	}
	err = s.publisher.PublishLedgerCleared(ctx, ownerID, n)
	s.metrics.EventPublished(amqp.EventLedgerCleared, err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish clear event",
			"owner_id", ownerID,
			"count", n,
			"error", err)
	}
	return n, nil
}

// Track, Untrack, Tracked and ClearTracked touch only the owner's entity list,
// which has no ledger events.
func (s *LedgerService) Track(ctx context.Context, ownerID, entity string) (bool, error) {
	return s.store.Track(ctx, ownerID, entity)
}

func (s *LedgerService) Untrack(ctx context.Context, ownerID, entity string) (bool, error) {
	return s.store.Untrack(ctx, ownerID, entity)
}

func (s *LedgerService) Tracked(ctx context.Context, ownerID string) ([]string, error) {
	return s.store.Tracked(ctx, ownerID)
}

func (s *LedgerService) ClearTracked(ctx context.Context, ownerID string) (int, error) {
	return s.store.ClearTracked(ctx, ownerID)
}

// Ping reports whether the underlying store is reachable. Stores without a
// health check are always ready.
func (s *LedgerService) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the store and the publisher when they support it.
func (s *LedgerService) Close() error {
	var errs []error

	if c, ok := s.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
