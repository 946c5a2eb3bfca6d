package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db       *sql.DB
	queries  *Queries
	entities core.EntitySet
	now      func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, entities core.EntitySet) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers; appends queue on it rather than racing for the file lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:       db,
		queries:  New(db),
		entities: entities,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append implements ledger.Appender
func (r *SQLiteRepository) Append(ctx context.Context, ownerID, entity string, kind core.Kind, amount core.Amount, description string) (core.Transaction, error) {
	d, err := ledger.Validate(r.entities, ownerID, entity, kind, amount, description)
	if err != nil {
		return core.Transaction{}, err
	}

	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:               uuid.NewString(),
		OwnerID:          d.OwnerID,
		Entity:           d.Entity,
		Kind:             string(d.Kind),
		AmountHundredths: d.Amount.Hundredths,
		Description:      d.Description,
		CreatedAt:        r.now().UnixNano(),
	})
	if err != nil {
		return core.Transaction{}, core.StorageError("create transaction", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"owner_id", row.OwnerID,
		"entity", row.Entity,
		"kind", row.Kind,
		"amount_hundredths", row.AmountHundredths)

	return toCore(row), nil
}

// Scan implements ledger.Scanner
func (r *SQLiteRepository) Scan(ctx context.Context, ownerID string, f core.Filter) ([]core.Transaction, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	f, err := ledger.CanonicalFilter(r.entities, f)
	if err != nil {
		return nil, err
	}

	params := ListTransactionsParams{
		OwnerID: ownerID,
		Entity:  f.Entity,
		Kind:    string(f.Kind),
	}
	if !f.Since.IsZero() {
		params.Since = f.Since.UnixNano()
	}
	if !f.Until.IsZero() {
		params.Until = f.Until.UnixNano()
	}

	rows, err := r.queries.ListTransactions(ctx, params)
	if err != nil {
		return nil, core.StorageError("list transactions", err)
	}

	out := make([]core.Transaction, len(rows))
	for i, row := range rows {
		out[i] = toCore(row)
	}
	return out, nil
}

// Clear implements ledger.Clearer. The delete runs in its own transaction so a
// concurrent scan sees either the whole ledger or none of it.
func (r *SQLiteRepository) Clear(ctx context.Context, ownerID string) (int, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.StorageError("begin clear", err)
	}
	defer tx.Rollback()

	n, err := r.queries.WithTx(tx).DeleteOwnerTransactions(ctx, ownerID)
	if err != nil {
		return 0, core.StorageError("delete owner transactions", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, core.StorageError("commit clear", err)
	}

	slog.InfoContext(ctx, "Ledger cleared", "owner_id", ownerID, "deleted", n)
	return int(n), nil
}

// Get implements ledger.Getter
func (r *SQLiteRepository) Get(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}
	row, err := r.queries.GetTransaction(ctx, ownerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.StorageError("get transaction", err)
	}
	return toCore(row), nil
}

// Track implements ledger.Tracker
func (r *SQLiteRepository) Track(ctx context.Context, ownerID, entity string) (bool, error) {
	name, err := ledger.ValidateTracked(r.entities, ownerID, entity)
	if err != nil {
		return false, err
	}
	n, err := r.queries.InsertTrackedEntity(ctx, ownerID, name, r.now().UnixNano())
	if err != nil {
		return false, core.StorageError("track entity", err)
	}
	return n > 0, nil
}

// Untrack implements ledger.Tracker
func (r *SQLiteRepository) Untrack(ctx context.Context, ownerID, entity string) (bool, error) {
	name, err := ledger.ValidateTracked(r.entities, ownerID, entity)
	if err != nil {
		return false, err
	}
	n, err := r.queries.DeleteTrackedEntity(ctx, ownerID, name)
	if err != nil {
		return false, core.StorageError("untrack entity", err)
	}
	return n > 0, nil
}

// Tracked implements ledger.Tracker
func (r *SQLiteRepository) Tracked(ctx context.Context, ownerID string) ([]string, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	names, err := r.queries.ListTrackedEntities(ctx, ownerID)
	if err != nil {
		return nil, core.StorageError("list tracked entities", err)
	}
	return names, nil
}

// ClearTracked implements ledger.Tracker
func (r *SQLiteRepository) ClearTracked(ctx context.Context, ownerID string) (int, error) {
	if err := core.ValidateOwner(ownerID); err != nil {
		return 0, err
	}
	n, err := r.queries.DeleteOwnerTrackedEntities(ctx, ownerID)
	if err != nil {
		return 0, core.StorageError("clear tracked entities", err)
	}
	return int(n), nil
}

func toCore(row Transaction) core.Transaction {
	return core.Transaction{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Entity:      row.Entity,
		Kind:        core.Kind(row.Kind),
		Amount:      core.Amount{Hundredths: row.AmountHundredths},
		Description: row.Description,
		Timestamp:   time.Unix(0, row.CreatedAt).UTC(),
	}
}
