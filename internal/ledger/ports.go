package ledger

import (
	"context"
	"errors"

	"tally/internal/core"
)

// ErrNotFound is returned by Get when the owner has no such transaction.
var ErrNotFound = errors.New("transaction not found")

// Ports implemented by ledger backends. Every call is scoped to one owner.
type (
	Appender interface {
		// Append validates and durably stores a new transaction.
		Append(ctx context.Context, ownerID, entity string, kind core.Kind, amount core.Amount, description string) (core.Transaction, error)
	}

	Scanner interface {
		// Scan returns the owner's transactions matching f, oldest first.
		Scan(ctx context.Context, ownerID string, f core.Filter) ([]core.Transaction, error)
	}

	Clearer interface {
		// Clear atomically deletes every transaction of the owner.
		Clear(ctx context.Context, ownerID string) (int, error)
	}

	Getter interface {
		Get(ctx context.Context, ownerID, id string) (core.Transaction, error)
	}

	// Tracker keeps each owner's personal list of configured entities. The
	// list never widens the entity set and never gates appends.
	Tracker interface {
		// Track adds entity to the owner's list and reports whether it was new.
		Track(ctx context.Context, ownerID, entity string) (bool, error)
		// Untrack removes entity and reports whether it was on the list.
		Untrack(ctx context.Context, ownerID, entity string) (bool, error)
		// Tracked returns the owner's list sorted by name.
		Tracked(ctx context.Context, ownerID string) ([]string, error)
		// ClearTracked empties the owner's list. Transactions are untouched.
		ClearTracked(ctx context.Context, ownerID string) (int, error)
	}

	Store interface {
		Appender
		Scanner
		Clearer
		Getter
		Tracker
	}
)
