package sheets

import (
	"context"

	"tally/internal/core"
)

// Ports for the spreadsheet mirror of the ledger.
type (
	TransactionWriter interface {
		// AppendTransaction adds one row for tx. Rows already present are not duplicated.
		AppendTransaction(ctx context.Context, tx core.Transaction) error
	}

	OwnerRowsDeleter interface {
		// DeleteOwnerRows removes every row belonging to ownerID and reports how many went.
		DeleteOwnerRows(ctx context.Context, ownerID string) (int, error)
	}

	LedgerExporter interface {
		TransactionWriter
		OwnerRowsDeleter
	}
)
