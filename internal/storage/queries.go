package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Transaction is a row of the transactions table.
type Transaction struct {
	Seq              int64
	ID               string
	OwnerID          string
	Entity           string
	Kind             string
	AmountHundredths int64
	Description      string
	CreatedAt        int64
}

const createTransaction = `
INSERT INTO transactions (id, owner_id, entity, kind, amount_hundredths, description, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING seq, id, owner_id, entity, kind, amount_hundredths, description, created_at
`

type CreateTransactionParams struct {
	ID               string
	OwnerID          string
	Entity           string
	Kind             string
	AmountHundredths int64
	Description      string
	CreatedAt        int64
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.ID,
		arg.OwnerID,
		arg.Entity,
		arg.Kind,
		arg.AmountHundredths,
		arg.Description,
		arg.CreatedAt,
	)
	var i Transaction
	err := row.Scan(
		&i.Seq,
		&i.ID,
		&i.OwnerID,
		&i.Entity,
		&i.Kind,
		&i.AmountHundredths,
		&i.Description,
		&i.CreatedAt,
	)
	return i, err
}

const listTransactions = `
SELECT seq, id, owner_id, entity, kind, amount_hundredths, description, created_at
FROM transactions
WHERE owner_id = ?
  AND (? = '' OR entity = ?)
  AND (? = '' OR kind = ?)
  AND (? = 0 OR created_at >= ?)
  AND (? = 0 OR created_at <= ?)
ORDER BY created_at ASC, seq ASC
`

type ListTransactionsParams struct {
	OwnerID string
	Entity  string
	Kind    string
	Since   int64
	Until   int64
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions,
		arg.OwnerID,
		arg.Entity, arg.Entity,
		arg.Kind, arg.Kind,
		arg.Since, arg.Since,
		arg.Until, arg.Until,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(
			&i.Seq,
			&i.ID,
			&i.OwnerID,
			&i.Entity,
			&i.Kind,
			&i.AmountHundredths,
			&i.Description,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTransaction = `
SELECT seq, id, owner_id, entity, kind, amount_hundredths, description, created_at
FROM transactions
WHERE owner_id = ? AND id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, ownerID, id string) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, ownerID, id)
	var i Transaction
	err := row.Scan(
		&i.Seq,
		&i.ID,
		&i.OwnerID,
		&i.Entity,
		&i.Kind,
		&i.AmountHundredths,
		&i.Description,
		&i.CreatedAt,
	)
	return i, err
}

const deleteOwnerTransactions = `
DELETE FROM transactions WHERE owner_id = ?
`

func (q *Queries) DeleteOwnerTransactions(ctx context.Context, ownerID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteOwnerTransactions, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertTrackedEntity = `
INSERT INTO tracked_entities (owner_id, entity, created_at)
VALUES (?, ?, ?)
ON CONFLICT (owner_id, entity) DO NOTHING
`

func (q *Queries) InsertTrackedEntity(ctx context.Context, ownerID, entity string, createdAt int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertTrackedEntity, ownerID, entity, createdAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteTrackedEntity = `
DELETE FROM tracked_entities WHERE owner_id = ? AND entity = ?
`

func (q *Queries) DeleteTrackedEntity(ctx context.Context, ownerID, entity string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTrackedEntity, ownerID, entity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listTrackedEntities = `
SELECT entity FROM tracked_entities WHERE owner_id = ? ORDER BY entity ASC
`

func (q *Queries) ListTrackedEntities(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listTrackedEntities, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []string{}
	for rows.Next() {
		var entity string
		if err := rows.Scan(&entity); err != nil {
			return nil, err
		}
		items = append(items, entity)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteOwnerTrackedEntities = `
DELETE FROM tracked_entities WHERE owner_id = ?
`

func (q *Queries) DeleteOwnerTrackedEntities(ctx context.Context, ownerID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteOwnerTrackedEntities, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
