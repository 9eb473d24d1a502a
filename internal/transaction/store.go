package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const selectColumns = `id, stellar_account, amount, asset_code, status, created_at, updated_at,
	anchor_transaction_id, callback_type, callback_status`

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store persists transactions in Postgres.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Insert stores tx and returns the row as written by the database.
func (s *Store) Insert(ctx context.Context, tx *Transaction) (*Transaction, error) {
	query := `INSERT INTO transactions (id, stellar_account, amount, asset_code, status, created_at, updated_at,
		anchor_transaction_id, callback_type, callback_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + selectColumns

	var out Transaction
	err := s.db.QueryRowxContext(ctx, query,
		tx.ID,
		tx.StellarAccount,
		tx.Amount,
		tx.AssetCode,
		tx.Status,
		tx.CreatedAt,
		tx.UpdatedAt,
		tx.AnchorTransactionID,
		tx.CallbackType,
		tx.CallbackStatus,
	).StructScan(&out)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, ErrDuplicateAnchorID
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return &out, nil
}

// Get returns the transaction with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var out Transaction
	err := s.db.GetContext(ctx, &out, `SELECT `+selectColumns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &out, nil
}

// List returns transactions newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Transaction, error) {
	out := []Transaction{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+selectColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

// Search returns transactions matching every non-empty field of f, newest first.
func (s *Store) Search(ctx context.Context, f Filter) ([]Transaction, error) {
	query, args := buildSearchQuery(f)

	out := []Transaction{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search transactions: %w", err)
	}
	return out, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func buildSearchQuery(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("status", f.Status)
	add("asset_code", f.AssetCode)
	add("stellar_account", f.StellarAccount)

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM transactions`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	args = append(args, f.Limit, f.Offset)
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}
