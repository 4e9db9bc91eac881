package transactions

import (
	"context"
	"errors"
	"fmt"

	"sliceit/internal/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const selectColumns = `
	txn_id, payer_uid, receiver_uid, expense_id, amount, currency, vpa,
	receiver_name, status, provider_ref, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, t *Transaction) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO transactions (
			txn_id, payer_uid, receiver_uid, expense_id, amount, currency, vpa,
			receiver_name, status
		) VALUES (
			$1, $2, $3, $4, $5,
			COALESCE(NULLIF($6,''),'INR'),
			$7, $8, $9::txn_status
		)
		RETURNING created_at, updated_at
	`, t.TxnID, t.PayerUID, t.ReceiverUID, t.ExpenseID, t.Amount, t.Currency,
		t.VPA, t.ReceiverName, t.Status).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, txnID string) (*Transaction, error) {
	var t Transaction
	err := r.q.QueryRow(ctx, `
		SELECT`+selectColumns+`
		FROM transactions WHERE txn_id = $1
	`, txnID).Scan(
		&t.TxnID, &t.PayerUID, &t.ReceiverUID, &t.ExpenseID, &t.Amount, &t.Currency, &t.VPA,
		&t.ReceiverName, &t.Status, &t.ProviderRef, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

// GetForUpdate loads a transaction and takes a row lock on it. Must run
// inside the transaction the caller got from dbx.Runner; the lock is
// what serializes racing callbacks for the same txn id.
func (r *Repository) GetForUpdate(ctx context.Context, q dbx.Querier, txnID string) (*Transaction, error) {
	var t Transaction
	err := q.QueryRow(ctx, `
		SELECT`+selectColumns+`
		FROM transactions WHERE txn_id = $1
		FOR UPDATE
	`, txnID).Scan(
		&t.TxnID, &t.PayerUID, &t.ReceiverUID, &t.ExpenseID, &t.Amount, &t.Currency, &t.VPA,
		&t.ReceiverName, &t.Status, &t.ProviderRef, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	return &t, nil
}

// SetStatus writes the new settlement status and the provider's own
// reference, refreshing updated_at.
func (r *Repository) SetStatus(ctx context.Context, q dbx.Querier, txnID string, status Status, providerRef *string) error {
	cmd, err := q.Exec(ctx, `
		UPDATE transactions
		   SET status = $2::txn_status,
		       provider_ref = COALESCE($3, provider_ref),
		       updated_at = now()
		 WHERE txn_id = $1
	`, txnID, status, providerRef)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByPayer returns the caller's payment attempts, newest first, with
// a total count for pagination.
func (r *Repository) ListByPayer(ctx context.Context, payerUID string, limit, offset int) ([]Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
		SELECT`+selectColumns+`,
		       COUNT(*) OVER() AS total_count
		FROM transactions
		WHERE payer_uid = $1
		ORDER BY created_at DESC, txn_id DESC
		LIMIT $2 OFFSET $3
	`, payerUID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var (
		out   []Transaction
		total int
	)
	for rows.Next() {
		var t Transaction
		var tc int
		if err := rows.Scan(
			&t.TxnID, &t.PayerUID, &t.ReceiverUID, &t.ExpenseID, &t.Amount, &t.Currency, &t.VPA,
			&t.ReceiverName, &t.Status, &t.ProviderRef, &t.CreatedAt, &t.UpdatedAt,
			&tc,
		); err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		if total == 0 {
			total = tc
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
