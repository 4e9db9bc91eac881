package expenses

import (
	"context"
	"errors"
	"fmt"

	"sliceit/internal/dbx"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("expense not found")

// PaymentStatusSettled is the only payment status this backend ever
// writes on an expense. Expense creation and every other mutation
// belong to the mobile app's sync layer.
const PaymentStatusSettled = "SETTLED"

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

// GetDescription returns the expense's free-text description, which
// payment intents prefer over the raw id in their note line.
func (r *Repository) GetDescription(ctx context.Context, expenseID string) (string, error) {
	var desc string
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(description, '') FROM expenses WHERE id = $1
	`, expenseID).Scan(&desc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get expense description: %w", err)
	}
	return desc, nil
}

// MarkSettled records that the expense was paid through the given
// transaction. Must run inside the same database transaction as the
// status write on the transaction row, so the two commit together.
func (r *Repository) MarkSettled(ctx context.Context, q dbx.Querier, expenseID, txnID string) error {
	cmd, err := q.Exec(ctx, `
		UPDATE expenses
		   SET payment_status = $2,
		       settled_at = now(),
		       transaction_id = $3,
		       updated_at = now()
		 WHERE id = $1
	`, expenseID, PaymentStatusSettled, txnID)
	if err != nil {
		return fmt.Errorf("mark expense settled: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
