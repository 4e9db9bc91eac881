package settlement

import (
	"context"
	"errors"
	"fmt"

	"sliceit/internal/dbx"
	"sliceit/internal/domain/transactions"
	"sliceit/internal/domain/users"

	"go.uber.org/zap"
)

var (
	// ErrReceiverNotFound: the receiver uid does not resolve to a profile.
	ErrReceiverNotFound = errors.New("receiver profile not found")
	// ErrNoLinkedVPA: the receiver exists but never linked a payment
	// address, so there is nowhere to push the money.
	ErrNoLinkedVPA = errors.New("receiver has no linked payment address")
	// ErrUnknownTransaction: a callback referenced a txn id we never
	// issued. The whole reconciliation aborts; a record is never
	// fabricated for it.
	ErrUnknownTransaction = errors.New("unknown transaction id")
)

// TransactionStore is the slice of the transactions repository the
// service needs. Methods that take a dbx.Querier participate in the
// reconciliation's atomic unit.
type TransactionStore interface {
	Create(ctx context.Context, t *transactions.Transaction) error
	GetForUpdate(ctx context.Context, q dbx.Querier, txnID string) (*transactions.Transaction, error)
	SetStatus(ctx context.Context, q dbx.Querier, txnID string, status transactions.Status, providerRef *string) error
}

type ExpenseStore interface {
	// GetDescription feeds the intent's note line; failures fall back
	// to the expense id, they never block initiation.
	GetDescription(ctx context.Context, expenseID string) (string, error)
	MarkSettled(ctx context.Context, q dbx.Querier, expenseID, txnID string) error
}

type ReceiverLookup interface {
	GetByUID(ctx context.Context, uid string) (*users.User, error)
}

// Intent is what the client hands to an installed UPI app.
type Intent struct {
	TxnID  string  `json:"txn_id"`
	VPA    string  `json:"vpa"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
}

// Callback is the PSP's asynchronous status report. Any Status other
// than exactly "SUCCESS" maps to FAILED.
type Callback struct {
	MerchantTransactionID string
	ProviderReferenceID   string
	Status                string
}

// Service owns the payment settlement state machine: it creates
// transactions (Initiate) and applies PSP callbacks to them
// (Reconcile). All cross-record atomicity is delegated to the runner.
type Service struct {
	runner   dbx.Runner
	txns     TransactionStore
	expenses ExpenseStore
	users    ReceiverLookup
	gen      *TxnIDGenerator
	logger   *zap.SugaredLogger
}

func NewService(
	runner dbx.Runner,
	txns TransactionStore,
	expenses ExpenseStore,
	users ReceiverLookup,
	logger *zap.SugaredLogger,
) *Service {
	return &Service{
		runner:   runner,
		txns:     txns,
		expenses: expenses,
		users:    users,
		gen:      NewTxnIDGenerator(),
		logger:   logger,
	}
}

// Initiate snapshots the receiver's current payment address into a new
// CREATED transaction and returns the intent payload for the client.
// Two concurrent initiations for the same expense create two
// independent transactions; deduplication is the caller's policy.
func (s *Service) Initiate(ctx context.Context, payerUID, expenseID string, amount float64, receiverUID string) (*Intent, error) {
	receiver, err := s.users.GetByUID(ctx, receiverUID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, fmt.Errorf("load receiver %s: %w", receiverUID, err)
	}
	if !receiver.VPA.Valid || receiver.VPA.String == "" {
		return nil, ErrNoLinkedVPA
	}

	t := &transactions.Transaction{
		TxnID:        s.gen.Generate(),
		PayerUID:     payerUID,
		ReceiverUID:  receiverUID,
		ExpenseID:    expenseID,
		Amount:       amount,
		Currency:     "INR",
		VPA:          receiver.VPA.String,
		ReceiverName: receiver.DisplayName(),
		Status:       transactions.StatusCreated,
	}
	if err := s.txns.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.Infow("transaction created",
		"txn_id", t.TxnID, "expense_id", expenseID, "payer_uid", payerUID, "receiver_uid", receiverUID)

	noteRef := expenseID
	if desc, err := s.expenses.GetDescription(ctx, expenseID); err == nil && desc != "" {
		noteRef = desc
	}

	return &Intent{
		TxnID:  t.TxnID,
		VPA:    t.VPA,
		Name:   t.ReceiverName,
		Amount: t.Amount,
		Note:   "Payment for " + noteRef,
	}, nil
}

// Reconcile applies one PSP callback as a single atomic unit: the
// transaction row is locked, then the status transition and (on
// success) the expense settlement commit together or not at all.
// SUCCESS is absorbing, so redelivered callbacks are no-ops and the
// endpoint stays idempotent. FAILED may still move to SUCCESS if the
// PSP later reports a late success.
func (s *Service) Reconcile(ctx context.Context, cb Callback) error {
	return s.runner.InTx(ctx, func(q dbx.Querier) error {
		t, err := s.txns.GetForUpdate(ctx, q, cb.MerchantTransactionID)
		if err != nil {
			if errors.Is(err, transactions.ErrNotFound) {
				return ErrUnknownTransaction
			}
			return fmt.Errorf("load transaction %s: %w", cb.MerchantTransactionID, err)
		}

		if t.Status == transactions.StatusSuccess {
			s.logger.Infow("duplicate callback ignored", "txn_id", t.TxnID, "status", cb.Status)
			return nil
		}

		status := transactions.StatusFailed
		if cb.Status == "SUCCESS" {
			status = transactions.StatusSuccess
		}

		var ref *string
		if cb.ProviderReferenceID != "" {
			ref = &cb.ProviderReferenceID
		}

		if err := s.txns.SetStatus(ctx, q, t.TxnID, status, ref); err != nil {
			return fmt.Errorf("transition %s to %s: %w", t.TxnID, status, err)
		}

		if status == transactions.StatusSuccess {
			if err := s.expenses.MarkSettled(ctx, q, t.ExpenseID, t.TxnID); err != nil {
				return fmt.Errorf("settle expense %s: %w", t.ExpenseID, err)
			}
		}

		s.logger.Infow("transaction reconciled", "txn_id", t.TxnID, "status", status)
		return nil
	})
}
