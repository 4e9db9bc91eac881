package settlement

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"sliceit/internal/dbx"
	"sliceit/internal/domain/transactions"
	"sliceit/internal/domain/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// fakeRunner stands in for the pool-backed transaction runner. It hands
// the callback a nil Querier (the mocks below ignore it) and reports
// whether the unit would have committed or rolled back.
type fakeRunner struct {
	committed  int
	rolledBack int
}

func (r *fakeRunner) InTx(_ context.Context, fn func(q dbx.Querier) error) error {
	if err := fn(nil); err != nil {
		r.rolledBack++
		return err
	}
	r.committed++
	return nil
}

type mockTxnStore struct {
	byID map[string]*transactions.Transaction

	created   []*transactions.Transaction
	createErr error
	setErr    error
}

func newMockTxnStore(ts ...*transactions.Transaction) *mockTxnStore {
	m := &mockTxnStore{byID: map[string]*transactions.Transaction{}}
	for _, t := range ts {
		m.byID[t.TxnID] = t
	}
	return m
}

func (m *mockTxnStore) Create(_ context.Context, t *transactions.Transaction) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, t)
	m.byID[t.TxnID] = t
	return nil
}

func (m *mockTxnStore) GetForUpdate(_ context.Context, _ dbx.Querier, txnID string) (*transactions.Transaction, error) {
	t, ok := m.byID[txnID]
	if !ok {
		return nil, transactions.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTxnStore) SetStatus(_ context.Context, _ dbx.Querier, txnID string, status transactions.Status, ref *string) error {
	if m.setErr != nil {
		return m.setErr
	}
	t, ok := m.byID[txnID]
	if !ok {
		return transactions.ErrNotFound
	}
	t.Status = status
	if ref != nil {
		t.ProviderRef = ref
	}
	return nil
}

type mockExpenseStore struct {
	settled      map[string]string // expenseID -> txnID
	descriptions map[string]string
	err          error
}

func newMockExpenseStore() *mockExpenseStore {
	return &mockExpenseStore{
		settled:      map[string]string{},
		descriptions: map[string]string{},
	}
}

func (m *mockExpenseStore) GetDescription(_ context.Context, expenseID string) (string, error) {
	desc, ok := m.descriptions[expenseID]
	if !ok {
		return "", errors.New("expense not found")
	}
	return desc, nil
}

func (m *mockExpenseStore) MarkSettled(_ context.Context, _ dbx.Querier, expenseID, txnID string) error {
	if m.err != nil {
		return m.err
	}
	m.settled[expenseID] = txnID
	return nil
}

type mockUserStore struct {
	users map[string]*users.User
}

func (m *mockUserStore) GetByUID(_ context.Context, uid string) (*users.User, error) {
	u, ok := m.users[uid]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

func userWithVPA(uid, first, last, vpa string) *users.User {
	return &users.User{
		UID:       uid,
		FirstName: first,
		LastName:  last,
		VPA:       sql.NullString{String: vpa, Valid: vpa != ""},
	}
}

func newTestService(runner *fakeRunner, txns *mockTxnStore, exps *mockExpenseStore, us *mockUserStore) *Service {
	return NewService(runner, txns, exps, us, zap.NewNop().Sugar())
}

// ---------------------------------------------------------------------------
// Initiate
// ---------------------------------------------------------------------------

func TestInitiateCreatesSingleCreatedTransaction(t *testing.T) {
	txns := newMockTxnStore()
	us := &mockUserStore{users: map[string]*users.User{
		"U2": userWithVPA("U2", "Bob", "Sharma", "bob@bank"),
	}}
	svc := newTestService(&fakeRunner{}, txns, newMockExpenseStore(), us)

	intent, err := svc.Initiate(context.Background(), "U1", "E1", 500, "U2")
	require.NoError(t, err)

	require.Len(t, txns.created, 1)
	created := txns.created[0]
	assert.Equal(t, transactions.StatusCreated, created.Status)
	assert.Equal(t, "bob@bank", created.VPA)
	assert.Equal(t, "U1", created.PayerUID)
	assert.Equal(t, "U2", created.ReceiverUID)
	assert.Equal(t, "E1", created.ExpenseID)
	assert.Equal(t, 500.0, created.Amount)
	assert.Equal(t, "INR", created.Currency)

	assert.True(t, strings.HasPrefix(intent.TxnID, "TRX_"))
	assert.Equal(t, "bob@bank", intent.VPA)
	assert.Equal(t, "Bob Sharma", intent.Name)
	assert.Equal(t, 500.0, intent.Amount)
	assert.Equal(t, "Payment for E1", intent.Note)
}

func TestInitiateNotePrefersExpenseDescription(t *testing.T) {
	exps := newMockExpenseStore()
	exps.descriptions["E1"] = "Goa trip dinner"
	us := &mockUserStore{users: map[string]*users.User{
		"U2": userWithVPA("U2", "Bob", "Sharma", "bob@bank"),
	}}
	svc := newTestService(&fakeRunner{}, newMockTxnStore(), exps, us)

	intent, err := svc.Initiate(context.Background(), "U1", "E1", 500, "U2")
	require.NoError(t, err)
	assert.Equal(t, "Payment for Goa trip dinner", intent.Note)
}

func TestInitiateReceiverNotFound(t *testing.T) {
	txns := newMockTxnStore()
	svc := newTestService(&fakeRunner{}, txns, newMockExpenseStore(), &mockUserStore{users: map[string]*users.User{}})

	_, err := svc.Initiate(context.Background(), "U1", "E1", 500, "ghost")
	assert.ErrorIs(t, err, ErrReceiverNotFound)
	assert.Empty(t, txns.created)
}

func TestInitiateReceiverWithoutVPA(t *testing.T) {
	txns := newMockTxnStore()
	us := &mockUserStore{users: map[string]*users.User{
		"U2": userWithVPA("U2", "Bob", "", ""),
	}}
	svc := newTestService(&fakeRunner{}, txns, newMockExpenseStore(), us)

	_, err := svc.Initiate(context.Background(), "U1", "E1", 500, "U2")
	assert.ErrorIs(t, err, ErrNoLinkedVPA)
	assert.Empty(t, txns.created)
}

func TestInitiateConcurrentAttemptsAreIndependent(t *testing.T) {
	txns := newMockTxnStore()
	us := &mockUserStore{users: map[string]*users.User{
		"U2": userWithVPA("U2", "Bob", "Sharma", "bob@bank"),
	}}
	svc := newTestService(&fakeRunner{}, txns, newMockExpenseStore(), us)

	a, err := svc.Initiate(context.Background(), "U1", "E1", 500, "U2")
	require.NoError(t, err)
	b, err := svc.Initiate(context.Background(), "U1", "E1", 500, "U2")
	require.NoError(t, err)

	assert.Len(t, txns.created, 2)
	assert.NotEqual(t, a.TxnID, b.TxnID)
}

// ---------------------------------------------------------------------------
// Reconcile
// ---------------------------------------------------------------------------

func createdTxn(txnID, expenseID string) *transactions.Transaction {
	return &transactions.Transaction{
		TxnID:       txnID,
		PayerUID:    "U1",
		ReceiverUID: "U2",
		ExpenseID:   expenseID,
		Amount:      500,
		Currency:    "INR",
		VPA:         "bob@bank",
		Status:      transactions.StatusCreated,
	}
}

func TestReconcileSuccessSettlesExpense(t *testing.T) {
	runner := &fakeRunner{}
	txns := newMockTxnStore(createdTxn("TRX_X", "E1"))
	exps := newMockExpenseStore()
	svc := newTestService(runner, txns, exps, &mockUserStore{})

	err := svc.Reconcile(context.Background(), Callback{
		MerchantTransactionID: "TRX_X",
		ProviderReferenceID:   "PSP-001",
		Status:                "SUCCESS",
	})
	require.NoError(t, err)

	got := txns.byID["TRX_X"]
	assert.Equal(t, transactions.StatusSuccess, got.Status)
	require.NotNil(t, got.ProviderRef)
	assert.Equal(t, "PSP-001", *got.ProviderRef)
	assert.Equal(t, "TRX_X", exps.settled["E1"])
	assert.Equal(t, 1, runner.committed)
}

func TestReconcileIsIdempotentForSuccess(t *testing.T) {
	runner := &fakeRunner{}
	txns := newMockTxnStore(createdTxn("TRX_X", "E1"))
	exps := newMockExpenseStore()
	svc := newTestService(runner, txns, exps, &mockUserStore{})

	cb := Callback{MerchantTransactionID: "TRX_X", ProviderReferenceID: "PSP-001", Status: "SUCCESS"}
	require.NoError(t, svc.Reconcile(context.Background(), cb))

	// Redelivery: must be a no-op, not a second settlement.
	exps.err = errors.New("should not be called again")
	require.NoError(t, svc.Reconcile(context.Background(), cb))

	assert.Equal(t, transactions.StatusSuccess, txns.byID["TRX_X"].Status)
	assert.Len(t, exps.settled, 1)
}

func TestReconcileSuccessIsAbsorbing(t *testing.T) {
	txns := newMockTxnStore(createdTxn("TRX_X", "E1"))
	exps := newMockExpenseStore()
	svc := newTestService(&fakeRunner{}, txns, exps, &mockUserStore{})

	require.NoError(t, svc.Reconcile(context.Background(), Callback{
		MerchantTransactionID: "TRX_X", ProviderReferenceID: "PSP-001", Status: "SUCCESS",
	}))

	// A later FAILED callback must not move the status or the ref.
	require.NoError(t, svc.Reconcile(context.Background(), Callback{
		MerchantTransactionID: "TRX_X", ProviderReferenceID: "PSP-LATE", Status: "FAILED",
	}))

	got := txns.byID["TRX_X"]
	assert.Equal(t, transactions.StatusSuccess, got.Status)
	assert.Equal(t, "PSP-001", *got.ProviderRef)
}

func TestReconcileFailedTwiceThenLateSuccess(t *testing.T) {
	txns := newMockTxnStore(createdTxn("TRX_X", "E1"))
	exps := newMockExpenseStore()
	svc := newTestService(&fakeRunner{}, txns, exps, &mockUserStore{})

	failed := Callback{MerchantTransactionID: "TRX_X", Status: "FAILED"}
	require.NoError(t, svc.Reconcile(context.Background(), failed))
	require.NoError(t, svc.Reconcile(context.Background(), failed))

	assert.Equal(t, transactions.StatusFailed, txns.byID["TRX_X"].Status)
	assert.Empty(t, exps.settled)

	// Late success after FAILED is a permitted transition.
	require.NoError(t, svc.Reconcile(context.Background(), Callback{
		MerchantTransactionID: "TRX_X", ProviderReferenceID: "PSP-002", Status: "SUCCESS",
	}))
	assert.Equal(t, transactions.StatusSuccess, txns.byID["TRX_X"].Status)
	assert.Equal(t, "TRX_X", exps.settled["E1"])
}

func TestReconcileMapsUnknownStatusToFailed(t *testing.T) {
	txns := newMockTxnStore(createdTxn("TRX_X", "E1"))
	exps := newMockExpenseStore()
	svc := newTestService(&fakeRunner{}, txns, exps, &mockUserStore{})

	require.NoError(t, svc.Reconcile(context.Background(), Callback{
		MerchantTransactionID: "TRX_X", Status: "PENDING",
	}))

	assert.Equal(t, transactions.StatusFailed, txns.byID["TRX_X"].Status)
	assert.Empty(t, exps.settled)
}

func TestReconcileUnknownTransactionAborts(t *testing.T) {
	runner := &fakeRunner{}
	txns := newMockTxnStore()
	exps := newMockExpenseStore()
	svc := newTestService(runner, txns, exps, &mockUserStore{})

	err := svc.Reconcile(context.Background(), Callback{
		MerchantTransactionID: "TRX_NOPE", Status: "SUCCESS",
	})
	assert.ErrorIs(t, err, ErrUnknownTransaction)
	assert.Empty(t, exps.settled)
	assert.Equal(t, 1, runner.rolledBack)
	assert.Zero(t, runner.committed)
}

func TestReconcileExpenseFailureAbortsWholeUnit(t *testing.T) {
	runner := &fakeRunner{}
	txns := newMockTxnStore(createdTxn("TRX_X", "E1"))
	exps := newMockExpenseStore()
	exps.err = errors.New("expenses table unavailable")
	svc := newTestService(runner, txns, exps, &mockUserStore{})

	err := svc.Reconcile(context.Background(), Callback{
		MerchantTransactionID: "TRX_X", Status: "SUCCESS",
	})
	require.Error(t, err)

	// The runner rolled back, so neither half of the unit committed.
	assert.Equal(t, 1, runner.rolledBack)
	assert.Zero(t, runner.committed)
	assert.Empty(t, exps.settled)
}
