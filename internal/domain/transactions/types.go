package transactions

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("transaction not found")

type Status string

const (
	StatusCreated Status = "CREATED"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Transaction is one payment attempt. Rows are never deleted; they are
// kept as an audit trail. Only status, provider_ref and updated_at
// change after creation.
type Transaction struct {
	TxnID        string    `json:"txn_id"`
	PayerUID     string    `json:"payer_uid"`
	ReceiverUID  string    `json:"receiver_uid"`
	ExpenseID    string    `json:"expense_id"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	VPA          string    `json:"vpa"`
	ReceiverName string    `json:"receiver_name"`
	Status       Status    `json:"status"`
	ProviderRef  *string   `json:"provider_ref"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
