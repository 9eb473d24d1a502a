// Package transaction holds the transaction record model and its Postgres store.
package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// StatusPending is the status every new transaction starts in.
const StatusPending = "pending"

// ErrNotFound is returned when no transaction matches the requested id.
var ErrNotFound = errors.New("transaction not found")

// ErrDuplicateAnchorID is returned when a transaction with the same anchor
// transaction id is already stored.
var ErrDuplicateAnchorID = errors.New("duplicate anchor transaction id")

// Transaction is a single anchor callback record.
type Transaction struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	StellarAccount      string    `db:"stellar_account" json:"stellar_account"`
	Amount              string    `db:"amount" json:"amount"`
	AssetCode           string    `db:"asset_code" json:"asset_code"`
	Status              string    `db:"status" json:"status"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
	AnchorTransactionID *string   `db:"anchor_transaction_id" json:"anchor_transaction_id,omitempty"`
	CallbackType        *string   `db:"callback_type" json:"callback_type,omitempty"`
	CallbackStatus      *string   `db:"callback_status" json:"callback_status,omitempty"`
}

// New builds a pending transaction with a fresh id and timestamps.
func New(stellarAccount, amount, assetCode string, anchorTransactionID, callbackType, callbackStatus *string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:                  uuid.New(),
		StellarAccount:      stellarAccount,
		Amount:              amount,
		AssetCode:           assetCode,
		Status:              StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
		AnchorTransactionID: anchorTransactionID,
		CallbackType:        callbackType,
		CallbackStatus:      callbackStatus,
	}
}

// Filter narrows a search. Empty fields are ignored.
type Filter struct {
	Status         string
	AssetCode      string
	StellarAccount string
	Limit          int
	Offset         int
}
