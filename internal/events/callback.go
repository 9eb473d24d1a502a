package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeCallbackReceived identifies events emitted for accepted callbacks.
const TypeCallbackReceived = "transaction.callback_received"

// CallbackEvent describes a callback that passed the access filter and was stored.
type CallbackEvent struct {
	Type                string    `json:"type"`
	TransactionID       uuid.UUID `json:"transaction_id"`
	AnchorTransactionID string    `json:"anchor_transaction_id,omitempty"`
	StellarAccount      string    `json:"stellar_account"`
	Amount              string    `json:"amount"`
	AssetCode           string    `json:"asset_code"`
	CallbackType        string    `json:"callback_type,omitempty"`
	CallbackStatus      string    `json:"callback_status,omitempty"`
	ClientAddr          string    `json:"client_addr"`
	RequestID           string    `json:"request_id,omitempty"`
	ReceivedAt          time.Time `json:"received_at"`
}

// PublishCallback encodes ev and queues it on p. Events are keyed by the
// anchor transaction id when present, so callbacks from one anchor
// transaction share a partition; otherwise by the stored transaction id.
func PublishCallback(p Publisher, ev CallbackEvent) error {
	if ev.Type == "" {
		ev.Type = TypeCallbackReceived
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode callback event: %w", err)
	}
	key := ev.AnchorTransactionID
	if key == "" {
		key = ev.TransactionID.String()
	}
	return p.Publish([]byte(key), value)
}
