package queue

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"sitemanager/remote"
	"sitemanager/store"
	"sitemanager/validation"
)

// Payload is everything needed to replay one stock movement later. It is
// serialized into the queue row at enqueue time.
type Payload struct {
	ProjectID string          `json:"project" validate:"required"`
	ItemID    string          `json:"item" validate:"required"`
	Delta     decimal.Decimal `json:"delta"`
	Kind      string          `json:"kind" validate:"required,oneof=withdrawal receipt adjustment return"`
	Signature string          `json:"signature,omitempty" validate:"omitempty,startswith=data:"`
	Notes     string          `json:"notes,omitempty" validate:"max=500"`
}

// check enforces the sign convention of each movement kind.
func (p Payload) check(requireSignature bool) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	switch p.Kind {
	case store.KindWithdrawal:
		if !p.Delta.IsNegative() {
			return validation.Field("delta", "negative")
		}
	case store.KindReceipt, store.KindReturn:
		if !p.Delta.IsPositive() {
			return validation.Field("delta", "positive")
		}
	default:
		if p.Delta.IsZero() {
			return validation.Field("delta", "nonzero")
		}
	}
	if requireSignature && p.Kind == store.KindWithdrawal && p.Signature == "" {
		return validation.Field("signature", "required")
	}
	return nil
}

// TransactionType maps a ledger kind onto the backend's transaction type.
// The backend has no return type; returns are booked as receipts.
func TransactionType(kind string) string {
	switch kind {
	case store.KindWithdrawal:
		return remote.TxOut
	case store.KindReceipt, store.KindReturn:
		return remote.TxIn
	default:
		return remote.TxAdjustment
	}
}

func decodePayload(m store.Mutation) (Payload, error) {
	var p Payload
	err := json.Unmarshal(m.Payload, &p)
	return p, err
}

// movement builds the remote request for a queued mutation. Project and
// item come from the row itself, never from the current selection.
func movement(m store.Mutation, p Payload) remote.Movement {
	return remote.Movement{
		ClientRef:       m.ClientRef,
		ProjectID:       m.ProjectID,
		ItemID:          m.ItemID,
		Quantity:        m.Delta,
		TransactionType: TransactionType(p.Kind),
		Signature:       p.Signature,
		Notes:           p.Notes,
	}
}

// Entry is a queued mutation as shown to the user.
type Entry struct {
	store.Mutation
	Kind         string `json:"kind"`
	Notes        string `json:"notes,omitempty"`
	HasSignature bool   `json:"has_signature"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Skipped   bool          `json:"skipped"`
	Offline   bool          `json:"offline,omitempty"`
	Delivered int           `json:"delivered"`
	Remaining int           `json:"remaining"`
	HaltedID  int64         `json:"halted_id,omitempty"`
	ErrKind   string        `json:"error_kind,omitempty"`
	Err       error         `json:"-"`
	Took      time.Duration `json:"took"`
}
