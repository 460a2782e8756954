package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of an outgoing asset payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is an outgoing asset transfer.
type Payment struct {
	ID          string          `json:"id"`
	PaymentHash string          `json:"payment_hash"`
	AssetID     string          `json:"asset_id"`
	AssetAmount decimal.Decimal `json:"asset_amount"`
	FeeSats     int64           `json:"fee_sats"`
	Memo        string          `json:"memo,omitempty"`
	Status      PaymentStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Preimage    string          `json:"preimage,omitempty"`
}

// Identity returns the merge key for the payment: the id, or the payment
// hash when the id is absent.
func (p Payment) Identity() (string, error) {
	if p.ID != "" {
		return p.ID, nil
	}
	if p.PaymentHash != "" {
		return p.PaymentHash, nil
	}
	return "", ErrMissingIdentity
}

// EqualIgnoringStatus reports whether the mutable non-status fields match.
func (p Payment) EqualIgnoringStatus(other Payment) bool {
	return p.ID == other.ID &&
		p.PaymentHash == other.PaymentHash &&
		p.AssetID == other.AssetID &&
		p.AssetAmount.Equal(other.AssetAmount) &&
		p.FeeSats == other.FeeSats &&
		p.Memo == other.Memo &&
		p.Preimage == other.Preimage
}
