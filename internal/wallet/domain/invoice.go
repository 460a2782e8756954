package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an asset invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusExpired   InvoiceStatus = "expired"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice is an incoming asset transfer request. Only Status and PaidAt
// mutate after creation; every other field is append-only.
type Invoice struct {
	ID             string          `json:"id"`
	PaymentHash    string          `json:"payment_hash"`
	PaymentRequest string          `json:"payment_request,omitempty"`
	AssetID        string          `json:"asset_id"`
	AssetAmount    decimal.Decimal `json:"asset_amount"`
	SatoshiAmount  int64           `json:"satoshi_amount,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	Status         InvoiceStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
}

// Identity returns the merge key for the invoice: the id, or the payment
// hash when the id is absent.
func (i Invoice) Identity() (string, error) {
	if i.ID != "" {
		return i.ID, nil
	}
	if i.PaymentHash != "" {
		return i.PaymentHash, nil
	}
	return "", ErrMissingIdentity
}

// EqualIgnoringStatus reports whether the mutable non-status fields match,
// so identical re-deliveries can be skipped without downstream recomputation.
func (i Invoice) EqualIgnoringStatus(other Invoice) bool {
	return i.ID == other.ID &&
		i.PaymentHash == other.PaymentHash &&
		i.PaymentRequest == other.PaymentRequest &&
		i.AssetID == other.AssetID &&
		i.AssetAmount.Equal(other.AssetAmount) &&
		i.SatoshiAmount == other.SatoshiAmount &&
		i.Memo == other.Memo &&
		equalTimePtr(i.PaidAt, other.PaidAt) &&
		equalTimePtr(i.ExpiresAt, other.ExpiresAt)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
