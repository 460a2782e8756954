// Package view derives the combined, filterable, paginated transaction list
// from the current invoice and payment collections. Pure functions only;
// safe to call on every render.
package view

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"taproot-sync/internal/wallet/domain"
)

// Direction tags a transaction by money flow.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Transaction is a display row: an invoice or payment tagged with direction
// and display-formatted dates. Derived, never stored.
type Transaction struct {
	ID           string          `json:"id"`
	Direction    Direction       `json:"direction"`
	PaymentHash  string          `json:"payment_hash"`
	AssetID      string          `json:"asset_id"`
	AssetAmount  decimal.Decimal `json:"asset_amount"`
	FeeSats      int64           `json:"fee_sats,omitempty"`
	Memo         string          `json:"memo,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	Date         string          `json:"date"`
	RelativeTime string          `json:"relative_time"`
}

const dateLayout = "2006-01-02 15:04"

func mapInvoice(inv domain.Invoice, now time.Time) Transaction {
	id, _ := inv.Identity()
	return Transaction{
		ID:           id,
		Direction:    DirectionIncoming,
		PaymentHash:  inv.PaymentHash,
		AssetID:      inv.AssetID,
		AssetAmount:  inv.AssetAmount,
		Memo:         inv.Memo,
		Status:       string(inv.Status),
		CreatedAt:    inv.CreatedAt,
		Date:         inv.CreatedAt.Local().Format(dateLayout),
		RelativeTime: relativeTime(inv.CreatedAt, now),
	}
}

func mapPayment(pay domain.Payment, now time.Time) Transaction {
	id, _ := pay.Identity()
	return Transaction{
		ID:           id,
		Direction:    DirectionOutgoing,
		PaymentHash:  pay.PaymentHash,
		AssetID:      pay.AssetID,
		AssetAmount:  pay.AssetAmount,
		FeeSats:      pay.FeeSats,
		Memo:         pay.Memo,
		Status:       string(pay.Status),
		CreatedAt:    pay.CreatedAt,
		Date:         pay.CreatedAt.Local().Format(dateLayout),
		RelativeTime: relativeTime(pay.CreatedAt, now),
	}
}

func relativeTime(at, now time.Time) string {
	if at.IsZero() {
		return ""
	}
	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	}
}

// merge tags and combines both collections, sorted by CreatedAt descending
// with identity-ascending tie-break for determinism.
func merge(invoices []domain.Invoice, payments []domain.Payment, now time.Time) []Transaction {
	merged := make([]Transaction, 0, len(invoices)+len(payments))
	for _, inv := range invoices {
		merged = append(merged, mapInvoice(inv, now))
	}
	for _, pay := range payments {
		merged = append(merged, mapPayment(pay, now))
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
