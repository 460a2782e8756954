// Package dispatch turns reconciliation transitions into exactly-once user
// effects: notifications, balance refreshes and dialog auto-close.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Notification kinds emitted to the UI.
const (
	KindInvoicePaid             = "invoice_paid"
	KindInvoicePaidConfirmation = "invoice_paid_confirmation"
)

// Notification is one user-facing message.
type Notification struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Message     string          `json:"message"`
	AssetID     string          `json:"asset_id,omitempty"`
	AssetName   string          `json:"asset_name,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentHash string          `json:"payment_hash,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Notifier delivers notifications to the UI layer.
type Notifier interface {
	Notify(ctx context.Context, notification Notification)
}

// MultiNotifier fans a notification out to several notifiers. Delivery runs
// concurrently so a slow webhook does not delay the in-process stream, but
// Notify returns only after every notifier has taken the notification.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards the notification to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, notification Notification) {
	if m == nil {
		return
	}
	var wg sync.WaitGroup
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			n.Notify(ctx, notification)
		}(notifier)
	}
	wg.Wait()
}
