// Package gateway talks to the remote wallet backend: request/response
// fetches over REST and per-topic push subscriptions.
package gateway

import (
	"context"
	"encoding/json"
)

// Topic is a named push-subscription channel.
type Topic string

const (
	TopicInvoices Topic = "invoices"
	TopicPayments Topic = "payments"
	TopicBalances Topic = "balances"
)

// Topics lists every subscription channel the backend exposes.
func Topics() []Topic {
	return []Topic{TopicInvoices, TopicPayments, TopicBalances}
}

// Envelope message types emitted by the backend.
const (
	TypeInvoiceUpdate = "invoice_update"
	TypePaymentUpdate = "payment_update"
	TypeAssetsUpdate  = "assets_update"
)

// Envelope wraps one push message. Data is decoded by the consumer; the
// connection layer never parses business meaning beyond the type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Subscription is one open push channel.
type Subscription interface {
	// Next blocks until a message arrives, the subscription closes, or ctx
	// is done. A non-nil error means the subscription is dead.
	Next(ctx context.Context) (Envelope, error)
	Close() error
}

// Transport opens push subscriptions. Tests inject fakes.
type Transport interface {
	Subscribe(ctx context.Context, topic Topic, userID string) (Subscription, error)
}
