// Package reconcile merges invoice, payment and asset data from any source
// (push delta or polled snapshot) into the authoritative local collections.
package reconcile

import (
	"log"
	"sort"
	"sync"

	"taproot-sync/internal/wallet/domain"
)

// Engine is the single writer of the local collections. It never trusts the
// transport to deduplicate: every apply diffs against current state, so the
// visible result is order-independent with respect to duplicate delivery.
type Engine struct {
	mu       sync.Mutex
	assets   []domain.Asset
	invoices map[string]domain.Invoice
	payments map[string]domain.Payment
	logger   *log.Logger
}

// NewEngine constructs an empty engine.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		invoices: make(map[string]domain.Invoice),
		payments: make(map[string]domain.Payment),
		logger:   logger,
	}
}

// ApplyAssetSnapshot replaces the whole asset collection. Assets are
// presentation data, not transition-tracked; callers needing "balance
// changed" semantics compare before/after themselves.
func (e *Engine) ApplyAssetSnapshot(assets []domain.Asset) {
	copied := make([]domain.Asset, len(assets))
	copy(copied, assets)

	e.mu.Lock()
	e.assets = copied
	e.mu.Unlock()
}

// ApplyInvoices merges a snapshot or a single-entity delta into the invoice
// collection and returns the transitions it caused. Entities present locally
// but absent from a snapshot are kept: remote views may be paginated.
func (e *Engine) ApplyInvoices(incoming []domain.Invoice) []domain.Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	var transitions []domain.Transition
	for _, inv := range incoming {
		key, err := inv.Identity()
		if err != nil {
			e.logger.Printf("reconcile: dropping invoice without identity (payment_hash=%q)", inv.PaymentHash)
			continue
		}
		current, exists := e.invoices[key]
		switch {
		case !exists:
			e.invoices[key] = inv
			stored := e.invoices[key]
			transitions = append(transitions, domain.Transition{
				EntityKind:  domain.EntityInvoice,
				EntityID:    key,
				PaymentHash: inv.PaymentHash,
				Kind:        domain.TransitionNew,
				NewStatus:   string(inv.Status),
				Invoice:     &stored,
			})
		case current.Status != inv.Status:
			e.invoices[key] = inv
			stored := e.invoices[key]
			transitions = append(transitions, domain.Transition{
				EntityKind:     domain.EntityInvoice,
				EntityID:       key,
				PaymentHash:    inv.PaymentHash,
				Kind:           domain.TransitionStatusChanged,
				PreviousStatus: string(current.Status),
				NewStatus:      string(inv.Status),
				Invoice:        &stored,
			})
		case !current.EqualIgnoringStatus(inv):
			// Last write wins on the record, but an unchanged status is
			// never a transition: a duplicate arriving via the second
			// channel lands here and stays invisible downstream.
			e.invoices[key] = inv
		}
	}
	return transitions
}

// ApplyPayments merges a snapshot or delta into the payment collection.
func (e *Engine) ApplyPayments(incoming []domain.Payment) []domain.Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	var transitions []domain.Transition
	for _, pay := range incoming {
		key, err := pay.Identity()
		if err != nil {
			e.logger.Printf("reconcile: dropping payment without identity (payment_hash=%q)", pay.PaymentHash)
			continue
		}
		current, exists := e.payments[key]
		switch {
		case !exists:
			e.payments[key] = pay
			stored := e.payments[key]
			transitions = append(transitions, domain.Transition{
				EntityKind:  domain.EntityPayment,
				EntityID:    key,
				PaymentHash: pay.PaymentHash,
				Kind:        domain.TransitionNew,
				NewStatus:   string(pay.Status),
				Payment:     &stored,
			})
		case current.Status != pay.Status:
			e.payments[key] = pay
			stored := e.payments[key]
			transitions = append(transitions, domain.Transition{
				EntityKind:     domain.EntityPayment,
				EntityID:       key,
				PaymentHash:    pay.PaymentHash,
				Kind:           domain.TransitionStatusChanged,
				PreviousStatus: string(current.Status),
				NewStatus:      string(pay.Status),
				Payment:        &stored,
			})
		case !current.EqualIgnoringStatus(pay):
			e.payments[key] = pay
		}
	}
	return transitions
}

// Assets returns a copy of the current asset snapshot.
func (e *Engine) Assets() []domain.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := make([]domain.Asset, len(e.assets))
	copy(copied, e.assets)
	return copied
}

// Invoices returns a copy of the current invoice collection, ordered by
// identity for determinism.
func (e *Engine) Invoices() []domain.Invoice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Invoice, 0, len(e.invoices))
	for _, inv := range e.invoices {
		out = append(out, inv)
	}
	sortInvoices(out)
	return out
}

// Payments returns a copy of the current payment collection, ordered by
// identity for determinism.
func (e *Engine) Payments() []domain.Payment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Payment, 0, len(e.payments))
	for _, pay := range e.payments {
		out = append(out, pay)
	}
	sortPayments(out)
	return out
}

func sortInvoices(invoices []domain.Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		a, _ := invoices[i].Identity()
		b, _ := invoices[j].Identity()
		return a < b
	})
}

func sortPayments(payments []domain.Payment) {
	sort.Slice(payments, func(i, j int) bool {
		a, _ := payments[i].Identity()
		b, _ := payments[j].Identity()
		return a < b
	})
}
