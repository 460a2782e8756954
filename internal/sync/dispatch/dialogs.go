package dispatch

import "sync"

// InvoiceDialog identifies the created-invoice dialog currently shown to the
// user. The UI it models has a single such modal, so the registry holds at
// most one.
type InvoiceDialog struct {
	InvoiceID   string
	PaymentHash string
}

// DialogRegistry tracks the open created-invoice dialog.
type DialogRegistry struct {
	mu   sync.Mutex
	open *InvoiceDialog
}

// NewDialogRegistry constructs an empty registry.
func NewDialogRegistry() *DialogRegistry {
	return &DialogRegistry{}
}

// Open records the dialog the UI just opened, replacing any previous one.
func (r *DialogRegistry) Open(dialog InvoiceDialog) {
	r.mu.Lock()
	r.open = &dialog
	r.mu.Unlock()
}

// Close clears the open dialog.
func (r *DialogRegistry) Close() {
	r.mu.Lock()
	r.open = nil
	r.mu.Unlock()
}

// Current returns the open dialog, if any.
func (r *DialogRegistry) Current() (InvoiceDialog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open == nil {
		return InvoiceDialog{}, false
	}
	return *r.open, true
}

// CloseIfMatches closes the dialog when it displays the given entity,
// matching by invoice id first, then by payment hash; first match wins.
// Returns true when a dialog was closed.
func (r *DialogRegistry) CloseIfMatches(invoiceID, paymentHash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open == nil {
		return false
	}
	if invoiceID != "" && r.open.InvoiceID == invoiceID {
		r.open = nil
		return true
	}
	if paymentHash != "" && r.open.PaymentHash == paymentHash {
		r.open = nil
		return true
	}
	return false
}
