package domain

// EntityKind identifies which collection a transition belongs to.
type EntityKind string

const (
	EntityInvoice EntityKind = "invoice"
	EntityPayment EntityKind = "payment"
)

// TransitionKind classifies what changed for an entity in one merge pass.
type TransitionKind string

const (
	TransitionNew           TransitionKind = "new"
	TransitionStatusChanged TransitionKind = "status_changed"
)

// Transition is a detected change for one entity, produced once per
// reconciliation pass and consumed immediately. It is never retained.
type Transition struct {
	EntityKind     EntityKind
	EntityID       string
	PaymentHash    string
	Kind           TransitionKind
	PreviousStatus string
	NewStatus      string

	// Entity carries the post-merge record so effect handlers do not have
	// to read the collections back. Exactly one of the two is set.
	Invoice *Invoice
	Payment *Payment
}
