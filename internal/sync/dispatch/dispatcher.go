package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"taproot-sync/internal/observability/metrics"
	"taproot-sync/internal/wallet/domain"
)

// BalanceRefresher re-fetches the asset snapshot. One call per dispatch
// batch at most, regardless of how many transitions wanted it.
type BalanceRefresher interface {
	RefreshBalances(ctx context.Context) error
}

// AssetReader provides the current asset snapshot for display names.
type AssetReader interface {
	Assets() []domain.Asset
}

// Clock provides time for notification stamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Dispatcher consumes the transition list of one reconciliation pass and
// performs at most one of each applicable effect per transition.
type Dispatcher struct {
	notifier Notifier
	balances BalanceRefresher
	assets   AssetReader
	dialogs  *DialogRegistry
	clock    Clock
	logger   *log.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

// seenRetention bounds how long a dispatched transition key is remembered.
// Overlapping push and poll deliveries land within seconds of each other;
// entries older than the window are forgotten so the map stays small over
// a long-lived session.
const seenRetention = time.Hour

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(notifier Notifier, balances BalanceRefresher, assets AssetReader, dialogs *DialogRegistry, logger *log.Logger, opts ...Option) (*Dispatcher, error) {
	if notifier == nil {
		return nil, errors.New("dispatch: nil notifier")
	}
	if balances == nil {
		return nil, errors.New("dispatch: nil balance refresher")
	}
	if assets == nil {
		return nil, errors.New("dispatch: nil asset reader")
	}
	if dialogs == nil {
		dialogs = NewDialogRegistry()
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{
		notifier: notifier,
		balances: balances,
		assets:   assets,
		dialogs:  dialogs,
		clock:    systemClock{},
		logger:   logger,
		seen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dialogs exposes the registry so the UI layer can open and close dialogs.
func (d *Dispatcher) Dialogs() *DialogRegistry {
	return d.dialogs
}

// Dispatch handles one batch of transitions. The balance refresh is
// coalesced to one call per batch; a refresh failure is returned to the
// caller but already-processed transitions are not reopened — the next poll
// or push re-derives the need if state is still inconsistent.
func (d *Dispatcher) Dispatch(ctx context.Context, transitions []domain.Transition) error {
	d.pruneSeen(d.clock.Now())

	needRefresh := false
	for _, tr := range transitions {
		if !d.firstSighting(tr) {
			continue
		}
		metrics.IncTransition(string(tr.EntityKind), string(tr.Kind))

		if tr.Kind != domain.TransitionStatusChanged {
			// New entities carry no user-facing effect: initial loads would
			// otherwise flood the UI.
			continue
		}
		switch tr.EntityKind {
		case domain.EntityInvoice:
			if tr.NewStatus == string(domain.InvoiceStatusPaid) {
				d.handleInvoicePaid(ctx, tr)
				needRefresh = true
			}
		case domain.EntityPayment:
			if tr.NewStatus == string(domain.PaymentStatusCompleted) || tr.NewStatus == string(domain.PaymentStatusFailed) {
				needRefresh = true
			}
		}
	}

	if !needRefresh {
		return nil
	}
	metrics.IncEffect("balance_refresh")
	if err := d.balances.RefreshBalances(ctx); err != nil {
		d.logger.Printf("dispatch: balance refresh failed: %v", err)
		return err
	}
	return nil
}

func (d *Dispatcher) handleInvoicePaid(ctx context.Context, tr domain.Transition) {
	assetID := ""
	amount := decimal.Zero
	if tr.Invoice != nil {
		assetID = tr.Invoice.AssetID
		amount = tr.Invoice.AssetAmount
	}
	assetName := domain.AssetName(d.assets.Assets(), assetID)

	metrics.IncEffect("invoice_paid_notification")
	d.notifier.Notify(ctx, Notification{
		ID:          uuid.NewString(),
		Kind:        KindInvoicePaid,
		Message:     fmt.Sprintf("Received %s %s", amount, assetName),
		AssetID:     assetID,
		AssetName:   assetName,
		Amount:      amount,
		PaymentHash: tr.PaymentHash,
		CreatedAt:   d.clock.Now().UTC(),
	})

	invoiceID := ""
	if tr.Invoice != nil {
		invoiceID = tr.Invoice.ID
	}
	if d.dialogs.CloseIfMatches(invoiceID, tr.PaymentHash) {
		metrics.IncEffect("dialog_close")
		d.notifier.Notify(ctx, Notification{
			ID:          uuid.NewString(),
			Kind:        KindInvoicePaidConfirmation,
			Message:     "Invoice has been paid",
			AssetID:     assetID,
			AssetName:   assetName,
			Amount:      amount,
			PaymentHash: tr.PaymentHash,
			CreatedAt:   d.clock.Now().UTC(),
		})
	}
}

// firstSighting records the transition and reports whether it was seen for
// the first time. Overlapping refreshes can hand the dispatcher the same
// status change twice; effects must fire once.
func (d *Dispatcher) firstSighting(tr domain.Transition) bool {
	key := string(tr.EntityKind) + "|" + tr.EntityID + "|" + tr.NewStatus
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = d.clock.Now().UTC()
	return true
}

// pruneSeen evicts dedupe entries older than the retention window.
func (d *Dispatcher) pruneSeen(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, at := range d.seen {
		if now.Sub(at) > seenRetention {
			delete(d.seen, key)
		}
	}
}

// EstimateBalances applies a completed payment optimistically to the asset
// snapshot, clamping the result to a non-negative floor. Used when a balance
// refresh fails and the UI still needs a plausible number until the next
// successful fetch.
func EstimateBalances(assets []domain.Asset, payment domain.Payment) []domain.Asset {
	estimated := make([]domain.Asset, len(assets))
	copy(estimated, assets)
	for i := range estimated {
		if estimated[i].AssetID != payment.AssetID {
			continue
		}
		balance := estimated[i].UserBalance.Sub(payment.AssetAmount)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		estimated[i].UserBalance = balance
	}
	return estimated
}
