package dispatch

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"taproot-sync/internal/wallet/domain"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, notification Notification) {
	r.mu.Lock()
	r.notifications = append(r.notifications, notification)
	r.mu.Unlock()
}

func (r *recordingNotifier) byKind(kind string) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type stubRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubRefresher) RefreshBalances(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *stubRefresher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubAssets struct {
	assets []domain.Asset
}

func (s stubAssets) Assets() []domain.Asset { return s.assets }

func paidTransition(id, hash string) domain.Transition {
	inv := domain.Invoice{
		ID:          id,
		PaymentHash: hash,
		AssetID:     "asset-1",
		AssetAmount: decimal.NewFromInt(21),
		Status:      domain.InvoiceStatusPaid,
		CreatedAt:   time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC),
	}
	return domain.Transition{
		EntityKind:     domain.EntityInvoice,
		EntityID:       id,
		PaymentHash:    hash,
		Kind:           domain.TransitionStatusChanged,
		PreviousStatus: string(domain.InvoiceStatusPending),
		NewStatus:      string(domain.InvoiceStatusPaid),
		Invoice:        &inv,
	}
}

func newTestDispatcher(t *testing.T, notifier Notifier, refresher BalanceRefresher) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(
		notifier,
		refresher,
		stubAssets{assets: []domain.Asset{{AssetID: "asset-1", Name: "Alpha", UserBalance: decimal.NewFromInt(100)}}},
		NewDialogRegistry(),
		testLogger(),
	)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func TestInvoicePaidNotifiesOnceAndRefreshesOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	refresher := &stubRefresher{}
	d := newTestDispatcher(t, notifier, refresher)

	// The same paid update arrives via push and via a poll in overlapping
	// batches.
	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "abc")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "abc")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := notifier.byKind(KindInvoicePaid); len(got) != 1 {
		t.Fatalf("expected exactly one paid notification, got %d", len(got))
	}
	if got := refresher.count(); got != 1 {
		t.Fatalf("expected exactly one balance refresh, got %d", got)
	}
}

func TestInvoicePaidNotificationCarriesAssetNameAndAmount(t *testing.T) {
	notifier := &recordingNotifier{}
	d := newTestDispatcher(t, notifier, &stubRefresher{})

	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "abc")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	paid := notifier.byKind(KindInvoicePaid)
	if len(paid) != 1 {
		t.Fatalf("expected one notification, got %d", len(paid))
	}
	if paid[0].AssetName != "Alpha" || !paid[0].Amount.Equal(decimal.NewFromInt(21)) {
		t.Fatalf("unexpected notification: %+v", paid[0])
	}
	if paid[0].ID == "" {
		t.Fatal("expected a notification id")
	}
}

func TestRefreshCoalescedAcrossTransitions(t *testing.T) {
	notifier := &recordingNotifier{}
	refresher := &stubRefresher{}
	d := newTestDispatcher(t, notifier, refresher)

	completed := domain.Payment{ID: "p1", AssetID: "asset-1", AssetAmount: decimal.NewFromInt(5), Status: domain.PaymentStatusCompleted}
	batch := []domain.Transition{
		paidTransition("inv-1", "h1"),
		paidTransition("inv-2", "h2"),
		{
			EntityKind:     domain.EntityPayment,
			EntityID:       "p1",
			Kind:           domain.TransitionStatusChanged,
			PreviousStatus: string(domain.PaymentStatusPending),
			NewStatus:      string(domain.PaymentStatusCompleted),
			Payment:        &completed,
		},
	}
	if err := d.Dispatch(context.Background(), batch); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := refresher.count(); got != 1 {
		t.Fatalf("expected one coalesced refresh, got %d", got)
	}
}

func TestNewInvoiceHasNoUserEffect(t *testing.T) {
	notifier := &recordingNotifier{}
	refresher := &stubRefresher{}
	d := newTestDispatcher(t, notifier, refresher)

	inv := domain.Invoice{ID: "inv-1", Status: domain.InvoiceStatusPending}
	err := d.Dispatch(context.Background(), []domain.Transition{{
		EntityKind: domain.EntityInvoice,
		EntityID:   "inv-1",
		Kind:       domain.TransitionNew,
		NewStatus:  string(domain.InvoiceStatusPending),
		Invoice:    &inv,
	}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(notifier.notifications) != 0 || refresher.count() != 0 {
		t.Fatal("expected no effects for a new invoice")
	}
}

func TestDialogAutoCloseMatchesByPaymentHash(t *testing.T) {
	notifier := &recordingNotifier{}
	d := newTestDispatcher(t, notifier, &stubRefresher{})

	// Dialog opened with a different id but the same payment hash.
	d.Dialogs().Open(InvoiceDialog{InvoiceID: "other-id", PaymentHash: "abc"})

	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "abc")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, open := d.Dialogs().Current(); open {
		t.Fatal("expected dialog to auto-close")
	}
	if got := notifier.byKind(KindInvoicePaidConfirmation); len(got) != 1 {
		t.Fatalf("expected one confirmation, got %d", len(got))
	}
}

func TestDialogUnrelatedEntityStaysOpen(t *testing.T) {
	notifier := &recordingNotifier{}
	d := newTestDispatcher(t, notifier, &stubRefresher{})

	d.Dialogs().Open(InvoiceDialog{InvoiceID: "dialog-inv", PaymentHash: "dialog-hash"})

	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-9", "zzz")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, open := d.Dialogs().Current(); !open {
		t.Fatal("expected unrelated dialog to stay open")
	}
	if got := notifier.byKind(KindInvoicePaidConfirmation); len(got) != 0 {
		t.Fatalf("expected no confirmation, got %d", len(got))
	}
}

func TestRefreshFailureReportedWithoutReopeningTransitions(t *testing.T) {
	notifier := &recordingNotifier{}
	refresher := &stubRefresher{err: errors.New("gateway down")}
	d := newTestDispatcher(t, notifier, refresher)

	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "abc")}); err == nil {
		t.Fatal("expected refresh failure to surface")
	}
	// Re-dispatching the same transition must not re-notify.
	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "abc")}); err != nil {
		t.Fatalf("expected second dispatch to be a no-op, got %v", err)
	}
	if got := notifier.byKind(KindInvoicePaid); len(got) != 1 {
		t.Fatalf("expected one notification despite refresh failure, got %d", len(got))
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSeenEntriesPrunedAfterRetention(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	d, err := NewDispatcher(
		notifier,
		&stubRefresher{},
		stubAssets{},
		NewDialogRegistry(),
		testLogger(),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "h1")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Within the window the entry still dedupes.
	clock.advance(time.Minute)
	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-1", "h1")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := len(notifier.byKind(KindInvoicePaid)); got != 1 {
		t.Fatalf("expected dedupe within retention, got %d notifications", got)
	}

	clock.advance(seenRetention + time.Minute)
	if err := d.Dispatch(context.Background(), []domain.Transition{paidTransition("inv-2", "h2")}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	d.mu.Lock()
	size := len(d.seen)
	d.mu.Unlock()
	if size != 1 {
		t.Fatalf("expected stale entries to be evicted, map holds %d", size)
	}
}

func TestEstimateBalancesClampsAtZero(t *testing.T) {
	assets := []domain.Asset{
		{AssetID: "asset-1", UserBalance: decimal.NewFromInt(10)},
		{AssetID: "asset-2", UserBalance: decimal.NewFromInt(7)},
	}
	payment := domain.Payment{AssetID: "asset-1", AssetAmount: decimal.NewFromInt(25)}

	estimated := EstimateBalances(assets, payment)
	if !estimated[0].UserBalance.Equal(decimal.Zero) {
		t.Fatalf("expected clamp to zero, got %s", estimated[0].UserBalance)
	}
	if !estimated[1].UserBalance.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected untouched balance, got %s", estimated[1].UserBalance)
	}
	if !assets[0].UserBalance.Equal(decimal.NewFromInt(10)) {
		t.Fatal("expected original snapshot to stay unmodified")
	}
}
