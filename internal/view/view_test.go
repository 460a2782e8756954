package view

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"taproot-sync/internal/wallet/domain"
)

var testNow = time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

func invoiceAt(id string, at time.Time) domain.Invoice {
	return domain.Invoice{
		ID:          id,
		PaymentHash: "in-hash-" + id,
		AssetID:     "asset-1",
		AssetAmount: decimal.NewFromInt(10),
		Status:      domain.InvoiceStatusPending,
		CreatedAt:   at,
	}
}

func paymentAt(id string, at time.Time) domain.Payment {
	return domain.Payment{
		ID:          id,
		PaymentHash: "out-hash-" + id,
		AssetID:     "asset-1",
		AssetAmount: decimal.NewFromInt(5),
		Status:      domain.PaymentStatusCompleted,
		CreatedAt:   at,
	}
}

func fiveTransactions() ([]domain.Invoice, []domain.Payment) {
	base := testNow.Add(-5 * time.Hour)
	invoices := []domain.Invoice{
		invoiceAt("i1", base.Add(1*time.Hour)),
		invoiceAt("i2", base.Add(3*time.Hour)),
		invoiceAt("i3", base.Add(4*time.Hour)),
	}
	payments := []domain.Payment{
		paymentAt("p1", base.Add(2*time.Hour)),
		paymentAt("p2", base.Add(5*time.Hour)),
	}
	return invoices, payments
}

func TestBuildSortsDescendingWithStableTieBreak(t *testing.T) {
	invoices, payments := fiveTransactions()
	page := Build(invoices, payments, Filter{}, testNow)

	if page.Total != 5 {
		t.Fatalf("expected 5 transactions, got %d", page.Total)
	}
	wantOrder := []string{"p2", "i3", "i2", "p1", "i1"}
	for i, want := range wantOrder {
		if page.Items[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, page.Items[i].ID)
		}
	}

	// Equal timestamps break ties by identity ascending.
	same := testNow.Add(-time.Hour)
	tied := Build(
		[]domain.Invoice{invoiceAt("b", same), invoiceAt("a", same)},
		nil,
		Filter{},
		testNow,
	)
	if tied.Items[0].ID != "a" || tied.Items[1].ID != "b" {
		t.Fatalf("expected identity tie-break, got %s then %s", tied.Items[0].ID, tied.Items[1].ID)
	}
}

func TestDirectionFilter(t *testing.T) {
	invoices, payments := fiveTransactions()
	page := Build(invoices, payments, Filter{Direction: DirectionIncoming}, testNow)

	if page.Total != 3 {
		t.Fatalf("expected 3 incoming transactions, got %d", page.Total)
	}
	var last time.Time
	for i, tx := range page.Items {
		if tx.Direction != DirectionIncoming {
			t.Fatalf("unexpected direction %s", tx.Direction)
		}
		if i > 0 && tx.CreatedAt.After(last) {
			t.Fatal("expected descending createdAt order")
		}
		last = tx.CreatedAt
	}
}

func TestStatusAndTextFilters(t *testing.T) {
	invoices, payments := fiveTransactions()
	invoices[0].Status = domain.InvoiceStatusPaid
	invoices[0].Memo = "Coffee with ALICE"

	byStatus := Build(invoices, payments, Filter{Status: string(domain.InvoiceStatusPaid)}, testNow)
	if byStatus.Total != 1 || byStatus.Items[0].ID != "i1" {
		t.Fatalf("unexpected status filter result: %+v", byStatus.Items)
	}

	byMemo := Build(invoices, payments, Filter{Text: "alice"}, testNow)
	if byMemo.Total != 1 || byMemo.Items[0].ID != "i1" {
		t.Fatalf("expected case-insensitive memo match, got %+v", byMemo.Items)
	}

	byHash := Build(invoices, payments, Filter{Text: "out-hash-p2"}, testNow)
	if byHash.Total != 1 || byHash.Items[0].ID != "p2" {
		t.Fatalf("expected payment hash match, got %+v", byHash.Items)
	}
}

func TestDateRangeFilterUsesCalendarDays(t *testing.T) {
	dayOne := time.Date(2026, 8, 1, 23, 30, 0, 0, time.Local)
	dayTwo := time.Date(2026, 8, 2, 0, 30, 0, 0, time.Local)
	invoices := []domain.Invoice{invoiceAt("d1", dayOne), invoiceAt("d2", dayTwo)}

	from := time.Date(2026, 8, 2, 15, 0, 0, 0, time.Local)
	page := Build(invoices, nil, Filter{DateFrom: from, DateTo: from}, testNow)
	if page.Total != 1 || page.Items[0].ID != "d2" {
		t.Fatalf("expected only the day-two entry, got %+v", page.Items)
	}
}

func TestPaginationResetsWhenOffsetOutOfRange(t *testing.T) {
	invoices, payments := fiveTransactions()

	page := Build(invoices, payments, Filter{Page: 2, PageSize: 2}, testNow)
	if page.Page != 2 || len(page.Items) != 2 || page.PageCount != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}

	// A narrower filter drops the result below the old offset: reset to 1.
	reset := Build(invoices, payments, Filter{Direction: DirectionOutgoing, Page: 3, PageSize: 2}, testNow)
	if reset.Page != 1 {
		t.Fatalf("expected page reset to 1, got %d", reset.Page)
	}
	if reset.Total != 2 {
		t.Fatalf("expected 2 outgoing transactions, got %d", reset.Total)
	}
}

func TestFormattingDoesNotMutateEntities(t *testing.T) {
	inv := invoiceAt("i1", testNow.Add(-30*time.Minute))
	before := inv
	page := Build([]domain.Invoice{inv}, nil, Filter{}, testNow)

	if page.Items[0].RelativeTime != "30m ago" {
		t.Fatalf("unexpected relative time %q", page.Items[0].RelativeTime)
	}
	if page.Items[0].Date == "" {
		t.Fatal("expected a formatted date")
	}
	if !inv.EqualIgnoringStatus(before) || inv.Status != before.Status {
		t.Fatal("expected canonical entity to remain untouched")
	}
}
