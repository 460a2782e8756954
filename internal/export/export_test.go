package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"taproot-sync/internal/view"
)

func sampleTransactions() []view.Transaction {
	return []view.Transaction{
		{
			ID:          "inv-1",
			Direction:   view.DirectionIncoming,
			PaymentHash: "hash-1",
			AssetID:     "asset-1",
			AssetAmount: decimal.NewFromInt(21),
			Memo:        "coffee",
			Status:      "paid",
			Date:        "2026-08-20 10:00",
		},
		{
			ID:          "pay-1",
			Direction:   view.DirectionOutgoing,
			PaymentHash: "hash-2",
			AssetID:     "asset-1",
			AssetAmount: decimal.NewFromInt(5),
			Status:      "completed",
			Date:        "2026-08-21 11:30",
		},
	}
}

func TestBuildTransactionsXLSX(t *testing.T) {
	data, err := BuildTransactionsXLSX("user-1", sampleTransactions(), time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildTransactionsXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	user, err := f.GetCellValue("summary", "B3")
	if err != nil || user != "user-1" {
		t.Fatalf("summary user = %q err=%v, want user-1", user, err)
	}
	direction, err := f.GetCellValue("transactions", "B3")
	if err != nil || direction != "outgoing" {
		t.Fatalf("row 2 direction = %q err=%v, want outgoing", direction, err)
	}
	amount, err := f.GetCellValue("transactions", "D2")
	if err != nil || amount != "21" {
		t.Fatalf("row 1 amount = %q err=%v, want 21", amount, err)
	}
}

func TestBuildTransactionsPDF(t *testing.T) {
	data, err := BuildTransactionsPDF("user-1", sampleTransactions(), time.Now())
	if err != nil {
		t.Fatalf("BuildTransactionsPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output does not start with PDF header")
	}
}

func TestBuildTransactionsXLSXEmpty(t *testing.T) {
	data, err := BuildTransactionsXLSX("user-1", nil, time.Now())
	if err != nil {
		t.Fatalf("BuildTransactionsXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	count, err := f.GetCellValue("summary", "B5")
	if err != nil || count != "0" {
		t.Fatalf("transaction count = %q err=%v, want 0", count, err)
	}
}
