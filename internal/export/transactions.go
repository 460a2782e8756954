// Package export renders transaction history as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"taproot-sync/internal/observability/metrics"
	"taproot-sync/internal/view"
)

// BuildTransactionsPDF renders a transaction history PDF.
func BuildTransactionsPDF(userID string, transactions []view.Transaction, generatedAt time.Time) ([]byte, error) {
	started := time.Now()
	data, err := buildTransactionsPDF(userID, transactions, generatedAt)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport("pdf", result, time.Since(started))
	return data, err
}

func buildTransactionsPDF(userID string, transactions []view.Transaction, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Transaction History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("User: %s", userID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Transactions: %d", len(transactions)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(32, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Direction", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, "Asset", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(52, 6, "Memo", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, tx := range transactions {
		pdf.CellFormat(32, 6, tx.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, string(tx.Direction), "1", 0, "C", false, 0, "")
		pdf.CellFormat(34, 6, tx.AssetID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, tx.AssetAmount.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(22, 6, tx.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(52, 6, tx.Memo, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTransactionsXLSX renders a transaction history workbook with a
// summary sheet and one row per transaction.
func BuildTransactionsXLSX(userID string, transactions []view.Transaction, generatedAt time.Time) ([]byte, error) {
	started := time.Now()
	data, err := buildTransactionsXLSX(userID, transactions, generatedAt)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport("xlsx", result, time.Since(started))
	return data, err
}

func buildTransactionsXLSX(userID string, transactions []view.Transaction, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	txSheet := "transactions"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(txSheet)

	var incoming, outgoing int
	for _, tx := range transactions {
		if tx.Direction == view.DirectionIncoming {
			incoming++
		} else {
			outgoing++
		}
	}

	_ = f.SetCellValue(summarySheet, "A1", "Transaction History")
	_ = f.SetCellValue(summarySheet, "A3", "User")
	_ = f.SetCellValue(summarySheet, "B3", userID)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", generatedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Transactions")
	_ = f.SetCellValue(summarySheet, "B5", len(transactions))
	_ = f.SetCellValue(summarySheet, "A6", "Incoming")
	_ = f.SetCellValue(summarySheet, "B6", incoming)
	_ = f.SetCellValue(summarySheet, "A7", "Outgoing")
	_ = f.SetCellValue(summarySheet, "B7", outgoing)

	_ = f.SetCellValue(txSheet, "A1", "Date")
	_ = f.SetCellValue(txSheet, "B1", "Direction")
	_ = f.SetCellValue(txSheet, "C1", "Asset")
	_ = f.SetCellValue(txSheet, "D1", "Amount")
	_ = f.SetCellValue(txSheet, "E1", "Status")
	_ = f.SetCellValue(txSheet, "F1", "Memo")
	_ = f.SetCellValue(txSheet, "G1", "Payment Hash")
	for i, tx := range transactions {
		row := i + 2
		_ = f.SetCellValue(txSheet, fmt.Sprintf("A%d", row), tx.Date)
		_ = f.SetCellValue(txSheet, fmt.Sprintf("B%d", row), string(tx.Direction))
		_ = f.SetCellValue(txSheet, fmt.Sprintf("C%d", row), tx.AssetID)
		_ = f.SetCellValue(txSheet, fmt.Sprintf("D%d", row), tx.AssetAmount.String())
		_ = f.SetCellValue(txSheet, fmt.Sprintf("E%d", row), tx.Status)
		_ = f.SetCellValue(txSheet, fmt.Sprintf("F%d", row), tx.Memo)
		_ = f.SetCellValue(txSheet, fmt.Sprintf("G%d", row), tx.PaymentHash)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
