package view

import (
	"strings"
	"time"

	"taproot-sync/internal/wallet/domain"
)

// DefaultPageSize is the fixed page size of the transaction list.
const DefaultPageSize = 10

// Filter selects and pages the combined transaction list. Zero values mean
// "no constraint".
type Filter struct {
	Direction Direction // empty = all
	Status    string    // empty = all
	Text      string    // case-insensitive substring over memo and payment hash
	DateFrom  time.Time // inclusive from 00:00:00 local
	DateTo    time.Time // inclusive until 23:59:59 local
	Page      int       // 1-based
	PageSize  int
}

// Page is one page of the filtered transaction list.
type Page struct {
	Items     []Transaction `json:"items"`
	Page      int           `json:"page"`
	PageCount int           `json:"page_count"`
	Total     int           `json:"total"`
}

// Build derives the filtered, paginated transaction page from the current
// collections. Filters apply in order: direction, status, text, date range.
func Build(invoices []domain.Invoice, payments []domain.Payment, filter Filter, now time.Time) Page {
	merged := merge(invoices, payments, now)

	filtered := merged[:0:0]
	needle := strings.ToLower(strings.TrimSpace(filter.Text))
	for _, tx := range merged {
		if filter.Direction != "" && tx.Direction != filter.Direction {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(tx.Memo), needle) &&
			!strings.Contains(strings.ToLower(tx.PaymentHash), needle) {
			continue
		}
		if !inDateRange(tx.CreatedAt, filter.DateFrom, filter.DateTo) {
			continue
		}
		filtered = append(filtered, tx)
	}

	return paginate(filtered, filter.Page, filter.PageSize)
}

// inDateRange checks local calendar days: from is inclusive at 00:00:00,
// to is inclusive at 23:59:59.
func inDateRange(at time.Time, from, to time.Time) bool {
	local := at.Local()
	if !from.IsZero() {
		start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)
		if local.Before(start) {
			return false
		}
	}
	if !to.IsZero() {
		end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.Local)
		if local.After(end) {
			return false
		}
	}
	return true
}

// paginate slices one page out of the filtered list. The page index resets
// to 1 when the requested page's start offset is no longer inside the
// filtered result.
func paginate(items []Transaction, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	total := len(items)
	pageCount := (total + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}
	if (page-1)*pageSize >= total {
		page = 1
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	pageItems := make([]Transaction, end-start)
	copy(pageItems, items[start:end])
	return Page{
		Items:     pageItems,
		Page:      page,
		PageCount: pageCount,
		Total:     total,
	}
}
