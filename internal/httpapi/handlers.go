// Package httpapi exposes the wallet session over HTTP: transaction queries,
// sync status, invoice/payment submission, exports and the event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"taproot-sync/internal/export"
	"taproot-sync/internal/gateway"
	"taproot-sync/internal/sync/connection"
	"taproot-sync/internal/view"
	"taproot-sync/internal/wallet/domain"
)

const dateQueryLayout = "2006-01-02"

// Session is the wallet session surface the handlers consume.
type Session interface {
	Transactions(filter view.Filter) view.Page
	Assets() []domain.Asset
	SyncStatus() connection.SyncStatus
	CreateInvoice(ctx context.Context, req gateway.InvoiceRequest) (domain.Invoice, error)
	PayInvoice(ctx context.Context, req gateway.PaymentRequest) (domain.Payment, error)
}

// TransactionsHandler serves filtered transaction pages.
type TransactionsHandler struct {
	session Session
}

// NewTransactionsHandler constructs a TransactionsHandler.
func NewTransactionsHandler(session Session) *TransactionsHandler {
	return &TransactionsHandler{session: session}
}

// ServeHTTP handles GET /api/v1/transactions.
func (h *TransactionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "session not ready", http.StatusServiceUnavailable)
		return
	}

	filter, err := parseFilterQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page := h.session.Transactions(filter)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

// SyncStatusHandler reports the connection state.
type SyncStatusHandler struct {
	session Session
}

// NewSyncStatusHandler constructs a SyncStatusHandler.
func NewSyncStatusHandler(session Session) *SyncStatusHandler {
	return &SyncStatusHandler{session: session}
}

// ServeHTTP handles GET /api/v1/sync/status.
func (h *SyncStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "session not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.session.SyncStatus())
}

// AssetsHandler serves the current asset snapshot.
type AssetsHandler struct {
	session Session
}

// NewAssetsHandler constructs an AssetsHandler.
func NewAssetsHandler(session Session) *AssetsHandler {
	return &AssetsHandler{session: session}
}

// ServeHTTP handles GET /api/v1/assets.
func (h *AssetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "session not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.session.Assets())
}

// CreateInvoiceHandler submits new invoices.
type CreateInvoiceHandler struct {
	session Session
}

// NewCreateInvoiceHandler constructs a CreateInvoiceHandler.
func NewCreateInvoiceHandler(session Session) *CreateInvoiceHandler {
	return &CreateInvoiceHandler{session: session}
}

// ServeHTTP handles POST /api/v1/invoice.
func (h *CreateInvoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "session not ready", http.StatusServiceUnavailable)
		return
	}

	var req gateway.InvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AssetID == "" {
		http.Error(w, "asset_id is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	invoice, err := h.session.CreateInvoice(r.Context(), req)
	if err != nil {
		http.Error(w, "create invoice error", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(invoice)
}

// PayInvoiceHandler submits payments.
type PayInvoiceHandler struct {
	session Session
}

// NewPayInvoiceHandler constructs a PayInvoiceHandler.
func NewPayInvoiceHandler(session Session) *PayInvoiceHandler {
	return &PayInvoiceHandler{session: session}
}

// ServeHTTP handles POST /api/v1/pay.
func (h *PayInvoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "session not ready", http.StatusServiceUnavailable)
		return
	}

	var req gateway.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PaymentRequest == "" {
		http.Error(w, "payment_request is required", http.StatusBadRequest)
		return
	}

	payment, err := h.session.PayInvoice(r.Context(), req)
	if err != nil {
		http.Error(w, "pay invoice error", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payment)
}

// ExportTransactionsHandler serves transaction history downloads.
type ExportTransactionsHandler struct {
	session Session
	userID  string
	format  string
}

// NewExportTransactionsHandler constructs an export handler for the given
// format, "xlsx" or "pdf".
func NewExportTransactionsHandler(session Session, userID, format string) *ExportTransactionsHandler {
	return &ExportTransactionsHandler{session: session, userID: userID, format: format}
}

// ServeHTTP handles GET /api/v1/exports/transactions.{xlsx,pdf}. The export
// always covers the full filtered set, never a single page.
func (h *ExportTransactionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.session == nil {
		http.Error(w, "session not ready", http.StatusServiceUnavailable)
		return
	}

	filter, err := parseFilterQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter.Page = 1
	filter.PageSize = 1 << 20

	page := h.session.Transactions(filter)

	var (
		data        []byte
		contentType string
		filename    string
	)
	switch h.format {
	case "xlsx":
		data, err = export.BuildTransactionsXLSX(h.userID, page.Items, time.Now())
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "transactions.xlsx"
	case "pdf":
		data, err = export.BuildTransactionsPDF(h.userID, page.Items, time.Now())
		contentType = "application/pdf"
		filename = "transactions.pdf"
	default:
		http.Error(w, "unsupported export format", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	_, _ = w.Write(data)
}

func parseFilterQuery(r *http.Request) (view.Filter, error) {
	query := r.URL.Query()
	filter := view.Filter{
		Status: query.Get("status"),
		Text:   query.Get("q"),
	}

	switch direction := query.Get("direction"); direction {
	case "":
	case string(view.DirectionIncoming):
		filter.Direction = view.DirectionIncoming
	case string(view.DirectionOutgoing):
		filter.Direction = view.DirectionOutgoing
	default:
		return view.Filter{}, errors.New("direction must be incoming or outgoing")
	}

	var err error
	if filter.DateFrom, err = parseDateQuery(query.Get("from")); err != nil {
		return view.Filter{}, errors.New("from must be YYYY-MM-DD")
	}
	if filter.DateTo, err = parseDateQuery(query.Get("to")); err != nil {
		return view.Filter{}, errors.New("to must be YYYY-MM-DD")
	}

	if filter.Page, err = parseIntQuery(query.Get("page")); err != nil {
		return view.Filter{}, errors.New("page must be a positive integer")
	}
	if filter.PageSize, err = parseIntQuery(query.Get("page_size")); err != nil {
		return view.Filter{}, errors.New("page_size must be a positive integer")
	}
	return filter, nil
}

func parseDateQuery(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dateQueryLayout, value, time.Local)
}

func parseIntQuery(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return parsed, nil
}
