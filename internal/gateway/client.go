package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"taproot-sync/internal/wallet/domain"
)

// Client is a minimal REST client for the wallet backend.
type Client struct {
	baseURL string
	tokens  *TokenSource
	userID  string
	client  *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// NewClient constructs a gateway client for one user.
func NewClient(baseURL string, tokens *TokenSource, userID string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: empty base url")
	}
	if tokens == nil {
		return nil, errors.New("gateway: nil token source")
	}
	if userID == "" {
		return nil, errors.New("gateway: empty user id")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		userID:  userID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchAssets returns the current asset snapshot, filtered to channel-backed
// assets the wallet can transact with.
func (c *Client) FetchAssets(ctx context.Context) ([]domain.Asset, error) {
	var assets []domain.Asset
	if err := c.doJSON(ctx, http.MethodGet, "/listassets", nil, &assets); err != nil {
		return nil, err
	}
	return domain.FilterChannelAssets(assets), nil
}

// FetchInvoices returns the backend's invoice view for the user.
func (c *Client) FetchInvoices(ctx context.Context) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	if err := c.doJSON(ctx, http.MethodGet, "/invoices", nil, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// FetchPayments returns the backend's payment view for the user.
func (c *Client) FetchPayments(ctx context.Context) ([]domain.Payment, error) {
	var payments []domain.Payment
	if err := c.doJSON(ctx, http.MethodGet, "/payments", nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// InvoiceRequest asks the backend to create an asset invoice.
type InvoiceRequest struct {
	AssetID string          `json:"asset_id"`
	Amount  decimal.Decimal `json:"amount"`
	Memo    string          `json:"memo,omitempty"`
	Expiry  int64           `json:"expiry,omitempty"`
}

// CreateInvoice submits an invoice creation request.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (domain.Invoice, error) {
	if req.AssetID == "" {
		return domain.Invoice{}, errors.New("gateway: invoice request missing asset id")
	}
	var invoice domain.Invoice
	if err := c.doJSON(ctx, http.MethodPost, "/invoice", req, &invoice); err != nil {
		return domain.Invoice{}, err
	}
	return invoice, nil
}

// PaymentRequest asks the backend to pay an asset invoice.
type PaymentRequest struct {
	PaymentRequest string `json:"payment_request"`
	AssetID        string `json:"asset_id,omitempty"`
	FeeLimitSats   int64  `json:"fee_limit_sats,omitempty"`
}

// PayInvoice submits a payment request.
func (c *Client) PayInvoice(ctx context.Context, req PaymentRequest) (domain.Payment, error) {
	if req.PaymentRequest == "" {
		return domain.Payment{}, errors.New("gateway: empty payment request")
	}
	var payment domain.Payment
	if err := c.doJSON(ctx, http.MethodPost, "/pay", req, &payment); err != nil {
		return domain.Payment{}, err
	}
	return payment, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	token, err := c.tokens.Token(c.userID)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway: %s %s returned %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
