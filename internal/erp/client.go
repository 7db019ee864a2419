package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"opsconsole/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means the ERP has no record for the given reference.
	ErrNotFound = errors.New("erp: not found")
	// ErrUnavailable means the ERP answered with a server-side failure; the
	// operation is retryable and no local state should change.
	ErrUnavailable = errors.New("erp: unavailable")
	// ErrRejected means the ERP refused the command (validation, illegal
	// transition, double-booked vehicle). The body message is wrapped in.
	ErrRejected = errors.New("erp: rejected")
)

// PaymentIntent is the server-issued reference the hosted checkout widget is
// configured with.
type PaymentIntent struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// Vehicle is one entry of the fleet roster's available-vehicle pool.
type Vehicle struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	VehicleType  string `json:"vehicle_type"`
	CapacityNote string `json:"capacity_note,omitempty"`
}

// Driver is one entry of the fleet roster's available-driver pool.
type Driver struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Customer is the master record keyed by phone number.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	GSTIN   string `json:"gstin,omitempty"`
	Address string `json:"address,omitempty"`
}

// LedgerSummary is the ageing view of a customer's outstanding balance.
type LedgerSummary struct {
	CustomerID  string          `json:"customer_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Current     decimal.Decimal `json:"current"`
	Days30      decimal.Decimal `json:"days_30"`
	Days60      decimal.Decimal `json:"days_60"`
	Days90Plus  decimal.Decimal `json:"days_90_plus"`
}

// Profile is the business profile of the authenticated tenant.
type Profile struct {
	BusinessName string `json:"business_name"`
	GSTIN        string `json:"gstin,omitempty"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Address      string `json:"address"`
}

// EmailRequest asks the ERP to send a document through its transactional
// mailer.
type EmailRequest struct {
	OrderID      string `json:"order_id"`
	OrderKind    string `json:"order_kind"`
	DocumentType string `json:"document_type"`
	Recipient    string `json:"recipient"`
	Message      string `json:"message,omitempty"`
}

// AssignmentRequest creates a dispatch assignment; the ERP notifies the
// customer as a side effect of accepting it.
type AssignmentRequest struct {
	OrderID   string `json:"order_id"`
	OrderKind string `json:"order_kind"`
	VehicleID string `json:"vehicle_id"`
	DriverID  string `json:"driver_id"`
	ETA       string `json:"eta,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// JobWorkStatusRequest updates a job-work order's production status and/or
// records a breakage event. Status empty means breakage only.
type JobWorkStatusRequest struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status,omitempty"`
	Notes         string `json:"notes,omitempty"`
	BreakageCount int    `json:"breakage_count,omitempty"`
	BreakageNotes string `json:"breakage_notes,omitempty"`
}

// Client is the HTTP client for the upstream ERP backend. Every mutating
// method is a single round trip; callers refetch orders afterwards instead of
// patching local state.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client for the given ERP base URL. The apiKey
// authenticates the already-established service channel.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Order feeds ---

func (c *Client) FetchRegularOrders(ctx context.Context) ([]model.RegularOrder, error) {
	var out []model.RegularOrder
	if err := c.get(ctx, "/api/orders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchJobWorkOrders(ctx context.Context) ([]model.JobWorkOrder, error) {
	var out []model.JobWorkOrder
	if err := c.get(ctx, "/api/job-works", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Master data ---

func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.get(ctx, "/api/profile", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	var out Customer
	if err := c.get(ctx, "/api/customers?phone="+url.QueryEscape(phone), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchLedgerSummary(ctx context.Context, customerID string) (*LedgerSummary, error) {
	var out LedgerSummary
	if err := c.get(ctx, "/api/customers/"+url.PathEscape(customerID)+"/ledger", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Payments ---

func (c *Client) RecordRemainingCashPreference(ctx context.Context, orderID string) error {
	return c.post(ctx, "/api/orders/"+url.PathEscape(orderID)+"/remaining-payment/cash-preference", nil, nil)
}

func (c *Client) InitiateRemainingPayment(ctx context.Context, orderID string) (*PaymentIntent, error) {
	var out PaymentIntent
	if err := c.post(ctx, "/api/orders/"+url.PathEscape(orderID)+"/remaining-payment/initiate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyRemainingPayment(ctx context.Context, orderID, paymentID, signature string) error {
	body := map[string]string{"payment_id": paymentID, "signature": signature}
	return c.post(ctx, "/api/orders/"+url.PathEscape(orderID)+"/remaining-payment/verify", body, nil)
}

func (c *Client) RecordJobWorkCashPreference(ctx context.Context, orderID string) error {
	return c.post(ctx, "/api/job-works/"+url.PathEscape(orderID)+"/payment/cash-preference", nil, nil)
}

func (c *Client) InitiateJobWorkPayment(ctx context.Context, orderID string) (*PaymentIntent, error) {
	var out PaymentIntent
	if err := c.post(ctx, "/api/job-works/"+url.PathEscape(orderID)+"/payment/initiate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyJobWorkPayment(ctx context.Context, orderID, paymentID, signature string) error {
	body := map[string]string{"payment_id": paymentID, "signature": signature}
	return c.post(ctx, "/api/job-works/"+url.PathEscape(orderID)+"/payment/verify", body, nil)
}

// --- Documents ---

// DocumentURL resolves the viewing URL for a generated document. Job-work
// invoices live under a different endpoint than regular ones; the other
// document types share paths across kinds. No network call is made here;
// the path scheme is part of the ERP's public contract.
func (c *Client) DocumentURL(orderID, documentType, kind string) (string, error) {
	id := url.PathEscape(orderID)
	switch documentType {
	case model.DocInvoice:
		if kind == model.KindJobWork {
			return c.baseURL + "/api/job-works/" + id + "/invoice.pdf", nil
		}
		return c.baseURL + "/api/orders/" + id + "/invoice.pdf", nil
	case model.DocReceipt:
		return c.baseURL + "/api/documents/" + id + "/receipt.pdf", nil
	case model.DocMerged:
		return c.baseURL + "/api/documents/" + id + "/merged.pdf", nil
	case model.DocDeliverySlip:
		return c.baseURL + "/api/documents/" + id + "/delivery-slip.pdf", nil
	default:
		return "", fmt.Errorf("unknown document type %q", documentType)
	}
}

func (c *Client) SendDocumentEmail(ctx context.Context, req EmailRequest) error {
	return c.post(ctx, "/api/documents/email", req, nil)
}

// --- Fulfillment ---

func (c *Client) AttachTransportCharge(ctx context.Context, orderID string, amount decimal.Decimal, note, vehicleType string) error {
	body := map[string]interface{}{
		"amount":       amount,
		"note":         note,
		"vehicle_type": vehicleType,
	}
	return c.post(ctx, "/api/orders/"+url.PathEscape(orderID)+"/transport-charge", body, nil)
}

func (c *Client) CreateDispatchSlip(ctx context.Context, orderID string) (string, error) {
	var out struct {
		SlipNumber string `json:"slip_number"`
	}
	if err := c.post(ctx, "/api/orders/"+url.PathEscape(orderID)+"/dispatch-slip", nil, &out); err != nil {
		return "", err
	}
	return out.SlipNumber, nil
}

func (c *Client) FetchAvailableVehicles(ctx context.Context) ([]Vehicle, error) {
	var out []Vehicle
	if err := c.get(ctx, "/api/fleet/vehicles?available=true", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchAvailableDrivers(ctx context.Context) ([]Driver, error) {
	var out []Driver
	if err := c.get(ctx, "/api/fleet/drivers?available=true", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateDispatchAssignment(ctx context.Context, req AssignmentRequest) error {
	return c.post(ctx, "/api/orders/"+url.PathEscape(req.OrderID)+"/dispatch-assignment", req, nil)
}

func (c *Client) UpdateJobWorkStatus(ctx context.Context, req JobWorkStatusRequest) error {
	return c.post(ctx, "/api/job-works/"+url.PathEscape(req.OrderID)+"/status", req, nil)
}

// MarkOrderDispatched is the legacy dispatch path for regular orders that
// predates vehicle assignment.
func (c *Client) MarkOrderDispatched(ctx context.Context, orderID string) error {
	return c.post(ctx, "/api/orders/"+url.PathEscape(orderID)+"/dispatched", nil, nil)
}

// --- plumbing ---

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode erp response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		msg := payload.Error
		if msg == "" {
			msg = payload.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
}
