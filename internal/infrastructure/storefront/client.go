// Package storefront implements the sync.Client port against the
// storefront's XML/REST API.
package storefront

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// maxResponseSize is the maximum allowed response size from the API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxBatchPerRequest caps the records sent in one create/update request
const maxBatchPerRequest = 15

// Client talks to the storefront REST endpoints. Authenticate performs the
// key exchange once; the negotiated active key rides on every later request.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	logger     *zap.Logger

	activeKey string
	keyType   string
}

// NewClient creates a storefront client with the given configuration
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("storefront"),
	}, nil
}

// Name returns the system name used in logs and reports
func (c *Client) Name() string {
	return "storefront"
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Authenticate performs the two-step key exchange: TestSubmit returns a
// candidate key and its placement, TestVerify echoes it back and yields the
// active key used for the rest of the session.
func (c *Client) Authenticate(ctx context.Context) error {
	submit := testSubmitRequest{
		Credentials: xmlCredentials{
			AccountName: c.cfg.Account,
			UserID:      c.cfg.UserID,
			Password:    c.cfg.Password,
		},
	}
	var submitResp testSubmitResponse
	if err := c.do(ctx, "testsubmit.rest", &submit, &submitResp); err != nil {
		return fmt.Errorf("%w: %v", sync.ErrAuthFailed, err)
	}
	if err := submitResp.check(); err != nil {
		return err
	}
	if submitResp.Key.Value == "" {
		return fmt.Errorf("%w: no key in TestSubmit response", sync.ErrAuthFailed)
	}

	keyType := submitResp.Key.Type
	if keyType != keyTypeNode && keyType != keyTypeAttribute {
		return fmt.Errorf("%w: unknown key type %q", sync.ErrAuthFailed, keyType)
	}

	verify := testVerifyRequest{
		Credentials: c.keyCredentials(submitResp.Key.Value, keyType),
	}
	var verifyResp testVerifyResponse
	if err := c.do(ctx, "testverify.rest", &verify, &verifyResp); err != nil {
		return fmt.Errorf("%w: %v", sync.ErrAuthFailed, err)
	}
	if err := verifyResp.check(); err != nil {
		return err
	}
	if verifyResp.ActiveKey == "" {
		return fmt.Errorf("%w: no active key in TestVerify response", sync.ErrAuthFailed)
	}

	c.activeKey = verifyResp.ActiveKey
	c.keyType = keyType
	c.logger.Debug("session established", zap.String("key_type", keyType))
	return nil
}

// Close ends the session. The storefront key simply expires server-side.
func (c *Client) Close(ctx context.Context) error {
	c.activeKey = ""
	return nil
}

// credentials returns the credential block for an authenticated request
func (c *Client) credentials() xmlCredentials {
	return c.keyCredentials(c.activeKey, c.keyType)
}

// keyCredentials places key as a node or attribute per keyType
func (c *Client) keyCredentials(key, keyType string) xmlCredentials {
	creds := xmlCredentials{AccountName: c.cfg.Account}
	if keyType == keyTypeAttribute {
		creds.KeyAttr = key
	} else {
		creds.Key = key
	}
	return creds
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// QueryOrders returns one page of orders in the request's date range
func (c *Client) QueryOrders(ctx context.Context, req *sync.QueryOrdersRequest) (*sync.QueryOrdersResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := orderQueryRequest{
		Credentials: c.credentials(),
		OrderRange: &xmlDateRange{
			Start: req.Start.Format(wireDateFormat),
			End:   req.End.Format(wireDateFormat),
		},
		Page: req.Page,
	}
	if req.Status != nil {
		query.BillingStatus = req.Status.String()
	}

	var resp orderQueryResponse
	if err := c.do(ctx, "orderquery.rest", &query, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}

	out := &sync.QueryOrdersResponse{
		Orders:  make([]sync.Order, 0, len(resp.Orders)),
		HasMore: resp.NextPage != nil,
	}
	if out.HasMore {
		out.NextPage = req.Page + 1
	}
	for i := range resp.Orders {
		out.Orders = append(out.Orders, c.toDomainOrder(&resp.Orders[i]))
	}
	c.logger.Debug("orders page pulled",
		zap.Int("page", req.Page),
		zap.Int("orders", len(out.Orders)),
		zap.Bool("has_more", out.HasMore))
	return out, nil
}

// QueryOrderByRef returns the orders with the given order number
func (c *Client) QueryOrderByRef(ctx context.Context, ref string) ([]sync.Order, error) {
	query := orderQueryRequest{
		Credentials: c.credentials(),
		OrderNo:     ref,
	}
	var resp orderQueryResponse
	if err := c.do(ctx, "orderquery.rest", &query, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	if len(resp.Orders) == 0 {
		return nil, fmt.Errorf("%w: order %s", sync.ErrNotFound, ref)
	}
	orders := make([]sync.Order, 0, len(resp.Orders))
	for i := range resp.Orders {
		orders = append(orders, c.toDomainOrder(&resp.Orders[i]))
	}
	return orders, nil
}

// CreateOrder writes a mapped order to the storefront
func (c *Client) CreateOrder(ctx context.Context, draft *sync.OrderDraft) (*sync.Order, error) {
	wire := xmlDraftOrder{
		ExternalRef: draft.RefNumber,
		OrderDate:   draft.Date.Format(wireTimeFormat),
		CustomerNo:  draft.CustomerID,
		BillTo:      toDraftAddress(draft.BillAddress),
		ShipTo:      toDraftAddress(draft.ShipAddress),
		Comments:    draft.Memo,
	}
	if draft.SalesTax.IsPositive() {
		wire.SalesTax = draft.SalesTax.StringFixed(2)
	}
	for _, l := range draft.Lines {
		wire.Lines = append(wire.Lines, xmlDraftLine{
			SKU:         l.ItemCode,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.Rate.StringFixed(2),
			ExtPrice:    l.Amount.StringFixed(2),
		})
	}
	if draft.SourceID != "" {
		wire.CustomFields = []xmlCustomField{{Name: c.cfg.CrossRefField, Value: draft.SourceID}}
	}

	req := orderCreateRequest{
		Credentials: c.credentials(),
		Orders:      []xmlDraftOrder{wire},
	}
	var resp orderCreateResponse
	if err := c.do(ctx, "ordercreate.rest", &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	if len(resp.Orders) == 0 {
		return nil, fmt.Errorf("%w: no order in create response", sync.ErrInvalidResponse)
	}
	created := c.toDomainOrder(&resp.Orders[0])
	c.logger.Debug("order created", zap.String("order_no", created.ID))
	return &created, nil
}

// ---------------------------------------------------------------------------
// Customer Operations
// ---------------------------------------------------------------------------

// QueryCustomerByID looks a customer up by customer number
func (c *Client) QueryCustomerByID(ctx context.Context, id string) (*sync.Customer, error) {
	return c.queryCustomer(ctx, customerQueryRequest{
		Credentials: c.credentials(),
		CustomerNo:  id,
	})
}

// QueryCustomerByName looks a customer up by display name
func (c *Client) QueryCustomerByName(ctx context.Context, name string) (*sync.Customer, error) {
	return c.queryCustomer(ctx, customerQueryRequest{
		Credentials: c.credentials(),
		Name:        name,
	})
}

func (c *Client) queryCustomer(ctx context.Context, query customerQueryRequest) (*sync.Customer, error) {
	var resp customerQueryResponse
	if err := c.do(ctx, "customerquery.rest", &query, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	if len(resp.Customers) == 0 {
		return nil, fmt.Errorf("%w: customer %s%s", sync.ErrNotFound, query.CustomerNo, query.Name)
	}
	cust := c.toDomainCustomer(&resp.Customers[0])
	return &cust, nil
}

// CreateCustomer writes a mapped customer to the storefront
func (c *Client) CreateCustomer(ctx context.Context, draft *sync.CustomerDraft) (*sync.Customer, error) {
	wire := xmlCustomer{
		Type:      draft.Type.String(),
		FirstName: draft.FirstName,
		LastName:  draft.LastName,
		Company:   draft.Company,
		Email:     draft.Email,
		Phone:     draft.Phone,
	}
	if draft.SourceID != "" {
		wire.CustomFields = []xmlCustomField{{Name: c.cfg.CrossRefField, Value: draft.SourceID}}
	}

	req := customerUpdateRequest{
		Mode:        "Add",
		Credentials: c.credentials(),
		Customers:   []xmlCustomer{wire},
	}
	var resp customerUpdateResponse
	if err := c.do(ctx, "customerupdate.rest", &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	if len(resp.Customers) == 0 {
		return nil, fmt.Errorf("%w: no customer in create response", sync.ErrInvalidResponse)
	}
	created := c.toDomainCustomer(&resp.Customers[0])
	c.logger.Debug("customer created", zap.String("customer_no", created.ID))
	return &created, nil
}

// SetCrossReference stores the opposite system's identifier on a record
func (c *Client) SetCrossReference(ctx context.Context, kind sync.EntityKind, entityID, key, value string) error {
	field := []xmlCustomField{{Name: key, Value: value}}

	switch kind {
	case sync.EntityKindCustomer:
		req := customerUpdateRequest{
			Mode:        "Update",
			Credentials: c.credentials(),
			Customers:   []xmlCustomer{{CustomerNo: entityID, CustomFields: field}},
		}
		var resp customerUpdateResponse
		if err := c.do(ctx, "customerupdate.rest", &req, &resp); err != nil {
			return err
		}
		return resp.check()
	case sync.EntityKindOrder:
		req := orderUpdateRequest{
			Credentials:  c.credentials(),
			OrderNo:      entityID,
			CustomFields: field,
		}
		var resp orderUpdateResponse
		if err := c.do(ctx, "orderupdate.rest", &req, &resp); err != nil {
			return err
		}
		return resp.check()
	default:
		return fmt.Errorf("%w: unknown entity kind %q", sync.ErrValidation, kind)
	}
}

// ---------------------------------------------------------------------------
// Inventory Operations
// ---------------------------------------------------------------------------

// UpdateInventory pushes stock quantities to the storefront in batches
func (c *Client) UpdateInventory(ctx context.Context, items []sync.InventoryItem) error {
	for start := 0; start < len(items); start += maxBatchPerRequest {
		end := start + maxBatchPerRequest
		if end > len(items) {
			end = len(items)
		}

		req := inventoryUpdateRequest{Credentials: c.credentials()}
		for _, item := range items[start:end] {
			req.Items = append(req.Items, xmlInventory{SKU: item.SKU, QOH: item.QuantityOnHand})
		}

		var resp inventoryUpdateResponse
		if err := c.do(ctx, "inventoryupdate.rest", &req, &resp); err != nil {
			return err
		}
		if err := resp.check(); err != nil {
			return err
		}
		c.logger.Debug("inventory batch pushed", zap.Int("items", end-start))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// do marshals request, POSTs it to the named tool endpoint and unmarshals
// the response body into out
func (c *Client) do(ctx context.Context, tool string, request, out any) error {
	body, err := xml.Marshal(request)
	if err != nil {
		return fmt.Errorf("storefront: failed to marshal request: %w", err)
	}

	url := c.cfg.URL + "/" + tool
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return fmt.Errorf("storefront: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sync.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("storefront: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", sync.ErrRequestFailed, resp.StatusCode)
	}

	if err := xml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", sync.ErrInvalidResponse, err)
	}
	c.logger.Debug("request complete",
		zap.String("tool", tool),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Ensure Client implements the port interfaces
var (
	_ sync.Client          = (*Client)(nil)
	_ sync.InventoryTarget = (*Client)(nil)
)
