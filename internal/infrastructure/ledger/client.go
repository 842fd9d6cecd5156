// Package ledger implements the sync.Client port against the accounting
// system's qbXML connector. The connector fronts the company file over
// HTTP; one connector session serves one sync run.
package ledger

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// maxResponseSize is the maximum allowed response size from the connector (10MB)
const maxResponseSize = 10 * 1024 * 1024

// queryPageSize is the iterator page size for sales receipt queries
const queryPageSize = 50

// Client talks to the qbXML connector
type Client struct {
	cfg        *Config
	httpClient *http.Client
	logger     *zap.Logger

	// iteratorID continues a paged receipt query across round trips
	iteratorID string
	// taxCodes caches sales-tax item names already ensured this run
	taxCodes map[string]bool
}

// NewClient creates a ledger client with the given configuration
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("ledger"),
		taxCodes:   make(map[string]bool),
	}, nil
}

// Name returns the system name used in logs and reports
func (c *Client) Name() string {
	return "ledger"
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Authenticate verifies connector credentials and company file access with
// a host query
func (c *Client) Authenticate(ctx context.Context) error {
	rs, err := c.do(ctx, &qbxmlMsgsRq{HostQuery: &hostQueryRq{}})
	if err != nil {
		return fmt.Errorf("%w: %v", sync.ErrAuthFailed, err)
	}
	if rs.HostQuery == nil {
		return fmt.Errorf("%w: no host response", sync.ErrAuthFailed)
	}
	if err := rs.HostQuery.check(); err != nil {
		return fmt.Errorf("%w: %v", sync.ErrAuthFailed, err)
	}
	if rs.HostQuery.HostRet != nil {
		c.logger.Debug("session established",
			zap.String("product", rs.HostQuery.HostRet.ProductName))
	}
	return nil
}

// Close ends the session. The connector is stateless between requests.
func (c *Client) Close(ctx context.Context) error {
	c.iteratorID = ""
	return nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// QueryOrders returns one page of sales receipts in the request's date
// range. Pages after the first continue the connector-side iterator, so
// pages must be pulled in order within a run.
func (c *Client) QueryOrders(ctx context.Context, req *sync.QueryOrdersRequest) (*sync.QueryOrdersResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := &salesReceiptQueryRq{
		MaxReturned:  queryPageSize,
		IncludeLines: true,
		OwnerID:      "0",
	}
	if req.Page == 1 {
		query.Iterator = "Start"
		query.TxnDateRange = &txnDateRangeFilter{
			FromTxnDate: req.Start.Format(txnDateFormat),
			ToTxnDate:   req.End.Format(txnDateFormat),
		}
	} else {
		query.Iterator = "Continue"
		query.IteratorID = c.iteratorID
	}

	rs, err := c.do(ctx, &qbxmlMsgsRq{SalesReceiptQuery: query})
	if err != nil {
		return nil, err
	}
	if rs.SalesReceiptQuery == nil {
		return nil, fmt.Errorf("%w: no receipt query response", sync.ErrInvalidResponse)
	}
	if err := rs.SalesReceiptQuery.check(); err != nil {
		if errors.Is(err, sync.ErrNotFound) {
			return &sync.QueryOrdersResponse{}, nil
		}
		return nil, err
	}

	c.iteratorID = rs.SalesReceiptQuery.IteratorID
	out := &sync.QueryOrdersResponse{
		Orders:  make([]sync.Order, 0, len(rs.SalesReceiptQuery.Receipts)),
		HasMore: rs.SalesReceiptQuery.IteratorRemainingCount > 0,
	}
	if out.HasMore {
		out.NextPage = req.Page + 1
	}
	for i := range rs.SalesReceiptQuery.Receipts {
		out.Orders = append(out.Orders, c.toDomainOrder(&rs.SalesReceiptQuery.Receipts[i]))
	}
	c.logger.Debug("receipts page pulled",
		zap.Int("page", req.Page),
		zap.Int("orders", len(out.Orders)),
		zap.Bool("has_more", out.HasMore))
	return out, nil
}

// QueryOrderByRef returns the transactions carrying ref. Both sales
// receipts and invoices are checked: hand-entered orders sometimes land in
// the company file as invoices.
func (c *Client) QueryOrderByRef(ctx context.Context, ref string) ([]sync.Order, error) {
	orders, err := c.queryReceiptsByRef(ctx, ref)
	if err != nil && !errors.Is(err, sync.ErrNotFound) {
		return nil, err
	}
	invoices, err := c.queryInvoicesByRef(ctx, ref)
	if err != nil && !errors.Is(err, sync.ErrNotFound) {
		return nil, err
	}
	orders = append(orders, invoices...)
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: ref %s", sync.ErrNotFound, ref)
	}
	return orders, nil
}

func (c *Client) queryReceiptsByRef(ctx context.Context, ref string) ([]sync.Order, error) {
	query := &salesReceiptQueryRq{RefNumber: ref, IncludeLines: true, OwnerID: "0"}
	rs, err := c.do(ctx, &qbxmlMsgsRq{SalesReceiptQuery: query})
	if err != nil {
		return nil, err
	}
	if rs.SalesReceiptQuery == nil {
		return nil, fmt.Errorf("%w: no receipt query response", sync.ErrInvalidResponse)
	}
	if err := rs.SalesReceiptQuery.check(); err != nil {
		return nil, err
	}
	orders := make([]sync.Order, 0, len(rs.SalesReceiptQuery.Receipts))
	for i := range rs.SalesReceiptQuery.Receipts {
		orders = append(orders, c.toDomainOrder(&rs.SalesReceiptQuery.Receipts[i]))
	}
	return orders, nil
}

func (c *Client) queryInvoicesByRef(ctx context.Context, ref string) ([]sync.Order, error) {
	query := &invoiceQueryRq{RefNumber: ref, IncludeLines: true, OwnerID: "0"}
	rs, err := c.do(ctx, &qbxmlMsgsRq{InvoiceQuery: query})
	if err != nil {
		return nil, err
	}
	if rs.InvoiceQuery == nil {
		return nil, fmt.Errorf("%w: no invoice query response", sync.ErrInvalidResponse)
	}
	if err := rs.InvoiceQuery.check(); err != nil {
		return nil, err
	}
	orders := make([]sync.Order, 0, len(rs.InvoiceQuery.Invoices))
	for i := range rs.InvoiceQuery.Invoices {
		orders = append(orders, c.invoiceToDomain(&rs.InvoiceQuery.Invoices[i]))
	}
	return orders, nil
}

// CreateOrder writes a mapped order as a sales receipt
func (c *Client) CreateOrder(ctx context.Context, draft *sync.OrderDraft) (*sync.Order, error) {
	add := salesReceiptAdd{
		CustomerRef: &qbRef{ListID: draft.CustomerID},
		RefNumber:   draft.RefNumber,
		Memo:        draft.Memo,
		BillAddress: toAddAddress(draft.BillAddress),
		ShipAddress: toAddAddress(draft.ShipAddress),
	}
	if !draft.Date.IsZero() {
		add.TxnDate = draft.Date.Format(txnDateFormat)
	}
	if draft.TaxCodeName != "" {
		add.ItemSalesTaxRef = &qbRef{FullName: draft.TaxCodeName}
	}
	for _, l := range draft.Lines {
		line := salesReceiptLineAdd{
			ItemRef: &qbRef{FullName: l.ItemCode},
			Desc:    l.Description,
			Amount:  l.Amount.StringFixed(2),
		}
		if l.Quantity != 0 {
			line.Quantity = l.Quantity
			line.Rate = l.Rate.StringFixed(2)
			// Rate times quantity already equals the amount
			line.Amount = ""
		}
		if l.TaxCode != "" {
			line.SalesTaxCodeRef = &qbRef{FullName: l.TaxCode}
		}
		add.Lines = append(add.Lines, line)
	}

	rs, err := c.do(ctx, &qbxmlMsgsRq{SalesReceiptAdd: &salesReceiptAddRq{SalesReceiptAdd: add}})
	if err != nil {
		return nil, err
	}
	if rs.SalesReceiptAdd == nil {
		return nil, fmt.Errorf("%w: no receipt add response", sync.ErrInvalidResponse)
	}
	if err := rs.SalesReceiptAdd.check(); err != nil {
		return nil, err
	}
	if rs.SalesReceiptAdd.Receipt == nil {
		return nil, fmt.Errorf("%w: no receipt in add response", sync.ErrInvalidResponse)
	}
	created := c.toDomainOrder(rs.SalesReceiptAdd.Receipt)
	c.logger.Debug("receipt created", zap.String("ref", created.ID))
	return &created, nil
}

// ---------------------------------------------------------------------------
// Customer Operations
// ---------------------------------------------------------------------------

// QueryCustomerByID looks a customer up by list ID
func (c *Client) QueryCustomerByID(ctx context.Context, id string) (*sync.Customer, error) {
	return c.queryCustomer(ctx, &customerQueryRq{ListID: id, OwnerID: "0"})
}

// QueryCustomerByName looks a customer up by full name
func (c *Client) QueryCustomerByName(ctx context.Context, name string) (*sync.Customer, error) {
	return c.queryCustomer(ctx, &customerQueryRq{FullName: name, OwnerID: "0"})
}

func (c *Client) queryCustomer(ctx context.Context, query *customerQueryRq) (*sync.Customer, error) {
	rs, err := c.do(ctx, &qbxmlMsgsRq{CustomerQuery: query})
	if err != nil {
		return nil, err
	}
	if rs.CustomerQuery == nil {
		return nil, fmt.Errorf("%w: no customer query response", sync.ErrInvalidResponse)
	}
	if err := rs.CustomerQuery.check(); err != nil {
		return nil, err
	}
	if len(rs.CustomerQuery.Customers) == 0 {
		return nil, fmt.Errorf("%w: customer %s%s", sync.ErrNotFound, query.ListID, query.FullName)
	}
	cust := c.toDomainCustomer(&rs.CustomerQuery.Customers[0])
	return &cust, nil
}

// CreateCustomer writes a mapped customer record
func (c *Client) CreateCustomer(ctx context.Context, draft *sync.CustomerDraft) (*sync.Customer, error) {
	add := customerAdd{
		Name:        draft.Name,
		CompanyName: draft.Company,
		FirstName:   draft.FirstName,
		LastName:    draft.LastName,
		Phone:       draft.Phone,
		Email:       draft.Email,
		BillAddress: toAddAddress(draft.BillAddress),
		ShipAddress: toAddAddress(draft.ShipAddress),
	}

	rs, err := c.do(ctx, &qbxmlMsgsRq{CustomerAdd: &customerAddRq{CustomerAdd: add}})
	if err != nil {
		return nil, err
	}
	if rs.CustomerAdd == nil {
		return nil, fmt.Errorf("%w: no customer add response", sync.ErrInvalidResponse)
	}
	if err := rs.CustomerAdd.check(); err != nil {
		return nil, err
	}
	if rs.CustomerAdd.Customer == nil {
		return nil, fmt.Errorf("%w: no customer in add response", sync.ErrInvalidResponse)
	}
	created := c.toDomainCustomer(rs.CustomerAdd.Customer)
	c.logger.Debug("customer created",
		zap.String("list_id", created.ID),
		zap.String("name", created.FullName()))
	return &created, nil
}

// SetCrossReference stores the storefront identifier in a custom field on
// the record. An add that collides with an existing field falls back to a
// modify.
func (c *Client) SetCrossReference(ctx context.Context, kind sync.EntityKind, entityID, key, value string) error {
	ext := &dataExt{
		OwnerID:      "0",
		DataExtName:  key,
		DataExtValue: value,
	}
	switch kind {
	case sync.EntityKindCustomer:
		ext.ListDataExtType = "Customer"
		ext.ListObjRef = &qbRef{ListID: entityID}
	case sync.EntityKindOrder:
		ext.TxnDataExtType = "SalesReceipt"
		ext.TxnID = entityID
	default:
		return fmt.Errorf("%w: unknown entity kind %q", sync.ErrValidation, kind)
	}

	rs, err := c.do(ctx, &qbxmlMsgsRq{DataExtAdd: &dataExtRq{DataExtAdd: ext}})
	if err != nil {
		return err
	}
	if rs.DataExtAdd == nil {
		return fmt.Errorf("%w: no data ext response", sync.ErrInvalidResponse)
	}
	if err := rs.DataExtAdd.check(); err == nil {
		return nil
	}

	// Field already holds a value; modify instead.
	rs, err = c.do(ctx, &qbxmlMsgsRq{DataExtMod: &dataExtRq{DataExtMod: ext}})
	if err != nil {
		return err
	}
	if rs.DataExtMod == nil {
		return fmt.Errorf("%w: no data ext response", sync.ErrInvalidResponse)
	}
	return rs.DataExtMod.check()
}

// ---------------------------------------------------------------------------
// Sales Tax
// ---------------------------------------------------------------------------

// EnsureTaxCode returns the sales-tax item name for rate, creating the item
// when the company file does not have it yet. Names are the rate with the
// configured suffix, e.g. "8.25sbe".
func (c *Client) EnsureTaxCode(ctx context.Context, rate decimal.Decimal) (string, error) {
	name := rate.String() + c.cfg.TaxCodeSuffix
	if c.taxCodes[name] {
		return name, nil
	}

	rs, err := c.do(ctx, &qbxmlMsgsRq{ItemSalesTaxQuery: &itemSalesTaxQueryRq{FullName: name}})
	if err != nil {
		return "", err
	}
	if rs.ItemSalesTaxQuery == nil {
		return "", fmt.Errorf("%w: no tax item query response", sync.ErrInvalidResponse)
	}
	err = rs.ItemSalesTaxQuery.check()
	switch {
	case err == nil && len(rs.ItemSalesTaxQuery.Items) > 0:
		c.taxCodes[name] = true
		return name, nil
	case err != nil && !errors.Is(err, sync.ErrNotFound):
		return "", err
	}

	add := itemSalesTaxAdd{Name: name, TaxRate: rate.String()}
	if c.cfg.TaxVendor != "" {
		add.TaxVendorRef = &qbRef{FullName: c.cfg.TaxVendor}
	}
	rs, err = c.do(ctx, &qbxmlMsgsRq{ItemSalesTaxAdd: &itemSalesTaxAddRq{ItemSalesTaxAdd: add}})
	if err != nil {
		return "", err
	}
	if rs.ItemSalesTaxAdd == nil {
		return "", fmt.Errorf("%w: no tax item add response", sync.ErrInvalidResponse)
	}
	if err := rs.ItemSalesTaxAdd.check(); err != nil {
		return "", err
	}
	c.taxCodes[name] = true
	c.logger.Debug("tax item created", zap.String("name", name))
	return name, nil
}

// ---------------------------------------------------------------------------
// Inventory Operations
// ---------------------------------------------------------------------------

// QueryInventory returns on-hand quantities for every inventory item at
// site. An empty site returns all sites.
func (c *Client) QueryInventory(ctx context.Context, site string) ([]sync.InventoryItem, error) {
	rq := &itemSitesQueryRq{Active: "ActiveOnly"}
	if site != "" {
		rq.SiteFilter = &siteFilter{FullName: site}
	}
	rs, err := c.do(ctx, &qbxmlMsgsRq{ItemSitesQuery: rq})
	if err != nil {
		return nil, err
	}
	if rs.ItemSitesQuery == nil {
		return nil, fmt.Errorf("%w: no item sites response", sync.ErrInvalidResponse)
	}
	if err := rs.ItemSitesQuery.check(); err != nil {
		if errors.Is(err, sync.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var items []sync.InventoryItem
	for _, s := range rs.ItemSitesQuery.Sites {
		siteName := ""
		if s.SiteRef != nil {
			siteName = s.SiteRef.FullName
		}
		ref := s.InventoryRef
		if ref == nil {
			ref = s.ItemRef
		}
		if ref == nil {
			continue
		}
		items = append(items, sync.InventoryItem{
			SKU:            ref.FullName,
			Name:           ref.FullName,
			QuantityOnHand: int(s.QuantityOnHand),
			Site:           siteName,
		})
	}
	c.logger.Debug("inventory pulled", zap.String("site", site), zap.Int("items", len(items)))
	return items, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// do wraps msgs in a qbXML envelope, POSTs it to the connector and returns
// the response message set
func (c *Client) do(ctx context.Context, msgs *qbxmlMsgsRq) (*qbxmlMsgsRs, error) {
	msgs.OnError = "stopOnError"
	body, err := xml.Marshal(&qbxmlRequest{Msgs: *msgs})
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.URL, bytes.NewReader(append([]byte(qbxmlHeader), body...)))
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("X-Application-Name", c.cfg.AppName)
	if c.cfg.CompanyFile != "" {
		req.Header.Set("X-Company-File", c.cfg.CompanyFile)
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sync.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d", sync.ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", sync.ErrRequestFailed, resp.StatusCode)
	}

	var parsed qbxmlResponse
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", sync.ErrInvalidResponse, err)
	}
	c.logger.Debug("request complete", zap.Duration("elapsed", time.Since(start)))
	return &parsed.Msgs, nil
}

// toDomainOrder converts a sales receipt to the domain order shape. The ID
// is the transaction ID used for writes; Ref carries the business ref
// number used for matching.
func (c *Client) toDomainOrder(r *salesReceiptRet) sync.Order {
	order := sync.Order{
		ID:       r.TxnID,
		Ref:      r.RefNumber,
		CrossID:  dataExtValue(r.DataExt, c.cfg.CrossRefField),
		Total:    parseDecimal(r.TotalAmount),
		SalesTax: parseDecimal(r.SalesTaxTotal),
		Memo:     r.Memo,
		BillTo:   toDomainAddress(r.BillAddress),
		ShipTo:   toDomainAddress(r.ShipAddress),
	}
	if order.ID == "" {
		order.ID = r.RefNumber
	}
	if r.CustomerRef != nil {
		order.CustomerID = r.CustomerRef.ListID
	}
	if r.PaymentMethod != nil {
		order.Payment.Method = r.PaymentMethod.FullName
	}
	if r.ItemSalesTaxRef != nil && r.ItemSalesTaxRef.FullName != c.cfg.OutOfStateTaxName {
		order.Taxed = true
		// Generated tax item names are the rate plus suffix.
		rateName := strings.TrimSuffix(r.ItemSalesTaxRef.FullName, c.cfg.TaxCodeSuffix)
		order.TaxRate = parseDecimal(rateName)
	}
	if r.TxnDate != "" {
		if t, err := time.ParseInLocation(txnDateFormat, r.TxnDate, time.Local); err == nil {
			order.PlacedAt = t
		}
	}
	for _, l := range r.Lines {
		line := sync.LineItem{
			Name:      l.Desc,
			Quantity:  int(l.Quantity),
			UnitPrice: parseDecimal(l.Rate),
			Total:     parseDecimal(l.Amount),
		}
		if l.ItemRef != nil {
			line.SKU = l.ItemRef.FullName
		}
		order.Lines = append(order.Lines, line)
	}
	return order
}

// invoiceToDomain converts an invoice through the receipt shape; the two
// transactions share every field the sync reads
func (c *Client) invoiceToDomain(r *invoiceRet) sync.Order {
	rec := salesReceiptRet{
		TxnID:           r.TxnID,
		RefNumber:       r.RefNumber,
		TxnDate:         r.TxnDate,
		CustomerRef:     r.CustomerRef,
		BillAddress:     r.BillAddress,
		ShipAddress:     r.ShipAddress,
		ItemSalesTaxRef: r.ItemSalesTaxRef,
		SalesTaxTotal:   r.SalesTaxTotal,
		TotalAmount:     r.TotalAmount,
		Memo:            r.Memo,
		Lines:           r.Lines,
		DataExt:         r.DataExt,
	}
	return c.toDomainOrder(&rec)
}

func (c *Client) toDomainCustomer(r *customerRet) sync.Customer {
	name := r.Name
	if name == "" {
		name = r.FullName
	}
	cust := sync.Customer{
		ID:        r.ListID,
		CrossID:   dataExtValue(r.DataExt, c.cfg.CrossRefField),
		Type:      sync.CustomerTypeBusiness,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Company:   r.CompanyName,
		Email:     r.Email,
		Phone:     r.Phone,
		Address:   toDomainAddress(r.BillAddress),
	}
	if cust.Company == "" {
		cust.Company = name
	}
	return cust
}

// Ensure Client implements the port interfaces
var (
	_ sync.Client          = (*Client)(nil)
	_ sync.InventorySource = (*Client)(nil)
)
