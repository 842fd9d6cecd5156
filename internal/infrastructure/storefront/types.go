package storefront

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// wireTimeFormat is the timestamp layout used by the storefront API
const wireTimeFormat = "01/02/2006 15:04"

// wireDateFormat is the date-only layout used in query ranges
const wireDateFormat = "01/02/2006"

// ---------------------------------------------------------------------------
// Common Wire Types
// ---------------------------------------------------------------------------

// keyTypeAttribute and keyTypeNode are the two key placements the API may
// demand after TestSubmit
const (
	keyTypeNode      = "Node"
	keyTypeAttribute = "Attribute"
)

// xmlCredentials is the credential block sent on every request. During key
// exchange it carries UserID/Password; afterwards the active key, placed as
// a node or attribute per the negotiated key type.
type xmlCredentials struct {
	KeyAttr     string `xml:"Key,attr,omitempty"`
	AccountName string `xml:"AccountName"`
	UserID      string `xml:"UserID,omitempty"`
	Password    string `xml:"Password,omitempty"`
	Key         string `xml:"Key,omitempty"`
}

// xmlError is one error entry in a response
type xmlError struct {
	Number      int    `xml:"Number"`
	Description string `xml:"Description"`
}

// xmlErrors is the error list embedded in every response type
type xmlErrors struct {
	Errors []xmlError `xml:"Errors>Error"`
}

// Error numbers 100-199 are credential failures
const (
	authErrorLow  = 100
	authErrorHigh = 199
)

// check translates embedded API errors to sentinel errors
func (e *xmlErrors) check() error {
	if len(e.Errors) == 0 {
		return nil
	}
	first := e.Errors[0]
	if first.Number >= authErrorLow && first.Number <= authErrorHigh {
		return fmt.Errorf("%w: %d %s", sync.ErrAuthFailed, first.Number, first.Description)
	}
	return fmt.Errorf("%w: %d %s", sync.ErrValidation, first.Number, first.Description)
}

// ---------------------------------------------------------------------------
// Key Exchange
// ---------------------------------------------------------------------------

type testSubmitRequest struct {
	XMLName     xml.Name       `xml:"TestSubmitRequest"`
	Credentials xmlCredentials `xml:"Credentials"`
}

type keyNode struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

type testSubmitResponse struct {
	XMLName xml.Name `xml:"TestSubmitResponse"`
	xmlErrors
	Key keyNode `xml:"Key"`
}

type testVerifyRequest struct {
	XMLName     xml.Name       `xml:"TestVerifyRequest"`
	Credentials xmlCredentials `xml:"Credentials"`
}

type testVerifyResponse struct {
	XMLName xml.Name `xml:"TestVerifyResponse"`
	xmlErrors
	ActiveKey string `xml:"ActiveKey"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

type xmlDateRange struct {
	Start string `xml:"Start"`
	End   string `xml:"End"`
}

type orderQueryRequest struct {
	XMLName       xml.Name       `xml:"OrderQueryRequest"`
	Credentials   xmlCredentials `xml:"Credentials"`
	OrderRange    *xmlDateRange  `xml:"OrderRange,omitempty"`
	OrderNo       string         `xml:"OrderNo,omitempty"`
	BillingStatus string         `xml:"BillingStatus,omitempty"`
	Page          int            `xml:"Page,omitempty"`
}

type orderQueryResponse struct {
	XMLName xml.Name `xml:"OrderQueryResponse"`
	xmlErrors
	// NextPage is present (empty element) when more pages remain
	NextPage *struct{}  `xml:"NextPage"`
	Orders   []xmlOrder `xml:"Order"`
}

type xmlOrderCustomer struct {
	CustomerNo string `xml:"CustomerNo"`
	Type       string `xml:"Type"`
}

type xmlAddress struct {
	FirstName string `xml:"FirstName,omitempty"`
	LastName  string `xml:"LastName,omitempty"`
	Company   string `xml:"Company,omitempty"`
	Street1   string `xml:"Street1,omitempty"`
	Street2   string `xml:"Street2,omitempty"`
	City      string `xml:"City,omitempty"`
	State     string `xml:"State,omitempty"`
	Zip       string `xml:"Zip,omitempty"`
	Country   string `xml:"Country,omitempty"`
	Phone     string `xml:"Phone,omitempty"`
}

type xmlCreditCard struct {
	Type  string `xml:"Type,omitempty"`
	Last4 string `xml:"Last4,omitempty"`
}

type xmlPayment struct {
	Method     string         `xml:"Method"`
	CreditCard *xmlCreditCard `xml:"CreditCard,omitempty"`
	Status     string         `xml:"Status,omitempty"`
}

type xmlSalesTax struct {
	Amount string `xml:"Amount"`
	Rate   string `xml:"Rate"`
}

type xmlLineItem struct {
	SKU         string `xml:"SKU"`
	Description string `xml:"Description,omitempty"`
	Quantity    int    `xml:"Quantity"`
	UnitPrice   string `xml:"UnitPrice"`
	ExtPrice    string `xml:"ExtPrice"`
}

type xmlCustomField struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

type xmlOrder struct {
	OrderNo      string           `xml:"OrderNo"`
	OrderDate    string           `xml:"OrderDate"`
	Customer     xmlOrderCustomer `xml:"Customer"`
	BillTo       xmlAddress       `xml:"BillTo>Address"`
	ShipTo       xmlAddress       `xml:"ShipTo>Address"`
	Payment      xmlPayment       `xml:"Payment"`
	SalesTax     *xmlSalesTax     `xml:"SalesTax"`
	Total        string           `xml:"Total"`
	Lines        []xmlLineItem    `xml:"LineItem"`
	Comments     string           `xml:"Comments,omitempty"`
	CustomFields []xmlCustomField `xml:"CustomField"`
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

type customerQueryRequest struct {
	XMLName     xml.Name       `xml:"CustomerQueryRequest"`
	Credentials xmlCredentials `xml:"Credentials"`
	CustomerNo  string         `xml:"CustomerNo,omitempty"`
	Name        string         `xml:"Name,omitempty"`
}

type customerQueryResponse struct {
	XMLName xml.Name `xml:"CustomerQueryResponse"`
	xmlErrors
	Customers []xmlCustomer `xml:"Customer"`
}

type xmlCustomer struct {
	CustomerNo   string           `xml:"CustomerNo,omitempty"`
	Type         string           `xml:"Type,omitempty"`
	FirstName    string           `xml:"FirstName,omitempty"`
	LastName     string           `xml:"LastName,omitempty"`
	Company      string           `xml:"Company,omitempty"`
	Email        string           `xml:"Email,omitempty"`
	Phone        string           `xml:"Phone,omitempty"`
	Address      *xmlAddress      `xml:"Address,omitempty"`
	CustomFields []xmlCustomField `xml:"CustomField"`
}

type customerUpdateRequest struct {
	XMLName     xml.Name       `xml:"CustomerUpdateRequest"`
	Mode        string         `xml:"Mode,attr"`
	Credentials xmlCredentials `xml:"Credentials"`
	Customers   []xmlCustomer  `xml:"Customer"`
}

type customerUpdateResponse struct {
	XMLName xml.Name `xml:"CustomerUpdateResponse"`
	xmlErrors
	Customers []xmlCustomer `xml:"Customer"`
}

// ---------------------------------------------------------------------------
// Order Create/Update
// ---------------------------------------------------------------------------

type xmlDraftAddress struct {
	Line1   string `xml:"Line1,omitempty"`
	Line2   string `xml:"Line2,omitempty"`
	Line3   string `xml:"Line3,omitempty"`
	City    string `xml:"City,omitempty"`
	State   string `xml:"State,omitempty"`
	Zip     string `xml:"Zip,omitempty"`
	Country string `xml:"Country,omitempty"`
}

type xmlDraftLine struct {
	SKU         string `xml:"SKU"`
	Description string `xml:"Description,omitempty"`
	Quantity    int    `xml:"Quantity,omitempty"`
	UnitPrice   string `xml:"UnitPrice,omitempty"`
	ExtPrice    string `xml:"ExtPrice"`
}

type xmlDraftOrder struct {
	ExternalRef  string           `xml:"ExternalRef"`
	OrderDate    string           `xml:"OrderDate"`
	CustomerNo   string           `xml:"CustomerNo"`
	BillTo       xmlDraftAddress  `xml:"BillTo>Address"`
	ShipTo       xmlDraftAddress  `xml:"ShipTo>Address"`
	Lines        []xmlDraftLine   `xml:"LineItem"`
	SalesTax     string           `xml:"SalesTax,omitempty"`
	Comments     string           `xml:"Comments,omitempty"`
	CustomFields []xmlCustomField `xml:"CustomField"`
}

type orderCreateRequest struct {
	XMLName     xml.Name       `xml:"OrderCreateRequest"`
	Credentials xmlCredentials `xml:"Credentials"`
	Orders      []xmlDraftOrder `xml:"Order"`
}

type orderCreateResponse struct {
	XMLName xml.Name `xml:"OrderCreateResponse"`
	xmlErrors
	Orders []xmlOrder `xml:"Order"`
}

type orderUpdateRequest struct {
	XMLName     xml.Name         `xml:"OrderUpdateRequest"`
	Credentials xmlCredentials   `xml:"Credentials"`
	OrderNo     string           `xml:"OrderNo"`
	CustomFields []xmlCustomField `xml:"CustomField"`
}

type orderUpdateResponse struct {
	XMLName xml.Name `xml:"OrderUpdateResponse"`
	xmlErrors
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

type xmlInventory struct {
	SKU string `xml:"SKU"`
	QOH int    `xml:"QOH"`
}

type inventoryUpdateRequest struct {
	XMLName     xml.Name       `xml:"InventoryUpdateRequest"`
	Credentials xmlCredentials `xml:"Credentials"`
	Items       []xmlInventory `xml:"Inventory"`
}

type inventoryUpdateResponse struct {
	XMLName xml.Name `xml:"InventoryUpdateResponse"`
	xmlErrors
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// parseDecimal parses a wire amount, returning zero for empty or malformed
// values
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// customField returns the value of the named custom field, if present
func customField(fields []xmlCustomField, name string) string {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func toDomainAddress(a xmlAddress) sync.Address {
	return sync.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Company:   a.Company,
		Street1:   a.Street1,
		Street2:   a.Street2,
		City:      a.City,
		State:     a.State,
		Zip:       a.Zip,
		Country:   a.Country,
		Phone:     a.Phone,
	}
}

func (c *Client) toDomainOrder(o *xmlOrder) sync.Order {
	order := sync.Order{
		ID:         o.OrderNo,
		Ref:        o.OrderNo,
		CrossID:    customField(o.CustomFields, c.cfg.CrossRefField),
		CustomerID: o.Customer.CustomerNo,
		Total:      parseDecimal(o.Total),
		BillTo:     toDomainAddress(o.BillTo),
		ShipTo:     toDomainAddress(o.ShipTo),
		Memo:       o.Comments,
		Payment: sync.PaymentMethod{
			Method: o.Payment.Method,
			Status: sync.PaymentStatus(o.Payment.Status),
		},
	}
	if o.Payment.CreditCard != nil {
		order.Payment.CardType = o.Payment.CreditCard.Type
		order.Payment.CardLast4 = o.Payment.CreditCard.Last4
	}
	if o.SalesTax != nil {
		order.SalesTax = parseDecimal(o.SalesTax.Amount)
		order.TaxRate = parseDecimal(o.SalesTax.Rate)
		order.Taxed = true
	}
	if o.OrderDate != "" {
		if t, err := time.ParseInLocation(wireTimeFormat, o.OrderDate, time.Local); err == nil {
			order.PlacedAt = t
		}
	}
	for _, l := range o.Lines {
		order.Lines = append(order.Lines, sync.LineItem{
			SKU:       l.SKU,
			Name:      l.Description,
			Quantity:  l.Quantity,
			UnitPrice: parseDecimal(l.UnitPrice),
			Total:     parseDecimal(l.ExtPrice),
		})
	}
	return order
}

func (c *Client) toDomainCustomer(x *xmlCustomer) sync.Customer {
	cust := sync.Customer{
		ID:        x.CustomerNo,
		CrossID:   customField(x.CustomFields, c.cfg.CrossRefField),
		Type:      sync.CustomerType(x.Type),
		FirstName: x.FirstName,
		LastName:  x.LastName,
		Company:   x.Company,
		Email:     x.Email,
		Phone:     x.Phone,
	}
	if x.Address != nil {
		cust.Address = toDomainAddress(*x.Address)
	}
	return cust
}

func toDraftAddress(a sync.AddressLines) xmlDraftAddress {
	return xmlDraftAddress{
		Line1:   a.Line1,
		Line2:   a.Line2,
		Line3:   a.Line3,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: a.Country,
	}
}
