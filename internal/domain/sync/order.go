package sync

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// PaymentStatus represents the billing state of an order
// ---------------------------------------------------------------------------

// PaymentStatus represents the billing state of an order
type PaymentStatus string

const (
	// PaymentStatusUnbilled indicates no charge has been made
	PaymentStatusUnbilled PaymentStatus = "Unbilled"
	// PaymentStatusAuthorized indicates the charge is authorized but not captured
	PaymentStatusAuthorized PaymentStatus = "Authorized"
	// PaymentStatusBilled indicates the charge has been captured in full
	PaymentStatusBilled PaymentStatus = "Billed"
	// PaymentStatusBilledPartial indicates a partial capture
	PaymentStatusBilledPartial PaymentStatus = "Billed-Partial"
	// PaymentStatusPaid indicates payment has been received in full
	PaymentStatusPaid PaymentStatus = "Paid"
	// PaymentStatusPaidPartial indicates a partial payment
	PaymentStatusPaidPartial PaymentStatus = "Paid-Partial"
	// PaymentStatusRefunded indicates the payment was refunded in full
	PaymentStatusRefunded PaymentStatus = "Refunded"
	// PaymentStatusRefundedPartial indicates a partial refund
	PaymentStatusRefundedPartial PaymentStatus = "Refunded-Partial"
	// PaymentStatusDeclined indicates the charge was declined
	PaymentStatusDeclined PaymentStatus = "Declined"
	// PaymentStatusCC indicates the order is awaiting offline card processing
	PaymentStatusCC PaymentStatus = "CC"
	// PaymentStatusCanceled indicates the order was canceled
	PaymentStatusCanceled PaymentStatus = "Canceled"
)

// IsValid returns true if the payment status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusUnbilled, PaymentStatusAuthorized, PaymentStatusBilled,
		PaymentStatusBilledPartial, PaymentStatusPaid, PaymentStatusPaidPartial,
		PaymentStatusRefunded, PaymentStatusRefundedPartial, PaymentStatusDeclined,
		PaymentStatusCC, PaymentStatusCanceled:
		return true
	default:
		return false
	}
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// LineItemKind classifies order lines
// ---------------------------------------------------------------------------

// LineItemKind classifies an order line by its SKU sentinel
type LineItemKind string

const (
	// LineItemKindProduct is an ordinary product line
	LineItemKindProduct LineItemKind = "PRODUCT"
	// LineItemKindDiscount is a discount line (SKU "DISCOUNT")
	LineItemKindDiscount LineItemKind = "DISCOUNT"
	// LineItemKindGiftCertificate is a gift certificate redemption line
	LineItemKindGiftCertificate LineItemKind = "GIFT_CERTIFICATE"
	// LineItemKindShipping is a shipping charge line (SKU "SHIPPING")
	LineItemKindShipping LineItemKind = "SHIPPING"
)

// String returns the string representation of LineItemKind
func (k LineItemKind) String() string {
	return string(k)
}

// Reserved SKU values that mark non-product lines. Matching is
// case-insensitive.
const (
	skuDiscount        = "DISCOUNT"
	skuGiftCertificate = "Gift Certificate"
	skuShipping        = "SHIPPING"
)

// ClassifySKU maps a line SKU to its kind
func ClassifySKU(sku string) LineItemKind {
	switch {
	case strings.EqualFold(sku, skuDiscount):
		return LineItemKindDiscount
	case strings.EqualFold(sku, skuGiftCertificate):
		return LineItemKindGiftCertificate
	case strings.EqualFold(sku, skuShipping):
		return LineItemKindShipping
	default:
		return LineItemKindProduct
	}
}

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// Address is a postal address attached to an order or customer
type Address struct {
	// FirstName is the addressee's first name
	FirstName string
	// LastName is the addressee's last name
	LastName string
	// Company is the company name (optional)
	Company string
	// Street1 is the first street line
	Street1 string
	// Street2 is the second street line (optional)
	Street2 string
	// City is the city
	City string
	// State is the state or province code
	State string
	// Zip is the postal code
	Zip string
	// Country is the country code
	Country string
	// Phone is the contact phone for this address (optional)
	Phone string
}

// IsZero returns true if the address carries no data
func (a Address) IsZero() bool {
	return a == Address{}
}

// PaymentMethod describes how an order was (or will be) paid
type PaymentMethod struct {
	// Method is the payment method name (e.g. "Credit Card", "Invoice")
	Method string
	// CardType is the card brand when Method is a card payment
	CardType string
	// CardLast4 is the last four digits of the card number
	CardLast4 string
	// Status is the billing state of the payment
	Status PaymentStatus
}

// LineItem is a single line on an order
type LineItem struct {
	// SKU is the product code; reserved values mark discount, gift
	// certificate and shipping lines
	SKU string
	// Name is the product description
	Name string
	// Quantity is the ordered quantity
	Quantity int
	// UnitPrice is the per-unit price; negative for discount lines
	UnitPrice decimal.Decimal
	// Total is Quantity * UnitPrice as reported by the source system
	Total decimal.Decimal
}

// Kind classifies this line by its SKU
func (l LineItem) Kind() LineItemKind {
	return ClassifySKU(l.SKU)
}

// Order is a sales transaction pulled from either remote system. Orders are
// constructed at the client boundary and not mutated afterwards.
type Order struct {
	// ID is the order's identifier in its source system
	ID string
	// Ref is the human-facing reference number on the record, where the
	// source system distinguishes it from ID
	Ref string
	// CrossID is the order's identifier in the opposite system, empty when
	// the order has not been synced
	CrossID string
	// CustomerID is the source-system identifier of the ordering customer
	CustomerID string
	// PlacedAt is when the order was placed
	PlacedAt time.Time
	// Lines contains the order line items
	Lines []LineItem
	// SalesTax is the tax amount charged
	SalesTax decimal.Decimal
	// TaxRate is the tax rate applied, zero when the order is untaxed
	TaxRate decimal.Decimal
	// Taxed reports whether the source charged tax on this order
	Taxed bool
	// Total is the order grand total
	Total decimal.Decimal
	// Payment describes the payment method and billing state
	Payment PaymentMethod
	// BillTo is the billing address
	BillTo Address
	// ShipTo is the shipping address
	ShipTo Address
	// Memo is free-form order text (customer comments, PO number)
	Memo string
}

// LinesOfKind returns the order lines matching kind, in order
func (o *Order) LinesOfKind(kind LineItemKind) []LineItem {
	var out []LineItem
	for _, l := range o.Lines {
		if l.Kind() == kind {
			out = append(out, l)
		}
	}
	return out
}

// DiscountTotal returns the raw summed discount amount across all discount
// lines. Feeds differ on sign; callers normalize when they need a signed
// line amount.
func (o *Order) DiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		if l.Kind() == LineItemKindDiscount {
			total = total.Add(l.Total)
		}
	}
	return total
}

// Validate checks the order for data errors that make it unmappable
func (o *Order) Validate() error {
	if o.ID == "" {
		return ErrInvalidOrder
	}
	for _, l := range o.Lines {
		if strings.TrimSpace(l.SKU) == "" {
			return ErrMissingSKU
		}
	}
	return nil
}
