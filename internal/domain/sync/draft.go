package sync

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Target-shaped drafts
// ---------------------------------------------------------------------------

// AddressLines is an address already composed into the target system's
// fixed line shape. Line1 carries the name/company composition and is
// subject to the target's length limit; street lines follow.
type AddressLines struct {
	// Line1 is the composed name/company line
	Line1 string
	// Line2 is the first line after the name composition
	Line2 string
	// Line3 is the second line after the name composition
	Line3 string
	// City is the city
	City string
	// State is the state or province code
	State string
	// Zip is the postal code
	Zip string
	// Country is the country code
	Country string
}

// CustomerDraft is a customer record mapped into target shape, ready for
// CreateCustomer. Required fields carry validator tags; a draft failing
// validation is skipped whole, never partially created.
type CustomerDraft struct {
	// Name is the unique display name on the target system
	Name string `validate:"required"`
	// Type is the account type
	Type CustomerType `validate:"required"`
	// FirstName is the customer's first name
	FirstName string `validate:"required"`
	// LastName is the customer's last name
	LastName string `validate:"required"`
	// Company is the company name for business accounts
	Company string
	// Email is the contact email
	Email string `validate:"required,email"`
	// Phone is the contact phone number
	Phone string
	// BillAddress is the composed billing address
	BillAddress AddressLines
	// ShipAddress is the composed shipping address
	ShipAddress AddressLines
	// SourceID is the customer's identifier in the source system, stored
	// as a cross-reference on the created record
	SourceID string `validate:"required"`
}

// DraftLine is one line of an order draft in target shape
type DraftLine struct {
	// ItemCode is the target item code
	ItemCode string
	// Description is the line description
	Description string
	// Quantity is the line quantity; zero means the target derives it
	Quantity int
	// Rate is the per-unit rate
	Rate decimal.Decimal
	// Amount is the extended line amount; negative for the collapsed
	// discount line
	Amount decimal.Decimal
	// TaxCode is the per-line tax code ("Tax" or "No")
	TaxCode string
}

// OrderDraft is an order mapped into target shape, ready for CreateOrder
type OrderDraft struct {
	// RefNumber is the reference number to write on the target record
	RefNumber string
	// CustomerID is the target-system identifier of the resolved customer
	CustomerID string
	// CustomerName is the display name of the resolved customer
	CustomerName string
	// Date is the transaction date
	Date time.Time
	// Lines contains the mapped lines: products, then the collapsed
	// discount, gift certificate and shipping lines
	Lines []DraftLine
	// TaxCodeName is the sales-tax item name applied order-wide
	TaxCodeName string
	// TaxRate is the tax rate behind TaxCodeName
	TaxRate decimal.Decimal
	// SalesTax is the tax amount from the source order
	SalesTax decimal.Decimal
	// PaymentMethod is the payment method name
	PaymentMethod string
	// Memo is free-form order text carried onto the target record
	Memo string
	// BillAddress is the composed billing address
	BillAddress AddressLines
	// ShipAddress is the composed shipping address
	ShipAddress AddressLines
	// SourceID is the order's identifier in the source system
	SourceID string
}
