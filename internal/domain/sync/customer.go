package sync

import "strings"

// ---------------------------------------------------------------------------
// CustomerType distinguishes consumer and business accounts
// ---------------------------------------------------------------------------

// CustomerType distinguishes consumer and business accounts
type CustomerType string

const (
	// CustomerTypeConsumer is an individual retail customer. Consumer
	// orders are booked against a single configured placeholder account on
	// the ledger side.
	CustomerTypeConsumer CustomerType = "Consumer"
	// CustomerTypeBusiness is a wholesale/company account, synced as its
	// own ledger customer
	CustomerTypeBusiness CustomerType = "Business"
)

// IsValid returns true if the customer type is valid
func (t CustomerType) IsValid() bool {
	switch t {
	case CustomerTypeConsumer, CustomerTypeBusiness:
		return true
	default:
		return false
	}
}

// String returns the string representation of CustomerType
func (t CustomerType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// Customer
// ---------------------------------------------------------------------------

// Customer is an account record pulled from either remote system
type Customer struct {
	// ID is the customer's identifier in its source system
	ID string
	// CrossID is the customer's identifier in the opposite system, empty
	// when the customer has not been synced
	CrossID string
	// Type is the account type
	Type CustomerType
	// FirstName is the customer's first name
	FirstName string
	// LastName is the customer's last name
	LastName string
	// Company is the company name for business accounts
	Company string
	// Email is the contact email
	Email string
	// Phone is the contact phone number
	Phone string
	// Address is the customer's primary address
	Address Address
}

// FullName returns the display name for the customer: the company name for
// business accounts with one, otherwise "First Last" trimmed
func (c *Customer) FullName() string {
	if c.Type == CustomerTypeBusiness && c.Company != "" {
		return c.Company
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ContactPhone returns the best available phone number: the customer's own,
// falling back to the billing then shipping address of ord
func (c *Customer) ContactPhone(ord *Order) string {
	if c.Phone != "" {
		return c.Phone
	}
	if ord != nil {
		if ord.BillTo.Phone != "" {
			return ord.BillTo.Phone
		}
		if ord.ShipTo.Phone != "" {
			return ord.ShipTo.Phone
		}
	}
	return ""
}
