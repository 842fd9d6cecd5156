package sync

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// EntityKind identifies the record type of a cross-reference target
// ---------------------------------------------------------------------------

// EntityKind identifies the record type of a cross-reference target
type EntityKind string

const (
	// EntityKindCustomer targets a customer record
	EntityKindCustomer EntityKind = "CUSTOMER"
	// EntityKindOrder targets an order record
	EntityKindOrder EntityKind = "ORDER"
)

// IsValid returns true if the entity kind is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindCustomer, EntityKindOrder:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityKind
func (k EntityKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// Request/Response DTOs
// ---------------------------------------------------------------------------

// QueryOrdersRequest represents a paged order query against a remote system
type QueryOrdersRequest struct {
	// Start is the beginning of the order date range
	Start time.Time
	// End is the end of the order date range
	End time.Time
	// Status filters by billing state (optional)
	Status *PaymentStatus
	// Page is the page number (1-indexed)
	Page int
}

// Validate validates the order query request
func (r *QueryOrdersRequest) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidQuery
	}
	if r.Start.After(r.End) {
		return ErrInvalidQuery
	}
	if r.Status != nil && !r.Status.IsValid() {
		return ErrInvalidQuery
	}
	if r.Page < 1 {
		r.Page = 1
	}
	return nil
}

// QueryOrdersResponse represents one page of an order query
type QueryOrdersResponse struct {
	// Orders contains the orders on this page
	Orders []Order
	// HasMore indicates if there are more pages
	HasMore bool
	// NextPage is the next page number (only when HasMore is true)
	NextPage int
}

// InventoryItem is a stock level for one SKU at one site
type InventoryItem struct {
	// SKU is the product code
	SKU string
	// Name is the product description
	Name string
	// QuantityOnHand is the available stock quantity
	QuantityOnHand int
	// Site is the inventory site the quantity was read from
	Site string
}

// ---------------------------------------------------------------------------
// Client Port Interface
// ---------------------------------------------------------------------------

// Client is the port interface both remote systems implement. Concrete
// adapters live in the infrastructure layer; the orchestrator is handed a
// source and a target and never knows which protocol sits behind either.
//
// Lookup methods report a miss as ErrNotFound, which callers must treat as
// an expected outcome rather than a failure. All other errors wrap one of
// the sentinel errors in this package.
type Client interface {
	// Name returns a short system name for logs and reports
	Name() string

	// Authenticate establishes a session with the remote system. It must
	// be called once before any other method; failure is fatal to the run.
	Authenticate(ctx context.Context) error

	// Close releases the session established by Authenticate
	Close(ctx context.Context) error

	// ---------------------------------------------------------------------------
	// Order Operations
	// ---------------------------------------------------------------------------

	// QueryOrders returns one page of orders in the request's date range
	QueryOrders(ctx context.Context, req *QueryOrdersRequest) (*QueryOrdersResponse, error)

	// QueryOrderByRef returns the orders carrying the given reference
	// number, or ErrNotFound when none do
	QueryOrderByRef(ctx context.Context, ref string) ([]Order, error)

	// CreateOrder writes a mapped order to the remote system
	CreateOrder(ctx context.Context, draft *OrderDraft) (*Order, error)

	// ---------------------------------------------------------------------------
	// Customer Operations
	// ---------------------------------------------------------------------------

	// QueryCustomerByID looks a customer up by its remote identifier
	QueryCustomerByID(ctx context.Context, id string) (*Customer, error)

	// QueryCustomerByName looks a customer up by its display name
	QueryCustomerByName(ctx context.Context, name string) (*Customer, error)

	// CreateCustomer writes a mapped customer to the remote system
	CreateCustomer(ctx context.Context, draft *CustomerDraft) (*Customer, error)

	// SetCrossReference stores the opposite system's identifier on a
	// remote record
	SetCrossReference(ctx context.Context, kind EntityKind, entityID, key, value string) error
}

// InventorySource reads stock levels; implemented by the ledger client
type InventorySource interface {
	// QueryInventory returns stock levels for every item at site
	QueryInventory(ctx context.Context, site string) ([]InventoryItem, error)
}

// InventoryTarget receives stock levels; implemented by the storefront client
type InventoryTarget interface {
	// UpdateInventory pushes stock quantities to the remote system
	UpdateInventory(ctx context.Context, items []InventoryItem) error
}
