package sync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

type fakeTaxes struct {
	calls int
}

func (f *fakeTaxes) EnsureTaxCode(ctx context.Context, rate decimal.Decimal) (string, error) {
	f.calls++
	return rate.String() + "sbe", nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testOrder() *sync.Order {
	return &sync.Order{
		ID:         "12345",
		CustomerID: "C-9",
		PlacedAt:   time.Date(2026, 8, 15, 10, 30, 0, 0, time.Local),
		Taxed:      true,
		TaxRate:    dec("8.25"),
		SalesTax:   dec("4.13"),
		Total:      dec("54.13"),
		Payment:    sync.PaymentMethod{Method: "Credit Card", Status: sync.PaymentStatusPaid},
		Lines: []sync.LineItem{
			{SKU: "WIDGET-100", Name: "Widget", Quantity: 2, UnitPrice: dec("27.50"), Total: dec("55.00")},
			{SKU: "DISCOUNT", Name: "Summer promo", Quantity: 1, UnitPrice: dec("5.00"), Total: dec("5.00")},
			{SKU: "discount", Name: "Coupon", Quantity: 1, UnitPrice: dec("2.50"), Total: dec("2.50")},
			{SKU: "SHIPPING", Name: "Ground", Quantity: 1, UnitPrice: dec("6.63"), Total: dec("6.63")},
		},
	}
}

func testLedgerCustomer() *sync.Customer {
	return &sync.Customer{
		ID:      "80000001-1111",
		Type:    sync.CustomerTypeBusiness,
		Company: "Globex Dynamics",
	}
}

func TestBuildTargetOrder(t *testing.T) {
	taxes := &fakeTaxes{}
	m := NewMapper(MapperConfig{RefPrefix: "N", OutOfStateTaxName: "Out of State (SBE)"}, taxes, zap.NewNop())

	draft, err := m.BuildTargetOrder(context.Background(), testOrder(), testLedgerCustomer())
	require.NoError(t, err)

	assert.Equal(t, "N12345", draft.RefNumber)
	assert.Equal(t, "80000001-1111", draft.CustomerID)
	assert.Equal(t, "Globex Dynamics", draft.CustomerName)
	assert.Equal(t, "8.25sbe", draft.TaxCodeName)
	assert.Equal(t, 1, taxes.calls)
	assert.Equal(t, "12345", draft.SourceID)

	require.Len(t, draft.Lines, 3)
	assert.Equal(t, "WIDGET-100", draft.Lines[0].ItemCode)
	assert.Equal(t, 2, draft.Lines[0].Quantity)
	assert.Equal(t, "Tax", draft.Lines[0].TaxCode)

	// Both discount lines collapse into one negative summed line.
	assert.Equal(t, "DISCOUNT", draft.Lines[1].ItemCode)
	assert.Equal(t, "-7.50", draft.Lines[1].Amount.StringFixed(2))

	assert.Equal(t, "SHIPPING", draft.Lines[2].ItemCode)
	assert.Equal(t, "6.63", draft.Lines[2].Amount.StringFixed(2))
}

func TestBuildTargetOrderDiscountSignNormalized(t *testing.T) {
	m := NewMapper(MapperConfig{RefPrefix: "N"}, nil, zap.NewNop())

	// Some feeds already carry discounts negated; the line stays negative
	// either way.
	ord := testOrder()
	ord.Lines[1].Total = dec("-5.00")
	ord.Lines[2].Total = dec("-2.50")

	draft, err := m.BuildTargetOrder(context.Background(), ord, testLedgerCustomer())
	require.NoError(t, err)
	assert.Equal(t, "-7.50", draft.Lines[1].Amount.StringFixed(2))
}

func TestBuildTargetOrderUntaxed(t *testing.T) {
	taxes := &fakeTaxes{}
	m := NewMapper(MapperConfig{RefPrefix: "N", OutOfStateTaxName: "Out of State (SBE)"}, taxes, zap.NewNop())

	ord := testOrder()
	ord.Taxed = false
	ord.TaxRate = decimal.Zero
	ord.SalesTax = decimal.Zero

	draft, err := m.BuildTargetOrder(context.Background(), ord, testLedgerCustomer())
	require.NoError(t, err)

	assert.Equal(t, "Out of State (SBE)", draft.TaxCodeName)
	assert.Equal(t, 0, taxes.calls)
	for _, l := range draft.Lines {
		assert.Equal(t, "No", l.TaxCode)
	}
}

func TestBuildTargetOrderRefPrefixNotDoubled(t *testing.T) {
	m := NewMapper(MapperConfig{RefPrefix: "N"}, nil, zap.NewNop())

	ord := testOrder()
	ord.ID = "N777"
	draft, err := m.BuildTargetOrder(context.Background(), ord, testLedgerCustomer())
	require.NoError(t, err)
	assert.Equal(t, "N777", draft.RefNumber)
}

func TestBuildTargetOrderBlankSKU(t *testing.T) {
	m := NewMapper(MapperConfig{RefPrefix: "N"}, nil, zap.NewNop())

	ord := testOrder()
	ord.Lines[0].SKU = "   "
	_, err := m.BuildTargetOrder(context.Background(), ord, testLedgerCustomer())
	assert.ErrorIs(t, err, sync.ErrMissingSKU)
}

func TestBuildTargetCustomer(t *testing.T) {
	m := NewMapper(MapperConfig{}, nil, zap.NewNop())

	cust := &sync.Customer{
		ID:        "C-9",
		Type:      sync.CustomerTypeBusiness,
		FirstName: "Jon",
		LastName:  "Smith",
		Company:   "Acme",
		Email:     "jon@acme.example",
	}
	ord := testOrder()
	ord.BillTo = sync.Address{
		FirstName: "Jon", LastName: "Smith", Company: "Acme",
		Street1: "10 Main St", City: "Springfield", State: "CA", Zip: "90210",
		Phone: "555-0100",
	}

	draft, err := m.BuildTargetCustomer(cust, ord)
	require.NoError(t, err)
	assert.Equal(t, "Acme", draft.Name)
	assert.Equal(t, "555-0100", draft.Phone)
	assert.Equal(t, "Acme - Jon Smith", draft.BillAddress.Line1)
	assert.Equal(t, "10 Main St", draft.BillAddress.Line2)
	assert.Equal(t, "C-9", draft.SourceID)
}

func TestBuildTargetCustomerMissingEmail(t *testing.T) {
	m := NewMapper(MapperConfig{}, nil, zap.NewNop())

	cust := &sync.Customer{
		ID:        "C-9",
		Type:      sync.CustomerTypeBusiness,
		FirstName: "Jon",
		LastName:  "Smith",
	}
	_, err := m.BuildTargetCustomer(cust, nil)
	assert.ErrorIs(t, err, sync.ErrInvalidCustomer)
}

func TestComposeNameLine(t *testing.T) {
	tests := []struct {
		name    string
		first   string
		last    string
		company string
		want    string
	}{
		{
			name: "name only",
			first: "Jon", last: "Smith",
			want: "Jon Smith",
		},
		{
			name:    "company only",
			company: "Acme",
			want:    "Acme",
		},
		{
			name:  "both fit untouched",
			first: "Jon", last: "Smith", company: "Acme",
			want: "Acme - Jon Smith",
		},
		{
			name:  "company kept and name degraded",
			first: "Jonathan", last: "Worthington-Smythe",
			company: "Globex Dynamics Corporation",
			want:    "Globex Dynamics Corporation - J. W.",
		},
		{
			name:  "both truncated then capped",
			first: "Jonathan", last: "Worthington-Smythe",
			company: "Acme Extremely Long Corporation Name LLC",
			want:    "Acme Extremely Long Corporation Na - J. W",
		},
		{
			name:    "company comma suffix stripped",
			company: "Amalgamated Widget Company of America, Inc.",
			want:    "Amalgamated Widget Company of America",
		},
		{
			name: "empty",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := composeNameLine(tt.first, tt.last, tt.company)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), addr1Limit)
		})
	}
}

func TestTrimName(t *testing.T) {
	tests := []struct {
		budget int
		want   string
	}{
		{41, "Jonathan Worthington-Smythe"},
		{25, "J. Worthington-Smythe"},
		{20, "Worthington-Smythe"},
		{10, "J. W."},
		{0, "J. W."},
	}

	for _, tt := range tests {
		got := trimName("Jonathan", "Worthington-Smythe", tt.budget)
		assert.Equal(t, tt.want, got, "budget %d", tt.budget)
	}
}
