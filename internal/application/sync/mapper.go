package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// addr1Limit is the target system's length limit on the composed name line
const addr1Limit = 41

// Per-line tax codes on the target system
const (
	taxCodeTaxable = "Tax"
	taxCodeExempt  = "No"
)

// TaxService lazily provisions sales-tax items on the target system. The
// ledger client implements it; targets that keep raw rates pass nil.
type TaxService interface {
	EnsureTaxCode(ctx context.Context, rate decimal.Decimal) (string, error)
}

// MapperConfig carries the mapping conventions for one target system
type MapperConfig struct {
	// RefPrefix marks ref numbers originating on the opposite system
	RefPrefix string
	// OutOfStateTaxName is the tax item applied to untaxed orders
	OutOfStateTaxName string
}

// Mapper shapes source records into target drafts
type Mapper struct {
	cfg      MapperConfig
	taxes    TaxService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewMapper creates a mapper for one sync direction
func NewMapper(cfg MapperConfig, taxes TaxService, logger *zap.Logger) *Mapper {
	return &Mapper{
		cfg:      cfg,
		taxes:    taxes,
		validate: validator.New(),
		logger:   logger,
	}
}

// BuildTargetOrder maps order into a draft against the resolved target
// customer. Product lines carry quantity and rate; discount lines collapse
// into one negative summed line.
func (m *Mapper) BuildTargetOrder(ctx context.Context, order *sync.Order, customer *sync.Customer) (*sync.OrderDraft, error) {
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: order %s", err, order.ID)
	}

	itemTax := taxCodeExempt
	if order.Taxed {
		itemTax = taxCodeTaxable
	}

	ref := order.Ref
	if ref == "" {
		ref = order.ID
	}
	draft := &sync.OrderDraft{
		RefNumber:     m.cfg.RefPrefix + strings.TrimPrefix(ref, m.cfg.RefPrefix),
		CustomerID:    customer.ID,
		CustomerName:  customer.FullName(),
		Date:          order.PlacedAt,
		TaxRate:       order.TaxRate,
		SalesTax:      order.SalesTax,
		PaymentMethod: order.Payment.Method,
		Memo:          order.Memo,
		BillAddress:   composeAddress(order.BillTo),
		ShipAddress:   composeAddress(order.ShipTo),
		SourceID:      order.ID,
	}

	if m.taxes != nil {
		if order.Taxed && order.TaxRate.IsPositive() {
			name, err := m.taxes.EnsureTaxCode(ctx, order.TaxRate)
			if err != nil {
				return nil, fmt.Errorf("order %s: tax code: %w", order.ID, err)
			}
			draft.TaxCodeName = name
		} else {
			draft.TaxCodeName = m.cfg.OutOfStateTaxName
		}
	}

	for _, l := range order.LinesOfKind(sync.LineItemKindProduct) {
		draft.Lines = append(draft.Lines, sync.DraftLine{
			ItemCode:    l.SKU,
			Description: l.Name,
			Quantity:    l.Quantity,
			Rate:        l.UnitPrice,
			Amount:      l.Total,
			TaxCode:     itemTax,
		})
	}
	if disc := order.DiscountTotal(); !disc.IsZero() {
		// The source feed carries discount values as positive amounts.
		draft.Lines = append(draft.Lines, sync.DraftLine{
			ItemCode:    "DISCOUNT",
			Description: "Discount",
			Amount:      disc.Abs().Neg(),
			TaxCode:     itemTax,
		})
	}
	for _, l := range order.LinesOfKind(sync.LineItemKindGiftCertificate) {
		draft.Lines = append(draft.Lines, sync.DraftLine{
			ItemCode:    l.SKU,
			Description: l.Name,
			Amount:      l.Total,
			TaxCode:     taxCodeExempt,
		})
	}
	for _, l := range order.LinesOfKind(sync.LineItemKindShipping) {
		draft.Lines = append(draft.Lines, sync.DraftLine{
			ItemCode:    l.SKU,
			Description: l.Name,
			Amount:      l.Total,
			TaxCode:     itemTax,
		})
	}
	return draft, nil
}

// BuildTargetCustomer maps customer into a draft. Addresses come from ord
// when it carries them, falling back to the customer's own. A draft missing
// required fields fails whole; nothing is partially created.
func (m *Mapper) BuildTargetCustomer(customer *sync.Customer, ord *sync.Order) (*sync.CustomerDraft, error) {
	bill := customer.Address
	ship := customer.Address
	if ord != nil {
		if !ord.BillTo.IsZero() {
			bill = ord.BillTo
		}
		if !ord.ShipTo.IsZero() {
			ship = ord.ShipTo
		}
	}

	draft := &sync.CustomerDraft{
		Name:        customer.FullName(),
		Type:        customer.Type,
		FirstName:   customer.FirstName,
		LastName:    customer.LastName,
		Company:     customer.Company,
		Email:       customer.Email,
		Phone:       customer.ContactPhone(ord),
		BillAddress: composeAddress(bill),
		ShipAddress: composeAddress(ship),
		SourceID:    customer.ID,
	}
	if err := m.validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("%w: customer %s: %v", sync.ErrInvalidCustomer, customer.ID, err)
	}
	return draft, nil
}

// ---------------------------------------------------------------------------
// Address Composition
// ---------------------------------------------------------------------------

// composeAddress shapes an address into the target's fixed lines: the
// name/company composition on line one, street lines after
func composeAddress(a sync.Address) sync.AddressLines {
	if a.IsZero() {
		return sync.AddressLines{}
	}
	return sync.AddressLines{
		Line1:   composeNameLine(a.FirstName, a.LastName, a.Company),
		Line2:   a.Street1,
		Line3:   a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: a.Country,
	}
}

// composeNameLine fits name and company onto one line within the limit.
// It prefers both untouched, then keeps the company intact and degrades the
// name, then truncates both.
func composeNameLine(first, last, company string) string {
	name := strings.TrimSpace(first + " " + last)
	switch {
	case name == "" && company == "":
		return ""
	case company == "":
		if len(name) <= addr1Limit {
			return name
		}
		return trimName(first, last, addr1Limit)
	case name == "":
		return trimCompany(company, addr1Limit)
	}

	full := company + " - " + name
	if len(full) <= addr1Limit {
		return full
	}

	if budget := addr1Limit - len(company) - 3; budget > 0 {
		short := trimName(first, last, budget)
		if len(company)+3+len(short) <= addr1Limit {
			return company + " - " + short
		}
	}

	short := trimName(first, last, addr1Limit-1-len(company))
	cut := trimCompany(company, addr1Limit-2-len(short))
	out := cut + " - " + short
	if len(out) > addr1Limit {
		out = out[:addr1Limit]
	}
	return out
}

// trimName degrades a personal name to fit budget: full name, first initial
// plus last name, last name alone, then bare initials as the last resort
// even when those still overrun.
func trimName(first, last string, budget int) string {
	if budget < 0 {
		budget = 0
	}
	full := strings.TrimSpace(first + " " + last)
	if len(full) <= budget {
		return full
	}
	if first != "" && last != "" {
		short := first[:1] + ". " + last
		if len(short) <= budget {
			return short
		}
	}
	if last != "" && len(last) <= budget {
		return last
	}
	var b strings.Builder
	if first != "" {
		b.WriteString(first[:1] + ".")
	}
	if last != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(last[:1] + ".")
	}
	return b.String()
}

// trimCompany shortens a company name to fit budget: untouched, then with
// any comma suffix stripped, then hard-truncated
func trimCompany(company string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if len(company) <= budget {
		return company
	}
	if i := strings.Index(company, ","); i > 0 && i <= budget {
		return company[:i]
	}
	return strings.TrimRight(company[:budget], " ")
}
