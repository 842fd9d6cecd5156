package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Report Categories
// ---------------------------------------------------------------------------

// Category labels one section of a run report
type Category string

const (
	// CategoryFatal collects run-aborting failures
	CategoryFatal Category = "FATAL ERRORS"
	// CategoryLedgerSuccess collects records written to the ledger
	CategoryLedgerSuccess Category = "LEDGER SUCCESS"
	// CategoryLedgerOrder collects orders that failed to write to the ledger
	CategoryLedgerOrder Category = "LEDGER ORDER ERRORS"
	// CategoryLedgerCustomer collects customers that failed to write to the ledger
	CategoryLedgerCustomer Category = "LEDGER CUSTOMER ERRORS"
	// CategoryStorefrontSuccess collects records written to the storefront
	CategoryStorefrontSuccess Category = "STOREFRONT SUCCESS"
	// CategoryStorefrontOrder collects orders that failed to write to the storefront
	CategoryStorefrontOrder Category = "STOREFRONT ORDER ERRORS"
	// CategoryStorefrontCustomer collects customers that failed to write to the storefront
	CategoryStorefrontCustomer Category = "STOREFRONT CUSTOMER ERRORS"
)

// categoryOrder fixes the section order of rendered reports
var categoryOrder = []Category{
	CategoryFatal,
	CategoryLedgerSuccess,
	CategoryLedgerOrder,
	CategoryLedgerCustomer,
	CategoryStorefrontSuccess,
	CategoryStorefrontOrder,
	CategoryStorefrontCustomer,
}

// IsError returns true for categories that count as failures
func (c Category) IsError() bool {
	switch c {
	case CategoryLedgerSuccess, CategoryStorefrontSuccess:
		return false
	default:
		return true
	}
}

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

// Report accumulates the outcome of one sync run. Per-record failures are
// recorded here and never abort the run; only fatal entries do.
type Report struct {
	// RunID uniquely identifies this run
	RunID uuid.UUID
	// StartedAt is when the run began
	StartedAt time.Time
	// FinishedAt is when the run completed
	FinishedAt time.Time
	// Label names the run for report subjects (e.g. the sync direction)
	Label string

	messages map[Category][]string
}

// NewReport returns an empty report for a new run
func NewReport(label string) *Report {
	return &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Label:     label,
		messages:  make(map[Category][]string),
	}
}

// Add records a message under the given category
func (r *Report) Add(cat Category, format string, args ...any) {
	r.messages[cat] = append(r.messages[cat], fmt.Sprintf(format, args...))
}

// Count returns the number of messages in the given category
func (r *Report) Count(cat Category) int {
	return len(r.messages[cat])
}

// Messages returns the messages in the given category, in insertion order
func (r *Report) Messages(cat Category) []string {
	return r.messages[cat]
}

// HasErrors returns true if any failure category holds messages
func (r *Report) HasErrors() bool {
	for cat, msgs := range r.messages {
		if cat.IsError() && len(msgs) > 0 {
			return true
		}
	}
	return false
}

// HasFatal returns true if the run recorded a fatal failure
func (r *Report) HasFatal() bool {
	return r.Count(CategoryFatal) > 0
}

// IsEmpty returns true if the report holds no messages at all
func (r *Report) IsEmpty() bool {
	for _, msgs := range r.messages {
		if len(msgs) > 0 {
			return false
		}
	}
	return true
}

// Summary returns one "CATEGORY: count" line per non-empty category, in the
// fixed category order
func (r *Report) Summary() string {
	var b strings.Builder
	for _, cat := range categoryOrder {
		if n := len(r.messages[cat]); n > 0 {
			fmt.Fprintf(&b, "%s: %d\n", cat, n)
		}
	}
	return b.String()
}

// Render produces the plain-text report body. Each non-empty category gets
// a "--- CATEGORY ---" header followed by its messages, one per line, in
// the fixed category order.
func (r *Report) Render() string {
	var b strings.Builder
	for _, cat := range categoryOrder {
		msgs := r.messages[cat]
		if len(msgs) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- %s ---\n", cat)
		for _, m := range msgs {
			b.WriteString(m)
			b.WriteString("\n")
		}
	}
	return b.String()
}
