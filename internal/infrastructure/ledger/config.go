package ledger

import (
	"errors"
	"time"
)

// ErrConfigIncomplete indicates missing connection settings
var ErrConfigIncomplete = errors.New("ledger: incomplete configuration")

// Config holds ledger connector connection settings
type Config struct {
	// URL is the remote connector endpoint
	URL string
	// AppName is announced to the connector on every request
	AppName string
	// CompanyFile is the company file path on the connector host; empty
	// uses the file currently open there
	CompanyFile string
	// Username authenticates against the connector
	Username string
	// Password authenticates against the connector
	Password string
	// CrossRefField is the custom field holding the storefront-side id
	CrossRefField string
	// RefPrefix marks ref numbers that originated on the storefront
	RefPrefix string
	// TaxCodeSuffix is appended to generated sales-tax item names
	TaxCodeSuffix string
	// TaxVendor is the vendor generated sales-tax items are payable to
	TaxVendor string
	// OutOfStateTaxName is the tax item applied to untaxed orders
	OutOfStateTaxName string
	// Timeout is the per-request HTTP timeout
	Timeout time.Duration
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrConfigIncomplete
	}
	if c.AppName == "" {
		c.AppName = "qbnx"
	}
	if c.CrossRefField == "" {
		c.CrossRefField = "NexternalId"
	}
	if c.RefPrefix == "" {
		c.RefPrefix = "N"
	}
	if c.TaxCodeSuffix == "" {
		c.TaxCodeSuffix = "sbe"
	}
	if c.OutOfStateTaxName == "" {
		c.OutOfStateTaxName = "Out of State (SBE)"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	return nil
}
