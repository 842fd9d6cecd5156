package storefront

import (
	"errors"
	"time"
)

// ErrConfigIncomplete indicates missing connection settings
var ErrConfigIncomplete = errors.New("storefront: incomplete configuration")

// Config holds storefront API connection settings
type Config struct {
	// URL is the REST endpoint base URL
	URL string
	// Account is the account name sent in every request
	Account string
	// UserID is the API user
	UserID string
	// Password is the API password
	Password string
	// CrossRefField is the custom field holding the ledger-side id
	CrossRefField string
	// Timeout is the per-request HTTP timeout
	Timeout time.Duration
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	if c.URL == "" || c.Account == "" || c.UserID == "" || c.Password == "" {
		return ErrConfigIncomplete
	}
	if c.CrossRefField == "" {
		c.CrossRefField = "QuickBooksId"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	return nil
}
