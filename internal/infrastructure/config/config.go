// Package config loads tool configuration from config.toml and QBNX_
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tool configuration
type Config struct {
	App        AppConfig
	Log        LogConfig
	Storefront StorefrontConfig
	Ledger     LedgerConfig
	Cache      CacheConfig
	Mail       MailConfig
	Sync       SyncConfig
}

// AppConfig holds tool-level settings
type AppConfig struct {
	Name string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// StorefrontConfig holds storefront API connection settings
type StorefrontConfig struct {
	URL      string        // REST endpoint base URL
	Account  string        // account name sent in every request
	UserID   string        // API user
	Password string        // API password
	Timeout  time.Duration // per-request HTTP timeout
}

// LedgerConfig holds ledger connector connection settings
type LedgerConfig struct {
	URL           string        // remote connector endpoint URL
	AppName       string        // application name announced on session open
	CompanyFile   string        // company file path on the connector host
	Username      string        // connector user
	Password      string        // connector password
	Timeout       time.Duration // per-request HTTP timeout
	InventorySite string        // site read by the inventory sync
}

// CacheConfig holds spill cache settings
type CacheConfig struct {
	Dir       string // directory for spill segment files
	MemoryCap int64  // in-memory batch size in bytes before spilling
}

// MailConfig holds report mail delivery settings
type MailConfig struct {
	Enabled    bool     // false logs report bodies instead of sending
	Domain     string   // mailgun sending domain
	APIKey     string   // mailgun private API key
	From       string   // sender address
	ErrorList  []string // failure report recipients
	ResultList []string // run summary recipients
}

// SyncConfig holds reconciliation behavior settings
type SyncConfig struct {
	PlaceholderCustomer string        // ledger customer for consumer orders
	CrossRefField       string        // ledger custom field storing the storefront id
	StorefrontRefField  string        // storefront custom field storing the ledger id
	RefPrefix           string        // ref-number prefix marking storefront origin
	TaxCodeSuffix       string        // suffix on generated sales-tax item names
	TaxVendor           string        // vendor on generated sales-tax items
	OutOfStateTaxName   string        // tax item for untaxed orders
	CustomerBlacklist   []string      // ledger customer ids never pushed to the storefront
	Window              time.Duration // default query window when -t is absent
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with QBNX_ prefix (e.g., QBNX_LEDGER_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/qbnx")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("QBNX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Storefront: StorefrontConfig{
			URL:      v.GetString("storefront.url"),
			Account:  v.GetString("storefront.account"),
			UserID:   v.GetString("storefront.user_id"),
			Password: v.GetString("storefront.password"),
			Timeout:  v.GetDuration("storefront.timeout"),
		},
		Ledger: LedgerConfig{
			URL:           v.GetString("ledger.url"),
			AppName:       v.GetString("ledger.app_name"),
			CompanyFile:   v.GetString("ledger.company_file"),
			Username:      v.GetString("ledger.username"),
			Password:      v.GetString("ledger.password"),
			Timeout:       v.GetDuration("ledger.timeout"),
			InventorySite: v.GetString("ledger.inventory_site"),
		},
		Cache: CacheConfig{
			Dir:       v.GetString("cache.dir"),
			MemoryCap: v.GetInt64("cache.memory_cap"),
		},
		Mail: MailConfig{
			Enabled:    v.GetBool("mail.enabled"),
			Domain:     v.GetString("mail.domain"),
			APIKey:     v.GetString("mail.api_key"),
			From:       v.GetString("mail.from"),
			ErrorList:  v.GetStringSlice("mail.error_list"),
			ResultList: v.GetStringSlice("mail.result_list"),
		},
		Sync: SyncConfig{
			PlaceholderCustomer: v.GetString("sync.placeholder_customer"),
			CrossRefField:       v.GetString("sync.cross_ref_field"),
			StorefrontRefField:  v.GetString("sync.storefront_ref_field"),
			RefPrefix:           v.GetString("sync.ref_prefix"),
			TaxCodeSuffix:       v.GetString("sync.tax_code_suffix"),
			TaxVendor:           v.GetString("sync.tax_vendor"),
			OutOfStateTaxName:   v.GetString("sync.out_of_state_tax_name"),
			CustomerBlacklist:   v.GetStringSlice("sync.customer_blacklist"),
			Window:              v.GetDuration("sync.window"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "qbnx"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Storefront.Timeout == 0 {
		cfg.Storefront.Timeout = 60 * time.Second
	}
	if cfg.Ledger.AppName == "" {
		cfg.Ledger.AppName = "qbnx"
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 120 * time.Second
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "cache"
	}
	if cfg.Cache.MemoryCap == 0 {
		cfg.Cache.MemoryCap = 100 << 20 // 100MB
	}
	if cfg.Sync.CrossRefField == "" {
		cfg.Sync.CrossRefField = "NexternalId"
	}
	if cfg.Sync.StorefrontRefField == "" {
		cfg.Sync.StorefrontRefField = "QuickBooksId"
	}
	if cfg.Sync.RefPrefix == "" {
		cfg.Sync.RefPrefix = "N"
	}
	if cfg.Sync.TaxCodeSuffix == "" {
		cfg.Sync.TaxCodeSuffix = "sbe"
	}
	if cfg.Sync.OutOfStateTaxName == "" {
		cfg.Sync.OutOfStateTaxName = "Out of State (SBE)"
	}
	if cfg.Sync.Window == 0 {
		cfg.Sync.Window = 7 * 24 * time.Hour
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Storefront.URL == "" {
		return fmt.Errorf("storefront.url is required")
	}
	if c.Storefront.Account == "" || c.Storefront.UserID == "" || c.Storefront.Password == "" {
		return fmt.Errorf("storefront.account, storefront.user_id and storefront.password are required")
	}
	if c.Ledger.URL == "" {
		return fmt.Errorf("ledger.url is required")
	}
	if c.Cache.MemoryCap < 0 {
		return fmt.Errorf("cache.memory_cap cannot be negative")
	}
	if c.Sync.PlaceholderCustomer == "" {
		return fmt.Errorf("sync.placeholder_customer is required")
	}
	if c.Mail.Enabled {
		if c.Mail.Domain == "" || c.Mail.APIKey == "" || c.Mail.From == "" {
			return fmt.Errorf("mail.domain, mail.api_key and mail.from are required when mail is enabled")
		}
		if len(c.Mail.ErrorList) == 0 {
			return fmt.Errorf("mail.error_list is required when mail is enabled")
		}
	}
	return nil
}
