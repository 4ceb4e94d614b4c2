package domain

import (
	"context"
	"time"
)

// CurrencyConfig describes how a store formats money amounts
type CurrencyConfig struct {
	Code                    string `json:"code" msgpack:"code"`
	Locale                  string `json:"locale" msgpack:"locale"`
	DecimalPlaces           int    `json:"decimal_places" msgpack:"decimal_places"`
	MoneyFormat             string `json:"money_format" msgpack:"money_format"`                             // e.g. "${{amount}}"
	MoneyWithCurrencyFormat string `json:"money_with_currency_format" msgpack:"money_with_currency_format"` // e.g. "${{amount}} USD"
}

// DefaultCurrency is used when a store has no currency configured
func DefaultCurrency() CurrencyConfig {
	return CurrencyConfig{
		Code:                    "USD",
		Locale:                  "en-US",
		DecimalPlaces:           2,
		MoneyFormat:             "${{amount}}",
		MoneyWithCurrencyFormat: "${{amount}} USD",
	}
}

// Store represents one storefront tenant
type Store struct {
	ID            string
	Name          string
	Email         string
	Description   string
	CustomDomain  string // shop.example.com, optional
	DefaultDomain string // {slug}.platform domain
	ThemeID       string // empty when no theme is installed
	Currency      CurrencyConfig
	Active        bool
	LogoURL       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PrimaryDomain returns the domain links and canonical URLs are built on
func (s *Store) PrimaryDomain() string {
	if s.CustomDomain != "" {
		return s.CustomDomain
	}
	return s.DefaultDomain
}

// StoreRepository defines read access to tenants.
// Lookups return ErrNotFound when nothing matches.
type StoreRepository interface {
	GetByID(ctx context.Context, id string) (*Store, error)
	GetByCustomDomain(ctx context.Context, domain string) (*Store, error)
	GetByDefaultDomain(ctx context.Context, domain string) (*Store, error)
}
