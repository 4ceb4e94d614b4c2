package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// PostgresStoreRepository implements domain.StoreRepository using PostgreSQL
type PostgresStoreRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStoreRepository creates a new store repository
func NewPostgresStoreRepository(db *sql.DB, logger *slog.Logger) *PostgresStoreRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStoreRepository{db: db, logger: logger}
}

const storeColumns = `id, name, email, description, custom_domain, default_domain,
	theme_id, currency, active, logo_url, created_at, updated_at`

// GetByID retrieves a store by ID
func (r *PostgresStoreRepository) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1`
	return r.getOne(ctx, "id", query, id)
}

// GetByCustomDomain retrieves the store owning a custom domain
func (r *PostgresStoreRepository) GetByCustomDomain(ctx context.Context, host string) (*domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE lower(custom_domain) = lower($1)`
	return r.getOne(ctx, "custom domain", query, host)
}

// GetByDefaultDomain retrieves the store owning a platform domain
func (r *PostgresStoreRepository) GetByDefaultDomain(ctx context.Context, host string) (*domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE lower(default_domain) = lower($1)`
	return r.getOne(ctx, "default domain", query, host)
}

func (r *PostgresStoreRepository) getOne(ctx context.Context, by, query string, arg any) (*domain.Store, error) {
	s := &domain.Store{}
	var (
		customDomain sql.NullString
		currency     []byte
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&s.ID, &s.Name, &s.Email, &s.Description, &customDomain, &s.DefaultDomain,
		&s.ThemeID, &currency, &s.Active, &s.LogoURL, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get store by %s: %w", by, err)
	}
	s.CustomDomain = customDomain.String
	s.Currency = decodeCurrency(currency, r.logger, s.ID)
	return s, nil
}

// decodeCurrency reads the currency column, falling back to the default
// for empty or malformed values
func decodeCurrency(raw []byte, logger *slog.Logger, storeID string) domain.CurrencyConfig {
	cfg := domain.DefaultCurrency()
	if len(raw) == 0 {
		return cfg
	}
	var stored domain.CurrencyConfig
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.Warn("invalid store currency config",
			slog.String("store_id", storeID),
			slog.String("error", err.Error()),
		)
		return cfg
	}
	if stored.Code == "" {
		return cfg
	}
	if stored.MoneyFormat == "" {
		stored.MoneyFormat = cfg.MoneyFormat
	}
	if stored.MoneyWithCurrencyFormat == "" {
		stored.MoneyWithCurrencyFormat = stored.MoneyFormat + " " + stored.Code
	}
	if stored.DecimalPlaces == 0 && stored.Code != "JPY" && stored.Code != "KRW" {
		stored.DecimalPlaces = 2
	}
	return stored
}
