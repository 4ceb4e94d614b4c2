package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// PostgresPageRepository implements domain.PageRepository using PostgreSQL
type PostgresPageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPageRepository creates a new page repository
func NewPostgresPageRepository(db *sql.DB, logger *slog.Logger) *PostgresPageRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPageRepository{db: db, logger: logger}
}

const pageColumns = `id, store_id, title, handle, body, seo_title, seo_description, published_at`

// List returns the published pages of a store
func (r *PostgresPageRepository) List(ctx context.Context, storeID string, opts domain.ListOptions) (domain.Page[domain.PageRecord], error) {
	offset, err := decodeToken(opts.NextToken)
	if err != nil {
		return domain.Page[domain.PageRecord]{}, err
	}
	limit := pageLimit(opts)
	query := `
		SELECT ` + pageColumns + `
		FROM pages
		WHERE store_id = $1 AND published_at <= now()
		ORDER BY title, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, storeID, limit+1, offset)
	if err != nil {
		return domain.Page[domain.PageRecord]{}, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var out []domain.PageRecord
	for rows.Next() {
		var p domain.PageRecord
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Title, &p.Handle, &p.Body, &p.SEOTitle, &p.SEODescription, &p.PublishedAt); err != nil {
			return domain.Page[domain.PageRecord]{}, fmt.Errorf("failed to scan page: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.PageRecord]{}, fmt.Errorf("failed to list pages: %w", err)
	}
	return trimPage(out, offset, limit), nil
}

// GetByID retrieves a page by ID
func (r *PostgresPageRepository) GetByID(ctx context.Context, storeID, id string) (*domain.PageRecord, error) {
	return r.getOne(ctx, "id", `SELECT `+pageColumns+` FROM pages WHERE store_id = $1 AND id = $2`, storeID, id)
}

// GetByHandle retrieves a page by handle
func (r *PostgresPageRepository) GetByHandle(ctx context.Context, storeID, handle string) (*domain.PageRecord, error) {
	return r.getOne(ctx, "handle", `SELECT `+pageColumns+` FROM pages WHERE store_id = $1 AND handle = $2`, storeID, handle)
}

func (r *PostgresPageRepository) getOne(ctx context.Context, by, query string, args ...any) (*domain.PageRecord, error) {
	p := &domain.PageRecord{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.StoreID, &p.Title, &p.Handle, &p.Body, &p.SEOTitle, &p.SEODescription, &p.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get page by %s: %w", by, err)
	}
	return p, nil
}

// PostgresNavigationRepository implements domain.NavigationRepository using PostgreSQL
type PostgresNavigationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresNavigationRepository creates a new navigation repository
func NewPostgresNavigationRepository(db *sql.DB, logger *slog.Logger) *PostgresNavigationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresNavigationRepository{db: db, logger: logger}
}

// List returns every menu of a store
func (r *PostgresNavigationRepository) List(ctx context.Context, storeID string) ([]domain.MenuRecord, error) {
	query := `
		SELECT id, store_id, handle, title, items
		FROM menus
		WHERE store_id = $1
		ORDER BY handle
	`
	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list menus: %w", err)
	}
	defer rows.Close()

	var out []domain.MenuRecord
	for rows.Next() {
		var m domain.MenuRecord
		var items []byte
		if err := rows.Scan(&m.ID, &m.StoreID, &m.Handle, &m.Title, &items); err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		m.Items = items
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetByID retrieves a menu by ID
func (r *PostgresNavigationRepository) GetByID(ctx context.Context, storeID, id string) (*domain.MenuRecord, error) {
	query := `SELECT id, store_id, handle, title, items FROM menus WHERE store_id = $1 AND id = $2`
	m := &domain.MenuRecord{}
	var items []byte
	err := r.db.QueryRowContext(ctx, query, storeID, id).Scan(&m.ID, &m.StoreID, &m.Handle, &m.Title, &items)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get menu: %w", err)
	}
	m.Items = items
	return m, nil
}

// PostgresCheckoutRepository implements domain.CheckoutRepository using PostgreSQL
type PostgresCheckoutRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCheckoutRepository creates a new checkout repository
func NewPostgresCheckoutRepository(db *sql.DB, logger *slog.Logger) *PostgresCheckoutRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCheckoutRepository{db: db, logger: logger}
}

// GetByToken retrieves a checkout session by its public token
func (r *PostgresCheckoutRepository) GetByToken(ctx context.Context, storeID, token string) (*domain.CheckoutSession, error) {
	query := `
		SELECT id, store_id, token, status, email, line_items, subtotal, shipping, tax, total,
			currency, expires_at, created_at
		FROM checkouts
		WHERE store_id = $1 AND token = $2
	`
	c := &domain.CheckoutSession{}
	var (
		status    string
		lineItems []byte
	)
	err := r.db.QueryRowContext(ctx, query, storeID, token).Scan(
		&c.ID, &c.StoreID, &c.Token, &status, &c.Email, &lineItems, &c.Subtotal, &c.Shipping, &c.Tax, &c.Total,
		&c.Currency, &c.ExpiresAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get checkout: %w", err)
	}
	c.Status = domain.CheckoutStatus(status)
	c.LineItems = lineItems
	return c, nil
}
