package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// PostgresProductRepository implements domain.ProductRepository using PostgreSQL
type PostgresProductRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProductRepository creates a new product repository
func NewPostgresProductRepository(db *sql.DB, logger *slog.Logger) *PostgresProductRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProductRepository{db: db, logger: logger}
}

const productColumns = `p.id, p.store_id, p.title, p.handle, p.description, p.vendor, p.product_type,
	p.price, p.compare_at_price, p.images, p.variants, p.tags, p.status, p.available,
	p.created_at, p.updated_at`

// List returns the active products of a store, newest first
func (r *PostgresProductRepository) List(ctx context.Context, storeID string, opts domain.ListOptions) (domain.Page[domain.ProductRecord], error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.store_id = $1 AND p.status = 'active'
		ORDER BY p.created_at DESC, p.id
		LIMIT $2 OFFSET $3
	`
	return r.listPage(ctx, "list products", query, opts, storeID)
}

// ListByCollection returns the products of a collection in position order
func (r *PostgresProductRepository) ListByCollection(ctx context.Context, storeID, collectionID string, opts domain.ListOptions) (domain.Page[domain.ProductRecord], error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		JOIN collection_products cp ON cp.product_id = p.id
		WHERE p.store_id = $1 AND cp.collection_id = $2 AND p.status = 'active'
		ORDER BY cp.position, p.id
		LIMIT $3 OFFSET $4
	`
	return r.listPage(ctx, "list collection products", query, opts, storeID, collectionID)
}

// Search matches term against title, vendor and tags
func (r *PostgresProductRepository) Search(ctx context.Context, storeID, term string, opts domain.ListOptions) (domain.Page[domain.ProductRecord], error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.store_id = $1 AND p.status = 'active'
		  AND (p.title ILIKE $2 OR p.vendor ILIKE $2 OR lower($3) = ANY(SELECT lower(t) FROM unnest(p.tags) t))
		ORDER BY p.title, p.id
		LIMIT $4 OFFSET $5
	`
	return r.listPage(ctx, "search products", query, opts, storeID, "%"+escapeLike(term)+"%", term)
}

// GetByID retrieves a product by ID
func (r *PostgresProductRepository) GetByID(ctx context.Context, storeID, id string) (*domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.store_id = $1 AND p.id = $2`
	return r.getOne(ctx, "id", query, storeID, id)
}

// GetByHandle retrieves a product by handle
func (r *PostgresProductRepository) GetByHandle(ctx context.Context, storeID, handle string) (*domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.store_id = $1 AND p.handle = $2`
	return r.getOne(ctx, "handle", query, storeID, handle)
}

func (r *PostgresProductRepository) listPage(ctx context.Context, op, query string, opts domain.ListOptions, args ...any) (domain.Page[domain.ProductRecord], error) {
	offset, err := decodeToken(opts.NextToken)
	if err != nil {
		return domain.Page[domain.ProductRecord]{}, err
	}
	limit := pageLimit(opts)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit+1, offset)...)
	if err != nil {
		return domain.Page[domain.ProductRecord]{}, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.ProductRecord
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return domain.Page[domain.ProductRecord]{}, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.ProductRecord]{}, fmt.Errorf("failed to %s: %w", op, err)
	}
	return trimPage(out, offset, limit), nil
}

func (r *PostgresProductRepository) getOne(ctx context.Context, by, query string, args ...any) (*domain.ProductRecord, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product by %s: %w", by, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.ProductRecord, error) {
	p := &domain.ProductRecord{}
	var images, variants []byte
	err := s.Scan(
		&p.ID, &p.StoreID, &p.Title, &p.Handle, &p.Description, &p.Vendor, &p.ProductType,
		&p.Price, &p.CompareAtPrice, &images, &variants, pq.Array(&p.Tags), &p.Status, &p.Available,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Images = images
	p.Variants = variants
	return p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// PostgresCollectionRepository implements domain.CollectionRepository using PostgreSQL
type PostgresCollectionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCollectionRepository creates a new collection repository
func NewPostgresCollectionRepository(db *sql.DB, logger *slog.Logger) *PostgresCollectionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCollectionRepository{db: db, logger: logger}
}

const collectionColumns = `id, store_id, title, handle, description, image, sort_order, updated_at`

// List returns the collections of a store ordered by title
func (r *PostgresCollectionRepository) List(ctx context.Context, storeID string, opts domain.ListOptions) (domain.Page[domain.CollectionRecord], error) {
	offset, err := decodeToken(opts.NextToken)
	if err != nil {
		return domain.Page[domain.CollectionRecord]{}, err
	}
	limit := pageLimit(opts)
	query := `
		SELECT ` + collectionColumns + `
		FROM collections
		WHERE store_id = $1
		ORDER BY title, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, storeID, limit+1, offset)
	if err != nil {
		return domain.Page[domain.CollectionRecord]{}, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var out []domain.CollectionRecord
	for rows.Next() {
		var c domain.CollectionRecord
		if err := rows.Scan(&c.ID, &c.StoreID, &c.Title, &c.Handle, &c.Description, &c.Image, &c.SortOrder, &c.UpdatedAt); err != nil {
			return domain.Page[domain.CollectionRecord]{}, fmt.Errorf("failed to scan collection: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.CollectionRecord]{}, fmt.Errorf("failed to list collections: %w", err)
	}
	return trimPage(out, offset, limit), nil
}

// GetByID retrieves a collection by ID
func (r *PostgresCollectionRepository) GetByID(ctx context.Context, storeID, id string) (*domain.CollectionRecord, error) {
	return r.getOne(ctx, "id", `SELECT `+collectionColumns+` FROM collections WHERE store_id = $1 AND id = $2`, storeID, id)
}

// GetByHandle retrieves a collection by handle
func (r *PostgresCollectionRepository) GetByHandle(ctx context.Context, storeID, handle string) (*domain.CollectionRecord, error) {
	return r.getOne(ctx, "handle", `SELECT `+collectionColumns+` FROM collections WHERE store_id = $1 AND handle = $2`, storeID, handle)
}

func (r *PostgresCollectionRepository) getOne(ctx context.Context, by, query string, args ...any) (*domain.CollectionRecord, error) {
	c := &domain.CollectionRecord{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.StoreID, &c.Title, &c.Handle, &c.Description, &c.Image, &c.SortOrder, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get collection by %s: %w", by, err)
	}
	return c, nil
}
