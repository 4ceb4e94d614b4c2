package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConnectionPool manages database connections
type ConnectionPool struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConnectionPool opens and pings a Postgres pool for config.URL
func NewConnectionPool(ctx context.Context, config *Config, logger *slog.Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25) // default
	}

	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5) // default
	}

	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute) // default
	}

	// Test connection
	ctxTest, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctxTest); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected successfully",
		slog.String("host", hostOf(config.URL)),
	)

	return &ConnectionPool{
		db:     db,
		logger: logger,
	}, nil
}

func hostOf(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// GetDB returns the underlying sql.DB connection
func (cp *ConnectionPool) GetDB() *sql.DB {
	return cp.db
}

// Close closes the database connection
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Health checks the database health
func (cp *ConnectionPool) Health(ctx context.Context) error {
	ctxTest, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return cp.db.PingContext(ctxTest)
}

// schema is the catalog layout the storefront reads. Tenant provisioning
// owns writes; EnsureSchema only creates missing tables for local setups.
const schema = `
CREATE TABLE IF NOT EXISTS stores (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	custom_domain TEXT UNIQUE,
	default_domain TEXT NOT NULL UNIQUE,
	theme_id TEXT NOT NULL DEFAULT '',
	currency JSONB NOT NULL DEFAULT '{}',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	logo_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL REFERENCES stores(id),
	title TEXT NOT NULL,
	handle TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	vendor TEXT NOT NULL DEFAULT '',
	product_type TEXT NOT NULL DEFAULT '',
	price BIGINT NOT NULL DEFAULT 0,
	compare_at_price BIGINT NOT NULL DEFAULT 0,
	images JSONB NOT NULL DEFAULT '[]',
	variants JSONB NOT NULL DEFAULT '[]',
	tags TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'active',
	available BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (store_id, handle)
);
CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL REFERENCES stores(id),
	title TEXT NOT NULL,
	handle TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	image TEXT NOT NULL DEFAULT '',
	sort_order TEXT NOT NULL DEFAULT 'manual',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (store_id, handle)
);
CREATE TABLE IF NOT EXISTS collection_products (
	collection_id TEXT NOT NULL REFERENCES collections(id),
	product_id TEXT NOT NULL REFERENCES products(id),
	position INT NOT NULL DEFAULT 0,
	PRIMARY KEY (collection_id, product_id)
);
CREATE TABLE IF NOT EXISTS pages (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL REFERENCES stores(id),
	title TEXT NOT NULL,
	handle TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	seo_title TEXT NOT NULL DEFAULT '',
	seo_description TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (store_id, handle)
);
CREATE TABLE IF NOT EXISTS menus (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL REFERENCES stores(id),
	handle TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	items JSONB NOT NULL DEFAULT '[]',
	UNIQUE (store_id, handle)
);
CREATE TABLE IF NOT EXISTS checkouts (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL REFERENCES stores(id),
	token TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	line_items JSONB NOT NULL DEFAULT '[]',
	subtotal BIGINT NOT NULL DEFAULT 0,
	shipping BIGINT NOT NULL DEFAULT 0,
	tax BIGINT NOT NULL DEFAULT 0,
	total BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the catalog tables that do not exist yet
func (cp *ConnectionPool) EnsureSchema(ctx context.Context) error {
	if _, err := cp.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
