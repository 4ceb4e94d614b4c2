package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ListOptions selects one page of a listing. NextToken is opaque to callers.
type ListOptions struct {
	Limit     int
	NextToken string
}

// Page is one page of a listing. An empty NextToken means there is no next page.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// ProductRecord is a product as stored by the catalog backend.
// Images and Variants may arrive as native JSON arrays or as
// JSON-encoded strings.
type ProductRecord struct {
	ID             string
	StoreID        string
	Title          string
	Handle         string
	Description    string
	Vendor         string
	ProductType    string
	Price          int64 // minor units
	CompareAtPrice int64
	Images         json.RawMessage
	Variants       json.RawMessage
	Tags           []string
	Status         string
	Available      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CollectionRecord is a product collection
type CollectionRecord struct {
	ID          string
	StoreID     string
	Title       string
	Handle      string
	Description string
	Image       string
	SortOrder   string
	UpdatedAt   time.Time
}

// PageRecord is a static content page
type PageRecord struct {
	ID             string
	StoreID        string
	Title          string
	Handle         string
	Body           string
	SEOTitle       string
	SEODescription string
	PublishedAt    time.Time
}

// MenuRecord is a persisted navigation menu. Items holds a JSON array of
// {title, url, items} links, possibly string-encoded.
type MenuRecord struct {
	ID      string
	StoreID string
	Handle  string
	Title   string
	Items   json.RawMessage
}

// CheckoutStatus is the lifecycle state of a checkout session
type CheckoutStatus string

const (
	CheckoutOpen      CheckoutStatus = "open"
	CheckoutCompleted CheckoutStatus = "completed"
	CheckoutExpired   CheckoutStatus = "expired"
)

// CheckoutSession is a hosted checkout created by the payment flow
type CheckoutSession struct {
	ID        string
	StoreID   string
	Token     string
	Status    CheckoutStatus
	Email     string
	LineItems json.RawMessage
	Subtotal  int64
	Shipping  int64
	Tax       int64
	Total     int64
	Currency  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ProductRepository defines read access to products
type ProductRepository interface {
	List(ctx context.Context, storeID string, opts ListOptions) (Page[ProductRecord], error)
	ListByCollection(ctx context.Context, storeID, collectionID string, opts ListOptions) (Page[ProductRecord], error)
	Search(ctx context.Context, storeID, term string, opts ListOptions) (Page[ProductRecord], error)
	GetByID(ctx context.Context, storeID, id string) (*ProductRecord, error)
	GetByHandle(ctx context.Context, storeID, handle string) (*ProductRecord, error)
}

// CollectionRepository defines read access to collections
type CollectionRepository interface {
	List(ctx context.Context, storeID string, opts ListOptions) (Page[CollectionRecord], error)
	GetByID(ctx context.Context, storeID, id string) (*CollectionRecord, error)
	GetByHandle(ctx context.Context, storeID, handle string) (*CollectionRecord, error)
}

// PageRepository defines read access to content pages
type PageRepository interface {
	List(ctx context.Context, storeID string, opts ListOptions) (Page[PageRecord], error)
	GetByID(ctx context.Context, storeID, id string) (*PageRecord, error)
	GetByHandle(ctx context.Context, storeID, handle string) (*PageRecord, error)
}

// NavigationRepository defines read access to menus
type NavigationRepository interface {
	List(ctx context.Context, storeID string) ([]MenuRecord, error)
	GetByID(ctx context.Context, storeID, id string) (*MenuRecord, error)
}

// CheckoutRepository defines read access to checkout sessions
type CheckoutRepository interface {
	GetByToken(ctx context.Context, storeID, token string) (*CheckoutSession, error)
}
