package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// MemoryStoreRepository is an in-process domain.StoreRepository used by
// the CLI preview and tests
type MemoryStoreRepository struct {
	mu     sync.RWMutex
	stores map[string]domain.Store
}

// NewMemoryStoreRepository creates a repository holding stores
func NewMemoryStoreRepository(stores ...domain.Store) *MemoryStoreRepository {
	r := &MemoryStoreRepository{stores: make(map[string]domain.Store)}
	for _, s := range stores {
		r.Put(s)
	}
	return r
}

// Put inserts or replaces a store
func (r *MemoryStoreRepository) Put(s domain.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.ID] = s
}

// GetByID retrieves a store by ID
func (r *MemoryStoreRepository) GetByID(_ context.Context, id string) (*domain.Store, error) {
	return r.find(func(s domain.Store) bool { return s.ID == id })
}

// GetByCustomDomain retrieves the store owning a custom domain
func (r *MemoryStoreRepository) GetByCustomDomain(_ context.Context, host string) (*domain.Store, error) {
	return r.find(func(s domain.Store) bool { return s.CustomDomain != "" && strings.EqualFold(s.CustomDomain, host) })
}

// GetByDefaultDomain retrieves the store owning a platform domain
func (r *MemoryStoreRepository) GetByDefaultDomain(_ context.Context, host string) (*domain.Store, error) {
	return r.find(func(s domain.Store) bool { return strings.EqualFold(s.DefaultDomain, host) })
}

func (r *MemoryStoreRepository) find(match func(domain.Store) bool) (*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.stores {
		if match(s) {
			out := s
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

// MemoryCatalog holds the catalog of any number of stores in memory.
// Listings follow insertion order.
type MemoryCatalog struct {
	mu          sync.RWMutex
	products    []domain.ProductRecord
	collections []domain.CollectionRecord
	members     map[string][]string // collection id -> product ids
	pages       []domain.PageRecord
	menus       []domain.MenuRecord
	checkouts   []domain.CheckoutSession
}

// NewMemoryCatalog creates an empty catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{members: make(map[string][]string)}
}

// AddProducts appends products
func (c *MemoryCatalog) AddProducts(ps ...domain.ProductRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = append(c.products, ps...)
}

// AddCollection appends a collection holding productIDs in order
func (c *MemoryCatalog) AddCollection(col domain.CollectionRecord, productIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections = append(c.collections, col)
	c.members[col.ID] = append(c.members[col.ID], productIDs...)
}

// AddPages appends content pages
func (c *MemoryCatalog) AddPages(ps ...domain.PageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, ps...)
}

// AddMenus appends menus
func (c *MemoryCatalog) AddMenus(ms ...domain.MenuRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menus = append(c.menus, ms...)
}

// AddCheckouts appends checkout sessions
func (c *MemoryCatalog) AddCheckouts(cs ...domain.CheckoutSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkouts = append(c.checkouts, cs...)
}

// Products returns the catalog's product repository view
func (c *MemoryCatalog) Products() domain.ProductRepository { return memoryProducts{c} }

// Collections returns the catalog's collection repository view
func (c *MemoryCatalog) Collections() domain.CollectionRepository { return memoryCollections{c} }

// Pages returns the catalog's page repository view
func (c *MemoryCatalog) Pages() domain.PageRepository { return memoryPages{c} }

// Navigation returns the catalog's menu repository view
func (c *MemoryCatalog) Navigation() domain.NavigationRepository { return memoryMenus{c} }

// Checkouts returns the catalog's checkout repository view
func (c *MemoryCatalog) Checkouts() domain.CheckoutRepository { return memoryCheckouts{c} }

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func first[T any](items []T, match func(T) bool) (*T, error) {
	for _, it := range items {
		if match(it) {
			out := it
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memoryProducts struct{ c *MemoryCatalog }

func listable(p domain.ProductRecord) bool {
	return p.Status == "" || p.Status == "active"
}

func (m memoryProducts) List(_ context.Context, storeID string, opts domain.ListOptions) (domain.Page[domain.ProductRecord], error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return paginate(filter(m.c.products, func(p domain.ProductRecord) bool {
		return p.StoreID == storeID && listable(p)
	}), opts)
}

func (m memoryProducts) ListByCollection(_ context.Context, storeID, collectionID string, opts domain.ListOptions) (domain.Page[domain.ProductRecord], error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	var out []domain.ProductRecord
	for _, id := range m.c.members[collectionID] {
		p, err := first(m.c.products, func(p domain.ProductRecord) bool { return p.ID == id && p.StoreID == storeID })
		if err == nil && listable(*p) {
			out = append(out, *p)
		}
	}
	return paginate(out, opts)
}

func (m memoryProducts) Search(_ context.Context, storeID, term string, opts domain.ListOptions) (domain.Page[domain.ProductRecord], error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	term = strings.ToLower(strings.TrimSpace(term))
	matches := filter(m.c.products, func(p domain.ProductRecord) bool {
		if p.StoreID != storeID || !listable(p) {
			return false
		}
		if strings.Contains(strings.ToLower(p.Title), term) || strings.Contains(strings.ToLower(p.Vendor), term) {
			return true
		}
		for _, t := range p.Tags {
			if strings.EqualFold(t, term) {
				return true
			}
		}
		return false
	})
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Title < matches[j].Title })
	return paginate(matches, opts)
}

func (m memoryProducts) GetByID(_ context.Context, storeID, id string) (*domain.ProductRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.products, func(p domain.ProductRecord) bool { return p.StoreID == storeID && p.ID == id })
}

func (m memoryProducts) GetByHandle(_ context.Context, storeID, handle string) (*domain.ProductRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.products, func(p domain.ProductRecord) bool { return p.StoreID == storeID && p.Handle == handle })
}

type memoryCollections struct{ c *MemoryCatalog }

func (m memoryCollections) List(_ context.Context, storeID string, opts domain.ListOptions) (domain.Page[domain.CollectionRecord], error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return paginate(filter(m.c.collections, func(c domain.CollectionRecord) bool { return c.StoreID == storeID }), opts)
}

func (m memoryCollections) GetByID(_ context.Context, storeID, id string) (*domain.CollectionRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.collections, func(c domain.CollectionRecord) bool { return c.StoreID == storeID && c.ID == id })
}

func (m memoryCollections) GetByHandle(_ context.Context, storeID, handle string) (*domain.CollectionRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.collections, func(c domain.CollectionRecord) bool { return c.StoreID == storeID && c.Handle == handle })
}

type memoryPages struct{ c *MemoryCatalog }

func (m memoryPages) List(_ context.Context, storeID string, opts domain.ListOptions) (domain.Page[domain.PageRecord], error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return paginate(filter(m.c.pages, func(p domain.PageRecord) bool { return p.StoreID == storeID }), opts)
}

func (m memoryPages) GetByID(_ context.Context, storeID, id string) (*domain.PageRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.pages, func(p domain.PageRecord) bool { return p.StoreID == storeID && p.ID == id })
}

func (m memoryPages) GetByHandle(_ context.Context, storeID, handle string) (*domain.PageRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.pages, func(p domain.PageRecord) bool { return p.StoreID == storeID && p.Handle == handle })
}

type memoryMenus struct{ c *MemoryCatalog }

func (m memoryMenus) List(_ context.Context, storeID string) ([]domain.MenuRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return filter(m.c.menus, func(mr domain.MenuRecord) bool { return mr.StoreID == storeID }), nil
}

func (m memoryMenus) GetByID(_ context.Context, storeID, id string) (*domain.MenuRecord, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.menus, func(mr domain.MenuRecord) bool { return mr.StoreID == storeID && mr.ID == id })
}

type memoryCheckouts struct{ c *MemoryCatalog }

func (m memoryCheckouts) GetByToken(_ context.Context, storeID, token string) (*domain.CheckoutSession, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	return first(m.c.checkouts, func(cs domain.CheckoutSession) bool { return cs.StoreID == storeID && cs.Token == token })
}
