// Package tenant maps request hosts to stores.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/pkg/cache"
)

// ErrLookupFailed is returned while a failed domain lookup is cached
var ErrLookupFailed = errors.New("domain lookup failed")

// outcome is the cached result of one domain lookup. A nil store with
// failed unset is a cached not-found.
type outcome struct {
	store  *domain.Store
	failed bool
}

// Resolver resolves hosts to stores, caching hits, misses and failures
// with distinct TTLs
type Resolver struct {
	stores domain.StoreRepository
	cache  *cache.Typed[outcome]
	policy caching.Policy
	logger *slog.Logger
}

// NewResolver creates a resolver backed by the domain cache category
func NewResolver(stores domain.StoreRepository, caches *caching.Caches, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		stores: stores,
		cache:  cache.NewTyped[outcome](caches.Store(caching.CategoryDomain), ""),
		policy: caches.Policy(),
		logger: logger,
	}
}

// NormalizeHost lowercases a Host header value and strips its port and
// any trailing dot
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// ResolveDomain returns the store serving host, or nil when none does.
// The custom-domain and default-domain lookups run concurrently and a
// custom-domain match wins.
func (r *Resolver) ResolveDomain(ctx context.Context, host string) (*domain.Store, error) {
	host = NormalizeHost(host)
	if host == "" {
		return nil, nil
	}
	if o, ok := r.cache.Get(host); ok {
		metrics.ObserveCache(string(caching.CategoryDomain), true)
		if o.failed {
			return nil, ErrLookupFailed
		}
		return o.store, nil
	}
	metrics.ObserveCache(string(caching.CategoryDomain), false)

	var (
		custom, def       *domain.Store
		customErr, defErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		custom, customErr = lookup(gctx, r.stores.GetByCustomDomain, host)
		return nil
	})
	g.Go(func() error {
		def, defErr = lookup(gctx, r.stores.GetByDefaultDomain, host)
		return nil
	})
	_ = g.Wait()

	switch {
	case custom != nil:
		r.cache.Set(host, outcome{store: custom}, r.policy.Domain)
		return custom, nil
	case customErr != nil:
		// a default-domain hit cannot be trusted while the custom lookup is unknown
		return nil, r.fail(host, customErr)
	case def != nil:
		r.cache.Set(host, outcome{store: def}, r.policy.Domain)
		return def, nil
	case defErr != nil:
		return nil, r.fail(host, defErr)
	}
	r.cache.Set(host, outcome{}, r.policy.DomainNotFound)
	return nil, nil
}

func lookup(ctx context.Context, get func(context.Context, string) (*domain.Store, error), host string) (*domain.Store, error) {
	s, err := get(ctx, host)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return s, err
}

func (r *Resolver) fail(host string, err error) error {
	r.logger.Error("domain lookup failed",
		slog.String("domain", host),
		slog.String("error", err.Error()),
	)
	r.cache.Set(host, outcome{failed: true}, r.policy.DomainError)
	return fmt.Errorf("failed to resolve domain %s: %w", host, err)
}

// ResolveStoreByDomain resolves host to an active store. It returns a
// STORE_NOT_FOUND error for unknown hosts and STORE_NOT_ACTIVE for
// deactivated stores.
func (r *Resolver) ResolveStoreByDomain(ctx context.Context, host string) (*domain.Store, error) {
	store, err := r.ResolveDomain(ctx, host)
	if err != nil {
		return nil, domain.NewDataError(nil, "failed to resolve store", err)
	}
	if store == nil {
		return nil, domain.NewStoreNotFoundError(NormalizeHost(host))
	}
	if !store.Active {
		return nil, domain.NewStoreNotActiveError(store)
	}
	return store, nil
}

// Invalidate drops the cached lookups of every domain of store
func (r *Resolver) Invalidate(store *domain.Store) {
	if store == nil {
		return
	}
	for _, host := range []string{store.CustomDomain, store.DefaultDomain} {
		if host = NormalizeHost(host); host != "" {
			r.cache.Delete(host)
		}
	}
}
