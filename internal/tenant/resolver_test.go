package tenant

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/repository"
	"github.com/aryan0dhankhar/storefront/pkg/cache"
)

// countingRepo counts backend lookups and can fail them
type countingRepo struct {
	domain.StoreRepository
	calls atomic.Int32
	err   error
}

func (c *countingRepo) GetByCustomDomain(ctx context.Context, host string) (*domain.Store, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.StoreRepository.GetByCustomDomain(ctx, host)
}

func (c *countingRepo) GetByDefaultDomain(ctx context.Context, host string) (*domain.Store, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.StoreRepository.GetByDefaultDomain(ctx, host)
}

func newRepo() *countingRepo {
	return &countingRepo{StoreRepository: repository.NewMemoryStoreRepository(
		domain.Store{ID: "s1", Name: "Acme", Active: true, DefaultDomain: "acme.platform.dev", CustomDomain: "shop.acme.com"},
		domain.Store{ID: "s2", Name: "Impostor", Active: true, DefaultDomain: "shop.acme.com"},
		domain.Store{ID: "s3", Name: "Closed Co", Active: false, DefaultDomain: "closed.platform.dev"},
	)}
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "shop.acme.com", NormalizeHost(" Shop.Acme.COM:8080 "))
	assert.Equal(t, "shop.acme.com", NormalizeHost("shop.acme.com."))
	assert.Equal(t, "localhost", NormalizeHost("localhost"))
}

func TestResolveDomainPrefersCustomDomain(t *testing.T) {
	r := NewResolver(newRepo(), caching.New(caching.DefaultPolicy(), nil), nil)
	s, err := r.ResolveDomain(context.Background(), "shop.acme.com")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "s1", s.ID)
}

func TestResolveDomainCachesOutcomes(t *testing.T) {
	now := time.Unix(0, 0)
	caches := caching.New(caching.DefaultPolicy(), nil, cache.WithClock(func() time.Time { return now }))
	repo := newRepo()
	r := NewResolver(repo, caches, nil)
	ctx := context.Background()

	s, err := r.ResolveDomain(ctx, "acme.platform.dev")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	_, _ = r.ResolveDomain(ctx, "ACME.platform.dev:443")
	assert.Equal(t, int32(2), repo.calls.Load(), "second lookup is served from cache")

	s, err = r.ResolveDomain(ctx, "nowhere.dev")
	require.NoError(t, err)
	assert.Nil(t, s)
	_, _ = r.ResolveDomain(ctx, "nowhere.dev")
	assert.Equal(t, int32(4), repo.calls.Load(), "not-found is cached")

	now = now.Add(6 * time.Minute)
	_, _ = r.ResolveDomain(ctx, "nowhere.dev")
	assert.Equal(t, int32(6), repo.calls.Load(), "not-found expires before hits do")
	_, _ = r.ResolveDomain(ctx, "acme.platform.dev")
	assert.Equal(t, int32(6), repo.calls.Load())
}

func TestResolveDomainCachesFailuresBriefly(t *testing.T) {
	now := time.Unix(0, 0)
	caches := caching.New(caching.DefaultPolicy(), nil, cache.WithClock(func() time.Time { return now }))
	repo := newRepo()
	repo.err = errors.New("connection reset")
	r := NewResolver(repo, caches, nil)
	ctx := context.Background()

	_, err := r.ResolveDomain(ctx, "acme.platform.dev")
	require.Error(t, err)
	_, err = r.ResolveDomain(ctx, "acme.platform.dev")
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, int32(2), repo.calls.Load())

	repo.err = nil
	now = now.Add(2 * time.Minute)
	s, err := r.ResolveDomain(ctx, "acme.platform.dev")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
}

func TestResolveStoreByDomainErrors(t *testing.T) {
	r := NewResolver(newRepo(), caching.New(caching.DefaultPolicy(), nil), nil)
	ctx := context.Background()

	_, err := r.ResolveStoreByDomain(ctx, "nowhere.dev")
	require.Error(t, err)
	se := domain.AsStoreError(err)
	assert.Equal(t, domain.ErrorStoreNotFound, se.Type)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	_, err = r.ResolveStoreByDomain(ctx, "closed.platform.dev")
	require.Error(t, err)
	se = domain.AsStoreError(err)
	assert.Equal(t, domain.ErrorStoreNotActive, se.Type)
	assert.Equal(t, http.StatusPaymentRequired, se.StatusCode)
	require.NotNil(t, se.Store)
	assert.Equal(t, "Closed Co", se.Store.Name)
}

func TestInvalidateDropsBothDomains(t *testing.T) {
	repo := newRepo()
	r := NewResolver(repo, caching.New(caching.DefaultPolicy(), nil), nil)
	ctx := context.Background()
	s, err := r.ResolveDomain(ctx, "shop.acme.com")
	require.NoError(t, err)
	_, _ = r.ResolveDomain(ctx, "acme.platform.dev")
	before := repo.calls.Load()

	r.Invalidate(s)
	_, _ = r.ResolveDomain(ctx, "shop.acme.com")
	_, _ = r.ResolveDomain(ctx, "acme.platform.dev")
	assert.Equal(t, before+4, repo.calls.Load())
}
