package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/repository"
)

var store = &domain.Store{ID: "s1", Name: "Acme", Currency: domain.DefaultCurrency()}

func TestParseImagesAcceptsEveryEncoding(t *testing.T) {
	native := json.RawMessage(`["/a.png", {"src": "/b.png", "alt": "B", "width": 100}]`)
	encoded, _ := json.Marshal(string(native))

	for _, raw := range []json.RawMessage{native, encoded} {
		imgs := ParseImages(raw)
		require.Len(t, imgs, 2)
		assert.Equal(t, "/a.png", imgs[0].Src)
		assert.Equal(t, 1, imgs[0].Position)
		assert.Equal(t, "B", imgs[1].Alt)
		assert.Equal(t, 100, imgs[1].Width)
	}

	assert.Empty(t, ParseImages(nil))
	assert.Empty(t, ParseImages(json.RawMessage(`"not json"`)))
	assert.Empty(t, ParseImages(json.RawMessage(`{"src": "/x.png"}`)))
}

func TestTransformProduct(t *testing.T) {
	rec := domain.ProductRecord{
		ID: "p1", Title: "Café Crème", Price: 1500, Available: true,
		Images:   json.RawMessage(`"[\"/a.png\"]"`),
		Variants: json.RawMessage(`[{"id": 11, "title": "Small", "price": 1200}, {"id": 12, "price": "19.99", "available": false}]`),
	}
	p := TransformProduct(rec, domain.DefaultCurrency(), "")
	assert.Equal(t, "cafe-creme", p.Handle)
	assert.Equal(t, "/products/cafe-creme", p.URL)
	require.Len(t, p.Variants, 2)
	assert.Equal(t, "11", p.Variants[0].ID)
	assert.Equal(t, int64(1999), p.Variants[1].Price)
	assert.Equal(t, "Default Title", p.Variants[1].Title)
	assert.Equal(t, int64(1200), p.Price)
	assert.Equal(t, int64(1200), p.PriceMin)
	assert.Equal(t, int64(1999), p.PriceMax)
	assert.Equal(t, "$12.00", p.PriceFormatted)
	assert.True(t, p.Available)
	assert.Equal(t, "Café Crème", p.Images[0].Alt)

	nested := TransformProduct(rec, domain.DefaultCurrency(), "summer")
	assert.Equal(t, "/collections/summer/products/cafe-creme", nested.URL)

	liq := p.ToLiquid()
	assert.Equal(t, true, liq["price_varies"])
	assert.NotNil(t, liq["featured_image"])
}

func TestDecimalPricesFollowCurrencyScale(t *testing.T) {
	jpy := domain.CurrencyConfig{Code: "JPY", Locale: "ja-JP", DecimalPlaces: 0, MoneyFormat: "¥{{amount_no_decimals}}"}
	rec := domain.ProductRecord{
		ID: "p1", Title: "Tea", Price: 1500,
		Variants: json.RawMessage(`[{"id": 1, "price": "1500.0", "compare_at_price": "1800.0"}, {"id": 2, "price": 1600}]`),
	}
	p := TransformProduct(rec, jpy, "")
	require.Len(t, p.Variants, 2)
	assert.Equal(t, int64(1500), p.Variants[0].Price)
	assert.Equal(t, int64(1800), p.Variants[0].CompareAtPrice)
	assert.Equal(t, int64(1600), p.Variants[1].Price)

	bhd := ParseVariants(json.RawMessage(`[{"price": "1.250"}]`), 0, 3)
	require.Len(t, bhd, 1)
	assert.Equal(t, int64(1250), bhd[0].Price)
}

func TestTransformCheckoutUsesSessionCurrencyScale(t *testing.T) {
	items := json.RawMessage(`[{"title": "Tea", "price": "12.50", "quantity": 2}]`)

	usd := TransformCheckout(domain.CheckoutSession{Currency: "USD", LineItems: items}, domain.DefaultCurrency())
	require.Len(t, usd.LineItems, 1)
	assert.Equal(t, int64(1250), usd.LineItems[0].Price)
	assert.Equal(t, int64(2500), usd.LineItems[0].LinePrice)

	yen := TransformCheckout(domain.CheckoutSession{Currency: "JPY", LineItems: json.RawMessage(`[{"price": "1200.0"}]`)}, domain.DefaultCurrency())
	require.Len(t, yen.LineItems, 1)
	assert.Equal(t, int64(1200), yen.LineItems[0].Price)
}

func TestParseLinksAliases(t *testing.T) {
	links := ParseLinks(json.RawMessage(`[
		{"title": "Shop", "url": "/collections/all", "items": [{"name": "Shoes", "href": "/collections/shoes"}]},
		{"label": "About"}
	]`))
	require.Len(t, links, 2)
	assert.Equal(t, "Shoes", links[0].Links[0].Title)
	assert.Equal(t, "/collections/shoes", links[0].Links[0].URL)
	assert.Equal(t, "#", links[1].URL)
	assert.Equal(t, 1, links[0].ToLiquid()["levels"])
}

func TestValidCheckout(t *testing.T) {
	now := time.Unix(1000, 0)
	open := &domain.CheckoutSession{Status: domain.CheckoutOpen, ExpiresAt: now.Add(time.Minute)}
	done := &domain.CheckoutSession{Status: domain.CheckoutCompleted, ExpiresAt: now.Add(time.Minute)}
	stale := &domain.CheckoutSession{Status: domain.CheckoutOpen, ExpiresAt: now}
	expired := &domain.CheckoutSession{Status: domain.CheckoutExpired, ExpiresAt: now.Add(time.Minute)}

	assert.True(t, ValidCheckout(open, false, now))
	assert.False(t, ValidCheckout(done, false, now))
	assert.True(t, ValidCheckout(done, true, now))
	assert.False(t, ValidCheckout(stale, false, now))
	assert.False(t, ValidCheckout(expired, true, now))
	assert.False(t, ValidCheckout(nil, true, now))
}

type countingProducts struct {
	domain.ProductRepository
	lists atomic.Int32
	fail  bool
}

func (c *countingProducts) List(ctx context.Context, storeID string, opts domain.ListOptions) (domain.Page[domain.ProductRecord], error) {
	c.lists.Add(1)
	if c.fail {
		return domain.Page[domain.ProductRecord]{}, errors.New("backend down")
	}
	return c.ProductRepository.List(ctx, storeID, opts)
}

func newFetcher(t *testing.T) (*Fetcher, *repository.MemoryCatalog, *countingProducts, *caching.Caches) {
	t.Helper()
	cat := repository.NewMemoryCatalog()
	products := &countingProducts{ProductRepository: cat.Products()}
	caches := caching.New(caching.DefaultPolicy(), nil)
	f := NewFetcher(Repositories{
		Products:    products,
		Collections: cat.Collections(),
		Pages:       cat.Pages(),
		Navigation:  cat.Navigation(),
		Checkouts:   cat.Checkouts(),
	}, caches, time.Second, nil)
	return f, cat, products, caches
}

func TestFetcherCachesPerStore(t *testing.T) {
	f, cat, products, caches := newFetcher(t)
	cat.AddProducts(
		domain.ProductRecord{ID: "p1", StoreID: "s1", Title: "A", Handle: "a"},
		domain.ProductRecord{ID: "p2", StoreID: "s2", Title: "B", Handle: "b"},
	)
	ctx := context.Background()

	page, err := f.ListProducts(ctx, store, domain.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	_, _ = f.ListProducts(ctx, store, domain.ListOptions{Limit: 10})
	assert.Equal(t, int32(1), products.lists.Load())

	other := &domain.Store{ID: "s2", Currency: domain.DefaultCurrency()}
	page, err = f.ListProducts(ctx, other, domain.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "p2", page.Items[0].ID)
	assert.Equal(t, int32(2), products.lists.Load())

	caches.InvalidateStore("s1")
	_, _ = f.ListProducts(ctx, store, domain.ListOptions{Limit: 10})
	assert.Equal(t, int32(3), products.lists.Load())
}

func TestFetcherMissesAreNil(t *testing.T) {
	f, cat, _, _ := newFetcher(t)
	cat.AddCollection(domain.CollectionRecord{ID: "c1", StoreID: "s1", Title: "Summer Sale"})
	ctx := context.Background()

	p, err := f.GetProductByHandle(ctx, store, "nope", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	c, err := f.GetCollection(ctx, store, "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "summer-sale", c.Handle)
	assert.Equal(t, "/collections/summer-sale", c.URL)
}

func TestCollectionProductsNestUnderCollection(t *testing.T) {
	f, cat, _, _ := newFetcher(t)
	cat.AddProducts(domain.ProductRecord{ID: "p1", StoreID: "s1", Title: "Red Shoes", Handle: "red-shoes"})
	cat.AddCollection(domain.CollectionRecord{ID: "c1", StoreID: "s1", Handle: "summer"}, "p1")

	col, err := f.GetCollectionByHandle(context.Background(), store, "summer")
	require.NoError(t, err)
	page, err := f.ListCollectionProducts(context.Background(), store, col, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "/collections/summer/products/red-shoes", page.Items[0].URL)
}

func TestRelatedProductsDegradeToEmpty(t *testing.T) {
	f, cat, _, _ := newFetcher(t)
	cat.AddProducts(
		domain.ProductRecord{ID: "p1", StoreID: "s1", Title: "Shoe", ProductType: "shoes", Tags: []string{"red"}},
		domain.ProductRecord{ID: "p2", StoreID: "s1", Title: "Boot", ProductType: "shoes"},
		domain.ProductRecord{ID: "p3", StoreID: "s1", Title: "Hat", Tags: []string{"RED"}},
		domain.ProductRecord{ID: "p4", StoreID: "s1", Title: "Mug"},
	)
	self := TransformProduct(domain.ProductRecord{ID: "p1", Title: "Shoe", ProductType: "shoes", Tags: []string{"red"}}, store.Currency, "")

	related := f.RelatedProducts(context.Background(), store, &self, 4)
	require.Len(t, related, 2)
	assert.Equal(t, "p2", related[0].ID)
	assert.Equal(t, "p3", related[1].ID)

	f2, _, failing, _ := newFetcher(t)
	failing.fail = true
	assert.Empty(t, f2.RelatedProducts(context.Background(), store, &self, 4))
}

func TestCheckoutFetch(t *testing.T) {
	f, cat, _, _ := newFetcher(t)
	now := time.Unix(5000, 0)
	f.now = func() time.Time { return now }
	cat.AddCheckouts(
		domain.CheckoutSession{ID: "k1", StoreID: "s1", Token: "open", Status: domain.CheckoutOpen, ExpiresAt: now.Add(time.Hour),
			LineItems: json.RawMessage(`[{"title": "Shoe", "quantity": 2, "price": 1000}]`)},
		domain.CheckoutSession{ID: "k2", StoreID: "s1", Token: "done", Status: domain.CheckoutCompleted, ExpiresAt: now.Add(time.Hour)},
	)
	ctx := context.Background()

	c := f.Checkout(ctx, store, "open", false)
	require.NotNil(t, c)
	require.Len(t, c.LineItems, 1)
	assert.Equal(t, int64(2000), c.LineItems[0].LinePrice)
	assert.Equal(t, 2, c.ToLiquid()["item_count"])

	assert.Nil(t, f.Checkout(ctx, store, "done", false))
	assert.NotNil(t, f.Checkout(ctx, store, "done", true))
	assert.Nil(t, f.Checkout(ctx, store, "missing", false))
	assert.Nil(t, f.Checkout(ctx, &domain.Store{ID: "s2"}, "open", false))
}
