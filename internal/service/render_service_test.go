package service

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/featureflags"
)

func TestRenderIndexWithLayoutAndSections(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})

	res, err := h.get(t, "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.HTML, "<header>Acme</header>")
	assert.Contains(t, res.HTML, "<h1>Welcome</h1>")
	assert.Contains(t, res.HTML, `id="section-hero"`)
	assert.Contains(t, res.HTML, `<meta name="storefront-store" content="s1">`)
	assert.NotEmpty(t, res.CacheKey)
	assert.Positive(t, res.CacheTTL)
}

func TestRenderStagesRunInOrder(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})
	assert.Equal(t, []string{"resolve", "engine", "load", "context", "cache_lookup", "content", "layout", "metadata", "cache_store"}, h.render.Stages())
}

func TestRenderProductAndCollection(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})

	res, err := h.get(t, "/products/mug")
	require.NoError(t, err)
	assert.Contains(t, res.HTML, "<h2>Mug</h2>")

	res, err = h.get(t, "/collections/kitchen")
	require.NoError(t, err)
	assert.Contains(t, res.HTML, "[Mug]")
}

func TestUnknownProductRendersNotFoundPage(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})

	res, err := h.get(t, "/products/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, res.HTML, "Page not found")
	assert.Contains(t, res.HTML, "<header>Acme</header>")
	assert.Empty(t, res.CacheKey)
}

func TestThemeNotFoundTemplateIsUsed(t *testing.T) {
	files := baseTheme()
	files["templates/404.liquid"] = `<p>Nothing here</p>`
	h := newHarness(t, files, RenderOptions{})

	res, err := h.get(t, "/pages/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, res.HTML, "Nothing here")
}

func TestInactiveStoreFails(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})

	_, err := h.render.Render(context.Background(), RenderRequest{Host: "closed.example.com", Path: "/"})
	require.Error(t, err)
	se := domain.AsStoreError(err)
	assert.Equal(t, domain.ErrorStoreNotActive, se.Type)
	assert.Equal(t, http.StatusPaymentRequired, se.StatusCode)
	require.NotNil(t, se.Store)
	assert.Equal(t, "Closed Co", se.Store.Name)
}

func TestUnknownDomainFails(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})

	_, err := h.render.Render(context.Background(), RenderRequest{Host: "nobody.example.com", Path: "/"})
	assert.True(t, domain.IsErrorType(err, domain.ErrorStoreNotFound))
}

func TestMissingLayoutFails(t *testing.T) {
	files := baseTheme()
	delete(files, "layout/theme.liquid")
	h := newHarness(t, files, RenderOptions{})

	_, err := h.get(t, "/")
	assert.True(t, domain.IsErrorType(err, domain.ErrorTemplateNotFound))
}

func TestBrokenTemplateIsRenderError(t *testing.T) {
	files := baseTheme()
	files["templates/product.liquid"] = `{% if product %}unclosed`
	h := newHarness(t, files, RenderOptions{})

	_, err := h.get(t, "/products/mug")
	assert.True(t, domain.IsErrorType(err, domain.ErrorRender))
}

func TestLayoutNoneRendersBareContent(t *testing.T) {
	files := baseTheme()
	files["templates/index.json"] = `{"layout": false, "sections": {"hero": {"type": "hero", "settings": {"heading": "Bare"}}}, "order": ["hero"]}`
	h := newHarness(t, files, RenderOptions{})

	res, err := h.get(t, "/")
	require.NoError(t, err)
	assert.Contains(t, res.HTML, "Bare")
	assert.NotContains(t, res.HTML, "<header>")
}

func TestPageCacheServesUntilInvalidated(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})
	ctx := context.Background()

	first, err := h.get(t, "/")
	require.NoError(t, err)

	require.NoError(t, h.mem.Put(ctx, domain.TemplateKey("s1", "sections/hero.liquid"), []byte(`<h1>Changed</h1>`), "text/plain"))
	h.loader.InvalidateStore("s1")

	second, err := h.get(t, "/")
	require.NoError(t, err)
	assert.Equal(t, first.HTML, second.HTML)

	inv := h.themes.InvalidateStore(ctx, "s1")
	assert.Positive(t, inv.Pages)

	third, err := h.get(t, "/")
	require.NoError(t, err)
	assert.Contains(t, third.HTML, "<h1>Changed</h1>")
}

func TestPageCacheKeepsVisitorLocalesApart(t *testing.T) {
	files := baseTheme()
	files["layout/theme.liquid"] = `<html lang="{{ request.locale.iso_code }}">{{ content_for_layout }}</html>`
	h := newHarness(t, files, RenderOptions{})
	ctx := context.Background()

	for _, locale := range []string{"fr", "en", "fr"} {
		res, err := h.render.Render(ctx, RenderRequest{Host: "acme.example.com", Path: "/", Locale: locale})
		require.NoError(t, err)
		assert.Contains(t, res.HTML, `<html lang="`+locale+`">`)
		assert.Contains(t, res.CacheKey, "|l:"+locale)
	}
}

func TestTemplatesDoNotSeeTrackingParams(t *testing.T) {
	files := baseTheme()
	files["layout/theme.liquid"] = `<html>[{{ request.query.utm_source | join: "," }}][{{ request.query.sort_by | join: "," }}]{{ content_for_layout }}</html>`
	h := newHarness(t, files, RenderOptions{})
	ctx := context.Background()

	first, err := h.render.Render(ctx, RenderRequest{Host: "acme.example.com", Path: "/",
		Query: url.Values{"utm_source": {"mail"}, "sort_by": {"price"}}})
	require.NoError(t, err)
	assert.Contains(t, first.HTML, "[][price]")

	second, err := h.render.Render(ctx, RenderRequest{Host: "acme.example.com", Path: "/",
		Query: url.Values{"utm_source": {"ads"}, "sort_by": {"price"}}})
	require.NoError(t, err)
	assert.Equal(t, first.CacheKey, second.CacheKey)
	assert.Equal(t, first.HTML, second.HTML)
}

func TestEditorModeIsNeverCached(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{Flags: featureflags.Set{EditorBridge: true}})

	res, err := h.render.Render(context.Background(), RenderRequest{Host: "acme.example.com", Path: "/", EditorMode: true})
	require.NoError(t, err)
	assert.Empty(t, res.CacheKey)
	assert.Zero(t, res.CacheTTL)
	assert.Contains(t, res.HTML, `<meta name="robots" content="noindex">`)
	assert.Contains(t, res.HTML, "data-studio-bridge")
	assert.Contains(t, res.HTML, "/studio/ws")
}

func TestMinifiedOutputKeepsContent(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{Flags: featureflags.Set{MinifyHTML: true}})

	res, err := h.get(t, "/")
	require.NoError(t, err)
	assert.Contains(t, res.HTML, "Welcome")
	assert.Contains(t, res.HTML, "</html>")
}

func TestPageInfoFollowsTokens(t *testing.T) {
	h := newHarness(t, baseTheme(), RenderOptions{})

	first := h.render.pageInfo(url.Values{"page": {"5"}, "utm_source": {"x"}}, "t1")
	assert.Equal(t, 1, first.CurrentPage)
	assert.Empty(t, first.Token)
	assert.Equal(t, "t1", first.NextToken)
	assert.NotContains(t, first.Params, "utm_source")

	third := h.render.pageInfo(url.Values{"page": {"3"}, "token": {"t2"}, "previous": {"t1"}, "q": {"boots"}}, "t3")
	assert.Equal(t, 3, third.CurrentPage)
	assert.Equal(t, "t2", third.Token)
	assert.Equal(t, "t1", third.PreviousToken)
	assert.Equal(t, "boots", third.Params.Get("q"))

	second := h.render.pageInfo(url.Values{"page": {"2"}, "token": {"t1"}, "previous": {"stale"}}, "")
	assert.Equal(t, 2, second.CurrentPage)
	assert.Empty(t, second.PreviousToken)
}
