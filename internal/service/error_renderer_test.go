package service

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

func TestErrorRendererLocalizes(t *testing.T) {
	r, err := NewErrorRenderer(false, nil)
	require.NoError(t, err)
	assert.Equal(t, "en", r.Languages()[0])

	res := r.Render(domain.NewStoreNotActiveError(&closed), nil, "es-MX,es;q=0.9,en;q=0.5")
	assert.Equal(t, http.StatusPaymentRequired, res.StatusCode)
	assert.Equal(t, "Tienda no disponible | Closed Co", res.Metadata.Title)
	assert.Contains(t, res.HTML, `<html lang="es">`)
	assert.Zero(t, res.CacheTTL)
	assert.Empty(t, res.CacheKey)
}

func TestErrorRendererFallsBackToEnglish(t *testing.T) {
	r, err := NewErrorRenderer(false, nil)
	require.NoError(t, err)

	res := r.Render(domain.NewStoreNotFoundError("nobody.example.com"), nil, "ja-JP")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, res.HTML, `<html lang="en">`)
	assert.NotContains(t, res.Metadata.Title, "|")
}

func TestErrorRendererWrapsPlainErrors(t *testing.T) {
	r, err := NewErrorRenderer(true, nil)
	require.NoError(t, err)

	res := r.Render(errors.New("db down <oops>"), &acme, "")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, res.Metadata.Title, "| Acme")
	assert.Contains(t, res.HTML, "db down &lt;oops&gt;")
	assert.NotContains(t, res.HTML, "<oops>")
}
