// Package templates loads theme files from object storage, coalescing
// concurrent fetches and caching raw and compiled templates per store.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/pkg/cache"
)

// Options configures a Loader
type Options struct {
	// Timeout bounds every storage fetch, independent of the caller's context
	Timeout time.Duration
	// AssetBaseURL is the prefix asset_url builds on
	AssetBaseURL string
	// DefaultLocale is the locales/ file translations are read from
	DefaultLocale string
}

// Loader reads theme files for stores
type Loader struct {
	storage  domain.ObjectStorage
	raw      *cache.Typed[string]
	compiled *cache.Typed[*liquid.Template]
	sections *cache.Typed[*Section]
	policy   caching.Policy
	opts     Options
	flight   singleflight.Group
	logger   *slog.Logger

	mu      sync.Mutex
	engines map[string]*engineEntry
}

type engineEntry struct {
	engine      *liquid.Engine
	fingerprint string
}

// NewLoader creates a loader over storage using the template cache categories
func NewLoader(storage domain.ObjectStorage, caches *caching.Caches, opts Options, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en.default"
	}
	return &Loader{
		storage:  storage,
		raw:      cache.NewTyped[string](caches.Store(caching.CategoryTemplateRaw), ""),
		compiled: cache.NewTyped[*liquid.Template](caches.Store(caching.CategoryTemplateCompiled), ""),
		sections: cache.NewTyped[*Section](caches.Store(caching.CategoryTemplateCompiled), ""),
		policy:   caches.Policy(),
		opts:     opts,
		logger:   logger,
		engines:  make(map[string]*engineEntry),
	}
}

// IsNotFound reports whether err means the theme file does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrObjectNotFound)
}

// LoadTemplate returns the text of a theme file. Concurrent loads of the
// same uncached key share one storage fetch; a caller that gives up does
// not cancel the fetch for the others.
func (l *Loader) LoadTemplate(ctx context.Context, storeID, path string) (string, error) {
	key := caching.TemplateKey(storeID, path)
	if s, ok := l.raw.Get(key); ok {
		metrics.ObserveCache(string(caching.CategoryTemplateRaw), true)
		return s, nil
	}
	metrics.ObserveCache(string(caching.CategoryTemplateRaw), false)

	data, err := l.fetch(ctx, key)
	if err != nil {
		return "", err
	}
	s := string(data)
	l.raw.Set(key, s, l.policy.Template)
	return s, nil
}

// LoadAsset returns the bytes of a theme asset without caching them
func (l *Loader) LoadAsset(ctx context.Context, storeID, path string) ([]byte, error) {
	return l.fetch(ctx, caching.TemplateKey(storeID, path))
}

func (l *Loader) fetch(ctx context.Context, key string) ([]byte, error) {
	ch := l.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.Timeout)
		defer cancel()
		data, err := l.storage.Get(fctx, key)
		switch {
		case err == nil:
			metrics.ObserveTemplateFetch("fetched")
		case IsNotFound(err):
			metrics.ObserveTemplateFetch("missing")
		default:
			metrics.ObserveTemplateFetch("error")
			l.logger.Warn("template fetch failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return data, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.ObserveTemplateFetch("shared")
		}
		if res.Err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", key, res.Err)
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to load %s: %w", key, ctx.Err())
	}
}

// LoadCompiledTemplate returns the compiled form of a theme file. A cached
// compilation is reused only while its content hash matches the source.
func (l *Loader) LoadCompiledTemplate(ctx context.Context, store *domain.Store, path string) (*liquid.Template, error) {
	engine, err := l.Engine(ctx, store)
	if err != nil {
		return nil, err
	}
	return l.compile(ctx, engine, store.ID, path)
}

func (l *Loader) compile(ctx context.Context, engine *liquid.Engine, storeID, path string) (*liquid.Template, error) {
	source, err := l.LoadTemplate(ctx, storeID, path)
	if err != nil {
		return nil, err
	}
	key := caching.TemplateKey(storeID, path)
	hash := liquid.HashSource([]byte(source))
	if t, ok := l.compiled.Get(key); ok && t.Hash == hash {
		metrics.ObserveCache(string(caching.CategoryTemplateCompiled), true)
		return t, nil
	}
	metrics.ObserveCache(string(caching.CategoryTemplateCompiled), false)

	t, err := engine.Compile(path, source)
	if err != nil {
		return nil, err
	}
	l.compiled.Set(key, t, l.policy.Template)
	return t, nil
}

// LoadJSONTemplate loads templates/{name}.json for a page type
func (l *Loader) LoadJSONTemplate(ctx context.Context, storeID string, pageType domain.PageType) (*JSONTemplate, error) {
	raw, err := l.LoadTemplate(ctx, storeID, "templates/"+pageType.TemplateName()+".json")
	if err != nil {
		return nil, err
	}
	return ParseJSONTemplate([]byte(raw))
}

// LoadSectionGroup loads sections/{group}.json. A missing group file
// returns (nil, nil).
func (l *Loader) LoadSectionGroup(ctx context.Context, storeID, group string) (*JSONTemplate, error) {
	raw, err := l.LoadTemplate(ctx, storeID, "sections/"+group+".json")
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseJSONTemplate([]byte(raw))
}

// LoadSettings returns the active theme settings: the defaults declared
// in config/settings_schema.json overlaid with config/settings_data.json.
// Missing files contribute nothing.
func (l *Loader) LoadSettings(ctx context.Context, storeID string) (map[string]any, error) {
	defaults := map[string]any{}
	schema, err := l.LoadTemplate(ctx, storeID, "config/settings_schema.json")
	switch {
	case err == nil:
		defs, perr := liquid.ParseSettingsSchema([]byte(schema))
		if perr != nil {
			l.logger.Warn("invalid settings schema", slog.String("store_id", storeID), slog.String("error", perr.Error()))
		} else {
			defaults = liquid.SettingDefaults(defs)
		}
	case !IsNotFound(err):
		return nil, err
	}

	current := map[string]any{}
	data, err := l.LoadTemplate(ctx, storeID, "config/settings_data.json")
	switch {
	case err == nil:
		c, perr := ResolveSettingsData([]byte(data))
		if perr != nil {
			l.logger.Warn("invalid settings data", slog.String("store_id", storeID), slog.String("error", perr.Error()))
		} else {
			current = c
		}
	case !IsNotFound(err):
		return nil, err
	}
	return liquid.MergeSettings(defaults, current), nil
}

// LoadSection returns the raw source of sections/{name}.liquid
func (l *Loader) LoadSection(ctx context.Context, storeID, name string) (string, error) {
	return l.LoadTemplate(ctx, storeID, "sections/"+name+".liquid")
}

// LoadSnippet returns the compiled snippets/{name}.liquid
func (l *Loader) LoadSnippet(ctx context.Context, store *domain.Store, name string) (*liquid.Template, error) {
	return l.LoadCompiledTemplate(ctx, store, "snippets/"+name+".liquid")
}

// Snippets binds snippet lookups to one request
func (l *Loader) Snippets(ctx context.Context, store *domain.Store) liquid.SnippetSource {
	return snippetSource{ctx: ctx, loader: l, store: store}
}

type snippetSource struct {
	ctx    context.Context
	loader *Loader
	store  *domain.Store
}

func (s snippetSource) Snippet(name string) (*liquid.Template, error) {
	return s.loader.LoadSnippet(s.ctx, s.store, name)
}

// Engine returns the store's engine, building it on first use and
// rebuilding it when the store's name or currency changed
func (l *Loader) Engine(ctx context.Context, store *domain.Store) (*liquid.Engine, error) {
	if store == nil {
		return nil, errors.New("failed to build engine: nil store")
	}
	fp := engineFingerprint(store)
	l.mu.Lock()
	entry, ok := l.engines[store.ID]
	l.mu.Unlock()
	if ok && entry.fingerprint == fp {
		return entry.engine, nil
	}

	env := liquid.Environment{
		StoreID:      store.ID,
		StoreName:    store.Name,
		Currency:     store.Currency,
		AssetBaseURL: l.opts.AssetBaseURL,
		Translations: l.loadTranslations(ctx, store.ID),
	}
	engine := liquid.NewEngine(env, l.logger)

	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.engines[store.ID]; ok && cur.fingerprint == fp && cur != entry {
		// another request built it first
		return cur.engine, nil
	}
	if ok {
		// templates compiled by the previous engine carry its filters;
		// compiled sections share the same store
		l.compiled.DeleteByPrefix(domain.TemplatePrefix(store.ID))
	}
	l.engines[store.ID] = &engineEntry{engine: engine, fingerprint: fp}
	return engine, nil
}

func engineFingerprint(s *domain.Store) string {
	c := s.Currency
	return fmt.Sprintf("%s|%s|%s|%d|%s|%s", s.Name, c.Code, c.Locale, c.DecimalPlaces, c.MoneyFormat, c.MoneyWithCurrencyFormat)
}

// loadTranslations flattens the default locale file into dotted keys.
// A missing or invalid file yields no translations.
func (l *Loader) loadTranslations(ctx context.Context, storeID string) map[string]string {
	raw, err := l.LoadTemplate(ctx, storeID, "locales/"+l.opts.DefaultLocale+".json")
	if err != nil {
		if !IsNotFound(err) {
			l.logger.Warn("failed to load locale", slog.String("store_id", storeID), slog.String("error", err.Error()))
		}
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		l.logger.Warn("invalid locale file", slog.String("store_id", storeID), slog.String("error", err.Error()))
		return nil
	}
	out := map[string]string{}
	flatten("", doc, out)
	return out
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case string:
		out[prefix] = t
	default:
		out[prefix] = strings.TrimSpace(fmt.Sprint(t))
	}
}

// InvalidateStore drops the store's raw and compiled templates and its
// engine. Returns the number of cache entries removed.
func (l *Loader) InvalidateStore(storeID string) int {
	prefix := domain.TemplatePrefix(storeID)
	n := l.raw.DeleteByPrefix(prefix) + l.compiled.DeleteByPrefix(prefix)
	l.mu.Lock()
	delete(l.engines, storeID)
	l.mu.Unlock()
	return n
}
