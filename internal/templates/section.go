package templates

import (
	"context"
	"log/slog"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
)

// Section is a compiled section body together with its parsed schema
type Section struct {
	Name     string
	Template *liquid.Template
	Schema   *liquid.Schema
	// SchemaErr is set when the schema block was present but invalid; the
	// section still renders with an empty schema
	SchemaErr error
	// Hash is the content hash of the full source, schema included
	Hash string
}

// CompileSection strips the schema block from raw, compiles the remaining
// body and parses the schema. Only a body compile failure is an error.
func CompileSection(engine *liquid.Engine, name, raw string) (*Section, error) {
	s := &Section{Name: name, Schema: &liquid.Schema{}, Hash: liquid.HashSource([]byte(raw))}
	if js, ok := liquid.ExtractSchema(raw); ok {
		schema, err := liquid.ParseSchema(js)
		if err != nil {
			s.SchemaErr = err
		} else {
			s.Schema = schema
		}
	}
	t, err := engine.Compile("sections/"+name+".liquid", liquid.StripSchema(raw))
	if err != nil {
		return nil, err
	}
	s.Template = t
	return s, nil
}

// sectionKey sits under the store's template prefix so store
// invalidation drops it with everything else
func sectionKey(storeID, name string) string {
	return caching.TemplateKey(storeID, "sections/"+name+".liquid") + "#section"
}

// LoadCompiledSection returns sections/{name}.liquid compiled with its
// schema parsed, reusing the cached result while the source is unchanged
func (l *Loader) LoadCompiledSection(ctx context.Context, store *domain.Store, name string) (*Section, error) {
	engine, err := l.Engine(ctx, store)
	if err != nil {
		return nil, err
	}
	raw, err := l.LoadSection(ctx, store.ID, name)
	if err != nil {
		return nil, err
	}
	key := sectionKey(store.ID, name)
	hash := liquid.HashSource([]byte(raw))
	if s, ok := l.sections.Get(key); ok && s.Hash == hash {
		metrics.ObserveCache(string(caching.CategoryTemplateCompiled), true)
		return s, nil
	}
	metrics.ObserveCache(string(caching.CategoryTemplateCompiled), false)

	s, err := CompileSection(engine, name, raw)
	if err != nil {
		return nil, err
	}
	if s.SchemaErr != nil {
		l.logger.Warn("invalid section schema",
			slog.String("store_id", store.ID),
			slog.String("section", name),
			slog.String("error", s.SchemaErr.Error()),
		)
	}
	l.sections.Set(key, s, l.policy.Template)
	return s, nil
}
