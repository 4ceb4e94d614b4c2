package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/internal/templates"
	"github.com/aryan0dhankhar/storefront/pkg/textutil"
)

const maxErrorComment = 200

// wrapper tags a section schema may ask for
var sectionTags = map[string]bool{
	"div": true, "section": true, "article": true, "aside": true,
	"header": true, "footer": true, "main": true, "nav": true,
}

// Composer renders sections for page and layout renders
type Composer struct {
	loader      *templates.Loader
	logger      *slog.Logger
	parallelism int
}

// NewComposer creates a composer. parallelism bounds concurrent section
// renders per call; zero or less means 8.
func NewComposer(loader *templates.Loader, parallelism int, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if parallelism <= 0 {
		parallelism = 8
	}
	return &Composer{loader: loader, logger: logger, parallelism: parallelism}
}

// Scope is the per-request state every section render of a page shares
type Scope struct {
	Store  *domain.Store
	Engine *liquid.Engine
	// Base is the root bindings with the request state attached
	Base liquid.Bindings
	// Assets receives the CSS and JS of successful section renders, in
	// section order
	Assets   *liquid.AssetCollector
	Settings map[string]any
	Editor   bool
}

// Instance is one placement of a section: its type, the instance id it
// renders under and the tenant's settings and blocks
type Instance struct {
	ID       string
	Type     string
	Settings map[string]any
	Blocks   []templates.OrderedBlock
}

type rendered struct {
	html   string
	assets *liquid.AssetCollector
}

// ErrorPlaceholder is the comment emitted in place of a section that
// failed to render
func ErrorPlaceholder(name string, err error) string {
	msg := err.Error()
	if len(msg) > maxErrorComment {
		msg = textutil.Clip(msg, maxErrorComment) + "..."
	}
	msg = strings.ReplaceAll(msg, "--", "- -")
	return fmt.Sprintf("<!-- Section '%s' error: %s -->", name, msg)
}

// RenderSectionWithSchema compiles and renders a section from its raw
// source. The schema block is never part of the output; its defaults are
// overlaid with overrides. A failed render is retried with defaults only
// and no blocks, then replaced by an error comment.
func (c *Composer) RenderSectionWithSchema(sc *Scope, name, raw string, overrides map[string]any) string {
	sec, err := templates.CompileSection(sc.Engine, name, raw)
	if err != nil {
		c.logger.Warn("section compile failed",
			slog.String("store_id", sc.Store.ID),
			slog.String("section", name),
			slog.String("error", err.Error()),
		)
		metrics.ObserveSectionFallback("placeholder")
		return ErrorPlaceholder(name, err)
	}
	r := c.render(sc, sec, Instance{ID: name, Type: name, Settings: overrides})
	c.collect(sc, r)
	return r.html
}

// RenderSection renders one section instance from the store's theme
func (c *Composer) RenderSection(ctx context.Context, sc *Scope, inst Instance) string {
	r := c.renderInstance(ctx, sc, inst)
	c.collect(sc, r)
	return r.html
}

// RenderJSONTemplate renders the sections of a JSON template in order
func (c *Composer) RenderJSONTemplate(ctx context.Context, sc *Scope, tpl *templates.JSONTemplate) string {
	refs := tpl.OrderedSections()
	insts := make([]Instance, len(refs))
	for i, ref := range refs {
		insts[i] = fromConfig(ref.ID, ref.SectionConfig)
	}
	var b strings.Builder
	for _, r := range c.renderAll(ctx, sc, insts) {
		b.WriteString(r.html)
	}
	return b.String()
}

// PreloadSections renders every section a layout references, in parallel,
// keyed the way the section and sections tags look them up. A group with
// a sections/{group}.json file renders that file; a known group without
// one renders its member sections.
func (c *Composer) PreloadSections(ctx context.Context, sc *Scope, layout string) liquid.SectionOutputs {
	singles, groups := ExtractSectionRefs(layout)

	type slot struct {
		key   string
		first int
		count int
	}
	var slots []slot
	var insts []Instance
	claimed := map[string]bool{}
	add := func(key string, list []Instance) {
		slots = append(slots, slot{key: key, first: len(insts), count: len(list)})
		insts = append(insts, list...)
	}

	for _, name := range singles {
		claimed[name] = true
		add(name, []Instance{StaticInstance(name, sc.Settings)})
	}
	for _, group := range groups {
		tpl, err := c.loader.LoadSectionGroup(ctx, sc.Store.ID, group)
		if err != nil {
			c.logger.Warn("section group unavailable",
				slog.String("store_id", sc.Store.ID),
				slog.String("group", group),
				slog.String("error", err.Error()),
			)
		}
		if tpl != nil {
			var list []Instance
			for _, ref := range tpl.OrderedSections() {
				list = append(list, fromConfig(ref.ID, ref.SectionConfig))
			}
			add(group, list)
			continue
		}
		for _, member := range liquid.SectionGroups[group] {
			if !claimed[member] {
				claimed[member] = true
				add(member, []Instance{StaticInstance(member, sc.Settings)})
			}
		}
	}

	results := c.renderAll(ctx, sc, insts)
	out := make(liquid.SectionOutputs, len(slots))
	for _, s := range slots {
		var b strings.Builder
		for _, r := range results[s.first : s.first+s.count] {
			b.WriteString(r.html)
		}
		out[s.key] = b.String()
	}
	return out
}

// renderAll renders instances concurrently and merges their assets into
// the scope in instance order
func (c *Composer) renderAll(ctx context.Context, sc *Scope, insts []Instance) []rendered {
	results := make([]rendered, len(insts))
	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, inst := range insts {
		g.Go(func() error {
			results[i] = c.renderInstance(ctx, sc, inst)
			return nil
		})
	}
	_ = g.Wait()
	for _, r := range results {
		c.collect(sc, r)
	}
	return results
}

func (c *Composer) collect(sc *Scope, r rendered) {
	if sc.Assets != nil && r.assets != nil {
		sc.Assets.Merge(r.assets)
	}
}

func (c *Composer) renderInstance(ctx context.Context, sc *Scope, inst Instance) rendered {
	sec, err := c.loader.LoadCompiledSection(ctx, sc.Store, inst.Type)
	if templates.IsNotFound(err) {
		return rendered{html: liquid.SectionNotFound(inst.Type)}
	}
	if err != nil {
		c.logger.Warn("section unavailable",
			slog.String("store_id", sc.Store.ID),
			slog.String("section", inst.Type),
			slog.String("error", err.Error()),
		)
		metrics.ObserveSectionFallback("placeholder")
		return rendered{html: ErrorPlaceholder(inst.Type, err)}
	}
	return c.render(sc, sec, inst)
}

// render runs the two-tier fallback. Assets captured by a failed attempt
// are discarded with it.
func (c *Composer) render(sc *Scope, sec *templates.Section, inst Instance) rendered {
	defaults := sec.Schema.Defaults()
	settings := liquid.MergeSettings(defaults, inst.Settings)
	blocks := buildBlocks(sec.Schema, inst, sc.Editor)

	assets := liquid.NewAssetCollector()
	out, err := safeRender(sc.Engine, sec.Template, sectionBindings(sc, assets, inst, sec.Schema, settings, blocks))
	if err == nil {
		return rendered{html: wrapSection(inst, sec.Schema, sc.Editor, out), assets: assets}
	}
	c.logger.Warn("section render failed, retrying with defaults",
		slog.String("store_id", sc.Store.ID),
		slog.String("section", inst.Type),
		slog.String("id", inst.ID),
		slog.String("error", err.Error()),
	)
	metrics.ObserveSectionFallback("defaults")

	assets = liquid.NewAssetCollector()
	out, err = safeRender(sc.Engine, sec.Template, sectionBindings(sc, assets, inst, sec.Schema, defaults, []any{}))
	if err == nil {
		return rendered{html: wrapSection(inst, sec.Schema, sc.Editor, out), assets: assets}
	}
	c.logger.Warn("section render failed with defaults",
		slog.String("store_id", sc.Store.ID),
		slog.String("section", inst.Type),
		slog.String("error", err.Error()),
	)
	metrics.ObserveSectionFallback("placeholder")
	return rendered{html: ErrorPlaceholder(inst.Type, err)}
}

// safeRender converts a panic inside the template runtime into an error
func safeRender(e *liquid.Engine, t *liquid.Template, b liquid.Bindings) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return e.Render(t, b)
}

func sectionBindings(sc *Scope, assets *liquid.AssetCollector, inst Instance, schema *liquid.Schema, settings map[string]any, blocks []any) liquid.Bindings {
	b := liquid.WithAssets(sc.Base, assets)
	order := make([]any, len(blocks))
	for i, blk := range blocks {
		order[i] = blk.(map[string]any)["id"]
	}
	b["section"] = map[string]any{
		"id":          inst.ID,
		"type":        inst.Type,
		"name":        schema.Name,
		"settings":    settings,
		"blocks":      blocks,
		"block_order": order,
	}
	return b
}

// buildBlocks resolves block settings against their declared defaults,
// honoring max_blocks and per-type limits
func buildBlocks(schema *liquid.Schema, inst Instance, editor bool) []any {
	out := make([]any, 0, len(inst.Blocks))
	perType := map[string]int{}
	for _, blk := range inst.Blocks {
		if schema.MaxBlocks > 0 && len(out) >= schema.MaxBlocks {
			break
		}
		def, _ := schema.Block(blk.Type)
		if def.Limit > 0 && perType[blk.Type] >= def.Limit {
			continue
		}
		perType[blk.Type]++
		attrs := ""
		if editor {
			attrs = BlockAttributes(inst.ID, blk.ID, blk.Type)
		}
		out = append(out, map[string]any{
			"id":                 blk.ID,
			"type":               blk.Type,
			"settings":           liquid.MergeSettings(def.Defaults(), blk.Settings),
			"shopify_attributes": attrs,
		})
	}
	return out
}

func wrapSection(inst Instance, schema *liquid.Schema, editor bool, body string) string {
	tag := strings.ToLower(schema.Tag)
	if !sectionTags[tag] {
		tag = "div"
	}
	class := "storefront-section section-" + inst.Type
	if schema.Class != "" {
		class += " " + schema.Class
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<%s id="section-%s" class="%s"`, tag, html.EscapeString(inst.ID), html.EscapeString(class))
	if editor {
		b.WriteString(" ")
		b.WriteString(SectionAttributes(inst.ID, inst.Type))
	}
	b.WriteString(">")
	b.WriteString(body)
	b.WriteString("</" + tag + ">")
	return b.String()
}

func fromConfig(id string, cfg templates.SectionConfig) Instance {
	return Instance{ID: id, Type: cfg.Type, Settings: cfg.Settings, Blocks: cfg.OrderedBlocks()}
}

// StaticInstance builds the instance of a layout section. Its settings
// come from the "sections" entry of the theme settings when present.
func StaticInstance(name string, themeSettings map[string]any) Instance {
	inst := Instance{ID: name, Type: name}
	all, _ := themeSettings["sections"].(map[string]any)
	entry, ok := all[name]
	if !ok {
		return inst
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return inst
	}
	var cfg templates.SectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return inst
	}
	if cfg.Type == "" {
		cfg.Type = name
	}
	return fromConfig(name, cfg)
}
