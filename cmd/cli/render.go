package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/composer"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/featureflags"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/storefront/internal/ingest"
	"github.com/aryan0dhankhar/storefront/internal/repository"
	"github.com/aryan0dhankhar/storefront/internal/service"
	"github.com/aryan0dhankhar/storefront/internal/templates"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
)

const (
	previewStoreID = "preview"
	previewHost    = "preview.local"
)

func newRenderCmd() *cobra.Command {
	var (
		pagePath string
		minify   bool
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "render <theme-dir>",
		Short: "Render a page of a local theme with sample data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "error"
			if verbose {
				level = "debug"
			}
			log := logger.New(os.Stderr, level)

			res, err := renderPreview(cmd.Context(), args[0], pagePath, minify, log)
			if err != nil {
				return err
			}
			if res.StatusCode != 0 && res.StatusCode != 200 {
				fmt.Fprintf(cmd.ErrOrStderr(), "status %d\n", res.StatusCode)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), res.HTML)
			return err
		},
	}
	cmd.Flags().StringVar(&pagePath, "page", "/", "storefront path to render")
	cmd.Flags().BoolVar(&minify, "minify", false, "minify the rendered HTML")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline stages to stderr")
	return cmd
}

// renderPreview runs the full render pipeline over a theme directory held
// in memory, against a single store with a small sample catalog
func renderPreview(ctx context.Context, dir, pagePath string, minify bool, log *slog.Logger) (*domain.RenderResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	files, err := ingest.ReadDir(afero.NewOsFs(), dir)
	if err != nil {
		return nil, err
	}
	mem := storage.NewMemStore()
	for _, f := range files {
		if err := mem.Put(ctx, domain.TemplateKey(previewStoreID, f.Path), f.Content, f.ContentType()); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", f.Path, err)
		}
	}

	stores := repository.NewMemoryStoreRepository(domain.Store{
		ID:            previewStoreID,
		Name:          "Preview Store",
		DefaultDomain: previewHost,
		Currency:      domain.DefaultCurrency(),
		Active:        true,
	})
	cat := sampleCatalog()

	policy := caching.DefaultPolicy()
	caches := caching.New(policy, log)
	loader := templates.NewLoader(mem, caches, templates.Options{Timeout: 5 * time.Second, AssetBaseURL: "/cdn"}, log)
	fetcher := catalog.NewFetcher(catalog.Repositories{
		Products:    cat.Products(),
		Collections: cat.Collections(),
		Pages:       cat.Pages(),
		Navigation:  cat.Navigation(),
		Checkouts:   cat.Checkouts(),
	}, caches, 5*time.Second, log)
	render := service.NewRenderService(
		tenant.NewResolver(stores, caches, log),
		loader,
		fetcher,
		composer.NewComposer(loader, 0, log),
		nil,
		policy,
		service.RenderOptions{Flags: featureflags.Set{MinifyHTML: minify}},
		log,
	)

	u, err := url.Parse(pagePath)
	if err != nil {
		return nil, fmt.Errorf("invalid page path: %w", err)
	}
	res, err := render.Render(ctx, service.RenderRequest{Host: previewHost, Path: u.Path, Query: u.Query()})
	if err != nil {
		// fall back to the error page so broken themes still show something
		pages, perr := service.NewErrorRenderer(true, log)
		if perr != nil {
			return nil, err
		}
		return pages.Render(err, nil, ""), nil
	}
	return res, nil
}

func sampleCatalog() *repository.MemoryCatalog {
	cat := repository.NewMemoryCatalog()
	cat.AddProducts(
		domain.ProductRecord{ID: "p1", StoreID: previewStoreID, Title: "Classic Tee", Handle: "classic-tee", Price: 2500, Available: true, Status: "active", Tags: []string{"apparel"}},
		domain.ProductRecord{ID: "p2", StoreID: previewStoreID, Title: "Canvas Tote", Handle: "canvas-tote", Price: 1800, CompareAtPrice: 2200, Available: true, Status: "active"},
		domain.ProductRecord{ID: "p3", StoreID: previewStoreID, Title: "Enamel Mug", Handle: "enamel-mug", Price: 1200, Available: false, Status: "active"},
	)
	cat.AddCollection(domain.CollectionRecord{ID: "c1", StoreID: previewStoreID, Title: "Featured", Handle: "featured"}, "p1", "p2")
	cat.AddPages(domain.PageRecord{ID: "pg1", StoreID: previewStoreID, Title: "About us", Handle: "about", Body: "<p>Sample page.</p>"})
	cat.AddMenus(domain.MenuRecord{ID: "m1", StoreID: previewStoreID, Handle: "main-menu", Title: "Main menu",
		Items: []byte(`[{"title":"Home","url":"/"},{"title":"Featured","url":"/collections/featured"}]`)})
	return cat
}
