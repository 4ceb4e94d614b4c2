package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/composer"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/featureflags"
	"github.com/aryan0dhankhar/storefront/internal/handler"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/storefront/internal/ingest"
	"github.com/aryan0dhankhar/storefront/internal/observability/tracing"
	"github.com/aryan0dhankhar/storefront/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/storefront/internal/repository"
	"github.com/aryan0dhankhar/storefront/internal/security"
	"github.com/aryan0dhankhar/storefront/internal/security/audit"
	"github.com/aryan0dhankhar/storefront/internal/security/auth"
	"github.com/aryan0dhankhar/storefront/internal/security/ratelimit"
	"github.com/aryan0dhankhar/storefront/internal/service"
	"github.com/aryan0dhankhar/storefront/internal/templates"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
	"github.com/aryan0dhankhar/storefront/internal/worker"
	"github.com/aryan0dhankhar/storefront/pkg/config"
	"github.com/aryan0dhankhar/storefront/pkg/database"
)

// assetMaxAge is the browser cache lifetime of theme assets
const assetMaxAge = 86400

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting storefront server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.Tracing.Endpoint, "storefront", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	checks := map[string]handler.Check{"database": nil, "redis": nil}

	// 4. Initialize Redis client (shared page cache tier)
	var remote caching.RemoteStore
	if cfg.Redis.URL != "" {
		redisClient, err := redis.NewClient(cfg.Redis.URL, cfg.Redis.Prefix, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		remote = redisClient
		checks["redis"] = redisClient.Ping
	}

	// 5. Initialize repositories
	stores, repos, pool, err := openRepositories(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize repositories", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		checks["database"] = pool.Health
	}

	// 6. Initialize theme storage
	origin := storage.NewFSStore(afero.NewOsFs(), cfg.Storage.Root)
	var themeStore domain.ObjectStorage = origin
	useCDN := cfg.IsProduction() && cfg.CDN.BaseURL != ""
	if useCDN {
		cdn := storage.NewCDNStore(cfg.CDN.BaseURL, origin, cfg.Storage.Timeout, log)
		themeStore = cdn
		checks["cdn"] = func(context.Context) error {
			if cdn.BreakerState() == circuitbreaker.StateOpen {
				return errors.New("circuit open")
			}
			return nil
		}
	}

	// 7. Initialize caches and services
	policy := caching.PolicyFromConfig(cfg.Cache)
	caches := caching.New(policy, log)
	pages, err := caching.NewPageCache(caches, remote, isRedisMiss, log)
	if err != nil {
		log.Error("failed to initialize page cache", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pages.Close()

	loader := templates.NewLoader(themeStore, caches, templates.Options{
		Timeout:      cfg.Storage.Timeout,
		AssetBaseURL: cfg.Assets.BaseURL,
	}, log)
	resolver := tenant.NewResolver(stores, caches, log)
	fetcher := catalog.NewFetcher(repos, caches, cfg.Storage.Timeout, log)
	flags := featureflags.Load()
	render := service.NewRenderService(resolver, loader, fetcher, composer.NewComposer(loader, 0, log), pages, policy,
		service.RenderOptions{Flags: flags}, log)
	errPages, err := service.NewErrorRenderer(!cfg.IsProduction(), log)
	if err != nil {
		log.Error("failed to load error pages", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7a. Initialize security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "storefront")
	authz := security.NewAuthorizationService(log)
	auditLogger := audit.NewLogger(log)
	adminLimiter := ratelimit.NewLimiter(cfg.RateLimit.AdminPerMinute, time.Minute)
	siteLimiter := ratelimit.NewLimiter(cfg.RateLimit.StorefrontPerMinute, time.Minute)

	processor := ingest.NewProcessor(ingest.Options{
		MaxFiles:      cfg.Theme.MaxFiles,
		MaxTotalSize:  int64(cfg.Theme.MaxTotalMB) << 20,
		MaxAssetSize:  int64(cfg.Theme.MaxAssetKB) << 10,
		MaxLiquidSize: ingest.DefaultOptions().MaxLiquidSize,
		Minify:        cfg.Theme.Minify,
	}, log)
	themes := service.NewThemeService(origin, processor, loader, caches, pages, resolver, stores, auditLogger, log)
	hub := handler.NewStudioHub(tokenManager, authz, cfg.CORS.AllowedOrigins, log)
	themes.SetNotifier(hub)

	// 8. Setup HTTP routes
	maxUpload := int64(cfg.Theme.MaxUploadMB) << 20
	router := handler.NewRouter(handler.RouterConfig{
		Storefront:        handler.NewStorefrontHandler(render, errPages, resolver, tokenManager, authz, log),
		Assets:            handler.NewAssetHandler(loader, assetMaxAge, log),
		Admin:             handler.NewAdminHandler(themes, caches, maxUpload, log),
		Studio:            hub,
		Health:            handler.NewHealthHandler(checks, log),
		Metrics:           promhttp.Handler(),
		Tokens:            tokenManager,
		Authz:             authz,
		Audit:             auditLogger,
		AdminLimiter:      adminLimiter,
		StorefrontLimiter: siteLimiter,
		MaxUploadBytes:    maxUpload,
		Logger:            log,
	})

	// 9. Start background workers
	sweeper := worker.NewCacheSweeper(caches, log, cfg.Sweeper.Interval)
	go sweeper.Start(ctx)

	if flags.ThemeWatch {
		watcher := worker.NewThemeWatcher(origin.Root(), origin, themes, log)
		if err := watcher.Start(ctx); err != nil {
			log.Warn("theme watcher disabled", slog.String("error", err.Error()))
		}
	}

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.Server.Port),
		slog.Bool("redis", remote != nil),
		slog.Bool("postgres", pool != nil),
		slog.Bool("cdn", useCDN),
		slog.Int("admin_rate_limit", cfg.RateLimit.AdminPerMinute),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop workers
	adminLimiter.Stop()
	siteLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("failed to flush traces", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// openRepositories connects Postgres when a database URL is configured and
// falls back to in-memory repositories holding a single development store
func openRepositories(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.StoreRepository, catalog.Repositories, *database.ConnectionPool, error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, using in-memory repositories")
		stores := repository.NewMemoryStoreRepository(domain.Store{
			ID:            "dev",
			Name:          "Development Store",
			DefaultDomain: "localhost",
			Currency:      domain.DefaultCurrency(),
			Active:        true,
		})
		mem := repository.NewMemoryCatalog()
		return stores, catalog.Repositories{
			Products:    mem.Products(),
			Collections: mem.Collections(),
			Pages:       mem.Pages(),
			Navigation:  mem.Navigation(),
			Checkouts:   mem.Checkouts(),
		}, nil, nil
	}

	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, log)
	if err != nil {
		return nil, catalog.Repositories{}, nil, err
	}
	if !cfg.IsProduction() {
		if err := pool.EnsureSchema(ctx); err != nil {
			_ = pool.Close()
			return nil, catalog.Repositories{}, nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	db := pool.GetDB()
	return repository.NewPostgresStoreRepository(db, log), catalog.Repositories{
		Products:    repository.NewPostgresProductRepository(db, log),
		Collections: repository.NewPostgresCollectionRepository(db, log),
		Pages:       repository.NewPostgresPageRepository(db, log),
		Navigation:  repository.NewPostgresNavigationRepository(db, log),
		Checkouts:   repository.NewPostgresCheckoutRepository(db, log),
	}, pool, nil
}

func isRedisMiss(err error) bool {
	return errors.Is(err, redis.ErrMiss)
}
