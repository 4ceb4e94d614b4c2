package caching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/pkg/cache"
)

// RemoteStore is the shared tier of the page cache, normally Redis
type RemoteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// remoteTimeout bounds every call to the shared tier
const remoteTimeout = 250 * time.Millisecond

// envelope is the shared-tier payload; ExpiresAt lets a reader refill the
// local tier with the remaining lifetime only
type envelope struct {
	Result    domain.RenderResult `msgpack:"result"`
	ExpiresAt time.Time           `msgpack:"expires_at"`
}

// PageCache stores rendered pages in the in-process page_render category
// and, when configured, a shared remote tier. Remote failures of any kind
// are logged and read as misses.
type PageCache struct {
	local   *cache.Typed[*domain.RenderResult]
	remote  RemoteStore
	isMiss  func(error) bool
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *slog.Logger
	now     func() time.Time
}

// NewPageCache creates a page cache over caches. remote may be nil. isMiss
// tells an absent remote key apart from a remote failure; it may be nil.
func NewPageCache(caches *Caches, remote RemoteStore, isMiss func(error) bool, logger *slog.Logger) (*PageCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if isMiss == nil {
		isMiss = func(error) bool { return false }
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &PageCache{
		local:   cache.NewTyped[*domain.RenderResult](caches.Store(CategoryPageRender), ""),
		remote:  remote,
		isMiss:  isMiss,
		encoder: encoder,
		decoder: decoder,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Close releases the codec resources
func (p *PageCache) Close() error {
	p.decoder.Close()
	return p.encoder.Close()
}

// Get returns the cached render for key. An empty key is always a miss.
func (p *PageCache) Get(ctx context.Context, key string) (*domain.RenderResult, bool) {
	if key == "" {
		return nil, false
	}
	if r, ok := p.local.Get(key); ok {
		metrics.ObserveCache(string(CategoryPageRender), true)
		return r, true
	}
	r, ok := p.getRemote(ctx, key)
	metrics.ObserveCache(string(CategoryPageRender), ok)
	return r, ok
}

func (p *PageCache) getRemote(ctx context.Context, key string) (*domain.RenderResult, bool) {
	if p.remote == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	raw, err := p.remote.GetBytes(ctx, key)
	if err != nil {
		if !p.isMiss(err) {
			p.logger.Warn("page cache remote read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	env, err := p.decode(raw)
	if err != nil {
		p.logger.Warn("page cache entry undecodable", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	remaining := env.ExpiresAt.Sub(p.now())
	if remaining <= 0 {
		return nil, false
	}
	result := env.Result
	p.local.Set(key, &result, remaining)
	return &result, true
}

// Set stores result under key for result.CacheTTL. Empty keys and
// non-positive TTLs store nothing.
func (p *PageCache) Set(ctx context.Context, key string, result *domain.RenderResult) {
	if key == "" || result == nil || result.CacheTTL <= 0 {
		return
	}
	p.local.Set(key, result, result.CacheTTL)
	if p.remote == nil {
		return
	}
	raw, err := p.encode(envelope{Result: *result, ExpiresAt: p.now().Add(result.CacheTTL)})
	if err != nil {
		p.logger.Warn("page cache entry unencodable", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteTimeout)
	defer cancel()
	if err := p.remote.SetBytes(ctx, key, raw, result.CacheTTL); err != nil {
		p.logger.Warn("page cache remote write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// InvalidateStore drops every cached page of a store from both tiers
func (p *PageCache) InvalidateStore(ctx context.Context, storeID string) int {
	if storeID == "" {
		return 0
	}
	prefix := StoreKey(storeID, "page") + "/"
	removed := p.local.DeleteByPrefix(prefix)
	if p.remote != nil {
		n, err := p.remote.DeleteByPrefix(ctx, prefix)
		if err != nil {
			p.logger.Warn("page cache remote invalidation failed",
				slog.String("store_id", storeID), slog.String("error", err.Error()))
		}
		removed += n
	}
	return removed
}

func (p *PageCache) encode(env envelope) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encode panicked: %v", r)
		}
	}()
	raw, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, err
	}
	return p.encoder.EncodeAll(raw, nil), nil
}

func (p *PageCache) decode(data []byte) (envelope, error) {
	var env envelope
	raw, err := p.decoder.DecodeAll(data, nil)
	if err != nil {
		return env, fmt.Errorf("failed to decompress: %w", err)
	}
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("failed to unmarshal: %w", err)
	}
	if env.Result.HTML == "" {
		return env, errors.New("empty page payload")
	}
	return env, nil
}
