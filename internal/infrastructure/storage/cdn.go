package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/storefront/internal/reliability/retry"
)

// maxObjectSize bounds a single CDN response body
const maxObjectSize = 32 << 20

// CDNStore reads theme files through a CDN in front of the origin store.
// Writes, deletes and listings go to the origin directly.
type CDNStore struct {
	baseURL string
	origin  domain.ObjectStorage
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
	timeout time.Duration
	logger  *slog.Logger
}

// NewCDNStore creates a CDN-fronted store. timeout bounds every attempt.
func NewCDNStore(baseURL string, origin domain.ObjectStorage, timeout time.Duration, logger *slog.Logger) *CDNStore {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetFailurePredicate(func(err error) bool {
		return err != nil && !errors.Is(err, domain.ErrObjectNotFound)
	})
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("cdn circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &CDNStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		origin:  origin,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker: breaker,
		retry:   retry.DefaultConfig(),
		timeout: timeout,
		logger:  logger,
	}
}

// Get fetches key from the CDN. A 404 is domain.ErrObjectNotFound and is
// neither retried nor counted against the breaker.
func (s *CDNStore) Get(ctx context.Context, key string) ([]byte, error) {
	return retry.Do(ctx, s.retry, s.logger, "cdn get "+key, func(ctx context.Context) ([]byte, error) {
		var data []byte
		err := s.breaker.Call(func() error {
			var err error
			data, err = s.fetch(ctx, key)
			return err
		})
		if errors.Is(err, domain.ErrObjectNotFound) || errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, retry.Permanent(err)
		}
		return data, err
	})
}

func (s *CDNStore) fetch(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+strings.TrimPrefix(key, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		// object stores behind a CDN answer 403 for missing keys
		return nil, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to fetch %s: status %d", key, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("object %s exceeds %d bytes", key, maxObjectSize)
	}
	return data, nil
}

// Put writes to the origin
func (s *CDNStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.origin.Put(ctx, key, data, contentType)
}

// Delete removes from the origin
func (s *CDNStore) Delete(ctx context.Context, key string) error {
	return s.origin.Delete(ctx, key)
}

// List lists the origin
func (s *CDNStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.origin.List(ctx, prefix)
}

// BreakerState reports the CDN breaker state for readiness checks
func (s *CDNStore) BreakerState() circuitbreaker.State {
	return s.breaker.GetState()
}
