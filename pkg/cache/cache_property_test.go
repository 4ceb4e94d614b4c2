//go:build property
// +build property

package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCacheProperties checks prefix deletion and TTL behaviour over generated keys
func TestCacheProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("deleteByPrefix removes exactly the prefixed keys", prop.ForAll(
		func(prefix string, keys []string) bool {
			c := New()
			for _, k := range keys {
				c.Set(k, k, time.Minute)
			}
			c.DeleteByPrefix(prefix)
			for _, k := range keys {
				_, ok := c.Get(k)
				if strings.HasPrefix(k, prefix) == ok {
					return false
				}
			}
			return true
		},
		gen.RegexMatch(`^[ab]/?$`),
		gen.SliceOf(gen.RegexMatch(`^[abc]/?[a-z0-9]{0,6}$`)),
	))

	properties.Property("values are readable until ttl elapses", prop.ForAll(
		func(key string, ttlMs int) bool {
			now := time.Unix(0, 0)
			c := New(WithClock(func() time.Time { return now }))
			ttl := time.Duration(ttlMs) * time.Millisecond
			c.Set(key, ttlMs, ttl)

			now = now.Add(ttl)
			v, ok := c.Get(key)
			if !ok || v != ttlMs {
				return false
			}
			now = now.Add(time.Millisecond)
			_, ok = c.Get(key)
			return !ok
		},
		gen.AlphaString(),
		gen.IntRange(1, 100000),
	))

	properties.TestingRun(t)
}
