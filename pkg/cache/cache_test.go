package cache

import (
	"sort"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache() (*Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(clk.Now)), clk
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache()
	c.Set("key1", "value1", time.Second)
	val, ok := c.Get("key1")
	if !ok || val != "value1" {
		t.Fatalf("expected value1, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	c, clk := newTestCache()
	c.Set("key1", "value1", 100*time.Millisecond)

	clk.Advance(100 * time.Millisecond)
	if _, ok := c.Get("key1"); !ok {
		t.Fatalf("entry must live through its full ttl")
	}

	clk.Advance(time.Millisecond)
	if _, ok := c.Get("key1"); ok {
		t.Fatalf("expected expired key to return false")
	}
	if s := c.Stats(); s.Total != 0 {
		t.Fatalf("expired entry should be evicted on read, stats=%+v", s)
	}
}

func TestNonPositiveTTLStoresNothing(t *testing.T) {
	c, _ := newTestCache()
	c.Set("cart", "html", 0)
	if _, ok := c.Get("cart"); ok {
		t.Fatalf("zero ttl must not be cached")
	}
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache()
	c.Set("key1", "value1", time.Second)
	c.Delete("key1")
	if _, ok := c.Get("key1"); ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestDeleteByPrefix(t *testing.T) {
	c, _ := newTestCache()
	c.Set("templates/s1/layout/theme.liquid", "a", time.Minute)
	c.Set("templates/s1/sections/hero.liquid", "b", time.Minute)
	c.Set("templates/s10/layout/theme.liquid", "c", time.Minute)
	c.Set("domain:shop.example", "d", time.Minute)

	if n := c.DeleteByPrefix("templates/s1/"); n != 2 {
		t.Fatalf("expected 2 removals, got %d", n)
	}
	keys := c.Keys()
	sort.Strings(keys)
	want := []string{"domain:shop.example", "templates/s10/layout/theme.liquid"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("remaining keys = %v, want %v", keys, want)
	}
}

func TestStatsAndCleanExpired(t *testing.T) {
	c, clk := newTestCache()
	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	clk.Advance(2 * time.Second)

	s := c.Stats()
	if s.Total != 2 || s.Active != 1 || s.Expired != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if n := c.CleanExpired(); n != 0 {
		t.Fatalf("second sweep must be a no-op, evicted %d", n)
	}
	if s := c.Stats(); s.Total != 1 || s.Active != 1 {
		t.Fatalf("unexpected stats after sweep %+v", s)
	}
}

func TestTypedViewTreatsWrongTypeAsMiss(t *testing.T) {
	c, _ := newTestCache()
	strs := NewTyped[string](c, "str:")
	ints := NewTyped[int](c, "str:")

	strs.Set("a", "hello", time.Minute)
	if v, ok := strs.Get("a"); !ok || v != "hello" {
		t.Fatalf("typed get = %q, %v", v, ok)
	}
	if _, ok := ints.Get("a"); ok {
		t.Fatalf("mismatched type must read as a miss")
	}
	if n := strs.DeleteByPrefix(""); n != 1 {
		t.Fatalf("expected namespace wipe to remove 1, got %d", n)
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()
	if s := c.Stats(); s.Total != 0 {
		t.Fatalf("expected empty cache, got %+v", s)
	}
}
