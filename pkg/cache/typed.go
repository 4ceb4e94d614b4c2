package cache

import "time"

// Typed is a view over a Cache that only yields values of type T.
// A stored value of another type reads as a miss.
type Typed[T any] struct {
	store  *Cache
	prefix string
}

// NewTyped returns a typed view whose keys are namespaced under prefix
func NewTyped[T any](store *Cache, prefix string) *Typed[T] {
	return &Typed[T]{store: store, prefix: prefix}
}

// Get returns the value stored under key
func (t *Typed[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := t.store.Get(t.prefix + key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores value under key for ttl
func (t *Typed[T]) Set(key string, value T, ttl time.Duration) {
	t.store.Set(t.prefix+key, value, ttl)
}

// Delete removes key
func (t *Typed[T]) Delete(key string) {
	t.store.Delete(t.prefix + key)
}

// DeleteByPrefix removes every key in this view starting with prefix
func (t *Typed[T]) DeleteByPrefix(prefix string) int {
	return t.store.DeleteByPrefix(t.prefix + prefix)
}

// Prefix returns the namespace of this view
func (t *Typed[T]) Prefix() string {
	return t.prefix
}
