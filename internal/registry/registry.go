package registry

import "github.com/dolthub/swiss"

const initialSize uint32 = 42

// RefCounts counts how many logical owners each key has. Keys with no owners are not stored.
type RefCounts[K comparable] struct {
	counts *swiss.Map[K, int]
}

func NewRefCounts[K comparable]() *RefCounts[K] {
	return &RefCounts[K]{
		counts: swiss.NewMap[K, int](initialSize),
	}
}

// Get returns the count for a key, or 0 if the key has no owners
func (r *RefCounts[K]) Get(key K) int {
	count, _ := r.counts.Get(key)
	return count
}

// Increment adds an owner to a key and returns the new count
func (r *RefCounts[K]) Increment(key K) int {
	count, _ := r.counts.Get(key)
	count++
	r.counts.Put(key, count)
	return count
}

// Decrement removes an owner from a key and returns the new count. Decrementing a key with
// no owners does nothing and returns 0.
func (r *RefCounts[K]) Decrement(key K) int {
	count, ok := r.counts.Get(key)
	if !ok {
		return 0
	}

	count--
	if count <= 0 {
		r.counts.Delete(key)
		return 0
	}

	r.counts.Put(key, count)
	return count
}

// Len returns the number of keys with at least one owner
func (r *RefCounts[K]) Len() int {
	return r.counts.Count()
}

// Each calls the callback for every key with at least one owner. Iteration stops when the
// callback returns false.
func (r *RefCounts[K]) Each(callback func(key K, count int) bool) {
	r.counts.Iter(func(key K, count int) bool {
		return !callback(key, count)
	})
}

func (r *RefCounts[K]) Clear() {
	r.counts.Clear()
}

// Mappings associates each key with at most one live value
type Mappings[K comparable, V any] struct {
	values *swiss.Map[K, V]
}

func NewMappings[K comparable, V any]() *Mappings[K, V] {
	return &Mappings[K, V]{
		values: swiss.NewMap[K, V](initialSize),
	}
}

func (m *Mappings[K, V]) Get(key K) (V, bool) {
	return m.values.Get(key)
}

func (m *Mappings[K, V]) Put(key K, value V) {
	m.values.Put(key, value)
}

// Delete removes the value for a key and returns true if there was one
func (m *Mappings[K, V]) Delete(key K) bool {
	return m.values.Delete(key)
}

func (m *Mappings[K, V]) Len() int {
	return m.values.Count()
}

// Each calls the callback for every live value. Iteration stops when the callback returns false.
func (m *Mappings[K, V]) Each(callback func(key K, value V) bool) {
	m.values.Iter(func(key K, value V) bool {
		return !callback(key, value)
	})
}

func (m *Mappings[K, V]) Clear() {
	m.values.Clear()
}
