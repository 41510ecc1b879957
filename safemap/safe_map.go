// Package safemap provides a generic map guarded by a read/write mutex.
package safemap

import "sync"

// SafeMap is a map that is safe for use by multiple goroutines. The zero
// value is not usable; create one with NewSafeMap.
//
// Len is O(1). Values returns a snapshot so callers may act on entries,
// including deleting them, without holding the lock.
type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewSafeMap returns an empty SafeMap.
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Store sets the value for k, replacing any previous value.
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[k] = v
}

// Load returns the value for k and whether it was present.
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

// LoadAndDelete removes k and returns the value it had.
//
// Parameters:
//   - k: The key to remove
//
// Returns:
//   - The removed value, or the zero value of V
//   - true if k was present; of several concurrent callers only one sees true
func (m *SafeMap[K, V]) LoadAndDelete(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[k]
	if ok {
		delete(m.m, k)
	}

	return v, ok
}

// Delete removes k. Deleting a missing key is a no-op.
func (m *SafeMap[K, V]) Delete(k K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, k)
}

// Len returns the number of entries.
func (m *SafeMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Values returns the current values in unspecified order.
func (m *SafeMap[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}

	return out
}
