// Package safeset provides a generic set guarded by a mutex.
package safeset

import "sync"

// SafeSet is a set of comparable elements that is safe for concurrent use.
// Besides membership it supports atomic take-out of single elements, which
// lets two racing removers agree on which one of them got the element.
type SafeSet[T comparable] struct {
	m map[T]struct{}
	sync.RWMutex
}

// NewSafeSet creates and returns a new empty SafeSet.
func NewSafeSet[T comparable]() *SafeSet[T] {
	return &SafeSet[T]{m: make(map[T]struct{})}
}

// Add adds an element to the set.
func (s *SafeSet[T]) Add(value T) {
	s.Lock()
	defer s.Unlock()
	s.m[value] = struct{}{}
}

// TryRemove removes value and reports whether it was present. Of several
// concurrent callers for the same element exactly one gets true.
//
// Parameters:
//   - value: The element to remove
//
// Returns:
//   - true if this call removed the element, false if it was absent
func (s *SafeSet[T]) TryRemove(value T) bool {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[value]; !ok {
		return false
	}

	delete(s.m, value)
	return true
}

// Contains reports whether the set contains the given element.
func (s *SafeSet[T]) Contains(value T) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.m[value]
	return ok
}

// Size returns the number of elements in the set.
func (s *SafeSet[T]) Size() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.m)
}

// Snapshot returns the elements present at the time of the call. The set may
// change while the caller walks the result; callers that act on an element
// should claim it with TryRemove first.
//
// Returns:
//   - A new slice holding the elements in unspecified order
func (s *SafeSet[T]) Snapshot() []T {
	s.RLock()
	defer s.RUnlock()
	out := make([]T, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}

	return out
}
