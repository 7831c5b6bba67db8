package db

type sentinel struct{}

type Set[T comparable] struct {
	data *HashTable[T, sentinel]
}

// NewSet creates a new Set
func NewSet[T comparable](initSize int) *Set[T] {
	return &Set[T]{
		data: NewHashTable[T, sentinel](initSize),
	}
}

// Add inserts a key into the set and reports whether it was new.
func (s *Set[T]) Add(key T) bool {
	return s.data.Set(key, sentinel{})
}

// Contains checks if a key is in the set
func (s *Set[T]) Contains(key T) bool {
	_, exists := s.data.Get(key)
	return exists
}

// Remove deletes a key from the set
func (s *Set[T]) Remove(key T) bool {
	return s.data.Delete(key)
}

func (s *Set[T]) Len() int {
	return s.data.Len()
}

// Members returns the elements in table order.
func (s *Set[T]) Members() []T {
	out := make([]T, 0, s.data.Len())
	s.data.Range(func(key T, _ sentinel) bool {
		out = append(out, key)
		return true
	})
	return out
}
