package db

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

const (
	loadFactor = 0.7
)

type Entry[K comparable, V any] struct {
	Key   K
	Value V
	Next  *Entry[K, V]
}

// HashTable is a chained hash table that doubles its bucket count once the
// load factor is exceeded. It is not safe for concurrent use.
type HashTable[K comparable, V any] struct {
	table []*Entry[K, V]
	size  int
	count int
}

func NewHashTable[K comparable, V any](initSize int) *HashTable[K, V] {
	if initSize < 1 {
		initSize = 1
	}
	return &HashTable[K, V]{
		table: make([]*Entry[K, V], initSize),
		size:  initSize,
	}
}

func (h *HashTable[K, V]) hash(key K) int {
	hasher := fnv.New32a()
	switch k := any(key).(type) {
	case string:
		hasher.Write([]byte(k))
	default:
		fmt.Fprintf(hasher, "%v", k)
	}
	return int(hasher.Sum32() % uint32(h.size))
}

// Set stores value under key and reports whether the key was added.
func (h *HashTable[K, V]) Set(key K, value V) bool {
	if float64(h.count)/float64(h.size) > loadFactor {
		h.resize()
	}

	index := h.hash(key)
	for curr := h.table[index]; curr != nil; curr = curr.Next {
		if curr.Key == key {
			curr.Value = value
			return false
		}
	}
	h.table[index] = &Entry[K, V]{Key: key, Value: value, Next: h.table[index]}
	h.count++
	return true
}

func (h *HashTable[K, V]) resize() {
	oldTable := h.table
	h.size *= 2
	h.table = make([]*Entry[K, V], h.size)
	h.count = 0

	for _, entry := range oldTable {
		for ; entry != nil; entry = entry.Next {
			h.Set(entry.Key, entry.Value)
		}
	}
}

func (h *HashTable[K, V]) Delete(key K) bool {
	index := h.hash(key)

	var prev *Entry[K, V]
	for curr := h.table[index]; curr != nil; prev, curr = curr, curr.Next {
		if curr.Key != key {
			continue
		}
		if prev == nil {
			h.table[index] = curr.Next
		} else {
			prev.Next = curr.Next
		}
		h.count--
		return true
	}
	return false
}

func (h *HashTable[K, V]) Get(key K) (V, bool) {
	for curr := h.table[h.hash(key)]; curr != nil; curr = curr.Next {
		if curr.Key == key {
			return curr.Value, true
		}
	}
	var zero V
	return zero, false
}

// Len returns the number of elements in the hash table
func (h *HashTable[K, V]) Len() int {
	return h.count
}

// Empty returns true if the hash table is empty
func (h *HashTable[K, V]) Empty() bool {
	return h.count == 0
}

// Range calls fn for every entry until fn returns false. fn must not
// modify the table.
func (h *HashTable[K, V]) Range(fn func(key K, value V) bool) {
	for _, entry := range h.table {
		for ; entry != nil; entry = entry.Next {
			if !fn(entry.Key, entry.Value) {
				return
			}
		}
	}
}

// Clear drops every entry and shrinks the table back to size.
func (h *HashTable[K, V]) Clear(size int) {
	if size < 1 {
		size = 1
	}
	h.table = make([]*Entry[K, V], size)
	h.size = size
	h.count = 0
}

// GetSomeKeys returns up to count keys sampled from random buckets. Keys of
// one bucket are taken together, so the sample is cheap but not uniform.
func (h *HashTable[K, V]) GetSomeKeys(count int) []K {
	if h.Empty() || count <= 0 {
		return nil
	}
	if count > h.count {
		count = h.count
	}

	keys := make([]K, 0, count)
	start := rand.Intn(h.size)
	for visited := 0; len(keys) < count && visited < h.size; visited++ {
		for curr := h.table[(start+visited)%h.size]; curr != nil && len(keys) < count; curr = curr.Next {
			keys = append(keys, curr.Key)
		}
	}
	return keys
}
