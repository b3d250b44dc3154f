// Package indirect passes structured values through string-only markup.
//
// A value is parked under a generated key, the key travels through the
// generated template text, and the consumer takes the value back out. Keys
// are unique by construction and meant to be consumed exactly once.
//
// Example:
//
//	store := indirect.NewStore()
//	key := store.Put(map[string]interface{}{"path": "/Items"})
//	value, ok := store.Take(key)
package indirect

import (
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/blockforge/internal/shared/id"
)

// KeyPrefix marks attribute values that are indirect-store keys
const KeyPrefix = "uid--"

// Store maps generated keys to values
type Store struct {
	mu      sync.Mutex
	entries map[string]interface{}
	ids     *id.Generator
}

// NewStore creates an empty store
func NewStore() *Store {
	return NewStoreWithGenerator(id.Default())
}

// NewStoreWithGenerator creates a store using a specific key generator
func NewStoreWithGenerator(gen *id.Generator) *Store {
	return &Store{
		entries: make(map[string]interface{}),
		ids:     gen,
	}
}

// IsKey reports whether s has the shape of a store key
func IsKey(s string) bool {
	return strings.HasPrefix(s, KeyPrefix)
}

// Put records value under a fresh key and returns the key
func (s *Store) Put(value interface{}) string {
	key := s.ids.GenerateToken(KeyPrefix)

	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()

	return key
}

// Take returns the value stored under key and deletes the entry
func (s *Store) Take(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return value, ok
}

// Peek returns the value stored under key without consuming it
func (s *Store) Peek(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	return value, ok
}

// Has reports whether key is still present
func (s *Store) Has(key string) bool {
	_, ok := s.Peek(key)
	return ok
}

// Remove deletes key, reporting whether it was present
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Len returns the number of live entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Keys returns the live keys in sorted order
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sort.Strings(keys)
	return keys
}
