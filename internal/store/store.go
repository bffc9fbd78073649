// Package store holds attributes published by one actor for others to read.
//
// A Store maps an identifier (for example a subscriber number used during
// shared initialization) to a bag of attributes. Writes merge into the bag.
// Every method takes the same lock, so a Store can be shared by any number of
// actors.
package store

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"flowload/internal/log"
)

type Store struct {
	mu      sync.Mutex
	entries map[string]map[string]any
	order   []string
}

func New() *Store {
	return &Store{entries: make(map[string]map[string]any)}
}

// Store merges attrs into the entry for id, creating it on first use.
func (s *Store) Store(id string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		entry = make(map[string]any, len(attrs))
		s.entries[id] = entry
		s.order = append(s.order, id)
	}
	for k, v := range attrs {
		entry[k] = v
	}
	log.L().Debug("stored data", log.StoreKey(id), zap.Strings("fields", sortedKeys(attrs)))
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	return out, true
}

// GetField returns one attribute of the entry for id.
func (s *Store) GetField(id, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	v, ok := entry[key]
	return v, ok
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Remove deletes the entry for id and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]map[string]any)
	s.order = nil
}

// Identifiers returns the known identifiers in the order they were first stored.
func (s *Store) Identifiers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
