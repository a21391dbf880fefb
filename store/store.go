// Package store implements the local value store (spec §3.5): a plain
// key/value map keyed by id.Id160, with no expiry or republishing logic.
// No other layer expires or republishes stored values either.
package store

import (
	"sync"

	"github.com/MOACChain/knode/id"
)

// Store holds values this node has accepted via STORE_VALUE.
type Store struct {
	mu     sync.RWMutex
	values map[id.Id160][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{values: make(map[id.Id160][]byte)}
}

// Put records value under key, replacing whatever was previously
// stored there.
func (s *Store) Put(key id.Id160, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[key] = cp
}

// Get returns the value stored under key, if any.
func (s *Store) Get(key id.Id160) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

// Delete removes any value stored under key.
func (s *Store) Delete(key id.Id160) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns every key currently held, in no particular order.
func (s *Store) Keys() []id.Id160 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]id.Id160, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	return out
}

// Len reports the number of keys currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
