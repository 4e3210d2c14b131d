package filter

import (
	"sync"

	"github.com/fakebuster/fakebuster/internal/model"
)

// ProcessedSet is the set of dedup keys already claimed for scoring during
// one page lifetime. It is safe for concurrent use.
type ProcessedSet struct {
	mu   sync.Mutex
	keys map[model.DedupKey]struct{}
}

// NewProcessedSet creates an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{keys: make(map[model.DedupKey]struct{})}
}

// MarkIfNew claims key and reports whether this call claimed it.
// The empty key is never claimed.
func (s *ProcessedSet) MarkIfNew(key model.DedupKey) bool {
	if key.Empty() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Has reports whether key has been claimed.
func (s *ProcessedSet) Has(key model.DedupKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of claimed keys.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Reset forgets every key, for a new navigation.
func (s *ProcessedSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = make(map[model.DedupKey]struct{})
}
