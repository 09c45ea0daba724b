package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/moonc/proto"
)

// result is a compiled prototype held for later retrieval.
type result struct {
	id       string
	proto    *proto.Proto
	created  time.Time
	lastUsed time.Time
}

// ResultStore maps request IDs to compiled prototypes so a client can
// fetch the encoded prototype after a compile call.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]*result
}

// NewResultStore creates an empty result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]*result)}
}

// Create stores p under a fresh request ID and returns the ID.
func (s *ResultStore) Create(p *proto.Proto) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.results[id] = &result{id: id, proto: p, created: now, lastUsed: now}
	return id
}

// Lookup returns the prototype stored under id.
func (s *ResultStore) Lookup(id string) (*proto.Proto, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	if !ok {
		return nil, false
	}
	r.lastUsed = time.Now()
	return r.proto, true
}

// Release removes a stored result.
func (s *ResultStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, id)
}

// Len returns the number of stored results.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Sweep removes results that haven't been accessed within the TTL.
func (s *ResultStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, r := range s.results {
		if r.lastUsed.Before(cutoff) {
			delete(s.results, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *ResultStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
