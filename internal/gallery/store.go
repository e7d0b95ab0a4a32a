package gallery

import (
	"log"
	"sync"
	"sync/atomic"
)

// Store publishes the active Gallery snapshot. Readers never block writers
// and never take a lock; concurrent Replace calls are serialized so versions
// are published in increasing order.
type Store struct {
	current atomic.Pointer[Gallery]

	mu      sync.Mutex
	version uint64
}

// NewStore creates a Store whose active snapshot is empty.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(Empty())
	return s
}

// Snapshot returns the active Gallery. It never returns nil.
func (s *Store) Snapshot() *Gallery {
	return s.current.Load()
}

// Replace atomically publishes g as the active snapshot and returns the
// published copy, which carries the next version number. Readers holding the
// previous snapshot keep using it unchanged.
func (s *Store) Replace(g *Gallery) *Gallery {
	if g == nil {
		g = Empty()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	published := *g
	published.version = s.version
	s.current.Store(&published)

	log.Printf("gallery v%d published with %d entries", published.version, published.Len())
	return &published
}
