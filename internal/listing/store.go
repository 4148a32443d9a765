package listing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"listing-ledger/internal/ledger"
)

// Store defines listing persistence keyed by derived address. Implementations
// must make Create insert-if-absent; existence checking and uniqueness are
// the same operation.
type Store interface {
	Create(ctx context.Context, l Listing) error
	Get(ctx context.Context, address ledger.Address) (Listing, error)
	Put(ctx context.Context, l Listing) error
	List(ctx context.Context, limit int) ([]Listing, error)
}

// MemoryStore keeps listings in a map guarded by a RWMutex. It backs tests
// and the offline simulation path.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[ledger.Address]Listing
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[ledger.Address]Listing)}
}

// Create inserts the listing, failing if its derived address is occupied.
func (s *MemoryStore) Create(_ context.Context, l Listing) error {
	address := l.Address()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[address]; ok {
		return fmt.Errorf("create %s: %w", address.Hex(), ErrAlreadyExists)
	}
	s.m[address] = l
	return nil
}

// Get fetches the listing at the derived address.
func (s *MemoryStore) Get(_ context.Context, address ledger.Address) (Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.m[address]
	if !ok {
		return Listing{}, fmt.Errorf("get %s: %w", address.Hex(), ErrNotFound)
	}
	return l, nil
}

// Put overwrites an existing listing.
func (s *MemoryStore) Put(_ context.Context, l Listing) error {
	address := l.Address()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[address]; !ok {
		return fmt.Errorf("put %s: %w", address.Hex(), ErrNotFound)
	}
	s.m[address] = l
	return nil
}

// List returns up to limit listings, most recently created first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listing, 0, len(s.m))
	for _, l := range s.m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
