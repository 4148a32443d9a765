package receipt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"listing-ledger/internal/ledger"
)

// ErrAlreadyExists indicates a receipt already occupies the derived
// (buyer, listing, seed) address. The seed is caller-chosen high-entropy, so
// in practice this only fires on a replayed seed.
var ErrAlreadyExists = errors.New("receipt already exists")

// ErrNotFound indicates no receipt lives at the derived address.
var ErrNotFound = errors.New("receipt not found")

// Receipt is the immutable proof that a buyer paid a specific amount for a
// specific listing. Created exactly once; never mutated or deleted.
type Receipt struct {
	Owner           ledger.Address
	Product         ledger.Address
	Seed            ledger.Address
	PricePaidNative uint64
	Timestamp       time.Time
}

// New builds a receipt for a settled purchase.
func New(owner, product, seed ledger.Address, pricePaidNative uint64, now time.Time) Receipt {
	return Receipt{
		Owner:           owner,
		Product:         product,
		Seed:            seed,
		PricePaidNative: pricePaidNative,
		Timestamp:       now,
	}
}

// Address returns the receipt's derived ledger address.
func (r Receipt) Address() ledger.Address {
	return ledger.ReceiptAddress(r.Owner, r.Product, r.Seed)
}

// Store defines write-once receipt persistence.
type Store interface {
	Record(ctx context.Context, r Receipt) error
	Get(ctx context.Context, address ledger.Address) (Receipt, error)
	ListRecent(ctx context.Context, limit int) ([]Receipt, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]Receipt, error)
}

// MemoryStore keeps receipts in memory for tests and simulation.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[ledger.Address]Receipt
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[ledger.Address]Receipt)}
}

// Record inserts the receipt, failing on an occupied address.
func (s *MemoryStore) Record(_ context.Context, r Receipt) error {
	address := r.Address()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[address]; ok {
		return fmt.Errorf("record %s: %w", address.Hex(), ErrAlreadyExists)
	}
	s.m[address] = r
	return nil
}

// Get fetches a receipt by derived address.
func (s *MemoryStore) Get(_ context.Context, address ledger.Address) (Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.m[address]
	if !ok {
		return Receipt{}, fmt.Errorf("get %s: %w", address.Hex(), ErrNotFound)
	}
	return r, nil
}

// ListRecent returns up to limit receipts, newest first.
func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Receipt, 0, len(s.m))
	for _, r := range s.m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBetween returns receipts settled within [from, to), oldest first.
func (s *MemoryStore) ListBetween(_ context.Context, from, to time.Time) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Receipt, 0)
	for _, r := range s.m {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
