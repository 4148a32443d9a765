package storage

import (
	"context"
	"time"

	"listing-ledger/internal/ledger"
	"listing-ledger/internal/listing"
	"listing-ledger/internal/receipt"
)

// ListingRepo is the listing.Store view of the database. It also forwards
// the advisory lock, so the service picks up cross-process serialization.
type ListingRepo struct {
	store *Store
}

// Listings returns the listing.Store view.
func (s *Store) Listings() *ListingRepo {
	return &ListingRepo{store: s}
}

func (r *ListingRepo) Create(ctx context.Context, l listing.Listing) error {
	return r.store.CreateListing(ctx, l)
}

func (r *ListingRepo) Get(ctx context.Context, address ledger.Address) (listing.Listing, error) {
	return r.store.GetListing(ctx, address)
}

func (r *ListingRepo) Put(ctx context.Context, l listing.Listing) error {
	return r.store.PutListing(ctx, l)
}

func (r *ListingRepo) List(ctx context.Context, limit int) ([]listing.Listing, error) {
	return r.store.ListListings(ctx, limit)
}

// AcquireListingLock delegates to the store's advisory lock.
func (r *ListingRepo) AcquireListingLock(ctx context.Context, address ledger.Address) (func(), error) {
	return r.store.AcquireListingLock(ctx, address)
}

// ReceiptRepo is the receipt.Store view of the database.
type ReceiptRepo struct {
	store *Store
}

// Receipts returns the receipt.Store view.
func (s *Store) Receipts() *ReceiptRepo {
	return &ReceiptRepo{store: s}
}

func (r *ReceiptRepo) Record(ctx context.Context, rec receipt.Receipt) error {
	return r.store.RecordReceipt(ctx, rec)
}

func (r *ReceiptRepo) Get(ctx context.Context, address ledger.Address) (receipt.Receipt, error) {
	return r.store.GetReceipt(ctx, address)
}

func (r *ReceiptRepo) ListRecent(ctx context.Context, limit int) ([]receipt.Receipt, error) {
	return r.store.ListRecentReceipts(ctx, limit)
}

func (r *ReceiptRepo) ListBetween(ctx context.Context, from, to time.Time) ([]receipt.Receipt, error) {
	return r.store.ListReceiptsBetween(ctx, from, to)
}

var (
	_ listing.Store = (*ListingRepo)(nil)
	_ receipt.Store = (*ReceiptRepo)(nil)
)
