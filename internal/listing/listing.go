package listing

import (
	"errors"
	"fmt"
	"time"

	"listing-ledger/internal/ledger"
)

// Bounds carried over from the on-ledger record layout.
const (
	NameMaxLen = 32
	URLMaxLen  = 200
)

var (
	// ErrAlreadyExists indicates the derived (admin, name) address is occupied.
	ErrAlreadyExists = errors.New("listing already exists")
	// ErrNotFound indicates no listing lives at the derived address.
	ErrNotFound = errors.New("listing not found")
	// ErrNameTooLong indicates the name exceeds NameMaxLen bytes.
	ErrNameTooLong = errors.New("listing name too long")
	// ErrURLTooLong indicates the image URL exceeds URLMaxLen bytes.
	ErrURLTooLong = errors.New("image url too long")
	// ErrNameRequired indicates an empty listing name.
	ErrNameRequired = errors.New("listing name required")
)

// Listing is one seller's published offering. Its address is derived from
// (admin, name), so the pair is the uniqueness invariant: a second create for
// the same pair lands on the same address and is rejected.
type Listing struct {
	Admin     ledger.Address
	Treasury  ledger.Address
	Name      string
	ImageURL  string
	PriceUSD  uint64 // USD cents, 100 = $1.00
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New validates field bounds and returns an active listing. The admin is
// immutable afterwards; payments credit the treasury.
func New(admin, treasury ledger.Address, name, imageURL string, priceUSD uint64, now time.Time) (Listing, error) {
	if name == "" {
		return Listing{}, ErrNameRequired
	}
	if len(name) > NameMaxLen {
		return Listing{}, fmt.Errorf("%w: %d bytes, max %d", ErrNameTooLong, len(name), NameMaxLen)
	}
	if len(imageURL) > URLMaxLen {
		return Listing{}, fmt.Errorf("%w: %d bytes, max %d", ErrURLTooLong, len(imageURL), URLMaxLen)
	}
	if treasury.IsZero() {
		treasury = admin
	}
	return Listing{
		Admin:     admin,
		Treasury:  treasury,
		Name:      name,
		ImageURL:  imageURL,
		PriceUSD:  priceUSD,
		IsActive:  true,
		CreatedAt: now,
	}, nil
}

// Address returns the listing's derived ledger address.
func (l Listing) Address() ledger.Address {
	return ledger.ListingAddress(l.Admin, l.Name)
}

// ApplyUpdate overwrites only the fields that are present; nil fields are
// left untouched.
func (l *Listing) ApplyUpdate(imageURL *string, priceUSD *uint64, now time.Time) error {
	if imageURL != nil {
		if len(*imageURL) > URLMaxLen {
			return fmt.Errorf("%w: %d bytes, max %d", ErrURLTooLong, len(*imageURL), URLMaxLen)
		}
		l.ImageURL = *imageURL
	}
	if priceUSD != nil {
		l.PriceUSD = *priceUSD
	}
	l.UpdatedAt = now
	return nil
}

// Deactivate closes the listing. Idempotent: deactivating an inactive
// listing is a no-op. There is deliberately no reactivate.
func (l *Listing) Deactivate(now time.Time) {
	if !l.IsActive {
		return
	}
	l.IsActive = false
	l.UpdatedAt = now
}
