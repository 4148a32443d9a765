package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"listing-ledger/internal/auth"
	"listing-ledger/internal/events"
	"listing-ledger/internal/ledger"
	"listing-ledger/internal/listing"
	"listing-ledger/internal/oracle"
	"listing-ledger/internal/purchase"
	"listing-ledger/internal/receipt"
)

// ExclusiveLocker is implemented by stores that can serialize writers across
// processes (postgres advisory locks). The in-process keyed mutex always
// applies; this adds cross-process exclusivity when available.
type ExclusiveLocker interface {
	AcquireListingLock(ctx context.Context, address ledger.Address) (unlock func(), err error)
}

// Service executes the four marketplace instructions. Each call either
// commits fully or fails with a distinguishable error kind; current time and
// the verified signer set are explicit inputs on every operation.
type Service struct {
	listings listing.Store
	receipts receipt.Store
	reader   *oracle.Reader
	engine   *purchase.Engine
	events   events.Publisher
	logger   zerolog.Logger

	locker ExclusiveLocker

	mu    sync.Mutex
	locks map[ledger.Address]*sync.Mutex
}

// New constructs the instruction executor. publisher may be nil (publishing
// disabled).
func New(listings listing.Store, receipts receipt.Store, reader *oracle.Reader, engine *purchase.Engine, publisher events.Publisher, logger zerolog.Logger) *Service {
	var locker ExclusiveLocker
	if l, ok := listings.(ExclusiveLocker); ok {
		locker = l
	}
	return &Service{
		listings: listings,
		receipts: receipts,
		reader:   reader,
		engine:   engine,
		events:   publisher,
		logger:   logger.With().Str("component", "service").Logger(),
		locker:   locker,
		locks:    make(map[ledger.Address]*sync.Mutex),
	}
}

// InitializeRequest creates a listing.
type InitializeRequest struct {
	Admin    ledger.Address
	Treasury ledger.Address
	Name     string
	ImageURL string
	PriceUSD uint64
}

// UpdateRequest partially updates a listing; nil fields are left untouched.
type UpdateRequest struct {
	Admin    ledger.Address
	Name     string
	ImageURL *string
	PriceUSD *uint64
}

// DeactivateRequest closes a listing.
type DeactivateRequest struct {
	Admin ledger.Address
	Name  string
}

// BuyRequest purchases a listing at the attested oracle price.
type BuyRequest struct {
	Buyer       ledger.Address
	Seller      ledger.Address
	ProductName string
	Seed        ledger.Address
	Attestation []byte
}

// Initialize creates a new active listing at its derived (admin, name)
// address. The admin must have signed.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest, signers auth.SignerSet, now time.Time) (listing.Listing, error) {
	if err := auth.RequireSigner(req.Admin, signers); err != nil {
		return listing.Listing{}, err
	}

	l, err := listing.New(req.Admin, req.Treasury, req.Name, req.ImageURL, req.PriceUSD, now)
	if err != nil {
		return listing.Listing{}, err
	}

	unlock, err := s.lockListing(ctx, l.Address())
	if err != nil {
		return listing.Listing{}, err
	}
	defer unlock()

	if err := s.listings.Create(ctx, l); err != nil {
		return listing.Listing{}, err
	}

	s.publish(ctx, events.KindListingInitialized, now, map[string]string{
		"admin":     l.Admin.Hex(),
		"name":      l.Name,
		"image_url": l.ImageURL,
		"price_usd": strconv.FormatUint(l.PriceUSD, 10),
	})

	s.logger.Info().Str("listing", l.Address().Hex()).Str("name", l.Name).Msg("listing initialized")
	return l, nil
}

// Update overwrites only the provided fields of an existing listing. Fails
// with auth.ErrUnauthorized unless the stored admin signed.
func (s *Service) Update(ctx context.Context, req UpdateRequest, signers auth.SignerSet, now time.Time) (listing.Listing, error) {
	address := ledger.ListingAddress(req.Admin, req.Name)

	unlock, err := s.lockListing(ctx, address)
	if err != nil {
		return listing.Listing{}, err
	}
	defer unlock()

	l, err := s.listings.Get(ctx, address)
	if err != nil {
		return listing.Listing{}, err
	}
	if err := auth.RequireSigner(l.Admin, signers); err != nil {
		return listing.Listing{}, err
	}

	if err := l.ApplyUpdate(req.ImageURL, req.PriceUSD, now); err != nil {
		return listing.Listing{}, err
	}
	if err := s.listings.Put(ctx, l); err != nil {
		return listing.Listing{}, err
	}

	fields := map[string]string{"admin": l.Admin.Hex(), "name": l.Name}
	if req.ImageURL != nil {
		fields["new_image_url"] = *req.ImageURL
	}
	if req.PriceUSD != nil {
		fields["new_price_usd"] = strconv.FormatUint(*req.PriceUSD, 10)
	}
	s.publish(ctx, events.KindListingUpdated, now, fields)

	s.logger.Info().Str("listing", address.Hex()).Msg("listing updated")
	return l, nil
}

// Deactivate closes a listing. Idempotent: closing an already-closed listing
// succeeds without touching state.
func (s *Service) Deactivate(ctx context.Context, req DeactivateRequest, signers auth.SignerSet, now time.Time) (listing.Listing, error) {
	address := ledger.ListingAddress(req.Admin, req.Name)

	unlock, err := s.lockListing(ctx, address)
	if err != nil {
		return listing.Listing{}, err
	}
	defer unlock()

	l, err := s.listings.Get(ctx, address)
	if err != nil {
		return listing.Listing{}, err
	}
	if err := auth.RequireSigner(l.Admin, signers); err != nil {
		return listing.Listing{}, err
	}

	if !l.IsActive {
		return l, nil
	}
	l.Deactivate(now)
	if err := s.listings.Put(ctx, l); err != nil {
		return listing.Listing{}, err
	}

	s.publish(ctx, events.KindListingDeactivated, now, map[string]string{
		"admin": l.Admin.Hex(),
		"name":  l.Name,
	})

	s.logger.Info().Str("listing", address.Hex()).Msg("listing deactivated")
	return l, nil
}

// Buy validates the attestation, converts the listing price, collects the
// payment, and records the receipt. The buyer must have signed. Conflicting
// writes against the same listing serialize on the listing lock.
func (s *Service) Buy(ctx context.Context, req BuyRequest, signers auth.SignerSet, now time.Time) (receipt.Receipt, error) {
	if err := auth.RequireSigner(req.Buyer, signers); err != nil {
		return receipt.Receipt{}, err
	}

	address := ledger.ListingAddress(req.Seller, req.ProductName)

	unlock, err := s.lockListing(ctx, address)
	if err != nil {
		return receipt.Receipt{}, err
	}
	defer unlock()

	l, err := s.listings.Get(ctx, address)
	if err != nil {
		return receipt.Receipt{}, err
	}

	// Closed listings are rejected before any oracle work.
	if !l.IsActive {
		return receipt.Receipt{}, fmt.Errorf("listing %s: %w", address.Hex(), purchase.ErrListingClosed)
	}

	price, err := s.reader.Read(req.Attestation, now)
	if err != nil {
		return receipt.Receipt{}, err
	}

	rec, err := s.engine.Buy(ctx, req.Buyer, l, price, req.Seed, now)
	if err != nil {
		return receipt.Receipt{}, err
	}

	s.publish(ctx, events.KindProductPurchased, now, map[string]string{
		"buyer":       rec.Owner.Hex(),
		"product":     rec.Product.Hex(),
		"receipt":     rec.Address().Hex(),
		"paid_native": strconv.FormatUint(rec.PricePaidNative, 10),
	})

	return rec, nil
}

// GetListing fetches a listing by its derived (admin, name) address.
func (s *Service) GetListing(ctx context.Context, admin ledger.Address, name string) (listing.Listing, error) {
	return s.listings.Get(ctx, ledger.ListingAddress(admin, name))
}

// ListListings returns recent listings.
func (s *Service) ListListings(ctx context.Context, limit int) ([]listing.Listing, error) {
	return s.listings.List(ctx, limit)
}

// ListReceipts returns recent receipts.
func (s *Service) ListReceipts(ctx context.Context, limit int) ([]receipt.Receipt, error) {
	return s.receipts.ListRecent(ctx, limit)
}

// lockListing takes the in-process mutex for the listing address, plus the
// store's cross-process lock when the store provides one.
func (s *Service) lockListing(ctx context.Context, address ledger.Address) (func(), error) {
	s.mu.Lock()
	m, ok := s.locks[address]
	if !ok {
		m = &sync.Mutex{}
		s.locks[address] = m
	}
	s.mu.Unlock()

	m.Lock()
	if s.locker == nil {
		return m.Unlock, nil
	}

	release, err := s.locker.AcquireListingLock(ctx, address)
	if err != nil {
		m.Unlock()
		return nil, fmt.Errorf("acquire listing lock: %w", err)
	}
	return func() {
		release()
		m.Unlock()
	}, nil
}

func (s *Service) publish(ctx context.Context, kind events.Kind, now time.Time, fields map[string]string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events.Event{Kind: kind, Timestamp: now, Fields: fields}); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to publish event")
	}
}
