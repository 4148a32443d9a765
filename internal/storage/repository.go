package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing-ledger/internal/ledger"
	"listing-ledger/internal/listing"
	"listing-ledger/internal/purchase"
	"listing-ledger/internal/receipt"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertListingSQL = `INSERT INTO listings (
        address,
        admin,
        treasury,
        name,
        image_url,
        price_usd,
        is_active,
        created_at,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6::numeric,$7,$8,$9
    )
    ON CONFLICT (address) DO NOTHING;`

	getListingSQL = `SELECT
        admin,
        treasury,
        name,
        image_url,
        price_usd::text,
        is_active,
        created_at,
        updated_at
    FROM listings
    WHERE address = $1;`

	updateListingSQL = `UPDATE listings
    SET image_url  = $2,
        price_usd  = $3::numeric,
        is_active  = $4,
        updated_at = $5
    WHERE address = $1;`

	listListingsSQL = `SELECT
        admin,
        treasury,
        name,
        image_url,
        price_usd::text,
        is_active,
        created_at,
        updated_at
    FROM listings
    ORDER BY created_at DESC
    LIMIT $1;`

	insertReceiptSQL = `INSERT INTO receipts (
        address,
        owner,
        product,
        seed,
        price_paid_native,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5::numeric,$6
    )
    ON CONFLICT (address) DO NOTHING;`

	getReceiptSQL = `SELECT
        owner,
        product,
        seed,
        price_paid_native::text,
        created_at
    FROM receipts
    WHERE address = $1;`

	listRecentReceiptsSQL = `SELECT
        owner,
        product,
        seed,
        price_paid_native::text,
        created_at
    FROM receipts
    ORDER BY created_at DESC
    LIMIT $1;`

	listReceiptsBetweenSQL = `SELECT
        owner,
        product,
        seed,
        price_paid_native::text,
        created_at
    FROM receipts
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	getBalanceSQL = `SELECT amount::text FROM balances WHERE account = $1;`

	creditBalanceSQL = `INSERT INTO balances (account, amount)
    VALUES ($1, $2::numeric)
    ON CONFLICT (account) DO UPDATE
    SET amount = balances.amount + EXCLUDED.amount;`

	debitBalanceSQL = `UPDATE balances
    SET amount = amount - $2::numeric
    WHERE account = $1
      AND amount >= $2::numeric;`

	advisoryLockSQL   = `SELECT pg_advisory_lock($1);`
	advisoryUnlockSQL = `SELECT pg_advisory_unlock($1);`
)

// execQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists listings, receipts, and native balances in PostgreSQL. One
// handle backs the whole instruction set: the Listings and Receipts views
// implement the domain store interfaces, Settle implements purchase.Settler,
// and AcquireListingLock serializes writers across processes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Create inserts a listing at its derived address. Insert-if-absent is the
// uniqueness check; a second create for the same (admin, name) hits the same
// row and fails.
func (s *Store) CreateListing(ctx context.Context, l listing.Listing) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	address := l.Address()
	tag, execErr := pool.Exec(ctx, insertListingSQL,
		address.Bytes(),
		l.Admin.Bytes(),
		l.Treasury.Bytes(),
		l.Name,
		l.ImageURL,
		strconv.FormatUint(l.PriceUSD, 10),
		l.IsActive,
		l.CreatedAt,
		nullableTime(l.UpdatedAt),
	)
	if execErr != nil {
		return fmt.Errorf("insert listing: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert %s: %w", address.Hex(), listing.ErrAlreadyExists)
	}
	return nil
}

// Get fetches a listing by derived address.
func (s *Store) GetListing(ctx context.Context, address ledger.Address) (listing.Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return listing.Listing{}, err
	}

	l, scanErr := scanListing(pool.QueryRow(ctx, getListingSQL, address.Bytes()))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return listing.Listing{}, fmt.Errorf("get %s: %w", address.Hex(), listing.ErrNotFound)
		}
		return listing.Listing{}, fmt.Errorf("get listing: %w", scanErr)
	}
	return l, nil
}

// Put overwrites the mutable fields of an existing listing.
func (s *Store) PutListing(ctx context.Context, l listing.Listing) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	address := l.Address()
	tag, execErr := pool.Exec(ctx, updateListingSQL,
		address.Bytes(),
		l.ImageURL,
		strconv.FormatUint(l.PriceUSD, 10),
		l.IsActive,
		nullableTime(l.UpdatedAt),
	)
	if execErr != nil {
		return fmt.Errorf("update listing: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", address.Hex(), listing.ErrNotFound)
	}
	return nil
}

// List returns recent listings, newest first.
func (s *Store) ListListings(ctx context.Context, limit int) ([]listing.Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listListingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list listings: %w", queryErr)
	}
	defer rows.Close()

	listings := make([]listing.Listing, 0, limit)
	for rows.Next() {
		l, scanErr := scanListing(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		listings = append(listings, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return listings, nil
}

// RecordReceipt inserts a receipt outside a settlement. Settled purchases go
// through Settle instead.
func (s *Store) RecordReceipt(ctx context.Context, r receipt.Receipt) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return insertReceipt(ctx, pool, r)
}

func insertReceipt(ctx context.Context, q execQuerier, r receipt.Receipt) error {
	address := r.Address()
	tag, execErr := q.Exec(ctx, insertReceiptSQL,
		address.Bytes(),
		r.Owner.Bytes(),
		r.Product.Bytes(),
		r.Seed.Bytes(),
		strconv.FormatUint(r.PricePaidNative, 10),
		r.Timestamp,
	)
	if execErr != nil {
		return fmt.Errorf("insert receipt: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert %s: %w", address.Hex(), receipt.ErrAlreadyExists)
	}
	return nil
}

// GetReceipt fetches a receipt by derived address.
func (s *Store) GetReceipt(ctx context.Context, address ledger.Address) (receipt.Receipt, error) {
	pool, err := s.getPool()
	if err != nil {
		return receipt.Receipt{}, err
	}

	r, scanErr := scanReceipt(pool.QueryRow(ctx, getReceiptSQL, address.Bytes()))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return receipt.Receipt{}, fmt.Errorf("get %s: %w", address.Hex(), receipt.ErrNotFound)
		}
		return receipt.Receipt{}, fmt.Errorf("get receipt: %w", scanErr)
	}
	return r, nil
}

// ListRecent returns recent receipts, newest first.
func (s *Store) ListRecentReceipts(ctx context.Context, limit int) ([]receipt.Receipt, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReceiptsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent receipts: %w", queryErr)
	}
	defer rows.Close()
	return collectReceipts(rows, limit)
}

// ListBetween returns receipts settled within [from, to), oldest first.
func (s *Store) ListReceiptsBetween(ctx context.Context, from, to time.Time) ([]receipt.Receipt, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReceiptsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list receipts between: %w", queryErr)
	}
	defer rows.Close()
	return collectReceipts(rows, 0)
}

// Balance returns an account's native balance. Unknown accounts hold zero.
func (s *Store) Balance(ctx context.Context, account ledger.Address) (uint64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var amountStr string
	if scanErr := pool.QueryRow(ctx, getBalanceSQL, account.Bytes()).Scan(&amountStr); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", scanErr)
	}
	return parseAmount(amountStr)
}

// Credit adds funds to an account.
func (s *Store) Credit(ctx context.Context, account ledger.Address, amount uint64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, creditBalanceSQL, account.Bytes(), strconv.FormatUint(amount, 10)); execErr != nil {
		return fmt.Errorf("credit balance: %w", execErr)
	}
	return nil
}

// Settle debits the buyer, credits the treasury, and records the receipt in
// a single database transaction. Either all three commit or none do.
func (s *Store) Settle(ctx context.Context, t purchase.Transfer, rec receipt.Receipt) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	amount := strconv.FormatUint(t.Amount, 10)

	tag, execErr := tx.Exec(ctx, debitBalanceSQL, t.From.Bytes(), amount)
	if execErr != nil {
		return fmt.Errorf("debit buyer: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("debit %s: %w", t.From.Hex(), ledger.ErrInsufficientFunds)
	}

	if _, execErr := tx.Exec(ctx, creditBalanceSQL, t.To.Bytes(), amount); execErr != nil {
		return fmt.Errorf("credit treasury: %w", execErr)
	}

	if err := insertReceipt(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

// AcquireListingLock takes a blocking postgres advisory lock keyed by the
// listing address, so conflicting mutations of one listing serialize across
// processes.
func (s *Store) AcquireListingLock(ctx context.Context, address ledger.Address) (func(), error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	key := ledger.LockKey(address)
	if _, execErr := conn.Exec(ctx, advisoryLockSQL, key); execErr != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", execErr)
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: releasing the session drops the lock regardless.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (listing.Listing, error) {
	var (
		adminRaw    []byte
		treasuryRaw []byte
		name        string
		imageURL    string
		priceStr    string
		isActive    bool
		createdAt   time.Time
		updatedAt   *time.Time
	)

	if err := row.Scan(&adminRaw, &treasuryRaw, &name, &imageURL, &priceStr, &isActive, &createdAt, &updatedAt); err != nil {
		return listing.Listing{}, err
	}

	price, err := parseAmount(priceStr)
	if err != nil {
		return listing.Listing{}, fmt.Errorf("parse price_usd: %w", err)
	}

	l := listing.Listing{
		Admin:     toAddress(adminRaw),
		Treasury:  toAddress(treasuryRaw),
		Name:      name,
		ImageURL:  imageURL,
		PriceUSD:  price,
		IsActive:  isActive,
		CreatedAt: createdAt,
	}
	if updatedAt != nil {
		l.UpdatedAt = *updatedAt
	}
	return l, nil
}

func scanReceipt(row rowScanner) (receipt.Receipt, error) {
	var (
		ownerRaw   []byte
		productRaw []byte
		seedRaw    []byte
		amountStr  string
		createdAt  time.Time
	)

	if err := row.Scan(&ownerRaw, &productRaw, &seedRaw, &amountStr, &createdAt); err != nil {
		return receipt.Receipt{}, err
	}

	amount, err := parseAmount(amountStr)
	if err != nil {
		return receipt.Receipt{}, fmt.Errorf("parse price_paid_native: %w", err)
	}

	return receipt.Receipt{
		Owner:           toAddress(ownerRaw),
		Product:         toAddress(productRaw),
		Seed:            toAddress(seedRaw),
		PricePaidNative: amount,
		Timestamp:       createdAt,
	}, nil
}

func collectReceipts(rows pgx.Rows, sizeHint int) ([]receipt.Receipt, error) {
	receipts := make([]receipt.Receipt, 0, sizeHint)
	for rows.Next() {
		r, scanErr := scanReceipt(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		receipts = append(receipts, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return receipts, nil
}

func parseAmount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func toAddress(raw []byte) ledger.Address {
	var a ledger.Address
	copy(a[:], raw)
	return a
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ purchase.Settler = (*Store)(nil)
