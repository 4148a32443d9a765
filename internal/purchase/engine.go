package purchase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"listing-ledger/internal/ledger"
	"listing-ledger/internal/listing"
	"listing-ledger/internal/oracle"
	"listing-ledger/internal/receipt"
)

var (
	// ErrListingClosed indicates a purchase against an inactive listing.
	ErrListingClosed = errors.New("listing closed")
	// ErrArithmeticOverflow indicates the required payment exceeds the
	// representable native amount. Never wrapped away or saturated.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// Transfer moves native base units from a buyer to a treasury.
type Transfer struct {
	From   ledger.Address
	To     ledger.Address
	Amount uint64
}

// Settler applies a transfer and records the receipt as one atomic unit.
// Either both happen or neither; no code path leaves funds moved without a
// receipt.
type Settler interface {
	Settle(ctx context.Context, t Transfer, rec receipt.Receipt) error
}

// Engine executes purchases: price conversion, payment enforcement, and
// receipt emission.
type Engine struct {
	settler Settler
	logger  zerolog.Logger
}

// NewEngine constructs an Engine over a settlement backend.
func NewEngine(settler Settler, logger zerolog.Logger) *Engine {
	return &Engine{
		settler: settler,
		logger:  logger.With().Str("component", "purchase_engine").Logger(),
	}
}

// Buy converts the listing's USD price at the validated oracle price,
// collects exactly that amount from the buyer, and emits the receipt. The
// active check runs before any conversion work: a closed listing is rejected
// cheaply regardless of oracle state.
func (e *Engine) Buy(ctx context.Context, buyer ledger.Address, l listing.Listing, price oracle.Price, seed ledger.Address, now time.Time) (receipt.Receipt, error) {
	if !l.IsActive {
		return receipt.Receipt{}, fmt.Errorf("listing %s: %w", l.Address().Hex(), ErrListingClosed)
	}

	amount, err := RequiredNative(l.PriceUSD, price)
	if err != nil {
		return receipt.Receipt{}, err
	}

	rec := receipt.New(buyer, l.Address(), seed, amount, now)
	transfer := Transfer{From: buyer, To: l.Treasury, Amount: amount}
	if err := e.settler.Settle(ctx, transfer, rec); err != nil {
		return receipt.Receipt{}, err
	}

	e.logger.Info().
		Str("buyer", buyer.Hex()).
		Str("listing", l.Address().Hex()).
		Str("receipt", rec.Address().Hex()).
		Uint64("price_usd", l.PriceUSD).
		Uint64("paid_native", amount).
		Msg("purchase settled")

	return rec, nil
}

var big100 = big.NewInt(100)

// RequiredNative converts a USD-cent price into native base units at the
// given oracle price:
//
//	ceil( (priceUSD/100) / (price * 10^expo) * NativeUnitsPerWhole )
//
// The division rounds up so fixed-point truncation can never under-collect;
// the treasury is always paid at least the listed value. Intermediates are
// arbitrary precision; only the final amount must fit uint64, otherwise
// ErrArithmeticOverflow.
func RequiredNative(priceUSD uint64, price oracle.Price) (uint64, error) {
	magnitude := price.Price
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude == 0 {
		return 0, fmt.Errorf("%w: zero oracle price", ErrArithmeticOverflow)
	}

	num := new(big.Int).Mul(
		new(big.Int).SetUint64(priceUSD),
		new(big.Int).SetUint64(ledger.NativeUnitsPerWhole),
	)
	den := new(big.Int).Mul(big.NewInt(magnitude), big100)

	scale := func(v *big.Int, expo int64) *big.Int {
		pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(expo), nil)
		return v.Mul(v, pow)
	}
	if price.Expo < 0 {
		num = scale(num, int64(-price.Expo))
	} else if price.Expo > 0 {
		den = scale(den, int64(price.Expo))
	}

	// ceil(num/den) = (num + den - 1) / den for positive den
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	if !num.IsUint64() {
		return 0, fmt.Errorf("%w: required amount %s exceeds native range", ErrArithmeticOverflow, num.String())
	}
	return num.Uint64(), nil
}
