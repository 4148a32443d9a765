package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Validation failure kinds. Each is independently assertable with errors.Is
// so callers can distinguish a malformed attestation from a stale one.
var (
	ErrMalformed     = errors.New("oracle attestation malformed")
	ErrFeedMismatch  = errors.New("oracle feed mismatch")
	ErrStale         = errors.New("oracle price stale")
	ErrLowConfidence = errors.New("oracle confidence too low")
)

// FeedID names the price series an attestation refers to.
type FeedID [32]byte

// Hex encodes the feed id as 0x-prefixed hex.
func (f FeedID) Hex() string {
	return hexutil.Encode(f[:])
}

// ParseFeedID decodes a 32-byte feed id from hex, with or without 0x prefix.
func ParseFeedID(s string) (FeedID, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return FeedID{}, fmt.Errorf("parse feed id: %w", err)
	}
	if len(raw) != len(FeedID{}) {
		return FeedID{}, fmt.Errorf("parse feed id: expected 32 bytes, got %d", len(raw))
	}
	var id FeedID
	copy(id[:], raw)
	return id, nil
}

// Price is a validated view over one attestation. It is never persisted;
// every purchase revalidates from scratch.
type Price struct {
	Feed        FeedID
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime time.Time
}

// EffectivePrice returns price * 10^expo, the real USD value per whole native
// unit the attestation asserts.
func (p Price) EffectivePrice() decimal.Decimal {
	return decimal.New(p.Price, p.Expo)
}

// attestation mirrors the wire shape produced by a Hermes-style price feed
// endpoint: integer price and confidence as decimal strings, exponent signed.
type attestation struct {
	ID    string `json:"id"`
	Price struct {
		Price       string `json:"price"`
		Conf        string `json:"conf"`
		Expo        int32  `json:"expo"`
		PublishTime int64  `json:"publish_time"`
	} `json:"price"`
}

// ReaderOptions parameterise attestation validation.
type ReaderOptions struct {
	ExpectedFeed       FeedID
	MaxAge             time.Duration
	MaxConfidenceRatio decimal.Decimal
}

// Reader validates and decodes externally supplied price attestations. It
// holds no state beyond its tolerances; validation is all-or-nothing.
type Reader struct {
	opts   ReaderOptions
	logger zerolog.Logger
}

// NewReader constructs a Reader.
func NewReader(opts ReaderOptions, logger zerolog.Logger) *Reader {
	return &Reader{
		opts:   opts,
		logger: logger.With().Str("component", "oracle_reader").Logger(),
	}
}

// Read decodes raw attestation bytes into a validated Price. now is passed
// explicitly; staleness is a data check, not a wait. An attestation that
// fails any check is rejected whole — no field of it is ever trusted.
func (r *Reader) Read(raw []byte, now time.Time) (Price, error) {
	price, err := decode(raw)
	if err != nil {
		return Price{}, err
	}

	if price.Feed != r.opts.ExpectedFeed {
		return Price{}, fmt.Errorf("%w: got %s, want %s", ErrFeedMismatch, price.Feed.Hex(), r.opts.ExpectedFeed.Hex())
	}

	if age := now.Sub(price.PublishTime); age > r.opts.MaxAge {
		return Price{}, fmt.Errorf("%w: published %s ago, max age %s", ErrStale, age, r.opts.MaxAge)
	}

	if !r.opts.MaxConfidenceRatio.IsZero() {
		magnitude := decimal.NewFromInt(price.Price).Abs()
		ratio := decimal.NewFromUint64(price.Conf).Div(magnitude)
		if ratio.GreaterThan(r.opts.MaxConfidenceRatio) {
			return Price{}, fmt.Errorf("%w: conf/price %s exceeds %s", ErrLowConfidence, ratio.StringFixed(6), r.opts.MaxConfidenceRatio.String())
		}
	}

	r.logger.Debug().
		Str("feed", price.Feed.Hex()).
		Int64("price", price.Price).
		Uint64("conf", price.Conf).
		Int32("expo", price.Expo).
		Time("publish_time", price.PublishTime).
		Msg("attestation accepted")

	return price, nil
}

func decode(raw []byte) (Price, error) {
	if len(raw) == 0 {
		return Price{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	var att attestation
	if err := json.Unmarshal(raw, &att); err != nil {
		return Price{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	feed, err := ParseFeedID(att.ID)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	value, err := strconv.ParseInt(att.Price.Price, 10, 64)
	if err != nil {
		return Price{}, fmt.Errorf("%w: price %q: %v", ErrMalformed, att.Price.Price, err)
	}
	if value == 0 {
		return Price{}, fmt.Errorf("%w: price is zero", ErrMalformed)
	}

	conf, err := strconv.ParseUint(att.Price.Conf, 10, 64)
	if err != nil {
		return Price{}, fmt.Errorf("%w: conf %q: %v", ErrMalformed, att.Price.Conf, err)
	}

	if att.Price.PublishTime <= 0 {
		return Price{}, fmt.Errorf("%w: publish_time %d", ErrMalformed, att.Price.PublishTime)
	}

	return Price{
		Feed:        feed,
		Price:       value,
		Conf:        conf,
		Expo:        att.Price.Expo,
		PublishTime: time.Unix(att.Price.PublishTime, 0).UTC(),
	}, nil
}
