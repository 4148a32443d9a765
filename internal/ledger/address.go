package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the byte width of every account identity on the ledger.
const AddressLength = 32

// Seed prefixes namespace the derived address space per record kind.
const (
	ListingSeed = "LISTING_SEED"
	ReceiptSeed = "RECEIPT_SEED"
)

// Address identifies an account on the ledger: a signer identity, a listing
// record, a receipt record, or a treasury.
type Address [AddressLength]byte

// ZeroAddress is the empty address; no record ever lives there.
var ZeroAddress Address

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// Hex encodes the address as 0x-prefixed hex.
func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Hex()
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// ParseAddress decodes a 0x-prefixed hex string into an Address.
func ParseAddress(s string) (Address, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address: %w", err)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("parse address: expected %d bytes, got %d", AddressLength, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// DeriveAddress computes the deterministic address for a seed list. Each seed
// is length-prefixed before hashing so that ("ab","c") and ("a","bc") cannot
// collide. Any reader holding the seeds can recompute the address without a
// directory lookup.
func DeriveAddress(seeds ...[]byte) Address {
	buf := make([]byte, 0, 64)
	for _, seed := range seeds {
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(seed)))
		buf = append(buf, size[:]...)
		buf = append(buf, seed...)
	}
	return Address(crypto.Keccak256Hash(buf))
}

// ListingAddress derives the unique address of the listing owned by admin
// under the given name. Identity and address are coupled: only this admin's
// signature can ever populate it.
func ListingAddress(admin Address, name string) Address {
	return DeriveAddress([]byte(ListingSeed), admin.Bytes(), []byte(name))
}

// ReceiptAddress derives the unique address of a purchase receipt. The
// caller-chosen seed lets one buyer hold any number of receipts for the same
// listing.
func ReceiptAddress(buyer, listing, seed Address) Address {
	return DeriveAddress([]byte(ReceiptSeed), buyer.Bytes(), listing.Bytes(), seed.Bytes())
}

// LockKey folds an address into an int64 suitable for a postgres advisory
// lock, so conflicting writes to the same record serialize.
func LockKey(a Address) int64 {
	return int64(binary.BigEndian.Uint64(a[:8]))
}
