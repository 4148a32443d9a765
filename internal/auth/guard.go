package auth

import (
	"errors"
	"fmt"

	"listing-ledger/internal/ledger"
)

// ErrUnauthorized indicates the required identity did not sign the call.
var ErrUnauthorized = errors.New("unauthorized")

// SignerSet is the set of identities the signature-verification collaborator
// confirmed for the current call. It is passed explicitly so the core never
// consults ambient signing state.
type SignerSet map[ledger.Address]struct{}

// NewSignerSet builds a SignerSet from verified identities.
func NewSignerSet(signers ...ledger.Address) SignerSet {
	set := make(SignerSet, len(signers))
	for _, s := range signers {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether the identity is in the set.
func (s SignerSet) Contains(identity ledger.Address) bool {
	_, ok := s[identity]
	return ok
}

// RequireSigner fails with ErrUnauthorized unless expected is among the
// verified signers. Every mutating listing call and every purchase goes
// through here.
func RequireSigner(expected ledger.Address, signers SignerSet) error {
	if !signers.Contains(expected) {
		return fmt.Errorf("signer %s missing: %w", expected.Hex(), ErrUnauthorized)
	}
	return nil
}
