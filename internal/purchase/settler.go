package purchase

import (
	"context"
	"fmt"

	"listing-ledger/internal/ledger"
	"listing-ledger/internal/receipt"
)

// MemorySettler settles against an in-memory ledger and receipt store. The
// receipt-existence check, transfer, and record all run under the ledger
// lock, so a transferred-but-unreceipted state is unreachable.
type MemorySettler struct {
	ledger   *ledger.Ledger
	receipts receipt.Store
}

// NewMemorySettler wires a ledger and receipt store into a Settler.
func NewMemorySettler(l *ledger.Ledger, receipts receipt.Store) *MemorySettler {
	return &MemorySettler{ledger: l, receipts: receipts}
}

// Settle applies the transfer and records the receipt atomically.
func (s *MemorySettler) Settle(ctx context.Context, t Transfer, rec receipt.Receipt) error {
	return s.ledger.WithLock(func(transfer func(from, to ledger.Address, amount uint64) error) error {
		address := rec.Address()
		if _, err := s.receipts.Get(ctx, address); err == nil {
			return fmt.Errorf("settle %s: %w", address.Hex(), receipt.ErrAlreadyExists)
		}
		if err := transfer(t.From, t.To, t.Amount); err != nil {
			return err
		}
		return s.receipts.Record(ctx, rec)
	})
}

var _ Settler = (*MemorySettler)(nil)
