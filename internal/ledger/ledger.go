package ledger

import (
	"errors"
	"fmt"
	"sync"
)

// NativeUnitsPerWhole is the number of base units in one whole unit of the
// settlement currency.
const NativeUnitsPerWhole uint64 = 1_000_000_000

var (
	// ErrInsufficientFunds indicates the payer balance cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAmountOverflow indicates a credit would exceed the representable balance.
	ErrAmountOverflow = errors.New("balance overflow")
)

// Ledger tracks native-currency balances in memory. Every mutation happens
// under one lock, so a transfer is observed fully applied or not at all.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Address]uint64
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[Address]uint64)}
}

// Balance returns the current balance of an account. Unknown accounts hold zero.
func (l *Ledger) Balance(account Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// Credit adds funds to an account.
func (l *Ledger) Credit(account Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balances[account]
	if current > ^uint64(0)-amount {
		return fmt.Errorf("credit %s: %w", account.Hex(), ErrAmountOverflow)
	}
	l.balances[account] = current + amount
	return nil
}

// Transfer moves exactly amount base units from one account to another. The
// debit and credit are a single atomic step.
func (l *Ledger) Transfer(from, to Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, amount)
}

func (l *Ledger) transferLocked(from, to Address, amount uint64) error {
	balance := l.balances[from]
	if balance < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from.Hex(), ErrInsufficientFunds)
	}
	if l.balances[to] > ^uint64(0)-amount {
		return fmt.Errorf("transfer %d to %s: %w", amount, to.Hex(), ErrAmountOverflow)
	}
	l.balances[from] = balance - amount
	l.balances[to] += amount
	return nil
}

// WithLock runs fn while holding the ledger write lock, transferring through
// the supplied callback. It exists so settlement can couple a transfer with
// another state change without a transferred-but-unrecorded window.
func (l *Ledger) WithLock(fn func(transfer func(from, to Address, amount uint64) error) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.transferLocked)
}
