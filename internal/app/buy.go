package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"listing-ledger/internal/auth"
	"listing-ledger/internal/ledger"
	"listing-ledger/internal/service"
)

// Buy purchases a listing using an attestation read from disk.
func (a *App) Buy(ctx context.Context, opts BuyOptions) error {
	buyer, err := parseAddress("buyer", opts.Buyer)
	if err != nil {
		return err
	}
	seller, err := parseAddress("seller", opts.Seller)
	if err != nil {
		return err
	}

	seed, err := resolveSeed(opts.Seed)
	if err != nil {
		return err
	}

	attestation, err := os.ReadFile(opts.AttestationPath)
	if err != nil {
		return fmt.Errorf("read attestation: %w", err)
	}

	svc, done, err := a.dialService(ctx)
	if err != nil {
		return err
	}
	defer done()

	req := service.BuyRequest{
		Buyer:       buyer,
		Seller:      seller,
		ProductName: opts.Name,
		Seed:        seed,
		Attestation: attestation,
	}
	rec, err := svc.Buy(ctx, req, auth.NewSignerSet(buyer), time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "receipt %s: paid %d native units for %s\n", rec.Address().Hex(), rec.PricePaidNative, opts.Name)
	return nil
}

// Fund credits an account balance. Development helper: in production funds
// arrive through the external settlement rails.
func (a *App) Fund(ctx context.Context, opts FundOptions) error {
	account, err := parseAddress("account", opts.Account)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("database not configured; set database.dsn")
	}
	defer closeStore()

	if err := store.Credit(ctx, account, opts.Amount); err != nil {
		return err
	}

	balance, err := store.Balance(ctx, account)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "account %s balance: %d\n", account.Hex(), balance)
	return nil
}

// resolveSeed parses the given seed or draws a fresh high-entropy one so
// repeat purchases of the same listing never collide.
func resolveSeed(value string) (ledger.Address, error) {
	if value != "" {
		return parseAddress("seed", value)
	}
	var seed ledger.Address
	if _, err := rand.Read(seed[:]); err != nil {
		return ledger.Address{}, fmt.Errorf("generate seed: %w", err)
	}
	return seed, nil
}
