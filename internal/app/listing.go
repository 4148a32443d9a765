package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"listing-ledger/internal/auth"
	"listing-ledger/internal/service"
)

// Initialize creates a new listing signed by its admin.
func (a *App) Initialize(ctx context.Context, opts InitializeOptions) error {
	admin, err := parseAddress("admin", opts.Admin)
	if err != nil {
		return err
	}

	req := service.InitializeRequest{
		Admin:    admin,
		Name:     opts.Name,
		ImageURL: opts.ImageURL,
		PriceUSD: opts.PriceUSD,
	}
	if opts.Treasury != "" {
		req.Treasury, err = parseAddress("treasury", opts.Treasury)
		if err != nil {
			return err
		}
	}

	svc, done, err := a.dialService(ctx)
	if err != nil {
		return err
	}
	defer done()

	l, err := svc.Initialize(ctx, req, auth.NewSignerSet(admin), time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "listing %s created at %s\n", l.Name, l.Address().Hex())
	return nil
}

// Update applies a partial update signed by the listing admin.
func (a *App) Update(ctx context.Context, opts UpdateOptions) error {
	admin, err := parseAddress("admin", opts.Admin)
	if err != nil {
		return err
	}

	svc, done, err := a.dialService(ctx)
	if err != nil {
		return err
	}
	defer done()

	req := service.UpdateRequest{
		Admin:    admin,
		Name:     opts.Name,
		ImageURL: opts.ImageURL,
		PriceUSD: opts.PriceUSD,
	}
	l, err := svc.Update(ctx, req, auth.NewSignerSet(admin), time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "listing %s updated: price_usd=%d image_url=%s\n", l.Name, l.PriceUSD, l.ImageURL)
	return nil
}

// Deactivate closes a listing signed by its admin.
func (a *App) Deactivate(ctx context.Context, opts DeactivateOptions) error {
	admin, err := parseAddress("admin", opts.Admin)
	if err != nil {
		return err
	}

	svc, done, err := a.dialService(ctx)
	if err != nil {
		return err
	}
	defer done()

	req := service.DeactivateRequest{Admin: admin, Name: opts.Name}
	l, err := svc.Deactivate(ctx, req, auth.NewSignerSet(admin), time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "listing %s deactivated\n", l.Name)
	return nil
}

// dialService opens the durable store and wires the instruction executor.
func (a *App) dialService(ctx context.Context) (*service.Service, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; set database.dsn")
	}

	svc, err := a.newService(store)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return svc, closeStore, nil
}
