package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"listing-ledger/internal/auth"
	"listing-ledger/internal/ledger"
	"listing-ledger/internal/listing"
	"listing-ledger/internal/oracle"
	"listing-ledger/internal/purchase"
	"listing-ledger/internal/receipt"
	"listing-ledger/internal/service"
)

// SimulateBuy 通过给定的报价在内存中模拟一次完整的购买流程, 不触碰数据库。
func (a *App) SimulateBuy(ctx context.Context, opts SimulateBuyOptions) error {
	if opts.PriceUSD == 0 {
		return fmt.Errorf("price-usd 必须大于 0")
	}
	price := decimal.NewFromFloat(opts.OraclePrice)
	if !price.IsPositive() {
		return fmt.Errorf("oracle-price 必须大于 0")
	}

	reader, err := a.newOracleReader()
	if err != nil {
		return err
	}

	book := ledger.NewLedger()
	listings := listing.NewMemoryStore()
	receipts := receipt.NewMemoryStore()
	settler := purchase.NewMemorySettler(book, receipts)
	engine := purchase.NewEngine(settler, a.Logger)
	svc := service.New(listings, receipts, reader, engine, nil, a.Logger)

	now := time.Now().UTC()
	admin := ledger.DeriveAddress([]byte("simulated-admin"))
	buyer := ledger.DeriveAddress([]byte("simulated-buyer"))

	l, err := svc.Initialize(ctx, service.InitializeRequest{
		Admin:    admin,
		Name:     "simulated-product",
		PriceUSD: opts.PriceUSD,
	}, auth.NewSignerSet(admin), now)
	if err != nil {
		return err
	}

	feed, err := oracle.ParseFeedID(a.Config.Oracle.FeedID)
	if err != nil {
		return err
	}

	// 先估算所需余额再充值, 让模拟购买刚好能够成交。
	required, err := purchase.RequiredNative(opts.PriceUSD, syntheticPrice(feed, price, now))
	if err != nil {
		return err
	}
	if err := book.Credit(buyer, required); err != nil {
		return err
	}

	attestation, err := syntheticAttestation(a.Config.Oracle.FeedID, price, now)
	if err != nil {
		return err
	}

	rec, err := svc.Buy(ctx, service.BuyRequest{
		Buyer:       buyer,
		Seller:      admin,
		ProductName: l.Name,
		Seed:        ledger.DeriveAddress([]byte("simulated-seed")),
		Attestation: attestation,
	}, auth.NewSignerSet(buyer), now)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "price_usd=%d cents at %s per whole unit -> %d native base units\n",
		opts.PriceUSD, price.String(), rec.PricePaidNative)
	fmt.Fprintf(os.Stdout, "receipt %s, seller balance %d\n", rec.Address().Hex(), book.Balance(admin))
	return nil
}

const syntheticExpo = -8

func syntheticPrice(feed oracle.FeedID, price decimal.Decimal, now time.Time) oracle.Price {
	scaled := price.Shift(-syntheticExpo).Truncate(0)
	return oracle.Price{Feed: feed, Price: scaled.IntPart(), Expo: syntheticExpo, PublishTime: now}
}

// syntheticAttestation 构造一份与线上喂价格式一致的 JSON 报文。
func syntheticAttestation(feedID string, price decimal.Decimal, now time.Time) ([]byte, error) {
	scaled := price.Shift(-syntheticExpo).Truncate(0)
	payload := map[string]any{
		"id": feedID,
		"price": map[string]any{
			"price":        scaled.String(),
			"conf":         "0",
			"expo":         syntheticExpo,
			"publish_time": now.Unix(),
		},
	}
	return json.Marshal(payload)
}
