package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"listing-ledger/internal/auth"
	"listing-ledger/internal/ledger"
	"listing-ledger/internal/listing"
	"listing-ledger/internal/oracle"
	"listing-ledger/internal/purchase"
	"listing-ledger/internal/receipt"
)

var testFeed = oracle.FeedID{0xef, 0x0d}

type harness struct {
	svc  *Service
	book *ledger.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	book := ledger.NewLedger()
	listings := listing.NewMemoryStore()
	receipts := receipt.NewMemoryStore()
	reader := oracle.NewReader(oracle.ReaderOptions{
		ExpectedFeed:       testFeed,
		MaxAge:             30 * time.Second,
		MaxConfidenceRatio: decimal.NewFromFloat(0.02),
	}, zerolog.Nop())
	engine := purchase.NewEngine(purchase.NewMemorySettler(book, receipts), zerolog.Nop())
	return &harness{
		svc:  New(listings, receipts, reader, engine, nil, zerolog.Nop()),
		book: book,
	}
}

func attestation(t *testing.T, price string, publish time.Time) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id": testFeed.Hex(),
		"price": map[string]any{
			"price":        price,
			"conf":         "0",
			"expo":         -8,
			"publish_time": publish.Unix(),
		},
	})
	if err != nil {
		t.Fatalf("构造测试报文失败: %v", err)
	}
	return raw
}

func TestInitializeBuyFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	admin := ledger.DeriveAddress([]byte("seller"))
	buyer := ledger.DeriveAddress([]byte("buyer"))

	l, err := h.svc.Initialize(ctx, InitializeRequest{
		Admin:    admin,
		Name:     "widget",
		ImageURL: "https://img.example/widget.png",
		PriceUSD: 100,
	}, auth.NewSignerSet(admin), now)
	if err != nil {
		t.Fatalf("创建 listing 应成功: %v", err)
	}

	if err := h.book.Credit(buyer, 10_000_000); err != nil {
		t.Fatalf("充值失败: %v", err)
	}

	rec, err := h.svc.Buy(ctx, BuyRequest{
		Buyer:       buyer,
		Seller:      admin,
		ProductName: "widget",
		Seed:        ledger.DeriveAddress([]byte("seed")),
		Attestation: attestation(t, "15000000000", now),
	}, auth.NewSignerSet(buyer), now)
	if err != nil {
		t.Fatalf("购买应成功: %v", err)
	}
	if rec.PricePaidNative != 6_666_667 {
		t.Fatalf("$1 在 $150/币 时应收 6666667, 实际 %d", rec.PricePaidNative)
	}
	if h.book.Balance(l.Treasury) != 6_666_667 {
		t.Fatalf("国库余额不正确: %d", h.book.Balance(l.Treasury))
	}

	got, err := h.svc.GetListing(ctx, admin, "widget")
	if err != nil {
		t.Fatalf("读取 listing 应成功: %v", err)
	}
	if !got.IsActive {
		t.Fatal("购买不应改变 listing 状态")
	}
}

func TestInitializeRequiresAdminSignature(t *testing.T) {
	h := newHarness(t)
	admin := ledger.DeriveAddress([]byte("seller"))
	other := ledger.DeriveAddress([]byte("other"))

	_, err := h.svc.Initialize(context.Background(), InitializeRequest{
		Admin: admin, Name: "widget", PriceUSD: 100,
	}, auth.NewSignerSet(other), time.Now().UTC())
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("缺少 admin 签名应返回 ErrUnauthorized, 实际 %v", err)
	}
}

func TestInitializeDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	admin := ledger.DeriveAddress([]byte("seller"))
	req := InitializeRequest{Admin: admin, Name: "widget", PriceUSD: 100}

	if _, err := h.svc.Initialize(ctx, req, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("首次创建应成功: %v", err)
	}
	// 改价重建也应失败: (admin, name) 派生地址相同
	req.PriceUSD = 999
	if _, err := h.svc.Initialize(ctx, req, auth.NewSignerSet(admin), now); !errors.Is(err, listing.ErrAlreadyExists) {
		t.Fatalf("重复创建应返回 ErrAlreadyExists, 实际 %v", err)
	}
}

func TestUpdateRejectsNonAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	admin := ledger.DeriveAddress([]byte("seller"))
	intruder := ledger.DeriveAddress([]byte("intruder"))

	if _, err := h.svc.Initialize(ctx, InitializeRequest{Admin: admin, Name: "widget", PriceUSD: 100}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("创建应成功: %v", err)
	}

	price := uint64(1)
	_, err := h.svc.Update(ctx, UpdateRequest{Admin: admin, Name: "widget", PriceUSD: &price}, auth.NewSignerSet(intruder), now)
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("非 admin 更新应返回 ErrUnauthorized, 实际 %v", err)
	}

	got, err := h.svc.GetListing(ctx, admin, "widget")
	if err != nil {
		t.Fatalf("读取应成功: %v", err)
	}
	if got.PriceUSD != 100 {
		t.Fatal("被拒绝的更新不应改变价格")
	}
}

func TestDeactivateThenBuy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	admin := ledger.DeriveAddress([]byte("seller"))
	buyer := ledger.DeriveAddress([]byte("buyer"))

	if _, err := h.svc.Initialize(ctx, InitializeRequest{Admin: admin, Name: "widget", PriceUSD: 100}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("创建应成功: %v", err)
	}
	if _, err := h.svc.Deactivate(ctx, DeactivateRequest{Admin: admin, Name: "widget"}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("下架应成功: %v", err)
	}
	// 再次下架为幂等操作
	if _, err := h.svc.Deactivate(ctx, DeactivateRequest{Admin: admin, Name: "widget"}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("重复下架应成功: %v", err)
	}

	if err := h.book.Credit(buyer, 10_000_000); err != nil {
		t.Fatalf("充值失败: %v", err)
	}
	_, err := h.svc.Buy(ctx, BuyRequest{
		Buyer:       buyer,
		Seller:      admin,
		ProductName: "widget",
		Seed:        ledger.DeriveAddress([]byte("seed")),
		Attestation: attestation(t, "15000000000", now),
	}, auth.NewSignerSet(buyer), now)
	if !errors.Is(err, purchase.ErrListingClosed) {
		t.Fatalf("已下架应返回 ErrListingClosed, 实际 %v", err)
	}
	if h.book.Balance(buyer) != 10_000_000 {
		t.Fatal("被拒绝的购买不应扣款")
	}
}

func TestBuyClosedListingSkipsOracle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	admin := ledger.DeriveAddress([]byte("seller"))
	buyer := ledger.DeriveAddress([]byte("buyer"))

	if _, err := h.svc.Initialize(ctx, InitializeRequest{Admin: admin, Name: "widget", PriceUSD: 100}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("创建应成功: %v", err)
	}
	if _, err := h.svc.Deactivate(ctx, DeactivateRequest{Admin: admin, Name: "widget"}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("下架应成功: %v", err)
	}

	// 报文本身非法, 但下架检查应先行命中
	_, err := h.svc.Buy(ctx, BuyRequest{
		Buyer:       buyer,
		Seller:      admin,
		ProductName: "widget",
		Seed:        ledger.DeriveAddress([]byte("seed")),
		Attestation: []byte("garbage"),
	}, auth.NewSignerSet(buyer), now)
	if !errors.Is(err, purchase.ErrListingClosed) {
		t.Fatalf("应在校验报文之前拒绝, 实际 %v", err)
	}
}

func TestBuyStaleAttestation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	admin := ledger.DeriveAddress([]byte("seller"))
	buyer := ledger.DeriveAddress([]byte("buyer"))

	if _, err := h.svc.Initialize(ctx, InitializeRequest{Admin: admin, Name: "widget", PriceUSD: 100}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("创建应成功: %v", err)
	}
	if err := h.book.Credit(buyer, 10_000_000); err != nil {
		t.Fatalf("充值失败: %v", err)
	}

	_, err := h.svc.Buy(ctx, BuyRequest{
		Buyer:       buyer,
		Seller:      admin,
		ProductName: "widget",
		Seed:        ledger.DeriveAddress([]byte("seed")),
		Attestation: attestation(t, "15000000000", now.Add(-time.Minute)),
	}, auth.NewSignerSet(buyer), now)
	if !errors.Is(err, oracle.ErrStale) {
		t.Fatalf("过期报文应返回 ErrStale, 实际 %v", err)
	}
}

func TestBuyRequiresBuyerSignature(t *testing.T) {
	h := newHarness(t)
	buyer := ledger.DeriveAddress([]byte("buyer"))
	_, err := h.svc.Buy(context.Background(), BuyRequest{
		Buyer:       buyer,
		Seller:      ledger.DeriveAddress([]byte("seller")),
		ProductName: "widget",
	}, auth.NewSignerSet(), time.Now().UTC())
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("缺少买家签名应返回 ErrUnauthorized, 实际 %v", err)
	}
}

func TestConcurrentBuysSameListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()
	admin := ledger.DeriveAddress([]byte("seller"))

	if _, err := h.svc.Initialize(ctx, InitializeRequest{Admin: admin, Name: "widget", PriceUSD: 100}, auth.NewSignerSet(admin), now); err != nil {
		t.Fatalf("创建应成功: %v", err)
	}

	const buyers = 8
	att := attestation(t, "15000000000", now)
	var wg sync.WaitGroup
	errCh := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		buyer := ledger.DeriveAddress([]byte{byte(i)})
		if err := h.book.Credit(buyer, 6_666_667); err != nil {
			t.Fatalf("充值失败: %v", err)
		}
		wg.Add(1)
		go func(buyer ledger.Address) {
			defer wg.Done()
			_, err := h.svc.Buy(ctx, BuyRequest{
				Buyer:       buyer,
				Seller:      admin,
				ProductName: "widget",
				Seed:        ledger.DeriveAddress(buyer.Bytes(), []byte("seed")),
				Attestation: att,
			}, auth.NewSignerSet(buyer), now)
			errCh <- err
		}(buyer)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("并发购买应全部成功: %v", err)
		}
	}
	if h.book.Balance(admin) != 6_666_667*buyers {
		t.Fatalf("国库应收满 %d, 实际 %d", uint64(6_666_667*buyers), h.book.Balance(admin))
	}

	receipts, err := h.svc.ListReceipts(ctx, buyers+1)
	if err != nil {
		t.Fatalf("列出回执应成功: %v", err)
	}
	if len(receipts) != buyers {
		t.Fatalf("应有 %d 张回执, 实际 %d", buyers, len(receipts))
	}
}
