package ledger

import (
	"errors"
	"testing"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	a := DeriveAddress([]byte("one"), []byte("two"))
	b := DeriveAddress([]byte("one"), []byte("two"))
	if a != b {
		t.Fatal("相同 seed 应得到相同地址")
	}
}

func TestDeriveAddressLengthPrefixed(t *testing.T) {
	// 长度前缀保证 ("ab","c") 与 ("a","bc") 不碰撞
	a := DeriveAddress([]byte("ab"), []byte("c"))
	b := DeriveAddress([]byte("a"), []byte("bc"))
	if a == b {
		t.Fatal("不同的 seed 切分不应得到相同地址")
	}
}

func TestListingAddressDependsOnAdminAndName(t *testing.T) {
	admin := DeriveAddress([]byte("admin"))
	other := DeriveAddress([]byte("other"))

	if ListingAddress(admin, "widget") != ListingAddress(admin, "widget") {
		t.Fatal("同一 (admin, name) 应得到同一地址")
	}
	if ListingAddress(admin, "widget") == ListingAddress(other, "widget") {
		t.Fatal("不同 admin 应得到不同地址")
	}
	if ListingAddress(admin, "widget") == ListingAddress(admin, "gadget") {
		t.Fatal("不同 name 应得到不同地址")
	}
}

func TestReceiptAddressDependsOnSeed(t *testing.T) {
	buyer := DeriveAddress([]byte("buyer"))
	product := DeriveAddress([]byte("product"))
	if ReceiptAddress(buyer, product, Address{1}) == ReceiptAddress(buyer, product, Address{2}) {
		t.Fatal("不同 seed 应得到不同回执地址")
	}
}

func TestParseAddressRoundTrip(t *testing.T) {
	a := DeriveAddress([]byte("roundtrip"))
	parsed, err := ParseAddress(a.Hex())
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if parsed != a {
		t.Fatal("Hex/Parse 应往返一致")
	}

	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatal("长度不足应报错")
	}
	if _, err := ParseAddress("not-hex"); err == nil {
		t.Fatal("非 hex 应报错")
	}
}

func TestTransfer(t *testing.T) {
	l := NewLedger()
	from := DeriveAddress([]byte("from"))
	to := DeriveAddress([]byte("to"))

	if err := l.Credit(from, 100); err != nil {
		t.Fatalf("充值失败: %v", err)
	}
	if err := l.Transfer(from, to, 60); err != nil {
		t.Fatalf("转账应成功: %v", err)
	}
	if l.Balance(from) != 40 || l.Balance(to) != 60 {
		t.Fatalf("余额不正确: from=%d to=%d", l.Balance(from), l.Balance(to))
	}

	if err := l.Transfer(from, to, 41); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("余额不足应返回 ErrInsufficientFunds, 实际 %v", err)
	}
	if l.Balance(from) != 40 || l.Balance(to) != 60 {
		t.Fatal("失败的转账不应改变任何余额")
	}
}

func TestCreditOverflow(t *testing.T) {
	l := NewLedger()
	account := DeriveAddress([]byte("rich"))
	if err := l.Credit(account, ^uint64(0)); err != nil {
		t.Fatalf("首次充值失败: %v", err)
	}
	if err := l.Credit(account, 1); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("溢出应返回 ErrAmountOverflow, 实际 %v", err)
	}
}

func TestLockKeyStable(t *testing.T) {
	a := DeriveAddress([]byte("locked"))
	if LockKey(a) != LockKey(a) {
		t.Fatal("同一地址的锁键应稳定")
	}
}
