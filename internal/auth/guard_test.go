package auth

import (
	"errors"
	"testing"

	"listing-ledger/internal/ledger"
)

func TestRequireSigner(t *testing.T) {
	alice := ledger.DeriveAddress([]byte("alice"))
	bob := ledger.DeriveAddress([]byte("bob"))

	signers := NewSignerSet(alice)
	if err := RequireSigner(alice, signers); err != nil {
		t.Fatalf("签名者在集合中不应报错: %v", err)
	}
	if err := RequireSigner(bob, signers); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("缺少签名应返回 ErrUnauthorized, 实际 %v", err)
	}
	if err := RequireSigner(alice, NewSignerSet()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("空集合应返回 ErrUnauthorized, 实际 %v", err)
	}
}

func TestSignerSetContains(t *testing.T) {
	alice := ledger.DeriveAddress([]byte("alice"))
	set := NewSignerSet(alice)
	if !set.Contains(alice) {
		t.Fatal("集合应包含已加入的签名者")
	}
	if set.Contains(ledger.DeriveAddress([]byte("bob"))) {
		t.Fatal("集合不应包含未加入的签名者")
	}
}
