package verbs

import (
	"testing"

	"github.com/creditcoin-project/ccprocessor/pkg/fees"
)

func TestRegisterAddress_CreatesAddressAndChargesFee(t *testing.T) {
	rt, _ := newRuntime(t)
	if err := fees.Credit(rt.Store, "alice", fees.TxFee); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	tc := TxContext{Sighash: "alice", Nonce: "tx1", Head: 10}
	if err := rt.RegisterAddress(tc, "ethereum", "0xABC", "mainnet"); err != nil {
		t.Fatalf("register address: %v", err)
	}

	id := AddressID("ethereum", "0xABC", "mainnet")
	addr, err := loadAddress(rt, id)
	if err != nil {
		t.Fatalf("load address: %v", err)
	}
	if addr.Sighash != "alice" || addr.Value != "0xABC" {
		t.Fatalf("unexpected address record: %+v", addr)
	}
	_, _, bal, err := fees.LoadWallet(rt.Store, "alice")
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("expected TX_FEE to be charged, balance=%s", bal.String())
	}
}

func TestRegisterAddress_RejectsDuplicate(t *testing.T) {
	rt, _ := newRuntime(t)
	if err := fees.Credit(rt.Store, "alice", bigFromString("100000000000000000")); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	tc := TxContext{Sighash: "alice", Nonce: "tx1", Head: 10}
	if err := rt.RegisterAddress(tc, "ethereum", "0xABC", "mainnet"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	tc2 := TxContext{Sighash: "bob", Nonce: "tx2", Head: 11}
	if err := rt.RegisterAddress(tc2, "ethereum", "0xABC", "mainnet"); err == nil {
		t.Fatalf("expected duplicate address registration to fail")
	}
}

func TestAddressID_IsCaseInsensitiveOnValue(t *testing.T) {
	if AddressID("ethereum", "0xABC", "mainnet") != AddressID("ethereum", "0xabc", "mainnet") {
		t.Fatalf("expected address id to be case-insensitive on the address string")
	}
}
