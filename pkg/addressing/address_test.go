package addressing

import (
	"strings"
	"testing"
)

func TestMakeAddress_Shape(t *testing.T) {
	addr := MakeAddress(KindWallet, "somesighash")
	if len(addr) != 70 {
		t.Fatalf("address length = %d, want 70", len(addr))
	}
	if !strings.HasPrefix(addr, Namespace) {
		t.Errorf("address %q does not start with namespace %q", addr, Namespace)
	}
	if addr[6:10] != KindWallet {
		t.Errorf("kind = %q, want %q", addr[6:10], KindWallet)
	}
}

func TestMakeAddress_Pure(t *testing.T) {
	a1 := MakeAddress(KindAskOrder, "nonce-1")
	a2 := MakeAddress(KindAskOrder, "nonce-1")
	if a1 != a2 {
		t.Errorf("MakeAddress not pure: %q != %q", a1, a2)
	}
	a3 := MakeAddress(KindAskOrder, "nonce-2")
	if a1 == a3 {
		t.Errorf("different seeds collided: %q", a1)
	}
}

func TestCompressPublicKey_Uncompressed(t *testing.T) {
	// 0x04 || x(32) || y(32), y ends in an even byte -> 0x02 prefix.
	uncompressed := "04" + strings.Repeat("ab", 32) + strings.Repeat("cd", 31) + "ce"
	compressed, err := CompressPublicKey(uncompressed)
	if err != nil {
		t.Fatalf("CompressPublicKey: %v", err)
	}
	if !strings.HasPrefix(compressed, "02") {
		t.Errorf("expected 02 prefix for even y, got %q", compressed[:2])
	}
}

func TestCompressPublicKey_AlreadyCompressed(t *testing.T) {
	compressed := "03" + strings.Repeat("ab", 32)
	out, err := CompressPublicKey(compressed)
	if err != nil {
		t.Fatalf("CompressPublicKey: %v", err)
	}
	if out != compressed {
		t.Errorf("compressed key should pass through unchanged: got %q want %q", out, compressed)
	}
}

func TestCompressPublicKey_BadFormat(t *testing.T) {
	if _, err := CompressPublicKey("0102030405"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}

// TestSighash_Idempotence checks P4: compressed and uncompressed forms of
// the same key yield the same sighash.
func TestSighash_Idempotence(t *testing.T) {
	compressed := "02" + strings.Repeat("11", 32)
	// Build a fake uncompressed key that compresses back to `compressed`,
	// by choosing an even-last-byte y.
	uncompressed := "04" + strings.Repeat("11", 32) + strings.Repeat("22", 31) + "22"

	sh1, err := Sighash(compressed)
	if err != nil {
		t.Fatalf("Sighash(compressed): %v", err)
	}
	sh2, err := Sighash(uncompressed)
	if err != nil {
		t.Fatalf("Sighash(uncompressed): %v", err)
	}
	if sh1 != sh2 {
		t.Errorf("sighash mismatch: %q != %q", sh1, sh2)
	}
	if len(sh1) != 60 {
		t.Errorf("sighash length = %d, want 60", len(sh1))
	}
}
