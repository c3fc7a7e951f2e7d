// Package addressing implements the SHA-512 based merkle address scheme
// that roots all processor state (spec.md §3, §4.1) and the public-key
// compression used to derive a signer's sighash (spec.md §4.2).
package addressing

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
)

// Kind codes for the 70-hex-digit merkle address, namespace(6) + kind(4) + id(60).
const (
	KindWallet              = "0000"
	KindAddress              = "1000"
	KindTransfer             = "2000"
	KindAskOrder             = "3000"
	KindBidOrder             = "4000"
	KindDealOrder            = "5000"
	KindRepaymentOrder       = "6000"
	KindOffer                = "7000"
	KindErc20Collect         = "8000"
	KindProcessedBlockMarker = "9000"
	KindFeeReceipt           = "0100"
)

// FamilyName is the transaction family name the processor registers under.
const FamilyName = "CREDITCOIN"

// Namespace is the 6-hex-digit prefix rooting all processor state:
// SHA512("CREDITCOIN")[0:6].
var Namespace = sha512Hex(FamilyName)[:6]

// SettingsNamespace is the 6-hex-digit prefix of the Sawtooth settings
// family, under which the chain-wide settings entries live (spec.md §4.3).
const SettingsNamespace = "000000"

// sha512Hex returns the lowercase hex encoding of SHA512(s).
func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SHA512id returns the last 60 hex characters (30 bytes) of SHA512(s), the
// identifier suffix used by every entity's merkle address.
func SHA512id(s string) string {
	full := sha512Hex(s)
	return full[len(full)-60:]
}

// MakeAddress builds the 70-hex-digit merkle address for (kind, seed).
// Pure in its inputs: the same (kind, seed) always yields the same address.
func MakeAddress(kind, seed string) string {
	return Namespace + kind + SHA512id(seed)
}

// IsOurs reports whether addr falls under this processor's namespace.
func IsOurs(addr string) bool {
	return len(addr) == 70 && strings.HasPrefix(addr, Namespace)
}

// KindOf extracts the 4-hex-digit kind code from a 70-hex-digit address
// known to be under this namespace. Callers must check IsOurs first.
func KindOf(addr string) string {
	return addr[6:10]
}

// ProcessedBlockMarkerAddress is the singleton key tracking the last block
// index for which rewards have been paid and expirations swept.
func ProcessedBlockMarkerAddress() string {
	return Namespace + KindProcessedBlockMarker + strings.Repeat("0", 60)
}

// AssertAddress panics if addr is not a well-formed 70-hex-digit merkle
// address. A malformed computed address is a programming bug, not a
// transaction-input failure (spec.md §7), so this is not an apperr.
func AssertAddress(addr string) {
	if len(addr) != 70 {
		panic("addressing: computed address has wrong length: " + addr)
	}
	if _, err := hex.DecodeString(addr); err != nil {
		panic("addressing: computed address is not hex: " + addr)
	}
}

// ValidateHexAmount rejects amounts that cannot parse as non-negative
// decimal integers, unless allowNegative is set (RegisterTransfer's gain).
func ValidateHexAmount(s string, allowNegative bool) error {
	if s == "" {
		return apperr.Invalid("empty numeric field")
	}
	start := 0
	if allowNegative && strings.HasPrefix(s, "-") {
		start = 1
	}
	if start == len(s) {
		return apperr.Invalid("invalid number: %q", s)
	}
	for _, r := range s[start:] {
		if r < '0' || r > '9' {
			return apperr.Invalid("invalid number: %q", s)
		}
	}
	return nil
}
