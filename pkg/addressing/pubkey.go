package addressing

import (
	"encoding/hex"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
)

// CompressPublicKey normalizes a hex-encoded secp256k1 public key to its
// 33-byte compressed form (spec.md §4.2). Accepts either:
//   - 33 bytes, leading 0x02/0x03 (already compressed): returned as-is.
//   - 65 bytes, leading 0x04 + x + y (uncompressed): compressed by
//     selecting 0x02 (y even) or 0x03 (y odd) based on the last byte of y.
//
// Any other length/prefix fails with InvalidTransaction.
func CompressPublicKey(hexKey string) (string, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", apperr.InvalidWrap(err, "public key is not valid hex")
	}
	switch {
	case len(raw) == 33 && (raw[0] == 0x02 || raw[0] == 0x03):
		return hexLower(raw), nil
	case len(raw) == 65 && raw[0] == 0x04:
		x := raw[1:33]
		y := raw[33:65]
		prefix := byte(0x02)
		if y[len(y)-1]%2 == 1 {
			prefix = 0x03
		}
		out := make([]byte, 0, 33)
		out = append(out, prefix)
		out = append(out, x...)
		return hexLower(out), nil
	default:
		return "", apperr.Invalid("Unexpected public key format")
	}
}

func hexLower(b []byte) string { return hex.EncodeToString(b) }

// Sighash derives the stable 60-hex-digit identity of a signer from their
// (possibly uncompressed) public key: SHA512id(hexCompressedKey).
func Sighash(hexPublicKey string) (string, error) {
	compressed, err := CompressPublicKey(hexPublicKey)
	if err != nil {
		return "", err
	}
	return SHA512id(compressed), nil
}
