package fees

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// RewardAmountPreUpdate1 is the flat per-block reward paid before the
// sawtooth.validator.update1 setting takes effect, or within 500 blocks
// after it (spec.md §4.4): 222 * 10^18.
var RewardAmountPreUpdate1 = new(big.Int).Mul(big.NewInt(222), pow10(18))

// BlocksInPeriodUpdate1 is the length, in blocks, of one reward period
// after update1; each period scales the reward by a further 19/20.
const BlocksInPeriodUpdate1 = 2_500_000

// RewardUpdate1Grace is how many blocks after update1 the flat reward still
// applies before the decaying formula takes over.
const RewardUpdate1Grace = 500

// NewFormulaActive reports whether the decaying post-update1 reward formula
// applies at decisionBlockIdx. The legacy processor's reward() decides this
// a single time per Housekeeping batch, from the batch's lower bound, and
// then applies that one decision to every block in the batch — it is not
// re-decided per rewarded block.
func NewFormulaActive(decisionBlockIdx, update1Block uint64, update1Active bool) bool {
	return update1Active && decisionBlockIdx >= update1Block+RewardUpdate1Grace
}

// BlockReward computes the reward paid to a block's signer for blockIdx,
// given whether update1 is active and, if so, at what block it activated.
// The pre/post-update1 formula switch is decided from blockIdx itself; for
// batches of more than one block, decide the switch once via
// NewFormulaActive and call BlockRewardWithFormula per block instead.
//
// Pre-update1 (or within RewardUpdate1Grace blocks after it): flat
// RewardAmountPreUpdate1.
//
// Post-update1: period = floor(blockIdx / BlocksInPeriodUpdate1);
// reward = 28 * roundToWei(19^period / 20^period), where the ratio is
// materialized as a base-10 string with 18 fractional digits exactly the
// way the legacy processor formatted float64 math, then reinterpreted as
// integer wei. This exact string dance must be reproduced byte-for-byte
// for replay determinism (spec.md §4.4, §9).
func BlockReward(blockIdx uint64, update1Block uint64, update1Active bool) *big.Int {
	return BlockRewardWithFormula(blockIdx, NewFormulaActive(blockIdx, update1Block, update1Active))
}

// BlockRewardWithFormula computes blockIdx's reward given a pre-decided
// newFormula switch (see NewFormulaActive), so a whole reward batch can
// share one switch decision while each block still gets its own period.
func BlockRewardWithFormula(blockIdx uint64, newFormula bool) *big.Int {
	if !newFormula {
		return new(big.Int).Set(RewardAmountPreUpdate1)
	}
	period := blockIdx / BlocksInPeriodUpdate1
	ratioWei := ratioToWei(period)
	return new(big.Int).Mul(big.NewInt(28), ratioWei)
}

// ratioToWei reproduces the legacy formatting of pow(19/20, period) as an
// IEEE-754 double through a C++ std::fixed ostringstream at the default
// stream precision of 6 digits, then zero-padded out to 18 fractional
// digits before being reinterpreted as an integer wei value. The 6-digit
// formatting step is not cosmetic: the legacy processor never calls
// setprecision, so the extra 12 digits of the double's true value are
// never part of the wire-visible string and must not leak into the wei
// amount.
func ratioToWei(period uint64) *big.Int {
	ratio := math.Pow(19.0/20.0, float64(period))
	// %.6f: fixed notation, 6 digits after the decimal point, matching
	// std::fixed's default precision in the legacy processor.
	formatted := fmt.Sprintf("%.6f", ratio)

	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	// Zero-pad the 6-digit fraction out to 18 digits.
	if len(fracPart) < 18 {
		fracPart += strings.Repeat("0", 18-len(fracPart))
	} else {
		fracPart = fracPart[:18]
	}
	digits := intPart + fracPart
	// Strip a single leading zero from the integer part's contribution
	// when intPart is "0", matching the legacy leading-zero-stripped
	// representation; big.Int parsing tolerates leading zeros regardless,
	// but the stripped form is kept for bit-for-bit fidelity with the
	// reference string manipulation.
	if intPart == "0" {
		digits = strings.TrimLeft(digits, "0")
		if digits == "" {
			digits = "0"
		}
	}
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return big.NewInt(0)
	}
	return wei
}
