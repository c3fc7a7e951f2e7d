package verbs

import "math/big"

// interestScale is the fixed-point denominator interest rates are
// expressed against: an interest of 100000 means 10% (spec.md §4.5).
var interestScale = big.NewInt(1_000_000)

// CalcInterest computes amount * (1 + interest/10^6)^ticks via the explicit
// loop the legacy processor uses, so that rounding at each tick matches
// byte-for-byte (spec.md §4.5): total += total*interest/10^6, integer
// division applied at every step rather than once at the end.
func CalcInterest(amount *big.Int, ticks uint64, interest *big.Int) *big.Int {
	total := new(big.Int).Set(amount)
	tmp := new(big.Int)
	for i := uint64(0); i < ticks; i++ {
		tmp.Mul(total, interest)
		tmp.Quo(tmp, interestScale)
		total.Add(total, tmp)
	}
	return total
}

// Ticks computes ceil((head-loanBlock)/maturity), the number of compounding
// periods elapsed since a loan transfer landed at loanBlock.
func Ticks(head, loanBlock, maturity uint64) uint64 {
	if head <= loanBlock || maturity == 0 {
		return 0
	}
	elapsed := head - loanBlock
	return (elapsed + maturity - 1) / maturity
}
