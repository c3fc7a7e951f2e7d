// Package fees implements the per-transaction fee charge, fee-receipt
// bookkeeping and block-reward economics of spec.md §4.4.
package fees

import (
	"math/big"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

// TxFee is charged by every non-Housekeeping verb except CompleteDealOrder
// and CollectCoins, which have custom accounting.
var TxFee = pow10(16)

// YearOfBlocks is the window after which a fee receipt is refunded.
const YearOfBlocks = 60 * 24 * 365

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ParseAmount parses a non-negative (or, if allowNegative, possibly
// negative) base-10 amount string.
func ParseAmount(s string, allowNegative bool) (*big.Int, error) {
	if err := addressing.ValidateHexAmount(s, allowNegative); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, apperr.Invalid("invalid number: %q", s)
	}
	if !allowNegative && v.Sign() < 0 {
		return nil, apperr.Invalid("negative amount not allowed: %q", s)
	}
	return v, nil
}

// FormatAmount renders v as the canonical base-10 string used in state.
func FormatAmount(v *big.Int) string { return v.String() }

// LoadWallet reads the wallet for sighash, defaulting to a zero balance if
// none exists yet (a wallet is created on first credit).
func LoadWallet(acc *state.Accessor, sighash string) (*model.Wallet, string, *big.Int, error) {
	addr := addressing.MakeAddress(addressing.KindWallet, sighash)
	raw, present, err := acc.Get(addr)
	if err != nil {
		return nil, addr, nil, apperr.InternalWrap(err, "read wallet %s", sighash)
	}
	w := &model.Wallet{Amount: "0"}
	if present {
		if err := model.Unmarshal(raw, w); err != nil {
			return nil, addr, nil, apperr.InternalWrap(err, "decode wallet %s", sighash)
		}
	}
	amount, ok := new(big.Int).SetString(w.Amount, 10)
	if !ok {
		return nil, addr, nil, apperr.Internal("corrupt wallet amount for %s", sighash)
	}
	return w, addr, amount, nil
}

// SaveWallet writes amount back to the wallet at addr, enforcing invariant 1
// (non-negative balance) of spec.md §3.
func SaveWallet(acc *state.Accessor, addr string, amount *big.Int) error {
	if amount.Sign() < 0 {
		panic("fees: wallet amount went negative: " + amount.String())
	}
	raw, err := model.Marshal(&model.Wallet{Amount: FormatAmount(amount)})
	if err != nil {
		return apperr.InternalWrap(err, "encode wallet")
	}
	return acc.Put(addr, raw)
}

// Credit adds amount to sighash's wallet, creating it if absent.
func Credit(acc *state.Accessor, sighash string, amount *big.Int) error {
	_, addr, balance, err := LoadWallet(acc, sighash)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return SaveWallet(acc, addr, balance)
}

// Debit subtracts amount from sighash's wallet, failing if the wallet does
// not exist or the balance would go negative.
func Debit(acc *state.Accessor, sighash string, amount *big.Int) error {
	_, addr, balance, err := LoadWallet(acc, sighash)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return apperr.Invalid("Insufficient funds")
	}
	balance.Sub(balance, amount)
	return SaveWallet(acc, addr, balance)
}

// ChargeFee debits TX_FEE from sighash's wallet and writes a FeeReceipt
// keyed by txNonce, as every fee-charging verb does.
func ChargeFee(acc *state.Accessor, sighash, txNonce string, block uint64) error {
	if err := Debit(acc, sighash, TxFee); err != nil {
		return err
	}
	return WriteReceipt(acc, sighash, txNonce, block)
}

// WriteReceipt records that one TX_FEE has been charged to sighash, keyed
// by txNonce, without touching the wallet balance itself. Used by verbs
// (SendFunds, AddDealOrder, CompleteDealOrder) whose balance math folds
// TX_FEE into a larger debit/credit rather than charging it in isolation.
func WriteReceipt(acc *state.Accessor, sighash, txNonce string, block uint64) error {
	addr := addressing.MakeAddress(addressing.KindFeeReceipt, txNonce)
	raw, err := model.Marshal(&model.FeeReceipt{Sighash: sighash, Block: block})
	if err != nil {
		return apperr.InternalWrap(err, "encode fee receipt")
	}
	return acc.Put(addr, raw)
}

// RefundReceipt credits TX_FEE back to sighash's wallet and deletes the
// receipt at addr. Used by housekeeping once a receipt ages past
// YearOfBlocks.
func RefundReceipt(acc *state.Accessor, addr, sighash string) error {
	if err := Credit(acc, sighash, TxFee); err != nil {
		return err
	}
	return acc.Delete(addr)
}
