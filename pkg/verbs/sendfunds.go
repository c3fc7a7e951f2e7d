package verbs

import (
	"math/big"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
)

// SendFunds transfers amount from the signer to dstSighash, charging
// TX_FEE in the same balance check (spec.md §4.5):
// src -= amount+TX_FEE; dst += amount; a fee receipt is written.
func (rt *Runtime) SendFunds(tc TxContext, amount, dstSighash string) error {
	if dstSighash == tc.Sighash {
		return apperr.Invalid("cannot send funds to self")
	}
	value, err := fees.ParseAmount(amount, false)
	if err != nil {
		return err
	}

	total := new(big.Int).Add(value, fees.TxFee)
	if err := fees.Debit(rt.Store, tc.Sighash, total); err != nil {
		return err
	}
	if err := fees.Credit(rt.Store, dstSighash, value); err != nil {
		return err
	}
	if err := fees.WriteReceipt(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("send_funds", "src", tc.Sighash, "dst", dstSighash, "amount", amount)
	}
	return nil
}
