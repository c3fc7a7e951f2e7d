package verbs

import (
	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

// CollectCoins credits a gateway-attested ERC20 mint to the signer's
// wallet. It does not charge TX_FEE (spec.md §4.5) and guards against
// double-collection of the same blockchainTxId via a marker entry.
func (rt *Runtime) CollectCoins(tc TxContext, ethAddress, amount, blockchainTxID string) error {
	value, err := fees.ParseAmount(amount, false)
	if err != nil {
		return err
	}

	markerID := addressing.MakeAddress(addressing.KindErc20Collect, blockchainTxID)
	if _, present, err := rt.Store.Get(markerID); err != nil {
		return apperr.InternalWrap(err, "read erc20 marker")
	} else if present {
		return apperr.Invalid("blockchain transaction already collected")
	}

	if rt.Gateway == nil {
		return apperr.Internal("gateway not configured")
	}
	if err := rt.Gateway.VerifyErc20Collect(tc.Ctx, ethAddress, tc.Sighash, amount, blockchainTxID); err != nil {
		return err
	}

	if err := fees.Credit(rt.Store, tc.Sighash, value); err != nil {
		return err
	}

	raw, err := model.Marshal(&model.Erc20CollectMarker{Amount: value.String()})
	if err != nil {
		return apperr.InternalWrap(err, "encode erc20 marker")
	}
	if err := rt.Store.Put(markerID, raw); err != nil {
		return apperr.InternalWrap(err, "write erc20 marker")
	}
	if rt.Logger != nil {
		rt.Logger.Infow("collect_coins", "sighash", tc.Sighash, "amount", amount, "tx", blockchainTxID)
	}
	return nil
}
