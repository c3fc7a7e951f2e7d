package verbs

import (
	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

// orderRef is the common shape RegisterTransfer needs from either a
// DealOrder or a RepaymentOrder: the two Address ids it moves funds
// between and the chain it was created on.
type orderRef struct {
	Blockchain string
	SrcAddress string
	DstAddress string
}

// loadOrderRef resolves orderID to a DealOrder or RepaymentOrder under this
// namespace, failing if it is neither.
func loadOrderRef(rt *Runtime, orderID string) (*orderRef, error) {
	if !addressing.IsOurs(orderID) {
		return nil, apperr.Invalid("order id is not a Creditcoin address")
	}
	switch addressing.KindOf(orderID) {
	case addressing.KindDealOrder:
		d, err := loadDealOrder(rt, orderID)
		if err != nil {
			return nil, err
		}
		return &orderRef{Blockchain: d.Blockchain, SrcAddress: d.SrcAddress, DstAddress: d.DstAddress}, nil
	case addressing.KindRepaymentOrder:
		r, err := loadRepaymentOrder(rt, orderID)
		if err != nil {
			return nil, err
		}
		return &orderRef{Blockchain: r.Blockchain, SrcAddress: r.SrcAddress, DstAddress: r.DstAddress}, nil
	default:
		return nil, apperr.Invalid("order id is neither a DealOrder nor a RepaymentOrder")
	}
}

// RegisterTransfer creates a Transfer attesting a foreign-chain movement of
// funds associated with orderId. gain may be negative (it records drift
// between the attested and nominal amount). The signer must own one of the
// order's two addresses, and the gateway must confirm the transfer unless
// blockchainTxId is the sentinel "0" (spec.md §4.5).
func (rt *Runtime) RegisterTransfer(tc TxContext, gain, orderID, blockchainTxID string) error {
	gainValue, err := fees.ParseAmount(gain, true)
	if err != nil {
		return err
	}

	ref, err := loadOrderRef(rt, orderID)
	if err != nil {
		return err
	}

	srcAddr, err := loadAddress(rt, ref.SrcAddress)
	if err != nil {
		return err
	}
	dstAddr, err := loadAddress(rt, ref.DstAddress)
	if err != nil {
		return err
	}
	if srcAddr.Blockchain != dstAddr.Blockchain || srcAddr.Network != dstAddr.Network {
		return apperr.Invalid("src/dst addresses are on different chains")
	}
	if srcAddr.Blockchain != ref.Blockchain {
		return apperr.Invalid("order blockchain does not match its addresses")
	}

	var owner *model.Address
	switch tc.Sighash {
	case srcAddr.Sighash:
		owner = srcAddr
	case dstAddr.Sighash:
		owner = dstAddr
	default:
		return apperr.Invalid("signer does not own either address referenced by the order")
	}

	transferID := addressing.MakeAddress(addressing.KindTransfer,
		owner.Blockchain+lower(blockchainTxID)+owner.Network)
	if _, present, err := rt.Store.Get(transferID); err != nil {
		return apperr.InternalWrap(err, "read transfer")
	} else if present {
		return apperr.Invalid("transfer already registered")
	}

	if blockchainTxID != "0" {
		if rt.Gateway == nil {
			return apperr.Internal("gateway not configured")
		}
		if err := rt.Gateway.VerifyTransfer(tc.Ctx, owner.Blockchain, ref.SrcAddress, ref.DstAddress,
			orderID, gainValue.String(), blockchainTxID, owner.Network); err != nil {
			return err
		}
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	raw, err := model.Marshal(&model.Transfer{
		Blockchain: owner.Blockchain,
		SrcAddress: ref.SrcAddress,
		DstAddress: ref.DstAddress,
		Order:      orderID,
		Amount:     gainValue.String(),
		Tx:         blockchainTxID,
		Block:      tc.Head,
		Processed:  false,
		Sighash:    tc.Sighash,
	})
	if err != nil {
		return apperr.InternalWrap(err, "encode transfer")
	}
	if err := rt.Store.Put(transferID, raw); err != nil {
		return apperr.InternalWrap(err, "write transfer")
	}
	if rt.Logger != nil {
		rt.Logger.Infow("register_transfer", "order", orderID, "tx", blockchainTxID, "sighash", tc.Sighash)
	}
	return nil
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func loadTransfer(rt *Runtime, transferID string) (*model.Transfer, error) {
	raw, present, err := rt.Store.Get(transferID)
	if err != nil {
		return nil, apperr.InternalWrap(err, "read transfer")
	}
	if !present {
		return nil, apperr.Invalid("transfer not found")
	}
	var tr model.Transfer
	if err := model.Unmarshal(raw, &tr); err != nil {
		return nil, apperr.InternalWrap(err, "decode transfer")
	}
	return &tr, nil
}

func saveTransfer(rt *Runtime, transferID string, tr *model.Transfer) error {
	raw, err := model.Marshal(tr)
	if err != nil {
		return apperr.InternalWrap(err, "encode transfer")
	}
	return rt.Store.Put(transferID, raw)
}
