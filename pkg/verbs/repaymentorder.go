package verbs

import (
	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

func loadRepaymentOrder(rt *Runtime, id string) (*model.RepaymentOrder, error) {
	raw, present, err := rt.Store.Get(id)
	if err != nil {
		return nil, apperr.InternalWrap(err, "read repayment order")
	}
	if !present {
		return nil, apperr.Invalid("repayment order not found")
	}
	var r model.RepaymentOrder
	if err := model.Unmarshal(raw, &r); err != nil {
		return nil, apperr.InternalWrap(err, "decode repayment order")
	}
	return &r, nil
}

func saveRepaymentOrder(rt *Runtime, id string, r *model.RepaymentOrder) error {
	raw, err := model.Marshal(r)
	if err != nil {
		return apperr.InternalWrap(err, "encode repayment order")
	}
	return rt.Store.Put(id, raw)
}

// AddRepaymentOrder lets a third-party collector offer to take over a
// completed deal's repayment. The signer must be neither the fundraiser
// nor the investor, the deal must be in the completed state, and addressID
// must be on the same chain/network as the deal but a different address
// value (spec.md §4.5).
func (rt *Runtime) AddRepaymentOrder(tc TxContext, dealOrderID, addressID, amount, expiration string) error {
	amt, err := fees.ParseAmount(amount, false)
	if err != nil {
		return err
	}
	exp, err := parseUintField(expiration)
	if err != nil {
		return err
	}

	deal, err := loadDealOrder(rt, dealOrderID)
	if err != nil {
		return err
	}
	if !deal.IsCompleted() {
		return apperr.Invalid("deal order is not in the completed state")
	}
	srcAddr, err := loadAddress(rt, deal.SrcAddress)
	if err != nil {
		return err
	}
	if tc.Sighash == srcAddr.Sighash || tc.Sighash == deal.Sighash {
		return apperr.Invalid("signer must be neither the fundraiser nor the investor")
	}

	newAddr, err := requireOwnedAddress(rt, tc, addressID)
	if err != nil {
		return err
	}
	if newAddr.Blockchain != srcAddr.Blockchain || newAddr.Network != srcAddr.Network {
		return apperr.Invalid("repayment address is on a different chain/network than the deal")
	}
	if newAddr.Value == srcAddr.Value {
		return apperr.Invalid("repayment address must differ from the deal's current source address")
	}

	id := addressing.MakeAddress(addressing.KindRepaymentOrder, tc.Nonce)
	if _, present, err := rt.Store.Get(id); err != nil {
		return apperr.InternalWrap(err, "read repayment order")
	} else if present {
		return apperr.Invalid("repayment order already exists")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	r := &model.RepaymentOrder{
		Blockchain: newAddr.Blockchain, SrcAddress: addressID, DstAddress: deal.SrcAddress,
		Amount: amt.String(), Expiration: exp, Block: tc.Head, Deal: dealOrderID, Sighash: tc.Sighash,
	}
	if err := saveRepaymentOrder(rt, id, r); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("add_repayment_order", "id", id, "deal", dealOrderID)
	}
	return nil
}

// CompleteRepaymentOrder lets the repayment order's investor (the owner of
// its DstAddress) take the deal's repayment lock.
func (rt *Runtime) CompleteRepaymentOrder(tc TxContext, repaymentOrderID string) error {
	r, err := loadRepaymentOrder(rt, repaymentOrderID)
	if err != nil {
		return err
	}
	dstAddr, err := loadAddress(rt, r.DstAddress)
	if err != nil {
		return err
	}
	if dstAddr.Sighash != tc.Sighash {
		return apperr.Invalid("signer is not the repayment order's investor")
	}

	deal, err := loadDealOrder(rt, r.Deal)
	if err != nil {
		return err
	}
	if deal.Lock != "" {
		return apperr.Invalid("deal order is already locked")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	r.PreviousOwner = tc.Sighash
	if err := saveRepaymentOrder(rt, repaymentOrderID, r); err != nil {
		return err
	}
	deal.Lock = tc.Sighash
	if err := saveDealOrder(rt, r.Deal, deal); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("complete_repayment_order", "id", repaymentOrderID)
	}
	return nil
}

// CloseRepaymentOrder lets the repayment order's collector attest a
// transfer that moves the deal's ownership to the order's new source
// address, releasing the lock.
func (rt *Runtime) CloseRepaymentOrder(tc TxContext, repaymentOrderID, transferID string) error {
	r, err := loadRepaymentOrder(rt, repaymentOrderID)
	if err != nil {
		return err
	}
	if r.Sighash != tc.Sighash {
		return apperr.Invalid("signer is not the repayment order's collector")
	}

	deal, err := loadDealOrder(rt, r.Deal)
	if err != nil {
		return err
	}
	curSrcAddr, err := loadAddress(rt, deal.SrcAddress)
	if err != nil {
		return err
	}
	if deal.Lock != curSrcAddr.Sighash {
		return apperr.Invalid("deal order's lock does not match its current source address owner")
	}

	transfer, err := loadTransfer(rt, transferID)
	if err != nil {
		return err
	}
	if transfer.Processed {
		return apperr.Invalid("transfer already processed")
	}
	if transfer.Order != repaymentOrderID {
		return apperr.Invalid("transfer does not match repayment order")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	transfer.Processed = true
	if err := saveTransfer(rt, transferID, transfer); err != nil {
		return err
	}
	deal.SrcAddress = r.SrcAddress
	deal.Lock = ""
	if err := saveDealOrder(rt, r.Deal, deal); err != nil {
		return err
	}
	r.Transfer = transferID
	if err := saveRepaymentOrder(rt, repaymentOrderID, r); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("close_repayment_order", "id", repaymentOrderID, "transfer", transferID)
	}
	return nil
}
