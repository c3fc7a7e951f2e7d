package verbs

import (
	"math/big"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

func loadDealOrder(rt *Runtime, id string) (*model.DealOrder, error) {
	raw, present, err := rt.Store.Get(id)
	if err != nil {
		return nil, apperr.InternalWrap(err, "read deal order")
	}
	if !present {
		return nil, apperr.Invalid("deal order not found")
	}
	var d model.DealOrder
	if err := model.Unmarshal(raw, &d); err != nil {
		return nil, apperr.InternalWrap(err, "decode deal order")
	}
	return &d, nil
}

func saveDealOrder(rt *Runtime, id string, d *model.DealOrder) error {
	raw, err := model.Marshal(d)
	if err != nil {
		return apperr.InternalWrap(err, "encode deal order")
	}
	return rt.Store.Put(id, raw)
}

// AddDealOrder consumes offerId: the signer must be the bid's owner, the
// offer must be unexpired. It charges (bid.fee + TX_FEE) in one debit,
// creates the DealOrder, and deletes the offer and both of its orders
// (spec.md §4.5).
func (rt *Runtime) AddDealOrder(tc TxContext, offerID, expiration string) error {
	exp, err := parseUintField(expiration)
	if err != nil {
		return err
	}

	offer, err := loadOffer(rt, offerID)
	if err != nil {
		return err
	}
	if isExpired(tc.Head, offer.Block, offer.Expiration) {
		return apperr.Invalid("offer expired")
	}
	ask, err := loadAskOrder(rt, offer.AskOrder)
	if err != nil {
		return err
	}
	bid, err := loadBidOrder(rt, offer.BidOrder)
	if err != nil {
		return err
	}
	if bid.Sighash != tc.Sighash {
		return apperr.Invalid("signer does not own the bid order")
	}

	id := addressing.MakeAddress(addressing.KindDealOrder, offerID)
	if _, present, err := rt.Store.Get(id); err != nil {
		return apperr.InternalWrap(err, "read deal order")
	} else if present {
		return apperr.Invalid("deal order already exists")
	}

	bidFee, err := fees.ParseAmount(bid.Fee, false)
	if err != nil {
		return err
	}
	charge := new(big.Int).Add(bidFee, fees.TxFee)
	if err := fees.Debit(rt.Store, tc.Sighash, charge); err != nil {
		return err
	}
	if err := fees.WriteReceipt(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	deal := &model.DealOrder{
		Blockchain: offer.Blockchain,
		SrcAddress: ask.Address, DstAddress: bid.Address,
		Amount: ask.Amount, Interest: ask.Interest, Maturity: ask.Maturity, Fee: bid.Fee,
		Expiration: exp, Block: tc.Head, Sighash: tc.Sighash,
	}
	if err := saveDealOrder(rt, id, deal); err != nil {
		return err
	}

	if err := rt.Store.Delete(offerID); err != nil {
		return apperr.InternalWrap(err, "delete offer")
	}
	if err := rt.Store.Delete(offer.AskOrder); err != nil {
		return apperr.InternalWrap(err, "delete ask order")
	}
	if err := rt.Store.Delete(offer.BidOrder); err != nil {
		return apperr.InternalWrap(err, "delete bid order")
	}
	if rt.Logger != nil {
		rt.Logger.Infow("add_deal_order", "id", id, "investor", tc.Sighash)
	}
	return nil
}

// CompleteDealOrder marks the deal funded: it requires the signer to own
// the deal's srcAddress (the fundraiser), a matching unprocessed Transfer,
// and an unexpired deal. Net accounting is deal.fee - TX_FEE credited to
// the fundraiser (custom accounting per spec.md §4.5); the deal's block is
// reset to the current head so maturity ticks count from disbursement.
func (rt *Runtime) CompleteDealOrder(tc TxContext, dealOrderID, transferID string) error {
	deal, err := loadDealOrder(rt, dealOrderID)
	if err != nil {
		return err
	}
	if isExpired(tc.Head, deal.Block, deal.Expiration) {
		return apperr.Invalid("deal order expired")
	}
	srcAddr, err := loadAddress(rt, deal.SrcAddress)
	if err != nil {
		return err
	}
	if srcAddr.Sighash != tc.Sighash {
		return apperr.Invalid("signer does not own the deal's source address")
	}
	if !deal.IsOpen() {
		return apperr.Invalid("deal order already completed")
	}

	transfer, err := loadTransfer(rt, transferID)
	if err != nil {
		return err
	}
	if transfer.Processed {
		return apperr.Invalid("transfer already processed")
	}
	if transfer.Order != dealOrderID {
		return apperr.Invalid("transfer does not match deal order")
	}
	amount, _ := fees.ParseAmount(deal.Amount, false)
	transferAmount, _ := fees.ParseAmount(transfer.Amount, false)
	if transferAmount.Cmp(amount) != 0 {
		return apperr.Invalid("transfer amount does not match deal amount")
	}
	if transfer.Sighash != tc.Sighash {
		return apperr.Invalid("transfer signer does not match deal signer")
	}

	dealFee, err := fees.ParseAmount(deal.Fee, false)
	if err != nil {
		return err
	}
	net := new(big.Int).Sub(dealFee, fees.TxFee)
	if net.Sign() >= 0 {
		if err := fees.Credit(rt.Store, tc.Sighash, net); err != nil {
			return err
		}
	} else {
		if err := fees.Debit(rt.Store, tc.Sighash, new(big.Int).Neg(net)); err != nil {
			return err
		}
	}
	if err := fees.WriteReceipt(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	transfer.Processed = true
	if err := saveTransfer(rt, transferID, transfer); err != nil {
		return err
	}
	deal.LoanTransfer = transferID
	deal.Block = tc.Head
	if err := saveDealOrder(rt, dealOrderID, deal); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("complete_deal_order", "id", dealOrderID, "transfer", transferID)
	}
	return nil
}

// LockDealOrder lets the deal's investor (sighash) take the repayment lock
// once a loan transfer is recorded.
func (rt *Runtime) LockDealOrder(tc TxContext, dealOrderID string) error {
	deal, err := loadDealOrder(rt, dealOrderID)
	if err != nil {
		return err
	}
	if deal.Sighash != tc.Sighash {
		return apperr.Invalid("signer does not own the deal order")
	}
	if deal.LoanTransfer == "" {
		return apperr.Invalid("deal order has no loan transfer")
	}
	if deal.Lock != "" {
		return apperr.Invalid("deal order already locked")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}
	deal.Lock = tc.Sighash
	if err := saveDealOrder(rt, dealOrderID, deal); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("lock_deal_order", "id", dealOrderID)
	}
	return nil
}

// CloseDealOrder records the repayment transfer once the lock-holder
// attests that enough was repaid to cover the compounded debt since the
// loan transfer landed (spec.md §4.5).
func (rt *Runtime) CloseDealOrder(tc TxContext, dealOrderID, transferID string) error {
	deal, err := loadDealOrder(rt, dealOrderID)
	if err != nil {
		return err
	}
	if deal.Sighash != tc.Sighash || deal.Lock != tc.Sighash {
		return apperr.Invalid("signer does not hold the deal order's lock")
	}
	if deal.LoanTransfer == "" {
		return apperr.Invalid("deal order has no loan transfer")
	}

	loanTransfer, err := loadTransfer(rt, deal.LoanTransfer)
	if err != nil {
		return err
	}
	transfer, err := loadTransfer(rt, transferID)
	if err != nil {
		return err
	}
	if transfer.Processed {
		return apperr.Invalid("transfer already processed")
	}
	if transfer.Order != dealOrderID {
		return apperr.Invalid("transfer does not match deal order")
	}

	amount, _ := fees.ParseAmount(deal.Amount, false)
	interest, _ := fees.ParseAmount(deal.Interest, false)
	maturity, err := fees.ParseAmount(deal.Maturity, false)
	if err != nil {
		return err
	}
	ticks := Ticks(tc.Head, loanTransfer.Block, maturity.Uint64())
	required := CalcInterest(amount, ticks, interest)

	repaid, _ := fees.ParseAmount(transfer.Amount, false)
	if repaid.Cmp(required) < 0 {
		return apperr.Invalid("repayment transfer does not cover compounded debt")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	transfer.Processed = true
	if err := saveTransfer(rt, transferID, transfer); err != nil {
		return err
	}
	deal.RepaymentTransfer = transferID
	if err := saveDealOrder(rt, dealOrderID, deal); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("close_deal_order", "id", dealOrderID, "transfer", transferID)
	}
	return nil
}

// Exempt lets the fundraiser (srcAddress owner) skip straight from
// completed to closed, recording transferID as the repayment transfer
// without the compound-interest check CloseDealOrder performs.
func (rt *Runtime) Exempt(tc TxContext, dealOrderID, transferID string) error {
	deal, err := loadDealOrder(rt, dealOrderID)
	if err != nil {
		return err
	}
	srcAddr, err := loadAddress(rt, deal.SrcAddress)
	if err != nil {
		return err
	}
	if srcAddr.Sighash != tc.Sighash {
		return apperr.Invalid("signer does not own the deal's source address")
	}
	if deal.RepaymentTransfer != "" {
		return apperr.Invalid("deal order already closed")
	}

	transfer, err := loadTransfer(rt, transferID)
	if err != nil {
		return err
	}
	if transfer.Processed {
		return apperr.Invalid("transfer already processed")
	}
	if transfer.Order != dealOrderID {
		return apperr.Invalid("transfer does not match deal order")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	transfer.Processed = true
	if err := saveTransfer(rt, transferID, transfer); err != nil {
		return err
	}
	deal.RepaymentTransfer = transferID
	if err := saveDealOrder(rt, dealOrderID, deal); err != nil {
		return err
	}
	if rt.Logger != nil {
		rt.Logger.Infow("exempt", "id", dealOrderID, "transfer", transferID)
	}
	return nil
}
