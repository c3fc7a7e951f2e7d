package verbs

import (
	"math/big"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

// AddOffer pairs a compatible AskOrder and BidOrder: the ask's owner must be
// the signer, the bid's owner must not be, both must be on the same chain,
// unexpired, of equal amount, with ask.fee <= bid.fee and ask's
// interest/maturity ratio no better than the bid's (spec.md §4.5).
func (rt *Runtime) AddOffer(tc TxContext, askOrderID, bidOrderID, expiration string) error {
	exp, err := parseUintField(expiration)
	if err != nil {
		return err
	}

	ask, err := loadAskOrder(rt, askOrderID)
	if err != nil {
		return err
	}
	bid, err := loadBidOrder(rt, bidOrderID)
	if err != nil {
		return err
	}
	if ask.Sighash != tc.Sighash {
		return apperr.Invalid("signer does not own the ask order")
	}
	if bid.Sighash == tc.Sighash {
		return apperr.Invalid("signer cannot also own the bid order")
	}
	if isExpired(tc.Head, ask.Block, ask.Expiration) {
		return apperr.Invalid("ask order expired")
	}
	if isExpired(tc.Head, bid.Block, bid.Expiration) {
		return apperr.Invalid("bid order expired")
	}
	if ask.Blockchain != bid.Blockchain {
		return apperr.Invalid("ask and bid are on different blockchains")
	}
	askAddr, err := loadAddress(rt, ask.Address)
	if err != nil {
		return err
	}
	bidAddr, err := loadAddress(rt, bid.Address)
	if err != nil {
		return err
	}
	if askAddr.Network != bidAddr.Network {
		return apperr.Invalid("ask and bid are on different networks")
	}

	askAmount, _ := fees.ParseAmount(ask.Amount, false)
	bidAmount, _ := fees.ParseAmount(bid.Amount, false)
	if askAmount.Cmp(bidAmount) != 0 {
		return apperr.Invalid("ask and bid amounts differ")
	}
	askFee, _ := fees.ParseAmount(ask.Fee, false)
	bidFee, _ := fees.ParseAmount(bid.Fee, false)
	if askFee.Cmp(bidFee) > 0 {
		return apperr.Invalid("ask fee exceeds bid fee")
	}
	if !compatibleTerms(ask, bid) {
		return apperr.Invalid("ask interest/maturity terms exceed bid's")
	}

	id := addressing.MakeAddress(addressing.KindOffer, askOrderID+bidOrderID)
	if _, present, err := rt.Store.Get(id); err != nil {
		return apperr.InternalWrap(err, "read offer")
	} else if present {
		return apperr.Invalid("offer already exists")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	raw, err := model.Marshal(&model.Offer{
		Blockchain: ask.Blockchain, AskOrder: askOrderID, BidOrder: bidOrderID,
		Expiration: exp, Block: tc.Head, Sighash: tc.Sighash,
	})
	if err != nil {
		return apperr.InternalWrap(err, "encode offer")
	}
	if err := rt.Store.Put(id, raw); err != nil {
		return apperr.InternalWrap(err, "write offer")
	}
	if rt.Logger != nil {
		rt.Logger.Infow("add_offer", "id", id, "ask", askOrderID, "bid", bidOrderID)
	}
	return nil
}

// compatibleTerms checks ask.interest/ask.maturity <= bid.interest/bid.maturity
// using integer division, matching spec.md §4.5's literal "integer division" note.
func compatibleTerms(ask *model.AskOrder, bid *model.BidOrder) bool {
	askInterest, _ := fees.ParseAmount(ask.Interest, false)
	askMaturity, _ := fees.ParseAmount(ask.Maturity, false)
	bidInterest, _ := fees.ParseAmount(bid.Interest, false)
	bidMaturity, _ := fees.ParseAmount(bid.Maturity, false)
	if askMaturity.Sign() == 0 || bidMaturity.Sign() == 0 {
		return false
	}
	askRatio := new(big.Int).Quo(askInterest, askMaturity)
	bidRatio := new(big.Int).Quo(bidInterest, bidMaturity)
	return askRatio.Cmp(bidRatio) <= 0
}

func loadOffer(rt *Runtime, id string) (*model.Offer, error) {
	raw, present, err := rt.Store.Get(id)
	if err != nil {
		return nil, apperr.InternalWrap(err, "read offer")
	}
	if !present {
		return nil, apperr.Invalid("offer not found")
	}
	var o model.Offer
	if err := model.Unmarshal(raw, &o); err != nil {
		return nil, apperr.InternalWrap(err, "decode offer")
	}
	return &o, nil
}
