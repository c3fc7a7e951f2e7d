package verbs

import (
	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

// orderParams is the shared positional shape of AddAskOrder/AddBidOrder.
type orderParams struct {
	AddressID  string
	Amount     string
	Interest   string
	Maturity   string
	Fee        string
	Expiration uint64
}

func parseOrderParams(addressID, amount, interest, maturity, fee, expiration string) (*orderParams, error) {
	for _, n := range []string{amount, interest, maturity, fee} {
		if _, err := fees.ParseAmount(n, false); err != nil {
			return nil, err
		}
	}
	exp, err := parseUintField(expiration)
	if err != nil {
		return nil, err
	}
	return &orderParams{AddressID: addressID, Amount: amount, Interest: interest, Maturity: maturity, Fee: fee, Expiration: exp}, nil
}

func parseUintField(s string) (uint64, error) {
	if err := addressing.ValidateHexAmount(s, false); err != nil {
		return 0, err
	}
	v, err := parseUint(s)
	if err != nil {
		return 0, apperr.Invalid("invalid number: %q", s)
	}
	return v, nil
}

func parseUint(s string) (uint64, error) {
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, apperr.Invalid("invalid number: %q", s)
		}
		v = v*10 + uint64(r-'0')
	}
	return v, nil
}

func requireOwnedAddress(rt *Runtime, tc TxContext, addressID string) (*model.Address, error) {
	addr, err := loadAddress(rt, addressID)
	if err != nil {
		return nil, err
	}
	if addr.Sighash != tc.Sighash {
		return nil, apperr.Invalid("address is not owned by signer")
	}
	return addr, nil
}

// AddAskOrder posts a fundraiser's request to borrow against addressID.
func (rt *Runtime) AddAskOrder(tc TxContext, addressID, amount, interest, maturity, fee, expiration string) error {
	return rt.addOrder(tc, addressing.KindAskOrder, addressID, amount, interest, maturity, fee, expiration)
}

// AddBidOrder posts an investor's offer to lend against addressID.
func (rt *Runtime) AddBidOrder(tc TxContext, addressID, amount, interest, maturity, fee, expiration string) error {
	return rt.addOrder(tc, addressing.KindBidOrder, addressID, amount, interest, maturity, fee, expiration)
}

func (rt *Runtime) addOrder(tc TxContext, kind, addressID, amount, interest, maturity, fee, expiration string) error {
	params, err := parseOrderParams(addressID, amount, interest, maturity, fee, expiration)
	if err != nil {
		return err
	}
	addr, err := requireOwnedAddress(rt, tc, addressID)
	if err != nil {
		return err
	}

	id := addressing.MakeAddress(kind, tc.Nonce)
	if _, present, err := rt.Store.Get(id); err != nil {
		return apperr.InternalWrap(err, "read order")
	} else if present {
		return apperr.Invalid("order already exists")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	var raw []byte
	if kind == addressing.KindAskOrder {
		raw, err = model.Marshal(&model.AskOrder{
			Blockchain: addr.Blockchain, Address: addressID, Amount: params.Amount,
			Interest: params.Interest, Maturity: params.Maturity, Fee: params.Fee,
			Expiration: params.Expiration, Block: tc.Head, Sighash: tc.Sighash,
		})
	} else {
		raw, err = model.Marshal(&model.BidOrder{
			Blockchain: addr.Blockchain, Address: addressID, Amount: params.Amount,
			Interest: params.Interest, Maturity: params.Maturity, Fee: params.Fee,
			Expiration: params.Expiration, Block: tc.Head, Sighash: tc.Sighash,
		})
	}
	if err != nil {
		return apperr.InternalWrap(err, "encode order")
	}
	if err := rt.Store.Put(id, raw); err != nil {
		return apperr.InternalWrap(err, "write order")
	}
	if rt.Logger != nil {
		rt.Logger.Infow("add_order", "kind", kind, "id", id, "sighash", tc.Sighash)
	}
	return nil
}

func loadAskOrder(rt *Runtime, id string) (*model.AskOrder, error) {
	raw, present, err := rt.Store.Get(id)
	if err != nil {
		return nil, apperr.InternalWrap(err, "read ask order")
	}
	if !present {
		return nil, apperr.Invalid("ask order not found")
	}
	var a model.AskOrder
	if err := model.Unmarshal(raw, &a); err != nil {
		return nil, apperr.InternalWrap(err, "decode ask order")
	}
	return &a, nil
}

func loadBidOrder(rt *Runtime, id string) (*model.BidOrder, error) {
	raw, present, err := rt.Store.Get(id)
	if err != nil {
		return nil, apperr.InternalWrap(err, "read bid order")
	}
	if !present {
		return nil, apperr.Invalid("bid order not found")
	}
	var b model.BidOrder
	if err := model.Unmarshal(raw, &b); err != nil {
		return nil, apperr.InternalWrap(err, "decode bid order")
	}
	return &b, nil
}

func isExpired(head, block, expiration uint64) bool {
	if head <= block {
		return false
	}
	return head-block > expiration
}
