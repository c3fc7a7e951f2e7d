package verbs

import (
	"strings"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

// addressSeed builds the seed for an Address id: blockchain || lower(value) || network.
func addressSeed(blockchain, value, network string) string {
	return blockchain + strings.ToLower(value) + network
}

// AddressID returns the merkle address of the Address entity registered for
// (blockchain, addressString, network).
func AddressID(blockchain, addressString, network string) string {
	return addressing.MakeAddress(addressing.KindAddress, addressSeed(blockchain, addressString, network))
}

// RegisterAddress binds a foreign-chain address string to the signer,
// charging TX_FEE. The address id must not already be present (spec.md §4.5).
func (rt *Runtime) RegisterAddress(tc TxContext, blockchain, addrString, network string) error {
	id := AddressID(blockchain, addrString, network)
	_, present, err := rt.Store.Get(id)
	if err != nil {
		return apperr.InternalWrap(err, "read address")
	}
	if present {
		return apperr.Invalid("address already registered")
	}

	if err := fees.ChargeFee(rt.Store, tc.Sighash, tc.Nonce, tc.Head); err != nil {
		return err
	}

	raw, err := model.Marshal(&model.Address{
		Blockchain: blockchain,
		Value:      addrString,
		Network:    network,
		Sighash:    tc.Sighash,
	})
	if err != nil {
		return apperr.InternalWrap(err, "encode address")
	}
	if err := rt.Store.Put(id, raw); err != nil {
		return apperr.InternalWrap(err, "write address")
	}
	if rt.Logger != nil {
		rt.Logger.Infow("register_address", "sighash", tc.Sighash, "blockchain", blockchain, "address", addrString)
	}
	return nil
}

// loadAddress fetches and decodes the Address at id.
func loadAddress(rt *Runtime, id string) (*model.Address, error) {
	raw, present, err := rt.Store.Get(id)
	if err != nil {
		return nil, apperr.InternalWrap(err, "read address")
	}
	if !present {
		return nil, apperr.Invalid("address not found")
	}
	var a model.Address
	if err := model.Unmarshal(raw, &a); err != nil {
		return nil, apperr.InternalWrap(err, "decode address")
	}
	return &a, nil
}
