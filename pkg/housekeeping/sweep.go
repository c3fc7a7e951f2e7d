// Package housekeeping implements the Housekeeping verb's two
// responsibilities (spec.md §4.6): sweeping expired orders/offers/fee
// receipts, and paying the block reward for every newly confirmed block.
package housekeeping

import (
	"math/big"

	"go.uber.org/zap"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
	"github.com/creditcoin-project/ccprocessor/pkg/settings"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

// ConfirmationCount is the depth the host requires before a block is
// considered final enough to sweep and reward (spec.md §4.5's
// "blockIdx >= 2*CONFIRMATION_COUNT" / "blockIdx <= head-CONFIRMATION_COUNT"
// preconditions). Mirrors the legacy processor's fixed depth.
const ConfirmationCount = 15

// DefaultDealExpFixBlock gates the bug-compatibility guard on DealOrder expiry
// refunds (spec.md §4.6, §9): the default preserves the historical
// consensus incident window and can be overridden via -dealExpFixBlock.
const DefaultDealExpFixBlock = 278890

// Sweeper owns the accessor used to scan/delete expired entries and pay
// rewards. tip distinguishes the live path (tip==0, see spec.md §4.6) from
// the replay path, where tip carries the frontier block being replayed.
type Sweeper struct {
	Store           *state.Accessor
	Settings        *settings.Cache
	Logger          *zap.SugaredLogger
	DealExpFixBlock uint64
}

// New returns a Sweeper with the default bug-compat window.
func New(store *state.Accessor, settings *settings.Cache, logger *zap.SugaredLogger) *Sweeper {
	return &Sweeper{Store: store, Settings: settings, Logger: logger, DealExpFixBlock: DefaultDealExpFixBlock}
}

// Run executes Housekeeping for blockIdx: preconditions, the expiry sweep,
// the reward path over (lastProcessed, blockIdx], and the processed-marker
// write (spec.md §4.6). tip==0 means the live path; tip>0 identifies the
// replay frontier block for the bug-compat guard on deal refunds.
func (s *Sweeper) Run(blockIdx uint64, head uint64, tip uint64) error {
	if blockIdx < 2*ConfirmationCount {
		return apperr.Invalid("block index too low to housekeep")
	}
	if head < ConfirmationCount || blockIdx > head-ConfirmationCount {
		return apperr.Invalid("block index not yet confirmed")
	}

	lastProcessed, err := s.readProcessedMarker()
	if err != nil {
		return err
	}
	if blockIdx <= lastProcessed {
		return apperr.Invalid("block already processed")
	}

	if err := s.sweepOrders(addressing.KindAskOrder, blockIdx); err != nil {
		return err
	}
	if err := s.sweepOrders(addressing.KindBidOrder, blockIdx); err != nil {
		return err
	}
	if err := s.sweepOffers(blockIdx); err != nil {
		return err
	}
	if err := s.sweepRepaymentOrders(blockIdx); err != nil {
		return err
	}
	if err := s.sweepDealOrders(blockIdx, tip); err != nil {
		return err
	}
	if err := s.sweepFeeReceipts(blockIdx); err != nil {
		return err
	}

	if err := s.payRewards(lastProcessed, blockIdx); err != nil {
		return err
	}

	return s.writeProcessedMarker(blockIdx)
}

func (s *Sweeper) readProcessedMarker() (uint64, error) {
	addr := addressing.ProcessedBlockMarkerAddress()
	raw, present, err := s.Store.Get(addr)
	if err != nil {
		return 0, apperr.InternalWrap(err, "read processed marker")
	}
	if !present {
		return 0, nil
	}
	v, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return 0, apperr.Internal("corrupt processed marker")
	}
	return v.Uint64(), nil
}

func (s *Sweeper) writeProcessedMarker(blockIdx uint64) error {
	addr := addressing.ProcessedBlockMarkerAddress()
	return s.Store.Put(addr, []byte(new(big.Int).SetUint64(blockIdx).String()))
}

// sweepOrders deletes any AskOrder/BidOrder whose expiration has elapsed.
func (s *Sweeper) sweepOrders(kind string, blockIdx uint64) error {
	prefix := addressing.Namespace + kind
	entries, err := s.Store.ScanPrefix(prefix)
	if err != nil {
		return apperr.InternalWrap(err, "scan %s", kind)
	}
	for _, e := range entries {
		block, expiration, err := decodeOrderExpiry(kind, e.Value)
		if err != nil {
			return err
		}
		if elapsed(blockIdx, block) > expiration {
			if err := s.Store.Delete(e.Address); err != nil {
				return apperr.InternalWrap(err, "delete %s", e.Address)
			}
		}
	}
	return nil
}

func decodeOrderExpiry(kind string, raw []byte) (block, expiration uint64, err error) {
	if kind == addressing.KindAskOrder {
		var a model.AskOrder
		if err := model.Unmarshal(raw, &a); err != nil {
			return 0, 0, apperr.InternalWrap(err, "decode ask order")
		}
		return a.Block, a.Expiration, nil
	}
	var b model.BidOrder
	if err := model.Unmarshal(raw, &b); err != nil {
		return 0, 0, apperr.InternalWrap(err, "decode bid order")
	}
	return b.Block, b.Expiration, nil
}

func elapsed(blockIdx, block uint64) uint64 {
	if blockIdx <= block {
		return 0
	}
	return blockIdx - block
}

func (s *Sweeper) sweepOffers(blockIdx uint64) error {
	prefix := addressing.Namespace + addressing.KindOffer
	entries, err := s.Store.ScanPrefix(prefix)
	if err != nil {
		return apperr.InternalWrap(err, "scan offers")
	}
	for _, e := range entries {
		var o model.Offer
		if err := model.Unmarshal(e.Value, &o); err != nil {
			return apperr.InternalWrap(err, "decode offer")
		}
		if elapsed(blockIdx, o.Block) > o.Expiration {
			if err := s.Store.Delete(e.Address); err != nil {
				return apperr.InternalWrap(err, "delete offer")
			}
		}
	}
	return nil
}

// sweepRepaymentOrders deletes expired repayment orders, but only when no
// collector has taken them over yet (previousOwner empty), per spec.md §4.6.
func (s *Sweeper) sweepRepaymentOrders(blockIdx uint64) error {
	prefix := addressing.Namespace + addressing.KindRepaymentOrder
	entries, err := s.Store.ScanPrefix(prefix)
	if err != nil {
		return apperr.InternalWrap(err, "scan repayment orders")
	}
	for _, e := range entries {
		var r model.RepaymentOrder
		if err := model.Unmarshal(e.Value, &r); err != nil {
			return apperr.InternalWrap(err, "decode repayment order")
		}
		if r.PreviousOwner != "" {
			continue
		}
		if elapsed(blockIdx, r.Block) > r.Expiration {
			if err := s.Store.Delete(e.Address); err != nil {
				return apperr.InternalWrap(err, "delete repayment order")
			}
		}
	}
	return nil
}

// sweepDealOrders deletes expired, never-funded deal orders, refunding fee
// to the fundraiser. The refund is gated by the historical bug-compat
// window (spec.md §4.6): on the live path (tip==0) refunds always apply;
// on the replay path they only apply once tip is past the known-bad window.
func (s *Sweeper) sweepDealOrders(blockIdx uint64, tip uint64) error {
	prefix := addressing.Namespace + addressing.KindDealOrder
	entries, err := s.Store.ScanPrefix(prefix)
	if err != nil {
		return apperr.InternalWrap(err, "scan deal orders")
	}
	for _, e := range entries {
		var d model.DealOrder
		if err := model.Unmarshal(e.Value, &d); err != nil {
			return apperr.InternalWrap(err, "decode deal order")
		}
		if elapsed(blockIdx, d.Block) <= d.Expiration {
			continue
		}
		if !d.IsOpen() {
			continue
		}
		if tip == 0 || tip > s.DealExpFixBlock {
			fee, err := fees.ParseAmount(d.Fee, false)
			if err != nil {
				return err
			}
			if err := fees.Credit(s.Store, d.Sighash, fee); err != nil {
				return err
			}
		}
		if err := s.Store.Delete(e.Address); err != nil {
			return apperr.InternalWrap(err, "delete deal order")
		}
	}
	return nil
}

// sweepFeeReceipts refunds TX_FEE for every receipt older than
// YEAR_OF_BLOCKS and deletes it.
func (s *Sweeper) sweepFeeReceipts(blockIdx uint64) error {
	prefix := addressing.Namespace + addressing.KindFeeReceipt
	entries, err := s.Store.ScanPrefix(prefix)
	if err != nil {
		return apperr.InternalWrap(err, "scan fee receipts")
	}
	for _, e := range entries {
		var r model.FeeReceipt
		if err := model.Unmarshal(e.Value, &r); err != nil {
			return apperr.InternalWrap(err, "decode fee receipt")
		}
		if elapsed(blockIdx, r.Block) > fees.YearOfBlocks {
			if err := fees.RefundReceipt(s.Store, e.Address, r.Sighash); err != nil {
				return err
			}
		}
	}
	return nil
}
