package verbs

import (
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
)

// Housekeeping sweeps expired orders/offers/fee receipts and pays the block
// reward for every block up to blockIdx (spec.md §4.5, §4.6). Only the
// gateway's sighash may submit it, except for blockIdx==0, which skips that
// check. A blockIdx of 0 is then rejected by Sweeper.Run, which requires
// blockIdx >= 2*ConfirmationCount, so this path sweeps nothing and pays no
// rewards.
//
// tip identifies the replay frontier block for the DealOrder refund
// bug-compat guard (spec.md §4.6, §9); callers on the live path pass 0.
func (rt *Runtime) Housekeeping(tc TxContext, blockIdx uint64, tip uint64) error {
	if blockIdx != 0 {
		gatewaySighash := ""
		if rt.Settings != nil {
			gatewaySighash = rt.Settings.GatewaySighash()
		}
		if gatewaySighash == "" || tc.Sighash != gatewaySighash {
			return apperr.Invalid("only the gateway may submit housekeeping")
		}
	}
	return rt.sweeper().Run(blockIdx, tc.Head, tip)
}
