// Package verbs implements the sixteen business verbs of spec.md §4.5 as
// atomic state transitions against a Runtime-scoped StateStore.
package verbs

import (
	"context"

	"go.uber.org/zap"

	"github.com/creditcoin-project/ccprocessor/pkg/gateway"
	"github.com/creditcoin-project/ccprocessor/pkg/housekeeping"
	"github.com/creditcoin-project/ccprocessor/pkg/settings"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
	"github.com/creditcoin-project/ccprocessor/pkg/util"
)

// Runtime bundles the collaborators every verb handler needs: the state
// accessor, the settings cache, the gateway client, a clock and a logger.
// Modeled on spec.md §9's "Runtime handle" design note: process-wide
// singletons (settings, gateway) are referenced here rather than recreated
// per transaction.
type Runtime struct {
	Store           *state.Accessor
	Settings        *settings.Cache
	Gateway         *gateway.Client
	Clock           util.Clock
	Logger          *zap.SugaredLogger
	DealExpFixBlock uint64 // 0 selects housekeeping.DefaultDealExpFixBlock
}

// sweeper builds the Housekeeping sweeper for this runtime on demand; it is
// cheap enough to construct per call and carries no state of its own beyond
// the configured bug-compat window.
func (rt *Runtime) sweeper() *housekeeping.Sweeper {
	s := housekeeping.New(rt.Store, rt.Settings, rt.Logger)
	if rt.DealExpFixBlock != 0 {
		s.DealExpFixBlock = rt.DealExpFixBlock
	}
	return s
}

// TxContext carries the per-transaction facts every verb needs: the
// signer's identity, a nonce unique to this transaction (used to derive
// entity ids and fee receipts), and the current chain head.
type TxContext struct {
	Ctx     context.Context
	Sighash string // signer
	Nonce   string // transaction id/guid, the seed for AskOrder/BidOrder/RepaymentOrder/FeeReceipt ids
	Head    uint64 // current (not yet confirmed) block height
}
