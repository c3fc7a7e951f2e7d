package dispatcher

import (
	"strconv"
	"strings"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/verbs"
)

// Dispatcher decodes a transaction payload and routes it to the matching
// pkg/verbs handler against rt.
type Dispatcher struct {
	Runtime *verbs.Runtime
}

// New returns a Dispatcher bound to rt.
func New(rt *verbs.Runtime) *Dispatcher { return &Dispatcher{Runtime: rt} }

// Dispatch decodes raw and applies it through tc. familyVersion is the
// transaction family version string the host attaches to the envelope
// ("1.0".."1.7"); tip is forwarded to Housekeeping for the replay engine's
// bug-compat guard and is 0 on the live path.
func (d *Dispatcher) Dispatch(tc verbs.TxContext, familyVersion string, raw []byte, tip uint64) error {
	if err := d.checkVersionGate(familyVersion, tc.Head); err != nil {
		return err
	}

	payload, err := Decode(raw)
	if err != nil {
		return err
	}

	return d.apply(tc, payload, tip)
}

// checkVersionGate rejects v1.x transactions once the chain has passed
// creditcoin.v2block (spec.md §4.7).
func (d *Dispatcher) checkVersionGate(familyVersion string, head uint64) error {
	if d.Runtime.Settings == nil {
		return nil
	}
	v2block, set := d.Runtime.Settings.V2Block()
	if !set || head <= v2block {
		return nil
	}
	if strings.HasPrefix(familyVersion, "1") {
		return apperr.Invalid("family version %s rejected past v2block", familyVersion)
	}
	return nil
}

func (d *Dispatcher) apply(tc verbs.TxContext, p *Payload, tip uint64) error {
	rt := d.Runtime
	switch p.Verb {
	case "SENDFUNDS":
		if err := p.RequireArgs(2); err != nil {
			return err
		}
		return rt.SendFunds(tc, p.Params[0], p.Params[1])

	case "REGISTERADDRESS":
		if err := p.RequireArgs(3); err != nil {
			return err
		}
		return rt.RegisterAddress(tc, p.Params[0], p.Params[1], p.Params[2])

	case "REGISTERTRANSFER":
		if err := p.RequireArgs(3); err != nil {
			return err
		}
		return rt.RegisterTransfer(tc, p.Params[0], p.Params[1], p.Params[2])

	case "ADDASKORDER":
		if err := p.RequireArgs(6); err != nil {
			return err
		}
		return rt.AddAskOrder(tc, p.Params[0], p.Params[1], p.Params[2], p.Params[3], p.Params[4], p.Params[5])

	case "ADDBIDORDER":
		if err := p.RequireArgs(6); err != nil {
			return err
		}
		return rt.AddBidOrder(tc, p.Params[0], p.Params[1], p.Params[2], p.Params[3], p.Params[4], p.Params[5])

	case "ADDOFFER":
		if err := p.RequireArgs(3); err != nil {
			return err
		}
		return rt.AddOffer(tc, p.Params[0], p.Params[1], p.Params[2])

	case "ADDDEALORDER":
		if err := p.RequireArgs(2); err != nil {
			return err
		}
		return rt.AddDealOrder(tc, p.Params[0], p.Params[1])

	case "COMPLETEDEALORDER":
		if err := p.RequireArgs(2); err != nil {
			return err
		}
		return rt.CompleteDealOrder(tc, p.Params[0], p.Params[1])

	case "LOCKDEALORDER":
		if err := p.RequireArgs(1); err != nil {
			return err
		}
		return rt.LockDealOrder(tc, p.Params[0])

	case "CLOSEDEALORDER":
		if err := p.RequireArgs(2); err != nil {
			return err
		}
		return rt.CloseDealOrder(tc, p.Params[0], p.Params[1])

	case "EXEMPT":
		if err := p.RequireArgs(2); err != nil {
			return err
		}
		return rt.Exempt(tc, p.Params[0], p.Params[1])

	case "ADDREPAYMENTORDER":
		if err := p.RequireArgs(4); err != nil {
			return err
		}
		return rt.AddRepaymentOrder(tc, p.Params[0], p.Params[1], p.Params[2], p.Params[3])

	case "COMPLETEREPAYMENTORDER":
		if err := p.RequireArgs(1); err != nil {
			return err
		}
		return rt.CompleteRepaymentOrder(tc, p.Params[0])

	case "CLOSEREPAYMENTORDER":
		if err := p.RequireArgs(2); err != nil {
			return err
		}
		return rt.CloseRepaymentOrder(tc, p.Params[0], p.Params[1])

	case "COLLECTCOINS":
		if err := p.RequireArgs(3); err != nil {
			return err
		}
		return rt.CollectCoins(tc, p.Params[0], p.Params[1], p.Params[2])

	case "HOUSEKEEPING":
		if err := p.RequireArgs(1); err != nil {
			return err
		}
		blockIdx, err := strconv.ParseUint(p.Params[0], 10, 64)
		if err != nil {
			return apperr.InvalidWrap(err, "invalid blockIdx")
		}
		return rt.Housekeeping(tc, blockIdx, tip)

	default:
		return apperr.Invalid("invalid command: '%s'", p.Verb)
	}
}
