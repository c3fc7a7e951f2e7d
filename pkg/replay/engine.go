package replay

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/dispatcher"
	"github.com/creditcoin-project/ccprocessor/pkg/settings"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
	"github.com/creditcoin-project/ccprocessor/pkg/verbs"
)

// WatchdogIdleLimit is how long the engine tolerates no live apply before
// exiting the process (spec.md §5).
const WatchdogIdleLimit = 300 * time.Second

// WatchdogPollInterval is how often the watchdog checks for idleness.
const WatchdogPollInterval = 60 * time.Second

// UpdateBlockFor resolves the fixed update1Block the reward path uses while
// transitioning (spec.md §4.8, §9's "bug-compat window" open question): the
// historical validator configuration cannot be recovered exactly, so a
// narrow window around the consensus incident picks the earlier value.
func UpdateBlockFor(hostTip uint64) uint64 {
	if hostTip >= 278890 && hostTip <= 278904 {
		return 277800
	}
	return 278910
}

// ErrMigrationComplete is returned by ApplyLive when the incoming guid is
// not in the migration log: per spec.md §4.8 this means the migration is
// over and the caller should fall back to normal (non-replay) dispatch for
// this and every subsequent transaction.
var ErrMigrationComplete = apperr.Internal("migration log exhausted; switch to normal dispatch")

// Engine replays a migration log, splicing live transactions in as their
// guid is located within the lineage (spec.md §4.8).
type Engine struct {
	mu sync.Mutex

	blocks []Block
	txPos  map[string]pos
	store  *layeredStore

	updatedBlock int
	updatedTx    int
	terminated   bool

	base                 *verbs.Runtime
	defaultFamilyVersion string
	logger               *zap.SugaredLogger

	lastApply       time.Time
	watchdogStarted bool
	// ExitFunc is invoked when the idle watchdog fires or the frontier
	// reaches the end of the log. Left nil in tests; cmd/processor wires it
	// to an actual process exit.
	ExitFunc func()

	// OnApplied is invoked after each live transaction is spliced in: with a
	// nil err when its dispatch succeeded, and with the dispatch error when
	// it failed. Left nil in tests; cmd/processor wires it to the admin
	// event hub.
	OnApplied func(guid, verb string, head uint64, err error)
}

// NewEngine parses blocks into an Engine ready to receive live transactions.
// host supplies GetTip/GetSigByNum/GetRewardBlockSignatures (facts the
// migration log does not itself carry); base supplies the Gateway/Clock/
// Logger/DealExpFixBlock every verb call needs, and its Store field is
// ignored (each apply gets its own layered view).
func NewEngine(blocks []Block, host state.Store, base *verbs.Runtime, defaultFamilyVersion string) *Engine {
	return &Engine{
		blocks:               blocks,
		txPos:                indexByGUID(blocks),
		store:                newLayeredStore(host),
		base:                 base,
		defaultFamilyVersion: defaultFamilyVersion,
		logger:               base.Logger,
	}
}

// Terminated reports whether the migration has ended (cleanly or by
// reaching the end of the log); once true every ApplyLive call fails.
func (e *Engine) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

// SeedTransitioningState pre-populates the committed layer before any
// transactions are replayed. Used when resuming from a previously saved
// checkpoint rather than starting from empty genesis state.
func (e *Engine) SeedTransitioningState(entries map[string][]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range entries {
		e.store.transitioning[k] = v
	}
}

func (e *Engine) hostTip() uint64 {
	tip, err := e.store.host.GetTip()
	if err != nil {
		return 0
	}
	return tip
}

// settingsFor builds the per-call settings snapshot used while
// transitioning: every recognized key is carried over from the base
// runtime's live cache except sawtooth.validator.update1, which is pinned
// to the historical bug-compat constant (spec.md §4.8, §9).
func (e *Engine) settingsFor(hostTip uint64) *settings.Cache {
	c := settings.NewCache(nil, e.logger)
	values := map[string]string{}
	if e.base.Settings != nil {
		if v := e.base.Settings.Get(settings.KeyGatewaySighash); v != "" {
			values[settings.KeyGatewaySighash] = v
		}
		if v := e.base.Settings.Get(settings.KeyGatewayURL); v != "" {
			values[settings.KeyGatewayURL] = v
		}
		if v := e.base.Settings.Get(settings.KeyV2Block); v != "" {
			values[settings.KeyV2Block] = v
		}
	}
	values[settings.KeyUpdate1Block] = strconv.FormatUint(UpdateBlockFor(hostTip), 10)
	c.Seed(values)
	return c
}

func (e *Engine) runtimeFor(store state.Store, hostTip uint64) *verbs.Runtime {
	return &verbs.Runtime{
		Store:           state.NewAccessor(store),
		Settings:        e.settingsFor(hostTip),
		Gateway:         e.base.Gateway,
		Clock:           e.base.Clock,
		Logger:          e.base.Logger,
		DealExpFixBlock: e.base.DealExpFixBlock,
	}
}

func (e *Engine) frontierAtEnd() bool {
	if len(e.blocks) == 0 {
		return true
	}
	last := len(e.blocks) - 1
	return e.updatedBlock >= last && e.updatedTx >= len(e.blocks[last].Txs)
}

// ApplyLive locates guid in the migration log, replays every intervening
// transaction to advance the frontier to immediately before it, then
// executes this transaction in ctx mode (spec.md §4.8). Writes never reach
// the real host store while transitioning.
func (e *Engine) ApplyLive(guid, sighash string, payload []byte, familyVersion string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminated {
		return apperr.Internal("replay engine already terminated")
	}

	target, ok := e.txPos[guid]
	if !ok {
		e.terminated = true
		return ErrMigrationComplete
	}

	if err := e.advanceToLocked(target); err != nil {
		return err
	}

	hostTip := e.hostTip()
	view, ctx := e.store.withCtx()
	rt := e.runtimeFor(view, hostTip)
	block := e.blocks[target.Block]
	tc := verbs.TxContext{Ctx: context.Background(), Sighash: sighash, Nonce: guid, Head: block.Index}

	verb := ""
	if p, decodeErr := dispatcher.Decode(payload); decodeErr == nil {
		verb = p.Verb
	}

	d := dispatcher.New(rt)
	fv := familyVersion
	if fv == "" {
		fv = e.defaultFamilyVersion
	}
	if err := d.Dispatch(tc, fv, payload, hostTip); err != nil {
		if e.OnApplied != nil {
			e.OnApplied(guid, verb, block.Index, err)
		}
		return err
	}

	e.updatedBlock, e.updatedTx = target.Block, target.Tx+1
	e.store.mergeCtxIntoTip(ctx)
	e.lastApply = time.Now()
	e.maybeStartWatchdogLocked()
	if e.OnApplied != nil {
		e.OnApplied(guid, verb, block.Index, nil)
	}

	if e.frontierAtEnd() {
		e.terminated = true
		if e.ExitFunc != nil {
			go e.ExitFunc()
		}
	}
	return nil
}

// advanceToLocked replays every transaction from the current frontier up
// to (exclusive) target, folding tip into transitioning at each block
// boundary. Callers must hold e.mu.
func (e *Engine) advanceToLocked(target pos) error {
	for {
		if e.updatedBlock > target.Block || (e.updatedBlock == target.Block && e.updatedTx >= target.Tx) {
			return nil
		}
		block := e.blocks[e.updatedBlock]
		if e.updatedTx >= len(block.Txs) {
			e.store.foldBlockBoundary()
			e.updatedBlock++
			e.updatedTx = 0
			continue
		}

		tx := block.Txs[e.updatedTx]
		hostTip := e.hostTip()
		view, ctx := e.store.withCtx()
		rt := e.runtimeFor(view, hostTip)
		tc := verbs.TxContext{Ctx: context.Background(), Sighash: tx.Sighash, Nonce: tx.GUID, Head: block.Index}

		d := dispatcher.New(rt)
		if err := d.Dispatch(tc, e.defaultFamilyVersion, tx.Payload, hostTip); err != nil {
			if e.logger != nil {
				e.logger.Warnw("replay_tx_skipped", "guid", tx.GUID, "block", block.Index, "err", err)
			}
		} else {
			e.store.mergeCtxIntoTip(ctx)
		}
		e.updatedTx++
	}
}

func (e *Engine) maybeStartWatchdogLocked() {
	if e.watchdogStarted {
		return
	}
	e.watchdogStarted = true
	go e.watchdogLoop()
}

func (e *Engine) watchdogLoop() {
	ticker := time.NewTicker(WatchdogPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		e.mu.Lock()
		idle := time.Since(e.lastApply)
		terminated := e.terminated
		e.mu.Unlock()
		if terminated {
			return
		}
		if idle >= WatchdogIdleLimit {
			if e.logger != nil {
				e.logger.Warnw("replay_watchdog_idle_exit", "idle", idle.String())
			}
			if e.ExitFunc != nil {
				e.ExitFunc()
			}
			return
		}
	}
}
