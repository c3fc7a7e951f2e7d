package replay

import (
	"sort"
	"strings"
	"sync"

	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

// layeredStore implements state.Store over the engine's three maps
// (spec.md §4.8): transitioningState is the committed result of every
// replayed block so far, tipCurrentState is the frontier's uncommitted
// overlay, and ctx is the staged writes of the transaction currently being
// applied. Reads check ctx, then tip, then transitioning, returning the
// first hit. A present-but-empty value is a tombstone (a deletion recorded
// during replay, since the engine never writes directly to the host).
//
// GetTip/GetSigByNum/GetRewardBlockSignatures pass through to the real host
// store, since those facts are not something the migration log re-derives.
type layeredStore struct {
	mu            sync.Mutex
	transitioning map[string][]byte
	tip           map[string][]byte
	host          state.Store
	ctx           map[string][]byte // nil outside of an in-flight Apply
}

func newLayeredStore(host state.Store) *layeredStore {
	return &layeredStore{
		transitioning: make(map[string][]byte),
		tip:           make(map[string][]byte),
		host:          host,
	}
}

// withCtx returns a state.Store view that stages writes into a fresh ctx
// map rather than tip/transitioning, per the "ctx.currentState" layer of
// spec.md §4.8. The caller merges or discards ctx itself.
func (s *layeredStore) withCtx() (state.Store, map[string][]byte) {
	ctx := make(map[string][]byte)
	return &ctxView{parent: s, ctx: ctx}, ctx
}

func (s *layeredStore) lookup(address string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.tip[address]; ok {
		return v, true
	}
	if v, ok := s.transitioning[address]; ok {
		return v, true
	}
	return nil, false
}

func (s *layeredStore) scanPrefix(prefix string) []state.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string][]byte)
	for addr, v := range s.transitioning {
		if strings.HasPrefix(addr, prefix) {
			seen[addr] = v
		}
	}
	for addr, v := range s.tip {
		if strings.HasPrefix(addr, prefix) {
			seen[addr] = v
		}
	}
	var out []state.Entry
	for addr, v := range seen {
		if len(v) == 0 {
			continue
		}
		out = append(out, state.Entry{Address: addr, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// foldBlockBoundary merges tip into transitioning and clears tip, called
// once the frontier crosses a block boundary during replay.
func (s *layeredStore) foldBlockBoundary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, v := range s.tip {
		s.transitioning[addr] = v
	}
	s.tip = make(map[string][]byte)
}

// mergeCtxIntoTip folds a completed ctx layer into tip, per "merge
// ctx.currentState into tipCurrentState" (spec.md §4.8).
func (s *layeredStore) mergeCtxIntoTip(ctx map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, v := range ctx {
		s.tip[addr] = v
	}
}

// ctxView is the state.Store the verb handlers see while an Apply is in
// flight: reads fall through ctx -> tip -> transitioning; writes land only
// in ctx until the engine decides to merge or discard it.
type ctxView struct {
	parent *layeredStore
	ctx    map[string][]byte
}

func (c *ctxView) GetState(address string) ([]byte, bool, error) {
	if v, ok := c.ctx[address]; ok {
		return normalize(v)
	}
	v, ok := c.parent.lookup(address)
	if !ok {
		return nil, false, nil
	}
	return normalize(v)
}

func normalize(v []byte) ([]byte, bool, error) {
	if len(v) == 0 {
		return nil, false, nil
	}
	return v, true, nil
}

func (c *ctxView) SetState(entries map[string][]byte) error {
	for addr, v := range entries {
		c.ctx[addr] = v
	}
	return nil
}

func (c *ctxView) DeleteState(addresses []string) error {
	for _, addr := range addresses {
		c.ctx[addr] = []byte{}
	}
	return nil
}

func (c *ctxView) GetStatesByPrefix(prefix string) ([]state.Entry, error) {
	merged := make(map[string][]byte)
	for _, e := range c.parent.scanPrefix(prefix) {
		merged[e.Address] = e.Value
	}
	for addr, v := range c.ctx {
		if strings.HasPrefix(addr, prefix) {
			merged[addr] = v
		}
	}
	var out []state.Entry
	for addr, v := range merged {
		if len(v) == 0 {
			continue
		}
		out = append(out, state.Entry{Address: addr, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (c *ctxView) GetTip() (uint64, error) { return c.parent.host.GetTip() }

func (c *ctxView) GetSigByNum(blockNum uint64) (string, error) {
	return c.parent.host.GetSigByNum(blockNum)
}

func (c *ctxView) GetRewardBlockSignatures(sig string, first, last uint64) ([]string, error) {
	return c.parent.host.GetRewardBlockSignatures(sig, first, last)
}

var _ state.Store = (*ctxView)(nil)
