package state

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is a standalone Store backing for running the processor
// without a live validator (local development, replay-only runs against
// a migration log). Adapted from the teacher's pkg/storage.PebbleStore:
// same Open/Close/prefix-iteration shape, repurposed to the generic
// address/value Store contract instead of perp-specific account records.
type PebbleStore struct {
	db *pebble.DB

	mu   sync.Mutex
	tip  uint64
	sigs map[uint64]string
}

// NewPebbleStore opens (or creates) a pebble database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store at %s: %w", path, err)
	}
	return &PebbleStore{db: db, sigs: make(map[uint64]string)}, nil
}

// Close releases the underlying database handle.
func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) GetState(address string) ([]byte, bool, error) {
	val, closer, err := s.db.Get([]byte(address))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", address, err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (s *PebbleStore) SetState(entries map[string][]byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for addr, v := range entries {
		if err := batch.Set([]byte(addr), v, nil); err != nil {
			return fmt.Errorf("set %s: %w", addr, err)
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) DeleteState(addresses []string) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, addr := range addresses {
		if err := batch.Delete([]byte(addr), nil); err != nil {
			return fmt.Errorf("delete %s: %w", addr, err)
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetStatesByPrefix(prefix string) ([]Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("scan prefix %s: %w", prefix, err)
	}
	defer iter.Close()

	var out []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, Entry{Address: string(iter.Key()), Value: v})
	}
	return out, nil
}

// keyUpperBound returns the smallest key strictly greater than every key
// with the given prefix, for bounding a prefix iteration.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded above
}

func (s *PebbleStore) GetTip() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, nil
}

// SetTip advances the simulated chain head (standalone/replay-only mode).
func (s *PebbleStore) SetTip(tip uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tip = tip
}

func (s *PebbleStore) GetSigByNum(blockNum uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig, ok := s.sigs[blockNum]; ok {
		return sig, nil
	}
	return "block-" + strconv.FormatUint(blockNum, 10), nil
}

func (s *PebbleStore) GetRewardBlockSignatures(sig string, first, last uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for b := first; b <= last; b++ {
		if v, ok := s.sigs[b]; ok {
			out = append(out, v)
		} else {
			out = append(out, "block-"+strconv.FormatUint(b, 10))
		}
	}
	return out, nil
}

var _ Store = (*PebbleStore)(nil)
