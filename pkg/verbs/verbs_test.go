package verbs

import (
	"math/big"
	"testing"

	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

func bigFromString(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad test constant: " + s)
	}
	return v
}

// newRuntime builds a bare Runtime over a fresh MemoryStore, with no
// gateway and no settings cache: enough for verbs that never reach a
// foreign-chain attestation.
func newRuntime(t *testing.T) (*Runtime, *state.MemoryStore) {
	t.Helper()
	mem := state.NewMemoryStore()
	acc := state.NewAccessor(mem)
	return &Runtime{Store: acc}, mem
}
