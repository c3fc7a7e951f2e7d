package verbs

import (
	"testing"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/settings"
)

func TestHousekeeping_RejectsNonGatewaySignerForRealBlock(t *testing.T) {
	rt, mem := newRuntime(t)
	rt.Settings = settings.NewCache(rt.Store, nil)
	rt.Settings.Seed(map[string]string{settings.KeyGatewaySighash: "gateway-sighash"})
	mem.SetTip(0)

	tc := TxContext{Sighash: "not-the-gateway", Nonce: "hk-tx1", Head: 45}
	if err := rt.Housekeeping(tc, 30, 0); err == nil {
		t.Fatalf("expected error: only the gateway may submit housekeeping for a real block")
	}
}

func TestHousekeeping_AllowsGatewaySigner(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.Settings = settings.NewCache(rt.Store, nil)
	rt.Settings.Seed(map[string]string{settings.KeyGatewaySighash: "gateway-sighash"})

	tc := TxContext{Sighash: "gateway-sighash", Nonce: "hk-tx1", Head: 45}
	if err := rt.Housekeeping(tc, 30, 0); err != nil {
		t.Fatalf("housekeeping: %v", err)
	}
}

func TestHousekeeping_ZeroBlockSkipsTheGatewayOnlyCheck(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.Settings = settings.NewCache(rt.Store, nil)
	rt.Settings.Seed(map[string]string{settings.KeyGatewaySighash: "gateway-sighash"})

	tc := TxContext{Sighash: "anybody", Nonce: "hk-tx1", Head: 10}
	err := rt.Housekeeping(tc, 0, 0)
	if err == nil {
		t.Fatalf("expected an error from the sweeper's own preconditions")
	}
	if apperr.IsInvalid(err) && err.Error() == "only the gateway may submit housekeeping" {
		t.Fatalf("blockIdx=0 must skip the gateway-only check, got: %v", err)
	}
}
