package housekeeping

import (
	"testing"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
	"github.com/creditcoin-project/ccprocessor/pkg/settings"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

func newSweeper(t *testing.T) (*Sweeper, *state.Accessor, *state.MemoryStore) {
	t.Helper()
	mem := state.NewMemoryStore()
	acc := state.NewAccessor(mem)
	return New(acc, settings.NewCache(acc, nil), nil), acc, mem
}

func TestSweep_ExpiredAskOrderDeleted(t *testing.T) {
	s, acc, _ := newSweeper(t)
	id := addressing.MakeAddress(addressing.KindAskOrder, "ask1")
	raw, _ := model.Marshal(&model.AskOrder{Block: 10, Expiration: 5, Sighash: "signer"})
	if err := acc.Put(id, raw); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.sweepOrders(addressing.KindAskOrder, 20); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, present, _ := acc.Get(id); present {
		t.Fatalf("expected ask order to be swept")
	}
}

func TestSweep_UnexpiredAskOrderKept(t *testing.T) {
	s, acc, _ := newSweeper(t)
	id := addressing.MakeAddress(addressing.KindAskOrder, "ask1")
	raw, _ := model.Marshal(&model.AskOrder{Block: 10, Expiration: 50, Sighash: "signer"})
	if err := acc.Put(id, raw); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.sweepOrders(addressing.KindAskOrder, 20); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, present, _ := acc.Get(id); !present {
		t.Fatalf("expected unexpired ask order to survive")
	}
}

func TestSweep_ExpiredDealOrderRefundsFee(t *testing.T) {
	s, acc, _ := newSweeper(t)
	id := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	raw, _ := model.Marshal(&model.DealOrder{Block: 10, Expiration: 5, Fee: "1000", Sighash: "fundraiser"})
	if err := acc.Put(id, raw); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.sweepDealOrders(20, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, present, _ := acc.Get(id); present {
		t.Fatalf("expected deal order to be swept")
	}
	_, _, balance, err := fees.LoadWallet(acc, "fundraiser")
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if balance.String() != "1000" {
		t.Fatalf("expected fee refund of 1000, got %s", balance.String())
	}
}

func TestSweep_ExpiredDealOrderRefundWithheldBelowFixBlock(t *testing.T) {
	s, acc, _ := newSweeper(t)
	s.DealExpFixBlock = 278890
	id := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	raw, _ := model.Marshal(&model.DealOrder{Block: 10, Expiration: 5, Fee: "1000", Sighash: "fundraiser"})
	if err := acc.Put(id, raw); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.sweepDealOrders(20, 100); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, present, _ := acc.Get(id); present {
		t.Fatalf("expected deal order to be swept even without refund")
	}
	_, _, balance, err := fees.LoadWallet(acc, "fundraiser")
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected no refund below fix block, got %s", balance.String())
	}
}

func TestSweep_FundedDealOrderNeverExpires(t *testing.T) {
	s, acc, _ := newSweeper(t)
	id := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	raw, _ := model.Marshal(&model.DealOrder{Block: 10, Expiration: 5, Fee: "1000", Sighash: "fundraiser", LoanTransfer: "xfer1"})
	if err := acc.Put(id, raw); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.sweepDealOrders(20, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, present, _ := acc.Get(id); !present {
		t.Fatalf("expected funded deal order to survive despite elapsed expiration")
	}
}

func TestSweep_FeeReceiptRefundedAfterOneYear(t *testing.T) {
	s, acc, _ := newSweeper(t)
	id := addressing.MakeAddress(addressing.KindFeeReceipt, "tx1")
	raw, _ := model.Marshal(&model.FeeReceipt{Sighash: "signer", Block: 100})
	if err := acc.Put(id, raw); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.sweepFeeReceipts(100 + fees.YearOfBlocks + 1); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, present, _ := acc.Get(id); present {
		t.Fatalf("expected fee receipt to be refunded and deleted")
	}
	_, _, balance, err := fees.LoadWallet(acc, "signer")
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if balance.Cmp(fees.TxFee) != 0 {
		t.Fatalf("expected refund of TxFee, got %s", balance.String())
	}
}

func TestRun_PaysRewardsOverRange(t *testing.T) {
	s, acc, mem := newSweeper(t)
	mem.SetSigByNum(31, "signer-a")
	mem.SetSigByNum(32, "signer-b")
	if err := s.Run(32, 100, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	_, _, balA, err := fees.LoadWallet(acc, "signer-a")
	if err != nil {
		t.Fatalf("load wallet a: %v", err)
	}
	if balA.Cmp(fees.RewardAmountPreUpdate1) != 0 {
		t.Fatalf("expected signer-a rewarded, got %s", balA.String())
	}
	_, _, balB, err := fees.LoadWallet(acc, "signer-b")
	if err != nil {
		t.Fatalf("load wallet b: %v", err)
	}
	if balB.Cmp(fees.RewardAmountPreUpdate1) != 0 {
		t.Fatalf("expected signer-b rewarded, got %s", balB.String())
	}
	marker, present, err := acc.Get(addressing.ProcessedBlockMarkerAddress())
	if err != nil || !present {
		t.Fatalf("expected processed marker to be set: %v", err)
	}
	if string(marker) != "32" {
		t.Fatalf("expected processed marker 32, got %s", marker)
	}
}

func TestPayRewards_FormulaSwitchDecidedOnceForWholeBatch(t *testing.T) {
	// The batch straddles update1Block+RewardUpdate1Grace: the batch's lower
	// bound sits just below that line, signer-a's block sits on it and
	// signer-b's sits above it. The legacy processor
	// decides the flat-vs-decaying switch once, from the batch's lower
	// bound (lastProcessed), so both blocks must get the same (flat)
	// reward rather than signer-a getting flat and signer-b decaying.
	s, acc, mem := newSweeper(t)
	update1Block := uint64(10)
	s.Settings.Seed(map[string]string{settings.KeyUpdate1Block: "10"})

	lastProcessed := update1Block + fees.RewardUpdate1Grace - 1 // still within grace
	blockA := lastProcessed + 1                                 // exactly at the grace line
	blockB := update1Block + fees.RewardUpdate1Grace + 1        // past grace on its own
	mem.SetSigByNum(blockA, "signer-a")
	mem.SetSigByNum(blockB, "signer-b")

	if err := s.payRewards(lastProcessed, blockB); err != nil {
		t.Fatalf("pay rewards: %v", err)
	}

	_, _, balA, err := fees.LoadWallet(acc, "signer-a")
	if err != nil {
		t.Fatalf("load wallet a: %v", err)
	}
	if balA.Cmp(fees.RewardAmountPreUpdate1) != 0 {
		t.Fatalf("expected signer-a flat reward, got %s", balA.String())
	}
	_, _, balB, err := fees.LoadWallet(acc, "signer-b")
	if err != nil {
		t.Fatalf("load wallet b: %v", err)
	}
	if balB.Cmp(fees.RewardAmountPreUpdate1) != 0 {
		t.Fatalf("expected signer-b to also get the flat reward, since the whole batch decides the switch from lastProcessed, got %s", balB.String())
	}
}

func TestRun_RejectsAlreadyProcessedBlock(t *testing.T) {
	s, acc, _ := newSweeper(t)
	if err := acc.Put(addressing.ProcessedBlockMarkerAddress(), []byte("50")); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	if err := s.Run(40, 100, 0); err == nil {
		t.Fatalf("expected error for already-processed block")
	}
}

func TestRun_RejectsUnconfirmedBlock(t *testing.T) {
	s, _, _ := newSweeper(t)
	if err := s.Run(2*ConfirmationCount, 2*ConfirmationCount, 0); err == nil {
		t.Fatalf("expected error: blockIdx not yet below head-ConfirmationCount")
	}
}
