package verbs

import (
	"testing"

	"github.com/creditcoin-project/ccprocessor/pkg/addressing"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
	"github.com/creditcoin-project/ccprocessor/pkg/model"
)

func seedOffer(t *testing.T, rt *Runtime, fundraiser, investor string) (offerID, askID, bidID string) {
	t.Helper()
	askID = addressing.MakeAddress(addressing.KindAskOrder, "ask-nonce")
	bidID = addressing.MakeAddress(addressing.KindBidOrder, "bid-nonce")
	askAddrID := addressing.MakeAddress(addressing.KindAddress, "fundraiser-addr")
	bidAddrID := addressing.MakeAddress(addressing.KindAddress, "investor-addr")
	rawAsk, _ := model.Marshal(&model.AskOrder{
		Blockchain: "ethereum", Address: askAddrID, Amount: "1000", Interest: "100000", Maturity: "100",
		Fee: "5", Expiration: 1000, Block: 1, Sighash: fundraiser,
	})
	rawBid, _ := model.Marshal(&model.BidOrder{
		Blockchain: "ethereum", Address: bidAddrID, Amount: "1000", Interest: "100000", Maturity: "100",
		Fee: "20", Expiration: 1000, Block: 1, Sighash: investor,
	})
	if err := rt.Store.Put(askID, rawAsk); err != nil {
		t.Fatalf("put ask: %v", err)
	}
	if err := rt.Store.Put(bidID, rawBid); err != nil {
		t.Fatalf("put bid: %v", err)
	}
	offerID = addressing.MakeAddress(addressing.KindOffer, askID+bidID)
	rawOffer, _ := model.Marshal(&model.Offer{
		Blockchain: "ethereum", AskOrder: askID, BidOrder: bidID, Expiration: 1000, Block: 1, Sighash: fundraiser,
	})
	if err := rt.Store.Put(offerID, rawOffer); err != nil {
		t.Fatalf("put offer: %v", err)
	}
	return offerID, askID, bidID
}

func TestAddDealOrder_CreatesDealAndDeletesOfferAndOrders(t *testing.T) {
	rt, _ := newRuntime(t)
	offerID, askID, bidID := seedOffer(t, rt, "fundraiser", "investor")
	if err := fees.Credit(rt.Store, "investor", bigFromString("1000000000000000020")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tc := TxContext{Sighash: "investor", Nonce: "deal-tx1", Head: 5}
	if err := rt.AddDealOrder(tc, offerID, "900"); err != nil {
		t.Fatalf("add deal order: %v", err)
	}

	dealID := addressing.MakeAddress(addressing.KindDealOrder, offerID)
	deal, err := loadDealOrder(rt, dealID)
	if err != nil {
		t.Fatalf("load deal: %v", err)
	}
	if deal.Sighash != "investor" || deal.Amount != "1000" || !deal.IsOpen() {
		t.Fatalf("unexpected deal: %+v", deal)
	}
	for _, id := range []string{offerID, askID, bidID} {
		if _, present, _ := rt.Store.Get(id); present {
			t.Fatalf("expected %s to be deleted", id)
		}
	}
}

func TestAddDealOrder_RejectsSignerNotOwningBid(t *testing.T) {
	rt, _ := newRuntime(t)
	offerID, _, _ := seedOffer(t, rt, "fundraiser", "investor")
	tc := TxContext{Sighash: "fundraiser", Nonce: "deal-tx1", Head: 5}
	if err := rt.AddDealOrder(tc, offerID, "900"); err == nil {
		t.Fatalf("expected error: signer does not own the bid order")
	}
}

func seedDealOrder(t *testing.T, rt *Runtime, dealID string, deal *model.DealOrder) {
	t.Helper()
	raw, _ := model.Marshal(deal)
	if err := rt.Store.Put(dealID, raw); err != nil {
		t.Fatalf("put deal: %v", err)
	}
}

func seedAddress(t *testing.T, rt *Runtime, id, sighash string) {
	t.Helper()
	seedAddressValue(t, rt, id, sighash, "0xX-"+id[len(id)-8:])
}

func seedAddressValue(t *testing.T, rt *Runtime, id, sighash, value string) {
	t.Helper()
	raw, _ := model.Marshal(&model.Address{Blockchain: "ethereum", Value: value, Network: "mainnet", Sighash: sighash})
	if err := rt.Store.Put(id, raw); err != nil {
		t.Fatalf("put address: %v", err)
	}
}

func seedTransfer(t *testing.T, rt *Runtime, id string, tr *model.Transfer) {
	t.Helper()
	raw, _ := model.Marshal(tr)
	if err := rt.Store.Put(id, raw); err != nil {
		t.Fatalf("put transfer: %v", err)
	}
}

func TestCompleteDealOrder_CreditsPositiveNetFee(t *testing.T) {
	rt, _ := newRuntime(t)
	srcAddrID := addressing.MakeAddress(addressing.KindAddress, "src-addr")
	seedAddress(t, rt, srcAddrID, "fundraiser")
	dealID := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	seedDealOrder(t, rt, dealID, &model.DealOrder{
		SrcAddress: srcAddrID, Amount: "1000", Fee: "20000000000000000", Expiration: 1000, Block: 1, Sighash: "investor",
	})
	transferID := addressing.MakeAddress(addressing.KindTransfer, "xfer1")
	seedTransfer(t, rt, transferID, &model.Transfer{Order: dealID, Amount: "1000", Sighash: "fundraiser"})

	tc := TxContext{Sighash: "fundraiser", Nonce: "complete-tx1", Head: 50}
	if err := rt.CompleteDealOrder(tc, dealID, transferID); err != nil {
		t.Fatalf("complete deal order: %v", err)
	}

	_, _, bal, err := fees.LoadWallet(rt.Store, "fundraiser")
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	// fee(2e16) - TX_FEE(1e16) = 1e16
	if bal.String() != "10000000000000000" {
		t.Fatalf("unexpected balance: %s", bal.String())
	}
	deal, err := loadDealOrder(rt, dealID)
	if err != nil {
		t.Fatalf("reload deal: %v", err)
	}
	if deal.LoanTransfer != transferID || deal.Block != 50 {
		t.Fatalf("unexpected deal after complete: %+v", deal)
	}
	transfer, err := loadTransfer(rt, transferID)
	if err != nil {
		t.Fatalf("reload transfer: %v", err)
	}
	if !transfer.Processed {
		t.Fatalf("expected transfer to be marked processed")
	}
}

func TestCompleteDealOrder_DebitsWhenFeeBelowTxFee(t *testing.T) {
	rt, _ := newRuntime(t)
	srcAddrID := addressing.MakeAddress(addressing.KindAddress, "src-addr")
	seedAddress(t, rt, srcAddrID, "fundraiser")
	if err := fees.Credit(rt.Store, "fundraiser", fees.TxFee); err != nil {
		t.Fatalf("seed: %v", err)
	}
	dealID := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	seedDealOrder(t, rt, dealID, &model.DealOrder{
		SrcAddress: srcAddrID, Amount: "1000", Fee: "100", Expiration: 1000, Block: 1, Sighash: "investor",
	})
	transferID := addressing.MakeAddress(addressing.KindTransfer, "xfer1")
	seedTransfer(t, rt, transferID, &model.Transfer{Order: dealID, Amount: "1000", Sighash: "fundraiser"})

	tc := TxContext{Sighash: "fundraiser", Nonce: "complete-tx1", Head: 50}
	if err := rt.CompleteDealOrder(tc, dealID, transferID); err != nil {
		t.Fatalf("complete deal order: %v", err)
	}
	_, _, bal, err := fees.LoadWallet(rt.Store, "fundraiser")
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	// seeded TX_FEE(1e16) debited by (TX_FEE - fee(100)) leaves fee(100).
	if bal.String() != "100" {
		t.Fatalf("unexpected balance after low-fee completion: %s", bal.String())
	}
}

func TestLockDealOrder_RequiresLoanTransferAndOwnership(t *testing.T) {
	rt, _ := newRuntime(t)
	dealID := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	seedDealOrder(t, rt, dealID, &model.DealOrder{Sighash: "investor"})
	if err := fees.Credit(rt.Store, "investor", fees.TxFee); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tc := TxContext{Sighash: "investor", Nonce: "lock-tx1", Head: 5}
	if err := rt.LockDealOrder(tc, dealID); err == nil {
		t.Fatalf("expected error: no loan transfer yet")
	}

	seedDealOrder(t, rt, dealID, &model.DealOrder{Sighash: "investor", LoanTransfer: "xfer1"})
	if err := rt.LockDealOrder(tc, dealID); err != nil {
		t.Fatalf("lock deal order: %v", err)
	}
	deal, err := loadDealOrder(rt, dealID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if deal.Lock != "investor" {
		t.Fatalf("expected lock to be set to investor, got %q", deal.Lock)
	}
}

func TestCloseDealOrder_RequiresSufficientRepayment(t *testing.T) {
	rt, _ := newRuntime(t)
	loanTransferID := addressing.MakeAddress(addressing.KindTransfer, "loan1")
	seedTransfer(t, rt, loanTransferID, &model.Transfer{Block: 10})
	dealID := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	seedDealOrder(t, rt, dealID, &model.DealOrder{
		Sighash: "investor", Lock: "investor", LoanTransfer: loanTransferID,
		Amount: "1000", Interest: "100000", Maturity: "10",
	})
	repayID := addressing.MakeAddress(addressing.KindTransfer, "repay1")
	seedTransfer(t, rt, repayID, &model.Transfer{Order: dealID, Amount: "1005"})
	if err := fees.Credit(rt.Store, "investor", fees.TxFee); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tc := TxContext{Sighash: "investor", Nonce: "close-tx1", Head: 20}
	if err := rt.CloseDealOrder(tc, dealID, repayID); err == nil {
		t.Fatalf("expected error: repayment below compounded debt")
	}

	repayID2 := addressing.MakeAddress(addressing.KindTransfer, "repay2")
	seedTransfer(t, rt, repayID2, &model.Transfer{Order: dealID, Amount: "1100"})
	if err := rt.CloseDealOrder(tc, dealID, repayID2); err != nil {
		t.Fatalf("close deal order: %v", err)
	}
	deal, err := loadDealOrder(rt, dealID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if deal.RepaymentTransfer != repayID2 || !deal.IsClosed() {
		t.Fatalf("expected deal to be closed with repayment %s, got %+v", repayID2, deal)
	}
}

func TestExempt_SkipsCompoundCheck(t *testing.T) {
	rt, _ := newRuntime(t)
	srcAddrID := addressing.MakeAddress(addressing.KindAddress, "src-addr")
	seedAddress(t, rt, srcAddrID, "fundraiser")
	dealID := addressing.MakeAddress(addressing.KindDealOrder, "deal1")
	seedDealOrder(t, rt, dealID, &model.DealOrder{SrcAddress: srcAddrID})
	transferID := addressing.MakeAddress(addressing.KindTransfer, "xfer1")
	seedTransfer(t, rt, transferID, &model.Transfer{Order: dealID, Amount: "1"})
	if err := fees.Credit(rt.Store, "fundraiser", fees.TxFee); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tc := TxContext{Sighash: "fundraiser", Nonce: "exempt-tx1", Head: 20}
	if err := rt.Exempt(tc, dealID, transferID); err != nil {
		t.Fatalf("exempt: %v", err)
	}
	deal, err := loadDealOrder(rt, dealID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !deal.IsClosed() {
		t.Fatalf("expected deal to be closed via exempt")
	}
}
