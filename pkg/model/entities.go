// Package model defines the entity structs the verb handlers manipulate
// (spec.md §3) and their JSON codec. Entities only ever reference each
// other by merkle address string (spec.md §9 "cyclic references"); no
// entity embeds another.
package model

import "encoding/json"

// Wallet tracks a non-negative arbitrary-precision balance keyed by sighash.
type Wallet struct {
	Amount string `json:"amount"` // base-10, non-negative
}

// Address is an immutable binding of a foreign-chain address string to a
// sighash, registered once via RegisterAddress.
type Address struct {
	Blockchain string `json:"blockchain"`
	Value      string `json:"value"` // original case
	Network    string `json:"network"`
	Sighash    string `json:"sighash"` // owner
}

// Transfer attests a foreign-chain transfer, registered by RegisterTransfer
// after gateway verification (or with the "0" txid sentinel). Processed is
// write-once (spec.md invariant 3).
type Transfer struct {
	Blockchain     string `json:"blockchain"`
	SrcAddress     string `json:"srcAddress"`
	DstAddress     string `json:"dstAddress"`
	Order          string `json:"order"`
	Amount         string `json:"amount"`
	Tx             string `json:"tx"`
	Block          uint64 `json:"block"`
	Processed      bool   `json:"processed"`
	Sighash        string `json:"sighash"`
}

// AskOrder is a fundraiser's offer to borrow.
type AskOrder struct {
	Blockchain string `json:"blockchain"`
	Address    string `json:"address"`
	Amount     string `json:"amount"`
	Interest   string `json:"interest"`
	Maturity   string `json:"maturity"`
	Fee        string `json:"fee"`
	Expiration uint64 `json:"expiration"`
	Block      uint64 `json:"block"`
	Sighash    string `json:"sighash"`
}

// BidOrder is an investor's offer to lend. Same shape as AskOrder.
type BidOrder struct {
	Blockchain string `json:"blockchain"`
	Address    string `json:"address"`
	Amount     string `json:"amount"`
	Interest   string `json:"interest"`
	Maturity   string `json:"maturity"`
	Fee        string `json:"fee"`
	Expiration uint64 `json:"expiration"`
	Block      uint64 `json:"block"`
	Sighash    string `json:"sighash"`
}

// Offer pairs a compatible AskOrder and BidOrder pending a DealOrder.
type Offer struct {
	Blockchain string `json:"blockchain"`
	AskOrder   string `json:"askOrder"`
	BidOrder   string `json:"bidOrder"`
	Expiration uint64 `json:"expiration"`
	Block      uint64 `json:"block"`
	Sighash    string `json:"sighash"`
}

// DealOrder states: open -> completed (LoanTransfer set) -> locked (Lock
// set) -> closed (RepaymentTransfer set). Exempt jumps completed -> closed.
type DealOrder struct {
	Blockchain        string `json:"blockchain"`
	SrcAddress        string `json:"srcAddress"`
	DstAddress        string `json:"dstAddress"`
	Amount            string `json:"amount"`
	Interest          string `json:"interest"`
	Maturity          string `json:"maturity"`
	Fee               string `json:"fee"`
	Expiration        uint64 `json:"expiration"`
	Block             uint64 `json:"block"`
	LoanTransfer      string `json:"loanTransfer"`
	Lock              string `json:"lock"`
	RepaymentTransfer string `json:"repaymentTransfer"`
	Sighash           string `json:"sighash"` // fundraiser
}

// IsOpen reports whether no loan has been disbursed yet.
func (d *DealOrder) IsOpen() bool { return d.LoanTransfer == "" }

// IsCompleted reports whether the loan has disbursed but no repayment lock
// has been taken yet.
func (d *DealOrder) IsCompleted() bool { return d.LoanTransfer != "" && d.Lock == "" }

// IsLocked reports whether a repayment collector holds the lock.
func (d *DealOrder) IsLocked() bool { return d.Lock != "" && d.RepaymentTransfer == "" }

// IsClosed reports whether the deal has been fully repaid or exempted.
func (d *DealOrder) IsClosed() bool { return d.RepaymentTransfer != "" }

// RepaymentOrder lets a third party take over collecting a completed deal's
// repayment.
type RepaymentOrder struct {
	Blockchain    string `json:"blockchain"`
	SrcAddress    string `json:"srcAddress"`
	DstAddress    string `json:"dstAddress"`
	Amount        string `json:"amount"`
	Expiration    uint64 `json:"expiration"`
	Block         uint64 `json:"block"`
	Deal          string `json:"deal"`
	Sighash       string `json:"sighash"` // collector
	PreviousOwner string `json:"previousOwner"`
	Transfer      string `json:"transfer"`
}

// FeeReceipt records a single TX_FEE charge pending refund after
// YEAR_OF_BLOCKS blocks.
type FeeReceipt struct {
	Sighash string `json:"sighash"`
	Block   uint64 `json:"block"`
}

// Erc20CollectMarker prevents double-collection of the same foreign-chain
// mint transaction. Value is the collected amount as a decimal string.
type Erc20CollectMarker struct {
	Amount string `json:"amount"`
}

// Marshal/Unmarshal helpers centralize the wire codec so every verb handler
// and the replay engine agree on the same byte representation.

func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
