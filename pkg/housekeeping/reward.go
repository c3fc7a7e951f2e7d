package housekeeping

import (
	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
	"github.com/creditcoin-project/ccprocessor/pkg/fees"
)

// payRewards pays the block reward for every block in (lastProcessed,
// blockIdx], crediting each block's signer sighash (spec.md §4.4). The
// signers for the whole range are resolved through the host's signature
// index (see rewardSignatures); a block whose signer comes back empty is
// not rewarded.
func (s *Sweeper) payRewards(lastProcessed, blockIdx uint64) error {
	if blockIdx <= lastProcessed {
		return nil
	}
	update1Block, update1Active := uint64(0), false
	if s.Settings != nil {
		update1Block, update1Active = s.Settings.Update1Block()
	}
	// The pre/post-update1 formula switch is decided once for the whole
	// batch, from its lower bound, not re-decided for every rewarded
	// block — matching the legacy processor's single reward() decision.
	newFormula := fees.NewFormulaActive(lastProcessed, update1Block, update1Active)

	first := lastProcessed + 1
	sigs, err := s.rewardSignatures(first, blockIdx)
	if err != nil {
		return err
	}
	for i, sig := range sigs {
		blockNum := first + uint64(i)
		if sig == "" {
			continue
		}
		reward := fees.BlockRewardWithFormula(blockNum, newFormula)
		if err := fees.Credit(s.Store, sig, reward); err != nil {
			return err
		}
		if s.Logger != nil {
			s.Logger.Infow("block_reward", "block", blockNum, "sighash", sig, "amount", reward.String())
		}
	}
	return nil
}

// rewardSignatures resolves the signer sighash for every block in
// [first, last]: it looks up the signature of block last with SigByNum,
// then asks RewardBlockSignatures for the whole range in one call. If block
// last has no signature, every entry comes back empty.
func (s *Sweeper) rewardSignatures(first, last uint64) ([]string, error) {
	if first > last {
		return nil, nil
	}
	tipSig, err := s.Store.SigByNum(last)
	if err != nil {
		return nil, apperr.InternalWrap(err, "resolve tip signature")
	}
	if tipSig == "" {
		return make([]string, last-first+1), nil
	}
	sigs, err := s.Store.RewardBlockSignatures(tipSig, first, last)
	if err != nil {
		return nil, apperr.InternalWrap(err, "resolve reward signatures")
	}
	if uint64(len(sigs)) != last-first+1 {
		return nil, apperr.Internal("reward signature count mismatch")
	}
	return sigs, nil
}
