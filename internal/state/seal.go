package state

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/internal/storage"
	"github.com/solara-labs/solara-chain/pkg/block"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Seal finalizes the state for this block: it applies the proposer
// action (fee multiplier drift plus the proposer reward pseudocoin),
// commits every sub-mapping into batch, and binds the resulting roots
// into a header. The caller commits the batch only after accepting the
// header; an abandoned batch leaves the node store untouched.
func (s *State) Seal(batch storage.Batch, action *block.ProposerAction) (*SealedState, error) {
	if action != nil {
		s.driftFeeMultiplier(action.FeeMultiplierDelta)
		if err := s.payProposer(action.RewardDest); err != nil {
			return nil, err
		}
	} else {
		// No proposer action: unclaimed tips fall into the fee pool
		// instead of being destroyed.
		s.feePool.Add(&s.feePool, &s.tips)
	}
	s.tips.Clear()

	coinsRoot, err := s.coins.Commit(batch)
	if err != nil {
		return nil, fmt.Errorf("commit coins: %w", err)
	}
	txRoot, err := s.transactions.Commit(batch)
	if err != nil {
		return nil, fmt.Errorf("commit transactions: %w", err)
	}
	poolsRoot, err := s.pools.Commit(batch)
	if err != nil {
		return nil, fmt.Errorf("commit pools: %w", err)
	}
	stakesRoot, err := s.stakes.Commit(batch)
	if err != nil {
		return nil, fmt.Errorf("commit stakes: %w", err)
	}
	historyRoot, err := s.history.Commit(batch)
	if err != nil {
		return nil, fmt.Errorf("commit history: %w", err)
	}

	header := &block.Header{
		Version:          block.CurrentVersion,
		Network:          s.network,
		Previous:         s.previous,
		Height:           s.height,
		Timestamp:        s.timestamp,
		CoinsRoot:        coinsRoot,
		TransactionsRoot: txRoot,
		PoolsRoot:        poolsRoot,
		StakesRoot:       stakesRoot,
		HistoryRoot:      historyRoot,
		FeePool:          s.feePool,
		FeeMultiplier:    s.feeMultiplier,
	}
	return &SealedState{
		header:        header,
		store:         s.store,
		logger:        s.logger,
		coinsRoot:     coinsRoot,
		txRoot:        txRoot,
		poolsRoot:     poolsRoot,
		stakesRoot:    stakesRoot,
		historyRoot:   historyRoot,
		feePool:       s.feePool,
		feeMultiplier: s.feeMultiplier,
	}, nil
}

// driftFeeMultiplier moves the fee multiplier by the proposer's
// declared delta, bounded to (multiplier >> FeeMultiplierShift)
// per block and floored at FeeMultiplierMin. A proposer can nudge
// fees, never jerk them.
func (s *State) driftFeeMultiplier(delta int8) {
	if delta == 0 {
		return
	}
	maxMove := new(uint256.Int).Rsh(&s.feeMultiplier, config.FeeMultiplierShift)

	mag := uint64(delta)
	if delta < 0 {
		mag = uint64(-int64(delta))
	}
	move := new(uint256.Int).Mul(maxMove, uint256.NewInt(mag))
	move.Div(move, uint256.NewInt(128))

	if delta > 0 {
		// The multiplier grows by at most a 1/128 fraction per block,
		// so this cannot overflow in any realistic chain lifetime.
		s.feeMultiplier.Add(&s.feeMultiplier, move)
		return
	}
	floor := uint256.NewInt(config.FeeMultiplierMin)
	if new(uint256.Int).Sub(&s.feeMultiplier, move).Lt(floor) {
		s.feeMultiplier.Set(floor)
		return
	}
	s.feeMultiplier.Sub(&s.feeMultiplier, move)
}

// payProposer mints the proposer reward pseudocoin: a slice of the fee
// pool plus all of this block's tips, paid to the proposer's reward
// covenant as an ordinary native coin.
func (s *State) payProposer(rewardDest types.Hash) error {
	slice := new(uint256.Int).Rsh(&s.feePool, config.ProposerRewardShift)
	s.feePool.Sub(&s.feePool, slice)

	reward := new(uint256.Int).Add(slice, &s.tips)
	if reward.IsZero() {
		return nil
	}

	rec := &CoinRecord{
		CoinData: tx.CoinData{
			Covhash: rewardDest,
			Value:   *reward,
			Denom:   types.DenomSol,
		},
		Height: s.height,
	}
	return s.putCoin(rewardCoinID(s.height), rec)
}

// rewardCoinID derives the pseudocoin id for the proposer reward at a
// height. No transaction hashes to this id, so reward coins can never
// collide with transaction outputs.
func rewardCoinID(height uint64) types.CoinID {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], height)
	return types.CoinID{TxID: crypto.HashParts([]byte("reward/"), buf[:])}
}
