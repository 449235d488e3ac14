package state

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/internal/log"
	"github.com/solara-labs/solara-chain/internal/smt"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// genesisCoinID derives the pseudocoin id for the i-th genesis
// allocation.
func genesisCoinID(index uint32) types.CoinID {
	return types.CoinID{TxID: crypto.Hash([]byte("genesis")), Index: index}
}

// genesisStakeHash derives the stakes-mapping pseudo-tx-hash for the
// i-th genesis stake.
func genesisStakeHash(index uint32) types.Hash {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], index)
	return crypto.HashParts([]byte("genesis/stake/"), buf[:])
}

// NewGenesisState builds and commits the height-zero state from a
// validated genesis document. Every node running the same document
// produces the same sealed header, which anchors the whole chain.
func NewGenesisState(store *smt.NodeStore, g *config.Genesis) (*SealedState, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	s := newEmptyState(store, g.Network)
	s.timestamp = g.Timestamp
	s.feeMultiplier = *uint256.NewInt(config.InitialFeeMultiplier)

	for i, c := range g.Coins {
		rec := &CoinRecord{
			CoinData: tx.CoinData{Covhash: c.Covhash, Value: c.Value, Denom: c.Denom},
		}
		if err := s.putCoin(genesisCoinID(uint32(i)), rec); err != nil {
			return nil, fmt.Errorf("genesis coin %d: %w", i, err)
		}
	}

	for i, p := range g.Pools {
		key, err := types.NewPoolKey(p.DenomA, p.DenomB)
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		pool := &PoolState{Key: key}
		ra, rb := &p.ReserveA, &p.ReserveB
		if key.Left != p.DenomA {
			ra, rb = rb, ra
		}
		if _, err := pool.Deposit(ra, rb); err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		if err := s.putPool(pool); err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
	}

	for i, st := range g.Stakes {
		entry := &StakeEntry{
			Validator:     st.Validator,
			Value:         st.Value,
			EpochEnd:      st.EpochEnd,
			UnlockCovhash: st.UnlockCovhash,
		}
		if err := s.stakes.Insert(stakeKey(genesisStakeHash(uint32(i))), entry.Encode()); err != nil {
			return nil, fmt.Errorf("genesis stake %d: %w", i, err)
		}
	}

	batch := store.NewBatch()
	sealed, err := s.Seal(batch, nil)
	if err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}

	log.State.Info().
		Stringer("hash", sealed.Header().Hash()).
		Int("coins", len(g.Coins)).
		Int("pools", len(g.Pools)).
		Int("stakes", len(g.Stakes)).
		Msg("genesis state sealed")
	return sealed, nil
}
