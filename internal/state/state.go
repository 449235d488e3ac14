package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/solara-labs/solara-chain/internal/log"
	"github.com/solara-labs/solara-chain/internal/smt"
	"github.com/solara-labs/solara-chain/internal/storage"
	"github.com/solara-labs/solara-chain/pkg/block"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Errors surfaced while looking up or mutating state.
var (
	ErrUnknownCoin   = errors.New("input coin does not exist")
	ErrDoubleSpend   = errors.New("input coin already spent in this block")
	ErrValueOverflow = errors.New("value sum overflow")
)

// State is the mutable ledger state while a block is being applied:
// five sparse Merkle sub-mappings sharing one node store, the fee
// accounting, and the set of coins spent so far in this block.
//
// A State is not safe for concurrent use. The applier runs stateless
// validation in parallel and then applies transactions to the State
// one at a time.
type State struct {
	store  *smt.NodeStore
	logger zerolog.Logger

	network   types.NetID
	height    uint64
	timestamp uint64
	previous  types.Hash

	coins        *smt.Tree
	transactions *smt.Tree
	pools        *smt.Tree
	stakes       *smt.Tree
	history      *smt.Tree

	feePool       uint256.Int
	feeMultiplier uint256.Int
	tips          uint256.Int

	spent map[types.CoinID]bool
}

// Network returns the network this state belongs to.
func (s *State) Network() types.NetID { return s.network }

// Height returns the height of the block being built or applied.
func (s *State) Height() uint64 { return s.height }

// FeePool returns the current fee pool balance.
func (s *State) FeePool() *uint256.Int { return s.feePool.Clone() }

// FeeMultiplier returns the current fee multiplier.
func (s *State) FeeMultiplier() *uint256.Int { return s.feeMultiplier.Clone() }

// SetTimestamp sets the timestamp the sealed header will carry.
func (s *State) SetTimestamp(ts uint64) { s.timestamp = ts }

// NewBatch opens a write batch against the underlying node store, for
// passing to Seal.
func (s *State) NewBatch() storage.Batch { return s.store.NewBatch() }

// GetCoin looks up an unspent coin.
func (s *State) GetCoin(id types.CoinID) (*CoinRecord, error) {
	raw, err := s.coins.Get(coinKey(id))
	if err != nil {
		if errors.Is(err, smt.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCoin, id)
		}
		return nil, err
	}
	return DecodeCoinRecord(raw)
}

// GetPool looks up a liquidity pool.
func (s *State) GetPool(key types.PoolKey) (*PoolState, error) {
	raw, err := s.pools.Get(poolKeyHash(key))
	if err != nil {
		if errors.Is(err, smt.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, key)
		}
		return nil, err
	}
	return DecodePoolState(raw)
}

// GetStake looks up a stake entry by the hash of its staking
// transaction.
func (s *State) GetStake(txHash types.Hash) (*StakeEntry, error) {
	raw, err := s.stakes.Get(stakeKey(txHash))
	if err != nil {
		if errors.Is(err, smt.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStakeNotFound, txHash)
		}
		return nil, err
	}
	return DecodeStakeEntry(raw)
}

// GetTransaction looks up a transaction applied in the current block.
func (s *State) GetTransaction(txHash types.Hash) (*tx.Transaction, error) {
	raw, err := s.transactions.Get(txKey(txHash))
	if err != nil {
		return nil, err
	}
	return tx.Decode(raw)
}

// GetHistoryHeader looks up a past block header by height.
func (s *State) GetHistoryHeader(height uint64) (*block.Header, error) {
	raw, err := s.history.Get(historyKey(height))
	if err != nil {
		return nil, err
	}
	return DecodeHeader(raw)
}

func (s *State) putCoin(id types.CoinID, rec *CoinRecord) error {
	return s.coins.Insert(coinKey(id), rec.Encode())
}

func (s *State) putPool(p *PoolState) error {
	return s.pools.Insert(poolKeyHash(p.Key), p.Encode())
}

// SealedState is a state whose roots have been committed and bound
// into a header. It is the anchor the next block builds on.
type SealedState struct {
	header *block.Header
	store  *smt.NodeStore
	logger zerolog.Logger

	coinsRoot   types.Hash
	txRoot      types.Hash
	poolsRoot   types.Hash
	stakesRoot  types.Hash
	historyRoot types.Hash

	feePool       uint256.Int
	feeMultiplier uint256.Int
}

// Header returns the sealed header.
func (ss *SealedState) Header() *block.Header { return ss.header }

// ResumeSealedState reconstructs a sealed state from a previously
// sealed header. The header's roots must refer to nodes present in
// the store; nothing is verified here, a missing node surfaces as a
// corruption error on first access.
func ResumeSealedState(store *smt.NodeStore, h *block.Header) *SealedState {
	return &SealedState{
		header:        h,
		store:         store,
		logger:        log.State,
		coinsRoot:     h.CoinsRoot,
		txRoot:        h.TransactionsRoot,
		poolsRoot:     h.PoolsRoot,
		stakesRoot:    h.StakesRoot,
		historyRoot:   h.HistoryRoot,
		feePool:       h.FeePool,
		feeMultiplier: h.FeeMultiplier,
	}
}

// NextState derives the working state for the block after the sealed
// one: height advances, the previous-hash links to the sealed header,
// the per-block transactions mapping starts empty, and the sealed
// header is inserted into history.
func (ss *SealedState) NextState() (*State, error) {
	s := &State{
		store:         ss.store,
		logger:        ss.logger,
		network:       ss.header.Network,
		height:        ss.header.Height + 1,
		previous:      ss.header.Hash(),
		coins:         smt.NewTree(ss.store, ss.coinsRoot),
		transactions:  smt.NewTree(ss.store, types.Hash{}),
		pools:         smt.NewTree(ss.store, ss.poolsRoot),
		stakes:        smt.NewTree(ss.store, ss.stakesRoot),
		history:       smt.NewTree(ss.store, ss.historyRoot),
		feePool:       ss.feePool,
		feeMultiplier: ss.feeMultiplier,
		spent:         make(map[types.CoinID]bool),
	}
	if err := s.history.Insert(historyKey(ss.header.Height), ss.header.SigningBytes()); err != nil {
		return nil, err
	}
	return s, nil
}

// DecodeHeader parses a header from its canonical signing bytes.
func DecodeHeader(b []byte) (*block.Header, error) {
	const headerSize = 4 + 1 + 32 + 8 + 8 + 5*32 + 2*32
	if len(b) != headerSize {
		return nil, fmt.Errorf("header record is %d bytes, want %d", len(b), headerSize)
	}
	h := &block.Header{}
	h.Version = binary.LittleEndian.Uint32(b)
	h.Network = types.NetID(b[4])
	off := 5
	copy(h.Previous[:], b[off:])
	off += 32
	h.Height = binary.LittleEndian.Uint64(b[off:])
	off += 8
	h.Timestamp = binary.LittleEndian.Uint64(b[off:])
	off += 8
	copy(h.CoinsRoot[:], b[off:])
	off += 32
	copy(h.TransactionsRoot[:], b[off:])
	off += 32
	copy(h.PoolsRoot[:], b[off:])
	off += 32
	copy(h.StakesRoot[:], b[off:])
	off += 32
	copy(h.HistoryRoot[:], b[off:])
	off += 32
	h.FeePool.SetBytes32(b[off : off+32])
	off += 32
	h.FeeMultiplier.SetBytes32(b[off : off+32])
	return h, nil
}

// newEmptyState builds a blank state over a node store; used by
// genesis construction.
func newEmptyState(store *smt.NodeStore, network types.NetID) *State {
	return &State{
		store:        store,
		logger:       log.State,
		network:      network,
		coins:        smt.NewTree(store, types.Hash{}),
		transactions: smt.NewTree(store, types.Hash{}),
		pools:        smt.NewTree(store, types.Hash{}),
		stakes:       smt.NewTree(store, types.Hash{}),
		history:      smt.NewTree(store, types.Hash{}),
		spent:        make(map[types.CoinID]bool),
	}
}
