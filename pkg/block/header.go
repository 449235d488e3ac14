package block

import (
	"encoding/binary"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Header commits to the entire ledger state after applying the block:
// the five sparse Merkle sub-roots plus the fee pool and fee
// multiplier. Two nodes that agree on a header hash agree on every
// coin, pool, and stake in existence.
type Header struct {
	Version   uint32      `json:"version"`
	Network   types.NetID `json:"network"`
	Previous  types.Hash  `json:"previous"`
	Height    uint64      `json:"height"`
	Timestamp uint64      `json:"timestamp"`

	CoinsRoot        types.Hash `json:"coins_root"`
	TransactionsRoot types.Hash `json:"transactions_root"`
	PoolsRoot        types.Hash `json:"pools_root"`
	StakesRoot       types.Hash `json:"stakes_root"`
	HistoryRoot      types.Hash `json:"history_root"`

	FeePool       uint256.Int `json:"fee_pool"`
	FeeMultiplier uint256.Int `json:"fee_multiplier"`
}

// SigningBytes returns the canonical header encoding.
// Format: version(4) | network(1) | previous(32) | height(8) |
// timestamp(8) | coins_root(32) | transactions_root(32) |
// pools_root(32) | stakes_root(32) | history_root(32) |
// fee_pool(32, big-endian) | fee_multiplier(32, big-endian)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 277)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, byte(h.Network))
	buf = append(buf, h.Previous[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.CoinsRoot[:]...)
	buf = append(buf, h.TransactionsRoot[:]...)
	buf = append(buf, h.PoolsRoot[:]...)
	buf = append(buf, h.StakesRoot[:]...)
	buf = append(buf, h.HistoryRoot[:]...)
	fp := h.FeePool.Bytes32()
	buf = append(buf, fp[:]...)
	fm := h.FeeMultiplier.Bytes32()
	buf = append(buf, fm[:]...)
	return buf
}

// Hash computes the header hash, the block's identity.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}
