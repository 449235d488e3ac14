// Package state implements the ledger state: the sparse Merkle
// sub-mappings for coins, transactions, pools, stakes, and history,
// and the transition rules that mutate them.
package state

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// CoinRecord is the value stored in the coins mapping: the output data
// plus the height of the block that created it.
type CoinRecord struct {
	tx.CoinData
	Height uint64
}

// Encode returns the canonical coin record encoding.
// Format: covhash(32) | value(32, big-endian) | denom(32) |
// height(8) | extra_len(4) | extra
func (c *CoinRecord) Encode() []byte {
	buf := make([]byte, 0, 108+len(c.ExtraData))
	buf = append(buf, c.Covhash[:]...)
	v := c.Value.Bytes32()
	buf = append(buf, v[:]...)
	buf = append(buf, c.Denom[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, c.Height)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.ExtraData)))
	buf = append(buf, c.ExtraData...)
	return buf
}

// DecodeCoinRecord parses a coin record from the coins mapping.
func DecodeCoinRecord(b []byte) (*CoinRecord, error) {
	const fixed = 32 + 32 + 32 + 8 + 4
	if len(b) < fixed {
		return nil, fmt.Errorf("coin record too short: %d bytes", len(b))
	}
	c := &CoinRecord{}
	copy(c.Covhash[:], b[:32])
	var v uint256.Int
	v.SetBytes32(b[32:64])
	c.Value = v
	copy(c.Denom[:], b[64:96])
	c.Height = binary.LittleEndian.Uint64(b[96:104])
	extraLen := binary.LittleEndian.Uint32(b[104:108])
	if len(b) != fixed+int(extraLen) {
		return nil, fmt.Errorf("coin record length %d does not match extra length %d", len(b), extraLen)
	}
	if extraLen > 0 {
		c.ExtraData = make([]byte, extraLen)
		copy(c.ExtraData, b[fixed:])
	}
	return c, nil
}

// coinKey derives the coins-mapping key for a coin id. Keys are hashed
// so tree paths are uniformly distributed regardless of input shape.
func coinKey(id types.CoinID) types.Hash {
	return crypto.Hash(id.Bytes())
}

// txKey derives the transactions-mapping key for a transaction hash.
func txKey(h types.Hash) types.Hash {
	return crypto.Hash(h[:])
}

// historyKey derives the history-mapping key for a block height.
func historyKey(height uint64) types.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], height)
	return crypto.Hash(buf[:])
}
