package types

import (
	"encoding/binary"
	"fmt"
)

// CoinIDSize is the canonical encoded length of a CoinID.
const CoinIDSize = HashSize + 4

// CoinID uniquely identifies a coin as an output of a transaction.
type CoinID struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the coin ID has a zero TxID and zero index.
func (c CoinID) IsZero() bool {
	return c.TxID.IsZero() && c.Index == 0
}

// Bytes returns the canonical encoding: txid(32) | index(4, little-endian).
func (c CoinID) Bytes() []byte {
	buf := make([]byte, CoinIDSize)
	copy(buf, c.TxID[:])
	binary.LittleEndian.PutUint32(buf[HashSize:], c.Index)
	return buf
}

// CoinIDFromBytes decodes a canonical CoinID encoding.
func CoinIDFromBytes(b []byte) (CoinID, error) {
	if len(b) != CoinIDSize {
		return CoinID{}, fmt.Errorf("coin id must be %d bytes, got %d", CoinIDSize, len(b))
	}
	var c CoinID
	copy(c.TxID[:], b[:HashSize])
	c.Index = binary.LittleEndian.Uint32(b[HashSize:])
	return c, nil
}

// String returns "txid:index" in hex.
func (c CoinID) String() string {
	return fmt.Sprintf("%s:%d", c.TxID.String(), c.Index)
}
