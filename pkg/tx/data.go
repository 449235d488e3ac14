package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// StakeDataSize is the exact length of a stake transaction's payload:
// validator(33) | epoch_start(8) | epoch_end(8) | unlock_covhash(32).
const StakeDataSize = crypto.PublicKeySize + 8 + 8 + types.HashSize

// StakeData is the decoded payload of a Stake transaction.
type StakeData struct {
	Validator     []byte     // compressed 33-byte pubkey
	EpochStart    uint64     // first epoch the stake votes in
	EpochEnd      uint64     // first epoch the stake no longer votes in
	UnlockCovhash types.Hash // covenant that reclaims the expired stake
}

// Encode returns the canonical stake payload.
func (s *StakeData) Encode() []byte {
	buf := make([]byte, 0, StakeDataSize)
	buf = append(buf, s.Validator...)
	buf = binary.LittleEndian.AppendUint64(buf, s.EpochStart)
	buf = binary.LittleEndian.AppendUint64(buf, s.EpochEnd)
	buf = append(buf, s.UnlockCovhash[:]...)
	return buf
}

// ParseStakeData decodes and sanity-checks a stake payload.
func ParseStakeData(data []byte) (*StakeData, error) {
	if len(data) != StakeDataSize {
		return nil, fmt.Errorf("stake data must be %d bytes, got %d", StakeDataSize, len(data))
	}
	s := &StakeData{}
	s.Validator = make([]byte, crypto.PublicKeySize)
	copy(s.Validator, data[:crypto.PublicKeySize])
	off := crypto.PublicKeySize
	s.EpochStart = binary.LittleEndian.Uint64(data[off:])
	s.EpochEnd = binary.LittleEndian.Uint64(data[off+8:])
	copy(s.UnlockCovhash[:], data[off+16:])
	if s.EpochEnd <= s.EpochStart {
		return nil, fmt.Errorf("stake epoch range [%d, %d) is empty", s.EpochStart, s.EpochEnd)
	}
	return s, nil
}

// ParsePoolData decodes the pool-key payload carried by Swap,
// LiqDeposit, and LiqWithdraw transactions.
func ParsePoolData(data []byte) (types.PoolKey, error) {
	key, err := types.PoolKeyFromBytes(data)
	if err != nil {
		return types.PoolKey{}, fmt.Errorf("pool data: %w", err)
	}
	return key, nil
}

// ParseUnstakeData decodes the payload of an Unstake transaction: the
// hash of the staking transaction whose entry is being reclaimed.
func ParseUnstakeData(data []byte) (types.Hash, error) {
	if len(data) != types.HashSize {
		return types.Hash{}, fmt.Errorf("unstake data must be %d bytes, got %d", types.HashSize, len(data))
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}
