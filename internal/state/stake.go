package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/internal/smt"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Stake errors.
var (
	ErrStakeNotFound  = errors.New("stake entry does not exist")
	ErrStakeLocked    = errors.New("stake is still locked")
	ErrStakeTooSmall  = errors.New("stake below minimum value")
	ErrStakeBadEpoch  = errors.New("stake epoch range is invalid")
	ErrStakeCorrupt   = errors.New("corrupt stake record")
	ErrStakeNotNative = errors.New("stake output must be native denom")
)

// StakeEntry is one validator deposit, stored in the stakes mapping
// keyed by the hash of the staking transaction. The entry stays in the
// mapping after expiry until an unstake transaction reclaims it, so
// the deposit can never be destroyed by the passage of time alone.
type StakeEntry struct {
	Validator     []byte // compressed 33-byte pubkey
	Value         uint256.Int
	EpochStart    uint64
	EpochEnd      uint64
	UnlockCovhash types.Hash
}

// stakeRecordSize is the canonical stake encoding length:
// validator(33) | value(32, big-endian) | epoch_start(8) |
// epoch_end(8) | unlock_covhash(32).
const stakeRecordSize = crypto.PublicKeySize + 32 + 8 + 8 + types.HashSize

// Encode returns the canonical stake encoding.
func (s *StakeEntry) Encode() []byte {
	buf := make([]byte, 0, stakeRecordSize)
	buf = append(buf, s.Validator...)
	v := s.Value.Bytes32()
	buf = append(buf, v[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, s.EpochStart)
	buf = binary.LittleEndian.AppendUint64(buf, s.EpochEnd)
	buf = append(buf, s.UnlockCovhash[:]...)
	return buf
}

// DecodeStakeEntry parses a stake record from the stakes mapping.
func DecodeStakeEntry(b []byte) (*StakeEntry, error) {
	if len(b) != stakeRecordSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrStakeCorrupt, len(b), stakeRecordSize)
	}
	s := &StakeEntry{Validator: make([]byte, crypto.PublicKeySize)}
	copy(s.Validator, b[:crypto.PublicKeySize])
	off := crypto.PublicKeySize
	s.Value.SetBytes32(b[off : off+32])
	off += 32
	s.EpochStart = binary.LittleEndian.Uint64(b[off:])
	s.EpochEnd = binary.LittleEndian.Uint64(b[off+8:])
	copy(s.UnlockCovhash[:], b[off+16:])
	return s, nil
}

// stakeKey derives the stakes-mapping key for a staking tx hash.
func stakeKey(txHash types.Hash) types.Hash {
	return crypto.Hash(txHash[:])
}

// Epoch returns the staking epoch a block height falls in.
func Epoch(height uint64) uint64 {
	return height / config.StakeEpoch
}

// VotePower is a validator's total staked value for one epoch.
type VotePower struct {
	Validator []byte
	Power     uint256.Int
}

// VoteSnapshot sums staked value per validator over all entries active
// in the given epoch. Expired or not-yet-active entries carry no
// power but stay in the mapping until reclaimed.
func (s *State) VoteSnapshot(epoch uint64) (map[string]*VotePower, error) {
	return voteSnapshot(s.stakes, epoch)
}

// VoteSnapshot reads voting weights from the committed stakes root,
// so the consensus layer can weight votes without deriving a working
// state.
func (ss *SealedState) VoteSnapshot(epoch uint64) (map[string]*VotePower, error) {
	return voteSnapshot(smt.NewTree(ss.store, ss.stakesRoot), epoch)
}

func voteSnapshot(stakes *smt.Tree, epoch uint64) (map[string]*VotePower, error) {
	snapshot := make(map[string]*VotePower)
	err := stakes.ForEach(func(_ types.Hash, value []byte) error {
		entry, err := DecodeStakeEntry(value)
		if err != nil {
			return err
		}
		if epoch < entry.EpochStart || epoch >= entry.EpochEnd {
			return nil
		}
		k := string(entry.Validator)
		vp, ok := snapshot[k]
		if !ok {
			vp = &VotePower{Validator: entry.Validator}
			snapshot[k] = vp
		}
		if _, overflow := vp.Power.AddOverflow(&vp.Power, &entry.Value); overflow {
			return ErrValueOverflow
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
