// Package config holds node configuration and the pinned protocol
// constants of the Solara ledger.
//
// Configuration is split into two categories:
//   - Protocol rules: consensus-critical constants that MUST match
//     across all nodes, byte for byte, or the network splits.
//   - Node settings: runtime configuration that can vary per node.
package config

import (
	"math"

	"github.com/holiman/uint256"
)

// =============================================================================
// Protocol Rules (consensus-critical, version 1)
// Changing any value here is a hard fork.
// =============================================================================

// Denomination constants.
// 1 coin = 10^6 base units. All on-chain values are in base units.
const (
	Decimals  = 6
	MicroCoin = 1
	Coin      = 1_000_000
)

// Block and transaction size limits.
const (
	MaxBlockTxs     = 8192    // Max transactions per block.
	MaxTxInputs     = 256     // Max inputs per transaction.
	MaxTxOutputs    = 256     // Max outputs per transaction.
	MaxCovenantSize = 8_192   // Max covenant bytecode length.
	MaxWitnessSize  = 4_096   // Max single witness element length.
	MaxTxDataSize   = 65_536  // Max structured-data payload per transaction.
	MaxTxWeight     = 512_000 // Max canonical encoding size of one transaction.
)

// Fee rules. The minimum fee of a transaction is its canonical encoded
// weight multiplied by the state's current fee multiplier, which drifts
// per block within the bounds the proposer is allowed to move it.
const (
	// FeeMultiplierShift bounds how far a proposer may move the fee
	// multiplier in one block: at most multiplier>>shift, scaled by a
	// signed 8-bit delta over 128.
	FeeMultiplierShift = 7

	// FeeMultiplierMin is the floor of the fee multiplier; the drift
	// rule never takes it below this.
	FeeMultiplierMin = 1

	// InitialFeeMultiplier is the fee multiplier at genesis.
	InitialFeeMultiplier = 1000

	// ProposerRewardShift controls the fraction of the fee pool paid
	// out to a block proposer: fee_pool >> shift per block.
	ProposerRewardShift = 16
)

// AMM pool rules.
const (
	// PoolFeeBps is the swap fee in basis points skimmed from the
	// input amount before the constant-product computation (30 = 0.3%).
	PoolFeeBps = 30

	// BpsDenominator is the basis-point scale.
	BpsDenominator = 10_000
)

// Staking rules.
const (
	// StakeEpoch is the number of blocks per staking epoch. Stake
	// entries are valid for whole epochs only.
	StakeEpoch = 200_000

	// MinStakeValue is the minimum deposit for a stake entry,
	// in base units.
	MinStakeValue = 1_000 * Coin
)

// Covenant gas rules.
const (
	// MaxCovenantGas caps the gas budget of a single covenant
	// execution regardless of the fee paid.
	MaxCovenantGas = 1_000_000

	// MinCovenantGas is the budget every execution gets even at zero
	// fee, enough for ordinary signature covenants.
	MinCovenantGas = 10_000
)

// CovenantGasBudget derives the gas budget for one covenant execution
// from the transaction's declared fee: one gas unit per base unit of
// fee, clamped to [MinCovenantGas, MaxCovenantGas].
func CovenantGasBudget(fee *uint256.Int) uint64 {
	if !fee.IsUint64() {
		return MaxCovenantGas
	}
	budget := fee.Uint64()
	if budget > MaxCovenantGas {
		return MaxCovenantGas
	}
	if budget < MinCovenantGas {
		return MinCovenantGas
	}
	return budget
}

// MaxAmount is the largest value a single output may carry. Bounding
// outputs well below 2^256 keeps per-denomination sums over a whole
// block far from overflow.
var MaxAmount = uint256.NewInt(0).Lsh(uint256.NewInt(1), 192)

// MaxUint64Amount is math.MaxUint64 as a 256-bit amount, used where
// legacy 64-bit quantities are widened.
var MaxUint64Amount = uint256.NewInt(math.MaxUint64)
