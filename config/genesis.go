package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Genesis describes the contents of the state at height zero. It is
// immutable after launch; every node must build an identical genesis
// state or diverge at the first block.
type Genesis struct {
	Network   types.NetID `json:"network"`
	Timestamp uint64      `json:"timestamp"`

	// Coins are the initial allocations.
	Coins []GenesisCoin `json:"coins"`

	// Pools are liquidity pools seeded at genesis.
	Pools []GenesisPool `json:"pools,omitempty"`

	// Stakes are validator deposits active from epoch zero.
	Stakes []GenesisStake `json:"stakes,omitempty"`
}

// GenesisCoin is an initial coin allocation.
type GenesisCoin struct {
	Covhash types.Hash  `json:"covhash"`
	Value   uint256.Int `json:"value"`
	Denom   types.Denom `json:"denom"`
}

// GenesisPool seeds a liquidity pool with initial reserves.
type GenesisPool struct {
	DenomA   types.Denom `json:"denom_a"`
	DenomB   types.Denom `json:"denom_b"`
	ReserveA uint256.Int `json:"reserve_a"`
	ReserveB uint256.Int `json:"reserve_b"`
}

// GenesisStake is a validator deposit active from genesis.
type GenesisStake struct {
	Validator     []byte      `json:"validator"` // compressed 33-byte pubkey
	Value         uint256.Int `json:"value"`
	EpochEnd      uint64      `json:"epoch_end"`
	UnlockCovhash types.Hash  `json:"unlock_covhash"`
}

// LoadGenesis reads and validates a genesis document from a JSON file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the genesis document for internal consistency.
func (g *Genesis) Validate() error {
	if g.Network != types.NetMainnet && g.Network != types.NetTestnet {
		return fmt.Errorf("genesis: unknown network %#02x", uint8(g.Network))
	}
	for i, c := range g.Coins {
		if c.Value.IsZero() {
			return fmt.Errorf("genesis: coin %d has zero value", i)
		}
		if c.Value.Gt(MaxAmount) {
			return fmt.Errorf("genesis: coin %d exceeds max amount", i)
		}
		if c.Denom.IsZero() {
			return fmt.Errorf("genesis: coin %d has placeholder denom", i)
		}
	}
	for i, p := range g.Pools {
		if p.DenomA == p.DenomB {
			return fmt.Errorf("genesis: pool %d pairs a denom with itself", i)
		}
		if p.ReserveA.IsZero() || p.ReserveB.IsZero() {
			return fmt.Errorf("genesis: pool %d has an empty reserve", i)
		}
	}
	for i, s := range g.Stakes {
		if len(s.Validator) != crypto.PublicKeySize {
			return fmt.Errorf("genesis: stake %d validator key must be %d bytes", i, crypto.PublicKeySize)
		}
		if s.Value.IsZero() {
			return fmt.Errorf("genesis: stake %d has zero value", i)
		}
		if s.EpochEnd == 0 {
			return fmt.Errorf("genesis: stake %d expires at epoch zero", i)
		}
	}
	return nil
}
