// Package block defines block types and structural validation.
package block

import (
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// ProposerAction carries the per-block choices the proposer is allowed
// to make: nudging the fee multiplier and naming a reward destination.
type ProposerAction struct {
	// FeeMultiplierDelta moves the fee multiplier by at most
	// (multiplier >> FeeMultiplierShift) * delta / 128.
	FeeMultiplierDelta int8 `json:"fee_multiplier_delta"`

	// RewardDest is the covenant hash that receives the proposer
	// reward pseudocoin.
	RewardDest types.Hash `json:"reward_dest"`
}

// Block couples a header with the transactions that produce it and the
// proposer's per-block action. The header is a claim; the applier
// recomputes the state roots and rejects the block if they differ.
type Block struct {
	Header         *Header           `json:"header"`
	Transactions   []*tx.Transaction `json:"transactions"`
	ProposerAction *ProposerAction   `json:"proposer_action,omitempty"`
}

// NewBlock creates a block with the given header, transactions, and
// proposer action.
func NewBlock(header *Header, txs []*tx.Transaction, action *ProposerAction) *Block {
	return &Block{
		Header:         header,
		Transactions:   txs,
		ProposerAction: action,
	}
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}
