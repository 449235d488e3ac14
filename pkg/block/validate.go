package block

import (
	"errors"
	"fmt"

	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Structural validation errors.
var (
	ErrNilHeader           = errors.New("block has nil header")
	ErrBadVersion          = errors.New("unsupported block version")
	ErrBadNetwork          = errors.New("unknown network id")
	ErrZeroTimestamp       = errors.New("block timestamp is zero")
	ErrTooManyTxs          = errors.New("too many transactions in block")
	ErrDuplicateTx         = errors.New("duplicate transaction in block")
	ErrDuplicateBlockInput = errors.New("input spent twice within block")
)

// Block version constants.
const (
	CurrentVersion = 1
	MaxVersion     = 1
)

// Validate checks block structure and internal consistency: header
// sanity, transaction count, and intra-block duplicates. It does not
// touch the ledger; coin existence, covenants, and value conservation
// are the applier's job.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}
	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}
	if b.Header.Network != types.NetMainnet && b.Header.Network != types.NetTestnet {
		return fmt.Errorf("%w: %#02x", ErrBadNetwork, uint8(b.Header.Network))
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	seenTx := make(map[types.Hash]int, len(b.Transactions))
	seenIn := make(map[types.CoinID]int)
	for i, txn := range b.Transactions {
		h := txn.Hash()
		if prev, ok := seenTx[h]; ok {
			return fmt.Errorf("tx %d: %w: same as tx %d", i, ErrDuplicateTx, prev)
		}
		seenTx[h] = i
		for _, in := range txn.Inputs {
			if prev, ok := seenIn[in]; ok {
				return fmt.Errorf("tx %d: %w: coin %s also spent in tx %d",
					i, ErrDuplicateBlockInput, in, prev)
			}
			seenIn[in] = i
		}
	}

	return nil
}
