// Package chain drives the block-level state machine: stateless
// validation fanned out across workers, sequential application, and
// the seal-and-compare step that accepts or rejects a proposed header.
package chain

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/solara-labs/solara-chain/internal/log"
	"github.com/solara-labs/solara-chain/internal/state"
	"github.com/solara-labs/solara-chain/pkg/block"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Applier errors.
var (
	ErrBadHeight    = errors.New("block height does not follow tip")
	ErrBadPrevious  = errors.New("block does not extend tip")
	ErrWrongNetwork = errors.New("block is for a different network")
	ErrBadTimestamp = errors.New("block timestamp precedes tip")
	ErrRootMismatch = errors.New("header does not match computed state")
)

// TxError wraps a per-transaction failure with its position in the
// block, so a rejected block names the offending transaction.
type TxError struct {
	Index int
	Tx    types.Hash
	Err   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("tx %d (%s): %v", e.Index, e.Tx, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// Applier applies blocks on top of sealed states. It holds no chain
// state itself; every call takes the tip explicitly, so callers can
// apply speculatively against any sealed ancestor.
type Applier struct {
	workers int
	logger  zerolog.Logger
}

// NewApplier creates an applier with the given stateless-validation
// worker count. Zero means one worker per CPU.
func NewApplier(workers int) *Applier {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Applier{
		workers: workers,
		logger:  log.Chain,
	}
}

// Apply validates and applies blk on top of tip. On success the new
// sealed state is durably committed and returned; on any error the
// store is untouched and the tip remains current.
//
// Validation runs in three phases. Structural and linkage checks come
// first. Stateless transaction validation then fans out across the
// worker pool, since it depends only on each transaction and the fee
// multiplier. Finally transactions are applied in block order against
// the ledger, the state is sealed, and the computed header must equal
// the proposed one bit for bit.
func (a *Applier) Apply(tip *state.SealedState, blk *block.Block) (*state.SealedState, error) {
	if err := blk.Validate(); err != nil {
		return nil, err
	}
	prev := tip.Header()
	if blk.Header.Height != prev.Height+1 {
		return nil, fmt.Errorf("%w: tip %d, block %d", ErrBadHeight, prev.Height, blk.Header.Height)
	}
	if blk.Header.Previous != prev.Hash() {
		return nil, fmt.Errorf("%w: tip %s, block extends %s", ErrBadPrevious, prev.Hash(), blk.Header.Previous)
	}
	if blk.Header.Network != prev.Network {
		return nil, fmt.Errorf("%w: %s", ErrWrongNetwork, blk.Header.Network)
	}
	if blk.Header.Timestamp < prev.Timestamp {
		return nil, fmt.Errorf("%w: tip %d, block %d", ErrBadTimestamp, prev.Timestamp, blk.Header.Timestamp)
	}

	st, err := tip.NextState()
	if err != nil {
		return nil, err
	}
	st.SetTimestamp(blk.Header.Timestamp)

	if err := a.validateStateless(st, blk.Transactions); err != nil {
		return nil, err
	}

	for i, txn := range blk.Transactions {
		if err := st.ApplyTx(txn); err != nil {
			return nil, &TxError{Index: i, Tx: txn.Hash(), Err: err}
		}
	}

	batch := st.NewBatch()
	sealed, err := st.Seal(batch, blk.ProposerAction)
	if err != nil {
		return nil, err
	}
	if err := compareHeaders(blk.Header, sealed.Header()); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit block: %w", err)
	}

	a.logger.Info().
		Uint64("height", sealed.Header().Height).
		Stringer("hash", sealed.Header().Hash()).
		Int("txs", len(blk.Transactions)).
		Msg("block applied")
	return sealed, nil
}

// Build constructs a block on top of tip from the given transactions,
// computing the header by actually applying them. The result is
// guaranteed to pass Apply against the same tip, but nothing is
// committed here; the caller applies the block to adopt it.
func (a *Applier) Build(tip *state.SealedState, txs []*tx.Transaction, timestamp uint64, action *block.ProposerAction) (*block.Block, error) {
	st, err := tip.NextState()
	if err != nil {
		return nil, err
	}
	st.SetTimestamp(timestamp)

	if err := a.validateStateless(st, txs); err != nil {
		return nil, err
	}
	for i, txn := range txs {
		if err := st.ApplyTx(txn); err != nil {
			return nil, &TxError{Index: i, Tx: txn.Hash(), Err: err}
		}
	}

	// Seal into a throwaway batch: Build only computes the header.
	sealed, err := st.Seal(discardBatch{}, action)
	if err != nil {
		return nil, err
	}
	return block.NewBlock(sealed.Header(), txs, action), nil
}

// validateStateless runs the stateless phase over the worker pool.
// Each transaction is a pure function of itself and the fee
// multiplier, so workers can complete in any order. Verdicts are
// collected per index and scanned in block order afterwards, so the
// reported failure is always the earliest invalid transaction no
// matter how the scheduler interleaves the workers.
func (a *Applier) validateStateless(st *state.State, txs []*tx.Transaction) error {
	mult := st.FeeMultiplier()
	verdicts := make([]error, len(txs))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, txn := range txs {
		i, txn := i, txn
		g.Go(func() error {
			verdicts[i] = txn.Validate(mult)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, err := range verdicts {
		if err != nil {
			return &TxError{Index: i, Tx: txs[i].Hash(), Err: err}
		}
	}
	return nil
}

// compareHeaders rejects a proposed header that disagrees with the
// computed one, naming the first differing field.
func compareHeaders(proposed, computed *block.Header) error {
	if proposed.Hash() == computed.Hash() {
		return nil
	}
	type field struct {
		name               string
		proposed, computed string
	}
	fields := []field{
		{"coins_root", proposed.CoinsRoot.String(), computed.CoinsRoot.String()},
		{"transactions_root", proposed.TransactionsRoot.String(), computed.TransactionsRoot.String()},
		{"pools_root", proposed.PoolsRoot.String(), computed.PoolsRoot.String()},
		{"stakes_root", proposed.StakesRoot.String(), computed.StakesRoot.String()},
		{"history_root", proposed.HistoryRoot.String(), computed.HistoryRoot.String()},
		{"fee_pool", proposed.FeePool.Dec(), computed.FeePool.Dec()},
		{"fee_multiplier", proposed.FeeMultiplier.Dec(), computed.FeeMultiplier.Dec()},
	}
	for _, f := range fields {
		if f.proposed != f.computed {
			return fmt.Errorf("%w: %s proposed %s, computed %s", ErrRootMismatch, f.name, f.proposed, f.computed)
		}
	}
	return fmt.Errorf("%w: headers differ", ErrRootMismatch)
}

// discardBatch satisfies the batch interface while writing nothing,
// for sealing states whose nodes are not meant to be persisted.
type discardBatch struct{}

func (discardBatch) Put(key, value []byte) error { return nil }
func (discardBatch) Delete(key []byte) error     { return nil }
func (discardBatch) Commit() error               { return nil }
