package state

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/internal/covm"
	"github.com/solara-labs/solara-chain/internal/log"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Stateful application errors.
var (
	ErrDuplicateTx     = errors.New("transaction already applied in this block")
	ErrMissingCovenant = errors.New("no covenant matches the coin's covhash")
	ErrCovenantFailed  = errors.New("covenant rejected the spend")
	ErrUnbalanced      = errors.New("value not conserved")
	ErrMintForbidden   = errors.New("mint transactions are testnet-only")
	ErrSwapNoInput     = errors.New("swap sells nothing into the pool")
	ErrSwapBadPayout   = errors.New("swap output does not match pool payout")
)

// denomSums accumulates per-denomination value totals with overflow
// trapping.
type denomSums map[types.Denom]*uint256.Int

func (d denomSums) add(denom types.Denom, v *uint256.Int) error {
	sum, ok := d[denom]
	if !ok {
		sum = new(uint256.Int)
		d[denom] = sum
	}
	if _, overflow := sum.AddOverflow(sum, v); overflow {
		return ErrValueOverflow
	}
	return nil
}

func (d denomSums) get(denom types.Denom) *uint256.Int {
	if sum, ok := d[denom]; ok {
		return sum
	}
	return new(uint256.Int)
}

// ApplyTx applies one transaction to the state. The transaction must
// already have passed stateless validation. On error the spent set and
// trees may hold partial effects; the caller discards the whole state,
// so no rollback is attempted here.
func (s *State) ApplyTx(txn *tx.Transaction) error {
	h := txn.Hash()

	if applied, err := s.transactions.Has(txKey(h)); err != nil {
		return err
	} else if applied {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, h)
	}
	if txn.Kind == types.TxMint && s.network != types.NetTestnet {
		return ErrMintForbidden
	}

	inSums, spentCoins, err := s.consumeInputs(txn, h)
	if err != nil {
		return err
	}

	// An unstake pulls the reclaimed deposit in as native input value.
	var reclaimed *StakeEntry
	if txn.Kind == types.TxUnstake {
		reclaimed, err = s.consumeStake(txn, h)
		if err != nil {
			return err
		}
		if err := inSums.add(types.DenomSol, &reclaimed.Value); err != nil {
			return err
		}
	}

	// Mint rewrites placeholder denoms to a denom derived from the
	// transaction hash, so every mint creates a globally unique token.
	outputs := make([]tx.CoinData, len(txn.Outputs))
	copy(outputs, txn.Outputs)
	if txn.Kind == types.TxMint {
		for i := range outputs {
			if outputs[i].Denom == types.DenomNew {
				outputs[i].Denom = types.Denom(h)
			}
		}
	}

	outSums := make(denomSums)
	for i := range outputs {
		if err := outSums.add(outputs[i].Denom, &outputs[i].Value); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}

	if err := s.checkBalance(txn, inSums, outSums); err != nil {
		return err
	}

	// All checks passed; mutate.
	for _, id := range spentCoins {
		s.coins.Remove(coinKey(id))
		s.spent[id] = true
	}
	if reclaimed != nil {
		unstaked, err := tx.ParseUnstakeData(txn.Data)
		if err != nil {
			return err
		}
		s.stakes.Remove(stakeKey(unstaked))
	}
	for i := range outputs {
		if txn.Kind == types.TxStake && i == 0 {
			// Output zero becomes the stake entry, not a coin.
			continue
		}
		rec := &CoinRecord{CoinData: outputs[i], Height: s.height}
		if err := s.putCoin(types.CoinID{TxID: h, Index: uint32(i)}, rec); err != nil {
			return err
		}
	}
	if txn.Kind == types.TxStake {
		if err := s.createStake(txn, h); err != nil {
			return err
		}
	}
	if err := s.transactions.Insert(txKey(h), txn.Encode()); err != nil {
		return err
	}
	s.accrueFee(txn)

	s.logger.Debug().
		Stringer("tx", h).
		Stringer("kind", txn.Kind).
		Int("inputs", len(txn.Inputs)).
		Int("outputs", len(outputs)).
		Msg("transaction applied")
	return nil
}

// consumeInputs resolves every input coin, runs its covenant, and
// returns the per-denom input sums plus the coin ids to delete. The
// coins mapping is not mutated yet.
func (s *State) consumeInputs(txn *tx.Transaction, h types.Hash) (denomSums, []types.CoinID, error) {
	inSums := make(denomSums)
	spent := make([]types.CoinID, 0, len(txn.Inputs))
	gasLimit := config.CovenantGasBudget(&txn.Fee)

	for i, id := range txn.Inputs {
		if s.spent[id] {
			return nil, nil, fmt.Errorf("input %d: %w: %s", i, ErrDoubleSpend, id)
		}
		coin, err := s.GetCoin(id)
		if err != nil {
			return nil, nil, fmt.Errorf("input %d: %w", i, err)
		}

		var witness [][]byte
		if i < len(txn.Sigs) {
			witness = [][]byte{txn.Sigs[i]}
		}
		ctx := &covm.Context{
			TxHash:     h,
			SigHash:    h,
			Height:     s.height,
			SpendIndex: uint32(i),
			CoinValue:  coin.Value,
			CoinDenom:  coin.Denom,
		}
		if err := s.runCovenant(txn, coin.Covhash, witness, gasLimit, ctx); err != nil {
			return nil, nil, fmt.Errorf("input %d: %w", i, err)
		}

		if err := inSums.add(coin.Denom, &coin.Value); err != nil {
			return nil, nil, fmt.Errorf("input %d: %w", i, err)
		}
		spent = append(spent, id)
	}
	return inSums, spent, nil
}

// consumeStake resolves the stake entry an unstake reclaims and runs
// its unlock covenant. The stakes mapping is not mutated yet.
func (s *State) consumeStake(txn *tx.Transaction, h types.Hash) (*StakeEntry, error) {
	stakeTx, err := tx.ParseUnstakeData(txn.Data)
	if err != nil {
		return nil, err
	}
	entry, err := s.GetStake(stakeTx)
	if err != nil {
		return nil, err
	}
	if Epoch(s.height) < entry.EpochEnd {
		return nil, fmt.Errorf("%w: unlocks at epoch %d, now %d",
			ErrStakeLocked, entry.EpochEnd, Epoch(s.height))
	}

	var witness [][]byte
	if len(txn.Sigs) > 0 {
		witness = [][]byte{txn.Sigs[0]}
	}
	ctx := &covm.Context{
		TxHash:    h,
		SigHash:   h,
		Height:    s.height,
		CoinValue: entry.Value,
		CoinDenom: types.DenomSol,
	}
	gasLimit := config.CovenantGasBudget(&txn.Fee)
	if err := s.runCovenant(txn, entry.UnlockCovhash, witness, gasLimit, ctx); err != nil {
		return nil, fmt.Errorf("unlock: %w", err)
	}
	return entry, nil
}

// runCovenant finds the revealed covenant matching covhash and
// executes it.
func (s *State) runCovenant(txn *tx.Transaction, covhash types.Hash, witness [][]byte, gasLimit uint64, ctx *covm.Context) error {
	for _, script := range txn.Covenants {
		if covm.CovenantHash(script) != covhash {
			continue
		}
		if err := covm.Eval(script, witness, gasLimit, ctx); err != nil {
			log.VM.Debug().
				Stringer("tx", ctx.TxHash).
				Uint32("spend_index", ctx.SpendIndex).
				Err(err).
				Msg("covenant rejected spend")
			return fmt.Errorf("%w: %v", ErrCovenantFailed, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingCovenant, covhash)
}

// createStake turns output zero of a stake transaction into a stake
// entry keyed by the transaction hash.
func (s *State) createStake(txn *tx.Transaction, h types.Hash) error {
	data, err := tx.ParseStakeData(txn.Data)
	if err != nil {
		return err
	}
	deposit := txn.Outputs[0]
	entry := &StakeEntry{
		Validator:     data.Validator,
		Value:         deposit.Value,
		EpochStart:    data.EpochStart,
		EpochEnd:      data.EpochEnd,
		UnlockCovhash: data.UnlockCovhash,
	}
	return s.stakes.Insert(stakeKey(h), entry.Encode())
}

// accrueFee splits the declared fee: the minimum portion feeds the fee
// pool and the excess becomes this block's tips for the proposer. The
// sums cannot overflow because every contribution is bounded by
// MaxAmount and block size caps the count.
func (s *State) accrueFee(txn *tx.Transaction) {
	min := tx.MinFee(txn.Weight(), &s.feeMultiplier)
	if min.Gt(&txn.Fee) {
		min.Set(&txn.Fee)
	}
	excess := new(uint256.Int).Sub(&txn.Fee, min)
	s.feePool.Add(&s.feePool, min)
	s.tips.Add(&s.tips, excess)
}

// checkBalance enforces value conservation for the transaction kind.
// flows are compared per denomination: inputs on one side, outputs
// plus the fee (native only) on the other, with pool legs accounted
// for by the AMM rules.
func (s *State) checkBalance(txn *tx.Transaction, inSums, outSums denomSums) error {
	switch txn.Kind {
	case types.TxMint:
		// Mints create value; no conservation.
		return nil
	case types.TxSwap:
		return s.applySwap(txn, inSums, outSums)
	case types.TxLiqDeposit:
		return s.applyLiqDeposit(txn, inSums, outSums)
	case types.TxLiqWithdraw:
		return s.applyLiqWithdraw(txn, inSums, outSums)
	case types.TxStake:
		if err := s.checkStakeDeposit(txn); err != nil {
			return err
		}
		return s.settleBalance(txn, inSums, outSums, nil)
	default:
		// Normal and unstake: plain conservation. Unstake input sums
		// already include the reclaimed deposit.
		return s.settleBalance(txn, inSums, outSums, nil)
	}
}

// checkStakeDeposit validates the deposit output of a stake
// transaction against the staking rules.
func (s *State) checkStakeDeposit(txn *tx.Transaction) error {
	deposit := txn.Outputs[0]
	if deposit.Denom != types.DenomSol {
		return ErrStakeNotNative
	}
	if deposit.Value.Lt(uint256.NewInt(config.MinStakeValue)) {
		return fmt.Errorf("%w: %s below %d", ErrStakeTooSmall, deposit.Value.Dec(), uint64(config.MinStakeValue))
	}
	data, err := tx.ParseStakeData(txn.Data)
	if err != nil {
		return err
	}
	if data.EpochStart <= Epoch(s.height) {
		return fmt.Errorf("%w: starts at epoch %d, now %d", ErrStakeBadEpoch, data.EpochStart, Epoch(s.height))
	}
	return nil
}

// settleBalance enforces conservation: per denom, inflow must cover
// outflow, with the fee counted as native outflow. Native inflow
// beyond outputs and fee becomes a tip for the block proposer; a
// surplus in any other denom is burned. Denoms listed in skip are
// handled by a pool leg. Tips staged here are discarded with the rest
// of the working state if the block later fails.
func (s *State) settleBalance(txn *tx.Transaction, inSums, outSums denomSums, skip map[types.Denom]bool) error {
	seen := make(map[types.Denom]bool, len(inSums)+len(outSums))
	for d := range inSums {
		seen[d] = true
	}
	for d := range outSums {
		seen[d] = true
	}
	seen[types.DenomSol] = true

	for d := range seen {
		if skip[d] {
			continue
		}
		in := inSums.get(d)
		need := new(uint256.Int).Set(outSums.get(d))
		if d == types.DenomSol {
			if _, overflow := need.AddOverflow(need, &txn.Fee); overflow {
				return ErrValueOverflow
			}
		}
		if in.Lt(need) {
			return fmt.Errorf("%w: denom %s in %s, out+fee %s", ErrUnbalanced, d, in.Dec(), need.Dec())
		}
		if d == types.DenomSol && in.Gt(need) {
			tip := new(uint256.Int).Sub(in, need)
			if _, overflow := s.tips.AddOverflow(&s.tips, tip); overflow {
				return ErrValueOverflow
			}
		}
	}
	return nil
}

// surplus returns in - (out + feeIfNative) when positive, or nil when
// the denom flows out more than in.
func (s *State) surplus(txn *tx.Transaction, inSums, outSums denomSums, d types.Denom) *uint256.Int {
	in := new(uint256.Int).Set(inSums.get(d))
	out := new(uint256.Int).Set(outSums.get(d))
	if d == types.DenomSol {
		out.Add(out, &txn.Fee)
	}
	if in.Gt(out) {
		return in.Sub(in, out)
	}
	return nil
}

// deficit returns (out + feeIfNative) - in when positive, or nil.
func (s *State) deficit(txn *tx.Transaction, inSums, outSums denomSums, d types.Denom) *uint256.Int {
	in := new(uint256.Int).Set(inSums.get(d))
	out := new(uint256.Int).Set(outSums.get(d))
	if d == types.DenomSol {
		out.Add(out, &txn.Fee)
	}
	if out.Gt(in) {
		return out.Sub(out, in)
	}
	return nil
}

// applySwap settles a swap against the pool named in the transaction
// data. Exactly one side of the pair must show an input surplus (the
// amount sold, dx); the other side's deficit must equal the pool
// payout dy to the unit. Everything else must balance strictly.
func (s *State) applySwap(txn *tx.Transaction, inSums, outSums denomSums) error {
	key, err := tx.ParsePoolData(txn.Data)
	if err != nil {
		return err
	}
	pool, err := s.GetPool(key)
	if err != nil {
		return err
	}

	dxLeft := s.surplus(txn, inSums, outSums, key.Left)
	dxRight := s.surplus(txn, inSums, outSums, key.Right)

	var sold types.Denom
	var dx *uint256.Int
	switch {
	case dxLeft != nil && dxRight != nil:
		return fmt.Errorf("%w: both sides of %s sold", ErrSwapNoInput, key)
	case dxLeft != nil:
		sold, dx = key.Left, dxLeft
	case dxRight != nil:
		sold, dx = key.Right, dxRight
	default:
		return fmt.Errorf("%w: pool %s", ErrSwapNoInput, key)
	}
	bought, err := key.Other(sold)
	if err != nil {
		return err
	}

	dy, err := pool.Swap(sold, dx)
	if err != nil {
		return err
	}
	got := s.deficit(txn, inSums, outSums, bought)
	if got == nil || !got.Eq(dy) {
		gotStr := "0"
		if got != nil {
			gotStr = got.Dec()
		}
		return fmt.Errorf("%w: pool pays %s, transaction takes %s", ErrSwapBadPayout, dy.Dec(), gotStr)
	}

	skip := map[types.Denom]bool{key.Left: true, key.Right: true}
	if err := s.settleBalance(txn, inSums, outSums, skip); err != nil {
		return err
	}
	log.Pool.Debug().
		Stringer("pool", key).
		Str("sold", dx.Dec()).
		Str("bought", dy.Dec()).
		Str("reserve_left", pool.ReserveLeft.Dec()).
		Str("reserve_right", pool.ReserveRight.Dec()).
		Msg("swap settled")
	return s.putPool(pool)
}

// applyLiqDeposit settles a liquidity deposit: both sides of the pair
// must show a surplus, and the transaction must take exactly the
// minted shares in the pool's liquidity denom. The first deposit into
// a nonexistent pool creates it.
func (s *State) applyLiqDeposit(txn *tx.Transaction, inSums, outSums denomSums) error {
	key, err := tx.ParsePoolData(txn.Data)
	if err != nil {
		return err
	}
	pool, err := s.GetPool(key)
	if errors.Is(err, ErrPoolNotFound) {
		pool = &PoolState{Key: key}
	} else if err != nil {
		return err
	}

	da := s.surplus(txn, inSums, outSums, key.Left)
	db := s.surplus(txn, inSums, outSums, key.Right)
	if da == nil || db == nil {
		return fmt.Errorf("%w: deposit must fund both sides of %s", ErrUnbalanced, key)
	}

	minted, err := pool.Deposit(da, db)
	if err != nil {
		return err
	}
	liq := LiqDenom(key)
	got := s.deficit(txn, inSums, outSums, liq)
	if got == nil || !got.Eq(minted) {
		return fmt.Errorf("%w: pool mints %s shares", ErrUnbalanced, minted.Dec())
	}

	skip := map[types.Denom]bool{key.Left: true, key.Right: true, liq: true}
	if err := s.settleBalance(txn, inSums, outSums, skip); err != nil {
		return err
	}
	return s.putPool(pool)
}

// applyLiqWithdraw settles a liquidity withdrawal: the transaction
// burns shares (input surplus in the liquidity denom) and must take
// exactly the proportional payout from each reserve.
func (s *State) applyLiqWithdraw(txn *tx.Transaction, inSums, outSums denomSums) error {
	key, err := tx.ParsePoolData(txn.Data)
	if err != nil {
		return err
	}
	pool, err := s.GetPool(key)
	if err != nil {
		return err
	}

	liq := LiqDenom(key)
	shares := s.surplus(txn, inSums, outSums, liq)
	if shares == nil {
		return fmt.Errorf("%w: withdrawal burns no shares of %s", ErrUnbalanced, key)
	}

	outLeft, outRight, err := pool.Withdraw(shares)
	if err != nil {
		return err
	}
	gotLeft := s.deficit(txn, inSums, outSums, key.Left)
	gotRight := s.deficit(txn, inSums, outSums, key.Right)
	if !payoutMatches(gotLeft, outLeft) || !payoutMatches(gotRight, outRight) {
		return fmt.Errorf("%w: pool pays %s/%s from %s", ErrUnbalanced, outLeft.Dec(), outRight.Dec(), key)
	}

	skip := map[types.Denom]bool{key.Left: true, key.Right: true, liq: true}
	if err := s.settleBalance(txn, inSums, outSums, skip); err != nil {
		return err
	}
	if pool.LiqSupply.IsZero() {
		s.pools.Remove(poolKeyHash(key))
		return nil
	}
	return s.putPool(pool)
}

func payoutMatches(got, want *uint256.Int) bool {
	if want.IsZero() {
		return got == nil
	}
	return got != nil && got.Eq(want)
}
