package state

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/internal/covm"
	"github.com/solara-labs/solara-chain/internal/smt"
	"github.com/solara-labs/solara-chain/internal/storage"
	"github.com/solara-labs/solara-chain/pkg/block"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

var (
	denomA = types.Denom{0x01}
	denomB = types.Denom{0x02}
)

func anyoneCovhash() types.Hash {
	return covm.CovenantHash(covm.AlwaysTrue())
}

func testStore(t *testing.T) *smt.NodeStore {
	t.Helper()
	store, err := smt.NewNodeStore(storage.NewMemory(), 1024)
	if err != nil {
		t.Fatalf("node store: %v", err)
	}
	return store
}

// baseGenesis allocates generous anyone-can-spend coins in the native
// denom and two test denoms.
func baseGenesis() *config.Genesis {
	cov := anyoneCovhash()
	return &config.Genesis{
		Network:   types.NetTestnet,
		Timestamp: 1700000000,
		Coins: []config.GenesisCoin{
			{Covhash: cov, Value: *uint256.NewInt(2_000_000_000), Denom: types.DenomSol},
			{Covhash: cov, Value: *uint256.NewInt(1_000_000), Denom: denomA},
			{Covhash: cov, Value: *uint256.NewInt(1_000_000), Denom: denomB},
		},
	}
}

// newTestLedger seals a genesis and returns the working state for
// height one.
func newTestLedger(t *testing.T, g *config.Genesis) *State {
	t.Helper()
	sealed, err := NewGenesisState(testStore(t), g)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	st, err := sealed.NextState()
	if err != nil {
		t.Fatalf("next state: %v", err)
	}
	st.SetTimestamp(g.Timestamp + 30)
	return st
}

func TestGenesisDeterministic(t *testing.T) {
	a, err := NewGenesisState(testStore(t), baseGenesis())
	if err != nil {
		t.Fatalf("genesis a: %v", err)
	}
	b, err := NewGenesisState(testStore(t), baseGenesis())
	if err != nil {
		t.Fatalf("genesis b: %v", err)
	}
	if a.Header().Hash() != b.Header().Hash() {
		t.Fatal("identical genesis documents sealed to different headers")
	}
}

func TestApplyTransfer(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	cov := anyoneCovhash()

	txn := tx.NewBuilder(types.TxNormal).
		Input(genesisCoinID(0)).
		Output(cov, uint256.NewInt(1_200_000_000), types.DenomSol).
		Output(cov, uint256.NewInt(600_000_000), types.DenomSol).
		Fee(uint256.NewInt(200_000_000)).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); err != nil {
		t.Fatalf("apply transfer: %v", err)
	}

	if _, err := st.GetCoin(genesisCoinID(0)); !errors.Is(err, ErrUnknownCoin) {
		t.Fatalf("spent coin still present: %v", err)
	}
	h := txn.Hash()
	out0, err := st.GetCoin(types.CoinID{TxID: h, Index: 0})
	if err != nil {
		t.Fatalf("output 0 missing: %v", err)
	}
	if out0.Value.Uint64() != 1_200_000_000 || out0.Height != 1 {
		t.Fatalf("output 0 = %s at height %d", out0.Value.Dec(), out0.Height)
	}
}

func TestApplyDoubleSpend(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	cov := anyoneCovhash()

	spend := func(amount uint64) *tx.Transaction {
		return tx.NewBuilder(types.TxNormal).
			Input(genesisCoinID(0)).
			Output(cov, uint256.NewInt(amount), types.DenomSol).
			Fee(uint256.NewInt(2_000_000_000-amount)).
			Covenant(covm.AlwaysTrue()).
			Build()
	}
	if err := st.ApplyTx(spend(1_000_000_000)); err != nil {
		t.Fatalf("first spend: %v", err)
	}
	if err := st.ApplyTx(spend(999_999_999)); !errors.Is(err, ErrDoubleSpend) {
		t.Fatalf("want ErrDoubleSpend, got %v", err)
	}
}

func TestApplyUnknownCoin(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	txn := tx.NewBuilder(types.TxNormal).
		Input(types.CoinID{TxID: types.Hash{0xde, 0xad}, Index: 9}).
		Output(anyoneCovhash(), uint256.NewInt(1), types.DenomSol).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); !errors.Is(err, ErrUnknownCoin) {
		t.Fatalf("want ErrUnknownCoin, got %v", err)
	}
}

func TestApplyUnbalanced(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	txn := tx.NewBuilder(types.TxNormal).
		Input(genesisCoinID(0)).
		Output(anyoneCovhash(), uint256.NewInt(3_000_000_000), types.DenomSol).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("want ErrUnbalanced, got %v", err)
	}
}

func TestNativeSurplusBecomesTip(t *testing.T) {
	st := newTestLedger(t, baseGenesis())

	// 2e9 in, 1e9 out, 5e8 declared fee: the remaining 5e8 rides along
	// as an undeclared tip instead of failing conservation.
	fee := uint256.NewInt(500_000_000)
	txn := tx.NewBuilder(types.TxNormal).
		Input(genesisCoinID(0)).
		Output(anyoneCovhash(), uint256.NewInt(1_000_000_000), types.DenomSol).
		Fee(fee).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); err != nil {
		t.Fatalf("apply surplus spend: %v", err)
	}

	// With no proposer action, fee and tips both fold into the pool.
	sealed, err := st.Seal(st.NewBatch(), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	want := uint256.NewInt(1_000_000_000) // declared fee + surplus
	if !sealed.Header().FeePool.Eq(want) {
		t.Fatalf("fee pool %s, want %s", sealed.Header().FeePool.Dec(), want.Dec())
	}
}

func TestNonNativeSurplusIsBurned(t *testing.T) {
	st := newTestLedger(t, baseGenesis())

	txn := tx.NewBuilder(types.TxNormal).
		Input(genesisCoinID(1)).
		Output(anyoneCovhash(), uint256.NewInt(400_000), denomA).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); err != nil {
		t.Fatalf("apply burn spend: %v", err)
	}
	out, err := st.GetCoin(types.CoinID{TxID: txn.Hash(), Index: 0})
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if out.Value.Uint64() != 400_000 {
		t.Fatalf("output value %s", out.Value.Dec())
	}
}

func TestApplyMissingCovenant(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	txn := tx.NewBuilder(types.TxNormal).
		Input(genesisCoinID(0)).
		Output(anyoneCovhash(), uint256.NewInt(2_000_000_000), types.DenomSol).
		Build()
	if err := st.ApplyTx(txn); !errors.Is(err, ErrMissingCovenant) {
		t.Fatalf("want ErrMissingCovenant, got %v", err)
	}
}

func TestApplyCovenantRejects(t *testing.T) {
	falseCov := []byte{byte(covm.OpFalse)}
	g := baseGenesis()
	g.Coins[0].Covhash = covm.CovenantHash(falseCov)
	st := newTestLedger(t, g)

	txn := tx.NewBuilder(types.TxNormal).
		Input(genesisCoinID(0)).
		Output(anyoneCovhash(), uint256.NewInt(2_000_000_000), types.DenomSol).
		Covenant(falseCov).
		Build()
	if err := st.ApplyTx(txn); !errors.Is(err, ErrCovenantFailed) {
		t.Fatalf("want ErrCovenantFailed, got %v", err)
	}
}

func TestMintRewritesPlaceholderDenom(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	txn := tx.NewBuilder(types.TxMint).
		Output(anyoneCovhash(), uint256.NewInt(777), types.DenomNew).
		Build()
	if err := st.ApplyTx(txn); err != nil {
		t.Fatalf("mint: %v", err)
	}
	h := txn.Hash()
	coin, err := st.GetCoin(types.CoinID{TxID: h, Index: 0})
	if err != nil {
		t.Fatalf("minted coin missing: %v", err)
	}
	if coin.Denom != types.Denom(h) {
		t.Fatalf("minted denom %s, want tx hash", coin.Denom)
	}
}

func TestMintForbiddenOnMainnet(t *testing.T) {
	g := baseGenesis()
	g.Network = types.NetMainnet
	st := newTestLedger(t, g)
	txn := tx.NewBuilder(types.TxMint).
		Output(anyoneCovhash(), uint256.NewInt(1), types.DenomNew).
		Build()
	if err := st.ApplyTx(txn); !errors.Is(err, ErrMintForbidden) {
		t.Fatalf("want ErrMintForbidden, got %v", err)
	}
}

func poolGenesis() *config.Genesis {
	g := baseGenesis()
	g.Pools = []config.GenesisPool{{
		DenomA:   denomA,
		DenomB:   denomB,
		ReserveA: *uint256.NewInt(1000),
		ReserveB: *uint256.NewInt(1000),
	}}
	return g
}

func TestSwapAgainstPool(t *testing.T) {
	st := newTestLedger(t, poolGenesis())
	cov := anyoneCovhash()
	key, _ := types.NewPoolKey(denomA, denomB)

	// Sell 100 denomA into a 1000/1000 pool: fee-adjusted input 99,
	// payout floor(1000*99/1099) = 90.
	txn := tx.NewBuilder(types.TxSwap).
		Input(genesisCoinID(1)).
		Output(cov, uint256.NewInt(999_900), denomA).
		Output(cov, uint256.NewInt(90), denomB).
		Data(key.Bytes()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); err != nil {
		t.Fatalf("swap: %v", err)
	}

	pool, err := st.GetPool(key)
	if err != nil {
		t.Fatalf("pool gone: %v", err)
	}
	ra, rb := pool.ReserveLeft.Uint64(), pool.ReserveRight.Uint64()
	if key.Left != denomA {
		ra, rb = rb, ra
	}
	if ra != 1100 || rb != 910 {
		t.Fatalf("reserves (%d, %d), want (1100, 910)", ra, rb)
	}
}

func TestSwapWrongPayout(t *testing.T) {
	st := newTestLedger(t, poolGenesis())
	cov := anyoneCovhash()
	key, _ := types.NewPoolKey(denomA, denomB)

	txn := tx.NewBuilder(types.TxSwap).
		Input(genesisCoinID(1)).
		Output(cov, uint256.NewInt(999_900), denomA).
		Output(cov, uint256.NewInt(91), denomB).
		Data(key.Bytes()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); !errors.Is(err, ErrSwapBadPayout) {
		t.Fatalf("want ErrSwapBadPayout, got %v", err)
	}
}

func TestSwapNothingSold(t *testing.T) {
	st := newTestLedger(t, poolGenesis())
	cov := anyoneCovhash()
	key, _ := types.NewPoolKey(denomA, denomB)

	txn := tx.NewBuilder(types.TxSwap).
		Input(genesisCoinID(1)).
		Output(cov, uint256.NewInt(1_000_000), denomA).
		Data(key.Bytes()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); !errors.Is(err, ErrSwapNoInput) {
		t.Fatalf("want ErrSwapNoInput, got %v", err)
	}
}

func TestLiqDepositCreatesPool(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	cov := anyoneCovhash()
	key, _ := types.NewPoolKey(denomA, denomB)
	liq := LiqDenom(key)

	// First deposit of 1_000_000 on each side mints sqrt(1e12) = 1e6
	// shares.
	txn := tx.NewBuilder(types.TxLiqDeposit).
		Input(genesisCoinID(1)).
		Input(genesisCoinID(2)).
		Output(cov, uint256.NewInt(1_000_000), liq).
		Data(key.Bytes()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); err != nil {
		t.Fatalf("liq deposit: %v", err)
	}

	pool, err := st.GetPool(key)
	if err != nil {
		t.Fatalf("pool not created: %v", err)
	}
	if pool.LiqSupply.Uint64() != 1_000_000 {
		t.Fatalf("liq supply %s, want 1000000", pool.LiqSupply.Dec())
	}
}

func TestLiqWithdraw(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	cov := anyoneCovhash()
	key, _ := types.NewPoolKey(denomA, denomB)
	liq := LiqDenom(key)

	deposit := tx.NewBuilder(types.TxLiqDeposit).
		Input(genesisCoinID(1)).
		Input(genesisCoinID(2)).
		Output(cov, uint256.NewInt(1_000_000), liq).
		Data(key.Bytes()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(deposit); err != nil {
		t.Fatalf("liq deposit: %v", err)
	}

	// Burn half the shares, reclaim half of each reserve.
	withdraw := tx.NewBuilder(types.TxLiqWithdraw).
		Input(types.CoinID{TxID: deposit.Hash(), Index: 0}).
		Output(cov, uint256.NewInt(500_000), liq).
		Output(cov, uint256.NewInt(500_000), denomA).
		Output(cov, uint256.NewInt(500_000), denomB).
		Data(key.Bytes()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(withdraw); err != nil {
		t.Fatalf("liq withdraw: %v", err)
	}

	pool, err := st.GetPool(key)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.LiqSupply.Uint64() != 500_000 {
		t.Fatalf("liq supply %s after withdraw", pool.LiqSupply.Dec())
	}
}

func TestStakeLifecycle(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	cov := anyoneCovhash()

	sd := &tx.StakeData{
		Validator:     make([]byte, 33),
		EpochStart:    1,
		EpochEnd:      2,
		UnlockCovhash: cov,
	}
	stake := tx.NewBuilder(types.TxStake).
		Input(genesisCoinID(0)).
		Output(cov, uint256.NewInt(config.MinStakeValue), types.DenomSol).
		Output(cov, uint256.NewInt(2_000_000_000-config.MinStakeValue), types.DenomSol).
		Data(sd.Encode()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(stake); err != nil {
		t.Fatalf("stake: %v", err)
	}

	h := stake.Hash()
	entry, err := st.GetStake(h)
	if err != nil {
		t.Fatalf("stake entry missing: %v", err)
	}
	if entry.Value.Uint64() != config.MinStakeValue {
		t.Fatalf("stake value %s", entry.Value.Dec())
	}
	// The deposit output is a stake entry, not a spendable coin.
	if _, err := st.GetCoin(types.CoinID{TxID: h, Index: 0}); !errors.Is(err, ErrUnknownCoin) {
		t.Fatalf("deposit output leaked into coins: %v", err)
	}
	if _, err := st.GetCoin(types.CoinID{TxID: h, Index: 1}); err != nil {
		t.Fatalf("change output missing: %v", err)
	}

	unstake := tx.NewBuilder(types.TxUnstake).
		Output(cov, uint256.NewInt(config.MinStakeValue), types.DenomSol).
		Data(h.Bytes()).
		Covenant(covm.AlwaysTrue()).
		Build()

	// Still inside the stake's epochs: locked.
	if err := st.ApplyTx(unstake); !errors.Is(err, ErrStakeLocked) {
		t.Fatalf("want ErrStakeLocked, got %v", err)
	}

	// Jump past the final epoch and reclaim.
	st.height = 2 * config.StakeEpoch
	if err := st.ApplyTx(unstake); err != nil {
		t.Fatalf("unstake after expiry: %v", err)
	}
	if _, err := st.GetStake(h); !errors.Is(err, ErrStakeNotFound) {
		t.Fatalf("stake entry survived unstake: %v", err)
	}
	if _, err := st.GetCoin(types.CoinID{TxID: unstake.Hash(), Index: 0}); err != nil {
		t.Fatalf("unstaked coin missing: %v", err)
	}
}

func TestStakeTooSmall(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	cov := anyoneCovhash()
	sd := &tx.StakeData{Validator: make([]byte, 33), EpochStart: 1, EpochEnd: 2}
	stake := tx.NewBuilder(types.TxStake).
		Input(genesisCoinID(0)).
		Output(cov, uint256.NewInt(10), types.DenomSol).
		Output(cov, uint256.NewInt(2_000_000_000-10), types.DenomSol).
		Data(sd.Encode()).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(stake); !errors.Is(err, ErrStakeTooSmall) {
		t.Fatalf("want ErrStakeTooSmall, got %v", err)
	}
}

func TestVoteSnapshot(t *testing.T) {
	g := baseGenesis()
	val := make([]byte, 33)
	val[0] = 0x02
	g.Stakes = []config.GenesisStake{{
		Validator:     val,
		Value:         *uint256.NewInt(5_000_000),
		EpochEnd:      3,
		UnlockCovhash: anyoneCovhash(),
	}}
	st := newTestLedger(t, g)

	snap, err := st.VoteSnapshot(0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	vp, ok := snap[string(val)]
	if !ok || vp.Power.Uint64() != 5_000_000 {
		t.Fatalf("validator power missing or wrong: %+v", snap)
	}

	snap, err = st.VoteSnapshot(3)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 0 {
		t.Fatal("expired stake still has vote power")
	}

	// The committed view must agree with the working state.
	sealed, err := st.Seal(st.NewBatch(), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	snap, err = sealed.VoteSnapshot(0)
	if err != nil {
		t.Fatalf("sealed snapshot: %v", err)
	}
	if vp, ok := snap[string(val)]; !ok || vp.Power.Uint64() != 5_000_000 {
		t.Fatalf("sealed snapshot power missing or wrong: %+v", snap)
	}
}

func TestSealProposerReward(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	cov := anyoneCovhash()

	fee := uint256.NewInt(200_000_000)
	txn := tx.NewBuilder(types.TxNormal).
		Input(genesisCoinID(0)).
		Output(cov, uint256.NewInt(1_800_000_000), types.DenomSol).
		Fee(fee).
		Covenant(covm.AlwaysTrue()).
		Build()
	if err := st.ApplyTx(txn); err != nil {
		t.Fatalf("apply: %v", err)
	}

	min := tx.MinFee(txn.Weight(), st.FeeMultiplier())
	tips := new(uint256.Int).Sub(fee, min)
	slice := new(uint256.Int).Rsh(min, config.ProposerRewardShift)
	expected := new(uint256.Int).Add(slice, tips)

	var dest types.Hash
	dest[0] = 0x99
	batch := st.store.NewBatch()
	sealed, err := st.Seal(batch, &block.ProposerAction{RewardDest: dest})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	next, err := sealed.NextState()
	if err != nil {
		t.Fatalf("next state: %v", err)
	}
	reward, err := next.GetCoin(rewardCoinID(1))
	if err != nil {
		t.Fatalf("reward coin missing: %v", err)
	}
	if !reward.Value.Eq(expected) {
		t.Fatalf("reward %s, want %s", reward.Value.Dec(), expected.Dec())
	}
	if reward.Covhash != dest {
		t.Fatal("reward paid to the wrong covenant")
	}
}

func TestSealLinksHistory(t *testing.T) {
	sealed, err := NewGenesisState(testStore(t), baseGenesis())
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	st, err := sealed.NextState()
	if err != nil {
		t.Fatalf("next state: %v", err)
	}
	st.SetTimestamp(1700000030)

	batch := st.store.NewBatch()
	sealed2, err := st.Seal(batch, nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	h := sealed2.Header()
	if h.Height != 1 || h.Previous != sealed.Header().Hash() {
		t.Fatalf("header does not chain: height %d previous %s", h.Height, h.Previous)
	}

	next, err := sealed2.NextState()
	if err != nil {
		t.Fatalf("next state: %v", err)
	}
	got, err := next.GetHistoryHeader(0)
	if err != nil {
		t.Fatalf("history lookup: %v", err)
	}
	if got.Hash() != sealed.Header().Hash() {
		t.Fatal("history holds a different genesis header")
	}
}

func TestFeeMultiplierDrift(t *testing.T) {
	st := newTestLedger(t, baseGenesis())
	start := st.FeeMultiplier()

	st.driftFeeMultiplier(127)
	up := st.FeeMultiplier()
	if !up.Gt(start) {
		t.Fatalf("multiplier did not rise: %s -> %s", start.Dec(), up.Dec())
	}
	// Full positive delta moves by just under multiplier>>7.
	maxMove := new(uint256.Int).Rsh(start, config.FeeMultiplierShift)
	diff := new(uint256.Int).Sub(up, start)
	if diff.Gt(maxMove) {
		t.Fatalf("drift %s exceeds bound %s", diff.Dec(), maxMove.Dec())
	}

	// Dragging down forever bottoms out at the floor, never zero.
	for i := 0; i < 10_000; i++ {
		st.driftFeeMultiplier(-128)
	}
	if st.FeeMultiplier().Lt(uint256.NewInt(config.FeeMultiplierMin)) {
		t.Fatalf("multiplier fell below floor: %s", st.FeeMultiplier().Dec())
	}
}
