package state

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/pkg/types"
)

func testPool(ra, rb uint64) *PoolState {
	key, _ := types.NewPoolKey(denomA, denomB)
	p := &PoolState{Key: key}
	p.ReserveLeft.SetUint64(ra)
	p.ReserveRight.SetUint64(rb)
	p.LiqSupply.SetUint64(1)
	return p
}

func TestSwapReferenceVector(t *testing.T) {
	p := testPool(1000, 1000)
	dy, err := p.Swap(p.Key.Left, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if dy.Uint64() != 90 {
		t.Fatalf("dy = %s, want 90", dy.Dec())
	}
	if p.ReserveLeft.Uint64() != 1100 || p.ReserveRight.Uint64() != 910 {
		t.Fatalf("reserves (%s, %s), want (1100, 910)",
			p.ReserveLeft.Dec(), p.ReserveRight.Dec())
	}
}

func TestSwapDirectionSymmetry(t *testing.T) {
	p := testPool(1000, 1000)
	dy, err := p.Swap(p.Key.Right, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if dy.Uint64() != 90 {
		t.Fatalf("dy = %s, want 90", dy.Dec())
	}
	if p.ReserveRight.Uint64() != 1100 || p.ReserveLeft.Uint64() != 910 {
		t.Fatal("reserves updated on the wrong sides")
	}
}

func TestSwapProductNeverDecreases(t *testing.T) {
	p := testPool(123_456, 654_321)
	before := new(uint256.Int).Mul(&p.ReserveLeft, &p.ReserveRight)
	for i := uint64(1); i < 2000; i += 37 {
		if _, err := p.Swap(p.Key.Left, uint256.NewInt(i)); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	after := new(uint256.Int).Mul(&p.ReserveLeft, &p.ReserveRight)
	if after.Lt(before) {
		t.Fatalf("product shrank: %s -> %s", before.Dec(), after.Dec())
	}
}

func TestSwapOverflowTraps(t *testing.T) {
	p := testPool(1, 1)
	huge := new(uint256.Int).Not(uint256.NewInt(0))
	p.ReserveLeft.Set(huge)
	p.ReserveRight.Set(huge)
	if _, err := p.Swap(p.Key.Left, huge); !errors.Is(err, ErrPoolArithmeticOverflow) {
		t.Fatalf("want ErrPoolArithmeticOverflow, got %v", err)
	}
}

func TestSwapWrongDenom(t *testing.T) {
	p := testPool(1000, 1000)
	if _, err := p.Swap(types.DenomSol, uint256.NewInt(1)); !errors.Is(err, ErrPoolWrongDenom) {
		t.Fatalf("want ErrPoolWrongDenom, got %v", err)
	}
}

func TestSwapZeroAmount(t *testing.T) {
	p := testPool(1000, 1000)
	if _, err := p.Swap(p.Key.Left, new(uint256.Int)); !errors.Is(err, ErrPoolZeroAmount) {
		t.Fatalf("want ErrPoolZeroAmount, got %v", err)
	}
}

func TestFirstDepositSqrt(t *testing.T) {
	key, _ := types.NewPoolKey(denomA, denomB)
	p := &PoolState{Key: key}
	minted, err := p.Deposit(uint256.NewInt(4), uint256.NewInt(9))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted.Uint64() != 6 {
		t.Fatalf("minted %s shares, want sqrt(36) = 6", minted.Dec())
	}
}

func TestProportionalDeposit(t *testing.T) {
	p := testPool(1000, 2000)
	p.LiqSupply.SetUint64(100)
	minted, err := p.Deposit(uint256.NewInt(100), uint256.NewInt(200))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// 10% of each side mints 10% of the supply.
	if minted.Uint64() != 10 {
		t.Fatalf("minted %s, want 10", minted.Dec())
	}
}

func TestOffRatioDepositMintsSmallerSide(t *testing.T) {
	p := testPool(1000, 1000)
	p.LiqSupply.SetUint64(1000)
	minted, err := p.Deposit(uint256.NewInt(100), uint256.NewInt(10))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted.Uint64() != 10 {
		t.Fatalf("minted %s, want 10 (smaller side)", minted.Dec())
	}
}

func TestWithdrawProportional(t *testing.T) {
	p := testPool(1000, 2000)
	p.LiqSupply.SetUint64(100)
	outL, outR, err := p.Withdraw(uint256.NewInt(25))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if outL.Uint64() != 250 || outR.Uint64() != 500 {
		t.Fatalf("payout (%s, %s), want (250, 500)", outL.Dec(), outR.Dec())
	}
	if p.LiqSupply.Uint64() != 75 {
		t.Fatalf("supply %s after withdraw", p.LiqSupply.Dec())
	}
}

func TestWithdrawTooManyShares(t *testing.T) {
	p := testPool(1000, 1000)
	p.LiqSupply.SetUint64(10)
	if _, _, err := p.Withdraw(uint256.NewInt(11)); !errors.Is(err, ErrPoolInsufficientLiq) {
		t.Fatalf("want ErrPoolInsufficientLiq, got %v", err)
	}
}

func TestPoolEncodeRoundTrip(t *testing.T) {
	p := testPool(123, 456)
	p.LiqSupply.SetUint64(789)
	got, err := DecodePoolState(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.ReserveLeft.Eq(&p.ReserveLeft) || !got.ReserveRight.Eq(&p.ReserveRight) ||
		!got.LiqSupply.Eq(&p.LiqSupply) || got.Key != p.Key {
		t.Fatal("round trip mismatch")
	}
}

func TestLiqDenomDistinctPerPool(t *testing.T) {
	k1, _ := types.NewPoolKey(denomA, denomB)
	k2, _ := types.NewPoolKey(denomA, types.DenomSol)
	if LiqDenom(k1) == LiqDenom(k2) {
		t.Fatal("different pools share a liquidity denom")
	}
}
