package state

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Pool errors.
var (
	ErrPoolNotFound             = errors.New("liquidity pool does not exist")
	ErrPoolArithmeticOverflow   = errors.New("pool arithmetic overflow")
	ErrPoolDrained              = errors.New("swap would drain a pool reserve")
	ErrPoolZeroAmount           = errors.New("pool operation with zero amount")
	ErrPoolInsufficientLiq      = errors.New("withdrawal exceeds liquidity supply")
	ErrPoolCorrupt              = errors.New("corrupt pool record")
	ErrPoolWrongDenom           = errors.New("denom is not a side of the pool")
	ErrPoolFirstDepositTooSmall = errors.New("first deposit mints zero shares")
)

// PoolState is one constant-product pool: reserves for each side of
// the canonical pair plus the outstanding liquidity-share supply.
// All arithmetic is 256-bit and traps on overflow rather than
// wrapping; a transaction that would overflow a pool is rejected.
type PoolState struct {
	Key          types.PoolKey
	ReserveLeft  uint256.Int
	ReserveRight uint256.Int
	LiqSupply    uint256.Int
}

// poolRecordSize is the canonical pool encoding length:
// key(64) | reserve_left(32) | reserve_right(32) | liq_supply(32).
const poolRecordSize = types.PoolKeySize + 3*32

// Encode returns the canonical pool encoding.
func (p *PoolState) Encode() []byte {
	buf := make([]byte, 0, poolRecordSize)
	buf = append(buf, p.Key.Bytes()...)
	rl := p.ReserveLeft.Bytes32()
	buf = append(buf, rl[:]...)
	rr := p.ReserveRight.Bytes32()
	buf = append(buf, rr[:]...)
	ls := p.LiqSupply.Bytes32()
	buf = append(buf, ls[:]...)
	return buf
}

// DecodePoolState parses a pool record from the pools mapping.
func DecodePoolState(b []byte) (*PoolState, error) {
	if len(b) != poolRecordSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrPoolCorrupt, len(b), poolRecordSize)
	}
	key, err := types.PoolKeyFromBytes(b[:types.PoolKeySize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolCorrupt, err)
	}
	p := &PoolState{Key: key}
	off := types.PoolKeySize
	p.ReserveLeft.SetBytes32(b[off : off+32])
	p.ReserveRight.SetBytes32(b[off+32 : off+64])
	p.LiqSupply.SetBytes32(b[off+64 : off+96])
	return p, nil
}

// poolKeyHash derives the pools-mapping key for a pool.
func poolKeyHash(key types.PoolKey) types.Hash {
	return crypto.Hash(key.Bytes())
}

// LiqDenom derives the liquidity-share denomination of a pool. It is
// a hash of the canonical pool key under a fixed prefix, so every pool
// has a distinct share denom that cannot collide with a coin denom
// chosen by a minter before the pool exists.
func LiqDenom(key types.PoolKey) types.Denom {
	return types.Denom(crypto.HashParts([]byte("pool/liq/"), key.Bytes()))
}

// Swap trades dx units of the sold denom against the pool and returns
// the payout dy in the opposite denom, updating the reserves in place.
//
// A swap fee of PoolFeeBps basis points is skimmed from the input
// before the constant-product computation, but the full input lands in
// the reserve:
//
//	dxFee = floor(dx * (10000 - fee) / 10000)
//	dy    = floor(reserveOut * dxFee / (reserveIn + dxFee))
//
// Division floors; the rounding dust accrues to the pool.
func (p *PoolState) Swap(sold types.Denom, dx *uint256.Int) (*uint256.Int, error) {
	if dx.IsZero() {
		return nil, ErrPoolZeroAmount
	}
	var reserveIn, reserveOut *uint256.Int
	switch sold {
	case p.Key.Left:
		reserveIn, reserveOut = &p.ReserveLeft, &p.ReserveRight
	case p.Key.Right:
		reserveIn, reserveOut = &p.ReserveRight, &p.ReserveLeft
	default:
		return nil, fmt.Errorf("%w: %s in %s", ErrPoolWrongDenom, sold, p.Key)
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrPoolDrained
	}

	// dxFee = dx * (10000 - 30) / 10000
	dxFee := new(uint256.Int)
	if _, overflow := dxFee.MulOverflow(dx, uint256.NewInt(config.BpsDenominator-config.PoolFeeBps)); overflow {
		return nil, ErrPoolArithmeticOverflow
	}
	dxFee.Div(dxFee, uint256.NewInt(config.BpsDenominator))

	// dy = reserveOut * dxFee / (reserveIn + dxFee)
	num := new(uint256.Int)
	if _, overflow := num.MulOverflow(reserveOut, dxFee); overflow {
		return nil, ErrPoolArithmeticOverflow
	}
	den := new(uint256.Int)
	if _, overflow := den.AddOverflow(reserveIn, dxFee); overflow {
		return nil, ErrPoolArithmeticOverflow
	}
	dy := new(uint256.Int).Div(num, den)

	if dy.Cmp(reserveOut) >= 0 {
		return nil, ErrPoolDrained
	}

	// The whole input lands in the reserve, fee included.
	if _, overflow := reserveIn.AddOverflow(reserveIn, dx); overflow {
		return nil, ErrPoolArithmeticOverflow
	}
	reserveOut.Sub(reserveOut, dy)
	return dy, nil
}

// Deposit adds liquidity on both sides and returns the number of
// shares minted. The first deposit sets the price and mints
// floor(sqrt(da*db)) shares; later deposits mint proportionally to the
// smaller side, so depositing off-ratio donates the excess to the pool.
func (p *PoolState) Deposit(da, db *uint256.Int) (*uint256.Int, error) {
	if da.IsZero() || db.IsZero() {
		return nil, ErrPoolZeroAmount
	}

	var minted *uint256.Int
	if p.LiqSupply.IsZero() {
		prod := new(uint256.Int)
		if _, overflow := prod.MulOverflow(da, db); overflow {
			return nil, ErrPoolArithmeticOverflow
		}
		minted = new(uint256.Int).Sqrt(prod)
		if minted.IsZero() {
			return nil, ErrPoolFirstDepositTooSmall
		}
	} else {
		left := new(uint256.Int)
		if _, overflow := left.MulOverflow(da, &p.LiqSupply); overflow {
			return nil, ErrPoolArithmeticOverflow
		}
		left.Div(left, &p.ReserveLeft)

		right := new(uint256.Int)
		if _, overflow := right.MulOverflow(db, &p.LiqSupply); overflow {
			return nil, ErrPoolArithmeticOverflow
		}
		right.Div(right, &p.ReserveRight)

		minted = left
		if right.Lt(left) {
			minted = right
		}
		if minted.IsZero() {
			return nil, ErrPoolZeroAmount
		}
	}

	if _, overflow := p.ReserveLeft.AddOverflow(&p.ReserveLeft, da); overflow {
		return nil, ErrPoolArithmeticOverflow
	}
	if _, overflow := p.ReserveRight.AddOverflow(&p.ReserveRight, db); overflow {
		return nil, ErrPoolArithmeticOverflow
	}
	if _, overflow := p.LiqSupply.AddOverflow(&p.LiqSupply, minted); overflow {
		return nil, ErrPoolArithmeticOverflow
	}
	return minted, nil
}

// Withdraw burns shares and returns the proportional payout from each
// reserve, flooring in the pool's favor.
func (p *PoolState) Withdraw(shares *uint256.Int) (outLeft, outRight *uint256.Int, err error) {
	if shares.IsZero() {
		return nil, nil, ErrPoolZeroAmount
	}
	if shares.Gt(&p.LiqSupply) {
		return nil, nil, ErrPoolInsufficientLiq
	}

	outLeft = new(uint256.Int)
	if _, overflow := outLeft.MulOverflow(&p.ReserveLeft, shares); overflow {
		return nil, nil, ErrPoolArithmeticOverflow
	}
	outLeft.Div(outLeft, &p.LiqSupply)

	outRight = new(uint256.Int)
	if _, overflow := outRight.MulOverflow(&p.ReserveRight, shares); overflow {
		return nil, nil, ErrPoolArithmeticOverflow
	}
	outRight.Div(outRight, &p.LiqSupply)

	p.ReserveLeft.Sub(&p.ReserveLeft, outLeft)
	p.ReserveRight.Sub(&p.ReserveRight, outRight)
	p.LiqSupply.Sub(&p.LiqSupply, shares)
	return outLeft, outRight, nil
}
