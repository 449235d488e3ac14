package types

// TxKind identifies the class of state mutation a transaction performs.
// The numeric values are consensus-critical and pinned.
type TxKind uint8

const (
	TxNormal      TxKind = 0x00 // plain coin transfer
	TxStake       TxKind = 0x10 // lock output 0 as validator stake
	TxUnstake     TxKind = 0x11 // reclaim an expired stake entry
	TxSwap        TxKind = 0x51 // swap against a liquidity pool
	TxLiqDeposit  TxKind = 0x52 // deposit liquidity, mint shares
	TxLiqWithdraw TxKind = 0x53 // burn shares, withdraw liquidity
	TxMint        TxKind = 0xff // designated mint path (testnet faucet)
)

// String returns a human-readable name for the transaction kind.
func (k TxKind) String() string {
	switch k {
	case TxNormal:
		return "Normal"
	case TxStake:
		return "Stake"
	case TxUnstake:
		return "Unstake"
	case TxSwap:
		return "Swap"
	case TxLiqDeposit:
		return "LiqDeposit"
	case TxLiqWithdraw:
		return "LiqWithdraw"
	case TxMint:
		return "Mint"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is a recognized transaction kind.
func (k TxKind) Valid() bool {
	switch k {
	case TxNormal, TxStake, TxUnstake, TxSwap, TxLiqDeposit, TxLiqWithdraw, TxMint:
		return true
	default:
		return false
	}
}
