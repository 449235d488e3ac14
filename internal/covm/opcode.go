// Package covm implements the deterministic, gas-metered stack machine
// that authorizes coin spends. A coin's owner is the BLAKE3 hash of a
// covenant script; spending the coin requires revealing a script with
// that hash and executing it to a true result against the spending
// transaction's context.
//
// The opcode set is closed: every instruction has a fixed evaluation
// rule and a pinned gas cost. Execution depends only on the script, the
// witness, and the explicit context, never on time, randomness, or
// floating point.
package covm

// Opcode is a single covenant instruction. The numeric values are
// consensus-critical and pinned.
type Opcode byte

const (
	// OpPush is followed by a one-byte length n and n literal bytes
	// to push.
	OpPush Opcode = 0x01

	// Stack manipulation.
	OpDup  Opcode = 0x10
	OpDrop Opcode = 0x11
	OpSwap Opcode = 0x12
	OpOver Opcode = 0x13

	// Arithmetic on 64-bit unsigned little-endian operands.
	// Overflow traps; it never wraps.
	OpAdd Opcode = 0x20
	OpSub Opcode = 0x21
	OpMul Opcode = 0x22

	// Comparison and logic.
	OpEq  Opcode = 0x28
	OpLt  Opcode = 0x29
	OpGt  Opcode = 0x2a
	OpNot Opcode = 0x2b
	OpAnd Opcode = 0x2c
	OpOr  Opcode = 0x2d

	// Crypto.
	OpHash     Opcode = 0x30 // BLAKE3 of the top element
	OpCheckSig Opcode = 0x31 // pops pubkey, then sig; pushes verdict

	// Spend context.
	OpTxHash     Opcode = 0x40
	OpHeight     Opcode = 0x41
	OpCoinValue  Opcode = 0x42
	OpCoinDenom  Opcode = 0x43
	OpSpendIndex Opcode = 0x44

	// Flow control.
	OpIf    Opcode = 0x50
	OpElse  Opcode = 0x51
	OpEndIf Opcode = 0x52

	// OpVerify pops the top element and aborts unless it is truthy.
	OpVerify Opcode = 0x53

	// Literals.
	OpTrue  Opcode = 0x60
	OpFalse Opcode = 0x61
)

// String returns the mnemonic for an opcode.
func (op Opcode) String() string {
	switch op {
	case OpPush:
		return "PUSH"
	case OpDup:
		return "DUP"
	case OpDrop:
		return "DROP"
	case OpSwap:
		return "SWAP"
	case OpOver:
		return "OVER"
	case OpAdd:
		return "ADD"
	case OpSub:
		return "SUB"
	case OpMul:
		return "MUL"
	case OpEq:
		return "EQ"
	case OpLt:
		return "LT"
	case OpGt:
		return "GT"
	case OpNot:
		return "NOT"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpHash:
		return "HASH"
	case OpCheckSig:
		return "CHECKSIG"
	case OpTxHash:
		return "TXHASH"
	case OpHeight:
		return "HEIGHT"
	case OpCoinValue:
		return "COINVALUE"
	case OpCoinDenom:
		return "COINDENOM"
	case OpSpendIndex:
		return "SPENDINDEX"
	case OpIf:
		return "IF"
	case OpElse:
		return "ELSE"
	case OpEndIf:
		return "ENDIF"
	case OpVerify:
		return "VERIFY"
	case OpTrue:
		return "TRUE"
	case OpFalse:
		return "FALSE"
	default:
		return "INVALID"
	}
}
