package covm

// Gas cost table, version 1. These values are consensus-critical: any
// deviation changes which transactions are valid and splits the
// network. New tables get new versions activated by hard fork.
const (
	gasBase     = 10   // charged for every decoded instruction
	gasPerByte  = 1    // per byte pushed or hashed
	gasCheckSig = 2000 // flat cost of a signature verification
)

// gasTableV1 maps each opcode to its base cost. Size-proportional costs
// (OpPush, OpHash, OpCheckSig) are added on top at execution time.
var gasTableV1 = map[Opcode]uint64{
	OpPush:       gasBase,
	OpDup:        gasBase,
	OpDrop:       gasBase,
	OpSwap:       gasBase,
	OpOver:       gasBase,
	OpAdd:        gasBase,
	OpSub:        gasBase,
	OpMul:        gasBase,
	OpEq:         gasBase,
	OpLt:         gasBase,
	OpGt:         gasBase,
	OpNot:        gasBase,
	OpAnd:        gasBase,
	OpOr:         gasBase,
	OpHash:       gasBase,
	OpCheckSig:   gasBase,
	OpTxHash:     gasBase,
	OpHeight:     gasBase,
	OpCoinValue:  gasBase,
	OpCoinDenom:  gasBase,
	OpSpendIndex: gasBase,
	OpIf:         gasBase,
	OpElse:       gasBase,
	OpEndIf:      gasBase,
	OpVerify:     gasBase,
	OpTrue:       gasBase,
	OpFalse:      gasBase,
}
