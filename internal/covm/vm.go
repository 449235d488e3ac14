package covm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Execution errors.
var (
	ErrOutOfGas        = errors.New("covenant out of gas")
	ErrMalformedScript = errors.New("malformed covenant script")
	ErrScriptFailure   = errors.New("covenant not satisfied")
	ErrArithOverflow   = errors.New("covenant arithmetic overflow")
)

// MaxStackDepth bounds the operand stack. Consensus-critical.
const MaxStackDepth = 128

// Context is the spend context a covenant executes against: the
// transaction being authorized, the coin being spent, and the ambient
// block height. All fields are plain values so execution is a pure
// function of (script, witness, context).
type Context struct {
	TxHash     types.Hash  // canonical id of the spending transaction
	SigHash    types.Hash  // hash that signatures commit to
	Height     uint64      // height of the block being applied
	SpendIndex uint32      // index of the input being authorized
	CoinValue  uint256.Int // value of the coin being spent
	CoinDenom  types.Denom // denomination of the coin being spent
}

// ctrlFrame tracks one nested IF block on the explicit control stack.
type ctrlFrame struct {
	parentActive bool
	active       bool
	taken        bool
	seenElse     bool
}

// VM executes one covenant script. It is an explicit state machine:
// Step executes exactly one instruction, so gas use and stack state can
// be observed between steps, and memory stays bounded regardless of
// script nesting depth.
type VM struct {
	script []byte
	ctx    *Context

	pc      int
	stack   [][]byte
	ctrl    []ctrlFrame
	gasUsed uint64
	gasMax  uint64

	finished bool
	result   error
}

// New prepares a VM for a script with the witness elements pre-pushed
// onto the operand stack in order (so the first witness element is
// deepest). Returns ErrMalformedScript if the script or witness exceed
// protocol limits.
func New(script []byte, witness [][]byte, gasLimit uint64, ctx *Context) (*VM, error) {
	if len(script) == 0 || len(script) > config.MaxCovenantSize {
		return nil, fmt.Errorf("%w: script length %d", ErrMalformedScript, len(script))
	}
	if len(witness) > MaxStackDepth {
		return nil, fmt.Errorf("%w: %d witness elements", ErrMalformedScript, len(witness))
	}
	vm := &VM{
		script: script,
		ctx:    ctx,
		gasMax: gasLimit,
		stack:  make([][]byte, 0, len(witness)+8),
	}
	for _, w := range witness {
		if len(w) > config.MaxWitnessSize {
			return nil, fmt.Errorf("%w: witness element of %d bytes", ErrMalformedScript, len(w))
		}
		elem := make([]byte, len(w))
		copy(elem, w)
		vm.stack = append(vm.stack, elem)
	}
	return vm, nil
}

// GasUsed returns the gas consumed so far.
func (vm *VM) GasUsed() uint64 {
	return vm.gasUsed
}

// StackDepth returns the current operand stack depth.
func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

// Run steps the VM to completion and returns the final verdict: nil if
// the covenant is satisfied, otherwise one of the execution errors.
func (vm *VM) Run() error {
	for {
		done, err := vm.Step()
		if err != nil {
			return err
		}
		if done {
			return vm.result
		}
	}
}

// Eval is the one-shot convenience wrapper around New and Run.
func Eval(script []byte, witness [][]byte, gasLimit uint64, ctx *Context) error {
	vm, err := New(script, witness, gasLimit, ctx)
	if err != nil {
		return err
	}
	return vm.Run()
}

// Step executes one instruction. It returns done=true once the script
// has terminated; the final verdict is then available via the VM's
// result and returned by Run. A non-nil error is a hard abort (gas,
// malformed bytecode, failed verify) and is also recorded as final.
func (vm *VM) Step() (bool, error) {
	if vm.finished {
		return true, vm.result
	}
	if vm.pc >= len(vm.script) {
		return true, vm.finish()
	}

	op := Opcode(vm.script[vm.pc])
	vm.pc++

	cost, ok := gasTableV1[op]
	if !ok {
		return true, vm.abort(fmt.Errorf("%w: invalid opcode %#02x at %d", ErrMalformedScript, byte(op), vm.pc-1))
	}
	if err := vm.charge(cost); err != nil {
		return true, vm.abort(err)
	}

	// Flow-control opcodes run even inside a skipped branch; anything
	// else is decoded (and push literals consumed) but not executed.
	if !vm.executing() && op != OpIf && op != OpElse && op != OpEndIf {
		if op == OpPush {
			if _, err := vm.readPush(); err != nil {
				return true, vm.abort(err)
			}
		}
		return false, nil
	}

	if err := vm.exec(op); err != nil {
		return true, vm.abort(err)
	}
	return false, nil
}

// finish evaluates the termination rule: all IF blocks closed and the
// stack holding exactly one truthy element.
func (vm *VM) finish() error {
	vm.finished = true
	if len(vm.ctrl) != 0 {
		vm.result = fmt.Errorf("%w: unterminated IF", ErrMalformedScript)
		return vm.result
	}
	if len(vm.stack) != 1 || !truthy(vm.stack[0]) {
		vm.result = fmt.Errorf("%w: final stack is not a single true value", ErrScriptFailure)
		return vm.result
	}
	vm.result = nil
	return nil
}

func (vm *VM) abort(err error) error {
	vm.finished = true
	vm.result = err
	return err
}

func (vm *VM) charge(cost uint64) error {
	if vm.gasUsed+cost < vm.gasUsed || vm.gasUsed+cost > vm.gasMax {
		return fmt.Errorf("%w: used %d of %d", ErrOutOfGas, vm.gasUsed, vm.gasMax)
	}
	vm.gasUsed += cost
	return nil
}

func (vm *VM) executing() bool {
	if len(vm.ctrl) == 0 {
		return true
	}
	return vm.ctrl[len(vm.ctrl)-1].active
}

// readPush consumes the length byte and literal bytes of an OpPush.
func (vm *VM) readPush() ([]byte, error) {
	if vm.pc >= len(vm.script) {
		return nil, fmt.Errorf("%w: truncated push length", ErrMalformedScript)
	}
	n := int(vm.script[vm.pc])
	vm.pc++
	if vm.pc+n > len(vm.script) {
		return nil, fmt.Errorf("%w: truncated push of %d bytes", ErrMalformedScript, n)
	}
	data := vm.script[vm.pc : vm.pc+n]
	vm.pc += n
	return data, nil
}

func (vm *VM) push(v []byte) error {
	if len(vm.stack) >= MaxStackDepth {
		return fmt.Errorf("%w: stack depth exceeds %d", ErrScriptFailure, MaxStackDepth)
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() ([]byte, error) {
	if len(vm.stack) == 0 {
		return nil, fmt.Errorf("%w: pop from empty stack", ErrScriptFailure)
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) popU64() (uint64, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: numeric operand must be 8 bytes, got %d", ErrScriptFailure, len(v))
	}
	return binary.LittleEndian.Uint64(v), nil
}

func (vm *VM) pushU64(x uint64) error {
	return vm.push(binary.LittleEndian.AppendUint64(nil, x))
}

func (vm *VM) pushBool(b bool) error {
	if b {
		return vm.push([]byte{1})
	}
	return vm.push([]byte{})
}

func (vm *VM) exec(op Opcode) error {
	switch op {
	case OpPush:
		data, err := vm.readPush()
		if err != nil {
			return err
		}
		if err := vm.charge(uint64(len(data)) * gasPerByte); err != nil {
			return err
		}
		elem := make([]byte, len(data))
		copy(elem, data)
		return vm.push(elem)

	case OpDup:
		if len(vm.stack) == 0 {
			return fmt.Errorf("%w: DUP on empty stack", ErrScriptFailure)
		}
		top := vm.stack[len(vm.stack)-1]
		elem := make([]byte, len(top))
		copy(elem, top)
		return vm.push(elem)

	case OpDrop:
		_, err := vm.pop()
		return err

	case OpSwap:
		if len(vm.stack) < 2 {
			return fmt.Errorf("%w: SWAP needs two elements", ErrScriptFailure)
		}
		n := len(vm.stack)
		vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]
		return nil

	case OpOver:
		if len(vm.stack) < 2 {
			return fmt.Errorf("%w: OVER needs two elements", ErrScriptFailure)
		}
		src := vm.stack[len(vm.stack)-2]
		elem := make([]byte, len(src))
		copy(elem, src)
		return vm.push(elem)

	case OpAdd, OpSub, OpMul:
		b, err := vm.popU64()
		if err != nil {
			return err
		}
		a, err := vm.popU64()
		if err != nil {
			return err
		}
		var r uint64
		switch op {
		case OpAdd:
			r = a + b
			if r < a {
				return fmt.Errorf("%w: %d + %d", ErrArithOverflow, a, b)
			}
		case OpSub:
			if b > a {
				return fmt.Errorf("%w: %d - %d", ErrArithOverflow, a, b)
			}
			r = a - b
		case OpMul:
			if a != 0 && b > math.MaxUint64/a {
				return fmt.Errorf("%w: %d * %d", ErrArithOverflow, a, b)
			}
			r = a * b
		}
		return vm.pushU64(r)

	case OpEq:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.pushBool(bytes.Equal(a, b))

	case OpLt, OpGt:
		b, err := vm.popU64()
		if err != nil {
			return err
		}
		a, err := vm.popU64()
		if err != nil {
			return err
		}
		if op == OpLt {
			return vm.pushBool(a < b)
		}
		return vm.pushBool(a > b)

	case OpNot:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.pushBool(!truthy(v))

	case OpAnd, OpOr:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if op == OpAnd {
			return vm.pushBool(truthy(a) && truthy(b))
		}
		return vm.pushBool(truthy(a) || truthy(b))

	case OpHash:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.charge(uint64(len(v)) * gasPerByte); err != nil {
			return err
		}
		h := crypto.Hash(v)
		return vm.push(h.Bytes())

	case OpCheckSig:
		if err := vm.charge(gasCheckSig); err != nil {
			return err
		}
		pubKey, err := vm.pop()
		if err != nil {
			return err
		}
		sig, err := vm.pop()
		if err != nil {
			return err
		}
		ok := crypto.VerifySignature(vm.ctx.SigHash[:], sig, pubKey)
		return vm.pushBool(ok)

	case OpTxHash:
		return vm.push(vm.ctx.TxHash.Bytes())

	case OpHeight:
		return vm.pushU64(vm.ctx.Height)

	case OpCoinValue:
		v := vm.ctx.CoinValue.Bytes32()
		return vm.push(v[:])

	case OpCoinDenom:
		d := make([]byte, len(vm.ctx.CoinDenom))
		copy(d, vm.ctx.CoinDenom[:])
		return vm.push(d)

	case OpSpendIndex:
		return vm.pushU64(uint64(vm.ctx.SpendIndex))

	case OpIf:
		parent := vm.executing()
		cond := false
		if parent {
			v, err := vm.pop()
			if err != nil {
				return err
			}
			cond = truthy(v)
		}
		vm.ctrl = append(vm.ctrl, ctrlFrame{
			parentActive: parent,
			active:       parent && cond,
			taken:        parent && cond,
		})
		return nil

	case OpElse:
		if len(vm.ctrl) == 0 {
			return fmt.Errorf("%w: ELSE without IF", ErrMalformedScript)
		}
		frame := &vm.ctrl[len(vm.ctrl)-1]
		if frame.seenElse {
			return fmt.Errorf("%w: duplicate ELSE", ErrMalformedScript)
		}
		frame.seenElse = true
		frame.active = frame.parentActive && !frame.taken
		frame.taken = frame.taken || frame.active
		return nil

	case OpEndIf:
		if len(vm.ctrl) == 0 {
			return fmt.Errorf("%w: ENDIF without IF", ErrMalformedScript)
		}
		vm.ctrl = vm.ctrl[:len(vm.ctrl)-1]
		return nil

	case OpVerify:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if !truthy(v) {
			return fmt.Errorf("%w: VERIFY failed", ErrScriptFailure)
		}
		return nil

	case OpTrue:
		return vm.push([]byte{1})

	case OpFalse:
		return vm.push([]byte{})

	default:
		return fmt.Errorf("%w: invalid opcode %#02x", ErrMalformedScript, byte(op))
	}
}

// truthy reports whether a stack element is true: non-empty with at
// least one nonzero byte.
func truthy(v []byte) bool {
	for _, b := range v {
		if b != 0 {
			return true
		}
	}
	return false
}
