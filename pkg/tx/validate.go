package tx

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Stateless validation errors.
var (
	ErrBadKind            = errors.New("unknown transaction kind")
	ErrNoInputs           = errors.New("transaction has no inputs")
	ErrNoOutputs          = errors.New("transaction has no outputs")
	ErrDuplicateInput     = errors.New("duplicate input")
	ErrZeroOutput         = errors.New("output value is zero")
	ErrOutputTooLarge     = errors.New("output value exceeds maximum")
	ErrTooManyInputs      = errors.New("too many inputs")
	ErrTooManyOutputs     = errors.New("too many outputs")
	ErrCovenantTooLarge   = errors.New("covenant too large")
	ErrWitnessTooLarge    = errors.New("witness element too large")
	ErrTooManySigs        = errors.New("more signatures than inputs")
	ErrDataTooLarge       = errors.New("data payload too large")
	ErrBadData            = errors.New("malformed data payload")
	ErrTxTooLarge         = errors.New("transaction exceeds weight limit")
	ErrInsufficientFee    = errors.New("insufficient fee")
	ErrPlaceholderDenom   = errors.New("placeholder denom outside mint")
	ErrNonCanonical       = errors.New("non-canonical encoding")
	ErrMintWithInputs     = errors.New("mint transaction must not spend coins")
	ErrUnstakeWithoutData = errors.New("unstake transaction missing stake reference")
)

// Validate performs the stateless phase of transaction validation: a
// pure function of the transaction and the fee multiplier snapshot,
// with no ledger access. Safe to run concurrently across a block.
func (t *Transaction) Validate(feeMultiplier *uint256.Int) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %#02x", ErrBadKind, uint8(t.Kind))
	}

	// Input rules. Mint creates value from the designated mint path
	// and must not also consume coins; Unstake consumes a stake
	// entry rather than coins.
	switch t.Kind {
	case types.TxMint:
		if len(t.Inputs) != 0 {
			return ErrMintWithInputs
		}
	case types.TxUnstake:
		// Inputs optional: the reclaimed stake funds the outputs.
	default:
		if len(t.Inputs) == 0 {
			return ErrNoInputs
		}
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), config.MaxTxOutputs)
	}

	seen := make(map[types.CoinID]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		if seen[in] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in] = true
	}

	for i, out := range t.Outputs {
		if out.Value.IsZero() {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if out.Value.Gt(config.MaxAmount) {
			return fmt.Errorf("output %d: %w", i, ErrOutputTooLarge)
		}
		if out.Denom == types.DenomNew && t.Kind != types.TxMint {
			return fmt.Errorf("output %d: %w", i, ErrPlaceholderDenom)
		}
		if len(out.ExtraData) > config.MaxTxDataSize {
			return fmt.Errorf("output %d: %w", i, ErrDataTooLarge)
		}
	}

	for i, cov := range t.Covenants {
		if len(cov) == 0 || len(cov) > config.MaxCovenantSize {
			return fmt.Errorf("covenant %d: %w: %d bytes", i, ErrCovenantTooLarge, len(cov))
		}
	}
	maxSigs := len(t.Inputs)
	if t.Kind == types.TxUnstake && maxSigs == 0 {
		maxSigs = 1
	}
	if len(t.Sigs) > maxSigs {
		return fmt.Errorf("%w: %d signatures for %d inputs", ErrTooManySigs, len(t.Sigs), len(t.Inputs))
	}
	for i, sig := range t.Sigs {
		if len(sig) > config.MaxWitnessSize {
			return fmt.Errorf("signature %d: %w", i, ErrWitnessTooLarge)
		}
	}
	if len(t.Data) > config.MaxTxDataSize {
		return ErrDataTooLarge
	}

	if err := t.validateKindData(); err != nil {
		return err
	}

	weight := t.Weight()
	if weight > config.MaxTxWeight {
		return fmt.Errorf("%w: %d bytes", ErrTxTooLarge, weight)
	}
	minFee := MinFee(weight, feeMultiplier)
	if t.Fee.Lt(minFee) {
		return fmt.Errorf("%w: fee %s below minimum %s", ErrInsufficientFee, t.Fee.Dec(), minFee.Dec())
	}

	return nil
}

// validateKindData checks the structured payload required by each
// transaction kind.
func (t *Transaction) validateKindData() error {
	switch t.Kind {
	case types.TxSwap, types.TxLiqDeposit, types.TxLiqWithdraw:
		if _, err := ParsePoolData(t.Data); err != nil {
			return fmt.Errorf("%w: %v", ErrBadData, err)
		}
	case types.TxStake:
		if _, err := ParseStakeData(t.Data); err != nil {
			return fmt.Errorf("%w: %v", ErrBadData, err)
		}
	case types.TxUnstake:
		if len(t.Data) == 0 {
			return ErrUnstakeWithoutData
		}
		if _, err := ParseUnstakeData(t.Data); err != nil {
			return fmt.Errorf("%w: %v", ErrBadData, err)
		}
	}
	return nil
}

// ValidateEncoding checks that b is the canonical encoding of a
// transaction: it decodes and re-encodes to the identical bytes.
func ValidateEncoding(b []byte) (*Transaction, error) {
	t, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonical, err)
	}
	if !bytes.Equal(t.Encode(), b) {
		return nil, ErrNonCanonical
	}
	return t, nil
}
