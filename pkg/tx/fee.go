package tx

import "github.com/holiman/uint256"

// MinFee computes the minimum acceptable fee for a transaction of the
// given canonical weight under the current fee multiplier: simply
// weight * multiplier in base units. The multiplier drifts per block,
// so the value a transaction was built against may differ from the
// value it is validated against.
func MinFee(weight uint64, multiplier *uint256.Int) *uint256.Int {
	w := uint256.NewInt(weight)
	return w.Mul(w, multiplier)
}
