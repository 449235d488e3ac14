package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Denom identifies an asset denomination. The native coin and the
// "new coin" placeholder are reserved values; custom denominations are
// derived from the hash of the transaction that minted them, and
// liquidity-share denominations from the pool key they belong to.
type Denom [HashSize]byte

var (
	// DenomSol is the native denomination of the ledger.
	DenomSol = Denom{0x73}

	// DenomNew is a placeholder in freshly minted outputs. The state
	// transition rewrites it to the custom denomination derived from
	// the minting transaction's hash.
	DenomNew = Denom{}
)

// IsZero returns true if the denom is the all-zero placeholder.
func (d Denom) IsZero() bool {
	return d == Denom{}
}

// String returns a short human-readable name for well-known denoms,
// or the hex encoding otherwise.
func (d Denom) String() string {
	switch d {
	case DenomSol:
		return "SOL"
	case DenomNew:
		return "(new)"
	default:
		return hex.EncodeToString(d[:])
	}
}

// Less reports whether d sorts before other in byte order. Pool keys
// rely on this to canonicalize unordered denomination pairs.
func (d Denom) Less(other Denom) bool {
	return Hash(d).Less(Hash(other))
}

// MarshalJSON encodes the denom as a hex string.
func (d Denom) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(d[:]))
}

// UnmarshalJSON decodes a hex string into a denom.
func (d *Denom) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid denom hex: %w", err)
	}
	if len(b) != HashSize {
		return fmt.Errorf("denom must be %d bytes, got %d", HashSize, len(b))
	}
	copy(d[:], b)
	return nil
}
