// Package crypto provides the hashing and signature primitives used by
// the Solara state transition function.
package crypto

import (
	"github.com/solara-labs/solara-chain/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts computes a BLAKE3-256 hash over the concatenation of the
// given byte slices without building an intermediate buffer.
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}
