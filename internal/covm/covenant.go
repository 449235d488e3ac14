package covm

import (
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// CovenantHash returns the owner hash of a covenant script. Coins store
// this hash; spending reveals the preimage script.
func CovenantHash(script []byte) types.Hash {
	return crypto.Hash(script)
}

// Push returns the bytecode that pushes data as a literal.
// Data longer than 255 bytes cannot be pushed in one instruction.
func Push(data []byte) []byte {
	buf := make([]byte, 0, 2+len(data))
	buf = append(buf, byte(OpPush), byte(len(data)))
	buf = append(buf, data...)
	return buf
}

// StdSpend compiles the standard single-signature covenant: the coin is
// spendable by whoever can sign the transaction with the private key
// behind pubKey. The witness is the signature.
func StdSpend(pubKey []byte) []byte {
	script := Push(pubKey)
	return append(script, byte(OpCheckSig))
}

// AlwaysTrue is the anyone-can-spend covenant: a single TRUE.
func AlwaysTrue() []byte {
	return []byte{byte(OpTrue)}
}
