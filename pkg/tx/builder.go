package tx

import (
	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Builder assembles a transaction step by step. It is a convenience
// for wallets and tests; the zero builder produces a TxNormal with no
// inputs or outputs.
type Builder struct {
	tx Transaction
}

// NewBuilder returns a builder for a transaction of the given kind.
func NewBuilder(kind types.TxKind) *Builder {
	return &Builder{tx: Transaction{Version: 1, Kind: kind}}
}

// Input adds a coin to spend.
func (b *Builder) Input(id types.CoinID) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, id)
	return b
}

// Output adds an output paying value of denom to covhash.
func (b *Builder) Output(covhash types.Hash, value *uint256.Int, denom types.Denom) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, CoinData{
		Covhash: covhash,
		Value:   *value,
		Denom:   denom,
	})
	return b
}

// OutputData adds an output carrying extra data.
func (b *Builder) OutputData(covhash types.Hash, value *uint256.Int, denom types.Denom, extra []byte) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, CoinData{
		Covhash:   covhash,
		Value:     *value,
		Denom:     denom,
		ExtraData: extra,
	})
	return b
}

// Fee sets the declared fee.
func (b *Builder) Fee(fee *uint256.Int) *Builder {
	b.tx.Fee = *fee
	return b
}

// Data sets the structured payload.
func (b *Builder) Data(data []byte) *Builder {
	b.tx.Data = data
	return b
}

// Covenant attaches an unlocking covenant revealed by this
// transaction. Covenant order is independent of input order; inputs
// match by covenant hash.
func (b *Builder) Covenant(script []byte) *Builder {
	b.tx.Covenants = append(b.tx.Covenants, script)
	return b
}

// Sign appends a signature over the transaction's signing hash. Call
// once per input, in input order, after all other fields are final:
// signatures are excluded from the signing hash, so appending more
// does not invalidate earlier ones.
func (b *Builder) Sign(priv *crypto.PrivateKey) *Builder {
	h := b.tx.Hash()
	sig, err := priv.Sign(h[:])
	if err != nil {
		// Hash is always 32 bytes; signing cannot fail here.
		panic(err)
	}
	b.tx.Sigs = append(b.tx.Sigs, sig)
	return b
}

// Build returns the assembled transaction.
func (b *Builder) Build() *Transaction {
	return &b.tx
}
