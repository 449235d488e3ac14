// Package tx defines transaction types, their canonical encoding, and
// stateless validation.
package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// CoinData describes a transaction output: a coin owned by a covenant
// hash, carrying a value of some denomination.
type CoinData struct {
	Covhash   types.Hash  `json:"covhash"`
	Value     uint256.Int `json:"value"`
	Denom     types.Denom `json:"denom"`
	ExtraData []byte      `json:"extra_data,omitempty"`
}

// Transaction represents one state mutation. Identity is the BLAKE3
// hash of the canonical encoding without signatures, so witnesses can
// be attached without malleating the ID.
type Transaction struct {
	Version   uint32         `json:"version"`
	Kind      types.TxKind   `json:"kind"`
	Inputs    []types.CoinID `json:"inputs"`
	Outputs   []CoinData     `json:"outputs"`
	Fee       uint256.Int    `json:"fee"`
	Data      []byte         `json:"data,omitempty"`
	Covenants [][]byte       `json:"covenants,omitempty"`
	Sigs      [][]byte       `json:"sigs,omitempty"`
}

// Hash computes the transaction ID: the BLAKE3 hash of SigningBytes.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// WitnessHash computes the hash of the full encoding including
// signatures.
func (t *Transaction) WitnessHash() types.Hash {
	return crypto.Hash(t.Encode())
}

// SigningBytes returns the canonical encoding without signatures. This
// is both the signing preimage and the identity preimage.
//
// Format: version(4) | kind(1) | input_count(4) | [coinid(36)]... |
// output_count(4) | [covhash(32) | value(32, big-endian) | denom(32) |
// extra_len(4) | extra]... | fee(32, big-endian) | data_len(4) | data |
// covenant_count(4) | [len(4) | covenant]...
//
// All counts and lengths are little-endian; amounts are fixed-width
// 32-byte big-endian so every logical value has exactly one encoding.
func (t *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, t.Version)
	buf = append(buf, byte(t.Kind))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.Bytes()...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = append(buf, out.Covhash[:]...)
		v := out.Value.Bytes32()
		buf = append(buf, v[:]...)
		buf = append(buf, out.Denom[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.ExtraData)))
		buf = append(buf, out.ExtraData...)
	}

	f := t.Fee.Bytes32()
	buf = append(buf, f[:]...)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Data)))
	buf = append(buf, t.Data...)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Covenants)))
	for _, cov := range t.Covenants {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cov)))
		buf = append(buf, cov...)
	}

	return buf
}

// Encode returns the full canonical encoding:
// SigningBytes | sig_count(4) | [len(4) | sig]...
func (t *Transaction) Encode() []byte {
	buf := t.SigningBytes()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Sigs)))
	for _, sig := range t.Sigs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sig)))
		buf = append(buf, sig...)
	}
	return buf
}

// Weight returns the canonical encoded size of the transaction, the
// basis for fee-by-size.
func (t *Transaction) Weight() uint64 {
	return uint64(len(t.Encode()))
}

// decoder is a strict cursor over a canonical encoding.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, fmt.Errorf("truncated encoding at offset %d", d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) byteVal() (byte, error) {
	b, err := d.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) hash() (types.Hash, error) {
	b, err := d.bytes(types.HashSize)
	if err != nil {
		return types.Hash{}, err
	}
	var h types.Hash
	copy(h[:], b)
	return h, nil
}

func (d *decoder) amount() (uint256.Int, error) {
	b, err := d.bytes(32)
	if err != nil {
		return uint256.Int{}, err
	}
	var v uint256.Int
	v.SetBytes32(b)
	return v, nil
}

func (d *decoder) lengthPrefixed(max uint32) ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("length %d exceeds limit %d at offset %d", n, max, d.off)
	}
	raw, err := d.bytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

const (
	maxDecodeElems = 1 << 16
	maxDecodeBlob  = 1 << 20
)

// Decode parses a canonical transaction encoding. Trailing bytes are
// rejected: a byte sequence decodes to at most one transaction, and
// re-encoding reproduces the input exactly.
func Decode(b []byte) (*Transaction, error) {
	d := &decoder{buf: b}
	t := &Transaction{}

	var err error
	if t.Version, err = d.u32(); err != nil {
		return nil, err
	}
	kind, err := d.byteVal()
	if err != nil {
		return nil, err
	}
	t.Kind = types.TxKind(kind)

	inCount, err := d.u32()
	if err != nil {
		return nil, err
	}
	if inCount > maxDecodeElems {
		return nil, fmt.Errorf("input count %d exceeds limit", inCount)
	}
	for i := uint32(0); i < inCount; i++ {
		raw, err := d.bytes(types.CoinIDSize)
		if err != nil {
			return nil, err
		}
		id, err := types.CoinIDFromBytes(raw)
		if err != nil {
			return nil, err
		}
		t.Inputs = append(t.Inputs, id)
	}

	outCount, err := d.u32()
	if err != nil {
		return nil, err
	}
	if outCount > maxDecodeElems {
		return nil, fmt.Errorf("output count %d exceeds limit", outCount)
	}
	for i := uint32(0); i < outCount; i++ {
		var out CoinData
		if out.Covhash, err = d.hash(); err != nil {
			return nil, err
		}
		if out.Value, err = d.amount(); err != nil {
			return nil, err
		}
		denom, err := d.hash()
		if err != nil {
			return nil, err
		}
		out.Denom = types.Denom(denom)
		if out.ExtraData, err = d.lengthPrefixed(maxDecodeBlob); err != nil {
			return nil, err
		}
		if len(out.ExtraData) == 0 {
			out.ExtraData = nil
		}
		t.Outputs = append(t.Outputs, out)
	}

	if t.Fee, err = d.amount(); err != nil {
		return nil, err
	}
	if t.Data, err = d.lengthPrefixed(maxDecodeBlob); err != nil {
		return nil, err
	}
	if len(t.Data) == 0 {
		t.Data = nil
	}

	covCount, err := d.u32()
	if err != nil {
		return nil, err
	}
	if covCount > maxDecodeElems {
		return nil, fmt.Errorf("covenant count %d exceeds limit", covCount)
	}
	for i := uint32(0); i < covCount; i++ {
		cov, err := d.lengthPrefixed(maxDecodeBlob)
		if err != nil {
			return nil, err
		}
		t.Covenants = append(t.Covenants, cov)
	}

	sigCount, err := d.u32()
	if err != nil {
		return nil, err
	}
	if sigCount > maxDecodeElems {
		return nil, fmt.Errorf("signature count %d exceeds limit", sigCount)
	}
	for i := uint32(0); i < sigCount; i++ {
		sig, err := d.lengthPrefixed(maxDecodeBlob)
		if err != nil {
			return nil, err
		}
		t.Sigs = append(t.Sigs, sig)
	}

	if d.off != len(b) {
		return nil, fmt.Errorf("trailing %d bytes after transaction", len(b)-d.off)
	}
	return t, nil
}
