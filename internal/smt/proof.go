package smt

import (
	"fmt"

	"github.com/solara-labs/solara-chain/pkg/types"
)

// Proof is a compact inclusion/exclusion proof for one key. It carries
// the non-empty sibling hashes along the key's path, top-down, with a
// bitmap marking which depths have a non-empty sibling. A party holding
// only a trusted root can verify it without any tree access.
type Proof struct {
	bitmap   [types.HashSize]byte
	siblings []types.Hash
}

// Prove generates a proof for key against the committed root, along
// with the proven value (nil if the key is absent, making this an
// exclusion proof).
func (t *Tree) Prove(key types.Hash) (*Proof, []byte, error) {
	p := &Proof{}
	h := t.root
	exhausted := false
	for depth := 0; depth < KeyBits; depth++ {
		if exhausted || h.IsZero() {
			// Inside an empty subtree every sibling is empty.
			exhausted = true
			continue
		}
		enc, err := t.store.load(h)
		if err != nil {
			return nil, nil, err
		}
		left, right, err := decodeBranch(enc)
		if err != nil {
			return nil, nil, err
		}
		var next, sibling types.Hash
		if keyBit(key, depth) == 0 {
			next, sibling = left, right
		} else {
			next, sibling = right, left
		}
		if !sibling.IsZero() {
			p.bitmap[depth/8] |= 1 << (7 - uint(depth)%8)
			p.siblings = append(p.siblings, sibling)
		}
		h = next
	}

	if exhausted || h.IsZero() {
		return p, nil, nil
	}
	enc, err := t.store.load(h)
	if err != nil {
		return nil, nil, err
	}
	leafKey, value, err := decodeLeaf(enc)
	if err != nil {
		return nil, nil, err
	}
	if leafKey != key {
		return nil, nil, fmt.Errorf("%w: leaf key mismatch at %s", ErrCorruptNode, h)
	}
	return p, value, nil
}

// Verify checks the proof against a trusted root. A nil value verifies
// the key's absence; a non-nil value verifies its presence with exactly
// that value. Any tampered byte in the proof, key, or value fails.
func (p *Proof) Verify(root types.Hash, key types.Hash, value []byte) bool {
	cur := types.Hash{}
	if value != nil {
		cur = leafHash(key, value)
	}

	idx := len(p.siblings)
	for depth := KeyBits - 1; depth >= 0; depth-- {
		var sibling types.Hash
		if p.bitmap[depth/8]&(1<<(7-uint(depth)%8)) != 0 {
			if idx == 0 {
				return false
			}
			idx--
			sibling = p.siblings[idx]
			if sibling.IsZero() {
				// A present-but-zero sibling would make the
				// encoding ambiguous.
				return false
			}
		}
		if keyBit(key, depth) == 0 {
			cur = branchHash(cur, sibling)
		} else {
			cur = branchHash(sibling, cur)
		}
	}
	return idx == 0 && cur == root
}

// Bytes returns the canonical proof encoding:
// bitmap(32) | sibling(32)...
func (p *Proof) Bytes() []byte {
	buf := make([]byte, 0, types.HashSize*(1+len(p.siblings)))
	buf = append(buf, p.bitmap[:]...)
	for _, s := range p.siblings {
		buf = append(buf, s[:]...)
	}
	return buf
}

// ProofFromBytes decodes a canonical proof encoding.
func ProofFromBytes(b []byte) (*Proof, error) {
	if len(b) < types.HashSize || len(b)%types.HashSize != 0 {
		return nil, fmt.Errorf("%w: bad length %d", ErrCorruptProof, len(b))
	}
	p := &Proof{}
	copy(p.bitmap[:], b[:types.HashSize])

	popcount := 0
	for _, x := range p.bitmap {
		for ; x != 0; x &= x - 1 {
			popcount++
		}
	}
	rest := b[types.HashSize:]
	if len(rest)/types.HashSize != popcount {
		return nil, fmt.Errorf("%w: bitmap promises %d siblings, got %d", ErrCorruptProof, popcount, len(rest)/types.HashSize)
	}
	for i := 0; i < popcount; i++ {
		var s types.Hash
		copy(s[:], rest[i*types.HashSize:])
		p.siblings = append(p.siblings, s)
	}
	return p, nil
}
