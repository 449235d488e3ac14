// Package smt implements the authenticated sparse Merkle tree that
// backs every sub-mapping of the world state.
//
// The tree is a full binary tree over 256-bit keys. An empty subtree is
// represented by the all-zero hash at every depth, so only populated
// paths are ever materialized. Nodes are immutable and stored by hash,
// which gives structural sharing across versions for free: committing a
// change writes only the O(key bits) nodes along the touched paths and
// leaves every unmodified subtree referenced by its old hash.
package smt

import (
	"errors"
	"fmt"

	"github.com/solara-labs/solara-chain/pkg/crypto"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// KeyBits is the depth of the tree: one level per key bit.
const KeyBits = types.HashSize * 8

// Node tags. The tag byte domain-separates leaf and branch hashes.
const (
	tagLeaf   = 0x00
	tagBranch = 0x01
)

// Tree errors.
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrCorruptNode  = errors.New("corrupt tree node")
	ErrCorruptProof = errors.New("corrupt proof")
	ErrEmptyValue   = errors.New("empty value")
)

// leafHash computes the hash of a leaf holding value under key.
// Binding the key into the leaf hash makes proofs for one key useless
// for any other key.
func leafHash(key types.Hash, value []byte) types.Hash {
	return crypto.HashParts([]byte{tagLeaf}, key[:], value)
}

// branchHash computes the hash of an internal node. A branch with two
// empty children is never hashed; it collapses to the zero hash.
func branchHash(left, right types.Hash) types.Hash {
	if left.IsZero() && right.IsZero() {
		return types.Hash{}
	}
	return crypto.HashParts([]byte{tagBranch}, left[:], right[:])
}

// encodeLeaf serializes a leaf node: tag(1) | key(32) | value.
func encodeLeaf(key types.Hash, value []byte) []byte {
	buf := make([]byte, 0, 1+types.HashSize+len(value))
	buf = append(buf, tagLeaf)
	buf = append(buf, key[:]...)
	buf = append(buf, value...)
	return buf
}

// encodeBranch serializes a branch node: tag(1) | left(32) | right(32).
func encodeBranch(left, right types.Hash) []byte {
	buf := make([]byte, 0, 1+2*types.HashSize)
	buf = append(buf, tagBranch)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return buf
}

// decodeBranch parses a branch node encoding.
func decodeBranch(enc []byte) (left, right types.Hash, err error) {
	if len(enc) != 1+2*types.HashSize || enc[0] != tagBranch {
		return types.Hash{}, types.Hash{}, fmt.Errorf("%w: bad branch encoding", ErrCorruptNode)
	}
	copy(left[:], enc[1:1+types.HashSize])
	copy(right[:], enc[1+types.HashSize:])
	return left, right, nil
}

// decodeLeaf parses a leaf node encoding.
func decodeLeaf(enc []byte) (key types.Hash, value []byte, err error) {
	if len(enc) < 1+types.HashSize || enc[0] != tagLeaf {
		return types.Hash{}, nil, fmt.Errorf("%w: bad leaf encoding", ErrCorruptNode)
	}
	copy(key[:], enc[1:1+types.HashSize])
	value = make([]byte, len(enc)-1-types.HashSize)
	copy(value, enc[1+types.HashSize:])
	return key, value, nil
}

// keyBit returns bit i of the key, most significant bit first.
func keyBit(key types.Hash, i int) byte {
	return (key[i/8] >> (7 - uint(i)%8)) & 1
}
