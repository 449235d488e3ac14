package types

import "fmt"

// PoolKeySize is the canonical encoded length of a pool key.
const PoolKeySize = 2 * HashSize

// PoolKey identifies a liquidity pool by its unordered denomination
// pair, canonicalized so that Left always sorts before Right. Two
// logically equal pairs therefore always produce the same key bytes.
type PoolKey struct {
	Left  Denom `json:"left"`
	Right Denom `json:"right"`
}

// NewPoolKey builds the canonical pool key for a denomination pair.
// Returns an error if both sides are the same denom.
func NewPoolKey(a, b Denom) (PoolKey, error) {
	if a == b {
		return PoolKey{}, fmt.Errorf("pool key pairs denom %s with itself", a)
	}
	if b.Less(a) {
		a, b = b, a
	}
	return PoolKey{Left: a, Right: b}, nil
}

// Valid reports whether the key is canonical: two distinct denoms in
// sorted order.
func (k PoolKey) Valid() bool {
	return k.Left.Less(k.Right)
}

// Contains reports whether d is one side of the pair.
func (k PoolKey) Contains(d Denom) bool {
	return d == k.Left || d == k.Right
}

// Other returns the opposite side of the pair from d.
func (k PoolKey) Other(d Denom) (Denom, error) {
	switch d {
	case k.Left:
		return k.Right, nil
	case k.Right:
		return k.Left, nil
	default:
		return Denom{}, fmt.Errorf("denom %s is not in pool %s", d, k)
	}
}

// Bytes returns the canonical encoding: left(32) | right(32).
func (k PoolKey) Bytes() []byte {
	buf := make([]byte, 0, PoolKeySize)
	buf = append(buf, k.Left[:]...)
	buf = append(buf, k.Right[:]...)
	return buf
}

// PoolKeyFromBytes decodes a canonical pool key encoding, rejecting
// non-canonical pairs.
func PoolKeyFromBytes(b []byte) (PoolKey, error) {
	if len(b) != PoolKeySize {
		return PoolKey{}, fmt.Errorf("pool key must be %d bytes, got %d", PoolKeySize, len(b))
	}
	var k PoolKey
	copy(k.Left[:], b[:HashSize])
	copy(k.Right[:], b[HashSize:])
	if !k.Valid() {
		return PoolKey{}, fmt.Errorf("pool key %s is not canonical", k)
	}
	return k, nil
}

// String returns "left/right".
func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s", k.Left, k.Right)
}
