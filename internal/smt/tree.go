package smt

import (
	"errors"
	"fmt"
	"sort"

	"github.com/solara-labs/solara-chain/internal/storage"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// Tree is a sparse Merkle tree anchored at a committed root hash, with
// an overlay of staged mutations. Reads see the overlay first, then the
// committed tree. Commit folds the overlay into new persisted nodes and
// yields the new root.
//
// Staged mutations to distinct keys commute; staging the same key twice
// keeps the later write. The committed portion is immutable: two Tree
// values sharing a NodeStore may safely read concurrently, and an
// abandoned Tree leaves the store untouched.
type Tree struct {
	store   *NodeStore
	root    types.Hash
	overlay map[types.Hash][]byte // staged writes; nil value = delete
}

// NewTree opens a tree at the given committed root. The zero root is
// the empty tree.
func NewTree(store *NodeStore, root types.Hash) *Tree {
	return &Tree{
		store:   store,
		root:    root,
		overlay: make(map[types.Hash][]byte),
	}
}

// Root returns the root hash of the last commit. Staged mutations are
// not reflected until Commit.
func (t *Tree) Root() types.Hash {
	return t.root
}

// Dirty reports whether the tree has staged, uncommitted mutations.
func (t *Tree) Dirty() bool {
	return len(t.overlay) > 0
}

// Copy returns a tree sharing the committed state with an independent
// copy of the staged overlay.
func (t *Tree) Copy() *Tree {
	overlay := make(map[types.Hash][]byte, len(t.overlay))
	for k, v := range t.overlay {
		overlay[k] = v
	}
	return &Tree{store: t.store, root: t.root, overlay: overlay}
}

// Insert stages a write of value under key. The value must be
// non-empty; an empty value would be indistinguishable from absence.
func (t *Tree) Insert(key types.Hash, value []byte) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}
	v := make([]byte, len(value))
	copy(v, value)
	t.overlay[key] = v
	return nil
}

// Remove stages a deletion of key.
func (t *Tree) Remove(key types.Hash) {
	t.overlay[key] = nil
}

// Discard drops all staged mutations.
func (t *Tree) Discard() {
	t.overlay = make(map[types.Hash][]byte)
}

// Get returns the value under key, reading staged mutations first and
// the committed tree second. Returns ErrKeyNotFound on a miss; this is
// the expected, non-fatal miss path.
func (t *Tree) Get(key types.Hash) ([]byte, error) {
	if v, ok := t.overlay[key]; ok {
		if v == nil {
			return nil, ErrKeyNotFound
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	return t.committedGet(key)
}

// Has reports whether key is present.
func (t *Tree) Has(key types.Hash) (bool, error) {
	_, err := t.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// committedGet walks the committed tree from the root down the key's
// bit path.
func (t *Tree) committedGet(key types.Hash) ([]byte, error) {
	h := t.root
	for depth := 0; depth < KeyBits; depth++ {
		if h.IsZero() {
			return nil, ErrKeyNotFound
		}
		enc, err := t.store.load(h)
		if err != nil {
			return nil, err
		}
		left, right, err := decodeBranch(enc)
		if err != nil {
			return nil, err
		}
		if keyBit(key, depth) == 0 {
			h = left
		} else {
			h = right
		}
	}
	if h.IsZero() {
		return nil, ErrKeyNotFound
	}
	enc, err := t.store.load(h)
	if err != nil {
		return nil, err
	}
	leafKey, value, err := decodeLeaf(enc)
	if err != nil {
		return nil, err
	}
	if leafKey != key {
		return nil, fmt.Errorf("%w: leaf key mismatch at %s", ErrCorruptNode, h)
	}
	return value, nil
}

// Commit folds all staged mutations into the committed tree, staging
// the new nodes into batch, and returns the new root. The result is
// independent of the order in which mutations were staged. The caller
// owns committing the batch; until then the new root is not durable.
func (t *Tree) Commit(batch storage.Batch) (types.Hash, error) {
	if len(t.overlay) == 0 {
		return t.root, nil
	}
	keys := make([]types.Hash, 0, len(t.overlay))
	for k := range t.overlay {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	root, err := t.write(batch, t.root, 0, keys)
	if err != nil {
		return types.Hash{}, err
	}
	t.root = root
	t.overlay = make(map[types.Hash][]byte)
	return root, nil
}

// write rebuilds the subtree rooted at h (depth levels below the root)
// applying the staged mutations for the sorted key set, and returns the
// new subtree hash. Keys are sorted in byte order, which is bit order,
// so each recursion splits them with a single partition point.
func (t *Tree) write(batch storage.Batch, h types.Hash, depth int, keys []types.Hash) (types.Hash, error) {
	if len(keys) == 0 {
		return h, nil
	}
	if depth == KeyBits {
		// A full path pins a single key.
		key := keys[0]
		value := t.overlay[key]
		if value == nil {
			return types.Hash{}, nil
		}
		nh := leafHash(key, value)
		if err := t.store.save(batch, nh, encodeLeaf(key, value)); err != nil {
			return types.Hash{}, err
		}
		return nh, nil
	}

	split := sort.Search(len(keys), func(i int) bool {
		return keyBit(keys[i], depth) == 1
	})

	var left, right types.Hash
	if !h.IsZero() {
		enc, err := t.store.load(h)
		if err != nil {
			return types.Hash{}, err
		}
		left, right, err = decodeBranch(enc)
		if err != nil {
			return types.Hash{}, err
		}
	}

	newLeft, err := t.write(batch, left, depth+1, keys[:split])
	if err != nil {
		return types.Hash{}, err
	}
	newRight, err := t.write(batch, right, depth+1, keys[split:])
	if err != nil {
		return types.Hash{}, err
	}

	nh := branchHash(newLeft, newRight)
	if nh.IsZero() {
		return types.Hash{}, nil
	}
	if err := t.store.save(batch, nh, encodeBranch(newLeft, newRight)); err != nil {
		return types.Hash{}, err
	}
	return nh, nil
}

// ForEach visits every key/value pair in the committed tree in key
// order. Staged mutations are not visited.
func (t *Tree) ForEach(fn func(key types.Hash, value []byte) error) error {
	return t.walk(t.root, 0, fn)
}

func (t *Tree) walk(h types.Hash, depth int, fn func(key types.Hash, value []byte) error) error {
	if h.IsZero() {
		return nil
	}
	enc, err := t.store.load(h)
	if err != nil {
		return err
	}
	if depth == KeyBits {
		key, value, err := decodeLeaf(enc)
		if err != nil {
			return err
		}
		return fn(key, value)
	}
	left, right, err := decodeBranch(enc)
	if err != nil {
		return err
	}
	if err := t.walk(left, depth+1, fn); err != nil {
		return err
	}
	return t.walk(right, depth+1, fn)
}
