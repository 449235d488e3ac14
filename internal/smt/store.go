package smt

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/solara-labs/solara-chain/internal/storage"
	"github.com/solara-labs/solara-chain/pkg/types"
)

// nodeKeyPrefix namespaces tree nodes in the backing database.
var nodeKeyPrefix = []byte("n/")

// DefaultCacheSize is the default number of decoded nodes kept in
// memory. A node is at most 65 bytes plus value, so memory use stays
// modest even at the default.
const DefaultCacheSize = 262_144

// NodeStore persists tree nodes, keyed by their hash, over an abstract
// key-value database. Nodes are immutable, so the store is append-only
// and a recently-used cache is always coherent.
type NodeStore struct {
	db    storage.DB
	cache *lru.Cache[types.Hash, []byte]
}

// NewNodeStore creates a node store over db with the given cache size.
// A size of zero uses DefaultCacheSize.
func NewNodeStore(db storage.DB, cacheSize int) (*NodeStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[types.Hash, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("node cache: %w", err)
	}
	return &NodeStore{db: db, cache: cache}, nil
}

// nodeKey builds the database key for a node hash.
func nodeKey(h types.Hash) []byte {
	key := make([]byte, len(nodeKeyPrefix)+types.HashSize)
	copy(key, nodeKeyPrefix)
	copy(key[len(nodeKeyPrefix):], h[:])
	return key
}

// load fetches a node encoding by hash.
func (s *NodeStore) load(h types.Hash) ([]byte, error) {
	if enc, ok := s.cache.Get(h); ok {
		return enc, nil
	}
	enc, err := s.db.Get(nodeKey(h))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: missing node %s", ErrCorruptNode, h)
	}
	if err != nil {
		return nil, fmt.Errorf("load node %s: %w", h, err)
	}
	s.cache.Add(h, enc)
	return enc, nil
}

// save stages a node encoding into the batch and caches it.
func (s *NodeStore) save(batch storage.Batch, h types.Hash, enc []byte) error {
	if err := batch.Put(nodeKey(h), enc); err != nil {
		return fmt.Errorf("save node %s: %w", h, err)
	}
	s.cache.Add(h, enc)
	return nil
}

// NewBatch creates a write batch on the underlying database.
func (s *NodeStore) NewBatch() storage.Batch {
	if b, ok := s.db.(storage.Batcher); ok {
		return b.NewBatch()
	}
	return &directBatch{db: s.db}
}

// directBatch applies writes immediately for databases without native
// batching. Tree nodes are content-addressed, so replayed or partial
// writes are harmless.
type directBatch struct {
	db storage.DB
}

func (b *directBatch) Put(key, value []byte) error {
	return b.db.Put(key, value)
}

func (b *directBatch) Delete(key []byte) error {
	return b.db.Delete(key)
}

func (b *directBatch) Commit() error {
	return nil
}
