package merkle

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mlnlabs/mln/cborx"
	"github.com/mlnlabs/mln/db"
	mlnerrors "github.com/mlnlabs/mln/errors"
)

// Provider key layout. Everything the tree persists sits under the m: prefix;
// the authenticated application keys live inside the tree, not here.
var (
	nodeKeyPrefix = []byte("m:n:")
	rootKeyPrefix = []byte("m:r:")
	headKey       = []byte("m:head")
)

const rootRecordVersion = 1

// nodeCacheLimit bounds the in-memory node cache. When full the cache is
// dropped wholesale; hash addressing makes repopulation safe.
const nodeCacheLimit = 1 << 17

func nodeKey(h Hash) []byte {
	return append(append([]byte(nil), nodeKeyPrefix...), h[:]...)
}

func rootKey(height uint64) []byte {
	key := append([]byte(nil), rootKeyPrefix...)
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], height)
	return append(key, heightBuf[:]...)
}

// rootRecord is written once per commit, under the height key and under head.
type rootRecord struct {
	Version uint8  `cbor:"1,keyasint"`
	Height  uint64 `cbor:"2,keyasint"`
	Root    []byte `cbor:"3,keyasint,omitempty"`
	Size    uint64 `cbor:"4,keyasint"`
}

// StateView is the read/write surface the schema stores operate on: the
// store's working version, a committed snapshot, or a command overlay.
type StateView interface {
	Get(key []byte) ([]byte, bool, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	WalkPrefix(prefix []byte, fn func(key, value []byte) bool) error
}

// Store owns the authenticated tree versions over a database provider: one
// working version accumulating uncommitted writes and the last committed
// version serving queries and proofs. Commit persists in a single batch, so
// a crash either keeps the old version intact or lands the new one complete.
type Store struct {
	mu       sync.RWMutex
	provider db.DatabaseProvider

	cacheMu sync.RWMutex
	cache   map[Hash]*node

	working   *Tree
	committed *Tree
	height    uint64
}

// NewStore opens the store, resuming from the last committed root when the
// provider already holds one.
func NewStore(provider db.DatabaseProvider) (*Store, error) {
	s := &Store{
		provider: provider,
		cache:    make(map[Hash]*node),
	}

	head, err := provider.Get(headKey)
	if err != nil {
		return nil, fmt.Errorf("read head record: %w", err)
	}
	if head == nil {
		tree := NewTree(s.loadNode)
		s.working = tree
		s.committed = tree
		return s, nil
	}

	rec, err := decodeRootRecord(head)
	if err != nil {
		return nil, mlnerrors.NewIntegrityError("merkle.open", headKey, err)
	}
	var root Hash
	copy(root[:], rec.Root)
	tree, err := NewTreeAt(root, rec.Size, s.loadNode)
	if err != nil {
		// loadNode already classifies corruption as fatal
		return nil, err
	}
	s.working = tree
	s.committed = tree
	s.height = rec.Height
	return s, nil
}

func decodeRootRecord(data []byte) (*rootRecord, error) {
	var rec rootRecord
	if err := cborx.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode root record: %w", err)
	}
	if rec.Version != rootRecordVersion {
		return nil, fmt.Errorf("unsupported root record version %d", rec.Version)
	}
	if rec.Root != nil && len(rec.Root) != HashSize {
		return nil, fmt.Errorf("root digest is %d bytes", len(rec.Root))
	}
	return &rec, nil
}

func (s *Store) loadNode(h Hash) (*node, error) {
	s.cacheMu.RLock()
	cached, ok := s.cache[h]
	s.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := s.provider.Get(nodeKey(h))
	if err != nil {
		return nil, fmt.Errorf("load node %x: %w", h[:8], err)
	}
	if data == nil {
		return nil, mlnerrors.NewIntegrityError("merkle.load", h[:], fmt.Errorf("node record missing"))
	}
	loaded, err := decodeNode(h, data)
	if err != nil {
		return nil, mlnerrors.NewIntegrityError("merkle.load", h[:], err)
	}

	s.cacheMu.Lock()
	if len(s.cache) >= nodeCacheLimit {
		s.cache = make(map[Hash]*node)
	}
	s.cache[h] = loaded
	s.cacheMu.Unlock()
	return loaded, nil
}

// Get reads from the working version, so writes staged since the last commit
// are visible before they are durable.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	tree := s.working
	s.mu.RUnlock()
	return tree.Get(key)
}

// Has reports whether key exists in the working version.
func (s *Store) Has(key []byte) (bool, error) {
	_, found, err := s.Get(key)
	return found, err
}

// Put stages a write into the working version.
func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, err := s.working.Insert(key, value)
	if err != nil {
		return err
	}
	s.working = tree
	return nil
}

// Delete stages a removal into the working version. Deleting an absent key is
// a no-op.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, _, err := s.working.Delete(key)
	if err != nil {
		return err
	}
	s.working = tree
	return nil
}

// WalkPrefix walks the working version in key order.
func (s *Store) WalkPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	s.mu.RLock()
	tree := s.working
	s.mu.RUnlock()
	return tree.WalkPrefix(prefix, fn)
}

// Commit persists every node the working version added, records the root for
// height and moves the committed version forward. The write is one provider
// batch: it either lands completely or not at all.
func (s *Store) Commit(height uint64) (Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if height <= s.height {
		return zeroHash, fmt.Errorf("commit height %d not after committed height %d", height, s.height)
	}

	batch := s.provider.Batch()
	defer batch.Close()

	if err := persistFresh(s.working.root, batch); err != nil {
		return zeroHash, fmt.Errorf("persist nodes for height %d: %w", height, err)
	}

	root := s.working.RootHash()
	rec := rootRecord{Version: rootRecordVersion, Height: height, Size: s.working.size}
	if root != zeroHash {
		rec.Root = root[:]
	}
	data, err := cborx.Marshal(rec)
	if err != nil {
		return zeroHash, fmt.Errorf("encode root record: %w", err)
	}
	batch.Put(rootKey(height), data)
	batch.Put(headKey, data)

	if err := batch.Write(); err != nil {
		return zeroHash, fmt.Errorf("commit height %d: %w", height, err)
	}

	markPersisted(s.working.root)
	s.committed = s.working
	s.height = height
	return root, nil
}

// persistFresh writes every node created since the last commit. Path copying
// guarantees fresh nodes form a connected region under the root.
func persistFresh(n *node, batch db.DatabaseBatch) error {
	if n == nil || !n.fresh {
		return nil
	}
	data, err := encodeNode(n)
	if err != nil {
		return err
	}
	batch.Put(nodeKey(n.hash), data)
	if err := persistFresh(n.left, batch); err != nil {
		return err
	}
	return persistFresh(n.right, batch)
}

func markPersisted(n *node) {
	if n == nil || !n.fresh {
		return
	}
	n.fresh = false
	markPersisted(n.left)
	markPersisted(n.right)
}

// Reset discards every staged write, returning the working version to the
// last committed one.
func (s *Store) Reset() {
	s.mu.Lock()
	s.working = s.committed
	s.mu.Unlock()
}

// Height returns the last committed height, zero before the first commit.
func (s *Store) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// CommittedRoot returns the digest of the last committed version.
func (s *Store) CommittedRoot() Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed.RootHash()
}

// WorkingRoot returns the digest the store would commit to right now.
func (s *Store) WorkingRoot() Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.working.RootHash()
}

// Size returns the entry count of the working version.
func (s *Store) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.working.Size()
}

// Snapshot returns a read-only view of the last committed version. The view
// stays consistent forever; later commits never touch its nodes.
func (s *Store) Snapshot() StateView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &snapshot{tree: s.committed}
}

// SnapshotAt opens the committed version recorded for height.
func (s *Store) SnapshotAt(height uint64) (StateView, error) {
	data, err := s.provider.Get(rootKey(height))
	if err != nil {
		return nil, fmt.Errorf("read root record %d: %w", height, err)
	}
	if data == nil {
		return nil, fmt.Errorf("no committed version at height %d", height)
	}
	rec, err := decodeRootRecord(data)
	if err != nil {
		return nil, mlnerrors.NewIntegrityError("merkle.snapshot", rootKey(height), err)
	}
	var root Hash
	copy(root[:], rec.Root)
	tree, err := NewTreeAt(root, rec.Size, s.loadNode)
	if err != nil {
		return nil, err
	}
	return &snapshot{tree: tree}, nil
}

// Prove builds a proof for key against the last committed version and returns
// the root digest it binds to.
func (s *Store) Prove(key []byte) (*Proof, Hash, error) {
	s.mu.RLock()
	tree := s.committed
	s.mu.RUnlock()
	proof, err := tree.Prove(key)
	if err != nil {
		return nil, zeroHash, err
	}
	return proof, tree.RootHash(), nil
}

// GetProven reads key from the last committed version along with the proof
// binding the result to that version's root. Everything comes from one
// version, so a commit landing concurrently cannot split value from proof.
func (s *Store) GetProven(key []byte) ([]byte, bool, *Proof, Hash, error) {
	s.mu.RLock()
	tree := s.committed
	s.mu.RUnlock()

	value, found, err := tree.Get(key)
	if err != nil {
		return nil, false, nil, zeroHash, err
	}
	proof, err := tree.Prove(key)
	if err != nil {
		return nil, false, nil, zeroHash, err
	}
	return value, found, proof, tree.RootHash(), nil
}

// RootAt returns the root digest committed at height.
func (s *Store) RootAt(height uint64) (Hash, error) {
	data, err := s.provider.Get(rootKey(height))
	if err != nil {
		return zeroHash, fmt.Errorf("read root record %d: %w", height, err)
	}
	if data == nil {
		return zeroHash, fmt.Errorf("no committed version at height %d", height)
	}
	rec, err := decodeRootRecord(data)
	if err != nil {
		return zeroHash, mlnerrors.NewIntegrityError("merkle.root", rootKey(height), err)
	}
	var root Hash
	copy(root[:], rec.Root)
	return root, nil
}

// snapshot is a read-only StateView over one committed tree version.
type snapshot struct {
	tree *Tree
}

func (v *snapshot) Get(key []byte) ([]byte, bool, error) {
	return v.tree.Get(key)
}

func (v *snapshot) Has(key []byte) (bool, error) {
	return v.tree.Has(key)
}

func (v *snapshot) Put(key, value []byte) error {
	return fmt.Errorf("snapshot is read-only")
}

func (v *snapshot) Delete(key []byte) error {
	return fmt.Errorf("snapshot is read-only")
}

func (v *snapshot) WalkPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	return v.tree.WalkPrefix(prefix, fn)
}
