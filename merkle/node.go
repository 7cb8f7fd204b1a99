package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/mlnlabs/mln/cborx"
)

// HashSize is the length of every digest in the tree.
const HashSize = 32

// Hash is a node or root digest.
type Hash [HashSize]byte

// zeroHash marks an empty subtree. The empty tree's root is EmptyRoot.
var zeroHash Hash

// EmptyRoot is the digest an empty store commits to.
var EmptyRoot Hash

// nodeHashTag domain-separates node hashes from the raw sha256 used for
// priorities and value digests.
const nodeHashTag = 0x4e // 'N'

// node is one immutable treap node. Once built it is never mutated, so
// committed snapshots can be read concurrently without locks. Children are
// referenced by digest; the pointer is populated when the child was built or
// loaded in this process, nil when it still lives only in the backing store.
type node struct {
	key      []byte
	value    []byte
	priority Hash

	left      *node
	right     *node
	leftHash  Hash
	rightHash Hash

	hash  Hash
	fresh bool // created in memory and not yet persisted
}

// priorityOf derives a key's heap priority. Priorities are a pure function of
// the key, which is what makes the tree shape independent of insertion order.
func priorityOf(key []byte) Hash {
	return sha256.Sum256(key)
}

// computeNodeHash binds a node's key, value digest and both child digests.
func computeNodeHash(key []byte, value []byte, leftHash, rightHash Hash) Hash {
	valueHash := sha256.Sum256(value)
	return foldNodeHash(key, valueHash, leftHash, rightHash)
}

// foldNodeHash is the shared core of node hashing and proof verification.
func foldNodeHash(key []byte, valueHash Hash, leftHash, rightHash Hash) Hash {
	h := sha256.New()
	h.Write([]byte{nodeHashTag})
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(key)))
	h.Write(lenBuf[:])
	h.Write(key)
	h.Write(valueHash[:])
	h.Write(leftHash[:])
	h.Write(rightHash[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// makeNode builds a fresh node. Child digests are taken from the child
// pointers when present, otherwise from the explicit hashes.
func makeNode(key, value []byte, left *node, leftHash Hash, right *node, rightHash Hash) *node {
	if left != nil {
		leftHash = left.hash
	}
	if right != nil {
		rightHash = right.hash
	}
	n := &node{
		key:       key,
		value:     value,
		priority:  priorityOf(key),
		left:      left,
		right:     right,
		leftHash:  leftHash,
		rightHash: rightHash,
		fresh:     true,
	}
	n.hash = computeNodeHash(key, value, leftHash, rightHash)
	return n
}

func hashOf(n *node) Hash {
	if n == nil {
		return zeroHash
	}
	return n.hash
}

// diskNode is the persisted form, keyed in the provider by the node hash.
type diskNode struct {
	Key   []byte `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
	Left  []byte `cbor:"3,keyasint,omitempty"`
	Right []byte `cbor:"4,keyasint,omitempty"`
}

func encodeNode(n *node) ([]byte, error) {
	dn := diskNode{Key: n.key, Value: n.value}
	if n.leftHash != zeroHash {
		dn.Left = n.leftHash[:]
	}
	if n.rightHash != zeroHash {
		dn.Right = n.rightHash[:]
	}
	return cborx.Marshal(dn)
}

// decodeNode rebuilds a node from its persisted form and verifies the content
// digest matches the hash it was stored under.
func decodeNode(want Hash, data []byte) (*node, error) {
	var dn diskNode
	if err := cborx.Unmarshal(data, &dn); err != nil {
		return nil, fmt.Errorf("decode node %x: %w", want[:8], err)
	}
	n := &node{
		key:      dn.Key,
		value:    dn.Value,
		priority: priorityOf(dn.Key),
	}
	if dn.Left != nil {
		if len(dn.Left) != HashSize {
			return nil, fmt.Errorf("decode node %x: left hash is %d bytes", want[:8], len(dn.Left))
		}
		copy(n.leftHash[:], dn.Left)
	}
	if dn.Right != nil {
		if len(dn.Right) != HashSize {
			return nil, fmt.Errorf("decode node %x: right hash is %d bytes", want[:8], len(dn.Right))
		}
		copy(n.rightHash[:], dn.Right)
	}
	n.hash = computeNodeHash(n.key, n.value, n.leftHash, n.rightHash)
	if n.hash != want {
		return nil, fmt.Errorf("node %x fails digest check", want[:8])
	}
	return n, nil
}
