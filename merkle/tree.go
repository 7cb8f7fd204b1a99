// Package merkle implements the authenticated key/value store: a treap whose
// heap priorities are derived from the keys themselves. Any set of entries has
// exactly one tree shape, so replicas that applied the same commands report
// the same root digest no matter what order the writes happened in.
package merkle

import (
	"bytes"
	"fmt"
)

// NodeLoader resolves a child digest to its node, normally hitting the node
// cache and falling back to the backing provider.
type NodeLoader func(Hash) (*node, error)

// Tree is an immutable treap version. Mutating operations return a new Tree
// that shares all untouched nodes with the receiver.
type Tree struct {
	root   *node
	loader NodeLoader
	size   uint64
}

// NewTree returns an empty in-memory tree. loader may be nil when every node
// lives in memory.
func NewTree(loader NodeLoader) *Tree {
	return &Tree{loader: loader}
}

// NewTreeAt opens a committed version by its root digest, resolving the root
// node through loader immediately so a broken store surfaces at open rather
// than on first read. size is the entry count recorded at commit time.
func NewTreeAt(root Hash, size uint64, loader NodeLoader) (*Tree, error) {
	if root == zeroHash {
		return &Tree{loader: loader, size: size}, nil
	}
	if loader == nil {
		return nil, fmt.Errorf("open tree %x: no loader", root[:8])
	}
	rootNode, err := loader(root)
	if err != nil {
		return nil, err
	}
	return &Tree{root: rootNode, loader: loader, size: size}, nil
}

// RootHash returns the digest committing to the whole tree contents.
func (t *Tree) RootHash() Hash {
	return hashOf(t.root)
}

// Size returns the number of live entries.
func (t *Tree) Size() uint64 {
	return t.size
}

func (t *Tree) leftOf(n *node) (*node, error) {
	if n.left != nil {
		return n.left, nil
	}
	if n.leftHash == zeroHash {
		return nil, nil
	}
	if t.loader == nil {
		return nil, fmt.Errorf("dangling node reference %x", n.leftHash[:8])
	}
	return t.loader(n.leftHash)
}

func (t *Tree) rightOf(n *node) (*node, error) {
	if n.right != nil {
		return n.right, nil
	}
	if n.rightHash == zeroHash {
		return nil, nil
	}
	if t.loader == nil {
		return nil, fmt.Errorf("dangling node reference %x", n.rightHash[:8])
	}
	return t.loader(n.rightHash)
}

// Get returns the value stored under key.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	n := t.root
	for n != nil {
		cmp := bytes.Compare(key, n.key)
		if cmp == 0 {
			return append([]byte(nil), n.value...), true, nil
		}
		var err error
		if cmp < 0 {
			n, err = t.leftOf(n)
		} else {
			n, err = t.rightOf(n)
		}
		if err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// Has reports whether key exists.
func (t *Tree) Has(key []byte) (bool, error) {
	_, found, err := t.Get(key)
	return found, err
}

// Insert returns a tree containing key with value, replacing any previous
// value. The receiver is unchanged.
func (t *Tree) Insert(key, value []byte) (*Tree, error) {
	keyCopy := append([]byte(nil), key...)
	valueCopy := append([]byte(nil), value...)
	root, added, err := t.insert(t.root, keyCopy, valueCopy)
	if err != nil {
		return nil, err
	}
	size := t.size
	if added {
		size++
	}
	return &Tree{root: root, loader: t.loader, size: size}, nil
}

func (t *Tree) insert(n *node, key, value []byte) (*node, bool, error) {
	if n == nil {
		return makeNode(key, value, nil, zeroHash, nil, zeroHash), true, nil
	}
	cmp := bytes.Compare(key, n.key)
	if cmp == 0 {
		return makeNode(n.key, value, n.left, n.leftHash, n.right, n.rightHash), false, nil
	}
	if cmp < 0 {
		left, err := t.leftOf(n)
		if err != nil {
			return nil, false, err
		}
		newLeft, added, err := t.insert(left, key, value)
		if err != nil {
			return nil, false, err
		}
		// The inserted key can bubble to the subtree root; restore the heap
		// shape with a right rotation.
		if bytes.Compare(newLeft.priority[:], n.priority[:]) > 0 {
			lowered := makeNode(n.key, n.value, newLeft.right, newLeft.rightHash, n.right, n.rightHash)
			return makeNode(newLeft.key, newLeft.value, newLeft.left, newLeft.leftHash, lowered, lowered.hash), added, nil
		}
		return makeNode(n.key, n.value, newLeft, newLeft.hash, n.right, n.rightHash), added, nil
	}
	right, err := t.rightOf(n)
	if err != nil {
		return nil, false, err
	}
	newRight, added, err := t.insert(right, key, value)
	if err != nil {
		return nil, false, err
	}
	if bytes.Compare(newRight.priority[:], n.priority[:]) > 0 {
		lowered := makeNode(n.key, n.value, n.left, n.leftHash, newRight.left, newRight.leftHash)
		return makeNode(newRight.key, newRight.value, lowered, lowered.hash, newRight.right, newRight.rightHash), added, nil
	}
	return makeNode(n.key, n.value, n.left, n.leftHash, newRight, newRight.hash), added, nil
}

// Delete returns a tree without key. The second result reports whether the
// key was present; deleting an absent key returns the receiver unchanged.
func (t *Tree) Delete(key []byte) (*Tree, bool, error) {
	root, removed, err := t.remove(t.root, key)
	if err != nil {
		return nil, false, err
	}
	if !removed {
		return t, false, nil
	}
	return &Tree{root: root, loader: t.loader, size: t.size - 1}, true, nil
}

func (t *Tree) remove(n *node, key []byte) (*node, bool, error) {
	if n == nil {
		return nil, false, nil
	}
	cmp := bytes.Compare(key, n.key)
	if cmp < 0 {
		left, err := t.leftOf(n)
		if err != nil {
			return nil, false, err
		}
		newLeft, removed, err := t.remove(left, key)
		if err != nil || !removed {
			return n, removed, err
		}
		return makeNode(n.key, n.value, newLeft, hashOf(newLeft), n.right, n.rightHash), true, nil
	}
	if cmp > 0 {
		right, err := t.rightOf(n)
		if err != nil {
			return nil, false, err
		}
		newRight, removed, err := t.remove(right, key)
		if err != nil || !removed {
			return n, removed, err
		}
		return makeNode(n.key, n.value, n.left, n.leftHash, newRight, hashOf(newRight)), true, nil
	}
	left, err := t.leftOf(n)
	if err != nil {
		return nil, false, err
	}
	right, err := t.rightOf(n)
	if err != nil {
		return nil, false, err
	}
	merged, err := t.merge(left, right)
	if err != nil {
		return nil, false, err
	}
	return merged, true, nil
}

// merge joins two treaps where every key in a sorts before every key in b.
func (t *Tree) merge(a, b *node) (*node, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if bytes.Compare(a.priority[:], b.priority[:]) > 0 {
		aRight, err := t.rightOf(a)
		if err != nil {
			return nil, err
		}
		merged, err := t.merge(aRight, b)
		if err != nil {
			return nil, err
		}
		return makeNode(a.key, a.value, a.left, a.leftHash, merged, hashOf(merged)), nil
	}
	bLeft, err := t.leftOf(b)
	if err != nil {
		return nil, err
	}
	merged, err := t.merge(a, bLeft)
	if err != nil {
		return nil, err
	}
	return makeNode(b.key, b.value, merged, hashOf(merged), b.right, b.rightHash), nil
}

// Walk visits every entry in key order until fn returns false.
func (t *Tree) Walk(fn func(key, value []byte) bool) error {
	_, err := t.walkRange(t.root, nil, nil, fn)
	return err
}

// WalkPrefix visits every entry whose key starts with prefix, in key order.
func (t *Tree) WalkPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	end := prefixSuccessor(prefix)
	_, err := t.walkRange(t.root, prefix, end, fn)
	return err
}

// walkRange visits keys in [start, end) in order; nil bounds are open. The
// bool result is false once fn stopped the walk.
func (t *Tree) walkRange(n *node, start, end []byte, fn func(key, value []byte) bool) (bool, error) {
	if n == nil {
		return true, nil
	}
	if start == nil || bytes.Compare(start, n.key) < 0 {
		left, err := t.leftOf(n)
		if err != nil {
			return false, err
		}
		keepGoing, err := t.walkRange(left, start, end, fn)
		if err != nil || !keepGoing {
			return keepGoing, err
		}
	}
	inRange := (start == nil || bytes.Compare(start, n.key) <= 0) &&
		(end == nil || bytes.Compare(n.key, end) < 0)
	if inRange && !fn(append([]byte(nil), n.key...), append([]byte(nil), n.value...)) {
		return false, nil
	}
	if end == nil || bytes.Compare(n.key, end) < 0 {
		right, err := t.rightOf(n)
		if err != nil {
			return false, err
		}
		return t.walkRange(right, start, end, fn)
	}
	return true, nil
}

// prefixSuccessor returns the smallest key greater than every key with the
// given prefix, or nil when no such bound exists.
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			end := append([]byte(nil), prefix[:i+1]...)
			end[i]++
			return end
		}
	}
	return nil
}
