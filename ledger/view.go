// Package ledger is the state machine: it applies commands to the
// authenticated state, one at a time, in consensus order. Everything here is
// deterministic; no clocks, no randomness, no iteration over Go maps into
// state.
package ledger

import (
	"sort"
	"strings"

	"github.com/mlnlabs/mln/merkle"
)

// View is a write overlay over a parent state view. Each command runs
// against its own View: a failed command's overlay is dropped, a successful
// one is flushed into the parent. Reads fall through to the parent for
// anything not staged, so a command sees its own writes immediately.
//
// Block execution is a single lane, so View is not safe for concurrent use.
type View struct {
	parent merkle.StateView
	writes map[string][]byte // staged value, nil marks a staged delete
}

// NewView opens an empty overlay over parent.
func NewView(parent merkle.StateView) *View {
	return &View{
		parent: parent,
		writes: make(map[string][]byte),
	}
}

// Get returns the staged value, or falls through to the parent.
func (v *View) Get(key []byte) ([]byte, bool, error) {
	if value, staged := v.writes[string(key)]; staged {
		if value == nil {
			return nil, false, nil
		}
		return append([]byte(nil), value...), true, nil
	}
	return v.parent.Get(key)
}

// Has reports whether key is visible through the overlay.
func (v *View) Has(key []byte) (bool, error) {
	_, found, err := v.Get(key)
	return found, err
}

// Put stages a write.
func (v *View) Put(key, value []byte) error {
	v.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete stages a removal. Deleting a key absent from the parent is a no-op
// once flushed.
func (v *View) Delete(key []byte) error {
	v.writes[string(key)] = nil
	return nil
}

// Len returns the number of staged writes and deletes.
func (v *View) Len() int {
	return len(v.writes)
}

// Discard drops every staged write.
func (v *View) Discard() {
	v.writes = make(map[string][]byte)
}

// Flush applies the staged writes to the parent in key order and clears the
// overlay.
func (v *View) Flush() error {
	keys := make([]string, 0, len(v.writes))
	for key := range v.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if value := v.writes[key]; value == nil {
			if err := v.parent.Delete([]byte(key)); err != nil {
				return err
			}
		} else {
			if err := v.parent.Put([]byte(key), value); err != nil {
				return err
			}
		}
	}
	v.writes = make(map[string][]byte)
	return nil
}

// WalkPrefix merges the staged writes into the parent's key-ordered walk:
// staged values shadow parent values, staged deletes hide them.
func (v *View) WalkPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	staged := make([]string, 0)
	for key := range v.writes {
		if strings.HasPrefix(key, string(prefix)) {
			staged = append(staged, key)
		}
	}
	sort.Strings(staged)

	// emit hands one staged key to fn, skipping tombstones. It returns
	// false when fn stopped the walk.
	emit := func(key string) bool {
		value := v.writes[key]
		if value == nil {
			return true
		}
		return fn([]byte(key), append([]byte(nil), value...))
	}

	next := 0
	stopped := false
	err := v.parent.WalkPrefix(prefix, func(key, value []byte) bool {
		for next < len(staged) && staged[next] < string(key) {
			if !emit(staged[next]) {
				stopped = true
				return false
			}
			next++
		}
		if next < len(staged) && staged[next] == string(key) {
			shadowed := emit(staged[next])
			next++
			if !shadowed {
				stopped = true
			}
			return shadowed
		}
		if !fn(key, value) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil || stopped {
		return err
	}
	for ; next < len(staged); next++ {
		if !emit(staged[next]) {
			return nil
		}
	}
	return nil
}
