package ledger

import (
	"bytes"
	"testing"

	"github.com/mlnlabs/mln/db"
	"github.com/mlnlabs/mln/merkle"
)

func newOverlayState(t *testing.T) *merkle.Store {
	t.Helper()
	state, err := merkle.NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	return state
}

func TestViewReadsThroughToParent(t *testing.T) {
	state := newOverlayState(t)
	if err := state.Put([]byte("a"), []byte("parent")); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	view := NewView(state)
	value, found, err := view.Get([]byte("a"))
	if err != nil || !found || string(value) != "parent" {
		t.Errorf("Expected parent value, got %q found=%v err=%v", value, found, err)
	}

	if err := view.Put([]byte("a"), []byte("staged")); err != nil {
		t.Fatalf("stage write: %v", err)
	}
	value, _, _ = view.Get([]byte("a"))
	if string(value) != "staged" {
		t.Errorf("Expected staged value to shadow parent, got %q", value)
	}

	// The parent must not see anything until Flush.
	value, _, _ = state.Get([]byte("a"))
	if string(value) != "parent" {
		t.Errorf("Expected parent untouched before flush, got %q", value)
	}
}

func TestViewDeleteStagesTombstone(t *testing.T) {
	state := newOverlayState(t)
	if err := state.Put([]byte("a"), []byte("parent")); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	view := NewView(state)
	if err := view.Delete([]byte("a")); err != nil {
		t.Fatalf("stage delete: %v", err)
	}
	if found, _ := view.Has([]byte("a")); found {
		t.Error("Expected staged delete to hide the parent value")
	}
	if found, _ := state.Has([]byte("a")); !found {
		t.Error("Expected parent untouched before flush")
	}

	if err := view.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if found, _ := state.Has([]byte("a")); found {
		t.Error("Expected flush to delete the parent value")
	}
	if view.Len() != 0 {
		t.Errorf("Expected empty overlay after flush, got %d writes", view.Len())
	}
}

func TestViewDiscardDropsWrites(t *testing.T) {
	state := newOverlayState(t)
	view := NewView(state)
	if err := view.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("stage write: %v", err)
	}
	view.Discard()

	if view.Len() != 0 {
		t.Errorf("Expected empty overlay after discard, got %d writes", view.Len())
	}
	if found, _ := state.Has([]byte("a")); found {
		t.Error("Expected nothing flushed after discard")
	}
}

func TestViewWalkMergesStagedAndParent(t *testing.T) {
	state := newOverlayState(t)
	for _, key := range []string{"k/b", "k/d", "k/f", "other"} {
		if err := state.Put([]byte(key), []byte("p")); err != nil {
			t.Fatalf("seed parent: %v", err)
		}
	}

	view := NewView(state)
	// Staged before, between, shadowing and after the parent keys, plus a
	// tombstone hiding one parent key.
	if err := view.Put([]byte("k/a"), []byte("s")); err != nil {
		t.Fatal(err)
	}
	if err := view.Put([]byte("k/c"), []byte("s")); err != nil {
		t.Fatal(err)
	}
	if err := view.Put([]byte("k/d"), []byte("s")); err != nil {
		t.Fatal(err)
	}
	if err := view.Put([]byte("k/z"), []byte("s")); err != nil {
		t.Fatal(err)
	}
	if err := view.Delete([]byte("k/f")); err != nil {
		t.Fatal(err)
	}

	var keys []string
	var sources []string
	err := view.WalkPrefix([]byte("k/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		sources = append(sources, string(value))
		return true
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	wantKeys := []string{"k/a", "k/b", "k/c", "k/d", "k/z"}
	wantSources := []string{"s", "p", "s", "s", "s"}
	if len(keys) != len(wantKeys) {
		t.Fatalf("Expected keys %v, got %v", wantKeys, keys)
	}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] || sources[i] != wantSources[i] {
			t.Errorf("Position %d: expected %s from %s, got %s from %s",
				i, wantKeys[i], wantSources[i], keys[i], sources[i])
		}
	}
}

func TestViewWalkStopsEarly(t *testing.T) {
	state := newOverlayState(t)
	if err := state.Put([]byte("k/b"), []byte("p")); err != nil {
		t.Fatal(err)
	}
	view := NewView(state)
	if err := view.Put([]byte("k/a"), []byte("s")); err != nil {
		t.Fatal(err)
	}
	if err := view.Put([]byte("k/c"), []byte("s")); err != nil {
		t.Fatal(err)
	}

	var seen int
	err := view.WalkPrefix([]byte("k/"), func(key, value []byte) bool {
		seen++
		return false
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if seen != 1 {
		t.Errorf("Expected walk to stop after 1 key, visited %d", seen)
	}
}

func TestViewFlushAppliesToParent(t *testing.T) {
	state := newOverlayState(t)
	view := NewView(state)
	if err := view.Put([]byte("x"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := view.Put([]byte("y"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := view.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	value, found, _ := state.Get([]byte("x"))
	if !found || !bytes.Equal(value, []byte("1")) {
		t.Errorf("Expected x=1 in parent, got %q found=%v", value, found)
	}
	value, found, _ = state.Get([]byte("y"))
	if !found || !bytes.Equal(value, []byte("2")) {
		t.Errorf("Expected y=2 in parent, got %q found=%v", value, found)
	}
}

func TestNestedViewsIsolateLayers(t *testing.T) {
	state := newOverlayState(t)
	base := NewView(state)
	if err := base.Put([]byte("nonce"), []byte("1")); err != nil {
		t.Fatal(err)
	}

	scratch := NewView(base)
	if err := scratch.Put([]byte("effect"), []byte("x")); err != nil {
		t.Fatal(err)
	}

	// Scratch sees the base write; dropping scratch keeps the base intact.
	if found, _ := scratch.Has([]byte("nonce")); !found {
		t.Error("Expected scratch to read through to base")
	}
	scratch.Discard()
	if err := base.Flush(); err != nil {
		t.Fatalf("flush base: %v", err)
	}

	if found, _ := state.Has([]byte("nonce")); !found {
		t.Error("Expected base write to survive")
	}
	if found, _ := state.Has([]byte("effect")); found {
		t.Error("Expected discarded scratch write to vanish")
	}
}
