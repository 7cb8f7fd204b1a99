package merkle

import (
	"fmt"
	"testing"

	"github.com/mlnlabs/mln/db"
)

func proofFixture(t *testing.T) (*Tree, Hash) {
	t.Helper()
	tree := NewTree(nil)
	for i := 0; i < 32; i++ {
		next, err := tree.Insert([]byte(fmt.Sprintf("entry-%02d", i)), []byte(fmt.Sprintf("payload-%02d", i)))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		tree = next
	}
	return tree, tree.RootHash()
}

func TestInclusionProof(t *testing.T) {
	tree, root := proofFixture(t)

	proof, err := tree.Prove([]byte("entry-17"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if !proof.Found {
		t.Fatal("Expected an inclusion proof for a present key")
	}
	if err := VerifyInclusion(root, []byte("entry-17"), []byte("payload-17"), proof); err != nil {
		t.Errorf("valid proof rejected: %v", err)
	}

	// Wrong value
	if err := VerifyInclusion(root, []byte("entry-17"), []byte("payload-00"), proof); err == nil {
		t.Error("Expected rejection for wrong value")
	}
	// Wrong key
	if err := VerifyInclusion(root, []byte("entry-18"), []byte("payload-17"), proof); err == nil {
		t.Error("Expected rejection for wrong key")
	}
	// Wrong root
	var otherRoot Hash
	otherRoot[0] = 0xFF
	if err := VerifyInclusion(otherRoot, []byte("entry-17"), []byte("payload-17"), proof); err == nil {
		t.Error("Expected rejection against a different root")
	}
}

func TestExclusionProof(t *testing.T) {
	tree, root := proofFixture(t)

	proof, err := tree.Prove([]byte("entry-99"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if proof.Found {
		t.Fatal("Expected an absence proof for a missing key")
	}
	if err := VerifyExclusion(root, []byte("entry-99"), proof); err != nil {
		t.Errorf("valid absence proof rejected: %v", err)
	}

	// An inclusion proof is not an absence proof
	present, err := tree.Prove([]byte("entry-05"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if err := VerifyExclusion(root, []byte("entry-05"), present); err == nil {
		t.Error("Expected rejection for a found proof")
	}

	// Wrong root
	var otherRoot Hash
	otherRoot[0] = 0xFF
	if err := VerifyExclusion(otherRoot, []byte("entry-99"), proof); err == nil {
		t.Error("Expected rejection against a different root")
	}
}

func TestEmptyTreeExclusion(t *testing.T) {
	tree := NewTree(nil)
	proof, err := tree.Prove([]byte("anything"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if len(proof.Steps) != 0 || proof.Found {
		t.Fatalf("Expected empty absence proof, got found=%v steps=%d", proof.Found, len(proof.Steps))
	}
	if err := VerifyExclusion(EmptyRoot, []byte("anything"), proof); err != nil {
		t.Errorf("absence against empty root rejected: %v", err)
	}

	var nonEmpty Hash
	nonEmpty[31] = 1
	if err := VerifyExclusion(nonEmpty, []byte("anything"), proof); err == nil {
		t.Error("Expected rejection of empty proof against non-empty root")
	}
}

func TestTamperedProofFails(t *testing.T) {
	tree, root := proofFixture(t)
	proof, err := tree.Prove([]byte("entry-17"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if len(proof.Steps) < 2 {
		t.Skip("tree too shallow to tamper with an interior step")
	}

	proof.Steps[0].ValueHash[3] ^= 0x40
	if err := VerifyInclusion(root, []byte("entry-17"), []byte("payload-17"), proof); err == nil {
		t.Error("Expected rejection of a tampered step")
	}
}

func TestProofSurvivesTransportEncoding(t *testing.T) {
	tree, root := proofFixture(t)
	proof, err := tree.Prove([]byte("entry-08"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	wire, err := proof.MarshalBinary()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded Proof
	if err := decoded.UnmarshalBinary(wire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := VerifyInclusion(root, []byte("entry-08"), []byte("payload-08"), &decoded); err != nil {
		t.Errorf("decoded proof rejected: %v", err)
	}
}

func TestProofFromPersistedStore(t *testing.T) {
	// Prove against a committed store where interior nodes resolve lazily
	// from disk.
	store, err := NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 40; i++ {
		if err := store.Put([]byte(fmt.Sprintf("disk-%02d", i)), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	root, err := store.Commit(1)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	proof, boundRoot, err := store.Prove([]byte("disk-21"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if boundRoot != root {
		t.Errorf("proof bound to %x, want %x", boundRoot[:8], root[:8])
	}
	if err := VerifyInclusion(root, []byte("disk-21"), []byte("v"), proof); err != nil {
		t.Errorf("proof rejected: %v", err)
	}

	absent, _, err := store.Prove([]byte("disk-99"))
	if err != nil {
		t.Fatalf("prove absent: %v", err)
	}
	if err := VerifyExclusion(root, []byte("disk-99"), absent); err != nil {
		t.Errorf("absence proof rejected: %v", err)
	}
}
