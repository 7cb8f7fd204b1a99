package merkle

import (
	"fmt"
	"testing"

	"github.com/mlnlabs/mln/db"
	mlnerrors "github.com/mlnlabs/mln/errors"
)

func TestCommitPersistsAcrossReopen(t *testing.T) {
	provider := db.NewMemDBProvider()

	first, err := NewStore(provider)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k-%02d", i)
		if err := first.Put([]byte(key), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	root, err := first.Commit(1)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	reopened, err := NewStore(provider)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Height() != 1 {
		t.Errorf("Expected height 1 after reopen, got %d", reopened.Height())
	}
	if got := reopened.CommittedRoot(); got != root {
		t.Errorf("Expected root %x after reopen, got %x", root[:8], got[:8])
	}
	value, found, err := reopened.Get([]byte("k-03"))
	if err != nil || !found || string(value) != "v" {
		t.Errorf("Expected k-03=v after reopen, got %s found=%v err=%v", value, found, err)
	}
	if reopened.Size() != 10 {
		t.Errorf("Expected size 10 after reopen, got %d", reopened.Size())
	}
}

func TestReadYourWritesAndSnapshotIsolation(t *testing.T) {
	store, err := NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put([]byte("bal"), []byte("100")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Commit(1); err != nil {
		t.Fatalf("commit: %v", err)
	}

	snapshot := store.Snapshot()
	if err := store.Put([]byte("bal"), []byte("200")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Working version sees the staged write before commit
	value, found, err := store.Get([]byte("bal"))
	if err != nil || !found || string(value) != "200" {
		t.Errorf("working read: %s found=%v err=%v", value, found, err)
	}

	// Committed snapshot still serves the old value
	value, found, err = snapshot.Get([]byte("bal"))
	if err != nil || !found || string(value) != "100" {
		t.Errorf("snapshot read: %s found=%v err=%v", value, found, err)
	}

	// Snapshots reject writes
	if err := snapshot.Put([]byte("x"), []byte("y")); err == nil {
		t.Error("Expected snapshot Put to fail")
	}
	if err := snapshot.Delete([]byte("x")); err == nil {
		t.Error("Expected snapshot Delete to fail")
	}
}

func TestResetDropsStagedWrites(t *testing.T) {
	store, err := NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put([]byte("keep"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	root, err := store.Commit(1)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := store.Put([]byte("drop"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete([]byte("keep")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	store.Reset()

	if got := store.WorkingRoot(); got != root {
		t.Errorf("Expected working root back at %x, got %x", root[:8], got[:8])
	}
	if found, _ := store.Has([]byte("drop")); found {
		t.Error("staged write survived Reset")
	}
	if found, _ := store.Has([]byte("keep")); !found {
		t.Error("staged delete survived Reset")
	}
}

func TestCommitHeightMustAdvance(t *testing.T) {
	store, err := NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.Commit(5); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := store.Commit(5); err == nil {
		t.Error("Expected error committing the same height twice")
	}
	if _, err := store.Commit(4); err == nil {
		t.Error("Expected error committing a lower height")
	}
	if _, err := store.Commit(6); err != nil {
		t.Errorf("commit next height: %v", err)
	}
}

// failingBatchProvider makes the next batch write fail, standing in for a
// disk fault at commit time.
type failingBatchProvider struct {
	*db.MemDBProvider
	failNext bool
}

type failingBatch struct {
	db.DatabaseBatch
	provider *failingBatchProvider
}

func (p *failingBatchProvider) Batch() db.DatabaseBatch {
	return &failingBatch{DatabaseBatch: p.MemDBProvider.Batch(), provider: p}
}

func (b *failingBatch) Write() error {
	if b.provider.failNext {
		b.provider.failNext = false
		return fmt.Errorf("simulated write failure")
	}
	return b.DatabaseBatch.Write()
}

func TestFailedCommitKeepsPreviousVersion(t *testing.T) {
	provider := &failingBatchProvider{MemDBProvider: db.NewMemDBProvider()}
	store, err := NewStore(provider)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	root, err := store.Commit(1)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := store.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	provider.failNext = true
	if _, err := store.Commit(2); err == nil {
		t.Fatal("Expected commit to surface the write failure")
	}

	// The committed version is untouched and a retry succeeds
	if got := store.CommittedRoot(); got != root {
		t.Errorf("Expected committed root %x, got %x", root[:8], got[:8])
	}
	if store.Height() != 1 {
		t.Errorf("Expected height 1 after failed commit, got %d", store.Height())
	}
	if _, err := store.Commit(2); err != nil {
		t.Errorf("retry commit: %v", err)
	}
}

func TestRootAtAndSnapshotAt(t *testing.T) {
	store, err := NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put([]byte("x"), []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}
	root1, err := store.Commit(1)
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	if err := store.Put([]byte("x"), []byte("new")); err != nil {
		t.Fatalf("put: %v", err)
	}
	root2, err := store.Commit(2)
	if err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	if root1 == root2 {
		t.Fatal("roots must differ across commits")
	}

	got1, err := store.RootAt(1)
	if err != nil || got1 != root1 {
		t.Errorf("RootAt(1): %x err %v", got1[:8], err)
	}
	if _, err := store.RootAt(99); err == nil {
		t.Error("Expected error for unknown height")
	}

	old, err := store.SnapshotAt(1)
	if err != nil {
		t.Fatalf("snapshot at 1: %v", err)
	}
	value, found, err := old.Get([]byte("x"))
	if err != nil || !found || string(value) != "old" {
		t.Errorf("historical read: %s found=%v err=%v", value, found, err)
	}
}

func TestCorruptedNodeIsFatal(t *testing.T) {
	provider := db.NewMemDBProvider()
	store, err := NewStore(provider)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 8; i++ {
		if err := store.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if _, err := store.Commit(1); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Trash every node record, then reopen with a cold cache
	var nodeKeys [][]byte
	err = provider.IteratePrefix(nodeKeyPrefix, func(key, value []byte) bool {
		nodeKeys = append(nodeKeys, append([]byte(nil), key...))
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(nodeKeys) == 0 {
		t.Fatal("Expected persisted node records")
	}
	for _, key := range nodeKeys {
		if err := provider.Put(key, []byte("garbage")); err != nil {
			t.Fatalf("corrupt: %v", err)
		}
	}

	_, err = NewStore(provider)
	if err == nil {
		t.Fatal("Expected reopen over corrupted nodes to fail")
	}
	if !mlnerrors.IsFatal(err) {
		t.Errorf("Expected a fatal integrity error, got %v", err)
	}
}
