package migration

import (
	"testing"

	"github.com/mlnlabs/mln/db"
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/types"
)

func testAddr(b byte) identity.Address {
	var a identity.Address
	a[3] = b
	return a
}

func TestRegistryRejectsUnknownName(t *testing.T) {
	_, err := NewRegistry([]Schedule{{Name: "balance-rewrite", Height: 5}})
	if err == nil {
		t.Fatal("Expected error for unknown migration name")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	_, err := NewRegistry([]Schedule{
		{Name: TokenCommands, Height: 5},
		{Name: TokenCommands, Height: 9},
	})
	if err == nil {
		t.Fatal("Expected error for duplicate schedule")
	}
}

func TestIsActiveMonotonic(t *testing.T) {
	registry, err := NewRegistry([]Schedule{{Name: TokenCommands, Height: 10}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	if registry.IsActive(TokenCommands, 9) {
		t.Error("active before scheduled height")
	}
	for _, height := range []uint64{10, 11, 1000} {
		if !registry.IsActive(TokenCommands, height) {
			t.Errorf("inactive at height %d after activation", height)
		}
	}
	if registry.IsActive(SupplyBackfill, 1000) {
		t.Error("unscheduled migration reported active")
	}
}

func seedSupplyDrift(t *testing.T) *merkle.Store {
	t.Helper()
	state, err := merkle.NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open state: %v", err)
	}

	symbols := store.NewSymbolStore(state)
	accounts := store.NewAccountStore(state)

	// Recorded supply of 1 disagrees with the actual balance sum of 30.
	record := types.NewSymbolInfo("Testcoin", 9, testAddr(9))
	record.TotalSupply = types.NewAmount(1)
	if err := symbols.PutSymbol("TST", record); err != nil {
		t.Fatalf("seed symbol: %v", err)
	}
	if err := accounts.SetBalance(testAddr(1), "TST", types.NewAmount(10)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	if err := accounts.SetBalance(testAddr(2), "TST", types.NewAmount(20)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	return state
}

func TestSupplyBackfillRepairsDrift(t *testing.T) {
	state := seedSupplyDrift(t)
	registry, err := NewRegistry([]Schedule{{Name: SupplyBackfill, Height: 4}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	if err := NewRunner(registry).BeginBlock(state, 4); err != nil {
		t.Fatalf("begin block: %v", err)
	}

	record, err := store.NewSymbolStore(state).GetSymbol("TST")
	if err != nil {
		t.Fatalf("read symbol: %v", err)
	}
	if record.TotalSupply.Uint64() != 30 {
		t.Errorf("Expected supply 30 after backfill, got %s", record.TotalSupply)
	}

	applied, err := store.NewMigrationStore(state).GetApplied(SupplyBackfill)
	if err != nil || applied == nil || applied.Height != 4 {
		t.Errorf("applied record wrong: %+v err %v", applied, err)
	}
}

func TestSupplyBackfillIdempotent(t *testing.T) {
	state := seedSupplyDrift(t)
	registry, err := NewRegistry([]Schedule{{Name: SupplyBackfill, Height: 4}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	runner := NewRunner(registry)

	if err := runner.BeginBlock(state, 4); err != nil {
		t.Fatalf("first run: %v", err)
	}
	once := state.WorkingRoot()

	// The patch stays due at every later height but must not run again.
	for _, height := range []uint64{5, 6, 100} {
		if err := runner.BeginBlock(state, height); err != nil {
			t.Fatalf("replay at %d: %v", height, err)
		}
		if got := state.WorkingRoot(); got != once {
			t.Errorf("replay at %d changed the root", height)
		}
	}
}

func TestAppliedHeightMismatchIsFatal(t *testing.T) {
	state := seedSupplyDrift(t)

	// A record from a different schedule means divergent history.
	if err := store.NewMigrationStore(state).PutApplied(types.NewMigrationRecord(SupplyBackfill, 2)); err != nil {
		t.Fatalf("seed applied record: %v", err)
	}

	registry, err := NewRegistry([]Schedule{{Name: SupplyBackfill, Height: 4}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	err = NewRunner(registry).BeginBlock(state, 4)
	if err == nil {
		t.Fatal("Expected error for mismatched applied height")
	}
	if !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal error, got %v", err)
	}
}

func TestBackfillRejectsOrphanBalances(t *testing.T) {
	state, err := merkle.NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	if err := store.NewAccountStore(state).SetBalance(testAddr(1), "GHO", types.NewAmount(5)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	registry, err := NewRegistry([]Schedule{{Name: SupplyBackfill, Height: 1}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	err = NewRunner(registry).BeginBlock(state, 1)
	if err == nil {
		t.Fatal("Expected error for balances without a symbol record")
	}
	if !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal error, got %v", err)
	}
}
