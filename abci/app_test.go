package abci

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/mlnlabs/mln/config"
	"github.com/mlnlabs/mln/db"
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/events"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/migration"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/transaction"
	"github.com/mlnlabs/mln/types"
)

var blockTime = time.Unix(1700000000, 0).UTC()

func testAddr(b byte) identity.Address {
	var a identity.Address
	a[5] = b
	return a
}

func newApp(t *testing.T, provider db.DatabaseProvider, registry *migration.Registry) *App {
	t.Helper()
	state, err := merkle.NewStore(provider)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	return NewApp(state, registry, nil, nil)
}

func testGenesis() *config.Genesis {
	alice := testAddr(1)
	return &config.Genesis{
		ChainID: "mln-test",
		Symbols: []config.GenesisSymbol{
			{Symbol: "X", Name: "Test Token", Decimals: 2, Owner: alice.Text()},
		},
		Balances: []config.GenesisBalance{
			{Address: alice.Text(), Symbol: "X", Amount: "1000"},
		},
	}
}

func encodeTx(t *testing.T, caller identity.Address, nonce uint64, kind transaction.Kind, payload interface{}) []byte {
	t.Helper()
	op, err := transaction.NewOperation(kind, payload)
	if err != nil {
		t.Fatalf("encode op: %v", err)
	}
	data, err := transaction.NewEnvelope(caller, nonce, op).Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return data
}

func runBlock(t *testing.T, app *App, height uint64, txs ...[]byte) merkle.Hash {
	t.Helper()
	if err := app.BeginBlock(height, blockTime); err != nil {
		t.Fatalf("begin block %d: %v", height, err)
	}
	for i, tx := range txs {
		if _, err := app.DeliverTx(tx); err != nil {
			t.Fatalf("deliver tx %d in block %d: %v", i, height, err)
		}
	}
	if err := app.EndBlock(); err != nil {
		t.Fatalf("end block %d: %v", height, err)
	}
	root, err := app.Commit()
	if err != nil {
		t.Fatalf("commit block %d: %v", height, err)
	}
	return root
}

func TestEmptyBlockKeepsGenesisRoot(t *testing.T) {
	app := newApp(t, db.NewMemDBProvider(), nil)
	genesisRoot, err := app.InitChain(testGenesis())
	if err != nil {
		t.Fatalf("init chain: %v", err)
	}

	root := runBlock(t, app, 1)
	if root != genesisRoot {
		t.Errorf("Expected empty block to commit the genesis root %x, got %x", genesisRoot, root)
	}

	height, committed := app.Info()
	if height != 1 || committed != root {
		t.Errorf("Expected info (1, %x), got (%d, %x)", root, height, committed)
	}
}

func TestBlocksApplyCommandsInOrder(t *testing.T) {
	app := newApp(t, db.NewMemDBProvider(), nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	alice := testAddr(1)
	bob := testAddr(2)

	runBlock(t, app, 1,
		encodeTx(t, alice, 1, transaction.KindTransfer,
			&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(300)}),
		encodeTx(t, bob, 1, transaction.KindTransfer,
			&transaction.Transfer{To: alice, Symbol: "X", Amount: types.NewAmount(100)}),
	)

	balance, err := store.NewAccountStore(app.state.Snapshot()).GetBalance(bob, "X")
	if err != nil || balance.Uint64() != 200 {
		t.Errorf("Expected committed balance 200, got %s err %v", balance, err)
	}
}

func TestDeliverFailuresDoNotAbortBlock(t *testing.T) {
	app := newApp(t, db.NewMemDBProvider(), nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	alice := testAddr(1)
	bob := testAddr(2)

	if err := app.BeginBlock(1, blockTime); err != nil {
		t.Fatal(err)
	}

	result, err := app.DeliverTx([]byte{0xde, 0xad, 0xbe, 0xef})
	if err != nil {
		t.Fatalf("Expected garbage bytes to be command-local, got %v", err)
	}
	if result.Code != mlnerrors.ErrCodeInvalidCommand {
		t.Errorf("Expected invalid_command for garbage bytes, got %s", result.Code)
	}

	result, err = app.DeliverTx(encodeTx(t, alice, 1, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(5000)}))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if result.Code != mlnerrors.ErrCodeInsufficientFunds {
		t.Errorf("Expected insufficient_funds, got %s", result.Code)
	}

	result, err = app.DeliverTx(encodeTx(t, alice, 2, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(100)}))
	if err != nil || !result.OK() {
		t.Fatalf("Expected the block to continue, got %s err %v", result.Code, err)
	}

	if err := app.EndBlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Commit(); err != nil {
		t.Fatal(err)
	}

	balance, err := store.NewAccountStore(app.state.Snapshot()).GetBalance(bob, "X")
	if err != nil || balance.Uint64() != 100 {
		t.Errorf("Expected balance 100 after mixed block, got %s err %v", balance, err)
	}
}

func TestLifecycleSequencing(t *testing.T) {
	app := newApp(t, db.NewMemDBProvider(), nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	tx := encodeTx(t, testAddr(1), 1, transaction.KindTransfer,
		&transaction.Transfer{To: testAddr(2), Symbol: "X", Amount: types.NewAmount(1)})

	// Each callback outside its slot is fatal.
	if _, err := app.DeliverTx(tx); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal deliver before begin_block, got %v", err)
	}
	if err := app.EndBlock(); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal end_block while idle, got %v", err)
	}
	if _, err := app.Commit(); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal commit while idle, got %v", err)
	}

	// Heights must be dense.
	if err := app.BeginBlock(2, blockTime); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal begin_block at skipped height, got %v", err)
	}

	if err := app.BeginBlock(1, blockTime); err != nil {
		t.Fatalf("begin block: %v", err)
	}
	if err := app.BeginBlock(1, blockTime); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal begin_block inside an open block, got %v", err)
	}
	if _, err := app.Commit(); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal commit before end_block, got %v", err)
	}
	if _, err := app.InitChain(testGenesis()); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal init_chain inside an open block, got %v", err)
	}

	if err := app.EndBlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := app.DeliverTx(tx); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal deliver while block is closing, got %v", err)
	}
	if _, err := app.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestInitChainRefusedAfterFirstCommit(t *testing.T) {
	provider := db.NewMemDBProvider()
	app := newApp(t, provider, nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	if _, err := app.InitChain(testGenesis()); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal second init_chain, got %v", err)
	}
	runBlock(t, app, 1)

	reopened := newApp(t, provider, nil)
	if _, err := reopened.InitChain(testGenesis()); !mlnerrors.IsFatal(err) {
		t.Errorf("Expected fatal init_chain on a committed chain, got %v", err)
	}
}

func TestIndependentReplicasConverge(t *testing.T) {
	alice := testAddr(1)
	bob := testAddr(2)
	blocks := [][][]byte{
		{
			encodeTx(t, alice, 1, transaction.KindTransfer,
				&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(300)}),
			encodeTx(t, alice, 2, transaction.KindTransfer,
				&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(9999)}),
		},
		{},
		{
			encodeTx(t, bob, 1, transaction.KindKVPut,
				&transaction.KVPut{Key: []byte("k1"), Value: []byte("v1")}),
			encodeTx(t, alice, 3, transaction.KindMint,
				&transaction.Mint{To: bob, Symbol: "X", Amount: types.NewAmount(7)}),
		},
	}

	replay := func() []merkle.Hash {
		app := newApp(t, db.NewMemDBProvider(), nil)
		if _, err := app.InitChain(testGenesis()); err != nil {
			t.Fatalf("init chain: %v", err)
		}
		var roots []merkle.Hash
		for i, txs := range blocks {
			roots = append(roots, runBlock(t, app, uint64(i+1), txs...))
		}
		return roots
	}

	first := replay()
	second := replay()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Height %d: roots diverged, %x vs %x", i+1, first[i], second[i])
		}
	}
}

func TestReopenResumesFromCommittedRoot(t *testing.T) {
	provider := db.NewMemDBProvider()
	app := newApp(t, provider, nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	alice := testAddr(1)
	bob := testAddr(2)

	runBlock(t, app, 1, encodeTx(t, alice, 1, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(300)}))
	root2 := runBlock(t, app, 2, encodeTx(t, alice, 2, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(100)}))

	// A block delivered but never committed must vanish on restart.
	if err := app.BeginBlock(3, blockTime); err != nil {
		t.Fatal(err)
	}
	if _, err := app.DeliverTx(encodeTx(t, alice, 3, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(50)})); err != nil {
		t.Fatal(err)
	}

	reopened := newApp(t, provider, nil)
	height, root := reopened.Info()
	if height != 2 || root != root2 {
		t.Fatalf("Expected resume at (2, %x), got (%d, %x)", root2, height, root)
	}
	balance, err := store.NewAccountStore(reopened.state.Snapshot()).GetBalance(bob, "X")
	if err != nil || balance.Uint64() != 400 {
		t.Errorf("Expected recovered balance 400, got %s err %v", balance, err)
	}

	// Consensus redelivers block 3 from scratch.
	root3 := runBlock(t, reopened, 3, encodeTx(t, alice, 3, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(50)}))
	if root3 == root2 {
		t.Error("Expected block 3 to move the root")
	}
}

func TestMigrationRunsAtScheduledHeight(t *testing.T) {
	registry, err := migration.NewRegistry([]migration.Schedule{
		{Name: migration.TokenCommands, Height: 2},
		{Name: migration.SupplyBackfill, Height: 3},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	app := newApp(t, db.NewMemDBProvider(), registry)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	alice := testAddr(1)

	// Token commands are rejected below their activation height.
	if err := app.BeginBlock(1, blockTime); err != nil {
		t.Fatal(err)
	}
	result, err := app.DeliverTx(encodeTx(t, alice, 1, transaction.KindMint,
		&transaction.Mint{To: alice, Symbol: "X", Amount: types.NewAmount(5)}))
	if err != nil {
		t.Fatal(err)
	}
	if result.Code != mlnerrors.ErrCodeFeatureDisabled {
		t.Errorf("Expected feature_disabled below activation, got %s", result.Code)
	}
	if err := app.EndBlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Commit(); err != nil {
		t.Fatal(err)
	}

	runBlock(t, app, 2, encodeTx(t, alice, 2, transaction.KindMint,
		&transaction.Mint{To: alice, Symbol: "X", Amount: types.NewAmount(5)}))

	// Corrupt the supply record between blocks; the backfill scheduled at
	// height 3 must repair it from the balances.
	symbols := store.NewSymbolStore(app.state)
	info, err := symbols.GetSymbol("X")
	if err != nil {
		t.Fatal(err)
	}
	info.TotalSupply = types.NewAmount(1)
	if err := symbols.PutSymbol("X", info); err != nil {
		t.Fatal(err)
	}

	runBlock(t, app, 3)
	info, err = store.NewSymbolStore(app.state.Snapshot()).GetSymbol("X")
	if err != nil {
		t.Fatal(err)
	}
	if info.TotalSupply.Uint64() != 1005 {
		t.Errorf("Expected backfilled supply 1005, got %s", info.TotalSupply)
	}

	applied, err := store.NewMigrationStore(app.state.Snapshot()).GetApplied(migration.SupplyBackfill)
	if err != nil || applied == nil {
		t.Fatalf("Expected applied record, got %v err %v", applied, err)
	}
	if applied.Height != 3 {
		t.Errorf("Expected applied at scheduled height 3, got %d", applied.Height)
	}
}

func TestCommitPublishesBlockEvent(t *testing.T) {
	bus := events.NewEventBus()
	router := events.NewRouter(bus)
	state, err := merkle.NewStore(db.NewMemDBProvider())
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	app := NewApp(state, nil, nil, router)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}

	_, ch := router.Subscribe()
	root := runBlock(t, app, 1)

	select {
	case event := <-ch:
		committed, ok := event.(*events.BlockCommitted)
		if !ok {
			t.Fatalf("Expected BlockCommitted, got %T", event)
		}
		if committed.Height() != 1 || committed.Commands() != 0 {
			t.Errorf("Unexpected event height %d commands %d", committed.Height(), committed.Commands())
		}
		if committed.Root() != hex.EncodeToString(root[:]) {
			t.Errorf("Expected event root %x, got %s", root, committed.Root())
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for block event")
	}
}

func TestQueryServesCommittedState(t *testing.T) {
	app := newApp(t, db.NewMemDBProvider(), nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	alice := testAddr(1)
	bob := testAddr(2)
	runBlock(t, app, 1, encodeTx(t, alice, 1, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(300)}))

	key := store.BalanceKey(bob.Bytes(), "X")
	resp, err := app.Query(QueryRequest{Path: QueryPathStore, Data: key})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !resp.Found || resp.Height != 1 {
		t.Fatalf("Expected found at height 1, got %+v", resp)
	}

	// An open, undelivered block must stay invisible to queries.
	if err := app.BeginBlock(2, blockTime); err != nil {
		t.Fatal(err)
	}
	if _, err := app.DeliverTx(encodeTx(t, alice, 2, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(100)})); err != nil {
		t.Fatal(err)
	}
	during, err := app.Query(QueryRequest{Path: QueryPathStore, Data: key})
	if err != nil {
		t.Fatalf("query during block: %v", err)
	}
	if string(during.Value) != string(resp.Value) {
		t.Error("Expected query to serve the committed value while a block is open")
	}
	if err := app.EndBlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Commit(); err != nil {
		t.Fatal(err)
	}

	// After the commit the old version stays queryable by height.
	historical, err := app.Query(QueryRequest{Path: QueryPathStore, Data: key, Height: 1})
	if err != nil {
		t.Fatalf("historical query: %v", err)
	}
	if string(historical.Value) != string(resp.Value) {
		t.Error("Expected height-1 query to serve the height-1 value")
	}

	missing, err := app.Query(QueryRequest{Path: QueryPathStore, Data: key, Height: 99})
	if err != nil {
		t.Fatalf("future-height query: %v", err)
	}
	if missing.Code != mlnerrors.ErrCodeNotFound {
		t.Errorf("Expected not_found for unknown height, got %s", missing.Code)
	}

	unknown, err := app.Query(QueryRequest{Path: "/nope", Data: key})
	if err != nil {
		t.Fatalf("unknown path query: %v", err)
	}
	if unknown.Code != mlnerrors.ErrCodeInvalidCommand {
		t.Errorf("Expected invalid_command for unknown path, got %s", unknown.Code)
	}
}

func TestQueryProofsVerifyOffline(t *testing.T) {
	app := newApp(t, db.NewMemDBProvider(), nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	runBlock(t, app, 1)
	alice := testAddr(1)

	key := store.BalanceKey(alice.Bytes(), "X")
	resp, err := app.Query(QueryRequest{Path: QueryPathStore, Data: key, Prove: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !resp.Found {
		t.Fatal("Expected genesis balance present")
	}
	var proof merkle.Proof
	if err := proof.UnmarshalBinary(resp.Proof); err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	if err := merkle.VerifyInclusion(resp.Root, key, resp.Value, &proof); err != nil {
		t.Errorf("Inclusion proof failed: %v", err)
	}

	absent := store.BalanceKey(testAddr(9).Bytes(), "X")
	resp, err = app.Query(QueryRequest{Path: QueryPathStore, Data: absent, Prove: true})
	if err != nil {
		t.Fatalf("query absent: %v", err)
	}
	if resp.Found {
		t.Fatal("Expected key absent")
	}
	if err := proof.UnmarshalBinary(resp.Proof); err != nil {
		t.Fatalf("decode exclusion proof: %v", err)
	}
	if err := merkle.VerifyExclusion(resp.Root, absent, &proof); err != nil {
		t.Errorf("Exclusion proof failed: %v", err)
	}
}

func TestQueryNonce(t *testing.T) {
	app := newApp(t, db.NewMemDBProvider(), nil)
	if _, err := app.InitChain(testGenesis()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	alice := testAddr(1)
	bob := testAddr(2)
	runBlock(t, app, 1, encodeTx(t, alice, 1, transaction.KindTransfer,
		&transaction.Transfer{To: bob, Symbol: "X", Amount: types.NewAmount(1)}))

	resp, err := app.Query(QueryRequest{Path: QueryPathNonce, Data: alice.Bytes()})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(resp.Value) != 8 || resp.Value[7] != 1 {
		t.Errorf("Expected nonce 1, got %x", resp.Value)
	}

	resp, err = app.Query(QueryRequest{Path: QueryPathNonce, Data: []byte("short")})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Code != mlnerrors.ErrCodeInvalidAddress {
		t.Errorf("Expected invalid_address, got %s", resp.Code)
	}
}
