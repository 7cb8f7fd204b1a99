package ledger

import (
	"testing"

	"github.com/mlnlabs/mln/config"
	"github.com/mlnlabs/mln/store"
)

func TestApplyGenesisSeedsState(t *testing.T) {
	env := newTestEnv(t)
	alice := testAddr(1)
	bob := testAddr(2)
	carol := testAddr(3)

	env.seedGenesis(&config.Genesis{
		ChainID: "mln-test",
		Symbols: []config.GenesisSymbol{
			{Symbol: "X", Name: "Test Token", Decimals: 2, Owner: alice.Text()},
			{Symbol: "Y", Name: "Idle Token", Decimals: 0, Owner: bob.Text()},
		},
		Balances: []config.GenesisBalance{
			{Address: alice.Text(), Symbol: "X", Amount: "1000"},
			{Address: bob.Text(), Symbol: "X", Amount: "500"},
		},
		KVEntries: []config.GenesisKVEntry{
			{Key: "motd", Value: "hello", Owner: alice.Text(), Writers: []string{bob.Text()}},
		},
		Multisigs: []config.GenesisMultisig{
			{Address: carol.Text(), Owners: []string{alice.Text(), bob.Text()}, Threshold: 2, ExpiryBlocks: 10},
		},
	})

	if got := env.balance(alice, "X"); got != 1000 {
		t.Errorf("Expected alice balance 1000, got %d", got)
	}
	if got := env.balance(bob, "X"); got != 500 {
		t.Errorf("Expected bob balance 500, got %d", got)
	}
	if got := env.supply("X"); got != 1500 {
		t.Errorf("Expected supply 1500, got %d", got)
	}
	if got := env.supply("Y"); got != 0 {
		t.Errorf("Expected zero supply for idle symbol, got %d", got)
	}

	entry, err := store.NewKVStore(env.state).GetEntry([]byte("motd"))
	if err != nil || entry == nil {
		t.Fatalf("kv entry missing: %v", err)
	}
	if entry.Owner != alice || string(entry.Value) != "hello" || !entry.CanWrite(bob) {
		t.Errorf("Unexpected kv entry %+v", entry)
	}

	account, err := store.NewMultisigStore(env.state).GetMultisig(carol)
	if err != nil || account == nil {
		t.Fatalf("multisig missing: %v", err)
	}
	if account.Threshold != 2 || len(account.Owners) != 2 || account.ExpiryBlocks != 10 {
		t.Errorf("Unexpected multisig %+v", account)
	}
}

func TestApplyGenesisRejectsBadInput(t *testing.T) {
	alice := testAddr(1)
	symbol := config.GenesisSymbol{Symbol: "X", Name: "X", Owner: alice.Text()}

	tests := []struct {
		name    string
		genesis *config.Genesis
	}{
		{"empty symbol id", &config.Genesis{Symbols: []config.GenesisSymbol{{Owner: alice.Text()}}}},
		{"bad owner text", &config.Genesis{Symbols: []config.GenesisSymbol{{Symbol: "X", Owner: "not-base58-!"}}}},
		{"duplicate symbol", &config.Genesis{Symbols: []config.GenesisSymbol{symbol, symbol}}},
		{"balance in undeclared symbol", &config.Genesis{
			Balances: []config.GenesisBalance{{Address: alice.Text(), Symbol: "X", Amount: "1"}},
		}},
		{"duplicate balance", &config.Genesis{
			Symbols: []config.GenesisSymbol{symbol},
			Balances: []config.GenesisBalance{
				{Address: alice.Text(), Symbol: "X", Amount: "1"},
				{Address: alice.Text(), Symbol: "X", Amount: "2"},
			},
		}},
		{"unparseable amount", &config.Genesis{
			Symbols:  []config.GenesisSymbol{symbol},
			Balances: []config.GenesisBalance{{Address: alice.Text(), Symbol: "X", Amount: "12x"}},
		}},
		{"empty kv key", &config.Genesis{
			KVEntries: []config.GenesisKVEntry{{Value: "v", Owner: alice.Text()}},
		}},
		{"multisig threshold above owners", &config.Genesis{
			Multisigs: []config.GenesisMultisig{{Address: testAddr(3).Text(), Owners: []string{alice.Text()}, Threshold: 2}},
		}},
	}
	for _, tt := range tests {
		env := newTestEnv(t)
		view := NewView(env.state)
		if err := ApplyGenesis(view, tt.genesis); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}
