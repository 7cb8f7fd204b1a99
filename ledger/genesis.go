package ledger

import (
	"fmt"

	"github.com/mlnlabs/mln/config"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/types"
)

// ApplyGenesis writes the height-zero state onto an empty view: symbols
// first, then balances (tracking each symbol's supply), then seeded KV
// entries and multisig accounts. Any malformed entry aborts startup; a chain
// must never run on a half-loaded genesis.
func ApplyGenesis(view *View, genesis *config.Genesis) error {
	symbols := store.NewSymbolStore(view)
	for _, s := range genesis.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("genesis symbol with empty id")
		}
		owner, err := identity.FromText(s.Owner)
		if err != nil {
			return fmt.Errorf("genesis symbol %s owner: %w", s.Symbol, err)
		}
		existing, err := symbols.GetSymbol(s.Symbol)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("genesis symbol %s declared twice", s.Symbol)
		}
		if err := symbols.PutSymbol(s.Symbol, types.NewSymbolInfo(s.Name, s.Decimals, owner)); err != nil {
			return err
		}
	}

	accounts := store.NewAccountStore(view)
	supplies := make(map[string]*types.Amount)
	for _, b := range genesis.Balances {
		addr, err := identity.FromText(b.Address)
		if err != nil {
			return fmt.Errorf("genesis balance address %q: %w", b.Address, err)
		}
		amount, err := types.AmountFromDecimal(b.Amount)
		if err != nil {
			return fmt.Errorf("genesis balance for %s: %w", b.Address, err)
		}
		info, err := symbols.GetSymbol(b.Symbol)
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("genesis balance in undeclared symbol %q", b.Symbol)
		}
		existing, err := accounts.GetBalance(addr, b.Symbol)
		if err != nil {
			return err
		}
		if !existing.IsZero() {
			return fmt.Errorf("genesis balance for %s/%s declared twice", b.Address, b.Symbol)
		}
		if err := accounts.SetBalance(addr, b.Symbol, amount); err != nil {
			return err
		}

		supply, ok := supplies[b.Symbol]
		if !ok {
			supply = types.NewAmount(0)
			supplies[b.Symbol] = supply
		}
		if _, overflow := supply.AddOverflow(&supply.Int, &amount.Int); overflow {
			return fmt.Errorf("genesis supply of %s exceeds 256 bits", b.Symbol)
		}
	}
	// Record the supply each symbol started with.
	for _, s := range genesis.Symbols {
		supply, ok := supplies[s.Symbol]
		if !ok {
			continue
		}
		info, err := symbols.GetSymbol(s.Symbol)
		if err != nil {
			return err
		}
		info.TotalSupply = supply
		if err := symbols.PutSymbol(s.Symbol, info); err != nil {
			return err
		}
	}

	kv := store.NewKVStore(view)
	for _, entry := range genesis.KVEntries {
		if entry.Key == "" {
			return fmt.Errorf("genesis kv entry with empty key")
		}
		owner, err := identity.FromText(entry.Owner)
		if err != nil {
			return fmt.Errorf("genesis kv entry %q owner: %w", entry.Key, err)
		}
		writers := make([]identity.Address, 0, len(entry.Writers))
		for _, text := range entry.Writers {
			writer, err := identity.FromText(text)
			if err != nil {
				return fmt.Errorf("genesis kv entry %q writer: %w", entry.Key, err)
			}
			writers = append(writers, writer)
		}
		existing, err := kv.GetEntry([]byte(entry.Key))
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("genesis kv entry %q declared twice", entry.Key)
		}
		if err := kv.PutEntry([]byte(entry.Key), types.NewKVEntry([]byte(entry.Value), owner, writers)); err != nil {
			return err
		}
	}

	multisigs := store.NewMultisigStore(view)
	for _, m := range genesis.Multisigs {
		addr, err := identity.FromText(m.Address)
		if err != nil {
			return fmt.Errorf("genesis multisig address %q: %w", m.Address, err)
		}
		owners := make([]identity.Address, 0, len(m.Owners))
		for _, text := range m.Owners {
			owner, err := identity.FromText(text)
			if err != nil {
				return fmt.Errorf("genesis multisig %s owner: %w", m.Address, err)
			}
			owners = append(owners, owner)
		}
		account := types.NewMultisigAccount(owners, m.Threshold, m.ExpiryBlocks)
		if account.Threshold == 0 || int(account.Threshold) > len(account.Owners) {
			return fmt.Errorf("genesis multisig %s threshold %d outside 1..%d",
				m.Address, account.Threshold, len(account.Owners))
		}
		existing, err := multisigs.GetMultisig(addr)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("genesis multisig %s declared twice", m.Address)
		}
		if err := multisigs.PutMultisig(addr, account); err != nil {
			return err
		}
	}

	return nil
}
