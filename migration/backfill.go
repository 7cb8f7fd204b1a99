package migration

import (
	"fmt"

	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/types"
)

// backfillSupply rewrites every symbol's TotalSupply to the sum of its
// balances. It reconciles supply records written before supply tracking was
// reliable; on consistent state it changes nothing, so replaying it is safe.
func backfillSupply(view merkle.StateView, height uint64) error {
	accounts := store.NewAccountStore(view)
	symbols := store.NewSymbolStore(view)

	totals := make(map[string]*types.Amount)
	var sumErr error
	err := accounts.WalkBalances(func(addr identity.Address, symbol string, amount *types.Amount) bool {
		total, ok := totals[symbol]
		if !ok {
			total = types.NewAmount(0)
			totals[symbol] = total
		}
		if _, overflow := total.AddOverflow(&total.Int, &amount.Int); overflow {
			sumErr = fmt.Errorf("summed balances of %q exceed 256 bits", symbol)
			return false
		}
		return true
	})
	if sumErr != nil {
		return sumErr
	}
	if err != nil {
		return err
	}

	// The walk below iterates the pre-patch version, so writing while
	// walking is fine.
	seen := make(map[string]bool, len(totals))
	var putErr error
	err = symbols.WalkSymbols(func(symbol string, record *types.SymbolInfo) bool {
		seen[symbol] = true
		total, ok := totals[symbol]
		if !ok {
			total = types.NewAmount(0)
		}
		if record.TotalSupply != nil && record.TotalSupply.Eq(&total.Int) {
			return true
		}
		record.TotalSupply = total
		if putErr = symbols.PutSymbol(symbol, record); putErr != nil {
			return false
		}
		return true
	})
	if putErr != nil {
		return putErr
	}
	if err != nil {
		return err
	}

	for symbol := range totals {
		if !seen[symbol] {
			return fmt.Errorf("balances recorded for unregistered symbol %q", symbol)
		}
	}
	return nil
}
