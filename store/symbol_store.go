package store

import (
	"fmt"

	"github.com/mlnlabs/mln/cborx"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/types"
)

// SymbolStore reads and writes the token symbol registry.
type SymbolStore struct {
	view merkle.StateView
}

func NewSymbolStore(view merkle.StateView) *SymbolStore {
	return &SymbolStore{view: view}
}

// GetSymbol returns the symbol record, or nil when the symbol is not
// registered.
func (s *SymbolStore) GetSymbol(symbol string) (*types.SymbolInfo, error) {
	key := SymbolKey(symbol)
	data, found, err := s.view.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read symbol %s: %w", symbol, err)
	}
	if !found {
		return nil, nil
	}
	var record types.SymbolInfo
	decodeErr := cborx.Unmarshal(data, &record)
	if err := checkRecord("store.symbol", key, record.Version, decodeErr); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutSymbol writes the symbol record.
func (s *SymbolStore) PutSymbol(symbol string, record *types.SymbolInfo) error {
	data, err := cborx.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode symbol %s: %w", symbol, err)
	}
	return s.view.Put(SymbolKey(symbol), data)
}

// WalkSymbols visits every registered symbol in key order.
func (s *SymbolStore) WalkSymbols(fn func(symbol string, record *types.SymbolInfo) bool) error {
	prefix := []byte(PrefixSymbol)
	var walkErr error
	err := s.view.WalkPrefix(prefix, func(key, value []byte) bool {
		symbol := string(key[len(prefix):])
		var record types.SymbolInfo
		decodeErr := cborx.Unmarshal(value, &record)
		if err := checkRecord("store.symbol", key, record.Version, decodeErr); err != nil {
			walkErr = err
			return false
		}
		return fn(symbol, &record)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}

// SymbolOwner is a convenience read for permission checks; it returns the
// owner and whether the symbol exists.
func (s *SymbolStore) SymbolOwner(symbol string) (identity.Address, bool, error) {
	record, err := s.GetSymbol(symbol)
	if err != nil {
		return identity.Address{}, false, err
	}
	if record == nil {
		return identity.Address{}, false, nil
	}
	return record.Owner, true, nil
}
