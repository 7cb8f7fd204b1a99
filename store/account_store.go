package store

import (
	"fmt"

	"github.com/mlnlabs/mln/cborx"
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/types"
)

// AccountStore reads and writes account records and balances on one state
// view. Stores are cheap; build one per view you operate on.
type AccountStore struct {
	view merkle.StateView
}

func NewAccountStore(view merkle.StateView) *AccountStore {
	return &AccountStore{view: view}
}

// GetAccount returns the account record, or nil when the address has never
// been touched.
func (s *AccountStore) GetAccount(addr identity.Address) (*types.AccountRecord, error) {
	key := AccountKey(addr.Bytes())
	data, found, err := s.view.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", addr, err)
	}
	if !found {
		return nil, nil
	}
	var record types.AccountRecord
	decodeErr := cborx.Unmarshal(data, &record)
	if err := checkRecord("store.account", key, record.Version, decodeErr); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutAccount writes the account record.
func (s *AccountStore) PutAccount(addr identity.Address, record *types.AccountRecord) error {
	data, err := cborx.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", addr, err)
	}
	return s.view.Put(AccountKey(addr.Bytes()), data)
}

// GetNonce returns the highest accepted nonce for addr, zero for untouched
// addresses.
func (s *AccountStore) GetNonce(addr identity.Address) (uint64, error) {
	record, err := s.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}
	return record.Nonce, nil
}

// SetNonce records the highest accepted nonce for addr.
func (s *AccountStore) SetNonce(addr identity.Address, nonce uint64) error {
	record, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	if record == nil {
		record = types.NewAccountRecord()
	}
	record.Nonce = nonce
	return s.PutAccount(addr, record)
}

// GetBalance returns the (addr, symbol) balance; missing records read as
// zero.
func (s *AccountStore) GetBalance(addr identity.Address, symbol string) (*types.Amount, error) {
	key := BalanceKey(addr.Bytes(), symbol)
	data, found, err := s.view.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read balance %s/%s: %w", addr, symbol, err)
	}
	if !found {
		return types.NewAmount(0), nil
	}
	var record types.BalanceRecord
	decodeErr := cborx.Unmarshal(data, &record)
	if err := checkRecord("store.balance", key, record.Version, decodeErr); err != nil {
		return nil, err
	}
	if record.Amount == nil {
		return types.NewAmount(0), nil
	}
	return record.Amount, nil
}

// SetBalance writes the (addr, symbol) balance. Zero balances are deleted so
// absence stays provable and state does not fill with dust records.
func (s *AccountStore) SetBalance(addr identity.Address, symbol string, amount *types.Amount) error {
	key := BalanceKey(addr.Bytes(), symbol)
	if amount.IsZero() {
		return s.view.Delete(key)
	}
	data, err := cborx.Marshal(types.NewBalanceRecord(amount))
	if err != nil {
		return fmt.Errorf("encode balance %s/%s: %w", addr, symbol, err)
	}
	return s.view.Put(key, data)
}

// WalkBalances visits every balance record in key order. The callback gets
// the holder, the symbol and the amount; returning false stops the walk.
func (s *AccountStore) WalkBalances(fn func(addr identity.Address, symbol string, amount *types.Amount) bool) error {
	prefix := []byte(PrefixBalance)
	var walkErr error
	err := s.view.WalkPrefix(prefix, func(key, value []byte) bool {
		tail := key[len(prefix):]
		if len(tail) <= identity.AddressSize {
			walkErr = mlnerrors.NewIntegrityError("store.balance", key, fmt.Errorf("balance key too short"))
			return false
		}
		addr, err := identity.FromBytes(tail[:identity.AddressSize])
		if err != nil {
			walkErr = mlnerrors.NewIntegrityError("store.balance", key, err)
			return false
		}
		symbol := string(tail[identity.AddressSize:])

		var record types.BalanceRecord
		decodeErr := cborx.Unmarshal(value, &record)
		if err := checkRecord("store.balance", key, record.Version, decodeErr); err != nil {
			walkErr = err
			return false
		}
		amount := record.Amount
		if amount == nil {
			amount = types.NewAmount(0)
		}
		return fn(addr, symbol, amount)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}
