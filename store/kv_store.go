package store

import (
	"fmt"

	"github.com/mlnlabs/mln/cborx"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/types"
)

// KVStore reads and writes the permissioned application key/value entries.
type KVStore struct {
	view merkle.StateView
}

func NewKVStore(view merkle.StateView) *KVStore {
	return &KVStore{view: view}
}

// GetEntry returns the entry stored under key, or nil when the key is free.
func (s *KVStore) GetEntry(key []byte) (*types.KVEntry, error) {
	stateKey := KVKey(key)
	data, found, err := s.view.Get(stateKey)
	if err != nil {
		return nil, fmt.Errorf("read kv entry: %w", err)
	}
	if !found {
		return nil, nil
	}
	var record types.KVEntry
	decodeErr := cborx.Unmarshal(data, &record)
	if err := checkRecord("store.kv", stateKey, record.Version, decodeErr); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutEntry writes the entry under key.
func (s *KVStore) PutEntry(key []byte, record *types.KVEntry) error {
	data, err := cborx.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode kv entry: %w", err)
	}
	return s.view.Put(KVKey(key), data)
}

// DeleteEntry removes the entry under key, releasing its ownership.
func (s *KVStore) DeleteEntry(key []byte) error {
	return s.view.Delete(KVKey(key))
}

// WalkEntries visits entries whose application key starts with prefix, in
// key order.
func (s *KVStore) WalkEntries(prefix []byte, fn func(key []byte, record *types.KVEntry) bool) error {
	statePrefix := KVKey(prefix)
	var walkErr error
	err := s.view.WalkPrefix(statePrefix, func(key, value []byte) bool {
		appKey := key[len(PrefixKV):]
		var record types.KVEntry
		decodeErr := cborx.Unmarshal(value, &record)
		if err := checkRecord("store.kv", key, record.Version, decodeErr); err != nil {
			walkErr = err
			return false
		}
		return fn(appKey, &record)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}
