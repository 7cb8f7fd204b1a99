package store

import (
	"fmt"

	"github.com/mlnlabs/mln/cborx"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/types"
)

// MigrationStore tracks which migrations already ran. The records sit inside
// the authenticated state so the applied set is covered by the root digest.
type MigrationStore struct {
	view merkle.StateView
}

func NewMigrationStore(view merkle.StateView) *MigrationStore {
	return &MigrationStore{view: view}
}

// GetApplied returns the applied record for a migration name, or nil when it
// has not run.
func (s *MigrationStore) GetApplied(name string) (*types.MigrationRecord, error) {
	key := MigrationKey(name)
	data, found, err := s.view.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read migration %s: %w", name, err)
	}
	if !found {
		return nil, nil
	}
	var record types.MigrationRecord
	decodeErr := cborx.Unmarshal(data, &record)
	if err := checkRecord("store.migration", key, record.Version, decodeErr); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutApplied marks a migration as run.
func (s *MigrationStore) PutApplied(record *types.MigrationRecord) error {
	data, err := cborx.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode migration %s: %w", record.Name, err)
	}
	return s.view.Put(MigrationKey(record.Name), data)
}

// WalkApplied visits applied migration records in name order.
func (s *MigrationStore) WalkApplied(fn func(record *types.MigrationRecord) bool) error {
	prefix := []byte(PrefixMigration)
	var walkErr error
	err := s.view.WalkPrefix(prefix, func(key, value []byte) bool {
		var record types.MigrationRecord
		decodeErr := cborx.Unmarshal(value, &record)
		if err := checkRecord("store.migration", key, record.Version, decodeErr); err != nil {
			walkErr = err
			return false
		}
		return fn(&record)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}
