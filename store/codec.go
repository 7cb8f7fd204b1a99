// Package store maps typed ledger records onto the authenticated state view.
// Every record decodes through checkRecord: a record that exists but cannot
// be decoded is corruption, which is fatal rather than a command failure.
package store

import (
	"fmt"

	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/types"
)

// checkRecord classifies a decode result for an existing record. decodeErr
// non-nil or a version outside [1, RecordVersion] means the state is
// unreadable by this binary and the node must stop.
func checkRecord(op string, key []byte, version uint8, decodeErr error) error {
	if decodeErr != nil {
		return mlnerrors.NewIntegrityError(op, key, decodeErr)
	}
	if version == 0 || version > types.RecordVersion {
		return mlnerrors.NewIntegrityError(op, key, fmt.Errorf("record version %d not supported", version))
	}
	return nil
}
