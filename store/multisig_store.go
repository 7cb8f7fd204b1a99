package store

import (
	"encoding/binary"
	"fmt"

	"github.com/mlnlabs/mln/cborx"
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/types"
)

// MultisigStore reads and writes multisig accounts and their pending
// transactions, plus the sequence counter that mints pending tokens.
type MultisigStore struct {
	view merkle.StateView
}

func NewMultisigStore(view merkle.StateView) *MultisigStore {
	return &MultisigStore{view: view}
}

// GetMultisig returns the multisig account record, or nil when addr is not a
// multisig account.
func (s *MultisigStore) GetMultisig(addr identity.Address) (*types.MultisigAccount, error) {
	key := MultisigKey(addr.Bytes())
	data, found, err := s.view.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read multisig %s: %w", addr, err)
	}
	if !found {
		return nil, nil
	}
	var record types.MultisigAccount
	decodeErr := cborx.Unmarshal(data, &record)
	if err := checkRecord("store.multisig", key, record.Version, decodeErr); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutMultisig writes the multisig account record.
func (s *MultisigStore) PutMultisig(addr identity.Address, record *types.MultisigAccount) error {
	data, err := cborx.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode multisig %s: %w", addr, err)
	}
	return s.view.Put(MultisigKey(addr.Bytes()), data)
}

// GetPending returns the pending transaction for token, or nil when the
// token is unknown (never issued, executed, or expired and removed).
func (s *MultisigStore) GetPending(token uint64) (*types.PendingTransaction, error) {
	key := PendingKey(token)
	data, found, err := s.view.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read pending %d: %w", token, err)
	}
	if !found {
		return nil, nil
	}
	var record types.PendingTransaction
	decodeErr := cborx.Unmarshal(data, &record)
	if err := checkRecord("store.pending", key, record.Version, decodeErr); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutPending writes the pending transaction for token.
func (s *MultisigStore) PutPending(token uint64, record *types.PendingTransaction) error {
	data, err := cborx.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode pending %d: %w", token, err)
	}
	return s.view.Put(PendingKey(token), data)
}

// DeletePending removes the pending transaction for token.
func (s *MultisigStore) DeletePending(token uint64) error {
	return s.view.Delete(PendingKey(token))
}

// NextPendingToken issues the next pending transaction token. The counter
// lives in authenticated state, so every replica hands out the same tokens.
func (s *MultisigStore) NextPendingToken() (uint64, error) {
	key := []byte(MetaKeyPendingSeq)
	record := types.NewSequenceRecord()
	data, found, err := s.view.Get(key)
	if err != nil {
		return 0, fmt.Errorf("read pending sequence: %w", err)
	}
	if found {
		decodeErr := cborx.Unmarshal(data, record)
		if err := checkRecord("store.pendingseq", key, record.Version, decodeErr); err != nil {
			return 0, err
		}
	}
	token := record.Next
	record.Next++
	encoded, err := cborx.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("encode pending sequence: %w", err)
	}
	if err := s.view.Put(key, encoded); err != nil {
		return 0, err
	}
	return token, nil
}

// WalkPending visits pending transactions in token order.
func (s *MultisigStore) WalkPending(fn func(token uint64, record *types.PendingTransaction) bool) error {
	prefix := []byte(PrefixPending)
	var walkErr error
	err := s.view.WalkPrefix(prefix, func(key, value []byte) bool {
		tail := key[len(prefix):]
		if len(tail) != 8 {
			walkErr = mlnerrors.NewIntegrityError("store.pending", key, fmt.Errorf("pending key is %d bytes", len(tail)))
			return false
		}
		token := binary.BigEndian.Uint64(tail)
		var record types.PendingTransaction
		decodeErr := cborx.Unmarshal(value, &record)
		if err := checkRecord("store.pending", key, record.Version, decodeErr); err != nil {
			walkErr = err
			return false
		}
		return fn(token, &record)
	})
	if walkErr != nil {
		return walkErr
	}
	return err
}
