package ledger

import (
	"fmt"

	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/transaction"
	"github.com/mlnlabs/mln/types"
)

// Key and value caps for the permissioned KV store.
const (
	maxKVKeyBytes   = 256
	maxKVValueBytes = 256 << 10
)

func (e *Executor) applyKVPut(view *View, caller identity.Address, payload *transaction.KVPut) ([]byte, error) {
	if len(payload.Key) == 0 || len(payload.Key) > maxKVKeyBytes {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand,
			fmt.Sprintf("Key length %d outside 1..%d", len(payload.Key), maxKVKeyBytes))
	}
	if len(payload.Value) > maxKVValueBytes {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand,
			fmt.Sprintf("Value exceeds %d bytes", maxKVValueBytes))
	}
	for _, writer := range payload.Writers {
		if writer.IsAnonymous() {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidAddress, mlnerrors.ErrMsgInvalidAddress)
		}
	}

	kv := store.NewKVStore(view)
	entry, err := kv.GetEntry(payload.Key)
	if err != nil {
		return nil, err
	}

	// First write claims the key.
	if entry == nil {
		return nil, kv.PutEntry(payload.Key, types.NewKVEntry(payload.Value, caller, payload.Writers))
	}

	if !entry.CanWrite(caller) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}
	if caller == entry.Owner {
		// The owner may replace the writer set; leaving it unset keeps the
		// current one.
		writers := entry.Writers
		if payload.Writers != nil {
			writers = payload.Writers
		}
		return nil, kv.PutEntry(payload.Key, types.NewKVEntry(payload.Value, entry.Owner, writers))
	}

	// Granted writers update the value only.
	if payload.Writers != nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied,
			"Only the owner may change the writer set")
	}
	return nil, kv.PutEntry(payload.Key, types.NewKVEntry(payload.Value, entry.Owner, entry.Writers))
}

func (e *Executor) applyKVDelete(view *View, caller identity.Address, payload *transaction.KVDelete) ([]byte, error) {
	kv := store.NewKVStore(view)
	entry, err := kv.GetEntry(payload.Key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeNotFound, mlnerrors.ErrMsgKeyNotFound)
	}
	if !entry.CanWrite(caller) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}

	// Deleting releases ownership; the next writer claims the key fresh.
	return nil, kv.DeleteEntry(payload.Key)
}
