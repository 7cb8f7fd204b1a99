package ledger

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mlnlabs/mln/cborx"
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/transaction"
	"github.com/mlnlabs/mln/types"
)

// multisigAddressTag salts derived multisig account addresses.
const multisigAddressTag = "mln-msig"

// DeriveMultisigAddress returns the account address a create command by
// creator with the given sequence number lands on. Exposed so clients can
// compute the address before submitting.
func DeriveMultisigAddress(creator identity.Address, seq uint64) identity.Address {
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return identity.Derive(multisigAddressTag, creator.Bytes(), seqBuf[:])
}

func (e *Executor) applyMultisigCreate(view *View, caller identity.Address, seq uint64, payload *transaction.MultisigCreate) ([]byte, error) {
	if len(payload.Owners) == 0 {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, "Owner set is empty")
	}
	for _, owner := range payload.Owners {
		if owner.IsAnonymous() {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidAddress, mlnerrors.ErrMsgInvalidAddress)
		}
	}
	account := types.NewMultisigAccount(payload.Owners, payload.Threshold, payload.ExpiryBlocks)
	if account.Threshold == 0 || int(account.Threshold) > len(account.Owners) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand,
			fmt.Sprintf("Threshold %d outside 1..%d", account.Threshold, len(account.Owners)))
	}

	multisigs := store.NewMultisigStore(view)
	addr := DeriveMultisigAddress(caller, seq)
	existing, err := multisigs.GetMultisig(addr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeAlreadyExists, mlnerrors.ErrMsgAlreadyExists)
	}
	if err := multisigs.PutMultisig(addr, account); err != nil {
		return nil, err
	}

	receipt, err := cborx.Marshal(CreateReceipt{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("encode create receipt: %w", err)
	}
	return receipt, nil
}

func (e *Executor) applyMultisigPropose(view *View, height uint64, caller identity.Address, payload *transaction.MultisigPropose) ([]byte, error) {
	multisigs := store.NewMultisigStore(view)
	account, err := multisigs.GetMultisig(payload.Account)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeNotFound, mlnerrors.ErrMsgAccountNotFound)
	}
	if !account.IsOwner(caller) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}

	switch payload.Op.Kind {
	case transaction.KindMultisigPropose, transaction.KindMultisigApprove,
		transaction.KindMultisigRevoke, transaction.KindMultisigExecute:
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand,
			"Multisig lifecycle commands cannot be wrapped in a proposal")
	}

	token, err := multisigs.NextPendingToken()
	if err != nil {
		return nil, err
	}

	// ExpiryBlocks zero means the proposal never expires.
	expireAt := uint64(math.MaxUint64)
	if account.ExpiryBlocks > 0 {
		expireAt = height + account.ExpiryBlocks
		if expireAt < height {
			expireAt = math.MaxUint64
		}
	}

	opData, err := payload.Op.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode proposed operation: %w", err)
	}
	pending := types.NewPendingTransaction(payload.Account, caller, opData, expireAt)
	if err := multisigs.PutPending(token, pending); err != nil {
		return nil, err
	}

	receipt, err := cborx.Marshal(ProposeReceipt{Token: token})
	if err != nil {
		return nil, fmt.Errorf("encode propose receipt: %w", err)
	}
	return receipt, nil
}

// loadPending resolves a pending transaction and its multisig account. A
// pending record pointing at a missing account is corruption, not a user
// error.
func loadPending(multisigs *store.MultisigStore, token uint64) (*types.PendingTransaction, *types.MultisigAccount, error) {
	pending, err := multisigs.GetPending(token)
	if err != nil {
		return nil, nil, err
	}
	if pending == nil {
		return nil, nil, mlnerrors.NewError(mlnerrors.ErrCodeNotFound, mlnerrors.ErrMsgTxNotFound)
	}
	account, err := multisigs.GetMultisig(pending.Account)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, mlnerrors.NewIntegrityError("ledger.multisig", store.PendingKey(token),
			fmt.Errorf("pending transaction references missing account %s", pending.Account))
	}
	return pending, account, nil
}

func (e *Executor) applyMultisigApprove(view *View, height uint64, caller identity.Address, payload *transaction.MultisigApprove) ([]byte, error) {
	multisigs := store.NewMultisigStore(view)
	pending, account, err := loadPending(multisigs, payload.Token)
	if err != nil {
		return nil, err
	}
	if !account.IsOwner(caller) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}
	if pending.Expired(height) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeExpired, mlnerrors.ErrMsgExpired)
	}

	// Approving twice never double counts.
	if pending.AddApproval(caller) {
		if err := multisigs.PutPending(payload.Token, pending); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (e *Executor) applyMultisigRevoke(view *View, caller identity.Address, payload *transaction.MultisigRevoke) ([]byte, error) {
	multisigs := store.NewMultisigStore(view)
	pending, account, err := loadPending(multisigs, payload.Token)
	if err != nil {
		return nil, err
	}
	if !account.IsOwner(caller) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}

	// Revoking stays possible after expiry; draining the approval set is how
	// an expired proposal gets cleaned out of state.
	if pending.RemoveApproval(caller) {
		if len(pending.Approvals) == 0 {
			return nil, multisigs.DeletePending(payload.Token)
		}
		return nil, multisigs.PutPending(payload.Token, pending)
	}
	return nil, nil
}

func (e *Executor) applyMultisigExecute(view *View, height uint64, caller identity.Address, payload *transaction.MultisigExecute) ([]byte, error) {
	multisigs := store.NewMultisigStore(view)
	pending, account, err := loadPending(multisigs, payload.Token)
	if err != nil {
		return nil, err
	}
	if !account.IsOwner(caller) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}
	// Expiry outranks threshold: a late execute fails with Expired even when
	// enough approvals are on record.
	if pending.Expired(height) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeExpired, mlnerrors.ErrMsgExpired)
	}
	if uint32(len(pending.Approvals)) < account.Threshold {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeThresholdNotMet,
			fmt.Sprintf("%d of %d required approvals", len(pending.Approvals), account.Threshold))
	}

	op, err := transaction.DecodeOperation(pending.OpData)
	if err != nil {
		return nil, mlnerrors.NewIntegrityError("ledger.multisig", store.PendingKey(payload.Token), err)
	}

	// Consume the pending record first; a failing inner command unwinds the
	// whole overlay, so the record survives a failed execute and can be
	// retried until it expires.
	if err := multisigs.DeletePending(payload.Token); err != nil {
		return nil, err
	}

	// The inner command runs with the multisig account as caller. The token
	// doubles as the sequence number, unique for all time.
	return e.dispatch(view, height, pending.Account, payload.Token, op)
}
