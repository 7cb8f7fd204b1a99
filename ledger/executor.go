package ledger

import (
	stderrors "errors"
	"fmt"

	"github.com/mlnlabs/mln/config"
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/events"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/logx"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/migration"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/stringutil"
	"github.com/mlnlabs/mln/transaction"
)

// Executor applies commands to a state view. It owns no state itself; the
// same Executor drives block execution and, in tests, bare views.
type Executor struct {
	registry *migration.Registry
	caps     *config.Capabilities
	router   *events.Router
}

// NewExecutor builds the executor. A nil capability set enables everything;
// a nil router drops events.
func NewExecutor(registry *migration.Registry, caps *config.Capabilities, router *events.Router) *Executor {
	if caps == nil {
		caps = config.DefaultCapabilities()
	}
	return &Executor{
		registry: registry,
		caps:     caps,
		router:   router,
	}
}

// Apply runs one command against view at the given height. Command-local
// failures come back inside the Result with the overlay discarded; the error
// return is reserved for fatal conditions (broken state, store I/O), after
// which the node must stop.
func (e *Executor) Apply(view merkle.StateView, height uint64, tx *transaction.Envelope) (*Result, error) {
	result := &Result{TxHash: tx.HashString(), Kind: tx.Op.Kind}

	// Envelope checks. Commands rejected here never consume a nonce.
	if tx.Caller.IsAnonymous() {
		return e.fail(result, height, tx, mlnerrors.ErrCodeAnonymous, mlnerrors.ErrMsgAnonymous)
	}
	if !e.caps.CallerAllowed(tx.Caller) {
		return e.fail(result, height, tx, mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}
	stored, err := store.NewAccountStore(view).GetNonce(tx.Caller)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != stored+1 {
		return e.fail(result, height, tx, mlnerrors.ErrCodeInvalidNonce,
			fmt.Sprintf("invalid nonce: expected %d, got %d", stored+1, tx.Nonce))
	}

	// Every command past the envelope checks consumes its nonce, applied or
	// failed, so a rejected command cannot be replayed.
	base := NewView(view)
	if err := store.NewAccountStore(base).SetNonce(tx.Caller, tx.Nonce); err != nil {
		return nil, err
	}

	scratch := NewView(base)
	data, cmdErr := e.dispatch(scratch, height, tx.Caller, tx.Nonce, tx.Op)
	if cmdErr != nil {
		var le *mlnerrors.LedgerError
		if !stderrors.As(cmdErr, &le) {
			return nil, cmdErr
		}
		if err := base.Flush(); err != nil {
			return nil, err
		}
		return e.fail(result, height, tx, le.Code, le.Message)
	}

	if err := scratch.Flush(); err != nil {
		return nil, err
	}
	if err := base.Flush(); err != nil {
		return nil, err
	}
	result.Data = data

	logx.Info("LEDGER", fmt.Sprintf("Applied %s %s", tx.Op.Kind, stringutil.ShortenLog(result.TxHash)))
	e.router.PublishCommandEvent(events.NewCommandApplied(result.TxHash, tx.Op.Kind.String(), tx.Caller.Text(), height))
	return result, nil
}

// fail finalizes a command-local rejection: nothing but the nonce (when the
// caller got that far) has been written.
func (e *Executor) fail(result *Result, height uint64, tx *transaction.Envelope, code mlnerrors.LedgerErrorCode, message string) (*Result, error) {
	result.Code = code
	result.Log = message
	logx.Warn("LEDGER", fmt.Sprintf("Rejected %s %s: %s", tx.Op.Kind, stringutil.ShortenLog(result.TxHash), message))
	e.router.PublishCommandEvent(events.NewCommandFailed(result.TxHash, tx.Op.Kind.String(), tx.Caller.Text(), height, string(code), message))
	return result, nil
}

// dispatch decodes the payload and routes to the command applier. seq is the
// envelope nonce at the top level and the pending token when a multisig
// executes its inner operation; either way it is unique per execution, which
// address derivation relies on.
func (e *Executor) dispatch(view *View, height uint64, caller identity.Address, seq uint64, op transaction.Operation) ([]byte, error) {
	switch op.Kind {
	case transaction.KindTransfer:
		var payload transaction.Transfer
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyTransfer(view, caller, &payload)

	case transaction.KindMint:
		if err := e.tokenCommandsEnabled(height); err != nil {
			return nil, err
		}
		var payload transaction.Mint
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyMint(view, caller, &payload)

	case transaction.KindBurn:
		if err := e.tokenCommandsEnabled(height); err != nil {
			return nil, err
		}
		var payload transaction.Burn
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyBurn(view, caller, &payload)

	case transaction.KindTokenUpdate:
		if err := e.tokenCommandsEnabled(height); err != nil {
			return nil, err
		}
		var payload transaction.TokenUpdate
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyTokenUpdate(view, caller, &payload)

	case transaction.KindMultisigCreate:
		if !e.caps.Multisig {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
		}
		var payload transaction.MultisigCreate
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyMultisigCreate(view, caller, seq, &payload)

	case transaction.KindMultisigPropose:
		if !e.caps.Multisig {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
		}
		var payload transaction.MultisigPropose
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyMultisigPropose(view, height, caller, &payload)

	case transaction.KindMultisigApprove:
		if !e.caps.Multisig {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
		}
		var payload transaction.MultisigApprove
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyMultisigApprove(view, height, caller, &payload)

	case transaction.KindMultisigRevoke:
		if !e.caps.Multisig {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
		}
		var payload transaction.MultisigRevoke
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyMultisigRevoke(view, caller, &payload)

	case transaction.KindMultisigExecute:
		if !e.caps.Multisig {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
		}
		var payload transaction.MultisigExecute
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyMultisigExecute(view, height, caller, &payload)

	case transaction.KindKVPut:
		if !e.caps.KVStore {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
		}
		var payload transaction.KVPut
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyKVPut(view, caller, &payload)

	case transaction.KindKVDelete:
		if !e.caps.KVStore {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
		}
		var payload transaction.KVDelete
		if err := transaction.DecodePayload(op, &payload); err != nil {
			return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand, mlnerrors.ErrMsgInvalidCommand)
		}
		return e.applyKVDelete(view, caller, &payload)

	default:
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command kind %d", uint16(op.Kind)))
	}
}

// tokenCommandsEnabled gates mint, burn and token update behind both the
// capability set and the token-commands activation height.
func (e *Executor) tokenCommandsEnabled(height uint64) error {
	if !e.caps.TokenCommands {
		return mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
	}
	if e.registry != nil && !e.registry.IsActive(migration.TokenCommands, height) {
		if activation, ok := e.registry.ActivationHeight(migration.TokenCommands); ok {
			return mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled,
				fmt.Sprintf("Token commands activate at height %d", activation))
		}
		return mlnerrors.NewError(mlnerrors.ErrCodeFeatureDisabled, mlnerrors.ErrMsgFeatureDisabled)
	}
	return nil
}
