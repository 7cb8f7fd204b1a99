package errors

import (
	stderrors "errors"
	"fmt"
)

// IntegrityError reports corrupted or undecodable committed state. It is never
// returned as a command result: whoever sees it must stop the node, because
// continuing would fork the replica from the network.
type IntegrityError struct {
	Op  string
	Key []byte
	Err error
}

func (e *IntegrityError) Error() string {
	if len(e.Key) > 0 {
		return fmt.Sprintf("state integrity violation in %s (key %x): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("state integrity violation in %s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NewIntegrityError wraps err as a fatal state-integrity failure.
func NewIntegrityError(op string, key []byte, err error) error {
	return &IntegrityError{Op: op, Key: key, Err: err}
}

// SequenceError reports a consensus callback arriving outside the legal
// lifecycle order. Like IntegrityError it is fatal: the driver is broken.
type SequenceError struct {
	State string
	Call  string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("illegal %s in state %s", e.Call, e.State)
}

// NewSequenceError reports call arriving while the adapter is in state.
func NewSequenceError(state, call string) error {
	return &SequenceError{State: state, Call: call}
}

// IsFatal reports whether err belongs to the fatal class: state corruption or
// lifecycle misuse. Fatal errors must halt the node instead of rejecting a
// single command.
func IsFatal(err error) bool {
	var ie *IntegrityError
	var se *SequenceError
	return stderrors.As(err, &ie) || stderrors.As(err, &se)
}
