// Package events carries the typed notifications the node emits while
// applying blocks: per-command outcomes and per-block commits. Subscribers
// (the indexer, RPC streams) consume them outside the deterministic path, so
// nothing in here may influence state.
package events

import (
	"time"
)

// EventType is an enum-like string type for ledger events
type EventType string

const (
	EventCommandApplied EventType = "CommandApplied"
	EventCommandFailed  EventType = "CommandFailed"
	EventBlockCommitted EventType = "BlockCommitted"
)

// LedgerEvent represents any event that occurs while the node applies blocks
type LedgerEvent interface {
	Type() EventType
	Timestamp() time.Time
	TxHash() string
}

// CommandApplied is emitted when a command executed successfully
type CommandApplied struct {
	txHash    string
	kind      string
	caller    string
	height    uint64
	timestamp time.Time
}

func NewCommandApplied(txHash, kind, caller string, height uint64) *CommandApplied {
	return &CommandApplied{
		txHash:    txHash,
		kind:      kind,
		caller:    caller,
		height:    height,
		timestamp: time.Now(),
	}
}

func (e *CommandApplied) Type() EventType {
	return EventCommandApplied
}

func (e *CommandApplied) Timestamp() time.Time {
	return e.timestamp
}

func (e *CommandApplied) TxHash() string {
	return e.txHash
}

func (e *CommandApplied) Kind() string {
	return e.kind
}

func (e *CommandApplied) Caller() string {
	return e.caller
}

func (e *CommandApplied) Height() uint64 {
	return e.height
}

// CommandFailed is emitted when a command was rejected; the code is the
// structured error code the submitter sees
type CommandFailed struct {
	txHash    string
	kind      string
	caller    string
	height    uint64
	code      string
	reason    string
	timestamp time.Time
}

func NewCommandFailed(txHash, kind, caller string, height uint64, code, reason string) *CommandFailed {
	return &CommandFailed{
		txHash:    txHash,
		kind:      kind,
		caller:    caller,
		height:    height,
		code:      code,
		reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *CommandFailed) Type() EventType {
	return EventCommandFailed
}

func (e *CommandFailed) Timestamp() time.Time {
	return e.timestamp
}

func (e *CommandFailed) TxHash() string {
	return e.txHash
}

func (e *CommandFailed) Kind() string {
	return e.kind
}

func (e *CommandFailed) Caller() string {
	return e.caller
}

func (e *CommandFailed) Height() uint64 {
	return e.height
}

func (e *CommandFailed) Code() string {
	return e.code
}

func (e *CommandFailed) Reason() string {
	return e.reason
}

// BlockCommitted is emitted after a height is durably committed
type BlockCommitted struct {
	height    uint64
	root      string
	commands  int
	timestamp time.Time
}

func NewBlockCommitted(height uint64, root string, commands int) *BlockCommitted {
	return &BlockCommitted{
		height:    height,
		root:      root,
		commands:  commands,
		timestamp: time.Now(),
	}
}

func (e *BlockCommitted) Type() EventType {
	return EventBlockCommitted
}

func (e *BlockCommitted) Timestamp() time.Time {
	return e.timestamp
}

// TxHash returns the empty string; block events are not bound to one command
func (e *BlockCommitted) TxHash() string {
	return ""
}

func (e *BlockCommitted) Height() uint64 {
	return e.height
}

func (e *BlockCommitted) Root() string {
	return e.root
}

func (e *BlockCommitted) Commands() int {
	return e.commands
}
