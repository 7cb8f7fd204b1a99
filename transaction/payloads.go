package transaction

import (
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/types"
)

// Transfer moves Amount of Symbol from the caller to To.
type Transfer struct {
	To     identity.Address `cbor:"1,keyasint"`
	Symbol string           `cbor:"2,keyasint"`
	Amount *types.Amount    `cbor:"3,keyasint"`
}

// Mint creates Amount of Symbol on To. Only the symbol owner may mint.
type Mint struct {
	To     identity.Address `cbor:"1,keyasint"`
	Symbol string           `cbor:"2,keyasint"`
	Amount *types.Amount    `cbor:"3,keyasint"`
}

// Burn destroys Amount of Symbol held by From. Only the symbol owner may
// burn.
type Burn struct {
	From   identity.Address `cbor:"1,keyasint"`
	Symbol string           `cbor:"2,keyasint"`
	Amount *types.Amount    `cbor:"3,keyasint"`
}

// TokenUpdate hands mint and burn authority for Symbol to NewOwner.
type TokenUpdate struct {
	Symbol   string           `cbor:"1,keyasint"`
	NewOwner identity.Address `cbor:"2,keyasint"`
}

// MultisigCreate registers a new multisig account owned by Owners. The
// account address is derived from the caller and nonce, so it is known before
// the command lands.
type MultisigCreate struct {
	Owners       []identity.Address `cbor:"1,keyasint"`
	Threshold    uint32             `cbor:"2,keyasint"`
	ExpiryBlocks uint64             `cbor:"3,keyasint"`
}

// MultisigPropose submits Op for approval by the owners of Account.
type MultisigPropose struct {
	Account identity.Address `cbor:"1,keyasint"`
	Op      Operation        `cbor:"2,keyasint"`
}

// MultisigApprove adds the caller's approval to a pending transaction.
type MultisigApprove struct {
	Token uint64 `cbor:"1,keyasint"`
}

// MultisigRevoke withdraws the caller's approval from a pending transaction.
type MultisigRevoke struct {
	Token uint64 `cbor:"1,keyasint"`
}

// MultisigExecute runs a pending transaction once enough owners approved.
type MultisigExecute struct {
	Token uint64 `cbor:"1,keyasint"`
}

// KVPut writes Value under Key. The first writer claims ownership. Writers
// replaces the entry's writer set and may only be sent by the owner; leaving
// it unset keeps the current set.
type KVPut struct {
	Key     []byte             `cbor:"1,keyasint"`
	Value   []byte             `cbor:"2,keyasint"`
	Writers []identity.Address `cbor:"3,keyasint"`
}

// KVDelete removes Key and releases its ownership.
type KVDelete struct {
	Key []byte `cbor:"1,keyasint"`
}
