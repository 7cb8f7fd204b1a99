// Package transaction defines the command envelope replicas agree on. The
// encoding is canonical CBOR: two replicas handed the same command bytes
// decode the same envelope, and re-encoding produces the same bytes.
package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mlnlabs/mln/cborx"
	"github.com/mlnlabs/mln/identity"
)

// EnvelopeVersion is the current wire version.
const EnvelopeVersion = 1

// Kind selects which command an operation carries. The set is closed: values
// are wire-stable and unknown kinds are rejected, never skipped.
type Kind uint16

const (
	KindTransfer    Kind = 1
	KindMint        Kind = 2
	KindBurn        Kind = 3
	KindTokenUpdate Kind = 4

	KindMultisigCreate  Kind = 10
	KindMultisigPropose Kind = 11
	KindMultisigApprove Kind = 12
	KindMultisigRevoke  Kind = 13
	KindMultisigExecute Kind = 14

	KindKVPut    Kind = 20
	KindKVDelete Kind = 21
)

func (k Kind) String() string {
	switch k {
	case KindTransfer:
		return "transfer"
	case KindMint:
		return "mint"
	case KindBurn:
		return "burn"
	case KindTokenUpdate:
		return "token_update"
	case KindMultisigCreate:
		return "multisig_create"
	case KindMultisigPropose:
		return "multisig_propose"
	case KindMultisigApprove:
		return "multisig_approve"
	case KindMultisigRevoke:
		return "multisig_revoke"
	case KindMultisigExecute:
		return "multisig_execute"
	case KindKVPut:
		return "kv_put"
	case KindKVDelete:
		return "kv_delete"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

// Operation pairs a command kind with its encoded payload. Operations nest
// inside envelopes and inside multisig proposals.
type Operation struct {
	Kind    Kind   `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint"`
}

// NewOperation encodes payload for kind.
func NewOperation(kind Kind, payload interface{}) (Operation, error) {
	data, err := cborx.Marshal(payload)
	if err != nil {
		return Operation{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Operation{Kind: kind, Payload: data}, nil
}

// Encode serializes the operation, the form stored inside pending multisig
// transactions.
func (op Operation) Encode() ([]byte, error) {
	return cborx.Marshal(op)
}

// DecodeOperation reverses Operation.Encode.
func DecodeOperation(data []byte) (Operation, error) {
	var op Operation
	if err := cborx.Unmarshal(data, &op); err != nil {
		return Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	return op, nil
}

// DecodePayload decodes op's payload into out, which must match op.Kind.
func DecodePayload(op Operation, out interface{}) error {
	if err := cborx.Unmarshal(op.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", op.Kind, err)
	}
	return nil
}

// Envelope is one submitted command: who sends it, their nonce, and the
// operation to apply.
type Envelope struct {
	Version uint8            `cbor:"1,keyasint"`
	Caller  identity.Address `cbor:"2,keyasint"`
	Nonce   uint64           `cbor:"3,keyasint"`
	Op      Operation        `cbor:"4,keyasint"`
}

// NewEnvelope builds an envelope at the current wire version.
func NewEnvelope(caller identity.Address, nonce uint64, op Operation) *Envelope {
	return &Envelope{
		Version: EnvelopeVersion,
		Caller:  caller,
		Nonce:   nonce,
		Op:      op,
	}
}

// Encode serializes the envelope to its canonical bytes.
func (e *Envelope) Encode() ([]byte, error) {
	return cborx.Marshal(e)
}

// DecodeEnvelope parses and validates command bytes.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cborx.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Version == 0 || e.Version > EnvelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	return &e, nil
}

// Hash digests the canonical encoding, identifying the command in events and
// query responses.
func (e *Envelope) Hash() ([32]byte, error) {
	data, err := e.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// HashString is the hex form of Hash.
func (e *Envelope) HashString() string {
	hash, err := e.Hash()
	if err != nil {
		return ""
	}
	return hex.EncodeToString(hash[:])
}
