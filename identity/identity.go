// Package identity defines the fixed-length addresses that own balances, keys
// and multisig accounts. An address is the sha256 of an ed25519 public key;
// the node never verifies signatures itself, it only compares addresses handed
// to it by the consensus transport.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressSize is the raw length of every address in bytes.
const AddressSize = 32

// Address identifies an account. The zero value is the anonymous address.
type Address [AddressSize]byte

// Anonymous is the caller attached to unauthenticated requests. It can be
// queried against but never owns anything and never passes command checks.
var Anonymous Address

// FromPublicKey derives the address of an ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) Address {
	return Address(sha256.Sum256(pub))
}

// FromBytes copies a raw 32-byte address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// FromText parses the base58 text form produced by Text.
func FromText(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address %q: %w", s, err)
	}
	return FromBytes(raw)
}

// Derive builds a deterministic sub-address, e.g. for multisig accounts
// created at runtime. Every input is length-prefixed so distinct part lists
// can never collide.
func Derive(tag string, parts ...[]byte) Address {
	h := sha256.New()
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(tag)))
	h.Write(lenBuf[:])
	h.Write([]byte(tag))
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	return Address(h.Sum(nil))
}

// Text returns the base58 form used in config files, logs and RPC payloads.
func (a Address) Text() string {
	return base58.Encode(a[:])
}

func (a Address) String() string {
	return a.Text()
}

// Bytes returns the raw 32-byte form used in state keys.
func (a Address) Bytes() []byte {
	return a[:]
}

// IsAnonymous reports whether a is the anonymous address.
func (a Address) IsAnonymous() bool {
	return a == Anonymous
}

// Less orders addresses by raw bytes, the order state keys sort in.
func (a Address) Less(b Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// MarshalText implements encoding.TextMarshaler for YAML and JSON configs.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Text()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := FromText(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler so CBOR codecs emit the
// raw 32 bytes instead of the text form.
func (a Address) MarshalBinary() ([]byte, error) {
	return a.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (a *Address) UnmarshalBinary(data []byte) error {
	parsed, err := FromBytes(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
