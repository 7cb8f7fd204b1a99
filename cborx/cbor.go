// Package cborx pins the CBOR modes every state record goes through. Encoding
// is RFC 8949 core deterministic so identical records always produce identical
// bytes; decoding tolerates unknown fields so newer records stay readable by
// older schema versions.
package cborx

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cborx: build enc mode: " + err.Error())
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("cborx: build dec mode: " + err.Error())
	}
	decMode = dm
}

// Marshal encodes v deterministically.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v, ignoring fields v does not know.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
