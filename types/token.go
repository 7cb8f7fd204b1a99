package types

import (
	"github.com/mlnlabs/mln/identity"
)

// SymbolInfo describes one registered token symbol. Owner is the address
// allowed to mint, burn and hand the symbol to a new owner; a zero owner
// freezes the supply forever.
type SymbolInfo struct {
	Version     uint8            `cbor:"1,keyasint"`
	Name        string           `cbor:"2,keyasint"`
	Decimals    uint32           `cbor:"3,keyasint"`
	Owner       identity.Address `cbor:"4,keyasint"`
	TotalSupply *Amount          `cbor:"5,keyasint"`
}

// NewSymbolInfo returns a symbol record with zero supply.
func NewSymbolInfo(name string, decimals uint32, owner identity.Address) *SymbolInfo {
	return &SymbolInfo{
		Version:     RecordVersion,
		Name:        name,
		Decimals:    decimals,
		Owner:       owner,
		TotalSupply: NewAmount(0),
	}
}
